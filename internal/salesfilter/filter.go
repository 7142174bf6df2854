// Package salesfilter mutates the query parameters a sales-list page is
// addressed by. Filtering itself happens server-side; this package only
// rewrites the URL the next page load will use.
package salesfilter

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

const (
	ParamSearch   = "search"
	ParamFromDate = "from_date"
	ParamToDate   = "to_date"
	ParamPage     = "page"
)

const dateLayout = "2006-01-02"

// DefaultRangeDays is how far back the date range reaches when the URL
// carries no explicit from_date.
const DefaultRangeDays = 30

var ErrDateOrder = errors.New("'from' date cannot be after 'to' date")

// ApplySearch sets or removes the search parameter from the trimmed query
// text. Any page parameter is dropped so the reload starts at page one.
func ApplySearch(u *url.URL, query string) {
	q := u.Query()
	query = strings.TrimSpace(query)
	if query == "" {
		q.Del(ParamSearch)
	} else {
		q.Set(ParamSearch, query)
	}
	q.Del(ParamPage)
	u.RawQuery = q.Encode()
}

// ApplyDateRange sets or removes from_date/to_date independently (an empty
// value removes the parameter) and resets pagination. When both dates parse
// and from is after to, the URL is left untouched and ErrDateOrder returned.
// A value that does not parse as a calendar date is treated as absent for the
// ordering check but still written through, matching what a date input hands
// back for free-typed text.
func ApplyDateRange(u *url.URL, fromDate, toDate string) error {
	fromDate = strings.TrimSpace(fromDate)
	toDate = strings.TrimSpace(toDate)

	from, fromOK := parseDate(fromDate)
	to, toOK := parseDate(toDate)
	if fromOK && toOK && from.After(to) {
		return ErrDateOrder
	}

	q := u.Query()
	setOrDelete(q, ParamFromDate, fromDate)
	setOrDelete(q, ParamToDate, toDate)
	q.Del(ParamPage)
	u.RawQuery = q.Encode()
	return nil
}

// State is what the filter controls show after a page load: current values
// plus whether each filter is visibly active.
type State struct {
	Search       string
	FromDate     string
	ToDate       string
	SearchActive bool
	DateActive   bool
}

// FromURL reads the filter state out of the URL, defaulting the date range to
// the last DefaultRangeDays ending at now for whichever date parameter is
// absent. Only explicitly present parameters mark a filter active.
func FromURL(u *url.URL, now time.Time) State {
	q := u.Query()

	state := State{
		Search:   q.Get(ParamSearch),
		FromDate: q.Get(ParamFromDate),
		ToDate:   q.Get(ParamToDate),
	}
	state.SearchActive = state.Search != ""
	state.DateActive = state.FromDate != "" || state.ToDate != ""

	if state.FromDate == "" {
		state.FromDate = now.AddDate(0, 0, -DefaultRangeDays).Format(dateLayout)
	}
	if state.ToDate == "" {
		state.ToDate = now.Format(dateLayout)
	}
	return state
}

func parseDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func setOrDelete(q url.Values, key, value string) {
	if value == "" {
		q.Del(key)
	} else {
		q.Set(key, value)
	}
}
