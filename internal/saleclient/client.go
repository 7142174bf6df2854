// Package saleclient is the terminal's HTTP client for the register backend:
// login, CSRF token handling and the process-sale call. The fixed wire
// contract lives in internal/domain.
package saleclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"salepoint/internal/domain"
)

// ErrUnavailable marks transport-level failures: connection errors, timeouts
// and responses that cannot be decoded. Callers surface these with a generic
// message since there is no server-provided one to show.
var ErrUnavailable = errors.New("sale service unreachable")

const csrfCookieName = "csrftoken"

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
}

func New(baseURL string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: parsed,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}, nil
}

// Login authenticates the cashier and keeps the bearer token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp domain.LoginResponse
	err := c.postJSON(ctx, "/api/v1/auth/login", domain.LoginRequest{
		Username: username,
		Password: password,
	}, &resp, false)
	if err != nil {
		return err
	}
	if resp.AccessToken == "" {
		return errors.New("login rejected")
	}
	c.token = resp.AccessToken
	return nil
}

// RefreshCSRFToken asks the server for a fresh token; the matching csrftoken
// cookie lands in the client's jar and is echoed back in the X-CSRFToken
// header on mutating calls.
func (c *Client) RefreshCSRFToken(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String()+"/api/v1/auth/csrf-token", nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("csrf token fetch failed with status %d", resp.StatusCode)
	}
	return nil
}

// FetchProducts loads the product catalog the terminal filters locally.
func (c *Client) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String()+"/api/v1/products", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("product fetch failed with status %d", resp.StatusCode)
	}

	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: malformed product list", ErrUnavailable)
	}
	return body.Products, nil
}

// FetchSales lists past sales. rawQuery is an already-encoded query string
// carrying search, from_date, to_date and page.
func (c *Client) FetchSales(ctx context.Context, rawQuery string) (domain.SaleListResult, error) {
	endpoint := c.baseURL.String() + "/api/v1/sales"
	if rawQuery != "" {
		endpoint += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.SaleListResult{}, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.SaleListResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return domain.SaleListResult{}, errors.New(apiErr.Error)
		}
		return domain.SaleListResult{}, fmt.Errorf("sale list fetch failed with status %d", resp.StatusCode)
	}

	var result domain.SaleListResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.SaleListResult{}, fmt.Errorf("%w: malformed sale list", ErrUnavailable)
	}
	return result, nil
}

// ProcessSale posts the checkout payload. Business rejections come back as a
// response with Success false and the server's message; only transport and
// decode problems are returned as errors (wrapped in ErrUnavailable).
func (c *Client) ProcessSale(ctx context.Context, saleReq domain.ProcessSaleRequest) (domain.ProcessSaleResponse, error) {
	payload, err := json.Marshal(saleReq)
	if err != nil {
		return domain.ProcessSaleResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+"/api/v1/sales/process", bytes.NewReader(payload))
	if err != nil {
		return domain.ProcessSaleResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	if token := c.csrfToken(); token != "" {
		req.Header.Set("X-CSRFToken", token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ProcessSaleResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	var resp domain.ProcessSaleResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return domain.ProcessSaleResponse{}, fmt.Errorf("%w: malformed response", ErrUnavailable)
	}
	if !resp.Success && resp.Error == "" {
		resp.Error = fmt.Sprintf("sale rejected with status %d", httpResp.StatusCode)
	}
	return resp, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// csrfToken reads the server-issued csrftoken cookie out of the jar.
func (c *Client) csrfToken() string {
	for _, cookie := range c.httpClient.Jar.Cookies(c.baseURL) {
		if cookie.Name == csrfCookieName {
			return cookie.Value
		}
	}
	return ""
}

func (c *Client) postJSON(ctx context.Context, path string, body any, dest any, withCSRF bool) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	if withCSRF {
		if token := c.csrfToken(); token != "" {
			req.Header.Set("X-CSRFToken", token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return errors.New(apiErr.Error)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: malformed response", ErrUnavailable)
	}
	return nil
}
