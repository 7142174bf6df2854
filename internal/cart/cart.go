// Package cart holds the in-memory cart a cashier builds up during one
// register session: ordered line items keyed by product id, a discount entry,
// and the checkout flow that submits the finished sale. Totals are recomputed
// from the lines on every read rather than patched incrementally, so the
// summary can never drift from the underlying state.
package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"salepoint/internal/domain"
)

type DiscountMode string

const (
	DiscountFixed   DiscountMode = "fixed"
	DiscountPercent DiscountMode = "percentage"
)

var (
	ErrOutOfStock          = errors.New("product is out of stock")
	ErrStockLimit          = errors.New("stock limit reached")
	ErrNotInCart           = errors.New("product not in cart")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrNoCheckout          = errors.New("checkout is not open")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrSubmitInFlight      = errors.New("a checkout submission is already in flight")
)

// Line is one product's presence in the cart. StockLimit is the available
// stock snapshotted when the product was first added; it is not refreshed.
type Line struct {
	ProductID      string
	Name           string
	UnitPriceCents int64
	Quantity       int
	StockLimit     int
}

type Summary struct {
	SubtotalCents int64
	DiscountCents int64
	TaxCents      int64
	TotalCents    int64
}

// Checkout is the confirmation view opened before submitting a sale. Totals
// and item count are snapshotted at open time; the customer fields, payment
// method and tendered amount are filled in by the operator afterwards.
type Checkout struct {
	Summary       Summary
	ItemCount     int
	CustomerName  string
	CustomerPhone string
	PaymentMethod string
	TenderCents   int64
}

// Submitter sends a finished sale to the register backend. *saleclient.Client
// satisfies it.
type Submitter interface {
	ProcessSale(ctx context.Context, req domain.ProcessSaleRequest) (domain.ProcessSaleResponse, error)
}

// Result reports a completed sale back to the operator.
type Result struct {
	InvoiceNumber string
	FinalCents    int64
	SaleID        string
}

// Cart is the register-session state machine. All mutations go through its
// methods; there is one logical thread of control per register, and the
// submitting flag rejects a second Submit while one is outstanding.
type Cart struct {
	mu            sync.Mutex
	lines         []Line
	discountValue float64
	discountMode  DiscountMode
	checkout      *Checkout
	submitting    bool
}

func New() *Cart {
	return &Cart{discountMode: DiscountFixed}
}

// AddItem puts one unit of the product in the cart. If the product already has
// a line, its quantity is incremented instead of adding a duplicate line; the
// increment is refused with ErrStockLimit once the quantity reaches the stock
// snapshot taken when the line was created.
func (c *Cart) AddItem(productID, name string, unitPriceCents int64, stock int) error {
	if productID == "" || unitPriceCents < 0 {
		return fmt.Errorf("%w: bad product data for %q", ErrOutOfStock, productID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if idx, ok := c.find(productID); ok {
		line := &c.lines[idx]
		if line.Quantity >= line.StockLimit {
			return fmt.Errorf("%w: only %d of %s available", ErrStockLimit, line.StockLimit, line.Name)
		}
		line.Quantity++
		return nil
	}

	if stock < 1 {
		return fmt.Errorf("%w: %s", ErrOutOfStock, name)
	}
	c.lines = append(c.lines, Line{
		ProductID:      productID,
		Name:           name,
		UnitPriceCents: unitPriceCents,
		Quantity:       1,
		StockLimit:     stock,
	})
	return nil
}

// SetQuantity sets a line's quantity directly. A value below 1 removes the
// line (same as RemoveItem). A value above the stock snapshot is clamped down
// to it and ErrStockLimit is returned so the caller can surface a warning; the
// clamped quantity is still applied.
func (c *Cart) SetQuantity(productID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if quantity < 1 {
		c.remove(productID)
		return nil
	}

	idx, ok := c.find(productID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInCart, productID)
	}
	line := &c.lines[idx]
	if quantity > line.StockLimit {
		line.Quantity = line.StockLimit
		return fmt.Errorf("%w: only %d of %s available", ErrStockLimit, line.StockLimit, line.Name)
	}
	line.Quantity = quantity
	return nil
}

// RemoveItem deletes the product's line. Removing an id that is not in the
// cart is a no-op.
func (c *Cart) RemoveItem(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(productID)
}

// Clear empties the cart and reports whether anything was removed. Callers
// should confirm with the operator before clearing a non-empty cart; when the
// cart is already empty there is nothing to confirm and Clear returns false.
func (c *Cart) Clear() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) == 0 {
		return false
	}
	c.lines = nil
	return true
}

// SetDiscount stores the operator-entered discount. In fixed mode the value is
// a currency amount (2.50 means 250 cents); in percentage mode it is a percent
// of the subtotal. NaN, infinities and negative input are treated as zero, the
// same way an unparseable entry field is.
func (c *Cart) SetDiscount(value float64, mode DiscountMode) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		value = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discountValue = value
	c.discountMode = mode
}

// Summary recomputes the price summary from the current lines. Tax is fixed at
// zero. The total is floored at zero so a discount larger than the subtotal
// never produces a negative amount due.
func (c *Cart) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summaryLocked()
}

func (c *Cart) summaryLocked() Summary {
	var subtotal int64
	for _, line := range c.lines {
		subtotal += line.UnitPriceCents * int64(line.Quantity)
	}

	var discount int64
	switch c.discountMode {
	case DiscountPercent:
		discount = int64(math.Round(float64(subtotal) * c.discountValue / 100))
	default:
		discount = int64(math.Round(c.discountValue * 100))
	}

	total := subtotal - discount
	if total < 0 {
		total = 0
	}
	return Summary{
		SubtotalCents: subtotal,
		DiscountCents: discount,
		TaxCents:      0,
		TotalCents:    total,
	}
}

// Lines returns a copy of the cart lines in first-added order.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) == 0
}

// ItemCount is the total number of units across all lines.
func (c *Cart) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, line := range c.lines {
		count += line.Quantity
	}
	return count
}

// OpenCheckout snapshots the current totals into a confirmation view with
// fresh customer fields, cash as the payment method and no amount tendered.
// It fails with ErrEmptyCart when there is nothing to sell.
func (c *Cart) OpenCheckout() (*Checkout, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) == 0 {
		return nil, ErrEmptyCart
	}

	count := 0
	for _, line := range c.lines {
		count += line.Quantity
	}
	c.checkout = &Checkout{
		Summary:       c.summaryLocked(),
		ItemCount:     count,
		PaymentMethod: domain.PaymentCash,
	}
	return c.checkout, nil
}

// CloseCheckout abandons the open confirmation view, keeping the cart as is.
func (c *Cart) CloseCheckout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkout = nil
}

// SetAmountTendered records the cash offered and returns the change due
// against the snapshotted total. A tender below the total returns
// ErrInsufficientPayment instead of a negative change value.
func (c *Cart) SetAmountTendered(cents int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.checkout == nil {
		return 0, ErrNoCheckout
	}
	c.checkout.TenderCents = cents
	change := cents - c.checkout.Summary.TotalCents
	if change < 0 {
		return 0, ErrInsufficientPayment
	}
	return change, nil
}

// Submit validates the open checkout, sends the sale exactly once and resets
// the cart on success. Validation failures and the in-flight guard return
// before any network call. On a rejected or failed submission the cart is left
// untouched so the operator can adjust and retry.
func (c *Cart) Submit(ctx context.Context, submitter Submitter) (Result, error) {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return Result{}, ErrSubmitInFlight
	}
	if c.checkout == nil {
		c.mu.Unlock()
		return Result{}, ErrNoCheckout
	}
	if len(c.lines) == 0 {
		c.mu.Unlock()
		return Result{}, ErrEmptyCart
	}
	co := c.checkout
	if co.PaymentMethod == domain.PaymentCash && co.TenderCents < co.Summary.TotalCents {
		c.mu.Unlock()
		return Result{}, ErrInsufficientPayment
	}

	req := domain.ProcessSaleRequest{
		Items:         make([]domain.SaleLineInput, 0, len(c.lines)),
		CustomerName:  strings.TrimSpace(co.CustomerName),
		CustomerPhone: strings.TrimSpace(co.CustomerPhone),
		PaymentMethod: co.PaymentMethod,
		DiscountCents: co.Summary.DiscountCents,
	}
	for _, line := range c.lines {
		req.Items = append(req.Items, domain.SaleLineInput{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}
	c.submitting = true
	c.mu.Unlock()

	resp, err := submitter.ProcessSale(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false

	if err != nil {
		return Result{}, err
	}
	if !resp.Success {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "sale was rejected"
		}
		return Result{}, errors.New(msg)
	}

	c.lines = nil
	c.discountValue = 0
	c.discountMode = DiscountFixed
	c.checkout = nil
	return Result{
		InvoiceNumber: resp.InvoiceNumber,
		FinalCents:    resp.FinalCents,
		SaleID:        resp.SaleID,
	}, nil
}

func (c *Cart) find(productID string) (int, bool) {
	for i, line := range c.lines {
		if line.ProductID == productID {
			return i, true
		}
	}
	return 0, false
}

func (c *Cart) remove(productID string) {
	for i, line := range c.lines {
		if line.ProductID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}
