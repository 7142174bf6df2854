package domain

import "time"

type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	Barcode       string    `json:"barcode,omitempty"`
	PriceCents    int64     `json:"price_cents"`
	StockQty      int       `json:"stock_quantity"`
	MinStockLevel int       `json:"min_stock_level"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// LowStock reports whether the product is at or below its reorder level.
func (p Product) LowStock() bool {
	return p.StockQty <= p.MinStockLevel
}

type Category struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type ProductCreateRequest struct {
	Name          string `json:"name"`
	Category      string `json:"category"`
	Barcode       string `json:"barcode"`
	PriceCents    int64  `json:"price_cents"`
	StockQty      int    `json:"stock_quantity"`
	MinStockLevel int    `json:"min_stock_level"`
}

// SaleLineInput is one cart line on the wire: an opaque product id and a
// purchase quantity.
type SaleLineInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ProcessSaleRequest is the checkout payload posted by the terminal.
type ProcessSaleRequest struct {
	Items         []SaleLineInput `json:"items"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	PaymentMethod string          `json:"payment_method"`
	DiscountCents int64           `json:"discount_amount"`
}

// ProcessSaleResponse is the checkout reply. Success carries the invoice
// number, charged amount and sale id; failure carries Error with Success false.
type ProcessSaleResponse struct {
	Success       bool   `json:"success"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	FinalCents    int64  `json:"final_amount,omitempty"`
	SaleID        string `json:"sale_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

type Sale struct {
	ID            string     `json:"id"`
	InvoiceNumber string     `json:"invoice_number"`
	Cashier       string     `json:"cashier"`
	SubtotalCents int64      `json:"total_amount"`
	DiscountCents int64      `json:"discount_amount"`
	TaxCents      int64      `json:"tax_amount"`
	FinalCents    int64      `json:"final_amount"`
	PaymentMethod string     `json:"payment_method"`
	CustomerName  string     `json:"customer_name,omitempty"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Items         []SaleItem `json:"items,omitempty"`
}

type SaleItem struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
}

// SaleQuery mirrors the sales-list URL contract: free-text search, an
// inclusive calendar-date range and a 1-based page number.
type SaleQuery struct {
	Cashier  string
	Search   string
	FromDate string
	ToDate   string
	Page     int
	PageSize int
}

type SaleListResult struct {
	Sales      []Sale `json:"sales"`
	Page       int    `json:"page"`
	PageCount  int    `json:"page_count"`
	TotalSales int    `json:"total_sales"`
}

type StockMovement struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	MovementType  string    `json:"movement_type"`
	Quantity      int       `json:"quantity"`
	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

type StockAdjustmentRequest struct {
	ProductID    string `json:"product_id"`
	MovementType string `json:"movement_type"`
	Quantity     int    `json:"quantity"`
	Notes        string `json:"notes"`
}

// SaleEvent is published to the warehouse queue after a completed sale.
type SaleEvent struct {
	SaleID        string          `json:"sale_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Cashier       string          `json:"cashier"`
	FinalCents    int64           `json:"final_cents"`
	Items         []SaleLineInput `json:"items"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

type DailySummary struct {
	Date          string `json:"date"`
	Transactions  int    `json:"transactions"`
	GrossCents    int64  `json:"gross_cents"`
	DiscountCents int64  `json:"discount_cents"`
	TaxCents      int64  `json:"tax_cents"`
	NetCents      int64  `json:"net_cents"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	PaymentCash    = "cash"
	PaymentCard    = "card"
	PaymentDigital = "digital"
)

const (
	MovementIn         = "in"
	MovementOut        = "out"
	MovementAdjustment = "adjustment"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
