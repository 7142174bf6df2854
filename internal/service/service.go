package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"salepoint/internal/cache"
	"salepoint/internal/domain"
	"salepoint/internal/events"
	"salepoint/internal/store"
	"salepoint/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	productCacheKey = "products:active"
	dateLayout      = "2006-01-02"
)

type Service struct {
	repo            store.Repository
	products        cache.ProductCache
	events          events.Publisher
	pageSize        int
	productCacheTTL time.Duration
}

func New(repo store.Repository, products cache.ProductCache, publisher events.Publisher, pageSize int, productCacheTTL time.Duration) *Service {
	if products == nil {
		products = cache.NoopProductCache{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if productCacheTTL <= 0 {
		productCacheTTL = 60 * time.Second
	}

	return &Service{
		repo:            repo,
		products:        products,
		events:          publisher,
		pageSize:        pageSize,
		productCacheTTL: productCacheTTL,
	}
}

// ListProducts serves the register's product picker. The unfiltered list is
// the hot path and goes through the cache; filtered lookups hit the store.
func (s *Service) ListProducts(ctx context.Context, search string, category string) ([]domain.Product, error) {
	search = strings.TrimSpace(search)
	category = strings.TrimSpace(category)

	if search == "" && category == "" {
		if cached, hit, err := s.products.Get(ctx, productCacheKey); err != nil {
			log.Printf("[service] WARN: product cache read failed: %v", err)
		} else if hit {
			return cached, nil
		}
	}

	products, err := s.repo.ListProducts(ctx, search, category)
	if err != nil {
		return nil, err
	}

	if search == "" && category == "" {
		if err := s.products.Set(ctx, productCacheKey, products, s.productCacheTTL); err != nil {
			log.Printf("[service] WARN: product cache write failed: %v", err)
		}
	}
	return products, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Barcode = strings.TrimSpace(req.Barcode)

	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidSale
	}
	if req.PriceCents < 1 || req.StockQty < 0 || req.MinStockLevel < 0 {
		return domain.Product{}, store.ErrInvalidSale
	}

	product := domain.Product{
		ID:            xid.New("prd"),
		Name:          req.Name,
		Category:      req.Category,
		Barcode:       req.Barcode,
		PriceCents:    req.PriceCents,
		StockQty:      req.StockQty,
		MinStockLevel: req.MinStockLevel,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	if req.StockQty > 0 {
		err := s.repo.CreateStockMovement(ctx, domain.StockMovement{
			ID:           xid.New("mv"),
			ProductID:    created.ID,
			MovementType: domain.MovementIn,
			Quantity:     req.StockQty,
			Notes:        "initial stock",
			CreatedBy:    actor.Username,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			log.Printf("[service] WARN: failed to record initial stock movement product=%s: %v", created.ID, err)
		}
	}

	s.invalidateProductCache(ctx)
	return *created, nil
}

// AdjustStock applies a manual stock correction: "in" adds, "out" removes,
// "adjustment" sets the absolute quantity.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.MovementType = strings.ToLower(strings.TrimSpace(req.MovementType))
	if req.ProductID == "" {
		return domain.Product{}, store.ErrInvalidSale
	}

	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return domain.Product{}, err
	}

	newQty := product.StockQty
	switch req.MovementType {
	case domain.MovementIn:
		if req.Quantity < 1 {
			return domain.Product{}, store.ErrInvalidSale
		}
		newQty += req.Quantity
	case domain.MovementOut:
		if req.Quantity < 1 {
			return domain.Product{}, store.ErrInvalidSale
		}
		if req.Quantity > product.StockQty {
			return domain.Product{}, fmt.Errorf("%w for %s", store.ErrInsufficientStock, product.Name)
		}
		newQty -= req.Quantity
	case domain.MovementAdjustment:
		if req.Quantity < 0 {
			return domain.Product{}, store.ErrInvalidSale
		}
		newQty = req.Quantity
	default:
		return domain.Product{}, store.ErrInvalidSale
	}

	if err := s.repo.SetProductStock(ctx, product.ID, newQty); err != nil {
		return domain.Product{}, err
	}

	if err := s.repo.CreateStockMovement(ctx, domain.StockMovement{
		ID:           xid.New("mv"),
		ProductID:    product.ID,
		MovementType: req.MovementType,
		Quantity:     req.Quantity,
		Notes:        strings.TrimSpace(req.Notes),
		CreatedBy:    actor.Username,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to record stock movement product=%s: %v", product.ID, err)
	}

	s.invalidateProductCache(ctx)
	product.StockQty = newQty
	return *product, nil
}

// ProcessSale is the checkout endpoint's core. It recomputes every amount
// from stored prices, never trusting client-side totals, and rejects the
// whole sale when any line exceeds stock.
func (s *Service) ProcessSale(ctx context.Context, req domain.ProcessSaleRequest) (domain.ProcessSaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.ProcessSaleResponse{}, fmt.Errorf("authentication required")
	}

	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	switch req.PaymentMethod {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentDigital:
	default:
		return domain.ProcessSaleResponse{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidSale, req.PaymentMethod)
	}
	if req.DiscountCents < 0 {
		return domain.ProcessSaleResponse{}, fmt.Errorf("%w: negative discount", store.ErrInvalidSale)
	}

	lines := aggregateLines(req.Items)
	if len(lines) == 0 {
		return domain.ProcessSaleResponse{}, fmt.Errorf("%w: no items", store.ErrInvalidSale)
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.ProcessSaleResponse{}, err
	}

	subtotal := int64(0)
	items := make([]domain.SaleItem, 0, len(lines))
	movements := make([]domain.StockMovement, 0, len(lines))
	now := time.Now().UTC()

	for _, line := range lines {
		product, exists := products[line.ProductID]
		if !exists {
			return domain.ProcessSaleResponse{}, fmt.Errorf("product %s unavailable", line.ProductID)
		}
		if line.Quantity > product.StockQty {
			return domain.ProcessSaleResponse{}, fmt.Errorf("%w for %s", store.ErrInsufficientStock, product.Name)
		}
		lineTotal := int64(line.Quantity) * product.PriceCents
		subtotal += lineTotal
		items = append(items, domain.SaleItem{
			ProductID:      product.ID,
			ProductName:    product.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: product.PriceCents,
			TotalCents:     lineTotal,
		})
		movements = append(movements, domain.StockMovement{
			ProductID:     product.ID,
			MovementType:  domain.MovementOut,
			Quantity:      line.Quantity,
			ReferenceType: "sale",
			CreatedBy:     actor.Username,
			CreatedAt:     now,
		})
	}

	discount := req.DiscountCents
	if discount > subtotal {
		discount = subtotal
	}
	// Tax is not levied at the register.
	taxCents := int64(0)
	finalCents := subtotal - discount + taxCents

	sale := domain.Sale{
		ID:            xid.New("sale"),
		InvoiceNumber: xid.Invoice(),
		Cashier:       actor.Username,
		SubtotalCents: subtotal,
		DiscountCents: discount,
		TaxCents:      taxCents,
		FinalCents:    finalCents,
		PaymentMethod: req.PaymentMethod,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		CreatedAt:     now,
		Items:         items,
	}

	created, err := s.repo.CreateSale(ctx, sale, movements)
	if err != nil {
		return domain.ProcessSaleResponse{}, err
	}

	s.invalidateProductCache(ctx)

	if err := s.events.PublishSale(ctx, domain.SaleEvent{
		SaleID:        created.ID,
		InvoiceNumber: created.InvoiceNumber,
		Cashier:       created.Cashier,
		FinalCents:    created.FinalCents,
		Items:         req.Items,
		OccurredAt:    created.CreatedAt,
	}); err != nil {
		log.Printf("[service] WARN: failed to publish sale event sale=%s: %v", created.ID, err)
	}

	return domain.ProcessSaleResponse{
		Success:       true,
		InvoiceNumber: created.InvoiceNumber,
		FinalCents:    created.FinalCents,
		SaleID:        created.ID,
	}, nil
}

// ListSales backs the sales history page. Cashiers only see their own sales;
// admins see everything. Malformed dates are treated as absent, but a range
// where from is after to is rejected outright.
func (s *Service) ListSales(ctx context.Context, query domain.SaleQuery) (domain.SaleListResult, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SaleListResult{}, fmt.Errorf("authentication required")
	}
	if actor.Role != domain.RoleAdmin {
		query.Cashier = actor.Username
	}

	from, fromErr := time.Parse(dateLayout, strings.TrimSpace(query.FromDate))
	to, toErr := time.Parse(dateLayout, strings.TrimSpace(query.ToDate))
	if fromErr == nil && toErr == nil && from.After(to) {
		return domain.SaleListResult{}, fmt.Errorf("%w: from_date is after to_date", store.ErrInvalidSale)
	}

	if query.Page < 1 {
		query.Page = 1
	}
	if query.PageSize < 1 {
		query.PageSize = s.pageSize
	}
	return s.repo.ListSales(ctx, query)
}

// GetReceipt returns the full sale for receipt rendering. Cashiers can only
// pull up their own receipts.
func (s *Service) GetReceipt(ctx context.Context, saleID string) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, fmt.Errorf("authentication required")
	}
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, store.ErrInvalidSale
	}

	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if actor.Role != domain.RoleAdmin && sale.Cashier != actor.Username {
		return domain.Sale{}, store.ErrNotFound
	}
	return *sale, nil
}

func (s *Service) DailySummary(ctx context.Context, date string) (domain.DailySummary, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.DailySummary{}, fmt.Errorf("admin role required")
	}

	date = strings.TrimSpace(date)
	if date == "" {
		date = time.Now().UTC().Format(dateLayout)
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return domain.DailySummary{}, fmt.Errorf("%w: bad date %q", store.ErrInvalidSale, date)
	}
	return s.repo.GetDailySummary(ctx, date)
}

// ExportSalesCSV streams the filtered sales list as CSV, one row per sale.
func (s *Service) ExportSalesCSV(ctx context.Context, query domain.SaleQuery, w io.Writer) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}

	query.Page = 1
	query.PageSize = 10000
	result, err := s.repo.ListSales(ctx, query)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	header := []string{"invoice_number", "created_at", "cashier", "customer_name", "payment_method", "total_amount", "discount_amount", "final_amount"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, sale := range result.Sales {
		row := []string{
			sale.InvoiceNumber,
			sale.CreatedAt.UTC().Format(time.RFC3339),
			sale.Cashier,
			sale.CustomerName,
			sale.PaymentMethod,
			formatCents(sale.SubtotalCents),
			formatCents(sale.DiscountCents),
			formatCents(sale.FinalCents),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (s *Service) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin role required")
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListStockMovements(ctx, strings.TrimSpace(productID), limit)
}

func (s *Service) invalidateProductCache(ctx context.Context) {
	if err := s.products.Invalidate(ctx, productCacheKey); err != nil {
		log.Printf("[service] WARN: product cache invalidation failed: %v", err)
	}
}

// aggregateLines merges duplicate product ids and drops the sale when any
// quantity is invalid.
func aggregateLines(items []domain.SaleLineInput) []domain.SaleLineInput {
	index := make(map[string]int, len(items))
	merged := make([]domain.SaleLineInput, 0, len(items))
	for _, item := range items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" || item.Quantity < 1 {
			return nil
		}
		if at, ok := index[item.ProductID]; ok {
			merged[at].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + strconv.FormatInt(cents/100, 10) + "." + fmt.Sprintf("%02d", cents%100)
}
