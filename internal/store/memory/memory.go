package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"salepoint/internal/domain"
	"salepoint/internal/store"
	"salepoint/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	categories      map[string]domain.Category
	salesByID       map[string]*domain.Sale
	movements       []domain.StockMovement
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prd-mie-01", Name: "Mie Goreng Instan", Category: "grocery", Barcode: "8991001101011", PriceCents: 3500, StockQty: 120, MinStockLevel: 10, Active: true, CreatedAt: now},
		{ID: "prd-telur-01", Name: "Telur 10 Butir", Category: "grocery", Barcode: "8991001101028", PriceCents: 26500, StockQty: 40, MinStockLevel: 5, Active: true, CreatedAt: now},
		{ID: "prd-susu-01", Name: "Susu UHT 1L", Category: "dairy", Barcode: "8991001101035", PriceCents: 18900, StockQty: 60, MinStockLevel: 8, Active: true, CreatedAt: now},
		{ID: "prd-roti-01", Name: "Roti Tawar", Category: "bakery", Barcode: "8991001101042", PriceCents: 17800, StockQty: 25, MinStockLevel: 5, Active: true, CreatedAt: now},
		{ID: "prd-kopi-01", Name: "Kopi Sachet", Category: "beverage", Barcode: "8991001101059", PriceCents: 2600, StockQty: 200, MinStockLevel: 20, Active: true, CreatedAt: now},
		{ID: "prd-gula-01", Name: "Gula 1kg", Category: "grocery", Barcode: "8991001101066", PriceCents: 17400, StockQty: 50, MinStockLevel: 10, Active: true, CreatedAt: now},
		{ID: "prd-teh-01", Name: "Teh Celup", Category: "beverage", Barcode: "8991001101073", PriceCents: 9800, StockQty: 80, MinStockLevel: 10, Active: true, CreatedAt: now},
		{ID: "prd-air-01", Name: "Air Mineral 600ml", Category: "beverage", Barcode: "8991001101080", PriceCents: 3900, StockQty: 300, MinStockLevel: 30, Active: true, CreatedAt: now},
		{ID: "prd-keripik-01", Name: "Keripik Singkong", Category: "snack", Barcode: "8991001101097", PriceCents: 12800, StockQty: 45, MinStockLevel: 8, Active: true, CreatedAt: now},
		{ID: "prd-coklat-01", Name: "Coklat Batang", Category: "snack", Barcode: "8991001101103", PriceCents: 8600, StockQty: 35, MinStockLevel: 8, Active: true, CreatedAt: now},
		{ID: "prd-sabun-01", Name: "Sabun Mandi", Category: "household", Barcode: "8991001101110", PriceCents: 7400, StockQty: 70, MinStockLevel: 10, Active: true, CreatedAt: now},
		{ID: "prd-shampoo-01", Name: "Shampoo Sachet", Category: "household", Barcode: "8991001101127", PriceCents: 3200, StockQty: 150, MinStockLevel: 15, Active: true, CreatedAt: now},
	}

	productMap := make(map[string]domain.Product, len(products))
	categoryMap := make(map[string]domain.Category)
	for _, p := range products {
		productMap[p.ID] = p
		if _, ok := categoryMap[p.Category]; !ok {
			categoryMap[p.Category] = domain.Category{ID: "cat-" + p.Category, Name: p.Category, Active: true}
		}
	}

	return &Store{
		products:        productMap,
		categories:      categoryMap,
		salesByID:       make(map[string]*domain.Sale),
		movements:       make([]domain.StockMovement, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context, search string, category string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	category = strings.TrimSpace(category)

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Barcode), search) {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.Active {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidSale
	}
	if product.StockQty < 0 || product.MinStockLevel < 0 {
		return nil, store.ErrInvalidSale
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidSale
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	product.Active = true
	s.products[product.ID] = product
	if _, ok := s.categories[product.Category]; !ok {
		s.categories[product.Category] = domain.Category{ID: "cat-" + product.Category, Name: product.Category, Active: true}
	}
	created := product
	return &created, nil
}

func (s *Store) SetProductStock(_ context.Context, productID string, qty int) error {
	if productID == "" || qty < 0 {
		return store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return store.ErrNotFound
	}
	product.StockQty = qty
	s.products[productID] = product
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if !c.Active {
			continue
		}
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return categories, nil
}

// CreateSale checks and decrements stock, stores the sale with its items and
// records the stock movements, all under one lock so a failed line leaves
// nothing behind.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale, movements []domain.StockMovement) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidSale
	}

	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidSale
		}
		product, exists := s.products[item.ProductID]
		if !exists || !product.Active {
			return nil, fmt.Errorf("product %s unavailable", item.ProductID)
		}
		if product.StockQty < item.Quantity {
			return nil, fmt.Errorf("%w: %s", store.ErrInsufficientStock, product.Name)
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	for _, item := range sale.Items {
		product := s.products[item.ProductID]
		product.StockQty -= item.Quantity
		s.products[item.ProductID] = product
	}

	for _, movement := range movements {
		if movement.ID == "" {
			movement.ID = xid.New("mv")
		}
		if movement.CreatedAt.IsZero() {
			movement.CreatedAt = sale.CreatedAt
		}
		if movement.ReferenceID == "" {
			movement.ReferenceID = sale.ID
		}
		s.movements = append(s.movements, movement)
	}

	saleCopy := cloneSale(&sale)
	s.salesByID[sale.ID] = saleCopy
	return cloneSale(saleCopy), nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, query domain.SaleQuery) (domain.SaleListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(query.Search))
	from, fromOK := parseDay(query.FromDate)
	to, toOK := parseDay(query.ToDate)

	matched := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if query.Cashier != "" && sale.Cashier != query.Cashier {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(sale.InvoiceNumber), search) &&
			!strings.Contains(strings.ToLower(sale.CustomerName), search) {
			continue
		}
		if fromOK && sale.CreatedAt.Before(from) {
			continue
		}
		if toOK && !sale.CreatedAt.Before(to.AddDate(0, 0, 1)) {
			continue
		}
		matched = append(matched, *cloneSale(sale))
	}

	slices.SortFunc(matched, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	pageSize := query.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	total := len(matched)
	pageCount := (total + pageSize - 1) / pageSize
	if pageCount < 1 {
		pageCount = 1
	}
	if page > pageCount {
		page = pageCount
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return domain.SaleListResult{
		Sales:      matched[start:end],
		Page:       page,
		PageCount:  pageCount,
		TotalSales: total,
	}, nil
}

func (s *Store) GetDailySummary(_ context.Context, date string) (domain.DailySummary, error) {
	day, ok := parseDay(date)
	if !ok {
		return domain.DailySummary{}, store.ErrInvalidSale
	}
	next := day.AddDate(0, 0, 1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.DailySummary{Date: date}
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(day) || !sale.CreatedAt.Before(next) {
			continue
		}
		summary.Transactions++
		summary.GrossCents += sale.SubtotalCents
		summary.DiscountCents += sale.DiscountCents
		summary.TaxCents += sale.TaxCents
		summary.NetCents += sale.FinalCents
	}
	return summary, nil
}

func (s *Store) CreateStockMovement(_ context.Context, movement domain.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if movement.ProductID == "" || movement.Quantity == 0 {
		return store.ErrInvalidSale
	}
	if _, exists := s.products[movement.ProductID]; !exists {
		return store.ErrNotFound
	}
	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	s.movements = append(s.movements, movement)
	return nil
}

func (s *Store) ListStockMovements(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0, 64)
	for _, movement := range s.movements {
		if productID != "" && movement.ProductID != productID {
			continue
		}
		result = append(result, movement)
	}

	slices.SortFunc(result, func(a, b domain.StockMovement) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidSale
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidSale
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidSale
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// parseDay reads a YYYY-MM-DD value as a UTC midnight. Malformed values are
// treated as absent, matching the sales-list filter contract.
func parseDay(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return &dup
}
