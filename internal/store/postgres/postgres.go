// Package postgres is the production Repository backed by PostgreSQL via the
// pgx stdlib driver. Sales are written in a serializable transaction so stock
// decrements and movement rows always land together.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"salepoint/internal/domain"
	"salepoint/internal/store"
	"salepoint/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context, search string, category string) ([]domain.Product, error) {
	search = strings.TrimSpace(search)
	category = strings.TrimSpace(category)

	query := `
		SELECT id, name, category, COALESCE(barcode, ''), price_cents, stock_quantity, min_stock_level, active, created_at
		FROM products
		WHERE active = true`
	args := make([]any, 0, 2)
	if search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		query += fmt.Sprintf(" AND (LOWER(name) LIKE $%d OR LOWER(COALESCE(barcode, '')) LIKE $%d)", len(args), len(args))
	}
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	query += " ORDER BY category, name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Barcode, &p.PriceCents, &p.StockQty, &p.MinStockLevel, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, COALESCE(barcode, ''), price_cents, stock_quantity, min_stock_level, active, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.Barcode, &p.PriceCents, &p.StockQty, &p.MinStockLevel, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, COALESCE(barcode, ''), price_cents, stock_quantity, min_stock_level, active, created_at
		FROM products
		WHERE active = true AND id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Barcode, &p.PriceCents, &p.StockQty, &p.MinStockLevel, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidSale
	}
	if product.StockQty < 0 || product.MinStockLevel < 0 {
		return nil, store.ErrInvalidSale
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	product.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, barcode, price_cents, stock_quantity, min_stock_level, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, product.ID, product.Name, product.Category, nullIfEmpty(product.Barcode), product.PriceCents, product.StockQty, product.MinStockLevel, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidSale
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) SetProductStock(ctx context.Context, productID string, qty int) error {
	if productID == "" || qty < 0 {
		return store.ErrInvalidSale
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = $2, updated_at = now()
		WHERE id = $1
	`, productID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, active
		FROM categories
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Active); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

// CreateSale runs the whole checkout write set in one serializable
// transaction: the sale header, its item rows, guarded stock decrements and
// the stock movement trail. A stock decrement that would go negative aborts
// everything with ErrInsufficientStock.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, movements []domain.StockMovement) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidSale
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, invoice_number, cashier, total_amount_cents, discount_cents,
			tax_cents, final_amount_cents, payment_method, customer_name,
			customer_phone, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.InvoiceNumber, sale.Cashier, sale.SubtotalCents, sale.DiscountCents,
		sale.TaxCents, sale.FinalCents, sale.PaymentMethod, nullIfEmpty(sale.CustomerName),
		nullIfEmpty(sale.CustomerPhone), sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidSale
		}
		return nil, err
	}

	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidSale
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $2, updated_at = now()
			WHERE id = $1 AND active = true AND stock_quantity >= $2
		`, item.ProductID, item.Quantity)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: %s", store.ErrInsufficientStock, item.ProductName)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, product_name, quantity, unit_price_cents, total_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPriceCents, item.TotalCents)
		if err != nil {
			return nil, err
		}
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
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, product_id, movement_type, quantity, reference_type, reference_id, notes, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, movement.ID, movement.ProductID, movement.MovementType, movement.Quantity,
			nullIfEmpty(movement.ReferenceType), nullIfEmpty(movement.ReferenceID),
			nullIfEmpty(movement.Notes), movement.CreatedBy, movement.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, invoice_number, cashier, total_amount_cents, discount_cents,
		       tax_cents, final_amount_cents, payment_method,
		       COALESCE(customer_name, ''), COALESCE(customer_phone, ''), created_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.InvoiceNumber, &sale.Cashier, &sale.SubtotalCents,
		&sale.DiscountCents, &sale.TaxCents, &sale.FinalCents, &sale.PaymentMethod,
		&sale.CustomerName, &sale.CustomerPhone, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, unit_price_cents, total_cents
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY product_name
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPriceCents, &item.TotalCents); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, query domain.SaleQuery) (domain.SaleListResult, error) {
	pageSize := query.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	page := query.Page
	if page < 1 {
		page = 1
	}

	where := "WHERE 1=1"
	args := make([]any, 0, 4)
	if query.Cashier != "" {
		args = append(args, query.Cashier)
		where += fmt.Sprintf(" AND cashier = $%d", len(args))
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		where += fmt.Sprintf(" AND (LOWER(invoice_number) LIKE $%d OR LOWER(COALESCE(customer_name, '')) LIKE $%d)", len(args), len(args))
	}
	if from, ok := parseDay(query.FromDate); ok {
		args = append(args, from)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to, ok := parseDay(query.ToDate); ok {
		args = append(args, to.AddDate(0, 0, 1))
		where += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sales "+where, args...).Scan(&total); err != nil {
		return domain.SaleListResult{}, err
	}

	pageCount := (total + pageSize - 1) / pageSize
	if pageCount < 1 {
		pageCount = 1
	}
	if page > pageCount {
		page = pageCount
	}

	listQuery := `
		SELECT id, invoice_number, cashier, total_amount_cents, discount_cents,
		       tax_cents, final_amount_cents, payment_method,
		       COALESCE(customer_name, ''), COALESCE(customer_phone, ''), created_at
		FROM sales ` + where + fmt.Sprintf(`
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return domain.SaleListResult{}, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, pageSize)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.InvoiceNumber, &sale.Cashier, &sale.SubtotalCents,
			&sale.DiscountCents, &sale.TaxCents, &sale.FinalCents, &sale.PaymentMethod,
			&sale.CustomerName, &sale.CustomerPhone, &sale.CreatedAt); err != nil {
			return domain.SaleListResult{}, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return domain.SaleListResult{}, err
	}

	return domain.SaleListResult{
		Sales:      sales,
		Page:       page,
		PageCount:  pageCount,
		TotalSales: total,
	}, nil
}

func (s *Store) GetDailySummary(ctx context.Context, date string) (domain.DailySummary, error) {
	day, ok := parseDay(date)
	if !ok {
		return domain.DailySummary{}, store.ErrInvalidSale
	}

	summary := domain.DailySummary{Date: date}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total_amount_cents), 0),
		       COALESCE(SUM(discount_cents), 0),
		       COALESCE(SUM(tax_cents), 0),
		       COALESCE(SUM(final_amount_cents), 0)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
	`, day, day.AddDate(0, 0, 1)).Scan(&summary.Transactions, &summary.GrossCents,
		&summary.DiscountCents, &summary.TaxCents, &summary.NetCents)
	if err != nil {
		return domain.DailySummary{}, err
	}
	return summary, nil
}

func (s *Store) CreateStockMovement(ctx context.Context, movement domain.StockMovement) error {
	if movement.ProductID == "" || movement.Quantity == 0 {
		return store.ErrInvalidSale
	}
	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, movement_type, quantity, reference_type, reference_id, notes, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, movement.ID, movement.ProductID, movement.MovementType, movement.Quantity,
		nullIfEmpty(movement.ReferenceType), nullIfEmpty(movement.ReferenceID),
		nullIfEmpty(movement.Notes), movement.CreatedBy, movement.CreatedAt)
	return err
}

func (s *Store) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 50
	}

	query := `
		SELECT id, product_id, movement_type, quantity,
		       COALESCE(reference_type, ''), COALESCE(reference_id, ''),
		       COALESCE(notes, ''), created_by, created_at
		FROM stock_movements`
	args := []any{}
	if productID != "" {
		args = append(args, productID)
		query += fmt.Sprintf(" WHERE product_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.MovementType, &m.Quantity,
			&m.ReferenceType, &m.ReferenceID, &m.Notes, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidSale
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidSale
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidSale
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
