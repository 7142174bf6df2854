package store

import (
	"context"
	"errors"

	"salepoint/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidSale       = errors.New("invalid sale")
)

type Repository interface {
	ListProducts(ctx context.Context, search string, category string) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SetProductStock(ctx context.Context, productID string, qty int) error
	ListCategories(ctx context.Context) ([]domain.Category, error)

	// CreateSale persists the sale with its items, decrements product stock
	// and records the matching stock movements in one unit.
	CreateSale(ctx context.Context, sale domain.Sale, movements []domain.StockMovement) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, query domain.SaleQuery) (domain.SaleListResult, error)
	GetDailySummary(ctx context.Context, date string) (domain.DailySummary, error)

	CreateStockMovement(ctx context.Context, movement domain.StockMovement) error
	ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
