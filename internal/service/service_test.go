package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"salepoint/internal/domain"
	"salepoint/internal/store"
	"salepoint/internal/store/memory"
)

type capturePublisher struct {
	events []domain.SaleEvent
	err    error
}

func (p *capturePublisher) PublishSale(_ context.Context, event domain.SaleEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func newTestService(t *testing.T) (*Service, *memory.Store, *capturePublisher) {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-test")
	t.Setenv("SEED_CASHIER_PASSWORD", "cashier-test")

	repo := memory.NewSeeded()
	publisher := &capturePublisher{}
	svc := New(repo, nil, publisher, 20, time.Minute)
	return svc, repo, publisher
}

func cashierCtx(username string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: username, Role: domain.RoleCashier})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func TestProcessSaleHappyPath(t *testing.T) {
	svc, repo, publisher := newTestService(t)
	ctx := cashierCtx("ani")

	resp, err := svc.ProcessSale(ctx, domain.ProcessSaleRequest{
		Items:         []domain.SaleLineInput{{ProductID: "prd-kopi-01", Quantity: 2}},
		CustomerName:  "  Pak Joko ",
		PaymentMethod: "CASH",
		DiscountCents: 100,
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected Success=true")
	}
	if !strings.HasPrefix(resp.InvoiceNumber, "INV-") {
		t.Fatalf("invoice = %q", resp.InvoiceNumber)
	}
	if resp.FinalCents != 2*2600-100 {
		t.Fatalf("final = %d, want %d", resp.FinalCents, 2*2600-100)
	}

	product, err := repo.GetProductByID(ctx, "prd-kopi-01")
	if err != nil {
		t.Fatalf("GetProductByID: %v", err)
	}
	if product.StockQty != 198 {
		t.Fatalf("stock = %d, want 198", product.StockQty)
	}

	sale, err := repo.GetSaleByID(ctx, resp.SaleID)
	if err != nil {
		t.Fatalf("GetSaleByID: %v", err)
	}
	if sale.Cashier != "ani" || sale.CustomerName != "Pak Joko" || sale.PaymentMethod != domain.PaymentCash {
		t.Fatalf("unexpected sale: %+v", sale)
	}
	if sale.TaxCents != 0 {
		t.Fatalf("tax = %d, want 0", sale.TaxCents)
	}

	movements, err := repo.ListStockMovements(ctx, "prd-kopi-01", 10)
	if err != nil {
		t.Fatalf("ListStockMovements: %v", err)
	}
	if len(movements) != 1 || movements[0].MovementType != domain.MovementOut || movements[0].Quantity != 2 {
		t.Fatalf("unexpected movements: %+v", movements)
	}
	if movements[0].ReferenceID != resp.SaleID {
		t.Fatalf("movement reference = %q, want %q", movements[0].ReferenceID, resp.SaleID)
	}

	if len(publisher.events) != 1 || publisher.events[0].SaleID != resp.SaleID {
		t.Fatalf("unexpected published events: %+v", publisher.events)
	}
}

func TestProcessSaleInsufficientStock(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := cashierCtx("ani")

	_, err := svc.ProcessSale(ctx, domain.ProcessSaleRequest{
		Items: []domain.SaleLineInput{{ProductID: "prd-roti-01", Quantity: 9999}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if !strings.Contains(err.Error(), "Roti Tawar") {
		t.Fatalf("error should name the product, got %q", err.Error())
	}

	product, _ := repo.GetProductByID(ctx, "prd-roti-01")
	if product.StockQty != 25 {
		t.Fatalf("stock changed on rejected sale: %d", product.StockQty)
	}
}

func TestProcessSaleWholeCartFailsOnOneBadLine(t *testing.T) {
	svc, repo, publisher := newTestService(t)
	ctx := cashierCtx("ani")

	_, err := svc.ProcessSale(ctx, domain.ProcessSaleRequest{
		Items: []domain.SaleLineInput{
			{ProductID: "prd-kopi-01", Quantity: 1},
			{ProductID: "prd-roti-01", Quantity: 9999},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	kopi, _ := repo.GetProductByID(ctx, "prd-kopi-01")
	if kopi.StockQty != 200 {
		t.Fatalf("good line was committed despite rejection: stock=%d", kopi.StockQty)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("no event expected for rejected sale, got %+v", publisher.events)
	}
}

func TestProcessSaleUnknownProduct(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ProcessSale(cashierCtx("ani"), domain.ProcessSaleRequest{
		Items: []domain.SaleLineInput{{ProductID: "prd-nope", Quantity: 1}},
	})
	if err == nil || !strings.Contains(err.Error(), "unavailable") {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestProcessSaleDiscountCappedAtSubtotal(t *testing.T) {
	svc, _, _ := newTestService(t)

	resp, err := svc.ProcessSale(cashierCtx("ani"), domain.ProcessSaleRequest{
		Items:         []domain.SaleLineInput{{ProductID: "prd-air-01", Quantity: 1}},
		DiscountCents: 1000000,
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}
	if resp.FinalCents != 0 {
		t.Fatalf("final = %d, want 0", resp.FinalCents)
	}
}

func TestProcessSaleRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := cashierCtx("ani")

	cases := []struct {
		name string
		req  domain.ProcessSaleRequest
	}{
		{"no items", domain.ProcessSaleRequest{}},
		{"zero quantity", domain.ProcessSaleRequest{Items: []domain.SaleLineInput{{ProductID: "prd-air-01", Quantity: 0}}}},
		{"negative discount", domain.ProcessSaleRequest{Items: []domain.SaleLineInput{{ProductID: "prd-air-01", Quantity: 1}}, DiscountCents: -1}},
		{"bad payment method", domain.ProcessSaleRequest{Items: []domain.SaleLineInput{{ProductID: "prd-air-01", Quantity: 1}}, PaymentMethod: "crypto"}},
	}
	for _, tc := range cases {
		if _, err := svc.ProcessSale(ctx, tc.req); !errors.Is(err, store.ErrInvalidSale) {
			t.Fatalf("%s: expected ErrInvalidSale, got %v", tc.name, err)
		}
	}
}

func TestProcessSaleAggregatesDuplicateLines(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := cashierCtx("ani")

	resp, err := svc.ProcessSale(ctx, domain.ProcessSaleRequest{
		Items: []domain.SaleLineInput{
			{ProductID: "prd-gula-01", Quantity: 1},
			{ProductID: "prd-gula-01", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}

	sale, _ := repo.GetSaleByID(ctx, resp.SaleID)
	if len(sale.Items) != 1 || sale.Items[0].Quantity != 3 {
		t.Fatalf("expected one merged line of qty 3, got %+v", sale.Items)
	}
}

func TestProcessSaleRequiresActor(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ProcessSale(context.Background(), domain.ProcessSaleRequest{
		Items: []domain.SaleLineInput{{ProductID: "prd-air-01", Quantity: 1}},
	})
	if err == nil {
		t.Fatal("expected error without actor")
	}
}

func TestProcessSaleSucceedsWhenPublisherFails(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-test")
	t.Setenv("SEED_CASHIER_PASSWORD", "cashier-test")

	repo := memory.NewSeeded()
	publisher := &capturePublisher{err: errors.New("broker down")}
	svc := New(repo, nil, publisher, 20, time.Minute)

	resp, err := svc.ProcessSale(cashierCtx("ani"), domain.ProcessSaleRequest{
		Items: []domain.SaleLineInput{{ProductID: "prd-air-01", Quantity: 1}},
	})
	if err != nil || !resp.Success {
		t.Fatalf("publish failure must not fail the sale: resp=%+v err=%v", resp, err)
	}
}

func TestListSalesScopedToCashier(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, cashier := range []string{"ani", "budi"} {
		_, err := svc.ProcessSale(cashierCtx(cashier), domain.ProcessSaleRequest{
			Items: []domain.SaleLineInput{{ProductID: "prd-air-01", Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("ProcessSale(%s): %v", cashier, err)
		}
	}

	mine, err := svc.ListSales(cashierCtx("ani"), domain.SaleQuery{})
	if err != nil {
		t.Fatalf("ListSales: %v", err)
	}
	if mine.TotalSales != 1 || mine.Sales[0].Cashier != "ani" {
		t.Fatalf("cashier should only see own sales: %+v", mine)
	}

	all, err := svc.ListSales(adminCtx(), domain.SaleQuery{})
	if err != nil {
		t.Fatalf("ListSales admin: %v", err)
	}
	if all.TotalSales != 2 {
		t.Fatalf("admin should see both sales, got %d", all.TotalSales)
	}
}

func TestListSalesSearchByInvoice(t *testing.T) {
	svc, _, _ := newTestService(t)

	resp, err := svc.ProcessSale(cashierCtx("ani"), domain.ProcessSaleRequest{
		Items: []domain.SaleLineInput{{ProductID: "prd-air-01", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}

	result, err := svc.ListSales(adminCtx(), domain.SaleQuery{Search: strings.ToLower(resp.InvoiceNumber)})
	if err != nil {
		t.Fatalf("ListSales: %v", err)
	}
	if result.TotalSales != 1 || result.Sales[0].InvoiceNumber != resp.InvoiceNumber {
		t.Fatalf("search missed the invoice: %+v", result)
	}
}

func TestListSalesRejectsReversedRange(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ListSales(adminCtx(), domain.SaleQuery{FromDate: "2026-02-10", ToDate: "2026-02-01"})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale, got %v", err)
	}
}

func TestListSalesIgnoresMalformedDates(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.ProcessSale(cashierCtx("ani"), domain.ProcessSaleRequest{
		Items: []domain.SaleLineInput{{ProductID: "prd-air-01", Quantity: 1}},
	}); err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}

	result, err := svc.ListSales(adminCtx(), domain.SaleQuery{FromDate: "not-a-date", ToDate: "also-bad"})
	if err != nil {
		t.Fatalf("malformed dates should be ignored, got %v", err)
	}
	if result.TotalSales != 1 {
		t.Fatalf("expected 1 sale, got %d", result.TotalSales)
	}
}

func TestGetReceiptRoleScope(t *testing.T) {
	svc, _, _ := newTestService(t)

	resp, err := svc.ProcessSale(cashierCtx("ani"), domain.ProcessSaleRequest{
		Items: []domain.SaleLineInput{{ProductID: "prd-air-01", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}

	if _, err := svc.GetReceipt(cashierCtx("ani"), resp.SaleID); err != nil {
		t.Fatalf("own receipt: %v", err)
	}
	if _, err := svc.GetReceipt(cashierCtx("budi"), resp.SaleID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("foreign receipt should be hidden, got %v", err)
	}
	sale, err := svc.GetReceipt(adminCtx(), resp.SaleID)
	if err != nil {
		t.Fatalf("admin receipt: %v", err)
	}
	if len(sale.Items) != 1 {
		t.Fatalf("receipt should carry items: %+v", sale)
	}
}

func TestDailySummary(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.ProcessSale(cashierCtx("ani"), domain.ProcessSaleRequest{
		Items:         []domain.SaleLineInput{{ProductID: "prd-kopi-01", Quantity: 2}},
		DiscountCents: 200,
	}); err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}

	if _, err := svc.DailySummary(cashierCtx("ani"), ""); err == nil {
		t.Fatal("cashier should not read the daily summary")
	}

	summary, err := svc.DailySummary(adminCtx(), time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		t.Fatalf("DailySummary: %v", err)
	}
	if summary.Transactions != 1 || summary.GrossCents != 5200 || summary.NetCents != 5000 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestExportSalesCSV(t *testing.T) {
	svc, _, _ := newTestService(t)

	resp, err := svc.ProcessSale(cashierCtx("ani"), domain.ProcessSaleRequest{
		Items: []domain.SaleLineInput{{ProductID: "prd-kopi-01", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}

	var buf bytes.Buffer
	if err := svc.ExportSalesCSV(adminCtx(), domain.SaleQuery{}, &buf); err != nil {
		t.Fatalf("ExportSalesCSV: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "invoice_number,") {
		t.Fatalf("missing header: %q", out)
	}
	if !strings.Contains(out, resp.InvoiceNumber) || !strings.Contains(out, "26.00") {
		t.Fatalf("missing sale row: %q", out)
	}

	if err := svc.ExportSalesCSV(cashierCtx("ani"), domain.SaleQuery{}, &buf); err == nil {
		t.Fatal("cashier should not export sales")
	}
}

func TestCreateProductAndAdjustStock(t *testing.T) {
	svc, repo, _ := newTestService(t)

	if _, err := svc.CreateProduct(cashierCtx("ani"), domain.ProductCreateRequest{Name: "X", Category: "misc", PriceCents: 100}); err == nil {
		t.Fatal("cashier should not create products")
	}

	created, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:       "  Sarden Kaleng ",
		Category:   "grocery",
		PriceCents: 12500,
		StockQty:   30,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if created.Name != "Sarden Kaleng" || !created.Active {
		t.Fatalf("unexpected product: %+v", created)
	}

	updated, err := svc.AdjustStock(adminCtx(), domain.StockAdjustmentRequest{
		ProductID:    created.ID,
		MovementType: domain.MovementOut,
		Quantity:     5,
		Notes:        "damaged",
	})
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if updated.StockQty != 25 {
		t.Fatalf("stock = %d, want 25", updated.StockQty)
	}

	if _, err := svc.AdjustStock(adminCtx(), domain.StockAdjustmentRequest{
		ProductID:    created.ID,
		MovementType: domain.MovementOut,
		Quantity:     9999,
	}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	set, err := svc.AdjustStock(adminCtx(), domain.StockAdjustmentRequest{
		ProductID:    created.ID,
		MovementType: domain.MovementAdjustment,
		Quantity:     40,
	})
	if err != nil {
		t.Fatalf("AdjustStock set: %v", err)
	}
	if set.StockQty != 40 {
		t.Fatalf("stock = %d, want 40", set.StockQty)
	}

	movements, err := repo.ListStockMovements(context.Background(), created.ID, 10)
	if err != nil {
		t.Fatalf("ListStockMovements: %v", err)
	}
	if len(movements) != 3 {
		t.Fatalf("expected initial + out + adjustment movements, got %d", len(movements))
	}
}
