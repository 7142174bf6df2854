package saleclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"salepoint/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(srv.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, srv
}

func TestProcessSaleSendsCSRFHeaderFromCookie(t *testing.T) {
	var gotCSRF, gotAuth string
	var gotReq domain.ProcessSaleRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/csrf-token", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "tok-abc123", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/sales/process", func(w http.ResponseWriter, r *http.Request) {
		gotCSRF = r.Header.Get("X-CSRFToken")
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(domain.ProcessSaleResponse{
			Success:       true,
			InvoiceNumber: "INV-1A2B3C4D",
			FinalCents:    1800,
			SaleID:        "sale_1",
		})
	})

	client, _ := newTestClient(t, mux)
	client.token = "bearer-token"
	if err := client.RefreshCSRFToken(context.Background()); err != nil {
		t.Fatalf("RefreshCSRFToken: %v", err)
	}

	resp, err := client.ProcessSale(context.Background(), domain.ProcessSaleRequest{
		Items:         []domain.SaleLineInput{{ProductID: "prod_1", Quantity: 2}},
		PaymentMethod: domain.PaymentCash,
		DiscountCents: 200,
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}
	if gotCSRF != "tok-abc123" {
		t.Fatalf("X-CSRFToken = %q, want tok-abc123", gotCSRF)
	}
	if gotAuth != "Bearer bearer-token" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if len(gotReq.Items) != 1 || gotReq.Items[0].Quantity != 2 {
		t.Fatalf("unexpected wire payload: %+v", gotReq)
	}
	if !resp.Success || resp.InvoiceNumber != "INV-1A2B3C4D" || resp.FinalCents != 1800 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestProcessSaleBusinessFailureIsNotAnError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sales/process", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(domain.ProcessSaleResponse{
			Success: false,
			Error:   "insufficient stock for Kopi Susu",
		})
	})

	client, _ := newTestClient(t, mux)
	resp, err := client.ProcessSale(context.Background(), domain.ProcessSaleRequest{
		Items: []domain.SaleLineInput{{ProductID: "prod_1", Quantity: 99}},
	})
	if err != nil {
		t.Fatalf("business failure should not be a transport error, got %v", err)
	}
	if resp.Success {
		t.Fatal("expected Success=false")
	}
	if resp.Error != "insufficient stock for Kopi Susu" {
		t.Fatalf("Error = %q", resp.Error)
	}
}

func TestProcessSaleFillsGenericMessageOnEmptyError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sales/process", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"success":false}`))
	})

	client, _ := newTestClient(t, mux)
	resp, err := client.ProcessSale(context.Background(), domain.ProcessSaleRequest{})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Fatalf("expected generic error message, got %+v", resp)
	}
}

func TestProcessSaleTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client, err := New(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.Close()

	_, err = client.ProcessSale(context.Background(), domain.ProcessSaleRequest{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestProcessSaleMalformedResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sales/process", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	})

	client, _ := newTestClient(t, mux)
	_, err := client.ProcessSale(context.Background(), domain.ProcessSaleRequest{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestLoginStoresToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req domain.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode login: %v", err)
		}
		if req.Username != "budi" || req.Password != "rahasia" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
			return
		}
		json.NewEncoder(w).Encode(domain.LoginResponse{AccessToken: "jwt-token"})
	})

	client, _ := newTestClient(t, mux)
	if err := client.Login(context.Background(), "budi", "rahasia"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if client.token != "jwt-token" {
		t.Fatalf("token = %q", client.token)
	}

	err := client.Login(context.Background(), "budi", "salah")
	if err == nil || !strings.Contains(err.Error(), "invalid credentials") {
		t.Fatalf("expected invalid credentials error, got %v", err)
	}
}

func TestFetchProducts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/products", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"products": []domain.Product{
				{ID: "prod_1", Name: "Kopi Susu", PriceCents: 1500, StockQty: 10},
				{ID: "prod_2", Name: "Teh Manis", PriceCents: 800, StockQty: 4},
			},
		})
	})

	client, _ := newTestClient(t, mux)
	products, err := client.FetchProducts(context.Background())
	if err != nil {
		t.Fatalf("FetchProducts: %v", err)
	}
	if len(products) != 2 || products[0].ID != "prod_1" {
		t.Fatalf("unexpected products: %+v", products)
	}
}

func TestFetchSalesPassesQueryThrough(t *testing.T) {
	var gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sales", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(domain.SaleListResult{
			Sales:      []domain.Sale{{InvoiceNumber: "INV-AABBCCDD"}},
			Page:       1,
			PageCount:  1,
			TotalSales: 1,
		})
	})

	client, _ := newTestClient(t, mux)
	result, err := client.FetchSales(context.Background(), "search=INV&from_date=2026-01-01&to_date=2026-01-31")
	if err != nil {
		t.Fatalf("FetchSales: %v", err)
	}
	if gotQuery != "search=INV&from_date=2026-01-01&to_date=2026-01-31" {
		t.Fatalf("query = %q", gotQuery)
	}
	if result.TotalSales != 1 || result.Sales[0].InvoiceNumber != "INV-AABBCCDD" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestFetchSalesSurfacesServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sales", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid sale: from_date is after to_date"})
	})

	client, _ := newTestClient(t, mux)
	_, err := client.FetchSales(context.Background(), "from_date=2026-02-01&to_date=2026-01-01")
	if err == nil || !strings.Contains(err.Error(), "from_date is after to_date") {
		t.Fatalf("expected server error message, got %v", err)
	}
}
