//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestListProducts(t *testing.T) {
	resp := doGet(t, "/api/product")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	products := decodeJSON[[]productResponse](t, resp)
	if len(products) != seededProducts {
		t.Fatalf("expected %d products, got %d", seededProducts, len(products))
	}
}

func TestListProducts_Fields(t *testing.T) {
	resp := doGet(t, "/api/product")
	defer resp.Body.Close()

	products := decodeJSON[[]productResponse](t, resp)

	var bundle *productResponse
	for i := range products {
		if products[i].ID == "bw-bundle" {
			bundle = &products[i]
			break
		}
	}
	if bundle == nil {
		t.Fatal("product bw-bundle not found")
	}

	if bundle.Price != (moneyResponse{Amount: "149.00", Currency: "GBP"}) {
		t.Errorf("price: got %+v", bundle.Price)
	}
	if !bundle.OnSale || bundle.Savings == nil || bundle.Savings.Amount != "30.00" {
		t.Errorf("expected on sale with 30.00 savings, got %v %+v", bundle.OnSale, bundle.Savings)
	}
	if len(bundle.Lengths) != 5 {
		t.Fatalf("lengths: got %d, want 5", len(bundle.Lengths))
	}
	if bundle.Lengths[0].Length != 14 || bundle.Lengths[0].Price.Amount != "129.00" {
		t.Errorf("first length: got %+v", bundle.Lengths[0])
	}
	if bundle.Image.Thumbnail == "" {
		t.Error("thumbnail missing")
	}
}

func TestGetProduct_BySlugWithLength(t *testing.T) {
	resp := doGet(t, "/api/product/body-wave-bundle?length=20")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	p := decodeJSON[productResponse](t, resp)
	if p.UnitPrice == nil || p.UnitPrice.Amount != "189.00" {
		t.Errorf("unit price: got %+v, want 189.00", p.UnitPrice)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	resp := doGet(t, "/api/product/does-not-exist")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorResponse](t, resp)
	if body.Code != http.StatusNotFound {
		t.Errorf("code: got %d, want 404", body.Code)
	}
}

func TestGetProduct_BadLength(t *testing.T) {
	resp := doGet(t, "/api/product/bw-bundle?length=-2")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestListRates(t *testing.T) {
	resp := doGet(t, "/api/rates")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	rates := decodeJSON[ratesResponse](t, resp)
	if rates.Base != "GBP" {
		t.Errorf("base: got %q", rates.Base)
	}
	got := make(map[string]string)
	for _, r := range rates.Rates {
		got[r.Currency] = r.Rate
		if r.Stale {
			t.Errorf("freshly seeded %s reported stale", r.Currency)
		}
	}
	if got["GBP"] != "1" || got["NGN"] != "1950" || got["USD"] != "1.27" {
		t.Errorf("rates: got %v", got)
	}
}
