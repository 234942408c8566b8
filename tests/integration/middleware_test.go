//go:build integration

package integration

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func newRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, baseURL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func roundTrip(t *testing.T, req *http.Request) *http.Response {
	t.Helper()

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestRequestID(t *testing.T) {
	t.Run("generated", func(t *testing.T) {
		resp := doGet(t, "/api/product")
		defer resp.Body.Close()

		if resp.Header.Get("X-Request-ID") == "" {
			t.Fatal("X-Request-ID header not present")
		}
	})

	t.Run("echoed", func(t *testing.T) {
		req := newRequest(t, http.MethodGet, "/api/rates")
		req.Header.Set("X-Request-ID", "storefront-req-42")

		resp := roundTrip(t, req)
		defer resp.Body.Close()

		if got := resp.Header.Get("X-Request-ID"); got != "storefront-req-42" {
			t.Errorf("X-Request-ID: got %q, want %q", got, "storefront-req-42")
		}
	})

	t.Run("present on errors", func(t *testing.T) {
		resp := doGet(t, "/api/product/does-not-exist")
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", resp.StatusCode)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Fatal("X-Request-ID header not present")
		}
	})
}

func TestCORS_PreflightCheckout(t *testing.T) {
	req := newRequest(t, http.MethodOptions, "/api/checkout")
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp := roundTrip(t, req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 200 or 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("Access-Control-Allow-Origin header not present")
	}
	if methods := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(methods, http.MethodPost) {
		t.Errorf("Access-Control-Allow-Methods: got %q, want POST", methods)
	}
}

func TestCORS_PreflightAdminKey(t *testing.T) {
	req := newRequest(t, http.MethodOptions, "/api/admin/order/x/status")
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "X-API-Key")

	resp := roundTrip(t, req)
	defer resp.Body.Close()

	if allowed := resp.Header.Get("Access-Control-Allow-Headers"); !strings.Contains(strings.ToLower(allowed), "x-api-key") {
		t.Errorf("Access-Control-Allow-Headers: got %q, want X-API-Key", allowed)
	}
}

func TestCORS_ExposesRequestID(t *testing.T) {
	req := newRequest(t, http.MethodGet, "/api/product")
	req.Header.Set("Origin", "https://shop.example.com")

	resp := roundTrip(t, req)
	defer resp.Body.Close()

	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("Access-Control-Allow-Origin header not present")
	}
	if exposed := resp.Header.Get("Access-Control-Expose-Headers"); !strings.Contains(exposed, "X-Request-Id") && !strings.Contains(exposed, "X-Request-ID") {
		t.Errorf("Access-Control-Expose-Headers: got %q", exposed)
	}
}

func TestRateLimit_Headers(t *testing.T) {
	resp := doGet(t, "/api/rates")
	defer resp.Body.Close()

	for _, h := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"} {
		if resp.Header.Get(h) == "" {
			t.Errorf("%s header not present", h)
		}
	}
	if got := resp.Header.Get("X-RateLimit-Limit"); got != "1000" {
		t.Errorf("X-RateLimit-Limit: got %q, want 1000", got)
	}
}
