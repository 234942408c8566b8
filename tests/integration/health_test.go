//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestHealthProbes(t *testing.T) {
	for _, path := range []string{"/livez", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			resp := doGet(t, path)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d", resp.StatusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type: got %q", ct)
			}

			body := decodeJSON[healthResponse](t, resp)
			if body.Status != "ok" {
				t.Fatalf("expected status ok, got %q (checks %v)", body.Status, body.Checks)
			}
			if len(body.Checks) != 0 {
				t.Errorf("healthy report lists checks: %v", body.Checks)
			}
		})
	}
}

// Readiness includes the rates check, so a seeded store must stay ready after
// clients have read the rate table.
func TestReadyz_AfterRatesRead(t *testing.T) {
	rates := doGet(t, "/api/rates")
	rates.Body.Close()
	if rates.StatusCode != http.StatusOK {
		t.Fatalf("rates: expected 200, got %d", rates.StatusCode)
	}

	resp := doGet(t, "/readyz")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
