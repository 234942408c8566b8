package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func serve(t *testing.T, handler http.HandlerFunc) (int, report) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func ok(context.Context) error { return nil }

func observe(h *Health, p Probe, times int) {
	for range times {
		for _, c := range h.checks[p] {
			c.observe(context.Background())
		}
	}
}

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		check    CheckFunc
		runs     int
		wantCode int
		wantMsg  string
	}{
		{name: "passing", check: ok, runs: 1, wantCode: http.StatusOK},
		{name: "failures below threshold", check: fail("timeout"), runs: failAfter - 1, wantCode: http.StatusOK},
		{name: "failures at threshold", check: fail("connection refused"), runs: failAfter, wantCode: http.StatusServiceUnavailable, wantMsg: "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.Add(Liveness, "db", time.Second, tt.check)
			observe(h, Liveness, tt.runs)

			code, body := serve(t, h.LiveEndpoint)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantMsg == "" {
				assert.Equal(t, "ok", body.Status)
				assert.Empty(t, body.Checks)
				return
			}
			assert.Equal(t, "unhealthy", body.Status)
			assert.Equal(t, tt.wantMsg, body.Checks["db"])
		})
	}
}

func TestCheckRecovers(t *testing.T) {
	failing := true
	h := New()
	h.Add(Readiness, "redis", time.Second, func(context.Context) error {
		if failing {
			return errors.New("down")
		}
		return nil
	})
	h.SetReady(true)

	observe(h, Readiness, failAfter)
	assert.False(t, h.IsReady())

	failing = false
	observe(h, Readiness, recoverAfter)
	assert.True(t, h.IsReady())
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.Add(Readiness, "rates", time.Second, ok)

	code, body := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "service is not ready", body.Checks["_readiness"])

	h.SetReady(true)
	code, body = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	h.SetReady(false)
	assert.False(t, h.IsReady(), "draining on shutdown")
}

func TestStartPollsChecks(t *testing.T) {
	calls := make(chan struct{}, 8)
	h := New()
	h.Add(Liveness, "tick", time.Second, func(context.Context) error {
		select {
		case calls <- struct{}{}:
		default:
		}
		return nil
	})

	h.Start(context.Background(), 10*time.Millisecond)
	defer h.Stop()

	for range 2 {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatal("check was not polled")
		}
	}
	h.Stop()
	h.Stop()
}

func TestRedisCheck(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	check := RedisCheck(client)
	require.NoError(t, check(context.Background()))

	s.Close()
	require.Error(t, check(context.Background()))
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingCheck(t *testing.T) {
	require.NoError(t, PingCheck(pingFunc(ok))(context.Background()))

	err := PingCheck(pingFunc(fail("refused")))(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}
