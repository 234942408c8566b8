package fx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/tresses/internal/domain/money"
)

type mockRateRepo struct {
	rates    []ExchangeRate
	err      error
	calls    int
	upserted []ExchangeRate
}

func (m *mockRateRepo) ActiveRates(_ context.Context) ([]ExchangeRate, error) {
	m.calls++
	return m.rates, m.err
}

func (m *mockRateRepo) UpsertRate(_ context.Context, r ExchangeRate) error {
	m.upserted = append(m.upserted, r)
	return m.err
}

type recordedStale struct {
	warnings []StaleRateWarning
}

func (r *recordedStale) RecordStale(_ context.Context, w StaleRateWarning) {
	r.warnings = append(r.warnings, w)
}

func TestLoader_Load(t *testing.T) {
	old := rate(money.NGN, "1950")
	old.UpdatedAt = loadedAt.Add(-48 * time.Hour)
	repo := &mockRateRepo{rates: []ExchangeRate{old, rate(money.USD, "1.27")}}
	rec := &recordedStale{}

	l := NewLoader(repo, money.GBP, 24*time.Hour, rec)
	l.now = func() time.Time { return loadedAt }

	table, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, money.GBP, table.Base())
	assert.Equal(t, loadedAt, table.FetchedAt())

	r, err := table.Rate(money.NGN)
	require.NoError(t, err)
	assert.True(t, d("1950").Equal(r))

	require.Len(t, rec.warnings, 1, "stale rates are reported but do not fail the load")
	assert.Equal(t, money.NGN, rec.warnings[0].Currency)
}

func TestLoader_RepositoryError(t *testing.T) {
	l := NewLoader(&mockRateRepo{err: errors.New("db down")}, money.GBP, 0, nil)

	_, err := l.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load active rates")
}

func TestLoader_InvalidTable(t *testing.T) {
	repo := &mockRateRepo{rates: []ExchangeRate{rate(money.NGN, "1950"), rate(money.NGN, "2000")}}
	l := NewLoader(repo, money.GBP, 0, nil)

	_, err := l.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build rate table")
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return s, client
}

func TestCachedRepository_CachesActiveRates(t *testing.T) {
	s, client := newRedis(t)
	repo := &mockRateRepo{rates: []ExchangeRate{rate(money.NGN, "1950"), rate(money.USD, "1.27")}}
	cached := NewCachedRepository(repo, client, time.Minute)
	ctx := context.Background()

	first, err := cached.ActiveRates(ctx)
	require.NoError(t, err)
	second, err := cached.ActiveRates(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.calls, "second read is served from redis")
	assert.True(t, s.Exists(activeRatesKey))
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].CurrencyCode, second[i].CurrencyCode)
		assert.True(t, first[i].RateFromBase.Equal(second[i].RateFromBase))
		assert.True(t, first[i].UpdatedAt.Equal(second[i].UpdatedAt))
		assert.Equal(t, first[i].IsActive, second[i].IsActive)
	}

	s.FastForward(2 * time.Minute)
	_, err = cached.ActiveRates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls, "expired entry reloads from the repository")
}

func TestCachedRepository_UpsertInvalidates(t *testing.T) {
	s, client := newRedis(t)
	repo := &mockRateRepo{rates: []ExchangeRate{rate(money.NGN, "1950")}}
	cached := NewCachedRepository(repo, client, time.Minute)
	ctx := context.Background()

	_, err := cached.ActiveRates(ctx)
	require.NoError(t, err)
	require.True(t, s.Exists(activeRatesKey))

	require.NoError(t, cached.UpsertRate(ctx, rate(money.NGN, "1960")))
	assert.False(t, s.Exists(activeRatesKey))
	require.Len(t, repo.upserted, 1)
}

func TestCachedRepository_MalformedEntryFallsBack(t *testing.T) {
	s, client := newRedis(t)
	repo := &mockRateRepo{rates: []ExchangeRate{rate(money.NGN, "1950")}}
	cached := NewCachedRepository(repo, client, time.Minute)

	require.NoError(t, s.Set(activeRatesKey, `[{"currency":"NGN","rate":"NaN"}]`))

	rates, err := cached.ActiveRates(context.Background())
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, 1, repo.calls)
}

func TestCachedRepository_RedisDownFallsBack(t *testing.T) {
	s, client := newRedis(t)
	repo := &mockRateRepo{rates: []ExchangeRate{rate(money.NGN, "1950")}}
	cached := NewCachedRepository(repo, client, time.Minute)
	s.Close()

	rates, err := cached.ActiveRates(context.Background())
	require.NoError(t, err)
	assert.Len(t, rates, 1)
}
