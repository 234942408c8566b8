package fx

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/tresses/internal/domain/money"
)

const activeRatesKey = "fx:active_rates:v1"

var _ Repository = (*CachedRepository)(nil)

// CachedRepository keeps the active rate list in Redis for ttl. Redis errors
// are logged and fall through to the wrapped repository.
type CachedRepository struct {
	next   Repository
	client *redis.Client
	ttl    time.Duration
}

// NewCachedRepository wraps next with a Redis cache. A nil client disables caching.
func NewCachedRepository(next Repository, client *redis.Client, ttl time.Duration) *CachedRepository {
	return &CachedRepository{next: next, client: client, ttl: ttl}
}

// ActiveRates returns the cached rate list, loading and caching it on a miss.
func (c *CachedRepository) ActiveRates(ctx context.Context) ([]ExchangeRate, error) {
	if c.client == nil || c.ttl <= 0 {
		return c.next.ActiveRates(ctx)
	}
	lg := zctx.From(ctx)

	data, err := c.client.Get(ctx, activeRatesKey).Bytes()
	switch {
	case err == nil:
		rates, decErr := decodeRates(data)
		if decErr == nil {
			return rates, nil
		}
		lg.Warn("Discarding malformed cached rates", zap.Error(decErr))
	case !errors.Is(err, redis.Nil):
		lg.Warn("Rate cache read failed", zap.Error(err))
	}

	rates, err := c.next.ActiveRates(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, activeRatesKey, encodeRates(rates), c.ttl).Err(); err != nil {
		lg.Warn("Rate cache write failed", zap.Error(err))
	}
	return rates, nil
}

// UpsertRate writes through to the wrapped repository and invalidates the cache.
func (c *CachedRepository) UpsertRate(ctx context.Context, rate ExchangeRate) error {
	if err := c.next.UpsertRate(ctx, rate); err != nil {
		return err
	}
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, activeRatesKey).Err(); err != nil {
		return errors.Wrap(err, "invalidate rate cache")
	}
	return nil
}

func encodeRates(rates []ExchangeRate) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, r := range rates {
		e.ObjStart()
		e.FieldStart("currency")
		e.Str(r.CurrencyCode.String())
		e.FieldStart("rate")
		e.Str(r.RateFromBase.String())
		e.FieldStart("active")
		e.Bool(r.IsActive)
		e.FieldStart("updated_at")
		e.Str(r.UpdatedAt.UTC().Format(time.RFC3339Nano))
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeRates(data []byte) ([]ExchangeRate, error) {
	var out []ExchangeRate
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var r ExchangeRate
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "currency":
				s, err := d.Str()
				if err != nil {
					return err
				}
				r.CurrencyCode, err = money.ParseCurrency(s)
				return err
			case "rate":
				s, err := d.Str()
				if err != nil {
					return err
				}
				r.RateFromBase, err = money.ParseAmount("rate", s)
				return err
			case "active":
				v, err := d.Bool()
				r.IsActive = v
				return err
			case "updated_at":
				s, err := d.Str()
				if err != nil {
					return err
				}
				r.UpdatedAt, err = time.Parse(time.RFC3339Nano, s)
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode cached rates")
	}
	return out, nil
}
