package main

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
)

// feed reads rates from an endpoint answering
// GET <base>?base=GBP&symbols=NGN with {"base":"GBP","rates":{"NGN":"1950.12"}}.
// Rates may be JSON numbers or strings.
type feed struct {
	url    string
	base   money.Currency
	client *http.Client
	// parallel bounds concurrent requests.
	parallel int
	now      func() time.Time
}

// fetchAll fetches every currency concurrently. Any failure aborts the run so
// a partial feed never overwrites good rates with a mix of old and new.
func (f *feed) fetchAll(ctx context.Context, currencies []money.Currency) ([]fx.ExchangeRate, error) {
	out := make([]fx.ExchangeRate, len(currencies))
	g, ctx := errgroup.WithContext(ctx)
	if f.parallel > 0 {
		g.SetLimit(f.parallel)
	}
	for i, c := range currencies {
		g.Go(func() error {
			rate, err := f.fetch(ctx, c)
			if err != nil {
				return errors.Wrapf(err, "fetch %s", c)
			}
			out[i] = fx.ExchangeRate{CurrencyCode: c, RateFromBase: rate, IsActive: true, UpdatedAt: f.now().UTC()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *feed) fetch(ctx context.Context, code money.Currency) (decimal.Decimal, error) {
	u, err := url.Parse(f.url)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse feed url")
	}
	q := u.Query()
	q.Set("base", f.base.String())
	q.Set("symbols", code.String())
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "read body")
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, errors.Errorf("feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return parseRate(body, f.base, code)
}

// parseRate extracts rates[code] from a feed response and checks the
// response is quoted against base.
func parseRate(body []byte, base, code money.Currency) (decimal.Decimal, error) {
	var (
		gotBase string
		rate    decimal.Decimal
		found   bool
	)
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "base":
			s, err := d.Str()
			gotBase = s
			return err
		case "rates":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if !strings.EqualFold(key, code.String()) {
					return d.Skip()
				}
				v, err := decodeNumber(d)
				if err != nil {
					return err
				}
				rate, found = v, true
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "decode feed")
	}
	if gotBase != "" && !strings.EqualFold(gotBase, base.String()) {
		return decimal.Zero, errors.Errorf("feed quoted against %s, want %s", gotBase, base)
	}
	if !found {
		return decimal.Zero, errors.Errorf("feed has no rate for %s", code)
	}
	if !rate.IsPositive() {
		return decimal.Zero, errors.Errorf("rate for %s must be positive, got %s", code, rate)
	}
	return rate, nil
}

func decodeNumber(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	default:
		return decimal.Zero, errors.Errorf("unexpected %s for rate", d.Next())
	}
	return money.ParseAmount("rate", raw)
}
