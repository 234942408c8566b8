package fx

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/tresses/internal/domain/money"
)

// StaleRecorder receives stale rate warnings for operational visibility.
type StaleRecorder interface {
	RecordStale(ctx context.Context, w StaleRateWarning)
}

// Loader fetches the active rate table for a checkout.
type Loader struct {
	repo      Repository
	base      money.Currency
	freshness time.Duration
	recorder  StaleRecorder
	now       func() time.Time
}

// NewLoader creates a Loader. freshness is the age after which a rate is
// reported stale; zero disables the check. recorder may be nil.
func NewLoader(repo Repository, base money.Currency, freshness time.Duration, recorder StaleRecorder) *Loader {
	return &Loader{
		repo:      repo,
		base:      base,
		freshness: freshness,
		recorder:  recorder,
		now:       time.Now,
	}
}

// Load reads the active rates and builds a Table. Stale rates are logged and
// recorded but do not fail the load.
func (l *Loader) Load(ctx context.Context) (*Table, error) {
	rows, err := l.repo.ActiveRates(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load active rates")
	}

	now := l.now()
	table, err := NewTable(l.base, rows, now)
	if err != nil {
		return nil, errors.Wrap(err, "build rate table")
	}

	for _, w := range table.Stale(now, l.freshness) {
		zctx.From(ctx).Warn("Stale exchange rate",
			zap.Stringer("currency", w.Currency),
			zap.Time("updated_at", w.UpdatedAt),
			zap.Duration("age", w.Age),
		)
		if l.recorder != nil {
			l.recorder.RecordStale(ctx, w)
		}
	}

	return table, nil
}
