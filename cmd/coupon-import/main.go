package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/coupon"
	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/repository"
)

const batchSize = 500

// ruleFlags is the rule applied to every imported code.
type ruleFlags struct {
	discountType string
	value        string
	currency     string
	minimumOrder string
	maxDiscount  string
	usageLimit   int
	validFor     time.Duration
	description  string
}

func main() {
	var (
		dataDir     string
		databaseURL string
		dryRun      bool
		rf          ruleFlags
		sc          = scanner{progress: 10_000_000}
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing gzip code lists (*.gz)")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "report matching codes without writing them")
	flag.IntVar(&sc.quorum, "quorum", 2, "number of files a code must appear in")
	flag.UintVar(&sc.capacity, "bloom-capacity", 120_000_000, "expected codes per file")
	flag.Float64Var(&sc.fpr, "bloom-fpr", 0.001, "bloom filter false positive rate")
	flag.IntVar(&sc.minLen, "min-len", 8, "minimum code length")
	flag.IntVar(&sc.maxLen, "max-len", 10, "maximum code length")
	flag.StringVar(&rf.discountType, "type", "percentage", "discount type: percentage or fixed")
	flag.StringVar(&rf.value, "value", "10", "percent off, or fixed amount in -currency")
	flag.StringVar(&rf.currency, "currency", "GBP", "currency of fixed amounts")
	flag.StringVar(&rf.minimumOrder, "minimum-order", "0", "minimum subtotal in -currency")
	flag.StringVar(&rf.maxDiscount, "max-discount", "", "discount cap in -currency; empty for none")
	flag.IntVar(&rf.usageLimit, "usage-limit", 1, "redemptions per code; 0 for unlimited")
	flag.DurationVar(&rf.validFor, "valid-for", 0, "validity window from now; 0 for no expiry")
	flag.StringVar(&rf.description, "description", "Promo code: 10% off", "customer-facing description")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	template, err := rf.rule(time.Now().UTC())
	if err != nil {
		slog.Error("invalid coupon rule", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, dryRun, &sc, template); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, dryRun bool, sc *scanner, template coupon.Rule) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list code files")
	}
	if len(files) == 0 {
		return errors.Errorf("no .gz files in %s", dataDir)
	}
	slices.Sort(files)
	slog.Info("scanning code lists", slog.Int("files", len(files)), slog.Int("quorum", sc.quorum))

	codes, err := sc.find(ctx, files)
	if err != nil {
		return err
	}
	slog.Info("valid codes found", slog.Int("count", len(codes)))

	if dryRun || len(codes) == 0 {
		return nil
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeCoupons(ctx, repository.NewCouponRepository(pool), codes, template)
}

type batchUpserter interface {
	UpsertBatch(ctx context.Context, rules []coupon.Rule) error
}

// writeCoupons upserts codes in batches. Existing usage counts are kept.
func writeCoupons(ctx context.Context, repo batchUpserter, codes []string, template coupon.Rule) error {
	batch := make([]coupon.Rule, 0, batchSize)
	written := 0
	for chunk := range slices.Chunk(codes, batchSize) {
		batch = batch[:0]
		for _, code := range chunk {
			r := template
			r.Code = code
			batch = append(batch, r)
		}
		if err := repo.UpsertBatch(ctx, batch); err != nil {
			return errors.Wrapf(err, "upsert batch at %d", written)
		}
		written += len(chunk)
		slog.Info("write progress", slog.Int("written", written), slog.Int("total", len(codes)))
	}
	return nil
}

func (f ruleFlags) rule(now time.Time) (coupon.Rule, error) {
	dt, err := coupon.ParseDiscountType(f.discountType)
	if err != nil {
		return coupon.Rule{}, err
	}
	currency, err := money.ParseCurrency(f.currency)
	if err != nil {
		return coupon.Rule{}, err
	}
	value, err := money.ParseAmount("value", f.value)
	if err != nil {
		return coupon.Rule{}, err
	}
	if !value.IsPositive() {
		return coupon.Rule{}, errors.Errorf("value must be positive, got %s", value)
	}
	if dt == coupon.DiscountPercentage && value.GreaterThan(decimal.NewFromInt(100)) {
		return coupon.Rule{}, errors.Errorf("percentage must not exceed 100, got %s", value)
	}
	minimum, err := money.ParseAmount("minimum_order", f.minimumOrder)
	if err != nil {
		return coupon.Rule{}, err
	}

	r := coupon.Rule{
		DiscountType: dt,
		Value:        value,
		Currency:     currency,
		MinimumOrder: minimum,
		Active:       true,
		Description:  f.description,
	}
	if f.maxDiscount != "" {
		capped, err := money.ParseAmount("max_discount", f.maxDiscount)
		if err != nil {
			return coupon.Rule{}, err
		}
		r.MaximumDiscount = &capped
	}
	if f.usageLimit > 0 {
		limit := f.usageLimit
		r.UsageLimit = &limit
	}
	if f.validFor > 0 {
		from, until := now, now.Add(f.validFor)
		r.ValidFrom, r.ValidUntil = &from, &until
	}
	return r, nil
}
