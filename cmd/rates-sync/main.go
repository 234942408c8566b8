package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/payment"
	"github.com/xenking/tresses/internal/repository"
)

func main() {
	var (
		databaseURL string
		redisAddr   string
		feedURL     string
		base        string
		currencies  string
		parallel    int
		timeout     time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&redisAddr, "redis-addr", "", "Redis address whose rate cache is invalidated (or REDIS_ADDR env)")
	flag.StringVar(&feedURL, "feed-url", "", "exchange rate feed endpoint (or TRESSES_RATES_FEED_URL env)")
	flag.StringVar(&base, "base", "GBP", "pivot currency the feed quotes against")
	flag.StringVar(&currencies, "currencies", "NGN,USD", "comma-separated currencies to sync")
	flag.IntVar(&parallel, "parallel", 4, "concurrent feed requests")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if redisAddr == "" {
		redisAddr = os.Getenv("REDIS_ADDR")
	}
	if feedURL == "" {
		feedURL = os.Getenv("TRESSES_RATES_FEED_URL")
	}
	if databaseURL == "" || feedURL == "" {
		slog.Error("database URL and feed URL are required")
		os.Exit(1)
	}

	baseCode, err := money.ParseCurrency(base)
	if err != nil {
		slog.Error("invalid base currency", slog.String("error", err.Error()))
		os.Exit(1)
	}
	codes, err := parseCurrencies(currencies, baseCode)
	if err != nil {
		slog.Error("invalid currency list", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	f := &feed{
		url:      feedURL,
		base:     baseCode,
		client:   payment.NewHTTPClient(timeout),
		parallel: parallel,
		now:      time.Now,
	}
	if err := run(ctx, databaseURL, redisAddr, f, codes); err != nil {
		slog.Error("rate sync failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("rate sync completed", slog.Int("currencies", len(codes)))
}

func run(ctx context.Context, databaseURL, redisAddr string, f *feed, codes []money.Currency) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	var rdb *redis.Client
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
		defer func() { _ = rdb.Close() }()
	}
	// Writes go through the cache wrapper so the API stops serving old rates.
	repo := fx.NewCachedRepository(repository.NewRateRepository(pool), rdb, time.Minute)

	start := time.Now()
	rates, err := f.fetchAll(ctx, codes)
	if err != nil {
		return err
	}
	slog.Info("fetched rates", slog.Int("count", len(rates)), slog.Duration("elapsed", time.Since(start)))

	for _, r := range rates {
		if err := repo.UpsertRate(ctx, r); err != nil {
			return errors.Wrapf(err, "store %s", r.CurrencyCode)
		}
		slog.Info("updated rate", slog.String("currency", r.CurrencyCode.String()), slog.String("rate_from_base", r.RateFromBase.String()))
	}
	return nil
}

// parseCurrencies splits a comma-separated list, dropping the base currency
// and duplicates.
func parseCurrencies(list string, base money.Currency) ([]money.Currency, error) {
	seen := map[money.Currency]bool{base: true}
	var out []money.Currency
	for _, raw := range strings.Split(list, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		c, err := money.ParseCurrency(raw)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, errors.New("no currencies to sync")
	}
	return out, nil
}
