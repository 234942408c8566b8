package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/db"
	"github.com/xenking/tresses/internal/domain/auth"
	"github.com/xenking/tresses/internal/domain/coupon"
	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/repository"
)

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (defaults to the embedded catalog)")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or TRESSES_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or TRESSES_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("TRESSES_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or TRESSES_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("TRESSES_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, repository.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedRates(ctx, repository.NewRateRepository(pool)); err != nil {
		return errors.Wrap(err, "seed rates")
	}

	if err := seedCoupons(ctx, repository.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKey(ctx, repository.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedProducts(ctx context.Context, repo *repository.ProductRepository, productsFile string) error {
	data := db.SeedProducts
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))

		var err error
		if data, err = os.ReadFile(productsFile); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}

	products, err := parseProducts(data)
	if err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for i := range products {
		p := &products[i]
		if err := repo.Upsert(ctx, p); err != nil {
			return err
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name), slog.Int("lengths", len(p.LengthPrices)))
	}

	return nil
}

// Starting rates; cmd/rates-sync keeps them current.
var defaultRates = []struct {
	code money.Currency
	rate string
}{
	{money.NGN, "1950"},
	{money.USD, "1.27"},
}

func seedRates(ctx context.Context, repo *repository.RateRepository) error {
	slog.Info("seeding exchange rates")

	now := time.Now().UTC()
	for _, r := range defaultRates {
		if err := repo.UpsertRate(ctx, fx.ExchangeRate{
			CurrencyCode: r.code,
			RateFromBase: decimal.RequireFromString(r.rate),
			IsActive:     true,
			UpdatedAt:    now,
		}); err != nil {
			return err
		}

		slog.Info("upserted rate", slog.String("currency", r.code.String()), slog.String("rate_from_base", r.rate))
	}

	return nil
}

func seedCoupons(ctx context.Context, repo *repository.CouponRepository) error {
	slog.Info("seeding launch coupons")

	maxWelcome := decimal.NewFromInt(25)
	rules := []coupon.Rule{
		{
			Code:            "WELCOME10",
			DiscountType:    coupon.DiscountPercentage,
			Value:           decimal.NewFromInt(10),
			Currency:        money.GBP,
			MaximumDiscount: &maxWelcome,
			Active:          true,
			Description:     "10% off your first order, up to 25.00 GBP",
		},
		{
			Code:         "FIVEOFF",
			DiscountType: coupon.DiscountFixed,
			Value:        decimal.NewFromInt(5),
			Currency:     money.GBP,
			MinimumOrder: decimal.NewFromInt(50),
			Active:       true,
			Description:  "5.00 GBP off orders over 50.00 GBP",
		},
	}

	if err := repo.UpsertBatch(ctx, rules); err != nil {
		return err
	}
	for _, r := range rules {
		slog.Info("upserted coupon", slog.String("code", r.Code), slog.String("description", r.Description))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *repository.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	info := auth.APIKeyInfo{
		ID:      "admin",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Back-office admin key",
		Scopes:  []string{auth.ScopeOrdersWrite},
	}
	if err := repo.Upsert(ctx, info); err != nil {
		return err
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))

	return nil
}
