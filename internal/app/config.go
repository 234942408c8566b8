package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/checkout"
	"github.com/xenking/tresses/internal/domain/money"
)

// Config holds the complete application configuration, loadable from
// environment variables (TRESSES_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (TRESSES_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (TRESSES_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Checkout     CheckoutConfig
	Rates        RatesConfig
	Redis        RedisConfig
	Stripe       StripeConfig
	Paystack     PaystackConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// CheckoutConfig holds pricing policy.
type CheckoutConfig struct {
	BaseCurrency    string `default:"GBP" usage:"Pivot currency of the rate table" flag:"base-currency"`
	DisplayCurrency string `default:"" usage:"Default display currency for order totals" flag:"display-currency"`
	TaxBasisPoints  int64  `default:"2000" usage:"Tax applied to subtotal minus discount, in basis points" flag:"tax-bps"`
	ShippingFlat    string `default:"4.99" usage:"Flat shipping charge in the base currency" flag:"shipping-flat"`
	FreeShipping    string `default:"150" usage:"Subtotal in the base currency above which shipping is free; 0 disables" flag:"free-shipping-above"`
	SuccessURL      string `default:"http://localhost:3000/checkout/success" usage:"Redirect after a successful payment" flag:"success-url"`
	CancelURL       string `default:"http://localhost:3000/checkout/cancel" usage:"Redirect after an abandoned payment" flag:"cancel-url"`
}

// RatesConfig controls exchange rate loading.
type RatesConfig struct {
	Freshness time.Duration `default:"24h" usage:"Age after which a rate is reported stale; 0 disables" flag:"rate-freshness"`
	CacheTTL  time.Duration `default:"1m" usage:"Redis cache TTL for the active rate list; 0 disables" flag:"rate-cache-ttl"`
}

// RedisConfig points at the cache. An empty Addr runs without Redis.
type RedisConfig struct {
	Addr     string `default:"" usage:"Redis address (host:port)" flag:"redis-addr"`
	Password string `default:"" usage:"Redis password" flag:"redis-password"`
	DB       int    `default:"0" usage:"Redis database number" flag:"redis-db"`
}

// StripeConfig enables the Stripe gateway when SecretKey is set.
type StripeConfig struct {
	SecretKey     string        `usage:"Stripe secret key" flag:"stripe-secret-key"`
	WebhookSecret string        `usage:"Stripe webhook signing secret" flag:"stripe-webhook-secret"`
	BaseURL       string        `default:"" usage:"Override the Stripe API URL" flag:"stripe-base-url"`
	Timeout       time.Duration `default:"10s" usage:"Stripe request timeout" flag:"stripe-timeout"`
}

// PaystackConfig enables the Paystack gateway when SecretKey is set.
type PaystackConfig struct {
	SecretKey string        `usage:"Paystack secret key" flag:"paystack-secret-key"`
	BaseURL   string        `default:"" usage:"Override the Paystack API URL" flag:"paystack-base-url"`
	Currency  string        `default:"NGN" usage:"Currency charged through Paystack" flag:"paystack-currency"`
	Timeout   time.Duration `default:"10s" usage:"Paystack request timeout" flag:"paystack-timeout"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max     int           `default:"100" usage:"Max requests per window"`
	Window  time.Duration `default:"1m"  usage:"Rate limit window duration"`
	Backend string        `default:"memory" usage:"Limiter backend: memory or redis" flag:"rate-limit-backend"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "TRESSES",
		Files:     []string{"config.yaml", "/etc/tresses/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set TRESSES_DATABASE_URL or DATABASE_URL")
	}
	if _, err := money.ParseCurrency(c.Checkout.BaseCurrency); err != nil {
		return errors.Wrap(err, "checkout.base_currency")
	}
	if _, err := c.CheckoutPolicy(); err != nil {
		return err
	}
	if _, err := money.ParseCurrency(c.Paystack.Currency); err != nil {
		return errors.Wrap(err, "paystack.currency")
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("rate limit backend redis needs TRESSES_REDIS_ADDR")
		}
	default:
		return errors.Errorf("unknown rate limit backend %q", c.RateLimit.Backend)
	}
	return nil
}

// CheckoutPolicy converts the checkout section into checkout.Config. Shipping
// is configured in the base currency only; other settlement currencies use
// the converted base entry.
func (c *Config) CheckoutPolicy() (checkout.Config, error) {
	base, err := money.ParseCurrency(c.Checkout.BaseCurrency)
	if err != nil {
		return checkout.Config{}, errors.Wrap(err, "checkout.base_currency")
	}
	flat, err := money.ParseAmount("shipping_flat", c.Checkout.ShippingFlat)
	if err != nil {
		return checkout.Config{}, err
	}
	freeAbove := decimal.Zero
	if strings.TrimSpace(c.Checkout.FreeShipping) != "" {
		if freeAbove, err = money.ParseAmount("free_shipping_above", c.Checkout.FreeShipping); err != nil {
			return checkout.Config{}, err
		}
	}
	if c.Checkout.TaxBasisPoints < 0 {
		return checkout.Config{}, errors.Errorf("tax basis points must not be negative, got %d", c.Checkout.TaxBasisPoints)
	}

	var display money.Currency
	if c.Checkout.DisplayCurrency != "" {
		if display, err = money.ParseCurrency(c.Checkout.DisplayCurrency); err != nil {
			return checkout.Config{}, errors.Wrap(err, "checkout.display_currency")
		}
	}
	return checkout.Config{
		Shipping:        map[money.Currency]checkout.ShippingRate{base: {Flat: flat, FreeAbove: freeAbove}},
		TaxBasisPoints:  c.Checkout.TaxBasisPoints,
		DisplayCurrency: display,
		SuccessURL:      c.Checkout.SuccessURL,
		CancelURL:       c.Checkout.CancelURL,
	}, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL, REDIS_URL and PORT
// to the application's TRESSES_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Redis.Addr == "" {
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			c.Redis.Addr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
