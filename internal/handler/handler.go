// Package handler exposes the storefront API over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/tresses/internal/domain/auth"
	"github.com/xenking/tresses/internal/domain/cart"
	"github.com/xenking/tresses/internal/domain/checkout"
	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/order"
	"github.com/xenking/tresses/internal/domain/payment"
	"github.com/xenking/tresses/internal/domain/product"
)

// Carts is the cart lifecycle used by the cart endpoints.
type Carts interface {
	Create(ctx context.Context, currency money.Currency) (*cart.Cart, error)
	Get(ctx context.Context, cartID string) (*cart.Cart, error)
	AddItem(ctx context.Context, cartID, productID string, qty int, length *int) (*cart.Cart, error)
	UpdateQuantity(ctx context.Context, cartID, itemID string, qty int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, cartID, itemID string) (*cart.Cart, error)
}

// Checkout places orders and applies provider webhooks.
type Checkout interface {
	PlaceOrder(ctx context.Context, req checkout.Request) (*checkout.Result, error)
	HandleWebhook(ctx context.Context, provider string, header http.Header, body []byte) (payment.WebhookEvent, error)
}

// Orders reads orders and drives their status.
type Orders interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id string, to order.Status) (*order.Order, error)
}

// Rates loads the active rate table.
type Rates interface {
	Load(ctx context.Context) (*fx.Table, error)
}

// Authenticator resolves back-office API keys.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

// Config holds non-dependency handler settings.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
	// RateFreshness marks rates older than it as stale in /api/rates.
	RateFreshness time.Duration
	// MaxBodyBytes caps request bodies. Zero means 1 MiB.
	MaxBodyBytes int64
}

// Deps groups the collaborators of Handler.
type Deps struct {
	Products product.Repository
	Carts    Carts
	Checkout Checkout
	Orders   Orders
	Rates    Rates
	Auth     Authenticator
}

// Handler serves the /api routes.
type Handler struct {
	cfg      Config
	products product.Repository
	carts    Carts
	checkout Checkout
	orders   Orders
	rates    Rates
	auth     Authenticator
	validate *validator.Validate
	now      func() time.Time
}

// New constructs a Handler.
func New(cfg Config, deps Deps) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Handler{
		cfg:      cfg,
		products: deps.Products,
		carts:    deps.Carts,
		checkout: deps.Checkout,
		orders:   deps.Orders,
		rates:    deps.Rates,
		auth:     deps.Auth,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// Routes mounts the API on r. Callers add cross-cutting middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/product", h.ListProducts)
		r.Get("/product/{productId}", h.GetProduct)
		r.Get("/rates", h.ListRates)

		r.Post("/cart", h.CreateCart)
		r.Route("/cart/{cartId}", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/items", h.AddCartItem)
			r.Patch("/items/{itemId}", h.UpdateCartItem)
			r.Delete("/items/{itemId}", h.RemoveCartItem)
		})

		r.Post("/checkout", h.PlaceOrder)
		r.Get("/order/{orderId}", h.GetOrder)
		r.Post("/webhooks/{provider}", h.Webhook)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.RequireScope(auth.ScopeOrdersWrite))
			r.Post("/order/{orderId}/status", h.UpdateOrderStatus)
		})
	})
}
