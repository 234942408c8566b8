package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/money"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes Value percent off the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes Value off the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// ParseDiscountType validates a stored or imported discount type.
func ParseDiscountType(s string) (DiscountType, error) {
	switch t := DiscountType(strings.ToLower(strings.TrimSpace(s))); t {
	case DiscountPercentage, DiscountFixed:
		return t, nil
	default:
		return "", errors.Errorf("unsupported discount type: %q", s)
	}
}

var (
	// ErrInvalidCoupon is returned when a coupon code is not found or inactive.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when a coupon is outside its valid time window.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrMinimumNotMet is matched by *MinimumNotMetError.
	ErrMinimumNotMet = errors.New("coupon minimum order not met")
)

// MinimumNotMetError reports a subtotal below the coupon's minimum order,
// both expressed in the cart currency.
type MinimumNotMetError struct {
	Minimum  money.Money
	Subtotal money.Money
}

func (e *MinimumNotMetError) Error() string {
	return fmt.Sprintf("coupon requires a minimum order of %s, cart subtotal is %s", e.Minimum, e.Subtotal)
}

func (e *MinimumNotMetError) Is(target error) bool {
	return target == ErrMinimumNotMet
}

// Rule defines a coupon's discount behaviour and eligibility constraints.
// Monetary fields (fixed Value, MinimumOrder, MaximumDiscount) are in Currency.
type Rule struct {
	Code            string
	DiscountType    DiscountType
	Value           decimal.Decimal
	Currency        money.Currency
	MinimumOrder    decimal.Decimal
	MaximumDiscount *decimal.Decimal
	UsageLimit      *int
	UsageCount      int
	ValidFrom       *time.Time
	ValidUntil      *time.Time
	Active          bool
	Description     string
}

// Discount holds the computed discount and a human-readable description.
type Discount struct {
	Code        string
	Amount      money.Money
	Description string
}

// Converter converts an amount to another currency.
type Converter interface {
	Convert(m money.Money, to money.Currency) (money.Money, error)
}

// Repository provides lookup and mutation of coupon rules.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	// IncrementUses bumps the usage count, returning
	// ErrCouponUsageLimitReached when the limit has been hit concurrently.
	IncrementUses(ctx context.Context, code string) error
	// ReleaseUse returns a use taken by IncrementUses. The count never
	// drops below zero.
	ReleaseUse(ctx context.Context, code string) error
}

// NormalizeCode canonicalises user input before lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
