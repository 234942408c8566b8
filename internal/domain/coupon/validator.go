package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/tresses/internal/domain/money"
)

// Validator validates a coupon code against a cart subtotal and returns
// the computed discount.
type Validator interface {
	Validate(ctx context.Context, code string, subtotal money.Money, conv Converter) (*Discount, error)
	Redeem(ctx context.Context, code string) error
	Release(ctx context.Context, code string) error
}

// RepoValidator implements Validator by looking up coupon rules from a
// Repository and applying them via the Apply function.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the coupon rule for the given code, checks temporal
// validity and usage limits, and applies it to the subtotal. It does not
// consume a use; call Redeem once the order is persisted.
func (v *RepoValidator) Validate(ctx context.Context, code string, subtotal money.Money, conv Converter) (*Discount, error) {
	rule, err := v.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !rule.Active {
		return nil, ErrInvalidCoupon
	}

	now := v.now()

	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrCouponExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, ErrCouponExpired
	}

	if rule.UsageLimit != nil && rule.UsageCount >= *rule.UsageLimit {
		return nil, ErrCouponUsageLimitReached
	}

	d, err := Apply(rule, subtotal, conv)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Redeem consumes one use of the coupon.
func (v *RepoValidator) Redeem(ctx context.Context, code string) error {
	if err := v.repo.IncrementUses(ctx, NormalizeCode(code)); err != nil {
		if errors.Is(err, ErrCouponUsageLimitReached) {
			return err
		}
		return errors.Wrap(err, "increment coupon uses")
	}
	return nil
}

// Release gives back a use taken by Redeem for an order that was abandoned
// before payment started.
func (v *RepoValidator) Release(ctx context.Context, code string) error {
	if err := v.repo.ReleaseUse(ctx, NormalizeCode(code)); err != nil {
		return errors.Wrap(err, "release coupon use")
	}
	return nil
}
