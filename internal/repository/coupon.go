package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/tresses/internal/domain/coupon"
	"github.com/xenking/tresses/internal/domain/money"
)

const (
	getCouponByCodeSQL = `SELECT code, discount_type, discount_value, currency, minimum_order,
		maximum_discount, usage_limit, usage_count, valid_from, valid_until, active, description
		FROM coupons WHERE code = UPPER($1) AND active`

	// The guard makes redemption atomic: two concurrent redeems cannot both
	// take the last use.
	redeemCouponSQL = `UPDATE coupons SET usage_count = usage_count + 1
		WHERE code = $1 AND active AND (usage_limit IS NULL OR usage_count < usage_limit)`

	releaseCouponSQL = `UPDATE coupons SET usage_count = usage_count - 1
		WHERE code = $1 AND usage_count > 0`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1 AND active)`

	upsertCouponSQL = `INSERT INTO coupons
		(code, discount_type, discount_value, currency, minimum_order, maximum_discount,
		 usage_limit, valid_from, valid_until, active, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			currency = EXCLUDED.currency,
			minimum_order = EXCLUDED.minimum_order,
			maximum_discount = EXCLUDED.maximum_discount,
			usage_limit = EXCLUDED.usage_limit,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			active = EXCLUDED.active,
			description = EXCLUDED.description`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon by its normalized code.
// Returns coupon.ErrInvalidCoupon when no matching active coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	code = coupon.NormalizeCode(code)
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &rule, nil
}

// IncrementUses takes one use of the coupon. It returns
// coupon.ErrCouponUsageLimitReached when no uses remain and
// coupon.ErrInvalidCoupon when the code does not exist.
func (r *CouponRepository) IncrementUses(ctx context.Context, code string) error {
	code = coupon.NormalizeCode(code)
	tag, err := r.pool.Exec(ctx, redeemCouponSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing uses for coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, couponExistsSQL, code).Scan(&exists); err != nil {
		return fmt.Errorf("checking coupon %q: %w", code, err)
	}
	if !exists {
		return coupon.ErrInvalidCoupon
	}
	return coupon.ErrCouponUsageLimitReached
}

// ReleaseUse returns one use of the coupon. Releasing a coupon with no
// recorded uses is a no-op.
func (r *CouponRepository) ReleaseUse(ctx context.Context, code string) error {
	code = coupon.NormalizeCode(code)
	if _, err := r.pool.Exec(ctx, releaseCouponSQL, code); err != nil {
		return fmt.Errorf("releasing use of coupon %q: %w", code, err)
	}
	return nil
}

// UpsertBatch inserts or replaces rules in a single round trip. Usage counts
// of existing coupons are preserved.
func (r *CouponRepository) UpsertBatch(ctx context.Context, rules []coupon.Rule) error {
	if len(rules) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rule := range rules {
		batch.Queue(upsertCouponSQL,
			coupon.NormalizeCode(rule.Code), string(rule.DiscountType), rule.Value,
			rule.Currency.String(), rule.MinimumOrder, rule.MaximumDiscount,
			rule.UsageLimit, rule.ValidFrom, rule.ValidUntil, rule.Active, rule.Description,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d coupons: %w", len(rules), err)
	}
	return nil
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule         coupon.Rule
		discountType string
		currency     string
		maxDiscount  decimal.NullDecimal
		usageLimit   *int32
		usageCount   int32
		validFrom    *time.Time
		validUntil   *time.Time
	)
	err := row.Scan(
		&rule.Code, &discountType, &rule.Value, &currency, &rule.MinimumOrder,
		&maxDiscount, &usageLimit, &usageCount, &validFrom, &validUntil,
		&rule.Active, &rule.Description,
	)
	rule.DiscountType = coupon.DiscountType(discountType)
	rule.Currency = money.Currency(currency)
	if maxDiscount.Valid {
		rule.MaximumDiscount = &maxDiscount.Decimal
	}
	if usageLimit != nil {
		limit := int(*usageLimit)
		rule.UsageLimit = &limit
	}
	rule.UsageCount = int(usageCount)
	rule.ValidFrom = validFrom
	rule.ValidUntil = validUntil
	return rule, err
}
