package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func dp(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

func ngn(v string) money.Money {
	return money.New(d(v), money.NGN)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name       string
		rule       *Rule
		subtotal   money.Money
		wantAmount string
		wantErr    error
	}{
		{
			name:       "percentage of subtotal",
			rule:       &Rule{Code: "PCT18", DiscountType: DiscountPercentage, Value: d("18"), Currency: money.NGN},
			subtotal:   ngn("100000"),
			wantAmount: "18000",
		},
		{
			name: "percentage capped by maximum discount",
			rule: &Rule{
				Code: "TEN", DiscountType: DiscountPercentage, Value: d("10"),
				Currency: money.NGN, MaximumDiscount: dp("5000"),
			},
			subtotal:   ngn("100000"),
			wantAmount: "5000",
		},
		{
			name: "maximum above computed discount leaves it untouched",
			rule: &Rule{
				Code: "TEN", DiscountType: DiscountPercentage, Value: d("10"),
				Currency: money.NGN, MaximumDiscount: dp("50000"),
			},
			subtotal:   ngn("100000"),
			wantAmount: "10000",
		},
		{
			name:       "fixed amount",
			rule:       &Rule{Code: "FLAT", DiscountType: DiscountFixed, Value: d("2500"), Currency: money.NGN},
			subtotal:   ngn("100000"),
			wantAmount: "2500",
		},
		{
			name:       "fixed amount capped at subtotal",
			rule:       &Rule{Code: "BIG", DiscountType: DiscountFixed, Value: d("150000"), Currency: money.NGN},
			subtotal:   ngn("100000"),
			wantAmount: "100000",
		},
		{
			name:       "percentage rounds to two places",
			rule:       &Rule{Code: "ODD", DiscountType: DiscountPercentage, Value: d("7.5"), Currency: money.NGN},
			subtotal:   ngn("33.33"),
			wantAmount: "2.5",
		},
		{
			name: "minimum order met exactly",
			rule: &Rule{
				Code: "MIN", DiscountType: DiscountFixed, Value: d("1000"),
				Currency: money.NGN, MinimumOrder: d("20000"),
			},
			subtotal:   ngn("20000"),
			wantAmount: "1000",
		},
		{
			name: "below minimum order",
			rule: &Rule{
				Code: "MIN", DiscountType: DiscountFixed, Value: d("1000"),
				Currency: money.NGN, MinimumOrder: d("20000"),
			},
			subtotal: ngn("19999.99"),
			wantErr:  ErrMinimumNotMet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.rule, tt.subtotal, nil)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.subtotal.Currency, got.Amount.Currency)
			assert.Equal(t, tt.rule.Code, got.Code)
			assert.True(t, d(tt.wantAmount).Equal(got.Amount.Amount), "got %s", got.Amount.Amount)
		})
	}
}

func TestApply_UnsupportedType(t *testing.T) {
	_, err := Apply(&Rule{DiscountType: "free_lowest", Currency: money.NGN}, ngn("100"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported discount type")
}

func TestApply_ConvertsThresholdsThroughTable(t *testing.T) {
	table, err := fx.NewTable(money.GBP, []fx.ExchangeRate{
		{CurrencyCode: money.NGN, RateFromBase: d("1950"), IsActive: true, UpdatedAt: time.Now()},
	}, time.Now())
	require.NoError(t, err)

	rule := &Rule{
		Code:            "GBP5",
		DiscountType:    DiscountFixed,
		Value:           d("5"),
		Currency:        money.GBP,
		MinimumOrder:    d("40"),
		MaximumDiscount: dp("4"),
	}

	t.Run("converted minimum not met", func(t *testing.T) {
		_, err := Apply(rule, ngn("70000"), table)

		var mne *MinimumNotMetError
		require.ErrorAs(t, err, &mne)
		assert.True(t, d("78000").Equal(mne.Minimum.Amount))
		assert.Equal(t, money.NGN, mne.Minimum.Currency)
	})

	t.Run("fixed value and cap converted", func(t *testing.T) {
		got, err := Apply(rule, ngn("100000"), table)
		require.NoError(t, err)
		assert.True(t, d("7800").Equal(got.Amount.Amount), "got %s", got.Amount.Amount)
	})

	t.Run("without a converter the mismatch is reported", func(t *testing.T) {
		_, err := Apply(rule, ngn("100000"), nil)

		var cme *money.CurrencyMismatchError
		require.ErrorAs(t, err, &cme)
	})

	t.Run("missing rate propagates", func(t *testing.T) {
		_, err := Apply(rule, money.New(d("100"), money.USD), table)

		var mre *fx.MissingRateError
		require.ErrorAs(t, err, &mre)
	})
}

func TestParseDiscountType(t *testing.T) {
	got, err := ParseDiscountType(" Percentage ")
	require.NoError(t, err)
	assert.Equal(t, DiscountPercentage, got)

	_, err = ParseDiscountType("bogo")
	require.Error(t, err)
}
