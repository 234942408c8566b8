package money

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrInvalidAmount matches every *InvalidAmountError via errors.Is.
var ErrInvalidAmount = errors.New("invalid amount")

// InvalidAmountError reports an amount that is negative, NaN, or otherwise
// unusable for pricing. It always aborts checkout before a gateway call.
type InvalidAmountError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount for %s (%q): %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidAmountError) Is(target error) bool {
	return target == ErrInvalidAmount
}

// CurrencyMismatchError is returned when amounts in different currencies are
// combined without an explicit conversion.
type CurrencyMismatchError struct {
	Want Currency
	Got  Currency
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: want %s, got %s", e.Want, e.Got)
}
