package ledger

import (
	"errors"
	"fmt"
)

// Validation failure kinds. Match them with errors.Is.
var (
	ErrQuantityMismatch = errors.New("quantity does not match the sum of quantityOfBuys")
	ErrUnknownBuy       = errors.New("unknown buy id")
	ErrNegativeBalance  = errors.New("sold more than the remaining lot quantity")
	ErrDuplicateBuy     = errors.New("duplicate buy id")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrMissingField     = errors.New("missing required field")
)

// ValidationError reports a ledger record that failed validation.
type ValidationError struct {
	Code   string
	Kind   error
	Record fmt.Stringer
	BuyID  string
	Detail string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("ledger %s: %v", e.Code, e.Kind)
	if e.BuyID != "" {
		msg += fmt.Sprintf(" (buy %s)", e.BuyID)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Record != nil {
		msg += "; record: " + e.Record.String()
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// IsValidation reports whether err is, or wraps, a ledger validation error.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
