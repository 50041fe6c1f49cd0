package credits

import (
	"errors"
	"fmt"

	"tryon/internal/domain"
)

// ErrLedgerUnavailable is returned when the credit store cannot be read or updated.
var ErrLedgerUnavailable = errors.New("credit ledger unavailable")

// InsufficientCreditsError reports a balance below the cost of a request.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Is(target error) bool {
	return target == domain.ErrInsufficientCredits
}
