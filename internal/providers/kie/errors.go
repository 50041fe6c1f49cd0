package kie

import (
	"fmt"

	"tryon/internal/domain"
)

// ProviderError carries the provider's own message verbatim.
type ProviderError struct {
	Op         string
	StatusCode int
	Code       int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("kie: %s: %s (status %d, code %d)", e.Op, e.Message, e.StatusCode, e.Code)
}

// Is lets callers match any provider rejection with domain.ErrProviderFailure.
func (e *ProviderError) Is(target error) bool {
	return target == domain.ErrProviderFailure
}
