package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"tryon/internal/domain"
)

// UnlimitedBalance is reported for allow-listed accounts.
const UnlimitedBalance = 999_999

// Balance is the spendable state of an account.
type Balance struct {
	Credits     int
	Plan        domain.Plan
	IsUnlimited bool
}

// DeductResult is the outcome of a deduction.
type DeductResult struct {
	Success   bool
	Remaining int
}

// Ledger authorizes and deducts credits against a CreditStore.
type Ledger struct {
	store     domain.CreditStore
	unlimited map[string]struct{}
	logger    zerolog.Logger
}

// NewLedger builds a ledger. unlimitedEmails are matched case-insensitively.
func NewLedger(store domain.CreditStore, unlimitedEmails []string, logger zerolog.Logger) *Ledger {
	allow := make(map[string]struct{}, len(unlimitedEmails))
	for _, e := range unlimitedEmails {
		if n := normalizeEmail(e); n != "" {
			allow[n] = struct{}{}
		}
	}
	return &Ledger{store: store, unlimited: allow, logger: logger}
}

// IsUnlimited reports whether account bypasses credit checks.
func (l *Ledger) IsUnlimited(account domain.Account) bool {
	email := normalizeEmail(account.Email)
	if email == "" {
		return false
	}
	_, ok := l.unlimited[email]
	return ok
}

// Balance returns the current balance of account. A missing profile reads as zero free credits.
func (l *Ledger) Balance(ctx context.Context, account domain.Account) (Balance, error) {
	if l.IsUnlimited(account) {
		return Balance{Credits: UnlimitedBalance, Plan: domain.PlanBusiness, IsUnlimited: true}, nil
	}
	if strings.TrimSpace(account.UserID) == "" {
		return Balance{}, domain.ErrUnauthorized
	}
	profile, err := l.store.GetProfile(ctx, account.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Balance{Plan: domain.PlanFree}, nil
		}
		return Balance{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	credits := profile.Credits
	if credits < 0 {
		credits = 0
	}
	return Balance{Credits: credits, Plan: profile.Plan}, nil
}

// Authorize reports whether account can afford cost. It does not reserve anything.
func (l *Ledger) Authorize(ctx context.Context, account domain.Account, cost int) (bool, Balance, error) {
	bal, err := l.Balance(ctx, account)
	if err != nil {
		return false, Balance{}, err
	}
	if bal.IsUnlimited {
		return true, bal, nil
	}
	return bal.Credits >= cost, bal, nil
}

// Deduct subtracts amount from the balance in a single conditional update.
// Callers deduct only after the provider accepted at least one task.
func (l *Ledger) Deduct(ctx context.Context, account domain.Account, amount int) (DeductResult, error) {
	if l.IsUnlimited(account) {
		return DeductResult{Success: true, Remaining: UnlimitedBalance}, nil
	}
	if strings.TrimSpace(account.UserID) == "" {
		return DeductResult{}, domain.ErrUnauthorized
	}
	if amount <= 0 {
		bal, err := l.Balance(ctx, account)
		if err != nil {
			return DeductResult{}, err
		}
		return DeductResult{Success: true, Remaining: bal.Credits}, nil
	}

	remaining, ok, err := l.store.DeductCredits(ctx, account.UserID, amount)
	if err != nil {
		l.logger.Error().Err(err).Str("user_id", account.UserID).Int("amount", amount).Msg("credit deduction failed")
		return DeductResult{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if !ok {
		l.logger.Warn().Str("user_id", account.UserID).Int("amount", amount).Int("available", remaining).Msg("credit deduction rejected")
		return DeductResult{Success: false, Remaining: remaining}, nil
	}
	return DeductResult{Success: true, Remaining: remaining}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
