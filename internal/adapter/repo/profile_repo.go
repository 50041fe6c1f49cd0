package repo

import (
	"context"
	"fmt"

	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/sqlinline"
)

// ProfileRepositoryPG implements domain.CreditStore backed by PostgreSQL.
type ProfileRepositoryPG struct {
	db infra.SQLExecutor
}

// NewProfileRepository creates a new ProfileRepositoryPG.
func NewProfileRepository(db infra.SQLExecutor) *ProfileRepositoryPG {
	return &ProfileRepositoryPG{db: db}
}

// GetProfile returns the credit profile of userID.
func (r *ProfileRepositoryPG) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	return scanProfile(r.db.QueryRow(ctx, sqlinline.QSelectProfile, userID))
}

// GetProfileByEmail looks a profile up by case-insensitive email.
func (r *ProfileRepositoryPG) GetProfileByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	return scanProfile(r.db.QueryRow(ctx, sqlinline.QSelectProfileByEmail, email))
}

// DeductCredits subtracts amount in one conditional update.
func (r *ProfileRepositoryPG) DeductCredits(ctx context.Context, userID string, amount int) (int, bool, error) {
	var (
		ok        bool
		remaining int
	)
	err := r.db.QueryRow(ctx, sqlinline.QDeductCredits, userID, amount).Scan(&ok, &remaining)
	if err != nil {
		if infra.IsNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("deduct credits: %w", err)
	}
	return remaining, ok, nil
}

// SetPlanCredits creates or overwrites a profile's plan and balance.
func (r *ProfileRepositoryPG) SetPlanCredits(ctx context.Context, userID, email string, plan domain.Plan, credits int) (*domain.Profile, error) {
	return scanProfile(r.db.QueryRow(ctx, sqlinline.QUpsertProfileGrant, userID, email, string(plan), credits))
}

// AddCredits adjusts a balance by delta, never below zero.
func (r *ProfileRepositoryPG) AddCredits(ctx context.Context, userID string, delta int) (*domain.Profile, error) {
	return scanProfile(r.db.QueryRow(ctx, sqlinline.QAddCredits, userID, delta))
}

func scanProfile(row interface{ Scan(...any) error }) (*domain.Profile, error) {
	var (
		p    domain.Profile
		plan string
	)
	if err := row.Scan(&p.UserID, &p.Email, &plan, &p.Credits); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	p.Plan = domain.ParsePlan(plan)
	return &p, nil
}

var _ domain.CreditStore = (*ProfileRepositoryPG)(nil)
