package handlers

import (
	"net/http"

	"tryon/internal/credits"
	"tryon/internal/domain"
)

type creditsResponse struct {
	Credits        int    `json:"credits"`
	Plan           string `json:"plan"`
	IsUnlimited    bool   `json:"isUnlimited"`
	MonthlyCredits int    `json:"monthlyCredits"`
	MaxParallel    int    `json:"maxParallel"`
	Watermark      bool   `json:"watermark"`
}

// Credits handles GET /credits.
func (a *App) Credits(w http.ResponseWriter, r *http.Request) {
	account, ok := a.currentAccount(r)
	if !ok {
		a.fail(w, r, domain.ErrUnauthorized)
		return
	}
	bal, err := a.Balances.Balance(r.Context(), account)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ent := credits.EntitlementsFor(bal.Plan)
	a.json(w, http.StatusOK, creditsResponse{
		Credits:        bal.Credits,
		Plan:           string(bal.Plan),
		IsUnlimited:    bal.IsUnlimited,
		MonthlyCredits: ent.MonthlyCredits,
		MaxParallel:    ent.MaxParallel,
		Watermark:      ent.Watermark,
	})
}
