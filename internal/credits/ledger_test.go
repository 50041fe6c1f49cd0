package credits

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"tryon/internal/domain"
)

type fakeStore struct {
	profile    *domain.Profile
	getErr     error
	deductErr  error
	getCalls   int
	deductArgs []int
}

func (f *fakeStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.profile == nil {
		return nil, domain.ErrNotFound
	}
	p := *f.profile
	return &p, nil
}

func (f *fakeStore) DeductCredits(ctx context.Context, userID string, amount int) (int, bool, error) {
	f.deductArgs = append(f.deductArgs, amount)
	if f.deductErr != nil {
		return 0, false, f.deductErr
	}
	if f.profile == nil || f.profile.Credits < amount {
		available := 0
		if f.profile != nil {
			available = f.profile.Credits
		}
		return available, false, nil
	}
	f.profile.Credits -= amount
	return f.profile.Credits, true, nil
}

func newTestLedger(store domain.CreditStore, unlimited ...string) *Ledger {
	return NewLedger(store, unlimited, zerolog.Nop())
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name    string
		credits int
		cost    int
		want    bool
	}{
		{name: "balance above cost", credits: 10, cost: 3, want: true},
		{name: "balance equals cost", credits: 3, cost: 3, want: true},
		{name: "balance below cost", credits: 2, cost: 3, want: false},
		{name: "zero balance", credits: 0, cost: 1, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{profile: &domain.Profile{UserID: "u1", Plan: domain.PlanStarter, Credits: tc.credits}}
			ledger := newTestLedger(store)
			ok, bal, err := ledger.Authorize(context.Background(), domain.Account{UserID: "u1", Email: "a@example.com"}, tc.cost)
			if err != nil {
				t.Fatalf("Authorize returned error: %v", err)
			}
			if ok != tc.want {
				t.Fatalf("Authorize() = %v, want %v", ok, tc.want)
			}
			if bal.Credits != tc.credits || bal.Plan != domain.PlanStarter {
				t.Fatalf("unexpected balance: %+v", bal)
			}
		})
	}
}

func TestUnlimitedAccountSkipsStore(t *testing.T) {
	store := &fakeStore{getErr: errors.New("must not be called")}
	ledger := newTestLedger(store, "Owner@Example.com")
	account := domain.Account{UserID: "u1", Email: " owner@example.COM "}

	ok, bal, err := ledger.Authorize(context.Background(), account, 1_000)
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if !ok || !bal.IsUnlimited || bal.Credits != UnlimitedBalance {
		t.Fatalf("expected unlimited authorization, got ok=%v bal=%+v", ok, bal)
	}

	res, err := ledger.Deduct(context.Background(), account, 50)
	if err != nil {
		t.Fatalf("Deduct returned error: %v", err)
	}
	if !res.Success || res.Remaining != UnlimitedBalance {
		t.Fatalf("unexpected deduct result: %+v", res)
	}
	if store.getCalls != 0 || len(store.deductArgs) != 0 {
		t.Fatalf("store touched for unlimited account: get=%d deduct=%v", store.getCalls, store.deductArgs)
	}
}

func TestUnlimitedMatchIsExact(t *testing.T) {
	ledger := newTestLedger(&fakeStore{}, "owner@example.com")
	if ledger.IsUnlimited(domain.Account{Email: "owner@example.com.evil"}) {
		t.Fatalf("suffix must not match")
	}
	if ledger.IsUnlimited(domain.Account{Email: ""}) {
		t.Fatalf("empty email must not match")
	}
}

func TestDeduct(t *testing.T) {
	store := &fakeStore{profile: &domain.Profile{UserID: "u1", Plan: domain.PlanFree, Credits: 5}}
	ledger := newTestLedger(store)
	account := domain.Account{UserID: "u1"}

	res, err := ledger.Deduct(context.Background(), account, 3)
	if err != nil {
		t.Fatalf("Deduct returned error: %v", err)
	}
	if !res.Success || res.Remaining != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = ledger.Deduct(context.Background(), account, 3)
	if err != nil {
		t.Fatalf("Deduct returned error: %v", err)
	}
	if res.Success || res.Remaining != 2 {
		t.Fatalf("expected rejected deduction leaving 2, got %+v", res)
	}
}

func TestDeductStoreFailureIsLedgerUnavailable(t *testing.T) {
	store := &fakeStore{deductErr: errors.New("connection reset")}
	ledger := newTestLedger(store)
	_, err := ledger.Deduct(context.Background(), domain.Account{UserID: "u1"}, 1)
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
	if errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("store failure must not look like insufficient credits")
	}
}

func TestBalanceMissingProfileReadsAsZero(t *testing.T) {
	ledger := newTestLedger(&fakeStore{})
	bal, err := ledger.Balance(context.Background(), domain.Account{UserID: "u9"})
	if err != nil {
		t.Fatalf("Balance returned error: %v", err)
	}
	if bal.Credits != 0 || bal.Plan != domain.PlanFree || bal.IsUnlimited {
		t.Fatalf("unexpected balance: %+v", bal)
	}
}

func TestBalanceRequiresUser(t *testing.T) {
	ledger := newTestLedger(&fakeStore{})
	if _, err := ledger.Balance(context.Background(), domain.Account{}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestInsufficientCreditsErrorMatchesSentinel(t *testing.T) {
	var err error = &InsufficientCreditsError{Required: 5, Available: 2}
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("expected errors.Is to match ErrInsufficientCredits")
	}
	var typed *InsufficientCreditsError
	if !errors.As(err, &typed) || typed.Required != 5 || typed.Available != 2 {
		t.Fatalf("unexpected typed error: %+v", typed)
	}
}
