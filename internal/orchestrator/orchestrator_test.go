package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tryon/internal/credits"
	"tryon/internal/domain"
	"tryon/internal/modelpolicy"
	"tryon/internal/providers/kie"
)

type fakeProvider struct {
	mu       sync.Mutex
	reject   map[string]error
	failNth  map[int]bool
	calls    []string
	videos   []kie.VideoJob
	images   []kie.ImageJob
	barrier  *sync.WaitGroup
	released chan struct{}
}

func (f *fakeProvider) submit(model string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, model)
	n := len(f.calls)
	err := f.reject[model]
	fail := f.failNth[n]
	f.mu.Unlock()

	if f.barrier != nil {
		f.barrier.Done()
		select {
		case <-f.released:
		case <-time.After(2 * time.Second):
			return "", errors.New("submissions did not run concurrently")
		}
	}
	if err != nil {
		return "", err
	}
	if fail {
		return "", &kie.ProviderError{Op: "create task", StatusCode: 200, Code: 500, Message: "server busy"}
	}
	return fmt.Sprintf("task-%d", n), nil
}

func (f *fakeProvider) SubmitImageJob(ctx context.Context, job kie.ImageJob) (string, error) {
	f.mu.Lock()
	f.images = append(f.images, job)
	f.mu.Unlock()
	return f.submit(job.Model)
}

func (f *fakeProvider) SubmitVideoJob(ctx context.Context, job kie.VideoJob) (string, error) {
	f.mu.Lock()
	f.videos = append(f.videos, job)
	f.mu.Unlock()
	return f.submit(job.Model)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeLedger struct {
	balance   credits.Balance
	deductErr error
	deducted  []int
}

func (f *fakeLedger) Authorize(ctx context.Context, account domain.Account, cost int) (bool, credits.Balance, error) {
	return f.balance.IsUnlimited || f.balance.Credits >= cost, f.balance, nil
}

func (f *fakeLedger) Deduct(ctx context.Context, account domain.Account, amount int) (credits.DeductResult, error) {
	if f.deductErr != nil {
		return credits.DeductResult{}, f.deductErr
	}
	f.deducted = append(f.deducted, amount)
	f.balance.Credits -= amount
	return credits.DeductResult{Success: true, Remaining: f.balance.Credits}, nil
}

var account = domain.Account{UserID: "user-1", Email: "user@example.com"}

func newTestOrchestrator(p Provider, l Ledger, chargeSubmittedOnly bool) *Orchestrator {
	return New(Options{
		Provider:            p,
		Ledger:              l,
		Policies:            modelpolicy.NewResolver(nil),
		Logger:              zerolog.Nop(),
		ChargeSubmittedOnly: chargeSubmittedOnly,
	})
}

func TestSubmitWithFallbackEqualModelsSingleAttempt(t *testing.T) {
	o := newTestOrchestrator(nil, nil, false)
	calls := 0
	rejection := errors.New("rejected")
	_, err := o.SubmitWithFallback(context.Background(), FallbackRequest{
		PreferredModel: "m",
		DefaultModel:   "m",
		Submit: func(ctx context.Context, model string) (string, error) {
			calls++
			return "", rejection
		},
	})
	if !errors.Is(err, rejection) {
		t.Fatalf("expected original error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one submission, got %d", calls)
	}
}

func TestSubmitWithFallbackRetriesOnce(t *testing.T) {
	o := newTestOrchestrator(nil, nil, false)
	var models []string
	res, err := o.SubmitWithFallback(context.Background(), FallbackRequest{
		PreferredModel: "preferred",
		DefaultModel:   "default",
		Submit: func(ctx context.Context, model string) (string, error) {
			models = append(models, model)
			if model == "preferred" {
				return "", errors.New("model unavailable")
			}
			return "task-9", nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TaskID != "task-9" || res.Model != "default" || !res.FallbackUsed {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(models) != 2 || models[0] != "preferred" || models[1] != "default" {
		t.Fatalf("unexpected submission order: %v", models)
	}
}

func TestSubmitWithFallbackBothRejected(t *testing.T) {
	o := newTestOrchestrator(nil, nil, false)
	calls := 0
	_, err := o.SubmitWithFallback(context.Background(), FallbackRequest{
		PreferredModel: "a",
		DefaultModel:   "b",
		Submit: func(ctx context.Context, model string) (string, error) {
			calls++
			return "", errors.New("no")
		},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 2 {
		t.Fatalf("expected two attempts, got %d", calls)
	}
}

func TestSubmitImageHappyPath(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{balance: credits.Balance{Credits: 20, Plan: domain.PlanPro}}
	o := newTestOrchestrator(provider, ledger, false)

	sub, err := o.SubmitImage(context.Background(), ImageRequest{
		Account:        account,
		Prompt:         "linen shirt on model",
		Resolution:     "2K",
		NumGenerations: 2,
	})
	if err != nil {
		t.Fatalf("SubmitImage returned error: %v", err)
	}
	if len(sub.TaskIDs) != 2 || len(sub.Tasks) != 2 {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if sub.Charged != 6 || sub.Remaining != 14 {
		t.Fatalf("charged=%d remaining=%d, want 6 and 14", sub.Charged, sub.Remaining)
	}
	if sub.Warning != "" || sub.FallbackUsed {
		t.Fatalf("unexpected warning or fallback: %+v", sub)
	}
	for _, task := range sub.Tasks {
		if task.Status != domain.TaskStatusProcessing || task.OwnerID != account.UserID || task.Kind != domain.KindImage {
			t.Fatalf("unexpected task: %+v", task)
		}
	}
	if provider.images[0].Resolution != "2K" {
		t.Fatalf("resolution not forwarded: %+v", provider.images[0])
	}
}

func TestSubmitImageFansOutConcurrently(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(4)
	provider := &fakeProvider{barrier: &barrier, released: make(chan struct{})}
	go func() {
		barrier.Wait()
		close(provider.released)
	}()
	ledger := &fakeLedger{balance: credits.Balance{Credits: 100, Plan: domain.PlanBusiness}}
	o := newTestOrchestrator(provider, ledger, false)

	sub, err := o.SubmitImage(context.Background(), ImageRequest{Account: account, Prompt: "p", NumGenerations: 4})
	if err != nil {
		t.Fatalf("SubmitImage returned error: %v", err)
	}
	if len(sub.TaskIDs) != 4 {
		t.Fatalf("expected 4 task ids, got %v", sub.TaskIDs)
	}
}

func TestSubmitImagePartialSuccessChargesFullByDefault(t *testing.T) {
	provider := &fakeProvider{failNth: map[int]bool{2: true}}
	ledger := &fakeLedger{balance: credits.Balance{Credits: 10, Plan: domain.PlanPro}}
	o := newTestOrchestrator(provider, ledger, false)

	sub, err := o.SubmitImage(context.Background(), ImageRequest{Account: account, Prompt: "p", NumGenerations: 4})
	if err != nil {
		t.Fatalf("SubmitImage returned error: %v", err)
	}
	if len(sub.TaskIDs) != 3 {
		t.Fatalf("expected 3 task ids, got %v", sub.TaskIDs)
	}
	if sub.Warning == "" {
		t.Fatalf("expected a partial success warning")
	}
	if sub.Charged != 4 {
		t.Fatalf("charged = %d, want 4", sub.Charged)
	}
}

func TestSubmitImagePartialSuccessChargeSubmittedOnly(t *testing.T) {
	provider := &fakeProvider{failNth: map[int]bool{1: true}}
	ledger := &fakeLedger{balance: credits.Balance{Credits: 10, Plan: domain.PlanPro}}
	o := newTestOrchestrator(provider, ledger, true)

	sub, err := o.SubmitImage(context.Background(), ImageRequest{Account: account, Prompt: "p", NumGenerations: 4})
	if err != nil {
		t.Fatalf("SubmitImage returned error: %v", err)
	}
	if sub.Charged != 3 {
		t.Fatalf("charged = %d, want 3", sub.Charged)
	}
}

func TestSubmitImageInsufficientCreditsSubmitsNothing(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{balance: credits.Balance{Credits: 2, Plan: domain.PlanPro}}
	o := newTestOrchestrator(provider, ledger, false)

	_, err := o.SubmitImage(context.Background(), ImageRequest{Account: account, Prompt: "p", Resolution: "4K"})
	var insufficient *credits.InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientCreditsError, got %v", err)
	}
	if insufficient.Required != 5 || insufficient.Available != 2 {
		t.Fatalf("unexpected detail: %+v", insufficient)
	}
	if provider.callCount() != 0 || len(ledger.deducted) != 0 {
		t.Fatalf("nothing may be submitted or deducted")
	}
}

func TestSubmitImageAllFailedChargesNothing(t *testing.T) {
	provider := &fakeProvider{reject: map[string]error{
		"nano-banana-pro": &kie.ProviderError{Op: "create task", Code: 500, Message: "down"},
	}}
	ledger := &fakeLedger{balance: credits.Balance{Credits: 10, Plan: domain.PlanPro}}
	o := newTestOrchestrator(provider, ledger, false)

	sub, err := o.SubmitImage(context.Background(), ImageRequest{Account: account, Prompt: "p", NumGenerations: 2})
	if sub != nil {
		t.Fatalf("expected no submission, got %+v", sub)
	}
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}
	if len(ledger.deducted) != 0 {
		t.Fatalf("failed submission must not charge: %v", ledger.deducted)
	}
	if provider.callCount() != 2 {
		t.Fatalf("equal preferred and default model must be tried once per generation, got %d calls", provider.callCount())
	}
}

func TestSubmitImageFallbackFlag(t *testing.T) {
	provider := &fakeProvider{reject: map[string]error{"bytedance/seedream-v4-edit": errors.New("rejected")}}
	ledger := &fakeLedger{balance: credits.Balance{Credits: 10, Plan: domain.PlanPro}}
	o := newTestOrchestrator(provider, ledger, false)

	sub, err := o.SubmitImage(context.Background(), ImageRequest{Account: account, TemplateID: "product-shot", Prompt: "p"})
	if err != nil {
		t.Fatalf("SubmitImage returned error: %v", err)
	}
	if !sub.FallbackUsed {
		t.Fatalf("expected fallback flag")
	}
	if !strings.Contains(sub.Warning, "bytedance/seedream-v4-edit") || !strings.Contains(sub.Warning, "nano-banana-pro") {
		t.Fatalf("fallback must carry a warning naming both models, got %q", sub.Warning)
	}
	task := sub.Tasks[0]
	if task.RequestedModel != "bytedance/seedream-v4-edit" || task.EffectiveModel != "nano-banana-pro" || !task.FallbackUsed() {
		t.Fatalf("unexpected task models: %+v", task)
	}
}

func TestSubmitWithoutAccountIsUnauthorized(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{balance: credits.Balance{Credits: 10}}
	o := newTestOrchestrator(provider, ledger, false)

	if _, err := o.SubmitImage(context.Background(), ImageRequest{Prompt: "p"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := o.SubmitVideo(context.Background(), VideoRequest{Prompt: "p", Duration: 5}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if provider.callCount() != 0 {
		t.Fatalf("nothing may be submitted without an account")
	}
}

func TestSubmitImageLimits(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{balance: credits.Balance{Credits: 100, Plan: domain.PlanFree}}
	o := newTestOrchestrator(provider, ledger, false)

	if _, err := o.SubmitImage(context.Background(), ImageRequest{Account: account, Prompt: "p", NumGenerations: 5}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest above the hard cap, got %v", err)
	}
	if _, err := o.SubmitImage(context.Background(), ImageRequest{Account: account, Prompt: "p", NumGenerations: 2}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest above the plan limit, got %v", err)
	}
	if provider.callCount() != 0 {
		t.Fatalf("rejected requests must not submit")
	}
}

func TestSubmitVideoCostAndModel(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{balance: credits.Balance{Credits: 50, Plan: domain.PlanStarter}}
	o := newTestOrchestrator(provider, ledger, false)

	sub, err := o.SubmitVideo(context.Background(), VideoRequest{
		Account:     account,
		Prompt:      "turn around",
		ImageInput:  "https://files.test/look.png",
		AspectRatio: "9:16",
		Duration:    10,
	})
	if err != nil {
		t.Fatalf("SubmitVideo returned error: %v", err)
	}
	if sub.Charged != 20 || sub.Kind != domain.KindVideo {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if provider.videos[0].Model != "kling-2.6/image-to-video" {
		t.Fatalf("model = %q", provider.videos[0].Model)
	}

	if _, err := o.SubmitVideo(context.Background(), VideoRequest{Account: account, Prompt: "p", Duration: 7}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for unsupported duration, got %v", err)
	}
}

func TestSubmitDeductFailureKeepsTasks(t *testing.T) {
	provider := &fakeProvider{}
	ledger := &fakeLedger{balance: credits.Balance{Credits: 10, Plan: domain.PlanPro}, deductErr: credits.ErrLedgerUnavailable}
	o := newTestOrchestrator(provider, ledger, false)

	sub, err := o.SubmitImage(context.Background(), ImageRequest{Account: account, Prompt: "p"})
	var chargeErr *ChargeError
	if !errors.As(err, &chargeErr) {
		t.Fatalf("expected ChargeError, got %v", err)
	}
	if !errors.Is(err, credits.ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable in chain")
	}
	if sub == nil || len(sub.TaskIDs) != 1 || sub.Charged != 0 {
		t.Fatalf("expected started task without charge, got %+v", sub)
	}
}
