// Package orchestrator turns a generation request into provider tasks and
// charges credits once the provider has accepted work.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tryon/internal/credits"
	"tryon/internal/domain"
	"tryon/internal/modelpolicy"
	"tryon/internal/providers/kie"
)

// Provider is the part of the provider client the orchestrator needs.
type Provider interface {
	SubmitImageJob(ctx context.Context, job kie.ImageJob) (string, error)
	SubmitVideoJob(ctx context.Context, job kie.VideoJob) (string, error)
}

// Ledger authorizes and charges credits.
type Ledger interface {
	Authorize(ctx context.Context, account domain.Account, cost int) (bool, credits.Balance, error)
	Deduct(ctx context.Context, account domain.Account, amount int) (credits.DeductResult, error)
}

// PolicyResolver maps templates to models.
type PolicyResolver interface {
	ResolveImageModel(templateID, requestedResolution string) modelpolicy.ImageChoice
	ResolveVideoModel(templateID string, hasImageInput bool) modelpolicy.VideoChoice
}

// Options configures an Orchestrator.
type Options struct {
	Provider Provider
	Ledger   Ledger
	Policies PolicyResolver
	Logger   zerolog.Logger
	// ChargeSubmittedOnly bills only the generations the provider accepted
	// instead of the full requested count.
	ChargeSubmittedOnly bool
	Now                 func() time.Time
}

// Orchestrator submits generation jobs.
type Orchestrator struct {
	provider            Provider
	ledger              Ledger
	policies            PolicyResolver
	logger              zerolog.Logger
	chargeSubmittedOnly bool
	now                 func() time.Time
}

// New builds an Orchestrator.
func New(opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		provider:            opts.Provider,
		ledger:              opts.Ledger,
		policies:            opts.Policies,
		logger:              opts.Logger,
		chargeSubmittedOnly: opts.ChargeSubmittedOnly,
		now:                 now,
	}
}

// ImageRequest is a request for one or more images.
type ImageRequest struct {
	Account        domain.Account
	TemplateID     string
	Prompt         string
	ImageInputs    []string
	AspectRatio    string
	Resolution     string
	NumGenerations int
}

// VideoRequest is a request for one or more videos.
type VideoRequest struct {
	Account        domain.Account
	TemplateID     string
	Prompt         string
	ImageInput     string
	AspectRatio    string
	Duration       int
	Sound          bool
	NumGenerations int
}

// Submission is what the caller gets back after the provider accepted work.
type Submission struct {
	Kind         domain.Kind
	TaskIDs      []string
	Tasks        []domain.GenerationTask
	Requested    int
	Charged      int
	Remaining    int
	Plan         domain.Plan
	Resolution   string
	FallbackUsed bool
	// Warning summarizes a partial batch and a model fallback for logs.
	Warning string
}

// ChargeError is returned together with a Submission when tasks were started
// but the credits could not be taken. The tasks keep running.
type ChargeError struct {
	Amount int
	Err    error
}

func (e *ChargeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("charge of %d credits rejected", e.Amount)
	}
	return fmt.Sprintf("charge of %d credits failed: %v", e.Amount, e.Err)
}

func (e *ChargeError) Unwrap() error { return e.Err }

// SubmitImage resolves the model, authorizes the cost and starts the image jobs.
func (o *Orchestrator) SubmitImage(ctx context.Context, req ImageRequest) (*Submission, error) {
	if strings.TrimSpace(req.Account.UserID) == "" {
		return nil, domain.ErrUnauthorized
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrInvalidRequest)
	}
	count := normalizeCount(req.NumGenerations)
	if count > credits.MaxGenerationsPerRequest {
		return nil, fmt.Errorf("%w: at most %d generations per request", domain.ErrInvalidRequest, credits.MaxGenerationsPerRequest)
	}

	choice := o.policies.ResolveImageModel(req.TemplateID, req.Resolution)
	unitCost := credits.ImageCost(choice.Resolution, 1)

	submit := func(ctx context.Context, model string) (string, error) {
		return o.provider.SubmitImageJob(ctx, kie.ImageJob{
			Model:       model,
			Prompt:      req.Prompt,
			ImageInputs: req.ImageInputs,
			AspectRatio: req.AspectRatio,
			Resolution:  choice.Resolution,
		})
	}

	sub, err := o.run(ctx, batch{
		account:    req.Account,
		kind:       domain.KindImage,
		templateID: req.TemplateID,
		tool:       "image",
		count:      count,
		unitCost:   unitCost,
		preferred:  choice.ModelID,
		fallback:   choice.DefaultModelID,
		submit:     submit,
	})
	if sub != nil {
		sub.Resolution = choice.Resolution
	}
	return sub, err
}

// SubmitVideo resolves the model, authorizes the cost and starts the video jobs.
func (o *Orchestrator) SubmitVideo(ctx context.Context, req VideoRequest) (*Submission, error) {
	if strings.TrimSpace(req.Account.UserID) == "" {
		return nil, domain.ErrUnauthorized
	}
	if strings.TrimSpace(req.Prompt) == "" && strings.TrimSpace(req.ImageInput) == "" {
		return nil, fmt.Errorf("%w: prompt or image is required", domain.ErrInvalidRequest)
	}
	count := normalizeCount(req.NumGenerations)
	if count > credits.MaxGenerationsPerRequest {
		return nil, fmt.Errorf("%w: at most %d generations per request", domain.ErrInvalidRequest, credits.MaxGenerationsPerRequest)
	}
	unitCost, ok := credits.VideoCost(req.Duration)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported duration %ds", domain.ErrInvalidRequest, req.Duration)
	}

	hasImage := strings.TrimSpace(req.ImageInput) != ""
	choice := o.policies.ResolveVideoModel(req.TemplateID, hasImage)
	tool := "text-to-video"
	if hasImage {
		tool = "image-to-video"
	}

	submit := func(ctx context.Context, model string) (string, error) {
		return o.provider.SubmitVideoJob(ctx, kie.VideoJob{
			Model:       model,
			Prompt:      req.Prompt,
			ImageInput:  req.ImageInput,
			AspectRatio: req.AspectRatio,
			Duration:    req.Duration,
			Sound:       req.Sound,
		})
	}

	return o.run(ctx, batch{
		account:    req.Account,
		kind:       domain.KindVideo,
		templateID: req.TemplateID,
		tool:       tool,
		count:      count,
		unitCost:   unitCost,
		preferred:  choice.ModelID,
		fallback:   choice.DefaultModelID,
		submit:     submit,
	})
}

type batch struct {
	account    domain.Account
	kind       domain.Kind
	templateID string
	tool       string
	count      int
	unitCost   int
	preferred  string
	fallback   string
	submit     SubmitFunc
}

type slot struct {
	result FallbackResult
	err    error
}

func (o *Orchestrator) run(ctx context.Context, b batch) (*Submission, error) {
	cost := b.unitCost * b.count
	ok, bal, err := o.ledger.Authorize(ctx, b.account, cost)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &credits.InsufficientCreditsError{Required: cost, Available: bal.Credits}
	}
	if max := credits.EntitlementsFor(bal.Plan).MaxParallel; b.count > max {
		return nil, fmt.Errorf("%w: plan %s allows %d generations per request", domain.ErrInvalidRequest, bal.Plan, max)
	}

	// each goroutine keeps its error in its own slot so one rejection neither
	// cancels nor hides the others; Wait only joins
	slots := make([]slot, b.count)
	var g errgroup.Group
	for i := range slots {
		g.Go(func() error {
			res, err := o.SubmitWithFallback(ctx, FallbackRequest{
				PreferredModel: b.preferred,
				DefaultModel:   b.fallback,
				TemplateID:     b.templateID,
				Tool:           b.tool,
				Submit:         b.submit,
			})
			slots[i] = slot{result: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	now := o.now().UTC()
	sub := &Submission{Kind: b.kind, Requested: b.count, Plan: bal.Plan}
	var firstErr error
	for _, s := range slots {
		if s.err != nil {
			if firstErr == nil {
				firstErr = s.err
			}
			continue
		}
		sub.TaskIDs = append(sub.TaskIDs, s.result.TaskID)
		sub.Tasks = append(sub.Tasks, domain.GenerationTask{
			TaskID:         s.result.TaskID,
			OwnerID:        b.account.UserID,
			Kind:           b.kind,
			TemplateID:     b.templateID,
			RequestedModel: b.preferred,
			EffectiveModel: s.result.Model,
			Status:         domain.TaskStatusProcessing,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if s.result.FallbackUsed {
			sub.FallbackUsed = true
		}
	}

	if len(sub.TaskIDs) == 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderFailure, firstErr)
	}

	var warnings []string
	if missing := b.count - len(sub.TaskIDs); missing > 0 {
		warnings = append(warnings, fmt.Sprintf("%d of %d generations could not be started", missing, b.count))
		o.logger.Warn().
			Err(firstErr).
			Str("user_id", b.account.UserID).
			Str("template", b.templateID).
			Str("tool", b.tool).
			Int("requested", b.count).
			Int("submitted", len(sub.TaskIDs)).
			Msg("partial batch submission")
	}
	if sub.FallbackUsed {
		warnings = append(warnings, fmt.Sprintf("model %s was unavailable, used %s", b.preferred, b.fallback))
	}
	sub.Warning = strings.Join(warnings, "; ")

	charge := cost
	if o.chargeSubmittedOnly {
		charge = b.unitCost * len(sub.TaskIDs)
	}
	res, err := o.ledger.Deduct(ctx, b.account, charge)
	if err != nil || !res.Success {
		o.logger.Error().
			Err(err).
			Str("user_id", b.account.UserID).
			Strs("task_ids", sub.TaskIDs).
			Int("amount", charge).
			Msg("tasks started without charge")
		sub.Remaining = res.Remaining
		return sub, &ChargeError{Amount: charge, Err: err}
	}
	sub.Charged = charge
	sub.Remaining = res.Remaining

	o.logger.Info().
		Str("user_id", b.account.UserID).
		Str("kind", string(b.kind)).
		Str("template", b.templateID).
		Strs("task_ids", sub.TaskIDs).
		Int("charged", charge).
		Bool("fallback", sub.FallbackUsed).
		Msg("generation submitted")
	return sub, nil
}

func normalizeCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
