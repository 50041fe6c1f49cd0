package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SubmitFunc submits one job with the given model and returns the provider task id.
type SubmitFunc func(ctx context.Context, model string) (string, error)

// FallbackRequest describes one submission with an optional default model to retry with.
type FallbackRequest struct {
	PreferredModel string
	DefaultModel   string
	TemplateID     string
	Tool           string
	Submit         SubmitFunc
}

// FallbackResult reports which model the provider accepted.
type FallbackResult struct {
	TaskID       string
	Model        string
	FallbackUsed bool
}

// SubmitWithFallback submits with the preferred model and, when the provider
// rejects it and a different default exists, retries exactly once with the
// default. When both models are the same there is a single attempt.
func (o *Orchestrator) SubmitWithFallback(ctx context.Context, req FallbackRequest) (FallbackResult, error) {
	if req.Submit == nil {
		return FallbackResult{}, errors.New("orchestrator: submit func is required")
	}
	preferred := strings.TrimSpace(req.PreferredModel)
	fallback := strings.TrimSpace(req.DefaultModel)
	if preferred == "" {
		preferred = fallback
	}
	if preferred == "" {
		return FallbackResult{}, errors.New("orchestrator: no model to submit with")
	}

	taskID, err := req.Submit(ctx, preferred)
	if err == nil {
		return FallbackResult{TaskID: taskID, Model: preferred}, nil
	}
	if fallback == "" || fallback == preferred {
		return FallbackResult{}, err
	}
	if ctx.Err() != nil {
		return FallbackResult{}, err
	}

	o.logger.Warn().
		Err(err).
		Str("model", preferred).
		Str("fallback_model", fallback).
		Str("template", req.TemplateID).
		Str("tool", req.Tool).
		Msg("preferred model rejected, retrying with default")

	taskID, fbErr := req.Submit(ctx, fallback)
	if fbErr != nil {
		o.logger.Error().
			Err(fbErr).
			Str("model", fallback).
			Str("template", req.TemplateID).
			Str("tool", req.Tool).
			Msg("default model rejected")
		return FallbackResult{}, fmt.Errorf("submit with %s failed after %s was rejected: %w", fallback, preferred, fbErr)
	}
	return FallbackResult{TaskID: taskID, Model: fallback, FallbackUsed: true}, nil
}
