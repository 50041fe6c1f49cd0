package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"tryon/internal/domain"
	"tryon/internal/i18n"
	"tryon/internal/middleware"
	"tryon/internal/orchestrator"
	"tryon/internal/queue"
)

const defaultVideoDuration = 5

type imageGenerateRequest struct {
	TemplateID     string   `json:"templateId" validate:"omitempty,max=64"`
	Prompt         string   `json:"prompt" validate:"required,max=4000"`
	ImageInputs    []string `json:"imageInputs" validate:"max=8,dive,url"`
	AspectRatio    string   `json:"aspectRatio" validate:"omitempty,oneof=auto 1:1 2:3 3:2 3:4 4:3 4:5 5:4 9:16 16:9 21:9"`
	Resolution     string   `json:"resolution"`
	NumGenerations int      `json:"numGenerations" validate:"omitempty,min=1,max=4"`
}

type videoGenerateRequest struct {
	TemplateID     string `json:"templateId" validate:"omitempty,max=64"`
	Prompt         string `json:"prompt" validate:"required_without=ImageInput,max=4000"`
	ImageInput     string `json:"imageInput" validate:"omitempty,url"`
	AspectRatio    string `json:"aspectRatio" validate:"omitempty,oneof=1:1 9:16 16:9"`
	Duration       int    `json:"duration" validate:"omitempty,oneof=5 10 15"`
	Sound          bool   `json:"sound"`
	NumGenerations int    `json:"numGenerations" validate:"omitempty,min=1,max=4"`
}

type taskDTO struct {
	TaskID       string `json:"taskId"`
	Model        string `json:"model"`
	FallbackUsed bool   `json:"fallbackUsed"`
}

type generateResponse struct {
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	TaskIDs      []string  `json:"taskIds"`
	Tasks        []taskDTO `json:"tasks"`
	FallbackUsed bool      `json:"fallbackUsed"`
	Charged      int       `json:"charged"`
	Remaining    int       `json:"remaining"`
	Plan         string    `json:"plan"`
	Resolution   string    `json:"resolution,omitempty"`
	Warning      string    `json:"warning,omitempty"`
}

// GenerateImage handles POST /generate/image.
func (a *App) GenerateImage(w http.ResponseWriter, r *http.Request) {
	account, ok := a.currentAccount(r)
	if !ok {
		a.fail(w, r, domain.ErrUnauthorized)
		return
	}
	var req imageGenerateRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	sub, err := a.Generator.SubmitImage(r.Context(), orchestrator.ImageRequest{
		Account:        account,
		TemplateID:     req.TemplateID,
		Prompt:         req.Prompt,
		ImageInputs:    req.ImageInputs,
		AspectRatio:    req.AspectRatio,
		Resolution:     req.Resolution,
		NumGenerations: req.NumGenerations,
	})
	a.respondSubmission(w, r, account, sub, err)
}

// GenerateVideo handles POST /generate/video.
func (a *App) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	account, ok := a.currentAccount(r)
	if !ok {
		a.fail(w, r, domain.ErrUnauthorized)
		return
	}
	var req videoGenerateRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Duration == 0 {
		req.Duration = defaultVideoDuration
	}
	sub, err := a.Generator.SubmitVideo(r.Context(), orchestrator.VideoRequest{
		Account:        account,
		TemplateID:     req.TemplateID,
		Prompt:         req.Prompt,
		ImageInput:     req.ImageInput,
		AspectRatio:    req.AspectRatio,
		Duration:       req.Duration,
		Sound:          req.Sound,
		NumGenerations: req.NumGenerations,
	})
	a.respondSubmission(w, r, account, sub, err)
}

func (a *App) respondSubmission(w http.ResponseWriter, r *http.Request, account domain.Account, sub *orchestrator.Submission, err error) {
	var chargeErr *orchestrator.ChargeError
	if err != nil && !(sub != nil && errors.As(err, &chargeErr)) {
		a.fail(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	log := a.Logger.With().
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("user_id", account.UserID).
		Logger()
	if chargeErr != nil {
		// the tasks run anyway; the user keeps the results
		log.Error().Err(chargeErr).Strs("task_ids", sub.TaskIDs).Msg("generation not charged")
	}

	a.track(r.Context(), log, account, locale, sub)

	resp := generateResponse{
		Kind:         string(sub.Kind),
		Status:       string(domain.TaskStatusProcessing),
		TaskIDs:      sub.TaskIDs,
		FallbackUsed: sub.FallbackUsed,
		Charged:      sub.Charged,
		Remaining:    sub.Remaining,
		Plan:         string(sub.Plan),
		Resolution:   sub.Resolution,
	}
	for _, t := range sub.Tasks {
		resp.Tasks = append(resp.Tasks, taskDTO{TaskID: t.TaskID, Model: t.EffectiveModel, FallbackUsed: t.FallbackUsed()})
	}
	resp.Warning = submissionWarning(locale, sub)
	a.json(w, http.StatusOK, resp)
}

// submissionWarning is the localized counterpart of sub.Warning.
func submissionWarning(locale string, sub *orchestrator.Submission) string {
	var parts []string
	if started := len(sub.TaskIDs); started < sub.Requested {
		parts = append(parts, i18n.T(locale, i18n.MsgPartialBatch, started, sub.Requested))
	}
	if sub.FallbackUsed {
		parts = append(parts, i18n.T(locale, i18n.MsgFallbackUsed))
	}
	return strings.Join(parts, " ")
}

// track records each task for ownership checks and hands it to the worker.
// Failures here never undo the submission.
func (a *App) track(ctx context.Context, log zerolog.Logger, account domain.Account, locale string, sub *orchestrator.Submission) {
	for i := range sub.Tasks {
		task := sub.Tasks[i]
		if a.Tasks != nil {
			if err := a.Tasks.Create(ctx, &task); err != nil {
				log.Error().Err(err).Str("task_id", task.TaskID).Msg("record task failed")
			}
		}
		if a.Publisher == nil {
			continue
		}
		msg := queue.MessageFromTask(task, sub.Plan, account.Email, locale)
		if err := a.Publisher.PublishTask(ctx, msg); err != nil {
			log.Error().Err(err).Str("task_id", task.TaskID).Msg("enqueue task failed")
		}
	}
}
