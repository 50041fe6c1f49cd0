package handlers

import (
	"net/http"
	"strings"
	"time"

	"tryon/internal/domain"
	"tryon/internal/i18n"
	"tryon/internal/middleware"
	"tryon/internal/queue"
)

const noResultMessage = "generation finished without a result"

type galleryItemDTO struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	MimeType     string    `json:"mimeType"`
	Type         string    `json:"type"`
	CreatedAt    time.Time `json:"createdAt"`
}

type statusResponse struct {
	TaskID         string           `json:"taskId"`
	Kind           string           `json:"kind"`
	Status         string           `json:"status"`
	Progress       int              `json:"progress"`
	ResultURLs     []string         `json:"resultUrls"`
	Error          string           `json:"error,omitempty"`
	Model          string           `json:"model"`
	RequestedModel string           `json:"requestedModel"`
	FallbackUsed   bool             `json:"fallbackUsed"`
	TimedOut       bool             `json:"timedOut"`
	Saved          bool             `json:"saved"`
	Items          []galleryItemDTO `json:"items,omitempty"`
}

// GenerateStatus handles GET /generate/status?taskId=. Only the task owner
// sees it; while the task is processing the provider is asked directly, also
// after the worker gave up polling it.
func (a *App) GenerateStatus(w http.ResponseWriter, r *http.Request) {
	account, ok := a.currentAccount(r)
	if !ok {
		a.fail(w, r, domain.ErrUnauthorized)
		return
	}
	taskID := strings.TrimSpace(r.URL.Query().Get("taskId"))
	if taskID == "" {
		a.fail(w, r, domain.ErrInvalidRequest)
		return
	}
	task, err := a.Tasks.Get(r.Context(), account.UserID, taskID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	timedOut := task.TimedOut
	if task.Status == domain.TaskStatusProcessing && a.Status != nil {
		a.refresh(r, task)
	}
	if timedOut && task.Status.Terminal() {
		a.requeue(r, account, task)
	}

	resp := statusResponse{
		TaskID:         task.TaskID,
		Kind:           string(task.Kind),
		Status:         string(task.Status),
		Progress:       task.Progress,
		ResultURLs:     task.ResultURLs,
		Error:          task.Error,
		Model:          task.EffectiveModel,
		RequestedModel: task.RequestedModel,
		FallbackUsed:   task.FallbackUsed(),
		TimedOut:       task.TimedOut,
		Saved:          len(task.GalleryItemIDs) > 0,
	}
	if resp.ResultURLs == nil {
		resp.ResultURLs = []string{}
	}
	if resp.TimedOut {
		resp.Error = i18n.T(middleware.LocaleFromContext(r.Context()), i18n.MsgPollTimeout)
	}
	if resp.Saved && a.Gallery != nil {
		items, err := a.Gallery.ListByTask(r.Context(), account.UserID, taskID)
		if err != nil {
			a.Logger.Warn().Err(err).Str("task_id", taskID).Msg("status: list gallery items failed")
		}
		for _, it := range items {
			resp.Items = append(resp.Items, galleryItemDTO{
				ID:           it.ID,
				URL:          it.URL,
				ThumbnailURL: it.ThumbnailURL,
				MimeType:     it.MimeType,
				Type:         string(it.Type),
				CreatedAt:    it.CreatedAt,
			})
		}
	}
	a.json(w, http.StatusOK, resp)
}

// refresh folds one live provider snapshot into task. The worker stays the
// only writer of terminal state; progress is stored best-effort.
func (a *App) refresh(r *http.Request, task *domain.GenerationTask) {
	log := a.Logger.With().
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("task_id", task.TaskID).
		Logger()
	st, err := a.Status.QueryStatus(r.Context(), task.TaskID)
	if err != nil {
		log.Warn().Err(err).Msg("status: live query failed, serving stored state")
		return
	}
	if st.Status == domain.TaskStatusCompleted && len(st.ResultURLs) == 0 {
		task.Observe(domain.TaskStatusFailed, st.Progress, nil, noResultMessage)
		return
	}
	before := task.Progress
	task.Observe(st.Status, st.Progress, st.ResultURLs, st.Error)
	if task.Status == domain.TaskStatusFailed && task.Error == "" {
		task.Error = "generation failed"
	}
	if task.Status == domain.TaskStatusProcessing && task.Progress > before {
		if err := a.Tasks.UpdateProgress(r.Context(), task.TaskID, task.Progress); err != nil {
			log.Warn().Err(err).Msg("status: progress update failed")
		}
	}
}

// requeue hands a timed-out task back to the worker once the provider is done
// with it, so the results get saved the usual way. The claim lets only one
// status read queue it.
func (a *App) requeue(r *http.Request, account domain.Account, task *domain.GenerationTask) {
	if a.Publisher == nil {
		return
	}
	ctx := r.Context()
	log := a.Logger.With().
		Str("request_id", middleware.RequestIDFromContext(ctx)).
		Str("task_id", task.TaskID).
		Logger()
	ok, err := a.Tasks.ClaimRepoll(ctx, task.TaskID)
	if err != nil {
		log.Warn().Err(err).Msg("status: claim repoll failed")
		return
	}
	if !ok {
		return
	}
	plan := domain.PlanFree
	if a.Balances != nil {
		bal, err := a.Balances.Balance(ctx, account)
		if err != nil {
			log.Warn().Err(err).Msg("status: plan lookup failed, requeueing as free")
		} else {
			plan = bal.Plan
		}
	}
	msg := queue.MessageFromTask(*task, plan, account.Email, middleware.LocaleFromContext(ctx))
	if err := a.Publisher.PublishTask(ctx, msg); err != nil {
		log.Error().Err(err).Msg("status: requeue failed")
		if merr := a.Tasks.MarkTimedOut(ctx, task.TaskID, domain.TimeoutMessage); merr != nil {
			log.Error().Err(merr).Msg("status: restore timeout flag failed")
		}
		return
	}
	log.Info().Str("status", string(task.Status)).Msg("status: timed out task requeued")
}
