// Package worker finishes submitted tasks on the server: it polls the
// provider, saves the results and records the terminal state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tryon/internal/domain"
	"tryon/internal/notify"
	"tryon/internal/persist"
	"tryon/internal/poller"
	"tryon/internal/queue"
)

const timeoutMessage = domain.TimeoutMessage

// Poller waits for a provider task to finish.
type Poller interface {
	Poll(ctx context.Context, taskID string, kind domain.Kind, onProgress func(int)) ([]string, error)
}

// Persister saves one result.
type Persister interface {
	Persist(ctx context.Context, req persist.Request) (*domain.GalleryItem, error)
}

// Options configures a Service.
type Options struct {
	Tasks     domain.TaskRepository
	Gallery   domain.GalleryRepository
	Poller    Poller
	Persister Persister
	Notifier  notify.Notifier
	Logger    zerolog.Logger
}

// Service handles task messages. Each task id runs at most one loop per process.
type Service struct {
	tasks     domain.TaskRepository
	gallery   domain.GalleryRepository
	poller    Poller
	persister Persister
	notifier  notify.Notifier
	logger    zerolog.Logger

	active sync.Map
}

// New builds a Service.
func New(opts Options) *Service {
	s := &Service{
		tasks:     opts.Tasks,
		gallery:   opts.Gallery,
		poller:    opts.Poller,
		persister: opts.Persister,
		notifier:  opts.Notifier,
		logger:    opts.Logger,
	}
	if s.notifier == nil {
		s.notifier = notify.Noop{}
	}
	return s
}

// Active reports whether taskID is being processed right now.
func (s *Service) Active(taskID string) bool {
	_, ok := s.active.Load(taskID)
	return ok
}

// Handle is a queue.Handler. A nil return acknowledges the message; errors
// are returned only for conditions a redelivery can fix.
func (s *Service) Handle(ctx context.Context, msg queue.TaskMessage) error {
	if _, loaded := s.active.LoadOrStore(msg.TaskID, struct{}{}); loaded {
		s.logger.Debug().Str("task_id", msg.TaskID).Msg("worker: task already in flight")
		return nil
	}
	defer s.active.Delete(msg.TaskID)

	log := s.logger.With().
		Str("task_id", msg.TaskID).
		Str("user_id", msg.OwnerID).
		Str("kind", string(msg.Kind)).
		Str("model", msg.EffectiveModel).
		Logger()

	task := msg.Task()
	if err := s.tasks.Create(ctx, &task); err != nil {
		return fmt.Errorf("worker: record task: %w", err)
	}
	stored, err := s.tasks.Get(ctx, msg.OwnerID, msg.TaskID)
	if err != nil {
		return fmt.Errorf("worker: load task: %w", err)
	}
	if stored.Status.Terminal() {
		log.Debug().Str("status", string(stored.Status)).Msg("worker: task already finished")
		return nil
	}
	task = *stored

	start := time.Now()
	urls, err := s.poller.Poll(ctx, task.TaskID, task.Kind, func(p int) {
		if uerr := s.tasks.UpdateProgress(ctx, task.TaskID, p); uerr != nil {
			log.Warn().Err(uerr).Int("progress", p).Msg("worker: progress update failed")
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.fail(ctx, log, &task, msg, err)
	}
	log.Info().Int("results", len(urls)).Dur("elapsed", time.Since(start)).Msg("worker: task completed")

	if err := s.tasks.ClaimPersist(ctx, task.TaskID); err != nil {
		if errors.Is(err, domain.ErrAlreadyPersisted) {
			return s.recover(ctx, log, &task)
		}
		return fmt.Errorf("worker: claim persist: %w", err)
	}

	final := make([]string, 0, len(urls))
	var ids []string
	for i, u := range urls {
		item, perr := s.persister.Persist(ctx, persist.Request{
			ResultURL: u,
			Kind:      task.Kind,
			OwnerID:   task.OwnerID,
			Plan:      msg.Plan,
			TaskID:    task.TaskID,
			Index:     i,
		})
		switch {
		case perr == nil:
			final = append(final, item.URL)
			ids = append(ids, item.ID)
		case item != nil:
			// provider or stored url, the result is still usable
			log.Error().Err(perr).Int("index", i).Msg("worker: result not fully saved")
			final = append(final, item.URL)
		default:
			log.Error().Err(perr).Int("index", i).Msg("worker: result not saved")
			final = append(final, u)
		}
	}

	task.Observe(domain.TaskStatusCompleted, 100, final, "")
	task.GalleryItemIDs = ids
	if err := s.tasks.MarkTerminal(ctx, &task); err != nil {
		log.Error().Err(err).Msg("worker: mark completed failed")
	}

	s.notify(ctx, log, msg, notify.Completion{URLs: final})
	return nil
}

func (s *Service) fail(ctx context.Context, log zerolog.Logger, task *domain.GenerationTask, msg queue.TaskMessage, cause error) error {
	var failed *poller.TaskFailedError
	switch {
	case errors.Is(cause, domain.ErrPollTimeout):
		return s.timeout(ctx, log, task, cause)
	case errors.As(cause, &failed):
		log.Info().Str("reason", failed.Message).Msg("worker: task failed")
	default:
		return fmt.Errorf("worker: poll: %w", cause)
	}

	task.Observe(domain.TaskStatusFailed, task.Progress, nil, failed.Message)
	if err := s.tasks.MarkTerminal(ctx, task); err != nil {
		return fmt.Errorf("worker: mark failed: %w", err)
	}
	s.notify(ctx, log, msg, notify.Completion{Failed: true, Message: failed.Message})
	return nil
}

// timeout flags a task the provider may still finish. It stays processing and
// no email goes out; the status endpoint requeues it once the provider is done.
func (s *Service) timeout(ctx context.Context, log zerolog.Logger, task *domain.GenerationTask, cause error) error {
	log.Warn().Err(cause).Int("progress", task.Progress).Msg("worker: task timed out")
	task.TimedOut = true
	task.Error = timeoutMessage
	if err := s.tasks.MarkTimedOut(ctx, task.TaskID, timeoutMessage); err != nil {
		return fmt.Errorf("worker: mark timed out: %w", err)
	}
	return nil
}

// recover closes a task whose results were saved by an earlier run that
// stopped before recording the terminal state.
func (s *Service) recover(ctx context.Context, log zerolog.Logger, task *domain.GenerationTask) error {
	items, err := s.gallery.ListByTask(ctx, task.OwnerID, task.TaskID)
	if err != nil {
		return fmt.Errorf("worker: list saved results: %w", err)
	}
	urls := make([]string, 0, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		urls = append(urls, it.URL)
		ids = append(ids, it.ID)
	}
	task.Observe(domain.TaskStatusCompleted, 100, urls, "")
	task.GalleryItemIDs = ids
	if err := s.tasks.MarkTerminal(ctx, task); err != nil {
		return fmt.Errorf("worker: mark recovered task: %w", err)
	}
	log.Info().Int("items", len(items)).Msg("worker: results already saved")
	return nil
}

func (s *Service) notify(ctx context.Context, log zerolog.Logger, msg queue.TaskMessage, c notify.Completion) {
	c.Email = msg.Email
	c.Locale = msg.Locale
	c.Kind = string(msg.Kind)
	c.TaskID = msg.TaskID
	if err := s.notifier.TaskFinished(ctx, c); err != nil {
		log.Warn().Err(err).Msg("worker: notify failed")
	}
}
