// Package poller runs the bounded status loop of a single provider task.
package poller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tryon/internal/domain"
	"tryon/internal/providers/kie"
)

// ErrPollTimeout is returned when the attempt ceiling is reached before a terminal state.
var ErrPollTimeout = domain.ErrPollTimeout

const genericFailure = "generation failed"

// TaskFailedError is a terminal provider-side failure.
type TaskFailedError struct {
	TaskID  string
	Message string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Message)
}

func (e *TaskFailedError) Is(target error) bool {
	return target == domain.ErrProviderFailure
}

// StatusSource reads provider task state.
type StatusSource interface {
	QueryStatus(ctx context.Context, taskID string) (kie.Status, error)
}

// Schedule is the interval and attempt ceiling for one kind of task.
type Schedule struct {
	Interval    time.Duration
	MaxAttempts int
}

var (
	ImageSchedule = Schedule{Interval: 3 * time.Second, MaxAttempts: 80}
	VideoSchedule = Schedule{Interval: 5 * time.Second, MaxAttempts: 120}
)

// Options configures a Poller. Zero schedules use the defaults.
type Options struct {
	Source StatusSource
	Logger zerolog.Logger
	Image  Schedule
	Video  Schedule
	// Wait blocks for d or until ctx is done. Tests replace it.
	Wait func(ctx context.Context, d time.Duration) error
}

// Poller is stateless between calls; each Poll owns its own loop.
type Poller struct {
	source StatusSource
	logger zerolog.Logger
	image  Schedule
	video  Schedule
	wait   func(ctx context.Context, d time.Duration) error
}

// New builds a Poller.
func New(opts Options) *Poller {
	p := &Poller{
		source: opts.Source,
		logger: opts.Logger,
		image:  opts.Image,
		video:  opts.Video,
		wait:   opts.Wait,
	}
	if p.image.MaxAttempts <= 0 {
		p.image = ImageSchedule
	}
	if p.video.MaxAttempts <= 0 {
		p.video = VideoSchedule
	}
	if p.wait == nil {
		p.wait = sleep
	}
	return p
}

// ScheduleFor returns the schedule used for kind.
func (p *Poller) ScheduleFor(kind domain.Kind) Schedule {
	if kind == domain.KindVideo {
		return p.video
	}
	return p.image
}

// Poll queries the task until it completes, fails or the attempt ceiling is
// reached. onProgress, when set, receives a non-decreasing percentage while
// the task is processing. Cancelling ctx stops only the local loop.
func (p *Poller) Poll(ctx context.Context, taskID string, kind domain.Kind, onProgress func(int)) ([]string, error) {
	sched := p.ScheduleFor(kind)
	log := p.logger.With().Str("task_id", taskID).Str("kind", string(kind)).Logger()
	last := 0

	for attempt := 1; attempt <= sched.MaxAttempts; attempt++ {
		if err := p.wait(ctx, sched.Interval); err != nil {
			return nil, err
		}

		st, err := p.source.QueryStatus(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("status query failed")
			continue
		}

		switch st.Status {
		case domain.TaskStatusCompleted:
			if len(st.ResultURLs) == 0 {
				log.Error().Str("state", st.State).Msg("completed without result urls")
				return nil, &TaskFailedError{TaskID: taskID, Message: "generation finished without a result"}
			}
			if onProgress != nil && last < 100 {
				onProgress(100)
			}
			return st.ResultURLs, nil
		case domain.TaskStatusFailed:
			msg := strings.TrimSpace(st.Error)
			if msg == "" {
				msg = genericFailure
			}
			log.Info().Str("reason", msg).Msg("task failed")
			return nil, &TaskFailedError{TaskID: taskID, Message: msg}
		default:
			if st.Progress > last {
				last = st.Progress
			}
			if onProgress != nil {
				onProgress(last)
			}
		}
	}

	log.Warn().Int("attempts", sched.MaxAttempts).Msg("poll attempts exhausted")
	return nil, fmt.Errorf("task %s: %w after %d attempts", taskID, ErrPollTimeout, sched.MaxAttempts)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
