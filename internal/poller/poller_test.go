package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tryon/internal/domain"
	"tryon/internal/providers/kie"
)

type scriptedSource struct {
	steps   []step
	queries int
}

type step struct {
	status kie.Status
	err    error
}

func (s *scriptedSource) QueryStatus(ctx context.Context, taskID string) (kie.Status, error) {
	s.queries++
	if len(s.steps) == 0 {
		return kie.Status{Status: domain.TaskStatusProcessing}, nil
	}
	next := s.steps[0]
	if len(s.steps) > 1 {
		s.steps = s.steps[1:]
	}
	return next.status, next.err
}

func noWait(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func newTestPoller(src StatusSource, attempts int) *Poller {
	sched := Schedule{Interval: time.Millisecond, MaxAttempts: attempts}
	return New(Options{Source: src, Logger: zerolog.Nop(), Image: sched, Video: sched, Wait: noWait})
}

func processing(p int) step {
	return step{status: kie.Status{Status: domain.TaskStatusProcessing, Progress: p}}
}

func TestPollCompletes(t *testing.T) {
	src := &scriptedSource{steps: []step{
		processing(10),
		processing(60),
		processing(30),
		{status: kie.Status{Status: domain.TaskStatusCompleted, ResultURLs: []string{"https://cdn.test/a.png"}}},
	}}
	var seen []int
	urls, err := newTestPoller(src, 10).Poll(context.Background(), "t1", domain.KindImage, func(p int) {
		seen = append(seen, p)
	})
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if len(urls) != 1 || urls[0] != "https://cdn.test/a.png" {
		t.Fatalf("unexpected urls: %v", urls)
	}
	want := []int{10, 60, 60, 100}
	if len(seen) != len(want) {
		t.Fatalf("progress = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("progress = %v, want %v", seen, want)
		}
	}
}

func TestPollCompletedWithoutURLsIsFailure(t *testing.T) {
	src := &scriptedSource{steps: []step{{status: kie.Status{Status: domain.TaskStatusCompleted}}}}
	_, err := newTestPoller(src, 5).Poll(context.Background(), "t1", domain.KindImage, nil)
	var failed *TaskFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected TaskFailedError, got %v", err)
	}
}

func TestPollFailedCarriesProviderText(t *testing.T) {
	src := &scriptedSource{steps: []step{{status: kie.Status{Status: domain.TaskStatusFailed, Error: "nsfw content detected"}}}}
	_, err := newTestPoller(src, 5).Poll(context.Background(), "t1", domain.KindVideo, nil)
	var failed *TaskFailedError
	if !errors.As(err, &failed) || failed.Message != "nsfw content detected" {
		t.Fatalf("unexpected error: %v", err)
	}
	if errors.Is(err, ErrPollTimeout) {
		t.Fatalf("failure must be distinct from timeout")
	}
}

func TestPollFailedWithoutTextUsesGenericMessage(t *testing.T) {
	src := &scriptedSource{steps: []step{{status: kie.Status{Status: domain.TaskStatusFailed}}}}
	_, err := newTestPoller(src, 5).Poll(context.Background(), "t1", domain.KindImage, nil)
	var failed *TaskFailedError
	if !errors.As(err, &failed) || failed.Message != genericFailure {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPollTimeoutAfterExactlyNQueries(t *testing.T) {
	src := &scriptedSource{}
	_, err := newTestPoller(src, 7).Poll(context.Background(), "t1", domain.KindImage, nil)
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}
	if src.queries != 7 {
		t.Fatalf("queries = %d, want 7", src.queries)
	}
}

func TestPollTransientErrorConsumesAttempt(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{status: kie.Status{Status: domain.TaskStatusCompleted, ResultURLs: []string{"https://cdn.test/v.mp4"}}},
	}}
	urls, err := newTestPoller(src, 3).Poll(context.Background(), "t1", domain.KindVideo, nil)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if len(urls) != 1 || src.queries != 3 {
		t.Fatalf("urls=%v queries=%d", urls, src.queries)
	}

	src = &scriptedSource{steps: []step{{err: errors.New("connection reset")}}}
	if _, err := newTestPoller(src, 2).Poll(context.Background(), "t1", domain.KindVideo, nil); !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("expected timeout when every query fails, got %v", err)
	}
}

func TestPollStopsOnCancel(t *testing.T) {
	src := &scriptedSource{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestPoller(src, 5).Poll(ctx, "t1", domain.KindImage, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if src.queries != 0 {
		t.Fatalf("no query may run after cancellation, got %d", src.queries)
	}
}

func TestDefaultSchedules(t *testing.T) {
	p := New(Options{Source: &scriptedSource{}})
	if got := p.ScheduleFor(domain.KindVideo); got != VideoSchedule || got.Interval != 5*time.Second || got.MaxAttempts != 120 {
		t.Fatalf("video schedule = %+v", got)
	}
	if got := p.ScheduleFor(domain.KindImage); got != ImageSchedule || got.Interval != 3*time.Second || got.MaxAttempts != 80 {
		t.Fatalf("image schedule = %+v", got)
	}
}
