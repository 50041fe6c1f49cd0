package domain

import "time"

// Kind enumerates what a generation task produces.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindImage || k == KindVideo
}

// TaskStatus enumerates the normalized lifecycle of a provider task.
type TaskStatus string

const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TimeoutMessage is stored on a task whose polling budget ran out.
const TimeoutMessage = "generation timed out"

// GenerationTask is one provider-side job as seen by the service.
type GenerationTask struct {
	TaskID         string
	OwnerID        string
	Kind           Kind
	TemplateID     string
	RequestedModel string
	EffectiveModel string
	Status         TaskStatus
	Progress       int
	ResultURLs     []string
	Error          string
	GalleryItemIDs []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PersistedAt    *time.Time
	// TimedOut is set when polling gave up while the provider was still working.
	TimedOut bool
}

// FallbackUsed reports whether the task runs on the default model instead of the requested one.
func (t GenerationTask) FallbackUsed() bool {
	return t.EffectiveModel != "" && t.EffectiveModel != t.RequestedModel
}

// Observe folds a provider snapshot into the task. Progress never moves
// backwards, result URLs are only kept on completion and the error text only
// on failure. Terminal tasks ignore further snapshots.
func (t *GenerationTask) Observe(status TaskStatus, progress int, urls []string, errMsg string) {
	if t.Status.Terminal() {
		return
	}
	progress = clampProgress(progress)
	switch status {
	case TaskStatusCompleted:
		t.TimedOut = false
		t.Status = TaskStatusCompleted
		t.Progress = 100
		t.ResultURLs = append([]string(nil), urls...)
		t.Error = ""
	case TaskStatusFailed:
		t.TimedOut = false
		t.Status = TaskStatusFailed
		t.ResultURLs = nil
		t.Error = errMsg
	default:
		t.Status = TaskStatusProcessing
		if progress > t.Progress {
			t.Progress = progress
		}
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
