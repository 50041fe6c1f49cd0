package domain

import "context"

// CreditStore is the authoritative credit balance store.
type CreditStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	// DeductCredits subtracts amount only when the balance covers it. ok is
	// false when it does not; remaining is the balance after the call.
	DeductCredits(ctx context.Context, userID string, amount int) (remaining int, ok bool, err error)
}

// GalleryRepository persists gallery metadata.
type GalleryRepository interface {
	// Insert stores item. A second insert for the same task result returns the existing row.
	Insert(ctx context.Context, item *GalleryItem) (*GalleryItem, error)
	ListByTask(ctx context.Context, ownerID, taskID string) ([]GalleryItem, error)
}

// TaskRepository tracks submitted generation tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *GenerationTask) error
	Get(ctx context.Context, ownerID, taskID string) (*GenerationTask, error)
	UpdateProgress(ctx context.Context, taskID string, progress int) error
	// ClaimPersist marks the task as being persisted. It returns ErrAlreadyPersisted when another run already did.
	ClaimPersist(ctx context.Context, taskID string) error
	MarkTerminal(ctx context.Context, task *GenerationTask) error
	// MarkTimedOut flags a processing task that outlived its polling budget.
	// The task stays processing.
	MarkTimedOut(ctx context.Context, taskID, reason string) error
	// ClaimRepoll clears the timeout flag for exactly one caller.
	ClaimRepoll(ctx context.Context, taskID string) (bool, error)
}
