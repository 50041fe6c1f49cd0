package repo

import (
	"context"
	"fmt"

	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/sqlinline"
)

// TaskRepositoryPG implements domain.TaskRepository.
type TaskRepositoryPG struct {
	db infra.SQLExecutor
}

// NewTaskRepository creates a new TaskRepositoryPG.
func NewTaskRepository(db infra.SQLExecutor) *TaskRepositoryPG {
	return &TaskRepositoryPG{db: db}
}

// Create records a submitted task. Recording the same task twice is a no-op.
func (r *TaskRepositoryPG) Create(ctx context.Context, task *domain.GenerationTask) error {
	_, err := r.db.Exec(ctx, sqlinline.QInsertGenerationTask,
		task.TaskID,
		task.OwnerID,
		string(task.Kind),
		task.TemplateID,
		task.RequestedModel,
		task.EffectiveModel,
		string(task.Status),
		task.Progress,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create generation task: %w", err)
	}
	return nil
}

// Get fetches a task owned by ownerID. Tasks of other owners read as not found.
func (r *TaskRepositoryPG) Get(ctx context.Context, ownerID, taskID string) (*domain.GenerationTask, error) {
	row := r.db.QueryRow(ctx, sqlinline.QSelectGenerationTask, taskID, ownerID)
	var (
		task   domain.GenerationTask
		kind   string
		status string
	)
	if err := row.Scan(
		&task.TaskID,
		&task.OwnerID,
		&kind,
		&task.TemplateID,
		&task.RequestedModel,
		&task.EffectiveModel,
		&status,
		&task.Progress,
		&task.ResultURLs,
		&task.Error,
		&task.GalleryItemIDs,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.PersistedAt,
		&task.TimedOut,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	task.Kind = domain.Kind(kind)
	task.Status = domain.TaskStatus(status)
	return &task, nil
}

// UpdateProgress raises the stored progress of a processing task.
func (r *TaskRepositoryPG) UpdateProgress(ctx context.Context, taskID string, progress int) error {
	_, err := r.db.Exec(ctx, sqlinline.QUpdateGenerationTaskProgress, taskID, progress)
	return err
}

// ClaimPersist lets exactly one caller persist the results of a task.
func (r *TaskRepositoryPG) ClaimPersist(ctx context.Context, taskID string) error {
	var claimed string
	if err := r.db.QueryRow(ctx, sqlinline.QClaimGenerationTaskPersist, taskID).Scan(&claimed); err != nil {
		if infra.IsNoRows(err) {
			return domain.ErrAlreadyPersisted
		}
		return fmt.Errorf("claim generation task: %w", err)
	}
	return nil
}

// MarkTerminal records the final state of a task.
func (r *TaskRepositoryPG) MarkTerminal(ctx context.Context, task *domain.GenerationTask) error {
	urls := task.ResultURLs
	if urls == nil {
		urls = []string{}
	}
	ids := task.GalleryItemIDs
	if ids == nil {
		ids = []string{}
	}
	_, err := r.db.Exec(ctx, sqlinline.QMarkGenerationTaskTerminal,
		task.TaskID,
		string(task.Status),
		task.Progress,
		urls,
		task.Error,
		ids,
	)
	if err != nil {
		return fmt.Errorf("mark generation task: %w", err)
	}
	return nil
}

// MarkTimedOut flags a processing task whose polling budget ran out.
func (r *TaskRepositoryPG) MarkTimedOut(ctx context.Context, taskID, reason string) error {
	if _, err := r.db.Exec(ctx, sqlinline.QMarkGenerationTaskTimedOut, taskID, reason); err != nil {
		return fmt.Errorf("mark generation task timed out: %w", err)
	}
	return nil
}

// ClaimRepoll clears the timeout flag. ok is false when the task is not
// timed out anymore, usually because another caller claimed it first.
func (r *TaskRepositoryPG) ClaimRepoll(ctx context.Context, taskID string) (bool, error) {
	var claimed string
	if err := r.db.QueryRow(ctx, sqlinline.QClaimGenerationTaskRepoll, taskID).Scan(&claimed); err != nil {
		if infra.IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("claim generation task repoll: %w", err)
	}
	return true, nil
}

var _ domain.TaskRepository = (*TaskRepositoryPG)(nil)
