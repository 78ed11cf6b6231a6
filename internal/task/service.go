// Package task はタスクのCRUDに関するビジネスロジックを提供する。
// すべての操作は認証済みユーザーのIDを所有者として受け取り、その所有者のタスクのみを対象とする。
package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

const (
	msgMissingFields = "Please provide title and description"
	msgInvalidID     = "Invalid task ID"
	msgNotFound      = "Task not found"
	msgCreateFailed  = "Error creating task"
	msgListFailed    = "Error fetching tasks"
	msgGetFailed     = "Error fetching task"
	msgUpdateFailed  = "Error updating task"
	msgDeleteFailed  = "Error deleting task"
)

// loadTimeout は共有読み込みの上限時間。
const loadTimeout = 10 * time.Second

// CreateInput はタスク作成の入力。Statusがnilまたは空の場合はpendingとなる。
type CreateInput struct {
	Title       string
	Description string
	Status      *model.TaskStatus
}

// UpdateInput はタスク部分更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Title       *string
	Description *string
	Status      *model.TaskStatus
}

// Service はタスク操作を提供する。
type Service struct {
	repo    repository.TaskRepository
	cache   Cache
	sfGroup singleflight.Group
}

// NewService はServiceを生成する。cacheがnilの場合はキャッシュを使用しない。
func NewService(repo repository.TaskRepository, cache Cache) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Create は所有者のタスクを作成する。
// ステータスの列挙値はここでは検証せず、リポジトリで拒否された場合は内部エラーとなる。
func (s *Service) Create(ctx context.Context, ownerID string, input CreateInput) (*model.Task, error) {
	if input.Title == "" || input.Description == "" {
		return nil, model.NewValidationError(msgMissingFields)
	}

	// 未指定または空文字はpending
	status := model.TaskStatusPending
	if input.Status != nil && *input.Status != "" {
		status = *input.Status
	}

	now := time.Now()
	task := &model.Task{
		ID:          uuid.New().String(),
		Title:       input.Title,
		Description: input.Description,
		Status:      status,
		UserID:      ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, model.NewInternalError(msgCreateFailed, err)
	}

	slog.Info("task created",
		slog.String("task_id", task.ID),
		slog.String("user_id", ownerID),
	)
	return task, nil
}

// List は所有者のタスクを作成日時の降順で返す。
func (s *Service) List(ctx context.Context, ownerID string) ([]*model.Task, error) {
	tasks, err := s.repo.ListByUserID(ctx, ownerID)
	if err != nil {
		return nil, model.NewInternalError(msgListFailed, err)
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	return tasks, nil
}

// Get は所有者のタスクを1件取得する。
// 存在しない場合と他ユーザーのタスクである場合は同じNOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, ownerID, id string) (*model.Task, error) {
	taskID, err := parseTaskID(id)
	if err != nil {
		return nil, err
	}

	cached, found, err := s.cache.Get(ctx, ownerID, taskID)
	if err != nil {
		slog.Warn("task cache read failed",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
	}
	if found {
		return cached, nil
	}

	ch := s.sfGroup.DoChan(flightKey(ownerID, taskID), func() (any, error) {
		return s.load(ctx, ownerID, taskID)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, model.NewInternalError(msgGetFailed, ctx.Err())
	}
	if res.Err != nil {
		return nil, model.NewInternalError(msgGetFailed, res.Err)
	}

	task, _ := res.Val.(*model.Task)
	if task == nil {
		return nil, model.NewNotFoundError(msgNotFound)
	}
	// singleflightで共有された値を呼び出し元ごとに独立させる
	copied := *task
	return &copied, nil
}

// load はストアからタスクを読み込み、読み込み中に書き込みがなければキャッシュに格納する。
// 複数の呼び出し元で共有されるため、最初の呼び出し元の切断では中断しない。
func (s *Service) load(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
	defer cancel()

	// 世代はストアより先に読む
	version, verErr := s.cache.Version(ctx, ownerID, taskID)
	if verErr != nil {
		slog.Warn("task cache version read failed",
			slog.String("task_id", taskID),
			slog.String("error", verErr.Error()),
		)
	}

	task, err := s.repo.FindByIDAndUserID(ctx, taskID, ownerID)
	if err != nil || task == nil {
		return task, err
	}
	if verErr != nil {
		return task, nil
	}

	stored, err := s.cache.SetIfVersion(ctx, task, version)
	if err != nil {
		slog.Warn("task cache write failed",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
	} else if !stored {
		slog.Debug("task cache write skipped after concurrent write",
			slog.String("task_id", taskID),
		)
	}
	return task, nil
}

// Update は所有者のタスクを部分更新し、更新後のタスクを返す。
func (s *Service) Update(ctx context.Context, ownerID, id string, input UpdateInput) (*model.Task, error) {
	taskID, err := parseTaskID(id)
	if err != nil {
		return nil, err
	}

	task, err := s.repo.UpdateByIDAndUserID(ctx, taskID, ownerID, model.TaskPatch{
		Title:       input.Title,
		Description: input.Description,
		Status:      input.Status,
	})
	if err != nil {
		return nil, model.NewInternalError(msgUpdateFailed, err)
	}
	if task == nil {
		return nil, model.NewNotFoundError(msgNotFound)
	}

	s.invalidate(ctx, ownerID, taskID)

	slog.Info("task updated",
		slog.String("task_id", taskID),
		slog.String("user_id", ownerID),
	)
	return task, nil
}

// Delete は所有者のタスクを物理削除する。
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	taskID, err := parseTaskID(id)
	if err != nil {
		return err
	}

	deleted, err := s.repo.DeleteByIDAndUserID(ctx, taskID, ownerID)
	if err != nil {
		return model.NewInternalError(msgDeleteFailed, err)
	}
	if !deleted {
		return model.NewNotFoundError(msgNotFound)
	}

	s.invalidate(ctx, ownerID, taskID)

	slog.Info("task deleted",
		slog.String("task_id", taskID),
		slog.String("user_id", ownerID),
	)
	return nil
}

// invalidate は書き込み後にキャッシュの世代を進め、進行中の読み込みを以後の呼び出しから切り離す。
func (s *Service) invalidate(ctx context.Context, ownerID, taskID string) {
	if err := s.cache.Invalidate(ctx, ownerID, taskID); err != nil {
		slog.Warn("task cache invalidation failed",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
	}
	s.sfGroup.Forget(flightKey(ownerID, taskID))
}

func flightKey(ownerID, taskID string) string {
	return ownerID + ":" + taskID
}

// parseTaskID はタスクIDの構文を検証し、正規化した文字列を返す。
func parseTaskID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", model.NewValidationError(msgInvalidID)
	}
	return parsed.String(), nil
}
