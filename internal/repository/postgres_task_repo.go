package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/taskman/internal/model"
)

// pgCheckViolation はPostgreSQLのCHECK制約違反のSQLSTATE。
const pgCheckViolation = "23514"

const taskColumns = `id, title, description, status, user_id, created_at, updated_at`

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
// 単一タスクへのアクセスは必ず id と user_id の両方で絞り込む。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// Create はタスクを作成する。
// 書き込み前にステータスの列挙値と必須項目を検証し、違反時はmodel.ErrInvalidTaskを返す。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	if err := validateTask(task.Title, task.Description, task.Status); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, status, user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		task.ID, task.Title, task.Description, string(task.Status), task.UserID, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", translateConstraintError(err))
	}
	return nil
}

// ListByUserID はユーザーのタスク一覧を作成日時の降順で返す。該当なしの場合は空スライスを返す。
func (r *PostgresTaskRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return tasks, nil
}

// FindByIDAndUserID はIDと所有者が一致するタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByIDAndUserID(ctx context.Context, id, userID string) (*model.Task, error) {
	task, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

// UpdateByIDAndUserID はIDと所有者が一致するタスクを1文で部分更新する。
// patchのnilフィールドはCOALESCEにより既存値を維持する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) UpdateByIDAndUserID(ctx context.Context, id, userID string, patch model.TaskPatch) (*model.Task, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}

	task, err := scanTask(r.db.QueryRowContext(ctx,
		`UPDATE tasks
		 SET title = COALESCE($3, title),
		     description = COALESCE($4, description),
		     status = COALESCE($5, status),
		     updated_at = NOW()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+taskColumns,
		id, userID, patch.Title, patch.Description, status,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", translateConstraintError(err))
	}
	return task, nil
}

// DeleteByIDAndUserID はIDと所有者が一致するタスクを物理削除する。
func (r *PostgresTaskRepo) DeleteByIDAndUserID(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	task := &model.Task{}
	var status string
	if err := row.Scan(&task.ID, &task.Title, &task.Description, &status, &task.UserID, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, err
	}
	task.Status = model.TaskStatus(status)
	return task, nil
}

// validateTask は永続化前にタスクの制約を検証する。
func validateTask(title, description string, status model.TaskStatus) error {
	if title == "" {
		return fmt.Errorf("%w: title: path is required", model.ErrInvalidTask)
	}
	if description == "" {
		return fmt.Errorf("%w: description: path is required", model.ErrInvalidTask)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: status: %q is not a valid enum value", model.ErrInvalidTask, string(status))
	}
	return nil
}

// validatePatch は部分更新で指定されたフィールドのみを検証する。
func validatePatch(patch model.TaskPatch) error {
	if patch.Title != nil && *patch.Title == "" {
		return fmt.Errorf("%w: title: path is required", model.ErrInvalidTask)
	}
	if patch.Description != nil && *patch.Description == "" {
		return fmt.Errorf("%w: description: path is required", model.ErrInvalidTask)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return fmt.Errorf("%w: status: %q is not a valid enum value", model.ErrInvalidTask, string(*patch.Status))
	}
	return nil
}

// translateConstraintError はDBのCHECK制約違反をmodel.ErrInvalidTaskに変換する。
func translateConstraintError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgCheckViolation {
		return fmt.Errorf("%w: %s", model.ErrInvalidTask, pqErr.Message)
	}
	return err
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
