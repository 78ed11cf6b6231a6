// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/taskman/internal/model"
)

// ErrDuplicate は一意制約（username, email）に違反した場合に返される。
var ErrDuplicate = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByEmailOrUsername はemailまたはusernameが一致するユーザーを取得する。
	// 見つからない場合はnilを返す。PasswordHashは読み込まない。
	FindByEmailOrUsername(ctx context.Context, email, username string) (*model.User, error)

	// FindCredentialsByEmail はemailでユーザーをPasswordHash付きで取得する。
	// ログイン照合専用。見つからない場合はnilを返す。
	FindCredentialsByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。一意制約違反の場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error
}

// TaskRepository はタスクデータの永続化インターフェース。
// 単一タスクに対する操作はすべて所有者IDを検索条件に含める。
type TaskRepository interface {
	// Create はタスクを作成する。ステータスや必須項目の制約違反はmodel.ErrInvalidTaskを返す。
	Create(ctx context.Context, task *model.Task) error

	// ListByUserID はユーザーのタスク一覧を作成日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Task, error)

	// FindByIDAndUserID はIDと所有者が一致するタスクを取得する。見つからない場合はnilを返す。
	FindByIDAndUserID(ctx context.Context, id, userID string) (*model.Task, error)

	// UpdateByIDAndUserID はIDと所有者が一致するタスクを部分更新し、更新後のタスクを返す。
	// 見つからない場合はnilを返す。
	UpdateByIDAndUserID(ctx context.Context, id, userID string, patch model.TaskPatch) (*model.Task, error)

	// DeleteByIDAndUserID はIDと所有者が一致するタスクを削除する。
	// 削除した場合はtrue、該当なしの場合はfalseを返す。
	DeleteByIDAndUserID(ctx context.Context, id, userID string) (bool, error)
}
