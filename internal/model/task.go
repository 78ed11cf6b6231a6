// Package model はドメインモデルを定義する。
package model

import "time"

// Task はユーザーが所有するタスクを表す。
// UserIDは作成時に認証済みユーザーから設定され、以後変更されない。
type Task struct {
	ID          string
	Title       string
	Description string
	Status      TaskStatus
	UserID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskStatus はタスクの進捗状態を表す。
// 遷移の制約はなく、列挙値のいずれであれば任意の値から変更できる。
type TaskStatus string

const (
	// TaskStatusPending は未着手の状態。作成時のデフォルト。
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress は作業中の状態。
	TaskStatusInProgress TaskStatus = "in-progress"
	// TaskStatusCompleted は完了した状態。
	TaskStatusCompleted TaskStatus = "completed"
)

// Valid はステータスが列挙値のいずれかであるかを返す。
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

// TaskPatch はタスクの部分更新内容を表す。nilのフィールドは変更しない。
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *TaskStatus
}
