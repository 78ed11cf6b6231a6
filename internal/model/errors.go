// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// Codeがエラー種別、Messageがクライアントに返すメッセージ、Errが内部原因を保持する。
type APIError struct {
	Code    string // エラーコード
	Message string // エラーメッセージ
	Err     error  // 内部原因（INTERNAL_ERRORのみレスポンスに含める）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は内部原因を返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeAuth       = "AUTH_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeInternal   = "INTERNAL_ERROR"
)

// ErrInvalidTask は永続化境界でタスクの制約（ステータスの列挙値、必須項目）に違反した場合のエラー。
var ErrInvalidTask = errors.New("task validation failed")

// NewValidationError は入力不備エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{Code: ErrCodeValidation, Message: message}
}

// NewConflictError は一意制約違反エラーを生成する。
func NewConflictError(message string) *APIError {
	return &APIError{Code: ErrCodeConflict, Message: message}
}

// NewAuthError は認証エラーを生成する。
func NewAuthError(message string) *APIError {
	return &APIError{Code: ErrCodeAuth, Message: message}
}

// NewNotFoundError はリソース未検出エラーを生成する。
// 存在しない場合と他ユーザーの所有物である場合を区別しない。
func NewNotFoundError(message string) *APIError {
	return &APIError{Code: ErrCodeNotFound, Message: message}
}

// NewInternalError は内部エラーを生成する。errは原因としてレスポンスのerrorフィールドに載る。
func NewInternalError(message string, err error) *APIError {
	return &APIError{Code: ErrCodeInternal, Message: message, Err: err}
}
