// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザー（プリンシパル）を表す。
// PasswordHashはログイン時の照合にのみ使用し、APIレスポンスには含めない。
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
