package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope はすべてのAPIレスポンスの統一フォーマット。
// 成功時はdata、失敗時はmessageと（内部エラーの場合）errorを載せる。
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Count   *int   `json:"count,omitempty"`
}

// WriteJSON は統一フォーマットでJSONレスポンスを書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// WriteErrorResponse は失敗レスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, Envelope{Success: false, Message: message})
}

// WriteInternalServerError は内部エラーの統一レスポンスを書き込む。
// causeは空でなければerrorフィールドに載る。
func WriteInternalServerError(w http.ResponseWriter, message, cause string) {
	WriteJSON(w, http.StatusInternalServerError, Envelope{
		Success: false,
		Message: message,
		Error:   cause,
	})
}
