// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/taskman/internal/auth"
	"github.com/hitoshi/taskman/internal/metrics"
)

const bearerPrefix = "Bearer "

// 認証拒否時のメッセージ
const (
	msgNoToken          = "No token provided. Authorization denied."
	msgInvalidFormat    = "Invalid token format."
	msgInvalidOrExpired = "Token is not valid or has expired."
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// claimsContextKey は検証済みのトークンクレームを格納するためのキー。
	claimsContextKey = contextKey("claims")
)

// TokenVerifier はBearerトークンの検証に必要なインターフェース。
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// RejectionKind は認証拒否の種別。メトリクスのラベルにも使用する。
type RejectionKind string

const (
	RejectionMissingToken          RejectionKind = "missing_token"
	RejectionMalformedToken        RejectionKind = "malformed_token"
	RejectionInvalidOrExpiredToken RejectionKind = "invalid_token"
)

// BearerRejection は認証を拒否した理由を表す。
type BearerRejection struct {
	Kind    RejectionKind
	Message string
	Err     error // 検証失敗時の原因
}

// ResolveBearer はAuthorizationヘッダーからトークンを取り出して検証する。
// ストアへのアクセスは行わない。
func ResolveBearer(header string, verifier TokenVerifier) (*auth.Claims, *BearerRejection) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return nil, &BearerRejection{Kind: RejectionMissingToken, Message: msgNoToken}
	}

	// 2つ目の空白区切り要素をトークンとして扱う
	token := strings.Split(header, " ")[1]
	if token == "" {
		return nil, &BearerRejection{Kind: RejectionMalformedToken, Message: msgInvalidFormat}
	}

	claims, err := verifier.Verify(token)
	if err != nil {
		return nil, &BearerRejection{Kind: RejectionInvalidOrExpiredToken, Message: msgInvalidOrExpired, Err: err}
	}
	return claims, nil
}

// NewBearerAuthMiddleware はBearerトークンを検証し、
// クレームとユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// 拒否したリクエストには401を返す。collectorはnilでもよい。
func NewBearerAuthMiddleware(verifier TokenVerifier, collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, rejection := ResolveBearer(r.Header.Get("Authorization"), verifier)
			if rejection != nil {
				if collector != nil {
					collector.RecordAuthRejection(string(rejection.Kind))
				}
				if rejection.Err != nil {
					attrs := []any{
						slog.String("reason", string(rejection.Kind)),
						slog.String("error", rejection.Err.Error()),
					}
					if errors.Is(rejection.Err, auth.ErrExpiredToken) {
						slog.Debug("token expired", attrs...)
					} else {
						slog.Warn("token rejected", attrs...)
					}
				}
				WriteErrorResponse(w, http.StatusUnauthorized, rejection.Message)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// ContextWithClaims はクレームとそのユーザーIDをコンテキストに注入する。
// ロギングミドルウェアの内側で呼ばれた場合はアクセスログにもユーザーIDを伝える。
func ContextWithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.userID = claims.UserID
	}
	ctx = context.WithValue(ctx, claimsContextKey, claims)
	return ContextWithUserID(ctx, claims.UserID)
}

// ClaimsFromContext はリクエストコンテキストからクレームを取得する。
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
