package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/taskman/internal/middleware"
)

// ヘルスステータス
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const healthCheckTimeout = 5 * time.Second

// PingFunc は依存先の疎通確認を行う関数。
type PingFunc func(ctx context.Context) error

// HealthHandler はDBと（設定されていれば）Redisの疎通を確認するハンドラー。
// DBに接続できない場合はunhealthy、Redisのみ失敗した場合はdegradedとする。
type HealthHandler struct {
	db    PingFunc
	redis PingFunc
}

// NewHealthHandler はHealthHandlerを生成する。redisはnilでもよい。
func NewHealthHandler(db, redis PingFunc) *HealthHandler {
	return &HealthHandler{
		db:    db,
		redis: redis,
	}
}

// healthResponse はヘルスチェック結果のdata。
type healthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Dependencies map[string]string `json:"dependencies"`
}

// check は依存先を確認し、全体のステータスを返す。
func (h *HealthHandler) check(ctx context.Context) healthResponse {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Dependencies: make(map[string]string),
	}

	if h.db != nil {
		if err := h.db(ctx); err != nil {
			resp.Dependencies["database"] = StatusUnhealthy
			resp.Status = StatusUnhealthy
		} else {
			resp.Dependencies["database"] = StatusHealthy
		}
	}

	// Redisはキャッシュ用途のため、失敗してもdegradedに留める
	if h.redis != nil {
		if err := h.redis(ctx); err != nil {
			resp.Dependencies["redis"] = StatusUnhealthy
			if resp.Status != StatusUnhealthy {
				resp.Status = StatusDegraded
			}
		} else {
			resp.Dependencies["redis"] = StatusHealthy
		}
	}

	return resp
}

// ServeHTTP はヘルスチェック結果を返す。unhealthyの場合は503。
// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.check(r.Context())

	statusCode := http.StatusOK
	if resp.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	middleware.WriteJSON(w, statusCode, middleware.Envelope{
		Success: resp.Status != StatusUnhealthy,
		Data:    resp,
	})
}
