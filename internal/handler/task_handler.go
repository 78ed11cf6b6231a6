package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/task"
)

const (
	msgTaskCreated  = "Task created successfully"
	msgTaskUpdated  = "Task updated successfully"
	msgTaskDeleted  = "Task deleted successfully"
	msgUnauthorized = "No token provided. Authorization denied."
)

// タスク操作のメトリクスラベル
const (
	opCreate = "create"
	opList   = "list"
	opGet    = "get"
	opUpdate = "update"
	opDelete = "delete"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	Create(ctx context.Context, ownerID string, input task.CreateInput) (*model.Task, error)
	List(ctx context.Context, ownerID string) ([]*model.Task, error)
	Get(ctx context.Context, ownerID, id string) (*model.Task, error)
	Update(ctx context.Context, ownerID, id string, input task.UpdateInput) (*model.Task, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// TaskHandler はタスク管理のHTTPハンドラー。
// すべてのルートは認証ミドルウェアの内側に配置する。
type TaskHandler struct {
	service TaskServiceInterface
	metrics metrics.MetricsCollector
}

// NewTaskHandler はTaskHandlerを生成する。collectorはnilでもよい。
func NewTaskHandler(service TaskServiceInterface, collector metrics.MetricsCollector) *TaskHandler {
	return &TaskHandler{
		service: service,
		metrics: collector,
	}
}

// createTaskRequest はタスク作成リクエストのボディ。
type createTaskRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      *string `json:"status"`
}

// updateTaskRequest はタスク更新リクエストのボディ。省略したフィールドは変更しない。
type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

// CreateTask はタスク作成を処理する。
// POST /api/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, msgInvalidRequestBody)
		return
	}

	created, err := h.service.Create(r.Context(), userID, task.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      toStatus(req.Status),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.record(opCreate)
	writeSuccess(w, http.StatusCreated, msgTaskCreated, toTaskResponse(created))
}

// ListTasks は認証ユーザーのタスク一覧を返す。
// GET /api/tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	tasks, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	data := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		data = append(data, toTaskResponse(t))
	}
	count := len(data)

	h.record(opList)
	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{
		Success: true,
		Count:   &count,
		Data:    data,
	})
}

// GetTask はタスク詳細を返す。
// GET /api/tasks/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	found, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.record(opGet)
	writeSuccess(w, http.StatusOK, "", toTaskResponse(found))
}

// UpdateTask はタスクを部分更新する。
// PUT /api/tasks/{id}
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, msgInvalidRequestBody)
		return
	}

	updated, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), task.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      toStatus(req.Status),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.record(opUpdate)
	writeSuccess(w, http.StatusOK, msgTaskUpdated, toTaskResponse(updated))
}

// DeleteTask はタスクを削除する。
// DELETE /api/tasks/{id}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	h.record(opDelete)
	writeSuccess(w, http.StatusOK, msgTaskDeleted, struct{}{})
}

// ownerID は認証ミドルウェアが注入したユーザーIDを取得する。
// 取得できない場合は401を書き込みfalseを返す。
func (h *TaskHandler) ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, msgUnauthorized)
		return "", false
	}
	return userID, true
}

func (h *TaskHandler) record(operation string) {
	if h.metrics != nil {
		h.metrics.RecordTaskOperation(operation)
	}
}

func toStatus(s *string) *model.TaskStatus {
	if s == nil {
		return nil
	}
	status := model.TaskStatus(*s)
	return &status
}
