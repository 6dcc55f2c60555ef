package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/servicedesk/internal/authgate"
	"github.com/hitoshi/servicedesk/internal/middleware"
	"github.com/hitoshi/servicedesk/internal/model"
	"github.com/hitoshi/servicedesk/internal/user"
)

// UserServiceInterface はユーザー管理ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	List(ctx context.Context) ([]*model.User, error)
	Create(ctx context.Context, in user.CreateInput) (*model.User, error)
	// DeleteUser は呼び出し元のスナップショットで権限を判定してユーザーを削除する。
	// 未認証やadmin以外の呼び出しはForbiddenエラーを返す。
	DeleteUser(ctx context.Context, caller authgate.Snapshot, targetID string) (*user.DeleteResult, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// userResponse はユーザーのAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	Phone     string     `json:"phone,omitempty"`
	Role      model.Role `json:"role"`
	Confirmed bool       `json:"confirmed"`
	CreatedAt time.Time  `json:"created_at"`
}

type deleteUserRequest struct {
	UserID string `json:"user_id"`
}

type deleteUserResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// List はユーザー一覧を返す。
// GET /api/admin/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]userResponse, len(users))
	for i, u := range users {
		resp[i] = toUserResponse(u)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create はユーザーを作成する。
// POST /api/admin/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in user.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}

	u, err := h.service.Create(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// Delete は管理者としてユーザーを削除する。
// ロールゲートの外側に置き、権限判定はサービスに任せる。
// POST /api/admin/delete-user
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	// 未認証の呼び出しには本文の形式に関わらず403を返すため、
	// 解析できない本文は対象ID未指定として扱う。
	var req deleteUserRequest
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req)

	result, err := h.service.DeleteUser(r.Context(), middleware.SnapshotFromContext(r.Context()), req.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteUserResponse{
		Success: result.Success,
		UserID:  result.UserID,
		Message: result.Message,
	})
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Phone:     u.Phone,
		Role:      u.Role,
		Confirmed: u.Confirmed(),
		CreatedAt: u.CreatedAt,
	}
}
