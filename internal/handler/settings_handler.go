package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/servicedesk/internal/middleware"
	"github.com/hitoshi/servicedesk/internal/settings"
)

// SettingsServiceInterface は設定ハンドラーが必要とするサービスインターフェース。
type SettingsServiceInterface interface {
	Navigation(ctx context.Context, userID string) settings.NavGroups
	SaveNavigation(ctx context.Context, userID string, groups settings.NavGroups) (settings.NavGroups, error)
	Toggle(ctx context.Context, userID, group string) (settings.NavGroups, error)
}

// SettingsHandler はユーザー設定のHTTPハンドラー。
type SettingsHandler struct {
	service SettingsServiceInterface
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(service SettingsServiceInterface) *SettingsHandler {
	return &SettingsHandler{service: service}
}

type navigationBody struct {
	Groups settings.NavGroups `json:"groups"`
}

// GetNavigation はナビゲーショングループの展開状態を返す。
// GET /api/settings/navigation
func (h *SettingsHandler) GetNavigation(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, navigationBody{Groups: h.service.Navigation(r.Context(), userID)})
}

// PutNavigation はナビゲーショングループの展開状態を保存する。
// PUT /api/settings/navigation
func (h *SettingsHandler) PutNavigation(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var req navigationBody
	if !decodeJSON(w, r, &req) {
		return
	}

	saved, err := h.service.SaveNavigation(r.Context(), userID, req.Groups)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, navigationBody{Groups: saved})
}

// ToggleNavigation は1つのグループの展開状態を反転して保存し、保存後の全体を返す。
// POST /api/settings/navigation/{group}/toggle
func (h *SettingsHandler) ToggleNavigation(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	saved, err := h.service.Toggle(r.Context(), userID, chi.URLParam(r, "group"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, navigationBody{Groups: saved})
}
