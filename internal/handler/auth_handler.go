// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/servicedesk/internal/auth"
	"github.com/hitoshi/servicedesk/internal/authgate"
	"github.com/hitoshi/servicedesk/internal/middleware"
	"github.com/hitoshi/servicedesk/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignIn(ctx context.Context, email, password string) (*auth.Result, error)
	Refresh(ctx context.Context, token string) (*auth.Result, error)
	// SignOut はセッションを破棄し、ゲートの認証状態も破棄する。
	SignOut(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログイン・ログアウト・トークン再発行のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// signInRequest はログインリクエストのボディ。
type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenResponse はログイン・トークン再発行のレスポンス。
// Bearerで利用するクライアントのためにトークンも本文で返す。
type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
}

// meResponse はログインユーザー情報のレスポンス。
type meResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	Phone       string     `json:"phone,omitempty"`
	Role        model.Role `json:"role"`
	LandingPath string     `json:"landing_path"`
}

// Login はメールアドレスとパスワードで認証し、セッションCookieを設定する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     result.Token,
		ExpiresAt: result.TokenExpiresAt,
		UserID:    result.Session.UserID,
	})
}

// Refresh はトークンを再発行する。期限切れのトークンも受け付ける。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromRequest(r)
	if token == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	result, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     result.Token,
		ExpiresAt: result.TokenExpiresAt,
		UserID:    result.Session.UserID,
	})
}

// Logout はセッションを破棄する。セッションがない場合もCookieはクリアする。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	snap := middleware.SnapshotFromContext(r.Context())
	if snap.Session != nil {
		if err := h.service.SignOut(r.Context(), snap.Session.ID); err != nil {
			handleServiceError(w, err)
			return
		}
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報と既定の画面を返す。
// プロフィールが未解決の場合は503を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	snap := middleware.SnapshotFromContext(r.Context())
	role, ok := snap.Role()
	if !ok {
		middleware.WriteGateDenial(w, r, authgate.Evaluate(snap, model.RoleAdmin, model.RoleReceptionist, model.RoleTechnician))
		return
	}

	p := snap.Profile
	writeJSON(w, http.StatusOK, meResponse{
		ID:          p.ID,
		Email:       p.Email,
		FullName:    p.FullName,
		Phone:       p.Phone,
		Role:        role,
		LandingPath: authgate.LandingPath(role),
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
