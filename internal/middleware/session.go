// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/servicedesk/internal/authgate"
	"github.com/hitoshi/servicedesk/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	authContextKey   = contextKey("auth")
)

// TokenSource はトークンの受け取り方。
type TokenSource int

const (
	TokenSourceNone TokenSource = iota
	TokenSourceCookie
	TokenSourceBearer
)

// authContext はセッション解決の結果。
type authContext struct {
	snapshot authgate.Snapshot
	source   TokenSource
	// authErr はトークンが提示されたが無効だった場合の理由。
	authErr *model.APIError
}

// Authenticator はトークンを検証し、有効なセッションを返す。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Session, error)
}

// GateResolver はセッションの認証状態（プロフィール解決を含む）を返す。
type GateResolver interface {
	Resolve(ctx context.Context, session *model.Session) authgate.Snapshot
}

// NewSessionMiddleware はCookieまたはAuthorizationヘッダーからトークンを読み取り、
// セッションとプロフィールを解決した認証状態をリクエストコンテキストに注入する。
// このミドルウェア自体はリクエストを拒否しない。拒否はRequireRolesが行う。
func NewSessionMiddleware(authenticator Authenticator, gate GateResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac := authContext{snapshot: authgate.Snapshot{Status: authgate.StatusAnonymous}}

			token, source := TokenFromRequest(r)
			ac.source = source
			if token != "" {
				session, err := authenticator.Authenticate(r.Context(), token)
				switch {
				case err == nil:
					ac.snapshot = gate.Resolve(r.Context(), session)
				default:
					var apiErr *model.APIError
					if errors.As(err, &apiErr) {
						ac.authErr = apiErr
					} else {
						slog.Error("failed to authenticate session",
							slog.String("error", err.Error()),
						)
						ac.authErr = model.NewUnauthorizedError()
					}
				}
			}

			ctx := context.WithValue(r.Context(), authContextKey, ac)
			if userID := ac.snapshot.SubjectID(); userID != "" {
				ctx = context.WithValue(ctx, userIDContextKey, userID)
				setLoggedUserID(r, userID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromRequest はCookie、Authorization: Bearer の順でトークンを探す。
func TokenFromRequest(r *http.Request) (string, TokenSource) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, TokenSourceCookie
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token, TokenSourceBearer
			}
		}
	}
	return "", TokenSourceNone
}

// SnapshotFromContext はリクエストの認証状態を返す。
// セッションミドルウェアを通過していない場合は未ログインとして扱う。
func SnapshotFromContext(ctx context.Context) authgate.Snapshot {
	ac, ok := ctx.Value(authContextKey).(authContext)
	if !ok {
		return authgate.Snapshot{Status: authgate.StatusAnonymous}
	}
	return ac.snapshot
}

// TokenSourceFromContext はトークンの受け取り方を返す。
func TokenSourceFromContext(ctx context.Context) TokenSource {
	ac, _ := ctx.Value(authContextKey).(authContext)
	return ac.source
}

// authErrorFromContext はトークン検証の失敗理由を返す。トークンがなかった場合はUNAUTHORIZED。
func authErrorFromContext(ctx context.Context) *model.APIError {
	ac, _ := ctx.Value(authContextKey).(authContext)
	if ac.authErr != nil {
		return ac.authErr
	}
	return model.NewUnauthorizedError()
}

// ContextWithSnapshot はコンテキストに認証状態を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSnapshot(ctx context.Context, snap authgate.Snapshot, source TokenSource) context.Context {
	ctx = context.WithValue(ctx, authContextKey, authContext{snapshot: snap, source: source})
	if userID := snap.SubjectID(); userID != "" {
		ctx = context.WithValue(ctx, userIDContextKey, userID)
	}
	return ctx
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 有効なセッションが解決されたリクエストでのみ値を持つ。
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	return userID, ok && userID != ""
}
