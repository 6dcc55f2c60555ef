package handler

import (
	"context"
	"log/slog"

	"github.com/hitoshi/servicedesk/internal/auth"
	"github.com/hitoshi/servicedesk/internal/model"
	"github.com/hitoshi/servicedesk/internal/realtime"
)

// GateForgetter はセッションに紐づく認証状態を破棄する。
type GateForgetter interface {
	Forget(sessionID string)
}

// AuthServiceAdapter は auth.Service を AuthServiceInterface に適合させるアダプタ。
// サインアウト時にゲートの認証状態も破棄する。
type AuthServiceAdapter struct {
	svc  *auth.Service
	gate GateForgetter
}

// NewAuthServiceAdapter はAuthServiceAdapterを生成する。
func NewAuthServiceAdapter(svc *auth.Service, gate GateForgetter) *AuthServiceAdapter {
	return &AuthServiceAdapter{svc: svc, gate: gate}
}

// SignIn はメールアドレスとパスワードで認証する。
func (a *AuthServiceAdapter) SignIn(ctx context.Context, email, password string) (*auth.Result, error) {
	return a.svc.SignIn(ctx, email, password)
}

// Refresh はトークンを再発行する。
func (a *AuthServiceAdapter) Refresh(ctx context.Context, token string) (*auth.Result, error) {
	return a.svc.Refresh(ctx, token)
}

// SignOut はセッションを破棄し、ゲートの認証状態も破棄する。
// セッション削除に失敗してもゲート側は破棄する。
func (a *AuthServiceAdapter) SignOut(ctx context.Context, sessionID string) error {
	defer a.gate.Forget(sessionID)
	return a.svc.SignOut(ctx, sessionID)
}

// BadgeAdapter は realtime.Badge を BadgeServiceInterface に適合させるアダプタ。
type BadgeAdapter struct {
	badge *realtime.Badge
}

// NewBadgeAdapter はBadgeAdapterを生成する。
func NewBadgeAdapter(badge *realtime.Badge) *BadgeAdapter {
	return &BadgeAdapter{badge: badge}
}

// Count は保持している件数を返す。まだ数えていなければその場で数える。
func (a *BadgeAdapter) Count(ctx context.Context) (int, error) {
	if n, ok := a.badge.Current(); ok {
		return n, nil
	}
	if err := a.badge.Refresh(ctx); err != nil {
		slog.Error("未着手件数の取得に失敗しました", slog.String("error", err.Error()))
		return 0, model.NewDataFetchFailedError(err.Error())
	}
	n, _ := a.badge.Current()
	return n, nil
}

// Subscribe は件数の変化を購読する。
func (a *BadgeAdapter) Subscribe() (<-chan int, func()) {
	return a.badge.Subscribe()
}

// --- compile-time interface checks ---

var _ AuthServiceInterface = (*AuthServiceAdapter)(nil)
var _ BadgeServiceInterface = (*BadgeAdapter)(nil)
