package authgate

import (
	"slices"

	"github.com/hitoshi/servicedesk/internal/model"
)

// LoginPath は未ログイン時のリダイレクト先。
const LoginPath = "/login"

// Outcome はゲート判定の結果種別。
type Outcome int

const (
	// OutcomePending はロールが未確定のため判定を保留する。呼び出し側はローディングを表示する。
	OutcomePending Outcome = iota
	OutcomeAdmit
	OutcomeRedirect
)

// Decision はゲート判定の結果。
type Decision struct {
	Outcome    Outcome
	RedirectTo string
}

// Admitted は表示を許可するかを返す。
func (d Decision) Admitted() bool {
	return d.Outcome == OutcomeAdmit
}

// Label はメトリクス・ログ用のラベルを返す。
func (d Decision) Label() string {
	switch d.Outcome {
	case OutcomeAdmit:
		return "admit"
	case OutcomeRedirect:
		if d.RedirectTo == LoginPath {
			return "redirect_login"
		}
		return "redirect_landing"
	default:
		return "pending"
	}
}

// LandingPath はロールごとの既定の画面を返す。
func LandingPath(role model.Role) string {
	switch role {
	case model.RoleTechnician:
		return "/technician"
	case model.RoleAdmin:
		return "/admin"
	default:
		return "/receptionist"
	}
}

// Evaluate は認証状態とロール要件から表示可否を判定する。
// required が空の場合はセッションがあれば許可する。
// ロールが未確定の間は required が空でない限り許可しない。
func Evaluate(snap Snapshot, required ...model.Role) Decision {
	switch snap.Status {
	case StatusAnonymous:
		return Decision{Outcome: OutcomeRedirect, RedirectTo: LoginPath}
	case StatusUnknown:
		return Decision{Outcome: OutcomePending}
	}

	if len(required) == 0 {
		return Decision{Outcome: OutcomeAdmit}
	}

	role, ok := snap.Role()
	if !ok {
		return Decision{Outcome: OutcomePending}
	}
	if !role.Valid() || !slices.Contains(required, role) {
		return Decision{Outcome: OutcomeRedirect, RedirectTo: LandingPath(role)}
	}
	return Decision{Outcome: OutcomeAdmit}
}

// viewRoles は画面名ごとの許可ロール。nilは認証済みなら誰でも可。
var viewRoles = map[string][]model.Role{
	"admin":        {model.RoleAdmin},
	"receptionist": {model.RoleReceptionist, model.RoleAdmin},
	"customers":    {model.RoleReceptionist, model.RoleAdmin},
	"technician":   {model.RoleTechnician, model.RoleAdmin},
	"settings":     nil,
}

// ViewRoles は画面名に対応する許可ロールを返す。未定義の画面名はfalse。
func ViewRoles(view string) ([]model.Role, bool) {
	roles, ok := viewRoles[view]
	return roles, ok
}
