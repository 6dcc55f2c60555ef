package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/servicedesk/internal/authgate"
	"github.com/hitoshi/servicedesk/internal/model"
)

// profilePendingRetryAfter はプロフィール解決待ちの応答で返すRetry-After秒数。
const profilePendingRetryAfter = 1

// DecisionRecorder はゲート判定の結果を記録する。
type DecisionRecorder interface {
	RecordGateDecision(outcome string)
}

// RequireRoles はリクエストの認証状態をゲート判定し、許可された場合のみ次へ進める。
// rolesが空の場合はセッションがあれば許可する。
//   - 未ログイン: 401（redirect_to=/login）
//   - ロール不一致: 403（redirect_to=ロールの既定画面）
//   - ロール未確定: 503 + Retry-After（取得失敗で確定済みならRetry-Afterなし）
func RequireRoles(recorder DecisionRecorder, roles ...model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := SnapshotFromContext(r.Context())
			decision := authgate.Evaluate(snap, roles...)
			if recorder != nil {
				recorder.RecordGateDecision(decision.Label())
			}

			if decision.Admitted() {
				next.ServeHTTP(w, r)
				return
			}
			WriteGateDenial(w, r, decision)
		})
	}
}

// WriteGateDenial は許可されなかったゲート判定をHTTPレスポンスとして書き込む。
func WriteGateDenial(w http.ResponseWriter, r *http.Request, decision authgate.Decision) {
	switch {
	case decision.Outcome == authgate.OutcomeRedirect && decision.RedirectTo == authgate.LoginPath:
		WriteRedirectErrorResponse(w, http.StatusUnauthorized, authErrorFromContext(r.Context()), decision.RedirectTo)
	case decision.Outcome == authgate.OutcomeRedirect:
		snap := SnapshotFromContext(r.Context())
		role, _ := snap.Role()
		slog.Warn("access denied by role gate",
			slog.String("user_id", snap.SubjectID()),
			slog.String("role", string(role)),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		WriteRedirectErrorResponse(w, http.StatusForbidden, model.NewForbiddenError(), decision.RedirectTo)
	case SnapshotFromContext(r.Context()).FetchFailed:
		WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewProfileUnavailableError())
	default:
		w.Header().Set("Retry-After", strconv.Itoa(profilePendingRetryAfter))
		WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewProfilePendingError())
	}
}
