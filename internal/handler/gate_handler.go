package handler

import (
	"net/http"

	"github.com/hitoshi/servicedesk/internal/authgate"
	"github.com/hitoshi/servicedesk/internal/middleware"
	"github.com/hitoshi/servicedesk/internal/model"
)

// GateHandler は画面単位のアクセス可否を判定するHTTPハンドラー。
type GateHandler struct {
	recorder middleware.DecisionRecorder
}

// NewGateHandler はGateHandlerを生成する。recorderはnilでもよい。
func NewGateHandler(recorder middleware.DecisionRecorder) *GateHandler {
	return &GateHandler{recorder: recorder}
}

// gateResponse は表示が許可された場合のレスポンス。
type gateResponse struct {
	View    string     `json:"view"`
	Outcome string     `json:"outcome"`
	Role    model.Role `json:"role,omitempty"`
}

// Check は指定された画面を呼び出し元が表示できるかを判定する。
// 許可されない場合はミドルウェアと同じ401/403/503のレスポンスを返す。
// GET /api/gate?view=<name>
func (h *GateHandler) Check(w http.ResponseWriter, r *http.Request) {
	view := r.URL.Query().Get("view")
	roles, ok := authgate.ViewRoles(view)
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("view", "admin、receptionist、technician、customers、settings のいずれかを指定してください"))
		return
	}

	snap := middleware.SnapshotFromContext(r.Context())
	decision := authgate.Evaluate(snap, roles...)
	if h.recorder != nil {
		h.recorder.RecordGateDecision(decision.Label())
	}

	if !decision.Admitted() {
		middleware.WriteGateDenial(w, r, decision)
		return
	}

	role, _ := snap.Role()
	writeJSON(w, http.StatusOK, gateResponse{
		View:    view,
		Outcome: decision.Label(),
		Role:    role,
	})
}
