package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// sseKeepAliveInterval はSSE接続を維持するコメント行の送信間隔。
const sseKeepAliveInterval = 25 * time.Second

// BadgeServiceInterface は未着手件数バッジのサービスインターフェース。
type BadgeServiceInterface interface {
	// Count は現在の未着手件数を返す。
	Count(ctx context.Context) (int, error)
	// Subscribe は件数の変化を受け取るチャネルと購読解除関数を返す。
	Subscribe() (<-chan int, func())
}

// BadgeHandler は未着手件数バッジのHTTPハンドラー。
type BadgeHandler struct {
	service BadgeServiceInterface
}

// NewBadgeHandler はBadgeHandlerを生成する。
func NewBadgeHandler(service BadgeServiceInterface) *BadgeHandler {
	return &BadgeHandler{service: service}
}

type badgeResponse struct {
	Count int `json:"count"`
}

// NewOrders は未着手のサービスオーダー件数を返す。
// GET /api/badges/new-orders
func (h *BadgeHandler) NewOrders(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Count(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badgeResponse{Count: n})
}

// Stream は件数の変化をServer-Sent Eventsで配信する。
// 接続直後に現在値を1回送り、以降は変化のたびに送る。
// GET /api/badges/stream
func (h *BadgeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// サーバー全体のWriteTimeoutで長時間接続が切られないよう解除する。
	_ = rc.SetWriteDeadline(time.Time{})

	updates, unsubscribe := h.service.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if n, err := h.service.Count(r.Context()); err == nil {
		if !writeBadgeEvent(w, rc, n) {
			return
		}
	}

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case n, ok := <-updates:
			if !ok {
				return
			}
			if !writeBadgeEvent(w, rc, n) {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// writeBadgeEvent は件数を1イベントとして書き込む。書き込めなかった場合はfalseを返す。
func writeBadgeEvent(w http.ResponseWriter, rc *http.ResponseController, n int) bool {
	if _, err := fmt.Fprintf(w, "event: new-orders\ndata: {\"count\":%d}\n\n", n); err != nil {
		return false
	}
	if err := rc.Flush(); err != nil {
		slog.Debug("failed to flush badge event", slog.String("error", err.Error()))
		return false
	}
	return true
}
