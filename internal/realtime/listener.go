package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	pingInterval         = 90 * time.Second
)

// Notifier は変更通知を受け取る。Badgeが実装する。
type Notifier interface {
	Notify()
}

// Listener はPostgreSQLのLISTEN/NOTIFYでサービスオーダーの変更を購読する。
// ペイロードはトリガーのTG_OP（INSERT/UPDATE/DELETE）。
type Listener struct {
	dsn      string
	channel  string
	events   map[string]bool
	target   Notifier
	recorder Recorder
}

// NewListener はListenerを生成する。eventsが空の場合はすべてのイベントを受け付ける。
func NewListener(dsn, channel string, events []string, target Notifier, recorder Recorder) *Listener {
	accepted := make(map[string]bool, len(events))
	for _, e := range events {
		e = strings.ToUpper(strings.TrimSpace(e))
		if e != "" {
			accepted[e] = true
		}
	}
	return &Listener{
		dsn:      dsn,
		channel:  channel,
		events:   accepted,
		target:   target,
		recorder: recorder,
	}
}

// Run はctxがキャンセルされるまで通知を受信する。
func (l *Listener) Run(ctx context.Context) error {
	pl := pq.NewListener(l.dsn, minReconnectInterval, maxReconnectInterval, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			if err != nil {
				slog.Warn("通知リスナーの接続が切断されました", slog.String("error", err.Error()))
			}
		case pq.ListenerEventReconnected:
			slog.Info("通知リスナーが再接続しました", slog.String("channel", l.channel))
		}
	})
	defer pl.Close()

	if err := pl.Listen(l.channel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.channel, err)
	}
	slog.Info("変更通知の購読を開始しました", slog.String("channel", l.channel))

	return l.consume(ctx, pl.NotificationChannel(), pl.Ping)
}

// consume は通知チャネルを読み続ける。一定時間通知がない場合はpingで接続を確認する。
func (l *Listener) consume(ctx context.Context, ch <-chan *pq.Notification, ping func() error) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			l.Handle(n)
		case <-ticker.C:
			if ping == nil {
				continue
			}
			if err := ping(); err != nil {
				slog.Warn("通知リスナーのpingに失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}

// Handle は1件の通知を処理し、受け付けた場合はtrueを返す。
// nilは再接続を意味し、その間の通知を取りこぼした可能性があるため必ず数え直す。
func (l *Listener) Handle(n *pq.Notification) bool {
	event := "reconnect"
	if n != nil {
		if n.Channel != l.channel {
			return false
		}
		event = strings.ToUpper(strings.TrimSpace(n.Extra))
		if len(l.events) > 0 && !l.events[event] {
			slog.Debug("対象外の変更通知を無視しました", slog.String("event", event))
			return false
		}
	}

	if l.recorder != nil {
		l.recorder.RecordRealtimeNotification(event)
	}
	l.target.Notify()
	return true
}
