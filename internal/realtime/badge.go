// Package realtime はサービスオーダーの変更通知を受けて未着手件数バッジを最新に保つ。
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// recountTimeout は件数再取得クエリのタイムアウト。
const recountTimeout = 5 * time.Second

// Counter は未着手サービスオーダー件数を数える。
type Counter interface {
	CountNew(ctx context.Context) (int, error)
}

// Recorder はリアルタイム通知のメトリクスを記録する。
type Recorder interface {
	RecordRealtimeNotification(event string)
	SetNewOrderBadge(n int)
}

// Badge は未着手件数を保持し、購読者へ配信する。
// 変更通知を受けるたびに件数を数え直す（差分は適用しない）。
// 通知が連続した場合はwindowの間だけ待ってから1回だけ数え直す。
type Badge struct {
	counter  Counter
	recorder Recorder
	window   time.Duration

	mu      sync.Mutex
	current int
	known   bool
	timer   *time.Timer
	subs    map[int]chan int
	nextID  int
	stopped bool

	// issued は開始した再取得の通番、applied は反映済みの最大通番。
	issued  uint64
	applied uint64
}

// NewBadge はBadgeを生成する。
func NewBadge(counter Counter, recorder Recorder, window time.Duration) *Badge {
	return &Badge{
		counter:  counter,
		recorder: recorder,
		window:   window,
		subs:     make(map[int]chan int),
	}
}

// Current は最後に数えた件数を返す。まだ一度も数えていなければfalseを返す。
func (b *Badge) Current() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, b.known
}

// Notify は件数の再取得を予約する。window内の通知はまとめて1回の再取得になる。
func (b *Badge) Notify() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	if b.timer != nil {
		b.timer.Reset(b.window)
		return
	}
	b.timer = time.AfterFunc(b.window, func() {
		b.mu.Lock()
		b.timer = nil
		b.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), recountTimeout)
		defer cancel()
		if err := b.Refresh(ctx); err != nil {
			slog.Error("未着手件数の再取得に失敗しました", slog.String("error", err.Error()))
		}
	})
}

// Refresh は件数を即座に数え直し、変化があれば購読者へ配信する。
// 再取得は並行して走りうるため、後から開始した再取得の結果が反映済みであれば
// 古い結果は捨てる。
func (b *Badge) Refresh(ctx context.Context) error {
	b.mu.Lock()
	b.issued++
	seq := b.issued
	b.mu.Unlock()

	n, err := b.counter.CountNew(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if seq <= b.applied {
		slog.Debug("古い未着手件数を破棄しました", slog.Int("count", n))
		return nil
	}
	b.applied = seq

	changed := !b.known || b.current != n
	b.current = n
	b.known = true
	if b.recorder != nil {
		b.recorder.SetNewOrderBadge(n)
	}
	if !changed {
		return nil
	}
	for _, ch := range b.subs {
		publish(ch, n)
	}
	return nil
}

// Subscribe は件数の変化を受け取るチャネルと購読解除関数を返す。
// 件数が既知であれば最初に現在値が届く。受信が遅い購読者には最新値のみが残る。
func (b *Badge) Subscribe() (<-chan int, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan int, 1)
	if b.known {
		ch <- b.current
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
}

// Stop は予約済みの再取得を取り消し、すべての購読チャネルを閉じる。
func (b *Badge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// publish はバッファ1のチャネルへ最新値を置く。未読の古い値は捨てる。
func publish(ch chan int, n int) {
	select {
	case ch <- n:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- n:
	default:
	}
}
