package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type mockCounter struct {
	calls atomic.Int32
	value atomic.Int32
	err   error
}

func (m *mockCounter) CountNew(context.Context) (int, error) {
	m.calls.Add(1)
	if m.err != nil {
		return 0, m.err
	}
	return int(m.value.Load()), nil
}

type mockRecorder struct {
	mu     sync.Mutex
	events []string
	badge  int
}

func (m *mockRecorder) RecordRealtimeNotification(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockRecorder) SetNewOrderBadge(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.badge = n
}

func receive(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for badge value")
		return 0
	}
}

func TestBadge_RefreshPublishesToSubscribers(t *testing.T) {
	counter := &mockCounter{}
	counter.value.Store(3)
	rec := &mockRecorder{}
	b := NewBadge(counter, rec, time.Millisecond)

	if _, ok := b.Current(); ok {
		t.Fatal("Current() should be unknown before the first count")
	}

	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := receive(t, ch); got != 3 {
		t.Errorf("received %d, want 3", got)
	}
	if n, ok := b.Current(); !ok || n != 3 {
		t.Errorf("Current() = %d, %v", n, ok)
	}
	if rec.badge != 3 {
		t.Errorf("recorded badge = %d, want 3", rec.badge)
	}
}

func TestBadge_SubscribeReceivesKnownValueFirst(t *testing.T) {
	counter := &mockCounter{}
	counter.value.Store(7)
	b := NewBadge(counter, nil, time.Millisecond)
	_ = b.Refresh(context.Background())

	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	if got := receive(t, ch); got != 7 {
		t.Errorf("received %d, want 7", got)
	}
}

func TestBadge_UnchangedCountIsNotRepublished(t *testing.T) {
	counter := &mockCounter{}
	counter.value.Store(2)
	b := NewBadge(counter, nil, time.Millisecond)
	_ = b.Refresh(context.Background())

	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()
	receive(t, ch)

	_ = b.Refresh(context.Background())
	select {
	case n := <-ch:
		t.Errorf("unexpected publish of %d", n)
	default:
	}
}

func TestBadge_SlowSubscriberKeepsLatest(t *testing.T) {
	counter := &mockCounter{}
	b := NewBadge(counter, nil, time.Millisecond)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	for i := 1; i <= 5; i++ {
		counter.value.Store(int32(i))
		_ = b.Refresh(context.Background())
	}
	if got := receive(t, ch); got != 5 {
		t.Errorf("received %d, want latest 5", got)
	}
}

func TestBadge_NotifyCoalescesBurst(t *testing.T) {
	counter := &mockCounter{}
	counter.value.Store(1)
	b := NewBadge(counter, nil, 50*time.Millisecond)
	defer b.Stop()

	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	for i := 0; i < 10; i++ {
		b.Notify()
	}
	if got := receive(t, ch); got != 1 {
		t.Errorf("received %d, want 1", got)
	}
	if calls := counter.calls.Load(); calls != 1 {
		t.Errorf("CountNew called %d times, want 1", calls)
	}
}

func TestBadge_RefreshErrorKeepsPreviousValue(t *testing.T) {
	counter := &mockCounter{}
	counter.value.Store(4)
	b := NewBadge(counter, nil, time.Millisecond)
	_ = b.Refresh(context.Background())

	counter.err = errors.New("db down")
	if err := b.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() should return the count error")
	}
	if n, _ := b.Current(); n != 4 {
		t.Errorf("Current() = %d, want 4", n)
	}
}

func TestBadge_StopClosesSubscriptions(t *testing.T) {
	b := NewBadge(&mockCounter{}, nil, time.Millisecond)
	ch, unsubscribe := b.Subscribe()

	b.Stop()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Stop")
	}
	unsubscribe()
	b.Notify()
}

// gatedCounter は呼び出し順に応じた件数を返す。
// 1回目の呼び出しはreleaseが閉じられるまで返らない。
type gatedCounter struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (g *gatedCounter) CountNew(ctx context.Context) (int, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
		<-g.release
		return 1, nil
	}
	return 2, nil
}

func TestBadge_OlderRecountDoesNotOverwriteNewer(t *testing.T) {
	counter := &gatedCounter{started: make(chan struct{}), release: make(chan struct{})}
	b := NewBadge(counter, nil, time.Millisecond)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- b.Refresh(context.Background()) }()
	<-counter.started

	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := receive(t, ch); got != 2 {
		t.Fatalf("published %d, want 2", got)
	}

	close(counter.release)
	if err := <-done; err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if n, _ := b.Current(); n != 2 {
		t.Errorf("Current() = %d, want 2 after the older recount finished", n)
	}
	select {
	case n := <-ch:
		t.Errorf("older recount published %d", n)
	default:
	}
}
