package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
)

type countingNotifier struct {
	n int
}

func (c *countingNotifier) Notify() { c.n++ }

func TestListener_Handle(t *testing.T) {
	tests := []struct {
		name       string
		events     []string
		n          *pq.Notification
		want       bool
		wantRecord string
	}{
		{"insert accepted", []string{"INSERT", "UPDATE"}, &pq.Notification{Channel: "orders", Extra: "INSERT"}, true, "INSERT"},
		{"lowercase payload", []string{"INSERT"}, &pq.Notification{Channel: "orders", Extra: "insert"}, true, "INSERT"},
		{"filtered event", []string{"INSERT"}, &pq.Notification{Channel: "orders", Extra: "DELETE"}, false, ""},
		{"other channel", nil, &pq.Notification{Channel: "other", Extra: "INSERT"}, false, ""},
		{"no filter accepts all", nil, &pq.Notification{Channel: "orders", Extra: "TRUNCATE"}, true, "TRUNCATE"},
		{"reconnect forces recount", []string{"INSERT"}, nil, true, "reconnect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &countingNotifier{}
			rec := &mockRecorder{}
			l := NewListener("", "orders", tt.events, target, rec)

			if got := l.Handle(tt.n); got != tt.want {
				t.Errorf("Handle() = %v, want %v", got, tt.want)
			}
			wantCalls := 0
			if tt.want {
				wantCalls = 1
			}
			if target.n != wantCalls {
				t.Errorf("Notify called %d times, want %d", target.n, wantCalls)
			}
			if tt.wantRecord != "" && (len(rec.events) != 1 || rec.events[0] != tt.wantRecord) {
				t.Errorf("recorded = %v, want [%s]", rec.events, tt.wantRecord)
			}
		})
	}
}

func TestListener_ConsumeStopsOnCancel(t *testing.T) {
	target := &countingNotifier{}
	l := NewListener("", "orders", nil, target, nil)
	ch := make(chan *pq.Notification, 2)
	ch <- &pq.Notification{Channel: "orders", Extra: "UPDATE"}
	ch <- &pq.Notification{Channel: "orders", Extra: "INSERT"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.consume(ctx, ch, nil) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(ch) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("consume() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not return after cancel")
	}
}
