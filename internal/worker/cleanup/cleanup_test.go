package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// mockPurger は SessionPurger のモック実装。
type mockPurger struct {
	called  int
	before  time.Time
	deleted int64
	err     error
	ran     chan struct{}
}

func (m *mockPurger) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.called++
	m.before = before
	if m.ran != nil {
		m.ran <- struct{}{}
	}
	return m.deleted, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogField はJSONログ行からkeyを含む最初の値を返す。
func findLogField(buf *bytes.Buffer, key string) (any, bool) {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func TestNewCleanupJob_DefaultRetentionDays(t *testing.T) {
	var buf bytes.Buffer

	job := NewCleanupJob(&mockPurger{}, newTestLogger(&buf), 0)

	if job.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", job.RetentionDays)
	}
}

func TestCleanupJob_Run_PassesCutoff(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{deleted: 5}
	job := NewCleanupJob(purger, newTestLogger(&buf), 30)
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if purger.called != 1 {
		t.Fatalf("DeleteExpired called %d times, want 1", purger.called)
	}
	want := time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC)
	if !purger.before.Equal(want) {
		t.Errorf("before = %v, want %v", purger.before, want)
	}
}

func TestCleanupJob_Run_LogsDeletedCountAndRetention(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPurger{deleted: 42}, newTestLogger(&buf), 7)

	_ = job.Run(context.Background())

	if v, ok := findLogField(&buf, "deleted_count"); !ok || v != float64(42) {
		t.Errorf("ログに deleted_count=42 が記録されていない。ログ出力: %s", buf.String())
	}
	if v, ok := findLogField(&buf, "retention_days"); !ok || v != float64(7) {
		t.Errorf("ログに retention_days=7 が記録されていない。ログ出力: %s", buf.String())
	}
	if _, ok := findLogField(&buf, "duration_ms"); !ok {
		t.Errorf("ログに duration_ms が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_ReturnsAndLogsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPurger{err: sql.ErrConnDone}, newTestLogger(&buf), 7)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DBエラー時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "sql: connection is already closed") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPurger{}, newTestLogger(&buf), 7)

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
	if v, ok := findLogField(&buf, "deleted_count"); !ok || v != float64(0) {
		t.Errorf("0件削除時にもログに deleted_count=0 が記録されるべき。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_RunDaily_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{ran: make(chan struct{}, 1)}
	job := NewCleanupJob(purger, newTestLogger(&buf), 7)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.RunDaily(ctx, time.Hour)
		close(done)
	}()

	select {
	case <-purger.ran:
	case <-time.After(time.Second):
		t.Fatal("起動直後の実行が行われなかった")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunDaily がキャンセル後に終了しなかった")
	}
	if purger.called != 1 {
		t.Errorf("DeleteExpired called %d times, want 1", purger.called)
	}
}
