package authgate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/servicedesk/internal/model"
)

// profileFetchTimeout はプロフィール取得1回あたりの上限時間。
const profileFetchTimeout = 5 * time.Second

// ProfileFetcher はサブジェクトIDからプロフィールを取得する。
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, userID string) (*model.User, error)
}

// Recorder はゲートのメトリクスを記録するインターフェース。
type Recorder interface {
	RecordGateTransition(kind string)
	RecordProfileFetchLatency(duration time.Duration)
	SetActiveGateStores(n int)
}

type registryEntry struct {
	store    *Store
	lastSeen time.Time
}

// Registry はセッションIDごとのStoreを保持する。
// 一定時間参照されなかったStoreはバックグラウンドで破棄される。
type Registry struct {
	fetcher  ProfileFetcher
	recorder Recorder
	idleTTL  time.Duration

	mu      sync.Mutex
	entries map[string]*registryEntry

	now    func() time.Time
	stopCh chan struct{}
	once   sync.Once
}

// NewRegistry はRegistryを生成する。recorderはnilでもよい。
// クリーンアップを開始するにはStartを呼ぶ。
func NewRegistry(fetcher ProfileFetcher, recorder Recorder, idleTTL time.Duration) *Registry {
	return &Registry{
		fetcher:  fetcher,
		recorder: recorder,
		idleTTL:  idleTTL,
		entries:  make(map[string]*registryEntry),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Resolve はセッションを対応するStoreに反映し、反映後の状態を返す。
// サブジェクトが新しい場合はプロフィールを取得してから返す。
// 取得中に同じセッションで到着したリクエストは取得完了を待たずStatusAuthenticatedNoProfileを受け取る。
func (r *Registry) Resolve(ctx context.Context, session *model.Session) Snapshot {
	if session == nil {
		return Snapshot{Status: StatusAnonymous}
	}

	store := r.storeFor(session.ID)
	ticket, fetch := store.Observe(session)
	if fetch {
		r.fetchProfile(ctx, store, ticket, session.UserID)
	}
	return store.Snapshot()
}

// Forget はサインアウトしたセッションのStoreを破棄する。
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	n := len(r.entries)
	r.mu.Unlock()

	if ok {
		e.store.SignOut()
	}
	r.setActive(n)
}

// Len は保持中のStore数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Start はアイドルStoreのクリーンアップをバックグラウンドで開始する。
func (r *Registry) Start() {
	go r.cleanupLoop()
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (r *Registry) Stop() {
	r.once.Do(func() { close(r.stopCh) })
}

func (r *Registry) storeFor(sessionID string) *Store {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	if ok {
		// 取得失敗で確定したStoreは参照されても延命せず、アイドル破棄後に取得し直す
		if !e.store.Snapshot().FetchFailed {
			e.lastSeen = r.now()
		}
		r.mu.Unlock()
		return e.store
	}

	store := NewStore()
	store.Subscribe(r.observe)
	r.entries[sessionID] = &registryEntry{store: store, lastSeen: r.now()}
	n := len(r.entries)
	r.mu.Unlock()

	r.setActive(n)
	return store
}

// fetchProfile はプロフィールを取得してStoreに反映する。
// リクエストのキャンセルで取得失敗が確定しないよう、呼び出し元のキャンセルは引き継がない。
func (r *Registry) fetchProfile(ctx context.Context, store *Store, ticket Ticket, userID string) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), profileFetchTimeout)
	defer cancel()

	start := r.now()
	profile, err := r.fetcher.FetchProfile(fetchCtx, userID)
	if r.recorder != nil {
		r.recorder.RecordProfileFetchLatency(r.now().Sub(start))
	}

	if err != nil {
		slog.Error("profile fetch failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		if !store.ProfileFetchFailed(ticket) {
			slog.Debug("stale profile fetch failure discarded", slog.String("user_id", userID))
		}
		return
	}

	if !store.ProfileResolved(ticket, profile) {
		slog.Debug("stale profile discarded", slog.String("user_id", userID))
	}
}

func (r *Registry) observe(ev Event) {
	if r.recorder != nil {
		r.recorder.RecordGateTransition(string(ev.Transition))
	}
	if ev.Transition == TransitionSessionRefreshed {
		return
	}
	slog.Debug("auth state transition",
		slog.String("transition", string(ev.Transition)),
		slog.String("status", ev.Snapshot.Status.String()),
		slog.String("user_id", ev.Snapshot.SubjectID()),
	)
}

func (r *Registry) setActive(n int) {
	if r.recorder != nil {
		r.recorder.SetActiveGateStores(n)
	}
}

// cleanupLoop はバックグラウンドでアイドルStoreを定期的に破棄する。
func (r *Registry) cleanupLoop() {
	interval := r.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.stopCh:
			return
		}
	}
}

// evictIdle は最終参照からidleTTLを超えたStoreを破棄する。
// 破棄後に同じセッションが来た場合はプロフィールを取得し直す。
func (r *Registry) evictIdle() {
	now := r.now()

	r.mu.Lock()
	for id, e := range r.entries {
		if now.Sub(e.lastSeen) > r.idleTTL {
			delete(r.entries, id)
		}
	}
	n := len(r.entries)
	r.mu.Unlock()

	r.setActive(n)
}
