// Package authgate はセッションとプロフィールから成る認証状態を保持し、
// 画面ごとのロール要件に対するアクセス可否を判定する。
package authgate

import (
	"sync"

	"github.com/hitoshi/servicedesk/internal/model"
)

// Status は認証状態を表す。
type Status int

const (
	// StatusUnknown は初期状態。セッションの有無がまだ確認されていない。
	StatusUnknown Status = iota
	// StatusAnonymous はセッションがない状態。
	StatusAnonymous
	// StatusAuthenticatedNoProfile はセッションはあるがプロフィールが未取得（取得中または取得失敗）の状態。
	StatusAuthenticatedNoProfile
	// StatusAuthenticated はセッションとロール付きプロフィールが揃った状態。
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticatedNoProfile:
		return "authenticated_no_profile"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Snapshot はある時点の認証状態のコピー。読み取り側はこれだけを参照する。
type Snapshot struct {
	Status  Status
	Session *model.Session
	Profile *model.User
	// FetchFailed はプロフィール取得が失敗して確定したことを示す。
	FetchFailed bool
}

// Role はプロフィールが解決済みの場合にロールを返す。
func (s Snapshot) Role() (model.Role, bool) {
	if s.Status != StatusAuthenticated || s.Profile == nil {
		return "", false
	}
	return s.Profile.Role, true
}

// SubjectID はセッションのサブジェクト（ユーザーID）を返す。セッションがなければ空文字列。
func (s Snapshot) SubjectID() string {
	if s.Session == nil {
		return ""
	}
	return s.Session.UserID
}

// Transition は状態遷移の種別。
type Transition string

const (
	TransitionSignIn             Transition = "sign_in"
	TransitionSessionRefreshed   Transition = "session_refreshed"
	TransitionSignOut            Transition = "sign_out"
	TransitionProfileResolved    Transition = "profile_resolved"
	TransitionProfileFetchFailed Transition = "profile_fetch_failed"
)

// Event はObserverに通知される遷移と遷移後の状態。
type Event struct {
	Transition Transition
	Snapshot   Snapshot
}

// Observer は状態遷移の通知を受け取る関数。
// Storeのロック内で呼ばれるため、Observerから同じStoreを操作してはならない。
type Observer func(Event)

// Ticket はプロフィール取得ごとに払い出される単調増加の番号。
// 取得結果は払い出し時のTicketとともに返却し、最新でなければ破棄される。
type Ticket uint64

// Store は1つのセッションに対応する認証状態を保持する。
// 状態の変更は遷移メソッドを通してのみ行われる。
type Store struct {
	mu          sync.Mutex
	snap        Snapshot
	lastSubject string
	seq         Ticket
	pending     Ticket
	observers   map[int]Observer
	nextObsID   int
}

// NewStore はStatusUnknownのStoreを生成する。
func NewStore() *Store {
	return &Store{observers: make(map[int]Observer)}
}

// Snapshot は現在の状態のコピーを返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe はObserverを登録し、登録解除関数を返す。
func (s *Store) Subscribe(fn Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// Observe は認証プロバイダーから得たセッションを状態に反映する。
// nilはサインアウト、同一サブジェクトはセッション更新、それ以外はサインインとして扱う。
// プロフィール取得を開始すべき場合はTicketとtrueを返す。
func (s *Store) Observe(session *model.Session) (Ticket, bool) {
	if session == nil {
		s.SignOut()
		return 0, false
	}
	if s.SessionRefreshed(session) {
		return 0, false
	}
	return s.SignIn(session)
}

// SignIn はセッションを受け入れる。
// サブジェクトが直前に取得を試みたものと同じ場合はプロフィールを再取得せず、
// セッションのみ差し替えて false を返す。
func (s *Store) SignIn(session *model.Session) (Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Status != StatusAnonymous && s.snap.Status != StatusUnknown &&
		session.UserID == s.lastSubject {
		s.snap.Session = session
		s.emit(TransitionSessionRefreshed)
		return 0, false
	}

	s.lastSubject = session.UserID
	s.seq++
	s.pending = s.seq
	s.snap = Snapshot{
		Status:  StatusAuthenticatedNoProfile,
		Session: session,
	}
	s.emit(TransitionSignIn)

	return s.pending, true
}

// SessionRefreshed はトークン更新を反映する。プロフィールには触れない。
// サインイン済みかつ同一サブジェクトの場合のみ適用し、適用したかを返す。
func (s *Store) SessionRefreshed(session *model.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Session == nil || s.snap.Session.UserID != session.UserID {
		return false
	}
	s.snap.Session = session
	s.emit(TransitionSessionRefreshed)
	return true
}

// SignOut はセッションとプロフィールを破棄する。取得中のTicketは無効になる。
func (s *Store) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSubject = ""
	s.pending = 0
	s.snap = Snapshot{Status: StatusAnonymous}
	s.emit(TransitionSignOut)
}

// ProfileResolved は取得したプロフィールを反映する。
// Ticketが最新でない場合、またはプロフィールが現在のサブジェクトと一致しない場合は破棄してfalseを返す。
func (s *Store) ProfileResolved(ticket Ticket, profile *model.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket == 0 || ticket != s.pending || profile == nil ||
		s.snap.Session == nil || profile.ID != s.snap.Session.UserID {
		return false
	}

	s.pending = 0
	s.snap.Status = StatusAuthenticated
	s.snap.Profile = profile
	s.snap.FetchFailed = false
	s.emit(TransitionProfileResolved)
	return true
}

// ProfileFetchFailed はプロフィール取得の失敗を反映する。
// セッションは保持したままStatusAuthenticatedNoProfileに留まる。自動リトライはしない。
func (s *Store) ProfileFetchFailed(ticket Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket == 0 || ticket != s.pending {
		return false
	}

	s.pending = 0
	s.snap.FetchFailed = true
	s.emit(TransitionProfileFetchFailed)
	return true
}

func (s *Store) emit(t Transition) {
	ev := Event{Transition: t, Snapshot: s.snap}
	for _, fn := range s.observers {
		fn(ev)
	}
}
