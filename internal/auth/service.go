// Package auth はパスワード認証、セッショントークンの発行と検証、セッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/servicedesk/internal/model"
	"github.com/hitoshi/servicedesk/internal/repository"
)

// サインイン結果のメトリクスラベル。
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeUnconfirmed        = "unconfirmed"
	OutcomeError              = "error"
)

// SignInRecorder はサインイン結果を記録するインターフェース。
type SignInRecorder interface {
	RecordSignIn(outcome string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Result はサインイン・リフレッシュで発行されたセッションとトークン。
type Result struct {
	Session        *model.Session
	Token          string
	TokenExpiresAt time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	hasher      *PasswordHasher
	tokens      *TokenIssuer
	recorder    SignInRecorder
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	hasher *PasswordHasher,
	tokens *TokenIssuer,
	recorder SignInRecorder,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		hasher:      hasher,
		tokens:      tokens,
		recorder:    recorder,
		config:      config,
		now:         time.Now,
	}
}

// SignIn はメールアドレスとパスワードで認証し、セッションを発行する。
// 未登録のメールアドレスとパスワード不一致は区別せず INVALID_CREDENTIALS を返す。
// 自動リトライは行わない。
func (s *Service) SignIn(ctx context.Context, email, password string) (*Result, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		s.record(OutcomeInvalidCredentials)
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		s.record(OutcomeError)
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.record(OutcomeInvalidCredentials)
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		s.record(OutcomeError)
		return nil, err
	}
	if !ok {
		s.record(OutcomeInvalidCredentials)
		slog.Warn("sign-in rejected",
			slog.String("user_id", user.ID),
			slog.String("reason", OutcomeInvalidCredentials),
		)
		return nil, model.NewInvalidCredentialsError()
	}
	if !user.Confirmed() {
		s.record(OutcomeUnconfirmed)
		return nil, model.NewEmailNotConfirmedError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		s.record(OutcomeError)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, expiresAt, err := s.tokens.Issue(session)
	if err != nil {
		s.record(OutcomeError)
		return nil, err
	}

	s.record(OutcomeSuccess)
	slog.Info("user signed in",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.ID),
	)

	return &Result{Session: session, Token: token, TokenExpiresAt: expiresAt}, nil
}

// Authenticate はトークンを検証し、有効なセッションを返す。
// トークン期限切れとセッション失効は SESSION_EXPIRED、それ以外の不正は UNAUTHORIZED を返す。
func (s *Service) Authenticate(ctx context.Context, token string) (*model.Session, error) {
	claims, err := s.tokens.Parse(token)
	if errors.Is(err, ErrTokenExpired) {
		return nil, model.NewSessionExpiredError()
	}
	if err != nil {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionExpiredError()
	}
	if session.UserID != claims.Subject {
		return nil, model.NewUnauthorizedError()
	}

	return session, nil
}

// Refresh はトークンを再発行し、セッションの有効期限を延長する。
// トークン自体の期限切れは許容するが、セッション行が失効している場合は SESSION_EXPIRED を返す。
// サブジェクトは変わらないため、プロフィールの再取得は発生しない。
func (s *Service) Refresh(ctx context.Context, token string) (*Result, error) {
	claims, err := s.tokens.ParseIgnoringExpiry(token)
	if err != nil {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessionRepo.Refresh(ctx, claims.SessionID, s.sessionExpiry())
	if err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	if session == nil || session.UserID != claims.Subject {
		return nil, model.NewSessionExpiredError()
	}

	newToken, expiresAt, err := s.tokens.Issue(session)
	if err != nil {
		return nil, err
	}

	slog.Debug("session refreshed",
		slog.String("user_id", session.UserID),
		slog.String("session_id", session.ID),
	)

	return &Result{Session: session, Token: newToken, TokenExpiresAt: expiresAt}, nil
}

// SignOut はセッションを破棄する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out", slog.String("session_id", sessionID))
	return nil
}

// FetchProfile はセッションのサブジェクトIDに対応するプロフィールを取得する。
// プロフィールが存在しない場合もエラーとして扱う。
func (s *Service) FetchProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("profile not found for subject %s", userID)
	}
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	now := s.now()
	session := &model.Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		ExpiresAt:   s.sessionExpiry(),
		CreatedAt:   now,
		RefreshedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func (s *Service) sessionExpiry() time.Time {
	return s.now().Add(time.Duration(s.config.SessionMaxAge) * time.Second)
}

func (s *Service) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordSignIn(outcome)
	}
}
