// Package user はスタッフアカウントの管理と管理者によるアカウント削除を提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/hitoshi/servicedesk/internal/authgate"
	"github.com/hitoshi/servicedesk/internal/customer"
	"github.com/hitoshi/servicedesk/internal/model"
	"github.com/hitoshi/servicedesk/internal/repository"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 8

// PasswordHasher はパスワードをハッシュ化する。
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// CreateInput はユーザー作成の入力値。
type CreateInput struct {
	Email                string     `json:"email"`
	FullName             string     `json:"full_name"`
	Phone                string     `json:"phone"`
	Role                 model.Role `json:"role"`
	Password             string     `json:"password"`
	PasswordConfirmation string     `json:"password_confirmation"`
}

// DeleteResult はアカウント削除の結果。
type DeleteResult struct {
	Success bool   `json:"success"`
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	hasher      PasswordHasher
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	hasher PasswordHasher,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		hasher:      hasher,
		now:         time.Now,
	}
}

// List はすべてのユーザーを返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, model.NewDataFetchFailedError(err.Error())
	}
	return users, nil
}

// Create はユーザーを作成する。管理者が作成したアカウントはメールアドレス確認済みとして扱う。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	in.Phone = strings.TrimSpace(in.Phone)
	if apiErr := validateCreate(in); apiErr != nil {
		return nil, apiErr
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := s.now()
	u := &model.User{
		ID:               uuid.New().String(),
		Email:            in.Email,
		FullName:         in.FullName,
		Phone:            in.Phone,
		Role:             in.Role,
		PasswordHash:     hash,
		EmailConfirmedAt: &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailAlreadyExistsError(in.Email)
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを作成しました",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
	)
	return u, nil
}

// DeleteUser は管理者の操作としてユーザーを削除する。
// 呼び出し元のロールは呼び出し元自身の解決済みプロフィールから判定する。
// 削除順序: sessions → user（user_settingsはCASCADE削除）
func (s *Service) DeleteUser(ctx context.Context, caller authgate.Snapshot, targetID string) (*DeleteResult, error) {
	role, ok := caller.Role()
	if !ok || role != model.RoleAdmin {
		slog.Warn("ユーザー削除を拒否しました",
			slog.String("caller_id", caller.SubjectID()),
			slog.String("status", caller.Status.String()),
		)
		return nil, model.NewForbiddenError()
	}

	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, model.NewValidationError("user_id", "削除対象のユーザーIDは必須です")
	}
	if targetID == caller.SubjectID() {
		return nil, model.NewSelfDeletionError()
	}
	if !model.ValidID(targetID) {
		return nil, model.NewValidationError("user_id", "ユーザーIDの形式が正しくありません")
	}

	target, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if target == nil {
		return nil, model.NewUserNotFoundError()
	}

	if err := s.sessionRepo.DeleteByUserID(ctx, targetID); err != nil {
		return nil, fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	if err := s.userRepo.DeleteByID(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("ユーザーを削除しました",
		slog.String("user_id", targetID),
		slog.String("deleted_by", caller.SubjectID()),
	)

	return &DeleteResult{
		Success: true,
		UserID:  targetID,
		Message: "ユーザーを削除しました",
	}, nil
}

// BootstrapAdmin は最初の管理者アカウントを作成する。
// 既に同じメールアドレスのユーザーが存在する場合は何もしない。
func (s *Service) BootstrapAdmin(ctx context.Context, email, fullName, password string) (*model.User, bool, error) {
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	u, err := s.Create(ctx, CreateInput{
		Email:                email,
		FullName:             fullName,
		Role:                 model.RoleAdmin,
		Password:             password,
		PasswordConfirmation: password,
	})
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func validateCreate(in CreateInput) *model.APIError {
	if in.Email == "" {
		return model.NewValidationError("email", "メールアドレスは必須です")
	}
	if !customer.ValidEmail(in.Email) {
		return model.NewValidationError("email", "メールアドレスの形式が正しくありません")
	}
	if in.FullName == "" {
		return model.NewValidationError("full_name", "氏名は必須です")
	}
	if !in.Role.Valid() {
		return model.NewValidationError("role", "admin、receptionist、technician のいずれかを指定してください")
	}
	if len([]rune(in.Password)) < MinPasswordLength {
		return model.NewValidationError("password", fmt.Sprintf("パスワードは%d文字以上で入力してください", MinPasswordLength))
	}
	var hasLetter, hasDigit bool
	for _, r := range in.Password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return model.NewValidationError("password", "パスワードには英字と数字を含めてください")
	}
	if in.Password != in.PasswordConfirmation {
		return model.NewValidationError("password_confirmation", "確認用パスワードが一致しません")
	}
	return nil
}
