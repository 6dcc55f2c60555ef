package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/servicedesk/internal/authgate"
	"github.com/hitoshi/servicedesk/internal/model"
	"github.com/hitoshi/servicedesk/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn    func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn      func(ctx context.Context, u *model.User) error
	listFn        func(ctx context.Context) ([]*model.User, error)
	deleteByIDFn  func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, u *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, u)
	}
	return nil
}

func (m *mockUserRepo) List(ctx context.Context) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockSessionRepo struct {
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(context.Context, *model.Session) error { return nil }
func (m *mockSessionRepo) FindByID(context.Context, string) (*model.Session, error) {
	return nil, nil
}
func (m *mockSessionRepo) Refresh(context.Context, string, time.Time) (*model.Session, error) {
	return nil, nil
}
func (m *mockSessionRepo) DeleteByID(context.Context, string) error { return nil }
func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}
func (m *mockSessionRepo) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)

const (
	adminID  = "0b6f6c1e-4b1a-4d55-9a3e-2f7f3f9d1a01"
	techID   = "7c1d2e3f-5a6b-4c7d-8e9f-0a1b2c3d4e5f"
	targetID = "d5e6f7a8-b9c0-4d1e-8f2a-3b4c5d6e7f80"
)

func adminSnapshot(id string) authgate.Snapshot {
	return authgate.Snapshot{
		Status:  authgate.StatusAuthenticated,
		Session: &model.Session{ID: "s-" + id, UserID: id},
		Profile: &model.User{ID: id, Role: model.RoleAdmin},
	}
}

func assertCode(t *testing.T, err error, want string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", want, err)
	}
	if apiErr.Code != want {
		t.Errorf("code = %q, want %q", apiErr.Code, want)
	}
}

// --- DeleteUser ---

// TestDeleteUser_Success はセッション、ユーザーの順に削除されることを検証する。
func TestDeleteUser_Success(t *testing.T) {
	var order []string
	userRepo := &mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		deleteByIDFn: func(_ context.Context, id string) error {
			order = append(order, "user:"+id)
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(_ context.Context, userID string) error {
			order = append(order, "sessions:"+userID)
			return nil
		},
	}
	svc := NewService(userRepo, sessionRepo, fakeHasher{})

	res, err := svc.DeleteUser(context.Background(), adminSnapshot(adminID), techID)
	if err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if !res.Success || res.UserID != techID {
		t.Errorf("result = %+v", res)
	}
	if len(order) != 2 || order[0] != "sessions:"+techID || order[1] != "user:"+techID {
		t.Errorf("deletion order = %v", order)
	}
}

func TestDeleteUser_CallerChecks(t *testing.T) {
	tests := []struct {
		name   string
		caller authgate.Snapshot
	}{
		{"anonymous", authgate.Snapshot{Status: authgate.StatusAnonymous}},
		{"profile not resolved", authgate.Snapshot{
			Status:  authgate.StatusAuthenticatedNoProfile,
			Session: &model.Session{UserID: "u1"},
		}},
		{"receptionist", authgate.Snapshot{
			Status:  authgate.StatusAuthenticated,
			Session: &model.Session{UserID: "u1"},
			Profile: &model.User{ID: "u1", Role: model.RoleReceptionist},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&mockUserRepo{
				findByIDFn: func(context.Context, string) (*model.User, error) {
					t.Error("repository must not be called for a rejected caller")
					return nil, nil
				},
			}, &mockSessionRepo{}, fakeHasher{})

			_, err := svc.DeleteUser(context.Background(), tt.caller, targetID)
			assertCode(t, err, model.ErrCodeForbidden)
		})
	}
}

func TestDeleteUser_InputErrors(t *testing.T) {
	tests := []struct {
		name     string
		targetID string
		wantCode string
	}{
		{"blank", "  ", model.ErrCodeValidationFailed},
		{"self", adminID, model.ErrCodeSelfDeletion},
		{"malformed id", "abc", model.ErrCodeValidationFailed},
		{"sql-looking id", "1; DROP TABLE users", model.ErrCodeValidationFailed},
		{"unknown user", targetID, model.ErrCodeUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&mockUserRepo{
				findByIDFn: func(_ context.Context, id string) (*model.User, error) {
					if id != targetID {
						t.Errorf("FindByID called with %q", id)
					}
					return nil, nil
				},
			}, &mockSessionRepo{}, fakeHasher{})

			_, err := svc.DeleteUser(context.Background(), adminSnapshot(adminID), tt.targetID)
			assertCode(t, err, tt.wantCode)
		})
	}
}

// TestDeleteUser_SessionDeleteFails はセッション削除失敗時にユーザーを削除しないことを検証する。
func TestDeleteUser_SessionDeleteFails(t *testing.T) {
	userDeleteCalled := false
	userRepo := &mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		deleteByIDFn: func(context.Context, string) error {
			userDeleteCalled = true
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(context.Context, string) error {
			return errors.New("db error")
		},
	}
	svc := NewService(userRepo, sessionRepo, fakeHasher{})

	_, err := svc.DeleteUser(context.Background(), adminSnapshot(adminID), targetID)
	if err == nil {
		t.Fatal("DeleteUser() should fail")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("unclassified failure should not be an APIError, got %v", apiErr.Code)
	}
	if userDeleteCalled {
		t.Error("user must not be deleted when session deletion fails")
	}
}

// --- Create ---

func validInput() CreateInput {
	return CreateInput{
		Email:                " Tech@Example.com ",
		FullName:             "Sari",
		Role:                 model.RoleTechnician,
		Password:             "secret123",
		PasswordConfirmation: "secret123",
	}
}

func TestCreate_Success(t *testing.T) {
	var saved *model.User
	svc := NewService(&mockUserRepo{createFn: func(_ context.Context, u *model.User) error {
		saved = u
		return nil
	}}, &mockSessionRepo{}, fakeHasher{})

	u, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if saved != u {
		t.Fatal("created user was not saved")
	}
	if u.Email != "tech@example.com" || u.PasswordHash != "hashed:secret123" || !u.Confirmed() {
		t.Errorf("user = %+v", u)
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*CreateInput)
	}{
		{"bad email", func(in *CreateInput) { in.Email = "not-an-email" }},
		{"missing name", func(in *CreateInput) { in.FullName = "" }},
		{"unknown role", func(in *CreateInput) { in.Role = "manager" }},
		{"short password", func(in *CreateInput) { in.Password, in.PasswordConfirmation = "abc12", "abc12" }},
		{"letters only", func(in *CreateInput) { in.Password, in.PasswordConfirmation = "abcdefgh", "abcdefgh" }},
		{"digits only", func(in *CreateInput) { in.Password, in.PasswordConfirmation = "12345678", "12345678" }},
		{"confirmation mismatch", func(in *CreateInput) { in.PasswordConfirmation = "secret124" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&mockUserRepo{createFn: func(context.Context, *model.User) error {
				t.Error("Create must not reach the repository")
				return nil
			}}, &mockSessionRepo{}, fakeHasher{})

			in := validInput()
			tt.modify(&in)
			_, err := svc.Create(context.Background(), in)
			assertCode(t, err, model.ErrCodeValidationFailed)
		})
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	svc := NewService(&mockUserRepo{createFn: func(context.Context, *model.User) error {
		return repository.ErrDuplicateEmail
	}}, &mockSessionRepo{}, fakeHasher{})

	_, err := svc.Create(context.Background(), validInput())
	assertCode(t, err, model.ErrCodeEmailAlreadyExists)
}

func TestBootstrapAdmin(t *testing.T) {
	existing := &model.User{ID: "a1", Email: "admin@example.com", Role: model.RoleAdmin}
	svc := NewService(&mockUserRepo{findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
		if email == existing.Email {
			return existing, nil
		}
		return nil, nil
	}}, &mockSessionRepo{}, fakeHasher{})
	ctx := context.Background()

	u, created, err := svc.BootstrapAdmin(ctx, "admin@example.com", "Admin", "adminpass1")
	if err != nil || created || u != existing {
		t.Errorf("existing admin: u=%v created=%v err=%v", u, created, err)
	}

	u, created, err = svc.BootstrapAdmin(ctx, "new@example.com", "Admin", "adminpass1")
	if err != nil || !created || u.Role != model.RoleAdmin {
		t.Errorf("new admin: u=%v created=%v err=%v", u, created, err)
	}
}
