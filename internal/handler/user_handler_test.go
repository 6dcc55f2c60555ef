package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/servicedesk/internal/authgate"
	"github.com/hitoshi/servicedesk/internal/model"
	"github.com/hitoshi/servicedesk/internal/user"
)

// --- モック定義 ---

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	listFn       func(ctx context.Context) ([]*model.User, error)
	createFn     func(ctx context.Context, in user.CreateInput) (*model.User, error)
	deleteUserFn func(ctx context.Context, caller authgate.Snapshot, targetID string) (*user.DeleteResult, error)
}

func (m *mockUserService) List(ctx context.Context) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockUserService) Create(ctx context.Context, in user.CreateInput) (*model.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return &model.User{ID: "u-new", Email: in.Email, Role: in.Role}, nil
}

func (m *mockUserService) DeleteUser(ctx context.Context, caller authgate.Snapshot, targetID string) (*user.DeleteResult, error) {
	if m.deleteUserFn != nil {
		return m.deleteUserFn(ctx, caller, targetID)
	}
	return &user.DeleteResult{Success: true, UserID: targetID}, nil
}

// --- List / Create ---

func TestUserHandler_List_OmitsPasswordHash(t *testing.T) {
	svc := &mockUserService{
		listFn: func(context.Context) ([]*model.User, error) {
			return []*model.User{{ID: "u-1", Email: "a@example.com", Role: model.RoleAdmin, PasswordHash: "$2a$secret"}}, nil
		},
	}
	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if strings.Contains(w.Body.String(), "secret") {
		t.Errorf("response must not contain the password hash: %s", w.Body.String())
	}
}

func TestUserHandler_Create_DuplicateEmail_Returns409(t *testing.T) {
	svc := &mockUserService{
		createFn: func(_ context.Context, in user.CreateInput) (*model.User, error) {
			return nil, model.NewEmailAlreadyExistsError(in.Email)
		},
	}
	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/users",
		strings.NewReader(`{"email":"a@example.com","full_name":"A","role":"technician","password":"abc12345","password_confirmation":"abc12345"}`))
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestUserHandler_Create_Returns201(t *testing.T) {
	var got user.CreateInput
	svc := &mockUserService{
		createFn: func(_ context.Context, in user.CreateInput) (*model.User, error) {
			got = in
			return &model.User{ID: "u-2", Email: in.Email, Role: in.Role}, nil
		},
	}
	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/users",
		strings.NewReader(`{"email":"t@example.com","full_name":"T","role":"technician","password":"abc12345","password_confirmation":"abc12345"}`))
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got.Role != model.RoleTechnician || got.PasswordConfirmation != "abc12345" {
		t.Errorf("unexpected input: %+v", got)
	}
}

// --- POST /api/admin/delete-user ---

func TestUserHandler_Delete_Success(t *testing.T) {
	var gotCaller authgate.Snapshot
	var gotTarget string
	svc := &mockUserService{
		deleteUserFn: func(_ context.Context, caller authgate.Snapshot, targetID string) (*user.DeleteResult, error) {
			gotCaller, gotTarget = caller, targetID
			return &user.DeleteResult{Success: true, UserID: targetID, Message: "ok"}, nil
		},
	}
	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/delete-user", strings.NewReader(`{"user_id":"u-9"}`))
	req = withSnapshot(req, signedIn("admin-1", model.RoleAdmin))
	w := httptest.NewRecorder()
	h.Delete(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotTarget != "u-9" || gotCaller.SubjectID() != "admin-1" {
		t.Errorf("DeleteUser(caller=%q, target=%q)", gotCaller.SubjectID(), gotTarget)
	}

	var body deleteUserResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.UserID != "u-9" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestUserHandler_Delete_Unauthenticated_MalformedBody_Returns403(t *testing.T) {
	svc := &mockUserService{
		deleteUserFn: func(_ context.Context, caller authgate.Snapshot, _ string) (*user.DeleteResult, error) {
			if caller.Status != authgate.StatusAnonymous {
				t.Errorf("caller status = %v, want anonymous", caller.Status)
			}
			return nil, model.NewForbiddenError()
		},
	}
	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/delete-user", strings.NewReader(`not json`))
	w := httptest.NewRecorder()
	h.Delete(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestUserHandler_Delete_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"self deletion", model.NewSelfDeletionError(), http.StatusBadRequest},
		{"missing target", model.NewValidationError("user_id", "required"), http.StatusBadRequest},
		{"malformed target", model.NewValidationError("user_id", "malformed"), http.StatusBadRequest},
		{"unknown user", model.NewUserNotFoundError(), http.StatusNotFound},
		{"storage failure", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockUserService{
				deleteUserFn: func(context.Context, authgate.Snapshot, string) (*user.DeleteResult, error) {
					return nil, tt.err
				},
			}
			h := NewUserHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/admin/delete-user", strings.NewReader(`{"user_id":"u-1"}`))
			req = withSnapshot(req, signedIn("admin-1", model.RoleAdmin))
			w := httptest.NewRecorder()
			h.Delete(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

// 形式不正のIDはストレージに届く前に400になる
func TestUserHandler_Delete_MalformedTargetWithUserService_Returns400(t *testing.T) {
	h := NewUserHandler(user.NewService(nil, nil, nil))

	for _, id := range []string{"abc", "1 OR 1=1", "00000000-0000-0000-0000-00000000000z"} {
		body, _ := json.Marshal(deleteUserRequest{UserID: id})
		req := httptest.NewRequest(http.MethodPost, "/api/admin/delete-user", strings.NewReader(string(body)))
		req = withSnapshot(req, signedIn("0b6f6c1e-4b1a-4d55-9a3e-2f7f3f9d1a01", model.RoleAdmin))
		w := httptest.NewRecorder()
		h.Delete(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("user_id %q: status = %d, want %d", id, w.Code, http.StatusBadRequest)
		}
		if code := decodeErrorCode(t, w); code != model.ErrCodeValidationFailed {
			t.Errorf("user_id %q: code = %q", id, code)
		}
	}
}
