package serviceorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/servicedesk/internal/model"
	"github.com/hitoshi/servicedesk/internal/repository"
)

// --- モック定義 ---

type mockOrderRepo struct {
	findByIDFn     func(ctx context.Context, id string) (*model.ServiceOrder, error)
	listByTechFn   func(ctx context.Context, technicianID string) ([]*model.ServiceOrder, error)
	createFn       func(ctx context.Context, o *model.ServiceOrder) error
	updateStatusFn func(ctx context.Context, id string, status model.OrderStatus, at time.Time) error
	countFn        func(ctx context.Context, status model.OrderStatus) (int, error)
}

func (m *mockOrderRepo) FindByID(ctx context.Context, id string) (*model.ServiceOrder, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockOrderRepo) ListByCustomer(context.Context, string) ([]*model.ServiceOrder, error) {
	return nil, nil
}

func (m *mockOrderRepo) ListByTechnician(ctx context.Context, technicianID string) ([]*model.ServiceOrder, error) {
	if m.listByTechFn != nil {
		return m.listByTechFn(ctx, technicianID)
	}
	return nil, nil
}

func (m *mockOrderRepo) Create(ctx context.Context, o *model.ServiceOrder) error {
	if m.createFn != nil {
		return m.createFn(ctx, o)
	}
	return nil
}

func (m *mockOrderRepo) UpdateStatus(ctx context.Context, id string, status model.OrderStatus, at time.Time) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status, at)
	}
	return nil
}

func (m *mockOrderRepo) CountByStatus(ctx context.Context, status model.OrderStatus) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, status)
	}
	return 0, nil
}

type mockCustomerRepo struct {
	customers map[string]*model.Customer
}

func (m *mockCustomerRepo) ListWithServiceCount(context.Context) ([]model.Customer, error) {
	return nil, nil
}

func (m *mockCustomerRepo) FindByID(_ context.Context, id string) (*model.Customer, error) {
	return m.customers[id], nil
}

func (m *mockCustomerRepo) Create(context.Context, *model.Customer) error { return nil }
func (m *mockCustomerRepo) Update(context.Context, *model.Customer) error { return nil }

type mockUserRepo struct {
	users map[string]*model.User
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	return m.users[id], nil
}

func (m *mockUserRepo) FindByEmail(context.Context, string) (*model.User, error) { return nil, nil }
func (m *mockUserRepo) Create(context.Context, *model.User) error                { return nil }
func (m *mockUserRepo) List(context.Context) ([]*model.User, error)              { return nil, nil }
func (m *mockUserRepo) DeleteByID(context.Context, string) error                 { return nil }

var _ repository.ServiceOrderRepository = (*mockOrderRepo)(nil)
var _ repository.CustomerRepository = (*mockCustomerRepo)(nil)
var _ repository.UserRepository = (*mockUserRepo)(nil)

const (
	customerID     = "3f2a1b0c-9d8e-4f7a-8b6c-5d4e3f2a1b0c"
	techID         = "7c1d2e3f-5a6b-4c7d-8e9f-0a1b2c3d4e5f"
	otherTechID    = "8d2e3f4a-6b7c-4d8e-9f0a-1b2c3d4e5f60"
	receptionistID = "1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d"
	orderID        = "c0ffee00-1234-4abc-8def-0123456789ab"
)

func strPtr(s string) *string { return &s }

func newTestService(orders *mockOrderRepo) *Service {
	return NewService(
		orders,
		&mockCustomerRepo{customers: map[string]*model.Customer{customerID: {ID: customerID, FullName: "Budi"}}},
		&mockUserRepo{users: map[string]*model.User{
			techID:         {ID: techID, Role: model.RoleTechnician},
			receptionistID: {ID: receptionistID, Role: model.RoleReceptionist},
		}},
		nil,
	)
}

func apiErrorCode(t *testing.T, err error) string {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	return apiErr.Code
}

func TestCreate_StartsAsNew(t *testing.T) {
	var saved *model.ServiceOrder
	svc := newTestService(&mockOrderRepo{createFn: func(_ context.Context, o *model.ServiceOrder) error {
		saved = o
		return nil
	}})

	o, err := svc.Create(context.Background(), CreateInput{CustomerID: customerID, TechnicianID: strPtr(techID), DeviceDescription: " Laptop "})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if saved != o || o.Status != model.OrderStatusNew || o.DeviceDescription != "Laptop" {
		t.Errorf("order = %+v", o)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService(&mockOrderRepo{})
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateInput
		want string
	}{
		{"missing customer", CreateInput{DeviceDescription: "Phone"}, model.ErrCodeValidationFailed},
		{"missing device", CreateInput{CustomerID: customerID}, model.ErrCodeValidationFailed},
		{"unknown customer", CreateInput{CustomerID: "9a8b7c6d-5e4f-4a3b-9c2d-1e0f9a8b7c6d", DeviceDescription: "Phone"}, model.ErrCodeCustomerNotFound},
		{"malformed customer id", CreateInput{CustomerID: "c9", DeviceDescription: "Phone"}, model.ErrCodeCustomerNotFound},
		{"malformed technician id", CreateInput{CustomerID: customerID, DeviceDescription: "Phone", TechnicianID: strPtr("tech")}, model.ErrCodeValidationFailed},
		{"assignee not technician", CreateInput{CustomerID: customerID, DeviceDescription: "Phone", TechnicianID: strPtr(receptionistID)}, model.ErrCodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.in)
			if got := apiErrorCode(t, err); got != tt.want {
				t.Errorf("code = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreate_EmptyTechnicianIsUnassigned(t *testing.T) {
	svc := newTestService(&mockOrderRepo{})
	o, err := svc.Create(context.Background(), CreateInput{CustomerID: customerID, DeviceDescription: "Printer", TechnicianID: strPtr("")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if o.TechnicianID != nil {
		t.Errorf("TechnicianID = %v, want nil", *o.TechnicianID)
	}
}

func TestUpdateStatus_Authorization(t *testing.T) {
	assigned := &model.ServiceOrder{ID: orderID, TechnicianID: strPtr(techID), Status: model.OrderStatusNew}

	tests := []struct {
		name    string
		actor   *model.User
		wantErr string
	}{
		{"assigned technician", &model.User{ID: techID, Role: model.RoleTechnician}, ""},
		{"other technician", &model.User{ID: otherTechID, Role: model.RoleTechnician}, model.ErrCodeForbidden},
		{"admin", &model.User{ID: "admin-1", Role: model.RoleAdmin}, ""},
		{"receptionist", &model.User{ID: receptionistID, Role: model.RoleReceptionist}, model.ErrCodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := *assigned
			svc := newTestService(&mockOrderRepo{findByIDFn: func(context.Context, string) (*model.ServiceOrder, error) {
				return &order, nil
			}})

			got, err := svc.UpdateStatus(context.Background(), tt.actor, orderID, model.OrderStatusInProgress)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("UpdateStatus() error = %v", err)
				}
				if got.Status != model.OrderStatusInProgress {
					t.Errorf("Status = %q", got.Status)
				}
				return
			}
			if code := apiErrorCode(t, err); code != tt.wantErr {
				t.Errorf("code = %q, want %q", code, tt.wantErr)
			}
		})
	}
}

func TestUpdateStatus_InvalidStatusRejectedBeforeLookup(t *testing.T) {
	svc := newTestService(&mockOrderRepo{findByIDFn: func(context.Context, string) (*model.ServiceOrder, error) {
		t.Error("repository must not be called for an invalid status")
		return nil, nil
	}})

	_, err := svc.UpdateStatus(context.Background(), &model.User{ID: "a", Role: model.RoleAdmin}, orderID, "Lost")
	if code := apiErrorCode(t, err); code != model.ErrCodeInvalidStatus {
		t.Errorf("code = %q", code)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	svc := newTestService(&mockOrderRepo{})

	_, err := svc.UpdateStatus(context.Background(), &model.User{ID: "a", Role: model.RoleAdmin}, "9a8b7c6d-5e4f-4a3b-9c2d-1e0f9a8b7c6d", model.OrderStatusDone)
	if code := apiErrorCode(t, err); code != model.ErrCodeServiceOrderNotFound {
		t.Errorf("code = %q", code)
	}
}

func TestUpdateStatus_MalformedIDIsNotFound(t *testing.T) {
	svc := newTestService(&mockOrderRepo{findByIDFn: func(context.Context, string) (*model.ServiceOrder, error) {
		t.Error("repository must not be called for a malformed id")
		return nil, nil
	}})

	_, err := svc.UpdateStatus(context.Background(), &model.User{ID: "a", Role: model.RoleAdmin}, "o1", model.OrderStatusDone)
	if code := apiErrorCode(t, err); code != model.ErrCodeServiceOrderNotFound {
		t.Errorf("code = %q", code)
	}
}

func TestUpdateStatus_SameStatusIsNoop(t *testing.T) {
	svc := newTestService(&mockOrderRepo{
		findByIDFn: func(context.Context, string) (*model.ServiceOrder, error) {
			return &model.ServiceOrder{ID: orderID, Status: model.OrderStatusDone}, nil
		},
		updateStatusFn: func(context.Context, string, model.OrderStatus, time.Time) error {
			t.Error("UpdateStatus should not write when status is unchanged")
			return nil
		},
	})

	if _, err := svc.UpdateStatus(context.Background(), &model.User{ID: "a", Role: model.RoleAdmin}, orderID, model.OrderStatusDone); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
}

func TestCountNew(t *testing.T) {
	svc := newTestService(&mockOrderRepo{countFn: func(_ context.Context, status model.OrderStatus) (int, error) {
		if status != model.OrderStatusNew {
			t.Errorf("status = %q", status)
		}
		return 4, nil
	}})

	n, err := svc.CountNew(context.Background())
	if err != nil || n != 4 {
		t.Errorf("CountNew() = %d, %v", n, err)
	}
}
