// Package serviceorder はサービスオーダーの受付、技術者の作業キュー、ステータス更新を提供する。
package serviceorder

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

// Sanitizer は自由記述テキストを無害化する。
type Sanitizer interface {
	SanitizeText(s string) string
}

// CreateInput はサービスオーダー受付の入力値。
type CreateInput struct {
	CustomerID        string  `json:"customer_id"`
	TechnicianID      *string `json:"technician_id"`
	DeviceDescription string  `json:"device_description"`
	Notes             string  `json:"notes"`
}

// Service はサービスオーダーのサービス層。
type Service struct {
	orders    repository.ServiceOrderRepository
	customers repository.CustomerRepository
	users     repository.UserRepository
	sanitizer Sanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	orders repository.ServiceOrderRepository,
	customers repository.CustomerRepository,
	users repository.UserRepository,
	sanitizer Sanitizer,
) *Service {
	return &Service{
		orders:    orders,
		customers: customers,
		users:     users,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Create はサービスオーダーを受け付ける。初期ステータスはNew。
// 担当技術者を指定する場合はtechnicianロールのユーザーでなければならない。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.ServiceOrder, error) {
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	in.DeviceDescription = s.sanitize(strings.TrimSpace(in.DeviceDescription))
	in.Notes = s.sanitize(strings.TrimSpace(in.Notes))

	if in.CustomerID == "" {
		return nil, model.NewValidationError("customer_id", "顧客の指定は必須です")
	}
	if in.DeviceDescription == "" {
		return nil, model.NewValidationError("device_description", "機器の内容は必須です")
	}
	if !model.ValidID(in.CustomerID) {
		return nil, model.NewCustomerNotFoundError(in.CustomerID)
	}

	customer, err := s.customers.FindByID(ctx, in.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("顧客の取得に失敗しました: %w", err)
	}
	if customer == nil {
		return nil, model.NewCustomerNotFoundError(in.CustomerID)
	}

	if in.TechnicianID != nil && *in.TechnicianID != "" {
		if !model.ValidID(*in.TechnicianID) {
			return nil, model.NewValidationError("technician_id", "担当者には技術者を指定してください")
		}
		tech, err := s.users.FindByID(ctx, *in.TechnicianID)
		if err != nil {
			return nil, fmt.Errorf("技術者の取得に失敗しました: %w", err)
		}
		if tech == nil || tech.Role != model.RoleTechnician {
			return nil, model.NewValidationError("technician_id", "担当者には技術者を指定してください")
		}
	} else {
		in.TechnicianID = nil
	}

	now := s.now()
	order := &model.ServiceOrder{
		ID:                uuid.New().String(),
		CustomerID:        in.CustomerID,
		TechnicianID:      in.TechnicianID,
		Status:            model.OrderStatusNew,
		DeviceDescription: in.DeviceDescription,
		Notes:             in.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("サービスオーダーの登録に失敗しました: %w", err)
	}

	slog.Info("サービスオーダーを受け付けました",
		slog.String("order_id", order.ID),
		slog.String("customer_id", order.CustomerID),
	)
	return order, nil
}

// TechnicianQueue は技術者に割り当てられた未完了のサービスオーダーを返す。
func (s *Service) TechnicianQueue(ctx context.Context, technicianID string) ([]*model.ServiceOrder, error) {
	orders, err := s.orders.ListByTechnician(ctx, technicianID)
	if err != nil {
		return nil, model.NewDataFetchFailedError(err.Error())
	}
	return orders, nil
}

// UpdateStatus はサービスオーダーのステータスを更新する。
// 技術者は自分に割り当てられたオーダーのみ、管理者はすべてのオーダーを更新できる。
func (s *Service) UpdateStatus(ctx context.Context, actor *model.User, orderID string, status model.OrderStatus) (*model.ServiceOrder, error) {
	if !status.Valid() {
		return nil, model.NewInvalidStatusError(string(status))
	}
	if !model.ValidID(orderID) {
		return nil, model.NewServiceOrderNotFoundError(orderID)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("サービスオーダーの取得に失敗しました: %w", err)
	}
	if order == nil {
		return nil, model.NewServiceOrderNotFoundError(orderID)
	}

	if actor.Role != model.RoleAdmin {
		if actor.Role != model.RoleTechnician || order.TechnicianID == nil || *order.TechnicianID != actor.ID {
			slog.Warn("ステータス更新を拒否しました",
				slog.String("user_id", actor.ID),
				slog.String("order_id", orderID),
			)
			return nil, model.NewForbiddenError()
		}
	}

	if order.Status == status {
		return order, nil
	}

	now := s.now()
	if err := s.orders.UpdateStatus(ctx, orderID, status, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewServiceOrderNotFoundError(orderID)
		}
		return nil, fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}

	slog.Info("サービスオーダーのステータスを更新しました",
		slog.String("order_id", orderID),
		slog.String("from", string(order.Status)),
		slog.String("to", string(status)),
		slog.String("user_id", actor.ID),
	)

	order.Status = status
	order.UpdatedAt = now
	return order, nil
}

// CountNew はステータスNewのサービスオーダー件数を返す。
func (s *Service) CountNew(ctx context.Context) (int, error) {
	return s.orders.CountByStatus(ctx, model.OrderStatusNew)
}

func (s *Service) sanitize(v string) string {
	if s.sanitizer == nil {
		return v
	}
	return s.sanitizer.SanitizeText(v)
}
