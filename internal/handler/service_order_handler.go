package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/servicedesk/internal/middleware"
	"github.com/hitoshi/servicedesk/internal/model"
	"github.com/hitoshi/servicedesk/internal/serviceorder"
)

// ServiceOrderServiceInterface はサービスオーダーハンドラーが必要とするサービスインターフェース。
type ServiceOrderServiceInterface interface {
	Create(ctx context.Context, in serviceorder.CreateInput) (*model.ServiceOrder, error)
	// TechnicianQueue は技術者に割り当てられた未完了のオーダーを返す。
	TechnicianQueue(ctx context.Context, technicianID string) ([]*model.ServiceOrder, error)
	// UpdateStatus はactorの権限を確認してステータスを更新する。
	UpdateStatus(ctx context.Context, actor *model.User, orderID string, status model.OrderStatus) (*model.ServiceOrder, error)
}

// ServiceOrderHandler はサービスオーダーのHTTPハンドラー。
type ServiceOrderHandler struct {
	service ServiceOrderServiceInterface
}

// NewServiceOrderHandler はServiceOrderHandlerを生成する。
func NewServiceOrderHandler(service ServiceOrderServiceInterface) *ServiceOrderHandler {
	return &ServiceOrderHandler{service: service}
}

// serviceOrderResponse はサービスオーダーのAPIレスポンス。
type serviceOrderResponse struct {
	ID                string            `json:"id"`
	CustomerID        string            `json:"customer_id"`
	TechnicianID      *string           `json:"technician_id"`
	TechnicianName    string            `json:"technician_name,omitempty"`
	Status            model.OrderStatus `json:"status"`
	DeviceDescription string            `json:"device_description"`
	Notes             string            `json:"notes"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// statusUpdateRequest はステータス更新リクエストのボディ。
type statusUpdateRequest struct {
	Status model.OrderStatus `json:"status"`
}

// Create はサービスオーダーを受け付ける。
// POST /api/service-orders
func (h *ServiceOrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in serviceorder.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}

	order, err := h.service.Create(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toServiceOrderResponse(order))
}

// TechnicianQueue は呼び出し元の技術者に割り当てられたオーダーを返す。
// GET /api/technician/orders
func (h *ServiceOrderHandler) TechnicianQueue(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	orders, err := h.service.TechnicianQueue(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceOrderResponses(orders))
}

// UpdateStatus はサービスオーダーのステータスを更新する。
// PATCH /api/service-orders/{id}/status
func (h *ServiceOrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	snap := middleware.SnapshotFromContext(r.Context())
	if snap.Profile == nil {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return
	}

	var req statusUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), snap.Profile, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceOrderResponse(order))
}

func toServiceOrderResponse(o *model.ServiceOrder) serviceOrderResponse {
	return serviceOrderResponse{
		ID:                o.ID,
		CustomerID:        o.CustomerID,
		TechnicianID:      o.TechnicianID,
		TechnicianName:    o.TechnicianName,
		Status:            o.Status,
		DeviceDescription: o.DeviceDescription,
		Notes:             o.Notes,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func toServiceOrderResponses(orders []*model.ServiceOrder) []serviceOrderResponse {
	out := make([]serviceOrderResponse, len(orders))
	for i, o := range orders {
		out[i] = toServiceOrderResponse(o)
	}
	return out
}
