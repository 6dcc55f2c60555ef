package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/servicedesk/internal/customer"
	"github.com/hitoshi/servicedesk/internal/middleware"
	"github.com/hitoshi/servicedesk/internal/model"
)

// CustomerServiceInterface は顧客ハンドラーが必要とするサービスインターフェース。
type CustomerServiceInterface interface {
	// ListView はユーザーの一覧表示状態に変更を適用し、派生ビューを返す。
	ListView(ctx context.Context, userID string, change customer.Change) (*customer.ListResult, error)
	Get(ctx context.Context, id string) (*model.Customer, error)
	Create(ctx context.Context, in customer.Input) (*model.Customer, error)
	Update(ctx context.Context, id string, in customer.Input) (*model.Customer, error)
	// History は顧客のサービスオーダー履歴を新しい順に返す。
	History(ctx context.Context, id string) ([]*model.ServiceOrder, error)
}

// CustomerHandler は顧客管理のHTTPハンドラー。
type CustomerHandler struct {
	service CustomerServiceInterface
}

// NewCustomerHandler はCustomerHandlerを生成する。
func NewCustomerHandler(service CustomerServiceInterface) *CustomerHandler {
	return &CustomerHandler{service: service}
}

// customerResponse は顧客情報のAPIレスポンス。
type customerResponse struct {
	ID           string    `json:"id"`
	FullName     string    `json:"full_name"`
	PhoneNumber  string    `json:"phone_number"`
	Email        string    `json:"email"`
	Address      string    `json:"address"`
	ServiceCount int       `json:"service_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// customerListResponse は顧客一覧画面のAPIレスポンス。
type customerListResponse struct {
	State      customer.ListState    `json:"state"`
	Items      []customerResponse    `json:"items"`
	TotalPages int                   `json:"total_pages"`
	Matched    int                   `json:"matched"`
	Summary    customer.Summary      `json:"summary"`
	Chart      []customer.ChartPoint `json:"chart"`
	Recent     []customerResponse    `json:"recent"`
}

// List は顧客一覧の派生ビューを返す。
// クエリに含まれる項目だけを保存済みの表示状態に適用する。
// GET /api/customers?search=&date_filter=&sort_key=&sort_direction=&page=
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	change, apiErr := parseListChange(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.service.ListView(r.Context(), userID, change)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, customerListResponse{
		State:      result.State,
		Items:      toCustomerResponses(result.View.Items),
		TotalPages: result.View.TotalPages,
		Matched:    result.View.Matched,
		Summary:    result.View.Summary,
		Chart:      result.View.Chart,
		Recent:     toCustomerResponses(result.View.Recent),
	})
}

// Create は顧客を登録する。
// POST /api/customers
func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in customer.Input
	if !decodeJSON(w, r, &in) {
		return
	}

	c, err := h.service.Create(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerResponse(*c))
}

// Get は顧客を1件返す。
// GET /api/customers/{id}
func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(*c))
}

// Update は顧客の連絡先情報を更新する。
// PUT /api/customers/{id}
func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in customer.Input
	if !decodeJSON(w, r, &in) {
		return
	}

	c, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(*c))
}

// History は顧客のサービスオーダー履歴を返す。
// GET /api/customers/{id}/service-orders
func (h *CustomerHandler) History(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceOrderResponses(orders))
}

// parseListChange はクエリパラメータから一覧表示状態への変更を組み立てる。
func parseListChange(r *http.Request) (customer.Change, *model.APIError) {
	q := r.URL.Query()
	var change customer.Change

	if q.Has("search") {
		v := q.Get("search")
		change.Search = &v
	}
	if q.Has("date_filter") {
		f := customer.DateFilter(q.Get("date_filter"))
		if !f.Valid() {
			return change, model.NewValidationError("date_filter", "all、this-month、last-month、this-year のいずれかを指定してください")
		}
		change.DateFilter = &f
	}
	if q.Has("sort_key") || q.Has("sort_direction") {
		s := customer.Sort{
			Key:       customer.SortKey(q.Get("sort_key")),
			Direction: customer.Direction(q.Get("sort_direction")),
		}
		if s.Direction == "" {
			s.Direction = customer.Ascending
		}
		if !s.Key.Valid() {
			return change, model.NewValidationError("sort_key", "並び替えの項目が正しくありません")
		}
		if s.Direction != customer.Ascending && s.Direction != customer.Descending {
			return change, model.NewValidationError("sort_direction", "asc または desc を指定してください")
		}
		change.Sort = &s
	}
	if q.Has("page") {
		page, err := strconv.Atoi(q.Get("page"))
		if err != nil {
			return change, model.NewValidationError("page", "ページ番号は整数で指定してください")
		}
		change.Page = &page
	}
	return change, nil
}

func toCustomerResponse(c model.Customer) customerResponse {
	return customerResponse{
		ID:           c.ID,
		FullName:     c.FullName,
		PhoneNumber:  c.PhoneNumber,
		Email:        c.Email,
		Address:      c.Address,
		ServiceCount: c.ServiceCount,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func toCustomerResponses(cs []model.Customer) []customerResponse {
	out := make([]customerResponse, len(cs))
	for i, c := range cs {
		out[i] = toCustomerResponse(c)
	}
	return out
}
