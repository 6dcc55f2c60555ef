package customer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/servicedesk/internal/model"
	"github.com/hitoshi/servicedesk/internal/repository"
)

// listStateKey はuser_settingsに保存する一覧表示状態のキー。
const listStateKey = "customer_list"

// DeriveRecorder は派生ビューの計算時間を記録するインターフェース。
type DeriveRecorder interface {
	RecordDeriveLatency(duration time.Duration)
}

// ListResult は一覧取得の結果。State はページ補正後の表示状態。
type ListResult struct {
	State ListState
	View  View
}

// Service は顧客管理のサービス層。
type Service struct {
	customers repository.CustomerRepository
	orders    repository.ServiceOrderRepository
	settings  repository.SettingsRepository
	sanitizer Sanitizer
	recorder  DeriveRecorder
	now       func() time.Time
}

// NewService はServiceを生成する。sanitizerとrecorderはnilでもよい。
func NewService(
	customers repository.CustomerRepository,
	orders repository.ServiceOrderRepository,
	settings repository.SettingsRepository,
	sanitizer Sanitizer,
	recorder DeriveRecorder,
) *Service {
	return &Service{
		customers: customers,
		orders:    orders,
		settings:  settings,
		sanitizer: sanitizer,
		recorder:  recorder,
		now:       time.Now,
	}
}

// ListView はユーザーの一覧表示状態に変更を適用し、顧客一覧の派生ビューを返す。
// 顧客は毎回全件取得し、絞り込み・並び替え・ページ分割はメモリ上で行う。
// 範囲外のページは最終ページ（0件なら1）に補正する。
func (s *Service) ListView(ctx context.Context, userID string, change Change) (*ListResult, error) {
	saved := s.loadState(ctx, userID)
	state := saved.Apply(change)

	all, err := s.customers.ListWithServiceCount(ctx)
	if err != nil {
		slog.Error("顧客一覧の取得に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewDataFetchFailedError(err.Error())
	}

	start := time.Now()
	q := Query{
		Search:     state.Search,
		DateFilter: state.DateFilter,
		Sort:       state.Sort,
		Page:       state.Page,
		PageSize:   PageSize,
		Now:        s.now(),
	}
	view := DeriveView(all, q)
	if clamped := ClampPage(state.Page, view.TotalPages); clamped != state.Page {
		state.Page = clamped
		q.Page = clamped
		view = DeriveView(all, q)
	}
	if s.recorder != nil {
		s.recorder.RecordDeriveLatency(time.Since(start))
	}

	if state != saved {
		s.saveState(ctx, userID, state)
	}

	return &ListResult{State: state, View: view}, nil
}

// Get は顧客を取得する。
func (s *Service) Get(ctx context.Context, id string) (*model.Customer, error) {
	if !model.ValidID(id) {
		return nil, model.NewCustomerNotFoundError(id)
	}
	c, err := s.customers.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewDataFetchFailedError(err.Error())
	}
	if c == nil {
		return nil, model.NewCustomerNotFoundError(id)
	}
	return c, nil
}

// Create は顧客を登録する。検証はDBアクセスの前に行う。
func (s *Service) Create(ctx context.Context, in Input) (*model.Customer, error) {
	in = in.Normalize(s.sanitizer)
	if apiErr := in.Validate(); apiErr != nil {
		return nil, apiErr
	}

	now := s.now()
	c := &model.Customer{
		ID:          uuid.New().String(),
		FullName:    in.FullName,
		PhoneNumber: in.PhoneNumber,
		Email:       in.Email,
		Address:     in.Address,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.customers.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("顧客の登録に失敗しました: %w", err)
	}

	slog.Info("顧客を登録しました", slog.String("customer_id", c.ID))
	return c, nil
}

// Update は顧客の連絡先情報を更新する。
func (s *Service) Update(ctx context.Context, id string, in Input) (*model.Customer, error) {
	if !model.ValidID(id) {
		return nil, model.NewCustomerNotFoundError(id)
	}
	in = in.Normalize(s.sanitizer)
	if apiErr := in.Validate(); apiErr != nil {
		return nil, apiErr
	}

	c := &model.Customer{
		ID:          id,
		FullName:    in.FullName,
		PhoneNumber: in.PhoneNumber,
		Email:       in.Email,
		Address:     in.Address,
		UpdatedAt:   s.now(),
	}
	if err := s.customers.Update(ctx, c); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewCustomerNotFoundError(id)
		}
		return nil, fmt.Errorf("顧客の更新に失敗しました: %w", err)
	}

	return s.Get(ctx, id)
}

// History は顧客のサービスオーダー履歴を新しい順に返す。
func (s *Service) History(ctx context.Context, id string) ([]*model.ServiceOrder, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByCustomer(ctx, id)
	if err != nil {
		return nil, model.NewDataFetchFailedError(err.Error())
	}
	return orders, nil
}

// loadState は保存済みの一覧表示状態を読み込む。未保存・破損時は既定値を返す。
func (s *Service) loadState(ctx context.Context, userID string) ListState {
	def := DefaultListState()
	if s.settings == nil || userID == "" {
		return def
	}

	raw, ok, err := s.settings.Get(ctx, userID, listStateKey)
	if err != nil {
		slog.Warn("一覧表示状態の読み込みに失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return def
	}
	if !ok {
		return def
	}

	var state ListState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		slog.Warn("一覧表示状態が破損しているため既定値を使用します",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return def
	}
	return state.Normalize()
}

func (s *Service) saveState(ctx context.Context, userID string, state ListState) {
	if s.settings == nil || userID == "" {
		return
	}
	b, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := s.settings.Put(ctx, userID, listStateKey, string(b)); err != nil {
		slog.Warn("一覧表示状態の保存に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
