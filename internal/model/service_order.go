package model

import "time"

// OrderStatus はサービスオーダーの進捗状態を表す。
type OrderStatus string

const (
	OrderStatusNew           OrderStatus = "New"
	OrderStatusInProgress    OrderStatus = "In-Progress"
	OrderStatusDone          OrderStatus = "Done"
	OrderStatusCancelled     OrderStatus = "Cancelled"
	OrderStatusAwaitingParts OrderStatus = "Awaiting-Parts"
)

// Valid はステータスが定義済みの値であるかを返す。
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNew, OrderStatusInProgress, OrderStatusDone,
		OrderStatusCancelled, OrderStatusAwaitingParts:
		return true
	default:
		return false
	}
}

// Closed は作業が終了した状態（完了・キャンセル）かを返す。
func (s OrderStatus) Closed() bool {
	return s == OrderStatusDone || s == OrderStatusCancelled
}

// ServiceOrder は修理・点検の受付単位を表す。
type ServiceOrder struct {
	ID                string
	CustomerID        string
	TechnicianID      *string
	TechnicianName    string
	Status            OrderStatus
	DeviceDescription string
	Notes             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
