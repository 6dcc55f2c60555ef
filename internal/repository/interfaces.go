// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/servicedesk/internal/model"
)

// UserRepository はユーザー（プロフィール）データの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。大文字小文字は区別しない。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合は ErrDuplicateEmail を返す。
	Create(ctx context.Context, user *model.User) error

	// List は全ユーザーを作成日時の降順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessions、user_settingsはCASCADE削除され、担当サービスオーダーは未割当になる。
	// 該当行がない場合は ErrNotFound を返す。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Refresh は有効なセッションの期限を延長する。期限切れまたは存在しない場合はnilを返す。
	Refresh(ctx context.Context, id string, expiresAt time.Time) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は before より前に期限切れとなったセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// CustomerRepository は顧客データの永続化インターフェース。
type CustomerRepository interface {
	// ListWithServiceCount は全顧客をサービスオーダー件数付きで返す。
	// 件数は読み取り時に集計する。
	ListWithServiceCount(ctx context.Context) ([]model.Customer, error)

	// FindByID は指定IDの顧客をサービスオーダー件数付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Customer, error)

	// Create は顧客を作成する。
	Create(ctx context.Context, customer *model.Customer) error

	// Update は顧客の連絡先情報を更新する。該当行がない場合は ErrNotFound を返す。
	Update(ctx context.Context, customer *model.Customer) error
}

// ServiceOrderRepository はサービスオーダーの永続化インターフェース。
type ServiceOrderRepository interface {
	// FindByID は指定IDのサービスオーダーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ServiceOrder, error)

	// ListByCustomer は顧客のサービスオーダー履歴を新しい順に返す。
	ListByCustomer(ctx context.Context, customerID string) ([]*model.ServiceOrder, error)

	// ListByTechnician は技術者に割り当てられた未完了のサービスオーダーを古い順に返す。
	ListByTechnician(ctx context.Context, technicianID string) ([]*model.ServiceOrder, error)

	// Create はサービスオーダーを作成する。
	Create(ctx context.Context, order *model.ServiceOrder) error

	// UpdateStatus はステータスを更新する。該当行がない場合は ErrNotFound を返す。
	UpdateStatus(ctx context.Context, id string, status model.OrderStatus, updatedAt time.Time) error

	// CountByStatus は指定ステータスのサービスオーダー件数を返す。
	CountByStatus(ctx context.Context, status model.OrderStatus) (int, error)
}

// SettingsRepository はユーザーごとのUI設定（キーと文字列値）の永続化インターフェース。
type SettingsRepository interface {
	// Get は設定値を取得する。未保存の場合は空文字列とfalseを返す。
	Get(ctx context.Context, userID, key string) (string, bool, error)

	// Put は設定値を冪等にUPSERTする。
	Put(ctx context.Context, userID, key, value string) error
}
