// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限ロールを表す。画面単位のアクセス可否を決める。
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleReceptionist Role = "receptionist"
	RoleTechnician   Role = "technician"
)

// Valid はロールが定義済みの値であるかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleReceptionist, RoleTechnician:
		return true
	default:
		return false
	}
}

// User はサービスセンターのスタッフアカウント（プロフィール）を表す。
// セッションのサブジェクトIDと1対1に対応する。
type User struct {
	ID               string
	Email            string
	FullName         string
	Phone            string
	Role             Role
	PasswordHash     string
	EmailConfirmedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Confirmed はメールアドレス確認済みのアカウントかを返す。
func (u *User) Confirmed() bool {
	return u.EmailConfirmedAt != nil
}

// Session はユーザーのログインセッションを表す。
// RefreshedAtはトークン再発行のたびに更新される。
type Session struct {
	ID          string
	UserID      string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	RefreshedAt time.Time
}
