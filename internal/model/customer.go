package model

import "time"

// Customer はサービスセンターの顧客を表す。
// ServiceCountは読み取り時に service_orders から集計される射影値で、永続化しない。
type Customer struct {
	ID           string
	FullName     string
	PhoneNumber  string
	Email        string
	Address      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ServiceCount int
}
