package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/servicedesk/internal/model"
)

// PostgresCustomerRepo はPostgreSQLを使用した顧客リポジトリ。
type PostgresCustomerRepo struct {
	db *sql.DB
}

// NewPostgresCustomerRepo はPostgresCustomerRepoを生成する。
func NewPostgresCustomerRepo(db *sql.DB) *PostgresCustomerRepo {
	return &PostgresCustomerRepo{db: db}
}

// サービスオーダー件数は保存せず、取得のたびにLEFT JOINで集計する。
const customerSelect = `SELECT c.id, c.full_name, c.phone_number, c.email, c.address,
        c.created_at, c.updated_at, COUNT(o.id)
 FROM customers c
 LEFT JOIN service_orders o ON o.customer_id = c.id`

func scanCustomer(row rowScanner) (model.Customer, error) {
	var c model.Customer
	var phone, email, address sql.NullString
	if err := row.Scan(
		&c.ID, &c.FullName, &phone, &email, &address,
		&c.CreatedAt, &c.UpdatedAt, &c.ServiceCount,
	); err != nil {
		return model.Customer{}, err
	}
	c.PhoneNumber = nullStringValue(phone)
	c.Email = nullStringValue(email)
	c.Address = nullStringValue(address)
	return c, nil
}

// ListWithServiceCount は全顧客をサービスオーダー件数付きで返す。
// 並び順は呼び出し側の派生処理で決まるため、ここでは作成日時の降順に固定する。
func (r *PostgresCustomerRepo) ListWithServiceCount(ctx context.Context) ([]model.Customer, error) {
	rows, err := r.db.QueryContext(ctx,
		customerSelect+`
		 GROUP BY c.id
		 ORDER BY c.created_at DESC, c.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("顧客一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	customers := make([]model.Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("顧客のスキャンに失敗しました: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("顧客一覧の走査に失敗しました: %w", err)
	}
	return customers, nil
}

// FindByID は指定IDの顧客を取得する。見つからない場合はnilを返す。
func (r *PostgresCustomerRepo) FindByID(ctx context.Context, id string) (*model.Customer, error) {
	c, err := scanCustomer(r.db.QueryRowContext(ctx,
		customerSelect+`
		 WHERE c.id = $1
		 GROUP BY c.id`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("顧客の取得に失敗しました: %w", err)
	}
	return &c, nil
}

// Create は顧客を作成する。空の連絡先はNULLとして保存する。
func (r *PostgresCustomerRepo) Create(ctx context.Context, c *model.Customer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO customers (id, full_name, phone_number, email, address, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.FullName, nullString(c.PhoneNumber), nullString(c.Email), nullString(c.Address),
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("顧客の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は顧客の連絡先情報を更新する。
func (r *PostgresCustomerRepo) Update(ctx context.Context, c *model.Customer) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE customers
		 SET full_name = $2, phone_number = $3, email = $4, address = $5, updated_at = $6
		 WHERE id = $1`,
		c.ID, c.FullName, nullString(c.PhoneNumber), nullString(c.Email), nullString(c.Address),
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("顧客の更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("customer %s: %w", c.ID, ErrNotFound)
	}
	return nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ CustomerRepository = (*PostgresCustomerRepo)(nil)
