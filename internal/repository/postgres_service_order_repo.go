package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/servicedesk/internal/model"
)

// PostgresServiceOrderRepo はPostgreSQLを使用したサービスオーダーリポジトリ。
type PostgresServiceOrderRepo struct {
	db *sql.DB
}

// NewPostgresServiceOrderRepo はPostgresServiceOrderRepoを生成する。
func NewPostgresServiceOrderRepo(db *sql.DB) *PostgresServiceOrderRepo {
	return &PostgresServiceOrderRepo{db: db}
}

// 担当技術者名は users とのLEFT JOINで解決する。
const serviceOrderSelect = `SELECT o.id, o.customer_id, o.technician_id, COALESCE(u.full_name, ''),
        o.status, o.device_description, o.notes, o.created_at, o.updated_at
 FROM service_orders o
 LEFT JOIN users u ON u.id = o.technician_id`

// closedStatuses は技術者の作業キューから除外するステータス。
var closedStatuses = []string{string(model.OrderStatusDone), string(model.OrderStatusCancelled)}

func scanServiceOrder(row rowScanner) (*model.ServiceOrder, error) {
	o := &model.ServiceOrder{}
	var technicianID sql.NullString
	var status string
	if err := row.Scan(
		&o.ID, &o.CustomerID, &technicianID, &o.TechnicianName,
		&status, &o.DeviceDescription, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	if technicianID.Valid {
		o.TechnicianID = &technicianID.String
	}
	return o, nil
}

func (r *PostgresServiceOrderRepo) queryOrders(ctx context.Context, query string, args ...any) ([]*model.ServiceOrder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*model.ServiceOrder, 0)
	for rows.Next() {
		o, err := scanServiceOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// FindByID は指定IDのサービスオーダーを取得する。見つからない場合はnilを返す。
func (r *PostgresServiceOrderRepo) FindByID(ctx context.Context, id string) (*model.ServiceOrder, error) {
	o, err := scanServiceOrder(r.db.QueryRowContext(ctx,
		serviceOrderSelect+` WHERE o.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("サービスオーダーの取得に失敗しました: %w", err)
	}
	return o, nil
}

// ListByCustomer は顧客のサービスオーダー履歴を新しい順に返す。
func (r *PostgresServiceOrderRepo) ListByCustomer(ctx context.Context, customerID string) ([]*model.ServiceOrder, error) {
	orders, err := r.queryOrders(ctx,
		serviceOrderSelect+`
		 WHERE o.customer_id = $1
		 ORDER BY o.created_at DESC, o.id`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("サービス履歴の取得に失敗しました: %w", err)
	}
	return orders, nil
}

// ListByTechnician は技術者に割り当てられた未完了のサービスオーダーを古い順に返す。
func (r *PostgresServiceOrderRepo) ListByTechnician(ctx context.Context, technicianID string) ([]*model.ServiceOrder, error) {
	orders, err := r.queryOrders(ctx,
		serviceOrderSelect+`
		 WHERE o.technician_id = $1 AND o.status <> ALL($2)
		 ORDER BY o.created_at ASC, o.id`,
		technicianID, pq.Array(closedStatuses),
	)
	if err != nil {
		return nil, fmt.Errorf("作業キューの取得に失敗しました: %w", err)
	}
	return orders, nil
}

// Create はサービスオーダーを作成する。
func (r *PostgresServiceOrderRepo) Create(ctx context.Context, o *model.ServiceOrder) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO service_orders
		   (id, customer_id, technician_id, status, device_description, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.CustomerID, o.TechnicianID, string(o.Status), o.DeviceDescription, o.Notes,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("サービスオーダーの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateStatus はステータスを更新する。
func (r *PostgresServiceOrderRepo) UpdateStatus(ctx context.Context, id string, status model.OrderStatus, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE service_orders SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), updatedAt,
	)
	if err != nil {
		return fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("service order %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountByStatus は指定ステータスのサービスオーダー件数を返す。
func (r *PostgresServiceOrderRepo) CountByStatus(ctx context.Context, status model.OrderStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM service_orders WHERE status = $1`,
		string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ ServiceOrderRepository = (*PostgresServiceOrderRepo)(nil)
