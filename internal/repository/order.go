package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"storefront-service/internal/entity"
	"storefront-service/internal/sharding"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrStatusConflict = errors.New("order status changed concurrently")
)

const orderColumns = `order_key, user_id, subtotal, delivery_fee, total, method, status, cancellation_reason,
	driver_id, driver_name, driver_phone, address_name, address_phone, address_pincode, address_line,
	address_landmark, address_state, address_district, COALESCE(idempotency_key, ''), created_at`

type OrderRepository struct {
	dbShards []*sql.DB
	router   *sharding.ShardRouter
	now      func() time.Time
}

func NewOrderRepository(dbShards []*sql.DB, router *sharding.ShardRouter) *OrderRepository {
	return &OrderRepository{dbShards: dbShards, router: router, now: time.Now}
}

func (r *OrderRepository) shard(userID string) *sql.DB {
	return r.dbShards[r.router.GetShard(userID)%len(r.dbShards)]
}

// CreateOrder stores an order and its items in one transaction. The key and
// creation time are assigned here.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	db := r.shard(order.UserID)

	created := *order
	created.Key = uuid.NewString()
	created.CreatedAt = r.now().UTC()

	// Start a transaction
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	var idempotencyKey interface{}
	if created.IdempotencyKey != "" {
		idempotencyKey = created.IdempotencyKey
	}

	orderQuery := `INSERT INTO orders (order_key, user_id, subtotal, delivery_fee, total, method, status,
		address_name, address_phone, address_pincode, address_line, address_landmark, address_state, address_district,
		idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, orderQuery,
		created.Key, created.UserID, created.Subtotal, created.DeliveryFee, created.Total, created.Method, string(created.Status),
		created.Address.Name, created.Address.Phone, created.Address.Pincode, created.Address.Line, created.Address.Landmark,
		created.Address.State, created.Address.District, idempotencyKey, created.CreatedAt,
	)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if len(created.Items) > 0 {
		// Insert items with batch
		itemQuery := `INSERT INTO order_items (order_key, position, dish_key, name, price, quantity, line_total, image, unit) VALUES `
		var values []interface{}
		for i, item := range created.Items {
			itemQuery += "(?, ?, ?, ?, ?, ?, ?, ?, ?),"
			values = append(values, created.Key, i, item.Key, item.Name, item.Price, item.Quantity, item.LineTotal, item.Image, item.Unit)
		}
		itemQuery = itemQuery[:len(itemQuery)-1]

		_, err = tx.ExecContext(ctx, itemQuery, values...)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, userID, key string) (*entity.Order, error) {
	db := r.shard(userID)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_key = ? AND user_id = ?`
	order, err := scanOrder(db.QueryRowContext(ctx, query, key, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	orders := []entity.Order{*order}
	if err := r.attachItems(ctx, db, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListOrders returns a user's orders, newest first.
func (r *OrderRepository) ListOrders(ctx context.Context, userID string) ([]entity.Order, error) {
	db := r.shard(userID)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []entity.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachItems(ctx, db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CancelOrder moves an order from `from` to CANCELLED, failing with
// ErrStatusConflict if an operator changed the status first.
func (r *OrderRepository) CancelOrder(ctx context.Context, userID, key string, from entity.OrderStatus, reason string) error {
	db := r.shard(userID)

	query := `UPDATE orders SET status = ?, cancellation_reason = ? WHERE order_key = ? AND user_id = ? AND status = ?`
	res, err := db.ExecContext(ctx, query, string(entity.StatusCancelled), reason, key, userID, string(from))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// UpdateOrderStatus applies an operator or courier update.
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, update entity.StatusUpdate) error {
	db := r.shard(update.UserID)

	query := `UPDATE orders SET status = ?,
		cancellation_reason = COALESCE(NULLIF(?, ''), cancellation_reason),
		driver_id = COALESCE(NULLIF(?, ''), driver_id),
		driver_name = COALESCE(NULLIF(?, ''), driver_name),
		driver_phone = COALESCE(NULLIF(?, ''), driver_phone)
		WHERE order_key = ? AND user_id = ?`
	res, err := db.ExecContext(ctx, query, string(update.Status), update.CancellationReason,
		update.DriverID, update.DriverName, update.DriverPhone, update.OrderKey, update.UserID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) DeleteOrder(ctx context.Context, userID, key string) error {
	db := r.shard(userID)

	// Start a transaction
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_key = ?`, key)
	if err != nil {
		tx.Rollback()
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE order_key = ? AND user_id = ?`, key, userID)
	if err != nil {
		tx.Rollback()
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return err
	}
	if affected == 0 {
		tx.Rollback()
		return ErrOrderNotFound
	}

	return tx.Commit()
}

func (r *OrderRepository) attachItems(ctx context.Context, db *sql.DB, orders []entity.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[string]int, len(orders))
	placeholders := make([]string, len(orders))
	args := make([]interface{}, len(orders))
	for i, o := range orders {
		index[o.Key] = i
		placeholders[i] = "?"
		args[i] = o.Key
	}

	query := `SELECT order_key, dish_key, name, price, quantity, line_total, image, unit FROM order_items
		WHERE order_key IN (` + strings.Join(placeholders, ", ") + `) ORDER BY order_key, position`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var orderKey string
		var item entity.OrderItem
		if err := rows.Scan(&orderKey, &item.Key, &item.Name, &item.Price, &item.Quantity, &item.LineTotal, &item.Image, &item.Unit); err != nil {
			return err
		}
		if i, ok := index[orderKey]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*entity.Order, error) {
	o := &entity.Order{}
	var status string
	err := row.Scan(
		&o.Key, &o.UserID, &o.Subtotal, &o.DeliveryFee, &o.Total, &o.Method, &status, &o.CancellationReason,
		&o.DriverID, &o.DriverName, &o.DriverPhone, &o.Address.Name, &o.Address.Phone, &o.Address.Pincode,
		&o.Address.Line, &o.Address.Landmark, &o.Address.State, &o.Address.District, &o.IdempotencyKey, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = entity.OrderStatus(status)
	return o, nil
}
