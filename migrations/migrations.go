package migrations

import (
	"database/sql"
	"fmt"
	"time"
)

var orderTables = []string{`
		CREATE TABLE IF NOT EXISTS orders (
			order_key VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			subtotal DECIMAL(10,2) NOT NULL,
			delivery_fee DECIMAL(10,2) NOT NULL,
			total DECIMAL(10,2) NOT NULL,
			method VARCHAR(16) NOT NULL,
			status VARCHAR(32) NOT NULL,
			cancellation_reason VARCHAR(255) NOT NULL DEFAULT '',
			driver_id VARCHAR(64) NOT NULL DEFAULT '',
			driver_name VARCHAR(128) NOT NULL DEFAULT '',
			driver_phone VARCHAR(16) NOT NULL DEFAULT '',
			address_name VARCHAR(128) NOT NULL,
			address_phone VARCHAR(16) NOT NULL,
			address_pincode VARCHAR(8) NOT NULL,
			address_line VARCHAR(255) NOT NULL,
			address_landmark VARCHAR(255) NOT NULL DEFAULT '',
			address_state VARCHAR(64) NOT NULL DEFAULT '',
			address_district VARCHAR(64) NOT NULL DEFAULT '',
			idempotency_key VARCHAR(255) NULL,
			created_at DATETIME(6) NOT NULL,
			UNIQUE KEY uq_orders_idempotency (user_id, idempotency_key),
			KEY idx_orders_user_created (user_id, created_at)
		);
	`, `
		CREATE TABLE IF NOT EXISTS order_items (
			order_key VARCHAR(64) NOT NULL,
			position INT NOT NULL,
			dish_key VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			price DECIMAL(10,2) NOT NULL,
			quantity INT NOT NULL,
			line_total DECIMAL(10,2) NOT NULL,
			image VARCHAR(512) NOT NULL,
			unit VARCHAR(32) NOT NULL,
			PRIMARY KEY (order_key, position),
			FOREIGN KEY (order_key) REFERENCES orders(order_key) ON DELETE CASCADE
		);
	`}

var catalogTables = []string{`
		CREATE TABLE IF NOT EXISTS dishes (
			dish_key VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			unit VARCHAR(32) NOT NULL,
			images TEXT NOT NULL,
			category_id VARCHAR(64) NOT NULL,
			pincode VARCHAR(16) NOT NULL DEFAULT 'ALL',
			discount DECIMAL(5,2) NOT NULL DEFAULT 0,
			final_price DECIMAL(10,2) NOT NULL,
			source_price DECIMAL(10,2) NOT NULL,
			platform_fee DECIMAL(10,2) NOT NULL,
			in_stock TINYINT(1) NULL
		);
	`, `
		CREATE TABLE IF NOT EXISTS categories (
			category_id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			image VARCHAR(512) NOT NULL,
			position INT NOT NULL DEFAULT 0
		);
	`, `
		CREATE TABLE IF NOT EXISTS banners (
			banner_id VARCHAR(64) PRIMARY KEY,
			image VARCHAR(512) NOT NULL,
			link VARCHAR(512) NOT NULL DEFAULT '',
			position INT NOT NULL DEFAULT 0
		);
	`, `
		CREATE TABLE IF NOT EXISTS app_settings (
			setting_key VARCHAR(128) PRIMARY KEY,
			setting_value VARCHAR(255) NOT NULL
		);
	`}

// AutoMigrateOrders creates the orders and order_items tables on every shard.
func AutoMigrateOrders(retries int, dbs ...*sql.DB) error {
	for i, db := range dbs {
		for _, query := range orderTables {
			if err := execWithRetry(db, query, retries); err != nil {
				return fmt.Errorf("migrate shard %d: %w", i, err)
			}
		}
	}
	return nil
}

// AutoMigrateCatalog creates the catalog and settings tables.
func AutoMigrateCatalog(retries int, db *sql.DB) error {
	for _, query := range catalogTables {
		if err := execWithRetry(db, query, retries); err != nil {
			return fmt.Errorf("migrate catalog: %w", err)
		}
	}
	return nil
}

var retryDelay = time.Second

func execWithRetry(db *sql.DB, query string, retries int) error {
	_, err := db.Exec(query)
	// Retry creating the table
	for i := 0; err != nil && i < retries; i++ {
		time.Sleep(retryDelay)
		_, err = db.Exec(query)
	}
	return err
}
