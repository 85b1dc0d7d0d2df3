package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// SQLiteSchema mirrors the goose migrations for local single-file runs and the
// in-memory databases used by repository tests. Enum columns become TEXT.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    role TEXT NOT NULL DEFAULT 'Cliente',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS addresses (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    line1 TEXT NOT NULL,
    city TEXT NOT NULL,
    postal_code TEXT,
    country TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS products (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    price NUMERIC NOT NULL,
    stock INTEGER NOT NULL DEFAULT 0,
    image_url TEXT,
    created_at DATETIME,
    updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS cart_items (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    quantity INTEGER NOT NULL,
    added_at DATETIME
);
CREATE TABLE IF NOT EXISTS inventory_records (
    id TEXT PRIMARY KEY,
    product_id TEXT NOT NULL UNIQUE,
    available_qty INTEGER NOT NULL DEFAULT 0,
    reserved_qty INTEGER NOT NULL DEFAULT 0,
    min_stock INTEGER NOT NULL DEFAULT 10,
    updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS inventory_movements (
    id TEXT PRIMARY KEY,
    product_id TEXT NOT NULL,
    movement_type TEXT NOT NULL,
    quantity INTEGER NOT NULL,
    user_id TEXT NOT NULL,
    external_reference TEXT,
    created_at DATETIME
);
CREATE TABLE IF NOT EXISTS promotions (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    description TEXT,
    discount_type TEXT NOT NULL,
    discount_value NUMERIC NOT NULL,
    start_date DATETIME NOT NULL,
    end_date DATETIME NOT NULL,
    max_uses INTEGER,
    current_uses INTEGER NOT NULL DEFAULT 0,
    active BOOLEAN NOT NULL DEFAULT 1,
    created_at DATETIME
);
CREATE TABLE IF NOT EXISTS product_promotions (
    product_id TEXT NOT NULL,
    promotion_id TEXT NOT NULL,
    PRIMARY KEY (product_id, promotion_id)
);
CREATE TABLE IF NOT EXISTS price_history (
    id TEXT PRIMARY KEY,
    product_id TEXT NOT NULL,
    previous_price NUMERIC NOT NULL,
    new_price NUMERIC NOT NULL,
    reason TEXT NOT NULL,
    user_id TEXT,
    changed_at DATETIME
);
CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    address_id TEXT NOT NULL,
    subtotal NUMERIC NOT NULL,
    taxes NUMERIC NOT NULL,
    total NUMERIC NOT NULL,
    status TEXT NOT NULL,
    notes TEXT,
    ordered_at DATETIME NOT NULL,
    delivered_at DATETIME,
    updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS order_lines (
    id TEXT PRIMARY KEY,
    order_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    quantity INTEGER NOT NULL,
    unit_price NUMERIC NOT NULL,
    subtotal NUMERIC NOT NULL
);
CREATE TABLE IF NOT EXISTS payments (
    id TEXT PRIMARY KEY,
    order_id TEXT NOT NULL UNIQUE,
    method TEXT NOT NULL,
    amount NUMERIC NOT NULL,
    status TEXT NOT NULL,
    transaction_id TEXT,
    created_at DATETIME,
    updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS returns (
    id TEXT PRIMARY KEY,
    order_id TEXT NOT NULL,
    reason TEXT NOT NULL,
    status TEXT NOT NULL,
    refund_amount NUMERIC NOT NULL,
    requested_at DATETIME NOT NULL,
    resolved_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_returns_open_per_order ON returns (order_id) WHERE status = 'Solicitada';
CREATE TABLE IF NOT EXISTS support_tickets (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    order_id TEXT NOT NULL,
    subject TEXT NOT NULL,
    description TEXT NOT NULL,
    priority TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at DATETIME,
    updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS outbox_events (
    id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    aggregate_type TEXT NOT NULL,
    aggregate_id TEXT NOT NULL,
    payload BLOB NOT NULL,
    created_at DATETIME,
    published_at DATETIME,
    attempt_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT
);
CREATE TABLE IF NOT EXISTS outbox_dlq (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL UNIQUE,
    event_type TEXT NOT NULL,
    aggregate_type TEXT NOT NULL,
    aggregate_id TEXT NOT NULL,
    payload_json BLOB NOT NULL,
    error_reason TEXT NOT NULL,
    error_message TEXT,
    attempt_count INTEGER NOT NULL DEFAULT 0,
    failed_at DATETIME
);
`

// ApplySQLite creates the schema on a SQLite connection.
func ApplySQLite(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.WithContext(ctx).Exec(SQLiteSchema).Error; err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}
