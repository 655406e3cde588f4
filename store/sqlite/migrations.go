package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the fulfill store (SQLite).
var Migrations = migrate.NewGroup("fulfill")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_fulfill_customers",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fulfill_customers (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    email       TEXT NOT NULL DEFAULT '',
    company     TEXT NOT NULL DEFAULT '',
    phone       TEXT NOT NULL DEFAULT '',
    metadata    TEXT NOT NULL DEFAULT '{}',
    created_at  INTEGER NOT NULL DEFAULT 0,
    updated_at  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_fulfill_customers_email ON fulfill_customers (email);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fulfill_customers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_fulfill_service_types",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fulfill_service_types (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL DEFAULT '',
    slug           TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    type           TEXT NOT NULL,
    price_amount   INTEGER NOT NULL DEFAULT 0,
    currency       TEXT NOT NULL DEFAULT 'usd',
    billing_cycle  TEXT NOT NULL DEFAULT 'monthly',
    features       TEXT NOT NULL DEFAULT '{}',
    active         INTEGER NOT NULL DEFAULT 1,
    created_at     INTEGER NOT NULL DEFAULT 0,
    updated_at     INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_fulfill_service_types_slug ON fulfill_service_types (slug);
CREATE INDEX IF NOT EXISTS idx_fulfill_service_types_type ON fulfill_service_types (type, active);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fulfill_service_types`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_fulfill_orders",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fulfill_orders (
    id           TEXT PRIMARY KEY,
    customer_id  TEXT NOT NULL,
    number       TEXT NOT NULL,
    items        TEXT NOT NULL DEFAULT '[]',
    currency     TEXT NOT NULL DEFAULT 'usd',
    subtotal     INTEGER NOT NULL DEFAULT 0,
    tax_amount   INTEGER NOT NULL DEFAULT 0,
    total        INTEGER NOT NULL DEFAULT 0,
    status       TEXT NOT NULL DEFAULT 'pending',
    paid_at      INTEGER,
    notes        TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL DEFAULT 0,
    updated_at   INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_fulfill_orders_number ON fulfill_orders (number);
CREATE INDEX IF NOT EXISTS idx_fulfill_orders_customer ON fulfill_orders (customer_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_fulfill_orders_status ON fulfill_orders (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fulfill_orders`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_fulfill_invoices",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fulfill_invoices (
    id            TEXT PRIMARY KEY,
    customer_id   TEXT NOT NULL,
    order_id      TEXT NOT NULL DEFAULT '',
    service_id    TEXT NOT NULL DEFAULT '',
    number        TEXT NOT NULL,
    currency      TEXT NOT NULL DEFAULT 'usd',
    amount        INTEGER NOT NULL DEFAULT 0,
    tax_amount    INTEGER NOT NULL DEFAULT 0,
    total         INTEGER NOT NULL DEFAULT 0,
    status        TEXT NOT NULL DEFAULT 'pending',
    due_date      INTEGER NOT NULL,
    paid_at       INTEGER,
    line_items    TEXT NOT NULL DEFAULT '[]',
    is_recurring  INTEGER NOT NULL DEFAULT 0,
    created_at    INTEGER NOT NULL DEFAULT 0,
    updated_at    INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_fulfill_invoices_number ON fulfill_invoices (number);
CREATE INDEX IF NOT EXISTS idx_fulfill_invoices_customer ON fulfill_invoices (customer_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_fulfill_invoices_order ON fulfill_invoices (order_id);
CREATE INDEX IF NOT EXISTS idx_fulfill_invoices_service ON fulfill_invoices (service_id);
CREATE INDEX IF NOT EXISTS idx_fulfill_invoices_status_due ON fulfill_invoices (status, due_date);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fulfill_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_fulfill_services",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fulfill_services (
    id                 TEXT PRIMARY KEY,
    customer_id        TEXT NOT NULL,
    service_type_id    TEXT NOT NULL,
    order_id           TEXT NOT NULL DEFAULT '',
    domain_name        TEXT NOT NULL DEFAULT '',
    configuration      TEXT NOT NULL DEFAULT '{}',
    status             TEXT NOT NULL DEFAULT 'pending',
    next_billing_date  INTEGER NOT NULL,
    expiry_date        INTEGER NOT NULL,
    provisioning_data  TEXT NOT NULL DEFAULT '{}',
    created_at         INTEGER NOT NULL DEFAULT 0,
    updated_at         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_fulfill_services_customer ON fulfill_services (customer_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_fulfill_services_order ON fulfill_services (order_id);
CREATE INDEX IF NOT EXISTS idx_fulfill_services_due ON fulfill_services (status, next_billing_date);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fulfill_services`)
				return err
			},
		},
	)
}
