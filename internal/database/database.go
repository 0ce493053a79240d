package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/relaystack/relayctl/internal/logger"
	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

const connectTimeout = 10 * time.Second

// Schema DDL is idempotent by construction: every statement tolerates the
// object already existing, so re-running a provisioning sequence leaves
// the database unchanged.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		handle TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(id),
		channel TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS delivery_log (
		id BIGSERIAL PRIMARY KEY,
		message_id BIGINT NOT NULL REFERENCES messages(id),
		status TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		delivered_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_account ON messages (account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages (channel)`,
	`CREATE INDEX IF NOT EXISTS idx_delivery_log_message ON delivery_log (message_id)`,
	// Fixed-identity seed row; the conflict target keeps repeated runs
	// from duplicating it.
	`INSERT INTO accounts (handle, display_name) VALUES ('system', 'Relay System')
		ON CONFLICT (handle) DO NOTHING`,
}

// RequiredTables lists the tables the diagnostics engine asserts exist.
var RequiredTables = []string{"accounts", "messages", "delivery_log"}

var maintenanceStatements = []string{
	`VACUUM (ANALYZE) accounts`,
	`VACUUM (ANALYZE) messages`,
	`VACUUM (ANALYZE) delivery_log`,
	`REINDEX TABLE accounts`,
	`REINDEX TABLE messages`,
	`REINDEX TABLE delivery_log`,
}

// Client wraps a single PostgreSQL connection for schema and maintenance
// work. This is an operator tool, not a server: one connection, opened
// per operation, is the right shape.
type Client struct {
	conn *pgx.Conn
	log  *logger.Logger
}

// Connect opens a deadline-bounded connection.
func Connect(ctx context.Context, dsn string, log *logger.Logger) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, relayerrors.NewPreconditionError("database", "cannot connect", err)
	}
	return &Client{conn: conn, log: log}, nil
}

// Close releases the connection.
func (c *Client) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// Ping checks liveness.
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// EnsureSchema applies the idempotent DDL set in order.
func (c *Client) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := c.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	c.log.Info("database schema ensured")
	return nil
}

// TableExists reports whether name is a table in the public schema.
func (c *Client) TableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := c.conn.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`, name).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Maintenance runs vacuum/analyze/reindex over the application tables.
func (c *Client) Maintenance(ctx context.Context) error {
	for _, stmt := range maintenanceStatements {
		if _, err := c.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("maintenance statement %q failed: %w", stmt, err)
		}
	}
	c.log.Info("database maintenance completed")
	return nil
}
