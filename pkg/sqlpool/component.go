package db

import (
	"context"
	"database/sql"
	"fmt"
)

// DatabaseComponent wraps a pooled *sql.DB for the optional Postgres
// snapshot store used by the Stream Registry and Tag Index.
type DatabaseComponent struct {
	name   string
	config PoolConfig
	pool   *Pool
}

// NewDatabaseComponent validates config and returns an unstarted component
// named after its driver (e.g. "database:postgres").
func NewDatabaseComponent(config PoolConfig) *DatabaseComponent {
	if config.DSN == "" {
		panic("DSN cannot be empty")
	}
	if config.DriverName == "" {
		panic("DriverName cannot be empty")
	}
	if config.MaxOpenConns <= 0 {
		panic("MaxOpenConns must be positive")
	}

	return &DatabaseComponent{name: "database:" + config.DriverName, config: config}
}

// Name returns the component's identifier, used in logs and metrics labels.
func (c *DatabaseComponent) Name() string {
	return c.name
}

// Start opens the connection pool.
func (c *DatabaseComponent) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("sqlpool: context cannot be nil")
	}

	pool, err := NewPool(c.config)
	if err != nil {
		return err
	}
	c.pool = pool
	return nil
}

// Stop closes the connection pool.
func (c *DatabaseComponent) Stop(ctx context.Context) error {
	if c.pool != nil {
		return c.pool.Close()
	}
	return nil
}

// Pool returns the connection pool. Panics if the component hasn't started.
func (c *DatabaseComponent) Pool() *Pool {
	if c.pool == nil {
		panic("database component not started - call Start() first")
	}
	return c.pool
}

// DB returns the underlying *sql.DB. Panics if the component hasn't started.
func (c *DatabaseComponent) DB() *sql.DB {
	if c.pool == nil {
		panic("database component not started - call Start() first")
	}
	return c.pool.DB()
}

// Query executes a query that returns rows.
func (c *DatabaseComponent) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if c == nil {
		return nil, fmt.Errorf("sqlpool: component cannot be nil")
	}
	if c.pool == nil {
		return nil, fmt.Errorf("sqlpool: not started")
	}
	if query == "" {
		return nil, fmt.Errorf("sqlpool: query cannot be empty")
	}
	return c.pool.Query(ctx, query, args...)
}

// QueryRow executes a query that returns a single row.
func (c *DatabaseComponent) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	if c.pool == nil {
		panic("database component not started - call Start() first")
	}
	return c.pool.QueryRow(ctx, query, args...)
}

// Exec executes a command.
func (c *DatabaseComponent) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if c.pool == nil {
		return nil, fmt.Errorf("sqlpool: not started")
	}
	if query == "" {
		return nil, fmt.Errorf("sqlpool: query cannot be empty")
	}
	return c.pool.Exec(ctx, query, args...)
}

// Begin starts a transaction.
func (c *DatabaseComponent) Begin(ctx context.Context) (*sql.Tx, error) {
	if c.pool == nil {
		return nil, fmt.Errorf("sqlpool: not started")
	}
	return c.pool.Begin(ctx)
}

// BeginTx starts a transaction with options.
func (c *DatabaseComponent) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if c.pool == nil {
		return nil, fmt.Errorf("sqlpool: not started")
	}
	return c.pool.BeginTx(ctx, opts)
}

// Stats returns pool statistics.
func (c *DatabaseComponent) Stats() sql.DBStats {
	if c.pool == nil {
		return sql.DBStats{}
	}
	return c.pool.Stats()
}

// Ping tests the connection.
func (c *DatabaseComponent) Ping(ctx context.Context) error {
	if c.pool == nil {
		return fmt.Errorf("sqlpool: not started")
	}
	return c.pool.Ping(ctx)
}
