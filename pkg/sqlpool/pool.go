package db

import (
	"context"
	"database/sql"
	"time"
)

// QueryObserver receives a notification after every query/exec/begin
// issued through a Pool, tagged with the operation name and how long it
// took. Callers that need pool metrics (Prometheus counters, slow-query
// logs) implement this instead of pkg/sqlpool importing a metrics
// package directly — callers like pkg/streamreg sit upstream of
// anything a metrics package could safely import without a cycle.
type QueryObserver interface {
	OnQuery(operation string, duration time.Duration, err error)
}

// PoolConfig configures database connection pool (similar to HikariConfig)
type PoolConfig struct {
	// DSN is the database connection string
	DSN string

	// MaxOpenConns is the maximum number of open connections (like maximumPoolSize in HikariCP)
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections (like minimumIdle in HikariCP)
	MaxIdleConns int

	// ConnMaxLifetime is the maximum amount of time a connection may be reused (like connectionTimeout)
	ConnMaxLifetime time.Duration

	// ConnMaxIdleTime is the maximum amount of time a connection may be idle (like idleTimeout)
	ConnMaxIdleTime time.Duration

	// DriverName is the database driver name (e.g., "postgres", "mysql")
	DriverName string

	// Observer, if set, is notified after every query/exec/begin this
	// pool issues. Optional.
	Observer QueryObserver
}

// DefaultPoolConfig returns HikariCP-like default configuration
func DefaultPoolConfig(dsn string, driverName string) PoolConfig {
	return PoolConfig{
		DSN:             dsn,
		DriverName:      driverName,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// Pool represents a database connection pool
type Pool struct {
	db     *sql.DB
	config PoolConfig
}

func (p *Pool) observe(operation string, start time.Time, err error) {
	if p.config.Observer != nil {
		p.config.Observer.OnQuery(operation, time.Since(start), err)
	}
}

// NewPool creates a new database connection pool (similar to HikariDataSource)
// Fail-fast: Validates configuration before creating pool
func NewPool(config PoolConfig) (*Pool, error) {
	// Fail-fast: Validate configuration
	if config.DSN == "" {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "DSN cannot be empty"}
	}
	if config.DriverName == "" {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "DriverName cannot be empty"}
	}
	if config.MaxOpenConns <= 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "MaxOpenConns must be positive"}
	}
	if config.MaxIdleConns < 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "MaxIdleConns cannot be negative"}
	}
	if config.MaxIdleConns > config.MaxOpenConns {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "MaxIdleConns cannot exceed MaxOpenConns"}
	}
	if config.ConnMaxLifetime < 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "ConnMaxLifetime cannot be negative"}
	}
	if config.ConnMaxIdleTime < 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "ConnMaxIdleTime cannot be negative"}
	}

	// Open database (creates pool)
	db, err := sql.Open(config.DriverName, config.DSN)
	if err != nil {
		return nil, err
	}

	// Configure pool (similar to HikariConfig)
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	// Test connection (fail-fast: verify connection works)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Pool{
		db:     db,
		config: config,
	}, nil
}

// Error represents a database error (fail-fast)
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// DB returns the underlying *sql.DB
// Fail-fast: Panics if pool is nil (invalid state)
func (p *Pool) DB() *sql.DB {
	if p == nil {
		panic("pool cannot be nil")
	}
	if p.db == nil {
		panic("pool.db cannot be nil - pool not initialized")
	}
	return p.db
}

// Close closes the connection pool
// Fail-fast: Validates pool state before closing
func (p *Pool) Close() error {
	if p == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool cannot be nil"}
	}
	if p.db == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool already closed"}
	}
	return p.db.Close()
}

// Ping tests the connection
// Fail-fast: Validates inputs before pinging
func (p *Pool) Ping(ctx context.Context) error {
	if p == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool cannot be nil"}
	}
	if p.db == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool not initialized"}
	}
	if ctx == nil {
		return &Error{Code: "INVALID_INPUT", Message: "context cannot be nil"}
	}
	return p.db.PingContext(ctx)
}

// Stats returns pool statistics (similar to HikariPoolMXBean)
// Fail-fast: Validates pool state
func (p *Pool) Stats() sql.DBStats {
	if p == nil || p.db == nil {
		return sql.DBStats{}
	}
	return p.db.Stats()
}

// Query executes a query that returns rows
// Fail-fast: Validates inputs before querying
func (p *Pool) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if p == nil {
		return nil, &Error{Code: "INVALID_STATE", Message: "pool cannot be nil"}
	}
	if p.db == nil {
		return nil, &Error{Code: "INVALID_STATE", Message: "pool not initialized"}
	}
	if ctx == nil {
		return nil, &Error{Code: "INVALID_INPUT", Message: "context cannot be nil"}
	}
	if query == "" {
		return nil, &Error{Code: "INVALID_INPUT", Message: "query cannot be empty"}
	}
	start := time.Now()
	rows, err := p.db.QueryContext(ctx, query, args...)
	p.observe("query", start, err)
	return rows, err
}

// QueryRow executes a query that returns a single row
// Fail-fast: Validates inputs before querying
func (p *Pool) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	if p == nil {
		panic("pool cannot be nil")
	}
	if p.db == nil {
		panic("pool not initialized")
	}
	if ctx == nil {
		panic("context cannot be nil")
	}
	if query == "" {
		panic("query cannot be empty")
	}
	start := time.Now()
	row := p.db.QueryRowContext(ctx, query, args...)
	// QueryRow defers its error until Scan, so the only thing worth
	// observing here is that the call was issued and how long building
	// the statement took — not the eventual row error.
	p.observe("query_row", start, nil)
	return row
}

// Exec executes a command
// Fail-fast: Validates inputs before executing
func (p *Pool) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if p == nil {
		return nil, &Error{Code: "INVALID_STATE", Message: "pool cannot be nil"}
	}
	if p.db == nil {
		return nil, &Error{Code: "INVALID_STATE", Message: "pool not initialized"}
	}
	if ctx == nil {
		return nil, &Error{Code: "INVALID_INPUT", Message: "context cannot be nil"}
	}
	if query == "" {
		return nil, &Error{Code: "INVALID_INPUT", Message: "query cannot be empty"}
	}
	start := time.Now()
	res, err := p.db.ExecContext(ctx, query, args...)
	p.observe("exec", start, err)
	return res, err
}

// Begin starts a transaction
// Fail-fast: Validates inputs before beginning transaction
func (p *Pool) Begin(ctx context.Context) (*sql.Tx, error) {
	if p == nil {
		return nil, &Error{Code: "INVALID_STATE", Message: "pool cannot be nil"}
	}
	if p.db == nil {
		return nil, &Error{Code: "INVALID_STATE", Message: "pool not initialized"}
	}
	if ctx == nil {
		return nil, &Error{Code: "INVALID_INPUT", Message: "context cannot be nil"}
	}
	start := time.Now()
	tx, err := p.db.BeginTx(ctx, nil)
	p.observe("begin", start, err)
	return tx, err
}

// BeginTx starts a transaction with options
// Fail-fast: Validates inputs before beginning transaction
func (p *Pool) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if p == nil {
		return nil, &Error{Code: "INVALID_STATE", Message: "pool cannot be nil"}
	}
	if p.db == nil {
		return nil, &Error{Code: "INVALID_STATE", Message: "pool not initialized"}
	}
	if ctx == nil {
		return nil, &Error{Code: "INVALID_INPUT", Message: "context cannot be nil"}
	}
	start := time.Now()
	tx, err := p.db.BeginTx(ctx, opts)
	p.observe("begin_tx", start, err)
	return tx, err
}
