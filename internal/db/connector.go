// Package db establishes and adapts PostgreSQL connections for the loader.
package db

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ekorchmar/sisyphus/internal/retry"
	"github.com/ekorchmar/sisyphus/pkg/sisyphus"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connection pool configuration constants
const (
	// DefaultMinConns maintains at least one connection in the pool.
	DefaultMinConns = 1

	// DefaultMaxConnIdleTime keeps connections alive during long uploads
	// to avoid reconnection overhead.
	DefaultMaxConnIdleTime = 30 * time.Minute
)

// StandardConnector implements the sisyphus.Connector interface for
// username/password authentication with automatic retry on transient
// connect failures. The pool size is derived from the worker count so the
// concurrent upload phase never starves for connections.
type StandardConnector struct {
	config        *sisyphus.ConnectionConfig
	maxConns      int32
	retryExecutor *retry.Executor
}

// NewStandardConnector creates a new StandardConnector. maxConns should be
// at least the configured worker count plus one connection for the
// orchestrator's script phases.
func NewStandardConnector(config *sisyphus.ConnectionConfig, maxConns int) *StandardConnector {
	classifier := retry.NewPostgreSQLErrorClassifier()
	strategy := retry.NewExponentialBackoff(sisyphus.DefaultRetryMaxAttempts,
		retry.WithInitialDelay(sisyphus.DefaultRetryInitialDelay),
		retry.WithMaxDelay(sisyphus.DefaultRetryMaxDelay),
	)

	if maxConns < 1 {
		maxConns = 1
	}

	return &StandardConnector{
		config:        config,
		maxConns:      int32(maxConns),
		retryExecutor: retry.NewExecutor(classifier, strategy),
	}
}

// Connect establishes a connection pool and verifies it with a ping.
func (c *StandardConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	connStr := BuildConnectionString(c.config)

	err := c.retryExecutor.Execute(ctx, func(ctx context.Context) error {
		poolConfig, err := pgxpool.ParseConfig(connStr)
		if err != nil {
			return fmt.Errorf("failed to parse connection config: %w", err)
		}

		poolConfig.MaxConns = c.maxConns
		poolConfig.MinConns = DefaultMinConns
		poolConfig.MaxConnIdleTime = DefaultMaxConnIdleTime

		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return wrapConnectionError(err, c.config.Host, c.config.Port)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return wrapConnectionError(err, c.config.Host, c.config.Port)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return pool, nil
}

// BuildConnectionString renders a ConnectionConfig as a PostgreSQL URI.
func BuildConnectionString(config *sisyphus.ConnectionConfig) string {
	u := &url.URL{
		Scheme: "postgresql",
		Host:   fmt.Sprintf("%s:%d", config.Host, config.Port),
		Path:   "/" + config.Database,
	}

	if config.Username != "" {
		if config.Password != "" {
			u.User = url.UserPassword(config.Username, config.Password)
		} else {
			u.User = url.User(config.Username)
		}
	}

	query := url.Values{}
	if config.SSLMode != "" {
		query.Set("sslmode", config.SSLMode)
	}
	if config.AppName != "" {
		query.Set("application_name", config.AppName)
	}
	if config.ConnectTimeout > 0 {
		query.Set("connect_timeout", strconv.Itoa(int(config.ConnectTimeout.Seconds())))
	}

	u.RawQuery = query.Encode()
	return u.String()
}

// wrapConnectionError wraps raw pgx connection errors with the
// sisyphus.ErrConnectionFailed sentinel and actionable guidance.
func wrapConnectionError(err error, host string, port int) error {
	errStr := strings.ToLower(err.Error())
	addr := fmt.Sprintf("%s:%d", host, port)

	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "actively refused"):
		return fmt.Errorf("%w: connection refused to %s (is PostgreSQL running? check: pg_isready -h %s -p %d): %w",
			sisyphus.ErrConnectionFailed, addr, host, port, err)

	case strings.Contains(errStr, "no such host") || strings.Contains(errStr, "no host"):
		return fmt.Errorf("%w: cannot resolve host %q: %w", sisyphus.ErrConnectionFailed, host, err)

	case strings.Contains(errStr, "password authentication failed"):
		return fmt.Errorf("%w: password authentication failed (check $PGPASSWORD or ~/.pgpass): %w",
			sisyphus.ErrConnectionFailed, err)

	default:
		return fmt.Errorf("%w: %s: %w", sisyphus.ErrConnectionFailed, addr, err)
	}
}
