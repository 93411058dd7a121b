package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Client manages a PostgreSQL connection pool.
type Client struct {
	db *sql.DB
}

// NewClient opens a pooled connection through the pgx stdlib driver and pings it.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := &ClientConfig{
		Port:             5432,
		SSLMode:          "disable",
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  30 * time.Minute,
		DialTimeout:      10 * time.Second,
		StatementTimeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.DSN == "" && cfg.Host == "" {
		return nil, fmt.Errorf("host or dsn is required")
	}

	db, err := sql.Open("pgx", BuildDSN(*cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	return &Client{db: db}, nil
}

// DB returns *sql.DB for direct use.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Health performs health check.
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes connection pool.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// BuildDSN renders a postgres:// URL. connect_timeout and statement_timeout
// are appended unless the caller's DSN already carries them.
func BuildDSN(cfg ClientConfig) string {
	var u *url.URL
	if cfg.DSN != "" {
		parsed, err := url.Parse(cfg.DSN)
		if err != nil || parsed.Scheme == "" {
			// key=value form; pass through untouched
			return cfg.DSN
		}
		u = parsed
	} else {
		u = &url.URL{
			Scheme: "postgres",
			Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Path:   "/" + cfg.Database,
		}
		if cfg.User != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		}
	}

	q := u.Query()
	if cfg.SSLMode != "" && q.Get("sslmode") == "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	if cfg.DialTimeout > 0 && q.Get("connect_timeout") == "" {
		secs := int(cfg.DialTimeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	if cfg.StatementTimeout > 0 && q.Get("statement_timeout") == "" {
		// pgx forwards unknown params as runtime parameters
		q.Set("statement_timeout", strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
