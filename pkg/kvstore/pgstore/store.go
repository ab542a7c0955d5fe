// Package pgstore implements kvstore.Store on PostgreSQL. Values live in a
// single table; every write issues pg_notify in the same transaction and
// subscribers LISTEN on a dedicated pooled connection.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/cluso-host/pkg/kvstore"
	"github.com/dd0wney/cluso-host/pkg/logging"
)

const (
	defaultTable      = "cluso_kv"
	defaultChannel    = "cluso_kv_changes"
	defaultErrorPause = time.Second
)

var _ kvstore.Store = (*Store)(nil)

// notification is the pg_notify payload
type notification struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Option configures the Store
type Option func(*Store)

// WithLogger sets a custom logger
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTable overrides the table name
func WithTable(name string) Option {
	return func(s *Store) { s.table = name }
}

// WithChannel overrides the NOTIFY channel
func WithChannel(name string) Option {
	return func(s *Store) { s.channel = name }
}

// WithErrorPause sets how long a subscription waits before reconnecting
func WithErrorPause(d time.Duration) Option {
	return func(s *Store) { s.errorPause = d }
}

// Store is a PostgreSQL-backed kvstore.Store
type Store struct {
	pool       *pgxpool.Pool
	ownsPool   bool
	logger     logging.Logger
	table      string
	channel    string
	errorPause time.Duration
}

// Open connects to databaseURL, verifies the connection and creates the
// table if needed. The returned store owns the pool.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse database URL: %w", err)
	}

	// One connection per subscription plus headroom for writes
	config.MaxConns = 8
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("pgstore: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: database unreachable: %w", err)
	}

	s := New(pool, opts...)
	s.ownsPool = true

	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. The caller keeps ownership of it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:       pool,
		logger:     logging.NewNopLogger(),
		table:      defaultTable,
		channel:    defaultChannel,
		errorPause: defaultErrorPause,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Migrate creates the backing table
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.tableIdent()))
	if err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Get reads key
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, s.tableIdent()), key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", kvstore.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("pgstore: get %s: %w", key, err)
	}
	return value, nil
}

// Set upserts key and notifies listeners on commit
func (s *Store) Set(ctx context.Context, key, value string) error {
	payload, err := json.Marshal(notification{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("pgstore: encode notification: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			s.tableIdent()), key, value); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, s.channel, string(payload))
		return err
	})
	if err != nil {
		return fmt.Errorf("pgstore: set %s: %w", key, err)
	}
	return nil
}

// Subscribe streams values written to key. Each subscription holds one
// pooled connection; a broken connection is reported as an error event
// and replaced after the error pause.
func (s *Store) Subscribe(ctx context.Context, key string) (<-chan kvstore.Event, error) {
	conn, err := s.listen(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgstore: subscribe %s: %w", key, err)
	}

	out := make(chan kvstore.Event)
	go s.listenLoop(ctx, conn, key, out)
	return out, nil
}

func (s *Store) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, err
	}
	return conn, nil
}

func (s *Store) listenLoop(ctx context.Context, conn *pgxpool.Conn, key string, out chan<- kvstore.Event) {
	defer close(out)
	defer func() {
		if conn != nil {
			// A connection still in LISTEN must not go back to the pool
			conn.Hijack().Close(context.Background())
		}
	}()

	send := func(ev kvstore.Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		if conn == nil {
			select {
			case <-time.After(s.errorPause):
			case <-ctx.Done():
				return
			}
			c, err := s.listen(ctx)
			if err != nil {
				if ctx.Err() != nil || !send(kvstore.Event{Err: fmt.Errorf("pgstore: relisten: %w", err)}) {
					return
				}
				continue
			}
			conn = c
		}

		n, err := conn.Conn().WaitForNotification(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Debug("postgres listen connection failed", logging.Error(err))
			conn.Hijack().Close(context.Background())
			conn = nil
			if !send(kvstore.Event{Err: fmt.Errorf("pgstore: wait for notification: %w", err)}) {
				return
			}
			continue
		}

		var msg notification
		if err := json.Unmarshal([]byte(n.Payload), &msg); err != nil {
			if !send(kvstore.Event{Err: fmt.Errorf("pgstore: decode notification: %w", err)}) {
				return
			}
			continue
		}
		if msg.Key != key {
			continue
		}
		if !send(kvstore.Event{Value: msg.Value}) {
			return
		}
	}
}

// Close releases the pool when the store opened it
func (s *Store) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

func (s *Store) tableIdent() string {
	return pgx.Identifier{s.table}.Sanitize()
}
