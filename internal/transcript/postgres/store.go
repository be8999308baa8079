// Package postgres logs finished utterances to a PostgreSQL table.
//
// A [Store] is a [segment.EventHandler]: it remembers each utterance's
// boundaries as they are announced and writes one row when the final
// hypothesis arrives.
package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/livesegment/internal/observe"
	"github.com/MrWong99/livesegment/internal/segment"
)

// Schema is the SQL DDL for the utterances table. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS utterances (
    id          BIGSERIAL PRIMARY KEY,
    session_id  TEXT NOT NULL,
    utterance   INTEGER NOT NULL,
    start_sec   DOUBLE PRECISION NOT NULL,
    end_sec     DOUBLE PRECISION NOT NULL,
    forced      BOOLEAN NOT NULL DEFAULT false,
    text        TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (session_id, utterance)
);
CREATE INDEX IF NOT EXISTS idx_utterances_session ON utterances(session_id, utterance);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Record is one logged utterance.
type Record struct {
	Session   string
	Utterance int
	Start     float64
	End       float64
	Forced    bool
	Text      string
	CreatedAt time.Time
}

// Store writes utterances of one session.
type Store struct {
	db      DB
	session string
	pool    *pgxpool.Pool

	mu      sync.Mutex
	pending map[int]*Record
}

var _ segment.EventHandler = (*Store)(nil)

// New returns a Store logging the utterances of session to db. The caller is
// responsible for calling [Store.Migrate] before the first event.
func New(db DB, session string) *Store {
	return &Store{
		db:      db,
		session: session,
		pending: make(map[int]*Record),
	}
}

// Open connects to the database at dsn, verifies the connection and runs
// [Store.Migrate]. Close releases the pool.
func Open(ctx context.Context, dsn, session string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := New(pool, session)
	s.pool = pool
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool if the Store opened it.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Session returns the session id rows are written under.
func (s *Store) Session() string { return s.session }

// Migrate executes the [Schema] DDL.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// HandleEvent tracks utterance boundaries and inserts a row on each final
// hypothesis. Utterances dropped without a final are forgotten at the next
// speech start.
func (s *Store) HandleEvent(ctx context.Context, ev segment.Event) error {
	s.mu.Lock()
	switch ev.Type {
	case segment.EventSpeechStart:
		clear(s.pending)
		s.pending[ev.Utterance] = &Record{Session: s.session, Utterance: ev.Utterance, Start: ev.Time}
		s.mu.Unlock()
		return nil
	case segment.EventSpeechEnd:
		if r, ok := s.pending[ev.Utterance]; ok {
			r.End = ev.Time
			r.Forced = ev.Forced
		}
		s.mu.Unlock()
		return nil
	case segment.EventFinal:
		r, ok := s.pending[ev.Utterance]
		if !ok {
			r = &Record{Session: s.session, Utterance: ev.Utterance}
		}
		delete(s.pending, ev.Utterance)
		s.mu.Unlock()

		r.Text = ev.Text
		return s.Insert(ctx, *r)
	default:
		s.mu.Unlock()
		return nil
	}
}

// Insert writes r. A second row for the same session and utterance replaces
// the first.
func (s *Store) Insert(ctx context.Context, r Record) error {
	const query = `
		INSERT INTO utterances (session_id, utterance, start_sec, end_sec, forced, text)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, utterance) DO UPDATE SET
			start_sec = EXCLUDED.start_sec,
			end_sec = EXCLUDED.end_sec,
			forced = EXCLUDED.forced,
			text = EXCLUDED.text`

	if _, err := s.db.Exec(ctx, query, r.Session, r.Utterance, r.Start, r.End, r.Forced, r.Text); err != nil {
		return fmt.Errorf("postgres: insert utterance %d: %w", r.Utterance, err)
	}
	observe.Logger(ctx).Debug("postgres: utterance logged", "session", r.Session, "utterance", r.Utterance)
	return nil
}

// List returns the utterances of session in order.
func (s *Store) List(ctx context.Context, session string) ([]Record, error) {
	const query = `
		SELECT session_id, utterance, start_sec, end_sec, forced, text, created_at
		FROM utterances
		WHERE session_id = $1
		ORDER BY utterance`

	rows, err := s.db.Query(ctx, query, session)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %q: %w", session, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Session, &r.Utterance, &r.Start, &r.End, &r.Forced, &r.Text, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan utterance: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list %q: %w", session, err)
	}
	return out, nil
}
