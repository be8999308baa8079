package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/livesegment/internal/segment"
)

// ─── mock DB ─────────────────────────────────────────────────────────────────

type execCall struct {
	sql  string
	args []any
}

// mockDB records Exec calls and fails them when err is set.
type mockDB struct {
	execs []execCall
	err   error
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execs = append(m.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, m.err
}

func (m *mockDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDB) inserts() []execCall {
	var out []execCall
	for _, e := range m.execs {
		if strings.Contains(e.sql, "INSERT INTO utterances") {
			out = append(out, e)
		}
	}
	return out
}

func handleAll(t *testing.T, s *Store, events ...segment.Event) {
	t.Helper()
	for _, ev := range events {
		if err := s.HandleEvent(context.Background(), ev); err != nil {
			t.Fatalf("HandleEvent(%v): %v", ev.Type, err)
		}
	}
}

// ─── unit tests ──────────────────────────────────────────────────────────────

func TestMigrate(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	if err := New(db, "s1").Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(db.execs) != 1 || db.execs[0].sql != Schema {
		t.Fatalf("execs = %+v, want schema", db.execs)
	}

	db.err = errors.New("permission denied")
	err := New(db, "s1").Migrate(context.Background())
	if !errors.Is(err, db.err) {
		t.Fatalf("err = %v, want wrapped %v", err, db.err)
	}
}

func TestHandleEvent_InsertsOnFinal(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := New(db, "session-a")
	handleAll(t, s,
		segment.Event{Type: segment.EventSpeechStart, Utterance: 1, Time: 0.5},
		segment.Event{Type: segment.EventPartial, Utterance: 1, Text: "hel"},
		segment.Event{Type: segment.EventSpeechEnd, Utterance: 1, Time: 1.25, Forced: true},
	)
	if n := len(db.inserts()); n != 0 {
		t.Fatalf("inserted %d rows before final", n)
	}

	handleAll(t, s, segment.Event{Type: segment.EventFinal, Utterance: 1, Text: "hello"})
	ins := db.inserts()
	if len(ins) != 1 {
		t.Fatalf("inserted %d rows, want 1", len(ins))
	}
	want := []any{"session-a", 1, 0.5, 1.25, true, "hello"}
	if len(ins[0].args) != len(want) {
		t.Fatalf("args = %v, want %v", ins[0].args, want)
	}
	for i := range want {
		if ins[0].args[i] != want[i] {
			t.Errorf("arg %d = %v, want %v", i, ins[0].args[i], want[i])
		}
	}
	if len(s.pending) != 0 {
		t.Errorf("pending = %v, want empty", s.pending)
	}
}

func TestHandleEvent_DroppedUtteranceForgotten(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := New(db, "s")
	handleAll(t, s,
		segment.Event{Type: segment.EventSpeechStart, Utterance: 1, Time: 0.1},
		segment.Event{Type: segment.EventSpeechStart, Utterance: 2, Time: 3},
		segment.Event{Type: segment.EventSpeechEnd, Utterance: 2, Time: 4},
		segment.Event{Type: segment.EventFinal, Utterance: 2, Text: "second"},
	)
	ins := db.inserts()
	if len(ins) != 1 || ins[0].args[1] != 2 || ins[0].args[2] != 3.0 {
		t.Fatalf("inserts = %+v", ins)
	}
}

func TestHandleEvent_InsertError(t *testing.T) {
	t.Parallel()

	db := &mockDB{err: errors.New("connection reset")}
	s := New(db, "s")
	handleAll(t, s, segment.Event{Type: segment.EventSpeechStart, Utterance: 7})
	err := s.HandleEvent(context.Background(), segment.Event{Type: segment.EventFinal, Utterance: 7, Text: "x"})
	if !errors.Is(err, db.err) || !strings.Contains(err.Error(), "utterance 7") {
		t.Fatalf("err = %v", err)
	}
}

// ─── integration ─────────────────────────────────────────────────────────────

// testDSN returns the DSN from the environment or skips the test.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("LIVESEGMENT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LIVESEGMENT_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func TestIntegration_RoundTrip(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()

	s, err := Open(ctx, dsn, "it-"+t.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	if _, err := s.db.Exec(ctx, `DELETE FROM utterances WHERE session_id = $1`, s.Session()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	handleAll(t, s,
		segment.Event{Type: segment.EventSpeechStart, Utterance: 1, Time: 0.25},
		segment.Event{Type: segment.EventSpeechEnd, Utterance: 1, Time: 1.5},
		segment.Event{Type: segment.EventFinal, Utterance: 1, Text: "hello world"},
		segment.Event{Type: segment.EventSpeechStart, Utterance: 2, Time: 2},
		segment.Event{Type: segment.EventSpeechEnd, Utterance: 2, Time: 2.5, Forced: true},
		segment.Event{Type: segment.EventFinal, Utterance: 2, Text: "bye"},
	)

	got, err := s.List(ctx, s.Session())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d records, want 2", len(got))
	}
	if got[0].Text != "hello world" || got[0].Start != 0.25 || got[0].End != 1.5 || got[0].Forced {
		t.Errorf("record 1 = %+v", got[0])
	}
	if got[1].Text != "bye" || !got[1].Forced || got[1].CreatedAt.IsZero() {
		t.Errorf("record 2 = %+v", got[1])
	}
}
