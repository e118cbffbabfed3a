// Package index loads a trace into a SQLite database so it can be
// queried without another linear scan: per-kind counts, per-object
// histories, error sites. One database indexes one trace.
package index

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"io"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/errgroup"

	"github.com/audiotap/audiotap/internal/audio"
	"github.com/audiotap/audiotap/internal/dump"
	"github.com/audiotap/audiotap/internal/trace"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - initial schema
const currentSchemaVersion = 1

// insertBatch is how many events go into one transaction.
const insertBatch = 512

// Store is an open trace index.
type Store struct {
	db *sql.DB
}

// Open creates or opens an index database at path. Pragmas and schema
// are applied on every open; the call is idempotent.
//
// SQLite allows one writer, so the pool is pinned to a single
// connection. WAL keeps readers unblocked during the build.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("index: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: connect: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("index: %s: %w", p, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("index: apply schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("index: get user_version: %w", err)
	}
	// No incremental migrations yet; version 1 is the baseline.
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("index: set user_version: %w", err)
	}
	return nil
}

// eventRow is one decoded event flattened for insertion.
type eventRow struct {
	idx     int
	timeMs  uint32
	kind    trace.Kind
	thread  uint32
	class   sql.NullInt64
	object  sql.NullInt64
	errCode sql.NullInt64
	summary string
}

// Build decodes the whole stream from dec into the index. Decoding and
// insertion run concurrently; the first error on either side cancels
// the other. Returns the number of events indexed.
func (s *Store) Build(ctx context.Context, dec *trace.Decoder) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	rows := make(chan eventRow, insertBatch)
	syms := make(chan trace.Frame, insertBatch)

	g.Go(func() error {
		defer close(rows)
		defer close(syms)
		r := dump.New(io.Discard, dump.Options{
			StateChanges: true, Errors: true, Annotations: true,
		})
		for {
			e, err := dec.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			if e.Kind == trace.KindSymbol {
				fr := trace.Frame{
					Addr:   uint64(e.Args[0].(trace.U64)),
					Symbol: e.Args[1].(trace.Str).Val,
				}
				select {
				case syms <- fr:
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
			row := flatten(e, r)
			select {
			case rows <- row:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	var n int
	g.Go(func() error {
		inserted, err := s.insertAll(ctx, rows, syms)
		n = inserted
		return err
	})

	if err := g.Wait(); err != nil {
		return n, err
	}
	return n, s.writeMeta(ctx, dec.Header(), n)
}

// flatten turns one event into its table row.
func flatten(e *trace.Event, r *dump.Dumper) eventRow {
	row := eventRow{
		idx:     e.Index,
		timeMs:  e.TimeMs,
		kind:    e.Kind,
		thread:  e.Thread,
		summary: r.Line(e),
	}
	if class, id, ok := objectOf(e); ok {
		row.class = sql.NullInt64{Int64: int64(class), Valid: true}
		row.object = sql.NullInt64{Int64: int64(id), Valid: true}
	}
	if code, ok := errorOf(e); ok {
		row.errCode = sql.NullInt64{Int64: int64(code), Valid: true}
	}
	return row
}

// objectOf extracts the logical object a record refers to, when it
// refers to exactly one.
func objectOf(e *trace.Event) (trace.Class, uint64, bool) {
	switch e.Kind {
	case trace.KindOpenDevice:
		return trace.ClassDevice, uint64(e.Results[0].(trace.U64)), true
	case trace.KindCloseDevice, trace.KindDeviceError:
		return trace.ClassDevice, uint64(e.Args[0].(trace.U64)), true
	case trace.KindCreateContext:
		return trace.ClassContext, uint64(e.Results[0].(trace.U64)), true
	case trace.KindMakeContextCurrent, trace.KindDestroyContext, trace.KindContextError:
		return trace.ClassContext, uint64(e.Args[0].(trace.U64)), true
	case trace.KindCurrentContext:
		return trace.ClassContext, uint64(e.Results[0].(trace.U64)), true
	case trace.KindSourcePlay, trace.KindSourceStop, trace.KindSourcePause, trace.KindSourceRewind,
		trace.KindSetSourcef, trace.KindSetSource3f, trace.KindSetSourcei,
		trace.KindGetSourcef, trace.KindGetSource3f, trace.KindGetSourcei,
		trace.KindSourceQueueBuffers, trace.KindSourceUnqueueBuffers:
		return trace.ClassSource, uint64(e.Args[0].(trace.U32)), true
	case trace.KindBufferData, trace.KindGetBufferi:
		return trace.ClassBuffer, uint64(e.Args[0].(trace.U32)), true
	case trace.KindStateChange:
		return e.StateClass, e.StateID, true
	case trace.KindErrorRaised, trace.KindLabel:
		return trace.Class(e.Args[0].(trace.U32)), uint64(e.Args[1].(trace.U64)), true
	}
	return 0, 0, false
}

// errorOf extracts a latched error code from error-carrying records.
func errorOf(e *trace.Event) (audio.ErrorCode, bool) {
	switch e.Kind {
	case trace.KindDeviceError, trace.KindContextError:
		return audio.ErrorCode(e.Results[0].(trace.I32)), true
	case trace.KindErrorRaised:
		return audio.ErrorCode(e.Args[2].(trace.I32)), true
	}
	return 0, false
}

func (s *Store) insertAll(ctx context.Context, rows <-chan eventRow, syms <-chan trace.Frame) (int, error) {
	const insertEvent = `INSERT INTO events
		(idx, time_ms, kind, kind_name, thread, class, object_id, error_code, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	const insertSymbol = `INSERT OR REPLACE INTO symbols (addr, name) VALUES (?, ?)`

	n := 0
	var tx *sql.Tx
	pending := 0

	flush := func() error {
		if tx == nil {
			return nil
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("index: commit batch: %w", err)
		}
		tx, pending = nil, 0
		return nil
	}
	begin := func() error {
		if tx != nil {
			return nil
		}
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("index: begin batch: %w", err)
		}
		return nil
	}
	defer func() {
		if tx != nil {
			tx.Rollback()
		}
	}()

	for rows != nil || syms != nil {
		select {
		case row, ok := <-rows:
			if !ok {
				rows = nil
				continue
			}
			if err := begin(); err != nil {
				return n, err
			}
			_, err := tx.ExecContext(ctx, insertEvent,
				row.idx, row.timeMs, uint32(row.kind), row.kind.Name(), row.thread,
				row.class, row.object, row.errCode, row.summary)
			if err != nil {
				return n, fmt.Errorf("index: insert event %d: %w", row.idx, err)
			}
			n++
			pending++
			if pending >= insertBatch {
				if err := flush(); err != nil {
					return n, err
				}
			}
		case fr, ok := <-syms:
			if !ok {
				syms = nil
				continue
			}
			if err := begin(); err != nil {
				return n, err
			}
			if _, err := tx.ExecContext(ctx, insertSymbol, int64(fr.Addr), fr.Symbol); err != nil {
				return n, fmt.Errorf("index: insert symbol %#x: %w", fr.Addr, err)
			}
			pending++
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
	return n, flush()
}

func (s *Store) writeMeta(ctx context.Context, h trace.Header, events int) error {
	const up = `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`
	meta := [][2]string{
		{"session", h.Session.String()},
		{"format_version", fmt.Sprintf("%d", h.Version)},
		{"events", fmt.Sprintf("%d", events)},
	}
	for _, kv := range meta {
		if _, err := s.db.ExecContext(ctx, up, kv[0], kv[1]); err != nil {
			return fmt.Errorf("index: write meta %s: %w", kv[0], err)
		}
	}
	return nil
}

// Meta returns one metadata value.
func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("index: no meta %q", key)
	}
	return v, err
}

// KindCount is one row of the per-operation breakdown.
type KindCount struct {
	Name  string
	Count int
}

// Stats summarizes an indexed trace.
type Stats struct {
	Events       int
	Calls        int
	StateChanges int
	ErrorsRaised int
	Threads      int
	DurationMs   int
	Kinds        []KindCount
}

// Stats runs the summary queries.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(kind BETWEEN ? AND ?), 0),
		       COALESCE(SUM(kind = ?), 0),
		       COALESCE(SUM(kind = ?), 0),
		       COALESCE(MAX(time_ms), 0)
		FROM events`,
		uint32(trace.KindOpenDevice), uint32(trace.KindGetBufferi),
		uint32(trace.KindStateChange), uint32(trace.KindErrorRaised))
	if err := row.Scan(&st.Events, &st.Calls, &st.StateChanges, &st.ErrorsRaised, &st.DurationMs); err != nil {
		return nil, fmt.Errorf("index: stats: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT thread) FROM events WHERE kind BETWEEN ? AND ?`,
		uint32(trace.KindOpenDevice), uint32(trace.KindGetBufferi))
	if err := row.Scan(&st.Threads); err != nil {
		return nil, fmt.Errorf("index: stats threads: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind_name, COUNT(*) AS n FROM events
		GROUP BY kind_name ORDER BY n DESC, kind_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("index: stats kinds: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kc KindCount
		if err := rows.Scan(&kc.Name, &kc.Count); err != nil {
			return nil, fmt.Errorf("index: stats kinds: %w", err)
		}
		st.Kinds = append(st.Kinds, kc)
	}
	return st, rows.Err()
}

// ObjectEvent is one row of an object's history.
type ObjectEvent struct {
	Index   int
	TimeMs  uint32
	Summary string
}

// History returns every indexed event touching one object, in stream
// order.
func (s *Store) History(ctx context.Context, class trace.Class, id uint64) ([]ObjectEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, time_ms, summary FROM events
		WHERE class = ? AND object_id = ? ORDER BY idx ASC`,
		int64(class), int64(id))
	if err != nil {
		return nil, fmt.Errorf("index: history: %w", err)
	}
	defer rows.Close()
	var out []ObjectEvent
	for rows.Next() {
		var oe ObjectEvent
		if err := rows.Scan(&oe.Index, &oe.TimeMs, &oe.Summary); err != nil {
			return nil, fmt.Errorf("index: history: %w", err)
		}
		out = append(out, oe)
	}
	return out, rows.Err()
}

// Errors returns every record that carried a latched error other than
// NO_ERROR.
func (s *Store) Errors(ctx context.Context) ([]ObjectEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, time_ms, summary FROM events
		WHERE error_code IS NOT NULL AND error_code != 0 ORDER BY idx ASC`)
	if err != nil {
		return nil, fmt.Errorf("index: errors: %w", err)
	}
	defer rows.Close()
	var out []ObjectEvent
	for rows.Next() {
		var oe ObjectEvent
		if err := rows.Scan(&oe.Index, &oe.TimeMs, &oe.Summary); err != nil {
			return nil, fmt.Errorf("index: errors: %w", err)
		}
		out = append(out, oe)
	}
	return out, rows.Err()
}
