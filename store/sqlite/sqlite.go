/*
Package sqlite provides a SQLite-backed implementation of generic.DocStore.

PURPOSE:
  Persists the portal's hierarchical JSON documents in one table. The
  document path ("legacy_members/x/legacyLogs/y") is the primary key; the
  owning collection path and the collection name are stored alongside so
  both plain queries and collection-group queries hit an index.

INTERFACES IMPLEMENTED:
  generic.DocStore: Get, Query, CollectionGroup, Commit
  generic.Indexer:  EnsureGroupIndex

KEY TABLES:
  documents:     One row per document, data as JSON text
  group_indexes: Declared collection-group indexes

QUERIES:
  Equality filters compile to json_extract(data, '$.field') = ?.
  Field names are validated against a strict pattern before they are
  spliced into the JSON path, so filters can't inject SQL.

INDEXES:
  - idx_documents_collection: Plain queries and scans (hot path)
  - idx_documents_grp:        Collection-group scans
  - idx_grp_<group>_<field>:  Expression index per declared group index

ATOMIC BATCHES:
  Commit() runs the whole batch in one SQL transaction. Merge reads the
  current row inside the same transaction so later ops in a batch see
  earlier ones.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite allows a single writer, the
  mutex keeps writers from tripping over SQLITE_BUSY.

USAGE:
  store, err := sqlite.New("./data/clubportal.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/clubportal/generic"
)

// Store implements generic.DocStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		path TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		grp TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection
		ON documents(collection, id);
	CREATE INDEX IF NOT EXISTS idx_documents_grp
		ON documents(grp);

	CREATE TABLE IF NOT EXISTS group_indexes (
		grp TEXT NOT NULL,
		field TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (grp, field)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// INDEXES
// =============================================================================

// EnsureGroupIndex declares a collection-group index and builds the
// matching expression index.
func (s *Store) EnsureGroupIndex(ctx context.Context, group, field string) error {
	if !fieldPattern.MatchString(group) || strings.Contains(group, ".") {
		return &generic.ValidationError{Field: "group", Reason: fmt.Sprintf("invalid collection name %q", group)}
	}
	if !fieldPattern.MatchString(field) {
		return &generic.ValidationError{Field: "field", Reason: fmt.Sprintf("invalid field name %q", field)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := "idx_grp_" + group + "_" + strings.ReplaceAll(field, ".", "_")
	stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON documents(grp, json_extract(data, '$.%s'))`, name, field)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_indexes (grp, field, created_at) VALUES (?, ?, ?)`,
		group, field, now())
	if err != nil {
		return fmt.Errorf("failed to record index %s: %w", name, err)
	}
	return nil
}

func (s *Store) hasGroupIndex(ctx context.Context, group, field string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_indexes WHERE grp = ? AND field = ?`, group, field).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// =============================================================================
// READS
// =============================================================================

// Get returns the document at ref, or nil if it doesn't exist.
func (s *Store) Get(ctx context.Context, ref generic.DocRef) (*generic.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, ref.Path()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", ref, err)
	}

	fields, err := decodeData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", ref, err)
	}
	return &generic.Document{Ref: ref, Data: fields}, nil
}

// Query returns documents in coll matching every filter, ordered by ID.
func (s *Store) Query(ctx context.Context, coll generic.CollectionRef, filters ...generic.Filter) ([]generic.Document, error) {
	where, args, err := buildFilters(filters)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT collection, id, data FROM documents WHERE collection = ?` + where + ` ORDER BY id`
	return s.queryDocs(ctx, query, append([]any{coll.Path}, args...)...)
}

// CollectionGroup queries every collection named name. Each filter field
// needs a declared group index.
func (s *Store) CollectionGroup(ctx context.Context, name string, filters ...generic.Filter) ([]generic.Document, error) {
	where, args, err := buildFilters(filters)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	for _, f := range filters {
		ok, err := s.hasGroupIndex(ctx, name, f.Field)
		if err != nil {
			return nil, fmt.Errorf("failed to check indexes: %w", err)
		}
		if !ok {
			missing = append(missing, f.Field)
		}
	}
	if len(missing) > 0 {
		return nil, &generic.MissingIndexError{Group: name, Fields: missing}
	}

	query := `SELECT collection, id, data FROM documents WHERE grp = ?` + where + ` ORDER BY id, collection`
	return s.queryDocs(ctx, query, append([]any{name}, args...)...)
}

func (s *Store) queryDocs(ctx context.Context, query string, args ...any) ([]generic.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var result []generic.Document
	for rows.Next() {
		var coll, id, data string
		if err := rows.Scan(&coll, &id, &data); err != nil {
			return nil, err
		}
		fields, err := decodeData(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s/%s: %w", coll, id, err)
		}
		result = append(result, generic.Document{
			Ref:  generic.Collection(coll).Doc(id),
			Data: fields,
		})
	}
	return result, rows.Err()
}

func buildFilters(filters []generic.Filter) (string, []any, error) {
	var sb strings.Builder
	var args []any
	for _, f := range filters {
		if !fieldPattern.MatchString(f.Field) {
			return "", nil, &generic.ValidationError{Field: "filter", Reason: fmt.Sprintf("invalid field name %q", f.Field)}
		}
		if f.Value == nil {
			fmt.Fprintf(&sb, ` AND json_extract(data, '$.%s') IS NULL`, f.Field)
			continue
		}
		v, err := bindValue(f.Value)
		if err != nil {
			return "", nil, err
		}
		fmt.Fprintf(&sb, ` AND json_extract(data, '$.%s') = ?`, f.Field)
		args = append(args, v)
	}
	return sb.String(), args, nil
}

// bindValue maps a filter value to what json_extract returns for it:
// booleans are 1/0, numbers compare numerically.
func bindValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &generic.ValidationError{Field: "filter", Reason: err.Error()}
	}
	var norm any
	if err := json.Unmarshal(raw, &norm); err != nil {
		return nil, &generic.ValidationError{Field: "filter", Reason: err.Error()}
	}
	switch t := norm.(type) {
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string, float64:
		return t, nil
	default:
		return nil, &generic.ValidationError{Field: "filter", Reason: fmt.Sprintf("unsupported filter value %T", v)}
	}
}

// =============================================================================
// WRITES
// =============================================================================

// Commit applies the batch in one transaction.
func (s *Store) Commit(ctx context.Context, b *generic.Batch) error {
	if err := b.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	for _, op := range b.Ops() {
		if err := applyOp(ctx, tx, op, ts); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func applyOp(ctx context.Context, tx *sql.Tx, op generic.WriteOp, ts string) error {
	ref := op.Ref
	switch op.Kind {
	case generic.OpDelete:
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, ref.Path()); err != nil {
			return fmt.Errorf("failed to delete %s: %w", ref, err)
		}
		return nil

	case generic.OpCreate:
		data, err := json.Marshal(op.Data)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (path, collection, grp, id, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ref.Path(), ref.Collection.Path, ref.Collection.Name(), ref.ID, string(data), ts, ts)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("create %s: %w", ref, generic.ErrAlreadyExists)
			}
			return fmt.Errorf("failed to create %s: %w", ref, err)
		}
		return nil

	case generic.OpMerge:
		fields := generic.Fields{}
		var current string
		err := tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, ref.Path()).Scan(&current)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return fmt.Errorf("failed to read %s: %w", ref, err)
		default:
			if fields, err = decodeData(current); err != nil {
				return fmt.Errorf("failed to decode %s: %w", ref, err)
			}
		}
		return upsert(ctx, tx, ref, generic.DeepMerge(fields, op.Data), ts)

	default:
		return upsert(ctx, tx, ref, op.Data, ts)
	}
}

func upsert(ctx context.Context, tx *sql.Tx, ref generic.DocRef, fields generic.Fields, ts string) error {
	if fields == nil {
		fields = generic.Fields{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (path, collection, grp, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		ref.Path(), ref.Collection.Path, ref.Collection.Name(), ref.ID, string(data), ts, ts)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", ref, err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeData(data string) (generic.Fields, error) {
	var fields generic.Fields
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = generic.Fields{}
	}
	return fields, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
