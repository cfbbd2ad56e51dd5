/*
store.go - Document store contract

PURPOSE:
  Defines the interface between the domain logic and the database.
  Data lives in hierarchical collections of JSON documents keyed by
  opaque string IDs, e.g. "legacy_members/a@b.org/legacyLogs/xyz".
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  DocStore: get, equality query, collection-group query, atomic batch
  Indexer:  declares the indexes collection-group queries need

ATOMIC BATCHES:
  Commit() applies every op in a batch or none of them. Merging a legacy
  member moves its logs and deletes the legacy record in one batch, so a
  crash can never leave both copies behind.

  A batch holds at most MaxBatchOps writes. Callers with more work chunk
  it into sequential batches and accept that chunks are independent.

APPEND-ONLY SUB-COLLECTIONS:
  Batch.Create() is insert-only and fails with ErrAlreadyExists when the
  path is taken. Edit history is written exclusively through Create, so
  an existing history entry can never be overwritten.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - generic/store/memory.go: In-memory for testing

EXAMPLE:
  b := generic.NewBatch()
  b.Set(generic.Collection("members").Doc(uid), member)
  b.Delete(generic.Collection("legacy_members").Doc(legacyID))
  if err := st.Commit(ctx, b); err != nil {
      // nothing was written
  }

SEE ALSO:
  - errors.go: ErrAlreadyExists, MissingIndexError, ErrBatchTooLarge
  - store/sqlite/sqlite.go: Concrete implementation
*/
package generic

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
)

// MaxBatchOps is the most writes a single Commit accepts.
const MaxBatchOps = 500

// =============================================================================
// REFERENCES
// =============================================================================

// CollectionRef addresses a collection by its full slash-separated path.
type CollectionRef struct {
	Path string
}

// Collection returns a reference to a root or nested collection path.
func Collection(path string) CollectionRef {
	return CollectionRef{Path: strings.Trim(path, "/")}
}

// Doc returns a reference to the document id inside c.
func (c CollectionRef) Doc(id string) DocRef {
	return DocRef{Collection: c, ID: id}
}

// NewDoc returns a reference with a freshly generated ID.
func (c CollectionRef) NewDoc() DocRef {
	return c.Doc(uuid.NewString())
}

// Name is the last path segment, the name collection-group queries match on.
func (c CollectionRef) Name() string {
	if i := strings.LastIndex(c.Path, "/"); i >= 0 {
		return c.Path[i+1:]
	}
	return c.Path
}

// Parent returns the document owning a sub-collection, or false for roots.
func (c CollectionRef) Parent() (DocRef, bool) {
	i := strings.LastIndex(c.Path, "/")
	if i < 0 {
		return DocRef{}, false
	}
	return ParseDocPath(c.Path[:i])
}

// DocRef addresses a single document.
type DocRef struct {
	Collection CollectionRef
	ID         string
}

func (d DocRef) Path() string { return d.Collection.Path + "/" + d.ID }

// Sub returns a sub-collection of this document.
func (d DocRef) Sub(name string) CollectionRef {
	return CollectionRef{Path: d.Path() + "/" + name}
}

func (d DocRef) String() string { return d.Path() }

// ParseDocPath splits "a/b/c/d" into collection "a/b/c" and id "d".
func ParseDocPath(path string) (DocRef, bool) {
	path = strings.Trim(path, "/")
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return DocRef{}, false
	}
	return DocRef{Collection: CollectionRef{Path: path[:i]}, ID: path[i+1:]}, true
}

// =============================================================================
// DOCUMENTS AND QUERIES
// =============================================================================

// Document is a stored document and its reference.
type Document struct {
	Ref  DocRef
	Data Fields
}

// Decode copies the document data into a typed value.
func (d Document) Decode(v any) error {
	return DecodeFields(d.Data, v)
}

// Filter is an equality condition on a top-level or dotted field.
type Filter struct {
	Field string
	Value any
}

func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Matches reports whether data satisfies every filter. Values are compared
// after a JSON round trip so int 3 and float64 3 are equal.
func Matches(data Fields, filters []Filter) bool {
	for _, f := range filters {
		got, ok := lookupField(data, f.Field)
		if !ok {
			if f.Value != nil {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(normalizeValue(got), normalizeValue(f.Value)) {
			return false
		}
	}
	return true
}

func lookupField(data Fields, field string) (any, bool) {
	var cur any = map[string]any(data)
	for _, part := range strings.Split(field, ".") {
		m, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func normalizeValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// =============================================================================
// BATCH
// =============================================================================

type OpKind int

const (
	OpSet OpKind = iota
	OpMerge
	OpCreate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpMerge:
		return "merge"
	case OpCreate:
		return "create"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// WriteOp is one write inside a batch.
type WriteOp struct {
	Kind OpKind
	Ref  DocRef
	Data Fields
}

// Batch collects writes for one atomic Commit. Conversion errors are held
// until Commit so call sites can chain writes.
type Batch struct {
	ops []WriteOp
	err error
}

func NewBatch() *Batch { return &Batch{} }

// Set replaces the document.
func (b *Batch) Set(ref DocRef, data any) *Batch { return b.add(OpSet, ref, data) }

// Merge deep-merges data into the document, creating it if absent.
func (b *Batch) Merge(ref DocRef, data any) *Batch { return b.add(OpMerge, ref, data) }

// Create inserts the document and fails the whole batch if it exists.
func (b *Batch) Create(ref DocRef, data any) *Batch { return b.add(OpCreate, ref, data) }

// Delete removes the document. Deleting an absent document is not an error.
func (b *Batch) Delete(ref DocRef) *Batch {
	b.ops = append(b.ops, WriteOp{Kind: OpDelete, Ref: ref})
	return b
}

func (b *Batch) add(kind OpKind, ref DocRef, data any) *Batch {
	f, err := ToFields(data)
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("%s %s: %w", kind, ref, err)
	}
	b.ops = append(b.ops, WriteOp{Kind: kind, Ref: ref, Data: f})
	return b
}

func (b *Batch) Len() int       { return len(b.ops) }
func (b *Batch) Ops() []WriteOp { return b.ops }
func (b *Batch) Err() error     { return b.err }

// Validate is called by every store before it writes anything.
func (b *Batch) Validate() error {
	if b.err != nil {
		return b.err
	}
	if len(b.ops) > MaxBatchOps {
		return fmt.Errorf("%w: %d ops (max %d)", ErrBatchTooLarge, len(b.ops), MaxBatchOps)
	}
	for _, op := range b.ops {
		if op.Ref.ID == "" || op.Ref.Collection.Path == "" {
			return &ValidationError{Field: "ref", Reason: "empty document path"}
		}
	}
	return nil
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

// DocStore is the document database the portal runs on.
type DocStore interface {
	// Get returns the document, or (nil, nil) if it doesn't exist.
	Get(ctx context.Context, ref DocRef) (*Document, error)

	// Query returns documents in coll matching every filter, ordered by ID.
	// With no filters it scans the collection.
	Query(ctx context.Context, coll CollectionRef, filters ...Filter) ([]Document, error)

	// CollectionGroup queries every collection named name, under any parent.
	// Filtered fields must have a declared index, otherwise *MissingIndexError.
	CollectionGroup(ctx context.Context, name string, filters ...Filter) ([]Document, error)

	// Commit applies the batch atomically.
	Commit(ctx context.Context, b *Batch) error
}

// Indexer declares collection-group indexes.
type Indexer interface {
	EnsureGroupIndex(ctx context.Context, group, field string) error
}

// ChunkedWriter commits writes in sequential batches of at most size ops.
// Chunks are independent: a failure leaves earlier chunks applied.
type ChunkedWriter struct {
	store   DocStore
	size    int
	batch   *Batch
	Commits int
	Writes  int
}

func NewChunkedWriter(store DocStore, size int) *ChunkedWriter {
	if size <= 0 || size > MaxBatchOps {
		size = MaxBatchOps
	}
	return &ChunkedWriter{store: store, size: size, batch: NewBatch()}
}

// Batch returns the batch currently being filled.
func (w *ChunkedWriter) Batch() *Batch { return w.batch }

// Reserve flushes first if n more ops would overflow the current chunk, so
// writes belonging together land in the same batch.
func (w *ChunkedWriter) Reserve(ctx context.Context, n int) error {
	if w.batch.Len() > 0 && w.batch.Len()+n > w.size {
		return w.Flush(ctx)
	}
	return nil
}

// Flush commits the pending chunk, if any.
func (w *ChunkedWriter) Flush(ctx context.Context) error {
	if w.batch.Len() == 0 {
		return w.batch.Err()
	}
	n := w.batch.Len()
	if err := w.store.Commit(ctx, w.batch); err != nil {
		w.batch = NewBatch()
		return err
	}
	w.Commits++
	w.Writes += n
	w.batch = NewBatch()
	return nil
}
