// Package store provides in-memory DocStore and blob store implementations.
package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/warp/clubportal/generic"
)

// =============================================================================
// MEMORY STORE - In-memory document store (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	docs    map[string]generic.Document // keyed by full path
	indexes map[string]bool             // "group.field"
	commits int
}

func NewMemory() *Memory {
	return &Memory{
		docs:    make(map[string]generic.Document),
		indexes: make(map[string]bool),
	}
}

// EnsureGroupIndex declares an index so CollectionGroup can filter on field.
func (m *Memory) EnsureGroupIndex(_ context.Context, group, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes[group+"."+field] = true
	return nil
}

// Commits returns how many batches have been applied. Tests use it to
// assert that an operation wrote nothing.
func (m *Memory) Commits() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commits
}

func (m *Memory) Get(_ context.Context, ref generic.DocRef) (*generic.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[ref.Path()]
	if !ok {
		return nil, nil
	}
	cp := copyDoc(doc)
	return &cp, nil
}

func (m *Memory) Query(_ context.Context, coll generic.CollectionRef, filters ...generic.Filter) ([]generic.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Document
	for _, doc := range m.docs {
		if doc.Ref.Collection.Path != coll.Path {
			continue
		}
		if generic.Matches(doc.Data, filters) {
			result = append(result, copyDoc(doc))
		}
	}
	sortDocs(result)
	return result, nil
}

func (m *Memory) CollectionGroup(_ context.Context, name string, filters ...generic.Filter) ([]generic.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var missing []string
	for _, f := range filters {
		if !m.indexes[name+"."+f.Field] {
			missing = append(missing, f.Field)
		}
	}
	if len(missing) > 0 {
		return nil, &generic.MissingIndexError{Group: name, Fields: missing}
	}

	var result []generic.Document
	for _, doc := range m.docs {
		if doc.Ref.Collection.Name() != name {
			continue
		}
		if generic.Matches(doc.Data, filters) {
			result = append(result, copyDoc(doc))
		}
	}
	sortDocs(result)
	return result, nil
}

// Commit applies all ops or none. Every op is checked against a staged copy
// before the live map is touched.
func (m *Memory) Commit(_ context.Context, b *generic.Batch) error {
	if err := b.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make(map[string]*generic.Document)
	lookup := func(path string) (*generic.Document, bool) {
		if d, ok := staged[path]; ok {
			return d, d != nil
		}
		if d, ok := m.docs[path]; ok {
			cp := copyDoc(d)
			return &cp, true
		}
		return nil, false
	}

	for _, op := range b.Ops() {
		path := op.Ref.Path()
		switch op.Kind {
		case generic.OpSet:
			staged[path] = &generic.Document{Ref: op.Ref, Data: cloneData(op.Data)}
		case generic.OpCreate:
			if _, exists := lookup(path); exists {
				return fmt.Errorf("create %s: %w", path, generic.ErrAlreadyExists)
			}
			staged[path] = &generic.Document{Ref: op.Ref, Data: cloneData(op.Data)}
		case generic.OpMerge:
			cur, exists := lookup(path)
			if !exists {
				cur = &generic.Document{Ref: op.Ref, Data: generic.Fields{}}
			}
			cur.Data = generic.DeepMerge(cur.Data, cloneData(op.Data))
			staged[path] = cur
		case generic.OpDelete:
			staged[path] = nil
		}
	}

	for path, doc := range staged {
		if doc == nil {
			delete(m.docs, path)
			continue
		}
		m.docs[path] = *doc
	}
	m.commits++
	return nil
}

func sortDocs(docs []generic.Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].Ref.ID < docs[j].Ref.ID })
}

func copyDoc(d generic.Document) generic.Document {
	return generic.Document{Ref: d.Ref, Data: cloneData(d.Data)}
}

// cloneData deep-copies nested objects and arrays so callers can't alias
// stored state.
func cloneData(f generic.Fields) generic.Fields {
	if f == nil {
		return generic.Fields{}
	}
	out := make(generic.Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(cloneData(generic.Fields(t)))
	case generic.Fields:
		return map[string]any(cloneData(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// =============================================================================
// MEMORY BLOBS - In-memory blob store (for testing/dev)
// =============================================================================

type MemoryBlobs struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

// NewMemoryBlobs returns a blob store whose URLs are rooted at baseURL.
func NewMemoryBlobs(baseURL string) *MemoryBlobs {
	if baseURL == "" {
		baseURL = "memory://blobs"
	}
	return &MemoryBlobs{objects: make(map[string][]byte), baseURL: strings.TrimRight(baseURL, "/")}
}

func (b *MemoryBlobs) Put(_ context.Context, path string, body io.Reader, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = data
	return nil
}

func (b *MemoryBlobs) URL(_ context.Context, path string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.objects[path]; !ok {
		return "", fmt.Errorf("blob %s: %w", path, generic.ErrNotFound)
	}
	return b.baseURL + "/" + url.PathEscape(path), nil
}

func (b *MemoryBlobs) Delete(_ context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[path]; !ok {
		return fmt.Errorf("blob %s: %w", path, generic.ErrNotFound)
	}
	delete(b.objects, path)
	return nil
}

// Open returns the stored bytes.
func (b *MemoryBlobs) Open(path string) (io.Reader, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.objects[path]
	if !ok {
		return nil, false
	}
	return bytes.NewReader(data), true
}
