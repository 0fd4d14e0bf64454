package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store. It backs signald and the test suite.
//
// Watch callbacks are invoked synchronously in the goroutine performing the
// triggering write, without holding the store lock; callers must therefore
// never invoke store operations while holding a lock their watch callback
// also takes.
type Memory struct {
	mu        sync.Mutex
	docs      map[string]Document // doc path → current data
	order     map[string][]string // collection path → record ids in append order
	docSubs   map[string]map[int]func(Document)
	colSubs   map[string]map[int]func(Change)
	nextWatch int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:    make(map[string]Document),
		order:   make(map[string][]string),
		docSubs: make(map[string]map[int]func(Document)),
		colSubs: make(map[string]map[int]func(Change)),
	}
}

// Create allocates a fresh document id. No document is materialized; the
// record only becomes readable at its first Set, which keeps an unpublished
// call invisible to joiners.
func (m *Memory) Create(ctx context.Context, collection string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

// Get reads a document once.
func (m *Memory) Get(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	doc, ok := m.docs[path]
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return cloneDoc(doc), nil
}

// Set creates or replaces a document and notifies its watchers.
func (m *Memory) Set(ctx context.Context, path string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.docs[path] = cloneDoc(doc)
	fns, snapshot := m.docWatchers(path)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
	return nil
}

// Update merges fields into an existing document and notifies its watchers.
func (m *Memory) Update(ctx context.Context, path string, fields Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	doc, ok := m.docs[path]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	for k, v := range fields {
		doc[k] = v
	}
	fns, snapshot := m.docWatchers(path)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
	return nil
}

// Add appends a record to a collection and notifies collection watchers.
func (m *Memory) Add(ctx context.Context, collectionPath string, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()

	m.mu.Lock()
	m.docs[collectionPath+"/"+id] = cloneDoc(doc)
	m.order[collectionPath] = append(m.order[collectionPath], id)
	var fns []func(Change)
	for _, fn := range m.colSubs[collectionPath] {
		fns = append(fns, fn)
	}
	change := Change{Kind: ChangeAdded, ID: id, Data: cloneDoc(doc)}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
	return id, nil
}

// WatchDocument registers fn for the document at path. If the document
// already exists, fn is invoked with the current snapshot before
// WatchDocument returns.
func (m *Memory) WatchDocument(ctx context.Context, path string, fn func(Document)) (CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	id := m.nextWatch
	m.nextWatch++
	if m.docSubs[path] == nil {
		m.docSubs[path] = make(map[int]func(Document))
	}
	m.docSubs[path][id] = fn
	doc, exists := m.docs[path]
	var snapshot Document
	if exists {
		snapshot = cloneDoc(doc)
	}
	m.mu.Unlock()

	if exists {
		fn(snapshot)
	}

	return func() {
		m.mu.Lock()
		delete(m.docSubs[path], id)
		m.mu.Unlock()
	}, nil
}

// WatchCollection registers fn for the collection at path. Every record
// already present is delivered as an added Change before WatchCollection
// returns, in append order.
func (m *Memory) WatchCollection(ctx context.Context, path string, fn func(Change)) (CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	id := m.nextWatch
	m.nextWatch++
	if m.colSubs[path] == nil {
		m.colSubs[path] = make(map[int]func(Change))
	}
	m.colSubs[path][id] = fn
	var backlog []Change
	for _, recID := range m.order[path] {
		backlog = append(backlog, Change{
			Kind: ChangeAdded,
			ID:   recID,
			Data: cloneDoc(m.docs[path+"/"+recID]),
		})
	}
	m.mu.Unlock()

	for _, change := range backlog {
		fn(change)
	}

	return func() {
		m.mu.Lock()
		delete(m.colSubs[path], id)
		m.mu.Unlock()
	}, nil
}

// docWatchers returns the registered callbacks and a snapshot for path.
// Caller must hold m.mu.
func (m *Memory) docWatchers(path string) ([]func(Document), Document) {
	var fns []func(Document)
	for _, fn := range m.docSubs[path] {
		fns = append(fns, fn)
	}
	return fns, cloneDoc(m.docs[path])
}

// cloneDoc returns a shallow copy so watchers and readers never alias the
// stored map. Nested values are only read, never mutated, by this system.
func cloneDoc(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
