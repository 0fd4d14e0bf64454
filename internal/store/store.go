// Package store defines the signaling document store used to exchange call
// negotiation data between two participants, plus its two implementations:
// an in-process Memory store and a WebSocket Client backed by a remote
// signald server.
//
// Documents are addressed by slash-separated paths (`calls/<id>`); a path with
// one more segment than a document addresses a sub-collection
// (`calls/<id>/offerCandidates`). The store gives no ordering guarantees
// across documents or collections, only per-path change notification.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Update when the document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is the schemaless payload of a stored record.
type Document map[string]any

// ChangeKind classifies a collection change event.
type ChangeKind string

const (
	ChangeAdded ChangeKind = "added"
)

// Change describes one delta delivered to a collection watcher. Candidate
// collections are append-only, so only ChangeAdded is ever delivered, and a
// watcher may see the same addition more than once (e.g. after a reconnect).
type Change struct {
	Kind ChangeKind
	ID   string
	Data Document
}

// CancelFunc stops a watch. Idempotent; after it returns no further
// callbacks are delivered for that watch.
type CancelFunc func()

// Store is the narrow capability the call session needs from the document
// store. All write operations are last-write-wins; Create only allocates an
// id — the document becomes readable at its first Set.
type Store interface {
	// Create allocates a new store-unique document id under collection.
	Create(ctx context.Context, collection string) (string, error)

	// Get reads a document once. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, path string) (Document, error)

	// Set creates or replaces a document.
	Set(ctx context.Context, path string, doc Document) error

	// Update merges fields into an existing document. Returns ErrNotFound
	// if the document does not exist.
	Update(ctx context.Context, path string, fields Document) error

	// Add appends a new record to a collection and returns its id.
	Add(ctx context.Context, collectionPath string, doc Document) (string, error)

	// WatchDocument delivers the current snapshot (if the document exists)
	// and then every subsequent Set/Update of it. The context bounds the
	// registration only; delivery continues until the CancelFunc is called.
	WatchDocument(ctx context.Context, path string, fn func(Document)) (CancelFunc, error)

	// WatchCollection delivers every existing record as an added Change and
	// then each subsequent Add. The context bounds the registration only.
	WatchCollection(ctx context.Context, path string, fn func(Change)) (CancelFunc, error)
}
