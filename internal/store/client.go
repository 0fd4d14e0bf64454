package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/librecall/librecall/internal/util"
)

// Client implements Store against a remote signald server. It multiplexes
// request/response pairs and watch events over a single WebSocket.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex // serializes WriteJSON

	mu       sync.Mutex
	nextSeq  uint64
	nextWtch uint64
	pending  map[uint64]chan Frame
	docFns   map[uint64]func(Document)
	colFns   map[uint64]func(Change)
	closed   bool
	readErr  error
}

// Dial connects to the signald endpoint at url
// (e.g. ws://host:port/store) and starts the read loop.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to store server: %w", err)
	}

	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan Frame),
		docFns:  make(map[uint64]func(Document)),
		colFns:  make(map[uint64]func(Change)),
	}
	go c.readLoop()
	return c, nil
}

// Close tears down the connection. Pending requests fail and watch callbacks
// stop firing.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readLoop() {
	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.fail(err)
			return
		}

		switch frame.Op {
		case OpResult:
			c.mu.Lock()
			ch := c.pending[frame.Seq]
			delete(c.pending, frame.Seq)
			c.mu.Unlock()
			if ch != nil {
				ch <- frame
			}

		case OpEvent:
			c.mu.Lock()
			docFn := c.docFns[frame.Watch]
			colFn := c.colFns[frame.Watch]
			c.mu.Unlock()
			if docFn != nil {
				docFn(frame.Doc)
			}
			if colFn != nil {
				colFn(Change{Kind: frame.Kind, ID: frame.ID, Data: frame.Doc})
			}

		default:
			util.LogWarning("store client: unknown op %q", frame.Op)
		}
	}
}

// fail wakes every pending request after the connection dies.
func (c *Client) fail(err error) {
	c.mu.Lock()
	c.closed = true
	c.readErr = err
	pending := c.pending
	c.pending = make(map[uint64]chan Frame)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}

// roundTrip sends a request frame and waits for its result.
func (c *Client) roundTrip(ctx context.Context, req Frame) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	c.mu.Lock()
	if c.closed {
		err := c.readErr
		c.mu.Unlock()
		return Frame{}, fmt.Errorf("store connection closed: %w", err)
	}
	c.nextSeq++
	req.Seq = c.nextSeq
	ch := make(chan Frame, 1)
	c.pending[req.Seq] = ch
	c.mu.Unlock()

	if err := c.send(req); err != nil {
		c.mu.Lock()
		delete(c.pending, req.Seq)
		c.mu.Unlock()
		return Frame{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Frame{}, fmt.Errorf("store connection closed: %w", c.readErr)
		}
		if resp.Error != "" {
			if resp.NotFound {
				return Frame{}, fmt.Errorf("%w: %s", ErrNotFound, resp.Error)
			}
			return Frame{}, fmt.Errorf("store: %s", resp.Error)
		}
		return resp, nil

	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.Seq)
		c.mu.Unlock()
		return Frame{}, ctx.Err()
	}
}

func (c *Client) send(frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(frame)
}

// ---------------------------------------------------------------------------
// Store implementation
// ---------------------------------------------------------------------------

func (c *Client) Create(ctx context.Context, collection string) (string, error) {
	resp, err := c.roundTrip(ctx, Frame{Op: OpCreate, Path: collection})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) Get(ctx context.Context, path string) (Document, error) {
	resp, err := c.roundTrip(ctx, Frame{Op: OpGet, Path: path})
	if err != nil {
		return nil, err
	}
	return resp.Doc, nil
}

func (c *Client) Set(ctx context.Context, path string, doc Document) error {
	_, err := c.roundTrip(ctx, Frame{Op: OpSet, Path: path, Doc: doc})
	return err
}

func (c *Client) Update(ctx context.Context, path string, fields Document) error {
	_, err := c.roundTrip(ctx, Frame{Op: OpUpdate, Path: path, Doc: fields})
	return err
}

func (c *Client) Add(ctx context.Context, collectionPath string, doc Document) (string, error) {
	resp, err := c.roundTrip(ctx, Frame{Op: OpAdd, Path: collectionPath, Doc: doc})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) WatchDocument(ctx context.Context, path string, fn func(Document)) (CancelFunc, error) {
	c.mu.Lock()
	c.nextWtch++
	watch := c.nextWtch
	c.docFns[watch] = fn
	c.mu.Unlock()

	_, err := c.roundTrip(ctx, Frame{Op: OpWatchDoc, Watch: watch, Path: path})
	if err != nil {
		c.mu.Lock()
		delete(c.docFns, watch)
		c.mu.Unlock()
		return nil, err
	}
	return c.cancelFunc(watch), nil
}

func (c *Client) WatchCollection(ctx context.Context, path string, fn func(Change)) (CancelFunc, error) {
	c.mu.Lock()
	c.nextWtch++
	watch := c.nextWtch
	c.colFns[watch] = fn
	c.mu.Unlock()

	_, err := c.roundTrip(ctx, Frame{Op: OpWatchCol, Watch: watch, Path: path})
	if err != nil {
		c.mu.Lock()
		delete(c.colFns, watch)
		c.mu.Unlock()
		return nil, err
	}
	return c.cancelFunc(watch), nil
}

// cancelFunc builds the CancelFunc for a registered watch. The local callback
// is dropped before the server is told, so events already in flight from the
// server are discarded instead of delivered.
func (c *Client) cancelFunc(watch uint64) CancelFunc {
	return func() {
		c.mu.Lock()
		if c.docFns[watch] == nil && c.colFns[watch] == nil {
			c.mu.Unlock()
			return
		}
		delete(c.docFns, watch)
		delete(c.colFns, watch)
		closed := c.closed
		c.mu.Unlock()

		if !closed {
			// Best-effort: the server also drops watches on disconnect.
			_ = c.send(Frame{Op: OpUnwatch, Watch: watch})
		}
	}
}
