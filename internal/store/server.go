package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/librecall/librecall/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes a backing Store over a single WebSocket endpoint (/store).
// Each connected participant gets its own frame loop; watches registered by a
// connection are cancelled when it goes away.
type Server struct {
	backing  Store
	listener net.Listener
}

// NewServer creates a server around the given backing store.
func NewServer(backing Store) *Server {
	return &Server{backing: backing}
}

// Start begins listening on addr (":0" picks a random port). Returns the
// bound address.
func (s *Server) Start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start store server: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/store", s.handleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	return listener.Addr().String(), nil
}

// Close shuts down the listener, preventing new connections.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &serverConn{
		store:   s.backing,
		conn:    conn,
		cancels: make(map[uint64]CancelFunc),
	}
	go c.readLoop()
}

// serverConn serves one participant's store session.
type serverConn struct {
	store Store
	conn  *websocket.Conn

	writeMu sync.Mutex // guards WriteJSON; watch events race with replies

	cancelMu sync.Mutex
	cancels  map[uint64]CancelFunc
}

func (c *serverConn) readLoop() {
	defer c.teardown()

	for {
		var req Frame
		if err := c.conn.ReadJSON(&req); err != nil {
			return
		}
		c.dispatch(req)
	}
}

// teardown cancels every watch the connection registered. A participant that
// disappears mid-call must not keep receiving pushes into a dead socket.
func (c *serverConn) teardown() {
	c.cancelMu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.cancelMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	c.conn.Close()
}

func (c *serverConn) dispatch(req Frame) {
	// Store operations against the backing Memory store do not block; the
	// connection's lifetime is governed by the read loop, not a context.
	ctx := context.Background()

	switch req.Op {
	case OpCreate:
		id, err := c.store.Create(ctx, req.Path)
		c.reply(Frame{Op: OpResult, Seq: req.Seq, ID: id}, err)

	case OpGet:
		doc, err := c.store.Get(ctx, req.Path)
		c.reply(Frame{Op: OpResult, Seq: req.Seq, Doc: doc}, err)

	case OpSet:
		err := c.store.Set(ctx, req.Path, req.Doc)
		c.reply(Frame{Op: OpResult, Seq: req.Seq}, err)

	case OpUpdate:
		err := c.store.Update(ctx, req.Path, req.Doc)
		c.reply(Frame{Op: OpResult, Seq: req.Seq}, err)

	case OpAdd:
		id, err := c.store.Add(ctx, req.Path, req.Doc)
		c.reply(Frame{Op: OpResult, Seq: req.Seq, ID: id}, err)

	case OpWatchDoc:
		watch := req.Watch
		cancel, err := c.store.WatchDocument(ctx, req.Path, func(doc Document) {
			c.push(Frame{Op: OpEvent, Watch: watch, Doc: doc})
		})
		c.registerWatch(watch, cancel, err)
		c.reply(Frame{Op: OpResult, Seq: req.Seq}, err)

	case OpWatchCol:
		watch := req.Watch
		cancel, err := c.store.WatchCollection(ctx, req.Path, func(change Change) {
			c.push(Frame{Op: OpEvent, Watch: watch, Kind: change.Kind, ID: change.ID, Doc: change.Data})
		})
		c.registerWatch(watch, cancel, err)
		c.reply(Frame{Op: OpResult, Seq: req.Seq}, err)

	case OpUnwatch:
		c.cancelMu.Lock()
		cancel := c.cancels[req.Watch]
		delete(c.cancels, req.Watch)
		c.cancelMu.Unlock()
		if cancel != nil {
			cancel()
		}

	default:
		util.LogWarning("store server: unknown op %q", req.Op)
	}
}

func (c *serverConn) registerWatch(watch uint64, cancel CancelFunc, err error) {
	if err != nil {
		return
	}
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	if c.cancels == nil {
		// Connection already torn down; stop the watch immediately.
		cancel()
		return
	}
	c.cancels[watch] = cancel
}

func (c *serverConn) reply(frame Frame, err error) {
	if err != nil {
		frame.Doc = nil
		frame.ID = ""
		frame.Error = err.Error()
		frame.NotFound = errors.Is(err, ErrNotFound)
	}
	c.push(frame)
}

func (c *serverConn) push(frame Frame) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(frame); err != nil {
		util.LogDebug("store server: push failed: %v", err)
	}
}
