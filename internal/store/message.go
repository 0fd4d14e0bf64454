package store

// Op identifies the kind of frame exchanged with signald.
type Op string

const (
	OpCreate   Op = "create"
	OpGet      Op = "get"
	OpSet      Op = "set"
	OpUpdate   Op = "update"
	OpAdd      Op = "add"
	OpWatchDoc Op = "watchDoc"
	OpWatchCol Op = "watchCol"
	OpUnwatch  Op = "unwatch"
	OpResult   Op = "result"
	OpEvent    Op = "event"
)

// Frame is the JSON structure exchanged over the store WebSocket.
//
// Requests carry Seq, which the matching OpResult echoes. Watch registrations
// carry a client-chosen Watch id; the server tags every pushed OpEvent with
// it. NotFound distinguishes ErrNotFound from transport-level failures so the
// client can rebuild the sentinel.
type Frame struct {
	Op       Op         `json:"op"`
	Seq      uint64     `json:"seq,omitempty"`
	Watch    uint64     `json:"watch,omitempty"`
	Path     string     `json:"path,omitempty"`
	Doc      Document   `json:"doc,omitempty"`
	ID       string     `json:"id,omitempty"`
	Kind     ChangeKind `json:"kind,omitempty"`
	NotFound bool       `json:"notFound,omitempty"`
	Error    string     `json:"error,omitempty"`
}
