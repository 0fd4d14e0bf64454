// Package engine defines the session-negotiation capability the call layer
// drives, and its pion/webrtc implementation. The call layer never touches a
// peer connection directly; everything goes through Engine.
package engine

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

// ErrNegotiation is wrapped by engine methods invoked out of sequence, e.g.
// committing a second remote description. The session treats it as fatal:
// retrying a desynchronized negotiation without a fresh engine is unsafe.
var ErrNegotiation = errors.New("negotiation state violation")

// Description is one half of the offer/answer exchange, in the exact shape
// persisted to the signaling store ({"type","sdp"}).
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

const (
	TypeOffer  = "offer"
	TypeAnswer = "answer"
)

// Candidate is a discovered network path proposed for the peer transport.
// Its JSON form is what candidate records hold in the store.
type Candidate = webrtc.ICECandidateInit

// Engine is the negotiation capability owned by exactly one call session.
type Engine interface {
	// CreateOffer produces the local offer description.
	CreateOffer() (Description, error)

	// CreateAnswer produces the local answer description. Valid only after
	// a remote offer has been committed.
	CreateAnswer() (Description, error)

	// CommitLocal applies a locally created description.
	CommitLocal(Description) error

	// CommitRemote applies the peer's description. Fails with ErrNegotiation
	// if a remote description was already committed.
	CommitRemote(Description) error

	// OnLocalCandidate registers the callback invoked for every locally
	// discovered candidate. Must be registered before CommitLocal.
	OnLocalCandidate(func(Candidate))

	// AddRemoteCandidate feeds a candidate received through signaling into
	// the engine. Best-effort idempotent: the engine deduplicates, so the
	// caller may deliver the same candidate more than once.
	AddRemoteCandidate(Candidate) error

	// AddTrack attaches a local media track for negotiation.
	AddTrack(webrtc.TrackLocal) error

	// OnRemoteTrack registers the callback invoked when a remote media
	// track starts arriving.
	OnRemoteTrack(func(*webrtc.TrackRemote))

	// Close releases all engine resources. Idempotent.
	Close() error
}
