package engine

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/librecall/librecall/internal/util"
)

// STUN servers for ICE candidate gathering. No TURN — the tool is designed
// for direct P2P connectivity with zero infrastructure cost.
var stunServers = []string{
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

// iceCandidatePoolSize pre-gathers candidates so the first description
// already carries some of them.
const iceCandidatePoolSize = 10

// Peer is the pion-backed Engine. It wraps a single PeerConnection created
// fresh per call attempt; nothing else ever mutates the connection.
type Peer struct {
	pc *webrtc.PeerConnection

	mu        sync.Mutex
	remoteSet bool
	closed    bool
}

// NewPeer creates a Peer configured with Google STUN servers.
func NewPeer() (*Peer, error) {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
		ICECandidatePoolSize: iceCandidatePoolSize,
	}

	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create PeerConnection: %w", err)
	}

	p := &Peer{pc: pc}

	// Informational only; open/close decisions belong to the call session.
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
	})

	return p, nil
}

func (p *Peer) CreateOffer() (Description, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return Description{}, fmt.Errorf("CreateOffer: %w", err)
	}
	return fromSession(offer), nil
}

func (p *Peer) CreateAnswer() (Description, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return Description{}, fmt.Errorf("CreateAnswer: %w", err)
	}
	return fromSession(answer), nil
}

func (p *Peer) CommitLocal(desc Description) error {
	if err := p.pc.SetLocalDescription(toSession(desc)); err != nil {
		return fmt.Errorf("%w: SetLocalDescription: %v", ErrNegotiation, err)
	}
	return nil
}

// CommitRemote applies the peer's description exactly once. The double-commit
// guard lives here as well as in the session, because pion rejects a second
// remote description with a state error that would otherwise surface as an
// opaque failure mid-call.
func (p *Peer) CommitRemote(desc Description) error {
	p.mu.Lock()
	if p.remoteSet {
		p.mu.Unlock()
		return fmt.Errorf("%w: remote description already committed", ErrNegotiation)
	}
	p.remoteSet = true
	p.mu.Unlock()

	if err := p.pc.SetRemoteDescription(toSession(desc)); err != nil {
		return fmt.Errorf("%w: SetRemoteDescription: %v", ErrNegotiation, err)
	}
	return nil
}

// OnLocalCandidate forwards each gathered candidate to fn. pion signals the
// end of gathering with a nil candidate, which is filtered out here.
func (p *Peer) OnLocalCandidate(fn func(Candidate)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

func (p *Peer) AddRemoteCandidate(candidate Candidate) error {
	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("AddICECandidate: %w", err)
	}
	return nil
}

func (p *Peer) AddTrack(track webrtc.TrackLocal) error {
	if _, err := p.pc.AddTrack(track); err != nil {
		return fmt.Errorf("AddTrack: %w", err)
	}
	return nil
}

func (p *Peer) OnRemoteTrack(fn func(*webrtc.TrackRemote)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track)
	})
}

// Close shuts down the peer connection. Safe to call more than once.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.pc.Close()
}

func fromSession(sd webrtc.SessionDescription) Description {
	return Description{Type: sd.Type.String(), SDP: sd.SDP}
}

func toSession(d Description) webrtc.SessionDescription {
	return webrtc.SessionDescription{
		Type: webrtc.NewSDPType(d.Type),
		SDP:  d.SDP,
	}
}
