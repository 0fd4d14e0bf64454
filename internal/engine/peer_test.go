package engine

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
)

func newTestPeer(t *testing.T) *Peer {
	t.Helper()
	p, err := NewPeer()
	if err != nil {
		t.Fatalf("NewPeer: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "test",
	)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if err := p.AddTrack(track); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	return p
}

func TestPeerOfferAnswerExchange(t *testing.T) {
	offerer := newTestPeer(t)
	answerer := newTestPeer(t)

	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if offer.Type != TypeOffer || offer.SDP == "" {
		t.Fatalf("offer = %+v", offer)
	}
	if err := offerer.CommitLocal(offer); err != nil {
		t.Fatalf("CommitLocal offer: %v", err)
	}

	if err := answerer.CommitRemote(offer); err != nil {
		t.Fatalf("CommitRemote offer: %v", err)
	}
	answer, err := answerer.CreateAnswer()
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if answer.Type != TypeAnswer {
		t.Fatalf("answer type = %q", answer.Type)
	}
	if err := answerer.CommitLocal(answer); err != nil {
		t.Fatalf("CommitLocal answer: %v", err)
	}

	if err := offerer.CommitRemote(answer); err != nil {
		t.Fatalf("CommitRemote answer: %v", err)
	}
}

func TestPeerRejectsSecondRemoteDescription(t *testing.T) {
	offerer := newTestPeer(t)
	answerer := newTestPeer(t)

	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	if err := offerer.CommitLocal(offer); err != nil {
		t.Fatal(err)
	}

	if err := answerer.CommitRemote(offer); err != nil {
		t.Fatal(err)
	}
	err = answerer.CommitRemote(offer)
	if !errors.Is(err, ErrNegotiation) {
		t.Fatalf("second CommitRemote = %v, want ErrNegotiation", err)
	}
}

func TestPeerCloseIdempotent(t *testing.T) {
	p, err := NewPeer()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
