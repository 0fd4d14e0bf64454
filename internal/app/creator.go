// Package app contains the top-level orchestration for the creator and
// joiner roles: media acquisition, engine construction, session start, and
// the wait-until-hang-up loop.
package app

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"

	"github.com/librecall/librecall/internal/call"
	"github.com/librecall/librecall/internal/config"
	"github.com/librecall/librecall/internal/engine"
	"github.com/librecall/librecall/internal/media"
	"github.com/librecall/librecall/internal/store"
	"github.com/librecall/librecall/internal/util"
)

// RunCreator executes the full creator-side call lifecycle:
//  1. Acquire local media
//  2. Create a negotiation engine
//  3. Start the session — allocates the record, publishes the offer
//  4. Print the invite token for out-of-band sharing
//  5. Wait for the joiner, then for hang-up (Ctrl+C) or session end
func RunCreator(ctx context.Context, st store.Store, cfg config.Config) error {
	sess, err := newSession(ctx, st, cfg)
	if err != nil {
		return err
	}
	defer sess.HangUp()

	id, err := sess.StartAsCreator()
	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	pterm.Println()
	pterm.DefaultBox.WithTitle("Invite token").Println(id)
	pterm.Println()
	pterm.Println("Share this token with the other participant, then wait.")
	pterm.Println()

	return await(ctx, sess)
}

// newSession wires media, engine, and session together. Shared by both roles.
func newSession(ctx context.Context, st store.Store, cfg config.Config) (*call.Session, error) {
	stream, err := media.Acquire(media.Options{Audio: true, Video: cfg.Video})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire local media: %w", err)
	}

	eng, err := engine.NewPeer()
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to create negotiation engine: %w", err)
	}

	eng.OnRemoteTrack(func(track *webrtc.TrackRemote) {
		util.LogInfo("remote %s track arrived (%s)", track.Kind(), track.Codec().MimeType)
	})

	return call.NewSession(ctx, st, eng, stream), nil
}

// await blocks until the session connects and then ends, or until ctx is
// cancelled (Ctrl+C → hang up via the deferred HangUp).
func await(ctx context.Context, sess *call.Session) error {
	select {
	case <-sess.Connected():
		util.LogSuccess("call connected")
	case <-sess.Done():
		return sessionOutcome(sess)
	case <-ctx.Done():
		return nil
	}

	select {
	case <-sess.Done():
		return sessionOutcome(sess)
	case <-ctx.Done():
		return nil
	}
}

// sessionOutcome maps a finished session to the caller-visible result. A
// failure is a single opaque state; the cause is in the log.
func sessionOutcome(sess *call.Session) error {
	if sess.Phase() == call.PhaseFailed {
		return fmt.Errorf("call setup failed (see log)")
	}
	return nil
}
