// Package media provides the local-media capability for a call: a bundle of
// pion local tracks the engine negotiates over. Actual device capture is
// deliberately outside the core (capture pipelines are platform-specific);
// the shipped implementation creates static sample tracks so negotiation has
// real audio/video media sections to describe.
package media

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// ErrDevice is wrapped by Acquire when local media cannot be provided.
// Fatal to call setup; never retried internally.
var ErrDevice = errors.New("media device unavailable")

// Options selects which kinds of local media to acquire.
type Options struct {
	Audio bool
	Video bool
}

// Stream is the bundle of local tracks for one call attempt. It belongs to
// exactly one call session, which closes it on every exit path.
type Stream struct {
	mu     sync.Mutex
	tracks []webrtc.TrackLocal
	closed bool
}

// Acquire builds the local media stream described by opts.
func Acquire(opts Options) (*Stream, error) {
	if !opts.Audio && !opts.Video {
		return nil, fmt.Errorf("%w: no media kind requested", ErrDevice)
	}

	s := &Stream{}

	if opts.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", "librecall",
		)
		if err != nil {
			return nil, fmt.Errorf("%w: audio track: %v", ErrDevice, err)
		}
		s.tracks = append(s.tracks, track)
	}

	if opts.Video {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", "librecall",
		)
		if err != nil {
			return nil, fmt.Errorf("%w: video track: %v", ErrDevice, err)
		}
		s.tracks = append(s.tracks, track)
	}

	return s, nil
}

// Tracks returns the local tracks to attach to the engine. Nil after Close.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.tracks
}

// Close releases the stream. Safe to call more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tracks = nil
}
