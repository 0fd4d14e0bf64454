package media

import (
	"errors"
	"testing"
)

func TestAcquire(t *testing.T) {
	testCases := []struct {
		name       string
		opts       Options
		wantTracks int
		wantErr    bool
	}{
		{name: "audio and video", opts: Options{Audio: true, Video: true}, wantTracks: 2},
		{name: "audio only", opts: Options{Audio: true}, wantTracks: 1},
		{name: "nothing requested", opts: Options{}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stream, err := Acquire(tc.opts)
			if tc.wantErr {
				if !errors.Is(err, ErrDevice) {
					t.Fatalf("Acquire = %v, want ErrDevice", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			defer stream.Close()
			if got := len(stream.Tracks()); got != tc.wantTracks {
				t.Errorf("tracks = %d, want %d", got, tc.wantTracks)
			}
		})
	}
}

func TestStreamCloseIdempotent(t *testing.T) {
	stream, err := Acquire(Options{Audio: true})
	if err != nil {
		t.Fatal(err)
	}

	stream.Close()
	stream.Close()

	if tracks := stream.Tracks(); tracks != nil {
		t.Errorf("tracks after close = %v, want nil", tracks)
	}
}
