package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/librecall/librecall/internal/call"
	"github.com/librecall/librecall/internal/config"
	"github.com/librecall/librecall/internal/store"
)

// RunJoiner executes the full joiner-side call lifecycle: read the record
// for the invite token, publish the answer, and stay in the call until
// hang-up or session end.
func RunJoiner(ctx context.Context, st store.Store, cfg config.Config) error {
	sess, err := newSession(ctx, st, cfg)
	if err != nil {
		return err
	}
	defer sess.HangUp()

	if err := sess.StartAsJoiner(cfg.CallID); err != nil {
		// Not-found and never-published records are terminal: the joiner
		// is sent back to idle, no retry.
		switch {
		case errors.Is(err, call.ErrCallNotFound):
			return fmt.Errorf("no call exists for token %q — check the invite token", cfg.CallID)
		case errors.Is(err, call.ErrInvalidOffer):
			return fmt.Errorf("call %q is invalid or has ended", cfg.CallID)
		default:
			return fmt.Errorf("failed to join call: %w", err)
		}
	}

	return await(ctx, sess)
}
