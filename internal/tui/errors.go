package tui

import (
	"errors"
	"fmt"

	"github.com/pders01/tailfeed/internal/feed"
)

// wrapErr formats an error with a contextual prefix.
func wrapErr(context string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// describeErr turns a feed error into a status line and its severity.
func describeErr(err error) (string, StatusKind) {
	switch {
	case errors.Is(err, feed.ErrSessionExpired):
		return MsgSessionExpired, StatusError
	case errors.Is(err, feed.ErrUnauthenticated):
		return "Not signed in • run `tailfeed login`", StatusError
	case errors.Is(err, feed.ErrTimeout):
		return "Request timed out • r to retry", StatusWarn
	case feed.IsRecoverable(err):
		return fmt.Sprintf("%v • r to retry", err), StatusWarn
	default:
		return err.Error(), StatusError
	}
}
