package tui

import (
	"fmt"
	"strings"
)

// Canonical short status messages used across the app.
const (
	MsgRefreshing     = "Refreshing…"
	MsgLoadingMore    = "Loading more…"
	MsgLiking         = "Liking…"
	MsgCommenting     = "Posting comment…"
	MsgNoResults      = "No results"
	MsgEndOfFeed      = "End of feed"
	MsgCommentPosted  = "Comment posted"
	MsgSessionExpired = "Session expired • run `tailfeed login` again"
)

func MsgFeedSummary(view string, entries int, exhausted bool) string {
	base := fmt.Sprintf("%s • %d posts", strings.TrimSpace(view), entries)
	if exhausted {
		base += " • end"
	}
	return base
}

func MsgResultsCount(n int) string {
	if n == 1 {
		return "1 result"
	}
	return fmt.Sprintf("%d results", n)
}

func MsgLikeState(liked bool, count int) string {
	if liked {
		return fmt.Sprintf("Liked • %d", count)
	}
	return fmt.Sprintf("Unliked • %d", count)
}
