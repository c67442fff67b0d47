package tui

import "github.com/charmbracelet/x/ansi"

const ellipsis = "…"

// truncateEnd cuts s to limit terminal cells, ending in an ellipsis.
func truncateEnd(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	return ansi.Truncate(s, limit, ellipsis)
}

// truncateMiddle keeps both ends of s, which is what matters for URLs.
func truncateMiddle(s string, limit int) string {
	r := []rune(s)
	switch {
	case limit <= 0:
		return ""
	case len(r) <= limit:
		return s
	case limit == 1:
		return ellipsis
	}
	head := (limit - 1) / 2
	tail := limit - 1 - head
	return string(r[:head]) + ellipsis + string(r[len(r)-tail:])
}
