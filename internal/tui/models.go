package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/tailfeed/internal/feed"
	"github.com/pders01/tailfeed/internal/search"
	"github.com/pders01/tailfeed/internal/storage"
)

type View int

const (
	ViewFeed View = iota
	ViewDetail
	ViewComment
	ViewSearch
)

type entryItem struct {
	entry storage.Entry
}

func (i entryItem) Title() string {
	title := i.entry.Title
	if title == "" {
		title = truncateEnd(i.entry.Caption, 60)
	}
	if i.entry.HasVideo() {
		title = VideoBadgeStyle.Render("▶ ") + title
	}
	return EntryTitleStyle.Render(title)
}

func (i entryItem) Description() string {
	heart := "♡"
	style := StatusInfoStyle
	if i.entry.Liked {
		heart, style = "♥", LikedStyle
	}

	counters := style.Render(fmt.Sprintf("%s %d", heart, i.entry.LikeCount)) +
		StatusInfoStyle.Render(fmt.Sprintf("  ✎ %d", i.entry.CommentCount))

	parts := []string{counters}
	if name := i.entry.Author.Name; name != "" {
		parts = append(parts, AuthorStyle.Render("@"+name))
	}
	if !i.entry.CreatedAt.IsZero() {
		parts = append(parts, TimeStyle.Render(i.entry.CreatedAt.Format("Jan 2, 15:04")))
	}
	return strings.Join(parts, lipgloss.NewStyle().Foreground(MutedColor).Render(" • "))
}

func (i entryItem) FilterValue() string {
	return i.entry.Title + " " + i.entry.Caption + " " + i.entry.Author.Name
}

type searchResultItem struct {
	result *search.Result
}

func (i searchResultItem) Title() string {
	return EntryTitleStyle.Render(i.result.Title)
}

func (i searchResultItem) Description() string {
	desc := i.result.Snippet
	if i.result.Author != "" {
		desc += " • @" + i.result.Author
	}
	return StatusInfoStyle.Render(truncateEnd(desc, 80))
}

func (i searchResultItem) FilterValue() string { return i.result.Title }

// stateMsg carries a cache snapshot into the update loop.
type stateMsg struct {
	state feed.State
}

type fetchDoneMsg struct {
	more bool
	err  error
}

type mutationDoneMsg struct {
	id      string
	action  string
	comment *storage.Comment
	err     error
}

type detailRenderedMsg struct {
	id      string
	content string
}

type searchResultsMsg struct {
	query   string
	results []*search.Result
	err     error
}

type sessionExpiredMsg struct{}

type searchDebounceFireMsg struct {
	seq int
}
