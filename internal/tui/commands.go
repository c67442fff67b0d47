package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/tailfeed/internal/storage"
)

const searchLimit = 50

// waitForEvent blocks until the cache publishes a snapshot or the session
// expires. Update re-arms it after every stateMsg.
func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-a.expired:
			return sessionExpiredMsg{}
		case <-a.signal:
			a.eventMu.Lock()
			s := a.pending
			a.pending = nil
			a.eventMu.Unlock()
			if s == nil {
				return stateMsg{state: a.cache.State()}
			}
			return stateMsg{state: *s}
		case <-a.ctx.Done():
			return nil
		}
	}
}

func (a *App) refresh() tea.Cmd {
	a.busy = true
	a.setStatus(MsgRefreshing, StatusInfo)
	return tea.Batch(a.spinner.Tick, func() tea.Msg {
		return fetchDoneMsg{err: a.cache.Refresh(a.ctx)}
	})
}

func (a *App) loadMore() tea.Cmd {
	a.busy = true
	a.setStatus(MsgLoadingMore, StatusInfo)
	return tea.Batch(a.spinner.Tick, func() tea.Msg {
		return fetchDoneMsg{more: true, err: a.cache.LoadMore(a.ctx)}
	})
}

func (a *App) toggleLike(id string) tea.Cmd {
	a.setStatus(MsgLiking, StatusInfo)
	return func() tea.Msg {
		return mutationDoneMsg{id: id, action: "like", err: a.mutator.ToggleLike(a.ctx, a.cache, id)}
	}
}

func (a *App) addComment(id, text string) tea.Cmd {
	a.setStatus(MsgCommenting, StatusInfo)
	return func() tea.Msg {
		c, err := a.mutator.AddComment(a.ctx, a.cache, id, text)
		return mutationDoneMsg{id: id, action: "comment", comment: c, err: err}
	}
}

func (a *App) scheduleSearch(query string) tea.Cmd {
	a.searchQuery = query
	a.searchSeq++
	seq := a.searchSeq
	wait := time.Duration(searchDebounceMillis) * time.Millisecond
	return tea.Tick(wait, func(time.Time) tea.Msg { return searchDebounceFireMsg{seq: seq} })
}

func (a *App) performSearch(query string) tea.Cmd {
	return func() tea.Msg {
		if query == "" || a.searcher == nil {
			return searchResultsMsg{query: query}
		}
		results, err := a.searcher.Search(query, searchLimit)
		return searchResultsMsg{query: query, results: results, err: err}
	}
}

// entryMarkdown is the detail page for e before terminal rendering.
func entryMarkdown(e storage.Entry) string {
	var b strings.Builder

	title := e.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	var meta []string
	if e.Author.Name != "" {
		meta = append(meta, "@"+e.Author.Name)
	}
	if !e.CreatedAt.IsZero() {
		meta = append(meta, e.CreatedAt.Format(time.RFC1123))
	}
	if len(meta) > 0 {
		fmt.Fprintf(&b, "*%s*\n\n", strings.Join(meta, " • "))
	}

	heart := "♡"
	if e.Liked {
		heart = "♥"
	}
	fmt.Fprintf(&b, "**%s %d** · **✎ %d**\n\n", heart, e.LikeCount, e.CommentCount)

	if len(e.Media) > 0 {
		b.WriteString("**Media:**\n")
		for _, m := range e.Media {
			fmt.Fprintf(&b, "- %s: %s\n", m.Kind, truncateMiddle(m.DisplayURL(), 80))
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	b.WriteString(e.Caption)

	return b.String()
}

func (a *App) renderEntry(e storage.Entry) tea.Cmd {
	r, err := a.getRenderer()
	return func() tea.Msg {
		if err != nil {
			return detailRenderedMsg{id: e.ID, content: "Error initializing renderer: " + err.Error()}
		}
		rendered, err := r.Render(entryMarkdown(e))
		if err != nil {
			return detailRenderedMsg{id: e.ID, content: fmt.Sprintf("Failed to render post: %s\n\nPress Escape to go back.", err)}
		}
		return detailRenderedMsg{id: e.ID, content: rendered}
	}
}
