package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/tailfeed/internal/feed"
	"github.com/pders01/tailfeed/internal/search"
)

// loadMoreThreshold is how close to the last entry the cursor gets before
// the next page is requested.
const loadMoreThreshold = 3

type KeyHandler struct {
	app *App
}

func NewKeyHandler(app *App) *KeyHandler {
	return &KeyHandler{app: app}
}

func (kh *KeyHandler) HandleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if kh.isInTextInputMode() {
		return kh.handleTextInputMode(msg)
	}

	if model, cmd, handled := kh.handleCustomKeys(key); handled {
		return model, cmd
	}

	return kh.delegateToCharm(msg)
}

func (kh *KeyHandler) isInTextInputMode() bool {
	switch kh.app.view {
	case ViewComment:
		return kh.app.commentInput.Focused()
	case ViewSearch:
		return kh.app.searchInput.Focused()
	default:
		return false
	}
}

func (kh *KeyHandler) handleTextInputMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return kh.navigateBack()
	case "ctrl+c":
		return kh.app, tea.Quit
	case "enter":
		return kh.handleTextInputEnter()
	case "tab", "down":
		if kh.app.view == ViewSearch {
			if len(kh.app.searchList.Items()) > 0 {
				kh.app.searchInput.Blur()
				kh.app.searchList.Select(0)
			}
			return kh.app, nil
		}
		return kh.delegateToTextInput(msg)
	default:
		return kh.delegateToTextInput(msg)
	}
}

func (kh *KeyHandler) handleTextInputEnter() (tea.Model, tea.Cmd) {
	switch kh.app.view {
	case ViewComment:
		text := strings.TrimSpace(kh.app.commentInput.Value())
		if text == "" {
			return kh.app, nil
		}
		id := kh.app.currentID
		kh.app.commentInput.Reset()
		kh.app.commentInput.Blur()
		kh.app.view = kh.app.previousView
		return kh.app, kh.app.addComment(id, text)

	case ViewSearch:
		if items := kh.app.searchList.Items(); len(items) > 0 {
			if i, ok := items[0].(searchResultItem); ok {
				return kh.openDetail(i.result.ID, ViewSearch)
			}
		}
		return kh.app, nil

	default:
		return kh.app, nil
	}
}

// delegateToTextInput passes the key to the focused text input.
func (kh *KeyHandler) delegateToTextInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch kh.app.view {
	case ViewComment:
		kh.app.commentInput, cmd = kh.app.commentInput.Update(msg)
		return kh.app, cmd

	case ViewSearch:
		prev := kh.app.searchQuery
		kh.app.searchInput, cmd = kh.app.searchInput.Update(msg)
		query := sanitizeSearchInput(kh.app.searchInput.Value())
		if query != prev {
			return kh.app, tea.Batch(cmd, kh.app.scheduleSearch(query))
		}
		return kh.app, cmd

	default:
		return kh.app, nil
	}
}

// handleCustomKeys handles only our custom action keys.
func (kh *KeyHandler) handleCustomKeys(key string) (tea.Model, tea.Cmd, bool) {
	switch key {
	case "ctrl+c", "q":
		return kh.app, tea.Quit, true
	case "esc":
		model, cmd := kh.navigateBack()
		return model, cmd, true
	case "/":
		model, cmd := kh.enterSearchMode()
		return model, cmd, true
	}

	switch kh.app.view {
	case ViewFeed:
		return kh.handleFeedKeys(key)
	case ViewDetail:
		return kh.handleDetailKeys(key)
	default:
		return kh.app, nil, false
	}
}

func (kh *KeyHandler) handleFeedKeys(key string) (tea.Model, tea.Cmd, bool) {
	switch key {
	case "r":
		return kh.app, kh.app.refresh(), true
	case "m":
		if !kh.canLoadMore() {
			return kh.app, nil, true
		}
		return kh.app, kh.app.loadMore(), true
	case "l":
		if e, ok := kh.app.selectedEntry(); ok {
			return kh.app, kh.app.toggleLike(e.ID), true
		}
		return kh.app, nil, true
	case "c":
		if e, ok := kh.app.selectedEntry(); ok {
			kh.enterCommentMode(e.ID)
		}
		return kh.app, nil, true
	case "enter":
		if e, ok := kh.app.selectedEntry(); ok {
			model, cmd := kh.openDetail(e.ID, ViewFeed)
			return model, cmd, true
		}
		return kh.app, nil, true
	}
	return kh.app, nil, false
}

func (kh *KeyHandler) handleDetailKeys(key string) (tea.Model, tea.Cmd, bool) {
	switch key {
	case "l":
		return kh.app, kh.app.toggleLike(kh.app.currentID), true
	case "c":
		kh.enterCommentMode(kh.app.currentID)
		return kh.app, nil, true
	}
	return kh.app, nil, false
}

// delegateToCharm lets Charm handle all keys we don't intercept.
func (kh *KeyHandler) delegateToCharm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch kh.app.view {
	case ViewFeed:
		kh.app.entryList, cmd = kh.app.entryList.Update(msg)
		if kh.nearBottom() && kh.canLoadMore() {
			return kh.app, tea.Batch(cmd, kh.app.loadMore())
		}
		return kh.app, cmd

	case ViewSearch:
		switch msg.String() {
		case "tab", "shift+tab", "i":
			kh.app.searchInput.Focus()
			return kh.app, nil
		case "up":
			if kh.app.searchList.Index() == 0 {
				kh.app.searchInput.Focus()
				return kh.app, nil
			}
		case "enter":
			if i, ok := kh.app.searchList.SelectedItem().(searchResultItem); ok {
				return kh.openDetail(i.result.ID, ViewSearch)
			}
			return kh.app, nil
		}
		kh.app.searchList, cmd = kh.app.searchList.Update(msg)
		return kh.app, cmd

	case ViewDetail:
		kh.app.viewport, cmd = kh.app.viewport.Update(msg)
		return kh.app, cmd

	default:
		return kh.app, nil
	}
}

func (kh *KeyHandler) nearBottom() bool {
	n := len(kh.app.entryList.Items())
	return n > 0 && kh.app.entryList.Index() >= n-loadMoreThreshold
}

// canLoadMore reports whether the cache would accept a LoadMore now.
func (kh *KeyHandler) canLoadMore() bool {
	switch kh.app.state.Status {
	case feed.StatusReady, feed.StatusError:
		return !kh.app.busy
	default:
		return false
	}
}

func (kh *KeyHandler) openDetail(id string, from View) (tea.Model, tea.Cmd) {
	e, ok := kh.app.cache.Entry(id)
	if !ok {
		kh.app.setStatus(feed.ErrEntryNotFound.Error(), StatusWarn)
		return kh.app, nil
	}
	kh.app.currentID = id
	kh.app.previousView = from
	kh.app.view = ViewDetail
	kh.app.searchInput.Blur()
	kh.app.viewport.SetContent(renderMuted("Loading post…"))
	kh.app.viewport.GotoTop()
	return kh.app, kh.app.renderEntry(e)
}

func (kh *KeyHandler) enterCommentMode(id string) {
	if kh.app.view != ViewComment {
		kh.app.previousView = kh.app.view
	}
	kh.app.currentID = id
	kh.app.view = ViewComment
	kh.app.commentInput.Reset()
	kh.app.commentInput.Focus()
}

// navigateBack implements smart back navigation.
func (kh *KeyHandler) navigateBack() (tea.Model, tea.Cmd) {
	switch kh.app.view {
	case ViewComment:
		kh.app.commentInput.Blur()
		kh.app.view = kh.app.previousView
		return kh.app, nil

	case ViewSearch:
		kh.app.view = ViewFeed
		kh.app.searchInput.Reset()
		kh.app.searchInput.Blur()
		kh.app.searchQuery = ""
		kh.app.searchList.SetItems([]list.Item{})
		kh.app.setStatus("", StatusInfo)
		return kh.app, nil

	case ViewDetail:
		kh.app.view = kh.app.previousView
		if kh.app.view == ViewDetail || kh.app.view == ViewComment {
			kh.app.view = ViewFeed
		}
		if kh.app.view == ViewSearch {
			// Return to the results, not the input.
			kh.app.searchInput.Blur()
		}
		return kh.app, nil

	default:
		return kh.app, tea.Quit
	}
}

// enterSearchMode transitions to the search view.
func (kh *KeyHandler) enterSearchMode() (tea.Model, tea.Cmd) {
	kh.app.previousView = kh.app.view
	kh.app.view = ViewSearch
	kh.app.searchInput.Reset()
	kh.app.searchQuery = ""
	kh.app.searchList.SetItems([]list.Item{})
	kh.app.searchInput.Focus()

	if ds, ok := kh.app.searcher.(search.DebugStatser); ok {
		if n, err := ds.DocCount(); err == nil {
			kh.app.setStatus(fmt.Sprintf("Search • idx: %d docs", n), StatusInfo)
			return kh.app, nil
		}
	}
	kh.app.setStatus("Search", StatusInfo)
	return kh.app, nil
}

// sanitizeSearchInput trims, limits and collapses whitespace in a query.
func sanitizeSearchInput(input string) string {
	input = strings.Join(strings.Fields(input), " ")
	if r := []rune(input); len(r) > 256 {
		input = string(r[:256])
	}
	return input
}

// GetHelpForCurrentView returns only our custom help text (Charm handles the rest).
func (kh *KeyHandler) GetHelpForCurrentView() []string {
	switch kh.app.view {
	case ViewFeed:
		help := []string{"r: refresh", "l: like", "c: comment", "/: search"}
		if kh.app.state.Status != feed.StatusExhausted {
			help = append(help, "m: more")
		}
		return help
	case ViewDetail:
		return []string{"l: like", "c: comment", "esc: back"}
	case ViewComment:
		return []string{"enter: post", "esc: cancel"}
	case ViewSearch:
		return []string{"enter: open", "esc: back"}
	default:
		return nil
	}
}
