package tui

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/tailfeed/internal/config"
	"github.com/pders01/tailfeed/internal/debuglog"
	"github.com/pders01/tailfeed/internal/feed"
	"github.com/pders01/tailfeed/internal/search"
	"github.com/pders01/tailfeed/internal/storage"
)

const searchDebounceMillis = 150

// App is the feed browser. It renders snapshots pushed by a feed.Cache and
// never mutates entries itself.
type App struct {
	config     *config.Config
	cache      *feed.Cache
	mutator    *feed.Mutator
	searcher   search.Searcher
	keyHandler *KeyHandler
	log        *debuglog.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	entryList    list.Model
	searchList   list.Model
	searchInput  textinput.Model
	commentInput textinput.Model
	viewport     viewport.Model
	spinner      spinner.Model

	view         View
	previousView View
	state        feed.State
	currentID    string
	busy         bool
	quitting     bool

	status     string
	statusKind StatusKind

	searchSeq   int
	searchQuery string

	width           int
	height          int
	glamourRenderer *glamour.TermRenderer
	rendererWidth   int

	// Snapshots arrive on cache goroutines; only the latest is kept.
	eventMu     sync.Mutex
	pending     *feed.State
	signal      chan struct{}
	expired     chan struct{}
	unsubscribe func()
}

func NewApp(cfg *config.Config, cache *feed.Cache, mutator *feed.Mutator, searcher search.Searcher) *App {
	ApplyColors(cfg.UI.Colors)

	entryList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	entryList.Title = "› " + cache.Name()
	entryList.SetShowStatusBar(false)
	entryList.SetFilteringEnabled(false)
	entryList.SetShowHelp(true)

	searchList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	searchList.Title = "› search results"
	searchList.SetShowStatusBar(false)
	searchList.SetShowHelp(false)
	searchList.SetFilteringEnabled(false)

	si := textinput.New()
	si.Placeholder = "Search loaded posts..."
	si.CharLimit = 256

	ci := textinput.New()
	ci.Placeholder = "Write a comment..."
	ci.CharLimit = 500

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(AccentColor)

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		config:       cfg,
		cache:        cache,
		mutator:      mutator,
		searcher:     searcher,
		log:          debuglog.WithFields(map[string]interface{}{"component": "tui", "feed": cache.Name()}),
		ctx:          ctx,
		cancel:       cancel,
		entryList:    entryList,
		searchList:   searchList,
		searchInput:  si,
		commentInput: ci,
		viewport:     viewport.New(0, 0),
		spinner:      sp,
		view:         ViewFeed,
		previousView: ViewFeed,
		signal:       make(chan struct{}, 1),
		expired:      make(chan struct{}, 1),
	}

	app.keyHandler = NewKeyHandler(app)
	app.unsubscribe = cache.OnStateChange(app.publish)
	app.applyState(cache.State())

	return app
}

// SessionExpired makes the browser quit on its next event. It is safe to
// call from any goroutine.
func (a *App) SessionExpired() {
	select {
	case a.expired <- struct{}{}:
	default:
	}
}

// Close detaches the app from its cache and cancels outstanding requests.
func (a *App) Close() {
	a.cancel()
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}

func (a *App) publish(s feed.State) {
	a.eventMu.Lock()
	if a.pending == nil || s.Version > a.pending.Version {
		a.pending = &s
	}
	a.eventMu.Unlock()

	select {
	case a.signal <- struct{}{}:
	default:
	}
}

func (a *App) getRenderer() (*glamour.TermRenderer, error) {
	wordWrapWidth := min(max((a.width*9)/10, 40), 120)
	if a.width < 50 {
		wordWrapWidth = max(a.width-4, 20)
	}

	if a.glamourRenderer == nil || abs(a.rendererWidth-wordWrapWidth) > 10 {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wordWrapWidth),
		)
		if err != nil {
			return nil, err
		}
		a.glamourRenderer = r
		a.rendererWidth = wordWrapWidth
	}

	return a.glamourRenderer, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.waitForEvent(),
		a.refresh(),
		tea.EnterAltScreen,
	)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.entryList.SetSize(msg.Width, msg.Height-3)
		a.searchList.SetSize(msg.Width, max(msg.Height-10, 5))
		a.viewport.Width = msg.Width
		a.viewport.Height = msg.Height - 3

		inputWidth := msg.Width - 8
		if inputWidth < 20 {
			inputWidth = msg.Width
		}
		a.searchInput.Width = inputWidth
		a.commentInput.Width = inputWidth
		return a, nil

	case tea.KeyMsg:
		return a.keyHandler.HandleKey(msg)

	case stateMsg:
		return a, tea.Batch(a.applyState(msg.state), a.waitForEvent())

	case sessionExpiredMsg:
		a.quitting = true
		a.setStatus(MsgSessionExpired, StatusError)
		return a, tea.Quit

	case fetchDoneMsg:
		a.busy = false
		if msg.err != nil {
			return a, a.handleErr(msg.err)
		}
		if msg.more && a.state.Status == feed.StatusExhausted {
			a.setStatus(MsgEndOfFeed, StatusInfo)
			return a, nil
		}
		a.setStatus(MsgFeedSummary(a.cache.Name(), len(a.state.Entries), a.state.Status == feed.StatusExhausted), StatusSuccess)
		return a, nil

	case mutationDoneMsg:
		if msg.err != nil {
			return a, a.handleErr(wrapErr(msg.action, msg.err))
		}
		switch msg.action {
		case "like":
			if e, ok := a.cache.Entry(msg.id); ok {
				a.setStatus(MsgLikeState(e.Liked, e.LikeCount), StatusSuccess)
			}
		case "comment":
			a.setStatus(MsgCommentPosted, StatusSuccess)
		}
		return a, nil

	case detailRenderedMsg:
		if a.view == ViewDetail && a.currentID == msg.id {
			offset := a.viewport.YOffset
			a.viewport.SetContent(msg.content)
			a.viewport.SetYOffset(offset)
		}
		return a, nil

	case searchDebounceFireMsg:
		if msg.seq != a.searchSeq || a.view != ViewSearch {
			return a, nil
		}
		return a, a.performSearch(a.searchQuery)

	case searchResultsMsg:
		if a.view != ViewSearch || msg.query != a.searchQuery {
			return a, nil
		}
		if msg.err != nil {
			a.setStatus(msg.err.Error(), StatusError)
			return a, nil
		}
		items := make([]list.Item, len(msg.results))
		for i, r := range msg.results {
			items[i] = searchResultItem{result: r}
		}
		a.searchList.SetItems(items)
		if len(items) == 0 {
			a.setStatus(MsgNoResults, StatusInfo)
		} else {
			a.setStatus(MsgResultsCount(len(items)), StatusInfo)
		}
		return a, nil

	case spinner.TickMsg:
		if !a.busy {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	switch a.view {
	case ViewFeed:
		a.entryList, cmd = a.entryList.Update(msg)
	case ViewDetail:
		switch msg.(type) {
		case tea.MouseMsg:
			a.viewport, cmd = a.viewport.Update(msg)
		}
	case ViewSearch:
		a.searchList, cmd = a.searchList.Update(msg)
	}
	return a, cmd
}

// applyState replaces the rendered list with s. Snapshots older than the
// one on screen are ignored.
func (a *App) applyState(s feed.State) tea.Cmd {
	if s.Version < a.state.Version {
		return nil
	}
	a.state = s

	items := make([]list.Item, len(s.Entries))
	for i, e := range s.Entries {
		items[i] = entryItem{entry: e}
	}
	cmd := a.entryList.SetItems(items)

	if s.Status.Busy() != a.busy {
		a.busy = s.Status.Busy()
		if a.busy {
			cmd = tea.Batch(cmd, a.spinner.Tick)
		}
	}
	if s.Status == feed.StatusError && s.LastError != nil {
		text, kind := describeErr(s.LastError)
		a.setStatus(text, kind)
	}

	if a.view == ViewDetail {
		if e, ok := a.cache.Entry(a.currentID); ok {
			cmd = tea.Batch(cmd, a.renderEntry(e))
		}
	}
	return cmd
}

// handleErr reports err in the status bar. A rejected session ends the
// program.
func (a *App) handleErr(err error) tea.Cmd {
	if errors.Is(err, feed.ErrSessionExpired) {
		a.quitting = true
		a.setStatus(MsgSessionExpired, StatusError)
		return tea.Quit
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	a.log.Warnf("%v", err)
	text, kind := describeErr(err)
	a.setStatus(text, kind)
	return nil
}

func (a *App) setStatus(text string, kind StatusKind) {
	a.status = text
	a.statusKind = kind
}

// Quitting reports whether the app stopped because the session expired.
func (a *App) Quitting() bool {
	return a.quitting
}

func (a *App) selectedEntry() (storage.Entry, bool) {
	i, ok := a.entryList.SelectedItem().(entryItem)
	if !ok {
		return storage.Entry{}, false
	}
	// The list item may lag behind the cache by one snapshot.
	if e, ok := a.cache.Entry(i.entry.ID); ok {
		return e, true
	}
	return i.entry, true
}

func (a *App) View() string {
	var content string
	bodyHeight := a.height - 3

	switch a.view {
	case ViewFeed:
		if len(a.state.Entries) == 0 {
			content = renderCentered(a.width, bodyHeight, GetWelcomeMessage())
		} else {
			content = a.entryList.View()
		}

	case ViewDetail:
		content = a.viewport.View()

	case ViewComment:
		title := ""
		if e, ok := a.cache.Entry(a.currentID); ok {
			title = e.Title
		}
		content = renderCentered(a.width, bodyHeight,
			lipgloss.JoinVertical(
				lipgloss.Center,
				renderHeader("› comment", title, a.width),
				"",
				renderInputFrame(a.commentInput.View(), a.commentInput.Focused(), a.commentInput.Width),
				"",
				renderHelp("Enter: post • Esc: cancel"),
			),
		)

	case ViewSearch:
		helpText := "Type to search • Tab/↓: results • Esc: back"
		if !a.searchInput.Focused() {
			if len(a.searchList.Items()) > 0 {
				helpText = "↑↓: navigate • Enter: open • Tab: search box • Esc: back"
			} else {
				helpText = "No results • Tab: search box • Esc: back"
			}
		}

		content = ContentWrapper(a.width, bodyHeight).Render(
			lipgloss.JoinVertical(
				lipgloss.Top,
				renderHeader("› search "+a.cache.Name(), "", a.width),
				"",
				renderInputFrame(a.searchInput.View(), a.searchInput.Focused(), a.searchInput.Width),
				renderMuted(helpText),
				"",
				a.searchList.View(),
			),
		)
	}

	separator := SeparatorStyle.Render(strings.Repeat("─", max(a.width-1, 0)))
	return lipgloss.JoinVertical(lipgloss.Top, content, separator, a.statusBar())
}

func (a *App) statusBar() string {
	text := a.status
	style := a.statusKind.Style()
	if text == "" {
		text = strings.Join(a.keyHandler.GetHelpForCurrentView(), " • ")
		style = StatusInfoStyle
	}
	line := style.Render(truncateEnd(text, max(a.width-4, 1)))
	if a.busy {
		line = a.spinner.View() + " " + line
	}
	return StatusBarStyle.Width(a.width).Render(line)
}
