package feed

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/pders01/tailfeed/internal/debuglog"
	"github.com/pders01/tailfeed/internal/storage"
)

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusLoadingMore
	StatusReady
	StatusError
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusLoadingMore:
		return "loading more"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Busy reports whether a fetch is in flight.
func (s Status) Busy() bool {
	return s == StatusLoading || s == StatusLoadingMore
}

// CredentialProvider supplies the current credential. ok is false when the
// user is not signed in.
type CredentialProvider interface {
	Credential() (token string, ok bool)
}

type Options struct {
	PageSize int
	// Query is sent with every page request.
	Query string
	// Filter drops entries from each fetched page before merging.
	Filter func(storage.Entry) bool
}

const defaultPageSize = 10

// Mutation changes one cached entry in place.
type Mutation func(*storage.Entry)

// State is a point-in-time copy of a cache. Version grows with every change
// so listeners can discard snapshots that arrive out of order.
type State struct {
	Version   uint64
	Entries   []storage.Entry
	Cursor    storage.Cursor
	Status    Status
	LastError error
	InFlight  []string
}

// Cache holds the loaded window of one feed view. At most one page fetch is
// in flight at a time; Refresh and LoadMore calls made meanwhile are no-ops.
type Cache struct {
	name   string
	source Source
	guard  CredentialProvider
	opts   Options
	log    *debuglog.FieldLogger

	mu        sync.Mutex
	entries   []storage.Entry
	index     map[string]int
	cursor    storage.Cursor
	exhausted bool
	status    Status
	lastErr   error
	fetching  bool
	cancel    context.CancelFunc
	pending   map[string]int
	disposed  bool
	version   uint64
	listeners map[int]func(State)
	nextID    int
}

// NewCache creates an empty cache. A nil guard means source needs no
// credential.
func NewCache(name string, source Source, guard CredentialProvider, opts Options) *Cache {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	return &Cache{
		name:      name,
		source:    source,
		guard:     guard,
		opts:      opts,
		log:       debuglog.WithFields(map[string]interface{}{"component": "cache", "feed": name}),
		index:     map[string]int{},
		pending:   map[string]int{},
		listeners: map[int]func(State){},
	}
}

func (c *Cache) Name() string {
	return c.name
}

// Refresh fetches the first page and replaces the loaded entries with it.
func (c *Cache) Refresh(ctx context.Context) error {
	return c.fetch(ctx, MergeReplace)
}

// LoadMore fetches the page at the current cursor and appends its net-new
// entries. It does nothing while a fetch is in flight or once the feed is
// exhausted.
func (c *Cache) LoadMore(ctx context.Context) error {
	return c.fetch(ctx, MergeAppend)
}

func (c *Cache) fetch(parent context.Context, mode MergeMode) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	// exhausted outlives a failed Refresh; only a successful fetch resets it.
	if c.fetching || (mode == MergeAppend && c.exhausted) {
		c.mu.Unlock()
		return nil
	}

	credential, ok := c.credential()
	if !ok {
		c.mu.Unlock()
		return ErrUnauthenticated
	}

	prev := c.status
	cursor := storage.NoCursor
	next := StatusLoading
	if mode == MergeAppend && c.cursor != storage.NoCursor {
		cursor = c.cursor
		next = StatusLoadingMore
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	c.fetching = true
	c.cancel = cancel
	c.status = next
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)

	c.log.Debugf("%s fetch, cursor %d", mode, cursor)
	page, err := c.source.FetchPage(ctx, PageRequest{
		Cursor:     cursor,
		PageSize:   c.opts.PageSize,
		Query:      c.opts.Query,
		Credential: credential,
	})

	c.mu.Lock()
	c.fetching = false
	c.cancel = nil
	if c.disposed {
		c.mu.Unlock()
		c.log.Debugf("dropping result of disposed cache")
		return ErrDisposed
	}

	if err != nil {
		if IsFatal(err) || isCancellation(err) {
			c.status = prev
		} else {
			c.status = StatusError
			c.lastErr = err
			c.log.Warnf("%s fetch failed: %v", mode, err)
		}
		snap = c.changedLocked()
		c.mu.Unlock()
		c.notify(snap)
		return err
	}

	incoming := page.Entries
	if c.opts.Filter != nil {
		incoming = lo.Filter(incoming, func(e storage.Entry, _ int) bool { return c.opts.Filter(e) })
	}
	c.applyPageLocked(incoming, mode)

	c.cursor = page.NextCursor
	c.exhausted = page.Exhausted()
	c.lastErr = nil
	c.status = StatusReady
	if c.exhausted {
		c.status = StatusExhausted
	}
	c.log.Debugf("%s merged: %d entries, status %s", mode, len(c.entries), c.status)

	snap = c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// applyPageLocked merges a page. Entries with a mutation in flight keep their
// local counters until the mutation settles.
func (c *Cache) applyPageLocked(incoming []storage.Entry, mode MergeMode) {
	merged := Merge(c.entries, incoming, mode)

	if mode == MergeReplace && len(c.pending) > 0 {
		for i := range merged {
			if c.pending[merged[i].ID] == 0 {
				continue
			}
			if j, ok := c.index[merged[i].ID]; ok {
				old := c.entries[j]
				merged[i].Liked = old.Liked
				merged[i].LikeCount = old.LikeCount
				merged[i].CommentCount = old.CommentCount
			}
		}
	}

	c.entries = merged
	c.index = make(map[string]int, len(merged))
	for i, e := range merged {
		c.index[e.ID] = i
	}
}

func (c *Cache) credential() (string, bool) {
	if c.guard == nil {
		return "", true
	}
	token, ok := c.guard.Credential()
	if token == "" {
		return "", false
	}
	return token, ok
}

func isCancellation(err error) bool {
	return KindOf(err) == KindUnknown &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// ApplyMutation changes the entry with the given id. It never waits for a
// fetch. Counters are floored at zero afterwards.
func (c *Cache) ApplyMutation(id string, mutate Mutation) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	e, ok := c.entryLocked(id)
	if !ok {
		c.mu.Unlock()
		return ErrEntryNotFound
	}
	mutate(e)
	clampCounters(e)
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// track applies mutate and marks id as having a mutation in flight. Every
// successful call must be paired with settle.
func (c *Cache) track(id string, mutate Mutation) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	e, ok := c.entryLocked(id)
	if !ok {
		c.mu.Unlock()
		return ErrEntryNotFound
	}
	if mutate != nil {
		mutate(e)
		clampCounters(e)
	}
	c.pending[id]++
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// settle ends one in-flight mutation. fn sees the current entry and whether
// no other mutation for it remains outstanding. fn is skipped if the entry
// has left the cache.
func (c *Cache) settle(id string, fn func(e *storage.Entry, last bool)) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.pending[id]--
	last := c.pending[id] <= 0
	if last {
		delete(c.pending, id)
	}
	if e, ok := c.entryLocked(id); ok && fn != nil {
		fn(e, last)
		clampCounters(e)
	}
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
}

func (c *Cache) entryLocked(id string) (*storage.Entry, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return &c.entries[i], true
}

func clampCounters(e *storage.Entry) {
	e.LikeCount = max(e.LikeCount, 0)
	e.CommentCount = max(e.CommentCount, 0)
}

// Entry returns a copy of the cached entry with the given id.
func (c *Cache) Entry(id string) (storage.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entryLocked(id)
	if !ok {
		return storage.Entry{}, false
	}
	return e.Clone(), true
}

func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Cache) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// OnStateChange registers listener to receive a snapshot after every change.
// Listeners run on the goroutine that made the change, outside the cache
// lock, and may call back into the cache.
func (c *Cache) OnStateChange(listener func(State)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = listener

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Dispose makes the cache inert. An in-flight fetch is cancelled and its
// result dropped; later calls return ErrDisposed.
func (c *Cache) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	c.disposed = true
	if c.cancel != nil {
		c.cancel()
	}
	clear(c.listeners)
	c.log.Debugf("disposed")
}

func (c *Cache) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

type notification struct {
	state     State
	listeners []func(State)
}

func (c *Cache) changedLocked() notification {
	c.version++
	return notification{
		state:     c.snapshotLocked(),
		listeners: lo.Values(c.listeners),
	}
}

func (c *Cache) snapshotLocked() State {
	inFlight := lo.Keys(c.pending)
	slices.Sort(inFlight)
	return State{
		Version:   c.version,
		Entries:   append([]storage.Entry(nil), c.entries...),
		Cursor:    c.cursor,
		Status:    c.status,
		LastError: c.lastErr,
		InFlight:  inFlight,
	}
}

func (c *Cache) notify(n notification) {
	for _, l := range n.listeners {
		l(n.state)
	}
}
