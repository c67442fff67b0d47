package feed

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/tailfeed/internal/storage"
)

type staticCredential string

func (s staticCredential) Credential() (string, bool) {
	return string(s), s != ""
}

type pageResult struct {
	page *storage.Page
	err  error
}

// fakeSource serves canned pages by cursor. When gate is set every fetch
// signals started and then waits for gate or cancellation.
type fakeSource struct {
	mu      sync.Mutex
	pages   map[storage.Cursor]pageResult
	calls   []PageRequest
	gate    chan struct{}
	started chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{pages: map[storage.Cursor]pageResult{}}
}

func (s *fakeSource) set(cursor storage.Cursor, next storage.Cursor, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[cursor] = pageResult{page: &storage.Page{Entries: entries(ids...), NextCursor: next}}
}

func (s *fakeSource) fail(cursor storage.Cursor, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[cursor] = pageResult{err: err}
}

func (s *fakeSource) blockNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	s.started = make(chan struct{}, 1)
}

func (s *fakeSource) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.gate)
	s.gate = nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeSource) FetchPage(ctx context.Context, req PageRequest) (*storage.Page, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	gate, started := s.gate, s.started
	res, ok := s.pages[req.Cursor]
	s.mu.Unlock()

	if gate != nil {
		started <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if !ok {
		return nil, fmt.Errorf("no page for cursor %d", req.Cursor)
	}
	if res.err != nil {
		return nil, res.err
	}
	page := *res.page
	page.Entries = append([]storage.Entry(nil), res.page.Entries...)
	return &page, nil
}

func idRange(prefix string, from, to int) []string {
	var out []string
	for i := from; i < to; i++ {
		out = append(out, fmt.Sprintf("%s%02d", prefix, i))
	}
	return out
}

func TestCache_OverlappingPages(t *testing.T) {
	src := newFakeSource()
	src.set(storage.NoCursor, 2, idRange("e", 0, 10)...)
	// Three of the second page's ids were already on the first page.
	second := append(idRange("e", 7, 10), idRange("e", 10, 17)...)
	src.set(2, 3, second...)

	c := NewCache("home", src, staticCredential("tok"), Options{PageSize: 10})

	require.NoError(t, c.Refresh(context.Background()))
	st := c.State()
	assert.Len(t, st.Entries, 10)
	assert.Equal(t, storage.Cursor(2), st.Cursor)
	assert.Equal(t, StatusReady, st.Status)

	require.NoError(t, c.LoadMore(context.Background()))
	st = c.State()
	assert.Len(t, st.Entries, 17)
	assert.Equal(t, idRange("e", 0, 17), ids(st.Entries))
	assert.Equal(t, storage.Cursor(3), st.Cursor)

	require.Equal(t, 2, src.callCount())
	assert.Equal(t, PageRequest{Cursor: storage.NoCursor, PageSize: 10, Credential: "tok"}, src.calls[0])
	assert.Equal(t, PageRequest{Cursor: 2, PageSize: 10, Credential: "tok"}, src.calls[1])
}

func TestCache_RefreshReplaces(t *testing.T) {
	src := newFakeSource()
	src.set(storage.NoCursor, 2, "a", "b", "a")
	c := NewCache("home", src, staticCredential("tok"), Options{})

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, []string{"a", "b"}, ids(c.State().Entries))

	src.set(storage.NoCursor, 2, "c", "a")
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, []string{"c", "a"}, ids(c.State().Entries))
}

func TestCache_SingleInFlight(t *testing.T) {
	src := newFakeSource()
	src.set(storage.NoCursor, 2, "a")
	src.set(2, 3, "b")
	c := NewCache("home", src, staticCredential("tok"), Options{})
	require.NoError(t, c.Refresh(context.Background()))

	src.blockNext()
	done := make(chan error, 1)
	go func() { done <- c.LoadMore(context.Background()) }()
	<-src.started

	assert.Equal(t, StatusLoadingMore, c.Status())
	assert.NoError(t, c.LoadMore(context.Background()), "second LoadMore is a no-op")
	assert.NoError(t, c.Refresh(context.Background()), "Refresh while fetching is a no-op")

	src.release()
	require.NoError(t, <-done)

	assert.Equal(t, 2, src.callCount())
	assert.Equal(t, []string{"a", "b"}, ids(c.State().Entries))
}

func TestCache_ExhaustionIsTerminal(t *testing.T) {
	src := newFakeSource()
	src.set(storage.NoCursor, 2, "a", "b")
	src.set(2, storage.NoCursor, "c")
	c := NewCache("home", src, staticCredential("tok"), Options{})

	require.NoError(t, c.Refresh(context.Background()))
	require.NoError(t, c.LoadMore(context.Background()))
	require.Equal(t, StatusExhausted, c.Status())
	before := c.State()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.LoadMore(context.Background()))
	}

	assert.Equal(t, 2, src.callCount())
	assert.Equal(t, before.Entries, c.State().Entries)
	assert.Equal(t, StatusExhausted, c.Status())

	// Refresh still works and starts over.
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, StatusReady, c.Status())
	assert.Equal(t, []string{"a", "b"}, ids(c.State().Entries))
}

func TestCache_ExhaustionSurvivesFailedRefresh(t *testing.T) {
	src := newFakeSource()
	src.set(storage.NoCursor, 2, "a", "b")
	src.set(2, storage.NoCursor, "c")
	c := NewCache("home", src, staticCredential("tok"), Options{})

	require.NoError(t, c.Refresh(context.Background()))
	require.NoError(t, c.LoadMore(context.Background()))
	require.Equal(t, StatusExhausted, c.Status())

	src.fail(storage.NoCursor, &Error{Kind: KindServerError, Status: 500})
	require.Error(t, c.Refresh(context.Background()))
	require.Equal(t, StatusError, c.Status())
	require.Equal(t, 3, src.callCount())

	require.NoError(t, c.LoadMore(context.Background()))
	assert.Equal(t, 3, src.callCount(), "no page request after exhaustion")
	assert.Equal(t, []string{"a", "b", "c"}, ids(c.State().Entries))

	// A successful refresh reopens pagination.
	src.set(storage.NoCursor, 2, "a", "b")
	require.NoError(t, c.Refresh(context.Background()))
	require.NoError(t, c.LoadMore(context.Background()))
	assert.Equal(t, 5, src.callCount())
	assert.Equal(t, StatusExhausted, c.Status())
}

func TestCache_SessionExpiredNotStored(t *testing.T) {
	src := newFakeSource()
	src.set(storage.NoCursor, 2, "a", "b")
	expired := &Error{Kind: KindSessionExpired, Status: 401, Message: "jwt expired"}
	src.fail(2, expired)

	c := NewCache("home", src, staticCredential("tok"), Options{})
	require.NoError(t, c.Refresh(context.Background()))

	err := c.LoadMore(context.Background())
	assert.Same(t, expired, err, "error is returned unmodified")

	st := c.State()
	assert.Nil(t, st.LastError)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, []string{"a", "b"}, ids(st.Entries))

	src.fail(storage.NoCursor, expired)
	err = c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.NotEqual(t, StatusError, c.Status())
	assert.Nil(t, c.State().LastError)
}

func TestCache_RecoverableErrors(t *testing.T) {
	for _, kind := range []ErrorKind{KindTimeout, KindServerError, KindNetworkError} {
		t.Run(kind.String(), func(t *testing.T) {
			src := newFakeSource()
			src.set(storage.NoCursor, 2, "a", "b")
			failure := &Error{Kind: kind}
			src.fail(2, failure)

			c := NewCache("home", src, staticCredential("tok"), Options{})
			require.NoError(t, c.Refresh(context.Background()))

			err := c.LoadMore(context.Background())
			assert.ErrorIs(t, err, failure)

			st := c.State()
			assert.Equal(t, StatusError, st.Status)
			assert.Equal(t, failure, st.LastError)
			assert.Equal(t, []string{"a", "b"}, ids(st.Entries), "entries survive the failure")
			assert.Equal(t, storage.Cursor(2), st.Cursor)

			// Manual retry of the same page.
			src.set(2, storage.NoCursor, "c")
			require.NoError(t, c.LoadMore(context.Background()))
			st = c.State()
			assert.Nil(t, st.LastError)
			assert.Equal(t, StatusExhausted, st.Status)
			assert.Equal(t, []string{"a", "b", "c"}, ids(st.Entries))
		})
	}
}

func TestCache_FirstRefreshFails(t *testing.T) {
	src := newFakeSource()
	src.fail(storage.NoCursor, &Error{Kind: KindServerError, Message: "boom"})
	c := NewCache("home", src, staticCredential("tok"), Options{})

	assert.Error(t, c.Refresh(context.Background()))
	st := c.State()
	assert.Equal(t, StatusError, st.Status)
	assert.Empty(t, st.Entries)
	assert.ErrorIs(t, st.LastError, ErrServer)
}

func TestCache_Unauthenticated(t *testing.T) {
	src := newFakeSource()
	src.set(storage.NoCursor, 2, "a")
	c := NewCache("home", src, staticCredential(""), Options{})

	var notified int
	c.OnStateChange(func(State) { notified++ })

	assert.ErrorIs(t, c.Refresh(context.Background()), ErrUnauthenticated)
	assert.ErrorIs(t, c.LoadMore(context.Background()), ErrUnauthenticated)

	assert.Zero(t, src.callCount())
	assert.Zero(t, notified)
	assert.Equal(t, StatusIdle, c.Status())
}

func TestCache_NilGuardIsAnonymous(t *testing.T) {
	src := newFakeSource()
	src.set(storage.NoCursor, storage.NoCursor, "a")
	c := NewCache("rss", src, nil, Options{})

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, StatusExhausted, c.Status())
	assert.Empty(t, src.calls[0].Credential)
}

func TestCache_LoadMoreFromIdle(t *testing.T) {
	src := newFakeSource()
	src.set(storage.NoCursor, 2, "a")
	c := NewCache("home", src, staticCredential("tok"), Options{})

	require.NoError(t, c.LoadMore(context.Background()))
	assert.Equal(t, storage.NoCursor, src.calls[0].Cursor)
	assert.Equal(t, []string{"a"}, ids(c.State().Entries))
}

func TestCache_CallerCancellation(t *testing.T) {
	src := newFakeSource()
	src.set(storage.NoCursor, 2, "a")
	c := NewCache("home", src, staticCredential("tok"), Options{})
	require.NoError(t, c.Refresh(context.Background()))

	src.blockNext()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Refresh(ctx) }()
	<-src.started
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	st := c.State()
	assert.Equal(t, StatusReady, st.Status)
	assert.Nil(t, st.LastError)
	assert.Equal(t, []string{"a"}, ids(st.Entries))
}

func TestCache_Dispose(t *testing.T) {
	src := newFakeSource()
	src.set(storage.NoCursor, 2, "a")
	src.set(2, 3, "b")
	c := NewCache("home", src, staticCredential("tok"), Options{})
	require.NoError(t, c.Refresh(context.Background()))

	var mu sync.Mutex
	var after []State
	c.OnStateChange(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		after = append(after, s)
	})

	src.blockNext()
	done := make(chan error, 1)
	go func() { done <- c.LoadMore(context.Background()) }()
	<-src.started

	c.Dispose()
	assert.ErrorIs(t, <-done, ErrDisposed)
	assert.True(t, c.Disposed())

	st := c.State()
	assert.Equal(t, []string{"a"}, ids(st.Entries), "late result is dropped")

	assert.ErrorIs(t, c.Refresh(context.Background()), ErrDisposed)
	assert.ErrorIs(t, c.ApplyMutation("a", flipLike), ErrDisposed)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, after, 1, "only the LoadingMore transition before Dispose")
	assert.Equal(t, StatusLoadingMore, after[0].Status)

	c.Dispose()
}

func TestCache_FilterAndQuery(t *testing.T) {
	src := newFakeSource()
	src.mu.Lock()
	src.pages[storage.NoCursor] = pageResult{page: &storage.Page{
		Entries: []storage.Entry{
			{ID: "img", Media: []storage.Upload{{Kind: storage.MediaImage}}},
			{ID: "vid", Media: []storage.Upload{{Kind: storage.MediaVideo}}},
		},
		NextCursor: 2,
	}}
	src.mu.Unlock()

	c := NewCache("explore", src, staticCredential("tok"), Options{
		PageSize: 4,
		Query:    "cats",
		Filter:   storage.Entry.HasVideo,
	})
	require.NoError(t, c.Refresh(context.Background()))

	assert.Equal(t, []string{"vid"}, ids(c.State().Entries))
	assert.Equal(t, "cats", src.calls[0].Query)
	assert.Equal(t, 4, src.calls[0].PageSize)
}

func TestCache_OnStateChange(t *testing.T) {
	src := newFakeSource()
	src.set(storage.NoCursor, 2, "a")
	c := NewCache("home", src, staticCredential("tok"), Options{})

	var statuses []Status
	var versions []uint64
	unsubscribe := c.OnStateChange(func(s State) {
		statuses = append(statuses, s.Status)
		versions = append(versions, s.Version)
	})

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, []Status{StatusLoading, StatusReady}, statuses)
	assert.Less(t, versions[0], versions[1])

	require.NoError(t, c.ApplyMutation("a", flipLike))
	assert.Len(t, statuses, 3)

	unsubscribe()
	require.NoError(t, c.ApplyMutation("a", flipLike))
	assert.Len(t, statuses, 3)
}

func TestCache_ListenerMayReenter(t *testing.T) {
	src := newFakeSource()
	src.set(storage.NoCursor, 2, "a")
	c := NewCache("home", src, staticCredential("tok"), Options{})

	var seen int
	c.OnStateChange(func(s State) {
		seen = c.Len()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Refresh(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener calling back into the cache deadlocked")
	}
	assert.Equal(t, 1, seen)
}

func TestCache_ApplyMutation(t *testing.T) {
	src := newFakeSource()
	src.mu.Lock()
	src.pages[storage.NoCursor] = pageResult{page: &storage.Page{
		Entries:    []storage.Entry{{ID: "a", LikeCount: 0, CommentCount: 2}},
		NextCursor: 2,
	}}
	src.mu.Unlock()
	c := NewCache("home", src, staticCredential("tok"), Options{})
	require.NoError(t, c.Refresh(context.Background()))

	assert.ErrorIs(t, c.ApplyMutation("missing", flipLike), ErrEntryNotFound)

	require.NoError(t, c.ApplyMutation("a", func(e *storage.Entry) {
		e.LikeCount -= 3
		e.CommentCount++
	}))
	e, ok := c.Entry("a")
	require.True(t, ok)
	assert.Equal(t, 0, e.LikeCount, "counters never go negative")
	assert.Equal(t, 3, e.CommentCount)

	_, ok = c.Entry("missing")
	assert.False(t, ok)
}

func TestCache_RefreshKeepsPendingCounters(t *testing.T) {
	src := newFakeSource()
	src.mu.Lock()
	src.pages[storage.NoCursor] = pageResult{page: &storage.Page{
		Entries:    []storage.Entry{{ID: "a", LikeCount: 5}, {ID: "b", LikeCount: 1}},
		NextCursor: 2,
	}}
	src.mu.Unlock()
	c := NewCache("home", src, staticCredential("tok"), Options{})
	require.NoError(t, c.Refresh(context.Background()))

	require.NoError(t, c.track("a", flipLike))
	assert.Equal(t, []string{"a"}, c.State().InFlight)

	require.NoError(t, c.Refresh(context.Background()))
	e, _ := c.Entry("a")
	assert.True(t, e.Liked, "optimistic value survives a refresh while in flight")
	assert.Equal(t, 6, e.LikeCount)

	c.settle("a", nil)
	assert.Empty(t, c.State().InFlight)

	require.NoError(t, c.Refresh(context.Background()))
	e, _ = c.Entry("a")
	assert.False(t, e.Liked)
	assert.Equal(t, 5, e.LikeCount)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "loading more", StatusLoadingMore.String())
	assert.Equal(t, "unknown", Status(42).String())
	assert.True(t, StatusLoading.Busy())
	assert.False(t, StatusReady.Busy())
}
