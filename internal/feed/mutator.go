package feed

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/pders01/tailfeed/internal/debuglog"
	"github.com/pders01/tailfeed/internal/storage"
)

var ErrEmptyComment = errors.New("comment text must not be empty")

type MutatorOptions struct {
	// Rollback reverts an optimistic like toggle whose request failed.
	// Without it the optimistic value stays until the next refresh.
	Rollback bool
	// Serialize sends requests for the same post one at a time.
	Serialize bool
}

// Mutator applies like and comment changes to a cache before the server
// confirms them and reconciles once it has.
type Mutator struct {
	api   MutationAPI
	guard CredentialProvider
	opts  MutatorOptions
	locks *keyedLock
	log   *debuglog.FieldLogger
}

func NewMutator(api MutationAPI, guard CredentialProvider, opts MutatorOptions) *Mutator {
	return &Mutator{
		api:   api,
		guard: guard,
		opts:  opts,
		locks: newKeyedLock(),
		log:   debuglog.WithFields(map[string]interface{}{"component": "mutator"}),
	}
}

// ToggleLike flips the entry's like state in cache immediately, then sends
// the request. When the last outstanding request for the entry answers, the
// entry is reconciled to the server's value.
func (m *Mutator) ToggleLike(ctx context.Context, cache *Cache, id string) error {
	credential, ok := m.credential()
	if !ok {
		return ErrUnauthenticated
	}

	if err := cache.track(id, flipLike); err != nil {
		return err
	}

	res, err := send(ctx, m, id, func(ctx context.Context) (*storage.LikeResult, error) {
		return m.api.ToggleLike(ctx, credential, id)
	})

	cache.settle(id, func(e *storage.Entry, last bool) {
		if err != nil {
			if m.opts.Rollback {
				flipLike(e)
			}
			return
		}
		if last {
			setLiked(e, res.Liked)
		}
	})

	if err != nil {
		m.log.With("post", id).Warnf("toggle like failed: %v", err)
		return err
	}
	return nil
}

// AddComment posts a comment and bumps the entry's comment count once the
// server accepts it.
func (m *Mutator) AddComment(ctx context.Context, cache *Cache, id, text string) (*storage.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyComment
	}

	credential, ok := m.credential()
	if !ok {
		return nil, ErrUnauthenticated
	}

	if err := cache.track(id, nil); err != nil {
		return nil, err
	}

	comment, err := send(ctx, m, id, func(ctx context.Context) (*storage.Comment, error) {
		return m.api.AddComment(ctx, credential, id, text)
	})

	cache.settle(id, func(e *storage.Entry, _ bool) {
		if err == nil {
			e.CommentCount++
		}
	})

	if err != nil {
		m.log.With("post", id).Warnf("add comment failed: %v", err)
		return nil, err
	}
	return comment, nil
}

func (m *Mutator) credential() (string, bool) {
	if m.guard == nil {
		return "", false
	}
	token, ok := m.guard.Credential()
	return token, ok && token != ""
}

// send runs call, holding the post's lock when requests are serialized.
func send[T any](ctx context.Context, m *Mutator, id string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	if m.opts.Serialize {
		unlock, err := m.locks.lock(ctx, id)
		if err != nil {
			return zero, err
		}
		defer unlock()
	}
	return call(ctx)
}

func flipLike(e *storage.Entry) {
	setLiked(e, !e.Liked)
}

// setLiked moves LikeCount by one in the direction of the change, if any.
func setLiked(e *storage.Entry, liked bool) {
	if e.Liked == liked {
		return
	}
	e.Liked = liked
	if liked {
		e.LikeCount++
	} else if e.LikeCount > 0 {
		e.LikeCount--
	}
}

// keyedLock is a set of mutexes keyed by post id whose acquisition can be
// abandoned through a context.
type keyedLock struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{slots: map[string]*lockSlot{}}
}

func (k *keyedLock) lock(ctx context.Context, key string) (unlock func(), err error) {
	k.mu.Lock()
	slot, ok := k.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		k.slots[key] = slot
	}
	slot.refs++
	k.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return func() {
			<-slot.ch
			k.release(key, slot)
		}, nil
	case <-ctx.Done():
		k.release(key, slot)
		return nil, ctx.Err()
	}
}

func (k *keyedLock) release(key string, slot *lockSlot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(k.slots, key)
	}
}
