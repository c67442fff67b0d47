package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pders01/tailfeed/internal/config"
	"github.com/pders01/tailfeed/internal/debuglog"
	"github.com/pders01/tailfeed/internal/feed"
	"github.com/pders01/tailfeed/internal/session"
	"github.com/pders01/tailfeed/internal/storage"
)

const reloginHint = "session expired, sign in again with `tailfeed login --token <token>`"

// env holds everything a command needs to talk to the API.
type env struct {
	cfg     *config.Config
	store   *storage.Store
	guard   *session.Guard
	fetcher *feed.Fetcher
	mutator *feed.Mutator
	out     io.Writer
	errOut  io.Writer
}

func loadConfig(g *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if g.dbPath != "" {
		cfg.Session.Path = g.dbPath
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	return cfg, nil
}

// openStore loads the configuration, starts logging and opens the session
// database. It is enough for commands that never reach the API.
func openStore(g *globalFlags) (*config.Config, *storage.Store, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, nil, err
	}
	if err := debuglog.Setup(debuglog.ParseLogLevel(cfg.Log.Level), cfg.Log.Path); err != nil {
		return nil, nil, err
	}
	store, err := storage.NewStoreWithTimeout(cfg.Session.Path, cfg.Session.Timeout)
	if err != nil {
		debuglog.Close()
		return nil, nil, err
	}
	return cfg, store, nil
}

func openEnv(cmd *cobra.Command, g *globalFlags) (*env, error) {
	cfg, store, err := openStore(g)
	if err != nil {
		return nil, err
	}

	fetcher, err := feed.NewFetcher(cfg)
	if err != nil {
		store.Close()
		debuglog.Close()
		return nil, err
	}

	guard := session.NewGuard(store)
	fetcher.OnSessionExpired(guard.Expire)

	e := &env{
		cfg:     cfg,
		store:   store,
		guard:   guard,
		fetcher: fetcher,
		mutator: feed.NewMutator(fetcher, guard, feed.MutatorOptions{
			Rollback:  cfg.Mutations.Rollback,
			Serialize: cfg.Mutations.Serialize,
		}),
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}
	return e, nil
}

func (e *env) Close() {
	if err := e.fetcher.Close(); err != nil {
		debuglog.Warnf("closing http client: %v", err)
	}
	if err := e.store.Close(); err != nil {
		debuglog.Warnf("closing store: %v", err)
	}
	debuglog.Close()
}

// newCache builds the cache for a feed view. query is only read by the
// search view.
func (e *env) newCache(view feed.View, query string) (*feed.Cache, error) {
	src, opts, err := e.fetcher.View(view, query)
	if err != nil {
		return nil, err
	}
	return feed.NewCache(string(view), src, e.guard, opts), nil
}

// loadPages fetches the first page and up to pages-1 more.
func loadPages(ctx context.Context, c *feed.Cache, pages int) error {
	if err := c.Refresh(ctx); err != nil {
		return err
	}
	for i := 1; i < pages && c.Status() != feed.StatusExhausted; i++ {
		if err := c.LoadMore(ctx); err != nil {
			return err
		}
	}
	return nil
}

// explain rewrites credential errors into instructions for the user.
func explain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, feed.ErrSessionExpired):
		return errors.New(reloginHint)
	case errors.Is(err, feed.ErrUnauthenticated):
		return errors.New("not signed in, run `tailfeed login --token <token>`")
	}
	return err
}
