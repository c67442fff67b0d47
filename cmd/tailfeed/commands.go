package main

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pders01/tailfeed/internal/feed"
	"github.com/pders01/tailfeed/internal/search"
	"github.com/pders01/tailfeed/internal/session"
	"github.com/pders01/tailfeed/internal/tui"
)

func newLoginCmd(g *globalFlags) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an access token for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, err := openStore(g)
			if err != nil {
				return err
			}
			defer store.Close()

			s, err := session.NewGuard(store).Login(token)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case s.UserID != "" && !s.ExpiresAt.IsZero():
				fmt.Fprintf(out, "Signed in as %s until %s\n", s.UserID, s.ExpiresAt.Local().Format("Jan 2 15:04"))
			case s.UserID != "":
				fmt.Fprintf(out, "Signed in as %s\n", s.UserID)
			default:
				fmt.Fprintln(out, "Signed in")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Access token (a leading \"Bearer \" is accepted)")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newLogoutCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, err := openStore(g)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := session.NewGuard(store).Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newFeedCmd(g *globalFlags) *cobra.Command {
	var (
		pages int
		find  string
	)
	cmd := &cobra.Command{
		Use:       "feed [home|explore]",
		Short:     "Print the tailored (home) or discover (explore) feed",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(feed.ViewHome), string(feed.ViewExplore)},
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := parseViewArg(args)
			if err != nil {
				return err
			}
			if view == feed.ViewSearch {
				return errors.New("use `tailfeed search <query>` for the search feed")
			}

			e, err := openEnv(cmd, g)
			if err != nil {
				return err
			}
			defer e.Close()

			c, err := e.newCache(view, "")
			if err != nil {
				return err
			}
			defer c.Dispose()

			if err := loadPages(cmd.Context(), c, pages); err != nil {
				return explain(err)
			}
			if find != "" {
				return printMatches(e.out, c, find)
			}
			printEntries(e.out, c.State())
			return nil
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "Number of pages to load")
	cmd.Flags().StringVar(&find, "find", "", "Only show loaded posts matching this text")
	return cmd
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search posts on the server; repeats the last query when none is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, g)
			if err != nil {
				return err
			}
			defer e.Close()

			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				if query, err = e.store.LastQuery(string(feed.ViewSearch)); err != nil {
					return err
				}
			}

			c, err := e.newCache(feed.ViewSearch, query)
			if err != nil {
				return err
			}
			defer c.Dispose()

			if err := e.store.SaveLastQuery(string(feed.ViewSearch), query); err != nil {
				return fmt.Errorf("saving query: %w", err)
			}

			if err := loadPages(cmd.Context(), c, pages); err != nil {
				return explain(err)
			}
			printEntries(e.out, c.State())
			return nil
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "Number of pages to load")
	return cmd
}

// mutationFlags locate the post being changed: the feed is loaded first so
// the change is applied to a cached entry.
type mutationFlags struct {
	feed  string
	query string
	pages int
}

func (m *mutationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&m.feed, "feed", string(feed.ViewHome), "Feed the post appears in: home, explore or search")
	cmd.Flags().StringVar(&m.query, "query", "", "Query for --feed search")
	cmd.Flags().IntVar(&m.pages, "pages", 3, "Pages to load while looking for the post")
}

func (m *mutationFlags) load(cmd *cobra.Command, e *env) (*feed.Cache, error) {
	view, err := feed.ParseView(m.feed)
	if err != nil {
		return nil, err
	}
	c, err := e.newCache(view, m.query)
	if err != nil {
		return nil, err
	}
	if err := loadPages(cmd.Context(), c, m.pages); err != nil {
		c.Dispose()
		return nil, explain(err)
	}
	return c, nil
}

func newLikeCmd(g *globalFlags) *cobra.Command {
	var mf mutationFlags
	cmd := &cobra.Command{
		Use:   "like <post-id>",
		Short: "Toggle your like on a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, g)
			if err != nil {
				return err
			}
			defer e.Close()

			c, err := mf.load(cmd, e)
			if err != nil {
				return err
			}
			defer c.Dispose()

			id := args[0]
			if err := e.mutator.ToggleLike(cmd.Context(), c, id); err != nil {
				return explain(err)
			}

			entry, _ := c.Entry(id)
			verb := "Unliked"
			if entry.Liked {
				verb = "Liked"
			}
			fmt.Fprintf(e.out, "%s %s • %d likes\n", verb, id, entry.LikeCount)
			return nil
		},
	}
	mf.register(cmd)
	return cmd
}

func newCommentCmd(g *globalFlags) *cobra.Command {
	var mf mutationFlags
	cmd := &cobra.Command{
		Use:   "comment <post-id> <text>",
		Short: "Comment on a post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, g)
			if err != nil {
				return err
			}
			defer e.Close()

			c, err := mf.load(cmd, e)
			if err != nil {
				return err
			}
			defer c.Dispose()

			id := args[0]
			comment, err := e.mutator.AddComment(cmd.Context(), c, id, strings.Join(args[1:], " "))
			if err != nil {
				return explain(err)
			}

			entry, _ := c.Entry(id)
			fmt.Fprintf(e.out, "Commented on %s (%s) • %d comments\n", id, comment.ID, entry.CommentCount)
			return nil
		},
	}
	mf.register(cmd)
	return cmd
}

func newBrowseCmd(g *globalFlags) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "browse [home|explore|search]",
		Short: "Browse a feed interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := parseViewArg(args)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd, g)
			if err != nil {
				return err
			}
			defer e.Close()

			if _, ok := e.guard.Credential(); !ok {
				return explain(feed.ErrUnauthenticated)
			}

			c, err := e.newCache(view, query)
			if err != nil {
				return err
			}
			defer c.Dispose()

			idx, err := search.NewIndex()
			if err != nil {
				return err
			}
			defer idx.Close()
			detach := idx.Attach(c)
			defer detach()

			app := tui.NewApp(e.cfg, c, e.mutator, idx)
			defer app.Close()
			e.guard.OnExpired(app.SessionExpired)

			p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			if app.Quitting() {
				return errors.New(reloginHint)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Query for the search feed")
	return cmd
}

func newSyndicateCmd(g *globalFlags) *cobra.Command {
	var (
		pages int
		find  string
	)
	cmd := &cobra.Command{
		Use:   "syndicate <url>",
		Short: "Read an RSS, Atom or JSON feed as a paginated feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}

			src, err := feed.NewSyndicationSource(args[0], cfg)
			if err != nil {
				return err
			}

			// Public documents need no credential.
			c := feed.NewCache("syndication", src, nil, feed.Options{PageSize: cfg.Feed.PageSize})
			defer c.Dispose()

			if err := loadPages(cmd.Context(), c, pages); err != nil {
				return err
			}
			if find != "" {
				return printMatches(cmd.OutOrStdout(), c, find)
			}
			printEntries(cmd.OutOrStdout(), c.State())
			return nil
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "Number of pages to show")
	cmd.Flags().StringVar(&find, "find", "", "Only show posts matching this text")
	return cmd
}

func parseViewArg(args []string) (feed.View, error) {
	if len(args) == 0 {
		return feed.ViewHome, nil
	}
	return feed.ParseView(args[0])
}
