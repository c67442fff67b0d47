package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/tailfeed/internal/config"
)

// fakeServer is a minimal feed API accepting the token "good".
type fakeServer struct {
	mu        sync.Mutex
	queries   []string
	likes     int
	comments  []string
	rejectAll bool
}

func post(id, title, caption string, likes int) map[string]any {
	return map[string]any{
		"id":            id,
		"title":         title,
		"description":   caption,
		"like_count":    likes,
		"comment_count": 0,
		"user":          map[string]any{"id": "u-" + id, "name": "ana"},
	}
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply := func(status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	if s.rejectAll || r.Header.Get("Authorization") != "Bearer good" {
		reply(http.StatusUnauthorized, map[string]string{"message": "invalid token"})
		return
	}

	switch r.URL.Path {
	case "/fetch-tailored-feed", "/search-feed":
		if q := r.URL.Query().Get("q"); q != "" {
			s.queries = append(s.queries, q)
		}
		next := 2
		body := map[string]any{"count": 3, "page": 1, "page_size": 2, "next_page": &next,
			"results": []any{post("p1", "first", "sunset at the beach", 3), post("p2", "second", "city lights", 7)}}
		if r.URL.Query().Get("page") == "2" {
			body = map[string]any{"count": 3, "page": 2, "page_size": 2, "next_page": nil,
				"results": []any{post("p2", "second", "city lights", 7), post("p3", "third", "mountain trail", 1)}}
		}
		reply(http.StatusOK, body)

	case "/toggle-like":
		var in struct {
			PostID string `json:"post_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		s.likes++
		reply(http.StatusOK, map[string]any{"post_id": in.PostID, "user_id": "me", "liked": true})

	case "/add-comment":
		var in struct {
			PostID string `json:"post_id"`
			Text   string `json:"comment_text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		s.comments = append(s.comments, in.Text)
		reply(http.StatusOK, map[string]any{"success": true,
			"comment": map[string]any{"id": "c9", "post_id": in.PostID, "comment_text": in.Text}})

	default:
		http.NotFound(w, r)
	}
}

type cliEnv struct {
	t          *testing.T
	server     *fakeServer
	configPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	fs := &fakeServer{}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := config.TestConfig()
	cfg.API.BaseURL = srv.URL
	cfg.Session.Path = filepath.Join(dir, "session.db")
	cfg.Feed.PageSize = 2

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, config.Save(cfg, path))

	return &cliEnv{t: t, server: fs, configPath: path}
}

func (c *cliEnv) run(args ...string) (string, error) {
	c.t.Helper()
	return execute(c.t, append([]string{"--config", c.configPath, "--log-level", "off"}, args...)...)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tailfeed dev")
	assert.Contains(t, out, "github.com/pders01/tailfeed")
}

func TestGenerateConfigCommand(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), ".config", "tailfeed", "config.toml")

	out, err := execute(t, "config", "generate", "--path", configFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated default configuration at:")

	_, err = os.Stat(configFile)
	require.NoError(t, err)

	cfg, err := config.Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Feed.PageSize)
}

func TestLoginLogout(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("feed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")

	out, err := env.run("login", "--token", "Bearer good")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in")

	_, err = env.run("feed")
	require.NoError(t, err)

	out, err = env.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	_, err = env.run("feed")
	assert.Error(t, err)
}

func TestLoginRequiresToken(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("login")
	assert.Error(t, err)
}

func TestFeedCommand_Pages(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("login", "--token", "good")
	require.NoError(t, err)

	out, err := env.run("feed", "home", "--pages", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "2 posts • more available")
	assert.NotContains(t, out, "p3")

	out, err = env.run("feed", "--pages", "5")
	require.NoError(t, err)
	for _, id := range []string{"p1", "p2", "p3"} {
		assert.Contains(t, out, id)
	}
	assert.Contains(t, out, "3 posts • end of feed")
}

func TestFeedCommand_Find(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("login", "--token", "good")
	require.NoError(t, err)

	out, err := env.run("feed", "--pages", "2", "--find", "mountain")
	require.NoError(t, err)
	assert.Contains(t, out, "p3")
	assert.NotContains(t, out, "first")
	assert.Contains(t, out, `1 of 3 loaded posts match "mountain"`)
}

func TestFeedCommand_RejectsUnknownView(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("feed", "sideways")
	assert.Error(t, err)
}

func TestLikeCommand(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("login", "--token", "good")
	require.NoError(t, err)

	out, err := env.run("like", "p2")
	require.NoError(t, err)
	assert.Contains(t, out, "Liked p2 • 8 likes")
	assert.Equal(t, 1, env.server.likes)
}

func TestLikeCommand_UnknownPost(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("login", "--token", "good")
	require.NoError(t, err)

	_, err = env.run("like", "nope")
	require.Error(t, err)
	assert.Equal(t, 0, env.server.likes, "no request for posts that are not loaded")
}

func TestCommentCommand(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("login", "--token", "good")
	require.NoError(t, err)

	out, err := env.run("comment", "p1", "lovely", "view")
	require.NoError(t, err)
	assert.Contains(t, out, "Commented on p1 (c9) • 1 comments")
	assert.Equal(t, []string{"lovely view"}, env.server.comments)
}

func TestSearchCommand_RemembersQuery(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("login", "--token", "good")
	require.NoError(t, err)

	_, err = env.run("search")
	require.Error(t, err, "no query and none remembered")

	_, err = env.run("search", "city", "lights")
	require.NoError(t, err)
	_, err = env.run("search")
	require.NoError(t, err)

	assert.Equal(t, []string{"city lights", "city lights"}, env.server.queries)
}

func TestSessionExpiredClearsCredential(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("login", "--token", "good")
	require.NoError(t, err)

	env.server.rejectAll = true
	_, err = env.run("feed")
	require.Error(t, err)
	assert.Equal(t, reloginHint, err.Error())

	env.server.rejectAll = false
	_, err = env.run("feed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")
}

func TestSyndicateCommand(t *testing.T) {
	rss := `<?xml version="1.0"?><rss version="2.0"><channel><title>Blog</title>
<item><title>Hello world</title><guid>1</guid><description>first post</description></item>
<item><title>Second note</title><guid>2</guid><description>more words</description></item>
</channel></rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rss))
	}))
	defer srv.Close()

	env := newCLIEnv(t)
	out, err := env.run("syndicate", srv.URL+"/feed.xml")
	require.NoError(t, err)
	assert.Contains(t, out, "Hello world")
	assert.Contains(t, out, "Second note")
	assert.Contains(t, out, "2 posts • end of feed")

	out, err = env.run("syndicate", srv.URL+"/feed.xml", "--find", "note")
	require.NoError(t, err)
	assert.Contains(t, out, "Second note")
	assert.NotContains(t, out, "Hello world")
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "abc", shorten("abc", 5))
	assert.Equal(t, "abc…", shorten("abcdef", 4))
}
