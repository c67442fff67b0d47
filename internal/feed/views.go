package feed

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pders01/tailfeed/internal/storage"
)

// View names one of the server feeds.
type View string

const (
	ViewHome    View = "home"
	ViewExplore View = "explore"
	ViewSearch  View = "search"
)

var ErrEmptyQuery = errors.New("search query must not be empty")

// ParseView accepts the view names and the server's own endpoint names.
func ParseView(s string) (View, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "home", "tailored":
		return ViewHome, nil
	case "explore", "discover":
		return ViewExplore, nil
	case "search":
		return ViewSearch, nil
	}
	return "", fmt.Errorf("unknown feed view %q", s)
}

// View returns the source and cache options for a feed view. query is only
// used by ViewSearch, where it is required.
func (f *Fetcher) View(view View, query string) (Source, Options, error) {
	opts := Options{PageSize: f.feed.PageSize}

	switch view {
	case ViewHome:
		return f.Source(f.feed.Endpoints.Tailored, nil), opts, nil
	case ViewExplore:
		var params url.Values
		if f.feed.DiscoverVideoOnly {
			params = url.Values{"video_only": {"true"}}
			opts.Filter = storage.Entry.HasVideo
		}
		return f.Source(f.feed.Endpoints.Discover, params), opts, nil
	case ViewSearch:
		query = strings.TrimSpace(query)
		if query == "" {
			return nil, Options{}, ErrEmptyQuery
		}
		return f.Source(f.feed.Endpoints.Search, url.Values{"q": {query}}), opts, nil
	}
	return nil, Options{}, fmt.Errorf("unknown feed view %q", view)
}
