package feed

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"

	"github.com/pders01/tailfeed/internal/config"
	"github.com/pders01/tailfeed/internal/media"
	"github.com/pders01/tailfeed/internal/storage"
	"github.com/pders01/tailfeed/internal/validation"
)

var (
	imgRegex   = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["']`)
	videoRegex = regexp.MustCompile(`<video[^>]+src=["']([^"']+)["']`)
)

// SyndicationSource reads an RSS, Atom or JSON feed and serves its items as
// pages. The document is downloaded on the first page and later pages are
// cut from that copy.
type SyndicationSource struct {
	url      string
	parser   *gofeed.Parser
	timeout  time.Duration
	detector *media.TypeDetector

	mu    sync.Mutex
	items []storage.Entry
}

func NewSyndicationSource(feedURL string, cfg *config.Config) (*SyndicationSource, error) {
	normalized, err := validation.ForLocal(cfg.API.AllowLocal).ValidateAndNormalize(feedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}

	parser := gofeed.NewParser()
	parser.UserAgent = cfg.API.UserAgent

	return &SyndicationSource{
		url:      normalized,
		parser:   parser,
		timeout:  cfg.API.Timeout,
		detector: media.DefaultDetector(),
	}, nil
}

func (s *SyndicationSource) URL() string {
	return s.url
}

func (s *SyndicationSource) FetchPage(ctx context.Context, req PageRequest) (*storage.Page, error) {
	if req.Cursor == storage.NoCursor {
		items, err := s.download(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.items = items
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return paginate(s.items, req.Cursor, req.PageSize), nil
}

func (s *SyndicationSource) download(parent context.Context) ([]storage.Entry, error) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	parsed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		if parent.Err() != nil {
			return nil, parent.Err()
		}
		return nil, classifySyndicationError(ctx, err)
	}
	return s.entries(parsed), nil
}

func classifySyndicationError(ctx context.Context, err error) error {
	var httpErr gofeed.HTTPError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	case errors.As(err, &httpErr):
		return &Error{Kind: KindServerError, Status: httpErr.StatusCode, Message: httpErr.Status}
	case errors.Is(err, gofeed.ErrFeedTypeNotDetected):
		return &Error{Kind: KindServerError, Message: "not a feed document", Err: err}
	}
	return &Error{Kind: KindNetworkError, Err: err}
}

// Parse reads a feed document into entries.
func (s *SyndicationSource) Parse(r io.Reader) ([]storage.Entry, error) {
	parsed, err := s.parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}
	return s.entries(parsed), nil
}

func (s *SyndicationSource) entries(f *gofeed.Feed) []storage.Entry {
	result := make([]storage.Entry, 0, len(f.Items))
	for _, item := range f.Items {
		e := storage.Entry{
			ID:         itemID(s.url, item),
			Title:      item.Title,
			Caption:    item.Description,
			Media:      s.uploads(item),
			Visibility: "public",
			Author:     itemAuthor(f, item),
		}
		e.UserID = e.Author.ID
		if item.PublishedParsed != nil {
			e.CreatedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			e.CreatedAt = *item.UpdatedParsed
		}
		result = append(result, e)
	}
	return lo.UniqBy(result, entryID)
}

func (s *SyndicationSource) uploads(item *gofeed.Item) []storage.Upload {
	var uploads []storage.Upload

	for _, enc := range item.Enclosures {
		if enc.URL == "" {
			continue
		}
		kind, ok := s.detector.DetectMIME(enc.Type)
		if !ok {
			kind, ok = s.detector.DetectURL(enc.URL)
		}
		if !ok {
			continue
		}
		uploads = append(uploads, storage.Upload{Kind: kind, URL: enc.URL})
	}

	if item.Image != nil && item.Image.URL != "" {
		uploads = append(uploads, storage.Upload{Kind: storage.MediaImage, URL: item.Image.URL})
	}

	html := item.Content + " " + item.Description
	for _, m := range imgRegex.FindAllStringSubmatch(html, -1) {
		uploads = append(uploads, storage.Upload{Kind: storage.MediaImage, URL: m[1]})
	}
	for _, m := range videoRegex.FindAllStringSubmatch(html, -1) {
		uploads = append(uploads, storage.Upload{Kind: storage.MediaVideo, URL: m[1]})
	}

	return lo.UniqBy(uploads, func(u storage.Upload) string { return u.URL })
}

func itemID(feedURL string, item *gofeed.Item) string {
	key := item.GUID
	if key == "" {
		key = item.Link
	}
	if key == "" {
		key = item.Title + item.Published
	}
	return fmt.Sprintf("%x", sha256.Sum256([]byte(feedURL+"\x00"+key)))[:16]
}

func itemAuthor(f *gofeed.Feed, item *gofeed.Item) storage.Author {
	var p *gofeed.Person
	switch {
	case len(item.Authors) > 0:
		p = item.Authors[0]
	case len(f.Authors) > 0:
		p = f.Authors[0]
	}

	a := storage.Author{Name: f.Title}
	if p != nil && p.Name != "" {
		a.Name = p.Name
	}
	a.ID = a.Name
	if f.Image != nil {
		a.AvatarURL = f.Image.URL
	}
	return a
}

// paginate serves page cursor (1-based, NoCursor meaning the first) of items.
func paginate(items []storage.Entry, cursor storage.Cursor, pageSize int) *storage.Page {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	number := max(int(cursor), 1)

	start := min((number-1)*pageSize, len(items))
	end := min(start+pageSize, len(items))

	page := &storage.Page{
		Entries:    append([]storage.Entry(nil), items[start:end]...),
		Number:     number,
		Total:      len(items),
		NextCursor: storage.NoCursor,
	}
	if end < len(items) {
		page.NextCursor = storage.Cursor(number + 1)
	}
	return page
}
