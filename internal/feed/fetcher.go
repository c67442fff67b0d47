package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"resty.dev/v3"

	"github.com/pders01/tailfeed/internal/config"
	"github.com/pders01/tailfeed/internal/debuglog"
	"github.com/pders01/tailfeed/internal/media"
	"github.com/pders01/tailfeed/internal/storage"
	"github.com/pders01/tailfeed/internal/validation"
)

// PageRequest describes one page to fetch. A NoCursor Cursor asks for the
// first page.
type PageRequest struct {
	Cursor     storage.Cursor
	PageSize   int
	Query      string
	Credential string
}

// Source fetches pages of one feed. Implementations must not touch cache
// state.
type Source interface {
	FetchPage(ctx context.Context, req PageRequest) (*storage.Page, error)
}

// MutationAPI is the server side of like and comment mutations.
type MutationAPI interface {
	ToggleLike(ctx context.Context, credential, postID string) (*storage.LikeResult, error)
	AddComment(ctx context.Context, credential, postID, text string) (*storage.Comment, error)
}

type pageResponse struct {
	Count    int             `json:"count"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	NextPage *int            `json:"next_page"`
	PrevPage *int            `json:"prev_page"`
	Results  []storage.Entry `json:"results"`
}

type commentResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Comment *storage.Comment `json:"comment"`
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Fetcher talks to the feed API. It implements MutationAPI and hands out a
// Source per feed endpoint.
type Fetcher struct {
	client   *resty.Client
	timeout  time.Duration
	feed     config.FeedConfig
	detector *media.TypeDetector
	log      *debuglog.FieldLogger

	mu        sync.RWMutex
	onExpired []func()
}

func NewFetcher(cfg *config.Config) (*Fetcher, error) {
	baseURL, err := validation.ForLocal(cfg.API.AllowLocal).ValidateBaseURL(cfg.API.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api base URL: %w", err)
	}

	log := debuglog.WithFields(map[string]interface{}{"component": "fetcher"})

	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("User-Agent", cfg.API.UserAgent).
		SetHeader("Accept", "application/json").
		SetLogger(log)

	return &Fetcher{
		client:   client,
		timeout:  cfg.API.Timeout,
		feed:     cfg.Feed,
		detector: media.DefaultDetector(),
		log:      log,
	}, nil
}

func (f *Fetcher) Close() error {
	return f.client.Close()
}

// OnSessionExpired registers fn to run whenever the server rejects a
// credential.
func (f *Fetcher) OnSessionExpired(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onExpired = append(f.onExpired, fn)
}

func (f *Fetcher) sessionExpired() {
	f.mu.RLock()
	hooks := append([]func(){}, f.onExpired...)
	f.mu.RUnlock()

	for _, fn := range hooks {
		fn()
	}
}

// Source binds the fetcher to an endpoint. params are sent with every page.
func (f *Fetcher) Source(endpoint string, params url.Values) Source {
	return &endpointSource{fetcher: f, endpoint: endpoint, params: params}
}

type endpointSource struct {
	fetcher  *Fetcher
	endpoint string
	params   url.Values
}

func (s *endpointSource) FetchPage(ctx context.Context, req PageRequest) (*storage.Page, error) {
	params := url.Values{}
	for k, v := range s.params {
		params[k] = append([]string(nil), v...)
	}

	page := int(req.Cursor)
	if req.Cursor == storage.NoCursor {
		page = 1
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(req.PageSize))
	if req.Query != "" {
		params.Set("q", req.Query)
	}

	var body pageResponse
	if err := s.fetcher.do(ctx, http.MethodGet, s.endpoint, req.Credential, params, nil, &body); err != nil {
		return nil, err
	}

	for i := range body.Results {
		s.fetcher.detector.Normalize(body.Results[i].Media)
	}

	result := &storage.Page{
		Entries:    body.Results,
		Number:     body.Page,
		Total:      body.Count,
		NextCursor: storage.NoCursor,
	}
	if body.NextPage != nil && *body.NextPage > 0 {
		result.NextCursor = storage.Cursor(*body.NextPage)
	}

	s.fetcher.log.With("endpoint", s.endpoint).Debugf("page %d: %d entries, next %d",
		page, len(result.Entries), result.NextCursor)

	return result, nil
}

func (f *Fetcher) ToggleLike(ctx context.Context, credential, postID string) (*storage.LikeResult, error) {
	var result storage.LikeResult
	body := map[string]string{"post_id": postID}
	if err := f.do(ctx, http.MethodPost, f.feed.Endpoints.ToggleLike, credential, nil, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (f *Fetcher) AddComment(ctx context.Context, credential, postID, text string) (*storage.Comment, error) {
	var result commentResponse
	body := map[string]string{"post_id": postID, "comment_text": text}
	if err := f.do(ctx, http.MethodPost, f.feed.Endpoints.AddComment, credential, nil, body, &result); err != nil {
		return nil, err
	}

	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "comment rejected"
		}
		return nil, &Error{Kind: KindServerError, Message: msg}
	}
	if result.Comment == nil {
		return &storage.Comment{PostID: postID, Text: text}, nil
	}
	return result.Comment, nil
}

// do runs one request under the configured timeout and maps every failure
// onto an *Error, except cancellation of parent which is returned as is.
func (f *Fetcher) do(parent context.Context, method, path, credential string, params url.Values, body, result any) error {
	ctx, cancel := context.WithTimeout(parent, f.timeout)
	defer cancel()

	req := f.client.R().
		WithContext(ctx).
		SetHeader("Authorization", "Bearer "+credential).
		SetResult(result).
		SetError(&apiError{})
	if params != nil {
		req.SetQueryParamsFromValues(params)
	}
	if body != nil {
		req.SetBody(body)
	}

	res, err := req.Execute(method, path)

	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		f.log.Warnf("%s %s timed out after %v", method, path, f.timeout)
		return &Error{Kind: KindTimeout, Message: fmt.Sprintf("no response within %v", f.timeout), Err: err}
	}

	status := 0
	if res != nil {
		status = res.StatusCode()
	}

	switch {
	case status == http.StatusUnauthorized:
		f.log.Infof("%s %s: credential rejected", method, path)
		f.sessionExpired()
		return &Error{Kind: KindSessionExpired, Status: status, Message: serverMessage(res)}
	case status != 0 && (status < 200 || status >= 300):
		f.log.Warnf("%s %s: HTTP %d", method, path, status)
		return &Error{Kind: KindServerError, Status: status, Message: serverMessage(res)}
	case err != nil && status != 0:
		return &Error{Kind: KindServerError, Status: status, Message: "malformed response", Err: err}
	case err != nil:
		f.log.Warnf("%s %s: %v", method, path, err)
		return &Error{Kind: KindNetworkError, Err: err}
	}

	return nil
}

func serverMessage(res *resty.Response) string {
	if e, ok := res.Error().(*apiError); ok && e != nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return fmt.Sprintf("HTTP %d", res.StatusCode())
}
