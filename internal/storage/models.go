package storage

import (
	"time"
)

// MediaKind is the type of an uploaded media item.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Cursor identifies the next page of a feed. The server uses plain page
// numbers; NoCursor stands for "first page" on requests and for
// "no further pages" on responses.
type Cursor int

const NoCursor Cursor = 0

type Author struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	AvatarURL         string `json:"avatar_url,omitempty"`
	Country           string `json:"country,omitempty"`
	PreferredCurrency string `json:"preferred_currency,omitempty"`
	IsCreator         bool   `json:"is_creator,omitempty"`
}

type Upload struct {
	Kind      MediaKind `json:"type"`
	URL       string    `json:"url"`
	SignedURL string    `json:"signed_url,omitempty"`
	ExpiresIn string    `json:"expires_in,omitempty"`
}

// DisplayURL prefers the signed URL when the server issued one.
func (u Upload) DisplayURL() string {
	if u.SignedURL != "" {
		return u.SignedURL
	}
	return u.URL
}

// Entry is one post in a feed. Only Liked, LikeCount and CommentCount are
// ever changed locally.
type Entry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Caption      string    `json:"description"`
	Media        []Upload  `json:"uploads"`
	Visibility   string    `json:"visibility,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Liked        bool      `json:"liked"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	Author       Author    `json:"user"`
}

func (e Entry) HasVideo() bool {
	for _, m := range e.Media {
		if m.Kind == MediaVideo {
			return true
		}
	}
	return false
}

// Clone returns a copy that does not share the media slice.
func (e Entry) Clone() Entry {
	if e.Media != nil {
		e.Media = append([]Upload(nil), e.Media...)
	}
	return e
}

type Page struct {
	Entries    []Entry
	Number     int
	Total      int
	NextCursor Cursor
}

// Exhausted reports whether no page follows this one.
func (p *Page) Exhausted() bool {
	return p.NextCursor == NoCursor
}

type LikeResult struct {
	PostID string `json:"post_id"`
	UserID string `json:"user_id"`
	Liked  bool   `json:"liked"`
}

type Commenter struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type Comment struct {
	ID          string     `json:"id"`
	PostID      string     `json:"post_id"`
	CommenterID string     `json:"commenter_id"`
	Text        string     `json:"comment_text"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Commenter   *Commenter `json:"commenter,omitempty"`
}

// Session is the credential persisted between CLI invocations. ExpiresAt is
// zero when the token carries no expiry.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the session has a known expiry at or before now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
