package feed

import (
	"errors"
	"fmt"
)

// ErrorKind classifies feed and mutation failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindUnauthenticated means no credential was available; no request was sent.
	KindUnauthenticated
	// KindSessionExpired means the server rejected the credential.
	KindSessionExpired
	KindTimeout
	KindServerError
	KindNetworkError
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindSessionExpired:
		return "session expired"
	case KindTimeout:
		return "timeout"
	case KindServerError:
		return "server error"
	case KindNetworkError:
		return "network error"
	default:
		return "unknown"
	}
}

// Error is returned by fetches and mutations. errors.Is matches any *Error
// of the same kind against the sentinels below.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Status == 0 && t.Message == "" && t.Err == nil
}

var (
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrSessionExpired  = &Error{Kind: KindSessionExpired}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrServer          = &Error{Kind: KindServerError}
	ErrNetwork         = &Error{Kind: KindNetworkError}

	// ErrDisposed is returned by operations on a disposed cache, including a
	// fetch whose result arrived after Dispose.
	ErrDisposed = errors.New("feed cache disposed")
	// ErrEntryNotFound is returned when a mutation targets an entry that is
	// not in the cache.
	ErrEntryNotFound = errors.New("entry not found")
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsRecoverable reports whether err is a failure that stays local to the
// cache and can be retried by the user.
func IsRecoverable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindServerError, KindNetworkError:
		return true
	}
	return false
}

// IsFatal reports whether err must be handled app-wide (re-login).
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindUnauthenticated, KindSessionExpired:
		return true
	}
	return false
}
