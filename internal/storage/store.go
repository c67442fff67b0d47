package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	sessionBucket = []byte("session")
	viewsBucket   = []byte("views")

	currentSessionKey = []byte("current")
)

// ErrNoSession is returned when no credential has been stored.
var ErrNoSession = errors.New("no session")

// Store keeps the small amount of state that outlives a process: the
// credential and per-feed view preferences. Feed entries are never stored.
type Store struct {
	db *bolt.DB
}

func NewStore(dbPath string) (*Store, error) {
	return NewStoreWithTimeout(dbPath, 1*time.Second)
}

func NewStoreWithTimeout(dbPath string, timeout time.Duration) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{sessionBucket, viewsBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveSession(session *Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		data, err := json.Marshal(session)
		if err != nil {
			return err
		}
		return b.Put(currentSessionKey, data)
	})
}

func (s *Store) GetSession() (*Session, error) {
	var session Session
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(sessionBucket).Get(currentSessionKey)
		if data == nil {
			return ErrNoSession
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) ClearSession() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Delete(currentSessionKey)
	})
}

// SaveLastQuery remembers the last query used for a feed view so the CLI
// can offer it again.
func (s *Store) SaveLastQuery(view, query string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(viewsBucket).Put([]byte(view), []byte(query))
	})
}

func (s *Store) LastQuery(view string) (string, error) {
	var query string
	err := s.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(viewsBucket).Get([]byte(view)); data != nil {
			query = string(data)
		}
		return nil
	})
	return query, err
}
