package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Key is the storage key of the persisted TokenSet.
const Key = "oidc"

var (
	ErrNoSession     = errors.New("no active session")
	ErrStorageFailed = errors.New("session storage failed")
)

// Storage is a key value port the session is persisted in.
type Storage interface {
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
	Remove(key string) error
}

// Navigator is notified when the user has to sign in again.
type Navigator interface {
	SignIn()
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func()

func (f NavigatorFunc) SignIn() { f() }

type noopNavigator struct{}

func (noopNavigator) SignIn() {}

// Option configures the Store.
type Option func(*Store)

// WithNavigator sets the sign in navigator.
func WithNavigator(n Navigator) Option {
	return func(s *Store) {
		if n != nil {
			s.nav = n
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store owns the single persisted TokenSet and caches the decoded profile.
//
// The role and profile come from an unverified token and are a UX hint only.
// The server remains the single source of authorization.
type Store struct {
	mux     sync.Mutex
	storage Storage
	nav     Navigator
	now     func() time.Time
	profile *Profile
}

// New creates Store persisting in to storage.
func New(storage Storage, opts ...Option) *Store {
	s := &Store{storage: storage, nav: noopNavigator{}, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store decodes the access token, stamps the creation time, persists the set and refreshes the cache.
func (s *Store) Store(ts TokenSet) error {
	claims, err := Decode(ts.AccessToken)
	if err != nil {
		return err
	}
	ts.CreatedOn = s.now()
	p := claims.Profile
	ts.Role = p.Role
	ts.Profile = &p

	s.mux.Lock()
	defer s.mux.Unlock()
	if err := s.storage.Set(Key, ts); err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	s.profile = &p
	return nil
}

// TokenSet returns the persisted set.
func (s *Store) TokenSet() (TokenSet, bool) {
	var ts TokenSet
	ok, err := s.storage.Get(Key, &ts)
	if err != nil || !ok {
		return TokenSet{}, false
	}
	return ts, true
}

// AccessToken returns current access token if present.
func (s *Store) AccessToken() (string, bool) {
	ts, ok := s.TokenSet()
	if !ok || ts.AccessToken == "" {
		return "", false
	}
	return ts.AccessToken, true
}

// RefreshToken returns current refresh token if present.
func (s *Store) RefreshToken() (string, bool) {
	ts, ok := s.TokenSet()
	if !ok || ts.RefreshToken == "" {
		return "", false
	}
	return ts.RefreshToken, true
}

// Reset removes the persisted set and clears the cache.
func (s *Store) Reset() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.profile = nil
	if err := s.storage.Remove(Key); err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

// Profile returns the cached profile decoding it from the stored token on first use.
// When there is no valid session the navigator is asked to sign in.
func (s *Store) Profile() (Profile, error) {
	p, err := s.loadProfile()
	if err != nil {
		s.nav.SignIn()
		return Profile{}, err
	}
	return p, nil
}

// loadProfile reads and caches under a single lock so a concurrent Reset cannot be overwritten.
func (s *Store) loadProfile() (Profile, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.profile != nil {
		return *s.profile, nil
	}

	token, ok := s.AccessToken()
	if !ok {
		return Profile{}, ErrNoSession
	}
	claims, err := Decode(token)
	if err != nil {
		return Profile{}, errors.Join(ErrNoSession, err)
	}
	p := claims.Profile
	s.profile = &p
	return p, nil
}

// Role returns the role of the signed in user.
func (s *Store) Role() (string, error) {
	p, err := s.Profile()
	if err != nil {
		return "", err
	}
	return p.Role, nil
}

// IsRole reports whether the signed in user has the role.
func (s *Store) IsRole(role string) bool {
	r, err := s.Role()
	return err == nil && r == role
}

// ExpiresAt returns expiry of the access token.
func (s *Store) ExpiresAt() (time.Time, error) {
	token, ok := s.AccessToken()
	if !ok {
		return time.Time{}, ErrNoSession
	}
	claims, err := Decode(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time, nil
	}
	ts, _ := s.TokenSet()
	if ts.ExpiresIn > 0 {
		return ts.CreatedOn.Add(time.Duration(ts.ExpiresIn) * time.Second), nil
	}
	return time.Time{}, fmt.Errorf("token carries no expiry")
}
