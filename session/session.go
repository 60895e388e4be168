// Package session holds the operator's authenticated session: the current
// user and the bearer token, mirrored into a storage.Store so a later
// process can restore it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/jmcleod/tokendesk/client"
	"github.com/jmcleod/tokendesk/internal/util"
	"github.com/jmcleod/tokendesk/storage"
)

// Durable keys inside the session namespace.
const (
	KeyAccessToken = "access_token"
	KeyUser        = "user"

	DefaultNamespace = "default"
)

// ErrEmptyToken is returned when the server answers a login without a token.
var ErrEmptyToken = errors.New("login response carried no access token")

// Phase is the lifecycle state of the session.
type Phase int

const (
	// PhaseUninitialized is the state before Initialize or Login.
	PhaseUninitialized Phase = iota
	// PhaseRestoring means a persisted session is loaded and is being
	// revalidated against the server.
	PhaseRestoring
	PhaseAuthenticated
	PhaseUnauthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseRestoring:
		return "restoring"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseUnauthenticated:
		return "unauthenticated"
	default:
		return "uninitialized"
	}
}

// Authenticator is the subset of the API client the session needs.
type Authenticator interface {
	Login(ctx context.Context, creds client.LoginRequest) (*client.LoginResponse, error)
	CurrentUser(ctx context.Context) (*client.User, error)
	Logout(ctx context.Context) error
}

var _ Authenticator = (*client.Client)(nil)

// Store is the auth store. Its zero value is not usable; use New.
type Store struct {
	api       Authenticator
	durable   storage.Store
	namespace string
	logger    zerolog.Logger

	mu      sync.RWMutex
	token   *memguard.Enclave
	user    *client.User
	loading bool
	phase   Phase
}

var _ oauth2.TokenSource = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithNamespace selects the storage namespace, normally the profile name.
func WithNamespace(ns string) Option {
	return func(s *Store) {
		if ns != "" {
			s.namespace = ns
		}
	}
}

// WithLogger sets the logger for swallowed and background failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates an empty session backed by durable.
func New(api Authenticator, durable storage.Store, opts ...Option) *Store {
	s := &Store{
		api:       api,
		durable:   durable,
		namespace: DefaultNamespace,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Namespace returns the storage namespace of the session.
func (s *Store) Namespace() string {
	return s.namespace
}

// Login authenticates with the server and persists the resulting session.
// On failure the previous session is left untouched in memory and storage.
func (s *Store) Login(ctx context.Context, creds client.LoginRequest) (*client.LoginResponse, error) {
	s.setLoading(true)
	defer s.setLoading(false)

	resp, err := s.api.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, ErrEmptyToken
	}

	userJSON, err := json.Marshal(resp.User)
	if err != nil {
		return nil, fmt.Errorf("encode user: %w", err)
	}
	prev, prevOK := s.priorToken(ctx)
	if err := s.durable.Put(ctx, s.namespace, KeyAccessToken, []byte(resp.AccessToken)); err != nil {
		return nil, fmt.Errorf("persist access token: %w", err)
	}
	if err := s.durable.Put(ctx, s.namespace, KeyUser, userJSON); err != nil {
		s.restoreToken(ctx, prev, prevOK)
		return nil, fmt.Errorf("persist user: %w", err)
	}

	user := resp.User
	s.mu.Lock()
	s.setSessionLocked(resp.AccessToken, &user)
	s.phase = PhaseAuthenticated
	s.mu.Unlock()
	return resp, nil
}

// priorToken reads the persisted token so a failed login can put it back.
// ok is false when the value could not be read.
func (s *Store) priorToken(ctx context.Context) (token []byte, ok bool) {
	v, err := s.durable.Get(ctx, s.namespace, KeyAccessToken)
	switch {
	case err == nil:
		return v, true
	case errors.Is(err, storage.ErrNotFound):
		return nil, true
	default:
		s.logger.Warn().Err(err).Str("namespace", s.namespace).Msg("failed to read access token before login")
		return nil, false
	}
}

// restoreToken rewrites the token captured by priorToken, or removes the
// key when there was none.
func (s *Store) restoreToken(ctx context.Context, token []byte, ok bool) {
	if !ok {
		return
	}
	var err error
	if token == nil {
		err = s.durable.Delete(ctx, s.namespace, KeyAccessToken)
		if errors.Is(err, storage.ErrNotFound) {
			err = nil
		}
	} else {
		err = s.durable.Put(ctx, s.namespace, KeyAccessToken, token)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("namespace", s.namespace).Msg("failed to restore access token after login failure")
	}
}

// Logout asks the server to end the session, then clears memory and durable
// storage regardless of the server's answer.
func (s *Store) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("remote logout failed")
	}
	s.clear(ctx)
}

func (s *Store) clear(ctx context.Context) {
	s.mu.Lock()
	s.setSessionLocked("", nil)
	s.phase = PhaseUnauthenticated
	s.mu.Unlock()

	for _, key := range []string{KeyAccessToken, KeyUser} {
		if err := s.durable.Delete(ctx, s.namespace, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Str("namespace", s.namespace).Str("key", key).Msg("failed to remove persisted session value")
		}
	}
}

// CurrentUser refreshes the cached user from the server. Any failure ends
// the session before the error is returned.
func (s *Store) CurrentUser(ctx context.Context) (*client.User, error) {
	s.setLoading(true)
	defer s.setLoading(false)

	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		s.Logout(ctx)
		return nil, err
	}

	s.mu.Lock()
	if s.token != nil {
		u := *user
		s.user = &u
	}
	s.mu.Unlock()
	return user, nil
}

// Initialize restores a persisted session. When both durable values are
// present the session is populated immediately and revalidated in the
// background; the returned channel is closed once the phase is final.
func (s *Store) Initialize(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	s.mu.Lock()
	s.phase = PhaseRestoring
	s.mu.Unlock()

	token, tokErr := s.durable.Get(ctx, s.namespace, KeyAccessToken)
	userJSON, userErr := s.durable.Get(ctx, s.namespace, KeyUser)

	switch {
	case errors.Is(tokErr, storage.ErrNotFound) || errors.Is(userErr, storage.ErrNotFound) ||
		(tokErr == nil && len(token) == 0) || (userErr == nil && len(userJSON) == 0):
		s.setPhase(PhaseUnauthenticated)
		close(done)
		return done
	case tokErr != nil || userErr != nil:
		s.logger.Warn().Err(errors.Join(tokErr, userErr)).Msg("failed to read persisted session")
		s.Logout(ctx)
		close(done)
		return done
	}

	var user client.User
	if err := json.Unmarshal(userJSON, &user); err != nil {
		s.logger.Warn().Err(err).Msg("persisted user is malformed")
		s.Logout(ctx)
		close(done)
		return done
	}

	s.mu.Lock()
	s.setSessionLocked(string(token), &user)
	s.mu.Unlock()
	util.WipeBytes(token)

	go func() {
		defer close(done)
		if _, err := s.CurrentUser(ctx); err != nil {
			s.logger.Info().Err(err).Msg("persisted session rejected")
			return
		}
		s.setPhase(PhaseAuthenticated)
	}()
	return done
}

// IsAuthenticated reports whether both a token and a user are held.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != nil && s.user != nil
}

// User returns a copy of the cached user, or nil.
func (s *Store) User() *client.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// AccessToken returns the bearer token, or "" when logged out.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	enclave := s.token
	s.mu.RUnlock()
	if enclave == nil {
		return ""
	}
	buf, err := enclave.Open()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to open token enclave")
		return ""
	}
	defer buf.Destroy()
	return string(buf.Bytes())
}

// Token implements oauth2.TokenSource for the API client.
func (s *Store) Token() (*oauth2.Token, error) {
	raw := s.AccessToken()
	if raw == "" {
		return nil, client.ErrNoSession
	}
	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	if exp, ok := expiry(raw); ok {
		tok.Expiry = exp
	}
	return tok, nil
}

// ExpiresAt returns the exp claim of a JWT bearer token. Opaque tokens
// report false.
func (s *Store) ExpiresAt() (time.Time, bool) {
	return expiry(s.AccessToken())
}

// Loading reports whether a login or user refresh is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Phase returns the lifecycle state.
func (s *Store) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *Store) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// setSessionLocked replaces token and user together. An empty token or nil
// user clears both.
func (s *Store) setSessionLocked(token string, user *client.User) {
	if token == "" || user == nil {
		s.token = nil
		s.user = nil
		return
	}
	// NewEnclave wipes its input.
	s.token = memguard.NewEnclave([]byte(token))
	s.user = user
}

func expiry(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
