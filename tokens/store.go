// Package tokens keeps the locally fetched token collection in step with the
// server and derives the valid and invalid partitions from it.
package tokens

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jmcleod/tokendesk/client"
)

// Default page used by FetchTokens callers and by BatchRefreshTokens.
const (
	DefaultSkip  = 0
	DefaultLimit = 100
)

// Fallback messages recorded when an error carries no text.
const (
	msgFetchTokens   = "Failed to fetch tokens"
	msgFetchToken    = "Failed to fetch token"
	msgCreateToken   = "Failed to create token"
	msgUpdateToken   = "Failed to update token"
	msgDeleteToken   = "Failed to delete token"
	msgValidateToken = "Failed to validate token"
	msgRefreshToken  = "Failed to refresh token"
	msgBatchDelete   = "Failed to batch delete tokens"
	msgBatchValidate = "Failed to batch validate tokens"
	msgBatchRefresh  = "Failed to batch refresh tokens"
	msgExport        = "Failed to export tokens"
	msgImport        = "Failed to import tokens"
	msgStatistics    = "Failed to fetch statistics"
)

// API is the subset of the API client the store drives.
type API interface {
	ListTokens(ctx context.Context, skip, limit int) ([]client.Token, error)
	GetToken(ctx context.Context, id string) (*client.Token, error)
	CreateToken(ctx context.Context, in client.TokenCreate) (*client.Token, error)
	UpdateToken(ctx context.Context, id string, in client.TokenUpdate) (*client.Token, error)
	DeleteToken(ctx context.Context, id string) error
	ValidateToken(ctx context.Context, id string) (*client.TokenValidationResult, error)
	RefreshToken(ctx context.Context, id string) (*client.Token, error)
	BatchDeleteTokens(ctx context.Context, ids []string) (*client.BatchDeleteResult, error)
	BatchValidateTokens(ctx context.Context, ids []string) (*client.BatchValidateResult, error)
	BatchRefreshTokens(ctx context.Context) (*client.BatchRefreshResult, error)
	ExportTokens(ctx context.Context, ids []string) (*client.ExportFile, error)
	ImportTokens(ctx context.Context, in client.TokenImportRequest) (*client.TokenImportResponse, error)
	ImportTokensFromFile(ctx context.Context, filename string, r io.Reader) (*client.FileImportResponse, error)
	TokenStatistics(ctx context.Context) (*client.TokenStats, error)
}

var _ API = (*client.Client)(nil)

// Store is the tokens store. The lock is held only around local mutation,
// never across a server call, so concurrent actions interleave and the last
// one to finish wins the busy flag and the error.
type Store struct {
	api    API
	logger zerolog.Logger

	mu      sync.RWMutex
	tokens  []client.Token
	current *client.Token
	loading bool
	errMsg  string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for failed actions.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates an empty store.
func New(api API, opts ...Option) *Store {
	s := &Store{api: api, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// begin marks the store busy and clears the previous error. The returned
// func must be deferred with the action's error.
func (s *Store) begin(fallback string) func(*error) {
	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()

	return func(errp *error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.loading = false
		if errp == nil || *errp == nil {
			return
		}
		s.errMsg = messageFor(*errp, fallback)
		s.logger.Debug().Err(*errp).Msg(fallback)
	}
}

func messageFor(err error, fallback string) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// FetchTokens replaces the collection with one page from the server.
func (s *Store) FetchTokens(ctx context.Context, skip, limit int) (_ []client.Token, err error) {
	defer s.begin(msgFetchTokens)(&err)
	return s.fetch(ctx, skip, limit)
}

func (s *Store) fetch(ctx context.Context, skip, limit int) ([]client.Token, error) {
	list, err := s.api.ListTokens(ctx, skip, limit)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.tokens = slices.Clone(list)
	s.mu.Unlock()
	return list, nil
}

// FetchToken loads one record into Current. The collection is untouched.
func (s *Store) FetchToken(ctx context.Context, id string) (_ *client.Token, err error) {
	defer s.begin(msgFetchToken)(&err)

	tok, err := s.api.GetToken(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	cur := *tok
	s.current = &cur
	s.mu.Unlock()
	return tok, nil
}

// CreateToken stores a new record and prepends it to the collection.
func (s *Store) CreateToken(ctx context.Context, in client.TokenCreate) (_ *client.Token, err error) {
	defer s.begin(msgCreateToken)(&err)

	tok, err := s.api.CreateToken(ctx, in)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.tokens = slices.Insert(s.tokens, 0, *tok)
	s.mu.Unlock()
	return tok, nil
}

// UpdateToken applies a partial update and mirrors the returned record into
// the collection and Current. A record missing locally is not an error.
func (s *Store) UpdateToken(ctx context.Context, id string, in client.TokenUpdate) (_ *client.Token, err error) {
	defer s.begin(msgUpdateToken)(&err)

	tok, err := s.api.UpdateToken(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.replaceLocked(id, *tok)
	if s.current != nil && s.current.ID == id {
		cur := *tok
		s.current = &cur
	}
	s.mu.Unlock()
	return tok, nil
}

// DeleteToken removes a record on the server and locally. Current is cleared
// only when it is the deleted record.
func (s *Store) DeleteToken(ctx context.Context, id string) (err error) {
	defer s.begin(msgDeleteToken)(&err)

	if err := s.api.DeleteToken(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	s.tokens = slices.DeleteFunc(s.tokens, func(t client.Token) bool { return t.ID == id })
	if s.current != nil && s.current.ID == id {
		s.current = nil
	}
	s.mu.Unlock()
	return nil
}

// ValidateToken probes one record and mirrors the server's view of it.
func (s *Store) ValidateToken(ctx context.Context, id string) (_ *client.TokenValidationResult, err error) {
	defer s.begin(msgValidateToken)(&err)

	res, err := s.api.ValidateToken(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.replaceLocked(id, res.Token)
	s.mu.Unlock()
	return res, nil
}

// RefreshToken refreshes one record's portal information.
func (s *Store) RefreshToken(ctx context.Context, id string) (_ *client.Token, err error) {
	defer s.begin(msgRefreshToken)(&err)

	tok, err := s.api.RefreshToken(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.replaceLocked(id, *tok)
	s.mu.Unlock()
	return tok, nil
}

// BatchDeleteTokens deletes ids on the server and drops them locally in a
// single pass.
func (s *Store) BatchDeleteTokens(ctx context.Context, ids []string) (_ *client.BatchDeleteResult, err error) {
	defer s.begin(msgBatchDelete)(&err)

	res, err := s.api.BatchDeleteTokens(ctx, ids)
	if err != nil {
		return nil, err
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.mu.Lock()
	s.tokens = slices.DeleteFunc(s.tokens, func(t client.Token) bool {
		_, ok := drop[t.ID]
		return ok
	})
	s.mu.Unlock()
	return res, nil
}

// BatchValidateTokens validates ids and marks invalid records with the
// INVALID display status. Valid records have their display status cleared.
func (s *Store) BatchValidateTokens(ctx context.Context, ids []string) (_ *client.BatchValidateResult, err error) {
	defer s.begin(msgBatchValidate)(&err)

	res, err := s.api.BatchValidateTokens(ctx, ids)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	for _, r := range res.Results {
		i := s.indexLocked(r.TokenID)
		if i < 0 {
			continue
		}
		if r.IsValid {
			s.tokens[i].StatusDisplay = ""
		} else {
			s.tokens[i].StatusDisplay = client.StatusDisplayInvalid
		}
	}
	s.mu.Unlock()
	return res, nil
}

// BatchRefreshTokens refreshes every record on the server, then reloads the
// default page exactly once.
func (s *Store) BatchRefreshTokens(ctx context.Context) (_ *client.BatchRefreshResult, err error) {
	defer s.begin(msgBatchRefresh)(&err)

	res, err := s.api.BatchRefreshTokens(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.fetch(ctx, DefaultSkip, DefaultLimit); err != nil {
		return nil, err
	}
	return res, nil
}

// ExportTokens downloads ids as a file. The collection is untouched.
func (s *Store) ExportTokens(ctx context.Context, ids []string) (_ *client.ExportFile, err error) {
	defer s.begin(msgExport)(&err)
	return s.api.ExportTokens(ctx, ids)
}

// ImportTokens uploads a token file. The collection is untouched; callers
// refetch to see the new records.
func (s *Store) ImportTokens(ctx context.Context, filename string, r io.Reader) (_ *client.FileImportResponse, err error) {
	defer s.begin(msgImport)(&err)
	return s.api.ImportTokensFromFile(ctx, filename, r)
}

// ImportTokenList creates records from an already decoded list. Like
// ImportTokens it leaves the collection untouched.
func (s *Store) ImportTokenList(ctx context.Context, list []client.TokenCreate) (_ *client.TokenImportResponse, err error) {
	defer s.begin(msgImport)(&err)
	return s.api.ImportTokens(ctx, client.TokenImportRequest{Tokens: list})
}

// FetchStatistics returns the server's aggregate counters.
func (s *Store) FetchStatistics(ctx context.Context) (_ *client.TokenStats, err error) {
	defer s.begin(msgStatistics)(&err)
	return s.api.TokenStatistics(ctx)
}

// ClearError drops the recorded error message.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
}

// Tokens returns a copy of the collection.
func (s *Store) Tokens() []client.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tokens)
}

// Current returns a copy of the current record, or nil.
func (s *Store) Current() *client.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	cur := *s.current
	return &cur
}

// Count is the number of records in the collection.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Valid returns the valid partition of the collection.
func (s *Store) Valid() []client.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterValid.Apply(s.tokens)
}

// Invalid returns the invalid partition of the collection.
func (s *Store) Invalid() []client.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterInvalid.Apply(s.tokens)
}

// Loading reports whether an action is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the message of the last failed action, or "".
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.tokens, func(t client.Token) bool { return t.ID == id })
}

func (s *Store) replaceLocked(id string, tok client.Token) {
	if i := s.indexLocked(id); i >= 0 {
		s.tokens[i] = tok
	}
}
