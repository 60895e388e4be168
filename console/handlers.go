package console

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/tokendesk/client"
	"github.com/jmcleod/tokendesk/internal/util"
	"github.com/jmcleod/tokendesk/tokens"
)

const (
	maxJSONBody   = 1 << 20
	maxImportBody = 16 << 20
)

// SessionResponse describes the console's session.
type SessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	Phase         string       `json:"phase"`
	User          *client.User `json:"user,omitempty"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
}

// LoginRequest is the JSON body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenListResponse is returned from GET /tokens.
type TokenListResponse struct {
	Tokens       []client.Token `json:"tokens"`
	Filter       tokens.Filter  `json:"filter"`
	ValidCount   int            `json:"valid_count"`
	InvalidCount int            `json:"invalid_count"`
	Page         PageMeta       `json:"page"`
}

// IDsRequest is the JSON body of the batch and export endpoints.
type IDsRequest struct {
	IDs []string `json:"ids"`
}

// OpenRequest is the JSON body of POST /tokens/{tokenID}/open.
type OpenRequest struct {
	Editor string `json:"editor"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (c *Console) sessionResponse() SessionResponse {
	resp := SessionResponse{
		Authenticated: c.session.IsAuthenticated(),
		Phase:         c.session.Phase().String(),
		User:          c.session.User(),
	}
	if exp, ok := c.session.ExpiresAt(); ok {
		resp.ExpiresAt = &exp
	}
	return resp
}

// Session reports the current session.
func (c *Console) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.sessionResponse())
}

// Login authenticates against the token service.
func (c *Console) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	username := util.NormalizeUsername(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if _, err := c.session.Login(r.Context(), client.LoginRequest{Username: username, Password: req.Password}); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.sessionResponse())
}

// Logout ends the session. It always succeeds.
func (c *Console) Logout(w http.ResponseWriter, r *http.Request) {
	c.session.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// ListTokens fetches one page and returns the requested partition of it.
func (c *Console) ListTokens(w http.ResponseWriter, r *http.Request) {
	filter, ok := tokens.ParseFilter(r.URL.Query().Get("filter"))
	if !ok {
		writeError(w, http.StatusBadRequest, "filter must be all, valid or invalid")
		return
	}
	skip, limit := parsePagination(r)
	list, err := c.tokens.FetchTokens(r.Context(), skip, limit)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenListResponse{
		Tokens:       filter.Apply(list),
		Filter:       filter,
		ValidCount:   len(tokens.FilterValid.Apply(list)),
		InvalidCount: len(tokens.FilterInvalid.Apply(list)),
		Page:         pageMeta(skip, limit, len(list)),
	})
}

// CreateToken stores a new token.
func (c *Console) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req client.TokenCreate
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" || strings.TrimSpace(req.TenantURL) == "" {
		writeError(w, http.StatusBadRequest, "access_token and tenant_url are required")
		return
	}
	tok, err := c.tokens.CreateToken(r.Context(), req)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tok)
}

// GetToken returns a single token.
func (c *Console) GetToken(w http.ResponseWriter, r *http.Request) {
	tok, err := c.tokens.FetchToken(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// UpdateToken applies a partial update.
func (c *Console) UpdateToken(w http.ResponseWriter, r *http.Request) {
	var req client.TokenUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	tok, err := c.tokens.UpdateToken(r.Context(), chi.URLParam(r, "tokenID"), req)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// DeleteToken removes a token.
func (c *Console) DeleteToken(w http.ResponseWriter, r *http.Request) {
	if err := c.tokens.DeleteToken(r.Context(), chi.URLParam(r, "tokenID")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ValidateToken probes a token against its portal.
func (c *Console) ValidateToken(w http.ResponseWriter, r *http.Request) {
	res, err := c.tokens.ValidateToken(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RefreshToken refreshes a token's portal information.
func (c *Console) RefreshToken(w http.ResponseWriter, r *http.Request) {
	tok, err := c.tokens.RefreshToken(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (c *Console) decodeIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req IDsRequest
	if !decodeJSON(w, r, &req) {
		return nil, false
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids must not be empty")
		return nil, false
	}
	return req.IDs, true
}

// BatchDelete deletes several tokens.
func (c *Console) BatchDelete(w http.ResponseWriter, r *http.Request) {
	ids, ok := c.decodeIDs(w, r)
	if !ok {
		return
	}
	res, err := c.tokens.BatchDeleteTokens(r.Context(), ids)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// BatchValidate validates several tokens.
func (c *Console) BatchValidate(w http.ResponseWriter, r *http.Request) {
	ids, ok := c.decodeIDs(w, r)
	if !ok {
		return
	}
	res, err := c.tokens.BatchValidateTokens(r.Context(), ids)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// BatchRefresh refreshes every token.
func (c *Console) BatchRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := c.tokens.BatchRefreshTokens(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Export streams the exported tokens as an attachment.
func (c *Console) Export(w http.ResponseWriter, r *http.Request) {
	ids, ok := c.decodeIDs(w, r)
	if !ok {
		return
	}
	f, err := c.tokens.ExportTokens(r.Context(), ids)
	if err != nil {
		mapError(w, err)
		return
	}
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Filename}))
	w.WriteHeader(http.StatusOK)
	w.Write(f.Data)
}

// Import forwards an uploaded token file.
func (c *Console) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	res, err := c.tokens.ImportTokens(r.Context(), hdr.Filename, file)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Statistics returns aggregate counters.
func (c *Console) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := c.tokens.FetchStatistics(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListEditors returns the IDE integrations known to the token service.
func (c *Console) ListEditors(w http.ResponseWriter, r *http.Request) {
	eds, err := c.editors.SupportedEditors(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eds)
}

// OpenEditor builds an IDE protocol URL for a token.
func (c *Console) OpenEditor(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Editor == "" {
		writeError(w, http.StatusBadRequest, "editor is required")
		return
	}
	tok, err := c.tokens.FetchToken(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		mapError(w, err)
		return
	}
	res, err := c.editors.OpenEditor(r.Context(), client.OpenEditorRequestFor(req.Editor, *tok))
	if err != nil {
		mapError(w, fmt.Errorf("open %s: %w", req.Editor, err))
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

