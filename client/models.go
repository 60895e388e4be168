package client

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// User is the authenticated operator as returned by /api/auth/me.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	IsActive    bool   `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// LoginRequest carries the form-encoded credentials for POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned from POST /api/auth/login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

// BanStatus is the server-assigned label explaining why a managed token is
// no longer usable. The zero value means no status was reported.
type BanStatus string

const (
	BanStatusNone         BanStatus = ""
	BanStatusActive       BanStatus = "ACTIVE"
	BanStatusSuspended    BanStatus = "SUSPENDED"
	BanStatusInvalidToken BanStatus = "INVALID_TOKEN"
	BanStatusUnauthorized BanStatus = "UNAUTHORIZED"
	BanStatusForbidden    BanStatus = "FORBIDDEN"
	BanStatusRateLimited  BanStatus = "RATE_LIMITED"
	BanStatusServerError  BanStatus = "SERVER_ERROR"
	BanStatusUnknownError BanStatus = "UNKNOWN_ERROR"
	BanStatusUsageLimit   BanStatus = "USAGE_LIMIT"
	BanStatusExhausted    BanStatus = "EXHAUSTED"
	BanStatusExpired      BanStatus = "EXPIRED"
	BanStatusInvalid      BanStatus = "INVALID"
)

// KnownBanStatuses lists every status the server is known to emit.
var KnownBanStatuses = []BanStatus{
	BanStatusActive,
	BanStatusSuspended,
	BanStatusInvalidToken,
	BanStatusUnauthorized,
	BanStatusForbidden,
	BanStatusRateLimited,
	BanStatusServerError,
	BanStatusUnknownError,
	BanStatusUsageLimit,
	BanStatusExhausted,
	BanStatusExpired,
	BanStatusInvalid,
}

// Known reports whether s is empty or one of KnownBanStatuses.
func (s BanStatus) Known() bool {
	if s == BanStatusNone {
		return true
	}
	for _, k := range KnownBanStatuses {
		if s == k {
			return true
		}
	}
	return false
}

// StatusDisplayInvalid is written into Token.StatusDisplay when a batch
// validation reports the token as invalid.
const StatusDisplayInvalid = "INVALID"

// Token is a managed credential record.
type Token struct {
	ID            string         `json:"id"`
	EmailNote     string         `json:"email_note,omitempty"`
	AccessToken   string         `json:"access_token"`
	TenantURL     string         `json:"tenant_url"`
	PortalURL     string         `json:"portal_url"`
	PortalInfo    map[string]any `json:"portal_info,omitempty"`
	BanStatus     BanStatus      `json:"ban_status,omitempty"`
	UsageCount    int            `json:"usage_count"`
	MaxUsage      *int           `json:"max_usage,omitempty"`
	StatusDisplay string         `json:"status_display"`
	IsExhausted   bool           `json:"is_exhausted"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

// ExpiryDate returns portal_info.expiry_date parsed as RFC 3339.
func (t Token) ExpiryDate() (time.Time, bool) {
	raw, ok := t.PortalInfo["expiry_date"].(string)
	if !ok || raw == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// CreditsBalance returns portal_info.credits_balance when it is numeric.
func (t Token) CreditsBalance() (float64, bool) {
	switch v := t.PortalInfo["credits_balance"].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Label is a short human identifier: the email note when present, else the id.
func (t Token) Label() string {
	if note := strings.TrimSpace(t.EmailNote); note != "" {
		return note
	}
	return t.ID
}

// TokenCreate is the JSON body for POST /api/tokens.
type TokenCreate struct {
	EmailNote   string `json:"email_note,omitempty"`
	AccessToken string `json:"access_token"`
	TenantURL   string `json:"tenant_url"`
	PortalURL   string `json:"portal_url"`
	MaxUsage    *int   `json:"max_usage,omitempty"`
}

// TokenUpdate is the JSON body for PUT /api/tokens/{id}. Nil fields are
// left unchanged by the server.
type TokenUpdate struct {
	EmailNote   *string `json:"email_note,omitempty"`
	AccessToken *string `json:"access_token,omitempty"`
	TenantURL   *string `json:"tenant_url,omitempty"`
	PortalURL   *string `json:"portal_url,omitempty"`
	MaxUsage    *int    `json:"max_usage,omitempty"`
}

// TokenValidationResult is returned from POST /api/tokens/{id}/validate.
type TokenValidationResult struct {
	IsValid bool   `json:"is_valid"`
	Message string `json:"message"`
	Token   Token  `json:"token"`
}

// TokenImportRequest is the JSON body for POST /api/tokens/import.
type TokenImportRequest struct {
	Tokens []TokenCreate `json:"tokens"`
}

// TokenImportResponse is returned from a JSON import.
type TokenImportResponse struct {
	SuccessCount int      `json:"success_count"`
	FailedCount  int      `json:"failed_count"`
	Tokens       []Token  `json:"tokens"`
	Errors       []string `json:"errors"`
}

// FileImportItem is one per-record outcome of a multipart file import.
type FileImportItem struct {
	Success   bool            `json:"success"`
	TokenID   FlexibleID      `json:"token_id,omitempty"`
	EmailNote string          `json:"email_note,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// FileImportResponse is returned from a multipart file import.
type FileImportResponse struct {
	Message      string           `json:"message"`
	SuccessCount int              `json:"success_count"`
	FailedCount  int              `json:"failed_count"`
	Results      []FileImportItem `json:"results"`
}

// BatchDeleteResult is returned from POST /api/tokens/batch-delete.
type BatchDeleteResult struct {
	SuccessCount int      `json:"success_count"`
	FailedCount  int      `json:"failed_count"`
	Errors       []string `json:"errors"`
	Message      string   `json:"message"`
}

// BatchValidateItem is one per-token outcome of a batch validation.
type BatchValidateItem struct {
	TokenID string `json:"token_id"`
	IsValid bool   `json:"is_valid"`
	Message string `json:"message"`
	Error   bool   `json:"error"`
}

// BatchValidateResult is returned from POST /api/tokens/batch-validate.
type BatchValidateResult struct {
	Results      []BatchValidateItem `json:"results"`
	SuccessCount int                 `json:"success_count"`
	FailedCount  int                 `json:"failed_count"`
	Message      string              `json:"message"`
}

// BatchRefreshItem is one per-token outcome of a batch refresh. The server
// only fills the fields relevant to the outcome.
type BatchRefreshItem struct {
	TokenID   FlexibleID `json:"token_id"`
	EmailNote string     `json:"email_note,omitempty"`
	Status    string     `json:"status"`
	IsValid   *bool      `json:"is_valid,omitempty"`
	Message   string     `json:"message,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// BatchRefreshResult is returned from POST /api/tokens/batch-refresh.
type BatchRefreshResult struct {
	Results      []BatchRefreshItem `json:"results"`
	SuccessCount int                `json:"success_count"`
	FailedCount  int                `json:"failed_count"`
	Message      string             `json:"message"`
}

// TokenStats is returned from GET /api/tokens/statistics.
type TokenStats struct {
	TotalTokens      int     `json:"total_tokens"`
	TotalCredits     float64 `json:"total_credits"`
	AvailableCredits float64 `json:"available_credits"`
	UnlimitedTokens  int     `json:"unlimited_tokens"`
	ExpiredTokens    int     `json:"expired_tokens"`
	ValidTokens      int     `json:"valid_tokens"`
}

// ExportFile is the attachment returned from POST /api/tokens/export.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Editor is an IDE the server can build a protocol URL for.
type Editor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// SupportedEditors is returned from GET /api/ide/supported-editors.
type SupportedEditors struct {
	VSCodeEditors    []Editor `json:"vscode_editors"`
	JetBrainsEditors []Editor `json:"jetbrains_editors"`
}

// Find returns the editor with the given id from either family.
func (s SupportedEditors) Find(id string) (Editor, bool) {
	for _, list := range [][]Editor{s.VSCodeEditors, s.JetBrainsEditors} {
		for _, e := range list {
			if e.ID == id {
				return e, true
			}
		}
	}
	return Editor{}, false
}

// OpenEditorRequest is the JSON body for POST /api/ide/open-editor.
type OpenEditorRequest struct {
	EditorType string `json:"editor_type"`
	Token      string `json:"token"`
	TenantURL  string `json:"tenant_url"`
	PortalURL  string `json:"portal_url,omitempty"`
}

// OpenEditorRequestFor builds the open-editor request for a token record.
func OpenEditorRequestFor(editor string, t Token) OpenEditorRequest {
	return OpenEditorRequest{
		EditorType: editor,
		Token:      t.AccessToken,
		TenantURL:  t.TenantURL,
		PortalURL:  t.PortalURL,
	}
}

// OpenEditorResponse is returned from POST /api/ide/open-editor.
type OpenEditorResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ProtocolURL string `json:"protocol_url,omitempty"`
}

// FlexibleID decodes an identifier the server may send either as a JSON
// string or as a JSON number.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(b []byte) error {
	switch {
	case string(b) == "null":
		*id = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("id must be a string or number: %w", err)
		}
		*id = FlexibleID(n.String())
		return nil
	}
}
