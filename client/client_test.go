package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type noSession struct{}

func (noSession) Token() (*oauth2.Token, error) { return nil, ErrNoSession }

type brokenSource struct{}

func (brokenSource) Token() (*oauth2.Token, error) { return nil, errors.New("enclave sealed") }

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew(t *testing.T) {
	t.Run("rejects bad scheme", func(t *testing.T) {
		_, err := New("ftp://example.com")
		require.Error(t, err)
	})
	t.Run("rejects missing host", func(t *testing.T) {
		_, err := New("http://")
		require.Error(t, err)
	})
	t.Run("trims trailing slash", func(t *testing.T) {
		c, err := New("https://tokens.example.com/base/")
		require.NoError(t, err)
		assert.Equal(t, "https://tokens.example.com/base", c.BaseURL())
	})
}

func TestLoginSendsForm(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "admin", r.PostForm.Get("username"))
		assert.Equal(t, "s3cret&x=1", r.PostForm.Get("password"))
		writeTestJSON(w, http.StatusOK, map[string]any{
			"access_token": "tok-1",
			"token_type":   "bearer",
			"user":         map[string]any{"id": "u1", "username": "admin", "is_active": true},
		})
	})
	c := newTestClient(t, mux, WithTokenSource(noSession{}))

	resp, err := c.Login(context.Background(), LoginRequest{Username: "admin", Password: "s3cret&x=1"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", resp.AccessToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, "admin", resp.User.Username)
	assert.True(t, resp.User.IsActive)
}

func TestBearerAndRequestID(t *testing.T) {
	var seen []string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-9", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		seen = append(seen, r.Header.Get(RequestIDHeader))
		writeTestJSON(w, http.StatusOK, map[string]any{"id": "u1", "username": "admin"})
	})
	c := newTestClient(t, mux)
	c.SetTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-9"}))

	for range 2 {
		u, err := c.CurrentUser(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "u1", u.ID)
	}
	require.Len(t, seen, 2)
	assert.NotEmpty(t, seen[0])
	assert.NotEqual(t, seen[0], seen[1])
}

func TestTokenSourceErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("no session sends anonymously", func(t *testing.T) {
		c := newTestClient(t, mux, WithTokenSource(noSession{}))
		require.NoError(t, c.Logout(context.Background()))
	})
	t.Run("other errors abort", func(t *testing.T) {
		c := newTestClient(t, mux, WithTokenSource(brokenSource{}))
		err := c.Logout(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "enclave sealed")
	})
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		detail string
	}{
		{"string detail", http.StatusUnauthorized, `{"detail":"Incorrect username or password"}`, "Incorrect username or password"},
		{"validation detail", http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","tenant_url"],"msg":"field required"}]}`, "tenant_url: field required"},
		{"object detail", http.StatusBadRequest, `{"detail":{"code":7}}`, `{"code":7}`},
		{"plain body", http.StatusBadGateway, "upstream down", "upstream down"},
		{"empty body", http.StatusInternalServerError, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			_, err := c.GetToken(context.Background(), "42")
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, http.MethodGet, apiErr.Method)
			assert.Equal(t, "/api/tokens/42", apiErr.Path)
			assert.Equal(t, tt.detail, apiErr.Detail)
			if tt.detail == "" {
				assert.Equal(t, http.StatusText(tt.status), apiErr.Message())
			}
		})
	}

	assert.True(t, IsUnauthorized(&APIError{StatusCode: http.StatusUnauthorized}))
	assert.False(t, IsUnauthorized(errors.New("boom")))
}

func TestTokenEndpoints(t *testing.T) {
	record := map[string]any{
		"id":             "7",
		"access_token":   "at",
		"tenant_url":     "https://t.example.com",
		"portal_url":     "https://p.example.com",
		"usage_count":    3,
		"status_display": "ACTIVE",
		"is_exhausted":   false,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tokens", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20", r.URL.Query().Get("skip"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		writeTestJSON(w, http.StatusOK, []any{record})
	})
	mux.HandleFunc("POST /api/tokens", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "at", in["access_token"])
		assert.NotContains(t, in, "max_usage")
		writeTestJSON(w, http.StatusOK, record)
	})
	mux.HandleFunc("PUT /api/tokens/{id}", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, map[string]any{"email_note": "ops"}, in)
		writeTestJSON(w, http.StatusOK, record)
	})
	mux.HandleFunc("DELETE /api/tokens/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/tokens/{id}/validate", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]any{"is_valid": false, "message": "banned", "token": record})
	})
	mux.HandleFunc("POST /api/tokens/{id}/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, record)
	})
	mux.HandleFunc("GET /api/tokens/statistics", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]any{"total_tokens": 4, "total_credits": 12.5, "valid_tokens": 3, "debug": map[string]any{}})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	list, err := c.ListTokens(ctx, 20, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].UsageCount)

	created, err := c.CreateToken(ctx, TokenCreate{AccessToken: "at", TenantURL: "https://t.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "7", created.ID)

	note := "ops"
	_, err = c.UpdateToken(ctx, "7", TokenUpdate{EmailNote: &note})
	require.NoError(t, err)

	require.NoError(t, c.DeleteToken(ctx, "7"))

	res, err := c.ValidateToken(ctx, "7")
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, "banned", res.Message)
	assert.Equal(t, "7", res.Token.ID)

	refreshed, err := c.RefreshToken(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", refreshed.StatusDisplay)

	stats, err := c.TokenStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalTokens)
	assert.InDelta(t, 12.5, stats.TotalCredits, 0.001)
	assert.Equal(t, 3, stats.ValidTokens)
}

func TestBatchEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tokens/batch-delete", func(w http.ResponseWriter, r *http.Request) {
		var ids []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ids))
		assert.Equal(t, []string{"1", "2"}, ids)
		writeTestJSON(w, http.StatusOK, map[string]any{"success_count": 2, "failed_count": 0, "errors": []string{}, "message": "ok"})
	})
	mux.HandleFunc("POST /api/tokens/batch-validate", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `[]`, string(body))
		writeTestJSON(w, http.StatusOK, map[string]any{
			"results": []any{map[string]any{"token_id": "1", "is_valid": false, "message": "gone", "error": false}},
		})
	})
	mux.HandleFunc("POST /api/tokens/batch-refresh", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]any{
			"results": []any{
				map[string]any{"token_id": 11, "status": "success", "is_valid": true},
				map[string]any{"token_id": "ab-12", "status": "failed", "error": "timeout"},
			},
			"success_count": 1,
			"failed_count":  1,
		})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	del, err := c.BatchDeleteTokens(ctx, []string{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, 2, del.SuccessCount)

	val, err := c.BatchValidateTokens(ctx, nil)
	require.NoError(t, err)
	require.Len(t, val.Results, 1)
	assert.False(t, val.Results[0].IsValid)

	ref, err := c.BatchRefreshTokens(ctx)
	require.NoError(t, err)
	require.Len(t, ref.Results, 2)
	assert.Equal(t, FlexibleID("11"), ref.Results[0].TokenID)
	require.NotNil(t, ref.Results[0].IsValid)
	assert.True(t, *ref.Results[0].IsValid)
	assert.Equal(t, FlexibleID("ab-12"), ref.Results[1].TokenID)
	assert.Nil(t, ref.Results[1].IsValid)
	assert.Equal(t, "timeout", ref.Results[1].Error)
}

func TestExportTokens(t *testing.T) {
	tests := []struct {
		name        string
		disposition string
		want        string
	}{
		{"server filename", `attachment; filename=tokens_2026.json`, "tokens_2026.json"},
		{"quoted path is reduced", `attachment; filename="../../etc/passwd"`, "passwd"},
		{"missing header", "", DefaultExportFilename},
		{"malformed header", "attachment; filename=", DefaultExportFilename},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/tokens/export", r.URL.Path)
				if tt.disposition != "" {
					w.Header().Set("Content-Disposition", tt.disposition)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `[{"id":"1"}]`)
			}))
			f, err := c.ExportTokens(context.Background(), []string{"1"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Filename)
			assert.Equal(t, `[{"id":"1"}]`, string(f.Data))
		})
	}
}

func TestImportTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tokens/import", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			defer f.Close()
			body, _ := io.ReadAll(f)
			assert.Equal(t, "tokens.json", hdr.Filename)
			assert.Equal(t, `[{"access_token":"a"}]`, string(body))
			writeTestJSON(w, http.StatusOK, map[string]any{
				"message":       "imported",
				"success_count": 1,
				"failed_count":  1,
				"results": []any{
					map[string]any{"success": true, "token_id": 5},
					map[string]any{"success": false, "error": "duplicate", "data": map[string]any{"access_token": "b"}},
				},
			})
			return
		}
		var in TokenImportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Len(t, in.Tokens, 1)
		writeTestJSON(w, http.StatusOK, map[string]any{"success_count": 1, "failed_count": 0, "tokens": []any{map[string]any{"id": "1"}}, "errors": []string{}})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	res, err := c.ImportTokensFromFile(ctx, "/tmp/exports/tokens.json", strings.NewReader(`[{"access_token":"a"}]`))
	require.NoError(t, err)
	assert.Equal(t, "imported", res.Message)
	require.Len(t, res.Results, 2)
	assert.Equal(t, FlexibleID("5"), res.Results[0].TokenID)
	assert.Equal(t, "duplicate", res.Results[1].Error)
	assert.JSONEq(t, `{"access_token":"b"}`, string(res.Results[1].Data))

	jr, err := c.ImportTokens(ctx, TokenImportRequest{Tokens: []TokenCreate{{AccessToken: "a"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, jr.SuccessCount)
	require.Len(t, jr.Tokens, 1)
}

func TestIDEEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ide/supported-editors", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]any{
			"vscode_editors":    []any{map[string]any{"id": "vscode", "name": "VS Code", "icon": "vscode.svg"}},
			"jetbrains_editors": []any{map[string]any{"id": "idea", "name": "IntelliJ IDEA", "icon": "idea.svg"}},
		})
	})
	mux.HandleFunc("POST /api/ide/open-editor", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "idea", in["editor_type"])
		assert.Equal(t, "at", in["token"])
		assert.NotContains(t, in, "portal_url")
		writeTestJSON(w, http.StatusOK, map[string]any{"success": true, "message": "ok", "protocol_url": "jetbrains://idea/x"})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	eds, err := c.SupportedEditors(ctx)
	require.NoError(t, err)
	e, ok := eds.Find("idea")
	require.True(t, ok)
	assert.Equal(t, "IntelliJ IDEA", e.Name)
	_, ok = eds.Find("emacs")
	assert.False(t, ok)

	out, err := c.OpenEditor(ctx, OpenEditorRequestFor("idea", Token{AccessToken: "at", TenantURL: "https://t"}))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "jetbrains://idea/x", out.ProtocolURL)
}
