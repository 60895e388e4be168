package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/tokendesk/client"
	"github.com/jmcleod/tokendesk/internal/config"
	"github.com/jmcleod/tokendesk/storage"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func fakeService(t *testing.T) *httptest.Server {
	t.Helper()
	reply := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	user := map[string]any{"id": "u1", "username": "admin", "is_active": true}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("password") != "pw" {
			reply(w, http.StatusUnauthorized, map[string]any{"detail": "Incorrect username or password"})
			return
		}
		reply(w, http.StatusOK, map[string]any{"access_token": "tok-cli", "token_type": "bearer", "user": user})
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-cli" {
			reply(w, http.StatusUnauthorized, map[string]any{"detail": "Not authenticated"})
			return
		}
		reply(w, http.StatusOK, user)
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/tokens", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, []any{
			map[string]any{"id": "1", "email_note": "good", "tenant_url": "https://t1"},
			map[string]any{"id": "2", "email_note": "banned", "tenant_url": "https://t2", "ban_status": "SUSPENDED"},
		})
	})
	mux.HandleFunc("GET /api/tokens/statistics", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusUnauthorized, map[string]any{"detail": "Could not validate credentials"})
	})
	mux.HandleFunc("GET /api/ide/supported-editors", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, map[string]any{
			"vscode_editors":    []any{map[string]any{"id": "vscode", "name": "VS Code"}},
			"jetbrains_editors": []any{},
		})
	})
	mux.HandleFunc("POST /api/tokens/import", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			reply(w, http.StatusBadRequest, map[string]any{"detail": "expected JSON"})
			return
		}
		var req client.TokenImportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			reply(w, http.StatusBadRequest, map[string]any{"detail": err.Error()})
			return
		}
		reply(w, http.StatusOK, map[string]any{"success_count": len(req.Tokens), "failed_count": 0})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCLISessionLifecycle(t *testing.T) {
	srv := fakeService(t)
	dir := t.TempDir()
	base := []string{"--data-dir", dir, "--api-url", srv.URL, "--log-level", "error"}

	_, err := run(t, append(base, "tokens", "list")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")

	t.Setenv("TOKENDESK_PASSWORD", "pw")
	out, err := run(t, append(base, "login", "-u", " admin ")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as admin")

	out, err = run(t, append(base, "tokens", "list", "--filter", "invalid")...)
	require.NoError(t, err)
	assert.Contains(t, out, "banned")
	assert.NotContains(t, out, "good")
	assert.Contains(t, out, "1 shown, 2 fetched (1 valid, 1 invalid)")

	out, err = run(t, append(base, "whoami")...)
	require.NoError(t, err)
	assert.Contains(t, out, "admin")

	_, err = run(t, append(base, "logout")...)
	require.NoError(t, err)

	_, err = run(t, append(base, "whoami")...)
	require.Error(t, err)
}

func TestCLITokenCommands(t *testing.T) {
	srv := fakeService(t)
	dir := t.TempDir()
	base := []string{"--data-dir", dir, "--api-url", srv.URL, "--log-level", "error"}

	t.Setenv("TOKENDESK_PASSWORD", "pw")
	_, err := run(t, append(base, "login", "-u", "admin")...)
	require.NoError(t, err)

	t.Run("rejected session suggests login", func(t *testing.T) {
		_, err := run(t, append(base, "tokens", "stats")...)
		require.Error(t, err)
		assert.True(t, client.IsUnauthorized(err))
		assert.Contains(t, err.Error(), "tokendesk login")
	})

	t.Run("unknown editor is refused", func(t *testing.T) {
		_, err := run(t, append(base, "ide", "open", "1", "--editor", "emacs")...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown editor "emacs"`)
	})

	t.Run("json import", func(t *testing.T) {
		path := filepath.Join(dir, "tokens.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"access_token":"a","tenant_url":"https://t"},{"access_token":"b","tenant_url":"https://t"}]`), 0o600))

		out, err := run(t, append(base, "tokens", "import", path, "--format", "json")...)
		require.NoError(t, err)
		assert.Contains(t, out, "2 imported, 0 failed")

		_, err = run(t, append(base, "tokens", "import", path, "--format", "xml")...)
		require.Error(t, err)
		importFormat = importFormatFile
	})
}

func TestReadTokenList(t *testing.T) {
	list, err := readTokenList(strings.NewReader(`{"tokens":[{"access_token":"a","tenant_url":"https://t"}]}`))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].AccessToken)

	list, err = readTokenList(strings.NewReader(` [{"access_token":"b"}]`))
	require.NoError(t, err)
	assert.Equal(t, "b", list[0].AccessToken)

	_, err = readTokenList(strings.NewReader(`{"tokens":[]}`))
	require.Error(t, err)

	_, err = readTokenList(strings.NewReader(`not json`))
	require.Error(t, err)
}

func TestReadPassword(t *testing.T) {
	pw, err := readPassword(strings.NewReader("s3cret\n"), true)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	pw, err = readPassword(strings.NewReader("no-newline"), true)
	require.NoError(t, err)
	assert.Equal(t, "no-newline", pw)

	_, err = readPassword(strings.NewReader("\n"), true)
	require.Error(t, err)

	t.Setenv("TOKENDESK_PASSWORD", "")
	_, err = readPassword(strings.NewReader(""), false)
	require.Error(t, err)

	t.Setenv("TOKENDESK_PASSWORD", "from-env")
	pw, err = readPassword(nil, false)
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("bolt sealed", func(t *testing.T) {
		c := config.Default(t.TempDir())
		c.Store.Key = strings.Repeat("7f", 32)

		st, err := openStore(ctx, c)
		require.NoError(t, err)
		_, sealed := st.(*storage.Sealed)
		assert.True(t, sealed)
		require.NoError(t, st.Put(ctx, "default", "user", []byte("x")))
		require.NoError(t, st.Close())

		c.Store.Key = ""
		plain, err := openStore(ctx, c)
		require.NoError(t, err)
		defer plain.Close()
		raw, err := plain.Get(ctx, "default", "user")
		require.NoError(t, err)
		assert.NotEqual(t, []byte("x"), raw)
	})

	t.Run("memory", func(t *testing.T) {
		c := config.Default("")
		c.Store.Backend = config.BackendMemory
		st, err := openStore(ctx, c)
		require.NoError(t, err)
		require.NoError(t, st.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		c := config.Default("")
		c.Store.Backend = "etcd"
		_, err := openStore(ctx, c)
		require.ErrorIs(t, err, config.ErrUnknownBackend)
	})
}

func TestOutputHelpers(t *testing.T) {
	limit := 10
	assert.Equal(t, "3/10", usage(client.Token{UsageCount: 3, MaxUsage: &limit}))
	assert.Equal(t, "3/∞", usage(client.Token{UsageCount: 3}))

	assert.Equal(t, "yes", validity(client.Token{}))
	assert.Equal(t, "no", validity(client.Token{BanStatus: client.BanStatusExpired}))
	assert.Equal(t, "limited", validity(client.Token{BanStatus: client.BanStatusUsageLimit}))

	assert.Equal(t, "SUSPENDED", displayStatus(client.Token{BanStatus: client.BanStatusSuspended, StatusDisplay: "x"}))
	assert.Equal(t, "INVALID", displayStatus(client.Token{StatusDisplay: "INVALID"}))
	assert.Equal(t, "-", displayStatus(client.Token{}))
	assert.Equal(t, "SHADOW_BANNED?", displayStatus(client.Token{BanStatus: "SHADOW_BANNED"}))

	assert.Equal(t, "-", expires(client.Token{}))

	var buf bytes.Buffer
	require.NoError(t, printTokens(&buf, []client.Token{{ID: "1", EmailNote: "ops"}, {ID: "tok-without-note"}}))
	assert.Contains(t, buf.String(), "LABEL")
	assert.Contains(t, buf.String(), "ops")
	assert.Equal(t, 2, strings.Count(buf.String(), "tok-without-note"))
}
