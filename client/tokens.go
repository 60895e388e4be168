package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
)

// DefaultExportFilename is used when the export response names no file.
const DefaultExportFilename = "tokens_export.json"

func tokenPath(id string, suffix ...string) string {
	p := "/api/tokens/" + url.PathEscape(id)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

// ListTokens returns one page of token records.
func (c *Client) ListTokens(ctx context.Context, skip, limit int) ([]Token, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))

	var out []Token
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/tokens", query: q}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetToken returns a single token record.
func (c *Client) GetToken(ctx context.Context, id string) (*Token, error) {
	var out Token
	if err := c.do(ctx, request{method: http.MethodGet, path: tokenPath(id)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateToken stores a new token record.
func (c *Client) CreateToken(ctx context.Context, in TokenCreate) (*Token, error) {
	return c.tokenCall(ctx, http.MethodPost, "/api/tokens", in)
}

// UpdateToken applies a partial update to a token record.
func (c *Client) UpdateToken(ctx context.Context, id string, in TokenUpdate) (*Token, error) {
	return c.tokenCall(ctx, http.MethodPut, tokenPath(id), in)
}

// DeleteToken removes a token record.
func (c *Client) DeleteToken(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: tokenPath(id)}, nil)
}

// ValidateToken asks the server to probe the token against its portal.
func (c *Client) ValidateToken(ctx context.Context, id string) (*TokenValidationResult, error) {
	var out TokenValidationResult
	if err := c.do(ctx, request{method: http.MethodPost, path: tokenPath(id, "validate")}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshToken asks the server to refresh the token's portal information.
func (c *Client) RefreshToken(ctx context.Context, id string) (*Token, error) {
	return c.tokenCall(ctx, http.MethodPost, tokenPath(id, "refresh"), nil)
}

func (c *Client) tokenCall(ctx context.Context, method, path string, body any) (*Token, error) {
	req, err := jsonRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	var out Token
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ImportTokens creates token records in bulk from a JSON payload.
func (c *Client) ImportTokens(ctx context.Context, in TokenImportRequest) (*TokenImportResponse, error) {
	if in.Tokens == nil {
		in.Tokens = []TokenCreate{}
	}
	req, err := jsonRequest(http.MethodPost, "/api/tokens/import", in)
	if err != nil {
		return nil, err
	}
	var out TokenImportResponse
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ImportTokensFromFile uploads a token file as the multipart field "file".
func (c *Client) ImportTokensFromFile(ctx context.Context, filename string, r io.Reader) (*FileImportResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req := request{
		method:      http.MethodPost,
		path:        "/api/tokens/import",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}
	var out FileImportResponse
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchDeleteTokens deletes the given token records.
func (c *Client) BatchDeleteTokens(ctx context.Context, ids []string) (*BatchDeleteResult, error) {
	req, err := jsonRequest(http.MethodPost, "/api/tokens/batch-delete", nonNil(ids))
	if err != nil {
		return nil, err
	}
	var out BatchDeleteResult
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchValidateTokens validates the given token records.
func (c *Client) BatchValidateTokens(ctx context.Context, ids []string) (*BatchValidateResult, error) {
	req, err := jsonRequest(http.MethodPost, "/api/tokens/batch-validate", nonNil(ids))
	if err != nil {
		return nil, err
	}
	var out BatchValidateResult
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchRefreshTokens refreshes every token record on the server.
func (c *Client) BatchRefreshTokens(ctx context.Context) (*BatchRefreshResult, error) {
	var out BatchRefreshResult
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/tokens/batch-refresh"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportTokens downloads the given token records as a file.
func (c *Client) ExportTokens(ctx context.Context, ids []string) (*ExportFile, error) {
	req, err := jsonRequest(http.MethodPost, "/api/tokens/export", nonNil(ids))
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export body: %w", err)
	}
	return &ExportFile{
		Filename:    exportFilename(resp.Header.Get("Content-Disposition")),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// TokenStatistics returns aggregate counters over all token records.
func (c *Client) TokenStatistics(ctx context.Context) (*TokenStats, error) {
	var out TokenStats
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/tokens/statistics"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func exportFilename(disposition string) string {
	if disposition == "" {
		return DefaultExportFilename
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return DefaultExportFilename
	}
	name := filepath.Base(params["filename"])
	if name == "" || name == "." || name == "/" {
		return DefaultExportFilename
	}
	return name
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
