package client

import (
	"context"
	"net/http"
)

// OpenEditor asks the server for an IDE protocol URL that hands the token
// to the selected editor.
func (c *Client) OpenEditor(ctx context.Context, in OpenEditorRequest) (*OpenEditorResponse, error) {
	req, err := jsonRequest(http.MethodPost, "/api/ide/open-editor", in)
	if err != nil {
		return nil, err
	}
	var out OpenEditorResponse
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SupportedEditors lists the IDE integrations known to the server.
func (c *Client) SupportedEditors(ctx context.Context) (*SupportedEditors, error) {
	var out SupportedEditors
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/ide/supported-editors"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
