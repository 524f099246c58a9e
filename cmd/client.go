// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"grimm.is/sdnlink/internal/linkctl"
	"grimm.is/sdnlink/internal/registry"
)

// Client talks to a running controller's admin API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the API at base, e.g. http://127.0.0.1:8080.
func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is a non-2xx reply.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%d): %s", e.Message, e.Status, e.Details)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// LinksReply is the body of GET /api/v1/links.
type LinksReply struct {
	Default string           `json:"default"`
	Links   []linkctl.Status `json:"links"`
}

// SwitchesReply is the body of GET /api/v1/switches.
type SwitchesReply struct {
	Switches []registry.Info `json:"switches"`
}

// SetLink blocks (down) or unblocks a link. An empty id targets the default link.
func (c *Client) SetLink(ctx context.Context, id string, down bool) (linkctl.Result, error) {
	verb := "up"
	if down {
		verb = "down"
	}
	path := "/link/" + verb
	if id != "" {
		path = "/api/v1/links/" + url.PathEscape(id) + "/" + verb
	}

	var res linkctl.Result
	err := c.do(ctx, http.MethodPost, path, &res)
	return res, err
}

// Links returns every managed link and its state.
func (c *Client) Links(ctx context.Context) (LinksReply, error) {
	var out LinksReply
	err := c.do(ctx, http.MethodGet, "/api/v1/links", &out)
	return out, err
}

// Switches returns the connected switches.
func (c *Client) Switches(ctx context.Context) (SwitchesReply, error) {
	var out SwitchesReply
	err := c.do(ctx, http.MethodGet, "/api/v1/switches", &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach controller at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response from %s %s: %w", method, path, err)
	}
	return nil
}
