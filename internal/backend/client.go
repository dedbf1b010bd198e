/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gofountain/internal/fountain"
	"gofountain/internal/storage"
)

// Client is a minimal HTTP client for the backend API used by the publish and remote search commands.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout (default 10s).
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithInsecureTLS disables certificate verification. For development servers only.
func WithInsecureTLS() ClientOption {
	return func(c *Client) {
		c.client.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}} //nolint:gosec
	}
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL string, token string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server: %d %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(b))
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, dest any) error {
	var body io.Reader
	ct := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body, ct = bytes.NewReader(b), "application/json"
	}
	resp, err := c.do(ctx, method, path, ct, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// Token requests a signed token for subject and stores it on the client.
func (c *Client) Token(ctx context.Context, subject string, ttl time.Duration) (string, time.Time, error) {
	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	in := map[string]any{"subject": subject, "ttl_seconds": int64(ttl / time.Second)}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/token", in, &out); err != nil {
		return "", time.Time{}, err
	}
	c.Token = out.Token
	return out.Token, out.ExpiresAt, nil
}

// Parse sends source to the server and decodes the returned document.
func (c *Client) Parse(ctx context.Context, source string) (*fountain.Document, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/parse", "text/plain; charset=utf-8", strings.NewReader(source))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return fountain.FromJSON(b)
}

// RenderHTML renders source remotely with the named theme.
func (c *Client) RenderHTML(ctx context.Context, source, theme string, standalone bool) (string, error) {
	q := url.Values{}
	if theme != "" {
		q.Set("theme", theme)
	}
	q.Set("standalone", strconv.FormatBool(standalone))
	resp, err := c.do(ctx, http.MethodPost, "/api/render/html?"+q.Encode(), "text/plain; charset=utf-8", strings.NewReader(source))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	return string(b), err
}

// Publish uploads source. An empty id creates a new script.
func (c *Client) Publish(ctx context.Context, id, source string) (ScriptSummary, error) {
	var out ScriptSummary
	in := map[string]string{"id": id, "source": source}
	err := c.doJSON(ctx, http.MethodPost, "/api/scripts", in, &out)
	return out, err
}

// ListScripts returns published scripts, most recently updated first.
func (c *Client) ListScripts(ctx context.Context) ([]ScriptSummary, error) {
	var list []ScriptSummary
	if err := c.doJSON(ctx, http.MethodGet, "/api/scripts", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetScript fetches one published script.
func (c *Client) GetScript(ctx context.Context, id string) (*Script, error) {
	var sc Script
	if err := c.doJSON(ctx, http.MethodGet, "/api/scripts/"+url.PathEscape(id), nil, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Search queries published elements.
func (c *Client) Search(ctx context.Context, q storage.SearchQuery) ([]storage.SearchResult, error) {
	v := url.Values{}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	for _, t := range q.Types {
		v.Add("type", t)
	}
	if q.Character != "" {
		v.Set("character", q.Character)
	}
	if q.Scene != "" {
		v.Set("scene", q.Scene)
	}
	if q.ScriptID != "" {
		v.Set("script", q.ScriptID)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	var out []storage.SearchResult
	if err := c.doJSON(ctx, http.MethodGet, "/api/search?"+v.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
