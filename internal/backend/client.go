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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"caseforge/internal/casecfg"
	"caseforge/internal/config"
	applog "caseforge/internal/log"
	"caseforge/internal/storage"
)

// Multipart field names of the design upload.
const (
	FieldCase     = "case"
	FieldDocument = "document"
	FieldDesign   = "design"
	FieldStage    = "stage"
)

// DesignEnvelope is the JSON projection of a saved design served by GET /api/designs/{id}.
type DesignEnvelope struct {
	ID        string          `json:"id"`
	Case      casecfg.Case    `json:"case"`
	CreatedAt time.Time       `json:"created_at"`
	Document  json.RawMessage `json:"document"`
}

// SaveResponse is returned by POST /api/designs.
type SaveResponse struct {
	ID string `json:"id"`
}

// StatusError carries a non-2xx response.
type StatusError struct {
	Method, Path string
	Code         int
	Status       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server %s %s: %s", e.Method, e.Path, e.Status)
}

// Client talks to a remote caseforge server. It implements storage.Store so an
// editor can save designs straight to a hosted backend.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
	log     *slog.Logger
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL string, token string) *Client {
	b := strings.TrimRight(baseURL, "/")
	return &Client{
		BaseURL: b,
		Token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     applog.WithComponent("backend").With(slog.String("base_url", b)),
	}
}

// NewClientFromConfig applies timeout and TLS settings and reads the bearer token
// from the OS keychain. A missing token is not an error.
func NewClientFromConfig(cfg config.BackendConfig) (*Client, error) {
	token, err := config.BackendToken()
	if err != nil && !errors.Is(err, config.ErrTokenNotFound) {
		return nil, fmt.Errorf("read backend token: %w", err)
	}
	c := NewClient(cfg.BaseURL, token)
	c.client.Timeout = cfg.EffectiveTimeout()
	if cfg.TLSInsecure {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed dev servers
		c.client.Transport = tr
	}
	return c, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if id, ok := applog.RequestIDFrom(ctx); ok {
		req.Header.Set("X-Request-Id", id)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		se := &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode, Status: resp.Status}
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", storage.ErrNotFound, se)
		}
		return nil, se
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, dest any) error {
	req, err := c.newRequest(ctx, method, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(dest)
}

func (c *Client) getBytes(ctx context.Context, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Catalog fetches the server's case catalog.
func (c *Client) Catalog(ctx context.Context) (casecfg.Catalog, error) {
	var cat casecfg.Catalog
	if err := c.doJSON(ctx, http.MethodGet, "/api/catalog", &cat); err != nil {
		return casecfg.Catalog{}, err
	}
	return cat, nil
}

// Save uploads a design as multipart form data. The server assigns the id, so d.ID is
// not sent.
func (c *Client) Save(ctx context.Context, d storage.Design) (string, error) {
	if len(d.Document) == 0 {
		return "", storage.ErrEmptyDesign
	}
	caseJSON, err := json.Marshal(d.Case)
	if err != nil {
		return "", err
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField(FieldCase, string(caseJSON))
	for _, part := range []struct {
		field, name, ct string
		data            []byte
	}{
		{FieldDocument, "document.json", "application/json", d.Document},
		{FieldDesign, "design.png", "image/png", d.DesignPNG},
		{FieldStage, "stage.png", "image/png", d.StagePNG},
	} {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, part.field, part.name))
		h.Set("Content-Type", part.ct)
		w, err := mw.CreatePart(h)
		if err != nil {
			return "", err
		}
		if _, err := w.Write(part.data); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/designs", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.do(req)
	if err != nil {
		c.log.Error("upload failed", slog.Any("err", err))
		return "", err
	}
	defer resp.Body.Close()
	var out SaveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode save response: %w", err)
	}
	applog.WithDesign(c.log, out.ID).Info("design uploaded")
	return out.ID, nil
}

// Get downloads a design and both of its images.
func (c *Client) Get(ctx context.Context, id string) (storage.Design, error) {
	if !storage.ValidID(id) {
		return storage.Design{}, fmt.Errorf("%w: %q", storage.ErrInvalidID, id)
	}
	base := "/api/designs/" + url.PathEscape(id)
	var env DesignEnvelope
	if err := c.doJSON(ctx, http.MethodGet, base, &env); err != nil {
		return storage.Design{}, err
	}
	d := storage.Design{ID: env.ID, Case: env.Case, CreatedAt: env.CreatedAt, Document: []byte(env.Document)}
	var err error
	if d.DesignPNG, err = c.getBytes(ctx, base+"/design.png"); err != nil {
		return storage.Design{}, err
	}
	if d.StagePNG, err = c.getBytes(ctx, base+"/stage.png"); err != nil {
		return storage.Design{}, err
	}
	return d, nil
}

func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
