// Package apiclient is the authenticated REST client shared by the chat collaborators.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d", e.Status)
	}
	return fmt.Sprintf("api error: %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client issues authenticated requests against the API base URL.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens TokenSource
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New constructs a Client for baseURL, e.g. http://localhost:8080/api.
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api url %q must be absolute", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 60 * time.Second},
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Resolve turns ref into an absolute URL. Absolute URLs pass through, server paths that
// already carry the API prefix resolve against the host, anything else is an endpoint
// below the base URL.
func (c *Client) Resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if strings.HasPrefix(ref, c.base.Path+"/") && c.base.Path != "" {
		return c.base.ResolveReference(u).String(), nil
	}
	joined := *c.base
	joined.Path = c.base.Path + "/" + strings.TrimLeft(u.Path, "/")
	joined.RawQuery = u.RawQuery
	return joined.String(), nil
}

// NewRequest builds a request for ref with the bearer credential attached.
func (c *Client) NewRequest(ctx context.Context, method, ref string, body io.Reader) (*http.Request, error) {
	target, err := c.Resolve(ref)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}
	return req, nil
}

func (c *Client) authorize(req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token()
	if errors.Is(err, ErrNoCredential) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Do sends req and decodes a JSON response into out when out is non-nil.
func (c *Client) Do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		log.Printf("api call failed method=%s path=%s status=%d", req.Method, req.URL.Path, resp.StatusCode)
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// DoJSON sends a JSON body (nil for none) and decodes the JSON response into out.
func (c *Client) DoJSON(ctx context.Context, method, ref string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := c.NewRequest(ctx, method, ref, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.Do(req, out)
}

// Fetch performs an authenticated GET and returns the raw body.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	return data, nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	if gjson.ValidBytes(body) {
		apiErr.Message = gjson.GetBytes(body, "error").String()
	}
	return apiErr
}
