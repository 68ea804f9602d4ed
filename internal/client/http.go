package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// maxBodyExcerpt caps how much of an error response is kept on StatusError.
const maxBodyExcerpt = 512

// StatusError reports a non-2xx response from heaven.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// HTTPClient makes page-relative requests to the heaven web server.
type HTTPClient struct {
	base   *url.URL
	page   *url.URL
	token  string
	client *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g.
// "http://127.0.0.1:3000"). Relative references resolve against the site
// root until At selects a page.
func NewHTTPClient(baseURL, token string, timeout time.Duration) (*HTTPClient, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if base.Path == "" {
		base.Path = "/"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		base:   base,
		page:   base,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// At returns a copy of c whose relative references resolve against
// pagePath, the way a browser resolves links on that page.
func (c *HTTPClient) At(pagePath string) *HTTPClient {
	cp := *c
	cp.page = c.base.ResolveReference(&url.URL{Path: pagePath})
	return &cp
}

// PageURL resolves ref against the current page.
func (c *HTTPClient) PageURL(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return c.page.String() + ref
	}
	return c.page.ResolveReference(u).String()
}

// WebSocketURL resolves ref against the current page with a ws/wss scheme.
func (c *HTTPClient) WebSocketURL(ref string) string {
	u, err := url.Parse(c.PageURL(ref))
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}

// AuthHeader returns the headers to send on the serial handshake.
func (c *HTTPClient) AuthHeader() http.Header {
	h := http.Header{}
	c.setAuth(h)
	return h
}

// FetchFragment GETs ref and returns the body as text.
func (c *HTTPClient) FetchFragment(ctx context.Context, ref string) (string, error) {
	body, err := c.get(ctx, ref)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Abort issues the GET that aborts a job. Only the status is inspected.
func (c *HTTPClient) Abort(ctx context.Context, ref string) error {
	_, err := c.get(ctx, ref)
	return err
}

// PortPath returns the page path of the port labelled label.
func PortPath(label string) string {
	return "/port/" + url.PathEscape(label) + "/"
}

// AbortPath returns the dashboard's abort reference for a job.
func AbortPath(job string) string {
	return PortPath(job) + "abort"
}

func (c *HTTPClient) get(ctx context.Context, ref string) ([]byte, error) {
	target := c.PageURL(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	c.setAuth(req.Header)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: http.MethodGet, URL: target, Code: resp.StatusCode, Body: excerpt(body)}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	return body, nil
}

func (c *HTTPClient) setAuth(h http.Header) {
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
}

// excerpt trims body to at most maxBodyExcerpt bytes without splitting a rune.
func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= maxBodyExcerpt {
		return s
	}
	cut := maxBodyExcerpt
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
