package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestPageURLResolvesLikeABrowser(t *testing.T) {
	c, err := NewHTTPClient("http://heaven.lab:3000", "", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		page string
		ref  string
		want string
	}{
		{"root fragment", "/", "portstatus.html", "http://heaven.lab:3000/portstatus.html"},
		{"port fragment", PortPath("sw1-p3"), "header.html", "http://heaven.lab:3000/port/sw1-p3/header.html"},
		{"port abort", PortPath("sw1-p3"), "abort", "http://heaven.lab:3000/port/sw1-p3/abort"},
		{"absolute abort", "/", AbortPath("sw1-p3"), "http://heaven.lab:3000/port/sw1-p3/abort"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.At(tt.page).PageURL(tt.ref)
			if got != tt.want {
				t.Errorf("PageURL(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestWebSocketURL(t *testing.T) {
	c, _ := NewHTTPClient("https://heaven.lab", "", time.Second)
	got := c.At(PortPath("a")).WebSocketURL("serial")
	if got != "wss://heaven.lab/port/a/serial" {
		t.Errorf("WebSocketURL = %q", got)
	}

	c, _ = NewHTTPClient("http://127.0.0.1:3000", "", time.Second)
	got = c.At(PortPath("a")).WebSocketURL("serial")
	if got != "ws://127.0.0.1:3000/port/a/serial" {
		t.Errorf("WebSocketURL = %q", got)
	}
}

func TestNewHTTPClientRejectsBadScheme(t *testing.T) {
	if _, err := NewHTTPClient("ftp://heaven", "", time.Second); err == nil {
		t.Error("expected error for ftp scheme")
	}
}

func TestFetchFragment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/port/p1/header.html":
			w.Write([]byte("<table><tr><td>p1</td></tr></table>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, "tok", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	page := c.At(PortPath("p1"))

	body, err := page.FetchFragment(context.Background(), "header.html")
	if err != nil {
		t.Fatalf("FetchFragment: %v", err)
	}
	if !strings.Contains(body, "<td>p1</td>") {
		t.Errorf("unexpected body %q", body)
	}

	_, err = page.FetchFragment(context.Background(), "devinfo.html")
	if !IsStatus(err, http.StatusNotFound) {
		t.Errorf("expected 404 StatusError, got %v", err)
	}
}

func TestAbortReportsStatus(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path == "/port/busy/abort" {
			http.Error(w, "port locked", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := NewHTTPClient(srv.URL, "", time.Second)

	if err := c.At(PortPath("idle")).Abort(context.Background(), "abort"); err != nil {
		t.Errorf("Abort(idle): %v", err)
	}

	err := c.Abort(context.Background(), AbortPath("busy"))
	if !IsStatus(err, http.StatusConflict) {
		t.Fatalf("expected 409 StatusError, got %v", err)
	}
	if !strings.Contains(err.Error(), "port locked") {
		t.Errorf("error should carry body excerpt: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 requests, got %d", calls)
	}
}

func TestAbortNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := NewHTTPClient(url, "", 200*time.Millisecond)
	err := c.Abort(context.Background(), "abort")
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	if IsStatus(err, 0) {
		t.Error("network error must not look like a StatusError")
	}
}

func TestStatusErrorExcerptKeepsRunesWhole(t *testing.T) {
	// The byte limit falls inside a two-byte rune.
	body := "x" + strings.Repeat("ü€", maxBodyExcerpt)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, body, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := NewHTTPClient(srv.URL, "", time.Second)
	_, err := c.FetchFragment(context.Background(), "header.html")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if len(se.Body) > maxBodyExcerpt {
		t.Errorf("excerpt is %d bytes, limit %d", len(se.Body), maxBodyExcerpt)
	}
	if !utf8.ValidString(se.Body) {
		t.Errorf("excerpt is not valid UTF-8: %q", se.Body[len(se.Body)-4:])
	}
	if !strings.HasPrefix(body, se.Body) {
		t.Error("excerpt is not a prefix of the body")
	}
}
