package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScrapePlainTextPassesThrough(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Title: Example\n\nBody text"))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "key", 0, srv.Client())
	text, err := c.Scrape(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, "Title: Example\n\nBody text", text)
	require.Equal(t, "/https://example.com/a", gotPath)
	require.Equal(t, "Bearer key", gotAuth)
}

func TestScrapeHTMLIsConverted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><script>alert(1)</script><style>p{}</style></head>
			<body><nav>menu</nav><h1>Hello</h1><p>World</p></body></html>`))
	}))
	defer srv.Close()

	text, err := New(srv.URL+"/", "", 0, srv.Client()).Scrape(context.Background(), "x")
	require.NoError(t, err)
	require.Contains(t, text, "# Hello")
	require.Contains(t, text, "World")
	require.NotContains(t, text, "alert")
	require.NotContains(t, text, "menu")
}

func TestScrapeNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL+"/", "", 0, srv.Client()).Scrape(context.Background(), "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 502")
}

func TestScrapeTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	text, err := New(srv.URL+"/", "", 10, srv.Client()).Scrape(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("a", 10)+truncatedMarker, text)
}
