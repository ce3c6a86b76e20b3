// Package scraper fetches the readable text of a link through a scraping
// endpoint such as r.jina.ai.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

const truncatedMarker = "\n\n[Content truncated]"

// Client requests <baseURL><link> and returns the body as text. HTML bodies
// are stripped of scripts, styles and navigation and converted to markdown.
type Client struct {
	baseURL  string
	apiKey   string
	maxChars int
	http     *http.Client
}

// New returns a scraper. httpClient may be nil; no timeout is applied beyond
// what the caller's context carries.
func New(baseURL, apiKey string, maxChars int, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		maxChars: maxChars,
		http:     httpClient,
	}
}

// Scrape fetches link through the endpoint. Any non-200 response is an error.
func (c *Client) Scrape(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+link, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "tgsearch/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", link, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", link, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	text := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		if text, err = htmlToMarkdown(body); err != nil {
			return "", err
		}
	}

	if c.maxChars > 0 && len(text) > c.maxChars {
		text = text[:c.maxChars] + truncatedMarker
	}
	return text, nil
}

func htmlToMarkdown(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, nav, noscript, iframe").Remove()

	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}
