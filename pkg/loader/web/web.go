// Package web extracts readable article text from HTML and fetches pages
// over HTTP.
package web

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/loader"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/sync/singleflight"
)

const maxBody = 20 << 20

var placeholderURL, _ = url.Parse("http://localhost/")

// Parser renders the main content of an HTML page to plain text.
type Parser struct{}

func (Parser) Parse(ctx context.Context, data []byte) (loader.Parsed, error) {
	text, err := readableText(bytes.NewReader(data), placeholderURL)
	if err != nil {
		return loader.Parsed{}, err
	}
	return loader.Parsed{Text: text}, nil
}

func readableText(r io.Reader, pageURL *url.URL) (string, error) {
	article, err := readability.FromReader(r, pageURL)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var builder strings.Builder
	if err := article.RenderText(&builder); err != nil {
		return "", fmt.Errorf("render article text: %w", err)
	}
	return builder.String(), nil
}

// Source fetches URLs. Responses are cached per URL and concurrent fetches
// of the same URL are collapsed.
type Source struct {
	client *http.Client

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

func NewSource(client *http.Client) *Source {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Source{client: client, cache: make(map[string][]byte)}
}

func (s *Source) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	s.cacheMu.RLock()
	if cached, ok := s.cache[rawURL]; ok {
		s.cacheMu.RUnlock()
		return cached, nil
	}
	s.cacheMu.RUnlock()

	result, err, _ := s.group.Do(rawURL, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch url: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("fetch url: status %d", resp.StatusCode)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, err
		}

		s.cacheMu.Lock()
		s.cache[rawURL] = data
		s.cacheMu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// IsURL reports whether name looks like an http(s) URL.
func IsURL(name string) bool {
	return strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://")
}
