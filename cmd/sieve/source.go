package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/japaniel/sieve/pkg/text"
)

// document is a text to import or analyze.
type document struct {
	Title string
	Body  string
}

func isURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}

// readSource loads arg as a web page, an HTML file or a plain text file.
func (a *app) readSource(ctx context.Context, arg string) (document, error) {
	if isURL(arg) {
		return a.fetchArticle(ctx, arg)
	}
	raw, err := os.ReadFile(arg)
	if err != nil {
		return document{}, err
	}
	name := strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
	switch strings.ToLower(filepath.Ext(arg)) {
	case ".html", ".htm", ".xhtml":
		article, err := text.ExtractArticle(bytes.NewReader(raw), "")
		if err != nil {
			return document{}, err
		}
		if article.Title == "" {
			article.Title = name
		}
		return document{Title: article.Title, Body: article.Text}, nil
	}
	return document{Title: name, Body: string(raw)}, nil
}

func (a *app) fetchArticle(ctx context.Context, pageURL string) (document, error) {
	a.log.Info("fetching", zap.String("url", pageURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return document{}, fmt.Errorf("create request: %w", err)
	}
	// Mimic a desktop browser; some sites answer 403 to obvious bots.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := a.http.Do(req)
	if err != nil {
		return document{}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return document{}, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}
	if resp.ContentLength > text.MaxArticleSize {
		return document{}, fmt.Errorf("content-length %d exceeds limit of %d bytes", resp.ContentLength, text.MaxArticleSize)
	}

	article, err := text.ExtractArticle(resp.Body, pageURL)
	if err != nil {
		return document{}, err
	}
	title := article.Title
	if title == "" {
		title = pageURL
	}
	a.log.Debug("article extracted", zap.String("title", title), zap.Int("chars", len(article.Text)))
	return document{Title: title, Body: article.Text}, nil
}
