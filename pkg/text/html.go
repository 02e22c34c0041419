package text

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"regexp"

	"github.com/go-shiori/go-readability"
)

var (
	// (?s) allows dot to match newlines
	// (?i) makes it case-insensitive
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)

	reTag = regexp.MustCompile(`(?s)<.*?>`)
)

// SanitizeRuby removes ruby text (<rt>...</rt>) and ruby parentheses (<rp>...</rp>)
// from HTML content. readability extracts all text including furigana, which
// otherwise duplicates words (e.g. "漢字" becomes "漢字かんじ").
// Operating on bytes keeps this safe for Shift_JIS too: <, >, r, t, p are
// ASCII and < is never a trailing byte there.
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, []byte{})
	cleaned = reRP.ReplaceAll(cleaned, []byte{})
	return cleaned
}

// StripTags replaces every HTML tag with a space. Flashcard fields are small
// HTML fragments, so a full parser is not needed.
func StripTags(s string) string {
	return reTag.ReplaceAllString(s, " ")
}

// Article is the readable part of an HTML page.
type Article struct {
	Title    string
	Byline   string
	SiteName string
	Text     string
}

// MaxArticleSize bounds how much HTML ExtractArticle reads.
const MaxArticleSize = 10 * 1024 * 1024

// ExtractArticle pulls the main text out of an HTML document.
func ExtractArticle(r io.Reader, pageURL string) (Article, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxArticleSize+1))
	if err != nil {
		return Article{}, fmt.Errorf("read html: %w", err)
	}
	if len(body) > MaxArticleSize {
		return Article{}, fmt.Errorf("html exceeds %d bytes", MaxArticleSize)
	}
	body = SanitizeRuby(body)

	if pageURL == "" {
		pageURL = "http://localhost/"
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return Article{}, fmt.Errorf("parse url %q: %w", pageURL, err)
	}
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return Article{}, fmt.Errorf("extract article: %w", err)
	}
	return Article{
		Title:    article.Title,
		Byline:   article.Byline,
		SiteName: article.SiteName,
		Text:     article.TextContent,
	}, nil
}
