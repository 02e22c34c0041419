package text

import (
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"
)

// Splitter segments a block of text into sentences.
type Splitter interface {
	Split(text string) []string
}

// DefaultTerminators ends a sentence on Latin and CJK full stops and on newlines.
const DefaultTerminators = ".!?…。！？\n"

// TerminatorSplitter cuts after any rune in Terminators. Closing quotes and
// brackets directly after a terminator stay with the sentence they close.
type TerminatorSplitter struct {
	Terminators string
}

func (s TerminatorSplitter) Split(text string) []string {
	terms := s.Terminators
	if terms == "" {
		terms = DefaultTerminators
	}
	var sentences []string
	var current strings.Builder
	pending := false

	flush := func() {
		if t := strings.TrimSpace(current.String()); t != "" {
			sentences = append(sentences, t)
		}
		current.Reset()
		pending = false
	}

	for _, r := range text {
		if pending && !strings.ContainsRune(closers, r) && !strings.ContainsRune(terms, r) {
			flush()
		}
		current.WriteRune(r)
		if strings.ContainsRune(terms, r) {
			pending = true
		}
	}
	flush()
	return sentences
}

const closers = `"')]»」』”’`

// ProseSplitter uses prose's punkt-based segmenter, which knows English
// abbreviations. It falls back to Fallback if prose rejects the input.
type ProseSplitter struct {
	Fallback Splitter
}

func (s ProseSplitter) Split(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTokenization(false),
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err != nil {
		fb := s.Fallback
		if fb == nil {
			fb = TerminatorSplitter{}
		}
		return fb.Split(text)
	}
	var out []string
	for _, sent := range doc.Sentences() {
		// prose keeps paragraph breaks inside a sentence; treat them as boundaries.
		for _, line := range strings.Split(sent.Text, "\n") {
			if t := strings.TrimSpace(line); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

// SplitterFor returns the sentence splitter for language. mode is "auto",
// "prose" or "terminator"; auto uses prose for English only.
func SplitterFor(language, mode string) Splitter {
	switch mode {
	case "prose":
		return ProseSplitter{}
	case "terminator":
		return TerminatorSplitter{}
	}
	if language == "en" {
		return ProseSplitter{}
	}
	return TerminatorSplitter{}
}

var chapterBreak = regexp.MustCompile(`\f|\n[ \t]*\n[ \t]*\n\s*`)

// SplitChapters cuts plain text into sections at form feeds or at two or more
// consecutive blank lines. Empty sections are dropped.
func SplitChapters(text string) []string {
	var out []string
	for _, part := range chapterBreak.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			out = append(out, part)
		}
	}
	return out
}
