// Package analyzer rates how hard a text is for a learner with a given set
// of known lemmas.
package analyzer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/japaniel/sieve/pkg/lemma"
	"github.com/japaniel/sieve/pkg/logger"
	"github.com/japaniel/sieve/pkg/metrics"
	"github.com/japaniel/sieve/pkg/text"
)

// DefaultTopSeed is how many of a document's most frequent lemmas count as
// known regardless of the learner's vocabulary.
const DefaultTopSeed = 100

// MaxTier caps the unknown count of a sentence.
const MaxTier = 3

// Sentence is one sentence with its tokens and their non-empty lemmas.
type Sentence struct {
	Text   string
	Tokens []string
	Lemmas []string
}

// Document is a text prepared for analysis. Known is the working known set:
// the learner's lemmas after the script filter plus the document's top lemmas.
type Document struct {
	Language  string
	Text      string
	Chapters  int
	Sentences []Sentence
	// Lemmas is the lemma stream of the whole text in order.
	Lemmas []string
	Known  map[string]struct{}
}

// Analyzer prepares documents. The zero value is not usable; use New.
type Analyzer struct {
	Language   string
	Lemmatizer lemma.Lemmatizer
	Splitter   text.Splitter
	Tokenizer  text.Tokenizer
	// Workers bounds how many chapters are split at once.
	Workers int
	// TopSeed is the number of top document lemmas added to the known set.
	TopSeed int
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// New returns an analyzer for language. Lemmas are memoized; splitMode is
// passed to text.SplitterFor.
func New(language, splitMode string, lem lemma.Lemmatizer) (*Analyzer, error) {
	tok, err := text.TokenizerFor(language)
	if err != nil {
		return nil, fmt.Errorf("tokenizer for %s: %w", language, err)
	}
	if lem == nil {
		lem = lemma.Basic
	}
	if _, ok := lem.(*lemma.Memo); !ok {
		lem = lemma.NewMemo(lem)
	}
	return &Analyzer{
		Language:   language,
		Lemmatizer: lem,
		Splitter:   text.SplitterFor(language, splitMode),
		Tokenizer:  tok,
		Workers:    4,
		TopSeed:    DefaultTopSeed,
		Logger:     zap.NewNop(),
	}, nil
}

// Prepare splits body into chapters and sentences, lemmatizes every token
// and builds the working known set from known.
func (a *Analyzer) Prepare(ctx context.Context, body string, known []string) (*Document, error) {
	start := time.Now()
	log := logger.OrNop(a.Logger)

	chapters := text.SplitChapters(body)
	perChapter := make([][]Sentence, len(chapters))

	g, gctx := errgroup.WithContext(ctx)
	if a.Workers > 0 {
		g.SetLimit(a.Workers)
	}
	for i, ch := range chapters {
		i, ch := i, ch
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perChapter[i] = a.sentences(ch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Debug("document split",
		zap.Int("chapters", len(chapters)),
		zap.Duration("elapsed", time.Since(start)))

	doc := &Document{
		Language: a.Language,
		Text:     strings.Join(chapters, "\n"),
		Chapters: len(chapters),
	}
	for _, ss := range perChapter {
		for _, s := range ss {
			doc.Sentences = append(doc.Sentences, s)
			doc.Lemmas = append(doc.Lemmas, s.Lemmas...)
		}
	}
	doc.Known = a.workingSet(doc.Lemmas, known)

	elapsed := time.Since(start)
	a.Metrics.Analysis(elapsed)
	log.Debug("document prepared",
		zap.Int("sentences", len(doc.Sentences)),
		zap.Int("lemmas", len(doc.Lemmas)),
		zap.Int("known", len(doc.Known)),
		zap.Duration("elapsed", elapsed))
	return doc, nil
}

func (a *Analyzer) sentences(chapter string) []Sentence {
	var out []Sentence
	for _, raw := range a.Splitter.Split(chapter) {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		toks := a.Tokenizer.Tokens(s)
		lemmas := make([]string, 0, len(toks))
		for _, t := range toks {
			if l := a.Lemmatizer.Lemmatize(t, a.Language); l != "" {
				lemmas = append(lemmas, l)
			}
		}
		out = append(out, Sentence{Text: s, Tokens: toks, Lemmas: lemmas})
	}
	return out
}

// workingSet filters known by the language's script and adds the TopSeed most
// frequent lemmas of the stream. Ties go to the lemma seen first.
func (a *Analyzer) workingSet(stream, known []string) map[string]struct{} {
	filter := text.ScriptFilterFor(a.Language)
	set := make(map[string]struct{}, len(known)+a.TopSeed)
	for _, k := range known {
		if filter == nil || filter(k) {
			set[k] = struct{}{}
		}
	}
	for _, l := range TopLemmas(stream, a.TopSeed) {
		set[l] = struct{}{}
	}
	return set
}

// TopLemmas returns the n most frequent lemmas of stream, most frequent
// first, ties broken by first occurrence.
func TopLemmas(stream []string, n int) []string {
	if n <= 0 {
		return nil
	}
	counts := make(map[string]int)
	var order []string
	for _, l := range stream {
		if counts[l] == 0 {
			order = append(order, l)
		}
		counts[l]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	return order
}

// Targets returns the lemmas of s not in known, one per occurrence.
func Targets(s Sentence, known map[string]struct{}) []string {
	var out []string
	for _, l := range s.Lemmas {
		if _, ok := known[l]; !ok {
			out = append(out, l)
		}
	}
	return out
}

// Tier is the number of unknown lemma occurrences in s, capped at MaxTier.
func Tier(s Sentence, known map[string]struct{}) int {
	n := 0
	for _, l := range s.Lemmas {
		if _, ok := known[l]; !ok {
			n++
			if n == MaxTier {
				break
			}
		}
	}
	return n
}

// Tiers returns the tier of every sentence against the working known set.
func (d *Document) Tiers() []int {
	out := make([]int, len(d.Sentences))
	for i, s := range d.Sentences {
		out[i] = Tier(s, d.Known)
	}
	return out
}
