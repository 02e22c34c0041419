// Package lemma maps surface words to dictionary base forms.
package lemma

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/japaniel/sieve/pkg/text"
)

// Lemmatizer returns the lemma of word in language. Implementations must not
// panic; on failure they return the input.
type Lemmatizer interface {
	Lemmatize(word, language string) string
}

// Func adapts a plain function to Lemmatizer.
type Func func(word, language string) string

func (f Func) Lemmatize(word, language string) string { return f(word, language) }

const stripped = "?.!«»…,()[]\"“”„;:"

// Normalize removes sentence punctuation, composes the string to NFC and folds
// case with the language's rules (Turkish dotted i and friends).
func Normalize(word, lang string) string {
	w := strings.Map(func(r rune) rune {
		if strings.ContainsRune(stripped, r) {
			return -1
		}
		return r
	}, word)
	w = strings.TrimSpace(norm.NFC.String(w))
	if w == "" {
		return ""
	}
	// A Caser is stateful, so one is made per call.
	return cases.Lower(language.Make(lang)).String(w)
}

// Basic lemmatizes by normalization only. It is the fallback for languages
// without a morphological analyzer.
var Basic Lemmatizer = Func(Normalize)

// Japanese returns the kagome base form of the first non-symbol token.
type Japanese struct {
	// Analyzer defaults to text.SharedAnalyzer.
	Analyzer *text.Analyzer
}

func (j Japanese) Lemmatize(word, lang string) string {
	w := Normalize(word, lang)
	if w == "" {
		return ""
	}
	an := j.Analyzer
	if an == nil {
		var err error
		if an, err = text.SharedAnalyzer(); err != nil {
			return w
		}
	}
	toks, err := an.Analyze(w)
	if err != nil {
		return w
	}
	for _, t := range toks {
		if !t.IsSymbol() {
			return t.BaseForm
		}
	}
	return w
}

// Registry dispatches to a per-language lemmatizer.
type Registry struct {
	mu       sync.RWMutex
	byLang   map[string]Lemmatizer
	fallback Lemmatizer
}

// NewRegistry returns a registry that uses fallback for unregistered languages.
func NewRegistry(fallback Lemmatizer) *Registry {
	if fallback == nil {
		fallback = Basic
	}
	return &Registry{byLang: map[string]Lemmatizer{}, fallback: fallback}
}

// Register sets the lemmatizer for language.
func (r *Registry) Register(language string, l Lemmatizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLang[language] = l
}

func (r *Registry) Lemmatize(word, language string) string {
	r.mu.RLock()
	l, ok := r.byLang[language]
	r.mu.RUnlock()
	if !ok {
		l = r.fallback
	}
	return Safe(l).Lemmatize(word, language)
}

// Default returns the memoized registry used by the CLI.
func Default() *Memo {
	reg := NewRegistry(Basic)
	reg.Register("ja", Japanese{})
	return NewMemo(reg)
}
