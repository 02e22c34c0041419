package text

import "strings"

// Tokenizer splits text into the word tokens that get lemmatized.
type Tokenizer interface {
	Tokens(text string) []string
}

// Whitespace splits on runs of Unicode white space.
type Whitespace struct{}

func (Whitespace) Tokens(text string) []string { return strings.Fields(text) }

// Japanese tokenizes with kagome and drops symbol tokens, since Japanese text
// has no spaces between words.
type Japanese struct {
	an *Analyzer
}

// NewJapanese returns a Japanese tokenizer backed by an.
func NewJapanese(an *Analyzer) Japanese { return Japanese{an: an} }

func (j Japanese) Tokens(text string) []string {
	toks, err := j.an.Analyze(text)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if t.IsSymbol() {
			continue
		}
		out = append(out, t.Surface)
	}
	return out
}

// TokenizerFor picks the tokenizer for a language code.
func TokenizerFor(language string) (Tokenizer, error) {
	if language == "ja" {
		an, err := SharedAnalyzer()
		if err != nil {
			return nil, err
		}
		return NewJapanese(an), nil
	}
	return Whitespace{}, nil
}
