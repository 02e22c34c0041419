package text

import (
	"sync"
	"unicode"
	"unicode/utf8"
)

// ScriptFilter reports whether a lemma is written in the script expected for a language.
type ScriptFilter func(lemma string) bool

var (
	scriptMu     sync.RWMutex
	scriptTables = map[string]*unicode.RangeTable{
		"ru": unicode.Cyrillic,
		"uk": unicode.Cyrillic,
		"be": unicode.Cyrillic,
		"bg": unicode.Cyrillic,
		"mk": unicode.Cyrillic,
		"sr": unicode.Cyrillic,
		"el": unicode.Greek,
	}
)

// RegisterScript sets the script that lemmas of language must start with.
func RegisterScript(language string, table *unicode.RangeTable) {
	scriptMu.Lock()
	defer scriptMu.Unlock()
	scriptTables[language] = table
}

// ScriptFilterFor returns the filter for language, or nil if the language is
// not script-checked.
func ScriptFilterFor(language string) ScriptFilter {
	scriptMu.RLock()
	table, ok := scriptTables[language]
	scriptMu.RUnlock()
	if !ok {
		return nil
	}
	return func(lemma string) bool {
		r, _ := utf8.DecodeRuneInString(lemma)
		return r != utf8.RuneError && unicode.Is(table, r)
	}
}
