package lemma

import "sync"

type memoKey struct {
	word, language string
}

// Memo caches lemmas and serializes calls into the wrapped lemmatizer, so a
// lemmatizer that is not safe for concurrent use can sit behind a worker pool.
type Memo struct {
	inner Lemmatizer

	call sync.Mutex // held while inner runs

	mu    sync.RWMutex
	cache map[memoKey]string
}

// NewMemo wraps inner.
func NewMemo(inner Lemmatizer) *Memo {
	return &Memo{inner: inner, cache: make(map[memoKey]string)}
}

func (m *Memo) Lemmatize(word, language string) string {
	k := memoKey{word, language}
	m.mu.RLock()
	v, ok := m.cache[k]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.call.Lock()
	v = Safe(m.inner).Lemmatize(word, language)
	m.call.Unlock()

	m.mu.Lock()
	m.cache[k] = v
	m.mu.Unlock()
	return v
}

// Len returns the number of cached entries.
func (m *Memo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

// Reset drops the cache, e.g. after lemmatization rules change.
func (m *Memo) Reset() {
	m.mu.Lock()
	m.cache = make(map[memoKey]string)
	m.mu.Unlock()
}

type safe struct{ inner Lemmatizer }

// Safe wraps l so that a panic inside it yields the input word.
func Safe(l Lemmatizer) Lemmatizer {
	if s, ok := l.(safe); ok {
		return s
	}
	return safe{inner: l}
}

func (s safe) Lemmatize(word, language string) (out string) {
	defer func() {
		if recover() != nil {
			out = word
		}
	}()
	return s.inner.Lemmatize(word, language)
}
