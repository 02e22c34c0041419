package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/japaniel/sieve/pkg/anki"
	"github.com/japaniel/sieve/pkg/lemma"
	"github.com/japaniel/sieve/pkg/logger"
	"github.com/japaniel/sieve/pkg/metrics"
	"github.com/japaniel/sieve/pkg/text"
)

// Config selects the language and flashcard queries of an Aggregator.
type Config struct {
	Language          string
	FlashcardsEnabled bool
	MatureQuery       string
	YoungQuery        string
	FieldMap          FieldMap
	// FlashcardTimeout bounds all flashcard requests of one build. Zero means no bound.
	FlashcardTimeout  time.Duration
}

// Aggregator builds snapshots from the event store and the flashcard system.
type Aggregator struct {
	Config
	Source     Source
	Flashcards Flashcards
	Lemmatizer lemma.Lemmatizer
	// Tokenizer picks the tokenizer for context fields. nil means text.TokenizerFor.
	Tokenizer func(language string) (text.Tokenizer, error)
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	// Now stamps snapshots. nil means time.Now.
	Now func() time.Time
}

func (a *Aggregator) log() *zap.Logger { return logger.OrNop(a.Logger) }

func (a *Aggregator) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

// Build aggregates a fresh snapshot. prev, the last good snapshot if any,
// supplies flashcard counters when the flashcard system cannot be reached.
// Only event store errors fail the build.
func (a *Aggregator) Build(ctx context.Context, prev *Snapshot) (*Snapshot, error) {
	start := time.Now()
	lang := a.Language
	records := make(map[string]WordRecord)
	get := func(l string) WordRecord {
		r, ok := records[l]
		if !ok {
			r = WordRecord{Lemma: l, Language: lang}
		}
		return r
	}

	days, err := a.Source.LemmaLookupDays(ctx, lang)
	if err != nil {
		return nil, fmt.Errorf("lookup days: %w", err)
	}
	for l, n := range days {
		r := get(l)
		r.Lookups = n
		records[l] = r
	}
	a.log().Debug("lookup signal loaded", zap.Int("lemmas", len(days)), zap.Duration("elapsed", time.Since(start)))

	seen, err := a.Source.SeenCounts(ctx, lang)
	if err != nil {
		return nil, fmt.Errorf("seen counts: %w", err)
	}
	for l, n := range seen {
		r := get(l)
		r.Seen = n
		records[l] = r
	}
	a.log().Debug("exposure signal loaded", zap.Int("lemmas", len(seen)), zap.Duration("elapsed", time.Since(start)))

	status := FlashcardsDisabled
	if a.FlashcardsEnabled && a.Flashcards != nil {
		cards, err := a.flashcardCounts(ctx)
		switch {
		case err == nil:
			status = FlashcardsOK
		case prev != nil && prev.Language == lang:
			status = FlashcardsStale
			cards = carryFlashcards(prev)
		default:
			status = FlashcardsUnavailable
		}
		if err != nil {
			a.Metrics.FlashcardFailure()
			a.log().Warn("flashcard system unavailable",
				zap.String("flashcards", string(status)),
				zap.Error(err))
		}
		for l, c := range cards {
			r := get(l)
			r.MatureTarget, r.MatureContext = c.MatureTarget, c.MatureContext
			r.YoungTarget, r.YoungContext = c.YoungTarget, c.YoungContext
			records[l] = r
		}
	}

	snap := &Snapshot{Language: lang, Records: records, BuiltAt: a.now()}
	for l, r := range records {
		if !isLexical(l) {
			delete(records, l)
			continue
		}
		countSignals(&snap.Metadata, r)
	}
	snap.Metadata.Flashcards = status

	elapsed := time.Since(start)
	a.Metrics.Snapshot(string(status), elapsed)
	a.log().Debug("snapshot built",
		zap.String("language", lang),
		zap.Int("lemmas", len(records)),
		zap.String("flashcards", string(status)),
		zap.Duration("elapsed", elapsed))
	return snap, nil
}

func countSignals(m *KnownMetadata, r WordRecord) {
	if r.Lookups > 0 {
		m.Lookups++
	}
	if r.Seen > 0 {
		m.Seen++
	}
	if r.MatureTarget > 0 {
		m.MatureTarget++
	}
	if r.MatureContext > 0 {
		m.MatureContext++
	}
	if r.YoungTarget > 0 {
		m.YoungTarget++
	}
	if r.YoungContext > 0 {
		m.YoungContext++
	}
}

func carryFlashcards(prev *Snapshot) map[string]WordRecord {
	out := make(map[string]WordRecord)
	for l, r := range prev.Records {
		if r.MatureTarget|r.MatureContext|r.YoungTarget|r.YoungContext != 0 {
			out[l] = r
		}
	}
	return out
}

// flashcardCounts returns records carrying only flashcard counters.
func (a *Aggregator) flashcardCounts(ctx context.Context) (map[string]WordRecord, error) {
	if a.FlashcardTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.FlashcardTimeout)
		defer cancel()
	}
	version, err := a.Flashcards.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("reach flashcard system: %w", err)
	}
	a.log().Debug("flashcard system reachable", zap.Int("version", version))

	mature, err := a.Flashcards.FindNotes(ctx, a.MatureQuery)
	if err != nil {
		return nil, fmt.Errorf("find mature notes: %w", err)
	}
	young, err := a.Flashcards.FindNotes(ctx, a.YoungQuery)
	if err != nil {
		return nil, fmt.Errorf("find young notes: %w", err)
	}
	// A note matching both queries counts as mature only.
	isMature := make(map[int64]struct{}, len(mature))
	for _, id := range mature {
		isMature[id] = struct{}{}
	}
	var youngOnly []int64
	for _, id := range young {
		if _, ok := isMature[id]; !ok {
			youngOnly = append(youngOnly, id)
		}
	}

	matureInfo, err := a.Flashcards.NotesInfo(ctx, mature)
	if err != nil {
		return nil, fmt.Errorf("mature notes info: %w", err)
	}
	youngInfo, err := a.Flashcards.NotesInfo(ctx, youngOnly)
	if err != nil {
		return nil, fmt.Errorf("young notes info: %w", err)
	}

	tok, err := a.tokenizer()
	if err != nil {
		return nil, err
	}
	out := make(map[string]WordRecord)
	bump := func(l string, f func(*WordRecord)) {
		r := out[l]
		r.Lemma, r.Language = l, a.Language
		f(&r)
		out[l] = r
	}
	for _, n := range matureInfo {
		a.countNote(n, tok, func(l string) { bump(l, func(r *WordRecord) { r.MatureTarget++ }) },
			func(l string) { bump(l, func(r *WordRecord) { r.MatureContext++ }) })
	}
	for _, n := range youngInfo {
		a.countNote(n, tok, func(l string) { bump(l, func(r *WordRecord) { r.YoungTarget++ }) },
			func(l string) { bump(l, func(r *WordRecord) { r.YoungContext++ }) })
	}
	a.log().Debug("flashcard signal loaded",
		zap.Int("mature_notes", len(matureInfo)),
		zap.Int("young_notes", len(youngInfo)))
	return out, nil
}

// countNote calls target once for the note's word and contextWord once per
// distinct context lemma other than the word.
func (a *Aggregator) countNote(n anki.NoteInfo, tok text.Tokenizer, target, contextWord func(string)) {
	roles, ok := a.FieldMap.Lookup(n.ModelName)
	if !ok {
		return
	}
	var word string
	if f := roles.word(); f != "" {
		if v, ok := n.Field(f); ok {
			// The word field already holds a lemma.
			word = lemma.Normalize(text.StripTags(v), a.Language)
		}
	}
	if word != "" {
		target(word)
	}
	f := roles.context()
	if f == "" {
		return
	}
	v, ok := n.Field(f)
	if !ok {
		return
	}
	lem := a.Lemmatizer
	if lem == nil {
		lem = lemma.Basic
	}
	seen := make(map[string]struct{})
	for _, t := range tok.Tokens(text.StripTags(v)) {
		l := lem.Lemmatize(t, a.Language)
		if l == "" || l == word {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		contextWord(l)
	}
}

func (a *Aggregator) tokenizer() (text.Tokenizer, error) {
	if a.Tokenizer != nil {
		return a.Tokenizer(a.Language)
	}
	return text.TokenizerFor(a.Language)
}

// isLexical rejects URLs, multi-word entries and punctuation runs.
func isLexical(l string) bool {
	if l == "" || strings.Contains(l, "://") || strings.HasPrefix(l, "www.") {
		return false
	}
	for _, r := range l {
		if unicode.IsSpace(r) || !(unicode.IsLetter(r) || unicode.IsMark(r)) {
			return false
		}
	}
	return true
}
