// Package knowledge aggregates lookups, content exposure and flashcard
// maturity into per-lemma signal counts, and caches the result.
package knowledge

import (
	"context"
	"time"

	"github.com/japaniel/sieve/pkg/anki"
)

// WordRecord holds the raw signal counts of one lemma.
type WordRecord struct {
	Lemma    string
	Language string
	Seen     int
	// Lookups counts distinct days with a lookup, not lookup events.
	Lookups       int
	MatureTarget  int
	MatureContext int
	YoungTarget   int
	YoungContext  int
}

// FlashcardStatus says where the flashcard counters of a snapshot came from.
type FlashcardStatus string

const (
	FlashcardsDisabled FlashcardStatus = "disabled"
	FlashcardsOK       FlashcardStatus = "ok"
	// FlashcardsStale means the flashcard system failed and the counters were
	// carried over from the previous snapshot.
	FlashcardsStale FlashcardStatus = "stale"
	// FlashcardsUnavailable means the flashcard system failed and there was
	// nothing to carry over; the counters are zero.
	FlashcardsUnavailable FlashcardStatus = "unavailable"
)

// KnownMetadata counts lemmas per signal, for reporting.
type KnownMetadata struct {
	Lookups       int
	Seen          int
	MatureTarget  int
	MatureContext int
	YoungTarget   int
	YoungContext  int
	Flashcards    FlashcardStatus
}

// Snapshot is the aggregation result for one language. It is not modified
// after it is built.
type Snapshot struct {
	Language string
	Records  map[string]WordRecord
	Metadata KnownMetadata
	BuiltAt  time.Time
}

// Record returns the record of lemma; a missing lemma has all-zero signals.
func (s *Snapshot) Record(lemma string) WordRecord {
	if s != nil {
		if r, ok := s.Records[lemma]; ok {
			return r
		}
	}
	lang := ""
	if s != nil {
		lang = s.Language
	}
	return WordRecord{Lemma: lemma, Language: lang}
}

// Source is the part of the event store the aggregator reads.
type Source interface {
	SeenCounts(ctx context.Context, language string) (map[string]int, error)
	LemmaLookupDays(ctx context.Context, language string) (map[string]int, error)
}

// Flashcards is the read-only flashcard system. anki.Client implements it.
type Flashcards interface {
	// Version answers only when the flashcard system is reachable.
	Version(ctx context.Context) (int, error)
	FindNotes(ctx context.Context, query string) ([]int64, error)
	NotesInfo(ctx context.Context, ids []int64) ([]anki.NoteInfo, error)
}
