package known

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/japaniel/sieve/pkg/db"
	"github.com/japaniel/sieve/pkg/knowledge"
	"github.com/japaniel/sieve/pkg/lemma"
	"github.com/japaniel/sieve/pkg/logger"
)

// Snapshots supplies the current knowledge snapshot; *knowledge.Cache implements it.
type Snapshots interface {
	Get(ctx context.Context) (*knowledge.Snapshot, error)
}

// ModifierStore persists per-lemma overrides; *store.Store implements it.
type ModifierStore interface {
	Modifier(ctx context.Context, language, lemma string) (db.Modifier, error)
	Modifiers(ctx context.Context, language string) (map[string]db.Modifier, error)
	SetModifier(ctx context.Context, m db.Modifier) error
	DeleteModifiers(ctx context.Context, language string) error
}

// Tracker answers known/unknown questions for one language. Reads are best
// effort: a failing snapshot or modifier read is logged and treated as no data.
type Tracker struct {
	Language   string
	Classifier Classifier
	Snapshots  Snapshots
	Modifiers  ModifierStore
	Lemmatizer lemma.Lemmatizer
	Logger     *zap.Logger
}

// Status is the full classification of one lemma.
type Status struct {
	Lemma     string
	Record    knowledge.WordRecord
	Score     int
	Threshold float64
	Modifier  db.Modifier
	Cognate   bool
	Known     bool
}

func (t *Tracker) log() *zap.Logger { return logger.OrNop(t.Logger) }

func (t *Tracker) lemmatize(word string) string {
	if t.Lemmatizer == nil {
		return lemma.Normalize(word, t.Language)
	}
	if l := t.Lemmatizer.Lemmatize(word, t.Language); l != "" {
		return l
	}
	return word
}

func (t *Tracker) snapshot(ctx context.Context) *knowledge.Snapshot {
	snap, err := t.Snapshots.Get(ctx)
	if err != nil {
		t.log().Warn("knowledge snapshot unavailable", zap.Error(err))
		return &knowledge.Snapshot{Language: t.Language}
	}
	return snap
}

func (t *Tracker) modifiers(ctx context.Context) map[string]db.Modifier {
	mods, err := t.Modifiers.Modifiers(ctx, t.Language)
	if err != nil {
		t.log().Warn("modifiers unavailable", zap.Error(err))
		return nil
	}
	return mods
}

// Status classifies word after lemmatizing it.
func (t *Tracker) Status(ctx context.Context, word string) Status {
	l := t.lemmatize(word)
	m, err := t.Modifiers.Modifier(ctx, t.Language, l)
	if err != nil {
		t.log().Warn("modifier unavailable", zap.String("lemma", l), zap.Error(err))
		m = db.NeutralModifier(t.Language, l)
	}
	return t.status(t.snapshot(ctx), l, m)
}

func (t *Tracker) status(snap *knowledge.Snapshot, l string, m db.Modifier) Status {
	r := snap.Record(l)
	return Status{
		Lemma:     l,
		Record:    r,
		Score:     Score(r, t.Classifier.Weights),
		Threshold: t.Classifier.Threshold(l),
		Modifier:  m,
		Cognate:   t.Classifier.IsCognate(l),
		Known:     t.Classifier.IsKnown(r, m.Value),
	}
}

// IsKnown reports whether word's lemma is known.
func (t *Tracker) IsKnown(ctx context.Context, word string) bool {
	return t.Status(ctx, word).Known
}

// KnownSet returns the known lemmas and the cognates among them.
func (t *Tracker) KnownSet(ctx context.Context) (known, cognates []string) {
	return t.Classifier.KnownWords(t.snapshot(ctx), t.modifiers(ctx))
}

// FilterUnknown returns the words whose lemma is not known, in input order.
func (t *Tracker) FilterUnknown(ctx context.Context, words []string) []string {
	snap := t.snapshot(ctx)
	mods := t.modifiers(ctx)
	var out []string
	for _, w := range words {
		l := t.lemmatize(w)
		if !t.Classifier.IsKnown(snap.Record(l), ModifierValue(mods, l)) {
			out = append(out, w)
		}
	}
	return out
}

// Toggle advances word's override one step and persists it.
func (t *Tracker) Toggle(ctx context.Context, word string) (Status, error) {
	cur := t.Status(ctx, word)
	if cur.Lemma == "" {
		return Status{}, fmt.Errorf("%w: %q has no lemma", db.ErrInvalidInput, word)
	}
	m := cur.Modifier
	m.Language, m.Lemma = t.Language, cur.Lemma
	// Classify without the current override so the cycle depends only on
	// the signals.
	computed := t.Classifier.IsKnown(cur.Record, 1.0)
	next := NextOverride(m, computed, cur.Score, cur.Threshold)
	if err := t.Modifiers.SetModifier(ctx, next); err != nil {
		return Status{}, fmt.Errorf("set modifier: %w", err)
	}
	t.log().Info("override changed",
		zap.String("lemma", cur.Lemma),
		zap.String("from", string(cur.Modifier.State)),
		zap.String("to", string(next.State)),
		zap.Float64("value", next.Value))
	return t.status(t.snapshot(ctx), cur.Lemma, next), nil
}

// ResetOverrides removes every override of the language.
func (t *Tracker) ResetOverrides(ctx context.Context) error {
	return t.Modifiers.DeleteModifiers(ctx, t.Language)
}

// Progress is the bounded engagement score over all known lemmas.
func (t *Tracker) Progress(ctx context.Context) float64 {
	return t.Classifier.Progress(t.snapshot(ctx), t.modifiers(ctx))
}
