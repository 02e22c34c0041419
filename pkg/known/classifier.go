// Package known decides whether a lemma is known from its signal counts.
package known

import (
	"math"
	"sort"

	"github.com/japaniel/sieve/pkg/db"
	"github.com/japaniel/sieve/pkg/knowledge"
)

// Weights multiply each signal count of a WordRecord.
type Weights struct {
	Seen          int `mapstructure:"seen" validate:"gte=0"`
	Lookup        int `mapstructure:"lookup" validate:"gte=0"`
	MatureTarget  int `mapstructure:"mature_target" validate:"gte=0"`
	MatureContext int `mapstructure:"mature_context" validate:"gte=0"`
	YoungTarget   int `mapstructure:"young_target" validate:"gte=0"`
	YoungContext  int `mapstructure:"young_context" validate:"gte=0"`
}

// DefaultWeights are the stock signal weights.
func DefaultWeights() Weights {
	return Weights{Seen: 8, Lookup: 15, MatureTarget: 70, MatureContext: 30, YoungTarget: 40, YoungContext: 20}
}

// Thresholds are the scores a lemma needs to be known.
type Thresholds struct {
	Known   int `mapstructure:"known" validate:"gt=0"`
	Cognate int `mapstructure:"cognate" validate:"gt=0,ltefield=Known"`
}

// DefaultThresholds are the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Known: 100, Cognate: 25}
}

// Score is the weighted sum of r's signals. No signal is capped.
func Score(r knowledge.WordRecord, w Weights) int {
	return w.Seen*r.Seen +
		w.Lookup*r.Lookups +
		w.MatureTarget*r.MatureTarget +
		w.MatureContext*r.MatureContext +
		w.YoungTarget*r.YoungTarget +
		w.YoungContext*r.YoungContext
}

// Classifier applies weights, thresholds, cognates and modifiers. The zero
// Cognates set means no lemma is a cognate.
type Classifier struct {
	Weights    Weights
	Thresholds Thresholds
	Cognates   map[string]struct{}
}

// NewClassifier returns a classifier with the default weights and thresholds.
func NewClassifier(cognates map[string]struct{}) Classifier {
	return Classifier{Weights: DefaultWeights(), Thresholds: DefaultThresholds(), Cognates: cognates}
}

func (c Classifier) IsCognate(lemma string) bool {
	_, ok := c.Cognates[lemma]
	return ok
}

// Threshold is the base threshold of lemma, before its modifier.
func (c Classifier) Threshold(lemma string) float64 {
	if c.IsCognate(lemma) {
		return float64(c.Thresholds.Cognate)
	}
	return float64(c.Thresholds.Known)
}

// IsKnown reports whether r clears the threshold of its lemma scaled by modifier.
func (c Classifier) IsKnown(r knowledge.WordRecord, modifier float64) bool {
	return float64(Score(r, c.Weights)) >= c.Threshold(r.Lemma)*modifier
}

// ModifierValue returns the stored modifier of lemma or the neutral 1.0.
func ModifierValue(mods map[string]db.Modifier, lemma string) float64 {
	if m, ok := mods[lemma]; ok {
		return m.Value
	}
	return 1.0
}

// KnownWords returns the sorted known lemmas of snap and the cognates among
// them. Lemmas without any signal are included when a modifier of 0 forces
// them known.
func (c Classifier) KnownWords(snap *knowledge.Snapshot, mods map[string]db.Modifier) (known, cognates []string) {
	visit := func(r knowledge.WordRecord) {
		if !c.IsKnown(r, ModifierValue(mods, r.Lemma)) {
			return
		}
		known = append(known, r.Lemma)
		if c.IsCognate(r.Lemma) {
			cognates = append(cognates, r.Lemma)
		}
	}
	var records map[string]knowledge.WordRecord
	if snap != nil {
		records = snap.Records
	}
	for _, r := range records {
		visit(r)
	}
	for l := range mods {
		if _, ok := records[l]; !ok {
			visit(snap.Record(l))
		}
	}
	sort.Strings(known)
	sort.Strings(cognates)
	return known, cognates
}

// Progress sums min(score, threshold)/threshold over known lemmas, so each
// known lemma adds at most 1.
func (c Classifier) Progress(snap *knowledge.Snapshot, mods map[string]db.Modifier) float64 {
	known, _ := c.KnownWords(snap, mods)
	var total float64
	for _, l := range known {
		thr := c.Threshold(l)
		total += math.Min(float64(Score(snap.Record(l), c.Weights)), thr) / thr
	}
	return total
}
