package db

// Lookup is a single dictionary lookup event. Timestamp is in epoch seconds.
type Lookup struct {
	ID         int64
	Timestamp  float64
	Word       string
	Lemma      string
	Language   string
	Lemmatized bool
	Source     string
	Success    bool
}

// Content is an imported book, article or subtitle file.
type Content struct {
	ID       int64
	Language string
	Name     string
	Date     int64 // epoch seconds
	Text     string
}

// OverrideState tags how a modifier value came about.
type OverrideState string

const (
	OverrideNeutral OverrideState = "neutral"
	OverrideKnown   OverrideState = "known"
	OverrideUnknown OverrideState = "unknown"
	// OverrideCustom marks values written directly rather than through a toggle.
	OverrideCustom OverrideState = "custom"
)

// Modifier is a per-lemma multiplier on the known-threshold.
type Modifier struct {
	Language string
	Lemma    string
	Value    float64
	State    OverrideState
}

// NeutralModifier is what a missing modifier row reads as.
func NeutralModifier(language, lemma string) Modifier {
	return Modifier{Language: language, Lemma: lemma, Value: 1.0, State: OverrideNeutral}
}

// Note records an attempt to export a word to the flashcard system.
type Note struct {
	ID         int64
	Timestamp  float64
	Word       string
	Sentence   string
	Definition string
	Tags       string
	Success    bool
}

// LemmaTime is one (lemma, timestamp) pair from the lookups table.
type LemmaTime struct {
	Lemma     string
	Timestamp float64
}
