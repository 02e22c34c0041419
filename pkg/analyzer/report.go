package analyzer

import (
	"math"
	"unicode/utf8"

	"gonum.org/v1/gonum/stat"
)

// Verdict is the overall difficulty rating of a document.
type Verdict string

const (
	VerdictEasy     Verdict = "easy"
	VerdictModerate Verdict = "moderate"
	VerdictHard     Verdict = "hard"
	VerdictTooHard  Verdict = "too hard"
	// VerdictUnknown is used for a document without sentences.
	VerdictUnknown Verdict = "unknown"
)

// Rate maps the share of tier 3 sentences to a verdict.
func Rate(tier3Share float64) Verdict {
	switch {
	case math.IsNaN(tier3Share):
		return VerdictUnknown
	case tier3Share > 0.15:
		return VerdictTooHard
	case tier3Share > 0.08:
		return VerdictHard
	case tier3Share > 0.03:
		return VerdictModerate
	default:
		return VerdictEasy
	}
}

// Stat is a mean with its sample standard deviation. Stdev is NaN with fewer
// than two samples; Mean is NaN without samples.
type Stat struct {
	Mean  float64
	Stdev float64
}

// Report summarizes a document.
type Report struct {
	Characters int
	Words      int
	Sentences  int
	Chapters   int

	// WordLength.Mean is characters per word including spaces.
	WordLength    Stat
	SentenceChars Stat
	SentenceWords Stat
	Unique3k      Stat
	Unique10k     Stat

	Lemmas        int
	UniqueLemmas  int
	UnknownLemmas int
	UnknownUnique int

	Tiers   [MaxTier + 1]int
	Tier3   float64
	Verdict Verdict
}

// Report computes the summary statistics and the verdict of d.
func (d *Document) Report() Report {
	r := Report{
		Characters: utf8.RuneCountInString(d.Text),
		Sentences:  len(d.Sentences),
		Chapters:   d.Chapters,
		Lemmas:     len(d.Lemmas),
	}

	var wordLens, sentChars, sentWords []float64
	for _, s := range d.Sentences {
		r.Words += len(s.Tokens)
		for _, t := range s.Tokens {
			wordLens = append(wordLens, float64(utf8.RuneCountInString(t)))
		}
		sentChars = append(sentChars, float64(utf8.RuneCountInString(s.Text)))
		sentWords = append(sentWords, float64(len(s.Tokens)))
	}
	r.WordLength = Stat{Mean: ratio(r.Characters, r.Words), Stdev: stdev(wordLens)}
	r.SentenceChars = describe(sentChars)
	r.SentenceWords = describe(sentWords)
	r.Unique3k = describe(uniquePerChunk(d.Lemmas, 3000))
	r.Unique10k = describe(uniquePerChunk(d.Lemmas, 10000))

	unique := make(map[string]struct{})
	unknown := make(map[string]struct{})
	for _, l := range d.Lemmas {
		unique[l] = struct{}{}
		if _, ok := d.Known[l]; !ok {
			r.UnknownLemmas++
			unknown[l] = struct{}{}
		}
	}
	r.UniqueLemmas = len(unique)
	r.UnknownUnique = len(unknown)

	for _, t := range d.Tiers() {
		r.Tiers[t]++
	}
	r.Tier3 = ratio(r.Tiers[MaxTier], r.Sentences)
	r.Verdict = Rate(r.Tier3)
	return r
}

func uniquePerChunk(stream []string, size int) []float64 {
	var out []float64
	for start := 0; start < len(stream); start += size {
		set := make(map[string]struct{})
		for _, l := range stream[start:min(start+size, len(stream))] {
			set[l] = struct{}{}
		}
		out = append(out, float64(len(set)))
	}
	return out
}

func describe(xs []float64) Stat {
	if len(xs) == 0 {
		return Stat{Mean: math.NaN(), Stdev: math.NaN()}
	}
	return Stat{Mean: stat.Mean(xs, nil), Stdev: stdev(xs)}
}

func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	return stat.StdDev(xs, nil)
}
