package analyzer

import "sort"

// DefaultCramSizes are the study list sizes reported by Cram.
var DefaultCramSizes = []int{100, 200, 400, 800}

// CramResult says what learning the Words most frequent unknown lemmas of the
// tier 3 sentences would do.
type CramResult struct {
	Words int
	// Remaining tier 3 sentences after learning the words.
	Remaining int
	// Dropped is the share of tier 3 sentences that leave tier 3; NaN without any.
	Dropped float64
	// Share is Remaining over all sentences; NaN for an empty document.
	Share float64
}

// Cram ranks the unknown lemmas of tier 3 sentences by frequency and, for each
// size, learns the top lemmas and recounts tier 3. The ranking is a single
// greedy frequency pass, so the lists are not minimal covers of the tier 3
// sentences.
func (d *Document) Cram(sizes []int) []CramResult {
	if len(sizes) == 0 {
		sizes = DefaultCramSizes
	}
	var hard []Sentence
	counts := make(map[string]int)
	for _, s := range d.Sentences {
		if Tier(s, d.Known) < MaxTier {
			continue
		}
		hard = append(hard, s)
		for _, l := range Targets(s, d.Known) {
			counts[l]++
		}
	}
	ranked := make([]string, 0, len(counts))
	for l := range counts {
		ranked = append(ranked, l)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	out := make([]CramResult, 0, len(sizes))
	for _, n := range sizes {
		top := ranked[:min(n, len(ranked))]
		known := make(map[string]struct{}, len(d.Known)+len(top))
		for l := range d.Known {
			known[l] = struct{}{}
		}
		for _, l := range top {
			known[l] = struct{}{}
		}
		remaining := 0
		for _, s := range hard {
			if Tier(s, known) == MaxTier {
				remaining++
			}
		}
		out = append(out, CramResult{
			Words:     n,
			Remaining: remaining,
			Dropped:   ratio(len(hard)-remaining, len(hard)),
			Share:     ratio(remaining, len(d.Sentences)),
		})
	}
	return out
}
