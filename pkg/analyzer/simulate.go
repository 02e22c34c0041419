package analyzer

import (
	"math"
	"math/rand/v2"
	"sort"
)

// Simulation defaults.
const (
	DefaultSentenceWindow = 80
	DefaultLearningRate   = 0.4
)

// SimulationOptions configures Simulate.
type SimulationOptions struct {
	// LearningRate in [0, 1] is the share of 1T sentences studied per window;
	// tier t sentences are studied at LearningRate^t.
	LearningRate float64
	// Window is the number of sentences per window.
	Window int
	// Seed makes the sampling reproducible.
	Seed uint64
}

// WindowStats is the tier mix of one window of sentences.
type WindowStats struct {
	Start     int
	Sentences int
	// Fractions[t] is the share of tier t sentences; NaN for an empty window.
	Fractions [MaxTier + 1]float64
	// Known is the size of the simulated known set after the window.
	Known int
}

// Simulation is the result of Simulate.
type Simulation struct {
	Windows []WindowStats
	// Totals[t] counts tier t sentences over all windows, each measured when
	// its window was reached.
	Totals  [MaxTier + 1]int
	Learned []string
}

// Simulate walks the sentences window by window. In each window it studies a
// random sample of every tier's sentences and adds their unknown lemmas to a
// growing copy of the known set before moving on.
func (d *Document) Simulate(opts SimulationOptions) Simulation {
	if opts.Window <= 0 {
		opts.Window = DefaultSentenceWindow
	}
	rate := math.Min(math.Max(opts.LearningRate, 0), 1)
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	known := make(map[string]struct{}, len(d.Known))
	for l := range d.Known {
		known[l] = struct{}{}
	}
	learned := make(map[string]struct{})

	var sim Simulation
	for start := 0; start < len(d.Sentences); start += opts.Window {
		end := min(start+opts.Window, len(d.Sentences))
		window := d.Sentences[start:end]

		var byTier [MaxTier + 1][]Sentence
		for _, s := range window {
			t := Tier(s, known)
			byTier[t] = append(byTier[t], s)
			sim.Totals[t]++
		}

		var study []Sentence
		for t := 1; t <= MaxTier; t++ {
			pop := byTier[t]
			k := sampleSize(len(pop), math.Pow(rate, float64(t)))
			for _, i := range rng.Perm(len(pop))[:k] {
				study = append(study, pop[i])
			}
		}
		var newly []string
		for _, s := range study {
			newly = append(newly, Targets(s, known)...)
		}
		for _, l := range newly {
			known[l] = struct{}{}
			learned[l] = struct{}{}
		}

		ws := WindowStats{Start: start, Sentences: len(window), Known: len(known)}
		for t := range ws.Fractions {
			ws.Fractions[t] = ratio(len(byTier[t]), len(window))
		}
		sim.Windows = append(sim.Windows, ws)
	}

	for l := range learned {
		sim.Learned = append(sim.Learned, l)
	}
	sort.Strings(sim.Learned)
	return sim
}

// sampleSize is ⌊n·share⌋ clamped to [0, n].
func sampleSize(n int, share float64) int {
	k := int(float64(n) * share)
	return max(0, min(k, n))
}

// ratio returns a/b, or NaN when b is zero.
func ratio(a, b int) float64 {
	if b == 0 {
		return math.NaN()
	}
	return float64(a) / float64(b)
}
