package analyzer

import "math"

// Word curve defaults.
const (
	DefaultWordWindow = 1000
	DefaultWordStep   = 100
)

// CurvePoint is one sample of the unknown-word curve.
type CurvePoint struct {
	// Position is the index of the window's first lemma in the stream.
	Position int
	// Unknown counts distinct unknown lemmas in the window.
	Unknown int
	// Cumulative counts distinct unknown lemmas from the start up to the end of the window.
	Cumulative int
	// New is Cumulative minus its value one window width earlier; NaN until
	// a full window width has been sampled.
	New float64
}

// WordCurve slides a window of size lemmas over the lemma stream and samples
// it every step positions. A stream shorter than the window yields a single
// sample over the whole stream.
func (d *Document) WordCurve(window, step int) []CurvePoint {
	if window <= 0 {
		window = DefaultWordWindow
	}
	if step <= 0 {
		step = DefaultWordStep
	}
	n := len(d.Lemmas)
	if n == 0 {
		return nil
	}
	if n < window {
		window = n
	}

	seen := make(map[string]struct{})
	var points []CurvePoint
	var cumulative []int
	for pos := 0; pos+window <= n; pos += step {
		inWindow := make(map[string]struct{})
		for _, l := range d.Lemmas[pos : pos+window] {
			if _, ok := d.Known[l]; ok {
				continue
			}
			inWindow[l] = struct{}{}
			seen[l] = struct{}{}
		}
		p := CurvePoint{Position: pos, Unknown: len(inWindow), Cumulative: len(seen), New: math.NaN()}
		if back := pos - window; back >= 0 {
			p.New = float64(len(seen) - cumulative[back/step])
		}
		cumulative = append(cumulative, len(seen))
		points = append(points, p)
	}
	return points
}
