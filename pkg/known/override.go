package known

import (
	"math"

	"github.com/japaniel/sieve/pkg/db"
)

// minForcedUnknown keeps a forced-unknown modifier above 1 even for a
// lemma that is known with a score of zero.
const minForcedUnknown = 2.0

// NextOverride advances the three-state override cycle of one lemma. From
// neutral, an unknown lemma is forced known (modifier 0) and a known lemma is
// forced unknown (modifier 2·score/threshold, so its current score no longer
// clears it). Any forced or custom state goes back to neutral.
func NextOverride(cur db.Modifier, known bool, score int, threshold float64) db.Modifier {
	next := db.Modifier{Language: cur.Language, Lemma: cur.Lemma}
	neutral := cur.State == db.OverrideNeutral || (cur.State == "" && cur.Value == 1)
	if !neutral {
		next.Value, next.State = 1.0, db.OverrideNeutral
		return next
	}
	if !known {
		next.Value, next.State = 0, db.OverrideKnown
		return next
	}
	v := minForcedUnknown
	if threshold > 0 {
		v = math.Max(2*float64(score)/threshold, minForcedUnknown)
	}
	next.Value, next.State = v, db.OverrideUnknown
	return next
}
