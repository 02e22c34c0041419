package analyzer

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/sieve/pkg/lemma"
)

func set(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func sent(lemmas ...string) Sentence {
	return Sentence{Text: fmt.Sprint(lemmas), Tokens: lemmas, Lemmas: lemmas}
}

func TestPrepareSplitsSeedsAndTiers(t *testing.T) {
	a, err := New("en", "terminator", lemma.Basic)
	require.NoError(t, err)
	a.TopSeed = 1

	doc, err := a.Prepare(context.Background(), "The cat sat. The dog ran!\n\n\nA cat ran.", []string{"sat"})
	require.NoError(t, err)

	assert.Equal(t, 2, doc.Chapters)
	require.Len(t, doc.Sentences, 3)
	assert.Equal(t, "The dog ran!", doc.Sentences[1].Text)
	assert.Equal(t, []string{"the", "cat", "sat", "the", "dog", "ran", "a", "cat", "ran"}, doc.Lemmas)
	assert.Equal(t, set("sat", "the"), doc.Known)
	assert.Equal(t, []int{1, 2, 3}, doc.Tiers())
}

func TestPrepareDefaultSeedCoversSmallDocuments(t *testing.T) {
	a, err := New("en", "auto", lemma.Basic)
	require.NoError(t, err)
	doc, err := a.Prepare(context.Background(), "Some words here. And more words there.", nil)
	require.NoError(t, err)
	for _, tier := range doc.Tiers() {
		assert.Zero(t, tier)
	}
}

func TestPrepareAppliesScriptFilter(t *testing.T) {
	a, err := New("ru", "terminator", lemma.Basic)
	require.NoError(t, err)
	a.TopSeed = 0
	doc, err := a.Prepare(context.Background(), "Кот сидит.", []string{"кот", "cat"})
	require.NoError(t, err)
	assert.Equal(t, set("кот"), doc.Known)
	assert.Equal(t, []int{1}, doc.Tiers())
}

func TestPrepareHonorsCanceledContext(t *testing.T) {
	a, err := New("en", "terminator", lemma.Basic)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Prepare(ctx, "One.\n\n\nTwo.", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTopLemmasBreaksTiesByFirstOccurrence(t *testing.T) {
	assert.Equal(t, []string{"b", "a"}, TopLemmas([]string{"b", "a", "b", "c", "a", "d"}, 2))
	assert.Nil(t, TopLemmas([]string{"a"}, 0))
}

func TestTierIsCapped(t *testing.T) {
	known := set("a")
	assert.Equal(t, 0, Tier(sent("a", "a"), known))
	assert.Equal(t, 2, Tier(sent("a", "b", "b"), known), "occurrences count, not distinct lemmas")
	assert.Equal(t, 3, Tier(sent("b", "c", "d", "e", "f"), known))
	assert.Equal(t, 0, Tier(Sentence{}, known))
}

func TestWordCurve(t *testing.T) {
	doc := &Document{Lemmas: []string{"a", "b", "x", "c", "a", "d", "e", "f"}, Known: set("a")}
	points := doc.WordCurve(4, 2)
	require.Len(t, points, 3)

	assert.Equal(t, CurvePoint{Position: 0, Unknown: 3, Cumulative: 3}, withoutNew(points[0]))
	assert.True(t, math.IsNaN(points[0].New))
	assert.Equal(t, CurvePoint{Position: 2, Unknown: 3, Cumulative: 4}, withoutNew(points[1]))
	assert.True(t, math.IsNaN(points[1].New))
	assert.Equal(t, CurvePoint{Position: 4, Unknown: 3, Cumulative: 6, New: 3}, points[2])

	short := (&Document{Lemmas: []string{"a", "b"}, Known: set("a")}).WordCurve(1000, 100)
	require.Len(t, short, 1)
	assert.Equal(t, 1, short[0].Unknown)
	assert.Nil(t, (&Document{}).WordCurve(0, 0))
}

func withoutNew(p CurvePoint) CurvePoint {
	p.New = 0
	return p
}

func TestSimulateLearnsFromStudiedSentences(t *testing.T) {
	var sentences []Sentence
	for i := 0; i < 5; i++ {
		sentences = append(sentences, sent("k", "x"))
	}
	for i := 0; i < 15; i++ {
		sentences = append(sentences, sent("k", "x", "y"))
	}
	doc := &Document{Sentences: sentences, Known: set("k")}

	sim := doc.Simulate(SimulationOptions{LearningRate: 1, Window: 5, Seed: 1})
	require.Len(t, sim.Windows, 4)
	assert.Equal(t, 0.0, sim.Windows[0].Fractions[0])
	assert.Equal(t, 1.0, sim.Windows[0].Fractions[1])
	assert.Equal(t, 1.0, sim.Windows[1].Fractions[1])
	assert.Equal(t, 1.0, sim.Windows[3].Fractions[0])
	assert.Equal(t, []string{"x", "y"}, sim.Learned)
	assert.Equal(t, [4]int{10, 10, 0, 0}, sim.Totals)
	assert.Equal(t, set("k"), doc.Known, "the document's known set is not modified")

	none := doc.Simulate(SimulationOptions{LearningRate: 0, Window: 5, Seed: 1})
	assert.Empty(t, none.Learned)
	assert.Equal(t, 1.0, none.Windows[3].Fractions[2])
}

func TestSimulateIsReproducibleAndMonotonic(t *testing.T) {
	var sentences []Sentence
	for i := 0; i < 300; i++ {
		sentences = append(sentences, sent(
			fmt.Sprintf("w%d", i%37),
			fmt.Sprintf("w%d", (i*7)%53),
			fmt.Sprintf("w%d", (i*13)%71),
			"the",
		))
	}
	doc := &Document{Sentences: sentences, Known: set("the")}
	opts := SimulationOptions{LearningRate: 0.5, Window: 40, Seed: 7}

	first := doc.Simulate(opts)
	assert.Equal(t, first, doc.Simulate(opts))

	for i := 1; i < len(first.Windows); i++ {
		assert.GreaterOrEqual(t, first.Windows[i].Known, first.Windows[i-1].Known)
	}
	last := first.Windows[len(first.Windows)-1]
	assert.GreaterOrEqual(t, last.Fractions[0], first.Windows[0].Fractions[0])
	assert.Equal(t, 20, last.Sentences)
}

func TestSampleSizeClamps(t *testing.T) {
	assert.Equal(t, 0, sampleSize(0, 0.5))
	assert.Equal(t, 2, sampleSize(5, 0.5))
	assert.Equal(t, 5, sampleSize(5, 3))
	assert.Equal(t, 0, sampleSize(5, -1))
}

func TestCram(t *testing.T) {
	doc := &Document{
		Sentences: []Sentence{
			sent("a", "b", "c"),
			sent("a", "b", "d"),
			sent("a", "e", "f", "g"),
			sent("h"),
		},
		Known: set(),
	}
	res := doc.Cram([]int{1, 2, 10})
	require.Len(t, res, 3)
	assert.Equal(t, 1, res[0].Remaining)
	assert.InDelta(t, 2.0/3, res[0].Dropped, 1e-9)
	assert.InDelta(t, 0.25, res[0].Share, 1e-9)
	assert.Equal(t, 1, res[1].Remaining)
	assert.Equal(t, 0, res[2].Remaining)
	assert.Equal(t, 1.0, res[2].Dropped)

	easy := (&Document{Sentences: []Sentence{sent("a")}, Known: set("a")}).Cram(nil)
	require.Len(t, easy, len(DefaultCramSizes))
	assert.True(t, math.IsNaN(easy[0].Dropped))
	assert.Equal(t, 0.0, easy[0].Share)
}

func TestRate(t *testing.T) {
	assert.Equal(t, VerdictTooHard, Rate(0.16))
	assert.Equal(t, VerdictHard, Rate(0.15))
	assert.Equal(t, VerdictHard, Rate(0.09))
	assert.Equal(t, VerdictModerate, Rate(0.08))
	assert.Equal(t, VerdictModerate, Rate(0.04))
	assert.Equal(t, VerdictEasy, Rate(0.03))
	assert.Equal(t, VerdictEasy, Rate(0))
	assert.Equal(t, VerdictUnknown, Rate(math.NaN()))
}

func TestReport(t *testing.T) {
	doc := &Document{
		Text:      "ab cd",
		Chapters:  1,
		Sentences: []Sentence{{Text: "ab cd", Tokens: []string{"ab", "cd"}, Lemmas: []string{"ab", "cd"}}},
		Lemmas:    []string{"ab", "cd"},
		Known:     set("ab"),
	}
	r := doc.Report()
	assert.Equal(t, 5, r.Characters)
	assert.Equal(t, 2, r.Words)
	assert.Equal(t, 1, r.Sentences)
	assert.InDelta(t, 2.5, r.WordLength.Mean, 1e-9)
	assert.InDelta(t, 0, r.WordLength.Stdev, 1e-9)
	assert.Equal(t, 5.0, r.SentenceChars.Mean)
	assert.True(t, math.IsNaN(r.SentenceChars.Stdev))
	assert.Equal(t, 2.0, r.Unique3k.Mean)
	assert.Equal(t, 2, r.UniqueLemmas)
	assert.Equal(t, 1, r.UnknownLemmas)
	assert.Equal(t, 1, r.UnknownUnique)
	assert.Equal(t, [4]int{0, 1, 0, 0}, r.Tiers)
	assert.Equal(t, VerdictEasy, r.Verdict)

	empty := (&Document{}).Report()
	assert.Equal(t, VerdictUnknown, empty.Verdict)
	assert.True(t, math.IsNaN(empty.Unique3k.Mean))
}
