package known

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/sieve/pkg/db"
	"github.com/japaniel/sieve/pkg/knowledge"
	"github.com/japaniel/sieve/pkg/lemma"
)

type staticSnapshots struct {
	snap *knowledge.Snapshot
	err  error
}

func (s staticSnapshots) Get(ctx context.Context) (*knowledge.Snapshot, error) { return s.snap, s.err }

type memModifiers map[string]db.Modifier

func (m memModifiers) Modifier(ctx context.Context, language, lemma string) (db.Modifier, error) {
	if v, ok := m[lemma]; ok {
		return v, nil
	}
	return db.NeutralModifier(language, lemma), nil
}

func (m memModifiers) Modifiers(ctx context.Context, language string) (map[string]db.Modifier, error) {
	return m, nil
}

func (m memModifiers) SetModifier(ctx context.Context, mod db.Modifier) error {
	if mod.State == db.OverrideNeutral {
		delete(m, mod.Lemma)
		return nil
	}
	m[mod.Lemma] = mod
	return nil
}

func (m memModifiers) DeleteModifiers(ctx context.Context, language string) error {
	for k := range m {
		delete(m, k)
	}
	return nil
}

func newTracker(mods memModifiers) *Tracker {
	snap := &knowledge.Snapshot{Language: "en", Records: map[string]knowledge.WordRecord{
		"the": rec("the", 30),
		"cat": rec("cat", 2),
	}}
	return &Tracker{
		Language:   "en",
		Classifier: NewClassifier(nil),
		Snapshots:  staticSnapshots{snap: snap},
		Modifiers:  mods,
		Lemmatizer: lemma.Basic,
	}
}

func TestTrackerToggleUnknownWord(t *testing.T) {
	mods := memModifiers{}
	tr := newTracker(mods)
	ctx := context.Background()

	assert.False(t, tr.IsKnown(ctx, "Cat"))
	st, err := tr.Toggle(ctx, "Cat")
	require.NoError(t, err)
	assert.True(t, st.Known)
	assert.Equal(t, db.OverrideKnown, mods["cat"].State)

	st, err = tr.Toggle(ctx, "cat")
	require.NoError(t, err)
	assert.False(t, st.Known)
	assert.Empty(t, mods, "back to neutral removes the override")
}

func TestTrackerToggleKnownWord(t *testing.T) {
	mods := memModifiers{}
	tr := newTracker(mods)
	ctx := context.Background()

	st, err := tr.Toggle(ctx, "the")
	require.NoError(t, err)
	assert.False(t, st.Known)
	assert.Equal(t, db.OverrideUnknown, st.Modifier.State)
	assert.Equal(t, 4.8, st.Modifier.Value)

	st, err = tr.Toggle(ctx, "the")
	require.NoError(t, err)
	assert.True(t, st.Known)
}

func TestTrackerFilterAndReset(t *testing.T) {
	mods := memModifiers{}
	tr := newTracker(mods)
	ctx := context.Background()

	assert.Equal(t, []string{"cat", "dog."}, tr.FilterUnknown(ctx, []string{"The", "cat", "dog."}))

	_, err := tr.Toggle(ctx, "dog")
	require.NoError(t, err)
	known, _ := tr.KnownSet(ctx)
	assert.Equal(t, []string{"dog", "the"}, known)
	assert.InDelta(t, 1.0, tr.Progress(ctx), 1e-9)

	require.NoError(t, tr.ResetOverrides(ctx))
	known, _ = tr.KnownSet(ctx)
	assert.Equal(t, []string{"the"}, known)
}

func TestTrackerDegradesWithoutSnapshot(t *testing.T) {
	tr := newTracker(memModifiers{})
	tr.Snapshots = staticSnapshots{err: errors.New("no snapshot")}
	ctx := context.Background()

	assert.False(t, tr.IsKnown(ctx, "the"))
	known, _ := tr.KnownSet(ctx)
	assert.Empty(t, known)
}
