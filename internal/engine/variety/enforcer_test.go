package variety

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/playroomlabs/partyhost/internal/engine/settings"
)

func newTestEnforcer() *Enforcer {
	return NewEnforcer(settings.New(nil), zerolog.Nop())
}

func TestJustSelectedItemWeighsLessThanFreshItem(t *testing.T) {
	e := newTestEnforcer()
	ctx := Context{Round: 1}

	e.RecordSelection("statues", ctx)

	used := e.AdjustWeight("statues", 1.0, ctx)
	fresh := e.AdjustWeight("floorIsLava", 1.0, ctx)

	assert.Less(t, used, fresh)
}

func TestRecencyPenaltyDecaysToOne(t *testing.T) {
	e := newTestEnforcer()
	base := time.Now()
	e.now = func() time.Time { return base }

	e.RecordSelection("statues", Context{Round: 1})

	// Just played: hardest penalty.
	assert.InDelta(t, 0.2, e.recencyFactor("statues"), 1e-9)

	// One assumed round later.
	e.now = func() time.Time { return base.Add(90 * time.Second) }
	assert.InDelta(t, 0.5, e.recencyFactor("statues"), 1e-9)

	// Four or more rounds later the penalty is gone.
	e.now = func() time.Time { return base.Add(4 * 90 * time.Second) }
	assert.InDelta(t, 1.0, e.recencyFactor("statues"), 1e-9)
}

func TestDiversityFactorBuckets(t *testing.T) {
	e := newTestEnforcer()
	ctx := Context{Round: 1}

	// Nothing tracked yet: unknown items read as never used.
	assert.InDelta(t, 2.0, e.diversityFactorForTest("anything"), 1e-9)

	for i := 0; i < 4; i++ {
		e.RecordSelection("overused", ctx)
	}
	e.RecordSelection("rare", ctx)

	// mean = 2.5: overused is above 1.5x mean, rare is below half.
	assert.InDelta(t, 0.7, e.diversityFactorForTest("overused"), 1e-9)
	assert.InDelta(t, 1.5, e.diversityFactorForTest("rare"), 1e-9)
	assert.InDelta(t, 2.0, e.diversityFactorForTest("never"), 1e-9)
}

func TestAdjustedWeightNeverFullySuppressed(t *testing.T) {
	e := newTestEnforcer()
	ctx := Context{Round: 1}

	e.RecordSelection("statues", ctx)
	w := e.AdjustWeight("statues", 0.05, ctx)

	assert.GreaterOrEqual(t, w, 0.1)
}

func TestSnapshotRoundTrip(t *testing.T) {
	e := newTestEnforcer()
	ctx := Context{Round: 3, Label: "round_type"}
	e.RecordSelection("duel", ctx)
	e.RecordSelection("team", ctx)
	e.RecordSelection("duel", ctx)

	snap := e.Export()

	restored := newTestEnforcer()
	restored.Import(snap)

	// Restored history drives the same diversity judgment.
	assert.InDelta(t,
		e.diversityFactorForTest("duel"),
		restored.diversityFactorForTest("duel"), 1e-9)
	assert.Equal(t, snap.Detector.Sequence, restored.Export().Detector.Sequence)
}

func TestDetectorRepeatsAndAlternations(t *testing.T) {
	d := NewDetector(10)

	d.Record("A")
	d.Record("A")
	assert.True(t, d.WouldCreatePattern("A"), "A-A-A is a repeat")
	assert.False(t, d.WouldCreatePattern("B"))

	d = NewDetector(10)
	d.Record("A")
	d.Record("B")
	d.Record("A")
	assert.True(t, d.WouldCreatePattern("B"), "A-B-A-B is an alternation")
	assert.False(t, d.WouldCreatePattern("C"))
}

func TestDetectorCycles(t *testing.T) {
	d := NewDetector(10)
	for _, id := range []string{"A", "B", "C", "A", "B"} {
		d.Record(id)
	}
	assert.True(t, d.WouldCreatePattern("C"), "A-B-C-A-B-C is a period-3 cycle")
}

func TestDetectorBreakingBoostsWeight(t *testing.T) {
	e := newTestEnforcer()
	ctx := Context{Round: 1}
	base := time.Now()
	step := 0
	// Spread the records out so recency does not dominate the comparison.
	e.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * 10 * 90 * time.Second)
	}

	for _, id := range []string{"A", "B", "A", "B"} {
		e.RecordSelection(id, ctx)
	}

	continuing := e.AdjustWeight("A", 1.0, ctx)
	breaking := e.AdjustWeight("C", 1.0, ctx)

	assert.Less(t, continuing, breaking)
}

// diversityFactorForTest exposes the unexported factor under the lock.
func (e *Enforcer) diversityFactorForTest(itemID string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.diversityFactor(itemID)
}
