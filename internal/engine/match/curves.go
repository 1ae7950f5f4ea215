package match

// Difficulty curves map a 1-indexed round number to a 1-5 target. Lookups
// past the end repeat the last value; the difficulty level in Config
// shifts the whole curve (level 3 is neutral).
var difficultyCurves = map[string][]int{
	"gentle":         {1, 1, 2, 2, 2, 3, 3},
	"steady":         {2, 2, 3, 3, 3, 4, 4},
	"roller_coaster": {1, 3, 2, 4, 2, 5, 3},
}

const defaultCurve = "steady"

// KnownCurve reports whether name is a registered difficulty curve.
func KnownCurve(name string) bool {
	_, ok := difficultyCurves[name]
	return ok
}

// curveTarget returns the clamped difficulty target for a round.
func curveTarget(curveName string, level, round int) int {
	curve, ok := difficultyCurves[curveName]
	if !ok {
		curve = difficultyCurves[defaultCurve]
	}
	idx := round - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(curve) {
		idx = len(curve) - 1
	}
	if level == 0 {
		level = 3
	}
	target := curve[idx] + (level - 3)
	if target < 1 {
		target = 1
	}
	if target > 5 {
		target = 5
	}
	return target
}
