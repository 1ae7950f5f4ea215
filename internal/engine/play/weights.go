package play

import "math/rand"

// Candidate pairs an item with its selection weight.
type Candidate[T any] struct {
	Item   T
	Weight float64
}

// Pick draws one candidate: sum the weights, draw uniform in [0,total),
// subtract weights in order until the remainder drops to zero or below.
// A zero (or negative) total falls back to a uniform index choice, and a
// single-candidate list returns immediately. Every weighted decision in
// the engine goes through this one function so seeded runs repro
// identical draws.
func Pick[T any](rng *rand.Rand, candidates []Candidate[T]) (T, bool) {
	var zero T
	if len(candidates) == 0 {
		return zero, false
	}
	if len(candidates) == 1 {
		return candidates[0].Item, true
	}

	total := 0.0
	for _, c := range candidates {
		total += c.Weight
	}
	if total <= 0 {
		return candidates[rng.Intn(len(candidates))].Item, true
	}

	r := rng.Float64() * total
	for _, c := range candidates {
		r -= c.Weight
		if r <= 0 {
			return c.Item, true
		}
	}
	return candidates[len(candidates)-1].Item, true
}

// WeightModifier scales a base weight. Reason is carried for logging only.
type WeightModifier struct {
	Factor float64
	Reason string
}

// ApplyWeightModifiers multiplies the base weight by every modifier factor
// and returns the final weight plus the combined multiplier.
func ApplyWeightModifiers(base float64, mods []WeightModifier) (final, total float64) {
	total = 1.0
	for _, m := range mods {
		total *= m.Factor
	}
	return base * total, total
}
