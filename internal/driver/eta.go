package driver

import "math/rand/v2"

// ETACalculator estimates how long the assigned driver needs to reach the
// pickup point.
type ETACalculator interface {
	PickupETAMinutes() int
}

// RandomETA is the placeholder estimator: a uniform pick from 5 to 10
// minutes. A routing-based calculator can replace it without touching the
// lifecycle.
type RandomETA struct{}

// PickupETAMinutes returns a random estimate in [5, 10].
func (RandomETA) PickupETAMinutes() int {
	return 5 + rand.IntN(6)
}
