// internal/align/shuffle.go
//
// Difficulty-driven scrambling of a target phrase.
//
// Shuffle performs floor(len × difficulty) swaps, each between two
// independently drawn positions. A draw may pick the same position twice or
// undo an earlier swap, so the amount of disorder is probabilistic. The
// random source is always injected; seed it to reproduce a shuffle.

package align

import (
	"math"
	"math/rand/v2"
)

// Rand is the random source Shuffle draws positions from.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	// IntN returns a uniform value in [0, n). n is always > 0.
	IntN(n int) int
}

type systemRand struct{}

func (systemRand) IntN(n int) int { return rand.IntN(n) }

// SystemRand returns a Rand backed by the math/rand/v2 global generator.
// It is safe for concurrent use.
func SystemRand() Rand { return systemRand{} }

// NewRand returns a seeded, reproducible Rand. It is not safe for concurrent use.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SwapCount is the number of swaps Shuffle performs for a phrase of the
// given length in code points. Counts beyond math.MaxInt saturate.
func SwapCount(length int, difficulty float64) int {
	if length <= 0 || !(difficulty > 0) || math.IsInf(difficulty, 1) {
		return 0
	}
	f := math.Floor(float64(length) * difficulty)
	if f >= math.MaxInt {
		return math.MaxInt
	}
	return int(f)
}

// Shuffle returns a permutation of text's code points. A difficulty <= 0
// (or NaN) and an empty text both return text unchanged. A nil rng falls
// back to SystemRand.
func Shuffle(text string, difficulty float64, rng Rand) string {
	if !(difficulty > 0) || text == "" {
		return text
	}
	if rng == nil {
		rng = SystemRand()
	}
	rs := []rune(text)
	n := len(rs)
	swaps := SwapCount(n, difficulty)
	if swaps == 0 {
		return text
	}
	for ; swaps > 0; swaps-- {
		i, j := rng.IntN(n), rng.IntN(n)
		rs[i], rs[j] = rs[j], rs[i]
	}
	return string(rs)
}
