// Package games holds the provably fair outcome engines: plinko (ball
// drop), mines (grid reveal) and crash (shared multiplier round). The
// engines compute and verify outcomes only; balances, persistence and
// broadcast belong to the calling service layer.
package games

import "math"

// Rules carries the operator-level tuning every game shares. It is
// supplied at construction so the house edge and bet limits can change
// without touching the math below.
type Rules struct {
	HouseEdge float64
	MinBet    float64
	MaxBet    float64
}

func (r Rules) checkBet(bet float64) error {
	if bet < r.MinBet {
		return ConfigErrorf("bet %.2f below minimum %.2f", bet, r.MinBet)
	}
	if bet > r.MaxBet {
		return ConfigErrorf("bet %.2f above maximum %.2f", bet, r.MaxBet)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
