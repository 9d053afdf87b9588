package games

import (
	"fmt"
	"math"
	"sort"

	"fairplay-backend/internal/fair"
)

const (
	MinesGridMin = 9
	MinesGridMax = 25
)

// MinesRound is the mutable state of one grid-reveal round. It is owned
// by a single caller; the service layer serializes access to it.
type MinesRound struct {
	ID        string  `json:"id"`
	GridSize  int     `json:"grid_size"`
	MineCount int     `json:"mine_count"`
	BetAmount float64 `json:"bet_amount"`
	HouseEdge float64 `json:"house_edge"`
	Nonce     int64   `json:"nonce"`

	Mines      []int   `json:"mines"`
	Revealed   []int   `json:"revealed"`
	Multiplier float64 `json:"multiplier"`
	Completed  bool    `json:"completed"`
	Win        bool    `json:"win"`
	Payout     float64 `json:"payout"`
}

type MinesStats struct {
	GridSize       int               `json:"grid_size"`
	MineCount      int               `json:"mine_count"`
	MaxMultiplier  float64           `json:"max_multiplier"`
	ExpectedReturn float64           `json:"expected_return"`
	HouseEdge      float64           `json:"house_edge"`
	Steps          []MinesStatsEntry `json:"steps"`
}

type MinesStatsEntry struct {
	Reveals     int     `json:"reveals"`
	Multiplier  float64 `json:"multiplier"`
	Probability float64 `json:"probability"`
}

func checkMinesConfig(gridSize, mineCount int) error {
	if gridSize < MinesGridMin || gridSize > MinesGridMax {
		return ConfigErrorf("grid size %d out of range [%d, %d]", gridSize, MinesGridMin, MinesGridMax)
	}
	if mineCount < 1 || mineCount >= gridSize {
		return ConfigErrorf("mine count %d out of range [1, %d]", mineCount, gridSize-1)
	}
	return nil
}

// MineCells places the mines for a round: a Fisher-Yates shuffle of
// [0..gridSize) driven by fair.Uniform(seed, nonce+i) at each swap step i
// (descending), taking the first mineCount shuffled positions. The same
// (seed, nonce) always yields the same mine set.
func MineCells(serverSeed string, nonce int64, gridSize, mineCount int) ([]int, error) {
	if err := checkMinesConfig(gridSize, mineCount); err != nil {
		return nil, err
	}

	positions := make([]int, gridSize)
	for i := range positions {
		positions[i] = i
	}

	for i := gridSize - 1; i >= 1; i-- {
		u, err := fair.Uniform(serverSeed, nonce+int64(i))
		if err != nil {
			return nil, fmt.Errorf("failed to draw swap %d: %v", i, err)
		}
		j := int(u * float64(i+1))
		positions[i], positions[j] = positions[j], positions[i]
	}

	mines := make([]int, mineCount)
	copy(mines, positions[:mineCount])
	sort.Ints(mines)

	return mines, nil
}

// NewMinesRound validates the configuration, places the mines and returns
// a fresh round with multiplier 1.0 and nothing revealed.
func NewMinesRound(rules Rules, id string, gridSize, mineCount int, bet float64, serverSeed string, nonce int64) (*MinesRound, error) {
	if err := checkMinesConfig(gridSize, mineCount); err != nil {
		return nil, err
	}
	if err := rules.checkBet(bet); err != nil {
		return nil, err
	}

	mines, err := MineCells(serverSeed, nonce, gridSize, mineCount)
	if err != nil {
		return nil, err
	}

	return &MinesRound{
		ID:         id,
		GridSize:   gridSize,
		MineCount:  mineCount,
		BetAmount:  bet,
		HouseEdge:  rules.HouseEdge,
		Nonce:      nonce,
		Mines:      mines,
		Revealed:   []int{},
		Multiplier: 1.0,
	}, nil
}

// Snapshot returns a deep copy of the round, safe to hand to readers
// outside the owner's lock while the live round keeps mutating.
func (r *MinesRound) Snapshot() *MinesRound {
	c := *r
	c.Mines = append([]int(nil), r.Mines...)
	c.Revealed = append([]int(nil), r.Revealed...)
	return &c
}

func (r *MinesRound) isMine(cell int) bool {
	for _, m := range r.Mines {
		if m == cell {
			return true
		}
	}
	return false
}

func (r *MinesRound) isRevealed(cell int) bool {
	for _, c := range r.Revealed {
		if c == cell {
			return true
		}
	}
	return false
}

// Reveal opens one cell. Hitting a mine ends the round as a loss; a safe
// cell grows the multiplier along the no-replacement survival odds, and
// clearing every safe cell completes the round as a win.
func (r *MinesRound) Reveal(cell int) error {
	if r.Completed {
		return StateErrorf("round %s already completed", r.ID)
	}
	if cell < 0 || cell >= r.GridSize {
		return StateErrorf("cell %d out of range [0, %d)", cell, r.GridSize)
	}
	if r.isRevealed(cell) {
		return StateErrorf("cell %d already revealed", cell)
	}

	if r.isMine(cell) {
		r.Completed = true
		r.Win = false
		r.Payout = 0
		return nil
	}

	r.Revealed = append(r.Revealed, cell)
	r.Multiplier = minesMultiplier(r.HouseEdge, r.GridSize, r.MineCount, len(r.Revealed))

	safeCells := r.GridSize - r.MineCount
	if len(r.Revealed) == safeCells {
		r.Completed = true
		r.Win = true
		r.Payout = round2(r.BetAmount * r.Multiplier)
	}

	return nil
}

// Cashout locks in the current multiplier. At least one cell must be
// revealed first.
func (r *MinesRound) Cashout() error {
	if r.Completed {
		return StateErrorf("round %s already completed", r.ID)
	}
	if len(r.Revealed) == 0 {
		return StateErrorf("cannot cash out before revealing a cell")
	}

	r.Completed = true
	r.Win = true
	r.Payout = round2(r.BetAmount * r.Multiplier)

	return nil
}

// minesMultiplier is the product over the first k safe reveals of the
// inverse survival probability of each draw, with the house edge folded
// into every factor:
//
//	prod_{i=0}^{k-1} 1 / (((safe-i)/(total-i)) * (1-houseEdge))
//
// This is the hypergeometric (no replacement) model: each factor is the
// odds the i-th draw avoided every remaining mine.
func minesMultiplier(houseEdge float64, gridSize, mineCount, reveals int) float64 {
	safe := float64(gridSize - mineCount)
	total := float64(gridSize)

	m := 1.0
	for i := 0; i < reveals; i++ {
		p := (safe - float64(i)) / (total - float64(i))
		m *= 1 / (p * (1 - houseEdge))
	}
	return m
}

// Verify recomputes the mine placement and the multiplier for the stored
// reveal count from (seed, nonce) and compares them against the round.
func (r *MinesRound) Verify(serverSeed string) error {
	mines, err := MineCells(serverSeed, r.Nonce, r.GridSize, r.MineCount)
	if err != nil {
		return err
	}

	if len(mines) != len(r.Mines) {
		return VerifyErrorf("mine count mismatch: recomputed %d, stored %d", len(mines), len(r.Mines))
	}
	for i := range mines {
		if mines[i] != r.Mines[i] {
			return VerifyErrorf("mine set mismatch at index %d: recomputed %d, stored %d", i, mines[i], r.Mines[i])
		}
	}

	expected := minesMultiplier(r.HouseEdge, r.GridSize, r.MineCount, len(r.Revealed))
	if math.Abs(expected-r.Multiplier) > 1e-9 {
		return VerifyErrorf("multiplier mismatch: recomputed %f, stored %f", expected, r.Multiplier)
	}

	return nil
}

// GetMinesStats tabulates, for each possible number of safe reveals, the
// locked-in multiplier and the probability of surviving that far.
func GetMinesStats(rules Rules, gridSize, mineCount int) (*MinesStats, error) {
	if err := checkMinesConfig(gridSize, mineCount); err != nil {
		return nil, err
	}

	safe := gridSize - mineCount
	steps := make([]MinesStatsEntry, safe)
	survival := 1.0
	for k := 1; k <= safe; k++ {
		p := float64(safe-k+1) / float64(gridSize-k+1)
		survival *= p
		steps[k-1] = MinesStatsEntry{
			Reveals:     k,
			Multiplier:  minesMultiplier(rules.HouseEdge, gridSize, mineCount, k),
			Probability: survival,
		}
	}

	last := steps[safe-1]
	return &MinesStats{
		GridSize:       gridSize,
		MineCount:      mineCount,
		MaxMultiplier:  last.Multiplier,
		ExpectedReturn: 1 - rules.HouseEdge,
		HouseEdge:      rules.HouseEdge,
		Steps:          steps,
	}, nil
}
