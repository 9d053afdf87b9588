package games

import (
	"math"
	"sync"
	"time"

	"fairplay-backend/internal/fair"
)

// CrashConfig tunes the live multiplier round. Zero values are replaced
// with the defaults below so tests can override only what they need.
type CrashConfig struct {
	HouseEdge     float64
	GrowthRate    float64
	MaxMultiplier float64
	TickInterval  time.Duration
	MaxDuration   time.Duration
	MinBet        float64
	MaxBet        float64
}

func (c CrashConfig) withDefaults() CrashConfig {
	if c.HouseEdge == 0 {
		c.HouseEdge = 0.01
	}
	if c.GrowthRate == 0 {
		c.GrowthRate = 0.10
	}
	if c.MaxMultiplier == 0 {
		c.MaxMultiplier = 1000000
	}
	if c.TickInterval == 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.MaxDuration == 0 {
		c.MaxDuration = 2 * time.Minute
	}
	if c.MinBet == 0 {
		c.MinBet = 1
	}
	if c.MaxBet == 0 {
		c.MaxBet = 10000
	}
	return c
}

// Event types pushed to the outbound channel for the broadcast layer.
const (
	EventRoundStarted  = "round_started"
	EventMultiplier    = "multiplier_update"
	EventPlayerCashout = "player_cashout"
	EventRoundCrashed  = "round_crashed"
)

type CrashEvent struct {
	Type       string        `json:"type"`
	RoundID    string        `json:"round_id"`
	StartedAt  int64         `json:"started_at,omitempty"`
	Multiplier float64       `json:"multiplier,omitempty"`
	ElapsedMs  int64         `json:"elapsed_ms,omitempty"`
	PlayerID   int64         `json:"player_id,omitempty"`
	Payout     float64       `json:"payout,omitempty"`
	Auto       bool          `json:"auto,omitempty"`
	CrashPoint float64       `json:"crash_point,omitempty"`
	Results    []CrashResult `json:"results,omitempty"`
}

// CrashResult is one participant's settlement, handed out read-only when
// the round ends.
type CrashResult struct {
	PlayerID       int64   `json:"player_id"`
	BetAmount      float64 `json:"bet_amount"`
	Exited         bool    `json:"exited"`
	ExitMultiplier float64 `json:"exit_multiplier,omitempty"`
	Payout         float64 `json:"payout"`
	Auto           bool    `json:"auto,omitempty"`
}

type crashPlayer struct {
	betAmount      float64
	autoCashout    float64 // 0 means none
	exited         bool
	exitMultiplier float64
	payout         float64
	auto           bool
}

type crashRound struct {
	id         string
	serverSeed string
	nonce      int64
	startedAt  time.Time
	crashPoint float64
	multiplier float64
	players    map[int64]*crashPlayer
	stop       chan struct{}
}

// CrashRoundState is a read-only snapshot for state queries.
type CrashRoundState struct {
	RoundID     string  `json:"round_id"`
	Active      bool    `json:"active"`
	Multiplier  float64 `json:"multiplier"`
	ElapsedMs   int64   `json:"elapsed_ms"`
	PlayerCount int     `json:"player_count"`
	SeedHash    string  `json:"seed_hash"`
	StartedAtMs int64   `json:"started_at_ms"`
}

// CrashEngine owns at most one live round. All round state is mutated
// under one mutex shared by the tick loop and the join/cashout calls, so
// no two operations ever race on the player map. Events go out on a
// buffered channel consumed by the broadcast layer.
type CrashEngine struct {
	cfg CrashConfig

	mu     sync.Mutex
	round  *crashRound
	closed bool

	events chan CrashEvent
}

func NewCrashEngine(cfg CrashConfig) *CrashEngine {
	return &CrashEngine{
		cfg:    cfg.withDefaults(),
		events: make(chan CrashEvent, 256),
	}
}

// Events is the outbound notification stream. It is closed by Close.
func (e *CrashEngine) Events() <-chan CrashEvent {
	return e.events
}

// ComputeCrashPoint derives the crash point for a (seed, nonce) pair from
// an exponential distribution: -ln(u)/lambda + 1 with lambda =
// 1/(1-houseEdge), clamped to [1, max] and rounded to 2 decimals.
func ComputeCrashPoint(houseEdge, maxMultiplier float64, serverSeed string, nonce int64) (float64, error) {
	u, err := fair.Uniform(serverSeed, nonce)
	if err != nil {
		return 0, err
	}
	if u == 0 {
		return maxMultiplier, nil
	}

	lambda := 1 / (1 - houseEdge)
	point := -math.Log(u)/lambda + 1

	if point < 1 {
		point = 1
	}
	if point > maxMultiplier {
		point = maxMultiplier
	}

	return round2(point), nil
}

// VerifyCrashPoint recomputes a stored crash point from its seed and
// nonce and compares within floating tolerance.
func VerifyCrashPoint(houseEdge, maxMultiplier, stored float64, serverSeed string, nonce int64) error {
	point, err := ComputeCrashPoint(houseEdge, maxMultiplier, serverSeed, nonce)
	if err != nil {
		return err
	}
	if math.Abs(point-stored) > 1e-9 {
		return VerifyErrorf("crash point mismatch: recomputed %.2f, stored %.2f", point, stored)
	}
	return nil
}

// StartRound begins a new live round. Rejected while another round is
// active. The tick loop runs until the multiplier reaches the crash point
// or the duration ceiling, then settles every remaining player at zero.
func (e *CrashEngine) StartRound(id, serverSeed string, nonce int64) (*CrashRoundState, error) {
	point, err := ComputeCrashPoint(e.cfg.HouseEdge, e.cfg.MaxMultiplier, serverSeed, nonce)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, StateErrorf("engine is shut down")
	}
	if e.round != nil {
		return nil, StateErrorf("round %s is still active", e.round.id)
	}

	round := &crashRound{
		id:         id,
		serverSeed: serverSeed,
		nonce:      nonce,
		startedAt:  time.Now(),
		crashPoint: point,
		multiplier: 1.0,
		players:    make(map[int64]*crashPlayer),
		stop:       make(chan struct{}),
	}
	e.round = round

	e.emit(CrashEvent{
		Type:      EventRoundStarted,
		RoundID:   round.id,
		StartedAt: round.startedAt.UnixMilli(),
	})

	go e.run(round)

	return e.snapshotLocked(), nil
}

func (e *CrashEngine) run(round *crashRound) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if e.tick(round) {
				return
			}
		case <-round.stop:
			return
		}
	}
}

// tick advances the multiplier, sweeps auto-cashouts and checks the crash
// condition. Returns true once the round is over.
func (e *CrashEngine) tick(round *crashRound) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round != round {
		return true
	}

	elapsed := time.Since(round.startedAt)
	round.multiplier = round2(math.Pow(1+e.cfg.GrowthRate, elapsed.Seconds()))

	// Auto-cashouts settle at exactly the configured threshold, never at
	// the higher value this tick happened to sample.
	for playerID, p := range round.players {
		if p.exited || p.autoCashout == 0 || p.autoCashout > round.multiplier {
			continue
		}
		p.exited = true
		p.auto = true
		p.exitMultiplier = p.autoCashout
		p.payout = round2(p.betAmount * p.autoCashout)
		e.emit(CrashEvent{
			Type:       EventPlayerCashout,
			RoundID:    round.id,
			PlayerID:   playerID,
			Multiplier: p.exitMultiplier,
			Payout:     p.payout,
			Auto:       true,
		})
	}

	if round.multiplier >= round.crashPoint || elapsed >= e.cfg.MaxDuration {
		e.crashLocked(round)
		return true
	}

	e.emit(CrashEvent{
		Type:       EventMultiplier,
		RoundID:    round.id,
		Multiplier: round.multiplier,
		ElapsedMs:  elapsed.Milliseconds(),
	})

	return false
}

// crashLocked ends the round, settling every player still in at zero.
// Called with e.mu held.
func (e *CrashEngine) crashLocked(round *crashRound) {
	results := make([]CrashResult, 0, len(round.players))
	for playerID, p := range round.players {
		if !p.exited {
			p.exited = true
			p.payout = 0
		}
		results = append(results, CrashResult{
			PlayerID:       playerID,
			BetAmount:      p.betAmount,
			Exited:         p.exitMultiplier > 0,
			ExitMultiplier: p.exitMultiplier,
			Payout:         p.payout,
			Auto:           p.auto,
		})
	}

	e.emit(CrashEvent{
		Type:       EventRoundCrashed,
		RoundID:    round.id,
		CrashPoint: round.crashPoint,
		Results:    results,
	})

	e.round = nil
}

// Join places a bet on the live round. autoCashout of 0 means none; any
// other value must be at least 1.01.
func (e *CrashEngine) Join(playerID int64, bet, autoCashout float64) error {
	if bet < e.cfg.MinBet || bet > e.cfg.MaxBet {
		return ConfigErrorf("bet %.2f outside limits [%.2f, %.2f]", bet, e.cfg.MinBet, e.cfg.MaxBet)
	}
	if autoCashout != 0 && (autoCashout < 1.01 || autoCashout > e.cfg.MaxMultiplier) {
		return ConfigErrorf("auto cashout %.2f outside limits [1.01, %.2f]", autoCashout, e.cfg.MaxMultiplier)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round == nil {
		return StateErrorf("no active round")
	}
	if _, ok := e.round.players[playerID]; ok {
		return StateErrorf("player %d already joined this round", playerID)
	}

	e.round.players[playerID] = &crashPlayer{
		betAmount:   bet,
		autoCashout: autoCashout,
	}

	return nil
}

// Cashout exits a player at the current multiplier.
func (e *CrashEngine) Cashout(playerID int64) (*CrashResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round == nil {
		return nil, StateErrorf("no active round")
	}

	p, ok := e.round.players[playerID]
	if !ok {
		return nil, StateErrorf("player %d has not joined this round", playerID)
	}
	if p.exited {
		return nil, StateErrorf("player %d already cashed out", playerID)
	}

	p.exited = true
	p.exitMultiplier = e.round.multiplier
	p.payout = round2(p.betAmount * p.exitMultiplier)

	e.emit(CrashEvent{
		Type:       EventPlayerCashout,
		RoundID:    e.round.id,
		PlayerID:   playerID,
		Multiplier: p.exitMultiplier,
		Payout:     p.payout,
	})

	return &CrashResult{
		PlayerID:       playerID,
		BetAmount:      p.betAmount,
		Exited:         true,
		ExitMultiplier: p.exitMultiplier,
		Payout:         p.payout,
	}, nil
}

// State returns a snapshot of the live round, or an inactive state when
// no round is running.
func (e *CrashEngine) State() *CrashRoundState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *CrashEngine) snapshotLocked() *CrashRoundState {
	if e.round == nil {
		return &CrashRoundState{Active: false}
	}
	return &CrashRoundState{
		RoundID:     e.round.id,
		Active:      true,
		Multiplier:  e.round.multiplier,
		ElapsedMs:   time.Since(e.round.startedAt).Milliseconds(),
		PlayerCount: len(e.round.players),
		SeedHash:    fair.SeedHash(e.round.serverSeed),
		StartedAtMs: e.round.startedAt.UnixMilli(),
	}
}

// Stop abandons the live round without settlement: the ticker is torn
// down and the round reference cleared. Used on external shutdown.
func (e *CrashEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round != nil {
		close(e.round.stop)
		e.round = nil
	}
}

// Close stops any live round and closes the event channel. The engine
// cannot be reused afterwards.
func (e *CrashEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if e.round != nil {
		close(e.round.stop)
		e.round = nil
	}
	e.closed = true
	close(e.events)
}

// emit pushes an event without ever blocking the round loop; slow or
// absent consumers drop updates rather than stall the tick.
func (e *CrashEngine) emit(ev CrashEvent) {
	if e.closed {
		return
	}
	select {
	case e.events <- ev:
	default:
	}
}
