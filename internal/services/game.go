package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"fairplay-backend/internal/config"
	"fairplay-backend/internal/fair"
	"fairplay-backend/internal/games"
	"fairplay-backend/internal/models"
)

// GameService glues the pure game engines to the platform: it debits and
// credits wallets around every play, persists the audit record for each
// outcome, and runs the shared crash round loop.
type GameService struct {
	cfg          *config.Config
	redisService *RedisService

	rules       games.Rules
	crashEngine *games.CrashEngine

	mu          sync.Mutex
	activeMines map[string]*minesInstance
	crashPlays  map[int64]*crashPlay
	crashMeta   *crashMeta
	roundNonce  int64
	broadcaster Broadcaster

	roundEnded chan struct{}
	stopRounds chan struct{}
	stopOnce   sync.Once
}

type minesInstance struct {
	userID     int64
	serverSeed string
	round      *games.MinesRound
	lastUpdate time.Time
}

type crashPlay struct {
	gameID    string
	betAmount float64
}

type crashMeta struct {
	roundID    string
	serverSeed string
	nonce      int64
}

func NewGameService(cfg *config.Config, redisService *RedisService) *GameService {
	rules := games.Rules{
		HouseEdge: cfg.HouseEdge,
		MinBet:    cfg.MinBet,
		MaxBet:    cfg.MaxBet,
	}

	svc := &GameService{
		cfg:          cfg,
		redisService: redisService,
		rules:        rules,
		crashEngine: games.NewCrashEngine(games.CrashConfig{
			HouseEdge:     cfg.HouseEdge,
			GrowthRate:    cfg.CrashGrowthRate,
			MaxMultiplier: cfg.CrashMaxMult,
			TickInterval:  cfg.CrashTickInterval,
			MaxDuration:   cfg.CrashMaxDuration,
			MinBet:        cfg.MinBet,
			MaxBet:        cfg.MaxBet,
		}),
		activeMines: make(map[string]*minesInstance),
		crashPlays:  make(map[int64]*crashPlay),
		roundEnded:  make(chan struct{}, 1),
		stopRounds:  make(chan struct{}),
	}

	go svc.consumeCrashEvents()

	return svc
}

// SetBroadcaster attaches the fan-out layer for crash notifications.
func (g *GameService) SetBroadcaster(b Broadcaster) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcaster = b
}

func (g *GameService) Rules() games.Rules {
	return g.rules
}

// ---- plinko ----

// PlayPlinko runs one complete ball drop: debit, outcome, credit,
// persist. The result record is final when this returns.
func (g *GameService) PlayPlinko(ctx context.Context, userID int64, req *models.PlinkoPlayRequest) (*games.PlinkoResult, *models.GameRecord, error) {
	allowed, err := g.redisService.CheckRateLimit(userID, "bet", DefaultRateLimitBets, time.Minute)
	if err != nil {
		return nil, nil, fmt.Errorf("rate limit check failed: %v", err)
	}
	if !allowed {
		return nil, nil, fmt.Errorf("bet rate limit exceeded")
	}

	// Validate config before touching the wallet so a bad request costs
	// nothing.
	if _, err := games.GetPlinkoStats(req.Rows, games.PlinkoRisk(req.Risk)); err != nil {
		return nil, nil, err
	}

	if _, err := g.redisService.GetWallet(userID); err != nil {
		return nil, nil, fmt.Errorf("failed to get wallet: %v", err)
	}

	if err := g.redisService.LockBalanceForGame(userID, req.Amount); err != nil {
		return nil, nil, fmt.Errorf("failed to lock balance: %v", err)
	}

	g.redisService.RecordBetPattern(userID, req.Amount, models.GameTypePlinko)

	serverSeed, err := fair.GenerateServerSeed()
	if err != nil {
		g.redisService.ReleaseBalanceFromGame(userID, req.Amount, false, 0)
		return nil, nil, err
	}

	nonce, err := g.redisService.NextNonce(userID)
	if err != nil {
		g.redisService.ReleaseBalanceFromGame(userID, req.Amount, false, 0)
		return nil, nil, err
	}

	result, err := games.PlayPlinko(g.rules, req.Rows, games.PlinkoRisk(req.Risk), req.Amount, serverSeed, nonce)
	if err != nil {
		g.redisService.ReleaseBalanceFromGame(userID, req.Amount, false, 0)
		return nil, nil, err
	}

	if err := g.redisService.ReleaseBalanceFromGame(userID, req.Amount, result.Payout > 0, result.Payout); err != nil {
		return nil, nil, fmt.Errorf("failed to settle plinko bet: %v", err)
	}

	record := g.buildRecord(userID, models.GameTypePlinko, serverSeed, nonce, req.Amount)
	record.Multiplier = result.Multiplier
	record.Payout = result.Payout
	record.Win = result.Win
	record.Status = "completed"
	record.Outcome, _ = json.Marshal(result)

	if err := g.redisService.SaveGameRecord(record); err != nil {
		log.Printf("failed to persist plinko record %s: %v", record.ID, err)
	}
	g.redisService.CompleteGameRecord(userID, record.ID)

	g.recordTransaction(userID, record, result.Win, result.Payout)

	return result, record, nil
}

// ---- mines ----

func (g *GameService) StartMines(ctx context.Context, userID int64, req *models.MinesStartRequest) (*models.GameRecord, *games.MinesRound, error) {
	allowed, err := g.redisService.CheckRateLimit(userID, "bet", DefaultRateLimitBets, time.Minute)
	if err != nil {
		return nil, nil, fmt.Errorf("rate limit check failed: %v", err)
	}
	if !allowed {
		return nil, nil, fmt.Errorf("bet rate limit exceeded")
	}

	if _, err := g.redisService.GetWallet(userID); err != nil {
		return nil, nil, fmt.Errorf("failed to get wallet: %v", err)
	}

	serverSeed, err := fair.GenerateServerSeed()
	if err != nil {
		return nil, nil, err
	}

	nonce, err := g.redisService.NextNonce(userID)
	if err != nil {
		return nil, nil, err
	}

	record := g.buildRecord(userID, models.GameTypeMines, serverSeed, nonce, req.Amount)

	round, err := games.NewMinesRound(g.rules, record.ID, req.GridSize, req.MineCount, req.Amount, serverSeed, nonce)
	if err != nil {
		return nil, nil, err
	}

	if err := g.redisService.LockBalanceForGame(userID, req.Amount); err != nil {
		return nil, nil, fmt.Errorf("failed to lock balance: %v", err)
	}

	g.redisService.RecordBetPattern(userID, req.Amount, models.GameTypeMines)

	record.Status = "active"
	if err := g.redisService.SaveGameRecord(record); err != nil {
		log.Printf("failed to persist mines record %s: %v", record.ID, err)
	}

	g.mu.Lock()
	g.activeMines[record.ID] = &minesInstance{
		userID:     userID,
		serverSeed: serverSeed,
		round:      round,
		lastUpdate: time.Now(),
	}
	g.mu.Unlock()

	return record, round.Snapshot(), nil
}

func (g *GameService) minesInstanceFor(userID int64, gameID string) (*minesInstance, error) {
	instance, ok := g.activeMines[gameID]
	if !ok {
		return nil, games.StateErrorf("no active mines round %s", gameID)
	}
	if instance.userID != userID {
		return nil, games.StateErrorf("round %s does not belong to user %d", gameID, userID)
	}
	return instance, nil
}

// RevealMines opens one cell and settles the round if that ended it.
func (g *GameService) RevealMines(ctx context.Context, userID int64, gameID string, cell int) (*games.MinesRound, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	instance, err := g.minesInstanceFor(userID, gameID)
	if err != nil {
		return nil, err
	}

	if err := instance.round.Reveal(cell); err != nil {
		return nil, err
	}
	instance.lastUpdate = time.Now()

	if instance.round.Completed {
		g.settleMinesLocked(gameID, instance)
	}

	return instance.round.Snapshot(), nil
}

func (g *GameService) CashoutMines(ctx context.Context, userID int64, gameID string) (*games.MinesRound, error) {
	allowed, err := g.redisService.CheckRateLimit(userID, "cashout", DefaultRateLimitCashout, time.Minute)
	if err != nil || !allowed {
		return nil, fmt.Errorf("cashout rate limit exceeded")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	instance, err := g.minesInstanceFor(userID, gameID)
	if err != nil {
		return nil, err
	}

	if err := instance.round.Cashout(); err != nil {
		return nil, err
	}

	g.settleMinesLocked(gameID, instance)

	return instance.round.Snapshot(), nil
}

func (g *GameService) GetMinesRound(userID int64, gameID string) (*games.MinesRound, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	instance, err := g.minesInstanceFor(userID, gameID)
	if err != nil {
		return nil, err
	}
	return instance.round.Snapshot(), nil
}

// settleMinesLocked finalizes a completed round: releases the locked bet,
// persists the outcome and drops the live instance. Called with g.mu held.
func (g *GameService) settleMinesLocked(gameID string, instance *minesInstance) {
	round := instance.round
	userID := instance.userID

	if err := g.redisService.ReleaseBalanceFromGame(userID, round.BetAmount, round.Win, round.Payout); err != nil {
		log.Printf("failed to settle mines round %s: %v", gameID, err)
	}

	record, err := g.redisService.GetGameRecord(gameID)
	if err != nil {
		log.Printf("mines record %s missing at settlement: %v", gameID, err)
		record = g.buildRecord(userID, models.GameTypeMines, instance.serverSeed, round.Nonce, round.BetAmount)
		record.ID = gameID
	}

	record.Multiplier = round.Multiplier
	record.Payout = round.Payout
	record.Win = round.Win
	record.Status = "completed"
	record.Outcome, _ = json.Marshal(round)

	if err := g.redisService.UpdateGameRecord(record); err != nil {
		log.Printf("failed to persist mines record %s: %v", gameID, err)
	}
	g.redisService.CompleteGameRecord(userID, gameID)

	g.recordTransaction(userID, record, round.Win, round.Payout)

	delete(g.activeMines, gameID)
}

// CleanupStaleMines settles abandoned rounds: one with reveals cashes out
// at its current multiplier, an untouched one gets the stake back.
func (g *GameService) CleanupStaleMines(maxAge time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for gameID, instance := range g.activeMines {
		if time.Since(instance.lastUpdate) <= maxAge {
			continue
		}

		round := instance.round
		if len(round.Revealed) > 0 {
			if err := round.Cashout(); err != nil {
				log.Printf("failed to cash out stale round %s: %v", gameID, err)
				continue
			}
		} else {
			round.Completed = true
			round.Win = true
			round.Payout = round.BetAmount
		}

		log.Printf("settling stale mines round %s at %.2fx", gameID, round.Multiplier)
		g.settleMinesLocked(gameID, instance)
	}
}

// ---- crash ----

// RunCrashRounds drives the shared round loop: start a round, wait for it
// to end, pause for the intermission, repeat. Blocks until Stop.
func (g *GameService) RunCrashRounds() {
	for {
		select {
		case <-g.stopRounds:
			return
		default:
		}

		serverSeed, err := fair.GenerateServerSeed()
		if err != nil {
			log.Printf("failed to generate round seed: %v", err)
			time.Sleep(time.Second)
			continue
		}

		g.mu.Lock()
		nonce := g.roundNonce
		g.roundNonce++
		roundID := models.GenerateGameID()
		g.crashMeta = &crashMeta{
			roundID:    roundID,
			serverSeed: serverSeed,
			nonce:      nonce,
		}
		g.mu.Unlock()

		if _, err := g.crashEngine.StartRound(roundID, serverSeed, nonce); err != nil {
			log.Printf("failed to start crash round: %v", err)
			time.Sleep(time.Second)
			continue
		}

		select {
		case <-g.roundEnded:
		case <-g.stopRounds:
			g.crashEngine.Stop()
			return
		}

		select {
		case <-time.After(g.cfg.CrashIntermission):
		case <-g.stopRounds:
			return
		}
	}
}

// JoinCrash places a bet on the live round.
func (g *GameService) JoinCrash(ctx context.Context, userID int64, req *models.CrashJoinRequest) (*models.GameRecord, error) {
	allowed, err := g.redisService.CheckRateLimit(userID, "bet", DefaultRateLimitBets, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %v", err)
	}
	if !allowed {
		return nil, fmt.Errorf("bet rate limit exceeded")
	}

	if _, err := g.redisService.GetWallet(userID); err != nil {
		return nil, fmt.Errorf("failed to get wallet: %v", err)
	}

	if err := g.redisService.LockBalanceForGame(userID, req.Amount); err != nil {
		return nil, fmt.Errorf("failed to lock balance: %v", err)
	}

	// The play bookkeeping and the persisted record must exist before the
	// engine admits the player: once Join returns, the round may crash at
	// any instant, and settlement only releases bets it finds in
	// crashPlays.
	g.mu.Lock()
	meta := g.crashMeta
	if meta == nil {
		g.mu.Unlock()
		g.redisService.ReleaseBalanceFromGame(userID, req.Amount, false, 0)
		return nil, games.StateErrorf("no active round")
	}
	if _, ok := g.crashPlays[userID]; ok {
		g.mu.Unlock()
		g.redisService.ReleaseBalanceFromGame(userID, req.Amount, false, 0)
		return nil, games.StateErrorf("player %d already joined this round", userID)
	}
	record := g.buildRecord(userID, models.GameTypeCrash, meta.serverSeed, meta.nonce, req.Amount)
	record.Status = "active"
	g.crashPlays[userID] = &crashPlay{
		gameID:    record.ID,
		betAmount: req.Amount,
	}
	g.mu.Unlock()

	if err := g.redisService.SaveGameRecord(record); err != nil {
		log.Printf("failed to persist crash record %s: %v", record.ID, err)
	}

	if err := g.crashEngine.Join(userID, req.Amount, req.AutoCashout); err != nil {
		g.mu.Lock()
		delete(g.crashPlays, userID)
		g.mu.Unlock()
		g.redisService.DiscardGameRecord(userID, record.ID)
		g.redisService.ReleaseBalanceFromGame(userID, req.Amount, false, 0)
		return nil, err
	}

	g.redisService.RecordBetPattern(userID, req.Amount, models.GameTypeCrash)

	return record, nil
}

// CashoutCrash exits the caller from the live round at the current
// multiplier. Wallet settlement follows on the cashout event.
func (g *GameService) CashoutCrash(ctx context.Context, userID int64) (*games.CrashResult, error) {
	allowed, err := g.redisService.CheckRateLimit(userID, "cashout", DefaultRateLimitCashout, time.Minute)
	if err != nil || !allowed {
		return nil, fmt.Errorf("cashout rate limit exceeded")
	}

	return g.crashEngine.Cashout(userID)
}

func (g *GameService) CrashState() *games.CrashRoundState {
	return g.crashEngine.State()
}

// consumeCrashEvents is the single settlement path for crash bets: every
// cashout (manual or auto) and every crash settles here, in event order,
// and is then fanned out to the broadcast layer.
func (g *GameService) consumeCrashEvents() {
	for ev := range g.crashEngine.Events() {
		switch ev.Type {
		case games.EventPlayerCashout:
			g.settleCrashCashout(ev)
		case games.EventRoundCrashed:
			g.settleCrashRound(ev)
		}

		g.mu.Lock()
		b := g.broadcaster
		g.mu.Unlock()
		if b != nil {
			b.BroadcastCrashEvent(ev)
		}
	}
}

func (g *GameService) settleCrashCashout(ev games.CrashEvent) {
	g.mu.Lock()
	play, ok := g.crashPlays[ev.PlayerID]
	g.mu.Unlock()
	if !ok {
		log.Printf("cashout event for unknown player %d in round %s", ev.PlayerID, ev.RoundID)
		return
	}

	if err := g.redisService.ReleaseBalanceFromGame(ev.PlayerID, play.betAmount, true, ev.Payout); err != nil {
		log.Printf("failed to settle crash cashout for %d: %v", ev.PlayerID, err)
	}

	record, err := g.redisService.GetGameRecord(play.gameID)
	if err != nil {
		log.Printf("crash record %s missing at cashout: %v", play.gameID, err)
		return
	}

	record.Multiplier = ev.Multiplier
	record.Payout = ev.Payout
	record.Win = true
	record.Status = "cashed_out"
	if err := g.redisService.UpdateGameRecord(record); err != nil {
		log.Printf("failed to persist crash record %s: %v", play.gameID, err)
	}
	g.redisService.CompleteGameRecord(ev.PlayerID, play.gameID)

	g.recordTransaction(ev.PlayerID, record, true, ev.Payout)
}

func (g *GameService) settleCrashRound(ev games.CrashEvent) {
	g.mu.Lock()
	plays := g.crashPlays
	g.crashPlays = make(map[int64]*crashPlay)
	g.mu.Unlock()

	for _, result := range ev.Results {
		play, ok := plays[result.PlayerID]
		if !ok {
			log.Printf("no play entry for player %d in round %s", result.PlayerID, ev.RoundID)
			continue
		}

		// Release the lost bet before touching the record: a missing
		// record must never leave funds locked.
		if !result.Exited {
			if err := g.redisService.ReleaseBalanceFromGame(result.PlayerID, play.betAmount, false, 0); err != nil {
				log.Printf("failed to settle crash loss for %d: %v", result.PlayerID, err)
			}
		}

		record, err := g.redisService.GetGameRecord(play.gameID)
		if err != nil {
			log.Printf("crash record %s missing at crash: %v", play.gameID, err)
			continue
		}

		if result.Exited {
			// Wallet settled on the cashout event; the record just needs
			// the now-revealed crash point for the audit trail.
			record.CrashPoint = ev.CrashPoint
			record.Outcome, _ = json.Marshal(result)
			if err := g.redisService.UpdateGameRecord(record); err != nil {
				log.Printf("failed to persist crash record %s: %v", play.gameID, err)
			}
			continue
		}

		record.CrashPoint = ev.CrashPoint
		record.Payout = 0
		record.Win = false
		record.Status = "crashed"
		record.Outcome, _ = json.Marshal(result)
		if err := g.redisService.UpdateGameRecord(record); err != nil {
			log.Printf("failed to persist crash record %s: %v", play.gameID, err)
		}
		g.redisService.CompleteGameRecord(result.PlayerID, play.gameID)

		g.recordTransaction(result.PlayerID, record, false, 0)
	}

	select {
	case g.roundEnded <- struct{}{}:
	default:
	}
}

// ---- verification ----

// VerifyGame recomputes a stored outcome from its persisted seed and
// nonce. A mismatch flags the audit record as compromised.
func (g *GameService) VerifyGame(gameID string) (*models.VerifyResponse, error) {
	record, err := g.redisService.GetGameRecord(gameID)
	if err != nil {
		return nil, err
	}

	if record.Status == "active" {
		return nil, games.StateErrorf("game %s is still in progress", gameID)
	}

	resp := &models.VerifyResponse{
		GameID:     record.ID,
		GameType:   record.GameType,
		ServerSeed: record.ServerSeed,
		SeedHash:   record.ServerSeedHash,
		Nonce:      record.Nonce,
	}

	switch record.GameType {
	case models.GameTypePlinko:
		var result games.PlinkoResult
		if err := json.Unmarshal(record.Outcome, &result); err != nil {
			return nil, fmt.Errorf("failed to decode plinko outcome: %v", err)
		}
		err = games.VerifyPlinko(g.rules, &result, record.ServerSeed)

	case models.GameTypeMines:
		var round games.MinesRound
		if err := json.Unmarshal(record.Outcome, &round); err != nil {
			return nil, fmt.Errorf("failed to decode mines outcome: %v", err)
		}
		err = round.Verify(record.ServerSeed)

	case models.GameTypeCrash:
		if record.CrashPoint == 0 {
			return nil, games.StateErrorf("round for game %s has not crashed yet", gameID)
		}
		err = games.VerifyCrashPoint(g.cfg.HouseEdge, g.cfg.CrashMaxMult, record.CrashPoint, record.ServerSeed, record.Nonce)

	default:
		return nil, fmt.Errorf("unknown game type %s", record.GameType)
	}

	if err != nil {
		resp.Valid = false
		resp.Detail = err.Error()
	} else {
		resp.Valid = true
	}

	return resp, nil
}

// ---- shared ----

func (g *GameService) buildRecord(userID int64, gameType models.GameType, serverSeed string, nonce int64, bet float64) *models.GameRecord {
	now := time.Now()
	return &models.GameRecord{
		ID:             models.GenerateGameID(),
		UserID:         userID,
		GameType:       gameType,
		ServerSeed:     serverSeed,
		ServerSeedHash: fair.SeedHash(serverSeed),
		Nonce:          nonce,
		BetAmount:      bet,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (g *GameService) recordTransaction(userID int64, record *models.GameRecord, won bool, payout float64) {
	txType := models.TransactionTypeBet
	description := fmt.Sprintf("Placed bet on %s", record.GameType)

	if won {
		txType = models.TransactionTypeWin
		description = fmt.Sprintf("Won %s on %s (%.2fx)", models.FormatCurrency(payout), record.GameType, record.Multiplier)
	}

	wallet, err := g.redisService.GetWallet(userID)
	if err != nil {
		log.Printf("failed to load wallet for transaction: %v", err)
		return
	}

	tx := &models.Transaction{
		ID:            models.GenerateTransactionID(),
		UserID:        userID,
		Type:          txType,
		Amount:        payout,
		BalanceBefore: wallet.Balance - payout,
		BalanceAfter:  wallet.Balance,
		GameID:        record.ID,
		Description:   description,
		CreatedAt:     time.Now(),
	}

	if err := g.redisService.SaveTransaction(tx); err != nil {
		log.Printf("failed to save transaction: %v", err)
	}
}

// Stop shuts the whole game layer down: the round loop, any live crash
// round and its ticker, and the event stream.
func (g *GameService) Stop() {
	g.stopOnce.Do(func() {
		close(g.stopRounds)
		g.crashEngine.Close()
	})
}
