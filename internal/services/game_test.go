package services_test

import (
	"context"
	"testing"
	"time"

	"fairplay-backend/internal/config"
	"fairplay-backend/internal/models"
	"fairplay-backend/internal/services"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:       "test",
		RedisURL:  "localhost:6379",
		HouseEdge: 0.01,
		MinBet:    1,
		MaxBet:    10000,

		CrashGrowthRate:   0.10,
		CrashMaxMult:      1000000,
		CrashTickInterval: 100 * time.Millisecond,
		CrashMaxDuration:  2 * time.Minute,
		CrashIntermission: 5 * time.Second,
	}
}

func setupGameService(t *testing.T) (*services.GameService, *services.RedisService) {
	redisService := setupTestRedis(t)
	return services.NewGameService(testConfig(), redisService), redisService
}

func TestPlayPlinkoFlow(t *testing.T) {
	svc, redisService := setupGameService(t)
	defer redisService.Close()
	defer svc.Stop()

	ctx := context.Background()
	userID := int64(888801)
	redisService.DeleteWallet(userID)
	redisService.ClearRateLimit(userID, "bet")

	result, record, err := svc.PlayPlinko(ctx, userID, &models.PlinkoPlayRequest{
		Rows:   16,
		Risk:   "medium",
		Amount: 100,
	})
	if err != nil {
		t.Fatalf("Failed to play plinko: %v", err)
	}

	if len(result.Path) != 16 {
		t.Errorf("Expected 16 path steps, got %d", len(result.Path))
	}
	if record.Status != "completed" {
		t.Errorf("Plinko record should settle immediately, got status %s", record.Status)
	}

	wallet, err := redisService.GetWallet(userID)
	if err != nil {
		t.Fatalf("Failed to get wallet: %v", err)
	}
	want := 10000 - 100 + result.Payout
	if wallet.Balance != want {
		t.Errorf("Expected balance %f, got %f", want, wallet.Balance)
	}
	if wallet.LockedBalance != 0 {
		t.Errorf("No balance should stay locked after a settled play, got %f", wallet.LockedBalance)
	}

	resp, err := svc.VerifyGame(record.ID)
	if err != nil {
		t.Fatalf("Failed to verify plinko game: %v", err)
	}
	if !resp.Valid {
		t.Errorf("Fresh plinko record should verify, detail: %s", resp.Detail)
	}

	redisService.DeleteWallet(userID)
	redisService.DeleteGameRecord(record.ID)
}

func TestMinesFlow(t *testing.T) {
	svc, redisService := setupGameService(t)
	defer redisService.Close()
	defer svc.Stop()

	ctx := context.Background()
	userID := int64(888802)
	redisService.DeleteWallet(userID)
	redisService.ClearRateLimit(userID, "bet")
	redisService.ClearRateLimit(userID, "cashout")

	record, round, err := svc.StartMines(ctx, userID, &models.MinesStartRequest{
		GridSize:  25,
		MineCount: 5,
		Amount:    200,
	})
	if err != nil {
		t.Fatalf("Failed to start mines: %v", err)
	}

	wallet, err := redisService.GetWallet(userID)
	if err != nil {
		t.Fatalf("Failed to get wallet: %v", err)
	}
	if wallet.LockedBalance != 200 {
		t.Errorf("Stake should be locked while the round runs, got %f", wallet.LockedBalance)
	}

	mined := make(map[int]bool)
	for _, m := range round.Mines {
		mined[m] = true
	}
	safe := -1
	for cell := 0; cell < round.GridSize; cell++ {
		if !mined[cell] {
			safe = cell
			break
		}
	}

	updated, err := svc.RevealMines(ctx, userID, record.ID, safe)
	if err != nil {
		t.Fatalf("Failed to reveal cell: %v", err)
	}
	if updated.Multiplier <= 1.0 {
		t.Errorf("One safe reveal should lift the multiplier above 1, got %f", updated.Multiplier)
	}

	final, err := svc.CashoutMines(ctx, userID, record.ID)
	if err != nil {
		t.Fatalf("Failed to cash out: %v", err)
	}
	if !final.Win {
		t.Error("Cashout after a safe reveal should win")
	}

	wallet, err = redisService.GetWallet(userID)
	if err != nil {
		t.Fatalf("Failed to get wallet after cashout: %v", err)
	}
	if wallet.LockedBalance != 0 {
		t.Errorf("Locked balance should clear after settlement, got %f", wallet.LockedBalance)
	}
	want := 10000 - 200 + final.Payout
	if wallet.Balance != want {
		t.Errorf("Expected balance %f, got %f", want, wallet.Balance)
	}

	if _, err := svc.GetMinesRound(userID, record.ID); err == nil {
		t.Error("Settled round should no longer be active")
	}

	resp, err := svc.VerifyGame(record.ID)
	if err != nil {
		t.Fatalf("Failed to verify mines game: %v", err)
	}
	if !resp.Valid {
		t.Errorf("Settled mines record should verify, detail: %s", resp.Detail)
	}

	redisService.DeleteWallet(userID)
	redisService.DeleteGameRecord(record.ID)
}

func TestVerifyActiveGameRejected(t *testing.T) {
	svc, redisService := setupGameService(t)
	defer redisService.Close()
	defer svc.Stop()

	ctx := context.Background()
	userID := int64(888803)
	redisService.DeleteWallet(userID)
	redisService.ClearRateLimit(userID, "bet")

	record, _, err := svc.StartMines(ctx, userID, &models.MinesStartRequest{
		GridSize:  25,
		MineCount: 3,
		Amount:    50,
	})
	if err != nil {
		t.Fatalf("Failed to start mines: %v", err)
	}

	if _, err := svc.VerifyGame(record.ID); err == nil {
		t.Error("Verifying a round still in progress should fail")
	}

	redisService.DeleteWallet(userID)
	redisService.DeleteGameRecord(record.ID)
}

func TestCrashBetAlwaysSettled(t *testing.T) {
	redisService := setupTestRedis(t)
	defer redisService.Close()

	// Rounds that crash within milliseconds of starting, so a join lands
	// arbitrarily close to the crash itself.
	cfg := testConfig()
	cfg.CrashGrowthRate = 100
	cfg.CrashTickInterval = time.Millisecond
	cfg.CrashMaxDuration = 2 * time.Second
	cfg.CrashIntermission = 10 * time.Millisecond

	svc := services.NewGameService(cfg, redisService)
	defer svc.Stop()

	go svc.RunCrashRounds()

	ctx := context.Background()
	userID := int64(888804)
	redisService.DeleteWallet(userID)

	var record *models.GameRecord
	deadline := time.Now().Add(5 * time.Second)
	for {
		redisService.ClearRateLimit(userID, "bet")

		var err error
		record, err = svc.JoinCrash(ctx, userID, &models.CrashJoinRequest{Amount: 100})
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("could not join a round: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	// Whether the player cashed out or the round crashed first, the
	// record must leave "active" and the locked bet must be released.
	settled := false
	for wait := time.Now().Add(5 * time.Second); time.Now().Before(wait); {
		rec, err := redisService.GetGameRecord(record.ID)
		if err == nil && rec.Status != "active" {
			settled = true
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !settled {
		t.Fatal("crash bet record was never settled")
	}

	wallet, err := redisService.GetWallet(userID)
	if err != nil {
		t.Fatalf("Failed to get wallet: %v", err)
	}
	if wallet.LockedBalance != 0 {
		t.Errorf("settled crash bet left %f locked", wallet.LockedBalance)
	}

	redisService.DeleteWallet(userID)
	redisService.DeleteGameRecord(record.ID)
}

func TestCrashDuplicateJoinKeepsFirstBet(t *testing.T) {
	redisService := setupTestRedis(t)
	defer redisService.Close()

	// Slow growth keeps the round alive long enough to join twice.
	cfg := testConfig()
	cfg.CrashGrowthRate = 0.0001
	cfg.CrashTickInterval = 5 * time.Millisecond
	cfg.CrashMaxDuration = 30 * time.Second
	cfg.CrashIntermission = 10 * time.Millisecond

	svc := services.NewGameService(cfg, redisService)
	defer svc.Stop()

	go svc.RunCrashRounds()

	ctx := context.Background()
	userID := int64(888805)
	redisService.DeleteWallet(userID)
	redisService.ClearRateLimit(userID, "bet")

	var record *models.GameRecord
	deadline := time.Now().Add(5 * time.Second)
	for {
		var err error
		record, err = svc.JoinCrash(ctx, userID, &models.CrashJoinRequest{Amount: 100})
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("could not join a round: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := svc.JoinCrash(ctx, userID, &models.CrashJoinRequest{Amount: 50}); err == nil {
		t.Fatal("duplicate join should be rejected")
	}

	// The rejected bet must be refunded and the first bet left intact.
	wallet, err := redisService.GetWallet(userID)
	if err != nil {
		t.Fatalf("Failed to get wallet: %v", err)
	}
	if wallet.LockedBalance != 100 {
		t.Errorf("only the first bet should stay locked, got %f", wallet.LockedBalance)
	}

	rec, err := redisService.GetGameRecord(record.ID)
	if err != nil {
		t.Fatalf("first bet record missing: %v", err)
	}
	if rec.Status != "active" {
		t.Errorf("first bet should still be active, got %s", rec.Status)
	}

	svc.Stop()
	redisService.DeleteWallet(userID)
	redisService.DeleteGameRecord(record.ID)
}
