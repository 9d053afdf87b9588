package games_test

import (
	"math"
	"testing"
	"time"

	"fairplay-backend/internal/games"
)

// findCrashNonce scans nonces until the derived crash point lands inside
// [min, max), so engine tests can run against a known outcome.
func findCrashNonce(t *testing.T, seed string, min, max float64) (int64, float64) {
	t.Helper()
	for nonce := int64(0); nonce < 100000; nonce++ {
		point, err := games.ComputeCrashPoint(0.01, 1000000, seed, nonce)
		if err != nil {
			t.Fatalf("ComputeCrashPoint failed: %v", err)
		}
		if point >= min && point < max {
			return nonce, point
		}
	}
	t.Fatalf("no nonce with crash point in [%f, %f) for seed %q", min, max, seed)
	return 0, 0
}

func TestCrashPointDeterministic(t *testing.T) {
	p1, err := games.ComputeCrashPoint(0.01, 1000000, "crash-seed", 5)
	if err != nil {
		t.Fatalf("ComputeCrashPoint failed: %v", err)
	}

	p2, err := games.ComputeCrashPoint(0.01, 1000000, "crash-seed", 5)
	if err != nil {
		t.Fatalf("ComputeCrashPoint failed on replay: %v", err)
	}

	if p1 != p2 {
		t.Errorf("crash point not deterministic: %f vs %f", p1, p2)
	}

	if p1 < 1.0 || p1 > 1000000 {
		t.Errorf("crash point %f outside [1, 1000000]", p1)
	}

	if p1 != math.Round(p1*100)/100 {
		t.Errorf("crash point %f not rounded to 2 decimals", p1)
	}
}

func TestCrashPointMean(t *testing.T) {
	// E[point - 1] = E[-ln(u)] * (1 - houseEdge) = 0.99. Large-sample
	// mean should land near it.
	var sum float64
	n := 10000
	for nonce := 0; nonce < n; nonce++ {
		point, err := games.ComputeCrashPoint(0.01, 1000000, "mean-seed", int64(nonce))
		if err != nil {
			t.Fatalf("ComputeCrashPoint failed: %v", err)
		}
		sum += point - 1
	}

	mean := sum / float64(n)
	if mean < 0.92 || mean > 1.06 {
		t.Errorf("mean excess %f outside expected band [0.92, 1.06]", mean)
	}
}

func TestCrashPointVerify(t *testing.T) {
	point, err := games.ComputeCrashPoint(0.01, 1000000, "verify-seed", 12)
	if err != nil {
		t.Fatalf("ComputeCrashPoint failed: %v", err)
	}

	if err := games.VerifyCrashPoint(0.01, 1000000, point, "verify-seed", 12); err != nil {
		t.Errorf("verification of untampered point failed: %v", err)
	}

	err = games.VerifyCrashPoint(0.01, 1000000, point+0.5, "verify-seed", 12)
	if err == nil {
		t.Fatal("tampered crash point should fail verification")
	}
	var vErr *games.VerifyError
	if !asError(err, &vErr) {
		t.Errorf("expected VerifyError, got %T: %v", err, err)
	}
}

func TestCrashJoinRejections(t *testing.T) {
	engine := games.NewCrashEngine(games.CrashConfig{
		TickInterval: 5 * time.Millisecond,
		MaxDuration:  10 * time.Second,
	})
	defer engine.Close()

	var stErr *games.StateError
	var cfgErr *games.ConfigError

	if err := engine.Join(1, 100, 0); err == nil || !asError(err, &stErr) {
		t.Errorf("join without a round should return StateError, got %v", err)
	}

	nonce, _ := findCrashNonce(t, "join-seed", 2.0, 100)
	if _, err := engine.StartRound("round-1", "join-seed", nonce); err != nil {
		t.Fatalf("StartRound failed: %v", err)
	}

	if err := engine.Join(1, 0.5, 0); err == nil || !asError(err, &cfgErr) {
		t.Errorf("bet below minimum should return ConfigError, got %v", err)
	}
	if err := engine.Join(1, 100, 1.005); err == nil || !asError(err, &cfgErr) {
		t.Errorf("auto cashout below 1.01 should return ConfigError, got %v", err)
	}

	if err := engine.Join(1, 100, 0); err != nil {
		t.Fatalf("valid join failed: %v", err)
	}
	if err := engine.Join(1, 100, 0); err == nil || !asError(err, &stErr) {
		t.Errorf("duplicate join should return StateError, got %v", err)
	}

	if _, err := engine.StartRound("round-2", "join-seed", nonce); err == nil || !asError(err, &stErr) {
		t.Errorf("starting over an active round should return StateError, got %v", err)
	}
}

func TestCrashAutoCashoutSettlesAtThreshold(t *testing.T) {
	// Fast round: multiplier is 101^elapsedSeconds, so 2.5x arrives in
	// ~200ms and the 3x+ crash point shortly after.
	engine := games.NewCrashEngine(games.CrashConfig{
		HouseEdge:    0.01,
		GrowthRate:   100,
		TickInterval: 5 * time.Millisecond,
		MaxDuration:  30 * time.Second,
	})
	defer engine.Close()

	nonce, point := findCrashNonce(t, "auto-seed", 3.0, 50)

	if _, err := engine.StartRound("round-1", "auto-seed", nonce); err != nil {
		t.Fatalf("StartRound failed: %v", err)
	}
	if err := engine.Join(1, 100, 2.5); err != nil {
		t.Fatalf("Join with auto cashout failed: %v", err)
	}
	if err := engine.Join(2, 40, 0); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	var cashouts []games.CrashEvent
	var crashed *games.CrashEvent

	deadline := time.After(10 * time.Second)
	for crashed == nil {
		select {
		case ev, ok := <-engine.Events():
			if !ok {
				t.Fatal("event channel closed before round ended")
			}
			switch ev.Type {
			case games.EventPlayerCashout:
				cashouts = append(cashouts, ev)
			case games.EventRoundCrashed:
				crashed = &ev
			}
		case <-deadline:
			t.Fatal("round did not crash in time")
		}
	}

	if crashed.CrashPoint != point {
		t.Errorf("crash event point %f does not match derived %f", crashed.CrashPoint, point)
	}

	if len(cashouts) != 1 {
		t.Fatalf("expected exactly one auto cashout, got %d", len(cashouts))
	}
	if !cashouts[0].Auto {
		t.Error("cashout should be flagged auto")
	}
	if cashouts[0].Multiplier != 2.5 {
		t.Errorf("auto cashout should settle at exactly 2.5, got %f", cashouts[0].Multiplier)
	}
	if cashouts[0].Payout != 250 {
		t.Errorf("auto cashout payout should be 250, got %f", cashouts[0].Payout)
	}

	if len(crashed.Results) != 2 {
		t.Fatalf("expected 2 settlement results, got %d", len(crashed.Results))
	}
	for _, r := range crashed.Results {
		switch r.PlayerID {
		case 1:
			if !r.Exited || r.ExitMultiplier != 2.5 || r.Payout != 250 {
				t.Errorf("player 1 settlement wrong: %+v", r)
			}
		case 2:
			if r.ExitMultiplier != 0 || r.Payout != 0 {
				t.Errorf("player 2 should lose the bet: %+v", r)
			}
		default:
			t.Errorf("unexpected player %d in results", r.PlayerID)
		}
	}

	// Terminal state: the engine is free for a new round and the old one
	// rejects further play.
	var stErr *games.StateError
	if err := engine.Join(3, 100, 0); err == nil || !asError(err, &stErr) {
		t.Errorf("join after crash should return StateError, got %v", err)
	}
	if _, err := engine.Cashout(1); err == nil || !asError(err, &stErr) {
		t.Errorf("cashout after crash should return StateError, got %v", err)
	}
	if _, err := engine.StartRound("round-2", "auto-seed", nonce); err != nil {
		t.Errorf("engine should accept a new round after crash: %v", err)
	}
	engine.Stop()
}

func TestCrashManualCashout(t *testing.T) {
	engine := games.NewCrashEngine(games.CrashConfig{
		HouseEdge:    0.01,
		GrowthRate:   100,
		TickInterval: 5 * time.Millisecond,
		MaxDuration:  30 * time.Second,
	})
	defer engine.Close()

	nonce, _ := findCrashNonce(t, "manual-seed", 5.0, 100)

	if _, err := engine.StartRound("round-1", "manual-seed", nonce); err != nil {
		t.Fatalf("StartRound failed: %v", err)
	}
	if err := engine.Join(7, 100, 0); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	// Let a few ticks pass so the multiplier moves off 1.0.
	time.Sleep(50 * time.Millisecond)

	result, err := engine.Cashout(7)
	if err != nil {
		t.Fatalf("Cashout failed: %v", err)
	}

	if result.ExitMultiplier < 1.0 {
		t.Errorf("exit multiplier %f below 1.0", result.ExitMultiplier)
	}
	expected := math.Round(100*result.ExitMultiplier*100) / 100
	if result.Payout != expected {
		t.Errorf("payout %f does not match bet*multiplier %f", result.Payout, expected)
	}

	if _, err := engine.Cashout(7); err == nil {
		t.Error("second cashout should fail")
	}

	engine.Stop()
}

func TestCrashDurationCeiling(t *testing.T) {
	// Growth so slow the multiplier never reaches the crash point; the
	// wall-clock ceiling must end the round instead.
	engine := games.NewCrashEngine(games.CrashConfig{
		HouseEdge:    0.01,
		GrowthRate:   0.0001,
		TickInterval: 5 * time.Millisecond,
		MaxDuration:  50 * time.Millisecond,
	})
	defer engine.Close()

	nonce, _ := findCrashNonce(t, "ceiling-seed", 2.0, 100)

	if _, err := engine.StartRound("round-1", "ceiling-seed", nonce); err != nil {
		t.Fatalf("StartRound failed: %v", err)
	}
	if err := engine.Join(1, 100, 0); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-engine.Events():
			if !ok {
				t.Fatal("event channel closed before round ended")
			}
			if ev.Type == games.EventRoundCrashed {
				if len(ev.Results) != 1 || ev.Results[0].Payout != 0 {
					t.Errorf("ceiling settlement wrong: %+v", ev.Results)
				}
				return
			}
		case <-deadline:
			t.Fatal("duration ceiling did not end the round")
		}
	}
}

func TestCrashStopTeardown(t *testing.T) {
	engine := games.NewCrashEngine(games.CrashConfig{
		GrowthRate:   0.0001,
		TickInterval: 5 * time.Millisecond,
		MaxDuration:  30 * time.Second,
	})
	defer engine.Close()

	nonce, _ := findCrashNonce(t, "stop-seed", 2.0, 100)

	if _, err := engine.StartRound("round-1", "stop-seed", nonce); err != nil {
		t.Fatalf("StartRound failed: %v", err)
	}

	engine.Stop()

	state := engine.State()
	if state.Active {
		t.Error("round should be inactive after Stop")
	}

	// A fresh round must be accepted once the old one is torn down.
	if _, err := engine.StartRound("round-2", "stop-seed", nonce); err != nil {
		t.Errorf("StartRound after Stop failed: %v", err)
	}
	engine.Stop()
}

func TestCrashConcurrentJoins(t *testing.T) {
	engine := games.NewCrashEngine(games.CrashConfig{
		GrowthRate:   0.0001,
		TickInterval: 5 * time.Millisecond,
		MaxDuration:  30 * time.Second,
	})
	defer engine.Close()

	nonce, _ := findCrashNonce(t, "concurrent-seed", 2.0, 100)
	if _, err := engine.StartRound("round-1", "concurrent-seed", nonce); err != nil {
		t.Fatalf("StartRound failed: %v", err)
	}

	done := make(chan error, 50)
	for i := 0; i < 50; i++ {
		go func(playerID int64) {
			done <- engine.Join(playerID, 100, 0)
		}(int64(i + 1))
	}

	for i := 0; i < 50; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent join failed: %v", err)
		}
	}

	state := engine.State()
	if state.PlayerCount != 50 {
		t.Errorf("expected 50 players, got %d", state.PlayerCount)
	}

	engine.Stop()
}
