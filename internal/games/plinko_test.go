package games_test

import (
	"math"
	"testing"

	"fairplay-backend/internal/games"
)

var testRules = games.Rules{
	HouseEdge: 0.01,
	MinBet:    1,
	MaxBet:    10000,
}

func TestPlinkoDeterministic(t *testing.T) {
	first, err := games.PlayPlinko(testRules, 8, games.PlinkoRiskLow, 100, "abc", 1)
	if err != nil {
		t.Fatalf("PlayPlinko failed: %v", err)
	}

	if len(first.Path) != 8 {
		t.Errorf("expected 8 path steps, got %d", len(first.Path))
	}
	if first.Slot < 0 || first.Slot > 8 {
		t.Errorf("slot %d out of range [0, 8]", first.Slot)
	}

	replay, err := games.PlayPlinko(testRules, 8, games.PlinkoRiskLow, 100, "abc", 1)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if replay.Slot != first.Slot {
		t.Errorf("slot not reproducible: %d vs %d", replay.Slot, first.Slot)
	}
	if replay.Multiplier != first.Multiplier {
		t.Errorf("multiplier not reproducible: %f vs %f", replay.Multiplier, first.Multiplier)
	}
	for i := range first.Path {
		if replay.Path[i] != first.Path[i] {
			t.Errorf("path differs at row %d: %s vs %s", i, replay.Path[i], first.Path[i])
		}
	}
}

func TestPlinkoSlotMatchesPath(t *testing.T) {
	result, err := games.PlayPlinko(testRules, 16, games.PlinkoRiskHigh, 50, "slot-check", 42)
	if err != nil {
		t.Fatalf("PlayPlinko failed: %v", err)
	}

	rights := 0
	for _, step := range result.Path {
		if step == "right" {
			rights++
		}
	}

	if rights != result.Slot {
		t.Errorf("slot %d does not match %d right steps", result.Slot, rights)
	}
}

func TestPlinkoConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		rows int
		risk games.PlinkoRisk
		bet  float64
	}{
		{"bad rows", 10, games.PlinkoRiskLow, 100},
		{"bad risk", 8, "extreme", 100},
		{"bet too low", 8, games.PlinkoRiskLow, 0.5},
		{"bet too high", 8, games.PlinkoRiskLow, 20000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := games.PlayPlinko(testRules, tc.rows, tc.risk, tc.bet, "seed", 0)
			if err == nil {
				t.Fatal("expected an error")
			}
			var cfgErr *games.ConfigError
			if !asError(err, &cfgErr) {
				t.Errorf("expected ConfigError, got %T: %v", err, err)
			}
		})
	}
}

func TestPlinkoTablesReturnRate(t *testing.T) {
	// Every table should sit near 99% expected return under the binomial
	// slot distribution.
	for _, rows := range []int{8, 12, 16} {
		for _, risk := range []games.PlinkoRisk{games.PlinkoRiskLow, games.PlinkoRiskMedium, games.PlinkoRiskHigh} {
			stats, err := games.GetPlinkoStats(rows, risk)
			if err != nil {
				t.Fatalf("GetPlinkoStats(%d, %s) failed: %v", rows, risk, err)
			}

			if stats.ExpectedReturn < 0.98 || stats.ExpectedReturn > 1.0 {
				t.Errorf("rows=%d risk=%s: expected return %.4f outside [0.98, 1.0]",
					rows, risk, stats.ExpectedReturn)
			}

			var probSum float64
			for _, p := range stats.Probabilities {
				probSum += p
			}
			if math.Abs(probSum-1.0) > 1e-9 {
				t.Errorf("rows=%d risk=%s: probabilities sum to %f", rows, risk, probSum)
			}

			if stats.MinMultiplier > stats.MaxMultiplier {
				t.Errorf("rows=%d risk=%s: min %.2f > max %.2f",
					rows, risk, stats.MinMultiplier, stats.MaxMultiplier)
			}
		}
	}
}

func TestPlinkoVerify(t *testing.T) {
	result, err := games.PlayPlinko(testRules, 12, games.PlinkoRiskMedium, 200, "verify-seed", 9)
	if err != nil {
		t.Fatalf("PlayPlinko failed: %v", err)
	}

	if err := games.VerifyPlinko(testRules, result, "verify-seed"); err != nil {
		t.Errorf("verification of untampered result failed: %v", err)
	}

	tampered := *result
	tampered.Slot = (tampered.Slot + 1) % 13
	err = games.VerifyPlinko(testRules, &tampered, "verify-seed")
	if err == nil {
		t.Fatal("tampered result should fail verification")
	}
	var vErr *games.VerifyError
	if !asError(err, &vErr) {
		t.Errorf("expected VerifyError, got %T: %v", err, err)
	}
}

func TestPlinkoPayout(t *testing.T) {
	result, err := games.PlayPlinko(testRules, 8, games.PlinkoRiskMedium, 100, "payout-seed", 3)
	if err != nil {
		t.Fatalf("PlayPlinko failed: %v", err)
	}

	expected := result.BetAmount * result.Multiplier
	if math.Abs(result.Payout-expected) > 0.01 {
		t.Errorf("payout %f does not match bet*multiplier %f", result.Payout, expected)
	}

	if result.Win != (result.Payout > result.BetAmount) {
		t.Errorf("win flag %v inconsistent with payout %f vs bet %f",
			result.Win, result.Payout, result.BetAmount)
	}
}
