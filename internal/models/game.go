package models

import (
	"encoding/json"
	"time"
)

type GameType string

const (
	GameTypePlinko GameType = "plinko"
	GameTypeMines  GameType = "mines"
	GameTypeCrash  GameType = "crash"
)

// GameRecord is the persisted audit trail for one finished play or
// round: the seed material plus the serialized outcome, enough to
// recompute and verify the result later.
type GameRecord struct {
	ID       string   `json:"id" redis:"id"`
	UserID   int64    `json:"user_id" redis:"user_id"`
	GameType GameType `json:"game_type" redis:"game_type"`

	ServerSeed     string `json:"server_seed" redis:"server_seed"`
	ServerSeedHash string `json:"server_seed_hash" redis:"server_seed_hash"`
	Nonce          int64  `json:"nonce" redis:"nonce"`

	BetAmount  float64 `json:"bet_amount" redis:"bet_amount"`
	Multiplier float64 `json:"multiplier" redis:"multiplier"`
	CrashPoint float64 `json:"crash_point,omitempty" redis:"crash_point"`
	Payout     float64 `json:"payout" redis:"payout"`
	Win        bool    `json:"win" redis:"win"`

	// Outcome holds the game-specific result (plinko path, mines round,
	// crash settlement) as raw JSON for the audit endpoint.
	Outcome json.RawMessage `json:"outcome,omitempty"`

	Status    string    `json:"status" redis:"status"` // active, completed, cashed_out, crashed
	CreatedAt time.Time `json:"created_at" redis:"created_at"`
	UpdatedAt time.Time `json:"updated_at" redis:"updated_at"`
}
