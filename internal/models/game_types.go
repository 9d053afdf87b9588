package models

type PlinkoPlayRequest struct {
	Rows   int     `json:"rows" binding:"required"`
	Risk   string  `json:"risk" binding:"required"`
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

type MinesStartRequest struct {
	GridSize  int     `json:"grid_size" binding:"required,min=9,max=25"`
	MineCount int     `json:"mine_count" binding:"required,min=1,max=24"`
	Amount    float64 `json:"amount" binding:"required,gt=0"`
}

type MinesRevealRequest struct {
	GameID string `json:"game_id" binding:"required"`
	Cell   int    `json:"cell" binding:"min=0,max=24"`
}

type MinesCashoutRequest struct {
	GameID string `json:"game_id" binding:"required"`
}

type MinesRevealResponse struct {
	GameID     string  `json:"game_id"`
	IsMine     bool    `json:"is_mine"`
	Multiplier float64 `json:"multiplier"`
	Revealed   []int   `json:"revealed"`
	GameOver   bool    `json:"game_over"`
	Win        bool    `json:"win"`
	Mines      []int   `json:"mines,omitempty"` // revealed only once the round is over
	Payout     float64 `json:"payout,omitempty"`
}

type CrashJoinRequest struct {
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	AutoCashout float64 `json:"auto_cashout"` // 0 disables auto cashout
}

type VerifyRequest struct {
	GameID string `json:"game_id" binding:"required"`
}

type VerifyResponse struct {
	GameID     string   `json:"game_id"`
	GameType   GameType `json:"game_type"`
	ServerSeed string   `json:"server_seed"`
	SeedHash   string   `json:"seed_hash"`
	Nonce      int64    `json:"nonce"`
	Valid      bool     `json:"valid"`
	Detail     string   `json:"detail,omitempty"`
}
