package models

// Wallet is the balance ledger entry for one user. The games never touch
// it: the service debits the bet before a play and credits the payout
// after the result comes back. Nonce is the per-user provably fair
// counter advanced on every play.
type Wallet struct {
	UserID        int64   `json:"user_id" redis:"user_id"`
	Balance       float64 `json:"balance" redis:"balance"`
	LockedBalance float64 `json:"locked_balance" redis:"locked_balance"`
	TotalWagered  float64 `json:"total_wagered" redis:"total_wagered"`
	TotalWon      float64 `json:"total_won" redis:"total_won"`

	Nonce int64 `json:"nonce" redis:"nonce"`
}

type BalanceResponse struct {
	Balance       float64 `json:"balance"`
	LockedBalance float64 `json:"locked_balance"`
	TotalWagered  float64 `json:"total_wagered"`
	TotalWon      float64 `json:"total_won"`
	Available     float64 `json:"available"` // Balance - LockedBalance
}
