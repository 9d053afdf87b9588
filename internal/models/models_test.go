package models_test

import (
	"testing"

	"fairplay-backend/internal/models"
)

func TestModels(t *testing.T) {
	record := &models.GameRecord{
		ID:        models.GenerateGameID(),
		UserID:    123456789,
		GameType:  models.GameTypePlinko,
		BetAmount: 1000, // $10.00
		Status:    "active",
	}

	if record.ID == "" {
		t.Error("GameRecord ID should not be empty")
	}

	other := models.GenerateGameID()
	if other == record.ID {
		t.Error("generated game IDs should not collide")
	}

	wallet := models.NewWallet(123456789)

	if wallet.Balance != 10000 {
		t.Errorf("Expected starting balance 10000, got %f", wallet.Balance)
	}

	if wallet.Nonce != 0 {
		t.Errorf("Fresh wallet nonce should be 0, got %d", wallet.Nonce)
	}

	if models.FormatCurrency(12345) != "$123.45" {
		t.Errorf("FormatCurrency wrong: %s", models.FormatCurrency(12345))
	}
}
