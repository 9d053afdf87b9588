package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fairplay-backend/internal/games"
	"fairplay-backend/internal/models"
	"fairplay-backend/internal/services"
)

type GameHandler struct {
	gameService  *services.GameService
	redisService *services.RedisService
}

func NewGameHandler(gameService *services.GameService, redisService *services.RedisService) *GameHandler {
	return &GameHandler{
		gameService:  gameService,
		redisService: redisService,
	}
}

// statusForGameError maps the engine error kinds onto HTTP statuses:
// bad configuration is the caller's request, state conflicts mean a
// stale client, verification mismatches flag the record itself.
func statusForGameError(err error) int {
	var cfgErr *games.ConfigError
	if errors.As(err, &cfgErr) {
		return http.StatusBadRequest
	}
	var stErr *games.StateError
	if errors.As(err, &stErr) {
		return http.StatusConflict
	}
	var vErr *games.VerifyError
	if errors.As(err, &vErr) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

func (h *GameHandler) PlayPlinko(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req models.PlinkoPlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	result, record, err := h.gameService.PlayPlinko(c.Request.Context(), userID, &req)
	if err != nil {
		c.JSON(statusForGameError(err), gin.H{
			"error":   "Failed to play plinko",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game": gin.H{
			"id":               record.ID,
			"path":             result.Path,
			"slot":             result.Slot,
			"multiplier":       result.Multiplier,
			"payout":           result.Payout,
			"win":              result.Win,
			"server_seed":      record.ServerSeed,
			"server_seed_hash": record.ServerSeedHash,
			"nonce":            record.Nonce,
		},
	})
}

func (h *GameHandler) PlinkoStats(c *gin.Context) {
	rows, err := strconv.Atoi(c.Query("rows"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rows must be a number"})
		return
	}

	stats, err := games.GetPlinkoStats(rows, games.PlinkoRisk(c.Query("risk")))
	if err != nil {
		c.JSON(statusForGameError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *GameHandler) StartMines(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req models.MinesStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	record, round, err := h.gameService.StartMines(c.Request.Context(), userID, &req)
	if err != nil {
		c.JSON(statusForGameError(err), gin.H{
			"error":   "Failed to start mines round",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game": gin.H{
			"id":               record.ID,
			"grid_size":        round.GridSize,
			"mine_count":       round.MineCount,
			"bet_amount":       round.BetAmount,
			"multiplier":       round.Multiplier,
			"server_seed_hash": record.ServerSeedHash,
			"nonce":            record.Nonce,
		},
	})
}

func (h *GameHandler) RevealMines(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req models.MinesRevealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	round, err := h.gameService.RevealMines(c.Request.Context(), userID, req.GameID, req.Cell)
	if err != nil {
		c.JSON(statusForGameError(err), gin.H{
			"error":   "Failed to reveal cell",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, minesRevealResponse(req.GameID, round))
}

func (h *GameHandler) CashoutMines(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req models.MinesCashoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	round, err := h.gameService.CashoutMines(c.Request.Context(), userID, req.GameID)
	if err != nil {
		c.JSON(statusForGameError(err), gin.H{
			"error":   "Failed to cash out",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"game_id":    req.GameID,
		"multiplier": round.Multiplier,
		"payout":     round.Payout,
		"mines":      round.Mines,
	})
}

func (h *GameHandler) MinesStats(c *gin.Context) {
	gridSize, err := strconv.Atoi(c.Query("grid_size"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "grid_size must be a number"})
		return
	}
	mineCount, err := strconv.Atoi(c.Query("mine_count"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mine_count must be a number"})
		return
	}

	stats, err := games.GetMinesStats(h.gameService.Rules(), gridSize, mineCount)
	if err != nil {
		c.JSON(statusForGameError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *GameHandler) CrashState(c *gin.Context) {
	c.JSON(http.StatusOK, h.gameService.CrashState())
}

func (h *GameHandler) JoinCrash(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req models.CrashJoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	record, err := h.gameService.JoinCrash(c.Request.Context(), userID, &req)
	if err != nil {
		c.JSON(statusForGameError(err), gin.H{
			"error":   "Failed to join round",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game": gin.H{
			"id":               record.ID,
			"bet_amount":       record.BetAmount,
			"auto_cashout":     req.AutoCashout,
			"server_seed_hash": record.ServerSeedHash,
			"nonce":            record.Nonce,
		},
	})
}

func (h *GameHandler) CashoutCrash(c *gin.Context) {
	userID := c.GetInt64("user_id")

	result, err := h.gameService.CashoutCrash(c.Request.Context(), userID)
	if err != nil {
		c.JSON(statusForGameError(err), gin.H{
			"error":   "Failed to cash out",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"multiplier": result.ExitMultiplier,
		"payout":     result.Payout,
	})
}

func (h *GameHandler) VerifyGame(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.gameService.VerifyGame(req.GameID)
	if err != nil {
		c.JSON(statusForGameError(err), gin.H{
			"error":   "Failed to verify game",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *GameHandler) GetGameHistory(c *gin.Context) {
	userID := c.GetInt64("user_id")

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)

	history, err := h.redisService.GetGameHistory(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get game history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"games": history})
}

// minesRevealResponse hides the mine positions until the round is over.
func minesRevealResponse(gameID string, round *games.MinesRound) *models.MinesRevealResponse {
	resp := &models.MinesRevealResponse{
		GameID:     gameID,
		IsMine:     round.Completed && !round.Win,
		Multiplier: round.Multiplier,
		Revealed:   round.Revealed,
		GameOver:   round.Completed,
		Win:        round.Win,
	}

	if round.Completed {
		resp.Mines = round.Mines
		resp.Payout = round.Payout
	}

	return resp
}
