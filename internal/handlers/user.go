package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fairplay-backend/internal/models"
	"fairplay-backend/internal/services"
)

type UserHandler struct {
	redisService *services.RedisService
}

func NewUserHandler(redisService *services.RedisService) *UserHandler {
	return &UserHandler{
		redisService: redisService,
	}
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sessionID, exists := c.Get("session_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session not found"})
		return
	}

	session, err := h.redisService.GetUserSession(userID.(int64), sessionID.(string))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired or invalid"})
		return
	}

	wallet, err := h.redisService.GetWallet(userID.(int64))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load wallet"})
		return
	}

	userInfo := gin.H{
		"user_id":  session.UserID,
		"username": session.Username,
	}
	if user, err := h.redisService.GetUser(userID.(int64)); err == nil {
		userInfo["username"] = user.Username
		userInfo["member_since"] = user.CreatedAt
	}

	c.JSON(http.StatusOK, gin.H{
		"user": userInfo,
		"session": gin.H{
			"session_id":    session.SessionID,
			"created_at":    session.CreatedAt,
			"last_accessed": session.LastAccessed,
		},
		"wallet": walletView(wallet),
	})
}

func (h *UserHandler) GetBalance(c *gin.Context) {
	userID := c.GetInt64("user_id")

	wallet, err := h.redisService.GetWallet(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load wallet"})
		return
	}

	c.JSON(http.StatusOK, models.BalanceResponse{
		Balance:       wallet.Balance,
		LockedBalance: wallet.LockedBalance,
		TotalWagered:  wallet.TotalWagered,
		TotalWon:      wallet.TotalWon,
		Available:     wallet.Balance - wallet.LockedBalance,
	})
}

func (h *UserHandler) GetTransactions(c *gin.Context) {
	userID := c.GetInt64("user_id")

	transactions, err := h.redisService.GetUserTransactions(userID, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

func (h *UserHandler) Logout(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sessionID, exists := c.Get("session_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session not found"})
		return
	}

	if err := h.redisService.DeleteUserSession(userID.(int64), sessionID.(string)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

func walletView(wallet *models.Wallet) gin.H {
	return gin.H{
		"balance":       wallet.Balance,
		"locked":        wallet.LockedBalance,
		"available":     wallet.Balance - wallet.LockedBalance,
		"total_wagered": wallet.TotalWagered,
		"total_won":     wallet.TotalWon,
	}
}
