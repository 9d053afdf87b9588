package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"fairplay-backend/internal/config"
	"fairplay-backend/internal/handlers"
	"fairplay-backend/internal/middleware"
	"fairplay-backend/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisService.Close()

	jwtService := services.NewJWTService(cfg)

	gameService := services.NewGameService(cfg, redisService)
	defer gameService.Stop()

	wsHandler := handlers.NewWebSocketHandler(redisService)
	gameService.SetBroadcaster(wsHandler)

	go gameService.RunCrashRounds()

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			gameService.CleanupStaleMines(10 * time.Minute)
		}
	}()

	authHandler := handlers.NewAuthHandler(redisService, jwtService)
	userHandler := handlers.NewUserHandler(redisService)
	gameHandler := handlers.NewGameHandler(gameService, redisService)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.POST("/auth/login", authHandler.Login)

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(jwtService))
	protected.Use(middleware.RateLimitMiddleware(redisService))
	{
		protected.GET("/me", userHandler.GetCurrentUser)
		protected.GET("/balance", userHandler.GetBalance)
		protected.GET("/transactions", userHandler.GetTransactions)
		protected.POST("/logout", userHandler.Logout)

		protected.GET("/ws", wsHandler.HandleWebSocket)

		games := protected.Group("/games")
		{
			games.GET("/history", gameHandler.GetGameHistory)
			games.POST("/verify", gameHandler.VerifyGame)

			plinko := games.Group("/plinko")
			{
				plinko.POST("/play", gameHandler.PlayPlinko)
				plinko.GET("/stats", gameHandler.PlinkoStats)
			}

			mines := games.Group("/mines")
			{
				mines.POST("/start", gameHandler.StartMines)
				mines.POST("/reveal", gameHandler.RevealMines)
				mines.POST("/cashout", gameHandler.CashoutMines)
				mines.GET("/stats", gameHandler.MinesStats)
			}

			crash := games.Group("/crash")
			{
				crash.GET("/state", gameHandler.CrashState)
				crash.POST("/join", gameHandler.JoinCrash)
				crash.POST("/cashout", gameHandler.CashoutCrash)
			}
		}
	}

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("Shutting down")
		gameService.Stop()
		redisService.Close()
		os.Exit(0)
	}()

	log.Printf("Server starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
