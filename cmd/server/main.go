package main

import (
	"context"
	"log"

	"marketplace_wallet/internal/api"
	"marketplace_wallet/internal/config"
	"marketplace_wallet/internal/middleware"
	"marketplace_wallet/internal/payment"
	"marketplace_wallet/internal/store/gormstore"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	cfg := config.LoadConfig()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// TranslateError turns MySQL 1062 into gorm.ErrDuplicatedKey, which the
	// store relies on for the idempotency gate and lazy wallet creation.
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{TranslateError: true})
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	engine := payment.NewEngine(gormstore.New(db), cfg.TransferLockWait)

	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	authGroup := r.Group("/auth")
	authGroup.POST("/register", api.RegisterHandler(db))
	authGroup.POST("/login", api.LoginHandler(db, cfg.JWTSecret, cfg.JWTTTL))

	walletGroup := r.Group("/wallet")
	walletGroup.Use(middleware.JWTAuth(cfg.JWTSecret))
	walletGroup.GET("/balance", api.GetBalanceHandler(engine, redisClient))
	walletGroup.POST("/add-money", api.AddMoneyHandler(engine, redisClient))
	walletGroup.POST("/transfer", api.TransferHandler(engine, redisClient))
	walletGroup.GET("/transactions", api.GetTransactionHistoryHandler(db, redisClient))

	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.JWTAuth(cfg.JWTSecret), middleware.AdminOnly(db))
	adminGroup.GET("/transactions", api.ListTransactionsHandler(db, redisClient))

	log.Println("Server running on " + cfg.AppPort)
	if err := r.Run(":" + cfg.AppPort); err != nil {
		logrus.Fatalf("server stopped: %v", err)
	}
}
