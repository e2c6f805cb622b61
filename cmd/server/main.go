package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/code-arena/code-arena-backend/internal/api"
	"github.com/code-arena/code-arena-backend/internal/config"
	"github.com/code-arena/code-arena-backend/internal/repository"
	"github.com/code-arena/code-arena-backend/internal/service"
	"github.com/code-arena/code-arena-backend/internal/websocket"
	"github.com/code-arena/code-arena-backend/pkg/database"
	"github.com/code-arena/code-arena-backend/pkg/distributed"
	"github.com/code-arena/code-arena-backend/pkg/judge"
	jwtutil "github.com/code-arena/code-arena-backend/pkg/jwt"
	"github.com/code-arena/code-arena-backend/pkg/logger"
	"github.com/code-arena/code-arena-backend/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting Code Arena Backend",
		"port", cfg.Port,
		"env", cfg.Env,
	)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Invalid Redis URL", "error", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", "error", err)
	}
	logger.Info("Redis connection established")

	// Repositories
	userRepo := repository.NewUserRepository(db)
	battleRepo := repository.NewBattleRepository(db)
	roundRepo := repository.NewRoundRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	ratingRepo := repository.NewRatingRepository(db)
	spectatorRepo := repository.NewSpectatorRepository(db)
	problemRepo := repository.NewProblemRepository(db)

	// Redis-backed infrastructure
	queueStore := distributed.NewQueueStore(redisClient)
	battleCache := distributed.NewBattleCache(redisClient, 2*time.Hour)
	lockManager := distributed.NewRedisLockManager(redisClient)
	limiter := ratelimit.NewRedisLimiter(redisClient)

	// WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()

	// Judging pipeline. The pool's verdict callback closes over the battle
	// service, which in turn submits through the pool.
	judgeClient := judge.NewClient(cfg.JudgeURL)
	var battleService *service.BattleService
	judgePool := judge.NewPool(judgeClient, cfg.JudgeWorkers, cfg.JudgeQueueSize,
		func(submissionID string, resp *judge.ExecuteResponse, err error) {
			battleService.OnVerdict(submissionID, resp, err)
		})

	ratingEngine := service.NewRatingService()
	battleService = service.NewBattleService(
		battleRepo, roundRepo, submissionRepo, spectatorRepo, ratingRepo,
		ratingEngine, problemRepo, judgePool, hub,
		service.BattleServiceConfig{
			AcceptTimeout:      cfg.AcceptTimeout,
			SubmissionThrottle: cfg.SubmissionThrottle,
			JudgeTimeLimitSec:  cfg.JudgeTimeLimitSec,
			JudgeMemoryMB:      cfg.JudgeMemoryMB,
		})
	battleService.SetSnapshotCache(battleCache)

	matchmaking := service.NewMatchmakingService(
		queueStore, battleRepo, ratingRepo, battleService, hub,
		cfg.QueueSweepInterval, cfg.QueueMaxWait,
	)
	matchmaking.SetLockManager(lockManager)

	userService := service.NewUserService(userRepo)
	jwtManager := jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)

	judgePool.Start()
	matchmaking.Start()

	router := api.SetupRouter(api.Deps{
		Config:        cfg,
		UserService:   userService,
		Matchmaking:   matchmaking,
		BattleService: battleService,
		Ratings:       ratingRepo,
		Hub:           hub,
		JWTManager:    jwtManager,
		Limiter:       limiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	matchmaking.Stop()
	judgePool.Stop()

	logger.Info("Server exited")
}
