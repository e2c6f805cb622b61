package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/code-arena/code-arena-backend/internal/api/handlers"
	"github.com/code-arena/code-arena-backend/internal/api/middleware"
	"github.com/code-arena/code-arena-backend/internal/config"
	"github.com/code-arena/code-arena-backend/internal/service"
	"github.com/code-arena/code-arena-backend/internal/websocket"
	jwtutil "github.com/code-arena/code-arena-backend/pkg/jwt"
	"github.com/code-arena/code-arena-backend/pkg/ratelimit"
)

// Deps carries everything the router wires together. Construction happens in
// main so tests can assemble the same router around fakes.
type Deps struct {
	Config        *config.Config
	UserService   *service.UserService
	Matchmaking   *service.MatchmakingService
	BattleService *service.BattleService
	Ratings       service.RatingStore
	Hub           *websocket.Hub
	JWTManager    *jwtutil.JWTManager
	Limiter       *ratelimit.RedisLimiter // optional, distributed limits
}

func SetupRouter(deps Deps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(deps.Config.CORSAllowedOrigins))

	auth := middleware.Auth(deps.JWTManager)

	authHandler := handlers.NewAuthHandler(deps.UserService, deps.JWTManager)
	userHandler := handlers.NewUserHandler(deps.UserService, deps.Ratings)
	queueHandler := handlers.NewQueueHandler(deps.Matchmaking)
	battleHandler := handlers.NewBattleHandler(deps.BattleService)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub)

	router.GET("/health", handlers.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/ws", auth, wsHandler.HandleWebSocket)

		authGroup := v1.Group("/auth")
		authGroup.Use(authRateLimit(deps))
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		users := v1.Group("/users")
		users.Use(auth)
		{
			users.GET("/me", userHandler.GetCurrentUser)
		}

		queue := v1.Group("/queue")
		queue.Use(auth)
		{
			queue.POST("/join", queueHandler.JoinQueue)
			queue.POST("/leave", queueHandler.LeaveQueue)
			queue.GET("/status", queueHandler.QueueStatus)
		}

		battles := v1.Group("/battles")
		battles.Use(auth)
		{
			battles.GET("/:id", battleHandler.GetBattle)
			battles.POST("/:id/accept", battleHandler.AcceptBattle)
			battles.POST("/:id/submissions", submissionRateLimit(deps), battleHandler.Submit)
			battles.PATCH("/:id/visibility", battleHandler.SetVisibility)
			battles.POST("/:id/spectators", battleHandler.Spectate)
			battles.DELETE("/:id/spectators", battleHandler.StopSpectating)
			battles.GET("/:id/spectators", battleHandler.ListSpectators)
		}
	}

	return router
}

// authRateLimit throttles login and registration per IP: distributed when a
// Redis limiter is wired, process-local otherwise.
func authRateLimit(deps Deps) gin.HandlerFunc {
	if deps.Limiter != nil {
		return middleware.RedisRateLimit(deps.Limiter, 5, time.Minute, middleware.IPKeyFunc)
	}
	return middleware.RateLimit(5, 1.0/12, middleware.IPKeyFunc)
}

// submissionRateLimit is a coarse per-user guard in front of the service's
// own per-battle throttle.
func submissionRateLimit(deps Deps) gin.HandlerFunc {
	if deps.Limiter != nil {
		return middleware.RedisRateLimit(deps.Limiter, 12, time.Minute, middleware.UserKeyFunc)
	}
	return middleware.RateLimit(12, 0.2, middleware.UserKeyFunc)
}
