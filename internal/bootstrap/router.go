package bootstrap

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	httpHandler "party-lobby/internal/handler/http"
	wsHandler "party-lobby/internal/handler/websocket"
	"party-lobby/internal/middleware"
)

// Handlers 路由用到的所有 handler
type Handlers struct {
	Auth  *httpHandler.AuthHandler
	Room  *httpHandler.RoomHandler
	Stats *httpHandler.StatsHandler
	WS    *wsHandler.WebSocketHandler
}

// NewRouter 创建 Gin Engine 并注册路由。redisClient 为 nil 时不启用限流。
func NewRouter(cfg *Config, log *logrus.Logger, redisClient *redis.Client, h Handlers) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(corsMiddleware(cfg.CORSAllowedOrigin))

	// 限流必须挂在 Auth 之后，才能按 uid 计数；未认证的路由按 IP 计数
	var limit []gin.HandlerFunc
	if redisClient != nil {
		limit = append(limit, middleware.RateLimit(redisClient, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow))
	}
	authed := append([]gin.HandlerFunc{middleware.Auth(cfg.JWTSecret)}, limit...)

	api := router.Group("/api")

	authRoutes := api.Group("/auth", limit...)
	{
		authRoutes.POST("/anonymous", h.Auth.SignInAnonymously)
	}

	roomRoutes := api.Group("/rooms", authed...)
	{
		roomRoutes.GET("", h.Room.ListWaitingRooms)
		roomRoutes.POST("", h.Room.CreateRoom)
		roomRoutes.GET("/active", h.Room.GetActiveRoom)
		roomRoutes.GET("/:roomId", h.Room.GetRoom)
		roomRoutes.DELETE("/:roomId", h.Room.CloseRoom)
		roomRoutes.GET("/:roomId/players", h.Room.ListPlayers)
		roomRoutes.POST("/:roomId/join", h.Room.JoinRoom)
		roomRoutes.POST("/:roomId/leave", h.Room.LeaveRoom)
		roomRoutes.POST("/:roomId/kick", h.Room.KickPlayer)
		roomRoutes.POST("/:roomId/start", h.Room.StartGame)
		roomRoutes.POST("/:roomId/heartbeat", h.Room.Heartbeat)
	}

	statsRoutes := api.Group("/stats", limit...)
	{
		statsRoutes.GET("/rooms", h.Stats.GetRoomStats)
	}

	wsRoutes := router.Group("/ws").Use(middleware.Auth(cfg.JWTSecret))
	{
		wsRoutes.GET("/rooms", h.WS.HandleLobby)
		wsRoutes.GET("/rooms/:roomId", h.WS.HandleRoom)
	}

	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")
	return router
}

func corsMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})
		if uid := c.GetString(middleware.ContextUIDKey); uid != "" {
			entry = entry.WithField("user_id", uid)
		}

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Error(errorMessage)
			return
		}
		switch {
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
