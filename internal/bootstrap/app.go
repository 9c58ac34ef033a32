package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "party-lobby/internal/handler/http"
	wsHandler "party-lobby/internal/handler/websocket"
	"party-lobby/internal/hub"
	gormpersistence "party-lobby/internal/infra/persistence/gorm"
	memorypersistence "party-lobby/internal/infra/persistence/memory"
	"party-lobby/internal/infra/setup"
	memstate "party-lobby/internal/infra/state/memory"
	redisstate "party-lobby/internal/infra/state/redis"
	"party-lobby/internal/repository"
	"party-lobby/internal/service"
	"party-lobby/internal/tasks"
	"party-lobby/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB      // STORE_DRIVER=memory 时为 nil
	RedisClient *redis.Client // 未配置 REDIS_ADDR 时为 nil
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Scheduler   worker.Scheduler
	Hub         *hub.Hub
	HttpServer  *http.Server
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := NewLogger(cfg)
	log.Info("Configuration loaded successfully")

	// 3. 初始化存储
	log.Info("Initializing infrastructure...")
	var (
		db        *gorm.DB
		roomStore repository.RoomStore
		statsRepo repository.StatsRepository
	)
	switch cfg.StoreDriver {
	case StoreDriverMemory:
		mem := memorypersistence.NewStore()
		roomStore, statsRepo = mem, mem
		log.Warn("Using in-memory store, data is lost on restart")
	default:
		db, err = setup.InitDB(cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to init DB: %w", err)
		}
		if err := setup.MigrateDB(db); err != nil {
			return nil, fmt.Errorf("failed to migrate DB: %w", err)
		}
		roomStore = gormpersistence.NewGormRoomStore(db)
		statsRepo = gormpersistence.NewGormStatsRepository(db)
		log.Info("Database initialized and migrated")
	}

	// 4. 变更通知与异步任务 (Redis 可选)
	var (
		redisClient    *redis.Client
		redisClientOpt asynq.RedisClientOpt
		asynqClient    *asynq.Client
		feed           repository.ChangeFeed
	)
	if cfg.RedisAddr != "" {
		redisClient, err = setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to init Redis: %w", err)
		}
		feed = redisstate.NewRedisChangeFeed(redisClient, cfg.KeyPrefix)
		redisClientOpt = asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
		asynqClient = asynq.NewClient(redisClientOpt)
		log.Info("Redis change feed and Asynq client initialized")
	} else {
		feed = memstate.NewFeed()
		log.Warn("REDIS_ADDR not set, using in-process change feed (single instance only)")
	}
	log.Info("Infrastructure initialized successfully")

	// 5. 初始化 Services
	log.Info("Initializing services...")
	statsService := service.NewStatsService(statsRepo)
	var events service.RoomEvents = statsService
	if asynqClient != nil {
		events = tasks.NewEventEnqueuer(asynqClient)
	}
	roomService := service.NewRoomService(roomStore, feed, events, service.WithTxMaxAttempts(cfg.TxMaxAttempts))
	cleanupService := service.NewCleanupService(roomStore, feed, events,
		service.WithWaitingWindow(cfg.WaitingWindow),
		service.WithCleanupTxMaxAttempts(cfg.TxMaxAttempts),
	)
	authService, err := service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	log.Info("Services initialized")

	// 6. Worker 与调度器
	var workerServer *worker.WorkerServer
	if asynqClient != nil {
		workerServer = worker.NewWorkerServer(redisClientOpt, statsService, cleanupService, log)
		log.Info("Worker server initialized")
	}
	var scheduler worker.Scheduler
	switch cfg.CleanupScheduler {
	case SchedulerAsynq:
		scheduler = worker.NewAsynqScheduler(redisClientOpt, cfg.CleanupSchedule, log)
	case SchedulerLocal:
		scheduler, err = worker.NewLocalScheduler(cleanupService, cfg.CleanupSchedule, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create local scheduler: %w", err)
		}
	default:
		log.Info("Cleanup scheduler disabled on this instance")
	}

	// 7. Hub 与 Handlers
	hubInstance := hub.NewHub(roomService)
	handlers := Handlers{
		Auth:  httpHandler.NewAuthHandler(authService),
		Room:  httpHandler.NewRoomHandler(roomService),
		Stats: httpHandler.NewStatsHandler(statsService),
		WS:    wsHandler.NewWebSocketHandler(hubInstance, roomService, cfg.CORSAllowedOrigin),
	}

	// 8. 路由与 HTTP Server
	router := NewRouter(cfg, log, redisClient, handlers)
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	app := &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		AsynqServer: workerServer,
		Scheduler:   scheduler,
		Hub:         hubInstance,
		HttpServer:  httpServer,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

// NewLogger 按环境选择格式并设置级别
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)

	// 服务层使用包级 logrus，保持同样的格式和级别
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(logLevel)
	logrus.SetOutput(os.Stdout)

	log.Infof("Logger initialized (Level: %s, Format: %T)", logLevel.String(), log.Formatter)
	return log
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	if a.AsynqServer != nil {
		go a.AsynqServer.Start()
		a.Log.Info("Asynq worker server routine started")
	}

	if a.Scheduler != nil {
		if err := a.Scheduler.Start(); err != nil {
			a.Log.Errorf("Failed to start cleanup scheduler: %v", err)
		}
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 停止调度，不再触发新的清理
	if a.Scheduler != nil {
		a.Scheduler.Shutdown()
	}

	// 2. 关闭 HTTP 服务器，再关闭所有 WebSocket 订阅
	a.Log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}
	if a.Hub != nil {
		a.Hub.Stop()
	}

	// 3. Worker
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 4. Asynq Client
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		} else {
			a.Log.Info("Asynq client closed.")
		}
	}

	// 5. Redis
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}

	// 6. 数据库连接池
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			} else {
				a.Log.Info("Database connection closed.")
			}
		}
	}

	a.Log.Info("Application shutdown complete.")
}
