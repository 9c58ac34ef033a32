package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"party-lobby/internal/infra/setup"
	"party-lobby/internal/service"
	"party-lobby/internal/worker"
)

// 存储与调度器选项
const (
	StoreDriverGorm   = "gorm"
	StoreDriverMemory = "memory"

	SchedulerAsynq = "asynq"
	SchedulerLocal = "local"
	SchedulerNone  = "none" // 只处理任务，不注册周期清理 (多实例时除一个实例外都用它)
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	AppEnv     string
	LogLevel   string
	ServerPort string

	StoreDriver string // gorm | memory
	DB          setup.DBConfig

	RedisAddr     string // 为空时使用进程内变更通知、同步统计和本地调度
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	JWTSecret      string
	JWTExpiryHours int

	CleanupSchedule  string
	CleanupScheduler string // asynq | local | none
	WaitingWindow    time.Duration
	TxMaxAttempts    int

	RateLimitMax      int
	RateLimitWindow   time.Duration
	CORSAllowedOrigin string
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:      os.Getenv("APP_ENV"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		ServerPort:  os.Getenv("SERVER_PORT"),
		StoreDriver: os.Getenv("STORE_DRIVER"),
		DB: setup.DBConfig{
			Driver:   os.Getenv("DB_DRIVER"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Host:     os.Getenv("DB_HOST"),
			Port:     os.Getenv("DB_PORT"),
			Name:     os.Getenv("DB_NAME"),
		},
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:         os.Getenv("REDIS_KEY_PREFIX"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		CleanupSchedule:   os.Getenv("CLEANUP_SCHEDULE"),
		CleanupScheduler:  os.Getenv("CLEANUP_SCHEDULER"),
		CORSAllowedOrigin: os.Getenv("CORS_ALLOWED_ORIGIN"),
		// --- 默认值 ---
		JWTExpiryHours:  24,
		WaitingWindow:   service.DefaultWaitingWindow,
		TxMaxAttempts:   service.DefaultTxMaxAttempts,
		RateLimitMax:    100,
		RateLimitWindow: 1 * time.Second,
	}

	cfg.RedisDB, _ = strconv.Atoi(os.Getenv("REDIS_DB")) // 忽略错误，默认为 0

	if v := os.Getenv("JWT_EXPIRY_HOURS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid JWT_EXPIRY_HOURS %q", v)
		}
		cfg.JWTExpiryHours = n
	}
	if v := os.Getenv("WAITING_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid WAITING_WINDOW %q", v)
		}
		cfg.WaitingWindow = d
	}
	if v := os.Getenv("TX_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid TX_MAX_ATTEMPTS %q", v)
		}
		cfg.TxMaxAttempts = n
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "lobby:"
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreDriverGorm
	}
	if cfg.DB.Driver == "" {
		cfg.DB.Driver = setup.DriverMySQL
	}
	if cfg.CleanupSchedule == "" {
		cfg.CleanupSchedule = worker.DefaultCleanupSchedule
	}
	if cfg.CleanupScheduler == "" {
		cfg.CleanupScheduler = SchedulerAsynq
	}
	if cfg.CORSAllowedOrigin == "" {
		cfg.CORSAllowedOrigin = "http://localhost:3000"
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	switch cfg.StoreDriver {
	case StoreDriverGorm, StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
	switch cfg.CleanupScheduler {
	case SchedulerAsynq, SchedulerLocal, SchedulerNone:
	default:
		return nil, fmt.Errorf("unsupported CLEANUP_SCHEDULER %q", cfg.CleanupScheduler)
	}
	// asynq 调度依赖 Redis
	if cfg.RedisAddr == "" && cfg.CleanupScheduler == SchedulerAsynq {
		logrus.Warn("REDIS_ADDR not set, falling back to local cleanup scheduler")
		cfg.CleanupScheduler = SchedulerLocal
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	cfg.DB.LogLevel = cfg.LogLevel

	return cfg, nil
}
