package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"party-lobby/internal/tasks"
)

// DefaultCleanupSchedule 清理任务的默认周期
const DefaultCleanupSchedule = "@every 5m"

// Scheduler 周期性触发空闲房间清理
type Scheduler interface {
	Start() error
	Shutdown()
}

// AsynqScheduler 通过 asynq 周期任务触发清理。
// 多实例部署时其余实例应配置 CLEANUP_SCHEDULER=none；周期任务带 Unique，
// 同一周期内队列中最多只有一个未完成的清理任务。
type AsynqScheduler struct {
	scheduler *asynq.Scheduler
	schedule  string
	log       *logrus.Entry
}

// NewAsynqScheduler 创建基于 asynq 的调度器
func NewAsynqScheduler(redisOpt asynq.RedisClientOpt, schedule string, logger *logrus.Logger) *AsynqScheduler {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	logEntry := logger.WithField("component", "asynq_scheduler")
	return &AsynqScheduler{
		scheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: logEntry}),
		schedule:  schedule,
		log:       logEntry,
	}
}

// Start 注册清理任务并启动调度器 (非阻塞)
func (s *AsynqScheduler) Start() error {
	entryID, err := s.scheduler.Register(s.schedule, tasks.NewRoomCleanupTask(), asynq.Unique(cleanupUniqueTTL(s.schedule)))
	if err != nil {
		return fmt.Errorf("could not register periodic room cleanup task: %w", err)
	}
	s.log.Infof("Periodic room cleanup task registered with schedule '%s' (EntryID: %s)", s.schedule, entryID)

	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("asynq scheduler start failed: %w", err)
	}
	s.log.Info("Asynq scheduler started")
	return nil
}

// Shutdown 停止调度器
func (s *AsynqScheduler) Shutdown() {
	s.scheduler.Shutdown()
	s.log.Info("Asynq scheduler stopped.")
}

// LocalScheduler 在进程内用 gocron 直接调用 Sweep，不依赖 Redis
type LocalScheduler struct {
	scheduler gocron.Scheduler
	sweeper   Sweeper
	schedule  string
	ctx       context.Context
	cancel    context.CancelFunc
	log       *logrus.Entry
}

// NewLocalScheduler 创建基于 gocron 的调度器
func NewLocalScheduler(sweeper Sweeper, schedule string, logger *logrus.Logger) (*LocalScheduler, error) {
	if sweeper == nil {
		panic("Sweeper cannot be nil for LocalScheduler")
	}
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalScheduler{
		scheduler: sched,
		sweeper:   sweeper,
		schedule:  schedule,
		ctx:       ctx,
		cancel:    cancel,
		log:       logger.WithField("component", "local_scheduler"),
	}, nil
}

// Start 注册清理任务并启动调度器 (非阻塞)
func (s *LocalScheduler) Start() error {
	def, err := jobDefinition(s.schedule)
	if err != nil {
		return err
	}
	_, err = s.scheduler.NewJob(
		def,
		gocron.NewTask(s.runSweep),
		gocron.WithName(tasks.TypeRoomCleanup),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("could not register local room cleanup job: %w", err)
	}
	s.scheduler.Start()
	s.log.Infof("Local room cleanup scheduler started with schedule '%s'", s.schedule)
	return nil
}

func (s *LocalScheduler) runSweep() {
	result, err := s.sweeper.Sweep(s.ctx)
	if err != nil {
		s.log.WithError(err).Error("Room cleanup sweep failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"selected": result.Selected,
		"deleted":  result.Deleted,
		"failed":   result.Failed,
	}).Debug("Local room cleanup finished")
}

// Shutdown 停止调度器并取消正在执行的清理
func (s *LocalScheduler) Shutdown() {
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		s.log.WithError(err).Warn("gocron scheduler shutdown error")
		return
	}
	s.log.Info("Local scheduler stopped.")
}

// cleanupUniqueTTL 返回清理任务的去重窗口：@every 取其周期，cron 表达式取一分钟 (最小粒度)。
// asynq 要求 TTL 至少 1 秒。
func cleanupUniqueTTL(schedule string) time.Duration {
	ttl := time.Minute
	if rest, ok := strings.CutPrefix(schedule, "@every "); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(rest)); err == nil && d > 0 {
			ttl = d
		}
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// jobDefinition 支持 "@every <duration>" 和标准 5 段 cron 表达式
func jobDefinition(schedule string) (gocron.JobDefinition, error) {
	if rest, ok := strings.CutPrefix(schedule, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid cleanup schedule %q", schedule)
		}
		return gocron.DurationJob(d), nil
	}
	return gocron.CronJob(schedule, false), nil
}
