package application

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/wyfcoding/shopcart/pkg/apperr"
	"github.com/wyfcoding/shopcart/pkg/logger"
)

// DistributedLock 多副本部署时保证同一时刻只有一个实例执行清理
type DistributedLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// LifecycleJobConfig 定时任务配置
type LifecycleJobConfig struct {
	MarkInterval  time.Duration
	PurgeInterval time.Duration
	// 失败后的重试次数，不含首次执行
	MaxRetries int
	LockTTL    time.Duration
}

// LifecycleJob 按固定间隔触发 MarkAbandoned 与 RemoveAbandoned
type LifecycleJob struct {
	sweeper    *Sweeper
	locker     DistributedLock
	cfg        LifecycleJobConfig
	newBackOff func() backoff.BackOff
}

// NewLifecycleJob 创建定时任务；locker 为 nil 时不加锁
func NewLifecycleJob(sweeper *Sweeper, locker DistributedLock, cfg LifecycleJobConfig) *LifecycleJob {
	if cfg.MaxRetries < 3 {
		cfg.MaxRetries = 3
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &LifecycleJob{
		sweeper: sweeper,
		locker:  locker,
		cfg:     cfg,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// Start 阻塞运行直到 ctx 取消
func (j *LifecycleJob) Start(ctx context.Context) error {
	markTicker := time.NewTicker(j.cfg.MarkInterval)
	defer markTicker.Stop()
	purgeTicker := time.NewTicker(j.cfg.PurgeInterval)
	defer purgeTicker.Stop()

	logger.Info(ctx, "Cart lifecycle job started", "mark_interval", j.cfg.MarkInterval, "purge_interval", j.cfg.PurgeInterval)

	for {
		select {
		case <-ctx.Done():
			logger.Info(context.Background(), "Cart lifecycle job stopped")
			return nil
		case <-markTicker.C:
			_ = j.RunMark(ctx)
		case <-purgeTicker.C:
			_ = j.RunPurge(ctx)
		}
	}
}

// RunMark 执行一次标记放弃
func (j *LifecycleJob) RunMark(ctx context.Context) error {
	return j.run(ctx, phaseMark, j.sweeper.MarkAbandoned)
}

// RunPurge 执行一次清除
func (j *LifecycleJob) RunPurge(ctx context.Context) error {
	return j.run(ctx, phasePurge, j.sweeper.RemoveAbandoned)
}

func (j *LifecycleJob) run(ctx context.Context, phase string, fn func(ctx context.Context) (int64, error)) error {
	key := "cart:sweep:" + phase
	if j.locker != nil {
		token, ok, err := j.locker.TryLock(ctx, key, j.cfg.LockTTL)
		if err != nil {
			logger.Error(ctx, "Failed to acquire sweep lock", "phase", phase, "error", err)
			return err
		}
		if !ok {
			logger.Info(ctx, "Sweep skipped, lock held by another instance", "phase", phase)
			return nil
		}
		defer func() {
			if err := j.locker.Unlock(context.Background(), key, token); err != nil {
				logger.Warn(ctx, "Failed to release sweep lock", "phase", phase, "error", err)
			}
		}()
	}

	op := func() (int64, error) {
		n, err := fn(ctx)
		if err != nil && !apperr.IsRetryable(err) {
			return n, backoff.Permanent(err)
		}
		return n, err
	}
	n, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(j.newBackOff()),
		backoff.WithMaxTries(uint(j.cfg.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn(ctx, "Sweep failed, retrying", "phase", phase, "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		logger.Error(ctx, "Sweep failed", "phase", phase, "error", err)
		return err
	}
	logger.Debug(ctx, "Sweep finished", "phase", phase, "count", n)
	return nil
}
