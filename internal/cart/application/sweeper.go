package application

import (
	"context"
	"time"

	"github.com/wyfcoding/shopcart/internal/cart/domain"
	"github.com/wyfcoding/shopcart/pkg/logger"
	"github.com/wyfcoding/shopcart/pkg/metrics"
)

const (
	phaseMark  = "mark"
	phasePurge = "purge"

	defaultAbandonAfter = 3 * time.Hour
	defaultPurgeAfter   = 7 * 24 * time.Hour
	defaultBatchSize    = 500
)

// SweeperConfig 生命周期阈值，零值使用默认的 3 小时与 7 天
type SweeperConfig struct {
	AbandonAfter time.Duration
	PurgeAfter   time.Duration
	BatchSize    int
	// 单条语句或单批事务的超时，限制锁等待时间
	Timeout time.Duration
}

// Sweeper 购物车生命周期清理：标记放弃、清除过期放弃购物车
type Sweeper struct {
	repo      domain.LifecycleRepository
	tm        Transactor
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	cfg       SweeperConfig
	now       func() time.Time
}

// NewSweeper 创建清理器
func NewSweeper(
	repo domain.LifecycleRepository,
	tm Transactor,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
	cfg SweeperConfig,
) *Sweeper {
	if cfg.AbandonAfter <= 0 {
		cfg.AbandonAfter = defaultAbandonAfter
	}
	if cfg.PurgeAfter <= 0 {
		cfg.PurgeAfter = defaultPurgeAfter
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultOperationTimeout
	}
	return &Sweeper{
		repo:      repo,
		tm:        tm,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetClock 替换时钟
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// MarkAbandoned 将超过 AbandonAfter 无活动的购物车标记为放弃，返回受影响数量
func (s *Sweeper) MarkAbandoned(ctx context.Context) (int64, error) {
	start := time.Now()
	now := s.now()
	cutoff := now.Add(-s.cfg.AbandonAfter)

	stmtCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	n, err := s.repo.MarkAbandoned(stmtCtx, cutoff, now)
	cancel()
	s.metrics.ObserveSweep(phaseMark, n, time.Since(start), err)
	if err != nil {
		return 0, err
	}

	logger.Info(ctx, "Abandoned carts marked", "count", n, "cutoff", cutoff)
	if n > 0 {
		s.publish(ctx, domain.TopicCartAbandoned, domain.CartsSweptEvent{Count: n, Cutoff: cutoff, Timestamp: now})
	}
	return n, nil
}

// RemoveAbandoned 分批删除放弃超过 PurgeAfter 的购物车及其行，并归还库存
func (s *Sweeper) RemoveAbandoned(ctx context.Context) (int64, error) {
	start := time.Now()
	now := s.now()
	cutoff := now.Add(-s.cfg.PurgeAfter)

	var total int64
	for {
		locked, purged, err := s.purgeBatch(ctx, cutoff)
		if err != nil {
			s.metrics.ObserveSweep(phasePurge, total, time.Since(start), err)
			return total, err
		}
		total += purged
		if locked < s.cfg.BatchSize || ctx.Err() != nil {
			break
		}
	}

	s.metrics.ObserveSweep(phasePurge, total, time.Since(start), nil)
	logger.Info(ctx, "Abandoned carts purged", "count", total, "cutoff", cutoff)
	if total > 0 {
		s.publish(ctx, domain.TopicCartPurged, domain.CartsSweptEvent{Count: total, Cutoff: cutoff, Timestamp: now})
	}
	return total, nil
}

// purgeBatch 在一个有超时的事务中锁定并删除一批购物车，提交失败时 purged 不计入
func (s *Sweeper) purgeBatch(ctx context.Context, cutoff time.Time) (locked int, purged int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	err = s.tm.Transaction(ctx, func(ctx context.Context) error {
		ids, err := s.repo.LockAbandoned(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		locked = len(ids)
		if locked == 0 {
			return nil
		}
		purged, err = s.repo.PurgeCarts(ctx, ids)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return locked, purged, nil
}

func (s *Sweeper) publish(ctx context.Context, topic string, event domain.CartsSweptEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, topic, event); err != nil {
		logger.Warn(ctx, "Failed to publish sweep event", "topic", topic, "error", err)
	}
}
