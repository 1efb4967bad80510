package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"Crowd_Conscious/internal/metrics"
	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/repository/mysql"
)

type Sender func(ctx context.Context, ob *model.OutboxEvent) error

// OutboxRelayer 从 outbox 表读取事件异步投递
type OutboxRelayer struct {
	repo      *mysql.OutboxRepository
	BatchSize int
	interval  time.Duration
	maxRetry  int
	sender    Sender
	log       *zap.Logger
}

func NewOutboxRelayer(db *gorm.DB, sender Sender, interval time.Duration, maxRetry int, log *zap.Logger) *OutboxRelayer {
	if interval <= 0 {
		interval = time.Second
	}
	if maxRetry <= 0 {
		maxRetry = 10
	}
	return &OutboxRelayer{
		repo:      &mysql.OutboxRepository{DB: db},
		BatchSize: 200,
		interval:  interval,
		maxRetry:  maxRetry,
		sender:    sender,
		log:       log,
	}
}

// Run 随 ctx 取消退出
func (r *OutboxRelayer) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.DrainOnce(ctx)
		}
	}
}

// DrainOnce 投递一批，返回成功条数
func (r *OutboxRelayer) DrainOnce(ctx context.Context) int {
	rows, err := r.repo.List(ctx, r.BatchSize)
	if err != nil {
		r.log.Error("outbox query failed", zap.Error(err))
		return 0
	}
	sent := 0
	for i := range rows {
		ob := rows[i]
		if err := r.sender(ctx, &ob); err != nil {
			metrics.OutboxFailed.Inc()
			r.log.Warn("outbox send failed",
				zap.Uint64("id", ob.ID), zap.String("type", ob.EventType), zap.Int("retry", ob.Retry+1), zap.Error(err))
			if err := r.repo.RetryUpdate(ctx, &ob, r.maxRetry); err != nil {
				r.log.Error("outbox retry update failed", zap.Uint64("id", ob.ID), zap.Error(err))
			}
			continue
		}
		if err := r.repo.SuccessUpdate(ctx, ob.ID); err != nil {
			r.log.Error("outbox success update failed", zap.Uint64("id", ob.ID), zap.Error(err))
			continue
		}
		metrics.OutboxSent.Inc()
		sent++
	}
	return sent
}

// LogSender 未配置 Kafka 时使用
func LogSender(log *zap.Logger) Sender {
	return func(_ context.Context, ob *model.OutboxEvent) error {
		log.Info("outbox event",
			zap.Uint64("id", ob.ID),
			zap.String("type", ob.EventType),
			zap.Uint64("aggregate_id", ob.AggregateID),
			zap.String("payload", ob.Payload))
		return nil
	}
}

// KafkaSender 投递到 Kafka，失败由 relayer 重试
func KafkaSender(p *pkg.KafkaProducer) Sender {
	return func(ctx context.Context, ob *model.OutboxEvent) error {
		return p.Publish(ctx, ob.AggregateID, ob.EventType, []byte(ob.Payload))
	}
}
