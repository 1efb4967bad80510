package mysql

import (
	"context"
	"encoding/json"
	"time"

	"Crowd_Conscious/internal/model"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	DB *gorm.DB
}

// insertOutbox 写事件表，必须在业务事务内调用
func insertOutbox(tx *gorm.DB, event string, aggregateID uint64, data map[string]any) error {
	body := map[string]any{
		"event_time": time.Now().UTC().Format(time.RFC3339Nano),
		"event":      event,
		"id":         aggregateID,
	}
	for k, v := range data {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return tx.Create(&model.OutboxEvent{
		EventType:   event,
		AggregateID: aggregateID,
		Payload:     string(payload),
		Status:      model.OutboxPending,
	}).Error
}

// Insert 供服务层在自己的事务中追加事件
func (r *OutboxRepository) Insert(event string, aggregateID uint64, data map[string]any) error {
	return insertOutbox(r.DB, event, aggregateID, data)
}

// List 查询待投递事件
func (r *OutboxRepository) List(ctx context.Context, batchSize int) ([]model.OutboxEvent, error) {
	var list []model.OutboxEvent
	if err := r.DB.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("id ASC").
		Limit(batchSize).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// RetryUpdate 投递失败：重试次数 +1，达到上限后标记为失败
func (r *OutboxRepository) RetryUpdate(ctx context.Context, ob *model.OutboxEvent, maxRetry int) error {
	next := ob.Retry + 1
	status := model.OutboxPending
	if next >= maxRetry {
		status = model.OutboxFailed
	}
	return r.DB.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", ob.ID).
		Updates(map[string]any{"retry": next, "status": status}).Error
}

// SuccessUpdate 投递成功
func (r *OutboxRepository) SuccessUpdate(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Update("status", model.OutboxSent).Error
}

// CountByStatus 监控用
func (r *OutboxRepository) CountByStatus(ctx context.Context, status int8) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.OutboxEvent{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

// ListAfter 按 id 顺序读取指定类型事件，不区分投递状态，供搜索同步使用
func (r *OutboxRepository) ListAfter(ctx context.Context, afterID uint64, types []string, limit int) ([]model.OutboxEvent, error) {
	var list []model.OutboxEvent
	err := r.DB.WithContext(ctx).
		Where("id > ? AND event_type IN ?", afterID, types).
		Order("id ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}
