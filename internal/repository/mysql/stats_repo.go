package mysql

import (
	"context"
	"errors"
	"time"

	"Crowd_Conscious/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StatsRepository struct {
	DB *gorm.DB
}

// LockOrCreate 确保统计行存在并加行锁，需在事务内使用
func (r *StatsRepository) LockOrCreate(userID uint64) (*model.UserStats, error) {
	if err := r.DB.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.UserStats{UserID: userID, Level: 1}).Error; err != nil {
		return nil, err
	}
	var st model.UserStats
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).First(&st).Error
	return &st, err
}

// Save 写回加锁后计算出的聚合值
func (r *StatsRepository) Save(st *model.UserStats) error {
	return r.DB.Model(&model.UserStats{}).Where("user_id = ?", st.UserID).
		Updates(map[string]any{
			"total_xp":          st.TotalXP,
			"level":             st.Level,
			"votes_cast":        st.VotesCast,
			"content_created":   st.ContentCreated,
			"events_attended":   st.EventsAttended,
			"current_streak":    st.CurrentStreak,
			"longest_streak":    st.LongestStreak,
			"last_activity_day": st.LastActivityDay,
		}).Error
}

func (r *StatsRepository) AddEvent(ev *model.XPEvent) error {
	return r.DB.Create(ev).Error
}

// Get 没有记录时返回初始统计
func (r *StatsRepository) Get(userID uint64) (*model.UserStats, error) {
	var st model.UserStats
	err := r.DB.Where("user_id = ?", userID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.UserStats{UserID: userID, Level: 1}, nil
	}
	return &st, err
}

// InsertAchievement 幂等解锁，已解锁返回 false
func (r *StatsRepository) InsertAchievement(userID uint64, key string, at time.Time) (bool, error) {
	res := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_key"}},
		DoNothing: true,
	}).Create(&model.UserAchievement{UserID: userID, AchievementKey: key, UnlockedAt: at})
	return res.RowsAffected > 0, res.Error
}

func (r *StatsRepository) ListAchievements(userID uint64) ([]model.UserAchievement, error) {
	var list []model.UserAchievement
	err := r.DB.Where("user_id = ?", userID).Order("unlocked_at ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *StatsRepository) RecentEvents(userID uint64, limit int) ([]model.XPEvent, error) {
	var list []model.XPEvent
	err := r.DB.Where("user_id = ?", userID).Order("id DESC").Limit(limit).Find(&list).Error
	return list, err
}

// Top 排行榜回源查询
func (r *StatsRepository) Top(limit int) ([]model.UserStats, error) {
	var list []model.UserStats
	err := r.DB.Order("total_xp DESC, user_id ASC").Limit(limit).Find(&list).Error
	return list, err
}

// ReconcileList 等级对账批量读取
func (r *StatsRepository) ReconcileList(ctx context.Context, batchSize int, lastID uint64) ([]model.UserStats, uint64, error) {
	var list []model.UserStats
	if err := r.DB.WithContext(ctx).
		Select("user_id", "total_xp", "level").
		Where("user_id > ?", lastID).
		Order("user_id ASC").
		Limit(batchSize).
		Find(&list).Error; err != nil {
		return nil, lastID, err
	}
	if len(list) == 0 {
		return nil, lastID, nil
	}
	return list, list[len(list)-1].UserID, nil
}

// FixLevel 只在 total_xp 未变化时修正，避免覆盖并发写入
func (r *StatsRepository) FixLevel(ctx context.Context, userID uint64, totalXP int64, level int) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.UserStats{}).
		Where("user_id = ? AND total_xp = ?", userID, totalXP).
		UpdateColumn("level", level)
	return res.RowsAffected > 0, res.Error
}
