package model

import "time"

// UserStats 用户积分聚合；Level 只是缓存，以 TotalXP 推导为准
type UserStats struct {
	UserID          uint64     `gorm:"primaryKey" json:"user_id"`
	TotalXP         int64      `gorm:"not null;default:0;index" json:"total_xp"`
	Level           int        `gorm:"not null;default:1" json:"level"`
	VotesCast       int64      `gorm:"not null;default:0" json:"votes_cast"`
	ContentCreated  int64      `gorm:"not null;default:0" json:"content_created"`
	EventsAttended  int64      `gorm:"not null;default:0" json:"events_attended"`
	CurrentStreak   int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak   int        `gorm:"not null;default:0" json:"longest_streak"`
	LastActivityDay *time.Time `json:"last_activity_day"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (UserStats) TableName() string { return "user_stats" }

// XPEvent 积分流水
type XPEvent struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	UserID      uint64    `gorm:"not null;index:idx_xp_user_time,priority:1" json:"user_id"`
	Action      string    `gorm:"size:32;not null" json:"action"`
	Points      int64     `gorm:"not null" json:"points"`
	ReferenceID uint64    `json:"reference_id"`
	CreatedAt   time.Time `gorm:"index:idx_xp_user_time,priority:2" json:"created_at"`
}

func (XPEvent) TableName() string { return "xp_events" }

type UserAchievement struct {
	ID             uint64    `gorm:"primaryKey" json:"id"`
	UserID         uint64    `gorm:"not null;uniqueIndex:uk_user_achievement" json:"user_id"`
	AchievementKey string    `gorm:"size:64;not null;uniqueIndex:uk_user_achievement" json:"achievement_key"`
	UnlockedAt     time.Time `json:"unlocked_at"`
}
