package model

import "time"

type ImpactMetric struct {
	ID          uint64     `gorm:"primaryKey" json:"id"`
	CommunityID uint64     `gorm:"not null;index" json:"community_id"`
	ContentID   uint64     `gorm:"index" json:"content_id"`
	MetricType  string     `gorm:"size:32;not null" json:"metric_type"` // co2_reduced / trees_planted / ...
	Value       float64    `gorm:"not null" json:"value"`
	Unit        string     `gorm:"size:16" json:"unit"`
	Verified    bool       `gorm:"not null;default:false" json:"verified"`
	VerifiedBy  uint64     `json:"verified_by,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	RecordedBy  uint64     `gorm:"not null" json:"recorded_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
