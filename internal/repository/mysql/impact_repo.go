package mysql

import (
	"time"

	"Crowd_Conscious/internal/model"

	"gorm.io/gorm"
)

type ImpactRepository struct {
	DB *gorm.DB
}

// MetricSum 按类型汇总
type MetricSum struct {
	MetricType string  `json:"metric_type"`
	Unit       string  `json:"unit"`
	Claimed    float64 `json:"claimed"`
	Verified   float64 `json:"verified"`
	Count      int64   `json:"count"`
}

func (r *ImpactRepository) Create(m *model.ImpactMetric) error {
	return r.DB.Create(m).Error
}

func (r *ImpactRepository) FindByID(id uint64) (*model.ImpactMetric, error) {
	var m model.ImpactMetric
	err := r.DB.First(&m, id).Error
	return &m, err
}

// Verify 幂等，已核验返回 false
func (r *ImpactRepository) Verify(id, verifierID uint64, at time.Time) (bool, error) {
	res := r.DB.Model(&model.ImpactMetric{}).
		Where("id = ? AND verified = ?", id, false).
		Updates(map[string]any{"verified": true, "verified_by": verifierID, "verified_at": at})
	return res.RowsAffected > 0, res.Error
}

func (r *ImpactRepository) SumByType(communityID uint64) ([]MetricSum, error) {
	var list []MetricSum
	err := r.DB.Model(&model.ImpactMetric{}).
		Select(`metric_type, MAX(unit) AS unit, SUM(value) AS claimed,
			SUM(CASE WHEN verified THEN value ELSE 0 END) AS verified, COUNT(*) AS count`).
		Where("community_id = ?", communityID).
		Group("metric_type").
		Order("metric_type ASC").
		Scan(&list).Error
	return list, err
}

// CompletedFunding 社区已完成内容的筹款合计
func (r *ImpactRepository) CompletedFunding(communityID uint64) (int64, error) {
	var total int64
	err := r.DB.Model(&model.CommunityContent{}).
		Select("COALESCE(SUM(current_funding), 0)").
		Where("community_id = ? AND status = ?", communityID, model.ContentStatusCompleted).
		Scan(&total).Error
	return total, err
}

func (r *ImpactRepository) ListByCommunity(communityID uint64, offset, limit int) ([]model.ImpactMetric, error) {
	var list []model.ImpactMetric
	err := r.DB.Where("community_id = ?", communityID).
		Order("id DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, err
}
