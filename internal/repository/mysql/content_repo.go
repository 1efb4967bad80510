package mysql

import (
	"errors"
	"time"

	"Crowd_Conscious/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrStatusChanged = errors.New("content status changed concurrently")

type ContentRepository struct {
	DB *gorm.DB
}

// ContentFilter 列表筛选，空值表示不过滤
type ContentFilter struct {
	Status string
	Type   string
}

// Create 写内容与 content.created 事件
func (r *ContentRepository) Create(c *model.CommunityContent) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		return insertOutbox(tx, model.EventContentCreated, c.ID, map[string]any{
			"community_id": c.CommunityID,
			"type":         c.Type,
		})
	})
}

func (r *ContentRepository) FindByID(id uint64) (*model.CommunityContent, error) {
	var c model.CommunityContent
	err := r.DB.First(&c, id).Error
	return &c, err
}

// FindForUpdate select for update，需在事务内使用
func (r *ContentRepository) FindForUpdate(id uint64) (*model.CommunityContent, error) {
	var c model.CommunityContent
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, id).Error
	return &c, err
}

// ListByCommunityCursor 基于时间游标的查询：索引 (community_id, created_at DESC, id DESC)
// lastCreatedAt 为零值表示第一页；否则用 (created_at, id) 作为严格游标
func (r *ContentRepository) ListByCommunityCursor(communityID uint64, f ContentFilter, lastID uint64, lastCreatedAt time.Time, limit int) ([]model.CommunityContent, error) {
	var list []model.CommunityContent
	q := r.DB.Where("community_id = ?", communityID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if !lastCreatedAt.IsZero() {
		// 先比时间，再在同一时间点用 id 打破并列
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", lastCreatedAt, lastCreatedAt, lastID)
	}
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&list).Error
	return list, err
}

// ListCompleted 社区已完成内容，影响力报告使用
func (r *ContentRepository) ListCompleted(communityID uint64) ([]model.CommunityContent, error) {
	var list []model.CommunityContent
	err := r.DB.Where("community_id = ? AND status = ?", communityID, model.ContentStatusCompleted).
		Order("id ASC").Find(&list).Error
	return list, err
}

// UpdateStatus 条件更新 from -> to，并发修改时返回 ErrStatusChanged
func (r *ContentRepository) UpdateStatus(id uint64, from, to string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.CommunityContent{}).
			Where("id = ? AND status = ?", id, from).
			Update("status", to)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStatusChanged
		}
		return insertOutbox(tx, model.EventContentStatus, id, map[string]any{
			"from": from,
			"to":   to,
		})
	})
}

// SwapImage 写入新配图，返回旧文件路径
func (r *ContentRepository) SwapImage(id uint64, url, path string) (string, error) {
	var old string
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var c model.CommunityContent
		if err := tx.Select("id", "image_path").First(&c, id).Error; err != nil {
			return err
		}
		old = c.ImagePath
		return tx.Model(&model.CommunityContent{}).Where("id = ?", id).
			Updates(map[string]any{"image_url": url, "image_path": path}).Error
	})
	return old, err
}

// AddFunding 原子累加筹款金额
func (r *ContentRepository) AddFunding(id uint64, amount int64) error {
	return r.DB.Model(&model.CommunityContent{}).Where("id = ?", id).
		UpdateColumn("current_funding", gorm.Expr("current_funding + ?", amount)).Error
}

// Vote 幂等投票：已投过返回 false
func (r *ContentRepository) Vote(userID, contentID uint64, approve bool) (bool, error) {
	var changed bool
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "content_id"}},
			DoNothing: true,
		}).Create(&model.ContentVote{UserID: userID, ContentID: contentID, Approve: approve})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		col := "votes_against"
		if approve {
			col = "votes_for"
		}
		changed = true
		return tx.Model(&model.CommunityContent{}).Where("id = ?", contentID).
			UpdateColumn(col, gorm.Expr(col+" + 1")).Error
	})
	return changed, err
}

func (r *ContentRepository) FindByIDs(ids []uint64) ([]model.CommunityContent, error) {
	var list []model.CommunityContent
	if len(ids) == 0 {
		return list, nil
	}
	err := r.DB.Where("id IN ?", ids).Find(&list).Error
	return list, err
}

// RSVP 幂等报名，已报名返回 false
func (r *ContentRepository) RSVP(contentID, userID uint64) (bool, error) {
	res := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&model.EventRSVP{ContentID: contentID, UserID: userID})
	return res.RowsAffected > 0, res.Error
}

// MarkAttended 只对已报名且未确认的记录生效
func (r *ContentRepository) MarkAttended(contentID, userID uint64) (bool, error) {
	res := r.DB.Model(&model.EventRSVP{}).
		Where("content_id = ? AND user_id = ? AND attended = ?", contentID, userID, false).
		Update("attended", true)
	return res.RowsAffected > 0, res.Error
}

func (r *ContentRepository) ListRSVPs(contentID uint64) ([]model.EventRSVP, error) {
	var list []model.EventRSVP
	err := r.DB.Where("content_id = ?", contentID).Order("id ASC").Find(&list).Error
	return list, err
}
