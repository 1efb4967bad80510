package mysql

import (
	"context"

	"Crowd_Conscious/internal/model"

	"gorm.io/gorm"
)

type CommunityRepository struct {
	DB *gorm.DB
}

// MemberCountPair 对账用
type MemberCountPair struct {
	ID          uint64
	MemberCount int64
}

// Create 创建社区并让创建者以 founder 身份加入
func (r *CommunityRepository) Create(c *model.Community) (*model.Community, error) {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		mRepo := &CommunityMemberRepository{DB: tx}

		if err := tx.Create(c).Error; err != nil {
			return err
		}

		// 幂等加入：仓储已 DoNothing；这里将其视为成功
		if _, err := mRepo.Join(&model.CommunityMember{
			CommunityID: c.ID,
			UserID:      c.CreatorID,
			Role:        model.RoleFounder,
		}); err != nil {
			return err
		}
		return tx.First(c, c.ID).Error
	})
	return c, err
}

func (r *CommunityRepository) FindByID(id uint64) (*model.Community, error) {
	var community model.Community
	err := r.DB.First(&community, id).Error
	return &community, err
}

func (r *CommunityRepository) FindByName(name string) (*model.Community, error) {
	var community model.Community
	err := r.DB.Where("name = ?", name).First(&community).Error
	return &community, err
}

func (r *CommunityRepository) List(offset, limit int) ([]model.Community, error) {
	var list []model.Community
	err := r.DB.Order("id desc").Offset(offset).Limit(limit).Find(&list).Error
	return list, err
}

// SwapImage 写入新封面，返回旧文件路径
func (r *CommunityRepository) SwapImage(id uint64, url, path string) (string, error) {
	var old string
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var c model.Community
		if err := tx.Select("id", "image_path").First(&c, id).Error; err != nil {
			return err
		}
		old = c.ImagePath
		return tx.Model(&model.Community{}).Where("id = ?", id).
			Updates(map[string]any{"image_url": url, "image_path": path}).Error
	})
	return old, err
}

// ReconcileList 按 id 批量读取计数
func (r *CommunityRepository) ReconcileList(ctx context.Context, batchSize int, lastID uint64) ([]MemberCountPair, uint64, error) {
	var list []MemberCountPair
	if err := r.DB.WithContext(ctx).Model(&model.Community{}).
		Select("id", "member_count").
		Where("id > ?", lastID).
		Order("id ASC").
		Limit(batchSize).
		Find(&list).Error; err != nil {
		return nil, lastID, err
	}
	if len(list) == 0 {
		return nil, lastID, nil
	}
	return list, list[len(list)-1].ID, nil
}

// RealMemberCount 成员表中的真实人数
func (r *CommunityRepository) RealMemberCount(ctx context.Context, communityID uint64) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.CommunityMember{}).
		Where("community_id = ?", communityID).
		Count(&n).Error
	return n, err
}

func (r *CommunityRepository) FixMemberCount(ctx context.Context, communityID uint64, n int64) error {
	return r.DB.WithContext(ctx).Model(&model.Community{}).Where("id = ?", communityID).
		UpdateColumn("member_count", n).Error
}
