package mysql

import (
	"Crowd_Conscious/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CommunityMemberRepository struct {
	DB *gorm.DB
}

// Join 幂等插入：若已存在 (community_id, user_id) 则不报错；新加入时成员数 +1
func (r *CommunityMemberRepository) Join(member *model.CommunityMember) (bool, error) {
	var joined bool
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "community_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(member)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		joined = true
		return tx.Model(&model.Community{}).Where("id = ?", member.CommunityID).
			UpdateColumn("member_count", gorm.Expr("member_count + 1")).Error
	})
	return joined, err
}

// Leave 幂等删除；真正删除时成员数 -1
func (r *CommunityMemberRepository) Leave(communityID, userID uint64) (bool, error) {
	var left bool
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("community_id = ? AND user_id = ?", communityID, userID).
			Delete(&model.CommunityMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		left = true
		return tx.Model(&model.Community{}).Where("id = ?", communityID).
			UpdateColumn("member_count", gorm.Expr("CASE WHEN member_count > 0 THEN member_count - 1 ELSE 0 END")).Error
	})
	return left, err
}

func (r *CommunityMemberRepository) IsMember(communityID, userID uint64) (bool, error) {
	var count int64
	err := r.DB.Model(&model.CommunityMember{}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Count(&count).Error
	return count > 0, err
}

// Get 未加入时返回 gorm.ErrRecordNotFound
func (r *CommunityMemberRepository) Get(communityID, userID uint64) (*model.CommunityMember, error) {
	var m model.CommunityMember
	err := r.DB.Where("community_id = ? AND user_id = ?", communityID, userID).First(&m).Error
	return &m, err
}

// ListByCommunity 按加入顺序返回
func (r *CommunityMemberRepository) ListByCommunity(communityID uint64) ([]model.CommunityMember, error) {
	var list []model.CommunityMember
	err := r.DB.Where("community_id = ?", communityID).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *CommunityMemberRepository) UpdateRole(communityID, userID uint64, role string) (int64, error) {
	res := r.DB.Model(&model.CommunityMember{}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Update("role", role)
	return res.RowsAffected, res.Error
}
