package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoleFounder = "founder"
	RoleAdmin   = "admin"
	RoleMember  = "member"
)

type Community struct {
	ID          uint64         `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	CoreValues  datatypes.JSON `json:"core_values"` // []string
	Address     string         `gorm:"size:255" json:"address"`
	ImageURL    string         `gorm:"size:512" json:"image_url"`
	ImagePath   string         `gorm:"size:255" json:"-"`
	CreatorID   uint64         `gorm:"not null;index" json:"creator_id"`
	MemberCount int64          `gorm:"not null;default:0" json:"member_count"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CommunityMember 成员关系；voting power 不落库，由角色按策略表推导
type CommunityMember struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	CommunityID uint64    `gorm:"not null;index;uniqueIndex:uk_community_user" json:"community_id"`
	UserID      uint64    `gorm:"not null;index;uniqueIndex:uk_community_user" json:"user_id"`
	Role        string    `gorm:"size:16;not null;default:'member'" json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CanManage founder/admin 可管理内容状态与成员角色
func (m *CommunityMember) CanManage() bool {
	return m.Role == RoleFounder || m.Role == RoleAdmin
}
