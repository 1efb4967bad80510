package model

import "time"

const (
	ContentTypeNeed      = "need"
	ContentTypeEvent     = "event"
	ContentTypePoll      = "poll"
	ContentTypeChallenge = "challenge"
)

const (
	ContentStatusVoting    = "voting"
	ContentStatusApproved  = "approved"
	ContentStatusRejected  = "rejected"
	ContentStatusCompleted = "completed"
)

// CommunityContent 社区内容，need 类型带筹款目标
type CommunityContent struct {
	ID             uint64    `gorm:"primaryKey;index:idx_comm_time_id,priority:3,sort:desc" json:"id"`
	CommunityID    uint64    `gorm:"not null;index:idx_comm_time_id,priority:1" json:"community_id"`
	AuthorID       uint64    `gorm:"not null;index" json:"author_id"`
	Type           string    `gorm:"size:16;not null;default:'need'" json:"type"`
	Title          string    `gorm:"size:200;not null" json:"title"`
	Description    string    `gorm:"type:text" json:"description"`
	ImageURL       string    `gorm:"size:512" json:"image_url"`
	ImagePath      string    `gorm:"size:255" json:"-"`
	Status         string    `gorm:"size:16;not null;default:'voting';index" json:"status"`
	FundingGoal    int64     `gorm:"not null;default:0" json:"funding_goal"`    // 分
	CurrentFunding int64     `gorm:"not null;default:0" json:"current_funding"` // 分，只增不减
	VotesFor       int64     `gorm:"not null;default:0" json:"votes_for"`
	VotesAgainst   int64     `gorm:"not null;default:0" json:"votes_against"`
	CreatedAt      time.Time `gorm:"index:idx_comm_time_id,priority:2,sort:desc" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (CommunityContent) TableName() string { return "community_content" }

// ContentVote 每人每条内容一票
type ContentVote struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	UserID    uint64 `gorm:"not null;uniqueIndex:uk_vote_user_content"`
	ContentID uint64 `gorm:"not null;index;uniqueIndex:uk_vote_user_content"`
	Approve   bool   `gorm:"not null"`
	CreatedAt time.Time
}

func (ContentVote) TableName() string { return "content_votes" }

// EventRSVP 活动报名，Attended 由管理员确认
type EventRSVP struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	ContentID uint64    `gorm:"not null;uniqueIndex:uk_rsvp_content_user" json:"content_id"`
	UserID    uint64    `gorm:"not null;uniqueIndex:uk_rsvp_content_user;index" json:"user_id"`
	Attended  bool      `gorm:"not null;default:false" json:"attended"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (EventRSVP) TableName() string { return "event_rsvps" }

// CanTransition 内容状态流转：voting -> approved|rejected, approved -> completed
func CanTransition(from, to string) bool {
	switch from {
	case ContentStatusVoting:
		return to == ContentStatusApproved || to == ContentStatusRejected
	case ContentStatusApproved:
		return to == ContentStatusCompleted
	}
	return false
}
