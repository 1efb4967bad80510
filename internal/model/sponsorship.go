package model

import "time"

const (
	SponsorshipPending = "pending"
	SponsorshipPaid    = "paid"
	SponsorshipFailed  = "failed"
)

// Sponsorship 品牌对 need 的赞助，金额单位为分
type Sponsorship struct {
	ID              uint64     `gorm:"primaryKey" json:"id"`
	ContentID       uint64     `gorm:"not null;index" json:"content_id"`
	SponsorID       uint64     `gorm:"not null;index" json:"sponsor_id"`
	Amount          int64      `gorm:"not null" json:"amount"`
	PlatformFee     int64      `gorm:"not null" json:"platform_fee"`
	NetAmount       int64      `gorm:"not null" json:"net_amount"`
	Currency        string     `gorm:"size:8;not null;default:'usd'" json:"currency"`
	Status          string     `gorm:"size:16;not null;default:'pending';index" json:"status"`
	PaymentIntentID string     `gorm:"size:64;index" json:"payment_intent_id"`
	ClientSecret    string     `gorm:"size:255" json:"-"`
	IdempotencyKey  string     `gorm:"size:96;uniqueIndex" json:"-"`
	Message         string     `gorm:"size:500" json:"message"`
	PaidAt          *time.Time `json:"paid_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
