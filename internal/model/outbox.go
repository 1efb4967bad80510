package model

import "time"

const (
	EventSponsorshipPaid   = "sponsorship.paid"
	EventContentCreated    = "content.created"
	EventContentStatus     = "content.status"
	EventXPAwarded         = "xp.awarded"
	EventCertificateIssued = "certificate.issued"
)

const (
	OutboxPending int8 = 0
	OutboxSent    int8 = 1
	OutboxFailed  int8 = 2
)

// OutboxEvent 领域事件表，与业务写入同事务
type OutboxEvent struct {
	ID          uint64 `gorm:"primaryKey"`
	EventType   string `gorm:"size:32;not null"`
	AggregateID uint64 `gorm:"not null"`
	Payload     string `gorm:"type:text;not null"`
	Status      int8   `gorm:"not null;default:0;index"`
	Retry       int    `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (OutboxEvent) TableName() string { return "outbox_events" }
