// Package payment 支付网关：创建 PaymentIntent 与校验回调
package payment

import (
	"context"
	"errors"
)

const (
	EventSucceeded = "payment_intent.succeeded"
	EventFailed    = "payment_intent.payment_failed"
	EventCanceled  = "payment_intent.canceled"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// IntentRequest 金额单位为分
type IntentRequest struct {
	Amount         int64
	PlatformFee    int64
	NetAmount      int64
	Currency       string
	SponsorshipID  uint64
	ContentID      uint64
	IdempotencyKey string
}

type Intent struct {
	ID           string
	ClientSecret string
}

// Event 只保留业务需要的字段
type Event struct {
	Type     string
	IntentID string
}

type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
