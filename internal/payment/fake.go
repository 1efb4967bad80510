package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// FakeGateway 本地开发与测试使用；签名为固定字符串
type FakeGateway struct {
	Secret string
	// CreateErr 非空时 CreateIntent 失败
	CreateErr error

	mu       sync.Mutex
	seq      int
	Requests []IntentRequest
}

func NewFakeGateway(secret string) *FakeGateway {
	return &FakeGateway{Secret: secret}
}

func (f *FakeGateway) CreateIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.seq++
	f.Requests = append(f.Requests, req)
	id := fmt.Sprintf("pi_fake_%d", f.seq)
	return &Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

// ParseWebhook 载荷格式 {"type": "...", "intent_id": "..."}
func (f *FakeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if signature != f.Secret {
		return nil, ErrInvalidSignature
	}
	var body struct {
		Type     string `json:"type"`
		IntentID string `json:"intent_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, err
	}
	return &Event{Type: body.Type, IntentID: body.IntentID}, nil
}
