package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultEmailCodeTTL = 5 * time.Minute
	EmailCodePrefix     = "email:code"

	ScopeRegister = "register"
	ScopeReset    = "reset"

	// 两阶段键：邮件发出前 pending，发出后 confirmed
	PendingSuffix   = "pending"
	ConfirmedSuffix = "confirmed"
)

var (
	ErrEmailNotFound       = errors.New("email code not found")
	ErrEmailCodeDelFailed  = errors.New("email code delete failed")
	ErrCodePendingFailed   = errors.New("code pending failed")
	ErrCodeConfirmedFailed = errors.New("code confirmed failed")
)

// 取值+写入目标+设置 TTL+删除源
var confirmScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if not val then
  return 0
end
redis.call("SET", KEYS[2], val, "PX", ARGV[1])
redis.call("DEL", KEYS[1])
return 1
`)

type EmailRepository struct {
	RDB *redis.Client
	TTL time.Duration
}

func (r *EmailRepository) ttl() time.Duration {
	if r.TTL > 0 {
		return r.TTL
	}
	return DefaultEmailCodeTTL
}

func codeKey(scope, stage, email string) string {
	return fmt.Sprintf("%s:%s:%s:%s", EmailCodePrefix, scope, stage, email)
}

// SavePending 写入 pending 键
func (r *EmailRepository) SavePending(ctx context.Context, scope, email, code string) error {
	if err := r.RDB.Set(ctx, codeKey(scope, PendingSuffix, email), code, r.ttl()).Err(); err != nil {
		return ErrCodePendingFailed
	}
	return nil
}

// Confirm pending -> confirmed 并重置 TTL
func (r *EmailRepository) Confirm(ctx context.Context, scope, email string) error {
	px := int64(r.ttl() / time.Millisecond)
	n, err := confirmScript.Run(ctx, r.RDB,
		[]string{codeKey(scope, PendingSuffix, email), codeKey(scope, ConfirmedSuffix, email)}, px).Int()
	if err != nil || n != 1 {
		return ErrCodeConfirmedFailed
	}
	return nil
}

// DeletePending 删除 pending 键（幂等）
func (r *EmailRepository) DeletePending(ctx context.Context, scope, email string) error {
	if err := r.RDB.Del(ctx, codeKey(scope, PendingSuffix, email)).Err(); err != nil {
		return ErrEmailCodeDelFailed
	}
	return nil
}

// GetConfirmed 校验时读取已发出的验证码
func (r *EmailRepository) GetConfirmed(ctx context.Context, scope, email string) (string, error) {
	val, err := r.RDB.Get(ctx, codeKey(scope, ConfirmedSuffix, email)).Result()
	if err != nil {
		return "", ErrEmailNotFound
	}
	return val, nil
}

func (r *EmailRepository) DeleteConfirmed(ctx context.Context, scope, email string) error {
	if err := r.RDB.Del(ctx, codeKey(scope, ConfirmedSuffix, email)).Err(); err != nil {
		return ErrEmailCodeDelFailed
	}
	return nil
}
