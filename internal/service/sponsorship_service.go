package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"Crowd_Conscious/internal/calc"
	"Crowd_Conscious/internal/config"
	"Crowd_Conscious/internal/metrics"
	"Crowd_Conscious/internal/model"
	"Crowd_Conscious/internal/payment"
	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/repository/mysql"
	"Crowd_Conscious/internal/repository/redis"
)

const (
	idemScopeSponsorship = "sponsorship"
	maxIdempotencyKeyLen = 40
	defaultCurrency      = "usd"
	defaultHoldTTL       = 30 * time.Minute
)

type SponsorshipService struct {
	db       *gorm.DB
	repo     *mysql.SponsorshipRepository
	contents *mysql.ContentRepository
	users    *mysql.UserRepository
	idem     *redis.IdempotencyRepository
	gateway  payment.Gateway
	mailer   pkg.Mailer
	policy   *config.Policy
	log      *zap.Logger
	now      func() time.Time
	// Currency 请求未指定币种时使用
	Currency string
	// HoldTTL 未结算赞助占用额度的时长，过期后不再计入筹款上限
	HoldTTL time.Duration
}

// NewSponsorshipService idem 为 nil 时只依赖唯一键去重；mailer 为 nil 时不发回执
func NewSponsorshipService(db *gorm.DB, idem *redis.IdempotencyRepository, gateway payment.Gateway,
	mailer pkg.Mailer, policy *config.Policy, log *zap.Logger) *SponsorshipService {
	return &SponsorshipService{
		db:       db,
		repo:     &mysql.SponsorshipRepository{DB: db},
		contents: &mysql.ContentRepository{DB: db},
		users:    &mysql.UserRepository{DB: db},
		idem:     idem,
		gateway:  gateway,
		mailer:   mailer,
		policy:   policy,
		log:      log,
		now:      time.Now,
		Currency: defaultCurrency,
		HoldTTL:  defaultHoldTTL,
	}
}

type CreateSponsorshipInput struct {
	ContentID      uint64
	Amount         int64
	Currency       string
	Message        string
	IdempotencyKey string
}

// Checkout 前端用 ClientSecret 完成支付
type Checkout struct {
	Sponsorship  *model.Sponsorship `json:"sponsorship"`
	ClientSecret string             `json:"client_secret"`
	Split        calc.FeeSplit      `json:"split"`
	Replayed     bool               `json:"replayed"`
}

// Create 品牌赞助 need：额度校验与占用在内容行锁内完成，筹款不得超过目标
func (s *SponsorshipService) Create(ctx context.Context, sponsorID uint64, in CreateSponsorshipInput) (*Checkout, error) {
	if in.Amount <= 0 {
		return nil, pkg.ErrInvalidParams.WithMsg("amount must be positive")
	}
	if len(in.IdempotencyKey) > maxIdempotencyKeyLen {
		return nil, pkg.ErrInvalidParams.WithMsg("idempotency key too long")
	}
	if in.IdempotencyKey == "" {
		in.IdempotencyKey = uuid.NewString()
	}
	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.Currency
	}
	sponsor, err := s.users.FindByID(sponsorID)
	if err != nil {
		return nil, dbErr(err)
	}
	if !sponsor.IsBrand() {
		return nil, pkg.ErrForbidden.WithMsg("only brand accounts can sponsor")
	}

	// 唯一列按用户隔离
	key := strconv.FormatUint(sponsorID, 10) + ":" + in.IdempotencyKey
	if s.idem != nil {
		first, err := s.idem.Claim(ctx, idemScopeSponsorship, sponsorID, in.IdempotencyKey)
		if err != nil {
			s.log.Warn("idempotency claim failed, relying on unique key", zap.Error(err))
		} else if !first {
			return s.replay(key)
		}
	}

	split := calc.SplitFee(in.Amount, s.policy.PlatformFeeRate)
	sp := &model.Sponsorship{
		ContentID:      in.ContentID,
		SponsorID:      sponsorID,
		Amount:         split.Amount,
		PlatformFee:    split.PlatformFee,
		NetAmount:      split.NetAmount,
		Currency:       currency,
		Status:         model.SponsorshipPending,
		IdempotencyKey: key,
		Message:        in.Message,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := (&mysql.ContentRepository{DB: tx}).FindForUpdate(in.ContentID)
		if err != nil {
			return err
		}
		if c.Type != model.ContentTypeNeed ||
			(c.Status != model.ContentStatusVoting && c.Status != model.ContentStatusApproved) {
			return pkg.ErrNotFundable
		}
		repo := &mysql.SponsorshipRepository{DB: tx}
		pending, err := repo.PendingTotal(c.ID, s.now().Add(-s.HoldTTL))
		if err != nil {
			return err
		}
		remaining := calc.Remaining(c.CurrentFunding+pending, c.FundingGoal)
		if remaining == 0 {
			return pkg.ErrFundingGoalReached
		}
		if split.NetAmount > remaining {
			return pkg.ErrAmountExceedsRemain.WithMsg("amount exceeds remaining funding of " + pkg.FormatCents(remaining))
		}
		return repo.Create(sp)
	})
	if err != nil {
		s.forget(ctx, sponsorID, in.IdempotencyKey)
		var ae *pkg.AppError
		switch {
		case errors.As(err, &ae):
			return nil, ae
		case isDuplicate(err):
			return s.replay(key)
		}
		return nil, dbErr(err)
	}

	intent, err := s.gateway.CreateIntent(ctx, payment.IntentRequest{
		Amount:         sp.Amount,
		PlatformFee:    sp.PlatformFee,
		NetAmount:      sp.NetAmount,
		Currency:       sp.Currency,
		SponsorshipID:  sp.ID,
		ContentID:      sp.ContentID,
		IdempotencyKey: key,
	})
	if err != nil {
		s.log.Error("create payment intent failed", zap.Uint64("sponsorship_id", sp.ID), zap.Error(err))
		if ferr := s.repo.FailByID(sp.ID, key); ferr != nil {
			s.log.Error("release sponsorship failed", zap.Uint64("sponsorship_id", sp.ID), zap.Error(ferr))
		}
		s.forget(ctx, sponsorID, in.IdempotencyKey)
		return nil, pkg.ErrPaymentFailed.Wrap(err)
	}
	if err := s.repo.SetPaymentIntent(sp.ID, intent.ID, intent.ClientSecret); err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	sp.PaymentIntentID = intent.ID
	sp.ClientSecret = intent.ClientSecret
	metrics.SponsorshipsCreated.Inc()
	s.log.Info("sponsorship created",
		zap.Uint64("sponsorship_id", sp.ID),
		zap.Uint64("content_id", sp.ContentID),
		zap.Int64("amount", sp.Amount),
		zap.Int64("platform_fee", sp.PlatformFee))
	return &Checkout{Sponsorship: sp, ClientSecret: intent.ClientSecret, Split: split}, nil
}

// replay 同一幂等键返回首次结果；首次请求尚未落库时报重复提交
func (s *SponsorshipService) replay(key string) (*Checkout, error) {
	sp, err := s.repo.FindByIdempotencyKey(key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkg.ErrDuplicateSubmission
	}
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return &Checkout{
		Sponsorship:  sp,
		ClientSecret: sp.ClientSecret,
		Split: calc.FeeSplit{
			Amount:      sp.Amount,
			PlatformFee: sp.PlatformFee,
			NetAmount:   sp.NetAmount,
			FeeRate:     s.policy.PlatformFeeRate,
		},
		Replayed: true,
	}, nil
}

func (s *SponsorshipService) forget(ctx context.Context, sponsorID uint64, key string) {
	if s.idem == nil {
		return
	}
	if err := s.idem.Forget(ctx, idemScopeSponsorship, sponsorID, key); err != nil {
		s.log.Warn("release idempotency key failed", zap.Error(err))
	}
}

// HandleWebhook 校验签名后结算；重复事件与未知支付单直接确认
func (s *SponsorshipService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			return pkg.ErrInvalidSignature
		}
		return pkg.ErrInvalidParams.Wrap(err)
	}
	switch ev.Type {
	case payment.EventSucceeded:
		return s.settle(ctx, ev.IntentID)
	case payment.EventFailed, payment.EventCanceled:
		changed, err := (&mysql.SponsorshipRepository{DB: s.db.WithContext(ctx)}).MarkFailed(ev.IntentID)
		if err != nil {
			return pkg.ErrInternal.Wrap(err)
		}
		if changed {
			s.log.Info("sponsorship payment failed", zap.String("intent_id", ev.IntentID), zap.String("event", ev.Type))
		}
		return nil
	default:
		s.log.Debug("ignore payment event", zap.String("type", ev.Type))
		return nil
	}
}

func (s *SponsorshipService) settle(ctx context.Context, intentID string) error {
	sp, changed, err := (&mysql.SponsorshipRepository{DB: s.db.WithContext(ctx)}).MarkPaid(intentID, s.now())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Warn("payment for unknown intent", zap.String("intent_id", intentID))
		return nil
	}
	if err != nil {
		return pkg.ErrInternal.Wrap(err)
	}
	if !changed {
		return nil
	}
	metrics.SponsorshipsPaid.Inc()
	metrics.PlatformFeesCents.Add(float64(sp.PlatformFee))
	s.log.Info("sponsorship paid",
		zap.Uint64("sponsorship_id", sp.ID),
		zap.Uint64("content_id", sp.ContentID),
		zap.Int64("net_amount", sp.NetAmount))
	s.sendReceipt(sp)
	return nil
}

// sendReceipt 回执失败不影响结算
func (s *SponsorshipService) sendReceipt(sp *model.Sponsorship) {
	if s.mailer == nil {
		return
	}
	sponsor, err := s.users.FindByID(sp.SponsorID)
	if err != nil {
		s.log.Warn("receipt skipped", zap.Uint64("sponsorship_id", sp.ID), zap.Error(err))
		return
	}
	title := "a community need"
	if c, err := s.contents.FindByID(sp.ContentID); err == nil {
		title = c.Title
	}
	body := pkg.ReceiptMailHTML(title, sp.Amount, sp.PlatformFee, sp.NetAmount, strings.ToUpper(sp.Currency))
	if err := s.mailer.Send(sponsor.Email, "Your sponsorship receipt", body); err != nil {
		s.log.Warn("send receipt failed", zap.Uint64("sponsorship_id", sp.ID), zap.Error(err))
	}
}

// ListByContent 只列已到账的赞助
func (s *SponsorshipService) ListByContent(contentID uint64) ([]model.Sponsorship, error) {
	if _, err := s.contents.FindByID(contentID); err != nil {
		return nil, dbErr(err)
	}
	list, err := s.repo.ListByContent(contentID)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return list, nil
}

func (s *SponsorshipService) Mine(sponsorID uint64, page, size int) ([]model.Sponsorship, error) {
	offset, limit := pageArgs(page, size)
	list, err := s.repo.ListBySponsor(sponsorID, offset, limit)
	if err != nil {
		return nil, pkg.ErrInternal.Wrap(err)
	}
	return list, nil
}
