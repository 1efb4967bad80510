package mysql

import (
	"strconv"
	"time"

	"Crowd_Conscious/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SponsorshipRepository struct {
	DB *gorm.DB
}

func (r *SponsorshipRepository) Create(s *model.Sponsorship) error {
	return r.DB.Create(s).Error
}

func (r *SponsorshipRepository) FindByID(id uint64) (*model.Sponsorship, error) {
	var s model.Sponsorship
	err := r.DB.First(&s, id).Error
	return &s, err
}

func (r *SponsorshipRepository) FindByIdempotencyKey(key string) (*model.Sponsorship, error) {
	var s model.Sponsorship
	err := r.DB.Where("idempotency_key = ?", key).First(&s).Error
	return &s, err
}

// SetPaymentIntent 保存支付单号与 client secret，重复提交时原样返回
func (r *SponsorshipRepository) SetPaymentIntent(id uint64, intentID, clientSecret string) error {
	return r.DB.Model(&model.Sponsorship{}).Where("id = ?", id).
		Updates(map[string]any{"payment_intent_id": intentID, "client_secret": clientSecret}).Error
}

// FailByID 创建支付单失败时释放占用的额度，并改写幂等键让客户端可用原键重试
func (r *SponsorshipRepository) FailByID(id uint64, key string) error {
	return r.DB.Model(&model.Sponsorship{}).
		Where("id = ? AND status = ?", id, model.SponsorshipPending).
		Updates(map[string]any{
			"status":          model.SponsorshipFailed,
			"idempotency_key": key + ":failed:" + strconv.FormatUint(id, 10),
		}).Error
}

// PendingTotal since 之后创建且尚未结算赞助的到账金额，计入筹款上限
func (r *SponsorshipRepository) PendingTotal(contentID uint64, since time.Time) (int64, error) {
	var total int64
	err := r.DB.Model(&model.Sponsorship{}).
		Select("COALESCE(SUM(net_amount), 0)").
		Where("content_id = ? AND status = ? AND created_at > ?", contentID, model.SponsorshipPending, since).
		Scan(&total).Error
	return total, err
}

// MarkPaid 支付成功回调：pending -> paid 并累加筹款金额，重复回调返回 changed=false
func (r *SponsorshipRepository) MarkPaid(intentID string, paidAt time.Time) (*model.Sponsorship, bool, error) {
	var (
		s       model.Sponsorship
		changed bool
	)
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("payment_intent_id = ?", intentID).First(&s).Error; err != nil {
			return err
		}
		if s.Status != model.SponsorshipPending {
			return nil
		}
		if err := tx.Model(&model.Sponsorship{}).
			Where("id = ? AND status = ?", s.ID, model.SponsorshipPending).
			Updates(map[string]any{"status": model.SponsorshipPaid, "paid_at": paidAt}).Error; err != nil {
			return err
		}
		cRepo := &ContentRepository{DB: tx}
		if err := cRepo.AddFunding(s.ContentID, s.NetAmount); err != nil {
			return err
		}
		s.Status = model.SponsorshipPaid
		s.PaidAt = &paidAt
		changed = true
		return insertOutbox(tx, model.EventSponsorshipPaid, s.ID, map[string]any{
			"content_id":   s.ContentID,
			"sponsor_id":   s.SponsorID,
			"amount":       s.Amount,
			"platform_fee": s.PlatformFee,
			"net_amount":   s.NetAmount,
		})
	})
	return &s, changed, err
}

// MarkFailed 仅 pending 状态可置为失败
func (r *SponsorshipRepository) MarkFailed(intentID string) (bool, error) {
	res := r.DB.Model(&model.Sponsorship{}).
		Where("payment_intent_id = ? AND status = ?", intentID, model.SponsorshipPending).
		Update("status", model.SponsorshipFailed)
	return res.RowsAffected > 0, res.Error
}

func (r *SponsorshipRepository) ListByContent(contentID uint64) ([]model.Sponsorship, error) {
	var list []model.Sponsorship
	err := r.DB.Where("content_id = ? AND status = ?", contentID, model.SponsorshipPaid).
		Order("id DESC").Find(&list).Error
	return list, err
}

func (r *SponsorshipRepository) ListBySponsor(sponsorID uint64, offset, limit int) ([]model.Sponsorship, error) {
	var list []model.Sponsorship
	err := r.DB.Where("sponsor_id = ?", sponsorID).
		Order("id DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, err
}
