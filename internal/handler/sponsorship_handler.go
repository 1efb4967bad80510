package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/service"
)

// 回调载荷上限
const maxWebhookBytes = 64 << 10

type SponsorshipHandler struct {
	svc *service.SponsorshipService
}

type CreateSponsorshipReq struct {
	ContentID uint64 `json:"content_id" binding:"required"`
	Amount    int64  `json:"amount"     binding:"required,gt=0"`
	Currency  string `json:"currency"   binding:"omitempty,len=3"`
	Message   string `json:"message"    binding:"max=500"`
}

func NewSponsorshipHandler(svc *service.SponsorshipService) *SponsorshipHandler {
	return &SponsorshipHandler{svc: svc}
}

// Create 幂等键取自 Idempotency-Key 请求头
func (h *SponsorshipHandler) Create(c *gin.Context) {
	var req CreateSponsorshipReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	out, err := h.svc.Create(c.Request.Context(), currentUser(c), service.CreateSponsorshipInput{
		ContentID:      req.ContentID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Message:        req.Message,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *SponsorshipHandler) ByContent(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	list, err := h.svc.ListByContent(id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"list": list})
}

func (h *SponsorshipHandler) Mine(c *gin.Context) {
	page, size := queryInt(c, "page"), queryInt(c, "size")
	list, err := h.svc.Mine(currentUser(c), page, size)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"list": list, "page": page, "size": size})
}

// Webhook 签名校验需要原始请求体
func (h *SponsorshipHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		fail(c, pkg.ErrInvalidParams.Wrap(err))
		return
	}
	if err := h.svc.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"received": true})
}
