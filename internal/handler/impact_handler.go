package handler

import (
	"github.com/gin-gonic/gin"

	"Crowd_Conscious/internal/service"
)

type ImpactHandler struct {
	svc *service.ImpactService
}

type RecordImpactReq struct {
	CommunityID uint64  `json:"community_id" binding:"required"`
	ContentID   uint64  `json:"content_id"`
	MetricType  string  `json:"metric_type"  binding:"required,max=64"`
	Value       float64 `json:"value"        binding:"required"`
	Unit        string  `json:"unit"         binding:"max=32"`
}

func NewImpactHandler(svc *service.ImpactService) *ImpactHandler {
	return &ImpactHandler{svc: svc}
}

func (h *ImpactHandler) Record(c *gin.Context) {
	var req RecordImpactReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	m, err := h.svc.Record(currentUser(c), service.RecordImpactInput{
		CommunityID: req.CommunityID,
		ContentID:   req.ContentID,
		MetricType:  req.MetricType,
		Value:       req.Value,
		Unit:        req.Unit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, m)
}

// Verify 平台管理员核验
func (h *ImpactHandler) Verify(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	m, err := h.svc.Verify(currentUser(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, m)
}
