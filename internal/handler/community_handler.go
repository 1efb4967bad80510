package handler

import (
	"github.com/gin-gonic/gin"

	"Crowd_Conscious/internal/service"
)

type CommunityHandler struct {
	svc       *service.CommunityService
	impact    *service.ImpactService
	maxUpload int64
}

type CommunityCreateReq struct {
	Name        string   `json:"name"        binding:"required,max=64"`
	Description string   `json:"description" binding:"max=2000"`
	CoreValues  []string `json:"core_values" binding:"max=10,dive,max=64"`
	Address     string   `json:"address"     binding:"max=255"`
}

type SetRoleReq struct {
	UserID uint64 `json:"user_id" binding:"required"`
	Role   string `json:"role"    binding:"required,oneof=admin member"`
}

func NewCommunityHandler(svc *service.CommunityService, impact *service.ImpactService, maxUpload int64) *CommunityHandler {
	return &CommunityHandler{svc: svc, impact: impact, maxUpload: maxUpload}
}

func (h *CommunityHandler) Create(c *gin.Context) {
	var req CommunityCreateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	community, err := h.svc.Create(currentUser(c), service.CreateCommunityInput{
		Name:        req.Name,
		Description: req.Description,
		CoreValues:  req.CoreValues,
		Address:     req.Address,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, community)
}

func (h *CommunityHandler) Get(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	community, err := h.svc.Get(id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, community)
}

func (h *CommunityHandler) Join(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	joined, err := h.svc.Join(currentUser(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"joined": joined})
}

func (h *CommunityHandler) Leave(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	left, err := h.svc.Leave(currentUser(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"left": left})
}

func (h *CommunityHandler) List(c *gin.Context) {
	page, size := queryInt(c, "page"), queryInt(c, "size")
	list, err := h.svc.List(page, size)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"list": list, "page": page, "size": size})
}

func (h *CommunityHandler) Members(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	list, err := h.svc.Members(id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"list": list})
}

func (h *CommunityHandler) SetRole(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req SetRoleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.svc.SetRole(currentUser(c), id, req.UserID, req.Role); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// Impact 社区影响报告
func (h *CommunityHandler) Impact(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	report, err := h.impact.Report(id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, report)
}

func (h *CommunityHandler) UploadImage(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	data, err := readUpload(c, h.maxUpload)
	if err != nil {
		fail(c, err)
		return
	}
	url, err := h.svc.UploadImage(c.Request.Context(), currentUser(c), id, data)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"image_url": url})
}
