package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"Crowd_Conscious/internal/repository/elastic"
	"Crowd_Conscious/internal/repository/mysql"
	"Crowd_Conscious/internal/service"
)

type ContentHandler struct {
	svc       *service.ContentService
	maxUpload int64
}

type CreateContentReq struct {
	CommunityID uint64 `json:"community_id" binding:"required"`
	Type        string `json:"type"`
	Title       string `json:"title"        binding:"required,max=200"`
	Description string `json:"description"  binding:"max=5000"`
	FundingGoal int64  `json:"funding_goal"`
}

type VoteReq struct {
	Approve *bool `json:"approve" binding:"required"`
}

type StatusReq struct {
	Status string `json:"status" binding:"required"`
}

type AttendReq struct {
	UserID uint64 `json:"user_id" binding:"required"`
}

func NewContentHandler(svc *service.ContentService, maxUpload int64) *ContentHandler {
	return &ContentHandler{svc: svc, maxUpload: maxUpload}
}

// Create 创建内容接口，type 默认为 need
func (h *ContentHandler) Create(c *gin.Context) {
	var req CreateContentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	v, err := h.svc.Create(c.Request.Context(), currentUser(c), service.CreateContentInput{
		CommunityID: req.CommunityID,
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		FundingGoal: req.FundingGoal,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, v)
}

func (h *ContentHandler) Get(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	v, err := h.svc.Get(id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, v)
}

func (h *ContentHandler) Vote(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req VoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.svc.Vote(c.Request.Context(), currentUser(c), id, *req.Approve)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (h *ContentHandler) SetStatus(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req StatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	v, err := h.svc.SetStatus(c.Request.Context(), currentUser(c), id, req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, v)
}

// ListByCommunity 游标分页：last_id 与 last_ts 取自上一页的 next_id/next_ts
func (h *ContentHandler) ListByCommunity(c *gin.Context) {
	communityID, valid := pathID(c, "community_id")
	if !valid {
		return
	}
	var lastID uint64
	var lastTS int64
	if s := c.Query("last_id"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			badRequest(c, "invalid last_id")
			return
		}
		lastID = v
	}
	if s := c.Query("last_ts"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			badRequest(c, "invalid last_ts")
			return
		}
		lastTS = v
	}
	f := mysql.ContentFilter{Status: c.Query("status"), Type: c.Query("type")}
	page, err := h.svc.ListByCommunity(communityID, f, lastID, lastTS, queryInt(c, "size"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, page)
}

func (h *ContentHandler) Search(c *gin.Context) {
	q := elastic.SearchQuery{
		Text:   c.Query("q"),
		Type:   c.Query("type"),
		Status: c.Query("status"),
		From:   queryInt(c, "from"),
		Size:   queryInt(c, "size"),
	}
	if s := c.Query("community_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			badRequest(c, "invalid community_id")
			return
		}
		q.CommunityID = id
	}
	res, err := h.svc.Search(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (h *ContentHandler) RSVP(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	added, err := h.svc.RSVP(c.Request.Context(), currentUser(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"added": added})
}

// Attend founder/admin 确认到场
func (h *ContentHandler) Attend(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req AttendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	marked, err := h.svc.ConfirmAttendance(c.Request.Context(), currentUser(c), id, req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"marked": marked})
}

func (h *ContentHandler) Attendees(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	list, err := h.svc.Attendees(id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"list": list})
}

func (h *ContentHandler) UploadImage(c *gin.Context) {
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
