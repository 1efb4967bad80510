package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"Crowd_Conscious/internal/service"
)

type CorporateHandler struct {
	svc   *service.CorporateService
	certs *service.CertificateService
}

type CreateAccountReq struct {
	CompanyName   string `json:"company_name"   binding:"required,max=128"`
	ProgramTier   string `json:"program_tier"`
	EmployeeLimit int    `json:"employee_limit" binding:"gte=0"`
	Investment    int64  `json:"investment"     binding:"gte=0"`
}

type ModuleReq struct {
	Title    string `json:"title"     binding:"required,max=200"`
	Position int    `json:"position"`
	XPReward int64  `json:"xp_reward" binding:"gte=0"`
}

type CreateCourseReq struct {
	Title       string      `json:"title"       binding:"required,max=200"`
	Description string      `json:"description" binding:"max=5000"`
	Modules     []ModuleReq `json:"modules"     binding:"dive"`
}

type EnrollReq struct {
	AccountID uint64 `json:"account_id" binding:"required"`
	CourseID  uint64 `json:"course_id"  binding:"required"`
	UserID    uint64 `json:"user_id"    binding:"required"`
}

type ProgressReq struct {
	ModuleID uint64 `json:"module_id" binding:"required"`
}

func NewCorporateHandler(svc *service.CorporateService, certs *service.CertificateService) *CorporateHandler {
	return &CorporateHandler{svc: svc, certs: certs}
}

func (h *CorporateHandler) CreateAccount(c *gin.Context) {
	var req CreateAccountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := h.svc.CreateAccount(currentUser(c), service.CreateAccountInput{
		CompanyName:   req.CompanyName,
		ProgramTier:   req.ProgramTier,
		EmployeeLimit: req.EmployeeLimit,
		Investment:    req.Investment,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, a)
}

func (h *CorporateHandler) Dashboard(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	d, err := h.svc.Dashboard(currentUser(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, d)
}

func toModule(m ModuleReq) service.ModuleInput {
	return service.ModuleInput{Title: m.Title, Position: m.Position, XPReward: m.XPReward}
}

func (h *CorporateHandler) CreateCourse(c *gin.Context) {
	var req CreateCourseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	in := service.CreateCourseInput{Title: req.Title, Description: req.Description}
	for _, m := range req.Modules {
		in.Modules = append(in.Modules, toModule(m))
	}
	course, err := h.svc.CreateCourse(currentUser(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, course)
}

func (h *CorporateHandler) Course(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	course, err := h.svc.Course(id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, course)
}

func (h *CorporateHandler) AddModule(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req ModuleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	m, err := h.svc.AddModule(currentUser(c), id, toModule(req))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, m)
}

func (h *CorporateHandler) Enroll(c *gin.Context) {
	var req EnrollReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	e, created, err := h.svc.Enroll(c.Request.Context(), currentUser(c), service.EnrollInput{
		AccountID: req.AccountID,
		CourseID:  req.CourseID,
		UserID:    req.UserID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"enrollment": e, "created": created})
}

// Progress 员工提交模块完成
func (h *CorporateHandler) Progress(c *gin.Context) {
	var req ProgressReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.svc.CompleteModule(c.Request.Context(), currentUser(c), req.ModuleID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (h *CorporateHandler) MyEnrollments(c *gin.Context) {
	list, err := h.svc.MyEnrollments(currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"list": list})
}

// CertificateImage 直接返回文件，不走 JSON 响应体
func (h *CorporateHandler) CertificateImage(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	out, err := h.certs.Image(c.Request.Context(), currentUser(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", "inline; filename="+strconv.Quote(out.Filename))
	c.Data(http.StatusOK, out.ContentType, out.Data)
}

// VerifyCertificate 公开接口
func (h *CorporateHandler) VerifyCertificate(c *gin.Context) {
	v, err := h.certs.Verify(c.Param("code"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, v)
}
