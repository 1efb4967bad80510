package handler

import (
	"github.com/gin-gonic/gin"

	"Crowd_Conscious/internal/service"
)

type UserHandler struct {
	svc       *service.UserService
	xp        *service.GamificationService
	maxUpload int64
}

// RegisterReq 注册请求体
type RegisterReq struct {
	Username string `json:"username"  binding:"required,min=3,max=64"`
	Password string `json:"password"  binding:"required,min=6,max=72"`
	Email    string `json:"email"     binding:"required,email"`
	Code     string `json:"code"      binding:"required,len=6"`
	FullName string `json:"full_name" binding:"max=128"`
	UserType string `json:"user_type" binding:"omitempty,oneof=user brand"`
}

// ResetReq 忘记密码请求体
type ResetReq struct {
	Email       string `json:"email"        binding:"required,email"`
	Code        string `json:"code"         binding:"required,len=6"`
	NewPassword string `json:"new_password" binding:"required,min=6,max=72"`
}

type ChangePasswordReq struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6,max=72"`
}

type LoginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshReq struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type ProfileReq struct {
	FullName string `json:"full_name" binding:"max=128"`
}

func NewUserHandler(svc *service.UserService, xp *service.GamificationService, maxUpload int64) *UserHandler {
	return &UserHandler{svc: svc, xp: xp, maxUpload: maxUpload}
}

// Register 注册接口
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	user, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Code:     req.Code,
		FullName: req.FullName,
		UserType: req.UserType,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, user)
}

// Login 登录成功顺带记一次每日登录
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	pair, user, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	data := gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken, "user": user}
	if h.xp != nil {
		if streak, err := h.xp.DailyLogin(c.Request.Context(), user.ID); err == nil {
			data["daily_login"] = streak
		}
	}
	ok(c, data)
}

func (h *UserHandler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), currentUser(c)); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// TokenRefresh 利用 refresh 来更新 access
func (h *UserHandler) TokenRefresh(c *gin.Context) {
	var req RefreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, pair)
}

func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req ResetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), currentUser(c), req.OldPassword, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (h *UserHandler) Profile(c *gin.Context) {
	user, err := h.svc.Profile(currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, user)
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req ProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	user, err := h.svc.UpdateProfile(currentUser(c), req.FullName)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, user)
}

// UploadAvatar multipart 字段名为 file
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	data, err := readUpload(c, h.maxUpload)
	if err != nil {
		fail(c, err)
		return
	}
	url, err := h.svc.UploadAvatar(c.Request.Context(), currentUser(c), data)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"avatar_url": url})
}
