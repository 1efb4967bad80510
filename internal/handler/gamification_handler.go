package handler

import (
	"github.com/gin-gonic/gin"

	"Crowd_Conscious/internal/service"
)

type GamificationHandler struct {
	svc *service.GamificationService
}

func NewGamificationHandler(svc *service.GamificationService) *GamificationHandler {
	return &GamificationHandler{svc: svc}
}

func (h *GamificationHandler) Me(c *gin.Context) {
	p, err := h.svc.Me(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

// DailyLogin 同一天重复调用不再加分
func (h *GamificationHandler) DailyLogin(c *gin.Context) {
	res, err := h.svc.DailyLogin(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (h *GamificationHandler) Leaderboard(c *gin.Context) {
	list, err := h.svc.Leaderboard(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"list": list})
}
