package router

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"Crowd_Conscious/internal/config"
	"Crowd_Conscious/internal/handler"
	"Crowd_Conscious/internal/middleware"
	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/repository/redis"
	"Crowd_Conscious/internal/service"
)

// Deps 路由依赖的服务
type Deps struct {
	Users        *service.UserService
	Emails       *service.EmailService
	Communities  *service.CommunityService
	Contents     *service.ContentService
	Sponsorships *service.SponsorshipService
	Impact       *service.ImpactService
	XP           *service.GamificationService
	Corporate    *service.CorporateService
	Certificates *service.CertificateService

	Tokens   *pkg.TokenManager
	Sessions *redis.UserRepository
	Gatherer prometheus.Gatherer
	// Health 为 nil 时 /healthz 总是返回 ok
	Health func(ctx context.Context) error
	Log    *zap.Logger
}

// New 返回套上 CORS 的 http.Handler
func New(cfg config.ServerConfig, d Deps) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}).Handler(NewEngine(cfg, d))
}

func NewEngine(cfg config.ServerConfig, d Deps) *gin.Engine {
	switch cfg.Mode {
	case gin.ReleaseMode, gin.TestMode:
		gin.SetMode(cfg.Mode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(middleware.Recovery(d.Log), middleware.Logger(d.Log), middleware.Metrics())
	r.MaxMultipartMemory = cfg.MaxUploadBytes

	user := handler.NewUserHandler(d.Users, d.XP, cfg.MaxUploadBytes)
	email := handler.NewEmailHandler(d.Emails)
	community := handler.NewCommunityHandler(d.Communities, d.Impact, cfg.MaxUploadBytes)
	content := handler.NewContentHandler(d.Contents, cfg.MaxUploadBytes)
	sponsorship := handler.NewSponsorshipHandler(d.Sponsorships)
	impact := handler.NewImpactHandler(d.Impact)
	xp := handler.NewGamificationHandler(d.XP)
	corporate := handler.NewCorporateHandler(d.Corporate, d.Certificates)

	auth := middleware.Auth(d.Tokens, d.Sessions)
	limit := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst).Handler()

	r.GET("/healthz", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")

	// 邮件相关接口
	emailGroup := api.Group("/email", limit)
	{
		emailGroup.POST("/:scope/code", email.SendCode)
	}

	// 用户相关接口
	userGroup := api.Group("/user", limit)
	{
		userGroup.POST("/register", user.Register)
		userGroup.POST("/login", user.Login)
		userGroup.POST("/reset", user.ResetPassword)
		userGroup.POST("/logout", auth, user.Logout)
	}

	// token 相关接口
	api.POST("/token/refresh", limit, user.TokenRefresh)

	// 登录态接口
	authGroup := api.Group("/auth", auth, limit)
	{
		authGroup.POST("/change-password", user.ChangePassword)
		authGroup.GET("/profile", user.Profile)
		authGroup.PUT("/profile", user.UpdateProfile)
		authGroup.POST("/avatar", user.UploadAvatar)
	}

	// 社区相关接口
	communityGroup := api.Group("/community", auth, limit)
	{
		communityGroup.POST("/create", community.Create)
		communityGroup.POST("/join/:id", community.Join)
		communityGroup.POST("/leave/:id", community.Leave)
		communityGroup.GET("/list", community.List)
		communityGroup.GET("/:id", community.Get)
		communityGroup.GET("/:id/members", community.Members)
		communityGroup.POST("/:id/role", community.SetRole)
		communityGroup.GET("/:id/impact", community.Impact)
		communityGroup.POST("/:id/image", community.UploadImage)
	}

	// 社区内容相关接口
	contentGroup := api.Group("/content", auth, limit)
	{
		contentGroup.POST("/create", content.Create)
		contentGroup.GET("/search", content.Search)
		contentGroup.GET("/list/:community_id", content.ListByCommunity)
		contentGroup.GET("/:id", content.Get)
		contentGroup.POST("/:id/vote", content.Vote)
		contentGroup.POST("/:id/status", content.SetStatus)
		contentGroup.POST("/:id/image", content.UploadImage)
		contentGroup.POST("/:id/rsvp", content.RSVP)
		contentGroup.POST("/:id/attend", content.Attend)
		contentGroup.GET("/:id/attendees", content.Attendees)
	}

	// 赞助相关接口
	sponsorGroup := api.Group("/sponsorship", auth, limit)
	{
		sponsorGroup.POST("/create", sponsorship.Create)
		sponsorGroup.GET("/content/:id", sponsorship.ByContent)
		sponsorGroup.GET("/mine", sponsorship.Mine)
	}
	// 支付回调由签名鉴权
	api.POST("/payments/webhook", sponsorship.Webhook)

	impactGroup := api.Group("/impact", auth, limit)
	{
		impactGroup.POST("/record", impact.Record)
		impactGroup.POST("/:id/verify", impact.Verify)
	}

	xpGroup := api.Group("/gamification", auth, limit)
	{
		xpGroup.GET("/me", xp.Me)
		xpGroup.POST("/login", xp.DailyLogin)
		xpGroup.GET("/leaderboard", xp.Leaderboard)
	}

	// 企业培训相关接口
	corpGroup := api.Group("/corporate", auth, limit)
	{
		corpGroup.POST("/account", corporate.CreateAccount)
		corpGroup.GET("/account/:id/dashboard", corporate.Dashboard)
		corpGroup.POST("/course", corporate.CreateCourse)
		corpGroup.GET("/course/:id", corporate.Course)
		corpGroup.POST("/course/:id/module", corporate.AddModule)
		corpGroup.POST("/enroll", corporate.Enroll)
		corpGroup.POST("/progress", corporate.Progress)
		corpGroup.GET("/enrollments", corporate.MyEnrollments)
	}

	api.GET("/certificates/verify/:code", corporate.VerifyCertificate)
	api.GET("/certificates/:id/image", auth, corporate.CertificateImage)

	return r
}
