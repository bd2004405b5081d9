// Package router assembles the gin engine and every API route.
package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/handler"
	"github.com/noah-isme/learnhub-api/internal/middleware"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/learnhub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/learnhub-api/pkg/middleware/requestid"
)

// Options carries the cross-cutting collaborators shared by all routes.
type Options struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool

	Logger      *zap.Logger
	Metrics     *service.MetricsService
	Tokens      middleware.TokenValidator
	Audit       middleware.AuditStore
	Limiter     *middleware.IPRateLimiter
	AuthLimiter *middleware.IPRateLimiter
}

// Handlers groups the HTTP handlers mounted by the router.
type Handlers struct {
	Auth        *handler.AuthHandler
	MFA         *handler.MFAHandler
	OAuth       *handler.OAuthHandler
	Users       *handler.UserHandler
	Courses     *handler.CourseHandler
	Assessments *handler.AssessmentHandler
	Enrollments *handler.EnrollmentHandler
	Payments    *handler.PaymentHandler
	QnA         *handler.QnAHandler
	Messages    *handler.MessageHandler
	Admin       *handler.AdminHandler
	System      *handler.MetricsHandler
}

// New builds the engine. Middleware order: recovery, request id, logging,
// CORS, metrics, response meta, then the per-client limiter on the API group.
func New(opts Options, h Handlers) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(opts.Metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.System.Health)
	r.GET("/ready", h.System.Ready)
	r.GET("/metrics", h.System.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := opts.APIPrefix
	if prefix == "" {
		prefix = "/api"
	}
	root := r.Group(prefix)
	// Stripe retries from shared egress IPs; the signature authenticates it.
	root.POST("/payments/webhook", h.Payments.Webhook)

	api := root.Group("", middleware.RateLimit(opts.Limiter, opts.Metrics))

	authn := middleware.JWT(opts.Tokens)
	optional := middleware.OptionalJWT(opts.Tokens)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	auth := api.Group("/auth")
	{
		public := auth.Group("", middleware.RateLimit(opts.AuthLimiter, opts.Metrics))
		public.POST("/register", h.Auth.Register)
		public.POST("/login", h.Auth.Login)
		public.POST("/refresh", h.Auth.Refresh)
		public.POST("/forgot-password", h.Auth.ForgotPassword)
		public.POST("/reset-password", h.Auth.ResetPassword)
		public.POST("/mfa/verify", h.MFA.Verify)
		public.GET("/oauth/:provider", h.OAuth.Begin)
		public.GET("/oauth/:provider/callback", h.OAuth.Callback)

		private := auth.Group("", authn)
		private.POST("/logout", h.Auth.Logout)
		private.POST("/change-password", h.Auth.ChangePassword)
		private.GET("/me", h.Auth.Me)
		private.POST("/mfa/setup", h.MFA.Setup)
		private.POST("/mfa/enable", h.MFA.Enable)
		private.POST("/mfa/disable", h.MFA.Disable)
	}

	courses := api.Group("/courses")
	{
		courses.GET("", optional, h.Courses.List)
		courses.GET("/:id", optional, h.Courses.Get)
		courses.POST("", authn, staff, h.Courses.Create)
		courses.PUT("/:id", authn, staff, h.Courses.Update)
		courses.DELETE("/:id", authn, staff, h.Courses.Archive)
		courses.POST("/:id/publish", authn, staff, h.Courses.Publish)
		courses.GET("/:id/enrollments/export", authn, staff, h.Courses.ExportEnrollments)
		courses.POST("/:id/modules", authn, staff, h.Courses.CreateModule)
	}

	modules := api.Group("/modules", authn, staff)
	{
		modules.PUT("/:id", h.Courses.UpdateModule)
		modules.DELETE("/:id", h.Courses.DeleteModule)
		modules.POST("/:id/lessons", h.Courses.CreateLesson)
	}

	lessons := api.Group("/lessons", authn)
	{
		lessons.GET("/:id", h.Courses.GetLesson)
		lessons.PUT("/:id", staff, h.Courses.UpdateLesson)
		lessons.DELETE("/:id", staff, h.Courses.DeleteLesson)
	}

	assessments := api.Group("/assessments", authn)
	{
		assessments.GET("", h.Assessments.List)
		assessments.POST("", staff, h.Assessments.Create)
		assessments.GET("/:id", h.Assessments.Get)
		assessments.POST("/:id/submissions", h.Assessments.Submit)
		assessments.GET("/:id/submissions", h.Assessments.ListSubmissions)
	}

	enrollments := api.Group("/enrollments", authn)
	{
		enrollments.GET("", h.Enrollments.List)
		enrollments.POST("", h.Enrollments.Create)
		enrollments.GET("/:id", h.Enrollments.Get)
		enrollments.PATCH("/:id", h.Enrollments.Update)
		enrollments.GET("/:id/certificate", h.Enrollments.Certificate)
	}
	api.GET("/certificates/download", h.Enrollments.DownloadCertificate)

	payments := api.Group("/payments")
	{
		payments.POST("/create-checkout-session", authn, h.Payments.CreateCheckoutSession)
		payments.GET("", authn, h.Payments.History)
	}
	api.GET("/subscriptions/me", authn, h.Payments.CurrentSubscription)

	questions := api.Group("/questions", authn)
	{
		questions.POST("", h.QnA.Ask)
		questions.GET("", h.QnA.List)
		questions.GET("/:id", h.QnA.Get)
		questions.POST("/:id/replies", h.QnA.Reply)
	}

	messages := api.Group("/messages", authn)
	{
		messages.POST("", h.Messages.Send)
		messages.GET("/conversations", h.Messages.Conversations)
		messages.GET("/:userId", h.Messages.Thread)
	}

	admin := api.Group("/admin", authn)
	{
		qna := admin.Group("/qna", staff)
		qna.GET("", h.QnA.AdminList)
		qna.GET("/:id", h.QnA.AdminGet)
		qna.PATCH("/:id", middleware.Audit(opts.Audit, log, models.AuditActionQnAUpdate, "question"), h.QnA.Moderate)

		users := admin.Group("/users", adminOnly)
		users.GET("", h.Users.List)
		users.GET("/:id", h.Users.Get)
		users.POST("", h.Users.Create)
		users.PUT("/:id", h.Users.Update)
		users.DELETE("/:id", h.Users.Delete)

		admin.GET("/stats", adminOnly, h.Admin.Stats)
		admin.GET("/metrics", adminOnly, h.Admin.Metrics)
	}

	return r
}
