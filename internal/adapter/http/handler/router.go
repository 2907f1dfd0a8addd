package handler

import (
	"github.com/johniman211/payssd-sub003/internal/adapter/http/middleware"
	"github.com/johniman211/payssd-sub003/internal/core/ports"
	"github.com/johniman211/payssd-sub003/internal/pubsub"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LinkSvc        ports.PaymentLinkService
	TxSvc          ports.TransactionService
	PayoutSvc      ports.PayoutService
	VerifySvc      ports.VerificationService
	TokenSvc       ports.TokenService
	Broker         *pubsub.Broker // nil = live events disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	linkHandler := NewPaymentLinkHandler(deps.LinkSvc)
	txHandler := NewTransactionHandler(deps.TxSvc)
	payoutHandler := NewPayoutHandler(deps.PayoutSvc, deps.VerifySvc)

	// --- Public routes (customer-facing payment pages) ---
	pay := r.Group("/pay")
	{
		pay.GET("/:reference", linkHandler.View)
		pay.POST("/:reference", txHandler.Pay)
		pay.GET("/status/:reference", txHandler.Status)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Provider callbacks (signature-verified in the service) ---
	v1.POST("/callbacks/:provider", txHandler.ProviderCallback)

	// --- JWT-authenticated routes (merchant dashboard) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	links := v1.Group("/links", jwtAuth)
	{
		links.POST("", linkHandler.Create)
		links.GET("/:reference", linkHandler.Get)
		links.POST("/:reference/pause", linkHandler.Pause)
		links.POST("/:reference/resume", linkHandler.Resume)
	}

	transactions := v1.Group("/transactions", jwtAuth)
	{
		transactions.GET("/:reference", txHandler.Get)
	}

	payouts := v1.Group("/payouts", jwtAuth)
	{
		payouts.POST("", payoutHandler.Request)
		payouts.GET("/:id", payoutHandler.Get)
		payouts.POST("/:id/cancel", payoutHandler.Cancel)
	}

	if deps.Broker != nil {
		eventsHandler := NewEventsHandler(deps.Broker)
		v1.GET("/events", jwtAuth, eventsHandler.Stream)
	}

	// --- Admin payout operations ---
	admin := v1.Group("/admin", jwtAuth)
	{
		admin.POST("/payouts/:id/process", payoutHandler.Process)
		admin.POST("/payouts/:id/complete", payoutHandler.Complete)
		admin.POST("/payouts/:id/fail", payoutHandler.Fail)
	}

	return r
}
