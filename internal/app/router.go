package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"porter/internal/access"
	"porter/internal/handler"
	"porter/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	AuthHandler *handler.AuthHandler
	RideHandler *handler.RideHandler
	Sessions    middleware.SessionReader
	GateWait    time.Duration
	RedisClient *redis.Client // optional; enables replay protection on actions
	NewRelicApp *newrelic.Application
}

// NewRouter creates the view router. /login and /register are always
// reachable; everything else sits behind the access gate, and unknown paths
// are sent to the main view, which applies the gate in turn.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public views.
	router.GET(access.PathLogin, deps.AuthHandler.LoginView)
	router.POST(access.PathLogin, deps.AuthHandler.Login)
	router.GET(access.PathRegister, deps.AuthHandler.RegisterView)
	router.POST(access.PathRegister, deps.AuthHandler.Register)
	router.POST("/logout", deps.AuthHandler.Logout)

	// Protected views.
	protected := router.Group("")
	protected.Use(middleware.AccessGate(deps.Sessions, deps.GateWait))
	protected.Use(middleware.IdempotencyMiddleware(deps.RedisClient))
	{
		protected.GET(access.PathMain, deps.RideHandler.MainView)
		protected.GET("/porters", deps.RideHandler.AvailablePorters)
		protected.POST("/rides", deps.RideHandler.CreateRide)
		protected.POST("/rides/:id/status", deps.RideHandler.UpdateStatus)
	}

	router.NoRoute(func(c *gin.Context) {
		c.Redirect(http.StatusFound, access.PathMain)
	})

	return router
}
