package router

import (
	"github.com/anonto42/nano-midea/livechat/internal/feed"
	"github.com/anonto42/nano-midea/livechat/internal/handlers"
	"github.com/anonto42/nano-midea/livechat/internal/middleware"
	"github.com/anonto42/nano-midea/livechat/internal/render"
	"github.com/anonto42/nano-midea/livechat/internal/repositories"
	"github.com/golang/glog"
	"github.com/labstack/echo/v4"
)

// FeedSource is the running feed: snapshots for HTTP reads, attachment for websockets
type FeedSource interface {
	handlers.Snapshotter
	render.Attacher
}

// Deps are the wired components the routes serve
type Deps struct {
	Backend   string
	AuthMode  string
	JWTSecret string
	Verifier  middleware.TokenVerifier
	Lifecycle *feed.Lifecycle
	Feed      FeedSource
	Hub       *render.Hub
	Assets    repositories.AssetReader
	Failures  repositories.FailureJournal
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, deps Deps) {
	e.GET("/health", handlers.HealthCheck(deps.Backend))
	e.GET("/ws", deps.Hub.Handler(deps.Feed))

	// --- Unprotected routes for authentication ---
	authGroup := e.Group("/api/v1/auth")
	handlers.NewAuthHandler(deps.Verifier, deps.JWTSecret).RegisterAuthRoutes(authGroup)

	public := e.Group("/api/v1")
	if deps.Assets != nil {
		handlers.NewAssetHandler(deps.Assets).RegisterAssetRoutes(public)
		glog.Infof("[router]asset downloads served locally\n")
	}

	// --- Protected routes ---
	api := e.Group("/api/v1")
	if deps.AuthMode == "firebase" && deps.Verifier != nil {
		api.Use(middleware.FirebaseAuthMiddleware(deps.Verifier))
		glog.Infof("[router]firebase ID token authentication on /api/v1\n")
	} else {
		api.Use(middleware.JWTAuthMiddleware(deps.JWTSecret))
		glog.Infof("[router]JWT authentication on /api/v1\n")
	}

	messages := handlers.NewMessageHandler(deps.Lifecycle, deps.Feed)
	if deps.Failures != nil {
		messages.WithFailureJournal(deps.Failures)
	}
	messages.RegisterMessageRoutes(public, api)
	glog.Infof("[router]all routes configured\n")
}
