package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Cedctf/foodbridge-sub000/internal/api/handlers"
	"github.com/Cedctf/foodbridge-sub000/internal/api/middleware"
	"github.com/Cedctf/foodbridge-sub000/internal/captcha"
	"github.com/Cedctf/foodbridge-sub000/internal/config"
	"github.com/Cedctf/foodbridge-sub000/internal/events"
	"github.com/Cedctf/foodbridge-sub000/internal/services"
	"github.com/Cedctf/foodbridge-sub000/internal/storage"
)

// Services are the collaborators the public API handlers call.
type Services struct {
	Donations services.IDonationService
	Claims    services.IClaimService
	Queries   services.IListingQueryService
	Impacts   services.IImpactService
	Assistant services.IAssistantService
	Storage   storage.IS3Storage
	Events    events.ISubscriber
	Captcha   captcha.ITurnstileVerifier
}

// SetupRouter configures and returns the main Gin engine and the rate
// limiter, whose sweep the caller stops on shutdown.
func SetupRouter(cfg *config.Config, svc Services) (*gin.Engine, *middleware.RateLimiterMiddleware) {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Order matters: the limiter reads the captcha verdict.
	r.Use(middleware.CORSMiddleware(""))
	r.Use(middleware.CaptchaMiddleware(cfg, svc.Captcha))
	r.Use(rateLimiter.Limit())

	listingHandler := handlers.NewRestListingHandler(svc.Donations, svc.Queries, cfg.BrowseMaxResults)
	claimHandler := handlers.NewRestClaimHandler(svc.Claims, svc.Queries)
	impactHandler := handlers.NewRestImpactHandler(svc.Impacts)
	uploadHandler := handlers.NewRestUploadHandler(svc.Storage)
	assistantHandler := handlers.NewAssistantHandler(svc.Assistant)
	eventsHandler := handlers.NewEventsHandler(svc.Events)

	v1 := r.Group("/v1")

	// The websocket outlives any request timeout.
	v1.GET("/events/ws", eventsHandler.Stream)

	timed := v1.Group("/")
	timed.Use(middleware.TimeoutMiddleware(cfg.RequestTimeout))
	{
		timed.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		timed.GET("/listings", listingHandler.BrowseListings)
		timed.GET("/listings/:id", listingHandler.GetListing)
		timed.GET("/users/:id/impact", impactHandler.GetImpact)
		timed.POST("/assistant/chat", assistantHandler.Chat)

		optional := timed.Group("/")
		optional.Use(middleware.OptionalAuthMiddleware(cfg.JwtSecret))
		{
			optional.POST("/listings", listingHandler.CreateListing)
			optional.POST("/listings/:id/claims", claimHandler.SubmitClaim)
			optional.POST("/uploads", uploadHandler.CreateUpload)
		}

		authRequired := timed.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.GET("/listings/:id/requests", claimHandler.ListRequests)
			authRequired.GET("/requests/mine", claimHandler.MyRequests)
		}
	}

	return r, rateLimiter
}

// SetupServiceRouter configures the service Gin engine: operator calls,
// metrics and health. It must never be exposed publicly.
func SetupServiceRouter(rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	serviceHandler := handlers.NewServiceApiHandler(rdb, shutdownChan)
	r.POST("/api", serviceHandler.HandleRequest)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
