package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/eventface/internal/api/handlers"
	"github.com/your-org/eventface/internal/api/ws"
	"github.com/your-org/eventface/internal/auth"
	"github.com/your-org/eventface/internal/ingest"
	"github.com/your-org/eventface/internal/search"
	"github.com/your-org/eventface/internal/storage"
	"github.com/your-org/eventface/internal/vision"
)

type RouterConfig struct {
	APIKey        string
	MaxUploadMB   int
	MaxBatchItems int

	Store    storage.Store
	Blobs    storage.BlobStore   // optional; batch upload and image proxy need it
	Queue    handlers.BatchQueue // optional; batch upload and status need it
	Hub      *ws.Hub             // optional
	Pipeline *ingest.Pipeline
	Engine   *search.Engine
	Provider vision.Provider // optional; selfie search needs it

	Checks map[string]handlers.Check
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))
	v1.Use(BodyLimit(cfg.MaxUploadMB))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	// Events
	eventH := handlers.NewEventHandler(cfg.Store, cfg.Blobs)
	v1.POST("/events", eventH.Create)
	v1.GET("/events", eventH.List)
	v1.GET("/events/:id", eventH.Get)
	v1.DELETE("/events/:id", eventH.Delete)

	// Photos
	photoH := handlers.NewPhotoHandler(cfg.Store, cfg.Blobs, cfg.Pipeline)
	v1.GET("/events/:id/photos", photoH.List)
	v1.POST("/events/:id/photos", photoH.Ingest)
	v1.GET("/photos/:id/image", photoH.Image)

	// Search
	searchH := handlers.NewSearchHandler(cfg.Engine, cfg.Provider)
	v1.POST("/events/:id/search", searchH.Search)
	v1.POST("/events/:id/search/selfie", searchH.SearchSelfie)

	// Batches
	batchH := handlers.NewBatchHandler(cfg.Store, cfg.Blobs, cfg.Queue, cfg.MaxBatchItems)
	v1.POST("/events/:id/batches", batchH.Submit)
	v1.GET("/batches/:id", batchH.Get)

	return r
}
