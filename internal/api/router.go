package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facecheck/internal/api/handlers"
	"github.com/your-org/facecheck/internal/api/ws"
	"github.com/your-org/facecheck/internal/auth"
	"github.com/your-org/facecheck/internal/enroll"
	"github.com/your-org/facecheck/internal/queue"
	"github.com/your-org/facecheck/internal/storage"
)

type RouterConfig struct {
	APIKey          string
	DB              *storage.PostgresStore
	Photos          *storage.PhotoStore
	Producer        *queue.Producer
	Hub             *ws.Hub
	Service         *enroll.Service
	DefaultModel    string
	SupportedModels []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Photos, cfg.Producer, cfg.SupportedModels)
	r.GET("/", systemH.Root)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API (with auth)
	api := r.Group("/api")
	api.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	api.GET("/ws", cfg.Hub.HandleWS)

	// Face enrollment & verification
	faceH := handlers.NewFaceHandler(cfg.Service, cfg.DefaultModel)
	face := api.Group("/face")
	face.POST("/enroll", faceH.Enroll)
	face.POST("/enroll-multi", faceH.EnrollMulti)
	face.GET("/enrollments", faceH.List)
	face.GET("/enroll/:id/photo", faceH.Photo)
	face.DELETE("/enroll/:id", faceH.Delete)
	face.POST("/verify", faceH.Verify)

	// Attendance audit trail
	attendanceH := handlers.NewAttendanceHandler(cfg.DB)
	api.GET("/attendance/events", attendanceH.List)

	return r
}
