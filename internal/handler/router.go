package handler

import (
	"github.com/ad-tracker/youtube-view-tracker-go/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter registers the API, health and metrics routes.
func NewRouter(api *APIHandler, health *HealthHandler, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.RequestLogger(log))

	r.GET("/health/live", health.LivenessProbe)
	r.GET("/health/ready", health.ReadinessProbe)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v := r.Group("/api")
	{
		v.GET("/top", api.Top)
		v.GET("/data", api.Data)
		v.GET("/status", api.Status)
		v.GET("/history/:videoId", api.History)
		v.GET("/ranking-history", api.RankingHistory)
		v.GET("/analytics", api.Analytics)
		v.GET("/playlists", api.Playlists)
		v.POST("/update", api.TriggerUpdate)
		v.POST("/add-video/:videoId", api.AddVideo)
	}

	return r
}
