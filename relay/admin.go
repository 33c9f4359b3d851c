package relay

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewAdminRouter serves health, Prometheus metrics and hub occupancy.
func NewAdminRouter(hub *Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.Counts())
	})
	return r
}
