package daemon

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// setupPublicRoutes serves the read-only part of the API for dashboards.
// Anything that changes the daemon stays on the unix socket.
func setupPublicRoutes(origins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	cc := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Accept", "Cache-Control"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.Use(cors.New(cc))

	api := router.Group("/api/v1")
	api.GET("/calibrations/:id", getCalibration)
	api.GET("/measurements/:id", getMeasurement)
	api.GET("/schedule", getSchedule)
	api.GET("/events", getEvents)
	api.GET("/version", getVersion)

	return router
}
