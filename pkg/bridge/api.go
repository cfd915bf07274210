package bridge

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tankbridge/pkg/config"
	"tankbridge/pkg/version"
)

// setupRoutes builds the local status/control API. It is served on a unix
// socket; there is no authentication beyond file permissions.
func setupRoutes(loop *Loop) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig(loop))
	router.GET("/status", getStatus(loop))
	router.GET("/telemetry", getTelemetry(loop))
	router.GET("/setpoint", getSetpoint(loop))
	router.PUT("/setpoint", putSetpoint(loop))
	router.GET("/version", getVersion)

	return router
}

func getConfig(loop *Loop) gin.HandlerFunc {
	return func(c *gin.Context) {
		fc, err := config.NewRawFileConfigFromConfig(loop.cfg)
		if err != nil {
			_ = c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.IndentedJSON(http.StatusOK, fc)
	}
}

func getStatus(loop *Loop) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.IndentedJSON(http.StatusOK, loop.Snapshot())
	}
}

func getTelemetry(loop *Loop) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := loop.Snapshot()
		if s.LastSample == nil {
			c.IndentedJSON(http.StatusNotFound, "no telemetry sample yet")
			return
		}
		c.IndentedJSON(http.StatusOK, s.LastSample)
	}
}

func getSetpoint(loop *Loop) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.IndentedJSON(http.StatusOK, loop.Setpoint())
	}
}

func putSetpoint(loop *Loop) gin.HandlerFunc {
	return func(c *gin.Context) {
		var v float64
		if err := c.BindJSON(&v); err != nil {
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			_ = c.AbortWithError(http.StatusBadRequest, err)
			return
		}

		if v < 0 || v > 100 {
			err := fmt.Errorf("setpoint must be between 0 and 100, got %v", v)
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			_ = c.AbortWithError(http.StatusBadRequest, err)
			return
		}

		loop.SetSetpoint(v)
		c.IndentedJSON(http.StatusCreated, fmt.Sprintf("setpoint set to %.1f%%", v))
	}
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, gin.H{
		"version":   version.Version,
		"gitCommit": version.GitCommit,
	})
}

// ginLogger routes gin request logs through logrus.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// other handlers can change c.Path so:
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		stop := time.Since(start)
		latency := int(math.Ceil(float64(stop.Nanoseconds()) / 1000000.0))
		statusCode := c.Writer.Status()

		entry := logger.WithFields(logrus.Fields{
			"statusCode": statusCode,
			"latency":    latency,
			"method":     c.Request.Method,
			"path":       path,
		})

		if len(c.Errors) > 0 {
			entry.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
			return
		}

		msg := fmt.Sprintf("%s %s %d (%dms)", c.Request.Method, path, statusCode, latency)
		//nolint:gocritic
		if statusCode >= http.StatusInternalServerError {
			entry.Error(msg)
		} else if statusCode >= http.StatusBadRequest {
			entry.Warn(msg)
		} else {
			entry.Debug(msg)
		}
	}
}
