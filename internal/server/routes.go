package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *Admin) registerRoutes() {
	a.httpRouter.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(a.appeared).String(),
			"component": "helpctl-admin",
		})
	})

	a.httpRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.httpRouter.GET("/status", func(c *gin.Context) {
		if a.source == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no session"})
			return
		}
		st := a.source.Status()
		code := http.StatusOK
		if st.Closed {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, st)
	})
}
