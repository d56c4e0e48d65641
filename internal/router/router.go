package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"lottery-bot/internal/bot"
	"lottery-bot/internal/clients"
	"lottery-bot/internal/middleware"
	"lottery-bot/internal/wallet"
)

// SetupRouter builds the ops HTTP server: health, metrics, and a
// loopback-only debug status page. The bot itself never listens here.
func SetupRouter(client *clients.LotteryClient, wallets *wallet.Registry, sessions *bot.SessionStore, logger *logrus.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		height, err := client.BlockNumber(ctx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"service":      "lottery-bot",
			"block_height": height,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	localhostOnly := middleware.NewLocalhostOnly(logger)
	r.GET("/debug/status", localhostOnly.Restrict(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"wallets":  wallets.Count(),
			"sessions": sessions.Count(),
		})
	})

	return r
}
