package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LocalhostOnly restricts debug endpoints to loopback connections. The ops
// server carries no auth, so anything beyond health and metrics must not be
// reachable from outside the host.
type LocalhostOnly struct {
	logger *logrus.Logger
}

func NewLocalhostOnly(logger *logrus.Logger) *LocalhostOnly {
	return &LocalhostOnly{logger: logger}
}

// Restrict rejects requests whose peer address is not loopback.
func (l *LocalhostOnly) Restrict() gin.HandlerFunc {
	return func(c *gin.Context) {
		remoteIP, _, _ := net.SplitHostPort(c.Request.RemoteAddr)
		if !isLoopback(remoteIP) {
			l.logger.WithFields(logrus.Fields{
				"remote_ip": remoteIP,
				"path":      c.Request.URL.Path,
			}).Warn("rejecting non-local access to debug endpoint")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "debug endpoints are local only",
			})
			return
		}
		c.Next()
	}
}

func isLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip == "localhost"
	}
	return parsed.IsLoopback()
}
