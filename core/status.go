package core

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-zoox/crypto/hmac"
	"github.com/go-zoox/logger"
	"github.com/go-zoox/random"
	"github.com/go-zoox/zoox"
	zd "github.com/go-zoox/zoox/defaults"
)

const statusTokenMessage = "txcproxy-status"

// serveStatus runs the optional HTTP status endpoint. When no secret is
// configured one is generated for the process lifetime and logged, so the
// endpoint is never open by accident.
func (s *server) serveStatus() {
	secret := s.statusSecret
	if secret == "" {
		secret = random.String(16)
		logger.Warnf("[status] status_secret not set, generated one for this run")
	}
	token := hmac.Sha256(statusTokenMessage, secret, "hex")
	logger.Infof("[status] endpoint on port %d, token: %s", s.statusPort, token)

	app := zd.Default()

	app.Get("/status", func(ctx *zoox.Context) {
		if ctx.Request.URL.Query().Get("token") != token {
			ctx.JSON(http.StatusUnauthorized, zoox.H{
				"message": "invalid token",
			})
			return
		}

		sessions := s.sessions.Keys()
		ctx.JSON(http.StatusOK, zoox.H{
			"version":  Version,
			"uptime":   time.Since(s.startedAt).String(),
			"sessions": sessions,
			"count":    len(sessions),
		})
	})

	if err := app.Run(fmt.Sprintf(":%d", s.statusPort)); err != nil {
		logger.Errorf("[status] server stopped: %v", err)
	}
}
