package controller

import (
	"net/http"
	"strings"
	"time"

	"coderank/internal/gateway/middleware"
	"coderank/pkg/utils/logger"
	"coderank/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StreamConfig tunes the websocket status stream.
type StreamConfig struct {
	PollInterval   time.Duration `yaml:"pollInterval"`
	MaxDuration    time.Duration `yaml:"maxDuration"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
}

func (c *StreamConfig) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 2 * time.Minute
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

func (c StreamConfig) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(c.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Stream upgrades to a websocket and pushes the submission view on every
// status change until it is terminal.
func (h *SubmissionController) Stream(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	owner := middleware.OwnerID(c)
	ctx := c.Request.Context()

	current, err := h.submissions.Get(ctx, id, owner)
	if err != nil {
		response.Error(c, err)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: h.stream.checkOrigin}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(ctx, "websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	// The server read timeout still applies to the hijacked connection.
	_ = conn.SetReadDeadline(time.Time{})

	// Reads only serve to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(v SubmissionView) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(h.stream.WriteTimeout))
		if err := conn.WriteJSON(v); err != nil {
			logger.Debug(ctx, "websocket write failed", zap.Error(err))
			return false
		}
		return true
	}

	if !send(toView(current, false)) {
		return
	}
	lastStatus := current.Status

	ticker := time.NewTicker(h.stream.PollInterval)
	defer ticker.Stop()
	timeout := time.NewTimer(h.stream.MaxDuration)
	defer timeout.Stop()

	for !lastStatus.Terminal() {
		select {
		case <-gone:
			return
		case <-ctx.Done():
			return
		case <-timeout.C:
			closeWith(conn, websocket.CloseGoingAway, "stream timeout")
			return
		case <-ticker.C:
			next, err := h.submissions.Get(ctx, id, owner)
			if err != nil {
				logger.Warn(ctx, "stream poll failed", zap.Error(err))
				closeWith(conn, websocket.CloseInternalServerErr, "status unavailable")
				return
			}
			if next.Status == lastStatus {
				continue
			}
			if !send(toView(next, false)) {
				return
			}
			lastStatus = next.Status
		}
	}
	closeWith(conn, websocket.CloseNormalClosure, string(lastStatus))
}

func closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
