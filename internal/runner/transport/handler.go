package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"liverun/internal/common/http/middleware"
	"liverun/internal/runner/session"
	appErr "liverun/pkg/errors"
	"liverun/pkg/utils/contextkey"
	"liverun/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// closeGrace bounds the wait for the peer to answer our close frame.
const closeGrace = 2 * time.Second

// Handler upgrades HTTP requests and runs one session per connection.
type Handler struct {
	cfg      Config
	sessions *session.Manager
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket handler backed by sessions.
func NewHandler(cfg Config, sessions *session.Manager) *Handler {
	cfg = cfg.WithDefaults()
	h := &Handler{cfg: cfg, sessions: sessions}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: cfg.HandshakeTimeout,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	if len(cfg.AllowedOrigins) > 0 {
		h.upgrader.CheckOrigin = h.checkOrigin
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return middleware.IsOriginAllowed(origin, h.cfg.AllowedOrigins)
}

// Serve upgrades the request and blocks until the session has been torn down.
func (h *Handler) Serve(c *gin.Context) {
	reqCtx := c.Request.Context()
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		logger.Warn(reqCtx, "websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	// The connection, not the HTTP request, bounds the session lifetime.
	ctx, cancel := context.WithCancel(context.WithoutCancel(reqCtx))
	defer cancel()
	cn := newConn(ws, h.cfg, cancel)

	s, err := h.sessions.Open(cn)
	if err != nil {
		logger.Warn(ctx, "session rejected", zap.Error(err))
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, appErr.GetError(err).Error())
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.cfg.WriteTimeout))
		return
	}
	ctx = context.WithValue(ctx, contextkey.SessionID, s.ID())

	var wg sync.WaitGroup
	readDone := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		cn.writePump(ctx)
	}()
	go func() {
		defer wg.Done()
		defer close(readDone)
		cn.readPump(ctx, s)
	}()

	state := h.sessions.Run(ctx, s)
	cn.close(websocket.CloseNormalClosure, string(state))
	<-cn.written

	timer := time.NewTimer(closeGrace)
	select {
	case <-readDone:
	case <-timer.C:
	}
	timer.Stop()
	_ = ws.Close()
	wg.Wait()
	logger.Info(ctx, "connection closed", zap.String("state", string(state)))
}
