package relay

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"eduhub-realtime/pkg/jwt"
	"eduhub-realtime/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The relay is a development server; origins are not restricted.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler handles WebSocket connection requests.
type Handler struct {
	hub        *Hub
	jwtManager *jwt.Manager
	logger     log.Logger
	sessionCfg SessionConfig
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, jwtManager *jwt.Manager, logger log.Logger, sessionCfg SessionConfig) *Handler {
	return &Handler{
		hub:        hub,
		jwtManager: jwtManager,
		logger:     logger,
		sessionCfg: sessionCfg,
	}
}

// HandleWebSocket upgrades the connection after validating the credential
// supplied in the token query parameter.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		h.logger.Warn(context.Background(), "relay: connection rejected: missing token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token parameter"})
		return
	}

	userID, err := h.jwtManager.ExtractUserID(token)
	if err != nil {
		h.logger.Warnf(context.Background(), "relay: connection rejected: invalid token - %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf(context.Background(), "relay: failed to upgrade connection: %v", err)
		return
	}

	sess := NewSession(h.hub, conn, userID, h.sessionCfg, h.logger)
	h.hub.register <- sess
	sess.Start()

	h.logger.Infof(context.Background(), "relay: connection established for user %s", userID)
}

// SetupRoutes sets up the relay routes.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/ws", h.HandleWebSocket)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"stats":  h.hub.Stats(),
		})
	})
}
