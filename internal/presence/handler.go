package presence

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/streamspace/presence/internal/apierrors"
	"github.com/streamspace/presence/internal/auth"
	"github.com/streamspace/presence/internal/logger"
	"github.com/streamspace/presence/internal/middleware"
)

// upgrader accepts any origin: the presence node sits behind the
// coordinator/directory fabric, not a browser-facing edge with CORS
// concerns of its own.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler adapts a Hub and token Validator to an HTTP connect endpoint.
type Handler struct {
	hub       *Hub
	validator *auth.Validator
}

// NewHandler creates a Handler bound to hub and validator.
func NewHandler(hub *Hub, validator *auth.Validator) *Handler {
	return &Handler{hub: hub, validator: validator}
}

// RegisterRoutes mounts the presence node's HTTP surface on router: the
// WebSocket connect endpoint and a liveness check.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/connect", h.Connect)
}

// Health reports ok if the process is up; the node's real health is
// whether it's still heartbeating into the directory, which is observable
// externally via vnode ownership TTLs rather than this endpoint.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Connect implements steps 1-3 of the connect protocol (token extraction,
// validation, ownership check) and then upgrades the connection and hands
// off to the Hub for the remainder (close-before-replace, registration,
// publish, welcome frame, and the read/write pumps).
func (h *Handler) Connect(c *gin.Context) {
	token := auth.ExtractToken(
		c.GetHeader("Authorization"),
		c.Query("token"),
		cookieValue(c, "token"),
	)

	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		rejectBeforeUpgrade(c, err)
		return
	}

	vnode := h.hub.vnodeFor(claims.UserID)
	if !h.hub.OwnsVnode(vnode) {
		rejectWithReason(c, "User does not belong to this node")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Presence().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Presence().Error().Interface("panic", r).Msg("internal error handling connect")
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(CloseInternalError, "Internal server error"),
				time.Now().Add(2*time.Second))
			conn.Close()
		}
	}()

	sess := h.hub.Connect(c.Request.Context(), conn, claims.UserID, middleware.GetRequestID(c))
	h.hub.serve(c.Request.Context(), sess)
}

func rejectBeforeUpgrade(c *gin.Context, err error) {
	reason := "Invalid token"
	if err == auth.ErrNoToken {
		reason = "No token provided"
	}
	rejectWithReason(c, reason)
}

// rejectWithReason upgrades just far enough to send a proper WebSocket
// close frame with the reject reason, rather than answering with a bare
// HTTP error that a WebSocket client wouldn't parse as a close event.
func rejectWithReason(c *gin.Context, reason string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		apierrors.AbortWithError(c, apierrors.Unauthorized(reason))
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(CloseAuthRejected, reason),
		time.Now().Add(2*time.Second))
	conn.Close()
}

func cookieValue(c *gin.Context, name string) string {
	v, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return v
}
