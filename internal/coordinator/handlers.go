package coordinator

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streamspace/presence/internal/apierrors"
)

// Handler adapts a Service to gin's HTTP routing.
type Handler struct {
	svc *Service
}

// NewHandler creates a Handler bound to svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the coordinator's four endpoints on router.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.POST("/nodes/register", h.RegisterNode)
	router.POST("/nodes/unregister", h.UnregisterNode)
	router.GET("/route", h.Route)
}

// Health always reports ok; the coordinator is stateless, so there is
// nothing deeper to check beyond the process being up.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type registerRequest struct {
	InstanceID string `json:"instanceId"`
	Weight     int    `json:"weight"`
}

// RegisterNode admits an instance into the ring.
func (h *Handler) RegisterNode(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithError(c, apierrors.BadRequest("invalid request body"))
		return
	}
	if req.Weight == 0 {
		req.Weight = 1
	}

	result, err := h.svc.Register(c.Request.Context(), req.InstanceID, req.Weight)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"instanceId":     result.InstanceID,
		"assignedVnodes": result.AssignedVnodes,
	})
}

type unregisterRequest struct {
	InstanceID string `json:"instanceId"`
}

// UnregisterNode retires an instance from the ring.
func (h *Handler) UnregisterNode(c *gin.Context) {
	var req unregisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithError(c, apierrors.BadRequest("invalid request body"))
		return
	}

	result, err := h.svc.Unregister(c.Request.Context(), req.InstanceID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"instanceId":     result.InstanceID,
		"removedVnodes":  result.RemovedVnodes,
	})
}

// Route answers which instance currently owns a user.
func (h *Handler) Route(c *gin.Context) {
	userID := c.Query("userId")

	result, err := h.svc.Route(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	if result.Source == "cache" {
		c.JSON(http.StatusOK, gin.H{
			"userId":   result.UserID,
			"instance": result.Instance,
			"source":   result.Source,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":   result.UserID,
		"vnode":    result.Vnode,
		"instance": result.Instance,
		"source":   result.Source,
	})
}

func handleServiceError(c *gin.Context, err error) {
	if appErr, ok := err.(*apierrors.AppError); ok {
		apierrors.AbortWithError(c, appErr)
		return
	}
	apierrors.AbortWithError(c, apierrors.InternalServer(err.Error()))
}
