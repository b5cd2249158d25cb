package history

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vhrealtime/middleware/security"
	"vhrealtime/service/chat"
	"vhrealtime/service/identity"
	"vhrealtime/service/storage"
)

type Source interface {
	History(ctx context.Context, appointmentID int64) ([]storage.ChatMessage, error)
	Post(ctx context.Context, appointmentID int64, who identity.Identity, text string) (storage.ChatMessage, error)
}

type Handler struct {
	src Source
	log *zap.Logger
}

func NewHandler(src Source, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{src: src, log: log.Named("history")}
}

type postRequest struct {
	Message string `json:"message"`
}

// ParseAppointmentID reads the :appointment_id path parameter, which must be a
// positive integer.
func ParseAppointmentID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("appointment_id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "appointment_id must be a positive integer"})
		return 0, false
	}
	return id, true
}

// List GET /api/chat/:appointment_id/
func (h *Handler) List(c *gin.Context) {
	id, ok := ParseAppointmentID(c)
	if !ok {
		return
	}
	msgs, err := h.src.History(c.Request.Context(), id)
	if err != nil {
		h.log.Error("load history", zap.Int64("appointment", id), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "could not load chat history"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// Create POST /api/chat/:appointment_id/
func (h *Handler) Create(c *gin.Context) {
	id, ok := ParseAppointmentID(c)
	if !ok {
		return
	}
	who, ok := security.IdentityFrom(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": []string{"invalid body"}})
		return
	}
	msg, err := h.src.Post(c.Request.Context(), id, who, req.Message)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": []string{"This field may not be blank."}})
	case err != nil:
		h.log.Error("post message", zap.Int64("appointment", id), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "could not store message"})
	default:
		c.JSON(http.StatusCreated, msg)
	}
}
