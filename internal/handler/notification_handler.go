package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-noc-api/internal/models"
	"github.com/noah-isme/hostel-noc-api/pkg/response"
)

type notificationService interface {
	ListForUser(ctx context.Context, actor *models.JWTClaims, limit int) ([]models.Notification, error)
}

// NotificationHandler serves the caller's in-app notifications.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler builds the handler.
func NewNotificationHandler(service notificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List godoc
// @Summary Latest notifications of the caller
// @Tags Notifications
// @Produce json
// @Param limit query int false "Maximum results"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.service.ListForUser(c.Request.Context(), claimsFromContext(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
