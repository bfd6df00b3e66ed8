package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-noc-api/internal/dto"
	"github.com/noah-isme/hostel-noc-api/internal/middleware"
	"github.com/noah-isme/hostel-noc-api/internal/models"
	appErrors "github.com/noah-isme/hostel-noc-api/pkg/errors"
	"github.com/noah-isme/hostel-noc-api/pkg/response"
)

type checklistService interface {
	ListCached(ctx context.Context, activeOnly bool) ([]models.ChecklistItem, bool, error)
	Get(ctx context.Context, id string) (*models.ChecklistItem, error)
	Create(ctx context.Context, req dto.CreateChecklistItemRequest, actorID string) (*models.ChecklistItem, error)
	Update(ctx context.Context, id string, req dto.UpdateChecklistItemRequest, actorID string) (*models.ChecklistItem, error)
	Delete(ctx context.Context, id, actorID string) error
	Reorder(ctx context.Context, req dto.ReorderChecklistRequest, actorID string) ([]models.ChecklistItem, error)
}

// ChecklistHandler manages the verification checklist.
type ChecklistHandler struct {
	service checklistService
}

// NewChecklistHandler builds the handler.
func NewChecklistHandler(service checklistService) *ChecklistHandler {
	return &ChecklistHandler{service: service}
}

// List godoc
// @Summary List checklist items in order
// @Tags Checklist
// @Produce json
// @Param active query bool false "Only active items"
// @Success 200 {object} response.Envelope
// @Router /noc-checklist [get]
func (h *ChecklistHandler) List(c *gin.Context) {
	activeOnly := false
	if raw := c.Query("active"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "active must be a boolean"))
			return
		}
		activeOnly = parsed
	}
	items, hit, err := h.service.ListCached(c.Request.Context(), activeOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a checklist item
// @Tags Checklist
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Router /noc-checklist/{id} [get]
func (h *ChecklistHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Append a checklist item
// @Tags Checklist
// @Accept json
// @Produce json
// @Param payload body dto.CreateChecklistItemRequest true "Item"
// @Success 201 {object} response.Envelope
// @Router /noc-checklist [post]
func (h *ChecklistHandler) Create(c *gin.Context) {
	var req dto.CreateChecklistItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.service.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Edit description or active flag of a checklist item
// @Tags Checklist
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param payload body dto.UpdateChecklistItemRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /noc-checklist/{id} [put]
func (h *ChecklistHandler) Update(c *gin.Context) {
	var req dto.UpdateChecklistItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete a checklist item
// @Tags Checklist
// @Param id path string true "Item ID"
// @Success 204
// @Router /noc-checklist/{id} [delete]
func (h *ChecklistHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reorder godoc
// @Summary Reorder the whole checklist
// @Tags Checklist
// @Accept json
// @Produce json
// @Param payload body dto.ReorderChecklistRequest true "Ordered ids"
// @Success 200 {object} response.Envelope
// @Router /noc-checklist/reorder [put]
func (h *ChecklistHandler) Reorder(c *gin.Context) {
	var req dto.ReorderChecklistRequest
	if !bindJSON(c, &req) {
		return
	}
	items, err := h.service.Reorder(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
