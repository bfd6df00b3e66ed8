package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-noc-api/internal/dto"
	"github.com/noah-isme/hostel-noc-api/internal/models"
	appErrors "github.com/noah-isme/hostel-noc-api/pkg/errors"
	"github.com/noah-isme/hostel-noc-api/pkg/response"
)

type nocService interface {
	Create(ctx context.Context, req dto.CreateNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	Verify(ctx context.Context, id string, req dto.VerifyNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error)
	Reverify(ctx context.Context, id string, req dto.VerifyNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error)
	Reject(ctx context.Context, id string, req dto.RejectNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error)
	Approve(ctx context.Context, id string, req dto.ApproveNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error)
	SendForCorrection(ctx context.Context, id string, req dto.CorrectionNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.NOCDetail, error)
	History(ctx context.Context, id string, actor *models.JWTClaims) ([]models.NOCStatusHistory, error)
	List(ctx context.Context, query dto.NOCQuery, actor *models.JWTClaims) ([]models.NOCRequest, *models.Pagination, error)
	ListByStudent(ctx context.Context, studentID string, query dto.NOCQuery, actor *models.JWTClaims) ([]models.NOCRequest, *models.Pagination, error)
	EligibleStudents(ctx context.Context, query dto.EligibleStudentQuery, actor *models.JWTClaims) ([]models.StudentProfile, error)
	Certificate(ctx context.Context, id string, actor *models.JWTClaims) ([]byte, string, error)
	Export(ctx context.Context, query dto.NOCQuery, actor *models.JWTClaims) ([]byte, error)
}

// NOCHandler exposes the exit clearance workflow.
type NOCHandler struct {
	service nocService
}

// NewNOCHandler builds the handler.
func NewNOCHandler(service nocService) *NOCHandler {
	return &NOCHandler{service: service}
}

// Create godoc
// @Summary Raise an exit clearance request
// @Tags NOC
// @Accept json
// @Produce json
// @Param payload body dto.CreateNOCRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /noc-requests [post]
func (h *NOCHandler) Create(c *gin.Context) {
	var req dto.CreateNOCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid NOC payload"))
		return
	}
	created, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List NOC requests visible to the caller
// @Tags NOC
// @Produce json
// @Param status query []string false "Status filter" collectionFormat(multi)
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /noc-requests [get]
func (h *NOCHandler) List(c *gin.Context) {
	query, err := parseNOCQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// ListByStudent godoc
// @Summary List NOC requests of one student
// @Tags NOC
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/noc-requests [get]
func (h *NOCHandler) ListByStudent(c *gin.Context) {
	query, err := parseNOCQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.ListByStudent(c.Request.Context(), c.Param("studentId"), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a NOC request with the caller's allowed actions
// @Tags NOC
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /noc-requests/{id} [get]
func (h *NOCHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// History godoc
// @Summary Transition history of a NOC request
// @Tags NOC
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /noc-requests/{id}/history [get]
func (h *NOCHandler) History(c *gin.Context) {
	history, err := h.service.History(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Delete godoc
// @Summary Withdraw a pending request
// @Tags NOC
// @Param id path string true "Request ID"
// @Success 204
// @Router /noc-requests/{id} [delete]
func (h *NOCHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Verify godoc
// @Summary Record the warden's checklist verification
// @Tags NOC
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.VerifyNOCRequest true "Checklist responses"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /noc-requests/{id}/verify [post]
func (h *NOCHandler) Verify(c *gin.Context) {
	var req dto.VerifyNOCRequest
	if !bindJSON(c, &req) {
		return
	}
	h.respond(c)(h.service.Verify(c.Request.Context(), c.Param("id"), req, claimsFromContext(c)))
}

// Reverify godoc
// @Summary Re-verify a request sent back for correction
// @Tags NOC
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.VerifyNOCRequest true "Checklist responses"
// @Success 200 {object} response.Envelope
// @Router /noc-requests/{id}/reverify [post]
func (h *NOCHandler) Reverify(c *gin.Context) {
	var req dto.VerifyNOCRequest
	if !bindJSON(c, &req) {
		return
	}
	h.respond(c)(h.service.Reverify(c.Request.Context(), c.Param("id"), req, claimsFromContext(c)))
}

// Reject godoc
// @Summary Reject a request (warden on PENDING, admin after verification)
// @Tags NOC
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.RejectNOCRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /noc-requests/{id}/reject [post]
func (h *NOCHandler) Reject(c *gin.Context) {
	var req dto.RejectNOCRequest
	if !bindJSON(c, &req) {
		return
	}
	h.respond(c)(h.service.Reject(c.Request.Context(), c.Param("id"), req, claimsFromContext(c)))
}

// Approve godoc
// @Summary Approve a verified request and deactivate the student account
// @Tags NOC
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ApproveNOCRequest false "Admin remarks"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /noc-requests/{id}/approve [post]
func (h *NOCHandler) Approve(c *gin.Context) {
	var req dto.ApproveNOCRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	h.respond(c)(h.service.Approve(c.Request.Context(), c.Param("id"), req, claimsFromContext(c)))
}

// SendForCorrection godoc
// @Summary Send a verified request back for correction
// @Tags NOC
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.CorrectionNOCRequest true "Admin remarks"
// @Success 200 {object} response.Envelope
// @Router /noc-requests/{id}/correction [post]
func (h *NOCHandler) SendForCorrection(c *gin.Context) {
	var req dto.CorrectionNOCRequest
	if !bindJSON(c, &req) {
		return
	}
	h.respond(c)(h.service.SendForCorrection(c.Request.Context(), c.Param("id"), req, claimsFromContext(c)))
}

// EligibleStudents godoc
// @Summary Students in the warden's cohorts without an open request
// @Tags NOC
// @Produce json
// @Param q query string false "Fuzzy search on name or roll number"
// @Param limit query int false "Maximum results"
// @Success 200 {object} response.Envelope
// @Router /noc-requests/eligible-students [get]
func (h *NOCHandler) EligibleStudents(c *gin.Context) {
	var query dto.EligibleStudentQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	students, err := h.service.EligibleStudents(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// Certificate godoc
// @Summary Download the clearance certificate of an approved request
// @Tags NOC
// @Produce application/pdf
// @Param id path string true "Request ID"
// @Success 200 {file} file
// @Failure 409 {object} response.Envelope
// @Router /noc-requests/{id}/certificate [get]
func (h *NOCHandler) Certificate(c *gin.Context) {
	body, filename, err := h.service.Certificate(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "application/pdf", body)
}

// Export godoc
// @Summary Export the NOC register as CSV
// @Tags NOC
// @Produce text/csv
// @Param status query []string false "Status filter" collectionFormat(multi)
// @Success 200 {file} file
// @Router /noc-requests/export [get]
func (h *NOCHandler) Export(c *gin.Context) {
	query, err := parseNOCQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	body, err := h.service.Export(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, "noc-register.csv", "text/csv", body)
}

func (h *NOCHandler) respond(c *gin.Context) func(*models.NOCRequest, error) {
	return func(req *models.NOCRequest, err error) {
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, req, nil)
	}
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

// parseNOCQuery accepts status both repeated and comma separated.
func parseNOCQuery(c *gin.Context) (dto.NOCQuery, error) {
	var query dto.NOCQuery
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				query.Status = append(query.Status, models.NOCStatus(part))
			}
		}
	}
	var err error
	if query.Page, err = intQuery(c, "page"); err != nil {
		return query, err
	}
	if query.PageSize, err = intQuery(c, "pageSize"); err != nil {
		return query, err
	}
	return query, nil
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, key+" must be a non-negative integer")
	}
	return v, nil
}
