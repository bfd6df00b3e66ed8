package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-noc-api/internal/dto"
	"github.com/noah-isme/hostel-noc-api/internal/middleware"
	"github.com/noah-isme/hostel-noc-api/internal/models"
	appErrors "github.com/noah-isme/hostel-noc-api/pkg/errors"
)

type nocServiceMock struct {
	request      *models.NOCRequest
	err          error
	lastQuery    dto.NOCQuery
	lastCreate   dto.CreateNOCRequest
	lastVerify   dto.VerifyNOCRequest
	lastApprove  dto.ApproveNOCRequest
	lastStudent  string
	lastEligible dto.EligibleStudentQuery
	lastID       string
	actor        *models.JWTClaims
	deleted      bool
}

func (m *nocServiceMock) Create(ctx context.Context, req dto.CreateNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error) {
	m.lastCreate, m.actor = req, actor
	return m.request, m.err
}

func (m *nocServiceMock) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	m.lastID, m.deleted = id, true
	return m.err
}

func (m *nocServiceMock) Verify(ctx context.Context, id string, req dto.VerifyNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error) {
	m.lastID, m.lastVerify = id, req
	return m.request, m.err
}

func (m *nocServiceMock) Reverify(ctx context.Context, id string, req dto.VerifyNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error) {
	m.lastID, m.lastVerify = id, req
	return m.request, m.err
}

func (m *nocServiceMock) Reject(ctx context.Context, id string, req dto.RejectNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error) {
	m.lastID = id
	return m.request, m.err
}

func (m *nocServiceMock) Approve(ctx context.Context, id string, req dto.ApproveNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error) {
	m.lastID, m.lastApprove = id, req
	return m.request, m.err
}

func (m *nocServiceMock) SendForCorrection(ctx context.Context, id string, req dto.CorrectionNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error) {
	m.lastID = id
	return m.request, m.err
}

func (m *nocServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.NOCDetail, error) {
	m.lastID = id
	if m.err != nil {
		return nil, m.err
	}
	return &dto.NOCDetail{NOCRequest: m.request, AllowedActions: []models.NOCAction{models.NOCActionVerify}}, nil
}

func (m *nocServiceMock) History(ctx context.Context, id string, actor *models.JWTClaims) ([]models.NOCStatusHistory, error) {
	return []models.NOCStatusHistory{}, m.err
}

func (m *nocServiceMock) List(ctx context.Context, query dto.NOCQuery, actor *models.JWTClaims) ([]models.NOCRequest, *models.Pagination, error) {
	m.lastQuery = query
	return []models.NOCRequest{}, &models.Pagination{Page: 1, PageSize: 20}, m.err
}

func (m *nocServiceMock) ListByStudent(ctx context.Context, studentID string, query dto.NOCQuery, actor *models.JWTClaims) ([]models.NOCRequest, *models.Pagination, error) {
	m.lastStudent, m.lastQuery = studentID, query
	return []models.NOCRequest{}, &models.Pagination{Page: 1, PageSize: 20}, m.err
}

func (m *nocServiceMock) EligibleStudents(ctx context.Context, query dto.EligibleStudentQuery, actor *models.JWTClaims) ([]models.StudentProfile, error) {
	m.lastEligible = query
	return []models.StudentProfile{}, m.err
}

func (m *nocServiceMock) Certificate(ctx context.Context, id string, actor *models.JWTClaims) ([]byte, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	return []byte("%PDF-1.3"), "noc-R001.pdf", nil
}

func (m *nocServiceMock) Export(ctx context.Context, query dto.NOCQuery, actor *models.JWTClaims) ([]byte, error) {
	m.lastQuery = query
	return []byte("Request ID\n"), m.err
}

func nocRouter(svc *nocServiceMock, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewNOCHandler(svc)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, claims)
		c.Next()
	})
	r.POST("/noc-requests", h.Create)
	r.GET("/noc-requests", h.List)
	r.GET("/noc-requests/export", h.Export)
	r.GET("/noc-requests/eligible-students", h.EligibleStudents)
	r.GET("/noc-requests/:id", h.Get)
	r.GET("/noc-requests/:id/history", h.History)
	r.GET("/noc-requests/:id/certificate", h.Certificate)
	r.DELETE("/noc-requests/:id", h.Delete)
	r.POST("/noc-requests/:id/verify", h.Verify)
	r.POST("/noc-requests/:id/reverify", h.Reverify)
	r.POST("/noc-requests/:id/reject", h.Reject)
	r.POST("/noc-requests/:id/approve", h.Approve)
	r.POST("/noc-requests/:id/correction", h.SendForCorrection)
	r.GET("/students/:studentId/noc-requests", h.ListByStudent)
	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body == "" {
		reader = &bytes.Buffer{}
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNOCHandlerCreate(t *testing.T) {
	svc := &nocServiceMock{request: &models.NOCRequest{ID: "noc-1", Status: models.NOCStatusPending}}
	r := nocRouter(svc, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})

	w := doJSON(r, http.MethodPost, "/noc-requests", `{"reason":"Need to vacate due to job offer","vacatingDate":"2026-05-31"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Need to vacate due to job offer", svc.lastCreate.Reason)
	assert.Equal(t, "student-1", svc.actor.UserID)

	var envelope struct {
		Data models.NOCRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "noc-1", envelope.Data.ID)

	w = doJSON(r, http.MethodPost, "/noc-requests", `{"reason":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNOCHandlerListParsesQuery(t *testing.T) {
	svc := &nocServiceMock{}
	r := nocRouter(svc, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	w := doJSON(r, http.MethodGet, "/noc-requests?status=pending,warden_verified&status=REJECTED&page=2&pageSize=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.NOCStatus{models.NOCStatusPending, models.NOCStatusWardenVerified, models.NOCStatusRejected}, svc.lastQuery.Status)
	assert.Equal(t, 2, svc.lastQuery.Page)
	assert.Equal(t, 10, svc.lastQuery.PageSize)
	assert.Contains(t, w.Body.String(), `"pagination"`)

	w = doJSON(r, http.MethodGet, "/noc-requests?page=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/students/student-9/noc-requests", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "student-9", svc.lastStudent)
}

func TestNOCHandlerTransitionsMapErrors(t *testing.T) {
	svc := &nocServiceMock{err: appErrors.Clone(appErrors.ErrInvalidTransition, "action APPROVE not allowed")}
	r := nocRouter(svc, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	w := doJSON(r, http.MethodPost, "/noc-requests/noc-1/approve", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TRANSITION")
	assert.Equal(t, "noc-1", svc.lastID)

	svc.err = appErrors.Clone(appErrors.ErrDependencyFailure, "account deactivation failed")
	w = doJSON(r, http.MethodPost, "/noc-requests/noc-1/approve", `{"adminRemarks":"ok"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "ok", svc.lastApprove.AdminRemarks)

	svc.err = appErrors.Clone(appErrors.ErrConcurrencyConflict, "")
	w = doJSON(r, http.MethodPost, "/noc-requests/noc-1/correction", `{"adminRemarks":"Fix"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CONCURRENCY_CONFLICT")
}

func TestNOCHandlerVerify(t *testing.T) {
	svc := &nocServiceMock{request: &models.NOCRequest{ID: "noc-1", Status: models.NOCStatusWardenVerified}}
	r := nocRouter(svc, &models.JWTClaims{UserID: "warden-1", Role: models.RoleWarden})

	w := doJSON(r, http.MethodPost, "/noc-requests/noc-1/verify", `{"checklistResponses":[{"checklistItemId":"item-a","amount":500},{"checklistItemId":"item-b","amount":0}],"wardenRemarks":"Room cleared"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.lastVerify.ChecklistResponses, 2)
	assert.Equal(t, 500.0, *svc.lastVerify.ChecklistResponses[0].Amount)
	assert.Equal(t, "Room cleared", svc.lastVerify.WardenRemarks)

	w = doJSON(r, http.MethodPost, "/noc-requests/noc-1/reject", `{"rejectionReason":"Dues"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodPost, "/noc-requests/noc-1/reverify", `{"checklistResponses":[]}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNOCHandlerReadEndpoints(t *testing.T) {
	svc := &nocServiceMock{request: &models.NOCRequest{ID: "noc-1"}}
	r := nocRouter(svc, &models.JWTClaims{UserID: "warden-1", Role: models.RoleWarden})

	w := doJSON(r, http.MethodGet, "/noc-requests/noc-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"allowedActions":["VERIFY"]`)

	w = doJSON(r, http.MethodGet, "/noc-requests/noc-1/history", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/noc-requests/eligible-students?q=anu&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anu", svc.lastEligible.Search)
	assert.Equal(t, 5, svc.lastEligible.Limit)

	w = doJSON(r, http.MethodGet, "/noc-requests/noc-1/certificate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "noc-R001.pdf")

	w = doJSON(r, http.MethodGet, "/noc-requests/export?status=APPROVED", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "noc-register.csv")
	assert.Equal(t, []models.NOCStatus{models.NOCStatusApproved}, svc.lastQuery.Status)

	w = doJSON(r, http.MethodDelete, "/noc-requests/noc-1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, svc.deleted)

	svc.err = appErrors.Clone(appErrors.ErrNotFound, "NOC request not found")
	w = doJSON(r, http.MethodGet, "/noc-requests/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
