package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-noc-api/internal/dto"
	"github.com/noah-isme/hostel-noc-api/internal/models"
	"github.com/noah-isme/hostel-noc-api/internal/repository"
	appErrors "github.com/noah-isme/hostel-noc-api/pkg/errors"
)

const (
	defaultNOCPageSize   = 20
	maxNOCPageSize       = 200
	maxExportRows        = 10000
	defaultEligibleLimit = 20
	maxEligibleLimit     = 100
)

type nocStore interface {
	Create(ctx context.Context, req *models.NOCRequest, history *models.NOCStatusHistory) error
	GetByID(ctx context.Context, id string) (*models.NOCRequest, error)
	List(ctx context.Context, filter models.NOCFilter) ([]models.NOCRequest, int, error)
	HasOpenRequest(ctx context.Context, studentID string) (bool, error)
	ApplyTransition(ctx context.Context, next *models.NOCRequest, fromStatus models.NOCStatus, history *models.NOCStatusHistory) error
	DeletePending(ctx context.Context, id string, version int) error
	ListHistory(ctx context.Context, requestID string) ([]models.NOCStatusHistory, error)
}

// StudentDirectory resolves student profiles owned by the wider hostel system.
type StudentDirectory interface {
	LookupStudent(ctx context.Context, id string) (*models.StudentProfile, error)
	ListEligibleStudents(ctx context.Context, filter models.EligibleStudentFilter) ([]models.StudentProfile, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// NOCService is the entry point for every NOC workflow operation. Mutations on one request are
// serialised in process and guarded by the row version in the database.
type NOCService struct {
	store      nocStore
	students   StudentDirectory
	checklist  checklistLookup
	authorizer Authorizer
	engine     *TransitionEngine
	recorder   *VerificationRecorder
	approvals  *ApprovalCoordinator
	exporter   *ExportService
	notifier   Notifier
	audit      auditLogger
	metrics    *MetricsService
	tracer     trace.Tracer
	validator  *validator.Validate
	locks      *keyedMutex
	logger     *zap.Logger

	deactivator         AccountDeactivator
	allowReverify       bool
	deactivationTimeout time.Duration
}

// NOCServiceOption configures the service.
type NOCServiceOption func(*NOCService)

// WithNOCAuthorizer overrides the default cohort authorizer.
func WithNOCAuthorizer(authorizer Authorizer) NOCServiceOption {
	return func(s *NOCService) {
		if authorizer != nil {
			s.authorizer = authorizer
		}
	}
}

// WithNOCNotifier sets the notification collaborator.
func WithNOCNotifier(notifier Notifier) NOCServiceOption {
	return func(s *NOCService) {
		s.notifier = notifier
	}
}

// WithNOCAudit records workflow actions in the audit trail.
func WithNOCAudit(audit auditLogger) NOCServiceOption {
	return func(s *NOCService) {
		s.audit = audit
	}
}

// WithNOCMetrics enables workflow counters.
func WithNOCMetrics(metrics *MetricsService) NOCServiceOption {
	return func(s *NOCService) {
		s.metrics = metrics
	}
}

// WithNOCTracer overrides the tracer used for workflow spans.
func WithNOCTracer(tracer trace.Tracer) NOCServiceOption {
	return func(s *NOCService) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithNOCExporter overrides certificate and register rendering.
func WithNOCExporter(exporter *ExportService) NOCServiceOption {
	return func(s *NOCService) {
		if exporter != nil {
			s.exporter = exporter
		}
	}
}

// WithWardenReverify enables SENT_FOR_CORRECTION -> WARDEN_VERIFIED through re-verification.
func WithWardenReverify(enabled bool) NOCServiceOption {
	return func(s *NOCService) {
		s.allowReverify = enabled
	}
}

// WithDeactivationTimeout bounds the account deactivation call made on approval.
func WithDeactivationTimeout(timeout time.Duration) NOCServiceOption {
	return func(s *NOCService) {
		s.deactivationTimeout = timeout
	}
}

// NewNOCService constructs the workflow service.
func NewNOCService(store nocStore, students StudentDirectory, checklist checklistLookup, deactivator AccountDeactivator, logger *zap.Logger, opts ...NOCServiceOption) *NOCService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NOCService{
		store:       store,
		students:    students,
		checklist:   checklist,
		deactivator: deactivator,
		tracer:      otel.Tracer(tracerName),
		validator:   validator.New(),
		locks:       newKeyedMutex(),
		logger:      logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	if svc.authorizer == nil {
		cohorts, _ := students.(wardenCohortChecker)
		svc.authorizer = NewCohortAuthorizer(cohorts)
	}
	if svc.exporter == nil {
		svc.exporter = NewExportService(nil, nil)
	}
	svc.engine = NewTransitionEngine(svc.allowReverify)
	svc.recorder = NewVerificationRecorder(checklist, svc.engine)
	svc.approvals = NewApprovalCoordinator(svc.engine, store, deactivator, svc.notifier, svc.metrics, svc.tracer, svc.deactivationTimeout, logger)
	return svc
}

// Create raises a new request. Students raise for themselves; wardens for a student in their cohort.
func (s *NOCService) Create(ctx context.Context, req dto.CreateNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	ctx, span := s.tracer.Start(ctx, "noc.request.create")
	defer span.End()

	created, err := s.create(ctx, req, actor)
	s.record(span, models.NOCActionCreate, err)
	return created, err
}

func (s *NOCService) create(ctx context.Context, req dto.CreateNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	reason, err := s.engine.CheckCreate(actor.Role, req.Reason)
	if err != nil {
		return nil, err
	}

	raisedBy := models.NOCRaisedByStudent
	studentID := strings.TrimSpace(req.StudentID)
	if actor.Role == models.RoleStudent {
		if studentID != "" && studentID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only raise requests for themselves")
		}
		studentID = actor.UserID
	} else {
		raisedBy = models.NOCRaisedByWarden
		if studentID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
		}
	}

	var vacating *time.Time
	if v := strings.TrimSpace(req.VacatingDate); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "vacatingDate must use YYYY-MM-DD")
		}
		vacating = &parsed
	}

	if err := s.authorizer.AuthorizeStudent(ctx, actor, studentID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock("student:" + studentID)
	defer unlock()

	profile, err := s.students.LookupStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !profile.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student account is inactive")
	}
	open, err := s.store.HasOpenRequest(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open requests")
	}
	if open {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student already has an open NOC request")
	}

	request := &models.NOCRequest{
		StudentID:          studentID,
		StudentName:        profile.FullName,
		RollNumber:         profile.RollNumber,
		Course:             profile.Course,
		Branch:             profile.Branch,
		Year:               profile.Year,
		AcademicYear:       profile.AcademicYear,
		Reason:             reason,
		VacatingDate:       vacating,
		Status:             models.NOCStatusPending,
		RaisedBy:           raisedBy,
		CreatedBy:          actor.UserID,
		ChecklistResponses: models.ChecklistResponses{},
	}
	history := &models.NOCStatusHistory{
		ToStatus:  models.NOCStatusPending,
		Action:    models.NOCActionCreate,
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
	}
	if err := s.store.Create(ctx, request, history); err != nil {
		if errors.Is(err, repository.ErrOpenRequestExists) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student already has an open NOC request")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create NOC request")
	}

	s.emitAudit(ctx, actor, models.AuditActionNOCCreate, request.ID, nil, map[string]interface{}{
		"status":    request.Status,
		"raisedBy":  request.RaisedBy,
		"studentId": request.StudentID,
	})
	if raisedBy == models.NOCRaisedByWarden {
		s.notify(ctx, request, "NOC request raised", "A warden raised a hostel exit clearance request on your behalf.", request.StudentID)
	}
	return request, nil
}

// Delete removes a pending request owned by the calling student.
func (s *NOCService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	_, err := s.withRequest(ctx, id, actor, models.NOCActionDelete, func(ctx context.Context, req *models.NOCRequest) (*models.NOCRequest, error) {
		if _, err := s.engine.Decide(req, TransitionInput{Action: models.NOCActionDelete, ActorID: actor.UserID, ActorRole: actor.Role}); err != nil {
			return nil, err
		}
		if err := s.store.DeletePending(ctx, req.ID, req.Version); err != nil {
			return nil, mapStoreError(err, "failed to delete NOC request")
		}
		return req, nil
	})
	return err
}

// Verify records the warden's checklist verification on a pending request.
func (s *NOCService) Verify(ctx context.Context, id string, req dto.VerifyNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error) {
	return s.verify(ctx, id, req, actor, false)
}

// Reverify records a new verification cycle on a request sent back for correction.
func (s *NOCService) Reverify(ctx context.Context, id string, req dto.VerifyNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error) {
	return s.verify(ctx, id, req, actor, true)
}

func (s *NOCService) verify(ctx context.Context, id string, payload dto.VerifyNOCRequest, actor *models.JWTClaims, reverify bool) (*models.NOCRequest, error) {
	action := models.NOCActionVerify
	if reverify {
		action = models.NOCActionReverify
	}
	return s.withRequest(ctx, id, actor, action, func(ctx context.Context, req *models.NOCRequest) (*models.NOCRequest, error) {
		if err := s.engine.Check(req.Status, action, actor.Role); err != nil {
			return nil, err
		}
		if err := s.validator.Struct(payload); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
		}
		decision, err := s.recorder.Record(ctx, req, VerificationInput{
			ActorID:   actor.UserID,
			ActorRole: actor.Role,
			Responses: payload.ChecklistResponses,
			Remarks:   payload.WardenRemarks,
			Reverify:  reverify,
		})
		if err != nil {
			return nil, err
		}
		next, err := s.persist(ctx, req, decision)
		if err != nil {
			return nil, err
		}
		s.notify(ctx, next, "NOC verified", "The warden has verified your hostel exit checklist. It is now awaiting admin approval.", next.StudentID)
		return next, nil
	})
}

// Reject routes to the warden or admin rejection depending on the caller's role.
func (s *NOCService) Reject(ctx context.Context, id string, req dto.RejectNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error) {
	if actor != nil && actor.Role.IsAdmin() {
		return s.AdminReject(ctx, id, req, actor)
	}
	return s.WardenReject(ctx, id, req, actor)
}

// WardenReject rejects a pending request.
func (s *NOCService) WardenReject(ctx context.Context, id string, req dto.RejectNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error) {
	return s.simpleTransition(ctx, id, actor, TransitionInput{Action: models.NOCActionWardenReject, RejectionReason: req.RejectionReason},
		"NOC rejected", "Your hostel exit clearance request was rejected by the warden.")
}

// SendForCorrection returns a verified request to the warden with admin remarks.
func (s *NOCService) SendForCorrection(ctx context.Context, id string, req dto.CorrectionNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error) {
	return s.simpleTransition(ctx, id, actor, TransitionInput{Action: models.NOCActionSendForCorrection, Remarks: req.AdminRemarks},
		"NOC sent for correction", "The administrator asked for corrections on the hostel exit clearance request.")
}

// AdminReject rejects a verified request.
func (s *NOCService) AdminReject(ctx context.Context, id string, req dto.RejectNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error) {
	return s.simpleTransition(ctx, id, actor, TransitionInput{Action: models.NOCActionAdminReject, RejectionReason: req.RejectionReason},
		"NOC rejected", "The hostel exit clearance request was rejected by the administrator.")
}

// Approve gives final approval and deactivates the student account.
func (s *NOCService) Approve(ctx context.Context, id string, req dto.ApproveNOCRequest, actor *models.JWTClaims) (*models.NOCRequest, error) {
	return s.withRequest(ctx, id, actor, models.NOCActionApprove, func(ctx context.Context, current *models.NOCRequest) (*models.NOCRequest, error) {
		next, err := s.approvals.Approve(ctx, current, actor.UserID, actor.Role, req.AdminRemarks)
		if err != nil {
			return nil, err
		}
		if !current.StudentDeactivated && next.StudentDeactivated {
			s.emitAudit(ctx, actor, models.AuditActionAccountDeactivation, current.StudentID, map[string]interface{}{"active": true}, map[string]interface{}{"active": false, "requestId": current.ID})
		}
		return next, nil
	})
}

func (s *NOCService) simpleTransition(ctx context.Context, id string, actor *models.JWTClaims, input TransitionInput, subject, body string) (*models.NOCRequest, error) {
	return s.withRequest(ctx, id, actor, input.Action, func(ctx context.Context, req *models.NOCRequest) (*models.NOCRequest, error) {
		input.ActorID = actor.UserID
		input.ActorRole = actor.Role
		decision, err := s.engine.Decide(req, input)
		if err != nil {
			return nil, err
		}
		next, err := s.persist(ctx, req, decision)
		if err != nil {
			return nil, err
		}
		recipients := []string{next.StudentID}
		if input.Action != models.NOCActionWardenReject && next.VerifiedBy != nil {
			recipients = append(recipients, *next.VerifiedBy)
		}
		s.notify(ctx, next, subject, body, recipients...)
		return next, nil
	})
}

// withRequest runs fn under the request lock after loading and authorizing the request.
func (s *NOCService) withRequest(ctx context.Context, id string, actor *models.JWTClaims, action models.NOCAction, fn func(context.Context, *models.NOCRequest) (*models.NOCRequest, error)) (*models.NOCRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	ctx, span := s.tracer.Start(ctx, "noc.request."+strings.ToLower(string(action)))
	defer span.End()
	span.SetAttributes(attribute.String("noc.request_id", id), attribute.String("noc.actor_role", string(actor.Role)))

	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.load(ctx, id)
	if err == nil {
		err = s.authorizer.AuthorizeStudent(ctx, actor, current.StudentID)
	}
	var next *models.NOCRequest
	if err == nil {
		next, err = fn(ctx, current)
	}
	s.record(span, action, err)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, auditActionFor(action), current.ID,
		map[string]interface{}{"status": current.Status, "version": current.Version},
		map[string]interface{}{"status": next.Status, "action": action})
	return next, nil
}

func (s *NOCService) persist(ctx context.Context, req *models.NOCRequest, decision *TransitionDecision) (*models.NOCRequest, error) {
	next := s.engine.Apply(req, decision)
	history := s.engine.History(req.ID, decision)
	if err := s.store.ApplyTransition(ctx, next, req.Status, history); err != nil {
		return nil, mapStoreError(err, "failed to update NOC request")
	}
	return next, nil
}

// Get returns a request with the actions the caller may take next.
func (s *NOCService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.NOCDetail, error) {
	req, err := s.loadAuthorized(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return &dto.NOCDetail{NOCRequest: req, AllowedActions: s.engine.AllowedActions(req.Status, actor.Role)}, nil
}

// History returns the transition log of a request.
func (s *NOCService) History(ctx context.Context, id string, actor *models.JWTClaims) ([]models.NOCStatusHistory, error) {
	if _, err := s.loadAuthorized(ctx, id, actor); err != nil {
		return nil, err
	}
	history, err := s.store.ListHistory(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load NOC history")
	}
	if history == nil {
		history = []models.NOCStatusHistory{}
	}
	return history, nil
}

// List returns requests visible to the caller. Admins default to requests awaiting a decision;
// wardens default to pending requests in their cohorts.
func (s *NOCService) List(ctx context.Context, query dto.NOCQuery, actor *models.JWTClaims) ([]models.NOCRequest, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	filter := models.NOCFilter{Status: query.Status}
	switch actor.Role {
	case models.RoleAdmin, models.RoleSuperAdmin:
		if len(filter.Status) == 0 {
			filter.Status = []models.NOCStatus{models.NOCStatusWardenVerified, models.NOCStatusSentForCorrection}
		}
	case models.RoleWarden:
		filter.WardenID = actor.UserID
		if len(filter.Status) == 0 {
			filter.Status = []models.NOCStatus{models.NOCStatusPending}
		}
	case models.RoleStudent:
		filter.StudentID = actor.UserID
	default:
		return nil, nil, appErrors.ErrForbidden
	}
	return s.list(ctx, filter, query)
}

// ListByStudent returns every request of one student.
func (s *NOCService) ListByStudent(ctx context.Context, studentID string, query dto.NOCQuery, actor *models.JWTClaims) ([]models.NOCRequest, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if err := s.authorizer.AuthorizeStudent(ctx, actor, studentID); err != nil {
		return nil, nil, err
	}
	return s.list(ctx, models.NOCFilter{StudentID: studentID, Status: query.Status}, query)
}

func (s *NOCService) list(ctx context.Context, filter models.NOCFilter, query dto.NOCQuery) ([]models.NOCRequest, *models.Pagination, error) {
	for _, status := range filter.Status {
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %s", status))
		}
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 {
		size = defaultNOCPageSize
	}
	if size > maxNOCPageSize {
		size = maxNOCPageSize
	}
	filter.Limit = size
	filter.Offset = (page - 1) * size

	requests, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list NOC requests")
	}
	if requests == nil {
		requests = []models.NOCRequest{}
	}
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// EligibleStudents lists cohort students a warden may raise a request for, ranked by search.
func (s *NOCService) EligibleStudents(ctx context.Context, query dto.EligibleStudentQuery, actor *models.JWTClaims) ([]models.StudentProfile, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleWarden {
		return nil, appErrors.ErrForbidden
	}
	students, err := s.students.ListEligibleStudents(ctx, models.EligibleStudentFilter{WardenID: actor.UserID, Search: query.Search, Limit: query.Limit})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list eligible students")
	}
	ranked := rankStudents(query.Search, students)
	limit := query.Limit
	if limit <= 0 {
		limit = defaultEligibleLimit
	}
	if limit > maxEligibleLimit {
		limit = maxEligibleLimit
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// Certificate renders the clearance certificate for an approved request.
func (s *NOCService) Certificate(ctx context.Context, id string, actor *models.JWTClaims) ([]byte, string, error) {
	req, err := s.loadAuthorized(ctx, id, actor)
	if err != nil {
		return nil, "", err
	}
	if req.Status != models.NOCStatusApproved {
		return nil, "", appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("certificate is only available for APPROVED requests (current status %s)", req.Status))
	}
	body, err := s.exporter.Certificate(req)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	name := req.RollNumber
	if name == "" {
		name = req.ID
	}
	return body, fmt.Sprintf("noc-%s.pdf", name), nil
}

// Export renders the register of requests matching the statuses as CSV.
func (s *NOCService) Export(ctx context.Context, query dto.NOCQuery, actor *models.JWTClaims) ([]byte, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.IsAdmin() {
		return nil, appErrors.ErrForbidden
	}
	filter := models.NOCFilter{Status: query.Status, Limit: maxNOCPageSize}
	all := make([]models.NOCRequest, 0, maxNOCPageSize)
	for len(all) < maxExportRows {
		filter.Offset = len(all)
		batch, total, err := s.store.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list NOC requests")
		}
		all = append(all, batch...)
		if len(batch) == 0 || len(all) >= total {
			break
		}
	}
	body, err := s.exporter.Register(all)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render register")
	}
	return body, nil
}

func (s *NOCService) loadAuthorized(ctx context.Context, id string, actor *models.JWTClaims) (*models.NOCRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.AuthorizeStudent(ctx, actor, req.StudentID); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *NOCService) load(ctx context.Context, id string) (*models.NOCRequest, error) {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "NOC request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load NOC request")
	}
	return req, nil
}

func (s *NOCService) record(span trace.Span, action models.NOCAction, err error) {
	if err != nil {
		fail(span, err)
		s.metrics.RecordNOCTransition(string(action), OutcomeFailure)
		return
	}
	s.metrics.RecordNOCTransition(string(action), OutcomeSuccess)
}

func (s *NOCService) notify(ctx context.Context, req *models.NOCRequest, subject, body string, recipients ...string) {
	if s.notifier == nil {
		return
	}
	msg := models.NotificationMessage{Subject: subject, Body: body, RequestID: req.ID}
	for _, recipient := range recipients {
		if recipient == "" {
			continue
		}
		if err := s.notifier.Notify(ctx, recipient, msg); err != nil {
			s.logger.Warn("noc notification failed",
				zap.String("request_id", req.ID),
				zap.String("recipient_id", recipient),
				zap.Error(err),
			)
		}
	}
}

func (s *NOCService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, oldValues, newValues map[string]interface{}) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   "noc_request",
		ResourceID: &resourceID,
		IPAddress:  "system",
		UserAgent:  "noc-service",
	}
	if action == models.AuditActionAccountDeactivation {
		log.Resource = "user"
	}
	if actor != nil {
		userID := actor.UserID
		log.UserID = &userID
	}
	if oldValues != nil {
		log.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		log.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.String("action", action), zap.Error(err))
	}
}

func auditActionFor(action models.NOCAction) string {
	if action == models.NOCActionDelete {
		return models.AuditActionNOCDelete
	}
	return models.AuditActionNOCTransition
}

func mapStoreError(err error, message string) error {
	switch {
	case errors.Is(err, repository.ErrStaleVersion):
		return appErrors.Clone(appErrors.ErrConcurrencyConflict, "request was modified concurrently; reload and retry")
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "NOC request not found")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}

// rankStudents orders students by fuzzy match of search against name and roll number. Students
// that do not match are dropped. An empty search keeps the input order.
func rankStudents(search string, students []models.StudentProfile) []models.StudentProfile {
	search = strings.TrimSpace(search)
	if search == "" {
		return students
	}
	targets := make([]string, len(students))
	for i, st := range students {
		targets[i] = st.FullName + " " + st.RollNumber
	}
	ranks := fuzzy.RankFindNormalizedFold(search, targets)
	sort.Sort(ranks)

	result := make([]models.StudentProfile, 0, len(ranks))
	for _, rank := range ranks {
		result = append(result, students[rank.OriginalIndex])
	}
	return result
}
