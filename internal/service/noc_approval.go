package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-noc-api/internal/models"
	"github.com/noah-isme/hostel-noc-api/internal/repository"
	appErrors "github.com/noah-isme/hostel-noc-api/pkg/errors"
)

// DefaultDeactivationTimeout bounds the account deactivation call.
const DefaultDeactivationTimeout = 5 * time.Second

const tracerName = "hostel-noc-api/noc"

// AccountDeactivator disables a student's account. Implementations must be idempotent.
type AccountDeactivator interface {
	DeactivateAccount(ctx context.Context, studentID string) error
}

// Notifier delivers a message to a user. Failures are reported but never fatal to the workflow.
type Notifier interface {
	Notify(ctx context.Context, recipientID string, msg models.NotificationMessage) error
}

type transitionStore interface {
	ApplyTransition(ctx context.Context, next *models.NOCRequest, fromStatus models.NOCStatus, history *models.NOCStatusHistory) error
}

// ApprovalCoordinator runs final approval: guard, deactivate the student account, persist, notify.
// The request is only marked approved after deactivation has succeeded at least once.
type ApprovalCoordinator struct {
	engine      *TransitionEngine
	store       transitionStore
	deactivator AccountDeactivator
	notifier    Notifier
	metrics     *MetricsService
	tracer      trace.Tracer
	timeout     time.Duration
	logger      *zap.Logger
}

// NewApprovalCoordinator constructs the coordinator.
func NewApprovalCoordinator(engine *TransitionEngine, store transitionStore, deactivator AccountDeactivator, notifier Notifier, metrics *MetricsService, tracer trace.Tracer, timeout time.Duration, logger *zap.Logger) *ApprovalCoordinator {
	if timeout <= 0 {
		timeout = DefaultDeactivationTimeout
	}
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalCoordinator{
		engine:      engine,
		store:       store,
		deactivator: deactivator,
		notifier:    notifier,
		metrics:     metrics,
		tracer:      tracer,
		timeout:     timeout,
		logger:      logger,
	}
}

// Approve moves req to APPROVED. req is not modified; the persisted entity is returned.
func (a *ApprovalCoordinator) Approve(ctx context.Context, req *models.NOCRequest, actorID string, actorRole models.UserRole, remarks string) (*models.NOCRequest, error) {
	ctx, span := a.tracer.Start(ctx, "noc.approve")
	defer span.End()
	span.SetAttributes(
		attribute.String("noc.request_id", req.ID),
		attribute.String("noc.student_id", req.StudentID),
		attribute.String("noc.from_status", string(req.Status)),
		attribute.String("noc.actor_role", string(actorRole)),
	)

	input := TransitionInput{
		Action:    models.NOCActionApprove,
		ActorID:   actorID,
		ActorRole: actorRole,
		Remarks:   remarks,
	}
	decision, err := a.engine.Decide(req, input)
	if err != nil {
		fail(span, err)
		return nil, err
	}

	if req.StudentDeactivated {
		span.AddEvent("deactivation skipped")
		a.metrics.RecordDeactivation(OutcomeSkipped, 0)
	} else if err := a.deactivate(ctx, span, req.StudentID); err != nil {
		return nil, err
	}
	decision.Input.Deactivated = true

	next := a.engine.Apply(req, decision)
	history := a.engine.History(req.ID, decision)
	if err := a.store.ApplyTransition(ctx, next, req.Status, history); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			conflict := appErrors.Clone(appErrors.ErrConcurrencyConflict, "request changed while approving; retry")
			fail(span, conflict)
			return nil, conflict
		}
		wrapped := appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist approval")
		fail(span, wrapped)
		return nil, wrapped
	}
	span.SetStatus(codes.Ok, "approved")

	a.notifyApproval(ctx, next)
	return next, nil
}

func (a *ApprovalCoordinator) deactivate(ctx context.Context, span trace.Span, studentID string) error {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	err := a.deactivator.DeactivateAccount(callCtx, studentID)
	elapsed := time.Since(start)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		a.metrics.RecordDeactivation(OutcomeFailure, elapsed)
		a.logger.Warn("student account deactivation failed",
			zap.String("student_id", studentID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		failure := appErrors.Wrap(err, appErrors.ErrDependencyFailure.Code, appErrors.ErrDependencyFailure.Status,
			fmt.Sprintf("account deactivation failed for student %s", studentID))
		fail(span, failure)
		return failure
	}
	a.metrics.RecordDeactivation(OutcomeSuccess, elapsed)
	span.AddEvent("student deactivated", trace.WithAttributes(attribute.Int64("duration_ms", elapsed.Milliseconds())))
	return nil
}

func (a *ApprovalCoordinator) notifyApproval(ctx context.Context, req *models.NOCRequest) {
	if a.notifier == nil {
		return
	}
	recipients := []string{req.StudentID}
	if req.VerifiedBy != nil && *req.VerifiedBy != "" {
		recipients = append(recipients, *req.VerifiedBy)
	}
	msg := models.NotificationMessage{
		Subject:   "NOC approved",
		Body:      fmt.Sprintf("The hostel exit clearance for %s (%s) has been approved and the student account is now inactive.", req.StudentName, req.RollNumber),
		RequestID: req.ID,
	}
	for _, recipient := range recipients {
		if err := a.notifier.Notify(ctx, recipient, msg); err != nil {
			a.logger.Warn("approval notification failed",
				zap.String("request_id", req.ID),
				zap.String("recipient_id", recipient),
				zap.Error(err),
			)
		}
	}
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
