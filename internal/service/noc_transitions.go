package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/noah-isme/hostel-noc-api/internal/models"
	appErrors "github.com/noah-isme/hostel-noc-api/pkg/errors"
)

// Reason length bounds, counted in runes after trimming.
const (
	MinReasonLength = 10
	MaxReasonLength = 500
)

type actorClass int

const (
	actorStudent actorClass = iota
	actorWarden
	actorAdmin
)

func classify(role models.UserRole) (actorClass, bool) {
	switch role {
	case models.RoleStudent:
		return actorStudent, true
	case models.RoleWarden:
		return actorWarden, true
	case models.RoleAdmin, models.RoleSuperAdmin:
		return actorAdmin, true
	}
	return 0, false
}

type transitionRule struct {
	Action models.NOCAction
	Actor  actorClass
	From   []models.NOCStatus
	To     models.NOCStatus
}

var nocTransitionTable = []transitionRule{
	{Action: models.NOCActionDelete, Actor: actorStudent, From: []models.NOCStatus{models.NOCStatusPending}},
	{Action: models.NOCActionVerify, Actor: actorWarden, From: []models.NOCStatus{models.NOCStatusPending}, To: models.NOCStatusWardenVerified},
	{Action: models.NOCActionWardenReject, Actor: actorWarden, From: []models.NOCStatus{models.NOCStatusPending}, To: models.NOCStatusRejected},
	{Action: models.NOCActionApprove, Actor: actorAdmin, From: []models.NOCStatus{models.NOCStatusWardenVerified, models.NOCStatusSentForCorrection}, To: models.NOCStatusApproved},
	{Action: models.NOCActionSendForCorrection, Actor: actorAdmin, From: []models.NOCStatus{models.NOCStatusWardenVerified, models.NOCStatusSentForCorrection}, To: models.NOCStatusSentForCorrection},
	{Action: models.NOCActionAdminReject, Actor: actorAdmin, From: []models.NOCStatus{models.NOCStatusWardenVerified, models.NOCStatusSentForCorrection}, To: models.NOCStatusRejected},
	{Action: models.NOCActionReverify, Actor: actorWarden, From: []models.NOCStatus{models.NOCStatusSentForCorrection}, To: models.NOCStatusWardenVerified},
}

// TransitionError reports an action attempted from a state or by a role the table does not allow.
type TransitionError struct {
	Action   models.NOCAction
	From     models.NOCStatus
	Role     models.UserRole
	Required []models.NOCStatus
}

func (e *TransitionError) Error() string {
	required := make([]string, len(e.Required))
	for i, s := range e.Required {
		required[i] = string(s)
	}
	from := string(e.From)
	if from == "" {
		from = "NONE"
	}
	if len(required) == 0 {
		return fmt.Sprintf("action %s is not permitted for role %s (current status %s)", e.Action, e.Role, from)
	}
	return fmt.Sprintf("action %s by %s not allowed from status %s; requires %s", e.Action, e.Role, from, strings.Join(required, " or "))
}

// Unwrap exposes the HTTP-aware error so handlers render 409 INVALID_TRANSITION.
func (e *TransitionError) Unwrap() error {
	return appErrors.Clone(appErrors.ErrInvalidTransition, e.Error())
}

// TransitionInput carries the actor and payload of a requested action.
type TransitionInput struct {
	Action          models.NOCAction
	ActorID         string
	ActorRole       models.UserRole
	Remarks         string
	RejectionReason string
	Responses       models.ChecklistResponses
	Deactivated     bool
}

// TransitionDecision is an accepted transition that has not been applied yet.
type TransitionDecision struct {
	Action models.NOCAction
	From   models.NOCStatus
	To     models.NOCStatus
	Input  TransitionInput
}

// TransitionEngine validates and applies NOC state transitions. It performs no I/O.
type TransitionEngine struct {
	allowReverify bool
}

// NewTransitionEngine builds the engine. allowReverify enables SENT_FOR_CORRECTION -> WARDEN_VERIFIED.
func NewTransitionEngine(allowReverify bool) *TransitionEngine {
	return &TransitionEngine{allowReverify: allowReverify}
}

func (e *TransitionEngine) rule(action models.NOCAction) (transitionRule, bool) {
	if action == models.NOCActionReverify && !e.allowReverify {
		return transitionRule{}, false
	}
	for _, r := range nocTransitionTable {
		if r.Action == action {
			return r, true
		}
	}
	return transitionRule{}, false
}

// Check verifies the action is allowed from status for role without validating any payload.
func (e *TransitionEngine) Check(status models.NOCStatus, action models.NOCAction, role models.UserRole) error {
	r, ok := e.rule(action)
	if !ok {
		return &TransitionError{Action: action, From: status, Role: role}
	}
	class, known := classify(role)
	if !known || class != r.Actor {
		return &TransitionError{Action: action, From: status, Role: role}
	}
	for _, from := range r.From {
		if from == status {
			return nil
		}
	}
	return &TransitionError{Action: action, From: status, Role: role, Required: append([]models.NOCStatus(nil), r.From...)}
}

// CheckCreate verifies role may raise a request and returns the normalised reason.
func (e *TransitionEngine) CheckCreate(role models.UserRole, reason string) (string, error) {
	class, known := classify(role)
	if !known || (class != actorStudent && class != actorWarden) {
		return "", &TransitionError{Action: models.NOCActionCreate, Role: role}
	}
	return NormalizeReason(reason)
}

// Decide validates a transition against the current request. Nothing is mutated.
func (e *TransitionEngine) Decide(req *models.NOCRequest, input TransitionInput) (*TransitionDecision, error) {
	if req == nil {
		return nil, appErrors.ErrNotFound
	}
	if err := e.Check(req.Status, input.Action, input.ActorRole); err != nil {
		return nil, err
	}
	input.Remarks = strings.TrimSpace(input.Remarks)
	input.RejectionReason = strings.TrimSpace(input.RejectionReason)

	switch input.Action {
	case models.NOCActionWardenReject, models.NOCActionAdminReject:
		if input.RejectionReason == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "rejectionReason is required")
		}
	case models.NOCActionSendForCorrection:
		if input.Remarks == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "adminRemarks is required when sending for correction")
		}
	case models.NOCActionVerify, models.NOCActionReverify:
		if len(input.Responses) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "checklistResponses are required")
		}
	case models.NOCActionApprove, models.NOCActionDelete, models.NOCActionCreate:
	}

	r, _ := e.rule(input.Action)
	return &TransitionDecision{Action: input.Action, From: req.Status, To: r.To, Input: input}, nil
}

// Apply returns the request as it looks after decision. The argument is never modified.
func (e *TransitionEngine) Apply(req *models.NOCRequest, decision *TransitionDecision) *models.NOCRequest {
	next := req.Clone()
	in := decision.Input
	actor := in.ActorID
	next.Status = decision.To

	switch decision.Action {
	case models.NOCActionVerify:
		next.VerifiedBy = &actor
		next.WardenRemarks = optionalString(in.Remarks)
		next.ChecklistResponses = withCycle(in.Responses, 1)
	case models.NOCActionReverify:
		next.VerifiedBy = &actor
		if in.Remarks != "" {
			next.WardenRemarks = optionalString(in.Remarks)
		}
		cycle := req.ChecklistResponses.LatestCycle() + 1
		next.ChecklistResponses = append(next.ChecklistResponses, withCycle(in.Responses, cycle)...)
	case models.NOCActionWardenReject:
		next.RejectionReason = optionalString(in.RejectionReason)
	case models.NOCActionApprove:
		next.ReviewedBy = &actor
		if in.Remarks != "" {
			next.AdminRemarks = optionalString(in.Remarks)
		}
		next.StudentDeactivated = req.StudentDeactivated || in.Deactivated
	case models.NOCActionSendForCorrection:
		next.ReviewedBy = &actor
		next.AdminRemarks = optionalString(in.Remarks)
	case models.NOCActionAdminReject:
		next.ReviewedBy = &actor
		next.RejectionReason = optionalString(in.RejectionReason)
	case models.NOCActionDelete, models.NOCActionCreate:
		next.Status = req.Status
	}
	return next
}

// History builds the audit row for an applied decision.
func (e *TransitionEngine) History(requestID string, decision *TransitionDecision) *models.NOCStatusHistory {
	from := decision.From
	remarks := decision.Input.Remarks
	if decision.Action == models.NOCActionWardenReject || decision.Action == models.NOCActionAdminReject {
		remarks = decision.Input.RejectionReason
	}
	return &models.NOCStatusHistory{
		RequestID:  requestID,
		FromStatus: &from,
		ToStatus:   decision.To,
		Action:     decision.Action,
		ActorID:    decision.Input.ActorID,
		ActorRole:  decision.Input.ActorRole,
		Remarks:    optionalString(remarks),
	}
}

// AllowedActions lists what role may do with a request in status.
func (e *TransitionEngine) AllowedActions(status models.NOCStatus, role models.UserRole) []models.NOCAction {
	actions := make([]models.NOCAction, 0, 3)
	for _, r := range nocTransitionTable {
		if e.Check(status, r.Action, role) == nil {
			actions = append(actions, r.Action)
		}
	}
	return actions
}

// NormalizeReason trims the reason and enforces its length bounds.
func NormalizeReason(reason string) (string, error) {
	trimmed := strings.TrimSpace(reason)
	n := utf8.RuneCountInString(trimmed)
	if n < MinReasonLength || n > MaxReasonLength {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("reason must be between %d and %d characters", MinReasonLength, MaxReasonLength))
	}
	return trimmed, nil
}

func withCycle(responses models.ChecklistResponses, cycle int) models.ChecklistResponses {
	out := make(models.ChecklistResponses, len(responses))
	for i, r := range responses {
		r.Cycle = cycle
		out[i] = r
	}
	return out
}

func optionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}
