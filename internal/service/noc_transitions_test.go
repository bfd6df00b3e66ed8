package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostel-noc-api/internal/models"
	appErrors "github.com/noah-isme/hostel-noc-api/pkg/errors"
)

func pendingRequest() *models.NOCRequest {
	return &models.NOCRequest{
		ID:        "noc-1",
		StudentID: "student-1",
		Reason:    "Need to vacate due to job offer",
		Status:    models.NOCStatusPending,
		RaisedBy:  models.NOCRaisedByStudent,
		Version:   1,
	}
}

func TestTransitionEngineFollowsTable(t *testing.T) {
	engine := NewTransitionEngine(true)
	roleFor := map[models.NOCAction]models.UserRole{
		models.NOCActionDelete:            models.RoleStudent,
		models.NOCActionVerify:            models.RoleWarden,
		models.NOCActionWardenReject:      models.RoleWarden,
		models.NOCActionApprove:           models.RoleAdmin,
		models.NOCActionSendForCorrection: models.RoleAdmin,
		models.NOCActionAdminReject:       models.RoleAdmin,
		models.NOCActionReverify:          models.RoleWarden,
	}
	allowed := map[models.NOCStatus][]models.NOCAction{
		models.NOCStatusPending:           {models.NOCActionDelete, models.NOCActionVerify, models.NOCActionWardenReject},
		models.NOCStatusWardenVerified:    {models.NOCActionApprove, models.NOCActionSendForCorrection, models.NOCActionAdminReject},
		models.NOCStatusSentForCorrection: {models.NOCActionApprove, models.NOCActionSendForCorrection, models.NOCActionAdminReject, models.NOCActionReverify},
		models.NOCStatusApproved:          {},
		models.NOCStatusRejected:          {},
	}

	for _, status := range models.NOCStatuses {
		for action, role := range roleFor {
			err := engine.Check(status, action, role)
			expected := false
			for _, a := range allowed[status] {
				if a == action {
					expected = true
				}
			}
			if expected {
				assert.NoError(t, err, "%s from %s", action, status)
				continue
			}
			require.Error(t, err, "%s from %s", action, status)
			assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
		}
	}
}

func TestTransitionEngineRejectsWrongRole(t *testing.T) {
	engine := NewTransitionEngine(false)
	err := engine.Check(models.NOCStatusPending, models.NOCActionVerify, models.RoleAdmin)
	require.Error(t, err)

	var transitionErr *TransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, models.RoleAdmin, transitionErr.Role)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	assert.NoError(t, engine.Check(models.NOCStatusWardenVerified, models.NOCActionApprove, models.RoleSuperAdmin))
}

func TestTransitionEngineErrorNamesContext(t *testing.T) {
	engine := NewTransitionEngine(false)
	_, err := engine.Decide(pendingRequest(), TransitionInput{
		Action:    models.NOCActionSendForCorrection,
		ActorID:   "admin-1",
		ActorRole: models.RoleAdmin,
		Remarks:   "fix the dues",
	})
	require.Error(t, err)
	msg := err.Error()
	for _, part := range []string{"SEND_FOR_CORRECTION", "PENDING", "ADMIN", "WARDEN_VERIFIED", "SENT_FOR_CORRECTION"} {
		assert.True(t, strings.Contains(msg, part), "missing %s in %q", part, msg)
	}
}

func TestTransitionEngineReverifyFlag(t *testing.T) {
	req := pendingRequest()
	req.Status = models.NOCStatusSentForCorrection

	disabled := NewTransitionEngine(false)
	assert.Error(t, disabled.Check(req.Status, models.NOCActionReverify, models.RoleWarden))
	assert.NotContains(t, disabled.AllowedActions(req.Status, models.RoleWarden), models.NOCActionReverify)

	enabled := NewTransitionEngine(true)
	assert.Equal(t, []models.NOCAction{models.NOCActionReverify}, enabled.AllowedActions(req.Status, models.RoleWarden))
}

func TestTransitionEngineWardenRejectRequiresReason(t *testing.T) {
	engine := NewTransitionEngine(false)
	req := pendingRequest()
	_, err := engine.Decide(req, TransitionInput{Action: models.NOCActionWardenReject, ActorID: "warden-1", ActorRole: models.RoleWarden, RejectionReason: "   "})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.NOCStatusPending, req.Status)
}

func TestTransitionEngineApplyDoesNotMutateInput(t *testing.T) {
	engine := NewTransitionEngine(false)
	req := pendingRequest()
	amount := 500.0
	decision, err := engine.Decide(req, TransitionInput{
		Action:    models.NOCActionVerify,
		ActorID:   "warden-1",
		ActorRole: models.RoleWarden,
		Remarks:   " Room cleared ",
		Responses: models.ChecklistResponses{{ChecklistItemID: "item-a", Description: "Room key", Amount: &amount}},
	})
	require.NoError(t, err)

	next := engine.Apply(req, decision)
	assert.Equal(t, models.NOCStatusWardenVerified, next.Status)
	assert.Equal(t, "Room cleared", *next.WardenRemarks)
	assert.Equal(t, "warden-1", *next.VerifiedBy)
	require.Len(t, next.ChecklistResponses, 1)
	assert.Equal(t, 1, next.ChecklistResponses[0].Cycle)

	assert.Equal(t, models.NOCStatusPending, req.Status)
	assert.Nil(t, req.WardenRemarks)
	assert.Empty(t, req.ChecklistResponses)
}

func TestTransitionEngineReverifyAppendsCycle(t *testing.T) {
	engine := NewTransitionEngine(true)
	req := pendingRequest()
	req.Status = models.NOCStatusSentForCorrection
	req.ChecklistResponses = models.ChecklistResponses{{ChecklistItemID: "item-a", Description: "Room key", Cycle: 1}}

	decision, err := engine.Decide(req, TransitionInput{
		Action:    models.NOCActionReverify,
		ActorID:   "warden-1",
		ActorRole: models.RoleWarden,
		Responses: models.ChecklistResponses{{ChecklistItemID: "item-a", Description: "Room key"}},
	})
	require.NoError(t, err)
	next := engine.Apply(req, decision)

	require.Len(t, next.ChecklistResponses, 2)
	assert.Equal(t, 1, next.ChecklistResponses[0].Cycle)
	assert.Equal(t, 2, next.ChecklistResponses[1].Cycle)
	assert.Len(t, req.ChecklistResponses, 1)
}

func TestTransitionEngineHistoryUsesRejectionReason(t *testing.T) {
	engine := NewTransitionEngine(false)
	req := pendingRequest()
	req.Status = models.NOCStatusWardenVerified
	decision, err := engine.Decide(req, TransitionInput{Action: models.NOCActionAdminReject, ActorID: "admin-1", ActorRole: models.RoleAdmin, RejectionReason: "Dues outstanding"})
	require.NoError(t, err)

	next := engine.Apply(req, decision)
	assert.Equal(t, "Dues outstanding", *next.RejectionReason)

	history := engine.History(req.ID, decision)
	assert.Equal(t, models.NOCStatusWardenVerified, *history.FromStatus)
	assert.Equal(t, models.NOCStatusRejected, history.ToStatus)
	assert.Equal(t, "Dues outstanding", *history.Remarks)
}

func TestNormalizeReasonBounds(t *testing.T) {
	cases := map[int]bool{9: false, 10: true, 500: true, 501: false}
	for n, ok := range cases {
		_, err := NormalizeReason("  " + strings.Repeat("é", n) + "  ")
		if ok {
			assert.NoError(t, err, "length %d", n)
		} else {
			assert.Error(t, err, "length %d", n)
		}
	}
}

func TestCheckCreateRoles(t *testing.T) {
	engine := NewTransitionEngine(false)
	_, err := engine.CheckCreate(models.RoleAdmin, "Need to vacate due to job offer")
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	reason, err := engine.CheckCreate(models.RoleWarden, "  Need to vacate due to job offer ")
	require.NoError(t, err)
	assert.Equal(t, "Need to vacate due to job offer", reason)
}
