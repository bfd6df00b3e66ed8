package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/hostel-noc-api/internal/dto"
	"github.com/noah-isme/hostel-noc-api/internal/models"
	appErrors "github.com/noah-isme/hostel-noc-api/pkg/errors"
)

type checklistLookup interface {
	List(ctx context.Context, activeOnly bool) ([]models.ChecklistItem, error)
	Lookup(ctx context.Context, ids []string) ([]models.ChecklistItem, error)
}

// VerificationInput is a warden's verification of a request.
type VerificationInput struct {
	ActorID   string
	ActorRole models.UserRole
	Responses []dto.ChecklistResponseInput
	Remarks   string
	Reverify  bool
}

// VerificationRecorder validates checklist answers against the current checklist and turns them
// into an immutable snapshot for the VERIFY or REVERIFY transition.
type VerificationRecorder struct {
	checklist checklistLookup
	engine    *TransitionEngine
}

// NewVerificationRecorder constructs the recorder.
func NewVerificationRecorder(checklist checklistLookup, engine *TransitionEngine) *VerificationRecorder {
	return &VerificationRecorder{checklist: checklist, engine: engine}
}

// Record returns the accepted decision for the verification. Nothing is persisted.
func (v *VerificationRecorder) Record(ctx context.Context, req *models.NOCRequest, input VerificationInput) (*TransitionDecision, error) {
	action := models.NOCActionVerify
	if input.Reverify {
		action = models.NOCActionReverify
	}
	if err := v.engine.Check(req.Status, action, input.ActorRole); err != nil {
		return nil, err
	}
	snapshot, err := v.snapshot(ctx, input.Responses)
	if err != nil {
		return nil, err
	}
	return v.engine.Decide(req, TransitionInput{
		Action:    action,
		ActorID:   input.ActorID,
		ActorRole: input.ActorRole,
		Remarks:   input.Remarks,
		Responses: snapshot,
	})
}

func (v *VerificationRecorder) snapshot(ctx context.Context, responses []dto.ChecklistResponseInput) (models.ChecklistResponses, error) {
	if len(responses) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "checklistResponses are required")
	}
	ids := make([]string, 0, len(responses))
	seen := make(map[string]struct{}, len(responses))
	for _, r := range responses {
		id := strings.TrimSpace(r.ChecklistItemID)
		if id == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "checklistItemId is required")
		}
		if _, dup := seen[id]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("checklist item %s answered more than once", id))
		}
		if r.Amount != nil && *r.Amount < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("amount for checklist item %s must not be negative", id))
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	items, err := v.checklist.Lookup(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load checklist items")
	}
	byID := make(map[string]models.ChecklistItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("checklist item %s does not exist", id))
		}
	}

	active, err := v.checklist.List(ctx, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active checklist")
	}
	for _, item := range active {
		if _, ok := seen[item.ID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("checklist item %q is not answered", item.Description))
		}
	}

	out := make(models.ChecklistResponses, 0, len(responses))
	for _, r := range responses {
		id := strings.TrimSpace(r.ChecklistItemID)
		resp := models.ChecklistResponse{
			ChecklistItemID: id,
			Description:     byID[id].Description,
		}
		if r.Amount != nil {
			amount := *r.Amount
			resp.Amount = &amount
		}
		if r.Remarks != nil {
			resp.Remarks = optionalString(*r.Remarks)
		}
		out = append(out, resp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return byID[out[i].ChecklistItemID].Order < byID[out[j].ChecklistItemID].Order
	})
	return out, nil
}
