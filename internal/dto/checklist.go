package dto

// CreateChecklistItemRequest adds a new checklist item at the end of the list.
type CreateChecklistItemRequest struct {
	Description string `json:"description" validate:"required,max=255"`
}

// UpdateChecklistItemRequest edits an item in place. Order is never changed here.
type UpdateChecklistItemRequest struct {
	Description *string `json:"description" validate:"omitempty,max=255"`
	IsActive    *bool   `json:"isActive"`
}

// ReorderChecklistRequest is a full permutation of checklist item ids.
type ReorderChecklistRequest struct {
	OrderedIDs []string `json:"orderedIds" validate:"required,min=1,dive,required"`
}
