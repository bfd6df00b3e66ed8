package models

import "time"

// ChecklistItem is an admin-defined physical verification line item. Order is dense and
// zero-based across active and inactive items.
type ChecklistItem struct {
	ID          string    `db:"id" json:"id"`
	Description string    `db:"description" json:"description"`
	Order       int       `db:"sort_order" json:"order"`
	IsActive    bool      `db:"is_active" json:"isActive"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// ChecklistItemPatch carries optional in-place edits.
type ChecklistItemPatch struct {
	Description *string
	IsActive    *bool
}
