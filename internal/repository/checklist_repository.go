package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/hostel-noc-api/internal/models"
)

// ErrChecklistSetMismatch reports that a reorder did not name exactly the stored items.
var ErrChecklistSetMismatch = errors.New("reorder ids do not match checklist items")

// checklistLockKey scopes the transaction-level advisory lock serialising checklist writes.
const checklistLockKey int64 = 0x4e4f43434b4c

const checklistColumns = `id, description, sort_order, is_active, created_at, updated_at`

// ChecklistRepository persists NOC checklist configuration.
type ChecklistRepository struct {
	db *sqlx.DB
}

// NewChecklistRepository constructs the repository.
func NewChecklistRepository(db *sqlx.DB) *ChecklistRepository {
	return &ChecklistRepository{db: db}
}

// List returns items sorted by order, optionally only active ones.
func (r *ChecklistRepository) List(ctx context.Context, activeOnly bool) ([]models.ChecklistItem, error) {
	query := fmt.Sprintf("SELECT %s FROM noc_checklist_items", checklistColumns)
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY sort_order ASC"
	var items []models.ChecklistItem
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list checklist items: %w", err)
	}
	return items, nil
}

// GetByID fetches a single item.
func (r *ChecklistRepository) GetByID(ctx context.Context, id string) (*models.ChecklistItem, error) {
	query := fmt.Sprintf("SELECT %s FROM noc_checklist_items WHERE id = $1", checklistColumns)
	var item models.ChecklistItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetByIDs returns the stored items among ids. Missing ids are simply absent from the result.
func (r *ChecklistRepository) GetByIDs(ctx context.Context, ids []string) ([]models.ChecklistItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM noc_checklist_items WHERE id = ANY($1) ORDER BY sort_order ASC", checklistColumns)
	var items []models.ChecklistItem
	if err := r.db.SelectContext(ctx, &items, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("get checklist items: %w", err)
	}
	return items, nil
}

// Create appends the item at order = current item count.
func (r *ChecklistRepository) Create(ctx context.Context, item *models.ChecklistItem) error {
	now := time.Now().UTC()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = now
	item.UpdatedAt = now

	return r.withLock(ctx, "create checklist item", func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &item.Order, "SELECT COUNT(*) FROM noc_checklist_items"); err != nil {
			return fmt.Errorf("count checklist items: %w", err)
		}
		const query = `INSERT INTO noc_checklist_items (id, description, sort_order, is_active, created_at, updated_at)
		VALUES (:id, :description, :sort_order, :is_active, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, item); err != nil {
			return fmt.Errorf("insert checklist item: %w", err)
		}
		return nil
	})
}

// Update changes description and active flag, leaving order untouched.
func (r *ChecklistRepository) Update(ctx context.Context, item *models.ChecklistItem) error {
	item.UpdatedAt = time.Now().UTC()
	return r.withLock(ctx, "update checklist item", func(tx *sqlx.Tx) error {
		const query = `UPDATE noc_checklist_items SET description = :description, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`
		result, err := tx.NamedExecContext(ctx, query, item)
		if err != nil {
			return fmt.Errorf("update checklist item: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check checklist update rows: %w", err)
		}
		if rows == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// Delete removes the item and shifts every later item down by one.
func (r *ChecklistRepository) Delete(ctx context.Context, id string) error {
	return r.withLock(ctx, "delete checklist item", func(tx *sqlx.Tx) error {
		var order int
		if err := tx.GetContext(ctx, &order, "DELETE FROM noc_checklist_items WHERE id = $1 RETURNING sort_order", id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sql.ErrNoRows
			}
			return fmt.Errorf("delete checklist item: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE noc_checklist_items SET sort_order = sort_order - 1 WHERE sort_order > $1", order); err != nil {
			return fmt.Errorf("compact checklist order: %w", err)
		}
		return nil
	})
}

// Reorder assigns order = position for every id in a single statement. The ids must be exactly
// the stored set; otherwise ErrChecklistSetMismatch is returned and nothing changes.
func (r *ChecklistRepository) Reorder(ctx context.Context, orderedIDs []string) error {
	return r.withLock(ctx, "reorder checklist", func(tx *sqlx.Tx) error {
		var stored []string
		if err := tx.SelectContext(ctx, &stored, "SELECT id FROM noc_checklist_items"); err != nil {
			return fmt.Errorf("load checklist ids: %w", err)
		}
		if !samePermutation(stored, orderedIDs) {
			return ErrChecklistSetMismatch
		}
		if len(orderedIDs) == 0 {
			return nil
		}

		values := make([]string, len(orderedIDs))
		args := make([]interface{}, 0, len(orderedIDs)*2+1)
		for i, id := range orderedIDs {
			args = append(args, id, i)
			values[i] = fmt.Sprintf("($%d, $%d::int)", len(args)-1, len(args))
		}
		args = append(args, time.Now().UTC())
		query := fmt.Sprintf(`UPDATE noc_checklist_items AS c SET sort_order = v.sort_order, updated_at = $%d
		FROM (VALUES %s) AS v(id, sort_order) WHERE c.id = v.id`, len(args), strings.Join(values, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("reorder checklist: %w", err)
		}
		return nil
	})
}

// withLock runs fn in a transaction holding the checklist advisory lock.
func (r *ChecklistRepository) withLock(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s tx: %w", op, err)
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", checklistLockKey); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("lock checklist: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s tx: %w", op, err)
	}
	return nil
}

func samePermutation(stored, candidate []string) bool {
	if len(stored) != len(candidate) {
		return false
	}
	seen := make(map[string]struct{}, len(stored))
	for _, id := range stored {
		seen[id] = struct{}{}
	}
	for _, id := range candidate {
		if _, ok := seen[id]; !ok {
			return false
		}
		delete(seen, id)
	}
	return len(seen) == 0
}
