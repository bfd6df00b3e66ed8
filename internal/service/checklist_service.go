package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-noc-api/internal/dto"
	"github.com/noah-isme/hostel-noc-api/internal/models"
	"github.com/noah-isme/hostel-noc-api/internal/repository"
	appErrors "github.com/noah-isme/hostel-noc-api/pkg/errors"
)

// MaxChecklistDescriptionLength bounds item descriptions in runes.
const MaxChecklistDescriptionLength = 255

const checklistActiveCacheKey = "noc:checklist:active"

type checklistStore interface {
	List(ctx context.Context, activeOnly bool) ([]models.ChecklistItem, error)
	GetByID(ctx context.Context, id string) (*models.ChecklistItem, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.ChecklistItem, error)
	Create(ctx context.Context, item *models.ChecklistItem) error
	Update(ctx context.Context, item *models.ChecklistItem) error
	Delete(ctx context.Context, id string) error
	Reorder(ctx context.Context, orderedIDs []string) error
}

// ChecklistService manages the admin-defined verification checklist. Writes are serialised in
// process and again in the database through an advisory lock.
type ChecklistService struct {
	repo      checklistStore
	cache     *CacheService
	cacheTTL  time.Duration
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	mu        sync.Mutex
}

// ChecklistServiceOption configures the service.
type ChecklistServiceOption func(*ChecklistService)

// WithChecklistCache enables caching of the active checklist.
func WithChecklistCache(cache *CacheService, ttl time.Duration) ChecklistServiceOption {
	return func(s *ChecklistService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithChecklistAudit records checklist changes in the audit trail.
func WithChecklistAudit(audit auditLogger) ChecklistServiceOption {
	return func(s *ChecklistService) {
		s.audit = audit
	}
}

// NewChecklistService constructs the service.
func NewChecklistService(repo checklistStore, validate *validator.Validate, logger *zap.Logger, opts ...ChecklistServiceOption) *ChecklistService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ChecklistService{repo: repo, validator: validate, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// List returns items sorted by order.
func (s *ChecklistService) List(ctx context.Context, activeOnly bool) ([]models.ChecklistItem, error) {
	items, _, err := s.ListCached(ctx, activeOnly)
	return items, err
}

// ListCached is List that also reports whether the result came from cache.
func (s *ChecklistService) ListCached(ctx context.Context, activeOnly bool) ([]models.ChecklistItem, bool, error) {
	if activeOnly {
		var cached []models.ChecklistItem
		if s.cache.Get(ctx, checklistActiveCacheKey, &cached) {
			return cached, true, nil
		}
	}
	items, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list checklist items")
	}
	if items == nil {
		items = []models.ChecklistItem{}
	}
	if activeOnly {
		s.cache.Set(ctx, checklistActiveCacheKey, items, s.cacheTTL)
	}
	return items, false, nil
}

// Get returns a single item.
func (s *ChecklistService) Get(ctx context.Context, id string) (*models.ChecklistItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "checklist item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load checklist item")
	}
	return item, nil
}

// Lookup returns the stored items among ids, including inactive ones.
func (s *ChecklistService) Lookup(ctx context.Context, ids []string) ([]models.ChecklistItem, error) {
	return s.repo.GetByIDs(ctx, ids)
}

// Create appends a new active item.
func (s *ChecklistService) Create(ctx context.Context, req dto.CreateChecklistItemRequest, actorID string) (*models.ChecklistItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	description, err := normalizeDescription(req.Description)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := &models.ChecklistItem{Description: description, IsActive: true}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create checklist item")
	}
	s.afterWrite(ctx, actorID, models.AuditActionChecklistCreate, item.ID)
	return item, nil
}

// Update edits description and/or active flag. Order is never touched.
func (s *ChecklistService) Update(ctx context.Context, id string, req dto.UpdateChecklistItemRequest, actorID string) (*models.ChecklistItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Description != nil {
		description, err := normalizeDescription(*req.Description)
		if err != nil {
			return nil, err
		}
		item.Description = description
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}
	if err := s.repo.Update(ctx, item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "checklist item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update checklist item")
	}
	s.afterWrite(ctx, actorID, models.AuditActionChecklistUpdate, item.ID)
	return item, nil
}

// Delete removes an item and compacts the remaining order values.
func (s *ChecklistService) Delete(ctx context.Context, id, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "checklist item not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete checklist item")
	}
	s.afterWrite(ctx, actorID, models.AuditActionChecklistDelete, id)
	return nil
}

// Reorder assigns order = position. The ids must be a permutation of every stored item.
func (s *ChecklistService) Reorder(ctx context.Context, req dto.ReorderChecklistRequest, actorID string) ([]models.ChecklistItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	seen := make(map[string]struct{}, len(req.OrderedIDs))
	for _, id := range req.OrderedIDs {
		if _, dup := seen[id]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("checklist item %s listed more than once", id))
		}
		seen[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Reorder(ctx, req.OrderedIDs); err != nil {
		if errors.Is(err, repository.ErrChecklistSetMismatch) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "orderedIds must list every checklist item exactly once")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reorder checklist")
	}
	s.afterWrite(ctx, actorID, models.AuditActionChecklistReorder, "")
	items, err := s.repo.List(ctx, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list checklist items")
	}
	return items, nil
}

func (s *ChecklistService) afterWrite(ctx context.Context, actorID, action, itemID string) {
	s.cache.Invalidate(ctx, checklistActiveCacheKey)
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:    action,
		Resource:  "noc_checklist_item",
		IPAddress: "system",
		UserAgent: "checklist-service",
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if itemID != "" {
		log.ResourceID = &itemID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.String("action", action), zap.Error(err))
	}
}

func normalizeDescription(description string) (string, error) {
	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "description is required")
	}
	if utf8.RuneCountInString(trimmed) > MaxChecklistDescriptionLength {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("description must be at most %d characters", MaxChecklistDescriptionLength))
	}
	return trimmed, nil
}
