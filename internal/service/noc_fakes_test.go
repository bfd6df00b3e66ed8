package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/hostel-noc-api/internal/models"
	"github.com/noah-isme/hostel-noc-api/internal/repository"
)

type memoryNOCStore struct {
	mu         sync.Mutex
	seq        int
	requests   map[string]*models.NOCRequest
	history    []models.NOCStatusHistory
	filters    []models.NOCFilter
	applyErr   error
	listErr    error
	applyCalls int
}

func newMemoryNOCStore() *memoryNOCStore {
	return &memoryNOCStore{requests: make(map[string]*models.NOCRequest)}
}

func (m *memoryNOCStore) Create(ctx context.Context, req *models.NOCRequest, history *models.NOCStatusHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.requests {
		if existing.StudentID == req.StudentID && !existing.Status.Terminal() {
			return repository.ErrOpenRequestExists
		}
	}
	m.seq++
	now := time.Now().UTC()
	req.ID = fmt.Sprintf("noc-%d", m.seq)
	req.Version = 1
	req.CreatedAt = now
	req.UpdatedAt = now
	m.requests[req.ID] = req.Clone()
	history.RequestID = req.ID
	m.history = append(m.history, *history)
	return nil
}

func (m *memoryNOCStore) GetByID(ctx context.Context, id string) (*models.NOCRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return req.Clone(), nil
}

func (m *memoryNOCStore) List(ctx context.Context, filter models.NOCFilter) ([]models.NOCRequest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, filter)
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	ids := make([]string, 0, len(m.requests))
	for id := range m.requests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	matched := make([]models.NOCRequest, 0)
	for _, id := range ids {
		req := m.requests[id]
		if filter.StudentID != "" && req.StudentID != filter.StudentID {
			continue
		}
		if len(filter.Status) > 0 {
			found := false
			for _, s := range filter.Status {
				if s == req.Status {
					found = true
				}
			}
			if !found {
				continue
			}
		}
		matched = append(matched, *req.Clone())
	}
	total := len(matched)
	if filter.Offset >= total {
		return []models.NOCRequest{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

func (m *memoryNOCStore) HasOpenRequest(ctx context.Context, studentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.requests {
		if req.StudentID == studentID && !req.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryNOCStore) ApplyTransition(ctx context.Context, next *models.NOCRequest, fromStatus models.NOCStatus, history *models.NOCStatusHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if m.applyErr != nil {
		return m.applyErr
	}
	current, ok := m.requests[next.ID]
	if !ok || current.Version != next.Version || current.Status != fromStatus {
		return repository.ErrStaleVersion
	}
	stored := next.Clone()
	stored.StudentDeactivated = current.StudentDeactivated || next.StudentDeactivated
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	m.requests[next.ID] = stored
	m.history = append(m.history, *history)
	next.Version++
	return nil
}

func (m *memoryNOCStore) DeletePending(ctx context.Context, id string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.requests[id]
	if !ok || current.Version != version || current.Status != models.NOCStatusPending {
		return repository.ErrStaleVersion
	}
	delete(m.requests, id)
	return nil
}

func (m *memoryNOCStore) ListHistory(ctx context.Context, requestID string) ([]models.NOCStatusHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.NOCStatusHistory
	for _, h := range m.history {
		if h.RequestID == requestID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memoryNOCStore) stored(id string) *models.NOCRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req, ok := m.requests[id]; ok {
		return req.Clone()
	}
	return nil
}

type fakeDirectory struct {
	profiles map[string]models.StudentProfile
	cohorts  map[string][]string
	eligible []models.StudentProfile
	filters  []models.EligibleStudentFilter
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		profiles: map[string]models.StudentProfile{
			"student-1": {ID: "student-1", FullName: "Anu Sharma", RollNumber: "R001", Course: "B.Tech", Branch: "CSE", Year: "3", AcademicYear: "2025-26", Hostel: "H1", Gender: "F", Active: true},
			"student-2": {ID: "student-2", FullName: "Ravi Kumar", RollNumber: "R002", Course: "B.Tech", Branch: "ECE", Year: "2", AcademicYear: "2025-26", Hostel: "H2", Gender: "M", Active: true},
			"student-3": {ID: "student-3", FullName: "Inactive Student", RollNumber: "R003", Hostel: "H1", Gender: "F", Active: false},
		},
		cohorts: map[string][]string{
			"warden-1": {"student-1", "student-3"},
			"warden-2": {"student-2"},
		},
	}
}

func (f *fakeDirectory) LookupStudent(ctx context.Context, id string) (*models.StudentProfile, error) {
	profile, ok := f.profiles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &profile, nil
}

func (f *fakeDirectory) ListEligibleStudents(ctx context.Context, filter models.EligibleStudentFilter) ([]models.StudentProfile, error) {
	f.filters = append(f.filters, filter)
	return f.eligible, nil
}

func (f *fakeDirectory) IsWardenFor(ctx context.Context, wardenID, studentID string) (bool, error) {
	for _, id := range f.cohorts[wardenID] {
		if id == studentID {
			return true, nil
		}
	}
	return false, nil
}

type fakeChecklist struct {
	items []models.ChecklistItem
}

func defaultChecklist() *fakeChecklist {
	return &fakeChecklist{items: []models.ChecklistItem{
		{ID: "item-a", Description: "Mess dues", Order: 1, IsActive: true},
		{ID: "item-b", Description: "Room key returned", Order: 2, IsActive: true},
		{ID: "item-old", Description: "Library card", Order: 3, IsActive: false},
	}}
}

func (f *fakeChecklist) List(ctx context.Context, activeOnly bool) ([]models.ChecklistItem, error) {
	out := make([]models.ChecklistItem, 0, len(f.items))
	for _, item := range f.items {
		if activeOnly && !item.IsActive {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeChecklist) Lookup(ctx context.Context, ids []string) ([]models.ChecklistItem, error) {
	out := make([]models.ChecklistItem, 0, len(ids))
	for _, id := range ids {
		for _, item := range f.items {
			if item.ID == id {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

type fakeDeactivator struct {
	mu    sync.Mutex
	calls []string
	err   error
	block bool
}

func (f *fakeDeactivator) DeactivateAccount(ctx context.Context, studentID string) error {
	f.mu.Lock()
	f.calls = append(f.calls, studentID)
	err := f.err
	block := f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeDeactivator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type sentMessage struct {
	recipient string
	msg       models.NotificationMessage
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (r *recordingNotifier) Notify(ctx context.Context, recipientID string, msg models.NotificationMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentMessage{recipient: recipientID, msg: msg})
	return nil
}

func (r *recordingNotifier) recipients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, s := range r.sent {
		out = append(out, s.recipient)
	}
	return out
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.logs))
	for _, l := range r.logs {
		out = append(out, l.Action)
	}
	return out
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

func wardenClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleWarden}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func floatPtr(v float64) *float64 {
	return &v
}

func stringPtr(v string) *string {
	return &v
}
