package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/hris-leave-api/internal/models"
	"github.com/noah-isme/hris-leave-api/internal/repository"
)

type memoryLeaveStore struct {
	mu           sync.Mutex
	seq          int
	items        map[string]models.LeaveRequest
	order        map[string]int
	createErr    error
	listErr      error
	updateErr    error
	beforeUpdate func(store *memoryLeaveStore, id string)
	listDelay    atomic.Int64
}

func newMemoryLeaveStore() *memoryLeaveStore {
	return &memoryLeaveStore{items: make(map[string]models.LeaveRequest), order: make(map[string]int)}
}

func (m *memoryLeaveStore) Create(_ context.Context, req *models.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.seq++
	if req.ID == "" {
		req.ID = fmt.Sprintf("lr-%d", m.seq)
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	m.order[req.ID] = m.seq
	m.items[req.ID] = *req
	return nil
}

func (m *memoryLeaveStore) put(req models.LeaveRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[req.ID] = req
}

func (m *memoryLeaveStore) GetByID(_ context.Context, id string) (*models.LeaveRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &req, nil
}

func (m *memoryLeaveStore) list(match func(models.LeaveRequest) bool) ([]models.LeaveRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.LeaveRequest, 0)
	for _, req := range m.items {
		if match(req) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return m.order[out[i].ID] > m.order[out[j].ID]
	})
	return out, nil
}

func (m *memoryLeaveStore) ListByEmployee(_ context.Context, employeeID string) ([]models.LeaveRequest, error) {
	if delay := time.Duration(m.listDelay.Load()); delay > 0 {
		time.Sleep(delay)
	}
	return m.list(func(req models.LeaveRequest) bool { return req.EmployeeID == employeeID })
}

func (m *memoryLeaveStore) ListPendingByApprover(_ context.Context, approverID string) ([]models.LeaveRequest, error) {
	return m.list(func(req models.LeaveRequest) bool {
		return req.ApproverID != nil && *req.ApproverID == approverID && req.Status == models.LeaveStatusPending
	})
}

func (m *memoryLeaveStore) UpdateDecision(_ context.Context, params repository.UpdateLeaveDecisionParams) error {
	if m.beforeUpdate != nil {
		m.beforeUpdate(m, params.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	req, ok := m.items[params.ID]
	if !ok || req.Status != models.LeaveStatusPending {
		return sql.ErrNoRows
	}
	req.Status = params.Status
	req.UpdatedAt = params.UpdatedAt
	if params.ApproverName != nil {
		req.ApproverName = params.ApproverName
	}
	if params.ApprovedAt != nil {
		req.ApprovedAt = params.ApprovedAt
	}
	if params.RejectedAt != nil {
		req.RejectedAt = params.RejectedAt
	}
	if params.RejectionReason != nil {
		req.RejectionReason = params.RejectionReason
	}
	m.items[params.ID] = req
	return nil
}

func (m *memoryLeaveStore) status(id string) models.LeaveStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Status
}

type stubApproverResolver struct {
	approvers map[models.LeaveType]string
	err       error
	calls     int
}

func (s *stubApproverResolver) ResolveApprover(_ context.Context, _ string, leaveType models.LeaveType) (*string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if id, ok := s.approvers[leaveType]; ok {
		return &id, nil
	}
	return nil, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []models.Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.items = append(r.items, n)
	return nil
}

func (r *recordingNotifier) sent() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Notification, len(r.items))
	copy(out, r.items)
	return out
}

type recordingInvalidator struct {
	employees []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, employeeID string) {
	r.employees = append(r.employees, employeeID)
}

type stubEmployeeDirectory struct {
	profiles map[string]models.EmployeeProfile
	err      error
}

func (s *stubEmployeeDirectory) GetProfile(_ context.Context, id string) (*models.EmployeeProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	profile, ok := s.profiles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &profile, nil
}

type memoryApproverStore struct {
	mu          sync.Mutex
	assignments map[string]models.LeaveApproverAssignment
	upsertErr   error
}

func newMemoryApproverStore() *memoryApproverStore {
	return &memoryApproverStore{assignments: make(map[string]models.LeaveApproverAssignment)}
}

func (m *memoryApproverStore) GetByEmployee(_ context.Context, employeeID string) (*models.LeaveApproverAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	assignment, ok := m.assignments[employeeID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	entries := make([]models.LeaveApproverEntry, len(assignment.Assignments))
	copy(entries, assignment.Assignments)
	assignment.Assignments = entries
	return &assignment, nil
}

func (m *memoryApproverStore) Upsert(_ context.Context, assignment *models.LeaveApproverAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.assignments[assignment.EmployeeID] = *assignment
	return nil
}

type memoryNotificationStore struct {
	mu        sync.Mutex
	items     []models.Notification
	createErr error
	failures  int
}

func (m *memoryNotificationStore) Create(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("store unavailable")
	}
	if m.createErr != nil {
		return m.createErr
	}
	m.items = append(m.items, *n)
	return nil
}

func (m *memoryNotificationStore) ListByRecipient(_ context.Context, userID string, unreadOnly bool, _ int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Notification, 0)
	for i := len(m.items) - 1; i >= 0; i-- {
		n := m.items[i]
		if n.RecipientUserID != userID || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *memoryNotificationStore) MarkRead(_ context.Context, id, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].RecipientUserID == userID {
			if m.items[i].ReadAt == nil {
				m.items[i].ReadAt = &at
			}
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memoryNotificationStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func civil(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func strPtr(s string) *string {
	return &s
}
