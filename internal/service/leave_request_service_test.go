package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hris-leave-api/internal/models"
	appErrors "github.com/noah-isme/hris-leave-api/pkg/errors"
	"github.com/noah-isme/hris-leave-api/pkg/pubsub"
)

type lifecycleFixture struct {
	svc       *LeaveRequestService
	store     *memoryLeaveStore
	approvers *stubApproverResolver
	notifier  *recordingNotifier
	balances  *recordingInvalidator
	feed      *pubsub.MemoryFeed
	metrics   *MetricsService
}

func newLifecycleFixture() *lifecycleFixture {
	f := &lifecycleFixture{
		store:     newMemoryLeaveStore(),
		approvers: &stubApproverResolver{approvers: map[models.LeaveType]string{models.LeaveTypeSick: "mgr-1", models.LeaveTypeVacation: "mgr-1"}},
		notifier:  &recordingNotifier{},
		balances:  &recordingInvalidator{},
		feed:      pubsub.NewMemoryFeed(),
		metrics:   NewMetricsService(),
	}
	f.svc = NewLeaveRequestService(f.store, f.approvers, nil,
		WithLeaveNotifier(f.notifier),
		WithLeaveChangeFeed(f.feed),
		WithLeaveBalanceInvalidator(f.balances),
		WithLeaveMetrics(f.metrics),
		WithLeaveClock(fixedClock(time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC))),
	)
	return f
}

func (f *lifecycleFixture) create(t *testing.T, leaveType models.LeaveType) *models.LeaveRequest {
	t.Helper()
	req, err := f.svc.Create(context.Background(), CreateLeaveParams{
		EmployeeID:   "emp-1",
		EmployeeName: "Dana Cruz",
		LeaveType:    leaveType,
		StartDate:    civil(2026, 11, 2),
		EndDate:      civil(2026, 11, 4),
		Reason:       "family trip",
	})
	require.NoError(t, err)
	return req
}

func TestLeaveRequestCreateRoutesToApprover(t *testing.T) {
	f := newLifecycleFixture()
	req := f.create(t, models.LeaveTypeVacation)

	assert.Equal(t, models.LeaveStatusPending, req.Status)
	assert.Equal(t, 3, req.TotalDays)
	require.NotNil(t, req.ApproverID)
	assert.Equal(t, "mgr-1", *req.ApproverID)
	assert.Equal(t, req.CreatedAt, req.UpdatedAt)

	sent := f.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "mgr-1", sent[0].RecipientUserID)
	assert.Equal(t, models.NotificationLeaveRequest, sent[0].Kind)
	assert.Equal(t, req.ID, sent[0].Metadata.LeaveRequestID)
	assert.Equal(t, "emp-1", sent[0].Metadata.EmployeeID)
	assert.Contains(t, sent[0].Message, "Dana Cruz requested Vacation Leave from 2026-11-02 to 2026-11-04")

	assert.Equal(t, []string{"emp-1"}, f.balances.employees)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.transitions.WithLabelValues("create")))
}

func TestLeaveRequestCreateWithoutApproverStillStores(t *testing.T) {
	f := newLifecycleFixture()
	req := f.create(t, models.LeaveTypeBereavement)

	assert.Nil(t, req.ApproverID)
	assert.Empty(t, f.notifier.sent())
	stored, err := f.svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ApproverID)
}

func TestLeaveRequestCreateRejectsMalformedInput(t *testing.T) {
	f := newLifecycleFixture()
	cases := map[string]CreateLeaveParams{
		"unknown type": {EmployeeID: "emp-1", LeaveType: "sabbatical", StartDate: civil(2026, 11, 2), EndDate: civil(2026, 11, 2), Reason: "x"},
		"end before":   {EmployeeID: "emp-1", LeaveType: models.LeaveTypeSick, StartDate: civil(2026, 11, 3), EndDate: civil(2026, 11, 2), Reason: "x"},
		"no reason":    {EmployeeID: "emp-1", LeaveType: models.LeaveTypeSick, StartDate: civil(2026, 11, 2), EndDate: civil(2026, 11, 2), Reason: "  "},
		"no employee":  {LeaveType: models.LeaveTypeSick, StartDate: civil(2026, 11, 2), EndDate: civil(2026, 11, 2), Reason: "x"},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), params)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestLeaveRequestCreateStoreFailure(t *testing.T) {
	f := newLifecycleFixture()
	storeErr := errors.New("connection reset")
	f.store.createErr = storeErr

	_, err := f.svc.Create(context.Background(), CreateLeaveParams{
		EmployeeID: "emp-1", LeaveType: models.LeaveTypeSick, StartDate: civil(2026, 11, 2), EndDate: civil(2026, 11, 2), Reason: "flu",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.Empty(t, f.notifier.sent())
}

func TestLeaveRequestApprove(t *testing.T) {
	f := newLifecycleFixture()
	req := f.create(t, models.LeaveTypeSick)

	approved, err := f.svc.Approve(context.Background(), req.ID, "mgr-1", "Morgan Lee")
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusApproved, approved.Status)
	require.NotNil(t, approved.ApproverName)
	assert.Equal(t, "Morgan Lee", *approved.ApproverName)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, models.LeaveStatusApproved, f.store.status(req.ID))

	sent := f.notifier.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "emp-1", sent[1].RecipientUserID)
	assert.Equal(t, models.NotificationLeaveApproved, sent[1].Kind)
	assert.Contains(t, sent[1].Message, "approved by Morgan Lee")
}

func TestLeaveRequestRejectIncludesReason(t *testing.T) {
	f := newLifecycleFixture()
	req := f.create(t, models.LeaveTypeSick)

	rejected, err := f.svc.Reject(context.Background(), req.ID, "mgr-1", "Morgan Lee", "team offsite that week")
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "team offsite that week", *rejected.RejectionReason)

	sent := f.notifier.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, models.NotificationLeaveRejected, sent[1].Kind)
	assert.True(t, strings.HasSuffix(sent[1].Message, "Reason: team offsite that week"))

	other := f.create(t, models.LeaveTypeSick)
	rejected, err = f.svc.Reject(context.Background(), other.ID, "mgr-1", "Morgan Lee", "")
	require.NoError(t, err)
	assert.Nil(t, rejected.RejectionReason)
	assert.NotContains(t, f.notifier.sent()[3].Message, "Reason:")
}

func TestLeaveRequestTerminalStatesAreFinal(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	rejected := f.create(t, models.LeaveTypeSick)
	_, err := f.svc.Reject(ctx, rejected.ID, "mgr-1", "Morgan Lee", "")
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, rejected.ID, "mgr-1", "Morgan Lee")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "leave request is already rejected", appErr.Message)
	assert.Equal(t, models.LeaveStatusRejected, f.store.status(rejected.ID))

	approved := f.create(t, models.LeaveTypeSick)
	_, err = f.svc.Approve(ctx, approved.ID, "mgr-1", "Morgan Lee")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, approved.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.LeaveStatusApproved, f.store.status(approved.ID))

	cancelled := f.create(t, models.LeaveTypeSick)
	_, err = f.svc.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, cancelled.ID, "mgr-1", "Morgan Lee", "")
	require.Error(t, err)
	assert.Equal(t, models.LeaveStatusCancelled, f.store.status(cancelled.ID))
}

func TestLeaveRequestTransitionUnknownID(t *testing.T) {
	f := newLifecycleFixture()
	_, err := f.svc.Approve(context.Background(), "missing", "mgr-1", "Morgan Lee")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Cancel(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestLeaveRequestConcurrentDecisionLosesWithConflict(t *testing.T) {
	f := newLifecycleFixture()
	req := f.create(t, models.LeaveTypeSick)

	f.store.beforeUpdate = func(store *memoryLeaveStore, id string) {
		current, _ := store.GetByID(context.Background(), id)
		current.Status = models.LeaveStatusRejected
		store.put(*current)
	}
	_, err := f.svc.Approve(context.Background(), req.ID, "mgr-1", "Morgan Lee")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "leave request is already rejected", appErr.Message)
	assert.Len(t, f.notifier.sent(), 1)
}

func TestLeaveRequestNotificationFailureDoesNotFailTransition(t *testing.T) {
	f := newLifecycleFixture()
	f.notifier.err = errors.New("smtp down")

	req := f.create(t, models.LeaveTypeSick)
	approved, err := f.svc.Approve(context.Background(), req.ID, "mgr-1", "Morgan Lee")
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusApproved, approved.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.notifyFailures.WithLabelValues(string(models.NotificationLeaveRequest))))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.notifyFailures.WithLabelValues(string(models.NotificationLeaveApproved))))
}

func TestLeaveRequestListsNewestFirst(t *testing.T) {
	f := newLifecycleFixture()
	first := f.create(t, models.LeaveTypeSick)
	second := f.create(t, models.LeaveTypeVacation)

	mine, err := f.svc.ListByEmployee(context.Background(), "emp-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	_, err = f.svc.Approve(context.Background(), first.ID, "mgr-1", "Morgan Lee")
	require.NoError(t, err)
	pending, err := f.svc.ListPendingForApprover(context.Background(), "mgr-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

type pushRecorder struct {
	mu     sync.Mutex
	pushes [][]models.LeaveRequest
}

func (p *pushRecorder) push(items []models.LeaveRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, items)
}

func (p *pushRecorder) snapshot() [][]models.LeaveRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]models.LeaveRequest, len(p.pushes))
	copy(out, p.pushes)
	return out
}

func (p *pushRecorder) last() []models.LeaveRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pushes) == 0 {
		return nil
	}
	return p.pushes[len(p.pushes)-1]
}

func (p *pushRecorder) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes)
}

func TestLeaveRequestSubscribeEmployee(t *testing.T) {
	f := newLifecycleFixture()
	rec := &pushRecorder{}

	unsubscribe, err := f.svc.SubscribeEmployee(context.Background(), "emp-1", rec.push)
	require.NoError(t, err)
	require.Len(t, rec.snapshot(), 1)
	assert.Empty(t, rec.snapshot()[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.liveQueries))

	req := f.create(t, models.LeaveTypeSick)
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	pushes := rec.snapshot()
	require.Len(t, pushes[1], 1)
	assert.Equal(t, req.ID, pushes[1][0].ID)

	unsubscribe()
	unsubscribe()
	f.create(t, models.LeaveTypeSick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, rec.count())
	assert.Equal(t, 0, f.feed.Subscribers(employeeRequestsTopic("emp-1")))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.liveQueries))
}

func TestLeaveRequestSubscribePendingQueue(t *testing.T) {
	f := newLifecycleFixture()
	rec := &pushRecorder{}

	unsubscribe, err := f.svc.SubscribePendingForApprover(context.Background(), "mgr-1", rec.push)
	require.NoError(t, err)
	defer unsubscribe()
	assert.Empty(t, rec.last())

	req := f.create(t, models.LeaveTypeSick)
	require.Eventually(t, func() bool { return len(rec.last()) == 1 }, time.Second, 5*time.Millisecond)

	_, err = f.svc.Approve(context.Background(), req.ID, "mgr-1", "Morgan Lee")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() == 3 && len(rec.last()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestLeaveRequestApproveDoesNotWaitForWatchers(t *testing.T) {
	f := newLifecycleFixture()
	req := f.create(t, models.LeaveTypeSick)

	recorders := make([]*pushRecorder, 5)
	for i := range recorders {
		recorders[i] = &pushRecorder{}
		unsubscribe, err := f.svc.SubscribeEmployee(context.Background(), "emp-1", recorders[i].push)
		require.NoError(t, err)
		defer unsubscribe()
	}
	f.store.listDelay.Store(int64(100 * time.Millisecond))

	started := time.Now()
	_, err := f.svc.Approve(context.Background(), req.ID, "mgr-1", "Morgan Lee")
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 50*time.Millisecond)

	for _, rec := range recorders {
		rec := rec
		require.Eventually(t, func() bool {
			latest := rec.last()
			return len(latest) == 1 && latest[0].Status == models.LeaveStatusApproved
		}, 2*time.Second, 10*time.Millisecond)
	}
}

func TestLeaveRequestSubscriberMayUnsubscribeFromPush(t *testing.T) {
	f := newLifecycleFixture()
	var (
		mu          sync.Mutex
		pushes      int
		unsubscribe func()
	)
	done := make(chan struct{})
	stop, err := f.svc.SubscribeEmployee(context.Background(), "emp-1", func([]models.LeaveRequest) {
		mu.Lock()
		pushes++
		current := unsubscribe
		mu.Unlock()
		if current != nil {
			current()
			close(done)
		}
	})
	require.NoError(t, err)
	mu.Lock()
	unsubscribe = stop
	mu.Unlock()

	f.create(t, models.LeaveTypeSick)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unsubscribe from inside push did not return")
	}
	f.create(t, models.LeaveTypeSick)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, pushes)
	assert.Equal(t, 0, f.feed.Subscribers(employeeRequestsTopic("emp-1")))
}

func TestLeaveRequestSubscriptionEndsWithContext(t *testing.T) {
	f := newLifecycleFixture()
	rec := &pushRecorder{}
	ctx, cancel := context.WithCancel(context.Background())

	unsubscribe, err := f.svc.SubscribeEmployee(ctx, "emp-1", rec.push)
	require.NoError(t, err)
	defer unsubscribe()

	cancel()
	require.Eventually(t, func() bool {
		return f.feed.Subscribers(employeeRequestsTopic("emp-1")) == 0
	}, time.Second, 5*time.Millisecond)

	f.create(t, models.LeaveTypeSick)
	assert.Len(t, rec.snapshot(), 1)
}

func TestLeaveRequestSubscribeInitialLoadFailure(t *testing.T) {
	f := newLifecycleFixture()
	f.store.listErr = errors.New("db down")

	_, err := f.svc.SubscribeEmployee(context.Background(), "emp-1", func([]models.LeaveRequest) {})
	require.Error(t, err)
	assert.Equal(t, 0, f.feed.Subscribers(employeeRequestsTopic("emp-1")))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.liveQueries))
}
