package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/hris-leave-api/internal/models"
	appErrors "github.com/noah-isme/hris-leave-api/pkg/errors"
)

// WorkingDaysBetween counts Monday to Friday dates in [start, end] inclusive.
// No holiday calendar is applied.
func WorkingDaysBetween(start, end time.Time) int {
	s, e := civilDate(start), civilDate(end)
	count := 0
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		if !isWeekend(d) {
			count++
		}
	}
	return count
}

// UsedDays sums approved and pending days of the type that start in the year.
func UsedDays(requests []models.LeaveRequest, leaveType models.LeaveType, year int) int {
	used := 0
	for _, req := range requests {
		if req.LeaveType != leaveType || !req.Status.CountsAgainstBalance() {
			continue
		}
		if req.StartDate.Year() != year {
			continue
		}
		used += req.TotalDays
	}
	return used
}

// Balance computes the allotment usage for one type and year. Remaining never goes below zero.
func Balance(requests []models.LeaveRequest, leaveType models.LeaveType, year int) models.LeaveBalance {
	total := AnnualLimit(leaveType)
	used := UsedDays(requests, leaveType, year)
	remaining := total - used
	if remaining < 0 {
		remaining = 0
	}
	return models.LeaveBalance{Type: leaveType, Total: total, Used: used, Remaining: remaining}
}

// AllBalances computes Balance for every catalog type.
func AllBalances(requests []models.LeaveRequest, year int) map[models.LeaveType]models.LeaveBalance {
	out := make(map[models.LeaveType]models.LeaveBalance, len(leaveCatalog))
	for _, entry := range leaveCatalog {
		out[entry.Type] = Balance(requests, entry.Type, year)
	}
	return out
}

type leaveHistoryReader interface {
	ListByEmployee(ctx context.Context, employeeID string) ([]models.LeaveRequest, error)
}

type balanceCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// LeaveBalanceService serves balance summaries backed by an optional cache.
// Concurrent misses for the same employee and year share one history load.
type LeaveBalanceService struct {
	requests leaveHistoryReader
	cache    balanceCache
	ttl      time.Duration
	logger   *zap.Logger
	loads    singleflight.Group
}

// NewLeaveBalanceService constructs the service. cache may be nil.
func NewLeaveBalanceService(requests leaveHistoryReader, cache balanceCache, ttl time.Duration, logger *zap.Logger) *LeaveBalanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaveBalanceService{requests: requests, cache: cache, ttl: ttl, logger: logger}
}

func balanceCacheKey(employeeID string, year int) string {
	return fmt.Sprintf("leave:balances:%s:%d", employeeID, year)
}

func balanceCachePattern(employeeID string) string {
	return fmt.Sprintf("leave:balances:%s:*", employeeID)
}

// Summary returns all balances of the employee for the year.
func (s *LeaveBalanceService) Summary(ctx context.Context, employeeID string, year int) (map[models.LeaveType]models.LeaveBalance, error) {
	balances, _, err := s.SummaryCached(ctx, employeeID, year)
	return balances, err
}

// SummaryCached is Summary that also reports whether the result came from the cache.
func (s *LeaveBalanceService) SummaryCached(ctx context.Context, employeeID string, year int) (map[models.LeaveType]models.LeaveBalance, bool, error) {
	key := balanceCacheKey(employeeID, year)
	if s.cache != nil {
		var cached map[models.LeaveType]models.LeaveBalance
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("balance cache read failed", zap.String("employee_id", employeeID), zap.Error(err))
		}
		if hit {
			return cached, true, nil
		}
	}

	value, err, _ := s.loads.Do(key, func() (interface{}, error) {
		history, err := s.requests.ListByEmployee(ctx, employeeID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave history")
		}
		balances := AllBalances(history, year)

		if s.cache != nil {
			if err := s.cache.Set(ctx, key, balances, s.ttl); err != nil {
				s.logger.Warn("balance cache write failed", zap.String("employee_id", employeeID), zap.Error(err))
			}
		}
		return balances, nil
	})
	if err != nil {
		return nil, false, err
	}
	return value.(map[models.LeaveType]models.LeaveBalance), false, nil
}

// Invalidate drops every cached year for the employee.
func (s *LeaveBalanceService) Invalidate(ctx context.Context, employeeID string) {
	if s == nil || s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, balanceCachePattern(employeeID)); err != nil {
		s.logger.Warn("balance cache invalidate failed", zap.String("employee_id", employeeID), zap.Error(err))
	}
}
