// Package reporting aggregates patient progress for the admin dashboard.
package reporting

import (
	"context"
	"time"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/domain/process"
	"github.com/bloodlink/bloodlink/internal/platform/audit"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

const (
	defaultRecent = 10
	// maxRangeDays bounds a daily series request.
	maxRangeDays = 366
)

// ActivitySource supplies the recent-activity feed.
type ActivitySource interface {
	Recent(ctx context.Context, limit int) ([]*audit.Entry, error)
}

type Dashboard struct {
	TotalStaff    int                    `json:"total_staff"`
	TotalPatients int                    `json:"total_patients"`
	ByProcess     map[string]int         `json:"by_process"`
	ByBucket      map[process.Bucket]int `json:"by_bucket"`
	Recent        []*audit.Entry         `json:"recent_activity"`
	GeneratedAt   time.Time              `json:"generated_at"`
}

// DailyPoint counts patients that entered each bucket on one day.
type DailyPoint struct {
	Date      string `json:"date"`
	Pending   int    `json:"pending"`
	Received  int    `json:"received"`
	Testing   int    `json:"testing"`
	Completed int    `json:"completed"`
}

func (p *DailyPoint) add(b process.Bucket, n int) {
	switch b {
	case process.BucketPending:
		p.Pending += n
	case process.BucketReceived:
		p.Received += n
	case process.BucketTesting:
		p.Testing += n
	case process.BucketCompleted:
		p.Completed += n
	}
}

type Service struct {
	store    Store
	activity ActivitySource
}

func NewService(store Store, activity ActivitySource) *Service {
	return &Service{store: store, activity: activity}
}

func (s *Service) Dashboard(ctx context.Context, recent int) (*Dashboard, error) {
	if recent <= 0 {
		recent = defaultRecent
	}
	roles, err := s.store.StaffRoles(ctx)
	if err != nil {
		return nil, apperr.Dependency("load staff roles", err)
	}
	counts, err := s.store.ProcessCounts(ctx)
	if err != nil {
		return nil, apperr.Dependency("count patients", err)
	}

	d := &Dashboard{
		ByProcess:   make(map[string]int, len(process.Ordered)),
		ByBucket:    make(map[process.Bucket]int, len(process.Buckets)),
		GeneratedAt: time.Now().UTC(),
	}
	for _, r := range roles {
		if access.IsValidRole(r) {
			d.TotalStaff++
		}
	}
	for _, p := range process.Ordered {
		d.ByProcess[string(p)] = 0
	}
	for _, b := range process.Buckets {
		d.ByBucket[b] = 0
	}
	for raw, n := range counts {
		d.TotalPatients += n
		d.ByBucket[process.Classify(raw)] += n
		if p, err := process.Parse(raw); err == nil {
			d.ByProcess[string(p)] += n
		}
	}

	if s.activity != nil {
		entries, err := s.activity.Recent(ctx, recent)
		if err != nil {
			return nil, apperr.Dependency("load recent activity", err)
		}
		d.Recent = entries
	}
	if d.Recent == nil {
		d.Recent = []*audit.Entry{}
	}
	return d, nil
}

// Daily returns one point per UTC day in [from, to], inclusive, with days
// without transitions filled in as zeros.
func (s *Service) Daily(ctx context.Context, from, to time.Time) ([]DailyPoint, error) {
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) {
		return nil, apperr.InvalidState("invalid_range", "from (%s) is after to (%s)",
			from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	days := int(to.Sub(from).Hours()/24) + 1
	if days > maxRangeDays {
		return nil, apperr.InvalidState("range_too_long", "range covers %d days; at most %d allowed", days, maxRangeDays)
	}

	rows, err := s.store.DailyTransitions(ctx, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, apperr.Dependency("load daily transitions", err)
	}

	points := make([]DailyPoint, days)
	index := make(map[string]int, days)
	for i := range points {
		date := from.AddDate(0, 0, i).Format(time.DateOnly)
		points[i].Date = date
		index[date] = i
	}
	for _, r := range rows {
		i, ok := index[truncateDay(r.Day).Format(time.DateOnly)]
		if !ok {
			continue
		}
		points[i].add(process.Classify(r.Process), r.Count)
	}
	return points, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
