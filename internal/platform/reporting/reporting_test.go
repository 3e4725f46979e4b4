package reporting

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bloodlink/bloodlink/internal/domain/process"
	"github.com/bloodlink/bloodlink/internal/platform/audit"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

type fakeStore struct {
	roles  []string
	counts map[string]int
	daily  []TransitionCount
	err    error

	gotFrom, gotTo time.Time
}

func (s *fakeStore) StaffRoles(context.Context) ([]string, error) { return s.roles, s.err }
func (s *fakeStore) ProcessCounts(context.Context) (map[string]int, error) {
	return s.counts, s.err
}
func (s *fakeStore) DailyTransitions(_ context.Context, from, to time.Time) ([]TransitionCount, error) {
	s.gotFrom, s.gotTo = from, to
	return s.daily, s.err
}

type fakeActivity struct{ entries []*audit.Entry }

func (a *fakeActivity) Recent(_ context.Context, limit int) ([]*audit.Entry, error) {
	if limit < len(a.entries) {
		return a.entries[:limit], nil
	}
	return a.entries, nil
}

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func newTestService() (*Service, *fakeStore) {
	store := &fakeStore{
		roles: []string{"แพทย์", "พยาบาลวิชาชีพ", "lab technician", "admin", "guest", ""},
		counts: map[string]int{
			"scheduled":  3,
			"drawn":      2,
			"in_transit": 1,
			"testing":    4,
			"completed":  5,
			"รายงานผล":   2,
			"":           1,
		},
	}
	activity := &fakeActivity{entries: []*audit.Entry{
		{Action: "transition"}, {Action: "create"}, {Action: "delete"},
	}}
	return NewService(store, activity), store
}

func TestDashboard(t *testing.T) {
	svc, _ := newTestService()
	d, err := svc.Dashboard(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.TotalStaff != 4 {
		t.Errorf("expected 4 staff with valid roles, got %d", d.TotalStaff)
	}
	if d.TotalPatients != 18 {
		t.Errorf("expected 18 patients, got %d", d.TotalPatients)
	}
	if d.ByProcess["testing"] != 4 || d.ByProcess["completed"] != 5 {
		t.Errorf("unexpected process counts %v", d.ByProcess)
	}
	want := map[process.Bucket]int{
		process.BucketPending:   4,
		process.BucketReceived:  3,
		process.BucketTesting:   4,
		process.BucketCompleted: 7,
	}
	for b, n := range want {
		if d.ByBucket[b] != n {
			t.Errorf("bucket %s = %d, want %d", b, d.ByBucket[b], n)
		}
	}
	if len(d.Recent) != 2 {
		t.Errorf("expected 2 recent entries, got %d", len(d.Recent))
	}
}

func TestDashboard_StoreError(t *testing.T) {
	svc, store := newTestService()
	store.err = errors.New("connection refused")
	_, err := svc.Dashboard(context.Background(), 0)
	if !apperr.IsKind(err, apperr.KindDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestDaily_FillsGapsAndBuckets(t *testing.T) {
	svc, store := newTestService()
	store.daily = []TransitionCount{
		{Day: day("2025-03-01"), Process: "drawn", Count: 2},
		{Day: day("2025-03-01"), Process: "in_transit", Count: 1},
		{Day: day("2025-03-03"), Process: "completed", Count: 4},
		{Day: day("2025-03-03"), Process: "รายงานผล", Count: 1},
		{Day: day("2025-02-01"), Process: "testing", Count: 9},
	}

	points, err := svc.Daily(context.Background(), day("2025-03-01"), day("2025-03-03"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 days, got %d", len(points))
	}
	if points[0].Date != "2025-03-01" || points[0].Received != 3 {
		t.Errorf("unexpected first day %+v", points[0])
	}
	if points[1] != (DailyPoint{Date: "2025-03-02"}) {
		t.Errorf("expected empty second day, got %+v", points[1])
	}
	if points[2].Completed != 5 || points[2].Testing != 0 {
		t.Errorf("unexpected third day %+v", points[2])
	}
	if !store.gotTo.Equal(day("2025-03-04")) {
		t.Errorf("expected exclusive upper bound 2025-03-04, got %s", store.gotTo)
	}
}

func TestDaily_InvalidRanges(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.Daily(ctx, day("2025-03-05"), day("2025-03-01")); !apperr.IsKind(err, apperr.KindInvalidState) {
		t.Errorf("expected invalid state for reversed range, got %v", err)
	}
	if _, err := svc.Daily(ctx, day("2023-01-01"), day("2025-01-01")); !apperr.IsKind(err, apperr.KindInvalidState) {
		t.Errorf("expected invalid state for long range, got %v", err)
	}
}

func TestWriteWorkbook(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	d, err := svc.Dashboard(ctx, 0)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	points := []DailyPoint{{Date: "2025-03-01", Received: 3}, {Date: "2025-03-02"}}

	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, d, points); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Daily")
	if err != nil {
		t.Fatalf("read daily sheet: %v", err)
	}
	if len(rows) != 3 || rows[1][0] != "2025-03-01" || rows[1][2] != "3" {
		t.Errorf("unexpected daily rows %v", rows)
	}
	summary, err := f.GetRows("Summary")
	if err != nil {
		t.Fatalf("read summary sheet: %v", err)
	}
	if summary[2][0] != "ผู้ป่วยทั้งหมด" || summary[2][1] != "18" {
		t.Errorf("unexpected summary row %v", summary[2])
	}
}
