package patient

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/domain/process"
	"github.com/bloodlink/bloodlink/internal/platform/cache"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

// -- Mock repositories --

type mockRepo struct {
	items map[string]*Patient
	lists int
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[string]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	if _, ok := m.items[p.HN]; ok {
		return DuplicateHN(p.HN)
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	m.items[p.HN] = &cp
	return nil
}

func (m *mockRepo) GetByHN(_ context.Context, hn string) (*Patient, error) {
	p, ok := m.items[hn]
	if !ok {
		return nil, apperr.NotFound("patient_not_found", "patient HN %s not found", hn)
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetForUpdate(ctx context.Context, hn string) (*Patient, error) {
	return m.GetByHN(ctx, hn)
}

func (m *mockRepo) Exists(_ context.Context, hn string) (bool, error) {
	_, ok := m.items[hn]
	return ok, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.items[p.HN]; !ok {
		return apperr.NotFound("patient_not_found", "patient HN %s not found", p.HN)
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.items[p.HN] = &cp
	return nil
}

func (m *mockRepo) SetProcess(ctx context.Context, p *Patient) error {
	return m.Update(ctx, p)
}

func (m *mockRepo) Delete(_ context.Context, hn string) error {
	if _, ok := m.items[hn]; !ok {
		return apperr.NotFound("patient_not_found", "patient HN %s not found", hn)
	}
	delete(m.items, hn)
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	m.lists++
	var all []*Patient
	for _, p := range m.items {
		if f.Process != "" && p.Process != f.Process {
			continue
		}
		if f.Bucket != "" && process.Classify(string(p.Process)) != f.Bucket {
			continue
		}
		if f.Search != "" && !strings.Contains(p.HN+p.Name+p.Surname, f.Search) {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].HN < all[j].HN })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

type mockLabs struct {
	items []*LabTest
}

func (m *mockLabs) Append(_ context.Context, t *LabTest) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.items = append(m.items, t)
	return nil
}

func (m *mockLabs) GetByID(_ context.Context, id uuid.UUID) (*LabTest, error) {
	for _, t := range m.items {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, apperr.NotFound("lab_test_not_found", "lab test %s not found", id)
}

func (m *mockLabs) Update(_ context.Context, t *LabTest) error {
	t.UpdatedAt = time.Now()
	return nil
}

func (m *mockLabs) ListByHN(_ context.Context, hn string) ([]*LabTest, error) {
	var out []*LabTest
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].HN == hn {
			out = append(out, m.items[i])
		}
	}
	return out, nil
}

type mockEvents struct {
	items []*Event
}

func (m *mockEvents) Append(_ context.Context, e *Event) error {
	e.ID = uuid.New()
	m.items = append(m.items, e)
	return nil
}

func (m *mockEvents) ListByHN(_ context.Context, hn string) ([]*Event, error) {
	var out []*Event
	for _, e := range m.items {
		if e.HN == hn {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockResponsibility map[string][]string

func (m mockResponsibility) IsResponsible(_ context.Context, hn, email string) (bool, error) {
	return containsFold(m[hn], email), nil
}

func (m mockResponsibility) ResponsibleEmails(_ context.Context, hn string) ([]string, error) {
	return m[hn], nil
}

type memKV struct {
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memKV) DeletePrefix(_ context.Context, prefix string) error {
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *memKV) Ping(context.Context) error { return nil }

type fixture struct {
	svc    *Service
	repo   *mockRepo
	labs   *mockLabs
	events *mockEvents
	resp   mockResponsibility
	kv     *memKV
}

func newFixture() *fixture {
	f := &fixture{
		repo:   newMockRepo(),
		labs:   &mockLabs{},
		events: &mockEvents{},
		resp:   mockResponsibility{},
		kv:     newMemKV(),
	}
	f.svc = NewService(f.repo, f.labs, f.events, f.resp, f.kv, time.Minute, zerolog.Nop())
	return f
}

var (
	admin  = access.Actor{Email: "admin@hospital.test", Role: "admin"}
	doctor = access.Actor{Email: "doc@hospital.test", Role: "แพทย์"}
	nurse  = access.Actor{Email: "nurse@hospital.test", Role: "พยาบาล"}
	lab    = access.Actor{Email: "lab@hospital.test", Role: "lab"}
)

func (f *fixture) seed(t *testing.T, hn string, by access.Actor) *Patient {
	t.Helper()
	p := &Patient{HN: hn, Name: "Somsri", Surname: "Jaidee"}
	if err := f.svc.Create(context.Background(), p, by); err != nil {
		t.Fatalf("seed %s: %v", hn, err)
	}
	return p
}

// -- Tests --

func TestCreate_Defaults(t *testing.T) {
	f := newFixture()
	p := f.seed(t, "000000001", doctor)

	if p.Process != process.Scheduled {
		t.Errorf("expected process scheduled, got %s", p.Process)
	}
	if p.Status != StatusActive {
		t.Errorf("expected status active, got %s", p.Status)
	}
	if p.Gender != "ไม่ระบุ" || p.BloodType != "ไม่ระบุ" {
		t.Errorf("expected unspecified gender and blood type, got %q %q", p.Gender, p.BloodType)
	}
	if p.CreatorEmail != doctor.Email {
		t.Errorf("expected creator %s, got %s", doctor.Email, p.CreatorEmail)
	}
	if p.Version != 1 {
		t.Errorf("expected version 1, got %d", p.Version)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tests := []struct {
		name  string
		p     Patient
		actor access.Actor
		kind  apperr.Kind
	}{
		{"lab cannot add", Patient{HN: "000000001", Name: "A", Surname: "B"}, lab, apperr.KindForbidden},
		{"short hn", Patient{HN: "12345", Name: "A", Surname: "B"}, admin, apperr.KindInvalidState},
		{"letters in hn", Patient{HN: "12345678x", Name: "A", Surname: "B"}, admin, apperr.KindInvalidState},
		{"missing surname", Patient{HN: "000000002", Name: "A"}, admin, apperr.KindInvalidState},
		{"bad status", Patient{HN: "000000003", Name: "A", Surname: "B", Status: "gone"}, admin, apperr.KindInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			err := f.svc.Create(ctx, &p, tt.actor)
			if !apperr.IsKind(err, tt.kind) {
				t.Errorf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestCreate_DuplicateHN(t *testing.T) {
	f := newFixture()
	f.seed(t, "000000001", admin)

	err := f.svc.Create(context.Background(), &Patient{HN: "000000001", Name: "X", Surname: "Y"}, admin)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "HN 000000001 มีในระบบแล้ว") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestGet_FillsResponsible(t *testing.T) {
	f := newFixture()
	f.seed(t, "000000001", admin)
	f.resp["000000001"] = []string{nurse.Email}

	p, err := f.svc.Get(context.Background(), "000000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.ResponsibleEmails) != 1 || p.ResponsibleEmails[0] != nurse.Email {
		t.Errorf("unexpected responsible %v", p.ResponsibleEmails)
	}
}

func TestList_CachesUnfilteredPage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seed(t, "000000001", admin)
	f.seed(t, "000000002", admin)

	for i := 0; i < 3; i++ {
		items, total, err := f.svc.List(ctx, Filter{}, 20, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if total != 2 || len(items) != 2 {
			t.Fatalf("expected 2 patients, got %d/%d", len(items), total)
		}
	}
	if f.repo.lists != 1 {
		t.Errorf("expected 1 repository read, got %d", f.repo.lists)
	}

	// A write drops the cached page.
	f.seed(t, "000000003", admin)
	_, total, _ := f.svc.List(ctx, Filter{}, 20, 0)
	if total != 3 {
		t.Errorf("expected fresh total 3, got %d", total)
	}
	if f.repo.lists != 2 {
		t.Errorf("expected cache miss after write, got %d reads", f.repo.lists)
	}
}

func TestList_FilterBypassesCache(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seed(t, "000000001", admin)

	for i := 0; i < 2; i++ {
		if _, _, err := f.svc.List(ctx, Filter{Bucket: process.BucketPending}, 20, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if f.repo.lists != 2 {
		t.Errorf("expected filtered lists to hit the repository, got %d reads", f.repo.lists)
	}
	if len(f.kv.data) != 0 {
		t.Errorf("expected nothing cached, got %v", f.kv.data)
	}
}

func TestUpdate_Permissions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seed(t, "000000001", admin)
	name := "Somying"

	if _, err := f.svc.Update(ctx, "000000001", Update{Name: &name}, nurse); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for unassigned nurse, got %v", err)
	}

	f.resp["000000001"] = []string{nurse.Email}
	p, err := f.svc.Update(ctx, "000000001", Update{Name: &name}, nurse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != name {
		t.Errorf("expected name %s, got %s", name, p.Name)
	}

	if _, err := f.svc.Update(ctx, "000000001", Update{Name: &name}, lab); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden for lab, got %v", err)
	}
}

func TestUpdate_InvalidAge(t *testing.T) {
	f := newFixture()
	f.seed(t, "000000001", admin)
	age := -3
	if _, err := f.svc.Update(context.Background(), "000000001", Update{Age: &age}, admin); !apperr.IsKind(err, apperr.KindInvalidState) {
		t.Errorf("expected invalid state, got %v", err)
	}
}

func TestDelete_Owner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seed(t, "000000001", doctor)
	f.seed(t, "000000002", admin)

	if err := f.svc.Delete(ctx, "000000002", doctor); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}
	if err := f.svc.Delete(ctx, "000000001", doctor); err != nil {
		t.Fatalf("creator should delete: %v", err)
	}

	f.resp["000000002"] = []string{nurse.Email}
	if err := f.svc.Delete(ctx, "000000002", nurse); err != nil {
		t.Fatalf("responsible nurse should delete: %v", err)
	}
	if len(f.repo.items) != 0 {
		t.Errorf("expected no patients left, got %d", len(f.repo.items))
	}
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture()
	if err := f.svc.Delete(context.Background(), "999999999", admin); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRecordLabResult(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seed(t, "000000001", admin)
	results := map[string]Result{"wbc": {Value: "7.2"}, "hemoglobin": {Value: "13.1", Note: "normal"}}

	if _, err := f.svc.RecordLabResult(ctx, "000000001", results, "", doctor); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for doctor, got %v", err)
	}
	if _, err := f.svc.RecordLabResult(ctx, "000000001", map[string]Result{"glucose": {Value: "90"}}, "", lab); !apperr.IsKind(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid analyte, got %v", err)
	}
	if _, err := f.svc.RecordLabResult(ctx, "999999999", results, "", lab); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	rec, err := f.svc.RecordLabResult(ctx, "000000001", results, "first visit", lab)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.RecordedBy != lab.Email || rec.Note != "first visit" {
		t.Errorf("unexpected record %+v", rec)
	}

	note := "rechecked"
	updated, err := f.svc.UpdateLabResult(ctx, rec.ID, map[string]Result{"wbc": {Value: "7.5"}}, &note, lab)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Results["wbc"].Value != "7.5" || updated.Results["hemoglobin"].Value != "13.1" {
		t.Errorf("expected merged results, got %+v", updated.Results)
	}
	if updated.Note != "rechecked" {
		t.Errorf("expected note updated, got %q", updated.Note)
	}

	tests, err := f.svc.LabTests(ctx, "000000001")
	if err != nil || len(tests) != 1 {
		t.Fatalf("expected 1 lab test, got %d (%v)", len(tests), err)
	}
}

func TestImport(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seed(t, "000000009", admin)

	rows := []ImportRow{
		{Row: 2, HN: "000000001", Name: "A", Surname: "B", Disease: "เบาหวาน, ความดัน", Allergy: "-"},
		{Row: 3, HN: "", Name: "A", Surname: "B"},
		{Row: 4, HN: "000000009", Name: "C", Surname: "D"},
		{Row: 5, HN: "12ab", Name: "E", Surname: "F"},
		{Row: 6, HN: "000000002", Name: "G", Surname: "H", Age: "41", BloodType: "O"},
	}
	res, err := f.svc.Import(ctx, rows, nurse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success != 2 || res.Failed != 3 {
		t.Fatalf("expected 2 ok / 3 failed, got %+v", res)
	}
	if res.Errors[0].Row != 3 || res.Errors[1].Row != 4 || res.Errors[2].Row != 5 {
		t.Errorf("unexpected error rows %+v", res.Errors)
	}
	if res.Errors[1].Message != "HN 000000009 มีในระบบแล้ว" {
		t.Errorf("unexpected duplicate message %q", res.Errors[1].Message)
	}

	p := f.repo.items["000000001"]
	if len(p.Disease) != 2 || p.Disease[1] != "ความดัน" {
		t.Errorf("expected split diseases, got %v", p.Disease)
	}
	if len(p.Allergies) != 0 {
		t.Errorf("expected '-' to mean no allergies, got %v", p.Allergies)
	}
	if p.Gender != "ไม่ระบุ" || p.Process != process.Scheduled {
		t.Errorf("expected defaults, got %+v", p)
	}
	if f.repo.items["000000002"].Age != 41 {
		t.Errorf("expected age 41, got %d", f.repo.items["000000002"].Age)
	}
}

func TestImport_Rejected(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Import(context.Background(), []ImportRow{{HN: "000000001"}}, lab); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.Import(context.Background(), nil, admin); !apperr.IsKind(err, apperr.KindInvalidState) {
		t.Errorf("expected invalid state for empty import, got %v", err)
	}
}
