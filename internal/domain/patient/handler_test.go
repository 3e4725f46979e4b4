package patient

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
	"github.com/bloodlink/bloodlink/internal/platform/spreadsheet"
	"github.com/bloodlink/bloodlink/pkg/pagination"
)

func newRequest(method, target, body string, actor access.Actor) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req.WithContext(auth.WithActor(req.Context(), actor))
}

func expectHTTPStatus(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	if he.Code != code {
		t.Errorf("expected status %d, got %d", code, he.Code)
	}
}

func TestHandler_Create(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/patients",
		`{"hn":"000000001","name":"Somsri","surname":"Jaidee","disease":["asthma"]}`, nurse), rec)
	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var p Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Process != "scheduled" || p.CreatorEmail != nurse.Email {
		t.Errorf("unexpected patient %+v", p)
	}

	c = e.NewContext(newRequest(http.MethodPost, "/patients",
		`{"hn":"000000001","name":"Somsri","surname":"Jaidee"}`, nurse), httptest.NewRecorder())
	expectHTTPStatus(t, h.Create(c), http.StatusConflict)
}

func TestHandler_Get_InvalidHN(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	c := e.NewContext(newRequest(http.MethodGet, "/", "", admin), httptest.NewRecorder())
	c.SetParamNames("hn")
	c.SetParamValues("abc")
	expectHTTPStatus(t, h.Get(c), http.StatusBadRequest)
}

func TestHandler_List_Filters(t *testing.T) {
	f := newFixture()
	f.seed(t, "000000001", admin)
	f.seed(t, "000000002", admin)
	f.repo.items["000000002"].Process = "testing"
	h, e := NewHandler(f.svc), echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/patients?bucket=testing", "", admin), rec)
	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp pagination.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("expected 1 patient in testing bucket, got %d", resp.Total)
	}

	c = e.NewContext(newRequest(http.MethodGet, "/patients?process=unknown", "", admin), httptest.NewRecorder())
	expectHTTPStatus(t, h.List(c), http.StatusBadRequest)
}

func TestHandler_Delete_Forbidden(t *testing.T) {
	f := newFixture()
	f.seed(t, "000000001", admin)
	h, e := NewHandler(f.svc), echo.New()

	c := e.NewContext(newRequest(http.MethodDelete, "/", "", doctor), httptest.NewRecorder())
	c.SetParamNames("hn")
	c.SetParamValues("000000001")
	expectHTTPStatus(t, h.Delete(c), http.StatusForbidden)
}

func TestHandler_Import_JSON(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	rec := httptest.NewRecorder()
	body := `{"patients":[{"row":2,"hn":"000000001","name":"A","surname":"B"},{"row":3,"hn":"1","name":"C","surname":"D"}]}`
	if err := h.Import(e.NewContext(newRequest(http.MethodPost, "/patients/import", body, admin), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res ImportResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Success != 1 || res.Failed != 1 || res.Errors[0].Row != 3 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHandler_Import_Workbook(t *testing.T) {
	var xlsx bytes.Buffer
	err := spreadsheet.Write(&xlsx, spreadsheet.Sheet{
		Name:    "Sheet1",
		Headers: []string{"HN", "ชื่อ", "นามสกุล", "โรคประจำตัว"},
		Rows: [][]any{
			{"000000001", "Somsri", "Jaidee", "asthma, gout"},
			{"000000002", "", "Missing", ""},
		},
	})
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "patients.xlsx")
	part.Write(xlsx.Bytes())
	mw.Close()

	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	req := httptest.NewRequest(http.MethodPost, "/patients/import", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req = req.WithContext(auth.WithActor(req.Context(), admin))
	rec := httptest.NewRecorder()

	if err := h.Import(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res ImportResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Success != 1 || res.Failed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Errors[0].Row != 3 {
		t.Errorf("expected failing spreadsheet row 3, got %d", res.Errors[0].Row)
	}
	if got := f.repo.items["000000001"].Disease; len(got) != 2 {
		t.Errorf("expected 2 diseases, got %v", got)
	}
}

func TestHandler_Export(t *testing.T) {
	f := newFixture()
	f.seed(t, "000000001", admin)
	h, e := NewHandler(f.svc), echo.New()

	rec := httptest.NewRecorder()
	if err := h.Export(e.NewContext(newRequest(http.MethodGet, "/patients/export", "", admin), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != xlsxMIME {
		t.Errorf("unexpected content type %q", ct)
	}

	rows, err := ParseWorkbook(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(rows) != 1 || rows[0].HN != "000000001" || rows[0].Name != "Somsri" {
		t.Errorf("unexpected exported rows %+v", rows)
	}
}

func TestBuildWhere(t *testing.T) {
	where, args := buildWhere(Filter{})
	if where != "" || len(args) != 0 {
		t.Errorf("expected empty clause, got %q %v", where, args)
	}

	where, args = buildWhere(Filter{Bucket: "received", Search: "0001", ResponsibleEmail: "a@b.c"})
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %v", args)
	}
	for _, want := range []string{"process = ANY($1)", "hn LIKE $2", "lower($3)"} {
		if !strings.Contains(where, want) {
			t.Errorf("expected %q in %q", want, where)
		}
	}
	names, _ := args[0].([]string)
	if len(names) != 2 || names[0] != "drawn" || names[1] != "in_transit" {
		t.Errorf("unexpected bucket states %v", args[0])
	}
}
