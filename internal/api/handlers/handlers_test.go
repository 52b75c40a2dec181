package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yoockh/medivoice/internal/call"
	"github.com/yoockh/medivoice/internal/models"
	"github.com/yoockh/medivoice/internal/services"
	"github.com/yoockh/medivoice/internal/utils"
)

type fakeSessions struct {
	started struct {
		user   string
		doctor int
		notes  string
	}
	sess *models.Session
	err  error
}

func (f *fakeSessions) Start(ctx context.Context, userID string, doctorID int, notes string) (*models.Session, error) {
	f.started.user, f.started.doctor, f.started.notes = userID, doctorID, notes
	return f.sess, f.err
}

func (f *fakeSessions) Get(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	return f.sess, f.err
}

func (f *fakeSessions) List(ctx context.Context, userID string, limit int64) ([]models.Session, error) {
	if f.sess == nil {
		return nil, f.err
	}
	return []models.Session{*f.sess}, f.err
}

func (f *fakeSessions) MarkActive(ctx context.Context, sessionID string) error { return f.err }

func (f *fakeSessions) End(ctx context.Context, sessionID string) (*models.Session, error) {
	return f.sess, f.err
}

type fakeCalls struct {
	report *models.Report
	err    error
	ended  []string
}

func (f *fakeCalls) Attach(ctx context.Context, userID, sessionID string, speaker call.AudioSink) (*services.LiveCall, error) {
	return nil, f.err
}

func (f *fakeCalls) End(ctx context.Context, userID, sessionID string) (*models.Report, error) {
	f.ended = append(f.ended, sessionID)
	return f.report, f.err
}

func (f *fakeCalls) Active() int                  { return 0 }
func (f *fakeCalls) Shutdown(ctx context.Context) {}

type fakeReports struct {
	report *models.Report
	rows   []models.ReportRecord
	err    error
	limit  int
	offset int
}

func (f *fakeReports) SaveReport(ctx context.Context, sessionID string, r models.Report, turns []models.Turn, degraded bool) error {
	return f.err
}

func (f *fakeReports) Get(ctx context.Context, userID, sessionID string) (*models.Report, error) {
	return f.report, f.err
}

func (f *fakeReports) History(ctx context.Context, userID string, limit, offset int) ([]models.ReportRecord, error) {
	f.limit, f.offset = limit, offset
	return f.rows, f.err
}

func (f *fakeReports) ListAll(ctx context.Context, limit, offset int) ([]models.ReportRecord, error) {
	f.limit, f.offset = limit, offset
	return f.rows, f.err
}

func asUser(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id != "" {
			c.Set("user_id", id)
		}
		c.Next()
	}
}

func testRouter(user string, sessions *fakeSessions, calls *fakeCalls, reports *fakeReports) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	sh := NewSessionHandler(sessions, calls)
	rh := NewReportHandler(reports)

	r.GET("/doctors", ListDoctors)
	g := r.Group("/", asUser(user))
	g.POST("/session/start", sh.Start)
	g.GET("/sessions", sh.List)
	g.GET("/session/:session_id", sh.Get)
	g.POST("/session/:session_id/end", sh.End)
	g.GET("/session/:session_id/report", rh.Get)
	g.GET("/history", rh.History)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var e APIError
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return e
}

func TestSessionHandler_Start(t *testing.T) {
	doc, _ := models.DoctorByID(3)
	sessions := &fakeSessions{sess: &models.Session{SessionID: "s1", Status: models.SessionCreated, Doctor: doc}}
	r := testRouter("u1", sessions, &fakeCalls{}, &fakeReports{})

	w := do(r, http.MethodPost, "/session/start", `{"doctor_id":3,"notes":"rash on arm"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp StartSessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID != "s1" || resp.Doctor.ID != 3 {
		t.Fatalf("resp=%+v", resp)
	}
	if sessions.started.user != "u1" || sessions.started.doctor != 3 || sessions.started.notes != "rash on arm" {
		t.Fatalf("service called with %+v", sessions.started)
	}
}

func TestSessionHandler_StartBadBody(t *testing.T) {
	r := testRouter("u1", &fakeSessions{}, &fakeCalls{}, &fakeReports{})

	w := do(r, http.MethodPost, "/session/start", `{"notes":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if e := decodeError(t, w); e.Code != utils.CodeInvalidArgument {
		t.Fatalf("code=%s", e.Code)
	}
}

func TestSessionHandler_RequiresUser(t *testing.T) {
	r := testRouter("", &fakeSessions{}, &fakeCalls{}, &fakeReports{})
	w := do(r, http.MethodGet, "/session/s1", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestSessionHandler_GetMapsServiceErrors(t *testing.T) {
	sessions := &fakeSessions{err: utils.E(utils.CodeForbidden, "SessionService.Get", "session belongs to another user", nil)}
	r := testRouter("u1", sessions, &fakeCalls{}, &fakeReports{})

	w := do(r, http.MethodGet, "/session/s1", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status=%d", w.Code)
	}
	if e := decodeError(t, w); e.Message != "session belongs to another user" {
		t.Fatalf("message=%q", e.Message)
	}
}

func TestSessionHandler_EndReturnsReport(t *testing.T) {
	calls := &fakeCalls{report: &models.Report{SessionID: "s1", Summary: "Consultation completed"}}
	r := testRouter("u1", &fakeSessions{}, calls, &fakeReports{})

	w := do(r, http.MethodPost, "/session/s1/end", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp EndSessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != models.SessionEnded || resp.Report == nil || resp.Report.SessionID != "s1" {
		t.Fatalf("resp=%+v", resp)
	}
	if len(calls.ended) != 1 || calls.ended[0] != "s1" {
		t.Fatalf("ended=%v", calls.ended)
	}
}

func TestSessionHandler_EndUpstreamFailure(t *testing.T) {
	calls := &fakeCalls{err: utils.E(utils.CodeBadGateway, "CallService.End", "report generation failed", nil)}
	r := testRouter("u1", &fakeSessions{}, calls, &fakeReports{})

	w := do(r, http.MethodPost, "/session/s1/end", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReportHandler(t *testing.T) {
	reports := &fakeReports{
		report: &models.Report{SessionID: "s1", ChiefComplaint: "chest pain"},
		rows:   []models.ReportRecord{{SessionID: "s1", UserID: "u1"}},
	}
	r := testRouter("u1", &fakeSessions{}, &fakeCalls{}, reports)

	w := do(r, http.MethodGet, "/session/s1/report", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"chiefComplaint":"chest pain"`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/history?limit=5&offset=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history status=%d", w.Code)
	}
	if reports.limit != 5 || reports.offset != 10 {
		t.Fatalf("paging limit=%d offset=%d", reports.limit, reports.offset)
	}

	w = do(r, http.MethodGet, "/history?limit=abc&offset=-3", "")
	if w.Code != http.StatusOK || reports.limit != 0 || reports.offset != 0 {
		t.Fatalf("bad paging should fall back: limit=%d offset=%d", reports.limit, reports.offset)
	}
}

func TestListDoctorsHidesPrompts(t *testing.T) {
	r := testRouter("", &fakeSessions{}, &fakeCalls{}, &fakeReports{})
	w := do(r, http.MethodGet, "/doctors", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body struct {
		Doctors []map[string]any `json:"doctors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Doctors) != len(models.Doctors()) {
		t.Fatalf("doctors=%d", len(body.Doctors))
	}
	if _, ok := body.Doctors[0]["agent_prompt"]; ok {
		t.Fatal("agent prompt leaked")
	}
}

func TestWSHandler_AttachErrorIsSentOverSocket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	calls := &fakeCalls{err: utils.E(utils.CodeConflict, "CallService.Attach", "call already connected", nil)}
	h := NewWSHandler(calls, nil, nil, nil)

	r := gin.New()
	r.GET("/ws/session/:session_id", asUser("u1"), h.SessionWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session/s1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var msg wsErrorMsg
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "error" || msg.Code != utils.CodeConflict || msg.Message != "call already connected" {
		t.Fatalf("msg=%+v", msg)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.medivoice.example/"})

	for _, tc := range []struct {
		origin string
		want   bool
	}{
		{"https://app.medivoice.example", true},
		{"https://evil.example", false},
		{"", true},
	} {
		req := httptest.NewRequest(http.MethodGet, "/ws/session/s1", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		if got := check(req); got != tc.want {
			t.Fatalf("origin %q: got %v want %v", tc.origin, got, tc.want)
		}
	}
	if !originChecker(nil)(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Fatal("empty allow list should accept")
	}
}
