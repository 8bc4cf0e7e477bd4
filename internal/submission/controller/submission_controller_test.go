package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"coderank/internal/execution/runner"
	"coderank/internal/gateway/middleware"
	"coderank/internal/submission/model"
	"coderank/internal/submission/repository"
	"coderank/internal/submission/service"
	appErr "coderank/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSubmissions struct {
	mu        sync.Mutex
	submitIn  service.SubmitInput
	submitOut *model.Submission
	submitErr error
	records   map[string][]*model.Submission
	gets      map[string]int
	listArgs  [3]interface{}
	sinceArg  time.Time
}

func (f *fakeSubmissions) Submit(_ context.Context, in service.SubmitInput) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitIn = in
	return f.submitOut, f.submitErr
}

// Get walks through the recorded versions of id, one per call, then repeats the last.
func (f *fakeSubmissions) Get(_ context.Context, id, requester string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	versions, ok := f.records[id]
	if !ok {
		return nil, appErr.New(appErr.SubmissionNotFound)
	}
	if versions[0].OwnerID != requester {
		return nil, appErr.New(appErr.SubmissionAccessDenied)
	}
	if f.gets == nil {
		f.gets = map[string]int{}
	}
	i := f.gets[id]
	if i >= len(versions) {
		i = len(versions) - 1
	}
	f.gets[id]++
	return versions[i].Clone(), nil
}

func (f *fakeSubmissions) List(_ context.Context, owner string, page, size int) (repository.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listArgs = [3]interface{}{owner, page, size}
	items := []*model.Submission{}
	for _, versions := range f.records {
		items = append(items, versions[len(versions)-1])
	}
	if size == 0 {
		size = 10
	}
	return repository.Page{Items: items, Total: 21, Page: page, Size: size}, nil
}

func (f *fakeSubmissions) CountSince(_ context.Context, _ string, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinceArg = since
	return 3, nil
}

func (f *fakeSubmissions) Languages(context.Context) []service.LanguageInfo {
	return []service.LanguageInfo{
		{ID: "PYTHON", Name: "Python", Availability: runner.Availability{Available: true, Details: "Python 3.12.1"}},
		{ID: "JAVA", Name: "Java", Availability: runner.Availability{Available: false, Details: "javac not found"}},
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(fake *fakeSubmissions) *gin.Engine {
	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(nil, middleware.AuthPolicy{Mode: "header"}))
	NewSubmissionController(fake, StreamConfig{PollInterval: 5 * time.Millisecond}).RegisterRoutes(api)
	return r
}

func doRequest(t *testing.T, r http.Handler, method, path, body, owner string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set(middleware.UserIDHeader, owner)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response failed: %v (%s)", err, w.Body.String())
	}
	return w, env
}

func pending(id, owner string) *model.Submission {
	return model.NewPending(id, owner, "PYTHON", "print(1)", time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
}

func completed(t *testing.T, id, owner string) *model.Submission {
	t.Helper()
	s := pending(id, owner)
	_ = s.Start()
	if err := s.Complete(model.Outcome{Status: model.StatusCompleted, Output: "1\n", ExecutionTimeMs: 8}, time.Date(2026, 7, 1, 0, 0, 1, 0, time.UTC)); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	return s
}

func TestExecuteAccepted(t *testing.T) {
	fake := &fakeSubmissions{submitOut: pending("s1", "alice")}
	r := newTestRouter(fake)

	w, env := doRequest(t, r, http.MethodPost, "/api/v1/execute", `{"language":"python","code":"print(1)","input":"5"}`, "alice")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	var view SubmissionView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view failed: %v", err)
	}
	if view.SubmissionID != "s1" || view.Status != "PENDING" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if fake.submitIn.OwnerID != "alice" || fake.submitIn.Language != "python" || fake.submitIn.Stdin != "5" {
		t.Fatalf("unexpected submit input: %+v", fake.submitIn)
	}
}

func TestExecuteRejectedSourceIsOK(t *testing.T) {
	rejected := pending("s2", "alice")
	_ = rejected.Reject("Code cannot be empty", time.Now())
	r := newTestRouter(&fakeSubmissions{submitOut: rejected})

	w, env := doRequest(t, r, http.MethodPost, "/api/v1/execute", `{"language":"python","code":""}`, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var view SubmissionView
	_ = json.Unmarshal(env.Data, &view)
	if view.Status != "SECURITY_VIOLATION" || view.ErrorMessage != "Code cannot be empty" {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		owner string
		err   error
		want  int
	}{
		{name: "malformed json", body: `{`, owner: "alice", want: http.StatusBadRequest},
		{name: "missing language", body: `{"code":"print(1)"}`, owner: "alice", want: http.StatusBadRequest},
		{name: "anonymous", body: `{"language":"python","code":"x"}`, want: http.StatusUnauthorized},
		{name: "queue full", body: `{"language":"python","code":"x"}`, owner: "alice", err: appErr.New(appErr.JudgeQueueFull), want: http.StatusServiceUnavailable},
		{name: "rate limited", body: `{"language":"python","code":"x"}`, owner: "alice", err: appErr.New(appErr.TooManyRequests), want: http.StatusTooManyRequests},
		{name: "unsupported language", body: `{"language":"cobol","code":"x"}`, owner: "alice", err: appErr.New(appErr.LanguageNotSupported), want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newTestRouter(&fakeSubmissions{submitErr: tt.err})
			w, _ := doRequest(t, r, http.MethodPost, "/api/v1/execute", tt.body, tt.owner)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestGetSubmission(t *testing.T) {
	fake := &fakeSubmissions{records: map[string][]*model.Submission{"s1": {completed(t, "s1", "alice")}}}
	r := newTestRouter(fake)

	w, env := doRequest(t, r, http.MethodGet, "/api/v1/submissions/s1", "", "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var view SubmissionView
	_ = json.Unmarshal(env.Data, &view)
	if view.Output != "1\n" || view.SourceCode != "print(1)" || view.CompletedAt == nil {
		t.Fatalf("expected full terminal view, got %+v", view)
	}

	if w, _ := doRequest(t, r, http.MethodGet, "/api/v1/submissions/s1", "", "bob"); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for other owner, got %d", w.Code)
	}
	if w, _ := doRequest(t, r, http.MethodGet, "/api/v1/submissions/nope", "", "alice"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListSubmissions(t *testing.T) {
	fake := &fakeSubmissions{records: map[string][]*model.Submission{"s1": {pending("s1", "alice")}}}
	r := newTestRouter(fake)

	w, env := doRequest(t, r, http.MethodGet, "/api/v1/submissions?page=2&size=5", "", "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if fake.listArgs != [3]interface{}{"alice", 2, 5} {
		t.Fatalf("unexpected list args: %v", fake.listArgs)
	}
	var page struct {
		Items      []SubmissionView `json:"items"`
		Total      int64            `json:"total"`
		Page       int              `json:"page"`
		PageSize   int              `json:"page_size"`
		TotalPages int              `json:"total_pages"`
	}
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page failed: %v", err)
	}
	if page.Total != 21 || page.TotalPages != 5 || page.Page != 2 || len(page.Items) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Items[0].SourceCode != "" {
		t.Fatalf("expected list items without source")
	}

	if w, _ := doRequest(t, r, http.MethodGet, "/api/v1/submissions?page=abc", "", "alice"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad page, got %d", w.Code)
	}
}

func TestStats(t *testing.T) {
	fake := &fakeSubmissions{}
	r := newTestRouter(fake)

	w, env := doRequest(t, r, http.MethodGet, "/api/v1/submissions/stats?since=2026-03-04", "", "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !fake.sinceArg.Equal(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected since: %v", fake.sinceArg)
	}
	var stats StatsResponse
	_ = json.Unmarshal(env.Data, &stats)
	if stats.Count != 3 {
		t.Fatalf("expected count 3, got %d", stats.Count)
	}

	before := time.Now().Add(-24 * time.Hour)
	doRequest(t, r, http.MethodGet, "/api/v1/submissions/stats", "", "alice")
	if fake.sinceArg.Before(before.Add(-time.Minute)) || fake.sinceArg.After(time.Now()) {
		t.Fatalf("expected default window of 24h, got %v", fake.sinceArg)
	}

	if w, _ := doRequest(t, r, http.MethodGet, "/api/v1/submissions/stats?since=not-a-date", "", "alice"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad since, got %d", w.Code)
	}
}

func TestLanguages(t *testing.T) {
	r := newTestRouter(&fakeSubmissions{})
	w, env := doRequest(t, r, http.MethodGet, "/api/v1/languages", "", "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(string(env.Data), `"details":"javac not found"`) {
		t.Fatalf("expected availability details, got %s", env.Data)
	}
}

func TestStreamPushesUntilTerminal(t *testing.T) {
	running := pending("s1", "alice")
	_ = running.Start()
	fake := &fakeSubmissions{records: map[string][]*model.Submission{
		"s1": {pending("s1", "alice"), pending("s1", "alice"), running, completed(t, "s1", "alice")},
	}}
	srv := httptest.NewServer(newTestRouter(fake))
	defer srv.Close()

	header := http.Header{}
	header.Set(middleware.UserIDHeader, "alice")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/submissions/s1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var statuses []string
	for {
		var view SubmissionView
		if err := conn.ReadJSON(&view); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("expected normal closure, got %v", err)
			}
			break
		}
		statuses = append(statuses, view.Status)
	}
	want := []string{"PENDING", "RUNNING", "COMPLETED"}
	if strings.Join(statuses, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, statuses)
	}
}

func TestStreamRejectsOtherOwner(t *testing.T) {
	fake := &fakeSubmissions{records: map[string][]*model.Submission{"s1": {pending("s1", "alice")}}}
	srv := httptest.NewServer(newTestRouter(fake))
	defer srv.Close()

	header := http.Header{}
	header.Set(middleware.UserIDHeader, "bob")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/submissions/s1/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatalf("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 before upgrade, got %v", resp)
	}
}
