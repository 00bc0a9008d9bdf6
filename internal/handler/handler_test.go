package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/interview"
	"github.com/pavelanni/interviewer/internal/model"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func testConfig() model.InterviewConfig {
	return model.InterviewConfig{NumQuestions: 5, CallTimeout: time.Second}
}

type testServer struct {
	*httptest.Server
	engine *interview.Engine
}

func newTestServer(t *testing.T, c interview.Collaborators, cfg model.InterviewConfig, reports ReportReader) *testServer {
	t.Helper()
	e := interview.NewEngine(c, cfg, nil)
	r := chi.NewRouter()
	New(e, reports, cfg).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, engine: e}
}

func (s *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendEvent(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	if err := ws.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func readEvent(t *testing.T, ws *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg inbound
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg.Event, msg.Data
}

func expectEvent[T any](t *testing.T, ws *websocket.Conn, want string) T {
	t.Helper()
	event, data := readEvent(t, ws)
	if event != want {
		t.Fatalf("event = %q (%s), want %q", event, data, want)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", event, err)
	}
	return v
}

func expectError(t *testing.T, ws *websocket.Conn, code string) errorEvent {
	t.Helper()
	e := expectEvent[errorEvent](t, ws, eventError)
	if e.Code != code {
		t.Fatalf("error code = %q (%s), want %q", e.Code, e.Message, code)
	}
	return e
}

func TestInterviewFlow(t *testing.T) {
	srv := newTestServer(t, interview.Collaborators{}, testConfig(), nil)
	ws := srv.dial(t, "")

	sendEvent(t, ws, eventStartInterview, startRequest{Name: "Dana", SkillLevel: "beginner"})
	started := expectEvent[interviewStarted](t, ws, eventInterviewStarted)
	if started.QuestionNumber != 1 || started.TotalQuestions != 5 {
		t.Errorf("started = %+v", started)
	}
	if !strings.HasPrefix(started.Message, "Hello Dana!") || !strings.Contains(started.Message, "5 questions") {
		t.Errorf("welcome = %q", started.Message)
	}
	if !strings.HasSuffix(started.Message, started.Question) {
		t.Error("welcome should end with the first question")
	}
	if started.SessionID == "" {
		t.Error("missing session id")
	}

	for n := 2; n <= 5; n++ {
		sendEvent(t, ws, eventSubmitResponse, submitRequest{Response: "ok"})
		next := expectEvent[nextQuestion](t, ws, eventNextQuestion)
		if next.QuestionNumber != n || next.TotalQuestions != 5 {
			t.Errorf("question %d of %d, want %d of 5", next.QuestionNumber, next.TotalQuestions, n)
		}
		if next.Score != 1 || !strings.Contains(next.Feedback, "fallback") {
			t.Errorf("score %v feedback %q", next.Score, next.Feedback)
		}
	}

	sendEvent(t, ws, eventSubmitResponse, submitRequest{Response: "ok"})
	done := expectEvent[interviewComplete](t, ws, eventInterviewComplete)
	if !strings.HasPrefix(done.Message, "Congratulations!") {
		t.Errorf("message = %q", done.Message)
	}
	r := done.Report
	if r == nil {
		t.Fatal("missing report")
	}
	if r.SessionID != started.SessionID || r.CandidateName != "Dana" || r.QuestionsAnswered != 5 {
		t.Errorf("report header = %+v", r)
	}
	if r.Percentage != 10 || r.ProficiencyLevel != model.ProficiencyBeginner || r.EndedEarly {
		t.Errorf("report result = %.1f%% %s early=%v", r.Percentage, r.ProficiencyLevel, r.EndedEarly)
	}

	sendEvent(t, ws, eventSubmitResponse, submitRequest{Response: "late"})
	e := expectError(t, ws, "no_more_questions")
	if e.Message != "No more questions available" {
		t.Errorf("message = %q", e.Message)
	}

	// A finished interview can be replaced by a new one.
	sendEvent(t, ws, eventStartInterview, startRequest{Name: "Dana", SkillLevel: "advanced"})
	again := expectEvent[interviewStarted](t, ws, eventInterviewStarted)
	if again.SessionID == started.SessionID {
		t.Error("restart reused the session id")
	}
}

func TestProtocolErrors(t *testing.T) {
	srv := newTestServer(t, interview.Collaborators{}, testConfig(), nil)
	ws := srv.dial(t, "")

	sendEvent(t, ws, eventSubmitResponse, submitRequest{Response: "hello"})
	e := expectError(t, ws, "no_active_session")
	if e.Message != "No active interview session" {
		t.Errorf("message = %q", e.Message)
	}

	sendEvent(t, ws, eventEndInterview, nil)
	expectError(t, ws, "no_active_session")

	sendEvent(t, ws, "dance", nil)
	e = expectError(t, ws, codeUnknownEvent)
	if !strings.Contains(e.Message, "dance") {
		t.Errorf("message = %q", e.Message)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectError(t, ws, codeBadRequest)

	sendEvent(t, ws, eventStartInterview, "not an object")
	expectError(t, ws, codeBadRequest)

	sendEvent(t, ws, eventStartInterview, nil)
	started := expectEvent[interviewStarted](t, ws, eventInterviewStarted)
	if !strings.HasPrefix(started.Message, "Hello Candidate!") {
		t.Errorf("welcome = %q", started.Message)
	}

	sendEvent(t, ws, eventStartInterview, startRequest{Name: "Dana"})
	expectError(t, ws, "already_started")
}

func TestSkipQuestion(t *testing.T) {
	srv := newTestServer(t, interview.Collaborators{}, testConfig(), nil)
	ws := srv.dial(t, "")

	sendEvent(t, ws, eventStartInterview, startRequest{Name: "Dana", SkillLevel: "intermediate"})
	expectEvent[interviewStarted](t, ws, eventInterviewStarted)

	sendEvent(t, ws, eventSkipQuestion, nil)
	next := expectEvent[nextQuestion](t, ws, eventNextQuestion)
	if next.QuestionNumber != 2 {
		t.Errorf("QuestionNumber = %d", next.QuestionNumber)
	}

	// The skipped answer is scored like any other: four words get the fallback score of 3.
	if next.Score != 3 {
		t.Errorf("Score = %v, want 3", next.Score)
	}
}

func TestEndInterview(t *testing.T) {
	srv := newTestServer(t, interview.Collaborators{}, testConfig(), nil)

	t.Run("no answers", func(t *testing.T) {
		ws := srv.dial(t, "")
		sendEvent(t, ws, eventStartInterview, startRequest{Name: "Dana"})
		expectEvent[interviewStarted](t, ws, eventInterviewStarted)

		sendEvent(t, ws, eventEndInterview, nil)
		ended := expectEvent[messageOnly](t, ws, eventInterviewEnded)
		if ended.Message != "Interview ended. No responses to evaluate." {
			t.Errorf("message = %q", ended.Message)
		}
	})

	t.Run("with answers", func(t *testing.T) {
		ws := srv.dial(t, "")
		sendEvent(t, ws, eventStartInterview, startRequest{Name: "Dana"})
		expectEvent[interviewStarted](t, ws, eventInterviewStarted)
		sendEvent(t, ws, eventSubmitResponse, submitRequest{Response: "SUM adds the selected cells together"})
		expectEvent[nextQuestion](t, ws, eventNextQuestion)

		sendEvent(t, ws, eventEndInterview, nil)
		done := expectEvent[interviewComplete](t, ws, eventInterviewComplete)
		if !strings.HasPrefix(done.Message, "Interview ended early.") {
			t.Errorf("message = %q", done.Message)
		}
		if done.Report == nil || !done.Report.EndedEarly || done.Report.QuestionsAnswered != 1 {
			t.Errorf("report = %+v", done.Report)
		}
	})
}

func TestEndCancelsPendingEvaluation(t *testing.T) {
	started := make(chan struct{}, 1)
	scorer := scorerFunc(func(ctx context.Context, q model.QuestionRecord, answer string) (model.Assessment, error) {
		started <- struct{}{}
		<-ctx.Done()
		return model.Assessment{}, ctx.Err()
	})
	cfg := testConfig()
	cfg.CallTimeout = time.Minute
	srv := newTestServer(t, interview.Collaborators{Scorer: scorer}, cfg, nil)
	ws := srv.dial(t, "")

	sendEvent(t, ws, eventStartInterview, startRequest{Name: "Dana"})
	expectEvent[interviewStarted](t, ws, eventInterviewStarted)

	sendEvent(t, ws, eventSubmitResponse, submitRequest{Response: "thinking about it"})
	<-started

	sendEvent(t, ws, eventSubmitResponse, submitRequest{Response: "again"})
	expectError(t, ws, "evaluation_pending")

	sendEvent(t, ws, eventEndInterview, nil)
	expectEvent[messageOnly](t, ws, eventInterviewEnded)

	// The cancelled evaluation produces no further event.
	ws.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var msg inbound
	if err := ws.ReadJSON(&msg); err == nil {
		t.Errorf("unexpected event after end: %s %s", msg.Event, msg.Data)
	}
}

// blockingNarrator signals entered when a report starts and blocks until release is closed
// or its context ends. The context error, if any, is sent on stopped.
func blockingNarrator(entered chan<- struct{}, release <-chan struct{}, stopped chan<- error) narratorFunc {
	return func(ctx context.Context, evals []model.Evaluation, pct float64, level model.SkillLevel) (string, error) {
		entered <- struct{}{}
		select {
		case <-release:
			stopped <- nil
			return "Well done overall.", nil
		case <-ctx.Done():
			stopped <- ctx.Err()
			return "", ctx.Err()
		}
	}
}

// answerAll submits answers until the last one has been sent.
func answerAll(t *testing.T, ws *websocket.Conn, total int) {
	t.Helper()
	for n := 1; n < total; n++ {
		sendEvent(t, ws, eventSubmitResponse, submitRequest{Response: "ok"})
		expectEvent[nextQuestion](t, ws, eventNextQuestion)
	}
	sendEvent(t, ws, eventSubmitResponse, submitRequest{Response: "ok"})
}

func TestRestartAfterReportDelivery(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	stopped := make(chan error, 1)
	cfg := testConfig()
	cfg.CallTimeout = time.Minute
	srv := newTestServer(t, interview.Collaborators{Narrator: blockingNarrator(entered, release, stopped)}, cfg, nil)
	ws := srv.dial(t, "")

	sendEvent(t, ws, eventStartInterview, startRequest{Name: "Dana"})
	first := expectEvent[interviewStarted](t, ws, eventInterviewStarted)
	answerAll(t, ws, first.TotalQuestions)
	<-entered

	// The restart arrives while the report is still being built.
	sendEvent(t, ws, eventStartInterview, startRequest{Name: "Dana"})
	time.Sleep(50 * time.Millisecond)
	close(release)

	done := expectEvent[interviewComplete](t, ws, eventInterviewComplete)
	if done.Report == nil || done.Report.SessionID != first.SessionID {
		t.Fatalf("report = %+v", done.Report)
	}
	if done.Report.OverallFeedback != "Well done overall." {
		t.Errorf("feedback = %q", done.Report.OverallFeedback)
	}

	again := expectEvent[interviewStarted](t, ws, eventInterviewStarted)
	if again.SessionID == first.SessionID {
		t.Error("restart reused the session id")
	}
}

func TestDisconnectStopsReport(t *testing.T) {
	entered := make(chan struct{}, 1)
	stopped := make(chan error, 1)
	cfg := testConfig()
	cfg.CallTimeout = time.Minute
	srv := newTestServer(t, interview.Collaborators{Narrator: blockingNarrator(entered, nil, stopped)}, cfg, nil)
	ws := srv.dial(t, "")

	sendEvent(t, ws, eventStartInterview, startRequest{Name: "Dana"})
	started := expectEvent[interviewStarted](t, ws, eventInterviewStarted)
	answerAll(t, ws, started.TotalQuestions)
	<-entered

	ws.Close()

	select {
	case err := <-stopped:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("narrator stopped with %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("report generation kept running after disconnect")
	}
}

func TestLocalizedMessages(t *testing.T) {
	srv := newTestServer(t, interview.Collaborators{}, testConfig(), nil)
	ws := srv.dial(t, "?lang=ru")

	sendEvent(t, ws, eventSubmitResponse, submitRequest{Response: "hello"})
	e := expectError(t, ws, "no_active_session")
	if e.Message != "Нет активного собеседования" {
		t.Errorf("message = %q", e.Message)
	}

	sendEvent(t, ws, eventStartInterview, startRequest{Name: "Дана"})
	started := expectEvent[interviewStarted](t, ws, eventInterviewStarted)
	if !strings.Contains(started.Message, "5 вопросов") {
		t.Errorf("welcome = %q", started.Message)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	srv := newTestServer(t, interview.Collaborators{}, cfg, nil)
	ws := srv.dial(t, "")

	sendEvent(t, ws, eventEndInterview, nil)
	expectError(t, ws, "no_active_session")

	sendEvent(t, ws, eventEndInterview, nil)
	expectError(t, ws, codeRateLimited)
}

func TestDisconnectRemovesSession(t *testing.T) {
	srv := newTestServer(t, interview.Collaborators{}, testConfig(), nil)
	ws := srv.dial(t, "")

	sendEvent(t, ws, eventStartInterview, startRequest{Name: "Dana"})
	expectEvent[interviewStarted](t, ws, eventInterviewStarted)
	if n := srv.engine.ActiveSessions(); n != 1 {
		t.Fatalf("ActiveSessions = %d, want 1", n)
	}

	ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()

	deadline := time.Now().Add(3 * time.Second)
	for srv.engine.ActiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"interview.example.com"}
	srv := newTestServer(t, interview.Collaborators{}, cfg, nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	tests := []struct {
		origin string
		ok     bool
	}{
		{"https://interview.example.com", true},
		{"https://evil.example.com", false},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			ws, resp, err := websocket.DefaultDialer.Dial(url, header)
			if tt.ok {
				if err != nil {
					t.Fatalf("dial: %v", err)
				}
				ws.Close()
				return
			}
			if err == nil {
				ws.Close()
				t.Fatal("expected handshake to be rejected")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("response = %v", resp)
			}
		})
	}
}

type fakeReports struct {
	reports map[string]*model.Report
}

func (f *fakeReports) ListReports() ([]model.ReportSummary, error) {
	var out []model.ReportSummary
	for _, r := range f.reports {
		out = append(out, model.ReportSummary{SessionID: r.SessionID, CandidateName: r.CandidateName, Percentage: r.Percentage})
	}
	return out, nil
}

func (f *fakeReports) GetReport(id string) (*model.Report, error) {
	return f.reports[id], nil
}

func TestHTTPEndpoints(t *testing.T) {
	reports := &fakeReports{reports: map[string]*model.Report{
		"abc": {SessionID: "abc", CandidateName: "Dana", Percentage: 72.5},
	}}
	srv := newTestServer(t, interview.Collaborators{}, testConfig(), reports)

	tests := []struct {
		path   string
		status int
		want   string
	}{
		{"/healthz", http.StatusOK, `"active_sessions":0`},
		{"/reports", http.StatusOK, `"candidate_name":"Dana"`},
		{"/reports/abc", http.StatusOK, `"percentage":72.5`},
		{"/reports/missing", http.StatusNotFound, "report not found"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if !strings.Contains(string(body), tt.want) {
				t.Errorf("body %q does not contain %q", body, tt.want)
			}
		})
	}
}

func TestReportRoutesDisabled(t *testing.T) {
	srv := newTestServer(t, interview.Collaborators{}, testConfig(), nil)
	resp, err := http.Get(srv.URL + "/reports")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

type scorerFunc func(ctx context.Context, q model.QuestionRecord, answer string) (model.Assessment, error)

func (f scorerFunc) ScoreResponse(ctx context.Context, q model.QuestionRecord, answer string) (model.Assessment, error) {
	return f(ctx, q, answer)
}

type narratorFunc func(ctx context.Context, evals []model.Evaluation, pct float64, level model.SkillLevel) (string, error)

func (f narratorFunc) Narrate(ctx context.Context, evals []model.Evaluation, pct float64, level model.SkillLevel) (string, error) {
	return f(ctx, evals, pct, level)
}
