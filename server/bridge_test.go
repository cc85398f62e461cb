package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/roleplay-live/client"
	"github.com/room4-2/roleplay-live/codec"
	"github.com/room4-2/roleplay-live/config"
	"github.com/room4-2/roleplay-live/messages"
	"github.com/room4-2/roleplay-live/roleplay"
	"github.com/room4-2/roleplay-live/store"
)

type fakeController struct {
	calls chan string
}

func newFakeController() *fakeController {
	return &fakeController{calls: make(chan string, 32)}
}

func (f *fakeController) SendText(text string) { f.calls <- "text:" + text }
func (f *fakeController) StartAudio() { f.calls <- "audio:start" }
func (f *fakeController) StopAudio() { f.calls <- "audio:stop" }
func (f *fakeController) StartVideo(source codec.Source) { f.calls <- "video:" + string(source) }
func (f *fakeController) StopVideo() { f.calls <- "video:stop" }
func (f *fakeController) StartRolePlay(s roleplay.Scenario) {
	f.calls <- "roleplay:" + s.Title
}
func (f *fakeController) EndRolePlay() { f.calls <- "roleplay:end" }
func (f *fakeController) Calibrate() { f.calls <- "calibrate" }

func (f *fakeController) Snapshot(context.Context) (client.Status, error) {
	return client.Status{SessionID: "42", Connection: "open", Mode: "text", AnalysisPhase: "idle"}, nil
}

func (f *fakeController) next(t *testing.T) string {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no command forwarded")
		return ""
	}
}

type fakeGenerator struct {
	err error
}

func (g fakeGenerator) Generate(_ context.Context, prompt string) (roleplay.Scenario, error) {
	if g.err != nil {
		return roleplay.DefaultScenario(prompt), g.err
	}
	return roleplay.Scenario{Title: "Generated: " + prompt}, nil
}

type fakeReports struct {
	reports map[string]store.Report
	err     error
}

func (f fakeReports) GetReport(_ context.Context, id string) (store.Report, error) {
	if f.err != nil {
		return store.Report{}, f.err
	}
	r, ok := f.reports[id]
	if !ok {
		return store.Report{}, store.ErrNotFound
	}
	return r, nil
}

func (f fakeReports) ListReports(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	ids := make([]string, 0, len(f.reports))
	for id := range f.reports {
		ids = append(ids, id)
	}
	return ids, nil
}

func testConfig() *config.Config {
	return &config.Config{ControlPort: 0, AllowedOrigins: []string{"http://ui.local"}}
}

func newTestBridge(t *testing.T, gen ScenarioGenerator, reports ReportReader) (*Server, *fakeController, *httptest.Server) {
	t.Helper()
	s := NewServer(testConfig(), gen, reports)
	ctrl := newFakeController()
	s.Attach(ctrl)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.cancel()
	})
	return s, ctrl, ts
}

func dialUI(t *testing.T, s *Server, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for s.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readServerMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestCommandsAreForwarded(t *testing.T) {
	t.Parallel()

	s, ctrl, ts := newTestBridge(t, nil, nil)
	conn := dialUI(t, s, ts)

	commands := []string{
		`{"type":"text","payload":{"text":"hello"}}`,
		`{"type":"audio","payload":{"action":"start"}}`,
		`{"type":"video","payload":{"action":"start","source":"screen"}}`,
		`{"type":"roleplay_start","payload":{"scenario":{"title":"Budget Review"}}}`,
		`{"type":"roleplay_end"}`,
		`{"type":"calibrate"}`,
		`{"type":"video","payload":{"action":"stop"}}`,
		`{"type":"audio","payload":{"action":"stop"}}`,
	}
	want := []string{
		"text:hello", "audio:start", "video:screen", "roleplay:Budget Review",
		"roleplay:end", "calibrate", "video:stop", "audio:stop",
	}
	for _, c := range commands {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(c)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for _, w := range want {
		if got := ctrl.next(t); got != w {
			t.Fatalf("got %q, want %q", got, w)
		}
	}
}

func TestInvalidCommandsReportErrors(t *testing.T) {
	t.Parallel()

	s, _, ts := newTestBridge(t, nil, nil)
	conn := dialUI(t, s, ts)

	for _, c := range []string{
		`not json`,
		`{"type":"video","payload":{"action":"start","source":"webcam"}}`,
		`{"type":"text"}`,
		`{"type":"dance"}`,
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(c)); err != nil {
			t.Fatalf("write: %v", err)
		}
		msg := readServerMessage(t, conn)
		if msg["type"] != messages.TypeError {
			t.Fatalf("expected error for %s, got %v", c, msg)
		}
	}
}

func TestRolePlayStartWithoutGeneratorUsesDefault(t *testing.T) {
	t.Parallel()

	s, ctrl, ts := newTestBridge(t, nil, nil)
	conn := dialUI(t, s, ts)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"roleplay_start","payload":{"prompt":"salary negotiation"}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := ctrl.next(t); got != "roleplay:Professional Role Play: salary negotiation" {
		t.Fatalf("unexpected start %q", got)
	}
}

func TestNotifyFansOut(t *testing.T) {
	t.Parallel()

	s, _, ts := newTestBridge(t, nil, nil)
	a := dialUI(t, s, ts)
	b := dialUI(t, s, ts)
	for s.Subscribers() < 2 {
		time.Sleep(5 * time.Millisecond)
	}

	s.Notify(messages.NewStatusMessage("42", "open", "text", ""))
	for _, conn := range []*websocket.Conn{a, b} {
		msg := readServerMessage(t, conn)
		payload, _ := msg["payload"].(map[string]any)
		if msg["type"] != messages.TypeStatus || payload["status"] != "open" {
			t.Fatalf("unexpected message %v", msg)
		}
	}
}

func TestRejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	_, _, ts := newTestBridge(t, nil, nil)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

func TestGenerateScenarioEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		gen       ScenarioGenerator
		wantTitle string
		fallback  bool
	}{
		{name: "generated", gen: fakeGenerator{}, wantTitle: "Generated: pitch"},
		{name: "generator error", gen: fakeGenerator{err: errors.New("quota")}, wantTitle: "Professional Role Play: pitch", fallback: true},
		{name: "no generator", gen: nil, wantTitle: "Professional Role Play: pitch", fallback: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewServer(testConfig(), tt.gen, nil)
			defer s.cancel()
			req := httptest.NewRequest(http.MethodPost, "/roleplay", strings.NewReader(`{"prompt":"pitch"}`))
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
			}
			var resp ScenarioResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Scenario.Title != tt.wantTitle || resp.Fallback != tt.fallback {
				t.Fatalf("unexpected response %+v", resp)
			}
		})
	}
}

func TestGenerateScenarioRejectsBadBody(t *testing.T) {
	t.Parallel()

	s := NewServer(testConfig(), nil, nil)
	defer s.cancel()

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/roleplay", strings.NewReader("{")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/roleplay", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestGetReport(t *testing.T) {
	t.Parallel()

	saved := fakeReports{reports: map[string]store.Report{
		"r1": {ID: "r1", SessionID: "42", Strengths: []string{"Clear"}},
	}}
	tests := []struct {
		name    string
		reports ReportReader
		id      string
		want    int
	}{
		{name: "found", reports: saved, id: "r1", want: http.StatusOK},
		{name: "missing", reports: saved, id: "nope", want: http.StatusNotFound},
		{name: "redis down", reports: fakeReports{err: store.ErrUnavailable}, id: "r1", want: http.StatusServiceUnavailable},
		{name: "not configured", reports: nil, id: "r1", want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewServer(testConfig(), nil, tt.reports)
			defer s.cancel()
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/"+tt.id, nil))
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
			if tt.want == http.StatusOK {
				var r store.Report
				if err := json.Unmarshal(rr.Body.Bytes(), &r); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if r.ID != "r1" || len(r.Strengths) != 1 {
					t.Fatalf("unexpected report %+v", r)
				}
			}
		})
	}
}

func TestListReports(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reports ReportReader
		want    int
		ids     []string
	}{
		{
			name: "sorted",
			reports: fakeReports{reports: map[string]store.Report{
				"r2": {ID: "r2"},
				"r1": {ID: "r1"},
			}},
			want: http.StatusOK,
			ids:  []string{"r1", "r2"},
		},
		{name: "empty", reports: fakeReports{}, want: http.StatusOK, ids: []string{}},
		{name: "redis down", reports: fakeReports{err: store.ErrUnavailable}, want: http.StatusServiceUnavailable},
		{name: "not configured", reports: nil, want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewServer(testConfig(), nil, tt.reports)
			defer s.cancel()
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports", nil))
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
			if tt.want != http.StatusOK {
				return
			}
			var list reportList
			if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if list.Reports == nil || len(list.Reports) != len(tt.ids) {
				t.Fatalf("expected %v, got %s", tt.ids, rr.Body.String())
			}
			for i, id := range tt.ids {
				if list.Reports[i] != id {
					t.Fatalf("expected %v, got %v", tt.ids, list.Reports)
				}
			}
		})
	}
}

func TestHealthIncludesClientStatus(t *testing.T) {
	t.Parallel()

	s := NewServer(testConfig(), nil, nil)
	defer s.cancel()
	s.Attach(newFakeController())

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Client == nil || resp.Client.SessionID != "42" {
		t.Fatalf("unexpected health %+v", resp)
	}
}
