package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Dima2024Alekseev/bot-pm2/internal/aggregator"
	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
)

type fakeStats struct{}

func (fakeStats) Snapshot() aggregator.Stats {
	return aggregator.Stats{Uptime: "5s", TotalEvents: 3, FilesWatched: 2}
}

type fakeHub struct {
	ch           chan model.LogEvent
	subscribed   chan struct{}
	unsubscribed chan struct{}
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		ch:           make(chan model.LogEvent, 1),
		subscribed:   make(chan struct{}, 1),
		unsubscribed: make(chan struct{}, 1),
	}
}

func (h *fakeHub) Subscribe() <-chan model.LogEvent {
	h.subscribed <- struct{}{}
	return h.ch
}

func (h *fakeHub) Unsubscribe(<-chan model.LogEvent) {
	h.unsubscribed <- struct{}{}
}

type fakeLogs struct{}

func (fakeLogs) ReadLastLines(path string, n int) (string, error) {
	return strings.Repeat(path+"\n", n-1) + path, nil
}

func newTestServer(h Broadcaster) *Server {
	return New(h, fakeStats{}, fakeLogs{}, map[string]string{"out": "/logs/out.log", "err": "/logs/err.log"}, ":0")
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, newTestServer(newFakeHub()), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["files_watched"] != float64(2) {
		t.Errorf("unexpected body %v", body)
	}
}

func TestStats(t *testing.T) {
	rec := get(t, newTestServer(newFakeHub()), "/api/stats")

	var stats aggregator.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalEvents != 3 {
		t.Errorf("expected 3 events, got %d", stats.TotalEvents)
	}
}

func TestLogsEndpoint(t *testing.T) {
	s := newTestServer(newFakeHub())

	rec := get(t, s, "/api/logs/err?lines=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Stream string `json:"stream"`
		Lines  int    `json:"lines"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Stream != "err" || body.Lines != 2 || body.Text != "/logs/err.log\n/logs/err.log" {
		t.Errorf("unexpected body %+v", body)
	}

	if rec := get(t, s, "/api/logs/out"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"lines":20`) {
		t.Errorf("expected default of 20 lines, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := get(t, s, "/api/logs/debug"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown stream, got %d", rec.Code)
	}
	if rec := get(t, s, "/api/logs/out?lines=0"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad count, got %d", rec.Code)
	}
}

func TestWebSocketStreamsEvents(t *testing.T) {
	h := newFakeHub()
	ts := httptest.NewServer(newTestServer(h).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	select {
	case <-h.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never subscribed")
	}

	h.ch <- model.LogEvent{Line: "Fatal: boom", Severity: model.SeverityCritical, Stream: model.StreamErr}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev model.LogEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Line != "Fatal: boom" || ev.Severity != model.SeverityCritical {
		t.Errorf("unexpected event %+v", ev)
	}

	conn.Close()
	select {
	case <-h.unsubscribed:
	case <-time.After(2 * time.Second):
		t.Error("handler did not unsubscribe after client left")
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	s := New(newFakeHub(), fakeStats{}, fakeLogs{}, nil, "127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
