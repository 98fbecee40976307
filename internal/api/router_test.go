package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"idle-arena/internal/api"
	"idle-arena/internal/battle"
	"idle-arena/internal/event"
	"idle-arena/internal/eventlog"
	"idle-arena/internal/storage/memory"
)

// ============================================================================
// Fakes
// ============================================================================

// fakeEngine implements api.BattleReader over fixed snapshots
type fakeEngine struct {
	snaps map[string]battle.Snapshot
}

func (f *fakeEngine) GetStatus(_ context.Context, id string) (battle.Snapshot, error) {
	s, ok := f.snaps[id]
	if !ok {
		return battle.Snapshot{}, fmt.Errorf("battle status %s: %w", id, battle.ErrNotFound)
	}
	return s, nil
}

func (f *fakeEngine) ActiveBattles() []string {
	var ids []string
	for id, s := range f.snaps {
		if s.Live {
			ids = append(ids, id)
		}
	}
	return ids
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{snaps: map[string]battle.Snapshot{
		"live-1": {Battle: battle.Battle{ID: "live-1", Status: battle.StatusActive}, Live: true},
		"live-2": {Battle: battle.Battle{ID: "live-2", Status: battle.StatusActive}, Live: true},
		"done": {
			Battle: battle.Battle{ID: "done", Status: battle.StatusCompleted, Kind: battle.KindBoss},
			Result: &battle.Result{BattleID: "done", Outcome: battle.OutcomeVictory, Turns: 12},
		},
	}}
}

func attackRecord(frame uint32, actor uint64) event.Record {
	r := event.New(event.EventTypeAttack, actor, 2, event.AttackPayload{Battle: 1, Damage: 5, Turn: 1}.Encode())
	r.Frame = frame
	return r
}

type fixture struct {
	engine  *fakeEngine
	journal *eventlog.Journal
	store   *memory.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{
		engine:  newFakeEngine(),
		journal: eventlog.NewJournal(eventlog.NewMemoryStore(), eventlog.JournalConfig{}),
		store:   memory.New(),
	}
	for frame, records := range map[uint32][]event.Record{
		1: {attackRecord(1, 7), attackRecord(1, 8)},
		2: nil,
		4: {attackRecord(4, 9)},
	} {
		if err := f.journal.PersistFrame(ctx, frame, records); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.store.SaveBattle(ctx, battle.Battle{ID: "done", Status: battle.StatusCompleted, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := f.store.SaveEvent(ctx, battle.LogEntry{BattleID: "done", Turn: 1, Type: "attack", ActorID: "p1", TargetID: "p2", Amount: 5}); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f fixture) router(browser battle.Browser, hub *api.Hub) http.Handler {
	return api.NewRouter(api.RouterConfig{
		Engine:  f.engine,
		Journal: f.journal,
		Browser: browser,
		Hub:     hub,
		RateLimitConfig: &api.RateLimitConfig{
			RequestsPerSecond: 1000, // High limit for tests
			Burst:             1000,
			CleanupInterval:   time.Hour,
		},
		DisableLogging: true,
	})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

// ============================================================================
// Endpoint Tests
// ============================================================================

func TestEndpointStatusCodes(t *testing.T) {
	f := newFixture(t)
	router := f.router(f.store, nil)

	tests := []struct {
		path string
		want int
	}{
		{"/api/health", http.StatusOK},
		{"/api/battles", http.StatusOK},
		{"/api/battles/done", http.StatusOK},
		{"/api/battles/missing", http.StatusNotFound},
		{"/api/battles/done/result", http.StatusOK},
		{"/api/battles/live-1/result", http.StatusNotFound},
		{"/api/battles/done/log", http.StatusOK},
		{"/api/battles/missing/log", http.StatusNotFound},
		{"/api/battles?status=completed", http.StatusOK},
		{"/api/battles?status=exploded", http.StatusBadRequest},
		{"/api/frames/stats", http.StatusOK},
		{"/api/frames/1", http.StatusOK},
		{"/api/frames/3", http.StatusNotFound},
		{"/api/frames/abc", http.StatusBadRequest},
		{"/api/frames/1/4/integrity", http.StatusOK},
		{"/api/frames/4/1/integrity", http.StatusBadRequest},
		{"/api/frames/x/4/integrity", http.StatusBadRequest},
		{"/api/frames/0/4294967295/integrity", http.StatusBadRequest},
		{"/api/frames/1/4294967296/integrity", http.StatusBadRequest},
		{"/ws", http.StatusNotFound}, // No hub configured
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, router, tt.path)
			if rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d (%s)", tt.path, rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestListActiveBattles(t *testing.T) {
	f := newFixture(t)
	rec := get(t, f.router(nil, nil), "/api/battles")

	var body struct {
		Active []string `json:"active"`
	}
	decode(t, rec, &body)
	if len(body.Active) != 2 || body.Active[0] != "live-1" || body.Active[1] != "live-2" {
		t.Errorf("active = %v", body.Active)
	}
}

func TestBrowserRoutesNeedStore(t *testing.T) {
	f := newFixture(t)
	router := f.router(nil, nil)

	for _, path := range []string{"/api/battles?status=active", "/api/battles/done/log"} {
		if rec := get(t, router, path); rec.Code != http.StatusNotImplemented {
			t.Errorf("GET %s = %d, want 501", path, rec.Code)
		}
	}
}

func TestBattleAndResultJSON(t *testing.T) {
	f := newFixture(t)
	router := f.router(f.store, nil)

	var snap struct {
		Battle struct {
			Status string `json:"status"`
			Kind   string `json:"kind"`
		} `json:"battle"`
	}
	decode(t, get(t, router, "/api/battles/done"), &snap)
	if snap.Battle.Status != "completed" || snap.Battle.Kind != "boss" {
		t.Errorf("battle = %+v", snap.Battle)
	}

	var result struct {
		Outcome string `json:"outcome"`
		Turns   int    `json:"turns"`
	}
	decode(t, get(t, router, "/api/battles/done/result"), &result)
	if result.Outcome != "victory" || result.Turns != 12 {
		t.Errorf("result = %+v", result)
	}

	var entries []battle.LogEntry
	decode(t, get(t, router, "/api/battles/done/log"), &entries)
	if len(entries) != 1 || entries[0].Amount != 5 {
		t.Errorf("log = %+v", entries)
	}

	var stored []battle.Battle
	decode(t, get(t, router, "/api/battles?status=completed"), &stored)
	if len(stored) != 1 || stored[0].ID != "done" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestFrameEndpoints(t *testing.T) {
	f := newFixture(t)
	router := f.router(nil, nil)

	var frame struct {
		Frame   uint32 `json:"frame"`
		Records []struct {
			Type  string `json:"type"`
			Lane  string `json:"lane"`
			Actor string `json:"actor"`
		} `json:"records"`
		Summary api.FrameSummary `json:"summary"`
	}
	decode(t, get(t, router, "/api/frames/1"), &frame)
	if len(frame.Records) != 2 || frame.Records[0].Actor != "7" || frame.Records[0].Lane != "gameplay" {
		t.Errorf("frame = %+v", frame)
	}
	if frame.Summary.Types[event.EventTypeAttack.String()] != 2 {
		t.Errorf("summary = %+v", frame.Summary)
	}

	var report eventlog.Integrity
	decode(t, get(t, router, "/api/frames/1/4/integrity"), &report)
	if report.Complete || report.ValidFrames != 3 || report.MissingCount != 1 || report.Missing[0] != 3 {
		t.Errorf("integrity = %+v", report)
	}

	var stats struct {
		LastFrame uint32                `json:"lastFrame"`
		Journal   eventlog.JournalStats `json:"journal"`
	}
	decode(t, get(t, router, "/api/frames/stats"), &stats)
	if stats.LastFrame != 4 || stats.Journal.Persisted != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRateLimitRejects(t *testing.T) {
	f := newFixture(t)
	router := api.NewRouter(api.RouterConfig{
		Engine:  f.engine,
		Journal: f.journal,
		RateLimitConfig: &api.RateLimitConfig{
			RequestsPerSecond: 0.001,
			Burst:             1,
			CleanupInterval:   time.Hour,
		},
		DisableLogging: true,
	})

	if rec := get(t, router, "/api/health"); rec.Code != http.StatusOK {
		t.Fatalf("first request = %d", rec.Code)
	}
	rec := get(t, router, "/api/health")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

// ============================================================================
// WebSocket Tests
// ============================================================================

func startHub(t *testing.T, f fixture) (*api.Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := api.NewHub(api.HubConfig{MaxPerIP: 2})
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	ts := httptest.NewServer(f.router(nil, hub))
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return hub, ts
}

func dial(t *testing.T, ts *httptest.Server, query, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	header := http.Header{}
	header.Set("Origin", origin)
	return websocket.DefaultDialer.Dial(url, header)
}

func waitForClients(t *testing.T, hub *api.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestHubFiltersByBattle(t *testing.T) {
	f := newFixture(t)
	hub, ts := startHub(t, f)

	conn, _, err := dial(t, ts, "?battle=b1", "http://localhost:3000")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Publish(battle.Notification{Type: battle.NotifyAttack, BattleID: "b2", Amount: 1})
	hub.Publish(battle.Notification{Type: battle.NotifyAttack, BattleID: "b1", Amount: 9})

	msg := readMessage(t, conn)
	if msg.Event != api.EventBattle {
		t.Fatalf("event = %q", msg.Event)
	}
	var n battle.Notification
	if err := json.Unmarshal(msg.Data, &n); err != nil {
		t.Fatal(err)
	}
	if n.BattleID != "b1" || n.Amount != 9 {
		t.Errorf("notification = %+v, want the b1 attack", n)
	}
}

func TestHubFrameSummaries(t *testing.T) {
	f := newFixture(t)
	hub, ts := startHub(t, f)

	conn, _, err := dial(t, ts, "?frames=1", "http://127.0.0.1:8080")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.ObserveFrame(5, nil) // Empty frames are not announced
	hub.ObserveFrame(6, []event.Record{attackRecord(6, 1), attackRecord(6, 2)})

	msg := readMessage(t, conn)
	if msg.Event != api.EventFrame {
		t.Fatalf("event = %q", msg.Event)
	}
	var s api.FrameSummary
	if err := json.Unmarshal(msg.Data, &s); err != nil {
		t.Fatal(err)
	}
	if s.Frame != 6 || s.Records != 2 || s.Lanes["gameplay"] != 2 {
		t.Errorf("summary = %+v", s)
	}
}

func TestHubRejectsOriginAndPerIPLimit(t *testing.T) {
	f := newFixture(t)
	hub, ts := startHub(t, f)

	if _, resp, err := dial(t, ts, "", "https://evil.example"); err == nil {
		t.Fatal("foreign origin should be rejected")
	} else if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("origin rejection response = %v", resp)
	}

	var conns []*websocket.Conn
	for i := 0; i < 2; i++ {
		c, _, err := dial(t, ts, "", "http://localhost")
		if err != nil {
			t.Fatal(err)
		}
		conns = append(conns, c)
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	waitForClients(t, hub, 2)

	_, resp, err := dial(t, ts, "", "http://localhost")
	if err == nil {
		t.Fatal("third connection from one IP should be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("limit response = %v", resp)
	}
}

func TestSummarizeFrame(t *testing.T) {
	records := []event.Record{
		attackRecord(3, 1),
		event.New(event.EventTypeTargetSelected, 1, 2, [event.PayloadSize]byte{}),
		event.New(event.EventTypeTickTiming, 1, 0, [event.PayloadSize]byte{}),
	}
	s := api.SummarizeFrame(3, records)

	lanes := make([]string, 0, len(s.Lanes))
	for l := range s.Lanes {
		lanes = append(lanes, l)
	}
	sort.Strings(lanes)
	if s.Records != 3 || strings.Join(lanes, ",") != "ai,gameplay,telemetry" {
		t.Errorf("summary = %+v", s)
	}
}
