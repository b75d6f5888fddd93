package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"tracking-svr/internal/auth"
	"tracking-svr/internal/hub"
	"tracking-svr/internal/model"
	"tracking-svr/internal/registry"
	"tracking-svr/internal/store"
	"tracking-svr/internal/tracker"
)

func fptr(f float64) *float64 { return &f }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	st := store.NewRedisWithClient(rdb, store.Options{
		Retention: 7 * 24 * time.Hour,
		Freshness: 5 * time.Minute,
	})
	h := hub.New(st, slog.Default(), 16, 5*time.Minute)
	verifier := auth.NewStaticVerifier(map[string]auth.Principal{
		"tok-d1": {ID: "D1", Role: auth.RoleDriver},
	})
	svc := tracker.New(st, h, verifier, registry.NewStatic(), tracker.Options{})
	ts := httptest.NewServer(New(svc, h, slog.Default()).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dialWS(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, wantType string) serverMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read waiting for %q: %v", wantType, err)
		}
		if msg.Type == wantType {
			return msg
		}
	}
	t.Fatalf("no %q message before deadline", wantType)
	return serverMessage{}
}

func send(t *testing.T, conn *websocket.Conn, msg clientMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWebSocketSubmitAndFanOut(t *testing.T) {
	ts := newTestServer(t)

	watcher := dialWS(t, ts, "")
	send(t, watcher, clientMessage{Type: opSubscribe, Topic: "all"})
	snap := readUntil(t, watcher, hub.EventActiveSnapshot)
	if len(snap.Fixes) != 0 {
		t.Fatalf("initial snapshot should be empty, got %+v", snap.Fixes)
	}

	driver := dialWS(t, ts, "?token=tok-d1")
	send(t, driver, clientMessage{Type: opSubmit, Report: &model.RawReport{
		VehicleID: "B1", Longitude: 79.86, Latitude: 6.93, Speed: fptr(40), DriverID: "D1",
	}})
	readUntil(t, driver, "ok")

	update := readUntil(t, watcher, hub.EventFixUpdate)
	if update.Fix == nil || update.Fix.VehicleID != "B1" || update.Fix.Status != model.StatusMoving {
		t.Fatalf("fan-out fix = %+v, want moving B1", update.Fix)
	}

	send(t, watcher, clientMessage{Type: opGetLatest, VehicleID: "B1"})
	latest := readUntil(t, watcher, "latest:fix")
	if latest.Fix == nil || latest.Fix.Speed != 40 {
		t.Fatalf("latest = %+v, want the submitted fix", latest.Fix)
	}
}

func TestWebSocketRejectsUnauthenticatedSubmit(t *testing.T) {
	ts := newTestServer(t)
	conn := dialWS(t, ts, "")
	send(t, conn, clientMessage{Type: opSubmit, Report: &model.RawReport{
		VehicleID: "B1", Longitude: 1, Latitude: 1,
	}})
	msg := readUntil(t, conn, "error")
	if msg.Code != "UNAUTHORIZED" {
		t.Fatalf("code = %s, want UNAUTHORIZED", msg.Code)
	}
}

func TestWebSocketValidationError(t *testing.T) {
	ts := newTestServer(t)
	conn := dialWS(t, ts, "?token=tok-d1")
	send(t, conn, clientMessage{Type: opSubmit, Report: &model.RawReport{
		VehicleID: "B1", Longitude: 999, Latitude: 1,
	}})
	msg := readUntil(t, conn, "error")
	if msg.Code != "VALIDATION_ERROR" {
		t.Fatalf("code = %s, want VALIDATION_ERROR", msg.Code)
	}
}

func TestWebSocketVehicleBackfill(t *testing.T) {
	ts := newTestServer(t)

	driver := dialWS(t, ts, "?token=tok-d1")
	send(t, driver, clientMessage{Type: opSubmit, Report: &model.RawReport{
		VehicleID: "B2", Longitude: 79.87, Latitude: 6.94, Speed: fptr(25),
	}})
	readUntil(t, driver, "ok")

	// A late joiner gets the current position pushed immediately.
	late := dialWS(t, ts, "")
	send(t, late, clientMessage{Type: opSubscribe, Topic: "vehicle:B2"})
	update := readUntil(t, late, hub.EventFixUpdate)
	if update.Fix == nil || update.Fix.VehicleID != "B2" {
		t.Fatalf("backfill = %+v, want B2", update.Fix)
	}
}

func TestWritePumpFailureTearsDownSession(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	st := store.NewRedisWithClient(rdb, store.Options{
		Retention: 7 * 24 * time.Hour,
		Freshness: 5 * time.Minute,
	})
	h := hub.New(st, slog.Default(), 16, 5*time.Minute)
	svc := tracker.New(st, h, auth.NewStaticVerifier(nil), registry.NewStatic(), tracker.Options{})
	srv := New(svc, h, slog.Default())

	// A real upgraded connection whose server side is already closed, so the
	// pump's next write fails the way a dead client's write deadline does.
	serverConns := make(chan *websocket.Conn, 1)
	up := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := up.Upgrade(w, r, nil); err == nil {
			serverConns <- c
		}
	}))
	t.Cleanup(ts.Close)
	dialWS(t, ts, "")
	conn := <-serverConns
	conn.Close()

	sess := h.NewSession()
	replies := make(chan serverMessage, 1)
	replies <- serverMessage{Type: "ok"}
	pumpDone := make(chan struct{})
	go func() {
		srv.writePump(conn, sess, replies)
		close(pumpDone)
	}()
	select {
	case <-pumpDone:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump did not exit on write failure")
	}
	select {
	case <-sess.Done():
	default:
		t.Fatal("session must be torn down when the write pump dies")
	}

	// A read loop parked handing off a reply must come unstuck as well.
	replied := make(chan struct{})
	go func() {
		srv.reply(sess, make(chan serverMessage), serverMessage{Type: "ok"})
		close(replied)
	}()
	select {
	case <-replied:
	case <-time.After(time.Second):
		t.Fatal("reply should return once the session is closed")
	}
}

func TestHTTPQueries(t *testing.T) {
	ts := newTestServer(t)

	driver := dialWS(t, ts, "?token=tok-d1")
	send(t, driver, clientMessage{Type: opSubmit, Report: &model.RawReport{
		VehicleID: "B3", Longitude: 79.86, Latitude: 6.93, Speed: fptr(50),
	}})
	readUntil(t, driver, "ok")

	resp, err := http.Get(ts.URL + "/api/vehicles/B3/latest")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("latest status = %d", resp.StatusCode)
	}
	var fix model.Fix
	if err := json.NewDecoder(resp.Body).Decode(&fix); err != nil {
		t.Fatal(err)
	}
	if fix.VehicleID != "B3" || fix.Status != model.StatusMoving {
		t.Fatalf("latest = %+v", fix)
	}

	resp2, err := http.Get(ts.URL + "/api/vehicles/nearby?lon=79.86&lat=6.93")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var nearby []model.NearbyFix
	if err := json.NewDecoder(resp2.Body).Decode(&nearby); err != nil {
		t.Fatal(err)
	}
	if len(nearby) != 1 || nearby[0].VehicleID != "B3" {
		t.Fatalf("nearby = %+v", nearby)
	}

	resp3, err := http.Get(ts.URL + "/api/vehicles/ghost/latest")
	if err != nil {
		t.Fatal(err)
	}
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Fatalf("missing vehicle status = %d, want 404", resp3.StatusCode)
	}
}
