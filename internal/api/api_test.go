package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rflorenc/mailbox-move-workbench/internal/migration"
	"github.com/rflorenc/mailbox-move-workbench/internal/models"
	"github.com/rflorenc/mailbox-move-workbench/internal/mover"
	"github.com/rflorenc/mailbox-move-workbench/internal/progress"
	"github.com/rflorenc/mailbox-move-workbench/internal/store"
)

// instantMover finds every mailbox except missing@... and moves instantly.
type instantMover struct{}

func (instantMover) Lookup(_ context.Context, identity string) (mover.MailboxInfo, error) {
	if strings.HasPrefix(identity, "missing@") {
		return mover.MailboxInfo{}, nil
	}
	return mover.MailboxInfo{Exists: true, SizeMB: 100}, nil
}

func (instantMover) Move(context.Context, string, string) (mover.MoveResult, error) {
	return mover.MoveResult{ItemsMoved: 3, BytesMoved: 3000}, nil
}

type testEnv struct {
	server  *Server
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	orch := migration.NewOrchestrator(st, instantMover{}, migration.Options{})
	s := &Server{
		Sessions:     st,
		Orchestrator: orch,
		Notifier:     progress.NewNotifier(st, 5*time.Millisecond),
		StoreBackend: "memory",
		MoverBackend: "simulated",
	}
	web := fstest.MapFS{
		"index.html": {Data: []byte("<!DOCTYPE html><title>Mailbox Move Workbench</title>")},
		"app.js":     {Data: []byte("console.log('ok')")},
	}
	t.Cleanup(orch.Wait)
	return &testEnv{server: s, handler: NewRouter(s, web)}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) startCompleted(t *testing.T, id string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/migrate", map[string]any{
		"session_id": id,
		"records":    testRecords(),
		"config":     map[string]any{"batch_size": 1},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("migrate status = %d: %s", rec.Code, rec.Body)
	}
	e.server.Orchestrator.Wait()
}

func testRecords() []models.MailboxRecord {
	return []models.MailboxRecord{
		{SourceEmail: "a@x.com", TargetEmail: "a@y.com", DisplayName: "A"},
		{SourceEmail: "b@x.com", TargetEmail: "b@y.com", DisplayName: "B"},
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]string
	json.NewDecoder(rec.Body).Decode(&got)
	if got["store"] != "memory" || got["mover"] != "simulated" {
		t.Errorf("health = %v", got)
	}
}

func uploadRequest(t *testing.T, field, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "mailboxes.csv")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte(content))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadRecords(t *testing.T) {
	e := newTestEnv(t)
	csvBody := "SourceEmail,TargetEmail,DisplayName\n" +
		"a@x.com,a@y.com,A\n" +
		"b@x.com,b@y.com,\n" +
		"c@x.com,c@y.com,C\n"

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, uploadRequest(t, "file", csvBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var got struct {
		Records []models.MailboxRecord `json:"records"`
		Total   int                    `json:"total"`
		Dropped int                    `json:"dropped"`
	}
	json.NewDecoder(rec.Body).Decode(&got)
	if got.Total != 2 || len(got.Records) != 2 || got.Dropped != 1 {
		t.Errorf("upload = %+v, want 2 records and 1 dropped", got)
	}
	for _, r := range got.Records {
		if r.SourceEmail == "b@x.com" {
			t.Error("record without display name was kept")
		}
	}
}

func TestUploadRecords_BadInput(t *testing.T) {
	e := newTestEnv(t)
	tests := []struct {
		name  string
		field string
		body  string
	}{
		{"wrong field", "upload", "SourceEmail,TargetEmail,DisplayName\n"},
		{"missing column", "file", "SourceEmail,TargetEmail\na@x.com,a@y.com\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.handler.ServeHTTP(rec, uploadRequest(t, tt.field, tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestValidateRecords(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/validate", map[string]any{
		"records": []models.MailboxRecord{
			{SourceEmail: "missing@x.com", TargetEmail: "m@y.com", DisplayName: "M"},
			{SourceEmail: "a@x.com", TargetEmail: "bad-target", DisplayName: "A"},
			{SourceEmail: "b@x.com", TargetEmail: "b@y.com", DisplayName: "B"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var got []models.ValidationOutcome
	json.NewDecoder(rec.Body).Decode(&got)
	want := []models.ValidationStatus{models.ValidationFailed, models.ValidationFailed, models.ValidationPassed}
	if len(got) != len(want) {
		t.Fatalf("got %d outcomes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Status != want[i] {
			t.Errorf("outcome %d status = %s, want %s", i, got[i].Status, want[i])
		}
	}
	if got[0].Record.SourceEmail != "missing@x.com" {
		t.Error("outcomes are not in input order")
	}
}

func TestStartMigration(t *testing.T) {
	e := newTestEnv(t)
	e.startCompleted(t, "s1")

	rec := e.do(t, http.MethodGet, "/api/sessions/s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sess models.MigrationSession
	json.NewDecoder(rec.Body).Decode(&sess)
	if sess.Status != models.SessionCompleted {
		t.Errorf("Status = %s, want completed", sess.Status)
	}
	if sess.Stats.Total != 2 || sess.Stats.Successful+sess.Stats.Failed != 2 || sess.Stats.InProgress != 0 {
		t.Errorf("Stats = %+v", sess.Stats)
	}
}

func TestStartMigration_GeneratesID(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/migrate", map[string]any{"records": testRecords()})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var got map[string]string
	json.NewDecoder(rec.Body).Decode(&got)
	if got["session_id"] == "" {
		t.Error("no session_id returned")
	}
}

func TestStartMigration_Errors(t *testing.T) {
	e := newTestEnv(t)
	e.startCompleted(t, "dup")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"no records", map[string]any{"records": []any{}}, http.StatusBadRequest},
		{"only incomplete records", map[string]any{"records": []models.MailboxRecord{{SourceEmail: "a@x.com"}}}, http.StatusBadRequest},
		{"duplicate id", map[string]any{"session_id": "dup", "records": testRecords()}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/migrate", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
			var body map[string]string
			json.NewDecoder(rec.Body).Decode(&body)
			if body["error"] == "" {
				t.Error("error response has no message")
			}
		})
	}
}

func TestSessions_ListAndNotFound(t *testing.T) {
	e := newTestEnv(t)
	e.startCompleted(t, "s1")

	rec := e.do(t, http.MethodGet, "/api/sessions", nil)
	var list []models.Summary
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list) != 1 || list[0].ID != "s1" || list[0].Status != models.SessionCompleted {
		t.Errorf("list = %+v", list)
	}

	if rec := e.do(t, http.MethodGet, "/api/sessions/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", rec.Code)
	}
}

func TestDownloadReport(t *testing.T) {
	e := newTestEnv(t)
	e.startCompleted(t, "s1")

	rec := e.do(t, http.MethodGet, "/api/sessions/s1/report?format=delimited", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	cd := rec.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, `attachment; filename="mailbox-migration-report-`) || !strings.HasSuffix(cd, `.csv"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("reading CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("got %d rows, want header + 2", len(rows))
	}

	rec = e.do(t, http.MethodGet, "/api/sessions/s1/report?format=html", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Mailbox Migration Report") {
		t.Errorf("document report status = %d", rec.Code)
	}
}

func TestDownloadReport_Errors(t *testing.T) {
	e := newTestEnv(t)
	e.startCompleted(t, "s1")

	if rec := e.do(t, http.MethodGet, "/api/sessions/s1/report?format=pdf", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad format status = %d, want 400", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/api/sessions/nope/report", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", rec.Code)
	}
}

func TestStreamProgress_UnknownSession(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/sessions/nope/progress", nil)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if strings.Count(body, "event: ") != 1 || !strings.Contains(body, "event: error\n") {
		t.Errorf("body = %q, want a single error event", body)
	}
	for _, never := range []string{"event: connected", "event: progress", "event: complete"} {
		if strings.Contains(body, never) {
			t.Errorf("body contains %q", never)
		}
	}
}

func TestStreamProgress_CompletedSession(t *testing.T) {
	e := newTestEnv(t)
	e.startCompleted(t, "s1")

	first := e.do(t, http.MethodGet, "/api/sessions/s1/progress", nil).Body.String()
	second := e.do(t, http.MethodGet, "/api/sessions/s1/progress", nil).Body.String()

	connected := strings.Index(first, "event: connected\n")
	complete := strings.Index(first, "event: complete\n")
	if connected < 0 || complete < connected {
		t.Fatalf("body = %q, want connected then complete", first)
	}
	if first != second {
		t.Error("repeated streams of a completed session differ")
	}
}

func TestStreamProgressWS(t *testing.T) {
	e := newTestEnv(t)
	e.startCompleted(t, "s1")

	ts := httptest.NewServer(e.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions/s1/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	var types []progress.EventType
	for {
		var ev struct {
			Type progress.EventType `json:"type"`
			Data json.RawMessage    `json:"data"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		types = append(types, ev.Type)
	}
	if len(types) != 2 || types[0] != progress.EventConnected || types[1] != progress.EventComplete {
		t.Errorf("events = %v, want [connected complete]", types)
	}
}

func TestStaticFiles(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/", "/sessions/s1"} {
		rec := e.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Mailbox Move Workbench") {
			t.Errorf("GET %s = %d %q, want index.html", path, rec.Code, rec.Body)
		}
	}
	rec := e.do(t, http.MethodGet, "/app.js", nil)
	if !strings.Contains(rec.Body.String(), "console.log") {
		t.Errorf("GET /app.js = %q", rec.Body)
	}
}
