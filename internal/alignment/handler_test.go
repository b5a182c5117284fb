package alignment

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(t *testing.T, durations ...float64) (*chi.Mux, *Engine, []*fakePlayer) {
	t.Helper()
	e, players := newTestEngine(NewInMemoryKV(), durations...)
	h := NewHandler(e, discardLogger(), nil)
	r := chi.NewRouter()
	h.Routes(r)
	return r, e, players
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var resp response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestHandler_GetState(t *testing.T) {
	r, _, _ := newTestRouter(t, 10, 10)

	rec := do(r, http.MethodGet, "/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if len(resp.Status.Streams) != 2 || resp.Status.Message != statusIdle {
		t.Errorf("unexpected status %+v", resp.Status)
	}
}

func TestHandler_Mark_and_Align(t *testing.T) {
	r, _, players := newTestRouter(t, 10, 10, 10)

	if rec := do(r, http.MethodPost, "/streams/0/mark", `{"at":2}`); rec.Code != http.StatusOK {
		t.Fatalf("mark 0: expected 200, got %d", rec.Code)
	}
	players[1].setCurrent(5)
	if rec := do(r, http.MethodPost, "/streams/1/mark", ""); rec.Code != http.StatusOK {
		t.Fatalf("mark 1: expected 200, got %d", rec.Code)
	}

	rec := do(r, http.MethodPost, "/align", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("align: expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Result == nil || resp.Result.Plan == nil {
		t.Fatal("align response should carry the plan")
	}
	if len(resp.Result.Plan.Seeks) != 2 || resp.Result.Plan.Seeks[1].Target != 3 {
		t.Errorf("unexpected plan %+v", resp.Result.Plan)
	}
}

func TestHandler_Align_insufficient_marks(t *testing.T) {
	r, _, _ := newTestRouter(t, 10, 10)

	rec := do(r, http.MethodPost, "/align", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Status.Message != statusNeedMarks || resp.Error == "" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandler_stream_index_errors(t *testing.T) {
	r, _, _ := newTestRouter(t, 10)

	if rec := do(r, http.MethodPost, "/streams/abc/mark", `{"at":1}`); rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric index: expected 400, got %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/streams/4/mark", `{"at":1}`); rec.Code != http.StatusNotFound {
		t.Errorf("out of range index: expected 404, got %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/streams/0/nudge", "not json"); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}
}

func TestHandler_Nudge(t *testing.T) {
	r, e, players := newTestRouter(t, 10)
	players[0].setCurrent(4)

	rec := do(r, http.MethodPost, "/streams/0/nudge", `{"delta":-0.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Result == nil || resp.Result.Position == nil || *resp.Result.Position != 3.5 {
		t.Errorf("position: got %+v", resp.Result)
	}
	if m := e.Snapshot().Marks[0]; m == nil || *m != 3.5 {
		t.Errorf("mark: got %v", m)
	}
}

func TestHandler_SetEndPolicy(t *testing.T) {
	r, e, _ := newTestRouter(t, 10)

	if rec := do(r, http.MethodPut, "/end-policy", `{"policy":"loopFinished"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if e.EndPolicy() != LoopFinished {
		t.Errorf("policy: got %s", e.EndPolicy())
	}
	if rec := do(r, http.MethodPut, "/end-policy", `{"policy":"rewind"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown policy: expected 400, got %d", rec.Code)
	}
}

func TestHandler_PostCommand(t *testing.T) {
	r, e, _ := newTestRouter(t, 10, 10)

	rec := do(r, http.MethodPost, "/commands", `{"kind":"setReference","stream":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if e.Snapshot().ReferenceIndex != 1 {
		t.Errorf("reference: got %d", e.Snapshot().ReferenceIndex)
	}
	if rec := do(r, http.MethodPost, "/commands", `{"kind":"teleport"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown kind: expected 400, got %d", rec.Code)
	}
}

func TestHandler_SyncState_save_and_clear(t *testing.T) {
	r, _, _ := newTestRouter(t, 10)

	rec := do(r, http.MethodPost, "/sync-state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("save: expected 200, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Status.Message != statusSaved || resp.Status.LastSavedAt == nil {
		t.Errorf("save status %+v", resp.Status)
	}

	rec = do(r, http.MethodDelete, "/sync-state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Status.Message != statusCleared {
		t.Errorf("clear status %q", resp.Status.Message)
	}
}

func TestHandler_Save_write_failure_is_not_an_http_error(t *testing.T) {
	e, _ := newTestEngine(failingKV{NewInMemoryKV()}, 10)
	r := chi.NewRouter()
	NewHandler(e, discardLogger(), nil).Routes(r)

	rec := do(r, http.MethodPost, "/sync-state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Status.Message != statusSaveFailed || resp.Error == "" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandler_GetTimestamps(t *testing.T) {
	r, e, players := newTestRouter(t, 10, 0)
	players[0].setCurrent(1.5)
	_ = e.SetMark(0, 1)

	rec := do(r, http.MethodGet, "/timestamps", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Camera", "1.50s", "10.00s", "1.00s"} {
		if !strings.Contains(body, want) {
			t.Errorf("table missing %q:\n%s", want, body)
		}
	}

	rec = do(r, http.MethodGet, "/timestamps?format=json", "")
	var rows []TimestampRow
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(rows) != 2 || rows[0].Current == nil || *rows[0].Current != 1.5 || rows[1].Duration != nil {
		t.Errorf("unexpected rows %+v", rows)
	}
	if e.Status().Message != statusTimestamps {
		t.Errorf("status: got %q", e.Status().Message)
	}
}

func TestHandler_PlayAll_PauseAll_Reset(t *testing.T) {
	r, _, players := newTestRouter(t, 10, 10)

	for _, path := range []string{"/play", "/pause", "/reset"} {
		if rec := do(r, http.MethodPost, path, ""); rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
	calls := players[1].Calls()
	want := []string{"play", "pause", "pause", "seek"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls: got %v, want %v", calls, want)
	}
}
