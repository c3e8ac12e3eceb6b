package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MJE43/raid-frame-finder/internal/engine"
	"github.com/MJE43/raid-frame-finder/internal/scan"
	"github.com/MJE43/raid-frame-finder/internal/store"
	"github.com/MJE43/raid-frame-finder/internal/worker"
)

const excadrillJSON = `{"species":530,"min_flawless_ivs":4,"ability_pool":"random","gender_pool":"random","gender_ratio":127,"shiny_pool":"random"}`

func newTestServer(t *testing.T, withDB bool, opts ...Option) *Server {
	t.Helper()
	var db store.DB
	if withDB {
		sqlite, err := store.NewSQLiteDB(":memory:")
		if err != nil {
			t.Fatalf("Failed to create test database: %v", err)
		}
		if err := sqlite.Migrate(context.Background()); err != nil {
			t.Fatalf("Failed to migrate: %v", err)
		}
		t.Cleanup(func() { sqlite.Close() })
		db = sqlite
	}
	opts = append([]Option{WithLogger(log.New(io.Discard, "", 0)), WithAuditOutput(io.Discard), WithWorkers(2)}, opts...)
	server := NewServer(db, opts...)
	t.Cleanup(server.Close)
	return server
}

func do(t *testing.T, server *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, errType string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("Expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
	var e EngineError
	decode(t, w, &e)
	if e.Type != errType {
		t.Errorf("Expected error type %s, got %s (%s)", errType, e.Type, e.Message)
	}
	if got := w.Header().Get("X-Error-Type"); got != errType {
		t.Errorf("Expected X-Error-Type %s, got %s", errType, got)
	}
}

func TestHealthEndpoints(t *testing.T) {
	server := newTestServer(t, true)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		w := do(t, server, "GET", path, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, w.Code)
		}
	}

	w := do(t, server, "GET", "/health", "")
	var health HealthCheckResponse
	decode(t, w, &health)
	if health.Status != HealthStatusHealthy {
		t.Errorf("Expected healthy, got %s: %+v", health.Status, health.Checks)
	}
}

func TestHealthWithoutDatabaseIsDegraded(t *testing.T) {
	server := newTestServer(t, false)

	w := do(t, server, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var health HealthCheckResponse
	decode(t, w, &health)
	if health.Status != HealthStatusDegraded {
		t.Errorf("Expected degraded, got %s", health.Status)
	}

	expectError(t, do(t, server, "GET", "/api/v1/runs", ""), http.StatusServiceUnavailable, ErrTypeServiceUnavailable)
}

func TestDensEndpoints(t *testing.T) {
	server := newTestServer(t, false)

	w := do(t, server, "GET", "/api/v1/dens?title=shield", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var list DensResponse
	decode(t, w, &list)
	if len(list.Dens) != 3 {
		t.Fatalf("Expected 3 dens, got %d", len(list.Dens))
	}

	w = do(t, server, "GET", "/api/v1/dens/2?title=shield", "")
	var den DenView
	decode(t, w, &den)
	if den.Entries[1].Species != 678 || den.Entries[1].GenderPool != engine.GenderLockedFemale {
		t.Errorf("Unexpected den 2 shield entry 1: %+v", den.Entries[1])
	}

	w = do(t, server, "GET", "/api/v1/dens/1?badge=baby", "")
	decode(t, w, &den)
	if len(den.Entries) != 2 {
		t.Errorf("Expected 2 baby entries, got %d", len(den.Entries))
	}

	expectError(t, do(t, server, "GET", "/api/v1/dens/999", ""), http.StatusNotFound, ErrTypeDenNotFound)
	expectError(t, do(t, server, "GET", "/api/v1/dens?title=violet", ""), http.StatusBadRequest, ErrTypeValidation)
}

func TestFramesEndpoint(t *testing.T) {
	server := newTestServer(t, false)

	body := `{"encounter":` + excadrillJSON + `,"seed":"C816C270FD1CD8FD","count":3}`
	w := do(t, server, "POST", "/api/v1/frames", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp FramesResponse
	decode(t, w, &resp)
	if len(resp.Frames) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(resp.Frames))
	}
	first := resp.Frames[0]
	if first.IVs != (engine.IVs{31, 15, 2, 31, 31, 31}) || first.Nature != engine.Brave || first.Gender != engine.GenderMale {
		t.Errorf("Unexpected first frame: %+v", first)
	}
	if resp.Frames[2].Skips != 2 {
		t.Errorf("Expected skips 2 on the third frame, got %d", resp.Frames[2].Skips)
	}

	w = do(t, server, "POST", "/api/v1/frames", `{"encounter":`+excadrillJSON+`,"seed":"c816c270fd1cd8fd","skip":1,"count":1}`)
	var offset FramesResponse
	decode(t, w, &offset)
	if offset.Frames[0] != resp.Frames[1] {
		t.Errorf("Frame at skip 1 differs from listing: %+v vs %+v", offset.Frames[0], resp.Frames[1])
	}
}

func TestFramesFromDenEntry(t *testing.T) {
	server := newTestServer(t, false)

	body := `{"den":{"den":"2","title":"shield","index":1},"seed":"1","count":5}`
	w := do(t, server, "POST", "/api/v1/frames", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp FramesResponse
	decode(t, w, &resp)
	for _, f := range resp.Frames {
		if f.Gender != engine.GenderFemale {
			t.Errorf("Locked female entry produced %s at skip %d", f.Gender, f.Skips)
		}
	}
}

func TestSearchEndpoint(t *testing.T) {
	server := newTestServer(t, true)

	body := `{"encounter":` + excadrillJSON + `,"seed":"0xbb810e6006a2a035","filter":{"shiny":"square"}}`
	w := do(t, server, "POST", "/api/v1/search", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SearchResponse
	decode(t, w, &resp)
	if !resp.Found || resp.Skips != 6 {
		t.Fatalf("Expected match at skip 6, got found=%t skips=%d", resp.Found, resp.Skips)
	}
	if resp.Frame.Seed != 0xcb51371ed6531e57 || resp.Frame.Nature != engine.Bashful {
		t.Errorf("Unexpected frame: %+v", resp.Frame)
	}
	if resp.Evaluated != 7 {
		t.Errorf("Expected 7 frames evaluated, got %d", resp.Evaluated)
	}
	if resp.RunID == "" {
		t.Fatal("Expected the search to be recorded")
	}

	w = do(t, server, "GET", "/api/v1/runs/"+resp.RunID, "")
	var run store.Run
	decode(t, w, &run)
	if run.Kind != store.KindSearch || run.Seed != "bb810e6006a2a035" || run.HitCount != 1 {
		t.Errorf("Unexpected run record: %+v", run)
	}

	w = do(t, server, "GET", "/api/v1/runs/"+resp.RunID+"/hits", "")
	var hits store.HitsPage
	decode(t, w, &hits)
	if hits.TotalCount != 1 || hits.Hits[0].Seed != "cb51371ed6531e57" {
		t.Errorf("Unexpected hits: %+v", hits)
	}

	w = do(t, server, "GET", "/api/v1/settings/last_search", "")
	var last store.Setting
	decode(t, w, &last)
	if !bytes.Contains(last.Value, []byte(`0xbb810e6006a2a035`)) {
		t.Errorf("Expected last search to hold the seed, got %s", last.Value)
	}
}

func TestSearchWithScript(t *testing.T) {
	server := newTestServer(t, false)

	body := `{"encounter":` + excadrillJSON + `,"seed":"bb810e6006a2a035","filter":{"shiny":"any"},"script":"frame.nature == \"bashful\" && frame.ability == \"hidden\""}`
	w := do(t, server, "POST", "/api/v1/search", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	decode(t, w, &resp)
	if !resp.Found || resp.Skips != 6 {
		t.Errorf("Expected match at skip 6, got found=%t skips=%d", resp.Found, resp.Skips)
	}
	if resp.RunID != "" {
		t.Errorf("Expected no run id without a database, got %s", resp.RunID)
	}
}

func TestSearchReturnsScriptLogs(t *testing.T) {
	server := newTestServer(t, false)

	script := `function match(frame) { if (frame.skips == 6) { log(\"hit\", frame.nature); return true; } return false; }`
	body := `{"encounter":` + excadrillJSON + `,"seed":"bb810e6006a2a035","script":"` + script + `"}`
	w := do(t, server, "POST", "/api/v1/search", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	decode(t, w, &resp)
	if resp.Skips != 6 || len(resp.ScriptLogs) != 1 || resp.ScriptLogs[0] != "hit bashful" {
		t.Errorf("Unexpected script output: skips=%d logs=%q", resp.Skips, resp.ScriptLogs)
	}
}

// gatedSearch holds every search until release is closed, then reports a
// match at the seed's value. Each call is announced on started.
func gatedSearch(started chan<- struct{}, release <-chan struct{}) worker.SearchFunc {
	return func(ctx context.Context, enc engine.Encounter, seed engine.Seed, m scan.Matcher) (scan.Result, error) {
		started <- struct{}{}
		select {
		case <-ctx.Done():
			return scan.Result{}, ctx.Err()
		case <-release:
			return scan.Result{Found: true, Skips: uint64(seed), Evaluated: uint64(seed) + 1}, nil
		}
	}
}

// searchConcurrently sends two searches with the given client IDs, the
// second only once the first is running, and releases them together
func searchConcurrently(t *testing.T, clients [2]string) [2]*httptest.ResponseRecorder {
	t.Helper()
	started := make(chan struct{}, len(clients))
	release := make(chan struct{})
	d := worker.NewDispatcher(worker.WithSearch(gatedSearch(started, release)))
	server := newTestServer(t, false, WithDispatcher(d))

	var results [2]*httptest.ResponseRecorder
	var wg sync.WaitGroup
	for i, client := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := `{"encounter":` + excadrillJSON + `,"seed":"` + strconv.Itoa(i+1) + `"}`
			req := httptest.NewRequest("POST", "/api/v1/search", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Client-ID", client)
			w := httptest.NewRecorder()
			server.Routes().ServeHTTP(w, req)
			results[i] = w
		}()
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatalf("Search %d did not start", i+1)
		}
	}
	close(release)
	wg.Wait()
	return results
}

func TestConcurrentSearchesFromDifferentClients(t *testing.T) {
	results := searchConcurrently(t, [2]string{"client-1", "client-2"})
	for i, w := range results {
		if w.Code != http.StatusOK {
			t.Fatalf("Search %d: expected status 200, got %d: %s", i+1, w.Code, w.Body.String())
		}
		var resp SearchResponse
		decode(t, w, &resp)
		if !resp.Found || resp.Skips != uint64(i+1) {
			t.Errorf("Search %d: unexpected result found=%t skips=%d", i+1, resp.Found, resp.Skips)
		}
	}
}

func TestNewerSearchFromSameClientSupersedes(t *testing.T) {
	results := searchConcurrently(t, [2]string{"tab-1", "tab-1"})
	expectError(t, results[0], http.StatusConflict, ErrTypeSuperseded)
	if results[1].Code != http.StatusOK {
		t.Fatalf("Expected the newer search to succeed, got %d: %s", results[1].Code, results[1].Body.String())
	}
}

func TestSearchRejectsBadInput(t *testing.T) {
	server := newTestServer(t, false)

	tests := []struct {
		name    string
		body    string
		status  int
		errType string
	}{
		{"invalid json", `not json`, http.StatusBadRequest, ErrTypeValidation},
		{"bad seed", `{"encounter":` + excadrillJSON + `,"seed":"xyz"}`, http.StatusBadRequest, ErrTypeInvalidSeed},
		{"oversized seed", `{"encounter":` + excadrillJSON + `,"seed":"1ffffffffffffffff"}`, http.StatusBadRequest, ErrTypeInvalidSeed},
		{"no target", `{"seed":"1"}`, http.StatusBadRequest, ErrTypeValidation},
		{"bad encounter", `{"encounter":{"species":530,"min_flawless_ivs":0},"seed":"1"}`, http.StatusBadRequest, ErrTypeInvalidEncounter},
		{"unknown den", `{"den":{"den":"999","title":"sword"},"seed":"1"}`, http.StatusNotFound, ErrTypeDenNotFound},
		{"bad nature", `{"encounter":` + excadrillJSON + `,"seed":"1","filter":{"natures":["grumpy"]}}`, http.StatusBadRequest, ErrTypeValidation},
		{
			"too many low ivs",
			`{"encounter":` + excadrillJSON + `,"seed":"1","filter":{"ivs":[{"direction":"at_most","judgment":"very_good"},{"direction":"at_most","judgment":"no_good"},{"direction":"at_most","judgment":"decent"},null,null,null]}}`,
			http.StatusBadRequest, ErrTypeUnsatisfiable,
		},
		{"script syntax", `{"encounter":` + excadrillJSON + `,"seed":"1","script":"frame.ivs["}`, http.StatusBadRequest, ErrTypeScript},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, do(t, server, "POST", "/api/v1/search", tt.body), tt.status, tt.errType)
		})
	}
}

func TestScanEndpoint(t *testing.T) {
	server := newTestServer(t, true)

	body := `{"encounter":` + excadrillJSON + `,"seed":"bb810e6006a2a035","skip_end":20000,"filter":{"shiny":"any"}}`
	w := do(t, server, "POST", "/api/v1/scan", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ScanResponse
	decode(t, w, &resp)
	if len(resp.Hits) < 2 || resp.Hits[0].Skips != 6 || resp.Hits[1].Skips != 11062 {
		t.Fatalf("Expected hits at 6 and 11062, got %+v", resp.Hits)
	}
	if resp.Summary.TotalEvaluated != 20001 {
		t.Errorf("Expected 20001 frames evaluated, got %d", resp.Summary.TotalEvaluated)
	}

	w = do(t, server, "GET", "/api/v1/runs?kind=scan", "")
	var runs store.RunsList
	decode(t, w, &runs)
	if runs.TotalCount != 1 || runs.Runs[0].ID != resp.RunID {
		t.Errorf("Expected the scan to be listed, got %+v", runs)
	}

	w = do(t, server, "DELETE", "/api/v1/runs/"+resp.RunID, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	expectError(t, do(t, server, "GET", "/api/v1/runs/"+resp.RunID, ""), http.StatusNotFound, ErrTypeNotFound)
}

func TestScanValidation(t *testing.T) {
	server := newTestServer(t, false)

	expectError(t, do(t, server, "POST", "/api/v1/scan",
		`{"encounter":`+excadrillJSON+`,"seed":"1","skip_start":10,"skip_end":5}`),
		http.StatusBadRequest, ErrTypeInvalidRange)
	expectError(t, do(t, server, "POST", "/api/v1/scan",
		`{"encounter":`+excadrillJSON+`,"seed":"1","skip_end":5,"limit":-1}`),
		http.StatusBadRequest, ErrTypeValidation)
}

func TestSettingsEndpoints(t *testing.T) {
	server := newTestServer(t, true)

	expectError(t, do(t, server, "GET", "/api/v1/settings/den", ""), http.StatusNotFound, ErrTypeNotFound)

	w := do(t, server, "PUT", "/api/v1/settings/den", `{"title":"shield","badge":"adult"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, server, "GET", "/api/v1/settings/den", "")
	var setting store.Setting
	decode(t, w, &setting)
	if !bytes.Contains(setting.Value, []byte(`"adult"`)) {
		t.Errorf("Unexpected setting value %s", setting.Value)
	}

	expectError(t, do(t, server, "PUT", "/api/v1/settings/den", `{`), http.StatusBadRequest, ErrTypeValidation)
	expectError(t, do(t, server, "PUT", "/api/v1/settings/BAD", `1`), http.StatusBadRequest, ErrTypeValidation)
}

func TestVersionEndpoint(t *testing.T) {
	server := newTestServer(t, false)

	w := do(t, server, "GET", "/api/v1/version", "")
	var info VersionInfo
	decode(t, w, &info)
	if info.GeneratorVersion == "" || info.EngineVersion == "" {
		t.Errorf("Expected version fields, got %+v", info)
	}
}
