package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/blockflow/pkg/engine"
	"github.com/matzehuels/blockflow/pkg/registry"
	"github.com/matzehuels/blockflow/pkg/storage"
)

func newServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	logger := log.New(io.Discard)
	eng := engine.New(registry.Default(), engine.DefaultConfig(), engine.WithLogger(logger))
	t.Cleanup(eng.Close)

	backend, err := storage.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { backend.Close() })

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	return New(eng, Options{Flows: storage.NewFlows(backend, logger), Metrics: metrics, Logger: logger}), eng
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d: %s", rec.Code, want, rec.Body.String())
	}
}

func seed(t *testing.T, s *Server, bodies ...string) {
	t.Helper()
	for _, b := range bodies {
		expectStatus(t, do(t, s, http.MethodPost, "/nodes", b), http.StatusCreated)
	}
}

func TestMeta(t *testing.T) {
	s, _ := newServer(t)

	rec := do(t, s, http.MethodGet, "/healthz", "")
	expectStatus(t, rec, http.StatusOK)
	if decodeBody(t, rec)["status"] != "ok" {
		t.Errorf("healthz = %s", rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/version", "")
	expectStatus(t, rec, http.StatusOK)
	if _, ok := decodeBody(t, rec)["version"]; !ok {
		t.Errorf("version = %s", rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/metrics", "")
	expectStatus(t, rec, http.StatusOK)

	rec = do(t, s, http.MethodGet, "/kinds", "")
	expectStatus(t, rec, http.StatusOK)
	var kinds []kindView
	if err := json.Unmarshal(rec.Body.Bytes(), &kinds); err != nil {
		t.Fatal(err)
	}
	if len(kinds) != registry.Default().Len() || kinds[0].Kind != registry.KindStart {
		t.Errorf("kinds = %+v", kinds)
	}
}

func TestCreateAndEditNodes(t *testing.T) {
	s, eng := newServer(t)

	rec := do(t, s, http.MethodPost, "/nodes",
		`{"kind":"text-message","position":{"x":10,"y":20},"size":{"width":200,"height":96}}`)
	expectStatus(t, rec, http.StatusCreated)
	created := decodeBody(t, rec)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("created = %v", created)
	}
	if created["size"] == nil {
		t.Error("size not applied")
	}

	rec = do(t, s, http.MethodPatch, "/nodes/"+id+"/payload", `{"path":"$.message","value":"Hi!"}`)
	expectStatus(t, rec, http.StatusOK)
	if n, _ := eng.Node(id); n.Payload["message"] != "Hi!" {
		t.Errorf("payload = %v", n.Payload)
	}

	rec = do(t, s, http.MethodPatch, "/nodes/"+id+"/payload", `{"path":"$.channel","value":"pigeon"}`)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if decodeBody(t, rec)["code"] != "INVALID_PAYLOAD" {
		t.Errorf("body = %s", rec.Body.String())
	}

	rec = do(t, s, http.MethodPatch, "/nodes/"+id, `{"position":{"x":500,"y":500}}`)
	expectStatus(t, rec, http.StatusOK)
	if n, _ := eng.Node(id); n.Position.X != 500 || n.Position.Y != 500 {
		t.Errorf("position = %+v", n.Position)
	}

	rec = do(t, s, http.MethodPut, "/panel/"+id, "")
	expectStatus(t, rec, http.StatusOK)
	if decodeBody(t, rec)["panel"] != "text-message" {
		t.Errorf("panel = %s", rec.Body.String())
	}
	expectStatus(t, do(t, s, http.MethodDelete, "/panel", ""), http.StatusNoContent)

	expectStatus(t, do(t, s, http.MethodDelete, "/nodes", `{"ids":["`+id+`"]}`), http.StatusNoContent)
	if len(eng.Nodes()) != 0 {
		t.Errorf("nodes = %v", eng.Nodes())
	}
}

func TestErrorMapping(t *testing.T) {
	s, _ := newServer(t)
	seed(t, s,
		`{"id":"s","kind":"start","size":{"width":100,"height":50}}`,
		`{"id":"t1","kind":"tags","position":{"x":300},"size":{"width":100,"height":50}}`,
		`{"id":"t2","kind":"tags","position":{"x":600},"size":{"width":100,"height":50}}`,
	)
	expectStatus(t, do(t, s, http.MethodPost, "/edges",
		`{"source":"s","sourceHandle":"out","target":"t2","targetHandle":"in"}`), http.StatusCreated)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
		reason string
	}{
		{"unknown node", http.MethodPatch, "/nodes/nope", `{"position":{"x":1,"y":1}}`, 404, "NOT_FOUND", ""},
		{"duplicate id", http.MethodPost, "/nodes", `{"id":"s","kind":"start"}`, 409, "DUPLICATE_ID", ""},
		{"unknown kind", http.MethodPost, "/nodes", `{"kind":"teleport"}`, 422, "UNKNOWN_KIND", ""},
		{"arity", http.MethodPost, "/edges", `{"source":"t1","sourceHandle":"out","target":"t2","targetHandle":"in"}`, 422, "INVALID_CONNECTION", "ArityExceeded"},
		{"self loop", http.MethodPost, "/edges", `{"source":"t1","sourceHandle":"out","target":"t1","targetHandle":"in"}`, 422, "INVALID_CONNECTION", "SelfLoop"},
		{"unknown field", http.MethodPost, "/edges", `{"from":"t1"}`, 400, "INVALID_INPUT", ""},
		{"empty patch", http.MethodPatch, "/nodes/s", `{}`, 400, "INVALID_INPUT", ""},
		{"missing edge", http.MethodDelete, "/edges/nope", "", 404, "NOT_FOUND", ""},
		{"bad format", http.MethodGet, "/graph/render?format=gif", "", 400, "INVALID_INPUT", ""},
		{"spawner idle", http.MethodPost, "/spawner/choose", `{"kind":"tags"}`, 409, "INVALID_STATE", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			expectStatus(t, rec, tt.status)
			body := decodeBody(t, rec)
			if body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}
			if tt.reason != "" && body["reason"] != tt.reason {
				t.Errorf("reason = %v, want %s", body["reason"], tt.reason)
			}
		})
	}
}

func TestCheckConnection(t *testing.T) {
	s, eng := newServer(t)
	seed(t, s,
		`{"id":"a","kind":"tags","size":{"width":100,"height":50}}`,
		`{"id":"b","kind":"tags","position":{"x":300},"size":{"width":100,"height":50}}`,
	)

	rec := do(t, s, http.MethodPost, "/edges/check",
		`{"source":"a","sourceHandle":"out","target":"b","targetHandle":"in"}`)
	expectStatus(t, rec, http.StatusOK)
	if decodeBody(t, rec)["valid"] != true {
		t.Errorf("check = %s", rec.Body.String())
	}

	rec = do(t, s, http.MethodPost, "/edges/check",
		`{"source":"a","sourceHandle":"out","target":"a","targetHandle":"in"}`)
	expectStatus(t, rec, http.StatusOK)
	if body := decodeBody(t, rec); body["valid"] != false || body["reason"] != "SelfLoop" {
		t.Errorf("check = %s", rec.Body.String())
	}
	if len(eng.Edges()) != 0 {
		t.Error("check added an edge")
	}
}

func TestSpawnerWorkflow(t *testing.T) {
	s, eng := newServer(t)
	seed(t, s, `{"id":"s","kind":"start","size":{"width":100,"height":50}}`)

	rec := do(t, s, http.MethodPost, "/spawner/drag", `{"node":"s","handle":"out"}`)
	expectStatus(t, rec, http.StatusOK)
	if decodeBody(t, rec)["state"] != "dragging" {
		t.Errorf("drag = %s", rec.Body.String())
	}

	rec = do(t, s, http.MethodPost, "/spawner/drop", `{"overHandle":false,"position":{"x":400,"y":300}}`)
	expectStatus(t, rec, http.StatusOK)
	var view spawnerView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.State != "menu-open" || len(view.Candidates) == 0 {
		t.Fatalf("drop = %s", rec.Body.String())
	}
	for _, c := range view.Candidates {
		if c.Kind == registry.KindEnd || c.Kind == registry.KindStart {
			t.Errorf("candidate %s offered after start", c.Kind)
		}
	}

	rec = do(t, s, http.MethodPost, "/spawner/choose", `{"kind":"text-message"}`)
	expectStatus(t, rec, http.StatusCreated)
	var chosen chooseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &chosen); err != nil {
		t.Fatal(err)
	}
	if chosen.Edge.Source != "s" || chosen.Edge.Target != chosen.Node.ID {
		t.Errorf("choose = %+v", chosen)
	}
	if len(eng.Nodes()) != 2 || len(eng.Edges()) != 1 {
		t.Errorf("graph = %s", eng)
	}
	if eng.UI().Blurred {
		t.Error("canvas still blurred")
	}
}

func TestGraphReplace(t *testing.T) {
	s, eng := newServer(t)
	seed(t, s, `{"id":"keep","kind":"tags","size":{"width":100,"height":50}}`)

	bad := `{"version":1,"nodes":[{"id":"a","kind":"tags","position":{"x":0,"y":0},"payload":{}}],
		"edges":[{"id":"e","source":"a","sourceHandle":"out","target":"ghost","targetHandle":"in"}]}`
	rec := do(t, s, http.MethodPut, "/graph", bad)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if decodeBody(t, rec)["code"] != "CORRUPT_GRAPH" {
		t.Errorf("body = %s", rec.Body.String())
	}
	if _, ok := eng.Node("keep"); !ok {
		t.Fatal("failed import changed the graph")
	}

	good := `{"version":1,"nodes":[
		{"id":"a","kind":"start","position":{"x":0,"y":0},"payload":{}},
		{"id":"b","kind":"end","position":{"x":300,"y":0},"payload":{}}],"edges":[]}`
	expectStatus(t, do(t, s, http.MethodPut, "/graph", good), http.StatusOK)

	rec = do(t, s, http.MethodGet, "/graph", "")
	expectStatus(t, rec, http.StatusOK)
	var view graphView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if len(view.Nodes) != 2 || view.Nodes[0].ID != "a" {
		t.Errorf("graph = %s", rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/graph/render", "")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"a" [label="Start\na"`) {
		t.Errorf("render = %s", rec.Body.String())
	}
}

func TestStoredFlows(t *testing.T) {
	s, eng := newServer(t)
	seed(t, s,
		`{"id":"a","kind":"tags","size":{"width":100,"height":50}}`,
		`{"id":"b","kind":"tags","position":{"x":300},"size":{"width":100,"height":50}}`,
	)
	expectStatus(t, do(t, s, http.MethodPost, "/edges",
		`{"source":"a","sourceHandle":"out","target":"b","targetHandle":"in"}`), http.StatusCreated)

	expectStatus(t, do(t, s, http.MethodPost, "/flows/onboarding", ""), http.StatusCreated)

	rec := do(t, s, http.MethodGet, "/flows", "")
	expectStatus(t, rec, http.StatusOK)
	if body := decodeBody(t, rec); body["count"] != float64(1) {
		t.Errorf("list = %s", rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/flows/onboarding", "")
	expectStatus(t, rec, http.StatusOK)
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"sourceHandle": "out"`)) {
		t.Errorf("flow = %s", rec.Body.String())
	}

	expectStatus(t, do(t, s, http.MethodDelete, "/nodes", `{"ids":["a","b"]}`), http.StatusNoContent)
	expectStatus(t, do(t, s, http.MethodPost, "/flows/onboarding/load", ""), http.StatusOK)
	if len(eng.Nodes()) != 2 || len(eng.Edges()) != 1 {
		t.Errorf("after load: %s", eng)
	}

	expectStatus(t, do(t, s, http.MethodDelete, "/flows/onboarding", ""), http.StatusNoContent)
	expectStatus(t, do(t, s, http.MethodGet, "/flows/onboarding", ""), http.StatusNotFound)
	expectStatus(t, do(t, s, http.MethodGet, "/flows/a..b", ""), http.StatusBadRequest)
}

func TestServeShutdown(t *testing.T) {
	s, _ := newServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skip("listen:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
