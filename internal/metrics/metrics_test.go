package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/blockflow/pkg/engine"
	"github.com/matzehuels/blockflow/pkg/model"
	"github.com/matzehuels/blockflow/pkg/observability"
	"github.com/matzehuels/blockflow/pkg/registry"
)

// counter returns the summed value of the counter family name whose labels
// include all of want.
func counter(t *testing.T, m *Metrics, name string, want map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range f.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestEngineEventsRecorded(t *testing.T) {
	m := New()
	m.Install()
	t.Cleanup(observability.Reset)

	e := engine.New(registry.Default(), engine.DefaultConfig(), engine.WithLogger(log.New(io.Discard)))
	defer e.Close()

	for _, n := range []model.Node{
		{ID: "s", Kind: registry.KindStart, Size: &model.Size{Width: 100, Height: 50}},
		{ID: "x", Kind: registry.KindEnd, Position: model.Position{X: 40}, Size: &model.Size{Width: 100, Height: 50}},
	} {
		if _, err := e.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := e.Connect("s", "out", "x", "in"); err == nil {
		t.Fatal("start -> end should be rejected")
	}
	sp := e.Spawner()
	_ = sp.BeginDrag("s", "out")
	_ = sp.Cancel()

	if got := counter(t, m, "blockflow_graph_changes_total", map[string]string{"kind": "nodes.added"}); got != 2 {
		t.Errorf("nodes.added = %v, want 2", got)
	}
	if got := counter(t, m, "blockflow_connections_rejected_total", map[string]string{"reason": "IncompatibleKinds"}); got != 1 {
		t.Errorf("rejections = %v, want 1", got)
	}
	if got := counter(t, m, "blockflow_layout_adjustments_total", map[string]string{"priority": "subject-yields"}); got != 2 {
		t.Errorf("adjustments = %v, want 2", got)
	}
	if got := counter(t, m, "blockflow_spawner_transitions_total", map[string]string{"from": "idle", "to": "dragging"}); got != 1 {
		t.Errorf("transitions = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.OnStorageSet(t.Context(), "file", 512)
	m.OnStorageMiss(t.Context(), "file")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`blockflow_storage_writes_total{backend="file"} 1`,
		`blockflow_storage_reads_total{backend="file",result="miss"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
