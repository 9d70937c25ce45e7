package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r.SourceCallsTotal == nil || r.StageDuration == nil || r.GraphNodes == nil {
		t.Fatal("metrics not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}

	// private registries never collide
	_ = NewRegistry()
}

func TestRecordSourceCall(t *testing.T) {
	r := NewRegistry()

	r.RecordSourceCall("brasilapi", "success", 150*time.Millisecond)
	r.RecordSourceCall("brasilapi", "success", 50*time.Millisecond)
	r.RecordSourceCall("pncp", "failed", time.Second)

	if got := testutil.ToFloat64(r.SourceCallsTotal.WithLabelValues("brasilapi", "success")); got != 2 {
		t.Errorf("expected 2 brasilapi successes, got %v", got)
	}
	if got := testutil.ToFloat64(r.SourceCallsTotal.WithLabelValues("pncp", "failed")); got != 1 {
		t.Errorf("expected 1 pncp failure, got %v", got)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	r := NewRegistry()
	r.RecordCacheLookup(true)
	r.RecordCacheLookup(false)
	r.RecordCacheLookup(false)

	if got := testutil.ToFloat64(r.CacheLookupsTotal.WithLabelValues("miss")); got != 2 {
		t.Errorf("expected 2 misses, got %v", got)
	}
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	r.RecordSourceCall("x", "success", time.Second)
	r.RecordCacheLookup(true)
	r.RecordStage("success", time.Second)
	r.RecordInvestigation("general_query", "completed")
	r.RecordNetworkDetected("cartel")
	r.SetGraphSize(1, 1)
}

func TestWriteToTextfile(t *testing.T) {
	r := NewRegistry()
	r.RecordInvestigation("supplier_investigation", "completed")
	r.SetGraphSize(10, 12)

	path := filepath.Join(t.TempDir(), "lupa.prom")
	if err := r.WriteToTextfile(path); err != nil {
		t.Fatalf("WriteToTextfile failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(b)
	for _, want := range []string{
		`lupa_investigations_total{intent="supplier_investigation",status="completed"} 1`,
		"lupa_graph_nodes 10",
		"lupa_graph_edges 12",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}
