package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRegistryReturnsSameMetric(t *testing.T) {
	r := NewRegistry("test")
	a := r.Counter("hits_total", "hits", nil)
	b := r.Counter("hits_total", "ignored", nil)
	if a != b {
		t.Fatal("expected the same counter for the same name")
	}
	a.Inc()
	a.Add(2)
	if b.Value() != 3 {
		t.Errorf("expected 3, got %d", b.Value())
	}
}

func TestHistogramBuckets(t *testing.T) {
	r := NewRegistry("")
	h := r.Histogram("size", "sizes", nil, []float64{10, 1, 5})
	for _, v := range []float64{0.5, 1, 3, 5, 7, 100} {
		h.Observe(v)
	}

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`size_bucket{le="1"} 2`,
		`size_bucket{le="5"} 4`,
		`size_bucket{le="10"} 5`,
		`size_bucket{le="+Inf"} 6`,
		`size_count 6`,
		"# TYPE size histogram",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if h.Count() != 6 {
		t.Errorf("expected 6 observations, got %d", h.Count())
	}
}

func TestWritePrometheusSortedWithLabels(t *testing.T) {
	r := NewRegistry("dm")
	r.Counter("b_total", "b", Labels{"z": "1", "a": "2"}).Inc()
	r.Counter("a_total", "a", nil)
	r.Gauge("open", "open", nil).Set(4)

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if strings.Index(out, "dm_a_total") > strings.Index(out, "dm_b_total") {
		t.Error("counters are not sorted by name")
	}
	if !strings.Contains(out, `dm_b_total{a="2",z="1"} 1`) {
		t.Errorf("labels not rendered in key order:\n%s", out)
	}
	if !strings.Contains(out, "dm_open 4") {
		t.Errorf("gauge missing:\n%s", out)
	}
}

func TestStrikeMetrics(t *testing.T) {
	m := NewStrikeMetrics(nil)

	m.SessionStarted(5)
	if m.ActiveSessions.Value() != 1 {
		t.Errorf("expected 1 active session, got %d", m.ActiveSessions.Value())
	}
	m.SessionEnded(time.Millisecond, 5, true, 0)

	m.SessionStarted(4)
	m.SessionEnded(time.Millisecond, 2, false, 1)
	m.Rejected(2)
	m.Verified(time.Millisecond, false, 3)

	if m.ActiveSessions.Value() != 0 {
		t.Errorf("expected no active sessions, got %d", m.ActiveSessions.Value())
	}
	if m.BytesStruck.Value() != 7 {
		t.Errorf("expected 7 bytes struck, got %d", m.BytesStruck.Value())
	}
	if m.SessionsSealed.Value() != 1 || m.SessionsAborted.Value() != 1 {
		t.Errorf("sealed/aborted = %d/%d", m.SessionsSealed.Value(), m.SessionsAborted.Value())
	}
	if m.ContaminantsFound.Value() != 6 {
		t.Errorf("expected 6 contaminants, got %d", m.ContaminantsFound.Value())
	}
	if m.VerificationsFailed.Value() != 1 {
		t.Errorf("expected 1 failed verification, got %d", m.VerificationsFailed.Value())
	}

	snap := m.Registry().Snapshot()
	if snap["dotmatrix_bytes_struck_total"] != uint64(7) {
		t.Errorf("snapshot mismatch: %v", snap["dotmatrix_bytes_struck_total"])
	}
}

func TestWriteJSON(t *testing.T) {
	m := NewStrikeMetrics(NewRegistry("x"))
	m.Rejected(1)

	var buf bytes.Buffer
	if err := m.Registry().WriteJSON(&buf); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["x_strikes_rejected_total"] != float64(1) {
		t.Errorf("unexpected value %v", decoded["x_strikes_rejected_total"])
	}
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector", "dotmatrix.prom")
	m := NewStrikeMetrics(nil)
	m.Verified(time.Millisecond, true, 0)

	if err := m.Registry().WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "dotmatrix_verifications_total 1") {
		t.Errorf("unexpected textfile:\n%s", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %v", entries)
	}
}

func TestWriteTextfileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dotmatrix.json")
	m := NewStrikeMetrics(nil)
	m.SessionStarted(4)
	m.SessionStarted(6)

	if err := m.Registry().WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, data)
	}

	tests := []struct {
		key  string
		want float64
	}{
		{"dotmatrix_strike_size_bytes_count", 2},
		{"dotmatrix_strike_size_bytes_sum", 10},
		{"dotmatrix_strike_size_bytes_mean", 5},
		{"dotmatrix_verify_duration_seconds_mean", 0},
	}
	for _, tt := range tests {
		if decoded[tt.key] != tt.want {
			t.Errorf("%s = %v, want %v", tt.key, decoded[tt.key], tt.want)
		}
	}
}
