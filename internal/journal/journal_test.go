package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"dotmatrix/internal/alphabet"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"), 1000)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesDirectory(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nested", "dir", "journal.db"), 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := 0; i < 2; i++ {
		s, err := Open(path, 0)
		if err != nil {
			t.Fatalf("Open #%d failed: %v", i+1, err)
		}
		v, err := currentVersion(s.db)
		if err != nil {
			t.Fatal(err)
		}
		if v != SchemaVersion {
			t.Errorf("expected schema version %d, got %d", SchemaVersion, v)
		}
		s.Close()
	}
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestCloseNil(t *testing.T) {
	var s *Store
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil store should not error: %v", err)
	}
}

func TestRecordAndListStrikes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	clean := &StrikeRecord{
		Timestamp: base,
		Path:      "/tmp/out.txt",
		Requested: 5,
		Strikes:   5,
		State:     "sealed",
	}
	dirty := &StrikeRecord{
		Timestamp:    base.Add(time.Second),
		RequestID:    "req-2",
		Path:         "/tmp/bad.txt",
		Requested:    4,
		Strikes:      2,
		State:        "aborted",
		Contaminated: true,
		Contaminants: []alphabet.Contaminant{
			{Position: 2, Value: 160, Description: alphabet.DescNBSP},
		},
		Error: "alphabet: byte outside alphabet",
	}

	for _, r := range []*StrikeRecord{clean, dirty} {
		id, err := s.RecordStrike(ctx, r)
		if err != nil {
			t.Fatalf("RecordStrike failed: %v", err)
		}
		if id == 0 || r.ID != id {
			t.Errorf("expected ID to be assigned, got %d / %d", id, r.ID)
		}
	}

	records, err := s.Strikes(ctx, 0)
	if err != nil {
		t.Fatalf("Strikes failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	got := records[0]
	if got.Path != "/tmp/bad.txt" {
		t.Errorf("expected newest first, got %s", got.Path)
	}
	if !got.Contaminated || got.Strikes != 2 || got.State != "aborted" || got.RequestID != "req-2" {
		t.Errorf("unexpected record %+v", got)
	}
	if len(got.Contaminants) != 1 || got.Contaminants[0] != dirty.Contaminants[0] {
		t.Errorf("contaminants did not survive storage: %+v", got.Contaminants)
	}
	if records[1].Contaminants != nil || records[1].Error != "" {
		t.Errorf("clean record gained data: %+v", records[1])
	}

	limited, err := s.Strikes(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 record with limit, got %d", len(limited))
	}
}

func TestLastVerification(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	none, err := s.LastVerification(ctx, "/tmp/none")
	if err != nil || none != nil {
		t.Fatalf("expected nil for unknown path, got %+v, %v", none, err)
	}

	base := time.Now()
	first := &VerificationRecord{Timestamp: base, Path: "/tmp/a", Size: 5, Clean: true, Digest: "aa"}
	second := &VerificationRecord{
		Timestamp:    base.Add(time.Minute),
		Path:         "/tmp/a",
		Size:         6,
		Digest:       "bb",
		Contaminants: []alphabet.Contaminant{{Position: 5, Value: 194, Description: alphabet.DescContinuation}},
	}
	for _, r := range []*VerificationRecord{first, second} {
		if _, err := s.RecordVerification(ctx, r); err != nil {
			t.Fatalf("RecordVerification failed: %v", err)
		}
	}

	last, err := s.LastVerification(ctx, "/tmp/a")
	if err != nil {
		t.Fatal(err)
	}
	if last.Digest != "bb" || last.Clean || last.Size != 6 {
		t.Errorf("unexpected last verification %+v", last)
	}
	if len(last.Contaminants) != 1 || last.Contaminants[0].Value != 194 {
		t.Errorf("unexpected contaminants %+v", last.Contaminants)
	}
}

func TestContaminantEncodingIsDeterministic(t *testing.T) {
	cs := []alphabet.Contaminant{
		{Position: 0, Value: 200, Description: alphabet.DescUpperBound},
		{Position: 3, Value: -1, Description: alphabet.DescNegative},
	}
	a, err := encodeContaminants(cs)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := encodeContaminants(append([]alphabet.Contaminant(nil), cs...))
	if string(a) != string(b) {
		t.Error("encoding is not deterministic")
	}

	decoded, err := decodeContaminants(a)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 || decoded[1] != cs[1] {
		t.Errorf("unexpected decode %+v", decoded)
	}

	if blob, _ := encodeContaminants(nil); blob != nil {
		t.Error("empty list should encode to nil")
	}
}
