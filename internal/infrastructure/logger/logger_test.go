package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewTagsServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %q", buf.String())
	}

	log.Warn("kept")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if rec["service"] != "payhub" || rec["msg"] != "kept" {
		t.Fatalf("unexpected record: %v", rec)
	}
}
