package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestBuild_Duration(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	b := &Build{StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)}
	if got := b.Duration(); got != 1500*time.Millisecond {
		t.Errorf("Duration() = %v, want 1.5s", got)
	}
}

func TestImageRecord_OmitsEmptyReason(t *testing.T) {
	data, err := json.Marshal(&ImageRecord{Path: "a.png", Position: 0, Status: StatusIndexed})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "reason") {
		t.Errorf("indexed record should omit reason: %s", data)
	}
	data, _ = json.Marshal(&ImageRecord{Path: "b.png", Position: -1, Status: StatusSkipped, Reason: "decode failed"})
	if !strings.Contains(string(data), `"reason":"decode failed"`) {
		t.Errorf("skipped record should carry reason: %s", data)
	}
}
