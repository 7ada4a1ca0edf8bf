package errlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordIDFormat(t *testing.T) {
	l := newTestLogger(t)

	id := l.Warning(CategoryEntityResolution, StageEntityResolution, "venue not matched", nil)

	re := regexp.MustCompile(`^ERR-\d+-\d{6}$`)
	if !re.MatchString(id) {
		t.Fatalf("unexpected error ID format: %q", id)
	}
}

func TestRecordWritesLineAndDetail(t *testing.T) {
	l := newTestLogger(t)

	id := l.Error(CategoryAPIAccess, StageLoading, "create event failed",
		map[string]interface{}{"status": 502}, os.ErrDeadlineExceeded)

	raw, err := os.ReadFile(filepath.Join(l.dir, "errors.log"))
	if err != nil {
		t.Fatalf("reading line log: %v", err)
	}
	line := string(raw)
	for _, want := range []string{"[" + id + "]", "[ERROR]", "[API_ACCESS]", "[LOADING]", "create event failed"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line log missing %q: %s", want, line)
		}
	}

	detail, err := os.ReadFile(filepath.Join(l.dir, "details", id+".json"))
	if err != nil {
		t.Fatalf("reading detail file: %v", err)
	}
	var e Entry
	if err := json.Unmarshal(detail, &e); err != nil {
		t.Fatalf("detail is not valid JSON: %v", err)
	}
	if e.ID != id || e.Category != CategoryAPIAccess || e.OriginalError == "" {
		t.Fatalf("unexpected detail record: %+v", e)
	}
	if e.Context["status"] != float64(502) {
		t.Fatalf("context not preserved: %#v", e.Context)
	}
}

func TestStatsGroupsByAllDimensions(t *testing.T) {
	l := newTestLogger(t)

	l.Info(CategoryAPIAccess, StageExtraction, "retrying fetch", nil)
	l.Warning(CategoryEntityResolution, StageEntityResolution, "organizer unmatched", nil)
	l.Warning(CategoryEntityResolution, StageEntityResolution, "venue unmatched", nil)
	l.Error(CategoryDataValidation, StageValidation, "bad end date", nil, nil)

	stats, err := l.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 4 {
		t.Fatalf("expected 4 entries, got %d", stats.Total)
	}
	if stats.ByCategory["ENTITY_RESOLUTION"] != 2 {
		t.Fatalf("expected 2 ENTITY_RESOLUTION entries, got %d", stats.ByCategory["ENTITY_RESOLUTION"])
	}
	if stats.BySeverity["WARNING"] != 2 || stats.BySeverity["INFO"] != 1 || stats.BySeverity["ERROR"] != 1 {
		t.Fatalf("unexpected severity counts: %#v", stats.BySeverity)
	}
	if stats.ByStage["VALIDATION"] != 1 {
		t.Fatalf("unexpected stage counts: %#v", stats.ByStage)
	}
}

func TestStatsMissingLogIsEmpty(t *testing.T) {
	stats, err := ReadStats(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("ReadStats on missing dir: %v", err)
	}
	if stats.Total != 0 {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
}
