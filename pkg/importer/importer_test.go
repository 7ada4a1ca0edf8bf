package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hubevents/btcimport/pkg/btccal"
	"github.com/hubevents/btcimport/pkg/emapi"
	"github.com/hubevents/btcimport/pkg/errlog"
	"github.com/hubevents/btcimport/pkg/resolver"
	"github.com/hubevents/btcimport/pkg/retry"
)

var runDate = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// sourcePayload is two well-formed calendar events sharing one organizer.
const sourcePayload = `{"events":[
  {"id":101,"title":"Jazz Night","description":"<p>Live jazz</p>",
   "utc_start_date":"2024-05-01 23:00:00","utc_end_date":"2024-05-02 02:00:00",
   "venue":{"id":9,"venue":"The Sinclair","city":"Cambridge"},
   "organizer":{"id":3,"organizer":"Bowery Boston","slug":"bowery-boston"},
   "categories":[{"id":2,"name":"Music"}]},
  {"id":102,"title":"Open Mic","description":"Open mic night",
   "utc_start_date":"2024-05-01 20:00:00","utc_end_date":"2024-05-01 22:00:00",
   "venue":{"id":10,"venue":"%s","city":"Boston"},
   "organizer":{"id":3,"organizer":"Bowery Boston","slug":"bowery-boston"},
   "categories":[{"id":2,"name":"Music"}]}
]}`

// fakeWorld serves both sides of the pipeline: the calendar source and
// the event-management target, with counters per mutating endpoint.
type fakeWorld struct {
	sourceBody   string
	failSource   bool
	failExisting bool

	existing []emapi.Event
	counts   map[string]int
}

func newFakeWorld(secondVenue string) *fakeWorld {
	return &fakeWorld{
		sourceBody: fmt.Sprintf(sourcePayload, secondVenue),
		counts:     map[string]int{},
	}
}

func (f *fakeWorld) sourceHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.failSource {
			http.Error(w, "calendar down", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, f.sourceBody)
	})
}

func (f *fakeWorld) targetHandler() http.Handler {
	writeJSON := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case r.URL.Path == "/events" && r.Method == http.MethodGet:
			if f.failExisting {
				http.Error(w, "datastore down", http.StatusInternalServerError)
				return
			}
			writeJSON(w, f.existing)
		case r.URL.Path == "/events/post" && r.Method == http.MethodPost:
			f.counts["createEvent"]++
			var ev emapi.Event
			json.NewDecoder(r.Body).Decode(&ev)
			ev.ID = fmt.Sprintf("evt-%d", f.counts["createEvent"])
			writeJSON(w, ev)
		case strings.HasPrefix(r.URL.Path, "/events/") && r.Method == http.MethodDelete:
			f.counts["deleteEvent"]++
			writeJSON(w, map[string]bool{"ok": true})
		case r.URL.Path == "/venues" && r.Method == http.MethodGet:
			if q.Get("name") == "The Sinclair" {
				writeJSON(w, []emapi.Venue{{ID: "v1", Name: "The Sinclair"}})
				return
			}
			// Unknown names and the sentinel lookup come up empty.
			writeJSON(w, []emapi.Venue{})
		case r.URL.Path == "/venues" && r.Method == http.MethodPost:
			// Fallback creation is rejected so unknown venues stay unmatched.
			http.Error(w, "bad request", http.StatusBadRequest)
		case strings.HasPrefix(r.URL.Path, "/venues/"):
			http.Error(w, "not found", http.StatusNotFound)
		case r.URL.Path == "/organizers":
			if q.Get("btcNiceName") == "bowery-boston" {
				writeJSON(w, []emapi.Organizer{{ID: "o1", Name: "Bowery Boston"}})
				return
			}
			writeJSON(w, []emapi.Organizer{})
		case r.URL.Path == "/categories":
			writeJSON(w, []emapi.Category{{ID: "c1", CategoryName: "Music"}})
		default:
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
		}
	})
}

func newTestOrchestrator(t *testing.T, f *fakeWorld, dryRun bool) (*Orchestrator, string) {
	t.Helper()
	src := httptest.NewServer(f.sourceHandler())
	t.Cleanup(src.Close)
	tgt := httptest.NewServer(f.targetHandler())
	t.Cleanup(tgt.Close)

	el, err := errlog.New(t.TempDir())
	if err != nil {
		t.Fatalf("errlog.New: %v", err)
	}
	t.Cleanup(func() { el.Close() })

	hc := retry.NewClient(retry.Policy{MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, el)
	api := emapi.NewClient(tgt.URL, "test-app", "", hc)
	out := t.TempDir()

	return &Orchestrator{
		Source:   btccal.NewClient(src.URL, hc),
		Target:   api,
		Resolver: resolver.New(api, resolver.DefaultConfig(), resolver.NewCache(), el),
		Errors:   el,
		Opts:     Options{Date: runDate, DryRun: dryRun, OutputDir: out, AppID: "test-app"},
	}, out
}

func readArtifact(t *testing.T, dir, name string, v interface{}) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "2024-05-01", name))
	if err != nil {
		t.Fatalf("reading artifact %s: %v", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decoding artifact %s: %v", name, err)
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	f := newFakeWorld("The Sinclair")
	f.existing = []emapi.Event{{ID: "e-old", Title: "Stale"}}
	o, out := newTestOrchestrator(t, f, true)

	result, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.BTCEvents.Total != 2 || result.Deleted != 1 || result.Created != 2 || result.Failed != 0 {
		t.Fatalf("unexpected counters: %+v", result)
	}
	if f.counts["deleteEvent"] != 0 || f.counts["createEvent"] != 0 {
		t.Fatalf("dry-run must not touch the target, counts: %v", f.counts)
	}

	var processed []emapi.Event
	readArtifact(t, out, "processed-events.json", &processed)
	if len(processed) != 2 || processed[0].ID != DryRunID {
		t.Fatalf("expected synthetic dry-run records, got %+v", processed)
	}

	var verdict struct {
		CanProceed bool `json:"canProceed"`
	}
	readArtifact(t, out, "go-no-go.json", &verdict)
	if !verdict.CanProceed {
		t.Fatal("a clean dry run should assess as GO")
	}
}

func TestRunLiveModeDeletesAndCreates(t *testing.T) {
	f := newFakeWorld("The Sinclair")
	f.existing = []emapi.Event{{ID: "e-old", Title: "Stale"}}
	o, out := newTestOrchestrator(t, f, false)

	result, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.counts["deleteEvent"] != 1 {
		t.Fatalf("expected 1 delete, got %d", f.counts["deleteEvent"])
	}
	if f.counts["createEvent"] != 2 {
		t.Fatalf("expected 2 creates, got %d", f.counts["createEvent"])
	}
	if result.Created != 2 || result.BTCEvents.Processed != 2 {
		t.Fatalf("unexpected counters: %+v", result)
	}

	var processed []emapi.Event
	readArtifact(t, out, "processed-events.json", &processed)
	if processed[0].ID != "evt-1" || processed[1].ID != "evt-2" {
		t.Fatalf("expected server-assigned IDs, got %+v", processed)
	}
}

func TestRunZeroEventsStopsEarly(t *testing.T) {
	f := newFakeWorld("The Sinclair")
	f.sourceBody = `{"events":[]}`
	o, out := newTestOrchestrator(t, f, false)

	result, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.BTCEvents.Total != 0 || result.Deleted != 0 || result.Failed != 0 {
		t.Fatalf("unexpected counters: %+v", result)
	}
	if len(f.counts) != 0 {
		t.Fatalf("no target calls expected, got %v", f.counts)
	}

	var saved RunResult
	readArtifact(t, out, "run-result.json", &saved)
	if saved.BTCEvents.Total != 0 {
		t.Fatalf("unexpected persisted result: %+v", saved)
	}

	var verdict struct {
		CanProceed bool `json:"canProceed"`
	}
	readArtifact(t, out, "go-no-go.json", &verdict)
	if verdict.CanProceed {
		t.Fatal("an empty run must assess as NO-GO")
	}
}

func TestRunIsolatesPerEventFailures(t *testing.T) {
	// Second event references a venue nothing can resolve.
	f := newFakeWorld("Ghost Hall")
	o, out := newTestOrchestrator(t, f, true)

	result, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.EntityResolution.Success != 1 || result.EntityResolution.Failure != 1 {
		t.Fatalf("unexpected resolution counters: %+v", result)
	}
	if result.Created != 1 || result.Failed != 1 {
		t.Fatalf("one event must survive the other's failure: %+v", result)
	}

	var failed []FailedEvent
	readArtifact(t, out, "failed-events.json", &failed)
	if len(failed) != 1 || failed[0].Stage != "ENTITY_RESOLUTION" || failed[0].SourceEventID != 102 {
		t.Fatalf("unexpected failure record: %+v", failed)
	}
	if failed[0].Resolution == nil || len(failed[0].Reasons) == 0 {
		t.Fatalf("failure record missing diagnostics: %+v", failed[0])
	}

	var unmatched struct {
		Venues []string `json:"venues"`
	}
	readArtifact(t, out, "unmatched-entities.json", &unmatched)
	if len(unmatched.Venues) != 1 || unmatched.Venues[0] != "Ghost Hall" {
		t.Fatalf("unexpected unmatched venues: %+v", unmatched)
	}
}

func TestRunSourceFetchFailureIsFatal(t *testing.T) {
	f := newFakeWorld("The Sinclair")
	f.failSource = true
	o, out := newTestOrchestrator(t, f, true)

	result, err := o.Run(context.Background())
	if err == nil {
		t.Fatal("expected a fetch failure to propagate")
	}
	if result.BTCEvents.Total != 0 {
		t.Fatalf("unexpected counters: %+v", result)
	}

	// The partial result is still persisted.
	var saved RunResult
	readArtifact(t, out, "run-result.json", &saved)
	if saved.Date != "2024-05-01" {
		t.Fatalf("unexpected persisted result: %+v", saved)
	}
}

func TestRunDeleteStageFailureIsFatal(t *testing.T) {
	f := newFakeWorld("The Sinclair")
	f.failExisting = true
	o, _ := newTestOrchestrator(t, f, false)

	result, err := o.Run(context.Background())
	if err == nil {
		t.Fatal("expected the delete stage failure to propagate")
	}
	if result.Created != 0 || f.counts["createEvent"] != 0 {
		t.Fatalf("no events may be written after a delete-stage failure: %+v %v", result, f.counts)
	}
}
