package telemetry

import (
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// Report is a single call made against a RecordingAPI.
type Report struct {
	Kind   string
	ID     string
	Params []any
}

// RecordingAPI keeps every report in memory so tests can assert that a
// component reported what it should have.
type RecordingAPI struct {
	mutex   sync.Mutex
	reports []Report
}

func (r *RecordingAPI) add(kind, id string, params []any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, Report{Kind: kind, ID: id, Params: params})
}

func (r *RecordingAPI) ReportBroken(id string, params ...any)  { r.add("broken", id, params) }
func (r *RecordingAPI) ReportWarning(id string, params ...any) { r.add("warning", id, params) }
func (r *RecordingAPI) ReportDebug(msg string, params ...any)  { r.add("debug", msg, params) }
func (r *RecordingAPI) ReportCount(id string, count int64)     { r.add("count", id, []any{count}) }

// Reports returns the reports of the given kind, an empty kind returns all of them.
func (r *RecordingAPI) Reports(kind string) []Report {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var out []Report
	for _, rep := range r.reports {
		if kind == "" || rep.Kind == kind {
			out = append(out, rep)
		}
	}
	return out
}

// Has returns true if a report of the given kind has an id ending in the given suffix,
// ScopedAPI prefixes make exact comparisons annoying.
func (r *RecordingAPI) Has(kind, idSuffix string) bool {
	for _, rep := range r.Reports(kind) {
		if strings.HasSuffix(rep.ID, idSuffix) {
			return true
		}
	}
	return false
}

// SetupForTesting returns an API that writes to the test log at debug level.
func SetupForTesting(t testing.TB) SlogAPI {
	handler := slog.NewTextHandler(testWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogAPI(slog.New(handler))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
