package testutil

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"

	"stockharvest/internal/db"

	_ "modernc.org/sqlite"
)

// SetupDB opens a fresh in-memory sqlite database with the schema applied.
func SetupDB(t testing.TB) *sql.DB {
	t.Helper()

	sqlite, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// every new connection to :memory: is a different database
	sqlite.SetMaxOpenConns(1)
	err = db.ApplySchema(sqlite)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		sqlite.Close()
	})
	return sqlite
}

type Report struct {
	Kind   string
	ID     string
	Params []any
}

// RecordingAPI is a telemetry.API that keeps every report in memory so tests
// can assert on them.
type RecordingAPI struct {
	mutex   sync.Mutex
	reports []Report
	counts  map[string]int64
}

func (r *RecordingAPI) record(kind, id string, params []any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, Report{Kind: kind, ID: id, Params: params})
}

func (r *RecordingAPI) ReportBroken(id string, params ...any) {
	r.record("broken", id, params)
}

func (r *RecordingAPI) ReportWarning(id string, params ...any) {
	r.record("warning", id, params)
}

func (r *RecordingAPI) ReportDebug(msg string, params ...any) {
	r.record("debug", msg, params)
}

func (r *RecordingAPI) ReportCount(id string, count int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.counts == nil {
		r.counts = map[string]int64{}
	}
	r.counts[id] += count
}

// Reports returns the reports of the given kind ("broken", "warning" or "debug").
func (r *RecordingAPI) Reports(kind string) []Report {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var out []Report
	for _, rep := range r.reports {
		if rep.Kind == kind {
			out = append(out, rep)
		}
	}
	return out
}

// Has reports whether a report of the given kind was made with an id that
// ends with suffix.
func (r *RecordingAPI) Has(kind, suffix string) bool {
	for _, rep := range r.Reports(kind) {
		if strings.HasSuffix(rep.ID, suffix) {
			return true
		}
	}
	return false
}

func (r *RecordingAPI) Count(id string) int64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.counts[id]
}

func (r *RecordingAPI) String() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var sb strings.Builder
	for _, rep := range r.reports {
		fmt.Fprintf(&sb, "%s %s %v\n", rep.Kind, rep.ID, rep.Params)
	}
	return sb.String()
}
