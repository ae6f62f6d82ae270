package telemetry

import (
	"strings"
	"sync"
)

type Report struct {
	Kind   string
	Id     string
	Params []any
}

// Recorder is an API that keeps every report in memory, it is meant for
// tests that assert a failure was reported with the right context.
type Recorder struct {
	lock    sync.Mutex
	reports []Report
}

func (r *Recorder) add(kind, id string, params []any) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.reports = append(r.reports, Report{Kind: kind, Id: id, Params: params})
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.add("broken", id, params)
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.add("warning", id, params)
}

func (r *Recorder) ReportDebug(msg string, params ...any) {}

func (r *Recorder) ReportCount(id string, count int64) {
	r.add("count", id, []any{count})
}

func (r *Recorder) Reports() []Report {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]Report, len(r.reports))
	copy(out, r.reports)
	return out
}

// Find returns the reports whose id ends with `suffix`.
func (r *Recorder) Find(suffix string) []Report {
	var out []Report
	for _, report := range r.Reports() {
		if strings.HasSuffix(report.Id, suffix) {
			out = append(out, report)
		}
	}
	return out
}

// Param returns the value following `key` in a report's key value params.
func (r Report) Param(key string) (any, bool) {
	for i := 0; i+1 < len(r.Params); i += 2 {
		if r.Params[i] == key {
			return r.Params[i+1], true
		}
	}
	return nil, false
}
