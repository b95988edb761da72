// Package obstest provides in-memory observability doubles for tests.
package obstest

import (
	"strings"
	"sync"

	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
)

type Entry struct {
	Level  string
	Msg    string
	Fields map[string]any
}

// Recorder is an observability.Observability that keeps every log entry and
// counter increment in memory.
type Recorder struct {
	mu       sync.Mutex
	entries  []Entry
	counters map[string]float64
	samples  map[string]int
}

func New() *Recorder {
	return &Recorder{counters: map[string]float64{}, samples: map[string]int{}}
}

func (r *Recorder) Tracer() observability.Tracer { return observability.NopTracer() }

func (r *Recorder) Logger() observability.Logger { return &logger{rec: r} }

func (r *Recorder) Metrics() observability.Metrics { return metrics{rec: r} }

// Entries returns the log entries with the given message.
func (r *Recorder) Entries(msg string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the value of a counter for an exact label set, written as
// "k=v,k=v" in the order the labels were passed.
func (r *Recorder) Count(name observability.MetricKey, labels string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[string(name)+"{"+labels+"}"]
}

// Samples returns how many observations a histogram received.
func (r *Recorder) Samples(name observability.MetricKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples[string(name)]
}

type logger struct {
	rec    *Recorder
	fields []observability.Field
}

func (l *logger) With(fields ...observability.Field) observability.Logger {
	return &logger{rec: l.rec, fields: append(append([]observability.Field(nil), l.fields...), fields...)}
}

func (l *logger) Debug(msg string, fields ...observability.Field) { l.write("debug", msg, fields) }
func (l *logger) Info(msg string, fields ...observability.Field)  { l.write("info", msg, fields) }
func (l *logger) Warn(msg string, fields ...observability.Field)  { l.write("warn", msg, fields) }
func (l *logger) Error(msg string, fields ...observability.Field) { l.write("error", msg, fields) }

func (l *logger) write(level, msg string, fields []observability.Field) {
	e := Entry{Level: level, Msg: msg, Fields: map[string]any{}}
	for _, f := range l.fields {
		e.Fields[f.Key] = f.Value
	}
	for _, f := range fields {
		e.Fields[f.Key] = f.Value
	}
	l.rec.mu.Lock()
	l.rec.entries = append(l.rec.entries, e)
	l.rec.mu.Unlock()
}

type metrics struct{ rec *Recorder }

func (m metrics) Counter(name observability.MetricKey) observability.Counter {
	return counter{rec: m.rec, name: string(name)}
}

func (m metrics) Histogram(name observability.MetricKey) observability.Histogram {
	return histogram{rec: m.rec, name: string(name)}
}

type counter struct {
	rec  *Recorder
	name string
}

func (c counter) Add(d float64, labels ...observability.Label) {
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.Key+"="+l.Value)
	}
	key := c.name + "{" + strings.Join(parts, ",") + "}"
	c.rec.mu.Lock()
	c.rec.counters[key] += d
	c.rec.mu.Unlock()
}

type histogram struct {
	rec  *Recorder
	name string
}

func (h histogram) Observe(float64, ...observability.Label) {
	h.rec.mu.Lock()
	h.rec.samples[h.name]++
	h.rec.mu.Unlock()
}
