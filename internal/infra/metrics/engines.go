package metrics

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// EngineStats counts what every engine was asked and what it delivered.
// It satisfies processor.Stats and results.ScoreRecorder.
type EngineStats struct {
	gatherer prometheus.Gatherer

	sent       *prometheus.CounterVec
	successful *prometheus.CounterVec
	errors     *prometheus.CounterVec
	softErrors *prometheus.CounterVec
	results    *prometheus.CounterVec
	timeTotal  *prometheus.HistogramVec
	timeHTTP   *prometheus.HistogramVec
	score      *prometheus.CounterVec
}

func newEngineStats(reg *prometheus.Registry) *EngineStats {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	}
	histogram := func(name, help string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: name, Help: help, Buckets: TimeBuckets},
			[]string{"engine"},
		)
	}

	s := &EngineStats{
		gatherer:   reg,
		sent:       counter(metricSent, "Engine requests dispatched", "engine"),
		successful: counter(metricSuccessful, "Engine requests that returned in time", "engine"),
		errors:     counter(metricErrors, "Engine failures by kind", "engine", "kind"),
		softErrors: counter(metricSoftErrors, "Engine problems that did not fail the request", "engine"),
		results:    counter(metricResults, "Valid results returned by the engine", "engine"),
		timeTotal:  histogram(metricTimeTotal, "Time from search start to engine completion"),
		timeHTTP:   histogram(metricTimeHTTP, "Time spent in HTTP calls per engine request"),
		score:      counter(metricScore, "Sum of final result scores credited to the engine", "engine"),
	}
	reg.MustRegister(s.sent, s.successful, s.errors, s.softErrors, s.results, s.timeTotal, s.timeHTTP, s.score)
	return s
}

func (s *EngineStats) Sent(engine string) {
	s.sent.WithLabelValues(engine).Inc()
}

func (s *EngineStats) Success(engine string, results int, total, http time.Duration) {
	s.successful.WithLabelValues(engine).Inc()
	s.results.WithLabelValues(engine).Add(float64(results))
	s.timeTotal.WithLabelValues(engine).Observe(total.Seconds())
	if http > 0 {
		s.timeHTTP.WithLabelValues(engine).Observe(http.Seconds())
	}
}

func (s *EngineStats) Error(engine, kind string) {
	s.errors.WithLabelValues(engine, kind).Inc()
}

func (s *EngineStats) SoftError(engine, _ string) {
	s.softErrors.WithLabelValues(engine).Inc()
}

func (s *EngineStats) AddScore(engine string, score float64) {
	s.score.WithLabelValues(engine).Add(score)
}

// EngineSnapshot is the aggregated view of one engine. Times are averages
// in seconds.
type EngineSnapshot struct {
	Engine      string           `json:"engine"`
	Sent        int64            `json:"sent"`
	Successful  int64            `json:"successful"`
	Errors      map[string]int64 `json:"errors,omitempty"`
	SoftErrors  int64            `json:"soft_errors"`
	Results     int64            `json:"results"`
	TimeTotal   float64          `json:"time_total"`
	TimeHTTP    float64          `json:"time_http"`
	Score       float64          `json:"score"`
	Reliability float64          `json:"reliability"`
}

// Snapshot reads the collectors back and returns one entry per engine,
// sorted by name.
func (s *EngineStats) Snapshot() ([]EngineSnapshot, error) {
	families, err := s.gatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather engine stats: %w", err)
	}

	byEngine := make(map[string]*EngineSnapshot)
	entry := func(m *dto.Metric) *EngineSnapshot {
		name := label(m, "engine")
		e, ok := byEngine[name]
		if !ok {
			e = &EngineSnapshot{Engine: name}
			byEngine[name] = e
		}
		return e
	}

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch mf.GetName() {
			case metricSent:
				entry(m).Sent = int64(m.GetCounter().GetValue())
			case metricSuccessful:
				entry(m).Successful = int64(m.GetCounter().GetValue())
			case metricErrors:
				e := entry(m)
				if e.Errors == nil {
					e.Errors = make(map[string]int64)
				}
				e.Errors[label(m, "kind")] = int64(m.GetCounter().GetValue())
			case metricSoftErrors:
				entry(m).SoftErrors = int64(m.GetCounter().GetValue())
			case metricResults:
				entry(m).Results = int64(m.GetCounter().GetValue())
			case metricScore:
				entry(m).Score = m.GetCounter().GetValue()
			case metricTimeTotal:
				entry(m).TimeTotal = average(m.GetHistogram())
			case metricTimeHTTP:
				entry(m).TimeHTTP = average(m.GetHistogram())
			}
		}
	}

	out := make([]EngineSnapshot, 0, len(byEngine))
	for _, e := range byEngine {
		if e.Sent > 0 {
			e.Reliability = float64(e.Successful) / float64(e.Sent) * 100
		}
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b EngineSnapshot) int { return strings.Compare(a.Engine, b.Engine) })
	return out, nil
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func average(h *dto.Histogram) float64 {
	if h.GetSampleCount() == 0 {
		return 0
	}
	return h.GetSampleSum() / float64(h.GetSampleCount())
}
