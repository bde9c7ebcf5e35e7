package metrics

import "time"

// Summary is the final report of a run.
type Summary struct {
	RunID          string        `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Target         string        `json:"target" yaml:"target"`
	Duration       time.Duration `json:"-" yaml:"-"`
	DurationMs     float64       `json:"duration_ms" yaml:"duration_ms"`
	RunStatistics  `yaml:",inline"`
	SuccessRate    float64      `json:"success_rate" yaml:"success_rate"`
	RequestsPerSec float64      `json:"requests_per_sec" yaml:"requests_per_sec"`
	FinalTarget    int          `json:"final_concurrency" yaml:"final_concurrency"`
	Latency        LatencyStats `json:"latency" yaml:"latency"`
}

// Summarize builds the final report from the aggregator's cumulative state.
func Summarize(target string, stats RunStatistics, latency LatencyStats, elapsed time.Duration) Summary {
	s := Summary{
		Target:        target,
		Duration:      elapsed,
		DurationMs:    toMillis(elapsed),
		RunStatistics: stats,
		SuccessRate:   stats.SuccessRate(),
		Latency:       latency,
	}
	s.RequestsPerSec = perSecond(stats.TotalRequests, elapsed)
	return s
}
