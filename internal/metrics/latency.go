package metrics

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	latencyShardCount = 32
	// Track latencies from 1µs up to 60s with 3 significant figures.
	latencyLowest  = 1
	latencyHighest = 60_000_000
	latencySigFigs = 3
)

// LatencyStats summarizes the elapsed time of completed requests.
type LatencyStats struct {
	Count uint64        `json:"count" yaml:"count"`
	Min   time.Duration `json:"-" yaml:"-"`
	Max   time.Duration `json:"-" yaml:"-"`
	Mean  time.Duration `json:"-" yaml:"-"`
	P50   time.Duration `json:"-" yaml:"-"`
	P90   time.Duration `json:"-" yaml:"-"`
	P99   time.Duration `json:"-" yaml:"-"`

	MinMs  float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs  float64 `json:"max_ms" yaml:"max_ms"`
	MeanMs float64 `json:"mean_ms" yaml:"mean_ms"`
	P50Ms  float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms  float64 `json:"p90_ms" yaml:"p90_ms"`
	P99Ms  float64 `json:"p99_ms" yaml:"p99_ms"`
}

type latencyShard struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
	min  time.Duration
	max  time.Duration
	sum  time.Duration
	n    uint64
}

type latencyShards struct {
	shards [latencyShardCount]*latencyShard
}

func newLatencyShards() *latencyShards {
	s := &latencyShards{}
	for i := range s.shards {
		s.shards[i] = &latencyShard{
			hist: hdrhistogram.New(latencyLowest, latencyHighest, latencySigFigs),
		}
	}
	return s
}

func (s *latencyShards) record(d time.Duration) {
	shard := s.shards[rand.IntN(latencyShardCount)]
	us := clampMicros(d.Microseconds())

	shard.mu.Lock()
	_ = shard.hist.RecordValue(us)
	if shard.n == 0 || d < shard.min {
		shard.min = d
	}
	if d > shard.max {
		shard.max = d
	}
	shard.sum += d
	shard.n++
	shard.mu.Unlock()
}

func (s *latencyShards) snapshot() LatencyStats {
	merged := hdrhistogram.New(latencyLowest, latencyHighest, latencySigFigs)
	var out LatencyStats
	var sum time.Duration

	for _, shard := range s.shards {
		shard.mu.Lock()
		if shard.n > 0 {
			merged.Merge(shard.hist)
			if out.Count == 0 || shard.min < out.Min {
				out.Min = shard.min
			}
			if shard.max > out.Max {
				out.Max = shard.max
			}
			sum += shard.sum
			out.Count += shard.n
		}
		shard.mu.Unlock()
	}

	if out.Count == 0 {
		return out
	}
	out.Mean = time.Duration(int64(sum) / int64(out.Count))
	out.P50 = time.Duration(merged.ValueAtQuantile(50)) * time.Microsecond
	out.P90 = time.Duration(merged.ValueAtQuantile(90)) * time.Microsecond
	out.P99 = time.Duration(merged.ValueAtQuantile(99)) * time.Microsecond

	out.MinMs = toMillis(out.Min)
	out.MaxMs = toMillis(out.Max)
	out.MeanMs = toMillis(out.Mean)
	out.P50Ms = toMillis(out.P50)
	out.P90Ms = toMillis(out.P90)
	out.P99Ms = toMillis(out.P99)
	return out
}

func clampMicros(us int64) int64 {
	if us < latencyLowest {
		return latencyLowest
	}
	if us > latencyHighest {
		return latencyHighest
	}
	return us
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
