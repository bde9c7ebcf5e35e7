// Package metrics provides the statistics aggregation engine for rampfire.
//
// The [Aggregator] keeps two sets of lock-free counters: a cumulative set that
// lives for the whole run and a windowed set that is sampled and reset once per
// reporting tick. Every completed request is folded into both sets through
// [Aggregator.RecordOutcome]:
//
//	agg := metrics.NewAggregator()
//	agg.Start()
//
//	agg.RecordOutcome(metrics.Outcome{
//		Success:       true,
//		BytesSent:     int64(len(url)),
//		BytesReceived: int64(len(body)),
//		Elapsed:       latency,
//	})
//
//	// Once per window, from a single goroutine.
//	snap := agg.SnapshotAndReset()
//
// # Window Boundaries
//
// The windowed counters are drained with atomic swaps, field by field. An
// update racing with [Aggregator.SnapshotAndReset] is counted either in the
// window being closed or in the next one, never in both and never dropped, so
// the sum of all window snapshots always equals the cumulative totals.
//
// # Latency
//
// Elapsed times are diagnostic only. They are recorded into sharded
// HDR histograms so the hot path never contends on a single lock, and merged
// on demand by [Aggregator.Latency].
//
// # Exposition
//
// [Exporter] mirrors window snapshots and the controller's target into a
// Prometheus registry for scraping while a run is in progress.
package metrics
