// Package metrics collects runtime statistics about the polling engine.
//
// Producers (the poller and the section loader) emit events into a buffered
// channel without blocking; a single collector goroutine folds them into:
//   - probe counts and outcomes per service
//   - probe latency with percentiles (P50, P95, P99)
//   - poll cycle counts, durations and skipped probes
//   - section load counts and failures per service and kind
//
// Example usage:
//
//	collector := metrics.NewCollector(1024, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.Event{
//		Type:     metrics.EventProbeCompleted,
//		Service:  "weight",
//		Duration: 35 * time.Millisecond,
//		Online:   true,
//	})
//
//	snapshot := collector.Snapshot()
//
// When the context is cancelled the collector drains pending events before
// it stops.
package metrics
