// Package progress carries run progress out of the resolution pipeline. The
// pipeline emits small events (run lifecycle, external calls, finished rows);
// a Hub batches them on a background goroutine and fans them out to sinks such
// as structured logs or Prometheus counters, so reporting never slows down or
// fails a run.
package progress
