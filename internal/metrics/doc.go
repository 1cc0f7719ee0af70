// Package metrics records protocol-core events (frames, correspondence
// lifecycle, dispatch latency) to Prometheus. The core depends only on the
// Recorder interface so it can run metrics-free via Noop.
package metrics
