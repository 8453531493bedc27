// Package progress carries catalog build lifecycle events from the assembly
// pipeline to pluggable sinks. Emitters never block: events are buffered,
// batched on a background goroutine, and dropped under backpressure.
package progress
