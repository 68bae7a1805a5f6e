// Package stream owns the batch stream producer and consumer.
//
// Ownership boundary:
// - producer: value classification, chunk registry/emitter, line framing
// - consumer: chunk routing, value rehydration, lifecycle (interruption)
//
// Producer goroutines race freely; records reach the wire in completion
// order through one unbuffered channel drained by the framing loop. The
// consumer reads lines sequentially and fans records out to one queue per
// chunk index, each awaited independently by the rehydrated values.
package stream
