// Package audit relays security events from the engine to sinks without
// blocking request paths.
//
// The engine decides which events exist; this package only buffers and
// delivers them. A [Dispatcher] owns one worker goroutine and a bounded
// channel. When DropIfFull is set, events that do not fit are counted and
// discarded.
package audit
