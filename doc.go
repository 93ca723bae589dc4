// Package vigia attaches lightweight metadata extraction and event-triggered
// clip recording to a running media graph without stalling it.
//
// # Core Philosophy
//
// "The streaming thread never waits on user code."
//
// Extraction runs in-thread on the media graph's streaming thread and must be
// fast; everything slow (consumption, emission, clip encoding) happens on
// background goroutines, decoupled by bounded handoff queues and rolling
// frame buffers.
//
// # Architecture
//
//	media graph ──(buffer probe)──▶ Extractor ──▶ HandoffQueue ──▶ Worker ──▶ Consumer
//	media graph ──(tee branch)────▶ RingBuffer ◀── Recorder ◀── WindowScheduler ◀── Notify()
//
// Two independent paths share nothing but the graph:
//
//   - Extraction: each arriving buffer is handed to an Extractor which turns
//     it into zero or more Records. Records are pushed to a bounded FIFO
//     queue and drained by a single worker goroutine invoking a Consumer.
//   - Recording: decoded frames continuously fill a fixed-duration
//     RingBuffer. External record notifications are coalesced into minimal
//     time windows; when a window closes, the covered frames are snapshotted
//     and encoded into one clip file.
//
// This package defines the contracts only (Record, MediaBuffer, Frame,
// Extractor, Consumer). The moving parts live in internal packages and are
// wired together by cmd/vigiad; GStreamer-facing glue is isolated in
// internal/gstx so everything else stays graph-agnostic and testable.
package vigia
