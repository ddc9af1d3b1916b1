// Package stats collects per-component processing statistics and encodes
// them in the binary wire format consumed by external reporters.
//
// Each runtime environment owns one Collector. Record and RecordError are
// called for every message; Snapshot closes the current window, returns its
// figures and starts a new one, so windows never overlap. A Reporter drains
// all collectors of a pipeline on a fixed interval and hands the snapshots to
// its sinks: back into a pipeline queue as a stats stream, to NATS, or to
// Prometheus gauges.
//
// # Wire format
//
// ComponentStatistics encodes big-endian as
//
//	int32 numMessages | int64 startTime | int64 endTime |
//	int32 minDuration | int32 maxDuration | int32 avgDuration |
//	int32 minSize | int32 maxSize | int32 avgSize | int32 errors |
//	int32 len | nodeId | int32 len | pipelineId | int32 len | componentId |
//	int64 window
//
// for a total of 11*4 + 3*8 + len(ids) bytes. Times are unix milliseconds,
// durations microseconds, sizes bytes.
package stats
