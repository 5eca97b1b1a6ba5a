// Copyright 2022 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memload

import (
	"sync"
	"time"
)

// ThreadStats are the per-logical-thread counters of one run. A
// MinLatencyNs of 0 together with OperationsCompleted of 0 means
// "nothing recorded yet", not a zero-latency observation.
type ThreadStats struct {
	ThreadID            uint32 `json:"thread_id"`
	OperationsCompleted uint64 `json:"operations_completed"`
	BytesRead           uint64 `json:"bytes_read"`
	BytesWritten        uint64 `json:"bytes_written"`
	CPUCyclesExecuted   uint64 `json:"cpu_cycles_executed"`
	TotalLatencyNs      uint64 `json:"total_latency_ns"`
	MinLatencyNs        uint64 `json:"min_latency_ns"`
	MaxLatencyNs        uint64 `json:"max_latency_ns"`
}

// ExecutionResults is the finalized report of one run. It is created
// once by MetricsSink.Finalize and immutable thereafter.
type ExecutionResults struct {
	PatternName         string        `json:"pattern_name"`
	TotalDurationNs     uint64        `json:"total_duration_ns"`
	TotalOperations     uint64        `json:"total_operations"`
	TotalBytesRead      uint64        `json:"total_bytes_read"`
	TotalBytesWritten   uint64        `json:"total_bytes_written"`
	TotalCPUCycles      uint64        `json:"total_cpu_cycles"`
	AverageLatencyNs    float64       `json:"average_latency_ns"`
	ReadThroughputMbps  float64       `json:"read_throughput_mbps"`
	WriteThroughputMbps float64       `json:"write_throughput_mbps"`
	OperationsPerSecond float64       `json:"operations_per_second"`
	ThreadStats         []ThreadStats `json:"thread_stats"`
	// FaultedThreads lists logical threads whose worker aborted.
	FaultedThreads []uint32 `json:"faulted_threads,omitempty"`
}

// MetricsSink accumulates per-thread operation records. One mutex
// guards the whole structure; it is held only across a few counter
// updates and never across a timed operation, so contention cannot
// leak into measured latencies.
type MetricsSink struct {
	mutex   sync.Mutex
	threads []ThreadStats
}

// NewMetricsSink creates a sink with one slot per logical thread.
func NewMetricsSink(numThreads uint32) *MetricsSink {
	threads := make([]ThreadStats, numThreads)
	for i := range threads {
		threads[i].ThreadID = uint32(i)
	}
	return &MetricsSink{threads: threads}
}

// Record accounts one completed operation to the named thread's
// slot: operation count, the byte or cycle counter matching the
// operation kind, and latency sum/min/max. The amount is the
// resolved byte count (read/write) or cycle count (cpu) the executor
// actually used, which may come from per-operation defaults.
func (s *MetricsSink) Record(threadID uint32, opKind string, amount uint64, latency time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if int(threadID) >= len(s.threads) {
		return
	}
	ts := &s.threads[threadID]
	ts.OperationsCompleted++
	latencyNs := uint64(latency.Nanoseconds())
	ts.TotalLatencyNs += latencyNs
	if ts.MinLatencyNs == 0 || latencyNs < ts.MinLatencyNs {
		ts.MinLatencyNs = latencyNs
	}
	if latencyNs > ts.MaxLatencyNs {
		ts.MaxLatencyNs = latencyNs
	}
	switch opKind {
	case OpRead:
		ts.BytesRead += amount
	case OpWrite:
		ts.BytesWritten += amount
	case OpCPU:
		ts.CPUCyclesExecuted += amount
	}
}

// Snapshot returns a consistent copy of the per-thread counters, for
// progress logging and metrics export during a run.
func (s *MetricsSink) Snapshot() []ThreadStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	threads := make([]ThreadStats, len(s.threads))
	copy(threads, s.threads)
	return threads
}

// Finalize derives the aggregate report for the given wall-clock
// duration. It only reads accumulated state, so calling it again
// without intervening Records yields identical results.
func (s *MetricsSink) Finalize(total time.Duration) *ExecutionResults {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	results := &ExecutionResults{
		TotalDurationNs: uint64(total.Nanoseconds()),
		ThreadStats:     make([]ThreadStats, len(s.threads)),
	}
	copy(results.ThreadStats, s.threads)

	totalLatency := uint64(0)
	for i := range s.threads {
		ts := &s.threads[i]
		results.TotalOperations += ts.OperationsCompleted
		results.TotalBytesRead += ts.BytesRead
		results.TotalBytesWritten += ts.BytesWritten
		results.TotalCPUCycles += ts.CPUCyclesExecuted
		totalLatency += ts.TotalLatencyNs
	}
	if results.TotalOperations > 0 {
		results.AverageLatencyNs = float64(totalLatency) / float64(results.TotalOperations)
	}
	if seconds := total.Seconds(); seconds > 0 {
		results.ReadThroughputMbps = float64(results.TotalBytesRead) / (1024.0 * 1024.0) / seconds
		results.WriteThroughputMbps = float64(results.TotalBytesWritten) / (1024.0 * 1024.0) / seconds
		results.OperationsPerSecond = float64(results.TotalOperations) / seconds
	}
	return results
}
