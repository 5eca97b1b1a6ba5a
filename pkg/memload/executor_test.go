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
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustExecute(t *testing.T, pattern *Pattern, config *ExecutionConfig) *ExecutionResults {
	t.Helper()
	executor, err := NewExecutor(pattern, config)
	require.NoError(t, err)
	results, err := executor.Execute(context.Background())
	require.NoError(t, err)
	require.NotNil(t, results)
	return results
}

func TestExecuteWriteThenRead(t *testing.T) {
	pattern := &Pattern{
		Name:       "write-then-read",
		MemorySize: 1024 * 1024,
		Operations: []Operation{
			{Op: OpWrite, Addr: 0, Size: 4096, Thread: 0},
			{Op: OpRead, Addr: 0, Size: 4096, Thread: 0},
		},
	}
	results := mustExecute(t, pattern, nil)

	if results.TotalOperations != 2 {
		t.Errorf("expected 2 operations, got %d", results.TotalOperations)
	}
	if results.TotalBytesWritten != 4096 {
		t.Errorf("expected 4096 bytes written, got %d", results.TotalBytesWritten)
	}
	if results.TotalBytesRead != 4096 {
		t.Errorf("expected 4096 bytes read, got %d", results.TotalBytesRead)
	}
	if len(results.FaultedThreads) != 0 {
		t.Errorf("expected no faulted threads, got %v", results.FaultedThreads)
	}
	if results.PatternName != "write-then-read" {
		t.Errorf("expected pattern name in results, got %q", results.PatternName)
	}
}

func TestExecuteOutOfBoundsFaultsOnlyTheWorker(t *testing.T) {
	pattern := &Pattern{
		Name:       "oob",
		MemorySize: 4096,
		NumThreads: 2,
		Operations: []Operation{
			// thread 0 reads past the region and must fault
			{Op: OpRead, Addr: 0, Size: 8192, Thread: 0},
			// thread 1 keeps running unaffected
			{Op: OpRead, Addr: 0, Size: 4096, Thread: 1},
		},
	}
	executor, err := NewExecutor(pattern, nil)
	require.NoError(t, err)
	results, err := executor.Execute(context.Background())

	require.Error(t, err)
	if !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected fault to wrap ErrOutOfBounds, got %v", err)
	}
	require.NotNil(t, results)
	require.Equal(t, []uint32{0}, results.FaultedThreads)
	if results.ThreadStats[0].OperationsCompleted != 0 {
		t.Errorf("faulted thread must complete 0 operations, got %d",
			results.ThreadStats[0].OperationsCompleted)
	}
	if results.ThreadStats[1].OperationsCompleted != 1 {
		t.Errorf("healthy thread must complete its operation, got %d",
			results.ThreadStats[1].OperationsCompleted)
	}
}

func TestExecuteCPUThreads(t *testing.T) {
	ops := []Operation{}
	for thread := uint32(0); thread < 4; thread++ {
		ops = append(ops, Operation{Op: OpCPU, Cycles: 1000, Thread: thread})
	}
	pattern := &Pattern{
		Name:       "cpu-fanout",
		MemorySize: 4096,
		Operations: ops,
	}
	results := mustExecute(t, pattern, nil)

	if results.TotalOperations != 4 {
		t.Errorf("expected 4 operations, got %d", results.TotalOperations)
	}
	if results.TotalCPUCycles != 4000 {
		t.Errorf("expected 4000 cycles, got %d", results.TotalCPUCycles)
	}
	for _, ts := range results.ThreadStats {
		if ts.OperationsCompleted != 1 {
			t.Errorf("thread %d: expected 1 operation, got %d", ts.ThreadID, ts.OperationsCompleted)
		}
	}
}

func TestExecuteGpuIsUnsupported(t *testing.T) {
	pattern := &Pattern{
		Name:       "gpu",
		MemorySize: 4096,
		Operations: []Operation{
			{Op: OpGPU, Kernel: "vecadd", Thread: 0},
		},
	}
	executor, err := NewExecutor(pattern, nil)
	require.NoError(t, err)
	results, err := executor.Execute(context.Background())

	require.Error(t, err)
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("expected ErrUnsupportedOperation, got %v", err)
	}
	require.Equal(t, []uint32{0}, results.FaultedThreads)
}

func TestExecuteTimestampPacing(t *testing.T) {
	ts := uint64(50 * time.Millisecond)
	pattern := &Pattern{
		Name:       "paced",
		MemorySize: 8192,
		Operations: []Operation{
			{Op: OpRead, Addr: 0, Size: 4096, Thread: 0},
			{Op: OpRead, Addr: 0, Size: 4096, Thread: 0, TimestampNs: &ts},
		},
	}
	start := time.Now()
	results := mustExecute(t, pattern, nil)
	elapsed := time.Since(start)

	if results.TotalOperations != 2 {
		t.Errorf("expected 2 operations, got %d", results.TotalOperations)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("second operation is scheduled at +50ms, run took only %v", elapsed)
	}
}

func TestExecuteTimestampOrdering(t *testing.T) {
	// out-of-order timestamps are admitted sorted, so both run
	late := uint64(20 * time.Millisecond)
	early := uint64(1 * time.Millisecond)
	pattern := &Pattern{
		Name:       "ordering",
		MemorySize: 4096,
		Operations: []Operation{
			{Op: OpWrite, Addr: 0, Size: 4096, Thread: 0, TimestampNs: &late},
			{Op: OpRead, Addr: 0, Size: 4096, Thread: 0, TimestampNs: &early},
		},
	}
	results := mustExecute(t, pattern, nil)
	if results.TotalOperations != 2 {
		t.Errorf("expected both operations to run, got %d", results.TotalOperations)
	}
	if results.TotalBytesRead != 4096 || results.TotalBytesWritten != 4096 {
		t.Errorf("unexpected totals: %+v", results)
	}
}

func TestPartitionTimestampOrdering(t *testing.T) {
	late := uint64(100 * time.Millisecond)
	early := uint64(1 * time.Millisecond)
	pattern := &Pattern{
		Name:       "mixed-timestamps",
		MemorySize: 8192,
		Operations: []Operation{
			// an untimestamped operation between two timestamped ones
			// must not hide the later one from the earlier one
			{Op: OpRead, Addr: 0, Size: 4096, Thread: 0, TimestampNs: &late},
			{Op: OpCPU, Cycles: 10, Thread: 0},
			{Op: OpRead, Addr: 0, Size: 4096, Thread: 0, TimestampNs: &early},
		},
	}
	executor, err := NewExecutor(pattern, nil)
	require.NoError(t, err)
	defer executor.Close()

	partitions := executor.partitionOperations()
	require.Len(t, partitions, 1)
	part := partitions[0]
	require.Len(t, part, 3)
	for i := 1; i < len(part); i++ {
		if timestampOf(&part[i-1]) > timestampOf(&part[i]) {
			t.Errorf("operation %d (ts %d) sorted after operation %d (ts %d)",
				i-1, timestampOf(&part[i-1]), i, timestampOf(&part[i]))
		}
	}
	if part[0].Op != OpCPU {
		t.Errorf("untimestamped operation must sort first, got %q", part[0].Op)
	}
	if part[1].TimestampNs == nil || *part[1].TimestampNs != early {
		t.Errorf("expected the early read second, got %+v", part[1])
	}
	if part[2].TimestampNs == nil || *part[2].TimestampNs != late {
		t.Errorf("expected the late read last, got %+v", part[2])
	}
}

func TestExecuteAdmissionWindow(t *testing.T) {
	inWindow := uint64(0)
	pastWindow := uint64(5 * uint64(time.Second))
	pattern := &Pattern{
		Name:       "window",
		MemorySize: 8192,
		Operations: []Operation{
			{Op: OpRead, Addr: 0, Size: 4096, Thread: 0, TimestampNs: &inWindow},
			{Op: OpRead, Addr: 0, Size: 4096, Thread: 0, TimestampNs: &pastWindow},
		},
	}
	config := &ExecutionConfig{DurationSeconds: 1}
	results := mustExecute(t, pattern, config)

	if results.TotalOperations != 1 {
		t.Errorf("operation past the window must not be admitted, got %d operations",
			results.TotalOperations)
	}
}

func TestExecuteFreeRunning(t *testing.T) {
	pattern := &Pattern{
		Name:       "freerun",
		MemorySize: 64 * 1024,
		ThreadPatterns: []ThreadPattern{
			{
				ThreadID:       0,
				WorkingSetSize: 8192,
				RepeatPattern:  2,
				Operations: []Operation{
					// 4 strided reads in an 8k working set: the third
					// read wraps back to the base
					{Op: OpRead, Size: 4096, Iterations: 4, Stride: 4096},
				},
			}, {
				ThreadID: 1,
				Operations: []Operation{
					// defaults: size 4096, one iteration
					{Op: OpWrite},
					{Op: OpCPU, Cycles: 500, Iterations: 2},
				},
			},
		},
	}
	results := mustExecute(t, pattern, nil)

	if results.TotalOperations != 2*4+1+2 {
		t.Errorf("expected 11 operations, got %d", results.TotalOperations)
	}
	if results.TotalBytesRead != 2*4*4096 {
		t.Errorf("expected %d bytes read, got %d", 2*4*4096, results.TotalBytesRead)
	}
	if results.TotalBytesWritten != 4096 {
		t.Errorf("expected default-sized write, got %d bytes", results.TotalBytesWritten)
	}
	if results.TotalCPUCycles != 1000 {
		t.Errorf("expected 1000 cycles, got %d", results.TotalCPUCycles)
	}
}

func TestExecuteFreeRunningWorkingSetWrap(t *testing.T) {
	pattern := &Pattern{
		Name:       "wrap",
		MemorySize: 8192,
		ThreadPatterns: []ThreadPattern{
			{
				ThreadID:       0,
				WorkingSetSize: 8192,
				Operations: []Operation{
					// 100 strided reads never leave the 8k working
					// set even though the stride would run past it
					{Op: OpRead, Size: 4096, Iterations: 100, Stride: 4096},
				},
			},
		},
	}
	results := mustExecute(t, pattern, nil)

	if results.TotalOperations != 100 {
		t.Errorf("expected 100 operations, got %d", results.TotalOperations)
	}
	if len(results.FaultedThreads) != 0 {
		t.Errorf("wrapping accesses must stay in bounds, got faults for %v", results.FaultedThreads)
	}
}

func TestExecuteRateLimit(t *testing.T) {
	pattern := &Pattern{
		Name:       "limited",
		MemorySize: 64 * 1024,
		ThreadPatterns: []ThreadPattern{
			{
				ThreadID:       0,
				WorkingSetSize: 64 * 1024,
				Operations: []Operation{
					{Op: OpRead, Size: 4096, Iterations: 16, Stride: 4096},
				},
			},
		},
	}
	// 16 x 4k reads at 64k/s with a 64k burst: the burst covers the
	// first second worth, so the run is fast but all reads complete.
	config := &ExecutionConfig{RateLimit: 64 * 1024}
	results := mustExecute(t, pattern, config)
	if results.TotalOperations != 16 {
		t.Errorf("expected 16 operations, got %d", results.TotalOperations)
	}
	if results.TotalBytesRead != 64*1024 {
		t.Errorf("expected 64k read, got %d", results.TotalBytesRead)
	}
}

func TestExecuteHugeRateLimit(t *testing.T) {
	pattern := &Pattern{
		Name:       "huge-limit",
		MemorySize: 8192,
		Operations: []Operation{
			{Op: OpRead, Addr: 0, Size: 4096, Thread: 0},
		},
	}
	// a rate limit beyond the int range must clamp, not wrap into a
	// burst WaitN can never satisfy
	config := &ExecutionConfig{RateLimit: math.MaxUint64}
	results := mustExecute(t, pattern, config)
	if results.TotalOperations != 1 {
		t.Errorf("expected 1 operation, got %d", results.TotalOperations)
	}
}

func TestExecuteRunsOnlyOnce(t *testing.T) {
	pattern := &Pattern{
		Name:       "once",
		MemorySize: 4096,
		Operations: []Operation{
			{Op: OpCPU, Cycles: 10, Thread: 0},
		},
	}
	executor, err := NewExecutor(pattern, nil)
	require.NoError(t, err)
	_, err = executor.Execute(context.Background())
	require.NoError(t, err)
	_, err = executor.Execute(context.Background())
	require.Error(t, err)
}

func TestNewExecutorRejectsInvalidPatterns(t *testing.T) {
	tcases := []struct {
		name    string
		pattern *Pattern
	}{
		{
			name:    "no memory",
			pattern: &Pattern{Name: "x", Operations: []Operation{{Op: OpCPU, Thread: 0}}},
		}, {
			name:    "no operations",
			pattern: &Pattern{Name: "x", MemorySize: 4096},
		}, {
			name: "unknown op",
			pattern: &Pattern{Name: "x", MemorySize: 4096,
				Operations: []Operation{{Op: "erase", Thread: 0}}},
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewExecutor(tc.pattern, nil); err == nil {
				t.Errorf("expected error for pattern %+v", tc.pattern)
			}
		})
	}
}
