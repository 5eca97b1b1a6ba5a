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
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	goerrors "errors"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// ErrUnsupportedOperation is returned when an operation kind reaches
// a worker that has no execution backend for it (gpu kernels).
var ErrUnsupportedOperation = goerrors.New("operation kind not supported by this executor")

// WorkerFault reports that a worker aborted: a failed region
// operation, an unsupported operation, or a panic inside the worker.
type WorkerFault struct {
	Thread uint32
	Err    error
}

func (f *WorkerFault) Error() string {
	return fmt.Sprintf("worker thread %d: %v", f.Thread, f.Err)
}

func (f *WorkerFault) Unwrap() error {
	return f.Err
}

// Executor replays one pattern against one region with one worker
// goroutine per logical thread, recording every completed operation
// in a MetricsSink. An Executor runs exactly once; a fresh Region
// and sink are constructed per execution.
type Executor struct {
	pattern  *Pattern
	config   *ExecutionConfig
	region   *Region
	sink     *MetricsSink
	limiter  *rate.Limiter
	executed bool

	faultMutex sync.Mutex
	faults     *multierror.Error
	faulted    []uint32
}

// NewExecutor validates the pattern and constructs the region (heap-
// or device-backed per the pattern) and the metrics sink. config may
// be nil.
func NewExecutor(pattern *Pattern, config *ExecutionConfig) (*Executor, error) {
	if err := pattern.Validate(); err != nil {
		return nil, err
	}
	threadCount := pattern.ThreadCount()
	if threadCount == 0 {
		return nil, fmt.Errorf("pattern %q: no logical threads", pattern.Name)
	}

	var region *Region
	var err error
	if pattern.DevicePath != "" {
		region, err = NewDeviceRegion(pattern.DevicePath, pattern.MemorySize, pattern.UseMmap)
	} else {
		region, err = NewHeapRegion(pattern.MemorySize)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "constructing region for pattern %q", pattern.Name)
	}

	e := &Executor{
		pattern: pattern,
		config:  config,
		region:  region,
		sink:    NewMetricsSink(threadCount),
	}
	if config != nil && config.RateLimit > 0 {
		// The burst must cover the largest single read/write or
		// WaitN can never be satisfied.
		burst := config.RateLimit
		if m := pattern.maxOpSize(); m > burst {
			burst = m
		}
		if burst > math.MaxInt {
			burst = math.MaxInt
		}
		e.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), int(burst))
	}
	return e, nil
}

func (p *Pattern) maxOpSize() uint64 {
	maxSize := constDefaultOpSize
	for i := range p.Operations {
		if p.Operations[i].Size > maxSize {
			maxSize = p.Operations[i].Size
		}
	}
	for i := range p.ThreadPatterns {
		for j := range p.ThreadPatterns[i].Operations {
			if s := p.ThreadPatterns[i].Operations[j].Size; s > maxSize {
				maxSize = s
			}
		}
	}
	return maxSize
}

// Close releases the region without running. Execute releases it
// itself after all workers have joined.
func (e *Executor) Close() error {
	return e.region.Close()
}

// Execute launches one worker per logical thread, waits for all of
// them, and finalizes the metrics. Per-worker faults do not stop
// other workers; the partial results are returned together with the
// aggregated fault error.
func (e *Executor) Execute(ctx context.Context) (*ExecutionResults, error) {
	if e.executed {
		return nil, fmt.Errorf("pattern %q: executor has already run", e.pattern.Name)
	}
	e.executed = true
	defer e.region.Close()

	log.Infof("executing pattern %q: %d threads, %d bytes of memory",
		e.pattern.Name, e.pattern.ThreadCount(), e.pattern.MemorySize)
	if e.config != nil && e.config.WarmupSeconds > 0 {
		log.Debugf("warmup_seconds is not implemented, ignoring")
	}

	stopProgress := e.startProgressLogger()

	var wg sync.WaitGroup
	threadCount := e.pattern.ThreadCount()
	start := time.Now()
	if e.pattern.FreeRunning() {
		byThread := make(map[uint32][]*ThreadPattern, len(e.pattern.ThreadPatterns))
		for i := range e.pattern.ThreadPatterns {
			tp := &e.pattern.ThreadPatterns[i]
			t := tp.ThreadID % threadCount
			byThread[t] = append(byThread[t], tp)
		}
		for threadID := uint32(0); threadID < threadCount; threadID++ {
			wg.Add(1)
			go func(threadID uint32, tps []*ThreadPattern) {
				defer wg.Done()
				defer e.recoverWorker(threadID)
				for _, tp := range tps {
					if !e.runFreeRunning(ctx, threadID, tp) {
						return
					}
				}
			}(threadID, byThread[threadID])
		}
	} else {
		partitions := e.partitionOperations()
		for threadID := uint32(0); threadID < threadCount; threadID++ {
			wg.Add(1)
			go func(threadID uint32, ops []Operation) {
				defer wg.Done()
				defer e.recoverWorker(threadID)
				e.runTimestamped(ctx, threadID, ops)
			}(threadID, partitions[threadID])
		}
	}
	wg.Wait()
	wall := time.Since(start)
	close(stopProgress)

	results := e.sink.Finalize(wall)
	results.PatternName = e.pattern.Name

	e.faultMutex.Lock()
	faultErr := e.faults.ErrorOrNil()
	results.FaultedThreads = sortedCopyOfUint32s(e.faulted)
	e.faultMutex.Unlock()

	return results, faultErr
}

// partitionOperations splits the flat operation list by thread id
// modulo thread count and stable-sorts each partition by timestamp.
// Operations without timestamps keep their original relative order.
// With an admission window configured, operations scheduled past the
// window are not admitted at all; in-flight operations are never
// interrupted.
func (e *Executor) partitionOperations() [][]Operation {
	threadCount := e.pattern.ThreadCount()
	window := time.Duration(0)
	if e.config != nil && e.config.DurationSeconds > 0 {
		window = time.Duration(e.config.DurationSeconds) * time.Second
	}
	partitions := make([][]Operation, threadCount)
	admitted, dropped := 0, 0
	for i := range e.pattern.Operations {
		op := e.pattern.Operations[i]
		if window > 0 && op.TimestampNs != nil &&
			time.Duration(*op.TimestampNs) > window {
			dropped++
			continue
		}
		t := op.Thread % threadCount
		partitions[t] = append(partitions[t], op)
		admitted++
	}
	if dropped > 0 {
		log.Infof("admitted %d operations, dropped %d beyond the %s window",
			admitted, dropped, window)
	}
	for t := range partitions {
		part := partitions[t]
		// Untimestamped operations sort as timestamp 0: the stable
		// sort keeps their relative order and they run unpaced.
		sort.SliceStable(part, func(i, j int) bool {
			return timestampOf(&part[i]) < timestampOf(&part[j])
		})
	}
	return partitions
}

func timestampOf(op *Operation) uint64 {
	if op.TimestampNs == nil {
		return 0
	}
	return *op.TimestampNs
}

// runTimestamped replays one sorted partition, pacing each operation
// against this worker's own start time. Operations whose timestamp
// has already passed run immediately.
func (e *Executor) runTimestamped(ctx context.Context, threadID uint32, ops []Operation) {
	start := time.Now()
	for i := range ops {
		op := &ops[i]
		if op.TimestampNs != nil {
			target := time.Duration(*op.TimestampNs)
			if elapsed := time.Since(start); elapsed < target {
				time.Sleep(target - elapsed)
			}
		}
		addr, size := op.Addr, op.Size
		cycles := op.Cycles
		if err := e.executeOne(ctx, threadID, op.Op, addr, size, cycles); err != nil {
			e.fault(threadID, errors.Wrapf(err, "operation %d (%s)", i, op.Op))
			return
		}
	}
}

// runFreeRunning replays one thread pattern back-to-back as fast as
// possible: repeat_pattern whole-list loops, per-operation
// iterations, stride address advance with working-set wrap, and
// optional think-time sleeps between operations. It returns false
// when the worker faulted and must not continue.
func (e *Executor) runFreeRunning(ctx context.Context, threadID uint32, tp *ThreadPattern) bool {
	base := tp.WorkingSetBase
	limit := base + tp.WorkingSetSize
	if tp.WorkingSetSize == 0 || limit < base {
		limit = ^uint64(0)
	}
	repeat := tp.RepeatPattern
	if repeat == 0 {
		repeat = 1
	}
	for r := uint64(0); r < repeat; r++ {
		for i := range tp.Operations {
			op := &tp.Operations[i]
			iterations := op.Iterations
			if iterations == 0 {
				iterations = 1
			}
			current := base + op.Addr
			for iter := uint64(0); iter < iterations; iter++ {
				size := op.Size
				if size == 0 {
					size = constDefaultOpSize
				}
				cycles := op.Cycles
				if cycles == 0 {
					cycles = constDefaultCPUCycles
				}
				if op.Op == OpRead || op.Op == OpWrite {
					// Wrap back to the working set base before
					// running past its end.
					if current+size > limit {
						current = base
					}
				}
				if err := e.executeOne(ctx, threadID, op.Op, current, size, cycles); err != nil {
					e.fault(threadID, errors.Wrapf(err, "operation %d (%s) iteration %d", i, op.Op, iter))
					return false
				}
				current += op.Stride
				if op.ThinkTimeNs > 0 {
					time.Sleep(time.Duration(op.ThinkTimeNs))
				}
			}
		}
	}
	return true
}

// executeOne dispatches a single resolved operation to the region's
// matching timed primitive and records the outcome. Rate limiting
// waits happen before the timed window.
func (e *Executor) executeOne(ctx context.Context, threadID uint32, opKind string, addr, size, cycles uint64) error {
	var latency time.Duration
	var amount uint64
	var err error
	switch opKind {
	case OpRead:
		if err = e.waitQuota(ctx, size); err != nil {
			return err
		}
		latency, err = e.region.TimedRead(addr, size)
		amount = size
	case OpWrite:
		if err = e.waitQuota(ctx, size); err != nil {
			return err
		}
		latency, err = e.region.TimedWrite(addr, size)
		amount = size
	case OpCPU:
		latency = e.region.TimedCPUBurn(cycles)
		amount = cycles
	default:
		return ErrUnsupportedOperation
	}
	if err != nil {
		return err
	}
	e.sink.Record(threadID, opKind, amount, latency)
	return nil
}

func (e *Executor) waitQuota(ctx context.Context, size uint64) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.WaitN(ctx, int(size))
}

func (e *Executor) fault(threadID uint32, err error) {
	fault := &WorkerFault{Thread: threadID, Err: err}
	log.Errorf("%v", fault)
	e.faultMutex.Lock()
	defer e.faultMutex.Unlock()
	e.faults = multierror.Append(e.faults, fault)
	e.faulted = append(e.faulted, threadID)
}

func (e *Executor) recoverWorker(threadID uint32) {
	if p := recover(); p != nil {
		e.fault(threadID, fmt.Errorf("panic: %v", p))
	}
}

// startProgressLogger logs accumulated counters every
// metrics_interval seconds until the returned channel is closed.
func (e *Executor) startProgressLogger() chan struct{} {
	stop := make(chan struct{})
	if e.config == nil || e.config.MetricsInterval == 0 {
		return stop
	}
	interval := time.Duration(e.config.MetricsInterval) * time.Second
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ops, bytesRead, bytesWritten := uint64(0), uint64(0), uint64(0)
				for _, ts := range e.sink.Snapshot() {
					ops += ts.OperationsCompleted
					bytesRead += ts.BytesRead
					bytesWritten += ts.BytesWritten
				}
				log.Infof("progress: %d operations, %d bytes read, %d bytes written",
					ops, bytesRead, bytesWritten)
			}
		}
	}()
	return stop
}

func sortedCopyOfUint32s(orig []uint32) []uint32 {
	if len(orig) == 0 {
		return nil
	}
	retval := make([]uint32, len(orig))
	copy(retval, orig)
	sort.Slice(retval, func(i, j int) bool { return retval[i] < retval[j] })
	return retval
}
