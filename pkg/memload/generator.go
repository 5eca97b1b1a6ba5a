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
	"encoding/json"
	"fmt"
	"math/rand"
)

// generatorSeed makes generated patterns reproducible: the same
// workload spec always produces the same pattern.
const generatorSeed int64 = 42

// GeneratePattern constructs a pattern from a workload specification.
// The construction is pure and single-threaded; the generated pattern
// is ready for validation and execution.
func GeneratePattern(spec *WorkloadSpec) (*Pattern, error) {
	switch spec.WorkloadType {
	case WorkloadSequential:
		return generateSequential(spec), nil
	case WorkloadRandom:
		return generateRandom(spec)
	case WorkloadHotspot:
		return generateHotspot(spec)
	case WorkloadDatabase:
		return generateDatabase(spec), nil
	case WorkloadAnalytics:
		return generateAnalytics(spec), nil
	case WorkloadCache:
		return generateCache(spec), nil
	case WorkloadMixed:
		return generateMixed(spec), nil
	default:
		return nil, fmt.Errorf("unknown workload type %q", spec.WorkloadType)
	}
}

func (w *WorkloadSpec) paramUint64(key string, fallback uint64) uint64 {
	raw, ok := w.Params[key]
	if !ok {
		return fallback
	}
	var v uint64
	if err := json.Unmarshal(raw, &v); err != nil {
		return fallback
	}
	return v
}

func (w *WorkloadSpec) paramUint32(key string, fallback uint32) uint32 {
	return uint32(w.paramUint64(key, uint64(fallback)))
}

func (w *WorkloadSpec) paramFloat64(key string, fallback float64) float64 {
	raw, ok := w.Params[key]
	if !ok {
		return fallback
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return fallback
	}
	return v
}

// finishPattern fills in the topology fields a generated pattern
// needs for execution: thread count and a memory size covering the
// furthest generated access.
func finishPattern(name string, ops []Operation, threads uint32, memorySize uint64) *Pattern {
	maxAccess := uint64(0)
	for i := range ops {
		if end := ops[i].Addr + ops[i].Size; end > maxAccess {
			maxAccess = end
		}
	}
	if memorySize < maxAccess {
		memorySize = maxAccess
	}
	return &Pattern{
		Name:       name,
		Operations: ops,
		MemorySize: memorySize,
		NumThreads: threads,
	}
}

func readOrWrite(rng *rand.Rand, readRatio float64, addr, size uint64, thread uint32) Operation {
	op := OpWrite
	if rng.Float64() < readRatio {
		op = OpRead
	}
	return Operation{Op: op, Addr: addr, Size: size, Thread: thread}
}

// generateSequential lays out a per-thread streaming scan: every
// thread walks its own 1MB-spaced base address in block-size steps.
func generateSequential(spec *WorkloadSpec) *Pattern {
	opsCount := spec.paramUint64("operations", 1000)
	threads := spec.paramUint32("threads", 4)
	readRatio := spec.paramFloat64("read_ratio", 0.7)
	blockSize := spec.paramUint64("block_size", 4096)
	rng := rand.New(rand.NewSource(generatorSeed))

	ops := []Operation{}
	opsPerThread := opsCount / uint64(threads)
	for thread := uint32(0); thread < threads; thread++ {
		current := uint64(thread) * 1024 * 1024
		for i := uint64(0); i < opsPerThread; i++ {
			ops = append(ops, readOrWrite(rng, readRatio, current, blockSize, thread))
			current += blockSize
		}
	}
	return finishPattern(spec.Name, ops, threads, 0)
}

// generateRandom scatters uniformly distributed block-aligned
// accesses over the whole memory.
func generateRandom(spec *WorkloadSpec) (*Pattern, error) {
	opsCount := spec.paramUint64("operations", 1000)
	threads := spec.paramUint32("threads", 4)
	readRatio := spec.paramFloat64("read_ratio", 0.7)
	blockSize := spec.paramUint64("block_size", 4096)
	memorySize := spec.paramUint64("memory_size", 1024*1024*1024)
	rng := rand.New(rand.NewSource(generatorSeed))

	if memorySize < 2*blockSize {
		return nil, fmt.Errorf("memory_size %d leaves no room for block_size %d accesses",
			memorySize, blockSize)
	}
	ops := []Operation{}
	opsPerThread := opsCount / uint64(threads)
	blocks := (memorySize - blockSize) / blockSize
	for thread := uint32(0); thread < threads; thread++ {
		for i := uint64(0); i < opsPerThread; i++ {
			addr := uint64(rng.Int63n(int64(blocks))) * blockSize
			ops = append(ops, readOrWrite(rng, readRatio, addr, blockSize, thread))
		}
	}
	return finishPattern(spec.Name, ops, threads, memorySize), nil
}

// generateHotspot keeps hotspot_ratio of the accesses inside a hot
// region sized 10% of the memory and spreads the rest over the cold
// remainder.
func generateHotspot(spec *WorkloadSpec) (*Pattern, error) {
	opsCount := spec.paramUint64("operations", 1000)
	threads := spec.paramUint32("threads", 4)
	readRatio := spec.paramFloat64("read_ratio", 0.8)
	blockSize := spec.paramUint64("block_size", 4096)
	hotspotRatio := spec.paramFloat64("hotspot_ratio", 0.8)
	memorySize := spec.paramUint64("memory_size", 1024*1024*1024)
	rng := rand.New(rand.NewSource(generatorSeed))

	hotspotSize := memorySize / 10
	if hotspotSize < 2*blockSize || memorySize < hotspotSize+2*blockSize {
		return nil, fmt.Errorf("memory_size %d leaves no room for block_size %d hotspot accesses",
			memorySize, blockSize)
	}
	ops := []Operation{}
	opsPerThread := opsCount / uint64(threads)
	hotBlocks := (hotspotSize - blockSize) / blockSize
	coldBlocks := (memorySize - hotspotSize - blockSize) / blockSize
	for thread := uint32(0); thread < threads; thread++ {
		for i := uint64(0); i < opsPerThread; i++ {
			var addr uint64
			if rng.Float64() < hotspotRatio {
				addr = uint64(rng.Int63n(int64(hotBlocks))) * blockSize
			} else {
				addr = hotspotSize + uint64(rng.Int63n(int64(coldBlocks)))*blockSize
			}
			ops = append(ops, readOrWrite(rng, readRatio, addr, blockSize, thread))
		}
	}
	return finishPattern(spec.Name, ops, threads, memorySize), nil
}

// generateDatabase emulates index/table access: mostly sequential 8k
// pages per thread with a random seek every 10th operation.
func generateDatabase(spec *WorkloadSpec) *Pattern {
	opsCount := spec.paramUint64("operations", 1000)
	threads := spec.paramUint32("threads", 4)
	readRatio := spec.paramFloat64("read_ratio", 0.9)
	blockSize := spec.paramUint64("block_size", 8192)
	rng := rand.New(rand.NewSource(generatorSeed))

	ops := []Operation{}
	opsPerThread := opsCount / uint64(threads)
	for thread := uint32(0); thread < threads; thread++ {
		threadBase := uint64(thread) * 10 * 1024 * 1024
		current := threadBase
		for i := uint64(0); i < opsPerThread; i++ {
			if i%10 == 0 {
				seek := uint64(rng.Int63n(5 * 1024 * 1024))
				current = threadBase + seek&^(blockSize-1)
			}
			ops = append(ops, readOrWrite(rng, readRatio, current, blockSize, thread))
			current += blockSize
		}
	}
	return finishPattern(spec.Name, ops, threads, 0)
}

// generateAnalytics streams large sequential reads with a cpu burn
// after every fifth read, the classic scan-then-aggregate shape.
func generateAnalytics(spec *WorkloadSpec) *Pattern {
	opsCount := spec.paramUint64("operations", 1000)
	threads := spec.paramUint32("threads", 4)
	blockSize := spec.paramUint64("block_size", 1024*1024)
	cpuCycles := spec.paramUint64("cpu_cycles", 1000000)

	ops := []Operation{}
	opsPerThread := opsCount / uint64(threads)
	for thread := uint32(0); thread < threads; thread++ {
		current := uint64(thread) * 100 * 1024 * 1024
		for i := uint64(0); i < opsPerThread; i++ {
			ops = append(ops, Operation{Op: OpRead, Addr: current, Size: blockSize, Thread: thread})
			if i%5 == 4 {
				ops = append(ops, Operation{Op: OpCPU, Cycles: cpuCycles, Thread: thread})
			}
			current += blockSize
		}
	}
	return finishPattern(spec.Name, ops, threads, 0)
}

// generateCache issues cache-line sized accesses, mostly inside a
// 32k per-thread window with cache_miss_ratio of them falling
// outside it.
func generateCache(spec *WorkloadSpec) *Pattern {
	opsCount := spec.paramUint64("operations", 1000)
	threads := spec.paramUint32("threads", 4)
	readRatio := spec.paramFloat64("read_ratio", 0.95)
	blockSize := spec.paramUint64("block_size", 64)
	missRatio := spec.paramFloat64("cache_miss_ratio", 0.1)
	rng := rand.New(rand.NewSource(generatorSeed))

	ops := []Operation{}
	opsPerThread := opsCount / uint64(threads)
	cacheSize := uint64(32 * 1024)
	for thread := uint32(0); thread < threads; thread++ {
		threadBase := uint64(thread) * 1024 * 1024
		for i := uint64(0); i < opsPerThread; i++ {
			var addr uint64
			if rng.Float64() < missRatio {
				addr = threadBase + cacheSize + uint64(rng.Int63n(512*1024))&^(blockSize-1)
			} else {
				addr = threadBase + uint64(rng.Int63n(int64(cacheSize)))&^(blockSize-1)
			}
			ops = append(ops, readOrWrite(rng, readRatio, addr, blockSize, thread))
		}
	}
	return finishPattern(spec.Name, ops, threads, 0)
}

// generateMixed interleaves cpu burns into an otherwise sequential
// read/write stream.
func generateMixed(spec *WorkloadSpec) *Pattern {
	opsCount := spec.paramUint64("operations", 1000)
	threads := spec.paramUint32("threads", 4)
	readRatio := spec.paramFloat64("read_ratio", 0.7)
	blockSize := spec.paramUint64("block_size", 4096)
	cpuRatio := spec.paramFloat64("cpu_ratio", 0.2)
	cpuCycles := spec.paramUint64("cpu_cycles", 10000)
	rng := rand.New(rand.NewSource(generatorSeed))

	ops := []Operation{}
	opsPerThread := opsCount / uint64(threads)
	for thread := uint32(0); thread < threads; thread++ {
		current := uint64(thread) * 1024 * 1024
		for i := uint64(0); i < opsPerThread; i++ {
			if rng.Float64() < cpuRatio {
				ops = append(ops, Operation{Op: OpCPU, Cycles: cpuCycles, Thread: thread})
				continue
			}
			ops = append(ops, readOrWrite(rng, readRatio, current, blockSize, thread))
			current += blockSize
		}
	}
	return finishPattern(spec.Name, ops, threads, 0)
}
