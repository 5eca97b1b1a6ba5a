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
	"sort"
)

// ScheduleReport summarizes a pattern's scheduling requirements:
// which logical threads it uses, which of them launch gpu kernels,
// and the address range it touches.
type ScheduleReport struct {
	PatternName  string `json:"pattern_name"`
	TotalThreads int    `json:"total_threads"`
	CPUThreads   int    `json:"cpu_threads"`
	GPUThreads   int    `json:"gpu_threads"`
	MinAddr      uint64 `json:"min_addr"`
	MaxAddr      uint64 `json:"max_addr"`
}

func (p *Pattern) allOperations() []Operation {
	if !p.FreeRunning() {
		return p.Operations
	}
	ops := []Operation{}
	for i := range p.ThreadPatterns {
		tp := &p.ThreadPatterns[i]
		for j := range tp.Operations {
			op := tp.Operations[j]
			op.Thread = tp.ThreadID
			ops = append(ops, op)
		}
	}
	return ops
}

func threadsOf(ops []Operation) (all, gpu map[uint32]struct{}) {
	all = map[uint32]struct{}{}
	gpu = map[uint32]struct{}{}
	for i := range ops {
		all[ops[i].Thread] = struct{}{}
		if ops[i].Op == OpGPU {
			gpu[ops[i].Thread] = struct{}{}
		}
	}
	return all, gpu
}

// AnalyzeSchedule reports the thread and address usage of a pattern.
func AnalyzeSchedule(p *Pattern) *ScheduleReport {
	ops := p.allOperations()
	all, gpu := threadsOf(ops)
	report := &ScheduleReport{
		PatternName:  p.Name,
		TotalThreads: len(all),
		CPUThreads:   len(all) - len(gpu),
		GPUThreads:   len(gpu),
	}
	minAddr := ^uint64(0)
	maxAddr := uint64(0)
	for i := range ops {
		switch ops[i].Op {
		case OpRead, OpWrite:
			if ops[i].Addr < minAddr {
				minAddr = ops[i].Addr
			}
			if end := ops[i].Addr + ops[i].Size; end > maxAddr {
				maxAddr = end
			}
		}
	}
	if minAddr != ^uint64(0) {
		report.MinAddr = minAddr
		report.MaxAddr = maxAddr
	}
	return report
}

// GenerateScheduleMap proposes a thread placement for a pattern:
// cpu threads round-robin over cpu ids with numa node cpu/4, gpu
// threads pinned to gpu 0.
func GenerateScheduleMap(p *Pattern) *ScheduleMap {
	all, gpu := threadsOf(p.allOperations())
	threads := make([]uint32, 0, len(all))
	for thread := range all {
		threads = append(threads, thread)
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i] < threads[j] })

	sm := &ScheduleMap{}
	cpuID := uint32(0)
	for _, thread := range threads {
		if _, isGpu := gpu[thread]; isGpu {
			gpuZero := uint32(0)
			sm.ThreadMapping = append(sm.ThreadMapping, ThreadMapping{
				Thread: thread,
				GPU:    &gpuZero,
			})
			continue
		}
		cpu := cpuID
		// assume 4 cpus per numa node
		numa := cpu / 4
		sm.ThreadMapping = append(sm.ThreadMapping, ThreadMapping{
			Thread:   thread,
			CPU:      &cpu,
			NumaNode: &numa,
		})
		cpuID++
	}
	return sm
}
