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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAnalyzeSchedule(t *testing.T) {
	tcases := []struct {
		name           string
		pattern        *Pattern
		expectedReport *ScheduleReport
	}{
		{
			name: "flat pattern with gpu thread",
			pattern: &Pattern{
				Name:       "mixed",
				MemorySize: 1024 * 1024,
				Operations: []Operation{
					{Op: OpRead, Addr: 4096, Size: 4096, Thread: 0},
					{Op: OpWrite, Addr: 65536, Size: 8192, Thread: 1},
					{Op: OpCPU, Cycles: 1000, Thread: 1},
					{Op: OpGPU, Kernel: "vecadd", Thread: 2},
				},
			},
			expectedReport: &ScheduleReport{
				PatternName:  "mixed",
				TotalThreads: 3,
				CPUThreads:   2,
				GPUThreads:   1,
				MinAddr:      4096,
				MaxAddr:      65536 + 8192,
			},
		}, {
			name: "free-running pattern",
			pattern: &Pattern{
				Name:       "freerun",
				MemorySize: 65536,
				ThreadPatterns: []ThreadPattern{
					{
						ThreadID: 0,
						Operations: []Operation{
							{Op: OpRead, Addr: 0, Size: 4096},
						},
					}, {
						ThreadID: 3,
						Operations: []Operation{
							{Op: OpWrite, Addr: 8192, Size: 4096},
						},
					},
				},
			},
			expectedReport: &ScheduleReport{
				PatternName:  "freerun",
				TotalThreads: 2,
				CPUThreads:   2,
				MinAddr:      0,
				MaxAddr:      8192 + 4096,
			},
		}, {
			name: "cpu-only pattern has no address range",
			pattern: &Pattern{
				Name:       "burn",
				MemorySize: 4096,
				Operations: []Operation{
					{Op: OpCPU, Cycles: 1000, Thread: 0},
				},
			},
			expectedReport: &ScheduleReport{
				PatternName:  "burn",
				TotalThreads: 1,
				CPUThreads:   1,
			},
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			report := AnalyzeSchedule(tc.pattern)
			if diff := cmp.Diff(tc.expectedReport, report); diff != "" {
				t.Errorf("report mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGenerateScheduleMap(t *testing.T) {
	pattern := &Pattern{
		Name:       "placement",
		MemorySize: 1024 * 1024,
		Operations: []Operation{
			{Op: OpRead, Addr: 0, Size: 4096, Thread: 0},
			{Op: OpGPU, Kernel: "vecadd", Thread: 1},
			{Op: OpWrite, Addr: 0, Size: 4096, Thread: 2},
			{Op: OpCPU, Cycles: 1000, Thread: 5},
		},
	}
	sm := GenerateScheduleMap(pattern)
	if len(sm.ThreadMapping) != 4 {
		t.Fatalf("expected 4 thread mappings, got %d", len(sm.ThreadMapping))
	}

	// mappings come out sorted by thread id
	for i, expectedThread := range []uint32{0, 1, 2, 5} {
		if sm.ThreadMapping[i].Thread != expectedThread {
			t.Errorf("mapping %d: expected thread %d, got %d",
				i, expectedThread, sm.ThreadMapping[i].Thread)
		}
	}

	// cpu threads get round-robin cpu ids, gpu thread gets gpu 0
	tm := sm.ThreadMapping
	if tm[0].CPU == nil || *tm[0].CPU != 0 {
		t.Errorf("thread 0: expected cpu 0, got %+v", tm[0])
	}
	if tm[1].GPU == nil || *tm[1].GPU != 0 || tm[1].CPU != nil {
		t.Errorf("thread 1: expected gpu 0 and no cpu, got %+v", tm[1])
	}
	if tm[2].CPU == nil || *tm[2].CPU != 1 {
		t.Errorf("thread 2: expected cpu 1, got %+v", tm[2])
	}
	if tm[3].CPU == nil || *tm[3].CPU != 2 {
		t.Errorf("thread 5: expected cpu 2, got %+v", tm[3])
	}
	if tm[3].NumaNode == nil || *tm[3].NumaNode != 0 {
		t.Errorf("thread 5: expected numa node 0, got %+v", tm[3])
	}
}
