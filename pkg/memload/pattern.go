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
	"io/ioutil"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"
)

// Operation kinds.
const (
	OpRead  = "read"
	OpWrite = "write"
	OpCPU   = "cpu"
	OpGPU   = "gpu"
)

// Operation is one unit of work. Read/write operations carry an
// address and a size, cpu operations a cycle count, gpu operations an
// opaque kernel name. An operation may additionally carry an explicit
// timestamp (nanoseconds from the owning worker's start) and
// free-running attributes (iterations, stride, think time).
type Operation struct {
	Op     string `json:"op"`
	Addr   uint64 `json:"addr,omitempty"`
	Size   uint64 `json:"size,omitempty"`
	Cycles uint64 `json:"cycles,omitempty"`
	Kernel string `json:"kernel,omitempty"`
	Thread uint32 `json:"thread"`

	// TimestampNs schedules the operation relative to the worker's
	// start time. nil means run as soon as the previous operation
	// has finished.
	TimestampNs *uint64 `json:"timestamp_ns,omitempty"`

	// Free-running attributes.
	Iterations  uint64 `json:"iterations,omitempty"`
	Stride      uint64 `json:"stride,omitempty"`
	ThinkTimeNs uint64 `json:"think_time_ns,omitempty"`
}

// ThreadPattern is the free-running dialect: operations already
// grouped under their thread, optionally wrapping inside a working
// set and repeating the whole list.
type ThreadPattern struct {
	ThreadID       uint32      `json:"thread_id"`
	WorkingSetBase uint64      `json:"working_set_base,omitempty"`
	WorkingSetSize uint64      `json:"working_set_size,omitempty"`
	RepeatPattern  uint64      `json:"repeat_pattern,omitempty"`
	Operations     []Operation `json:"operations"`
}

// Pattern is a named, ordered sequence of operations plus the memory
// and thread topology it runs against. Exactly one of Operations
// (flat, optionally timestamped dialect) or ThreadPatterns
// (free-running dialect) should be populated. A Pattern is immutable
// once constructed.
type Pattern struct {
	Name           string          `json:"name"`
	Operations     []Operation     `json:"operations,omitempty"`
	ThreadPatterns []ThreadPattern `json:"thread_patterns,omitempty"`
	MemorySize     uint64          `json:"memory_size"`
	DevicePath     string          `json:"device_path,omitempty"`
	UseMmap        bool            `json:"use_mmap,omitempty"`
	NumThreads     uint32          `json:"num_threads,omitempty"`
}

// FreeRunning returns true if the pattern uses the free-running
// dialect.
func (p *Pattern) FreeRunning() bool {
	return len(p.ThreadPatterns) > 0
}

// ThreadCount returns the explicit thread count, or max thread id + 1
// when the pattern does not give one.
func (p *Pattern) ThreadCount() uint32 {
	if p.NumThreads > 0 {
		return p.NumThreads
	}
	maxThread := uint32(0)
	seen := false
	for i := range p.Operations {
		seen = true
		if p.Operations[i].Thread > maxThread {
			maxThread = p.Operations[i].Thread
		}
	}
	for i := range p.ThreadPatterns {
		seen = true
		if p.ThreadPatterns[i].ThreadID > maxThread {
			maxThread = p.ThreadPatterns[i].ThreadID
		}
	}
	if !seen {
		return 0
	}
	return maxThread + 1
}

// Validate checks that the pattern can be executed: it has memory,
// it has operations of known kinds, and it uses exactly one dialect.
// Addresses are not checked here; every access is bounds-checked by
// the Region at run time, and an out-of-bounds operation faults only
// the worker that issues it.
func (p *Pattern) Validate() error {
	if p.MemorySize == 0 {
		return fmt.Errorf("pattern %q: memory_size is 0", p.Name)
	}
	if len(p.Operations) == 0 && len(p.ThreadPatterns) == 0 {
		return fmt.Errorf("pattern %q: no operations", p.Name)
	}
	if len(p.Operations) > 0 && len(p.ThreadPatterns) > 0 {
		return fmt.Errorf("pattern %q: both operations and thread_patterns given, expected one dialect", p.Name)
	}
	for i := range p.Operations {
		op := &p.Operations[i]
		switch op.Op {
		case OpRead, OpWrite, OpCPU, OpGPU:
		default:
			return fmt.Errorf("pattern %q: operation %d has unknown op %q", p.Name, i, op.Op)
		}
	}
	for i := range p.ThreadPatterns {
		for j := range p.ThreadPatterns[i].Operations {
			op := &p.ThreadPatterns[i].Operations[j]
			switch op.Op {
			case OpRead, OpWrite, OpCPU, OpGPU:
			default:
				return fmt.Errorf("pattern %q: thread_pattern %d operation %d has unknown op %q",
					p.Name, i, j, op.Op)
			}
		}
	}
	return nil
}

// RegionType classifies a memory region in an address map.
type RegionType string

const (
	RegionDram    RegionType = "dram"
	RegionCxl     RegionType = "cxl"
	RegionGpu     RegionType = "gpu"
	RegionStorage RegionType = "storage"
)

// MemoryRegion annotates an address range with its backing tier.
type MemoryRegion struct {
	Name     string     `json:"name"`
	Base     uint64     `json:"base"`
	Size     uint64     `json:"size"`
	Type     RegionType `json:"type"`
	Device   string     `json:"device,omitempty"`
	NumaNode *uint32    `json:"numa_node,omitempty"`
}

// AddressMap is pass-through topology metadata: it annotates pattern
// addresses with memory tiers but does not change execution.
type AddressMap struct {
	MemoryRegions []MemoryRegion `json:"memory_regions"`
}

// ThreadMapping pins a logical thread to cpu/gpu/numa resources.
type ThreadMapping struct {
	Thread   uint32  `json:"thread"`
	CPU      *uint32 `json:"cpu,omitempty"`
	GPU      *uint32 `json:"gpu,omitempty"`
	NumaNode *uint32 `json:"numa_node,omitempty"`
}

// ScheduleMap is pass-through topology metadata for thread placement.
type ScheduleMap struct {
	ThreadMapping []ThreadMapping `json:"thread_mapping"`
}

// ExecutionConfig carries run-wide knobs that are not part of the
// pattern itself.
type ExecutionConfig struct {
	DurationSeconds uint64 `json:"duration_seconds,omitempty"`
	// RateLimit caps read/write bandwidth in bytes per second.
	// 0 means unlimited.
	RateLimit uint64 `json:"rate_limit,omitempty"`
	WarmupSeconds uint64 `json:"warmup_seconds,omitempty"`
	// MetricsInterval is the progress log interval in seconds.
	// 0 disables progress logging.
	MetricsInterval uint64 `json:"metrics_interval,omitempty"`
}

// WorkloadType selects a pattern generator.
type WorkloadType string

const (
	WorkloadSequential WorkloadType = "sequential"
	WorkloadRandom     WorkloadType = "random"
	WorkloadHotspot    WorkloadType = "hotspot"
	WorkloadDatabase   WorkloadType = "database"
	WorkloadAnalytics  WorkloadType = "analytics"
	WorkloadCache      WorkloadType = "cache"
	WorkloadMixed      WorkloadType = "mixed"
)

// WorkloadSpec parameterizes pattern generation.
type WorkloadSpec struct {
	Name         string                     `json:"name"`
	WorkloadType WorkloadType               `json:"workload_type"`
	Params       map[string]json.RawMessage `json:"params,omitempty"`
}

func unmarshalFile(path string, v interface{}) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}

// ReadPatternFile loads and validates a pattern from a JSON or YAML
// file.
func ReadPatternFile(path string) (*Pattern, error) {
	pattern := &Pattern{}
	if err := unmarshalFile(path, pattern); err != nil {
		return nil, fmt.Errorf("reading pattern %q: %v", path, err)
	}
	if err := pattern.Validate(); err != nil {
		return nil, err
	}
	return pattern, nil
}

// ReadAddressMapFile loads an address map from a JSON or YAML file.
func ReadAddressMapFile(path string) (*AddressMap, error) {
	am := &AddressMap{}
	if err := unmarshalFile(path, am); err != nil {
		return nil, fmt.Errorf("reading address map %q: %v", path, err)
	}
	return am, nil
}

// ReadScheduleMapFile loads a schedule map from a JSON or YAML file.
func ReadScheduleMapFile(path string) (*ScheduleMap, error) {
	sm := &ScheduleMap{}
	if err := unmarshalFile(path, sm); err != nil {
		return nil, fmt.Errorf("reading schedule map %q: %v", path, err)
	}
	return sm, nil
}

// ReadExecutionConfigFile loads an execution config from a JSON or
// YAML file.
func ReadExecutionConfigFile(path string) (*ExecutionConfig, error) {
	ec := &ExecutionConfig{}
	if err := unmarshalFile(path, ec); err != nil {
		return nil, fmt.Errorf("reading execution config %q: %v", path, err)
	}
	return ec, nil
}

// ReadWorkloadSpecFile loads a workload spec from a JSON or YAML
// file.
func ReadWorkloadSpecFile(path string) (*WorkloadSpec, error) {
	ws := &WorkloadSpec{}
	if err := unmarshalFile(path, ws); err != nil {
		return nil, fmt.Errorf("reading workload spec %q: %v", path, err)
	}
	return ws, nil
}

// WriteJSONFile writes v as indented JSON, for saving generated
// patterns, schedule maps and execution results.
func WriteJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, append(data, '\n'), 0644)
}
