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

/*

	Package memload generates and executes synthetic memory and
	compute workloads against system RAM or a memory-mapped block
	device, such as CXL-attached memory exposed as a DAX or block
	device.

	Component types

	1. Patterns (pattern.go) describe what to do: a named,
	ordered list of read/write/cpu operations together with the
	memory size, optional backing device and thread topology.
	Patterns are either written by hand, loaded from JSON or YAML
	files, or produced by generators (generator.go) from a
	workload specification (sequential, random, hotspot, database,
	analytics, cache, mixed).

	2. The Region (region.go, region_linux.go) owns one
	contiguous byte range, backed by page-aligned heap memory or
	by an O_DIRECT-opened, optionally memory-mapped device. It
	exposes bounds-checked timed read, write and cpu-burn
	primitives.

	3. The Executor (executor.go) partitions a pattern's
	operations across worker goroutines, one per logical thread,
	paces them against per-operation timestamps or think times,
	drives every operation through the Region and records each
	outcome in the MetricsSink.

	4. The MetricsSink (stats.go) accumulates per-thread counters
	under a single lock and derives the final ExecutionResults:
	totals, average latency, read/write throughput and
	operations per second.

	Executing a pattern

		+--------+            +----------+
		|Pattern |--validate->|Executor  |
		+--------+            +-+------+-+
		                        |      |
		            timed ops   V      V   record
		                   +------+  +-----------+
		                   |Region|  |MetricsSink|
		                   +------+  +-----------+

	Supporting modules

	1. parse.go parses human-readable byte sizes and bandwidths.
	2. schedule.go analyzes a pattern's thread and address usage
	   and proposes a thread-to-cpu schedule map.
	3. collector.go exports live run counters as prometheus
	   metrics.
*/

package memload
