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
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	operationsDesc = prometheus.NewDesc(
		"memload_operations_completed",
		"Number of operations completed by a worker thread.",
		[]string{"thread"}, nil,
	)

	bytesReadDesc = prometheus.NewDesc(
		"memload_bytes_read",
		"Number of bytes read from the region by a worker thread.",
		[]string{"thread"}, nil,
	)

	bytesWrittenDesc = prometheus.NewDesc(
		"memload_bytes_written",
		"Number of bytes written to the region by a worker thread.",
		[]string{"thread"}, nil,
	)

	cpuCyclesDesc = prometheus.NewDesc(
		"memload_cpu_cycles_executed",
		"Number of synthetic cpu cycles executed by a worker thread.",
		[]string{"thread"}, nil,
	)

	maxLatencyDesc = prometheus.NewDesc(
		"memload_max_latency_ns",
		"Worst single-operation latency observed by a worker thread.",
		[]string{"thread"}, nil,
	)
)

type collector struct {
	sink *MetricsSink
}

// NewCollector creates a prometheus collector over the live
// per-thread counters of a run.
func NewCollector(sink *MetricsSink) prometheus.Collector {
	return &collector{sink: sink}
}

// Collector exposes the executor's metrics sink for prometheus
// scraping during long runs.
func (e *Executor) Collector() prometheus.Collector {
	return NewCollector(e.sink)
}

// Describe implements prometheus.Collector interface
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements prometheus.Collector interface
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for _, ts := range c.sink.Snapshot() {
		thread := fmt.Sprintf("%d", ts.ThreadID)
		ch <- prometheus.MustNewConstMetric(
			operationsDesc, prometheus.CounterValue,
			float64(ts.OperationsCompleted), thread)
		ch <- prometheus.MustNewConstMetric(
			bytesReadDesc, prometheus.CounterValue,
			float64(ts.BytesRead), thread)
		ch <- prometheus.MustNewConstMetric(
			bytesWrittenDesc, prometheus.CounterValue,
			float64(ts.BytesWritten), thread)
		ch <- prometheus.MustNewConstMetric(
			cpuCyclesDesc, prometheus.CounterValue,
			float64(ts.CPUCyclesExecuted), thread)
		ch <- prometheus.MustNewConstMetric(
			maxLatencyDesc, prometheus.GaugeValue,
			float64(ts.MaxLatencyNs), thread)
	}
}
