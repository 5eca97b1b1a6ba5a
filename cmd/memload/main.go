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

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	stdlog "log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/intel/memload/pkg/memload"
	"github.com/intel/memload/pkg/version"
)

func exit(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "memload: "+format+"\n", a...)
	os.Exit(1)
}

func usage() {
	fmt.Printf("Usage: %s COMMAND [OPTIONS]\n", os.Args[0])
	fmt.Printf("\nCommands:\n")
	fmt.Printf("  exec      execute a pattern against memory or a device\n")
	fmt.Printf("  generate  generate a pattern from a workload specification\n")
	fmt.Printf("  schedule  analyze pattern scheduling requirements\n")
	fmt.Printf("  version   print version information\n")
	fmt.Printf("\nSee '%s COMMAND -h' for command options.\n", os.Args[0])
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "exec":
		execCommand(os.Args[2:])
	case "generate":
		generateCommand(os.Args[2:])
	case "schedule":
		scheduleCommand(os.Args[2:])
	case "version", "-version", "--version":
		version.PrintVersionInfo()
	case "help", "-h", "--help":
		usage()
	default:
		exit("unknown command %q, expected exec, generate, schedule or version", os.Args[1])
	}
}

func setupLogging(debug bool) {
	memload.SetLogger(stdlog.New(os.Stderr, "", stdlog.LstdFlags))
	memload.SetLogDebug(debug)
}

func execCommand(args []string) {
	flags := flag.NewFlagSet("exec", flag.ExitOnError)
	optPattern := flags.String("pattern", "", "pattern JSON/YAML file (required)")
	optAddressMap := flags.String("address-map", "", "address mapping configuration file")
	optScheduleMap := flags.String("schedule-map", "", "schedule mapping configuration file")
	optExecConfig := flags.String("execution-config", "", "execution configuration file")
	optDuration := flags.Uint64("duration", 0, "override admission window in seconds")
	optRateLimit := flags.String("rate-limit", "", "bandwidth cap, e.g. 100MB/s or unlimited")
	optMetricsAddr := flags.String("metrics-addr", "", "serve prometheus metrics on this address during the run")
	optOutput := flags.String("output", "", "write results JSON to this file")
	optVerbose := flags.Bool("verbose", false, "print per-thread statistics")
	optDebug := flags.Bool("debug", false, "enable debug logging")
	flags.Parse(args)
	setupLogging(*optDebug)

	if *optPattern == "" {
		exit("exec: missing -pattern=FILE")
	}
	pattern, err := memload.ReadPatternFile(*optPattern)
	if err != nil {
		exit("exec: %v", err)
	}

	if *optAddressMap != "" {
		am, err := memload.ReadAddressMapFile(*optAddressMap)
		if err != nil {
			exit("exec: %v", err)
		}
		fmt.Printf("Memory regions: %d\n", len(am.MemoryRegions))
	}
	if *optScheduleMap != "" {
		sm, err := memload.ReadScheduleMapFile(*optScheduleMap)
		if err != nil {
			exit("exec: %v", err)
		}
		fmt.Printf("Thread mappings: %d\n", len(sm.ThreadMapping))
	}

	execConfig := &memload.ExecutionConfig{}
	if *optExecConfig != "" {
		execConfig, err = memload.ReadExecutionConfigFile(*optExecConfig)
		if err != nil {
			exit("exec: %v", err)
		}
	}
	if *optDuration > 0 {
		execConfig.DurationSeconds = *optDuration
	}
	if *optRateLimit != "" {
		bw, err := memload.ParseBandwidth(*optRateLimit)
		if err != nil {
			exit("exec: %v", err)
		}
		execConfig.RateLimit = bw
	}

	if *optVerbose {
		fmt.Printf("=== Pattern Execution ===\n")
		fmt.Printf("Pattern: %s\n", pattern.Name)
		fmt.Printf("Operations: %d\n", len(pattern.Operations)+len(pattern.ThreadPatterns))
		fmt.Printf("Threads: %d\n", pattern.ThreadCount())
		fmt.Printf("Memory: %d bytes\n", pattern.MemorySize)
		if pattern.DevicePath != "" {
			fmt.Printf("Device: %s (mmap: %v)\n", pattern.DevicePath, pattern.UseMmap)
		}
		fmt.Printf("\n")
	}

	executor, err := memload.NewExecutor(pattern, execConfig)
	if err != nil {
		exit("exec: %v", err)
	}

	if *optMetricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(executor.Collector())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*optMetricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "memload: metrics server: %v\n", err)
			}
		}()
	}

	results, execErr := executor.Execute(context.Background())
	if results != nil {
		displayResults(results, *optVerbose)
		if *optOutput != "" {
			if err := memload.WriteJSONFile(*optOutput, results); err != nil {
				exit("exec: writing results: %v", err)
			}
			fmt.Printf("Results saved to %s\n", *optOutput)
		}
	}
	if execErr != nil {
		exit("exec: %v", execErr)
	}
}

func generateCommand(args []string) {
	flags := flag.NewFlagSet("generate", flag.ExitOnError)
	optType := flags.String("workload-type", "", "workload type: sequential|random|hotspot|database|analytics|cache|mixed")
	optWorkload := flags.String("workload", "", "workload specification JSON/YAML file")
	optOperations := flags.Uint64("operations", 1000, "number of operations to generate")
	optThreads := flags.Uint("threads", 4, "number of threads")
	optReadRatio := flags.Float64("read-ratio", 0.7, "read ratio (0.0-1.0)")
	optBlockSize := flags.String("block-size", "4096", "block size in bytes")
	optMemorySize := flags.String("memory-size", "", "memory size for random/hotspot workloads")
	optOutput := flags.String("output", "", "output pattern file (required)")
	optVerbose := flags.Bool("verbose", false, "verbose output")
	optDebug := flags.Bool("debug", false, "enable debug logging")
	flags.Parse(args)
	setupLogging(*optDebug)

	if *optOutput == "" {
		exit("generate: missing -output=FILE")
	}

	var spec *memload.WorkloadSpec
	var err error
	switch {
	case *optWorkload != "":
		spec, err = memload.ReadWorkloadSpecFile(*optWorkload)
		if err != nil {
			exit("generate: %v", err)
		}
	case *optType != "":
		blockSize, err := memload.ParseBytes(*optBlockSize)
		if err != nil {
			exit("generate: invalid -block-size: %v", err)
		}
		params := map[string]json.RawMessage{}
		setParam := func(key string, v interface{}) {
			raw, _ := json.Marshal(v)
			params[key] = raw
		}
		setParam("operations", *optOperations)
		setParam("threads", *optThreads)
		setParam("read_ratio", *optReadRatio)
		setParam("block_size", blockSize)
		if *optMemorySize != "" {
			memorySize, err := memload.ParseBytes(*optMemorySize)
			if err != nil {
				exit("generate: invalid -memory-size: %v", err)
			}
			setParam("memory_size", memorySize)
		}
		spec = &memload.WorkloadSpec{
			Name:         *optType + "_generated",
			WorkloadType: memload.WorkloadType(*optType),
			Params:       params,
		}
	default:
		exit("generate: must specify either -workload-type or -workload")
	}

	if *optVerbose {
		fmt.Printf("=== Pattern Generation ===\n")
		fmt.Printf("Workload: %s\n", spec.Name)
		fmt.Printf("Type: %s\n", spec.WorkloadType)
		fmt.Printf("\n")
	}

	pattern, err := memload.GeneratePattern(spec)
	if err != nil {
		exit("generate: %v", err)
	}
	if err := pattern.Validate(); err != nil {
		exit("generate: generated an invalid pattern: %v", err)
	}
	if *optVerbose {
		fmt.Printf("Generated pattern: %s\n", pattern.Name)
		fmt.Printf("Total operations: %d\n", len(pattern.Operations))
		fmt.Printf("\n")
	}
	if err := memload.WriteJSONFile(*optOutput, pattern); err != nil {
		exit("generate: %v", err)
	}
	fmt.Printf("Pattern generated and saved to: %s\n", *optOutput)
}

func scheduleCommand(args []string) {
	flags := flag.NewFlagSet("schedule", flag.ExitOnError)
	optPattern := flags.String("pattern", "", "pattern JSON/YAML file (required)")
	optAnalyze := flags.Bool("analyze", false, "analyze scheduling requirements")
	optGenerateConfig := flags.Bool("generate-config", false, "generate recommended schedule config")
	optOutput := flags.String("output", "", "output config file")
	optDebug := flags.Bool("debug", false, "enable debug logging")
	flags.Parse(args)
	setupLogging(*optDebug)

	if *optPattern == "" {
		exit("schedule: missing -pattern=FILE")
	}
	pattern, err := memload.ReadPatternFile(*optPattern)
	if err != nil {
		exit("schedule: %v", err)
	}

	if *optAnalyze {
		report := memload.AnalyzeSchedule(pattern)
		fmt.Printf("=== Schedule Analysis ===\n")
		fmt.Printf("Pattern: %s\n", report.PatternName)
		fmt.Printf("Total threads: %d\n", report.TotalThreads)
		fmt.Printf("CPU threads: %d\n", report.CPUThreads)
		fmt.Printf("GPU threads: %d\n", report.GPUThreads)
		if report.MaxAddr > 0 {
			fmt.Printf("Address range: 0x%x - 0x%x (%d bytes)\n",
				report.MinAddr, report.MaxAddr, report.MaxAddr-report.MinAddr)
		}
	}

	if *optGenerateConfig {
		sm := memload.GenerateScheduleMap(pattern)
		if *optOutput != "" {
			if err := memload.WriteJSONFile(*optOutput, sm); err != nil {
				exit("schedule: %v", err)
			}
			fmt.Printf("Schedule config saved to: %s\n", *optOutput)
		} else {
			data, err := json.MarshalIndent(sm, "", "  ")
			if err != nil {
				exit("schedule: %v", err)
			}
			fmt.Printf("Generated schedule config:\n%s\n", data)
		}
	}
}

func displayResults(results *memload.ExecutionResults, verbose bool) {
	fmt.Printf("=== Execution Results ===\n")
	fmt.Printf("Pattern: %s\n", results.PatternName)
	fmt.Printf("Duration: %.3f s\n", float64(results.TotalDurationNs)/1e9)
	fmt.Printf("Operations: %d\n", results.TotalOperations)

	if results.TotalOperations > 0 {
		fmt.Printf("Average Latency: %.2f ns\n", results.AverageLatencyNs)
		fmt.Printf("Operations/sec: %.2f\n", results.OperationsPerSecond)
	}
	if results.TotalBytesRead > 0 {
		fmt.Printf("Read: %d bytes, %.2f MB/s\n",
			results.TotalBytesRead, results.ReadThroughputMbps)
	}
	if results.TotalBytesWritten > 0 {
		fmt.Printf("Write: %d bytes, %.2f MB/s\n",
			results.TotalBytesWritten, results.WriteThroughputMbps)
	}
	if results.TotalCPUCycles > 0 {
		fmt.Printf("CPU cycles: %d\n", results.TotalCPUCycles)
	}
	if len(results.FaultedThreads) > 0 {
		fmt.Printf("Faulted threads: %v\n", results.FaultedThreads)
	}

	if verbose {
		fmt.Printf("\n=== Per-Thread Stats ===\n")
		for _, ts := range results.ThreadStats {
			avg := 0.0
			if ts.OperationsCompleted > 0 {
				avg = float64(ts.TotalLatencyNs) / float64(ts.OperationsCompleted)
			}
			fmt.Printf("Thread %d: %d ops, avg %.2f ns, min %d ns, max %d ns\n",
				ts.ThreadID, ts.OperationsCompleted, avg, ts.MinLatencyNs, ts.MaxLatencyNs)
		}
	}
}
