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
)

func TestParseBytes(t *testing.T) {
	tcases := []struct {
		name           string
		input          string
		expectedOutput uint64
		expectedError  bool
	}{
		{
			name:          "empty string",
			input:         "",
			expectedError: true,
		}, {
			name:           "plain number",
			input:          "1024",
			expectedOutput: 1024,
		}, {
			name:           "kilobytes",
			input:          "4KB",
			expectedOutput: 4 * 1024,
		}, {
			name:           "kibibytes",
			input:          "4kiB",
			expectedOutput: 4 * 1024,
		}, {
			name:           "megabytes",
			input:          "100MB",
			expectedOutput: 100 * 1024 * 1024,
		}, {
			name:           "gigabytes",
			input:          "1GB",
			expectedOutput: 1024 * 1024 * 1024,
		}, {
			name:           "terabytes without B",
			input:          "2T",
			expectedOutput: 2 * 1024 * 1024 * 1024 * 1024,
		}, {
			name:           "fractional size",
			input:          "1.5MB",
			expectedOutput: 1536 * 1024,
		}, {
			name:           "surrounding whitespace",
			input:          " 8kB ",
			expectedOutput: 8 * 1024,
		}, {
			name:          "unknown unit",
			input:         "4QB",
			expectedError: true,
		}, {
			name:          "missing numeric part",
			input:         "MB",
			expectedError: true,
		}, {
			name:          "negative size",
			input:         "-1kB",
			expectedError: true,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			output, err := ParseBytes(tc.input)
			if tc.expectedError {
				if err == nil {
					t.Errorf("expected error, got %d", output)
				}
				return
			}
			if err != nil {
				t.Errorf("got unexpected error: %v", err)
			}
			if output != tc.expectedOutput {
				t.Errorf("expected %d, got %d", tc.expectedOutput, output)
			}
		})
	}
}

func TestParseBandwidth(t *testing.T) {
	tcases := []struct {
		name           string
		input          string
		expectedOutput uint64
		expectedError  bool
	}{
		{
			name:           "unlimited",
			input:          "unlimited",
			expectedOutput: 0,
		}, {
			name:           "unlimited uppercase",
			input:          "Unlimited",
			expectedOutput: 0,
		}, {
			name:           "empty means unlimited",
			input:          "",
			expectedOutput: 0,
		}, {
			name:           "megabytes per second",
			input:          "100MB/s",
			expectedOutput: 100 * 1024 * 1024,
		}, {
			name:           "plain bytes per second",
			input:          "4096",
			expectedOutput: 4096,
		}, {
			name:          "garbage",
			input:         "fast/s",
			expectedError: true,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			output, err := ParseBandwidth(tc.input)
			if tc.expectedError {
				if err == nil {
					t.Errorf("expected error, got %d", output)
				}
				return
			}
			if err != nil {
				t.Errorf("got unexpected error: %v", err)
			}
			if output != tc.expectedOutput {
				t.Errorf("expected %d, got %d", tc.expectedOutput, output)
			}
		})
	}
}
