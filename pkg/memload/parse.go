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
	"strconv"
	"strings"
)

// ParseBytes parses sizes like "4096", "4kB", "100MB" and "1G" into
// a byte count.
func ParseBytes(s string) (uint64, error) {
	origS := s
	factor := uint64(1)
	s = strings.TrimSpace(s)
	if len(s) == 0 {
		return 0, fmt.Errorf("syntax error in bytes: string is empty")
	}
	if c := s[len(s)-1]; c == 'B' || c == 'b' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && (s[len(s)-1] == 'i' || s[len(s)-1] == 'I') {
		s = s[:len(s)-1]
	}
	if len(s) == 0 {
		return 0, fmt.Errorf("syntax error in bytes %q: missing numeric part", origS)
	}
	numpart := s[:len(s)-1]
	switch c := s[len(s)-1]; {
	case c == 'k' || c == 'K':
		factor = 1024
	case c == 'm' || c == 'M':
		factor = 1024 * 1024
	case c == 'g' || c == 'G':
		factor = 1024 * 1024 * 1024
	case c == 't' || c == 'T':
		factor = 1024 * 1024 * 1024 * 1024
	case '0' <= c && c <= '9':
		numpart = s
	default:
		return 0, fmt.Errorf("syntax error in bytes %q: unexpected unit %q", origS, c)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(numpart), 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("syntax error in bytes %q: bad numeric part %q", origS, numpart)
	}
	return uint64(n * float64(factor)), nil
}

// MustParseBytes is ParseBytes for hardcoded sizes.
func MustParseBytes(s string) uint64 {
	bytes, err := ParseBytes(s)
	if err != nil {
		panic(err)
	}
	return bytes
}

// ParseBandwidth parses bandwidths like "100MB/s" or "unlimited".
// Unlimited bandwidth is returned as 0.
func ParseBandwidth(s string) (uint64, error) {
	trimmed := strings.TrimSpace(s)
	if strings.EqualFold(trimmed, "unlimited") || trimmed == "" {
		return 0, nil
	}
	trimmed = strings.TrimSuffix(strings.TrimSuffix(trimmed, "/s"), "/S")
	bytesPerSec, err := ParseBytes(trimmed)
	if err != nil {
		return 0, fmt.Errorf("syntax error in bandwidth %q: %v", s, err)
	}
	return bytesPerSec, nil
}
