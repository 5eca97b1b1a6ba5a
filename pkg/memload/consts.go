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

const (
	// Region buffers are aligned to this boundary regardless of
	// the current platform page size, so that O_DIRECT staging
	// buffers and generated patterns behave the same everywhere.
	constAlignment uint64 = 4096

	// Byte written by timed write operations. Non-zero and
	// non-uniform enough that compression-based devices do not
	// collapse written blocks to nothing.
	constWriteByte byte = 0xAA

	// Defaults applied when a free-running operation leaves the
	// attribute out.
	constDefaultOpSize    uint64 = 4096
	constDefaultCPUCycles uint64 = 1000
)
