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
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	goerrors "errors"

	"github.com/pkg/errors"
)

// ErrOutOfBounds is returned by timed operations whose address+size
// exceeds the region size.
var ErrOutOfBounds = goerrors.New("access beyond region bounds")

// Region owns one contiguous byte range, backed by page-aligned heap
// memory or by an opened, optionally memory-mapped device. It is
// shared read/write by all workers for the duration of one run.
// Accesses are bounds-checked individually; overlapping concurrent
// accesses from different threads are intentionally not synchronized.
type Region struct {
	buf    []byte
	raw    []byte // original allocation keeping aligned buf alive
	file   *os.File
	mapped bool
	size   uint64
	closed bool
}

// opSink consumes timed operation results so that buffer copies and
// cpu burns cannot be optimized away.
var opSink uint64

func consume(b []byte) {
	if len(b) == 0 {
		return
	}
	atomic.AddUint64(&opSink, uint64(b[0])+uint64(b[len(b)-1]))
}

func alignedSlice(raw []byte, size uint64) []byte {
	addr := uintptr(unsafe.Pointer(&raw[0]))
	pad := uintptr(0)
	if rem := addr % uintptr(constAlignment); rem != 0 {
		pad = uintptr(constAlignment) - rem
	}
	return raw[pad : uint64(pad)+size]
}

// NewHeapRegion allocates size bytes of 4k-aligned anonymous memory
// and initializes every byte to its index modulo 256, so that
// content-dependent effects (compressing devices, dedup) stay
// reproducible across runs.
func NewHeapRegion(size uint64) (r *Region, err error) {
	if size == 0 {
		return nil, errors.New("region size is 0")
	}
	defer func() {
		// A failed make() panics instead of returning an error.
		if p := recover(); p != nil {
			r = nil
			err = errors.Errorf("allocating %d bytes: %v", size, p)
		}
	}()
	raw := make([]byte, size+constAlignment)
	buf := alignedSlice(raw, size)
	for i := range buf {
		buf[i] = byte(i & 0xff)
	}
	return &Region{
		buf:  buf,
		raw:  raw,
		size: size,
	}, nil
}

// Size returns the region size in bytes.
func (r *Region) Size() uint64 {
	return r.size
}

func (r *Region) checkBounds(addr, size uint64) error {
	if addr+size > r.size || addr+size < addr {
		return ErrOutOfBounds
	}
	return nil
}

// TimedRead copies size bytes starting at addr into a scratch buffer
// and returns the wall-clock time of the copy only. The scratch
// allocation happens outside the timed window.
func (r *Region) TimedRead(addr, size uint64) (time.Duration, error) {
	if err := r.checkBounds(addr, size); err != nil {
		return 0, err
	}
	scratch := make([]byte, size)
	start := time.Now()
	copy(scratch, r.buf[addr:addr+size])
	elapsed := time.Since(start)
	consume(scratch)
	return elapsed, nil
}

// TimedWrite fills [addr, addr+size) with the write pattern byte and
// returns the wall-clock time of the copy only.
func (r *Region) TimedWrite(addr, size uint64) (time.Duration, error) {
	if err := r.checkBounds(addr, size); err != nil {
		return 0, err
	}
	scratch := make([]byte, size)
	for i := range scratch {
		scratch[i] = constWriteByte
	}
	start := time.Now()
	copy(r.buf[addr:addr+size], scratch)
	elapsed := time.Since(start)
	consume(r.buf[addr : addr+size])
	return elapsed, nil
}

// TimedCPUBurn runs a dependent integer recurrence for the given
// number of iterations. Cost is monotonic in cycles; the exact
// arithmetic only matters in that every iteration depends on the
// previous one, so the loop cannot be vectorized or folded.
func (r *Region) TimedCPUBurn(cycles uint64) time.Duration {
	start := time.Now()
	var sum uint64
	for i := uint64(0); i < cycles; i++ {
		sum = (sum + i) * (i | 1)
	}
	elapsed := time.Since(start)
	atomic.AddUint64(&opSink, sum)
	return elapsed
}

// Close releases the backing memory or device mapping. It must not
// be called while workers still use the region, and only once.
func (r *Region) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	var err error
	if r.mapped {
		err = r.unmap()
	}
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
		r.file = nil
	}
	r.buf = nil
	r.raw = nil
	return err
}
