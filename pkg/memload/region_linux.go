//go:build linux
// +build linux

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

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// NewDeviceRegion opens the device or file at path for exclusive
// read-write, bypassing the page cache with O_DIRECT. With useMmap
// the first size bytes are mapped shared read-write straight into the
// address space; without it an equally sized page-aligned staging
// buffer fronts the device, so timed accesses always hit a uniform
// byte-addressable surface.
func NewDeviceRegion(path string, size uint64, useMmap bool) (*Region, error) {
	if size == 0 {
		return nil, errors.New("region size is 0")
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_DIRECT, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "opening device %q", path)
	}
	file := os.NewFile(uintptr(fd), path)
	if useMmap {
		buf, err := unix.Mmap(fd, 0, int(size),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			file.Close()
			return nil, errors.Wrapf(err, "mmapping %d bytes of %q", size, path)
		}
		return &Region{
			buf:    buf,
			file:   file,
			mapped: true,
			size:   size,
		}, nil
	}
	raw := make([]byte, size+constAlignment)
	return &Region{
		buf:  alignedSlice(raw, size),
		raw:  raw,
		file: file,
		size: size,
	}, nil
}

func (r *Region) unmap() error {
	buf := r.buf
	r.buf = nil
	if buf == nil {
		return nil
	}
	return unix.Munmap(buf)
}
