// Copyright The AccelRT Authors. All Rights Reserved.
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

package driver

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// MappedBuffer is a page-aligned host buffer mapped for DMA. The device may
// reference the buffer until Release is called.
type MappedBuffer struct {
	drv       Driver
	data      []byte
	size      uint64
	allocated uint64
	handle    BufferHandle
	direction DmaDirection
	mapped    bool
}

// AllocateMappedBuffer allocates a page-aligned buffer of the given size and
// maps it for DMA in the given direction.
func AllocateMappedBuffer(drv Driver, size uint64, direction DmaDirection) (*MappedBuffer, error) {
	if size == 0 {
		return nil, errors.New("mapped buffer size cannot be zero")
	}

	allocated := ((size + HostPageSize - 1) / HostPageSize) * HostPageSize
	data, err := unix.Mmap(-1, 0, int(allocated),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrap(err, "mmap failed")
	}

	handle, err := drv.MapBuffer(uintptr(unsafe.Pointer(&data[0])), allocated, direction)
	if err != nil {
		_ = unix.Munmap(data)
		return nil, errors.Wrap(err, "DMA mapping failed")
	}

	return &MappedBuffer{
		drv:       drv,
		data:      data[:size],
		size:      size,
		allocated: allocated,
		handle:    handle,
		direction: direction,
		mapped:    true,
	}, nil
}

// Data returns the host view of the buffer.
func (b *MappedBuffer) Data() []byte {
	return b.data
}

// Size returns the usable buffer size in bytes.
func (b *MappedBuffer) Size() uint64 {
	return b.size
}

// Handle returns the DMA mapping handle.
func (b *MappedBuffer) Handle() BufferHandle {
	return b.handle
}

// Direction returns the mapping direction.
func (b *MappedBuffer) Direction() DmaDirection {
	return b.direction
}

// Release unmaps the buffer from the device and frees the host memory.
// Releasing twice is a no-op.
func (b *MappedBuffer) Release() error {
	if !b.mapped {
		return nil
	}
	b.mapped = false

	if err := b.drv.UnmapBuffer(b.handle); err != nil {
		return errors.Wrap(err, "DMA unmapping failed")
	}
	full := unsafe.Slice(&b.data[0], int(b.allocated))
	if err := unix.Munmap(full); err != nil {
		return errors.Wrap(err, "munmap failed")
	}
	b.data = nil
	return nil
}
