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

// Package driver specifies the transport/driver surface consumed by the
// resource-management core. The physical driver (device files, ioctls,
// register access) lives below this interface and is out of scope here.
package driver

// DescListHandle identifies one kernel-side descriptor list.
type DescListHandle uintptr

// BufferHandle identifies one DMA-mapped host buffer.
type BufferHandle uint64

// ProgramParams describes one descriptor-list programming request.
type ProgramParams struct {
	Handle       DescListHandle
	Buffer       BufferHandle
	BufferOffset uint64
	TransferSize uint32
	StartingDesc uint32
	ChannelIndex uint8
	ShouldBind   bool
	LastDomain   InterruptsDomain
}

// Driver is the transport handle used by the resource-management core. It
// is queried, never mutated; implementations must outlive every resource
// manager referencing them.
type Driver interface {
	// DmaEngineCount returns the number of DMA engines on this transport.
	DmaEngineCount() uint8
	// DmaType returns the transport type.
	DmaType() DmaType
	// DescMaxPageSize returns the largest descriptor page size the
	// transport supports.
	DescMaxPageSize() uint16

	// CreateDescList allocates a descriptor list of descCount descriptors
	// with the given page size, circular for boundary channels.
	CreateDescList(descCount uint32, pageSize uint16, circular bool) (DescListHandle, error)
	// ReleaseDescList releases a descriptor list.
	ReleaseDescList(handle DescListHandle) error
	// ProgramDescList binds and programs descriptors against a mapped
	// buffer, returning the number of descriptors written.
	ProgramDescList(params ProgramParams) (uint32, error)

	// MapBuffer makes a host memory range visible to the device.
	MapBuffer(addr uintptr, size uint64, direction DmaDirection) (BufferHandle, error)
	// UnmapBuffer undoes MapBuffer.
	UnmapBuffer(handle BufferHandle) error
}
