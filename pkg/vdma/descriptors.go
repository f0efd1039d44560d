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

package vdma

import (
	"fmt"
	"math"

	"github.com/edgeaccel/accelrt/pkg/driver"
)

// DescriptorList is one descriptor ring created on the transport. Counts
// are powers of two; boundary channels use circular rings.
type DescriptorList struct {
	drv       driver.Driver
	handle    driver.DescListHandle
	descCount uint32
	pageSize  uint16
	circular  bool
}

// CreateDescriptorList allocates a descriptor list on the transport.
func CreateDescriptorList(drv driver.Driver, descCount uint32, pageSize uint16,
	circular bool) (*DescriptorList, error) {
	if descCount == 0 || descCount&(descCount-1) != 0 {
		return nil, fmt.Errorf("descriptor count %d is not a power of two: %w",
			descCount, ErrInvalidArgument)
	}
	if descCount > driver.MaxDescsCount {
		return nil, fmt.Errorf("descriptor count %d above maximum %d: %w",
			descCount, driver.MaxDescsCount, ErrInvalidArgument)
	}

	handle, err := drv.CreateDescList(descCount, pageSize, circular)
	if err != nil {
		return nil, err
	}
	return &DescriptorList{
		drv:       drv,
		handle:    handle,
		descCount: descCount,
		pageSize:  pageSize,
		circular:  circular,
	}, nil
}

// DescCount returns the number of descriptors in the ring.
func (dl *DescriptorList) DescCount() uint32 {
	return dl.descCount
}

// DescPageSize returns the per-descriptor page size.
func (dl *DescriptorList) DescPageSize() uint16 {
	return dl.pageSize
}

// DescriptorsInBuffer returns the number of descriptors covering a buffer
// of the given byte size.
func (dl *DescriptorList) DescriptorsInBuffer(size uint64) uint32 {
	page := uint64(dl.pageSize)
	return uint32((size + page - 1) / page)
}

// MaxTransfers returns how many whole transfers of the given byte size the
// ring can hold. One descriptor is reserved to keep head and tail apart.
func (dl *DescriptorList) MaxTransfers(transferSize uint32) uint16 {
	perTransfer := dl.DescriptorsInBuffer(uint64(transferSize))
	if perTransfer == 0 {
		return 0
	}
	max := (dl.descCount - 1) / perTransfer
	if max > math.MaxUint16 {
		max = math.MaxUint16
	}
	return uint16(max)
}

// Bind binds a mapped buffer to the ring starting at the given descriptor.
func (dl *DescriptorList) Bind(buffer *driver.MappedBuffer, channel ChannelID,
	startingDesc uint32) error {
	_, err := dl.drv.ProgramDescList(driver.ProgramParams{
		Handle:       dl.handle,
		Buffer:       buffer.Handle(),
		TransferSize: uint32(buffer.Size()),
		StartingDesc: startingDesc,
		ChannelIndex: channel.Index,
		ShouldBind:   true,
		LastDomain:   driver.InterruptsDomainNone,
	})
	return err
}

// ProgramSingleTransfer programs the descriptors of one transfer of the
// given size at the given descriptor offset, raising the requested
// interrupts domain on the transfer's last descriptor. It returns the
// number of descriptors programmed.
func (dl *DescriptorList) ProgramSingleTransfer(transferSize uint32, startingDesc uint32,
	lastDomain driver.InterruptsDomain) (uint32, error) {
	needed := dl.DescriptorsInBuffer(uint64(transferSize))
	if !dl.circular && startingDesc+needed > dl.descCount {
		return 0, fmt.Errorf("transfer of %d descriptors at offset %d exceeds ring of %d: %w",
			needed, startingDesc, dl.descCount, ErrInvalidArgument)
	}
	return dl.drv.ProgramDescList(driver.ProgramParams{
		Handle:       dl.handle,
		BufferOffset: uint64(startingDesc) * uint64(dl.pageSize),
		TransferSize: transferSize,
		StartingDesc: startingDesc,
		LastDomain:   lastDomain,
	})
}

// Release frees the descriptor list on the transport.
func (dl *DescriptorList) Release() error {
	return dl.drv.ReleaseDescList(dl.handle)
}

// DescBufferSizesForSingleTransfer computes the descriptor page size and
// ring size for a channel that must keep between minActive and maxActive
// transfers of transferSize bytes in flight. The page size starts at the
// minimum and doubles until maxActive transfers fit the maximum ring,
// bounded by the transport's page-size limit.
func DescBufferSizesForSingleTransfer(drv driver.Driver, minActive, maxActive uint16,
	transferSize uint32) (uint16, uint32, error) {
	maxPage := drv.DescMaxPageSize()
	if maxPage > driver.DefaultDescPageSize {
		maxPage = driver.DefaultDescPageSize
	}

	pageSize := uint16(driver.MinDescPageSize)
	for {
		perTransfer := descsPerTransfer(transferSize, pageSize)
		if perTransfer*uint32(maxActive) < driver.MaxDescsCount || pageSize >= maxPage {
			break
		}
		pageSize *= 2
	}

	perTransfer := descsPerTransfer(transferSize, pageSize)
	needed := perTransfer*uint32(minActive) + 1
	if needed > driver.MaxDescsCount {
		return 0, 0, fmt.Errorf("transfer size %d needs %d descriptors, above maximum %d: %w",
			transferSize, needed, driver.MaxDescsCount, ErrInvalidArgument)
	}

	return pageSize, nextPowerOf2(needed), nil
}

func descsPerTransfer(transferSize uint32, pageSize uint16) uint32 {
	return (transferSize + uint32(pageSize) - 1) / uint32(pageSize)
}

func nextPowerOf2(n uint32) uint32 {
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}
