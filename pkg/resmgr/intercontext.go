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

package resmgr

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/edgeaccel/accelrt/pkg/driver"
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

// InterContextBufferKey identifies an inter-context buffer by the context
// and stream index of its producing layer.
type InterContextBufferKey struct {
	SourceContext uint8
	StreamIndex   uint8
}

// InterContextBuffer carries one intermediate result between execution
// contexts. The producing context's device-to-host channel fills it and
// the consuming context's host-to-device channel drains it; the buffer is
// sized for the largest configured batch and reprogrammed when the dynamic
// batch size changes.
type InterContextBuffer struct {
	key          InterContextBufferKey
	d2hChannel   vdma.ChannelID
	h2dChannel   vdma.ChannelID
	transferSize uint32
	maxBatch     uint16
	buffer       *driver.MappedBuffer
	descList     *vdma.DescriptorList
	batchSize    uint16
}

// InterContextBufferParams configures an inter-context buffer.
type InterContextBufferParams struct {
	Key          InterContextBufferKey
	D2HChannel   vdma.ChannelID
	H2DChannel   vdma.ChannelID
	TransferSize uint32
	MaxBatchSize uint16
}

// NewInterContextBuffer allocates an inter-context buffer and its
// descriptor list, programmed for the maximum batch size.
func NewInterContextBuffer(drv driver.Driver, params InterContextBufferParams) (*InterContextBuffer, error) {
	if params.TransferSize == 0 || params.MaxBatchSize == 0 {
		return nil, fmt.Errorf("inter-context buffer %d/%d has empty geometry: %w",
			params.Key.SourceContext, params.Key.StreamIndex, ErrInvalidArgument)
	}

	pageSize, descCount, err := vdma.DescBufferSizesForSingleTransfer(drv,
		params.MaxBatchSize, params.MaxBatchSize, params.TransferSize)
	if err != nil {
		return nil, err
	}

	descList, err := vdma.CreateDescriptorList(drv, descCount, pageSize, false)
	if err != nil {
		return nil, err
	}

	size := uint64(params.TransferSize) * uint64(params.MaxBatchSize)
	buffer, err := driver.AllocateMappedBuffer(drv, size, driver.DmaBidirectional)
	if err != nil {
		errs := multierror.Append(err, descList.Release())
		return nil, errs.ErrorOrNil()
	}

	b := &InterContextBuffer{
		key:          params.Key,
		d2hChannel:   params.D2HChannel,
		h2dChannel:   params.H2DChannel,
		transferSize: params.TransferSize,
		maxBatch:     params.MaxBatchSize,
		buffer:       buffer,
		descList:     descList,
	}
	if err := b.Reprogram(drv, params.MaxBatchSize); err != nil {
		errs := multierror.Append(err, buffer.Release(), descList.Release())
		return nil, errs.ErrorOrNil()
	}
	return b, nil
}

// Key returns the buffer's identity.
func (b *InterContextBuffer) Key() InterContextBufferKey {
	return b.key
}

// ChannelPair returns the producing (device-to-host) and consuming
// (host-to-device) channel ids.
func (b *InterContextBuffer) ChannelPair() (d2h, h2d vdma.ChannelID) {
	return b.d2hChannel, b.h2dChannel
}

// BatchSize returns the batch size the buffer is currently programmed for.
func (b *InterContextBuffer) BatchSize() uint16 {
	return b.batchSize
}

// Reprogram rebinds the buffer's descriptors for the given dynamic batch
// size. Sizes above the allocation-time maximum are rejected.
func (b *InterContextBuffer) Reprogram(drv driver.Driver, batchSize uint16) error {
	if batchSize == 0 || batchSize > b.maxBatch {
		return fmt.Errorf("batch size %d outside 1..%d for inter-context buffer %d/%d: %w",
			batchSize, b.maxBatch, b.key.SourceContext, b.key.StreamIndex, ErrInvalidArgument)
	}

	if err := b.descList.Bind(b.buffer, b.d2hChannel, 0); err != nil {
		return err
	}
	perTransfer := b.descList.DescriptorsInBuffer(uint64(b.transferSize))
	for batch := uint16(0); batch < batchSize; batch++ {
		startingDesc := uint32(batch) * perTransfer
		if _, err := b.descList.ProgramSingleTransfer(b.transferSize, startingDesc,
			driver.InterruptsDomainNone); err != nil {
			return err
		}
	}
	b.batchSize = batchSize
	return nil
}

// Read copies out the buffer's current contents, up to one full batch of
// transfers. It backs intermediate-result inspection when no dedicated
// device readback path exists.
func (b *InterContextBuffer) Read(out []byte) (int, error) {
	n := copy(out, b.buffer.Data())
	return n, nil
}

// Release frees the buffer and its descriptor list.
func (b *InterContextBuffer) Release() error {
	var errs *multierror.Error
	errs = multierror.Append(errs, b.buffer.Release(), b.descList.Release())
	return errs.ErrorOrNil()
}
