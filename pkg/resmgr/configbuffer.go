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

	"github.com/edgeaccel/accelrt/pkg/driver"
	"github.com/edgeaccel/accelrt/pkg/metadata"
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

// ConfigBuffer is a host buffer holding the configuration bursts of one
// context, streamed to the device over a pre-allocated config channel.
type ConfigBuffer struct {
	channel vdma.ChannelID
	buffer  *driver.MappedBuffer
	written uint64
}

// NewConfigBuffer allocates a mapped configuration buffer sized for the
// given burst layout.
func NewConfigBuffer(drv driver.Driver, channel vdma.ChannelID,
	info metadata.ConfigBufferInfo) (*ConfigBuffer, error) {
	size := info.TotalSize()
	if size == 0 {
		return nil, fmt.Errorf("empty config buffer for channel %s: %w",
			channel, ErrInvalidArgument)
	}

	buffer, err := driver.AllocateMappedBuffer(drv, size, driver.DmaToDevice)
	if err != nil {
		return nil, err
	}
	return &ConfigBuffer{channel: channel, buffer: buffer}, nil
}

// Channel returns the config channel the buffer streams over.
func (b *ConfigBuffer) Channel() vdma.ChannelID {
	return b.channel
}

// Size returns the buffer's total byte size.
func (b *ConfigBuffer) Size() uint64 {
	return b.buffer.Size()
}

// SizeLeft returns the bytes still writable.
func (b *ConfigBuffer) SizeLeft() uint64 {
	return b.buffer.Size() - b.written
}

// Write appends one configuration burst.
func (b *ConfigBuffer) Write(data []byte) error {
	if uint64(len(data)) > b.SizeLeft() {
		return fmt.Errorf("config burst of %d bytes exceeds the %d bytes left: %w",
			len(data), b.SizeLeft(), ErrExhausted)
	}
	copy(b.buffer.Data()[b.written:], data)
	b.written += uint64(len(data))
	return nil
}

// Release frees the underlying mapping.
func (b *ConfigBuffer) Release() error {
	return b.buffer.Release()
}
