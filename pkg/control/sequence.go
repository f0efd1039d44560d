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

package control

import (
	"encoding/binary"

	"github.com/edgeaccel/accelrt/pkg/driver"
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

// Record types of the per-context action sequence.
const (
	recordActivateBoundaryInput uint8 = iota + 1
	recordActivateBoundaryOutput
	recordActivateInterContextInput
	recordActivateInterContextOutput
	recordChannelPairInfo
	recordDeactivateChannel
)

// recordHeaderSize is type byte plus the 32-bit countdown timestamp.
const recordHeaderSize = 5

// SequenceBuilder accumulates the serialized action sequence of one
// context. Records are appended in execution order and handed to the
// firmware as a single blob.
type SequenceBuilder struct {
	buf []byte
}

// NewSequenceBuilder returns an empty sequence builder.
func NewSequenceBuilder() *SequenceBuilder {
	return &SequenceBuilder{}
}

func (b *SequenceBuilder) appendHeader(recordType uint8, countdown uint32) {
	var hdr [recordHeaderSize]byte
	hdr[0] = recordType
	binary.LittleEndian.PutUint32(hdr[1:], countdown)
	b.buf = append(b.buf, hdr[:]...)
}

func (b *SequenceBuilder) appendChannelRecord(recordType uint8, countdown uint32,
	channel vdma.ChannelID, streamIndex uint8, descPageSize uint16) {
	b.appendHeader(recordType, countdown)
	var payload [4]byte
	payload[0] = channel.Packed()
	payload[1] = streamIndex
	binary.LittleEndian.PutUint16(payload[2:], descPageSize)
	b.buf = append(b.buf, payload[:]...)
}

// ActivateBoundaryChannel appends a boundary-channel activation record.
func (b *SequenceBuilder) ActivateBoundaryChannel(channel vdma.ChannelID, streamIndex uint8,
	direction driver.DmaDirection, descPageSize uint16) {
	recordType := recordActivateBoundaryInput
	if direction == driver.DmaFromDevice {
		recordType = recordActivateBoundaryOutput
	}
	b.appendChannelRecord(recordType, 0, channel, streamIndex, descPageSize)
}

// ActivateInterContextChannel appends an inter-context channel activation
// record.
func (b *SequenceBuilder) ActivateInterContextChannel(channel vdma.ChannelID, streamIndex uint8,
	direction driver.DmaDirection, descPageSize uint16) {
	recordType := recordActivateInterContextInput
	if direction == driver.DmaFromDevice {
		recordType = recordActivateInterContextOutput
	}
	b.appendChannelRecord(recordType, 0, channel, streamIndex, descPageSize)
}

// ChannelPairInfo appends a paired-channel record tying a device-to-host
// source to its host-to-device sink.
func (b *SequenceBuilder) ChannelPairInfo(source, sink vdma.ChannelID) {
	b.appendHeader(recordChannelPairInfo, 0)
	b.buf = append(b.buf, source.Packed(), sink.Packed())
}

// DeactivateChannel appends a channel deactivation record.
func (b *SequenceBuilder) DeactivateChannel(channel vdma.ChannelID) {
	b.appendHeader(recordDeactivateChannel, 0)
	b.buf = append(b.buf, channel.Packed())
}

// Bytes returns the serialized sequence accumulated so far.
func (b *SequenceBuilder) Bytes() []byte {
	return b.buf
}

// Len returns the serialized length accumulated so far.
func (b *SequenceBuilder) Len() int {
	return len(b.buf)
}
