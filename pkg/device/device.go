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

// Package device specifies the hardware device surface consumed by the
// resource-management core: device category, reset, and the interrupt
// dispatcher handle. Register-level access stays below this interface.
package device

import (
	"github.com/edgeaccel/accelrt/pkg/driver"
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

// Type is the device category.
type Type uint32

const (
	// TypePcie is a device attached over PCIe.
	TypePcie Type = iota
	// TypeIntegrated is a device integrated on the host die.
	TypeIntegrated
)

// ResetMode selects what a device reset touches.
type ResetMode uint32

const (
	// ResetModeChip resets the whole chip.
	ResetModeChip ResetMode = iota
	// ResetModeNNCore resets only the neural network core.
	ResetModeNNCore
)

// StreamsInterface is the default transport of the device's data streams.
type StreamsInterface uint32

const (
	// StreamsInterfacePcie streams over PCIe.
	StreamsInterfacePcie StreamsInterface = iota
	// StreamsInterfaceIntegrated streams over the on-die fabric.
	StreamsInterfaceIntegrated
)

// IrqChannelData is one hardware completion entry.
type IrqChannelData struct {
	ChannelID      vdma.ChannelID
	IsActive       bool
	DescsProcessed uint16
	HostError      uint8
	DeviceError    uint8
	// Timestamp is a hardware timestamp in nanoseconds, 0 when timestamp
	// capture is disabled.
	Timestamp uint64
}

// IrqBatch is one batch of completion entries delivered by the dispatcher.
type IrqBatch struct {
	Channels []IrqChannelData
}

// IrqCallback handles one interrupt batch. It is invoked from the
// dispatcher's delivery context and must not block.
type IrqCallback func(IrqBatch)

// InterruptsDispatcher delivers hardware completion interrupts for a set
// of channels to a registered callback.
type InterruptsDispatcher interface {
	// Start registers the callback for the channels in the bitmap,
	// optionally enabling hardware timestamp capture.
	Start(bitmap driver.ChannelsBitmap, enableTimestamps bool, callback IrqCallback) error
	// Stop unregisters the callback.
	Stop() error
}

// Device is the hardware device handle. Implementations must outlive every
// resource manager referencing them.
type Device interface {
	// Type returns the device category.
	Type() Type
	// Reset resets the device in the given mode.
	Reset(mode ResetMode) error
	// DefaultStreamsInterface returns the transport of the device's data
	// streams.
	DefaultStreamsInterface() (StreamsInterface, error)
	// InterruptsDispatcher returns the device's interrupt dispatcher.
	InterruptsDispatcher() (InterruptsDispatcher, error)
}
