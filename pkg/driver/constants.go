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

// DMA geometry limits. These mirror the kernel driver's fixed layout and
// must not be changed independently of it.
const (
	// MaxEngines is the maximum number of DMA engines on any transport.
	MaxEngines = 3
	// MaxChannelsPerEngine is the number of DMA channels per engine.
	MaxChannelsPerEngine = 32
	// ChannelsPerDirection is the number of channels per engine usable in
	// one direction. Host-to-device channels occupy the low half of an
	// engine's channel range, device-to-host channels the high half.
	ChannelsPerDirection = 16
	// DestChannelsStart is the first device-to-host channel index.
	DestChannelsStart = 16

	// MaxDescsCount is the maximum descriptor count of one descriptor list.
	MaxDescsCount = 64 * 1024
	// MinDescPageSize is the smallest supported descriptor page size.
	MinDescPageSize = 64
	// DefaultDescPageSize is the descriptor page size used when the
	// transport does not constrain it further.
	DefaultDescPageSize = 512

	// HostPageSize is the host memory page size assumed for DMA mappings.
	HostPageSize = 4096
)

// DmaDirection is the direction of a DMA transfer relative to the host.
type DmaDirection uint32

const (
	// DmaBidirectional marks a mapping used in both directions.
	DmaBidirectional DmaDirection = iota
	// DmaToDevice marks a host-to-device transfer or mapping.
	DmaToDevice
	// DmaFromDevice marks a device-to-host transfer or mapping.
	DmaFromDevice
)

// String returns a short name for the direction.
func (d DmaDirection) String() string {
	switch d {
	case DmaToDevice:
		return "H2D"
	case DmaFromDevice:
		return "D2H"
	case DmaBidirectional:
		return "BOTH"
	}
	return "invalid"
}

// DmaType identifies the transport carrying DMA traffic.
type DmaType uint32

const (
	// DmaTypePcie is a PCIe transport. PCIe transports expose one engine.
	DmaTypePcie DmaType = iota
	// DmaTypeDram is an on-die DRAM transport with multiple engines.
	DmaTypeDram
)

// InterruptsDomain selects who gets interrupted when a descriptor completes.
type InterruptsDomain uint32

const (
	// InterruptsDomainNone requests no interrupt.
	InterruptsDomainNone InterruptsDomain = 0
	// InterruptsDomainDevice interrupts the device firmware.
	InterruptsDomainDevice InterruptsDomain = 1 << 0
	// InterruptsDomainHost interrupts the host.
	InterruptsDomainHost InterruptsDomain = 1 << 1
)

// ChannelsBitmap is a per-engine bitmap of DMA channel indices.
type ChannelsBitmap [MaxEngines]uint32
