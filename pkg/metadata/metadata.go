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

// Package metadata models the compiled execution unit ("core-op")
// description consumed by the resource-management core. The metadata is
// produced by the compiled-model parser, which is out of scope here; this
// package only reads it.
package metadata

import (
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

// StreamDirection is the direction of a network stream.
type StreamDirection uint32

const (
	// H2DStream flows host to device (network input).
	H2DStream StreamDirection = iota
	// D2HStream flows device to host (network output).
	D2HStream
	// StreamDirectionAny is the wildcard direction for queries.
	StreamDirectionAny
)

// FormatOrder is the element ordering of a stream's data.
type FormatOrder uint32

const (
	// FormatOrderAuto lets the device pick the ordering.
	FormatOrderAuto FormatOrder = iota
	// FormatOrderNHWC is standard channel-last frame ordering.
	FormatOrderNHWC
	// FormatOrderNMS is post-processed detection output ordering. Streams
	// in this order have data-dependent sizes and no fixed frame size.
	FormatOrderNMS
)

// LayerInfo describes one stream endpoint of a network.
type LayerInfo struct {
	Name        string
	NetworkName string
	Kind        vdma.LayerKind
	StreamIndex uint8
	Direction   StreamDirection
	FormatOrder FormatOrder
	EngineIndex uint8

	// PeriphBytesPerBuffer and CoreBuffersPerFrame define the per-transfer
	// geometry seen by the DMA engine.
	PeriphBytesPerBuffer uint32
	CoreBuffersPerFrame  uint32
	// HwFrameSize is the full frame size on the wire.
	HwFrameSize uint32
	// NmsBboxSize is the per-box transfer size of NMS-ordered streams.
	NmsBboxSize uint32
}

// TransferSize returns the DMA transfer size of one buffer of this layer.
func (l *LayerInfo) TransferSize() uint32 {
	return l.PeriphBytesPerBuffer * l.CoreBuffersPerFrame
}

// SingleFrameSize returns the per-transfer byte size used for whole-frame
// accounting: the box size for NMS-ordered streams, the hardware frame
// size otherwise.
func (l *LayerInfo) SingleFrameSize() uint32 {
	if l.FormatOrder == FormatOrderNMS {
		return l.NmsBboxSize
	}
	return l.HwFrameSize
}

// Identifier returns the layer's channel-allocation key.
func (l *LayerInfo) Identifier() vdma.LayerIdentifier {
	return vdma.LayerIdentifier{Kind: l.Kind, Name: l.Name, Index: l.StreamIndex}
}

// SupportedFeatures are the features the compiled unit declares.
type SupportedFeatures struct {
	// PreliminaryRunAsap requests running the preliminary context as soon
	// as possible instead of waiting for a full batch.
	PreliminaryRunAsap bool
}

// ConfigChannelInfo describes one configuration channel required by the
// unit.
type ConfigChannelInfo struct {
	EngineIndex uint8
}

// ConfigBufferInfo describes one configuration buffer of a context as the
// sizes of its configuration bursts.
type ConfigBufferInfo struct {
	BurstSizes []uint32
}

// TotalSize returns the byte size of the configuration buffer.
func (i ConfigBufferInfo) TotalSize() uint64 {
	var total uint64
	for _, size := range i.BurstSizes {
		total += uint64(size)
	}
	return total
}

// CoreOpMetadata is the read-only description of one core-op.
type CoreOpMetadata struct {
	name           string
	networkNames   []string
	layers         []LayerInfo
	configChannels []ConfigChannelInfo
	features       SupportedFeatures
}

// NewCoreOpMetadata assembles core-op metadata. networkNames must be in the
// unit's stable network-index order.
func NewCoreOpMetadata(name string, networkNames []string, layers []LayerInfo,
	configChannels []ConfigChannelInfo, features SupportedFeatures) *CoreOpMetadata {
	return &CoreOpMetadata{
		name:           name,
		networkNames:   networkNames,
		layers:         layers,
		configChannels: configChannels,
		features:       features,
	}
}

// Name returns the core-op name.
func (m *CoreOpMetadata) Name() string {
	return m.name
}

// NetworkNames returns the unit's networks in stable index order.
func (m *CoreOpMetadata) NetworkNames() []string {
	return m.networkNames
}

// AllLayerInfos returns every stream layer of the unit.
func (m *CoreOpMetadata) AllLayerInfos() []LayerInfo {
	return m.layers
}

// LayerInfos returns the stream layers of one network.
func (m *CoreOpMetadata) LayerInfos(networkName string) []LayerInfo {
	var layers []LayerInfo
	for _, layer := range m.layers {
		if layer.NetworkName == networkName {
			layers = append(layers, layer)
		}
	}
	return layers
}

// ConfigChannelsInfo returns the unit's configuration channels.
func (m *CoreOpMetadata) ConfigChannelsInfo() []ConfigChannelInfo {
	return m.configChannels
}

// SupportedFeatures returns the unit's declared features.
func (m *CoreOpMetadata) SupportedFeatures() SupportedFeatures {
	return m.features
}

// TotalTransferSize returns the aggregate single-frame transfer size over
// the boundary layers.
func (m *CoreOpMetadata) TotalTransferSize() uint64 {
	var total uint64
	for _, layer := range m.layers {
		if layer.Kind != vdma.LayerKindBoundary {
			continue
		}
		total += uint64(layer.SingleFrameSize())
	}
	return total
}
