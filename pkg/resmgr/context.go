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

	"github.com/edgeaccel/accelrt/pkg/control"
	"github.com/edgeaccel/accelrt/pkg/driver"
	"github.com/edgeaccel/accelrt/pkg/metadata"
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

// EdgeLayer is one stream endpoint materialized in a context, tying a
// layer description to its allocated DMA channel.
type EdgeLayer struct {
	ChannelID vdma.ChannelID
	Layer     metadata.LayerInfo
}

// DdrChannelPair is a device-DRAM buffering loop inside one context. The
// device-to-host side spills rows into the buffer and the host-to-device
// side feeds them back without host involvement.
type DdrChannelPair struct {
	StreamIndex uint8
	H2DChannel  vdma.ChannelID
	D2HChannel  vdma.ChannelID
	buffer      *driver.MappedBuffer
}

// DdrChannelPairParams configures a DDR channel pair.
type DdrChannelPairParams struct {
	StreamIndex uint8
	H2DChannel  vdma.ChannelID
	D2HChannel  vdma.ChannelID
	// RowSize is the byte size of one buffered row, BufferedRows the row
	// count the loop keeps in flight.
	RowSize      uint32
	BufferedRows uint32
}

// Buffer returns the pair's backing buffer.
func (p *DdrChannelPair) Buffer() *driver.MappedBuffer {
	return p.buffer
}

// ContextResources holds the per-context resources of a configured
// core-op: its configuration buffers, its materialized edge layers and
// its DDR buffering loops.
type ContextResources struct {
	contextType   uint8
	contextIndex  uint8
	configBuffers []*ConfigBuffer
	edgeLayers    []EdgeLayer
	ddrPairs      []*DdrChannelPair
}

// NewContextResources creates the resources of one context. Each
// configuration buffer is tied to a pre-allocated config channel, so the
// buffer infos must not outnumber the channel ids.
func NewContextResources(drv driver.Driver, contextType uint8, contextIndex uint8,
	configChannels []vdma.ChannelID, configBuffers []metadata.ConfigBufferInfo) (*ContextResources, error) {
	if contextType > control.ContextTypeDynamic {
		return nil, fmt.Errorf("unknown context type %d: %w", contextType, ErrInvalidArgument)
	}
	if len(configBuffers) > len(configChannels) {
		return nil, fmt.Errorf("context %d needs %d config buffers but only %d config channels exist: %w",
			contextIndex, len(configBuffers), len(configChannels), ErrInternal)
	}

	ctx := &ContextResources{
		contextType:  contextType,
		contextIndex: contextIndex,
	}
	for i, info := range configBuffers {
		buffer, err := NewConfigBuffer(drv, configChannels[i], info)
		if err != nil {
			ctx.release()
			return nil, fmt.Errorf("context %d config buffer %d: %w", contextIndex, i, err)
		}
		ctx.configBuffers = append(ctx.configBuffers, buffer)
	}
	return ctx, nil
}

// Type returns the context's type.
func (ctx *ContextResources) Type() uint8 {
	return ctx.contextType
}

// Index returns the context's index.
func (ctx *ContextResources) Index() uint8 {
	return ctx.contextIndex
}

// ConfigBuffers returns the context's configuration buffers.
func (ctx *ContextResources) ConfigBuffers() []*ConfigBuffer {
	return ctx.configBuffers
}

// AddEdgeLayer materializes a stream endpoint in the context.
func (ctx *ContextResources) AddEdgeLayer(channel vdma.ChannelID, layer metadata.LayerInfo) {
	ctx.edgeLayers = append(ctx.edgeLayers, EdgeLayer{ChannelID: channel, Layer: layer})
}

// EdgeLayers returns the context's edge layers matching the given kind and
// direction. vdma.LayerKindNotSet and metadata.StreamDirectionAny act as
// wildcards.
func (ctx *ContextResources) EdgeLayers(kind vdma.LayerKind,
	direction metadata.StreamDirection) []EdgeLayer {
	var layers []EdgeLayer
	for _, el := range ctx.edgeLayers {
		if kind != vdma.LayerKindNotSet && el.Layer.Kind != kind {
			continue
		}
		if direction != metadata.StreamDirectionAny && el.Layer.Direction != direction {
			continue
		}
		layers = append(layers, el)
	}
	return layers
}

// EdgeLayerByStreamIndex returns the edge layer of the given kind at the
// given stream index.
func (ctx *ContextResources) EdgeLayerByStreamIndex(kind vdma.LayerKind,
	streamIndex uint8) (EdgeLayer, error) {
	for _, el := range ctx.edgeLayers {
		if el.Layer.Kind == kind && el.Layer.StreamIndex == streamIndex {
			return el, nil
		}
	}
	return EdgeLayer{}, fmt.Errorf("context %d has no %s edge layer at stream index %d: %w",
		ctx.contextIndex, kind, streamIndex, ErrNotFound)
}

// CreateDdrChannelPair creates a DDR buffering loop in the context.
func (ctx *ContextResources) CreateDdrChannelPair(drv driver.Driver,
	params DdrChannelPairParams) (*DdrChannelPair, error) {
	if params.RowSize == 0 || params.BufferedRows == 0 {
		return nil, fmt.Errorf("context %d ddr pair at stream index %d has empty geometry: %w",
			ctx.contextIndex, params.StreamIndex, ErrInvalidArgument)
	}

	size := uint64(params.RowSize) * uint64(params.BufferedRows)
	buffer, err := driver.AllocateMappedBuffer(drv, size, driver.DmaBidirectional)
	if err != nil {
		return nil, fmt.Errorf("context %d ddr pair buffer: %w", ctx.contextIndex, err)
	}

	pair := &DdrChannelPair{
		StreamIndex: params.StreamIndex,
		H2DChannel:  params.H2DChannel,
		D2HChannel:  params.D2HChannel,
		buffer:      buffer,
	}
	ctx.ddrPairs = append(ctx.ddrPairs, pair)
	return pair, nil
}

// DdrChannelPairByStreamIndex returns the DDR pair at the given stream
// index.
func (ctx *ContextResources) DdrChannelPairByStreamIndex(streamIndex uint8) (*DdrChannelPair, error) {
	for _, pair := range ctx.ddrPairs {
		if pair.StreamIndex == streamIndex {
			return pair, nil
		}
	}
	return nil, fmt.Errorf("context %d has no ddr pair at stream index %d: %w",
		ctx.contextIndex, streamIndex, ErrNotFound)
}

// DdrChannelPairs returns the context's DDR pairs.
func (ctx *ContextResources) DdrChannelPairs() []*DdrChannelPair {
	return ctx.ddrPairs
}

// ValidateEdgeLayers checks that no DMA channel is claimed by two edge
// layers of the context.
func (ctx *ContextResources) ValidateEdgeLayers() error {
	seen := make(map[vdma.ChannelID]string, len(ctx.edgeLayers))
	for _, el := range ctx.edgeLayers {
		if other, dup := seen[el.ChannelID]; dup {
			return fmt.Errorf("context %d channel %s claimed by both %q and %q: %w",
				ctx.contextIndex, el.ChannelID, other, el.Layer.Name, ErrInternal)
		}
		seen[el.ChannelID] = el.Layer.Name
	}
	return nil
}

func (ctx *ContextResources) release() error {
	var errs *multierror.Error
	for _, buffer := range ctx.configBuffers {
		errs = multierror.Append(errs, buffer.Release())
	}
	for _, pair := range ctx.ddrPairs {
		errs = multierror.Append(errs, pair.buffer.Release())
	}
	ctx.configBuffers = nil
	ctx.ddrPairs = nil
	return errs.ErrorOrNil()
}
