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

// Package vdma implements DMA channel allocation, descriptor-list
// arithmetic and the boundary channels carrying network stream traffic.
package vdma

import "fmt"

// DefaultEngineIndex is the engine used by single-engine transports.
const DefaultEngineIndex = 0

// ChannelID identifies one DMA channel on one engine.
type ChannelID struct {
	Engine uint8
	Index  uint8
}

// String returns the engine:index form of the id.
func (id ChannelID) String() string {
	return fmt.Sprintf("%d:%d", id.Engine, id.Index)
}

// Packed returns the single-byte firmware encoding of the id: channel
// index in bits 0-4, engine index in bits 5-6.
func (id ChannelID) Packed() uint8 {
	return (id.Index & 0x1f) | ((id.Engine & 0x03) << 5)
}

// LayerKind classifies the layer owning a channel allocation.
type LayerKind uint8

const (
	// LayerKindNotSet is the wildcard kind for queries.
	LayerKindNotSet LayerKind = iota
	// LayerKindBoundary marks a host-facing stream layer.
	LayerKindBoundary
	// LayerKindInterContext marks a layer bridging execution contexts.
	LayerKindInterContext
	// LayerKindDdr marks a paired on-device intermediate layer.
	LayerKindDdr
	// LayerKindConfig marks a configuration-stream layer.
	LayerKindConfig
)

// String returns a short name for the kind.
func (k LayerKind) String() string {
	switch k {
	case LayerKindBoundary:
		return "boundary"
	case LayerKindInterContext:
		return "inter-context"
	case LayerKindDdr:
		return "ddr"
	case LayerKindConfig:
		return "config"
	}
	return "not-set"
}

// LayerIdentifier is the allocation key: one identifier maps to exactly one
// channel id for the lifetime of the mapping.
type LayerIdentifier struct {
	Kind  LayerKind
	Name  string
	Index uint8
}
