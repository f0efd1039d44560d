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

	"github.com/edgeaccel/accelrt/pkg/driver"
	logger "github.com/edgeaccel/accelrt/pkg/log"
)

var log = logger.Get("vdma")

// ChannelAllocator maps layer identifiers to concrete DMA channel ids.
// Host-to-device allocations use the low half of an engine's channel range,
// device-to-host allocations the high half. The allocator is not internally
// locked; configuration-time callers must serialize access.
type ChannelAllocator struct {
	engineCount uint8
	allocated   map[LayerIdentifier]ChannelID
	inUse       map[ChannelID]struct{}
}

// NewChannelAllocator creates an allocator for the given engine count.
func NewChannelAllocator(engineCount uint8) *ChannelAllocator {
	return &ChannelAllocator{
		engineCount: engineCount,
		allocated:   make(map[LayerIdentifier]ChannelID),
		inUse:       make(map[ChannelID]struct{}),
	}
}

// GetAvailableChannelID returns a free channel id on the requested engine
// for the requested direction. Requesting a channel for an identifier that
// already holds one returns the same id.
func (a *ChannelAllocator) GetAvailableChannelID(ident LayerIdentifier,
	direction driver.DmaDirection, engine uint8) (ChannelID, error) {
	if id, ok := a.allocated[ident]; ok {
		return id, nil
	}
	if engine >= a.engineCount {
		return ChannelID{}, fmt.Errorf("engine index %d out of range (%d engines): %w",
			engine, a.engineCount, ErrInvalidArgument)
	}

	first, last := uint8(0), uint8(driver.DestChannelsStart)
	if direction == driver.DmaFromDevice {
		first, last = driver.DestChannelsStart, driver.MaxChannelsPerEngine
	}

	for index := first; index < last; index++ {
		id := ChannelID{Engine: engine, Index: index}
		if _, used := a.inUse[id]; used {
			continue
		}
		a.allocated[ident] = id
		a.inUse[id] = struct{}{}
		log.Debug("allocated channel %s for %s layer %q/%d (%s)",
			id, ident.Kind, ident.Name, ident.Index, direction)
		return id, nil
	}

	return ChannelID{}, fmt.Errorf("no %s channel left on engine %d: %w",
		direction, engine, ErrOutOfChannels)
}

// FreeChannelIndex releases the channel held by the given identifier. It
// never releases another identifier's channel; freeing an identifier with
// no mapping reports not-found.
func (a *ChannelAllocator) FreeChannelIndex(ident LayerIdentifier) error {
	id, ok := a.allocated[ident]
	if !ok {
		return fmt.Errorf("no channel allocated for %s layer %q/%d: %w",
			ident.Kind, ident.Name, ident.Index, ErrNotFound)
	}
	delete(a.allocated, ident)
	delete(a.inUse, id)
	log.Debug("freed channel %s of %s layer %q/%d", id, ident.Kind, ident.Name, ident.Index)
	return nil
}
