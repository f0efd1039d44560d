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
	"sync"

	"github.com/eapache/queue"

	"github.com/edgeaccel/accelrt/pkg/driver"
)

// ChannelMode selects the completion behavior of a boundary channel. The
// set is closed; the mode is fixed at creation from the stream's declared
// flags.
type ChannelMode uint8

const (
	// ChannelModeBuffered is the simple buffered-transfer behavior.
	ChannelModeBuffered ChannelMode = iota
	// ChannelModeAsync is the asynchronous behavior with per-transfer
	// callbacks and cancellation.
	ChannelModeAsync
)

// String returns a short name for the mode.
func (m ChannelMode) String() string {
	if m == ChannelModeAsync {
		return "async"
	}
	return "buffered"
}

// TransferCallback is invoked when an asynchronous transfer completes or is
// cancelled.
type TransferCallback func(err error)

// pendingTransfer is one in-flight asynchronous transfer. end is the
// cumulative descriptor count at which the transfer completes.
type pendingTransfer struct {
	end      uint64
	callback TransferCallback
}

// BoundaryChannelParams configures a boundary channel.
type BoundaryChannelParams struct {
	ID           ChannelID
	Direction    driver.DmaDirection
	StreamName   string
	DescCount    uint32
	DescPageSize uint16
	BatchSize    uint16
	Mode         ChannelMode
	Latency      *LatencyMeter
}

// BoundaryChannel is the host-facing DMA channel of one network stream.
// Completion state is guarded by the channel's own lock; the interrupt
// dispatch path performs no additional locking.
type BoundaryChannel struct {
	mu         sync.Mutex
	id         ChannelID
	direction  driver.DmaDirection
	streamName string
	descList   *DescriptorList
	batchSize  uint16
	mode       ChannelMode
	latency    *LatencyMeter

	activated      bool
	aborted        bool
	descsProcessed uint64
	launchCursor   uint64
	pending        *queue.Queue
}

// CreateBoundaryChannel creates a boundary channel and its circular
// descriptor ring on the transport.
func CreateBoundaryChannel(drv driver.Driver, params BoundaryChannelParams) (*BoundaryChannel, error) {
	descList, err := CreateDescriptorList(drv, params.DescCount, params.DescPageSize, true)
	if err != nil {
		return nil, fmt.Errorf("descriptor ring for stream %q: %w", params.StreamName, err)
	}

	ch := &BoundaryChannel{
		id:         params.ID,
		direction:  params.Direction,
		streamName: params.StreamName,
		descList:   descList,
		batchSize:  params.BatchSize,
		mode:       params.Mode,
		latency:    params.Latency,
	}
	if params.Mode == ChannelModeAsync {
		ch.pending = queue.New()
	}
	log.Debug("created %s boundary channel %s for stream %q (batch %d, ring %d x %d)",
		ch.mode, ch.id, ch.streamName, ch.batchSize, descList.DescCount(), descList.DescPageSize())
	return ch, nil
}

// ID returns the channel id.
func (ch *BoundaryChannel) ID() ChannelID {
	return ch.id
}

// Direction returns the channel's DMA direction.
func (ch *BoundaryChannel) Direction() driver.DmaDirection {
	return ch.direction
}

// StreamName returns the network stream bound to this channel.
func (ch *BoundaryChannel) StreamName() string {
	return ch.streamName
}

// Mode returns the behavior mode fixed at creation.
func (ch *BoundaryChannel) Mode() ChannelMode {
	return ch.mode
}

// DescList returns the channel's descriptor ring.
func (ch *BoundaryChannel) DescList() *DescriptorList {
	return ch.descList
}

// LatencyMeter returns the meter attached to this channel, or nil.
func (ch *BoundaryChannel) LatencyMeter() *LatencyMeter {
	return ch.latency
}

// Activate marks the channel active. Transfers complete only while active.
func (ch *BoundaryChannel) Activate() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.activated = true
	ch.aborted = false
}

// Abort marks the channel aborted by the user.
func (ch *BoundaryChannel) Abort() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.aborted = true
}

// LaunchTransfer registers one asynchronous transfer spanning descsInTransfer
// descriptors. The callback fires on completion or cancellation. Buffered
// channels reject the call.
func (ch *BoundaryChannel) LaunchTransfer(descsInTransfer uint32, callback TransferCallback) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.mode != ChannelModeAsync {
		return fmt.Errorf("launch on %s channel %s: %w", ch.mode, ch.id, ErrInvalidArgument)
	}
	if !ch.activated {
		return ErrStreamNotActivated
	}
	ch.launchCursor += uint64(descsInTransfer)
	ch.pending.Add(pendingTransfer{end: ch.launchCursor, callback: callback})
	return nil
}

// TriggerChannelCompletion accounts descsProcessed completed descriptors.
// Benign non-success outcomes are ErrStreamAborted and
// ErrStreamNotActivated.
func (ch *BoundaryChannel) TriggerChannelCompletion(descsProcessed uint16) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.aborted {
		return ErrStreamAborted
	}
	if !ch.activated {
		return ErrStreamNotActivated
	}

	ch.descsProcessed += uint64(descsProcessed)

	if ch.mode == ChannelModeAsync {
		for ch.pending.Length() > 0 {
			head := ch.pending.Peek().(pendingTransfer)
			if head.end > ch.descsProcessed {
				break
			}
			ch.pending.Remove()
			head.callback(nil)
		}
	}
	return nil
}

// DescsProcessed returns the total number of descriptors completed.
func (ch *BoundaryChannel) DescsProcessed() uint64 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.descsProcessed
}

// RecordHwTimestamp feeds a hardware timestamp into the channel's latency
// meter, if any.
func (ch *BoundaryChannel) RecordHwTimestamp(ts uint64) {
	if ch.latency == nil {
		return
	}
	if ch.direction == driver.DmaToDevice {
		ch.latency.AddStartSample(ts)
	} else {
		ch.latency.AddEndSample(ch.streamName, ts)
	}
}

// CancelPendingTransfers cancels all pending asynchronous transfers,
// invoking each callback with ErrStreamAborted. Buffered channels have
// nothing to cancel.
func (ch *BoundaryChannel) CancelPendingTransfers() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.mode != ChannelModeAsync {
		return nil
	}
	cancelled := 0
	for ch.pending.Length() > 0 {
		head := ch.pending.Remove().(pendingTransfer)
		head.callback(ErrStreamAborted)
		cancelled++
	}
	if cancelled > 0 {
		log.Debug("cancelled %d pending transfers on channel %s (stream %q)",
			cancelled, ch.id, ch.streamName)
	}
	return nil
}

// Release frees the channel's descriptor ring.
func (ch *BoundaryChannel) Release() error {
	return ch.descList.Release()
}
