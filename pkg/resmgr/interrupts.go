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
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/edgeaccel/accelrt/pkg/device"
	"github.com/edgeaccel/accelrt/pkg/driver"
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

// StartInterruptsDispatcher registers the manager for completion
// interrupts of every boundary channel. Hardware timestamp capture is
// enabled only when latency meters exist.
func (m *Manager) StartInterruptsDispatcher() error {
	m.Lock()
	defer m.Unlock()

	if m.dispatcherRunning {
		return fmt.Errorf("interrupts dispatcher already running: %w", ErrInvalidOperation)
	}

	var bitmap driver.ChannelsBitmap
	for _, channel := range m.boundary {
		id := channel.ID()
		bitmap[id.Engine] |= 1 << id.Index
	}

	dispatcher, err := m.dev.InterruptsDispatcher()
	if err != nil {
		return err
	}
	if err := dispatcher.Start(bitmap, len(m.meters) > 0, m.ProcessInterrupts); err != nil {
		return err
	}
	m.dispatcherRunning = true
	return nil
}

// StopInterruptsDispatcher unregisters the manager from completion
// interrupts.
func (m *Manager) StopInterruptsDispatcher() error {
	m.Lock()
	defer m.Unlock()
	return m.stopInterruptsDispatcher()
}

func (m *Manager) stopInterruptsDispatcher() error {
	if !m.dispatcherRunning {
		return nil
	}
	dispatcher, err := m.dev.InterruptsDispatcher()
	if err != nil {
		return err
	}
	if err := dispatcher.Stop(); err != nil {
		return err
	}
	m.dispatcherRunning = false
	return nil
}

// ProcessInterrupts handles one batch of hardware completion entries. A
// bad entry never fails the batch: inactive channels, unknown channels and
// hardware-reported errors are logged and skipped, and completion moves on
// to the next entry.
func (m *Manager) ProcessInterrupts(batch device.IrqBatch) {
	channels := m.BoundaryChannels()
	byID := make(map[vdma.ChannelID]*vdma.BoundaryChannel, len(channels))
	for _, channel := range channels {
		byID[channel.ID()] = channel
	}

	for _, irq := range batch.Channels {
		channel, ok := byID[irq.ChannelID]
		if !ok {
			log.Warn("interrupt for unknown channel %s, skipping", irq.ChannelID)
			continue
		}
		if irq.HostError != 0 || irq.DeviceError != 0 {
			log.Error("channel %s (stream %q) reported errors, host 0x%x device 0x%x, skipping",
				irq.ChannelID, channel.StreamName(), irq.HostError, irq.DeviceError)
			continue
		}
		if !irq.IsActive {
			log.Error("interrupt on inactive channel %s (stream %q), skipping",
				irq.ChannelID, channel.StreamName())
			continue
		}

		if irq.Timestamp != 0 {
			channel.RecordHwTimestamp(irq.Timestamp)
		}

		err := channel.TriggerChannelCompletion(irq.DescsProcessed)
		switch {
		case err == nil:
		case errors.Is(err, vdma.ErrStreamAborted), errors.Is(err, vdma.ErrStreamNotActivated):
			log.Debug("completion on channel %s dropped: %v", irq.ChannelID, err)
		default:
			log.Warn("completion on channel %s failed: %v", irq.ChannelID, err)
		}
	}
}

// CancelPendingAsyncTransfers cancels the pending transfers of every
// asynchronous boundary channel.
func (m *Manager) CancelPendingAsyncTransfers() error {
	var errs *multierror.Error
	for _, channel := range m.BoundaryChannels() {
		if channel.Mode() != vdma.ChannelModeAsync {
			continue
		}
		errs = multierror.Append(errs, channel.CancelPendingTransfers())
	}
	return errs.ErrorOrNil()
}
