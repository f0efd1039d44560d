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

package resmgr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeaccel/accelrt/pkg/device"
	"github.com/edgeaccel/accelrt/pkg/metadata"
	"github.com/edgeaccel/accelrt/pkg/resmgr"
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

func TestProcessInterruptsSkipsBadEntries(t *testing.T) {
	var (
		layers = testLayers()
		s      = newTestSetup(t, testMetadata(layers), metadata.ConfigureParams{})
	)

	input, err := s.mgr.CreateBoundaryChannel(layers[0])
	require.NoError(t, err)
	input.Activate()

	// One unknown channel, one hardware-reported error and one good
	// completion. Only the good one may reach the channel.
	s.mgr.ProcessInterrupts(device.IrqBatch{
		Channels: []device.IrqChannelData{
			{ChannelID: vdma.ChannelID{Engine: 0, Index: 9}, IsActive: true, DescsProcessed: 64},
			{ChannelID: input.ID(), IsActive: true, DescsProcessed: 32, HostError: 0x01},
			{ChannelID: input.ID(), IsActive: true, DescsProcessed: 128},
		},
	})

	require.Equal(t, uint64(128), input.DescsProcessed())

	// Inactive entries are skipped too.
	s.mgr.ProcessInterrupts(device.IrqBatch{
		Channels: []device.IrqChannelData{
			{ChannelID: input.ID(), IsActive: false, DescsProcessed: 32},
		},
	})
	require.Equal(t, uint64(128), input.DescsProcessed())
}

func TestProcessInterruptsSkipsHardwareErrors(t *testing.T) {
	var (
		layers = testLayers()
		s      = newTestSetup(t, testMetadata(layers), metadata.ConfigureParams{})
	)

	input, err := s.mgr.CreateBoundaryChannel(layers[0])
	require.NoError(t, err)
	input.Activate()

	s.mgr.ProcessInterrupts(device.IrqBatch{
		Channels: []device.IrqChannelData{
			{ChannelID: input.ID(), IsActive: true, DescsProcessed: 32, DeviceError: 0x02},
			{ChannelID: input.ID(), IsActive: true, DescsProcessed: 32, HostError: 0x01},
		},
	})
	require.Zero(t, input.DescsProcessed())
}

func TestProcessInterruptsFeedsLatencyMeter(t *testing.T) {
	var (
		layers = testLayers()
		s      = newTestSetup(t, testMetadata(layers), metadata.ConfigureParams{MeasureLatency: true})
	)

	input, err := s.mgr.CreateBoundaryChannel(layers[0])
	require.NoError(t, err)
	output, err := s.mgr.CreateBoundaryChannel(layers[1])
	require.NoError(t, err)
	input.Activate()
	output.Activate()

	s.mgr.ProcessInterrupts(device.IrqBatch{
		Channels: []device.IrqChannelData{
			{ChannelID: input.ID(), IsActive: true, DescsProcessed: 8, Timestamp: 1000},
			{ChannelID: output.ID(), IsActive: true, DescsProcessed: 24, Timestamp: 6000},
		},
	})

	meter, err := s.mgr.LatencyMeter("net0")
	require.NoError(t, err)
	latency, measured := meter.LastLatency()
	require.True(t, measured)
	require.EqualValues(t, 5000, latency.Nanoseconds())
}

func TestInterruptsDispatcherLifecycle(t *testing.T) {
	var (
		layers = testLayers()
		s      = newTestSetup(t, testMetadata(layers), metadata.ConfigureParams{})
	)

	input, err := s.mgr.CreateBoundaryChannel(layers[0])
	require.NoError(t, err)
	output, err := s.mgr.CreateBoundaryChannel(layers[1])
	require.NoError(t, err)
	input.Activate()

	require.NoError(t, s.mgr.StartInterruptsDispatcher())
	require.ErrorIs(t, s.mgr.StartInterruptsDispatcher(), resmgr.ErrInvalidOperation)

	dispatcher := s.dev.Dispatcher()
	require.True(t, dispatcher.Started)
	require.False(t, dispatcher.Timestamps, "timestamps on without latency meters")
	expectedBits := uint32(1)<<input.ID().Index | uint32(1)<<output.ID().Index
	require.Equal(t, expectedBits, dispatcher.Bitmap[0])

	dispatcher.Deliver(device.IrqBatch{
		Channels: []device.IrqChannelData{
			{ChannelID: input.ID(), IsActive: true, DescsProcessed: 16},
		},
	})
	require.Equal(t, uint64(16), input.DescsProcessed())

	require.NoError(t, s.mgr.StopInterruptsDispatcher())
	require.False(t, dispatcher.Started)
	require.NoError(t, s.mgr.StopInterruptsDispatcher(), "stop is not idempotent")
}

func TestCancelPendingAsyncTransfers(t *testing.T) {
	var (
		layers = testLayers()
		params = metadata.ConfigureParams{
			StreamParams: map[string]metadata.StreamParams{
				"input0": {Flags: metadata.StreamFlagAsync},
			},
		}
		s = newTestSetup(t, testMetadata(layers), params)
	)

	input, err := s.mgr.CreateBoundaryChannel(layers[0])
	require.NoError(t, err)
	input.Activate()

	var cancelled []error
	require.NoError(t, input.LaunchTransfer(8, func(err error) {
		cancelled = append(cancelled, err)
	}))

	require.NoError(t, s.mgr.CancelPendingAsyncTransfers())
	require.Len(t, cancelled, 1)
	require.ErrorIs(t, cancelled[0], vdma.ErrStreamAborted)
}
