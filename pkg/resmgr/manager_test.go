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

	"github.com/edgeaccel/accelrt/pkg/control"
	"github.com/edgeaccel/accelrt/pkg/device"
	"github.com/edgeaccel/accelrt/pkg/driver"
	"github.com/edgeaccel/accelrt/pkg/metadata"
	"github.com/edgeaccel/accelrt/pkg/resmgr"
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

// testSetup bundles a manager with the fakes behind it.
type testSetup struct {
	drv       *driver.Fake
	dev       *device.Fake
	transport *control.FakeTransport
	mgr       *resmgr.Manager
}

func testLayers() []metadata.LayerInfo {
	return []metadata.LayerInfo{
		{
			Name:                 "input0",
			NetworkName:          "net0",
			Kind:                 vdma.LayerKindBoundary,
			StreamIndex:          0,
			Direction:            metadata.H2DStream,
			PeriphBytesPerBuffer: 512,
			CoreBuffersPerFrame:  1,
			HwFrameSize:          512,
		},
		{
			Name:                 "output0",
			NetworkName:          "net0",
			Kind:                 vdma.LayerKindBoundary,
			StreamIndex:          1,
			Direction:            metadata.D2HStream,
			PeriphBytesPerBuffer: 1536,
			CoreBuffersPerFrame:  1,
			HwFrameSize:          1536,
		},
	}
}

func testMetadata(layers []metadata.LayerInfo) *metadata.CoreOpMetadata {
	return metadata.NewCoreOpMetadata("coreop0", []string{"net0"}, layers,
		[]metadata.ConfigChannelInfo{{EngineIndex: 0}}, metadata.SupportedFeatures{})
}

func newTestSetup(t *testing.T, meta *metadata.CoreOpMetadata, params metadata.ConfigureParams,
	options ...resmgr.ManagerOption) *testSetup {
	t.Helper()

	s := &testSetup{
		drv:       driver.NewFake(),
		dev:       device.NewFake(),
		transport: control.NewFakeTransport(),
	}

	mgr, err := resmgr.NewManager(s.drv, s.dev, control.NewClient(s.transport),
		meta, params, options...)
	require.NoError(t, err)
	s.mgr = mgr

	t.Cleanup(func() {
		require.NoError(t, mgr.Release())
	})
	return s
}

func TestNetworkBatchSize(t *testing.T) {
	var (
		meta = testMetadata(testLayers())
	)

	s := newTestSetup(t, meta, metadata.ConfigureParams{})
	size, err := s.mgr.NetworkBatchSize("net0")
	require.NoError(t, err)
	require.Equal(t, metadata.DefaultActualBatchSize, size, "unspecified batch size")

	s = newTestSetup(t, meta, metadata.ConfigureParams{BatchSize: 4})
	size, err = s.mgr.NetworkBatchSize("net0")
	require.NoError(t, err)
	require.Equal(t, uint16(4), size)

	s = newTestSetup(t, meta, metadata.ConfigureParams{
		BatchSize:     4,
		NetworkParams: map[string]metadata.NetworkParams{"net0": {BatchSize: 8}},
	})
	size, err = s.mgr.NetworkBatchSize("net0")
	require.NoError(t, err)
	require.Equal(t, uint16(8), size, "per-network override")

	_, err = s.mgr.NetworkBatchSize("no-such-net")
	require.ErrorIs(t, err, resmgr.ErrNotFound)
}

func TestAddNewContextCounts(t *testing.T) {
	s := newTestSetup(t, testMetadata(testLayers()), metadata.ConfigureParams{})

	_, err := s.mgr.AddNewContext(control.ContextTypePreliminary, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := s.mgr.AddNewContext(control.ContextTypeDynamic, nil)
		require.NoError(t, err)
	}

	_, err = s.mgr.AddNewContext(99, nil)
	require.ErrorIs(t, err, resmgr.ErrInvalidArgument, "unknown context type accepted")

	require.Len(t, s.mgr.Contexts(), 4)
	for i, ctx := range s.mgr.Contexts() {
		require.Equal(t, uint8(i), ctx.Index())
	}

	header, err := s.mgr.ControlCoreOpHeader()
	require.NoError(t, err)
	require.Equal(t, uint8(3), header.DynamicContextsCount)
}

func TestAddNewContextLimit(t *testing.T) {
	s := newTestSetup(t, testMetadata(testLayers()), metadata.ConfigureParams{})

	for i := 0; i < resmgr.MaxContexts; i++ {
		_, err := s.mgr.AddNewContext(control.ContextTypeDynamic, nil)
		require.NoError(t, err)
	}
	_, err := s.mgr.AddNewContext(control.ContextTypeDynamic, nil)
	require.ErrorIs(t, err, resmgr.ErrExhausted)
}

func TestControlCoreOpHeader(t *testing.T) {
	s := newTestSetup(t, testMetadata(testLayers()), metadata.ConfigureParams{BatchSize: 4})

	header, err := s.mgr.ControlCoreOpHeader()
	require.NoError(t, err)
	require.Equal(t, uint8(1), header.NetworksCount)
	require.Equal(t, uint16(4), header.BatchSizes[0])
	require.Equal(t, uint16(0), header.BatchSizes[1])
}

func TestCreateBoundaryChannel(t *testing.T) {
	var (
		layers = testLayers()
		s      = newTestSetup(t, testMetadata(layers), metadata.ConfigureParams{})
	)

	input, err := s.mgr.CreateBoundaryChannel(layers[0])
	require.NoError(t, err)
	require.Less(t, input.ID().Index, uint8(driver.DestChannelsStart))

	output, err := s.mgr.CreateBoundaryChannel(layers[1])
	require.NoError(t, err)
	require.GreaterOrEqual(t, output.ID().Index, uint8(driver.DestChannelsStart))
	require.NotEqual(t, input.ID(), output.ID())

	_, err = s.mgr.CreateBoundaryChannel(layers[0])
	require.ErrorIs(t, err, resmgr.ErrInvalidOperation, "duplicate stream accepted")

	found, err := s.mgr.BoundaryChannel("input0")
	require.NoError(t, err)
	require.Equal(t, input, found)

	_, err = s.mgr.BoundaryChannel("no-such-stream")
	require.ErrorIs(t, err, resmgr.ErrNotFound)
}

func TestCreateBoundaryChannelForcesDefaultEngine(t *testing.T) {
	layers := testLayers()
	// Models compiled for multi-engine parts still land on the single
	// engine a PCIe transport exposes.
	layers[0].EngineIndex = 1
	s := newTestSetup(t, testMetadata(layers), metadata.ConfigureParams{})

	input, err := s.mgr.CreateBoundaryChannel(layers[0])
	require.NoError(t, err)
	require.Equal(t, uint8(vdma.DefaultEngineIndex), input.ID().Engine)
}

func TestBoundaryChannelMode(t *testing.T) {
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
	require.Equal(t, vdma.ChannelModeAsync, input.Mode())

	output, err := s.mgr.CreateBoundaryChannel(layers[1])
	require.NoError(t, err)
	require.Equal(t, vdma.ChannelModeBuffered, output.Mode())
}

func TestForceMaxDescCount(t *testing.T) {
	var (
		layers = testLayers()
		s      = newTestSetup(t, testMetadata(layers), metadata.ConfigureParams{},
			resmgr.WithForceMaxDescCount())
	)

	channel, err := s.mgr.CreateBoundaryChannel(layers[0])
	require.NoError(t, err)
	require.Equal(t, uint32(driver.MaxDescsCount), channel.DescList().DescCount())
}

func TestLatencyMeterTopology(t *testing.T) {
	var (
		nmsLayers = testLayers()
		twoInputs = append(testLayers(), metadata.LayerInfo{
			Name:                 "input1",
			NetworkName:          "net0",
			Kind:                 vdma.LayerKindBoundary,
			StreamIndex:          2,
			Direction:            metadata.H2DStream,
			PeriphBytesPerBuffer: 512,
			CoreBuffersPerFrame:  1,
			HwFrameSize:          512,
		})
	)
	nmsLayers[1].FormatOrder = metadata.FormatOrderNMS
	nmsLayers[1].NmsBboxSize = 16

	s := newTestSetup(t, testMetadata(testLayers()), metadata.ConfigureParams{MeasureLatency: true})
	meter, err := s.mgr.LatencyMeter("net0")
	require.NoError(t, err)
	require.Equal(t, "net0", meter.Network())

	s = newTestSetup(t, testMetadata(nmsLayers), metadata.ConfigureParams{MeasureLatency: true})
	_, err = s.mgr.LatencyMeter("net0")
	require.ErrorIs(t, err, resmgr.ErrNotFound, "meter created for NMS output")

	s = newTestSetup(t, testMetadata(twoInputs), metadata.ConfigureParams{MeasureLatency: true})
	_, err = s.mgr.LatencyMeter("net0")
	require.ErrorIs(t, err, resmgr.ErrNotFound, "meter created for multi-input network")

	s = newTestSetup(t, testMetadata(testLayers()), metadata.ConfigureParams{})
	_, err = s.mgr.LatencyMeter("net0")
	require.ErrorIs(t, err, resmgr.ErrNotFound, "meter created without measurement request")
}

func TestConfigureOnce(t *testing.T) {
	s := newTestSetup(t, testMetadata(testLayers()), metadata.ConfigureParams{})

	_, err := s.mgr.AddNewContext(control.ContextTypePreliminary, nil)
	require.NoError(t, err)
	_, err = s.mgr.AddNewContext(control.ContextTypeDynamic, nil)
	require.NoError(t, err)

	require.NoError(t, s.mgr.Configure())
	require.Len(t, s.transport.CallsTo(control.OpSetCoreOpHeader), 1)
	require.Len(t, s.transport.CallsTo(control.OpSetContextInfo), 2)

	calls := len(s.transport.Calls)
	require.ErrorIs(t, s.mgr.Configure(), resmgr.ErrInternal)
	require.Len(t, s.transport.Calls, calls, "repeated configure reached the firmware")
}

func TestConfigureValidatesContexts(t *testing.T) {
	s := newTestSetup(t, testMetadata(testLayers()), metadata.ConfigureParams{})

	ctx, err := s.mgr.AddNewContext(control.ContextTypeDynamic, nil)
	require.NoError(t, err)
	ctx.AddEdgeLayer(vdma.ChannelID{Index: 2}, metadata.LayerInfo{Name: "a", Kind: vdma.LayerKindBoundary})
	ctx.AddEdgeLayer(vdma.ChannelID{Index: 2}, metadata.LayerInfo{Name: "b", Kind: vdma.LayerKindBoundary})

	require.ErrorIs(t, s.mgr.Configure(), resmgr.ErrInternal)
	require.Empty(t, s.transport.Calls, "configure reached the firmware despite invalid context")
}

func TestEnableStateMachine(t *testing.T) {
	s := newTestSetup(t, testMetadata(testLayers()), metadata.ConfigureParams{
		PowerMode: metadata.PowerModeUltraPerformance,
	})

	require.ErrorIs(t, s.mgr.EnableStateMachine(1, 1), resmgr.ErrInvalidOperation)
	require.Empty(t, s.transport.Calls)

	require.NoError(t, s.mgr.Configure())
	require.NoError(t, s.mgr.EnableStateMachine(4, 100))
	require.Len(t, s.transport.CallsTo(control.OpSetPowerMode), 1)
	require.Equal(t, []byte{uint8(metadata.PowerModeUltraPerformance)},
		s.transport.CallsTo(control.OpSetPowerMode)[0].Payload)
	require.Len(t, s.transport.CallsTo(control.OpEnableCoreOp), 1)
}

func TestResetStateMachine(t *testing.T) {
	s := newTestSetup(t, testMetadata(testLayers()), metadata.ConfigureParams{})

	require.NoError(t, s.mgr.ResetStateMachine())
	require.Len(t, s.transport.CallsTo(control.OpResetStateMachine), 1)
	require.Equal(t, []byte{0x00}, s.transport.CallsTo(control.OpResetStateMachine)[0].Payload)
	require.Empty(t, s.dev.Resets)

	s.dev.DeviceType = device.TypeIntegrated
	require.NoError(t, s.mgr.ResetStateMachine())
	require.Equal(t, []byte{0x01}, s.transport.CallsTo(control.OpResetStateMachine)[1].Payload)
	require.Equal(t, []device.ResetMode{device.ResetModeNNCore}, s.dev.Resets)
}

func TestFreeChannelIndex(t *testing.T) {
	var (
		layers = testLayers()
		s      = newTestSetup(t, testMetadata(layers), metadata.ConfigureParams{})
	)

	_, err := s.mgr.CreateBoundaryChannel(layers[0])
	require.NoError(t, err)

	require.NoError(t, s.mgr.FreeChannelIndex(layers[0].Identifier()))
	require.ErrorIs(t, s.mgr.FreeChannelIndex(layers[0].Identifier()), vdma.ErrNotFound)
}
