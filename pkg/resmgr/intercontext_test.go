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
	"github.com/edgeaccel/accelrt/pkg/driver"
	"github.com/edgeaccel/accelrt/pkg/metadata"
	"github.com/edgeaccel/accelrt/pkg/resmgr"
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

func bridgeLayer() metadata.LayerInfo {
	return metadata.LayerInfo{
		Name:                 "conv7",
		NetworkName:          "net0",
		Kind:                 vdma.LayerKindInterContext,
		StreamIndex:          4,
		Direction:            metadata.D2HStream,
		PeriphBytesPerBuffer: 512,
		CoreBuffersPerFrame:  2,
	}
}

func TestCreateInterContextBuffer(t *testing.T) {
	s := newTestSetup(t, testMetadata(testLayers()), metadata.ConfigureParams{BatchSize: 2})

	buffer, err := s.mgr.CreateInterContextBuffer(1, bridgeLayer())
	require.NoError(t, err)
	require.Equal(t, uint16(2), buffer.BatchSize())

	d2h, h2d := buffer.ChannelPair()
	require.GreaterOrEqual(t, d2h.Index, uint8(driver.DestChannelsStart))
	require.Less(t, h2d.Index, uint8(driver.DestChannelsStart))

	_, err = s.mgr.CreateInterContextBuffer(1, bridgeLayer())
	require.ErrorIs(t, err, resmgr.ErrInvalidOperation, "duplicate buffer accepted")

	key := resmgr.InterContextBufferKey{SourceContext: 1, StreamIndex: 4}
	found, err := s.mgr.InterContextBuffer(key)
	require.NoError(t, err)
	require.Equal(t, buffer, found)

	_, err = s.mgr.InterContextBuffer(resmgr.InterContextBufferKey{SourceContext: 2, StreamIndex: 4})
	require.ErrorIs(t, err, resmgr.ErrNotFound)
}

func TestInterContextReprogramBounds(t *testing.T) {
	s := newTestSetup(t, testMetadata(testLayers()), metadata.ConfigureParams{BatchSize: 2})

	buffer, err := s.mgr.CreateInterContextBuffer(1, bridgeLayer())
	require.NoError(t, err)

	require.NoError(t, buffer.Reprogram(s.drv, 1))
	require.Equal(t, uint16(1), buffer.BatchSize())
	require.ErrorIs(t, buffer.Reprogram(s.drv, 3), resmgr.ErrInvalidArgument)
	require.ErrorIs(t, buffer.Reprogram(s.drv, 0), resmgr.ErrInvalidArgument)
}

func TestSetInterContextChannelsDynamicBatchSize(t *testing.T) {
	s := newTestSetup(t, testMetadata(testLayers()), metadata.ConfigureParams{BatchSize: 4})

	buffer, err := s.mgr.CreateInterContextBuffer(0, bridgeLayer())
	require.NoError(t, err)

	require.NoError(t, s.mgr.SetInterContextChannelsDynamicBatchSize(2))
	require.Equal(t, uint16(2), buffer.BatchSize())

	calls := s.transport.CallsTo(control.OpSetInterContextBatchSize)
	require.Len(t, calls, 1)
	require.Equal(t, []byte{0x02, 0x00}, calls[0].Payload)

	// A size beyond the allocation never reaches the firmware.
	require.ErrorIs(t, s.mgr.SetInterContextChannelsDynamicBatchSize(8), resmgr.ErrInvalidArgument)
	require.Len(t, s.transport.CallsTo(control.OpSetInterContextBatchSize), 1)
}

func TestReadIntermediateBuffer(t *testing.T) {
	s := newTestSetup(t, testMetadata(testLayers()), metadata.ConfigureParams{})

	_, err := s.mgr.CreateInterContextBuffer(0, bridgeLayer())
	require.NoError(t, err)

	key := resmgr.InterContextBufferKey{SourceContext: 0, StreamIndex: 4}
	out := make([]byte, 64)
	n, err := s.mgr.ReadIntermediateBuffer(key, out)
	require.NoError(t, err)
	require.Equal(t, 64, n)

	_, err = s.mgr.ReadIntermediateBuffer(
		resmgr.InterContextBufferKey{SourceContext: 9, StreamIndex: 9}, out)
	require.ErrorIs(t, err, resmgr.ErrNotFound)
}

func TestReadIntermediateBufferDdrFallback(t *testing.T) {
	s := newTestSetup(t, testMetadata(testLayers()), metadata.ConfigureParams{})

	ctx, err := s.mgr.AddNewContext(control.ContextTypeDynamic, nil)
	require.NoError(t, err)
	pair, err := ctx.CreateDdrChannelPair(s.drv, resmgr.DdrChannelPairParams{
		StreamIndex:  2,
		H2DChannel:   vdma.ChannelID{Engine: 0, Index: 3},
		D2HChannel:   vdma.ChannelID{Engine: 0, Index: 19},
		RowSize:      32,
		BufferedRows: 4,
	})
	require.NoError(t, err)

	// Keys without an inter-context buffer fall back to the owning
	// context's DDR pair.
	data := pair.Buffer().Data()
	for i := range data {
		data[i] = byte(i)
	}
	out := make([]byte, 128)
	key := resmgr.InterContextBufferKey{SourceContext: ctx.Index(), StreamIndex: 2}
	n, err := s.mgr.ReadIntermediateBuffer(key, out)
	require.NoError(t, err)
	require.Equal(t, 128, n)
	require.Equal(t, data, out)

	_, err = s.mgr.ReadIntermediateBuffer(
		resmgr.InterContextBufferKey{SourceContext: ctx.Index(), StreamIndex: 7}, out)
	require.ErrorIs(t, err, resmgr.ErrNotFound)
}
