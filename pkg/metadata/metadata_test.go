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

package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeaccel/accelrt/pkg/metadata"
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

func TestLayerInfoSizes(t *testing.T) {
	layer := metadata.LayerInfo{
		Name:                 "output0",
		PeriphBytesPerBuffer: 512,
		CoreBuffersPerFrame:  3,
		HwFrameSize:          1536,
	}
	require.Equal(t, uint32(1536), layer.TransferSize())
	require.Equal(t, uint32(1536), layer.SingleFrameSize())

	layer.FormatOrder = metadata.FormatOrderNMS
	layer.NmsBboxSize = 16
	require.Equal(t, uint32(16), layer.SingleFrameSize())
}

func TestCoreOpMetadataQueries(t *testing.T) {
	var (
		layers = []metadata.LayerInfo{
			{Name: "in0", NetworkName: "net0", Kind: vdma.LayerKindBoundary, HwFrameSize: 512},
			{Name: "out0", NetworkName: "net0", Kind: vdma.LayerKindBoundary, HwFrameSize: 1024},
			{Name: "in1", NetworkName: "net1", Kind: vdma.LayerKindBoundary, HwFrameSize: 256},
		}
		meta = metadata.NewCoreOpMetadata("coreop0", []string{"net0", "net1"}, layers,
			nil, metadata.SupportedFeatures{PreliminaryRunAsap: true})
	)

	require.Equal(t, []string{"net0", "net1"}, meta.NetworkNames())
	require.Len(t, meta.LayerInfos("net0"), 2)
	require.Len(t, meta.LayerInfos("net1"), 1)
	require.Empty(t, meta.LayerInfos("net2"))
	require.True(t, meta.SupportedFeatures().PreliminaryRunAsap)
	require.Equal(t, uint64(1792), meta.TotalTransferSize())
}

func TestConfigureParamsResolution(t *testing.T) {
	params := metadata.ConfigureParams{
		BatchSize: 4,
		NetworkParams: map[string]metadata.NetworkParams{
			"net1": {BatchSize: 8},
		},
		StreamParams: map[string]metadata.StreamParams{
			"in0": {Flags: metadata.StreamFlagAsync},
		},
	}

	require.Equal(t, uint16(4), params.NetworkBatchSize("net0"))
	require.Equal(t, uint16(8), params.NetworkBatchSize("net1"))
	require.True(t, params.StreamIsAsync("in0"))
	require.False(t, params.StreamIsAsync("out0"))
}

func TestConfigBufferInfoTotalSize(t *testing.T) {
	info := metadata.ConfigBufferInfo{BurstSizes: []uint32{128, 256, 64}}
	require.Equal(t, uint64(448), info.TotalSize())
	require.Zero(t, metadata.ConfigBufferInfo{}.TotalSize())
}
