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

package vdma_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgeaccel/accelrt/pkg/vdma"
)

func TestLatencyMeterSingleOutput(t *testing.T) {
	meter := vdma.NewLatencyMeter("net0", []string{"output0"})

	meter.AddStartSample(1000)
	_, measured := meter.LastLatency()
	require.False(t, measured)

	meter.AddEndSample("output0", 4000)
	latency, measured := meter.LastLatency()
	require.True(t, measured)
	require.Equal(t, 3*time.Microsecond, latency)
}

func TestLatencyMeterWaitsForAllOutputs(t *testing.T) {
	meter := vdma.NewLatencyMeter("net0", []string{"output0", "output1"})

	meter.AddStartSample(1000)
	meter.AddEndSample("output0", 2000)
	_, measured := meter.LastLatency()
	require.False(t, measured, "measured before every output reported")

	meter.AddEndSample("output1", 5000)
	latency, measured := meter.LastLatency()
	require.True(t, measured)
	require.Equal(t, 4*time.Microsecond, latency)
}

func TestLatencyMeterDropsUntrackedStreams(t *testing.T) {
	meter := vdma.NewLatencyMeter("net0", []string{"output0"})

	meter.AddStartSample(1000)
	meter.AddEndSample("other", 9000)
	_, measured := meter.LastLatency()
	require.False(t, measured)
}
