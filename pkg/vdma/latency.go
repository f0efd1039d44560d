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
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgeaccel/accelrt/pkg/metrics"
)

// MaxIrqTimestamps caps the number of buffered hardware timestamps per
// direction. Interrupts arriving past this depth overwrite nothing and are
// dropped from measurement.
const MaxIrqTimestamps = 256

var latencyHist = metrics.NewHistogram("stream_latency_seconds",
	"End-to-end hardware latency per network.",
	prometheus.ExponentialBuckets(100e-6, 2, 16), "network")

// LatencyMeter accumulates hardware timestamps of one network's streams
// and derives end-to-end latency. A measurement completes when every
// device-to-host stream has reported a timestamp for the oldest pending
// host-to-device timestamp.
type LatencyMeter struct {
	mu         sync.Mutex
	network    string
	d2hStreams map[string]bool
	starts     []uint64
	ends       map[string][]uint64
	last       time.Duration
	measured   uint64
}

// NewLatencyMeter creates a meter for the given network and its
// device-to-host stream names.
func NewLatencyMeter(network string, d2hStreamNames []string) *LatencyMeter {
	streams := make(map[string]bool, len(d2hStreamNames))
	ends := make(map[string][]uint64, len(d2hStreamNames))
	for _, name := range d2hStreamNames {
		streams[name] = true
		ends[name] = nil
	}
	return &LatencyMeter{
		network:    network,
		d2hStreams: streams,
		ends:       ends,
	}
}

// Network returns the network this meter measures.
func (m *LatencyMeter) Network() string {
	return m.network
}

// AddStartSample records the hardware timestamp of a frame entering the
// device.
func (m *LatencyMeter) AddStartSample(ts uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.starts) < MaxIrqTimestamps {
		m.starts = append(m.starts, ts)
	}
}

// AddEndSample records the hardware timestamp of a frame leaving the device
// on the named stream. Samples for streams the meter does not track are
// dropped.
func (m *LatencyMeter) AddEndSample(streamName string, ts uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.d2hStreams[streamName] {
		return
	}
	if len(m.ends[streamName]) < MaxIrqTimestamps {
		m.ends[streamName] = append(m.ends[streamName], ts)
	}
	m.tryMeasure()
}

// tryMeasure derives a latency sample once every tracked stream has
// reported for the oldest start. Called with the lock held.
func (m *LatencyMeter) tryMeasure() {
	if len(m.starts) == 0 {
		return
	}
	var lastEnd uint64
	for _, samples := range m.ends {
		if len(samples) == 0 {
			return
		}
		if samples[0] > lastEnd {
			lastEnd = samples[0]
		}
	}

	start := m.starts[0]
	m.starts = m.starts[1:]
	for name, samples := range m.ends {
		m.ends[name] = samples[1:]
	}

	if lastEnd > start {
		m.last = time.Duration(lastEnd - start)
		m.measured++
		latencyHist.WithLabelValues(m.network).Observe(m.last.Seconds())
	}
}

// LastLatency returns the most recent latency sample and whether any
// measurement completed yet.
func (m *LatencyMeter) LastLatency() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.measured > 0
}
