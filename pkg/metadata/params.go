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

package metadata

const (
	// BatchSizeUnspecified marks a batch size the caller left to the
	// runtime's discretion.
	BatchSizeUnspecified uint16 = 0
	// DefaultActualBatchSize is the batch size used when the caller left
	// it unspecified.
	DefaultActualBatchSize uint16 = 1
)

// PowerMode selects the device power profile during activation.
type PowerMode uint32

const (
	// PowerModePerformance balances throughput and power.
	PowerModePerformance PowerMode = iota
	// PowerModeUltraPerformance maximizes clocks at the cost of power.
	PowerModeUltraPerformance
)

// StreamFlags are per-stream configuration flags.
type StreamFlags uint32

const (
	// StreamFlagAsync requests a callback-driven channel for the stream
	// instead of the default buffered one.
	StreamFlagAsync StreamFlags = 1 << iota
)

// StreamParams are caller knobs for one stream.
type StreamParams struct {
	Flags StreamFlags `json:"flags"`
}

// NetworkParams are caller knobs for one network.
type NetworkParams struct {
	// BatchSize overrides the core-op batch size for this network.
	// BatchSizeUnspecified defers to the runtime default.
	BatchSize uint16 `json:"batchSize"`
}

// ConfigureParams are the caller knobs for configuring one core-op.
type ConfigureParams struct {
	// BatchSize applies to networks without an explicit NetworkParams
	// entry. BatchSizeUnspecified defers to the runtime default.
	BatchSize uint16 `json:"batchSize"`
	// PowerMode selects the device power profile for activation.
	PowerMode PowerMode `json:"powerMode"`
	// MeasureLatency requests hardware latency measurement where the
	// stream topology supports it.
	MeasureLatency bool `json:"measureLatency"`

	NetworkParams map[string]NetworkParams `json:"networkParams,omitempty"`
	StreamParams  map[string]StreamParams  `json:"streamParams,omitempty"`
}

// NetworkBatchSize resolves the effective configured batch size for a
// network, falling back to the core-op level value.
func (p *ConfigureParams) NetworkBatchSize(networkName string) uint16 {
	if np, ok := p.NetworkParams[networkName]; ok && np.BatchSize != BatchSizeUnspecified {
		return np.BatchSize
	}
	return p.BatchSize
}

// StreamIsAsync reports whether the caller requested an async channel for
// the stream.
func (p *ConfigureParams) StreamIsAsync(streamName string) bool {
	sp, ok := p.StreamParams[streamName]
	return ok && sp.Flags&StreamFlagAsync != 0
}
