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
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/edgeaccel/accelrt/pkg/control"
	"github.com/edgeaccel/accelrt/pkg/driver"
	"github.com/edgeaccel/accelrt/pkg/metadata"
	"github.com/edgeaccel/accelrt/pkg/metrics"
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

// DefaultHwInferWait is how long a hardware-only inference run is left to
// the firmware before the host collects results.
const DefaultHwInferWait = 20 * time.Second

// nanosecondsPerHwCycle converts firmware cycle counts to wall time. The
// inference clock runs at 200MHz.
const nanosecondsPerHwCycle = 5

var (
	hwInferFps = metrics.NewGauge("hw_infer_fps",
		"Frames per second measured by the last hardware-only inference.", "core_op")
	hwInferBandwidth = metrics.NewGauge("hw_infer_bandwidth_gbps",
		"Bandwidth in Gbit/s measured by the last hardware-only inference.", "core_op")
)

// HwInferResults are the measurements of one hardware-only inference run.
type HwInferResults struct {
	BatchCount    uint16
	FramesCount   uint32
	InferCycles   uint64
	Duration      time.Duration
	FPS           float64
	BandwidthGbps float64
}

// CalcHwInferBatchCount returns how many whole dynamic batches every
// boundary ring can hold at once: the minimum over all boundary layers
// of the ring's capacity for batch-sized transfer groups.
func (m *Manager) CalcHwInferBatchCount(dynamicBatchSize uint16) (uint16, error) {
	m.RLock()
	defer m.RUnlock()
	return m.calcHwInferBatchCount(dynamicBatchSize)
}

func (m *Manager) calcHwInferBatchCount(dynamicBatchSize uint16) (uint16, error) {
	batchCount := uint16(math.MaxUint16)
	found := false
	for _, layer := range m.meta.AllLayerInfos() {
		if layer.Kind != vdma.LayerKindBoundary {
			continue
		}
		channel, ok := m.boundary[layer.Name]
		if !ok {
			return 0, fmt.Errorf("boundary layer %q has no channel: %w", layer.Name, ErrNotFound)
		}
		groupSize := layer.TransferSize() * uint32(dynamicBatchSize)
		transfers := channel.DescList().MaxTransfers(groupSize)
		if transfers == 0 {
			return 0, fmt.Errorf("ring of stream %q cannot hold one batch of %d frames: %w",
				layer.Name, dynamicBatchSize, ErrInvalidArgument)
		}
		if transfers < batchCount {
			batchCount = transfers
		}
		found = true
	}
	if !found {
		return 0, fmt.Errorf("core-op %q has no boundary layers: %w", m.meta.Name(), ErrNotFound)
	}
	return batchCount, nil
}

// RunHwOnlyInfer runs one firmware-driven inference with host buffers
// pre-programmed for the largest number of dynamic batches the rings can
// hold. The firmware paces itself on a device interrupt raised by the
// last descriptor of each batch-sized transfer group; the host only
// waits and collects the cycle count. The device keeps referencing the
// mapped buffers after the run, so they stay mapped until Release.
func (m *Manager) RunHwOnlyInfer(dynamicBatchSize uint16) (HwInferResults, error) {
	m.Lock()
	defer m.Unlock()

	if !m.configured {
		return HwInferResults{}, fmt.Errorf("core-op %q is not configured: %w",
			m.meta.Name(), ErrInvalidOperation)
	}

	configuredBatch := m.params.BatchSize
	if configuredBatch == metadata.BatchSizeUnspecified {
		configuredBatch = metadata.DefaultActualBatchSize
	}
	if dynamicBatchSize == 0 || dynamicBatchSize > configuredBatch {
		return HwInferResults{}, fmt.Errorf("dynamic batch size %d outside the configured range 1..%d: %w",
			dynamicBatchSize, configuredBatch, ErrInvalidArgument)
	}

	batchCount, err := m.calcHwInferBatchCount(dynamicBatchSize)
	if err != nil {
		return HwInferResults{}, err
	}
	framesPerChannel := uint32(dynamicBatchSize) * uint32(batchCount)

	var buffers []*driver.MappedBuffer
	release := func() error {
		var errs *multierror.Error
		for _, buffer := range buffers {
			errs = multierror.Append(errs, buffer.Release())
		}
		return errs.ErrorOrNil()
	}

	var channelsInfo []control.HwInferChannelInfo
	for _, layer := range m.meta.AllLayerInfos() {
		if layer.Kind != vdma.LayerKindBoundary {
			continue
		}
		channel := m.boundary[layer.Name]
		descList := channel.DescList()
		transferSize := layer.TransferSize()

		buffer, err := driver.AllocateMappedBuffer(m.drv,
			uint64(transferSize)*uint64(framesPerChannel), dmaDirection(layer.Direction))
		if err != nil {
			errs := multierror.Append(err, release())
			return HwInferResults{}, errs.ErrorOrNil()
		}
		buffers = append(buffers, buffer)

		if err := descList.Bind(buffer, channel.ID(), 0); err != nil {
			errs := multierror.Append(err, release())
			return HwInferResults{}, errs.ErrorOrNil()
		}
		perFrame := descList.DescriptorsInBuffer(uint64(transferSize))
		for batch := uint16(0); batch < batchCount; batch++ {
			for frame := uint16(0); frame < dynamicBatchSize; frame++ {
				domain := driver.InterruptsDomainNone
				if frame == dynamicBatchSize-1 {
					domain = driver.InterruptsDomainDevice
				}
				offset := (uint32(batch)*uint32(dynamicBatchSize) + uint32(frame)) * perFrame
				if _, err := descList.ProgramSingleTransfer(transferSize, offset, domain); err != nil {
					errs := multierror.Append(err, release())
					return HwInferResults{}, errs.ErrorOrNil()
				}
			}
		}

		channelsInfo = append(channelsInfo, control.HwInferChannelInfo{
			Channel:    channel.ID(),
			DescsCount: perFrame * framesPerChannel,
		})
	}

	if err := m.client.StartHwOnlyInfer(batchCount, channelsInfo); err != nil {
		errs := multierror.Append(err, release())
		return HwInferResults{}, errs.ErrorOrNil()
	}

	m.hwInferWait(DefaultHwInferWait)

	result, err := m.client.StopHwOnlyInfer()
	if err != nil {
		errs := multierror.Append(err, release())
		return HwInferResults{}, errs.ErrorOrNil()
	}
	m.hwInferBuffers = append(m.hwInferBuffers, buffers...)

	results := m.hwInferStats(dynamicBatchSize, batchCount, result)
	log.Info("hw-only infer of core-op %q: %d frames in %s, %.2f fps, %.3f Gbit/s",
		m.meta.Name(), results.FramesCount, results.Duration, results.FPS, results.BandwidthGbps)
	return results, nil
}

// hwInferStats derives throughput figures from the firmware cycle count.
func (m *Manager) hwInferStats(dynamicBatchSize uint16, batchCount uint16,
	result control.HwInferResult) HwInferResults {
	results := HwInferResults{
		BatchCount:  batchCount,
		FramesCount: uint32(dynamicBatchSize) * uint32(batchCount),
		InferCycles: result.InferCycles,
		Duration:    time.Duration(result.InferCycles * nanosecondsPerHwCycle),
	}
	seconds := results.Duration.Seconds()
	if seconds > 0 {
		results.FPS = float64(results.FramesCount) / seconds
		totalBytes := m.meta.TotalTransferSize() * uint64(results.FramesCount)
		results.BandwidthGbps = float64(totalBytes) * 8 / seconds / 1e9
	}

	hwInferFps.WithLabelValues(m.meta.Name()).Set(results.FPS)
	hwInferBandwidth.WithLabelValues(m.meta.Name()).Set(results.BandwidthGbps)
	return results
}
