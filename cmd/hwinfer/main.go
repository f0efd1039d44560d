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

// hwinfer is an executable that configures a core-op described in a YAML
// file against the loopback backend and runs a hardware-only inference,
// reporting the throughput figures. It exercises the full configuration
// flow without device hardware.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"

	"github.com/edgeaccel/accelrt/pkg/control"
	"github.com/edgeaccel/accelrt/pkg/device"
	"github.com/edgeaccel/accelrt/pkg/driver"
	"github.com/edgeaccel/accelrt/pkg/metadata"
	"github.com/edgeaccel/accelrt/pkg/metrics"
	"github.com/edgeaccel/accelrt/pkg/resmgr"
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

type logrusFormatter struct{}

func (f *logrusFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return fmt.Appendf(nil, "hwinfer: %s %s\n", entry.Level, entry.Message), nil
}

var (
	log *logrus.Logger
)

// layerConfig is one stream layer in the YAML description.
type layerConfig struct {
	Name                 string `json:"name"`
	Network              string `json:"network"`
	Direction            string `json:"direction"`
	StreamIndex          uint8  `json:"streamIndex"`
	EngineIndex          uint8  `json:"engineIndex"`
	PeriphBytesPerBuffer uint32 `json:"periphBytesPerBuffer"`
	CoreBuffersPerFrame  uint32 `json:"coreBuffersPerFrame"`
	HwFrameSize          uint32 `json:"hwFrameSize"`
}

// coreOpConfig is the YAML description of one core-op.
type coreOpConfig struct {
	Name           string        `json:"name"`
	Networks       []string      `json:"networks"`
	Layers         []layerConfig `json:"layers"`
	ConfigChannels []uint8       `json:"configChannels"`
}

type config struct {
	CoreOp    coreOpConfig             `json:"coreOp"`
	Configure metadata.ConfigureParams `json:"configure"`
}

func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &config{}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func buildMetadata(cfg *coreOpConfig) (*metadata.CoreOpMetadata, error) {
	var layers []metadata.LayerInfo
	for _, lc := range cfg.Layers {
		var direction metadata.StreamDirection
		switch lc.Direction {
		case "h2d":
			direction = metadata.H2DStream
		case "d2h":
			direction = metadata.D2HStream
		default:
			return nil, fmt.Errorf("layer %q: unknown direction %q", lc.Name, lc.Direction)
		}
		hwFrameSize := lc.HwFrameSize
		if hwFrameSize == 0 {
			hwFrameSize = lc.PeriphBytesPerBuffer * lc.CoreBuffersPerFrame
		}
		layers = append(layers, metadata.LayerInfo{
			Name:                 lc.Name,
			NetworkName:          lc.Network,
			Kind:                 vdma.LayerKindBoundary,
			StreamIndex:          lc.StreamIndex,
			Direction:            direction,
			EngineIndex:          lc.EngineIndex,
			PeriphBytesPerBuffer: lc.PeriphBytesPerBuffer,
			CoreBuffersPerFrame:  lc.CoreBuffersPerFrame,
			HwFrameSize:          hwFrameSize,
		})
	}

	var configChannels []metadata.ConfigChannelInfo
	for _, engine := range cfg.ConfigChannels {
		configChannels = append(configChannels, metadata.ConfigChannelInfo{EngineIndex: engine})
	}

	return metadata.NewCoreOpMetadata(cfg.Name, cfg.Networks, layers, configChannels,
		metadata.SupportedFeatures{}), nil
}

func main() {
	log = logrus.StandardLogger()
	log.SetFormatter(&logrusFormatter{})

	configFlag := flag.String("config", "", "Path to the core-op YAML description")
	batchFlag := flag.Uint("batch", 1, "Dynamic batch size of the run")
	waitFlag := flag.Duration("wait", time.Second, "How long to leave the inference to the firmware")
	metricsFlag := flag.Bool("metrics", false, "Dump collected metrics after the run")
	verboseFlag := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	log.SetLevel(logrus.InfoLevel)
	if *verboseFlag {
		log.SetLevel(logrus.DebugLevel)
	}

	if *configFlag == "" {
		log.Error("no -config given")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	meta, err := buildMetadata(&cfg.CoreOp)
	if err != nil {
		log.Fatalf("invalid core-op description: %v", err)
	}

	drv := driver.NewFake()
	dev := device.NewFake()
	transport := control.NewFakeTransport()
	client := control.NewClient(transport)

	// The loopback backend reports the wait time as spent inference
	// cycles so the throughput math has something to chew on.
	cycles := make([]byte, 8)
	binary.LittleEndian.PutUint64(cycles, uint64(waitFlag.Nanoseconds()/5))
	transport.Responses[control.OpStopHwOnlyInfer] = cycles

	wait := *waitFlag
	mgr, err := resmgr.NewManager(drv, dev, client, meta, cfg.Configure,
		resmgr.WithHwInferWait(func(time.Duration) { time.Sleep(wait) }))
	if err != nil {
		log.Fatalf("failed to create resource manager: %v", err)
	}
	defer func() {
		if err := mgr.Release(); err != nil {
			log.Warnf("release: %v", err)
		}
	}()

	for _, layer := range meta.AllLayerInfos() {
		if _, err := mgr.CreateBoundaryChannel(layer); err != nil {
			log.Fatalf("failed to create boundary channel for %q: %v", layer.Name, err)
		}
	}
	if _, err := mgr.AddNewContext(control.ContextTypePreliminary, nil); err != nil {
		log.Fatalf("failed to add preliminary context: %v", err)
	}
	if err := mgr.Configure(); err != nil {
		log.Fatalf("failed to configure: %v", err)
	}

	results, err := mgr.RunHwOnlyInfer(uint16(*batchFlag))
	if err != nil {
		log.Fatalf("hw-only infer failed: %v", err)
	}

	fmt.Printf("core-op:     %s\n", cfg.CoreOp.Name)
	fmt.Printf("batch count: %d\n", results.BatchCount)
	fmt.Printf("frames:      %d\n", results.FramesCount)
	fmt.Printf("cycles:      %d\n", results.InferCycles)
	fmt.Printf("duration:    %s\n", results.Duration)
	fmt.Printf("fps:         %.2f\n", results.FPS)
	fmt.Printf("bandwidth:   %.3f Gbit/s\n", results.BandwidthGbps)

	if *metricsFlag {
		families, err := metrics.Gather()
		if err != nil {
			log.Warnf("failed to gather metrics: %v", err)
			return
		}
		for _, family := range families {
			fmt.Printf("%s: %s\n", family.GetName(), family.String())
		}
	}
}
