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

// Package resmgr implements the per-core-op resource manager: channel
// allocation, per-context resources, boundary and inter-context transport,
// and the firmware configuration flow.
package resmgr

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/edgeaccel/accelrt/pkg/control"
	"github.com/edgeaccel/accelrt/pkg/device"
	"github.com/edgeaccel/accelrt/pkg/driver"
	logger "github.com/edgeaccel/accelrt/pkg/log"
	"github.com/edgeaccel/accelrt/pkg/metadata"
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

const (
	// MinActiveTransfersScale scales the configured batch size to the
	// minimum number of in-flight transfers a boundary ring must hold.
	MinActiveTransfersScale = 2
	// MaxActiveTransfersScale scales the configured batch size to the
	// in-flight transfer count the ring is sized toward.
	MaxActiveTransfersScale = 4
	// MaxContexts is the firmware limit on contexts per core-op.
	MaxContexts = 255
)

var log = logger.Get("resmgr")

// ManagerOption is an opaque option for NewManager.
type ManagerOption func(*Manager)

// WithForceMaxDescCount sizes every boundary descriptor ring to the
// transport maximum instead of the batch-derived size.
func WithForceMaxDescCount() ManagerOption {
	return func(m *Manager) {
		m.forceMaxDescCount = true
	}
}

// WithHwInferWait replaces the blocking wait used by hardware-only
// inference runs.
func WithHwInferWait(wait func(time.Duration)) ManagerOption {
	return func(m *Manager) {
		m.hwInferWait = wait
	}
}

// Manager owns every device resource of one configured core-op.
type Manager struct {
	sync.RWMutex

	drv    driver.Driver
	dev    device.Device
	client *control.Client
	meta   *metadata.CoreOpMetadata
	params metadata.ConfigureParams

	allocator      *vdma.ChannelAllocator
	configChannels []vdma.ChannelID
	contexts       []*ContextResources
	boundary       map[string]*vdma.BoundaryChannel
	interContext   map[InterContextBufferKey]*InterContextBuffer
	meters         map[string]*vdma.LatencyMeter

	hwInferBuffers []*driver.MappedBuffer

	configured        bool
	dispatcherRunning bool
	forceMaxDescCount bool
	hwInferWait       func(time.Duration)
}

// NewManager creates a resource manager for one core-op. Configuration
// channels are allocated up front so every context shares the same ids,
// and latency meters are created best-effort for networks whose stream
// topology supports hardware measurement.
func NewManager(drv driver.Driver, dev device.Device, client *control.Client,
	meta *metadata.CoreOpMetadata, params metadata.ConfigureParams,
	options ...ManagerOption) (*Manager, error) {
	engines := drv.DmaEngineCount()
	if engines == 0 || engines > driver.MaxEngines {
		return nil, fmt.Errorf("transport reports %d DMA engines: %w", engines, ErrInvalidArgument)
	}

	m := &Manager{
		drv:          drv,
		dev:          dev,
		client:       client,
		meta:         meta,
		params:       params,
		allocator:    vdma.NewChannelAllocator(engines),
		boundary:     make(map[string]*vdma.BoundaryChannel),
		interContext: make(map[InterContextBufferKey]*InterContextBuffer),
		meters:       make(map[string]*vdma.LatencyMeter),
		hwInferWait:  time.Sleep,
	}
	for _, option := range options {
		option(m)
	}

	for i, info := range meta.ConfigChannelsInfo() {
		ident := vdma.LayerIdentifier{
			Kind:  vdma.LayerKindConfig,
			Name:  meta.Name(),
			Index: uint8(i),
		}
		id, err := m.getAvailableChannelID(ident, driver.DmaToDevice, info.EngineIndex)
		if err != nil {
			return nil, fmt.Errorf("config channel %d: %w", i, err)
		}
		m.configChannels = append(m.configChannels, id)
	}

	if params.MeasureLatency {
		m.createLatencyMeters()
	}

	log.Info("created resource manager for core-op %q (%d networks, %d config channels)",
		meta.Name(), len(meta.NetworkNames()), len(m.configChannels))
	return m, nil
}

// getAvailableChannelID allocates a channel for the identifier. PCIe
// transports expose a single DMA engine, so the engine index the model
// was compiled for is remapped onto the default engine there.
func (m *Manager) getAvailableChannelID(ident vdma.LayerIdentifier,
	direction driver.DmaDirection, engineIndex uint8) (vdma.ChannelID, error) {
	if m.drv.DmaType() == driver.DmaTypePcie {
		engineIndex = vdma.DefaultEngineIndex
	}
	return m.allocator.GetAvailableChannelID(ident, direction, engineIndex)
}

// createLatencyMeters sets up hardware latency measurement per network.
// Networks whose topology cannot be measured are skipped with a log line
// rather than failing configuration.
func (m *Manager) createLatencyMeters() {
	for _, network := range m.meta.NetworkNames() {
		var h2dCount int
		var d2hStreams []string
		measurable := true
		for _, layer := range m.meta.LayerInfos(network) {
			if layer.Kind != vdma.LayerKindBoundary {
				continue
			}
			switch layer.Direction {
			case metadata.H2DStream:
				h2dCount++
			case metadata.D2HStream:
				if layer.FormatOrder == metadata.FormatOrderNMS {
					measurable = false
				}
				d2hStreams = append(d2hStreams, layer.Name)
			}
		}
		if !measurable {
			log.Warn("skipping latency measurement for network %q: NMS output stream", network)
			continue
		}
		if h2dCount != 1 {
			log.Warn("skipping latency measurement for network %q: %d input streams",
				network, h2dCount)
			continue
		}
		m.meters[network] = vdma.NewLatencyMeter(network, d2hStreams)
	}
}

// NetworkBatchSize returns the effective batch size of the named network,
// resolving an unspecified configuration to the runtime default.
func (m *Manager) NetworkBatchSize(networkName string) (uint16, error) {
	found := false
	for _, name := range m.meta.NetworkNames() {
		if name == networkName {
			found = true
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("network %q: %w", networkName, ErrNotFound)
	}

	size := m.params.NetworkBatchSize(networkName)
	if size == metadata.BatchSizeUnspecified {
		size = metadata.DefaultActualBatchSize
	}
	return size, nil
}

// ControlCoreOpHeader builds the firmware descriptor of the configured
// core-op.
func (m *Manager) ControlCoreOpHeader() (*control.ApplicationHeader, error) {
	m.RLock()
	defer m.RUnlock()
	return m.controlCoreOpHeader()
}

func (m *Manager) controlCoreOpHeader() (*control.ApplicationHeader, error) {
	names := m.meta.NetworkNames()
	if len(names) > control.MaxNetworksPerHeader {
		return nil, fmt.Errorf("%d networks exceed the firmware limit of %d: %w",
			len(names), control.MaxNetworksPerHeader, ErrInvalidArgument)
	}

	header := &control.ApplicationHeader{
		DynamicContextsCount: m.dynamicContextCount(),
		PreliminaryRunAsap:   m.meta.SupportedFeatures().PreliminaryRunAsap,
		NetworksCount:        uint8(len(names)),
		CsmBufferSize:        uint16(driver.DefaultDescPageSize),
	}
	for i, name := range names {
		size, err := m.NetworkBatchSize(name)
		if err != nil {
			return nil, err
		}
		header.BatchSizes[i] = size
	}
	return header, nil
}

func (m *Manager) dynamicContextCount() uint8 {
	var count uint8
	for _, ctx := range m.contexts {
		if ctx.Type() == control.ContextTypeDynamic {
			count++
		}
	}
	return count
}

// AddNewContext creates the resources of the next context. Contexts are
// indexed in creation order.
func (m *Manager) AddNewContext(contextType uint8,
	configBuffers []metadata.ConfigBufferInfo) (*ContextResources, error) {
	m.Lock()
	defer m.Unlock()

	if len(m.contexts) >= MaxContexts {
		return nil, fmt.Errorf("core-op already holds %d contexts: %w", MaxContexts, ErrExhausted)
	}

	ctx, err := NewContextResources(m.drv, contextType, uint8(len(m.contexts)),
		m.configChannels, configBuffers)
	if err != nil {
		return nil, err
	}
	m.contexts = append(m.contexts, ctx)
	return ctx, nil
}

// Contexts returns the contexts created so far, in index order.
func (m *Manager) Contexts() []*ContextResources {
	m.RLock()
	defer m.RUnlock()
	return m.contexts
}

// CreateBoundaryChannel allocates a DMA channel and descriptor ring for a
// host-facing stream layer.
func (m *Manager) CreateBoundaryChannel(layer metadata.LayerInfo) (*vdma.BoundaryChannel, error) {
	m.Lock()
	defer m.Unlock()

	if _, exists := m.boundary[layer.Name]; exists {
		return nil, fmt.Errorf("boundary channel for stream %q already exists: %w",
			layer.Name, ErrInvalidOperation)
	}

	direction := dmaDirection(layer.Direction)
	id, err := m.getAvailableChannelID(layer.Identifier(), direction, layer.EngineIndex)
	if err != nil {
		return nil, err
	}

	batchSize, err := m.NetworkBatchSize(layer.NetworkName)
	if err != nil {
		return nil, err
	}
	if uint32(batchSize)*MaxActiveTransfersScale > math.MaxUint16 {
		return nil, fmt.Errorf("batch size %d overflows the 16-bit transfer limit: %w",
			batchSize, ErrInvalidArgument)
	}
	minActive := batchSize * MinActiveTransfersScale
	maxActive := batchSize * MaxActiveTransfersScale

	pageSize, descCount, err := vdma.DescBufferSizesForSingleTransfer(m.drv,
		minActive, maxActive, layer.TransferSize())
	if err != nil {
		return nil, fmt.Errorf("ring sizing for stream %q: %w", layer.Name, err)
	}
	if m.forceMaxDescCount {
		descCount = driver.MaxDescsCount
	}

	mode := vdma.ChannelModeBuffered
	if m.params.StreamIsAsync(layer.Name) {
		mode = vdma.ChannelModeAsync
	}

	channel, err := vdma.CreateBoundaryChannel(m.drv, vdma.BoundaryChannelParams{
		ID:           id,
		Direction:    direction,
		StreamName:   layer.Name,
		DescCount:    descCount,
		DescPageSize: pageSize,
		BatchSize:    batchSize,
		Mode:         mode,
		Latency:      m.meters[layer.NetworkName],
	})
	if err != nil {
		errs := multierror.Append(err, m.allocator.FreeChannelIndex(layer.Identifier()))
		return nil, errs.ErrorOrNil()
	}

	m.boundary[layer.Name] = channel
	return channel, nil
}

// BoundaryChannel returns the boundary channel of the named stream.
func (m *Manager) BoundaryChannel(streamName string) (*vdma.BoundaryChannel, error) {
	m.RLock()
	defer m.RUnlock()

	channel, ok := m.boundary[streamName]
	if !ok {
		return nil, fmt.Errorf("no boundary channel for stream %q: %w", streamName, ErrNotFound)
	}
	return channel, nil
}

// BoundaryChannels returns every boundary channel keyed by stream name.
func (m *Manager) BoundaryChannels() map[string]*vdma.BoundaryChannel {
	m.RLock()
	defer m.RUnlock()

	channels := make(map[string]*vdma.BoundaryChannel, len(m.boundary))
	for name, channel := range m.boundary {
		channels[name] = channel
	}
	return channels
}

// CreateInterContextBuffer allocates the buffer and channel pair carrying
// the given producing layer's output to its consuming context.
func (m *Manager) CreateInterContextBuffer(sourceContext uint8,
	layer metadata.LayerInfo) (*InterContextBuffer, error) {
	m.Lock()
	defer m.Unlock()

	key := InterContextBufferKey{SourceContext: sourceContext, StreamIndex: layer.StreamIndex}
	if _, exists := m.interContext[key]; exists {
		return nil, fmt.Errorf("inter-context buffer %d/%d already exists: %w",
			key.SourceContext, key.StreamIndex, ErrInvalidOperation)
	}

	d2hIdent := vdma.LayerIdentifier{
		Kind:  vdma.LayerKindInterContext,
		Name:  layer.Name + "/source",
		Index: layer.StreamIndex,
	}
	d2h, err := m.getAvailableChannelID(d2hIdent, driver.DmaFromDevice, layer.EngineIndex)
	if err != nil {
		return nil, err
	}
	h2dIdent := vdma.LayerIdentifier{
		Kind:  vdma.LayerKindInterContext,
		Name:  layer.Name + "/sink",
		Index: layer.StreamIndex,
	}
	h2d, err := m.getAvailableChannelID(h2dIdent, driver.DmaToDevice, layer.EngineIndex)
	if err != nil {
		errs := multierror.Append(err, m.allocator.FreeChannelIndex(d2hIdent))
		return nil, errs.ErrorOrNil()
	}

	batchSize, err := m.NetworkBatchSize(layer.NetworkName)
	if err != nil {
		return nil, err
	}

	buffer, err := NewInterContextBuffer(m.drv, InterContextBufferParams{
		Key:          key,
		D2HChannel:   d2h,
		H2DChannel:   h2d,
		TransferSize: layer.TransferSize(),
		MaxBatchSize: batchSize,
	})
	if err != nil {
		errs := multierror.Append(err,
			m.allocator.FreeChannelIndex(d2hIdent), m.allocator.FreeChannelIndex(h2dIdent))
		return nil, errs.ErrorOrNil()
	}

	m.interContext[key] = buffer
	return buffer, nil
}

// InterContextBuffer returns the inter-context buffer with the given key.
func (m *Manager) InterContextBuffer(key InterContextBufferKey) (*InterContextBuffer, error) {
	m.RLock()
	defer m.RUnlock()

	buffer, ok := m.interContext[key]
	if !ok {
		return nil, fmt.Errorf("no inter-context buffer %d/%d: %w",
			key.SourceContext, key.StreamIndex, ErrNotFound)
	}
	return buffer, nil
}

// ReadIntermediateBuffer copies out the current contents of an
// intermediate buffer: an inter-context buffer when one exists for the
// key, otherwise the DDR pair buffer of the source context at the key's
// stream index. This is the fallback inspection path for transports
// without a direct device readback channel.
func (m *Manager) ReadIntermediateBuffer(key InterContextBufferKey, out []byte) (int, error) {
	m.RLock()
	defer m.RUnlock()

	if buffer, ok := m.interContext[key]; ok {
		return buffer.Read(out)
	}
	for _, ctx := range m.contexts {
		if ctx.Index() != key.SourceContext {
			continue
		}
		pair, err := ctx.DdrChannelPairByStreamIndex(key.StreamIndex)
		if err != nil {
			break
		}
		return copy(out, pair.Buffer().Data()), nil
	}
	return 0, fmt.Errorf("no intermediate buffer %d/%d: %w",
		key.SourceContext, key.StreamIndex, ErrNotFound)
}

// SetInterContextChannelsDynamicBatchSize reprograms every inter-context
// buffer for the given batch size and propagates it to the firmware.
func (m *Manager) SetInterContextChannelsDynamicBatchSize(batchSize uint16) error {
	m.Lock()
	defer m.Unlock()

	for key, buffer := range m.interContext {
		if err := buffer.Reprogram(m.drv, batchSize); err != nil {
			return fmt.Errorf("reprogramming inter-context buffer %d/%d: %w",
				key.SourceContext, key.StreamIndex, err)
		}
	}
	return m.client.SetInterContextChannelsDynamicBatchSize(batchSize)
}

// FreeChannelIndex releases the channel held by the given layer
// identifier.
func (m *Manager) FreeChannelIndex(ident vdma.LayerIdentifier) error {
	m.Lock()
	defer m.Unlock()
	return m.allocator.FreeChannelIndex(ident)
}

// LatencyMeter returns the latency meter of the named network.
func (m *Manager) LatencyMeter(networkName string) (*vdma.LatencyMeter, error) {
	m.RLock()
	defer m.RUnlock()

	meter, ok := m.meters[networkName]
	if !ok {
		return nil, fmt.Errorf("no latency meter for network %q: %w", networkName, ErrNotFound)
	}
	return meter, nil
}

// PowerMode returns the configured power profile.
func (m *Manager) PowerMode() metadata.PowerMode {
	return m.params.PowerMode
}

// DefaultStreamsInterface returns the device's stream transport.
func (m *Manager) DefaultStreamsInterface() (device.StreamsInterface, error) {
	return m.dev.DefaultStreamsInterface()
}

// Configure hands the core-op descriptor and every context's action
// sequence to the firmware. A manager configures at most once.
func (m *Manager) Configure() error {
	m.Lock()
	defer m.Unlock()

	if m.configured {
		return fmt.Errorf("core-op %q is already configured: %w", m.meta.Name(), ErrInternal)
	}

	for _, ctx := range m.contexts {
		if err := ctx.ValidateEdgeLayers(); err != nil {
			return err
		}
	}

	header, err := m.controlCoreOpHeader()
	if err != nil {
		return err
	}
	if err := m.client.SetCoreOpHeader(header); err != nil {
		return err
	}

	for _, ctx := range m.contexts {
		sequence := m.buildContextSequence(ctx)
		if err := m.client.SetContextInfo(ctx.Type(), ctx.Index(), sequence.Bytes()); err != nil {
			return err
		}
	}

	m.configured = true
	log.Info("configured core-op %q: %d contexts, %d boundary channels",
		m.meta.Name(), len(m.contexts), len(m.boundary))
	return nil
}

// buildContextSequence serializes one context's channel activations, DDR
// pair records and trailing deactivations.
func (m *Manager) buildContextSequence(ctx *ContextResources) *control.SequenceBuilder {
	builder := control.NewSequenceBuilder()

	layers := ctx.EdgeLayers(vdma.LayerKindNotSet, metadata.StreamDirectionAny)
	for _, el := range layers {
		direction := dmaDirection(el.Layer.Direction)
		pageSize := uint16(driver.DefaultDescPageSize)
		if channel, ok := m.boundary[el.Layer.Name]; ok {
			pageSize = channel.DescList().DescPageSize()
		}
		switch el.Layer.Kind {
		case vdma.LayerKindBoundary:
			builder.ActivateBoundaryChannel(el.ChannelID, el.Layer.StreamIndex, direction, pageSize)
		case vdma.LayerKindInterContext:
			builder.ActivateInterContextChannel(el.ChannelID, el.Layer.StreamIndex, direction, pageSize)
		}
	}
	for _, pair := range ctx.DdrChannelPairs() {
		builder.ChannelPairInfo(pair.D2HChannel, pair.H2DChannel)
	}
	for i := len(layers) - 1; i >= 0; i-- {
		builder.DeactivateChannel(layers[i].ChannelID)
	}
	return builder
}

// EnableStateMachine applies the power profile and starts the firmware
// state machine. The manager must be configured first.
func (m *Manager) EnableStateMachine(dynamicBatchSize uint16, batchCount uint16) error {
	m.RLock()
	defer m.RUnlock()

	if !m.configured {
		return fmt.Errorf("core-op %q is not configured: %w", m.meta.Name(), ErrInvalidOperation)
	}
	if err := m.client.SetPowerMode(uint8(m.params.PowerMode)); err != nil {
		return err
	}
	return m.client.EnableCoreOp(dynamicBatchSize, batchCount)
}

// ResetStateMachine returns the firmware to idle. Integrated devices also
// reset the neural network core, which stays disabled until the next
// activation.
func (m *Manager) ResetStateMachine() error {
	integrated := m.dev.Type() == device.TypeIntegrated
	if err := m.client.ResetStateMachine(integrated); err != nil {
		return err
	}
	if integrated {
		return m.dev.Reset(device.ResetModeNNCore)
	}
	return nil
}

// Release frees every resource the manager owns. Release is safe to call
// after partial construction and aggregates the errors it encounters.
func (m *Manager) Release() error {
	m.Lock()
	defer m.Unlock()

	var errs *multierror.Error
	if m.dispatcherRunning {
		errs = multierror.Append(errs, m.stopInterruptsDispatcher())
	}
	for _, channel := range m.boundary {
		errs = multierror.Append(errs, channel.CancelPendingTransfers(), channel.Release())
	}
	for _, buffer := range m.interContext {
		errs = multierror.Append(errs, buffer.Release())
	}
	for _, ctx := range m.contexts {
		errs = multierror.Append(errs, ctx.release())
	}
	for _, buffer := range m.hwInferBuffers {
		errs = multierror.Append(errs, buffer.Release())
	}
	m.hwInferBuffers = nil
	m.boundary = map[string]*vdma.BoundaryChannel{}
	m.interContext = map[InterContextBufferKey]*InterContextBuffer{}
	m.contexts = nil
	return errs.ErrorOrNil()
}

func dmaDirection(d metadata.StreamDirection) driver.DmaDirection {
	if d == metadata.H2DStream {
		return driver.DmaToDevice
	}
	return driver.DmaFromDevice
}
