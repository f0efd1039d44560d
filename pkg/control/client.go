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

package control

import (
	"encoding/binary"

	"github.com/pkg/errors"

	logger "github.com/edgeaccel/accelrt/pkg/log"
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

// Control opcodes of the firmware scheduler interface.
const (
	OpSetCoreOpHeader uint32 = iota + 0x40
	OpSetContextInfo
	OpEnableCoreOp
	OpResetStateMachine
	OpSetInterContextBatchSize
	OpSetPowerMode
	OpStartHwOnlyInfer
	OpStopHwOnlyInfer
)

// Transport carries one firmware control request and returns its response
// payload.
type Transport interface {
	Exec(opcode uint32, payload []byte) ([]byte, error)
}

// Context types understood by the firmware state machine.
const (
	ContextTypeActivation uint8 = iota
	ContextTypePreliminary
	ContextTypeDynamic
)

// HwInferChannelInfo describes one boundary channel taking part in a
// hardware-only inference.
type HwInferChannelInfo struct {
	Channel    vdma.ChannelID
	DescsCount uint32
}

// HwInferResult is the firmware-reported outcome of a hardware-only
// inference.
type HwInferResult struct {
	InferCycles uint64
}

var log = logger.Get("control")

// Client drives the firmware scheduler over a Transport.
type Client struct {
	transport Transport
}

// NewClient returns a control client over the given transport.
func NewClient(transport Transport) *Client {
	return &Client{transport: transport}
}

// SetCoreOpHeader hands the core-op descriptor to the firmware.
func (c *Client) SetCoreOpHeader(header *ApplicationHeader) error {
	payload, err := header.Pack()
	if err != nil {
		return err
	}
	log.Debug("setting core-op header, %d dynamic contexts, %d networks",
		header.DynamicContextsCount, header.NetworksCount)
	_, err = c.transport.Exec(OpSetCoreOpHeader, payload)
	return errors.Wrap(err, "control: set core-op header")
}

// SetContextInfo hands one context's serialized action sequence to the
// firmware.
func (c *Client) SetContextInfo(contextType uint8, contextIndex uint8, sequence []byte) error {
	payload := make([]byte, 4+len(sequence))
	payload[0] = contextType
	payload[1] = contextIndex
	binary.LittleEndian.PutUint16(payload[2:], uint16(len(sequence)))
	copy(payload[4:], sequence)

	log.Debug("setting context info, type %d index %d, %d sequence bytes",
		contextType, contextIndex, len(sequence))
	_, err := c.transport.Exec(OpSetContextInfo, payload)
	return errors.Wrapf(err, "control: set context %d info", contextIndex)
}

// EnableCoreOp starts the firmware state machine for the configured
// core-op.
func (c *Client) EnableCoreOp(dynamicBatchSize uint16, batchCount uint16) error {
	var payload [4]byte
	binary.LittleEndian.PutUint16(payload[0:], dynamicBatchSize)
	binary.LittleEndian.PutUint16(payload[2:], batchCount)

	log.Info("enabling core-op, batch size %d, batch count %d", dynamicBatchSize, batchCount)
	_, err := c.transport.Exec(OpEnableCoreOp, payload[:])
	return errors.Wrap(err, "control: enable core-op")
}

// ResetStateMachine returns the firmware state machine to its idle state.
func (c *Client) ResetStateMachine(keepNNCoreDisabled bool) error {
	var payload [1]byte
	if keepNNCoreDisabled {
		payload[0] = 1
	}
	log.Info("resetting state machine")
	_, err := c.transport.Exec(OpResetStateMachine, payload[:])
	return errors.Wrap(err, "control: reset state machine")
}

// SetInterContextChannelsDynamicBatchSize updates the batch size of the
// active core-op's inter-context channels.
func (c *Client) SetInterContextChannelsDynamicBatchSize(batchSize uint16) error {
	var payload [2]byte
	binary.LittleEndian.PutUint16(payload[:], batchSize)
	_, err := c.transport.Exec(OpSetInterContextBatchSize, payload[:])
	return errors.Wrap(err, "control: set inter-context batch size")
}

// SetPowerMode selects the device power profile.
func (c *Client) SetPowerMode(mode uint8) error {
	_, err := c.transport.Exec(OpSetPowerMode, []byte{mode})
	return errors.Wrap(err, "control: set power mode")
}

// StartHwOnlyInfer launches a firmware-driven inference over boundary
// channels prepared by the host.
func (c *Client) StartHwOnlyInfer(batchCount uint16, channels []HwInferChannelInfo) error {
	payload := make([]byte, 3+5*len(channels))
	binary.LittleEndian.PutUint16(payload[0:], batchCount)
	payload[2] = uint8(len(channels))
	for i, info := range channels {
		off := 3 + 5*i
		payload[off] = info.Channel.Packed()
		binary.LittleEndian.PutUint32(payload[off+1:], info.DescsCount)
	}

	log.Info("starting hw-only infer, batch count %d, %d channels", batchCount, len(channels))
	_, err := c.transport.Exec(OpStartHwOnlyInfer, payload)
	return errors.Wrap(err, "control: start hw-only infer")
}

// StopHwOnlyInfer halts a running hardware-only inference and returns the
// firmware-reported result.
func (c *Client) StopHwOnlyInfer() (HwInferResult, error) {
	resp, err := c.transport.Exec(OpStopHwOnlyInfer, nil)
	if err != nil {
		return HwInferResult{}, errors.Wrap(err, "control: stop hw-only infer")
	}
	if len(resp) < 8 {
		return HwInferResult{}, errors.Errorf("control: short stop response, %d bytes", len(resp))
	}
	return HwInferResult{InferCycles: binary.LittleEndian.Uint64(resp)}, nil
}
