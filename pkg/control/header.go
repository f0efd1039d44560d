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

// Package control implements the firmware control-plane byte contracts and
// the client used to drive the device scheduler.
package control

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// MaxNetworksPerHeader is the firmware limit on the batch-size table.
const MaxNetworksPerHeader = 8

// ApplicationHeaderSize is the wire size of ApplicationHeader.
const ApplicationHeaderSize = 4 + 2*MaxNetworksPerHeader + 2

// ApplicationHeader is the per-core-op descriptor handed to the firmware
// when the unit is configured.
type ApplicationHeader struct {
	// DynamicContextsCount excludes the activation and preliminary
	// contexts.
	DynamicContextsCount uint8
	PreliminaryRunAsap   bool
	NetworksCount        uint8
	// BatchSizes is indexed by network index. Entries past NetworksCount
	// stay zero.
	BatchSizes    [MaxNetworksPerHeader]uint16
	CsmBufferSize uint16
}

// Pack serializes the header into its little-endian firmware layout.
func (h *ApplicationHeader) Pack() ([]byte, error) {
	if h.NetworksCount > MaxNetworksPerHeader {
		return nil, errors.Errorf("control: %d networks exceed the header limit of %d",
			h.NetworksCount, MaxNetworksPerHeader)
	}

	buf := make([]byte, ApplicationHeaderSize)
	buf[0] = h.DynamicContextsCount
	if h.PreliminaryRunAsap {
		buf[1] = 1
	}
	// buf[2] is the validation-features byte, permanently disabled.
	buf[3] = h.NetworksCount
	for i, size := range h.BatchSizes {
		binary.LittleEndian.PutUint16(buf[4+2*i:], size)
	}
	binary.LittleEndian.PutUint16(buf[4+2*MaxNetworksPerHeader:], h.CsmBufferSize)
	return buf, nil
}
