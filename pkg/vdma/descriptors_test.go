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

	"github.com/stretchr/testify/require"

	"github.com/edgeaccel/accelrt/pkg/driver"
	"github.com/edgeaccel/accelrt/pkg/vdma"
)

func TestCreateDescriptorListValidation(t *testing.T) {
	drv := driver.NewFake()

	_, err := vdma.CreateDescriptorList(drv, 0, driver.DefaultDescPageSize, false)
	require.ErrorIs(t, err, vdma.ErrInvalidArgument)

	_, err = vdma.CreateDescriptorList(drv, 24, driver.DefaultDescPageSize, false)
	require.ErrorIs(t, err, vdma.ErrInvalidArgument, "non-power-of-two count accepted")

	_, err = vdma.CreateDescriptorList(drv, driver.MaxDescsCount*2, driver.DefaultDescPageSize, false)
	require.ErrorIs(t, err, vdma.ErrInvalidArgument)

	dl, err := vdma.CreateDescriptorList(drv, 16, driver.DefaultDescPageSize, true)
	require.NoError(t, err)
	require.Equal(t, uint32(16), dl.DescCount())
	require.NoError(t, dl.Release())
}

func TestMaxTransfers(t *testing.T) {
	drv := driver.NewFake()

	dl, err := vdma.CreateDescriptorList(drv, 16, 512, true)
	require.NoError(t, err)

	// One transfer per descriptor, minus the reserved descriptor.
	require.Equal(t, uint16(15), dl.MaxTransfers(512))
	// Two descriptors per transfer.
	require.Equal(t, uint16(7), dl.MaxTransfers(1024))
	require.Equal(t, uint16(0), dl.MaxTransfers(0))
}

func TestDescBufferSizesForSingleTransfer(t *testing.T) {
	drv := driver.NewFake()

	pageSize, descCount, err := vdma.DescBufferSizesForSingleTransfer(drv, 2, 4, 512)
	require.NoError(t, err)
	require.Equal(t, uint16(driver.MinDescPageSize), pageSize)
	// 8 descriptors per transfer, 2 transfers plus the reserved
	// descriptor, rounded to 32.
	require.Equal(t, uint32(32), descCount)

	// A transfer too large for the maximum ring is rejected.
	_, _, err = vdma.DescBufferSizesForSingleTransfer(drv, 1024,
		1024, driver.MaxDescsCount*driver.DefaultDescPageSize)
	require.ErrorIs(t, err, vdma.ErrInvalidArgument)
}

func TestProgramSingleTransferBounds(t *testing.T) {
	drv := driver.NewFake()

	dl, err := vdma.CreateDescriptorList(drv, 16, 512, false)
	require.NoError(t, err)

	// 4 descriptors starting at 14 overrun a non-circular ring of 16.
	_, err = dl.ProgramSingleTransfer(2048, 14, driver.InterruptsDomainNone)
	require.ErrorIs(t, err, vdma.ErrInvalidArgument)

	programmed, err := dl.ProgramSingleTransfer(2048, 0, driver.InterruptsDomainDevice)
	require.NoError(t, err)
	require.Equal(t, uint32(4), programmed)
}
