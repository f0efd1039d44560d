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

package device

import (
	"sync"

	"github.com/edgeaccel/accelrt/pkg/driver"
)

// Fake is an in-memory Device for tests and offline tooling.
type Fake struct {
	sync.Mutex
	DeviceType Type
	Streams    StreamsInterface
	Resets     []ResetMode

	dispatcher *FakeDispatcher
}

// FakeDispatcher records dispatcher registrations and lets tests inject
// interrupt batches.
type FakeDispatcher struct {
	sync.Mutex
	Started    bool
	Bitmap     driver.ChannelsBitmap
	Timestamps bool
	callback   IrqCallback
}

// NewFake returns a fake PCIe device.
func NewFake() *Fake {
	return &Fake{
		DeviceType: TypePcie,
		Streams:    StreamsInterfacePcie,
		dispatcher: &FakeDispatcher{},
	}
}

func (f *Fake) Type() Type {
	return f.DeviceType
}

func (f *Fake) Reset(mode ResetMode) error {
	f.Lock()
	defer f.Unlock()
	f.Resets = append(f.Resets, mode)
	return nil
}

func (f *Fake) DefaultStreamsInterface() (StreamsInterface, error) {
	return f.Streams, nil
}

func (f *Fake) InterruptsDispatcher() (InterruptsDispatcher, error) {
	return f.dispatcher, nil
}

// Dispatcher returns the fake dispatcher for inspection.
func (f *Fake) Dispatcher() *FakeDispatcher {
	return f.dispatcher
}

func (d *FakeDispatcher) Start(bitmap driver.ChannelsBitmap, enableTimestamps bool,
	callback IrqCallback) error {
	d.Lock()
	defer d.Unlock()
	d.Started = true
	d.Bitmap = bitmap
	d.Timestamps = enableTimestamps
	d.callback = callback
	return nil
}

func (d *FakeDispatcher) Stop() error {
	d.Lock()
	defer d.Unlock()
	d.Started = false
	d.callback = nil
	return nil
}

// Deliver injects an interrupt batch into the registered callback.
func (d *FakeDispatcher) Deliver(batch IrqBatch) {
	d.Lock()
	cb := d.callback
	d.Unlock()
	if cb != nil {
		cb(batch)
	}
}
