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

package driver

import "sync"

// Fake is an in-memory Driver for tests and offline tooling. It hands out
// monotonically increasing handles and records descriptor programming.
type Fake struct {
	sync.Mutex
	Engines     uint8
	Type        DmaType
	MaxPageSize uint16

	nextDescList DescListHandle
	nextBuffer   BufferHandle
	descLists    map[DescListHandle]FakeDescList
	Programmed   []ProgramParams
	Unmapped     int
}

// FakeDescList records one descriptor list created through the fake.
type FakeDescList struct {
	DescCount uint32
	PageSize  uint16
	Circular  bool
	Released  bool
}

// NewFake returns a fake single-engine PCIe driver with default page limits.
func NewFake() *Fake {
	return &Fake{
		Engines:     1,
		Type:        DmaTypePcie,
		MaxPageSize: DefaultDescPageSize,
		descLists:   make(map[DescListHandle]FakeDescList),
	}
}

func (f *Fake) DmaEngineCount() uint8 {
	return f.Engines
}

func (f *Fake) DmaType() DmaType {
	return f.Type
}

func (f *Fake) DescMaxPageSize() uint16 {
	return f.MaxPageSize
}

func (f *Fake) CreateDescList(descCount uint32, pageSize uint16, circular bool) (DescListHandle, error) {
	f.Lock()
	defer f.Unlock()
	f.nextDescList++
	f.descLists[f.nextDescList] = FakeDescList{
		DescCount: descCount,
		PageSize:  pageSize,
		Circular:  circular,
	}
	return f.nextDescList, nil
}

func (f *Fake) ReleaseDescList(handle DescListHandle) error {
	f.Lock()
	defer f.Unlock()
	if dl, ok := f.descLists[handle]; ok {
		dl.Released = true
		f.descLists[handle] = dl
	}
	return nil
}

func (f *Fake) ProgramDescList(params ProgramParams) (uint32, error) {
	f.Lock()
	defer f.Unlock()
	f.Programmed = append(f.Programmed, params)
	dl := f.descLists[params.Handle]
	if dl.PageSize == 0 {
		dl.PageSize = DefaultDescPageSize
	}
	descs := (params.TransferSize + uint32(dl.PageSize) - 1) / uint32(dl.PageSize)
	return descs, nil
}

func (f *Fake) MapBuffer(addr uintptr, size uint64, direction DmaDirection) (BufferHandle, error) {
	f.Lock()
	defer f.Unlock()
	f.nextBuffer++
	return f.nextBuffer, nil
}

func (f *Fake) UnmapBuffer(handle BufferHandle) error {
	f.Lock()
	defer f.Unlock()
	f.Unmapped++
	return nil
}

// DescList returns the recorded state of a created descriptor list.
func (f *Fake) DescList(handle DescListHandle) (FakeDescList, bool) {
	f.Lock()
	defer f.Unlock()
	dl, ok := f.descLists[handle]
	return dl, ok
}
