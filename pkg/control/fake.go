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

// FakeCall is one recorded transport request.
type FakeCall struct {
	Opcode  uint32
	Payload []byte
}

// FakeTransport records control requests for tests. Responses and errors
// can be staged per opcode.
type FakeTransport struct {
	Calls     []FakeCall
	Responses map[uint32][]byte
	Errors    map[uint32]error
}

// NewFakeTransport returns an empty fake transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		Responses: map[uint32][]byte{},
		Errors:    map[uint32]error{},
	}
}

// Exec records the request and returns any staged response or error.
func (f *FakeTransport) Exec(opcode uint32, payload []byte) ([]byte, error) {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	f.Calls = append(f.Calls, FakeCall{Opcode: opcode, Payload: buf})

	if err := f.Errors[opcode]; err != nil {
		return nil, err
	}
	return f.Responses[opcode], nil
}

// CallsTo returns the recorded requests with the given opcode.
func (f *FakeTransport) CallsTo(opcode uint32) []FakeCall {
	var calls []FakeCall
	for _, call := range f.Calls {
		if call.Opcode == opcode {
			calls = append(calls, call)
		}
	}
	return calls
}
