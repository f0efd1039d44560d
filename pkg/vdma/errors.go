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

package vdma

import "fmt"

var (
	// ErrOutOfChannels is returned when an engine has no free channel left
	// in the requested direction.
	ErrOutOfChannels = fmt.Errorf("vdma: out of DMA channels")
	// ErrNotFound is returned for lookups of unknown identifiers.
	ErrNotFound = fmt.Errorf("vdma: not found")
	// ErrInvalidArgument is returned for out-of-range sizes and counts.
	ErrInvalidArgument = fmt.Errorf("vdma: invalid argument")
	// ErrStreamAborted is the benign completion outcome of a transfer on a
	// stream aborted by the user.
	ErrStreamAborted = fmt.Errorf("vdma: stream aborted by user")
	// ErrStreamNotActivated is the benign completion outcome of a transfer
	// on a stream that is not activated.
	ErrStreamNotActivated = fmt.Errorf("vdma: stream not activated")
)
