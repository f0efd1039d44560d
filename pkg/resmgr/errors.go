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
)

var (
	// ErrInvalidArgument marks requests with out-of-range or inconsistent
	// arguments.
	ErrInvalidArgument = fmt.Errorf("resmgr: invalid argument")
	// ErrInvalidOperation marks requests that are not valid in the
	// manager's current state.
	ErrInvalidOperation = fmt.Errorf("resmgr: invalid operation")
	// ErrNotFound marks lookups of resources that do not exist.
	ErrNotFound = fmt.Errorf("resmgr: not found")
	// ErrExhausted marks requests that exceed a fixed resource capacity.
	ErrExhausted = fmt.Errorf("resmgr: resource exhausted")
	// ErrInternal marks conditions that indicate a bug in the runtime or
	// the compiled unit.
	ErrInternal = fmt.Errorf("resmgr: internal error")
)
