//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
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
//
package mu

import (
	"context"

	"github.com/cesanta/nfp-debug-tools/nfp/cpp"
)

// Engine provides access to island-local memory-unit targets, in particular
// the cluster target memory (CTM). Addresses are byte addresses local to the
// island, word-aligned. Word reads and writes use the atomic engine and are
// safe to issue while cores in the island are executing; the bulk forms are
// faster but make no atomicity promise.
type Engine interface {
	ReadWord(ctx context.Context, island cpp.Island, addr uint32) (uint32, error)
	WriteWord(ctx context.Context, island cpp.Island, addr uint32, value uint32) error
	// Read reads count consecutive 32-bit words starting at addr (bulk engine).
	Read(ctx context.Context, island cpp.Island, addr uint32, count int) ([]uint32, error)
	// Write writes the given words starting at addr (bulk engine).
	Write(ctx context.Context, island cpp.Island, addr uint32, words []uint32) error
}
