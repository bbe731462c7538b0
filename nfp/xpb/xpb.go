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
package xpb

import (
	"context"

	"github.com/juju/errors"

	"github.com/cesanta/nfp-debug-tools/nfp/cpp"
)

// Bus provides word access to XPB-mapped CSRs, the register bus behind which
// the per-core RISC-V debug modules live. Addresses are byte addresses local
// to the island. Any error returned by an implementation is a transport
// fault: the caller cannot assume anything about the state of the device
// afterwards.
type Bus interface {
	// Read reads count consecutive 32-bit words starting at addr.
	Read(ctx context.Context, island cpp.Island, addr uint32, count int) ([]uint32, error)
	// Write writes the given words at consecutive addresses starting at addr.
	Write(ctx context.Context, island cpp.Island, addr uint32, words []uint32) error
}

// ReadOne is a convenience wrapper for single-CSR reads.
func ReadOne(ctx context.Context, b Bus, island cpp.Island, addr uint32) (uint32, error) {
	words, err := b.Read(ctx, island, addr, 1)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return words[0], nil
}

// WriteOne is a convenience wrapper for single-CSR writes.
func WriteOne(ctx context.Context, b Bus, island cpp.Island, addr uint32, value uint32) error {
	return errors.Trace(b.Write(ctx, island, addr, []uint32{value}))
}
