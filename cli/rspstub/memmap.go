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
package rspstub

import (
	"github.com/cesanta/nfp-debug-tools/nfp/rfpc"
)

// The debugger-visible address space is segmented: bits 48..51 of the 64-bit
// protocol address select a memory region and the low 32 bits are the byte
// offset within it. The linker scripts place each output section in the
// matching segment, so the addresses arriving in m/M/X/Z packets carry their
// routing with them.

type accessKind int

const (
	accessRead accessKind = iota
	accessWrite
	accessExec // breakpoint patching: implies write
)

func (a accessKind) String() string {
	switch a {
	case accessRead:
		return "read"
	case accessWrite:
		return "write"
	case accessExec:
		return "exec"
	}
	return "?"
}

type region struct {
	name     string
	space    rfpc.Space
	base     uint32 // core-local address of region offset 0
	size     uint64
	writable bool
	code     bool // may hold instructions, i.e. valid for breakpoints
}

var regions = map[uint8]*region{
	0x0: {name: "lmem", space: rfpc.SpaceCore, base: 0, size: 0x10000, writable: true, code: true},
	0x1: {name: "ctm", space: rfpc.SpaceCTM, base: 0, size: 0x100000, writable: true, code: true},
	0x2: {name: "emem", space: rfpc.SpaceCore, base: 0x80000000, size: 0x80000000, writable: false},
	0x3: {name: "cls", space: rfpc.SpaceCore}, // present in the map, not serviceable
}

// resolve maps a protocol address range onto a core-local one, enforcing the
// region's access rules. All permission decisions are made here; the layers
// below take the resolved address at face value.
func resolve(addr uint64, n int, kind accessKind) (rfpc.Space, uint32, error) {
	if addr>>52 != 0 || (addr>>32)&0xFFFF != 0 {
		return 0, 0, protoErrorf(codeUnmapped, "address 0x%x is outside the memory map", addr)
	}
	r, ok := regions[uint8(addr>>48)&0xF]
	if !ok {
		return 0, 0, protoErrorf(codeUnmapped, "address 0x%x is outside the memory map", addr)
	}
	if r.name == "cls" {
		return 0, 0, protoErrorf(codeUnsupported, "%s is not accessible through the debug stub", r.name)
	}
	off := uint32(addr)
	if uint64(off)+uint64(n) > r.size {
		return 0, 0, protoErrorf(codeUnmapped, "range 0x%x+%d runs off the end of %s", addr, n, r.name)
	}
	switch kind {
	case accessWrite:
		if !r.writable {
			return 0, 0, protoErrorf(codePermission, "%s is read-only", r.name)
		}
	case accessExec:
		if !r.writable || !r.code {
			return 0, 0, protoErrorf(codePermission, "cannot place a breakpoint in %s", r.name)
		}
	}
	return r.space, r.base + off, nil
}
