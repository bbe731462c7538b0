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
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesanta/nfp-debug-tools/nfp/rfpc"
)

func instrAt(f *fakePort, space rfpc.Space, addr uint32) uint32 {
	b, _ := f.ReadMem(context.Background(), space, addr, 4)
	return binary.LittleEndian.Uint32(b)
}

func setInstr(f *fakePort, space rfpc.Space, addr uint32, instr uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], instr)
	f.WriteMem(context.Background(), space, addr, b[:])
}

func TestBreakpointInsertRemove(t *testing.T) {
	ctx := context.Background()
	f := newFakePort()
	bt := newBreakpointTable(f)

	const orig uint32 = 0x00a50533 // some instruction word
	setInstr(f, rfpc.SpaceCore, 0x200, orig)

	require.NoError(t, bt.insert(ctx, 0x200, 4))
	assert.Equal(t, rfpc.EBreakInstr, instrAt(f, rfpc.SpaceCore, 0x200))
	assert.True(t, bt.at(0x200))

	// A second insert at the same address changes nothing and must not
	// clobber the saved instruction with the ebreak.
	require.NoError(t, bt.insert(ctx, 0x200, 4))
	require.NoError(t, bt.remove(ctx, 0x200, 4))
	assert.Equal(t, orig, instrAt(f, rfpc.SpaceCore, 0x200))
	assert.False(t, bt.at(0x200))
}

func TestBreakpointRemoveUnknown(t *testing.T) {
	bt := newBreakpointTable(newFakePort())
	err := bt.remove(context.Background(), 0x300, 4)
	require.Error(t, err)
	code, ok := protoCode(err)
	require.True(t, ok)
	assert.Equal(t, codeBreakpoint, code)
}

func TestBreakpointValidation(t *testing.T) {
	ctx := context.Background()
	bt := newBreakpointTable(newFakePort())

	cases := []struct {
		name string
		addr uint64
		kind int
		code uint8
	}{
		{name: "bad kind", addr: 0x200, kind: 2, code: codeMalformed},
		{name: "misaligned", addr: 0x202, kind: 4, code: codeMalformed},
		{name: "read-only region", addr: 0x0002000000000000, kind: 4, code: codePermission},
		{name: "unmapped", addr: 0x0009000000000000, kind: 4, code: codeUnmapped},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := bt.insert(ctx, c.addr, c.kind)
			require.Error(t, err)
			code, ok := protoCode(err)
			require.True(t, ok)
			assert.Equal(t, c.code, code)
		})
	}
}

func TestBreakpointInCTM(t *testing.T) {
	ctx := context.Background()
	f := newFakePort()
	bt := newBreakpointTable(f)

	const addr = 0x0001000000000400
	setInstr(f, rfpc.SpaceCTM, 0x400, 0x12345013)
	require.NoError(t, bt.insert(ctx, addr, 4))
	assert.Equal(t, rfpc.EBreakInstr, instrAt(f, rfpc.SpaceCTM, 0x400))
	require.NoError(t, bt.remove(ctx, addr, 4))
	assert.Equal(t, uint32(0x12345013), instrAt(f, rfpc.SpaceCTM, 0x400))
}

func TestBreakpointRemoveAll(t *testing.T) {
	ctx := context.Background()
	f := newFakePort()
	bt := newBreakpointTable(f)

	setInstr(f, rfpc.SpaceCore, 0x100, 0x11111111)
	setInstr(f, rfpc.SpaceCore, 0x200, 0x22222222)
	require.NoError(t, bt.insert(ctx, 0x100, 4))
	require.NoError(t, bt.insert(ctx, 0x200, 4))

	require.NoError(t, bt.removeAll(ctx))
	assert.Equal(t, uint32(0x11111111), instrAt(f, rfpc.SpaceCore, 0x100))
	assert.Equal(t, uint32(0x22222222), instrAt(f, rfpc.SpaceCore, 0x200))
	assert.False(t, bt.at(0x100))
	assert.False(t, bt.at(0x200))
}

func TestBreakpointRemoveAllReportsFailures(t *testing.T) {
	ctx := context.Background()
	f := newFakePort()
	bt := newBreakpointTable(f)
	require.NoError(t, bt.insert(ctx, 0x100, 4))

	f.failing = true
	assert.Error(t, bt.removeAll(ctx))
	assert.False(t, bt.at(0x100))
}
