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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesanta/nfp-debug-tools/nfp/rfpc"
)

func TestAttachHaltsCore(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.halts)
	assert.False(t, tgt.running())
	assert.Equal(t, "S12", tgt.stopReply())
}

func TestReadAllRegs(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)

	f.regs[rfpc.GPR(1).RegAddr()] = 0x1122334455667788
	body, err := tgt.readAllRegs(ctx)
	require.NoError(t, err)
	require.Len(t, body, 16*rfpc.NumRegs())
	// x1 occupies digits 16..31, in target byte order.
	assert.Equal(t, "8877665544332211", body[16:32])
}

func TestWriteAllRegsSkipsX0(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)

	body := strings.Repeat("ff", 8*rfpc.NumRegs())
	require.NoError(t, tgt.writeAllRegs(ctx, body))
	assert.Zero(t, f.regs[rfpc.GPR(0).RegAddr()])
	assert.Equal(t, uint64(0xffffffffffffffff), f.regs[rfpc.GPR(5).RegAddr()])
}

func TestRegByIndex(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)

	require.NoError(t, tgt.writeReg(ctx, 32, "efbeadde00000000"))
	assert.Equal(t, uint64(0xdeadbeef), f.regs[rfpc.Dpc.RegAddr()])

	v, err := tgt.readReg(ctx, 32)
	require.NoError(t, err)
	assert.Equal(t, "efbeadde00000000", v)

	_, err = tgt.readReg(ctx, rfpc.NumRegs())
	code, ok := protoCode(err)
	require.True(t, ok)
	assert.Equal(t, codeRegister, code)
}

func TestBusyWhileRunning(t *testing.T) {
	ctx := context.Background()
	_, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)
	require.NoError(t, tgt.resume(ctx, nil))
	require.True(t, tgt.running())

	_, err = tgt.readAllRegs(ctx)
	code, ok := protoCode(err)
	require.True(t, ok)
	assert.Equal(t, codeBusy, code)

	_, err = tgt.readMem(ctx, 0x100, 4)
	code, _ = protoCode(err)
	assert.Equal(t, codeBusy, code)

	err = tgt.insertBreakpoint(ctx, 0x100, 4)
	code, _ = protoCode(err)
	assert.Equal(t, codeBusy, code)

	err = tgt.resume(ctx, nil)
	code, _ = protoCode(err)
	assert.Equal(t, codeBusy, code)
}

func TestInterrupt(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)
	require.NoError(t, tgt.resume(ctx, nil))

	require.NoError(t, tgt.interrupt(ctx))
	assert.False(t, tgt.running())
	assert.Equal(t, "S02", tgt.stopReply())
	assert.Equal(t, 2, f.halts) // attach + interrupt

	// Interrupting a halted target is a no-op.
	require.NoError(t, tgt.interrupt(ctx))
	assert.Equal(t, 2, f.halts)
}

func TestStep(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)

	f.regs[rfpc.Dpc.RegAddr()] = 0x100
	require.NoError(t, tgt.step(ctx, nil))
	assert.Equal(t, 1, f.steps)
	assert.False(t, tgt.running())
	assert.Equal(t, "S05", tgt.stopReply())
	assert.Equal(t, uint64(0x104), f.regs[rfpc.Dpc.RegAddr()])
}

func TestStepFromAddress(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)

	pc := uint64(0x240)
	require.NoError(t, tgt.step(ctx, &pc))
	assert.Equal(t, uint64(0x244), f.regs[rfpc.Dpc.RegAddr()])
}

func TestStepOverBreakpoint(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)

	const orig = 0x00150513
	setInstr(f, rfpc.SpaceCore, 0x100, orig)
	require.NoError(t, tgt.insertBreakpoint(ctx, 0x100, 4))
	f.regs[rfpc.Dpc.RegAddr()] = 0x100

	require.NoError(t, tgt.step(ctx, nil))
	assert.Equal(t, 1, f.steps)
	// The ebreak is back in place after the step.
	assert.Equal(t, rfpc.EBreakInstr, instrAt(f, rfpc.SpaceCore, 0x100))
}

func TestResumeStepsOverBreakpoint(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)

	setInstr(f, rfpc.SpaceCore, 0x100, 0x00150513)
	require.NoError(t, tgt.insertBreakpoint(ctx, 0x100, 4))
	f.regs[rfpc.Dpc.RegAddr()] = 0x100

	require.NoError(t, tgt.resume(ctx, nil))
	assert.Equal(t, 1, f.steps)
	assert.Equal(t, 1, f.resumes)
	assert.True(t, tgt.running())
	assert.Equal(t, rfpc.EBreakInstr, instrAt(f, rfpc.SpaceCore, 0x100))
}

func TestPollReportsBreakpointHalt(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)
	require.NoError(t, tgt.resume(ctx, nil))

	f.pollsToHalt = 2
	f.cause = rfpc.CauseBreakpoint

	halted, err := tgt.poll(ctx)
	require.NoError(t, err)
	assert.False(t, halted)

	halted, err = tgt.poll(ctx)
	require.NoError(t, err)
	assert.True(t, halted)
	assert.Equal(t, "S05", tgt.stopReply())
	assert.False(t, tgt.running())
}

func TestPollReportsHaltRequestAsInterrupt(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)
	require.NoError(t, tgt.resume(ctx, nil))

	f.pollsToHalt = 1
	f.cause = rfpc.CauseHaltReq
	halted, err := tgt.poll(ctx)
	require.NoError(t, err)
	require.True(t, halted)
	assert.Equal(t, "S02", tgt.stopReply())
}

func TestMemReadWrite(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)

	require.NoError(t, tgt.writeMem(ctx, 0x0001000000000800, []byte{1, 2, 3}))
	assert.Equal(t, byte(2), f.mem[rfpc.SpaceCTM][0x801])

	data, err := tgt.readMem(ctx, 0x0001000000000800, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	// Zero-length writes only validate the address.
	require.NoError(t, tgt.writeMem(ctx, 0x0001000000000800, nil))
	err = tgt.writeMem(ctx, 0x0009000000000000, nil)
	code, ok := protoCode(err)
	require.True(t, ok)
	assert.Equal(t, codeUnmapped, code)

	err = tgt.writeMem(ctx, 0x0002000000000000, []byte{1})
	code, _ = protoCode(err)
	assert.Equal(t, codePermission, code)
}

func TestDetachRestoresAndResumes(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)

	setInstr(f, rfpc.SpaceCore, 0x100, 0x11112222)
	require.NoError(t, tgt.insertBreakpoint(ctx, 0x100, 4))

	require.NoError(t, tgt.detach(ctx))
	assert.Equal(t, uint32(0x11112222), instrAt(f, rfpc.SpaceCore, 0x100))
	assert.Equal(t, 1, f.resumes)
}

func TestDetachWhileRunning(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)

	setInstr(f, rfpc.SpaceCore, 0x100, 0x00150513)
	require.NoError(t, tgt.insertBreakpoint(ctx, 0x100, 4))
	require.NoError(t, tgt.resume(ctx, nil))

	// The restore path needs a halted hart: detach halts, unpatches, resumes.
	require.NoError(t, tgt.detach(ctx))
	assert.Equal(t, uint32(0x00150513), instrAt(f, rfpc.SpaceCore, 0x100))
	assert.True(t, tgt.running())
	assert.Equal(t, 2, f.halts)
	assert.Equal(t, 2, f.resumes)
}

func TestTeardownOnRunningTarget(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)

	setInstr(f, rfpc.SpaceCore, 0x100, 0x33334444)
	require.NoError(t, tgt.insertBreakpoint(ctx, 0x100, 4))
	require.NoError(t, tgt.resume(ctx, nil))

	require.NoError(t, tgt.teardown(ctx))
	assert.Equal(t, uint32(0x33334444), instrAt(f, rfpc.SpaceCore, 0x100))
	// Halted for the restore, then put back to running.
	assert.Equal(t, 2, f.halts)
	assert.Equal(t, 2, f.resumes)
}

func TestTransportFaultIsNotProtocolError(t *testing.T) {
	ctx := context.Background()
	f, tgt, err := haltedTarget(ctx)
	require.NoError(t, err)

	f.failing = true
	_, err = tgt.readMem(ctx, 0x100, 4)
	require.Error(t, err)
	_, isProto := protoCode(err)
	assert.False(t, isProto)
}
