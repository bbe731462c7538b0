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
package rfpc

// Doc: RISC-V External Debug Support v0.13.2, section 3.12.
// The DMI address map uses 32-bit word addresses; the XPB uses byte
// addresses, so the DMI addresses are multiplied by 4 here.

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/cesanta/nfp-debug-tools/nfp/mu"
	"github.com/cesanta/nfp-debug-tools/nfp/xpb"
)

const (
	dmData0      uint32 = 0x10
	dmData1      uint32 = 0x14
	dmControl    uint32 = 0x40
	dmStatus     uint32 = 0x44
	dmAbstractCS uint32 = 0x58
	dmCommand    uint32 = 0x5c
	dmProgbuf0   uint32 = 0x80

	dmControlHaltReq   uint32 = 1 << 31
	dmControlResumeReq uint32 = 1 << 30
	dmControlDMActive  uint32 = 1 << 0

	dmStatusAllRunning uint32 = 1 << 11
	dmStatusAllHalted  uint32 = 1 << 9

	dmAbstractCSBusy   uint32 = 1 << 12
	dmAbstractCSCmdErr uint32 = 0x7 << 8

	dcsrEBreakM uint32 = 1 << 15
	dcsrEBreakU uint32 = 1 << 12
	dcsrCause   uint32 = 0x7 << 6
	dcsrStep    uint32 = 1 << 2

	// Abstract command encodings (64-bit transfers).
	cmdReadReg     uint32 = 0x320000 // transfer regno -> data0/1
	cmdWriteReg    uint32 = 0x330000 // transfer data0/1 -> regno
	cmdWriteA1     uint32 = 0x33100b // data0/1 -> x11
	cmdReadA0      uint32 = 0x32100a // x10 -> data0/1
	cmdWriteA0Exec uint32 = 0x37100a // data0/1 -> x10, then run progbuf
	cmdExec        uint32 = 0x360000 // run progbuf

	// Program buffer instructions.
	instrLoadA0  uint32 = 0x00053503 // ld a0, 0(a0)
	instrStoreA1 uint32 = 0x00b53023 // sd a1, 0(a0)
	instrCSRWA1  uint32 = 0x00059073 // csrw <csr>, a1; csr number goes in bits 20..31

	regA0 = GPR(10)
	regA1 = GPR(11)
)

// EBreakInstr is the 32-bit ebreak encoding patched over instructions to
// form software breakpoints.
const EBreakInstr uint32 = 0x00100073

const (
	defaultDMPoll   = 10 * time.Millisecond
	defaultHaltWait = 10 * time.Second
)

// DebugPort drives one core's slice of the cluster debug module over the
// XPB bus, plus the island CTM through the MU engine. It implements
// CorePort. Not safe for concurrent use; the session serializes access.
type DebugPort struct {
	bus  xpb.Bus
	mu   mu.Engine
	core Core

	// How often dmstatus/abstractcs are re-sampled while waiting.
	Poll time.Duration
	// How long to wait for halt/resume to take effect.
	Wait time.Duration
}

func NewDebugPort(bus xpb.Bus, eng mu.Engine, core Core) *DebugPort {
	return &DebugPort{
		bus:  bus,
		mu:   eng,
		core: core,
		Poll: defaultDMPoll,
		Wait: defaultHaltWait,
	}
}

func (d *DebugPort) Core() Core { return d.core }

func (d *DebugPort) readDM(ctx context.Context, reg uint32) (uint32, error) {
	v, err := xpb.ReadOne(ctx, d.bus, d.core.Island, d.core.DebugModuleBase()+reg)
	glog.V(4).Infof("%s: dm[0x%02x] == 0x%08x", d.core, reg, v)
	return v, errors.Trace(err)
}

func (d *DebugPort) writeDM(ctx context.Context, reg uint32, value uint32) error {
	glog.V(4).Infof("%s: dm[0x%02x] = 0x%08x", d.core, reg, value)
	return errors.Trace(xpb.WriteOne(ctx, d.bus, d.core.Island, d.core.DebugModuleBase()+reg, value))
}

// activate selects the hart and makes sure the debug module is active.
func (d *DebugPort) activate(ctx context.Context, reqBits uint32) error {
	dmcontrol := d.core.Hartsel()<<16 | dmControlDMActive | reqBits
	return errors.Trace(d.writeDM(ctx, dmControl, dmcontrol))
}

func (d *DebugPort) waitStatus(ctx context.Context, mask uint32) error {
	deadline := time.Now().Add(d.Wait)
	for {
		dmstatus, err := d.readDM(ctx, dmStatus)
		if err != nil {
			return errors.Annotatef(err, "failed to get dmstatus")
		}
		if dmstatus&mask != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("%s: timed out waiting for dmstatus 0x%08x", d.core, mask)
		}
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case <-time.After(d.Poll):
		}
	}
}

func (d *DebugPort) waitAbstract(ctx context.Context) error {
	deadline := time.Now().Add(d.Wait)
	for {
		abstractcs, err := d.readDM(ctx, dmAbstractCS)
		if err != nil {
			return errors.Annotatef(err, "failed to get abstractcs")
		}
		if abstractcs&dmAbstractCSBusy == 0 {
			if cmderr := abstractcs & dmAbstractCSCmdErr; cmderr != 0 {
				return errors.Errorf("%s: abstract command failed, cmderr %d", d.core, cmderr>>8)
			}
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("%s: abstract command stuck busy", d.core)
		}
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case <-time.After(d.Poll):
		}
	}
}

func (d *DebugPort) command(ctx context.Context, cmd uint32) error {
	if err := d.writeDM(ctx, dmCommand, cmd); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(d.waitAbstract(ctx))
}

func (d *DebugPort) readData01(ctx context.Context) (uint64, error) {
	lo, err := d.readDM(ctx, dmData0)
	if err != nil {
		return 0, errors.Trace(err)
	}
	hi, err := d.readDM(ctx, dmData1)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

func (d *DebugPort) writeData01(ctx context.Context, value uint64) error {
	if err := d.writeDM(ctx, dmData0, uint32(value)); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(d.writeDM(ctx, dmData1, uint32(value>>32)))
}

func (d *DebugPort) ReadReg(ctx context.Context, reg Reg) (uint64, error) {
	if err := d.activate(ctx, 0); err != nil {
		return 0, errors.Trace(err)
	}
	if err := d.command(ctx, cmdReadReg|uint32(reg.RegAddr())); err != nil {
		return 0, errors.Annotatef(err, "failed to read %s", reg)
	}
	value, err := d.readData01(ctx)
	glog.V(3).Infof("%s: ReadReg(%s) == 0x%016x", d.core, reg, value)
	return value, errors.Trace(err)
}

func (d *DebugPort) writeGPR(ctx context.Context, gpr GPR, value uint64) error {
	if err := d.writeData01(ctx, value); err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(d.command(ctx, cmdWriteReg|uint32(gpr.RegAddr())), "failed to write %s", gpr)
}

func (d *DebugPort) WriteReg(ctx context.Context, reg Reg, value uint64) error {
	glog.V(3).Infof("%s: WriteReg(%s, 0x%016x)", d.core, reg, value)
	if err := d.activate(ctx, 0); err != nil {
		return errors.Trace(err)
	}
	if gpr, ok := reg.(GPR); ok {
		return errors.Trace(d.writeGPR(ctx, gpr, value))
	}
	// CSRs cannot be written directly: stage the value in a1, then execute a
	// csrw from the program buffer. The core's a1 is put back afterwards.
	savedA1, err := d.ReadReg(ctx, regA1)
	if err != nil {
		return errors.Annotatef(err, "failed to save a1")
	}
	if err := d.writeData01(ctx, value); err != nil {
		return errors.Trace(err)
	}
	if err := d.command(ctx, cmdWriteA1); err != nil {
		return errors.Trace(err)
	}
	csrw := instrCSRWA1 | uint32(reg.RegAddr())<<20
	if err := d.writeDM(ctx, dmProgbuf0, csrw); err != nil {
		return errors.Trace(err)
	}
	if err := d.command(ctx, cmdExec); err != nil {
		return errors.Annotatef(err, "failed to write %s", reg)
	}
	return errors.Annotatef(d.writeGPR(ctx, regA1, savedA1), "failed to restore a1")
}

// readCoreWords reads 8-byte words through the core's load/store path. The
// core's a0 is saved and restored around the access.
func (d *DebugPort) readCoreWords(ctx context.Context, addr uint32, count int) ([]uint64, error) {
	if err := d.activate(ctx, 0); err != nil {
		return nil, errors.Trace(err)
	}
	savedA0, err := d.ReadReg(ctx, regA0)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to save a0")
	}
	words := make([]uint64, 0, count)
	for i := 0; i < count; i++ {
		if err := d.writeData01(ctx, uint64(addr)+8*uint64(i)); err != nil {
			return nil, errors.Trace(err)
		}
		if err := d.writeDM(ctx, dmProgbuf0, instrLoadA0); err != nil {
			return nil, errors.Trace(err)
		}
		if err := d.command(ctx, cmdWriteA0Exec); err != nil {
			return nil, errors.Annotatef(err, "memory read at 0x%x failed", addr+8*uint32(i))
		}
		if err := d.command(ctx, cmdReadA0); err != nil {
			return nil, errors.Trace(err)
		}
		word, err := d.readData01(ctx)
		if err != nil {
			return nil, errors.Trace(err)
		}
		words = append(words, word)
	}
	if err := d.WriteReg(ctx, regA0, savedA0); err != nil {
		return nil, errors.Annotatef(err, "failed to restore a0")
	}
	return words, nil
}

func (d *DebugPort) writeCoreWords(ctx context.Context, addr uint32, words []uint64) error {
	if err := d.activate(ctx, 0); err != nil {
		return errors.Trace(err)
	}
	savedA0, err := d.ReadReg(ctx, regA0)
	if err != nil {
		return errors.Annotatef(err, "failed to save a0")
	}
	savedA1, err := d.ReadReg(ctx, regA1)
	if err != nil {
		return errors.Annotatef(err, "failed to save a1")
	}
	for i, word := range words {
		if err := d.writeData01(ctx, word); err != nil {
			return errors.Trace(err)
		}
		if err := d.command(ctx, cmdWriteA1); err != nil {
			return errors.Trace(err)
		}
		if err := d.writeData01(ctx, uint64(addr)+8*uint64(i)); err != nil {
			return errors.Trace(err)
		}
		if err := d.writeDM(ctx, dmProgbuf0, instrStoreA1); err != nil {
			return errors.Trace(err)
		}
		if err := d.command(ctx, cmdWriteA0Exec); err != nil {
			return errors.Annotatef(err, "memory write at 0x%x failed", addr+8*uint32(i))
		}
	}
	if err := d.WriteReg(ctx, regA0, savedA0); err != nil {
		return errors.Annotatef(err, "failed to restore a0")
	}
	return errors.Annotatef(d.WriteReg(ctx, regA1, savedA1), "failed to restore a1")
}

func (d *DebugPort) ReadMem(ctx context.Context, space Space, addr uint32, n int) ([]byte, error) {
	glog.V(3).Infof("%s: ReadMem(%d, 0x%08x, %d)", d.core, space, addr, n)
	if n == 0 {
		return nil, nil
	}
	switch space {
	case SpaceCTM:
		first := addr &^ 3
		count := int(addr+uint32(n)-first+3) / 4
		words, err := d.mu.Read(ctx, d.core.Island, first, count)
		if err != nil {
			return nil, errors.Trace(err)
		}
		buf := make([]byte, 4*len(words))
		for i, w := range words {
			binary.LittleEndian.PutUint32(buf[4*i:], w)
		}
		return buf[addr-first : addr-first+uint32(n)], nil
	default:
		first := addr &^ 7
		count := int(addr+uint32(n)-first+7) / 8
		words, err := d.readCoreWords(ctx, first, count)
		if err != nil {
			return nil, errors.Trace(err)
		}
		buf := make([]byte, 8*len(words))
		for i, w := range words {
			binary.LittleEndian.PutUint64(buf[8*i:], w)
		}
		return buf[addr-first : addr-first+uint32(n)], nil
	}
}

func (d *DebugPort) WriteMem(ctx context.Context, space Space, addr uint32, data []byte) error {
	glog.V(3).Infof("%s: WriteMem(%d, 0x%08x, %d)", d.core, space, addr, len(data))
	if len(data) == 0 {
		return nil
	}
	align := uint32(8)
	if space == SpaceCTM {
		align = 4
	}
	first := addr &^ (align - 1)
	last := (addr + uint32(len(data)) + align - 1) &^ (align - 1)
	buf := make([]byte, last-first)
	// Preserve the bytes around an unaligned edge with a read-modify-write.
	if first != addr || last != addr+uint32(len(data)) {
		span, err := d.ReadMem(ctx, space, first, len(buf))
		if err != nil {
			return errors.Annotatef(err, "failed to read around unaligned write")
		}
		copy(buf, span)
	}
	copy(buf[addr-first:], data)

	if space == SpaceCTM {
		words := make([]uint32, len(buf)/4)
		for i := range words {
			words[i] = binary.LittleEndian.Uint32(buf[4*i:])
		}
		if len(words) == 1 {
			return errors.Trace(d.mu.WriteWord(ctx, d.core.Island, first, words[0]))
		}
		return errors.Trace(d.mu.Write(ctx, d.core.Island, first, words))
	}
	words := make([]uint64, len(buf)/8)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(buf[8*i:])
	}
	return errors.Trace(d.writeCoreWords(ctx, first, words))
}

func (d *DebugPort) Status(ctx context.Context) (RunState, error) {
	dmstatus, err := d.readDM(ctx, dmStatus)
	if err != nil {
		return StateHalted, errors.Annotatef(err, "failed to get dmstatus")
	}
	if dmstatus&dmStatusAllHalted != 0 {
		return StateHalted, nil
	}
	return StateRunning, nil
}

func (d *DebugPort) Halt(ctx context.Context) error {
	glog.V(3).Infof("%s: Halt()", d.core)
	if err := d.activate(ctx, dmControlHaltReq); err != nil {
		return errors.Annotatef(err, "failed to request halt")
	}
	return errors.Annotatef(d.waitStatus(ctx, dmStatusAllHalted), "core did not halt")
}

func (d *DebugPort) Resume(ctx context.Context) error {
	glog.V(3).Infof("%s: Resume()", d.core)
	// Route ebreak to debug mode so software breakpoints halt the core.
	dcsr, err := d.ReadReg(ctx, Dcsr)
	if err != nil {
		return errors.Trace(err)
	}
	dcsr |= uint64(dcsrEBreakM | dcsrEBreakU)
	dcsr &^= uint64(dcsrStep)
	if err := d.WriteReg(ctx, Dcsr, dcsr); err != nil {
		return errors.Trace(err)
	}
	if err := d.activate(ctx, dmControlResumeReq); err != nil {
		return errors.Annotatef(err, "failed to request resume")
	}
	return errors.Annotatef(d.waitStatus(ctx, dmStatusAllRunning), "core did not resume")
}

func (d *DebugPort) Step(ctx context.Context) error {
	glog.V(3).Infof("%s: Step()", d.core)
	dcsr, err := d.ReadReg(ctx, Dcsr)
	if err != nil {
		return errors.Trace(err)
	}
	dcsr |= uint64(dcsrStep | dcsrEBreakM | dcsrEBreakU)
	if err := d.WriteReg(ctx, Dcsr, dcsr); err != nil {
		return errors.Trace(err)
	}
	if err := d.activate(ctx, dmControlResumeReq); err != nil {
		return errors.Annotatef(err, "failed to request step")
	}
	if err := d.waitStatus(ctx, dmStatusAllHalted); err != nil {
		return errors.Annotatef(err, "core did not halt after step")
	}
	cause, err := d.Cause(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if cause != CauseStep && cause != CauseBreakpoint {
		return errors.Errorf("%s: unexpected halt cause %d after step", d.core, cause)
	}
	dcsr, err = d.ReadReg(ctx, Dcsr)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(d.WriteReg(ctx, Dcsr, dcsr&^uint64(dcsrStep)))
}

func (d *DebugPort) Cause(ctx context.Context) (HaltCause, error) {
	dcsr, err := d.ReadReg(ctx, Dcsr)
	if err != nil {
		return CauseUnknown, errors.Trace(err)
	}
	return HaltCause((uint32(dcsr) & dcsrCause) >> 6), nil
}
