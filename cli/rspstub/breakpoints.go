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

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/cesanta/nfp-debug-tools/common/multierror"
	"github.com/cesanta/nfp-debug-tools/nfp/rfpc"
)

const breakpointKind = 4 // 32-bit ebreak, the only kind we plant

// breakpoint is one planted software breakpoint: the resolved location of
// the patch and the instruction word it displaced.
type breakpoint struct {
	space rfpc.Space
	local uint32
	saved uint32
}

// breakpointTable tracks software breakpoints by protocol address. Planting
// patches an ebreak over the original instruction word; the original is kept
// here and nowhere else, so the table must outlive every halt/resume cycle
// of the session.
type breakpointTable struct {
	port rfpc.CorePort
	bps  map[uint64]*breakpoint
}

func newBreakpointTable(port rfpc.CorePort) *breakpointTable {
	return &breakpointTable{port: port, bps: make(map[uint64]*breakpoint)}
}

func (t *breakpointTable) validate(addr uint64, kind int) (rfpc.Space, uint32, error) {
	if kind != breakpointKind {
		return 0, 0, protoErrorf(codeMalformed, "unsupported breakpoint kind %d", kind)
	}
	if addr%4 != 0 {
		return 0, 0, protoErrorf(codeMalformed, "breakpoint address 0x%x is not 4-byte aligned", addr)
	}
	return resolve(addr, breakpointKind, accessExec)
}

// insert plants a breakpoint. Inserting at an address that already has one
// is a no-op: the client may retry after a lost reply and must not end up
// saving the ebreak as the "original" instruction.
func (t *breakpointTable) insert(ctx context.Context, addr uint64, kind int) error {
	space, local, err := t.validate(addr, kind)
	if err != nil {
		return errors.Trace(err)
	}
	if _, ok := t.bps[addr]; ok {
		glog.V(3).Infof("breakpoint at 0x%x already set", addr)
		return nil
	}
	orig, err := t.port.ReadMem(ctx, space, local, 4)
	if err != nil {
		return errors.Annotatef(err, "failed to read instruction at 0x%x", addr)
	}
	bp := &breakpoint{space: space, local: local, saved: binary.LittleEndian.Uint32(orig)}
	if err := t.writeInstr(ctx, bp, rfpc.EBreakInstr); err != nil {
		return errors.Annotatef(err, "failed to plant breakpoint at 0x%x", addr)
	}
	t.bps[addr] = bp
	glog.V(3).Infof("breakpoint set at 0x%x (was %08x)", addr, bp.saved)
	return nil
}

// remove restores the original instruction. Removing a breakpoint that was
// never set is a protocol error.
func (t *breakpointTable) remove(ctx context.Context, addr uint64, kind int) error {
	if _, _, err := t.validate(addr, kind); err != nil {
		return errors.Trace(err)
	}
	bp, ok := t.bps[addr]
	if !ok {
		return protoErrorf(codeBreakpoint, "no breakpoint at 0x%x", addr)
	}
	if err := t.writeInstr(ctx, bp, bp.saved); err != nil {
		return errors.Annotatef(err, "failed to restore instruction at 0x%x", addr)
	}
	delete(t.bps, addr)
	glog.V(3).Infof("breakpoint removed from 0x%x", addr)
	return nil
}

// removeAll restores every planted breakpoint, continuing past individual
// failures. Called at session teardown so a detached target is left running
// its own code, not ours.
func (t *breakpointTable) removeAll(ctx context.Context) error {
	var err error
	for addr, bp := range t.bps {
		if werr := t.writeInstr(ctx, bp, bp.saved); werr != nil {
			err = multierror.Append(err, errors.Annotatef(werr, "breakpoint at 0x%x", addr))
		}
		delete(t.bps, addr)
	}
	return err
}

func (t *breakpointTable) empty() bool {
	return len(t.bps) == 0
}

// at reports whether a breakpoint is planted at the given protocol address.
func (t *breakpointTable) at(addr uint64) bool {
	_, ok := t.bps[addr]
	return ok
}

// lift temporarily restores the original instruction under a planted
// breakpoint; replant puts the ebreak back. The pair brackets a single step
// over the breakpointed instruction.
func (t *breakpointTable) lift(ctx context.Context, addr uint64) error {
	bp := t.bps[addr]
	return errors.Trace(t.writeInstr(ctx, bp, bp.saved))
}

func (t *breakpointTable) replant(ctx context.Context, addr uint64) error {
	bp := t.bps[addr]
	return errors.Trace(t.writeInstr(ctx, bp, rfpc.EBreakInstr))
}

func (t *breakpointTable) writeInstr(ctx context.Context, bp *breakpoint, instr uint32) error {
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], instr)
	return errors.Trace(t.port.WriteMem(ctx, bp.space, bp.local, word[:]))
}
