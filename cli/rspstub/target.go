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
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/cesanta/nfp-debug-tools/common/multierror"
	"github.com/cesanta/nfp-debug-tools/nfp/rfpc"
)

// Stop-reply signal numbers.
const (
	sigInt  = 2  // halted on client interrupt
	sigTrap = 5  // halted on breakpoint or single step
	sigInit = 18 // initial attach, reported for the first `?`
)

// target wraps a core port with the session-level view of the core: a
// halted/running state machine, the pending stop reason, and the breakpoint
// table. While the core is running only interrupt and status polling are
// valid; everything else is refused with a busy error so a confused client
// cannot corrupt debug-module state mid-run.
type target struct {
	port   rfpc.CorePort
	bps    *breakpointTable
	state  rfpc.RunState
	signal int
}

// attach halts the core and takes debug ownership of it.
func attach(ctx context.Context, port rfpc.CorePort) (*target, error) {
	if err := port.Halt(ctx); err != nil {
		return nil, errors.Annotatef(err, "failed to halt the core")
	}
	return &target{
		port:   port,
		bps:    newBreakpointTable(port),
		state:  rfpc.StateHalted,
		signal: sigInit,
	}, nil
}

func (t *target) running() bool {
	return t.state == rfpc.StateRunning
}

// stopReply renders the current stop reason in S-packet form.
func (t *target) stopReply() string {
	return fmt.Sprintf("S%02x", t.signal)
}

func (t *target) ensureHalted() error {
	if t.running() {
		return protoErrorf(codeBusy, "target is running")
	}
	return nil
}

func (t *target) pc(ctx context.Context) (uint64, error) {
	v, err := t.port.ReadReg(ctx, rfpc.Dpc)
	return v, errors.Trace(err)
}

// readAllRegs renders the full register file in register-map order.
func (t *target) readAllRegs(ctx context.Context) (string, error) {
	if err := t.ensureHalted(); err != nil {
		return "", errors.Trace(err)
	}
	var sb strings.Builder
	for _, rd := range rfpc.RegMap() {
		v, err := t.port.ReadReg(ctx, rd.Reg)
		if err != nil {
			return "", errors.Annotatef(err, "failed to read %s", rd.Reg)
		}
		sb.WriteString(encodeRegValue(v))
	}
	return sb.String(), nil
}

// writeAllRegs consumes a G-packet body: the full register file, in order.
func (t *target) writeAllRegs(ctx context.Context, body string) error {
	if err := t.ensureHalted(); err != nil {
		return errors.Trace(err)
	}
	if len(body) != 16*rfpc.NumRegs() {
		return protoErrorf(codeMalformed, "register file body has %d digits, want %d", len(body), 16*rfpc.NumRegs())
	}
	for _, rd := range rfpc.RegMap() {
		v, err := decodeRegValue(body[16*rd.Index : 16*rd.Index+16])
		if err != nil {
			return errors.Trace(err)
		}
		if rd.Reg == rfpc.GPR(0) {
			continue // x0 is hardwired
		}
		if err := t.port.WriteReg(ctx, rd.Reg, v); err != nil {
			return errors.Annotatef(err, "failed to write %s", rd.Reg)
		}
	}
	return nil
}

func (t *target) readReg(ctx context.Context, index int) (string, error) {
	if err := t.ensureHalted(); err != nil {
		return "", errors.Trace(err)
	}
	rd, ok := rfpc.LookupReg(index)
	if !ok {
		return "", protoErrorf(codeRegister, "no register with index %d", index)
	}
	v, err := t.port.ReadReg(ctx, rd.Reg)
	if err != nil {
		return "", errors.Annotatef(err, "failed to read %s", rd.Reg)
	}
	return encodeRegValue(v), nil
}

func (t *target) writeReg(ctx context.Context, index int, value string) error {
	if err := t.ensureHalted(); err != nil {
		return errors.Trace(err)
	}
	rd, ok := rfpc.LookupReg(index)
	if !ok {
		return protoErrorf(codeRegister, "no register with index %d", index)
	}
	v, err := decodeRegValue(value)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(t.port.WriteReg(ctx, rd.Reg, v), "failed to write %s", rd.Reg)
}

func (t *target) readMem(ctx context.Context, addr uint64, n int) ([]byte, error) {
	if err := t.ensureHalted(); err != nil {
		return nil, errors.Trace(err)
	}
	space, local, err := resolve(addr, n, accessRead)
	if err != nil {
		return nil, errors.Trace(err)
	}
	data, err := t.port.ReadMem(ctx, space, local, n)
	return data, errors.Annotatef(err, "failed to read %d bytes at 0x%x", n, addr)
}

func (t *target) writeMem(ctx context.Context, addr uint64, data []byte) error {
	if err := t.ensureHalted(); err != nil {
		return errors.Trace(err)
	}
	if len(data) == 0 {
		// Loaders probe segments with empty writes.
		if _, _, err := resolve(addr, 0, accessWrite); err != nil {
			return errors.Trace(err)
		}
		return nil
	}
	space, local, err := resolve(addr, len(data), accessWrite)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(t.port.WriteMem(ctx, space, local, data),
		"failed to write %d bytes at 0x%x", len(data), addr)
}

func (t *target) insertBreakpoint(ctx context.Context, addr uint64, kind int) error {
	if err := t.ensureHalted(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(t.bps.insert(ctx, addr, kind))
}

func (t *target) removeBreakpoint(ctx context.Context, addr uint64, kind int) error {
	if err := t.ensureHalted(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(t.bps.remove(ctx, addr, kind))
}

// stepOverBreakpoint executes the instruction under a breakpoint planted at
// the current pc, if there is one. The ebreak is lifted for the duration of
// the step so the core runs the displaced instruction, not our patch.
func (t *target) stepOverBreakpoint(ctx context.Context) error {
	pc, err := t.pc(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if !t.bps.at(pc) {
		return nil
	}
	if err := t.bps.lift(ctx, pc); err != nil {
		return errors.Trace(err)
	}
	stepErr := t.port.Step(ctx)
	if err := t.bps.replant(ctx, pc); err != nil {
		return multierror.Append(stepErr, err)
	}
	return errors.Trace(stepErr)
}

// resume continues execution, optionally from a new pc. The target goes to
// the running state; the session polls for the halt.
func (t *target) resume(ctx context.Context, newPC *uint64) error {
	if err := t.ensureHalted(); err != nil {
		return errors.Trace(err)
	}
	if newPC != nil {
		if err := t.port.WriteReg(ctx, rfpc.Dpc, *newPC); err != nil {
			return errors.Annotatef(err, "failed to set pc")
		}
	}
	if err := t.stepOverBreakpoint(ctx); err != nil {
		return errors.Trace(err)
	}
	if err := t.port.Resume(ctx); err != nil {
		return errors.Annotatef(err, "failed to resume")
	}
	t.state = rfpc.StateRunning
	glog.V(3).Info("target running")
	return nil
}

// step executes one instruction and reports the trap. The target stays
// halted from the session's point of view.
func (t *target) step(ctx context.Context, newPC *uint64) error {
	if err := t.ensureHalted(); err != nil {
		return errors.Trace(err)
	}
	if newPC != nil {
		if err := t.port.WriteReg(ctx, rfpc.Dpc, *newPC); err != nil {
			return errors.Annotatef(err, "failed to set pc")
		}
	}
	pc, err := t.pc(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if t.bps.at(pc) {
		if err := t.stepOverBreakpoint(ctx); err != nil {
			return errors.Trace(err)
		}
	} else if err := t.port.Step(ctx); err != nil {
		return errors.Annotatef(err, "failed to step")
	}
	t.signal = sigTrap
	return nil
}

// poll samples a running target. It returns true when the core has halted,
// with the stop reason updated from the hardware's halt cause.
func (t *target) poll(ctx context.Context) (bool, error) {
	if !t.running() {
		return true, nil
	}
	state, err := t.port.Status(ctx)
	if err != nil {
		return false, errors.Annotatef(err, "failed to poll run state")
	}
	if state != rfpc.StateHalted {
		return false, nil
	}
	t.state = rfpc.StateHalted
	cause, err := t.port.Cause(ctx)
	if err != nil {
		return true, errors.Annotatef(err, "failed to read halt cause")
	}
	switch cause {
	case rfpc.CauseHaltReq:
		t.signal = sigInt
	default:
		t.signal = sigTrap
	}
	glog.V(3).Infof("target halted, cause %d", cause)
	return true, nil
}

// interrupt services a 0x03 byte: force a halt if running. The stop reason
// is SIGINT even if the core happened to hit a breakpoint in the same
// instant; the client asked first.
func (t *target) interrupt(ctx context.Context) error {
	if !t.running() {
		return nil
	}
	if err := t.port.Halt(ctx); err != nil {
		return errors.Annotatef(err, "failed to halt on interrupt")
	}
	t.state = rfpc.StateHalted
	t.signal = sigInt
	return nil
}

// detach resumes the core and leaves the debugger's fingerprints removed.
// A detach can arrive while the core is running; breakpoint restoration
// needs a halted hart, so the core is halted for the restore and resumed
// after, same as teardown.
func (t *target) detach(ctx context.Context) error {
	if t.running() {
		if err := t.port.Halt(ctx); err != nil {
			return errors.Annotatef(err, "failed to halt for detach")
		}
		t.state = rfpc.StateHalted
	}
	err := t.bps.removeAll(ctx)
	if rerr := t.port.Resume(ctx); rerr != nil {
		err = multierror.Append(err, errors.Annotatef(rerr, "failed to resume on detach"))
	} else {
		t.state = rfpc.StateRunning
	}
	return err
}

// teardown is the disconnect path: restore patched instructions so the
// target is left intact, but do not change its run state.
func (t *target) teardown(ctx context.Context) error {
	if t.bps.empty() {
		return nil
	}
	if t.running() {
		// Breakpoint restoration needs a halted core for the core-local
		// load/store path; halt, restore, resume.
		if err := t.port.Halt(ctx); err != nil {
			return errors.Annotatef(err, "failed to halt for teardown")
		}
		err := t.bps.removeAll(ctx)
		if rerr := t.port.Resume(ctx); rerr != nil {
			err = multierror.Append(err, rerr)
		}
		return err
	}
	return t.bps.removeAll(ctx)
}
