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
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/cesanta/nfp-debug-tools/common/rsp"
)

// supportedFeatures is the stub's half of the qSupported exchange.
const supportedFeatures = "PacketSize=100000;QStartNoAckMode+;swbreak+"

// MaxMemChunk bounds a single memory transfer: a full read reply must fit in
// one packet even with every byte hex-expanded.
const MaxMemChunk = rsp.MaxPacketSize / 2

// dispatchResult tells the session what to do with the outcome of one
// command.
type dispatchResult struct {
	reply      string
	deferred   bool // target resumed, reply comes when it halts
	startNoAck bool // switch off transmission acks after replying
	disconnect bool // close the connection after replying (if any)
	noReply    bool // say nothing at all (k)
}

func reply(s string) dispatchResult { return dispatchResult{reply: s} }

// finish folds an operation error into a reply: protocol errors become Exx,
// transport faults propagate and end the session.
func finish(err error, ok string) (dispatchResult, error) {
	if err == nil {
		return reply(ok), nil
	}
	if code, isProto := protoCode(err); isProto {
		glog.V(2).Infof("rsp: %v", err)
		return reply(fmt.Sprintf("E%02x", code)), nil
	}
	return dispatchResult{}, errors.Trace(err)
}

// dispatch executes one client packet against the target. The payload is the
// unescaped packet body; for X packets its tail is raw binary.
func dispatch(ctx context.Context, t *target, payload []byte) (dispatchResult, error) {
	if len(payload) == 0 {
		return reply(""), nil
	}
	body := string(payload)
	switch payload[0] {
	case '?':
		return reply(t.stopReply()), nil

	case 'g':
		regs, err := t.readAllRegs(ctx)
		return finish(err, regs)

	case 'G':
		return finish(t.writeAllRegs(ctx, body[1:]), "OK")

	case 'p':
		index, err := parseHexUint(body[1:])
		if err != nil {
			return finish(err, "")
		}
		val, err := t.readReg(ctx, int(index))
		return finish(err, val)

	case 'P':
		idx, val, ok := cut(body[1:], '=')
		if !ok {
			return finish(protoErrorf(codeMalformed, "malformed P packet %q", body), "")
		}
		index, err := parseHexUint(idx)
		if err != nil {
			return finish(err, "")
		}
		return finish(t.writeReg(ctx, int(index), val), "OK")

	case 'm':
		addr, n, err := parseAddrLen(body[1:])
		if err != nil {
			return finish(err, "")
		}
		data, err := t.readMem(ctx, addr, n)
		return finish(err, hex.EncodeToString(data))

	case 'M':
		addrLen, data, ok := cut(body[1:], ':')
		if !ok {
			return finish(protoErrorf(codeMalformed, "malformed M packet %q", body), "")
		}
		addr, n, err := parseAddrLen(addrLen)
		if err != nil {
			return finish(err, "")
		}
		raw, err := decodeHexBytes(data)
		if err == nil && len(raw) != n {
			err = protoErrorf(codeMalformed, "M packet length %d does not match data (%d bytes)", n, len(raw))
		}
		if err != nil {
			return finish(err, "")
		}
		return finish(t.writeMem(ctx, addr, raw), "OK")

	case 'X':
		// Split on the first colon only: the binary tail may contain colons.
		colon := strings.IndexByte(body, ':')
		if colon < 0 {
			return finish(protoErrorf(codeMalformed, "malformed X packet"), "")
		}
		addr, n, err := parseAddrLen(body[1:colon])
		if err != nil {
			return finish(err, "")
		}
		raw := payload[colon+1:]
		if len(raw) != n {
			return finish(protoErrorf(codeMalformed, "X packet length %d does not match data (%d bytes)", n, len(raw)), "")
		}
		return finish(t.writeMem(ctx, addr, raw), "OK")

	case 'Z', 'z':
		parts := strings.Split(body[1:], ",")
		if len(parts) != 3 {
			return finish(protoErrorf(codeMalformed, "malformed %c packet %q", payload[0], body), "")
		}
		if parts[0] != "0" {
			return reply(""), nil // only software breakpoints
		}
		addr, err := parseHexUint(parts[1])
		if err != nil {
			return finish(err, "")
		}
		kind, err := parseHexUint(parts[2])
		if err != nil {
			return finish(err, "")
		}
		if payload[0] == 'Z' {
			return finish(t.insertBreakpoint(ctx, addr, int(kind)), "OK")
		}
		return finish(t.removeBreakpoint(ctx, addr, int(kind)), "OK")

	case 'c':
		pc, err := optionalPC(body[1:])
		if err != nil {
			return finish(err, "")
		}
		res, err := finish(t.resume(ctx, pc), "")
		if err == nil && res.reply == "" {
			res.deferred = true
		}
		return res, err

	case 's':
		pc, err := optionalPC(body[1:])
		if err != nil {
			return finish(err, "")
		}
		return finish(t.step(ctx, pc), t.stopReply())

	case 'C', 'S':
		// Csig[;addr] / Ssig[;addr]: there is no process to deliver a
		// signal to, so these act as plain continue and step.
		var pc *uint64
		if _, addrPart, ok := cut(body[1:], ';'); ok {
			p, err := optionalPC(addrPart)
			if err != nil {
				return finish(err, "")
			}
			pc = p
		}
		if payload[0] == 'S' {
			return finish(t.step(ctx, pc), t.stopReply())
		}
		res, err := finish(t.resume(ctx, pc), "")
		if err == nil && res.reply == "" {
			res.deferred = true
		}
		return res, err

	case 'q':
		return queryPacket(t, body), nil

	case 'Q':
		if body == "QStartNoAckMode" {
			return dispatchResult{reply: "OK", startNoAck: true}, nil
		}
		return reply(""), nil

	case 'v':
		// vMustReplyEmpty probes the unknown-packet convention; every other
		// v packet is likewise unsupported.
		return reply(""), nil

	case 'H':
		// Thread selection: single hart, any choice is fine.
		return reply("OK"), nil

	case 'D':
		res, err := finish(t.detach(ctx), "OK")
		res.disconnect = err == nil
		return res, err

	case 'k':
		// No reply is expected for kill; drop the connection.
		if err := t.detach(ctx); err != nil {
			glog.Errorf("teardown on kill: %v", err)
		}
		return dispatchResult{noReply: true, disconnect: true}, nil
	}
	glog.V(2).Infof("rsp: unsupported packet %q", body)
	return reply(""), nil
}

func queryPacket(t *target, body string) dispatchResult {
	name, args, _ := cut(body, ':')
	switch name {
	case "qSupported":
		for _, f := range strings.Split(args, ";") {
			glog.V(3).Infof("rsp: client feature %q", f)
		}
		return reply(supportedFeatures)
	case "qAttached":
		return reply("1")
	case "qC":
		return reply("-1")
	case "qOffsets":
		return reply("Text=000;Data=000;Bss=000")
	case "qSymbol":
		return reply("OK")
	}
	return reply("")
}

// cut splits s around the first occurrence of sep.
func cut(s string, sep byte) (string, string, bool) {
	if i := strings.IndexByte(s, sep); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", false
}

// parseAddrLen parses the "addr,length" heads of m/M/X packets.
func parseAddrLen(s string) (uint64, int, error) {
	a, l, ok := cut(s, ',')
	if !ok {
		return 0, 0, protoErrorf(codeMalformed, "expected addr,length, got %q", s)
	}
	addr, err := parseHexUint(a)
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	n, err := parseHexUint(l)
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	if n > MaxMemChunk {
		return 0, 0, protoErrorf(codeMalformed, "transfer of %d bytes exceeds the packet limit", n)
	}
	return addr, int(n), nil
}

// optionalPC parses the optional resume address of c/s packets.
func optionalPC(s string) (*uint64, error) {
	if s == "" {
		return nil, nil
	}
	pc, err := parseHexUint(s)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &pc, nil
}
