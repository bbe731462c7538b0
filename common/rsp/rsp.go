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

// Package rsp implements the framing layer of the GDB Remote Serial
// Protocol: `$payload#cs` packets with `}`-escaping and a two-digit mod-256
// checksum, plus the out-of-band 0x03 interrupt byte. It deals in bytes
// only; command semantics live above it.
package rsp

import (
	"fmt"

	"github.com/golang/glog"
)

const (
	packetStart = '$'
	packetEnd   = '#'
	escapeByte  = 0x7d
	escapeXor   = 0x20

	// InterruptByte is sent by the client outside any packet to request a
	// halt of the running target.
	InterruptByte = 0x03

	// Ack and Nak are the single-byte transmission acknowledgements used
	// until the client switches the session to no-ack mode.
	Ack = '+'
	Nak = '-'

	// MaxPacketSize bounds the unescaped payload of a single packet. It is
	// the value advertised to the client in the qSupported reply (hex).
	MaxPacketSize = 0x100000
)

// EventKind discriminates what the decoder extracted from the byte stream.
type EventKind int

const (
	// EventPacket is a well-formed packet; Payload holds the unescaped body.
	EventPacket EventKind = iota
	// EventInterrupt is a 0x03 byte received between packets.
	EventInterrupt
	// EventBadChecksum is a packet whose checksum did not verify. It must
	// be answered with Nak and must not be dispatched.
	EventBadChecksum
)

// Event is one decoded protocol item.
type Event struct {
	Kind    EventKind
	Payload []byte
}

type decodeState int

const (
	stateIdle decodeState = iota
	statePayload
	stateCheckHigh
	stateCheckLow
)

// Decoder is an incremental packet decoder. Feed it raw connection bytes in
// whatever chunks the transport delivers; packet boundaries need not align
// with chunk boundaries. Not safe for concurrent use.
type Decoder struct {
	state decodeState
	wire  []byte // escaped payload bytes as received
	sum   uint8  // running checksum over wire
	check uint8  // checksum digits from the trailer
}

// Feed consumes a chunk of connection bytes and returns the events completed
// by it, in order.
func (d *Decoder) Feed(data []byte) []Event {
	var events []Event
	for _, b := range data {
		switch d.state {
		case stateIdle:
			switch b {
			case packetStart:
				d.state = statePayload
				d.wire = d.wire[:0]
				d.sum = 0
			case InterruptByte:
				events = append(events, Event{Kind: EventInterrupt})
			case Ack, Nak:
				// Transmission acks from the client carry no information
				// we act on.
			default:
				glog.V(4).Infof("rsp: skipping stray byte 0x%02x", b)
			}
		case statePayload:
			if b == packetEnd {
				d.state = stateCheckHigh
				break
			}
			if len(d.wire) >= MaxPacketSize {
				glog.Warningf("rsp: packet exceeds %d bytes, discarding", MaxPacketSize)
				d.state = stateIdle
				events = append(events, Event{Kind: EventBadChecksum})
				break
			}
			d.wire = append(d.wire, b)
			d.sum += b
		case stateCheckHigh:
			v, ok := hexNibble(b)
			if !ok {
				glog.Warningf("rsp: bad checksum digit 0x%02x", b)
				d.state = stateIdle
				events = append(events, Event{Kind: EventBadChecksum})
				break
			}
			d.check = v << 4
			d.state = stateCheckLow
		case stateCheckLow:
			v, ok := hexNibble(b)
			d.state = stateIdle
			if !ok || d.check|v != d.sum {
				events = append(events, Event{Kind: EventBadChecksum})
				break
			}
			events = append(events, Event{Kind: EventPacket, Payload: unescape(d.wire)})
		}
	}
	return events
}

func hexNibble(b byte) (uint8, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}

func unescape(wire []byte) []byte {
	out := make([]byte, 0, len(wire))
	esc := false
	for _, b := range wire {
		if esc {
			out = append(out, b^escapeXor)
			esc = false
		} else if b == escapeByte {
			esc = true
		} else {
			out = append(out, b)
		}
	}
	return out
}

// Encode frames a payload for transmission: start marker, escaped body,
// end marker and the checksum of the escaped body.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+5)
	out = append(out, packetStart)
	var sum uint8
	for _, b := range payload {
		switch b {
		case packetStart, packetEnd, escapeByte, '*':
			e := b ^ escapeXor
			out = append(out, escapeByte, e)
			sum += escapeByte + e
		default:
			out = append(out, b)
			sum += b
		}
	}
	return append(out, []byte(fmt.Sprintf("#%02x", sum))...)
}
