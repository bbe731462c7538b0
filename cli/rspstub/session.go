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

// Package rspstub serves the GDB Remote Serial Protocol for one RFPC core:
// one debugger connection at a time, commands dispatched against a
// halt/resume state machine over the core's debug access port.
package rspstub

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/cesanta/nfp-debug-tools/common/rsp"
	"github.com/cesanta/nfp-debug-tools/nfp/rfpc"
)

const (
	defaultPollInterval = 20 * time.Millisecond
	teardownTimeout     = 3 * time.Second
)

type inbound struct {
	ev  rsp.Event
	err error
}

// session owns one debugger connection. All writes to the connection happen
// on the session goroutine; the reader goroutine only decodes.
type session struct {
	conn   net.Conn
	tgt    *target
	events chan inbound
	done   chan struct{}
	noAck  bool
	poll   time.Duration
}

// Serve runs a debug session on conn until the client disconnects, the
// context is canceled, or the device link faults. It halts the core on
// attach and restores all planted breakpoints before returning. The
// connection is closed on return.
func Serve(ctx context.Context, conn net.Conn, port rfpc.CorePort, pollInterval time.Duration) error {
	defer conn.Close()
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	tgt, err := attach(ctx, port)
	if err != nil {
		return errors.Trace(err)
	}
	s := &session{
		conn:   conn,
		tgt:    tgt,
		events: make(chan inbound, 16),
		done:   make(chan struct{}),
		poll:   pollInterval,
	}
	defer close(s.done)
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if terr := tgt.teardown(tctx); terr != nil {
			glog.Errorf("session teardown: %v", terr)
		}
	}()
	go s.readLoop()
	return errors.Trace(s.run(ctx))
}

// readLoop decodes the connection's byte stream into protocol events. It
// exits when the connection is closed, which Serve guarantees on return.
func (s *session) readLoop() {
	var dec rsp.Decoder
	buf := make([]byte, 4096)
	for {
		n, err := s.conn.Read(buf)
		for _, ev := range dec.Feed(buf[:n]) {
			if !s.post(inbound{ev: ev}) {
				return
			}
		}
		if err != nil {
			s.post(inbound{err: err})
			return
		}
	}
}

func (s *session) post(in inbound) bool {
	select {
	case s.events <- in:
		return true
	case <-s.done:
		return false
	}
}

func (s *session) run(ctx context.Context) error {
	timer := time.NewTimer(s.poll)
	defer timer.Stop()
	for {
		if s.tgt.running() {
			select {
			case in := <-s.events:
				done, err := s.handle(ctx, in)
				if done || err != nil {
					return errors.Trace(err)
				}
			case <-timer.C:
				// An interrupt that raced the timer goes first.
				done, err := s.drainInterrupts(ctx)
				if done || err != nil {
					return errors.Trace(err)
				}
				if s.tgt.running() {
					halted, err := s.tgt.poll(ctx)
					if err != nil {
						return errors.Trace(err)
					}
					if halted {
						if err := s.send(s.tgt.stopReply()); err != nil {
							return errors.Trace(err)
						}
					}
				}
			case <-ctx.Done():
				return ctx.Err()
			}
			timer.Reset(s.poll)
			continue
		}
		select {
		case in := <-s.events:
			done, err := s.handle(ctx, in)
			if done || err != nil {
				return errors.Trace(err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drainInterrupts consumes every already-queued event without blocking,
// servicing interrupts and replying to anything else as usual. It returns
// done=true when one of the drained events ends the session, such as a
// disconnect or a detach packet.
func (s *session) drainInterrupts(ctx context.Context) (bool, error) {
	for {
		select {
		case in := <-s.events:
			done, err := s.handle(ctx, in)
			if done || err != nil {
				return done, errors.Trace(err)
			}
		default:
			return false, nil
		}
	}
}

// handle services one decoded event. It returns done=true when the session
// should end cleanly.
func (s *session) handle(ctx context.Context, in inbound) (bool, error) {
	if in.err != nil {
		if in.err == io.EOF {
			glog.V(1).Info("client disconnected")
			return true, nil
		}
		return true, errors.Annotatef(in.err, "connection read")
	}
	switch in.ev.Kind {
	case rsp.EventInterrupt:
		glog.V(2).Info("rsp: interrupt")
		if !s.tgt.running() {
			return false, nil
		}
		if err := s.tgt.interrupt(ctx); err != nil {
			return false, errors.Trace(err)
		}
		return false, errors.Trace(s.send(s.tgt.stopReply()))

	case rsp.EventBadChecksum:
		glog.Warning("rsp: packet with bad checksum")
		if !s.noAck {
			return false, errors.Trace(s.writeRaw([]byte{rsp.Nak}))
		}
		return false, nil

	case rsp.EventPacket:
		glog.V(2).Infof("rsp: <- %q", in.ev.Payload)
		if !s.noAck {
			if err := s.writeRaw([]byte{rsp.Ack}); err != nil {
				return false, errors.Trace(err)
			}
		}
		res, err := dispatch(ctx, s.tgt, in.ev.Payload)
		if err != nil {
			return false, errors.Trace(err)
		}
		if !res.deferred && !res.noReply {
			if err := s.send(res.reply); err != nil {
				return false, errors.Trace(err)
			}
		}
		if res.startNoAck {
			s.noAck = true
		}
		return res.disconnect, nil
	}
	return false, nil
}

func (s *session) send(payload string) error {
	glog.V(2).Infof("rsp: -> %q", payload)
	return errors.Trace(s.writeRaw(rsp.Encode([]byte(payload))))
}

func (s *session) writeRaw(data []byte) error {
	_, err := s.conn.Write(data)
	return errors.Annotatef(err, "connection write")
}
