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
package main

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/cesanta/nfp-debug-tools/cli/devutil"
	"github.com/cesanta/nfp-debug-tools/cli/flags"
	"github.com/cesanta/nfp-debug-tools/cli/ourutil"
	"github.com/cesanta/nfp-debug-tools/cli/rspstub"
	"github.com/cesanta/nfp-debug-tools/nfp/expbar"
	"github.com/cesanta/nfp-debug-tools/nfp/rfpc"
)

func rspMain(ctx context.Context) error {
	settings, err := loadStubSettings(*flags.ConfigFile)
	if err != nil {
		return errors.Trace(err)
	}
	bdf, err := devutil.CheckDevice(*flags.Device)
	if err != nil {
		return errors.Trace(err)
	}
	dev, err := expbar.Open(bdf)
	if err != nil {
		return errors.Trace(err)
	}
	defer dev.Close()

	port := rfpc.NewDebugPort(dev.XPB(), dev.CTM(), settings.core)
	port.Wait = settings.wait
	if err := rfpc.InitMemCtl(ctx, dev.XPB(), settings.core); err != nil {
		return errors.Trace(err)
	}

	ln, err := net.Listen("tcp", settings.listenAddr)
	if err != nil {
		return errors.Annotatef(err, "failed to listen on %s", settings.listenAddr)
	}
	defer ln.Close()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	ourutil.Reportf("Serving %s on %s, target %s", bdf, settings.listenAddr, settings.core)

	return errors.Trace(serveLoop(ctx, ln, func(conn net.Conn) error {
		return rspstub.Serve(ctx, conn, port, settings.pollInterval)
	}))
}

// serveLoop accepts debugger connections until ctx is canceled. One debugger
// at a time: the debug module has a single hart window and the session
// assumes exclusive ownership of it. The loop waits for the active session
// to finish before returning, so the breakpoint-restoring teardown is never
// cut short by process exit.
func serveLoop(ctx context.Context, ln net.Listener, handle func(net.Conn) error) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	var busy int32
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				ourutil.Reportf("Shutting down")
				return nil
			}
			return errors.Annotatef(err, "accept failed")
		}
		if !atomic.CompareAndSwapInt32(&busy, 0, 1) {
			glog.Warningf("refusing %s: another debugger is attached", conn.RemoteAddr())
			conn.Close()
			continue
		}
		ourutil.Reportf("Debugger connected from %s", conn.RemoteAddr())
		wg.Add(1)
		go func(conn net.Conn) {
			defer wg.Done()
			defer atomic.StoreInt32(&busy, 0)
			if err := handle(conn); err != nil {
				ourutil.Reportf("Session ended with error: %v", err)
			} else {
				ourutil.Reportf("Debugger disconnected")
			}
		}(conn)
	}
}
