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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeLoopWaitsForSession(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	loopDone := make(chan struct{})
	go func() {
		assert.NoError(t, serveLoop(ctx, ln, func(conn net.Conn) error {
			close(started)
			<-release
			close(finished)
			return nil
		}))
		close(loopDone)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	<-started

	// Shutdown must block on the session, which is still mid-teardown.
	cancel()
	select {
	case <-loopDone:
		t.Fatal("serve loop returned with the session still active")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-loopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("serve loop did not return")
	}
	select {
	case <-finished:
	default:
		t.Error("serve loop returned before the session finished")
	}
}

func TestServeLoopRefusesSecondClient(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	started := make(chan struct{})
	release := make(chan struct{})
	loopDone := make(chan struct{})
	go func() {
		serveLoop(ctx, ln, func(conn net.Conn) error {
			close(started)
			<-release
			return nil
		})
		close(loopDone)
	}()

	first, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer first.Close()
	<-started

	second, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer second.Close()
	second.SetReadDeadline(time.Now().Add(5 * time.Second))
	var b [1]byte
	_, err = second.Read(b[:])
	assert.Error(t, err, "second connection should be closed without a session")

	close(release)
	cancel()
	select {
	case <-loopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("serve loop did not return")
	}
}
