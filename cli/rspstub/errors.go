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
	"fmt"

	"github.com/juju/errors"
)

// Protocol error codes sent to the client in Exx replies. A protocol error
// is a property of the request, not of the device link: the session keeps
// running after reporting it. Anything that is not a protoError is a
// transport fault and terminates the session.
const (
	codeMalformed   uint8 = 0x01 // unparseable packet body
	codeUnmapped    uint8 = 0x02 // address outside every region
	codePermission  uint8 = 0x03 // access kind not allowed by the region
	codeBusy        uint8 = 0x04 // target running, command needs it halted
	codeBreakpoint  uint8 = 0x05 // breakpoint bookkeeping (remove of unknown)
	codeRegister    uint8 = 0x06 // register index out of range
	codeUnsupported uint8 = 0x07 // region exists but is not serviceable
)

type protoError struct {
	code uint8
	msg  string
}

func (e *protoError) Error() string {
	return fmt.Sprintf("E%02x: %s", e.code, e.msg)
}

func protoErrorf(code uint8, format string, args ...interface{}) error {
	return &protoError{code: code, msg: fmt.Sprintf(format, args...)}
}

// protoCode extracts the client-visible error code, if err is (or wraps) a
// protocol error.
func protoCode(err error) (uint8, bool) {
	if pe, ok := errors.Cause(err).(*protoError); ok {
		return pe.code, true
	}
	return 0, false
}
