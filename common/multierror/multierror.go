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

// Package multierror accumulates errors from multi-step cleanup paths where
// a failure must not stop the remaining steps.
package multierror

import (
	"bytes"
	"fmt"
)

// Error is a list of errors presenting itself as a single one.
type Error struct {
	errs []error
}

func (e *Error) Error() string {
	if len(e.errs) == 1 {
		return e.errs[0].Error()
	}
	buf := bytes.NewBuffer(nil)
	fmt.Fprintf(buf, "%d errors occurred:", len(e.errs))
	for _, err := range e.errs {
		fmt.Fprintf(buf, "\n  %s", err)
	}
	return buf.String()
}

// Errors returns the accumulated errors.
func (e *Error) Errors() []error {
	return e.errs
}

// Append merges err and errs into one error value. Nil entries are skipped;
// the result is nil when nothing remains, so the usual
// `err = multierror.Append(err, step())` pattern composes with a final
// `if err != nil` check.
func Append(err error, errs ...error) error {
	var all []error
	if me, ok := err.(*Error); ok {
		all = me.errs
	} else if err != nil {
		all = []error{err}
	}
	for _, e := range errs {
		if me, ok := e.(*Error); ok {
			all = append(all, me.errs...)
		} else if e != nil {
			all = append(all, e)
		}
	}
	if len(all) == 0 {
		return nil
	}
	return &Error{errs: all}
}
