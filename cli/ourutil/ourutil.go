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
package ourutil

import (
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
)

// Reportf prints user-facing progress to stderr and mirrors it into the log.
func Reportf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	glog.Infof(f, args...)
}

// Freportf is Reportf to an arbitrary writer.
func Freportf(w io.Writer, f string, args ...interface{}) {
	fmt.Fprintf(w, f+"\n", args...)
	glog.Infof(f, args...)
}
