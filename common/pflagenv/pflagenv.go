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

// Package pflagenv fills unset flags from the environment: with prefix
// "NFP_", a flag --listen-addr that was not given on the command line takes
// its value from $NFP_LISTEN_ADDR. Explicit command-line values always win.
package pflagenv

import (
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/pflag"
)

// ParseFlagSet applies environment values to every flag of fs that was not
// set on the command line. Call it after fs.Parse, or flags set from the
// environment would be indistinguishable from explicit ones.
func ParseFlagSet(fs *pflag.FlagSet, envPrefix string) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || err != nil {
			return
		}
		name := envName(f.Name, envPrefix)
		value, ok := os.LookupEnv(name)
		if !ok {
			return
		}
		if serr := f.Value.Set(value); serr != nil {
			err = errors.Annotatef(serr, "invalid value for %s", name)
			return
		}
		f.Changed = true
	})
	return err
}

// Parse is ParseFlagSet on the process-wide pflag.CommandLine set.
func Parse(envPrefix string) error {
	return ParseFlagSet(pflag.CommandLine, envPrefix)
}

func envName(flagName, envPrefix string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
