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
	goflag "flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/cesanta/nfp-debug-tools/cli/ourutil"
	"github.com/cesanta/nfp-debug-tools/common/pflagenv"
	"github.com/cesanta/nfp-debug-tools/version"
)

const envPrefix = "NFP_"

var (
	versionFlag = flag.Bool("version", false, "Print version and exit")

	// glog registers on the stdlib flag set; absorbed into pflag below.
	hiddenFlags = []string{
		"alsologtostderr",
		"log_backtrace_at",
		"log_dir",
		"logbufsecs",
		"logtostderr",
		"stderrthreshold",
		"v",
		"vmodule",
	}
)

func initFlags() {
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	for _, name := range hiddenFlags {
		flag.CommandLine.MarkHidden(name)
	}
	flag.Usage = usage
}

type command struct {
	name     string
	handler  func(ctx context.Context) error
	short    string
	required []string
}

var commands = []command{
	{"rsp", rspMain, "Serve the GDB remote protocol for one RFPC core", []string{"device"}},
	{"reg", regMain, "Read or write an RFPC register: reg <name> [value]", []string{"device"}},
	{"xpb", xpbMain, "Raw XPB access: xpb <island> <addr> [value]", []string{"device"}},
}

func usage() {
	fmt.Fprintf(os.Stderr, "%s\n\nUsage: %s [flags] <command> [args...]\n\nCommands:\n",
		version.String(), os.Args[0])
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.short)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n%s", flag.CommandLine.FlagUsages())
}

func checkFlags(required []string) error {
	for _, name := range required {
		f := flag.Lookup(name)
		if f == nil || !f.Changed {
			return errors.Errorf("--%s is required", name)
		}
	}
	return nil
}

func run() error {
	if flag.NArg() == 0 {
		usage()
		return nil
	}
	for _, c := range commands {
		if c.name != flag.Arg(0) {
			continue
		}
		if err := checkFlags(c.required); err != nil {
			return errors.Trace(err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return errors.Trace(c.handler(ctx))
	}
	usage()
	return errors.Errorf("unknown command %q", flag.Arg(0))
}

func main() {
	defer glog.Flush()
	initFlags()
	flag.Parse()
	if err := pflagenv.Parse(envPrefix); err != nil {
		ourutil.Reportf("Error: %v", err)
		os.Exit(1)
	}
	if *versionFlag {
		fmt.Println(version.String())
		return
	}
	if err := run(); err != nil {
		ourutil.Reportf("Error: %v", err)
		glog.V(1).Infof("%s", errors.ErrorStack(err))
		os.Exit(1)
	}
}
