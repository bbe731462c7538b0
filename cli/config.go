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
	"os"
	"time"

	"github.com/juju/errors"
	flag "github.com/spf13/pflag"
	yaml "gopkg.in/yaml.v2"

	"github.com/cesanta/nfp-debug-tools/cli/flags"
	"github.com/cesanta/nfp-debug-tools/nfp/rfpc"
)

// stubConfig is the YAML config of the rsp command. Every field has a flag
// counterpart; an explicit flag beats the file.
type stubConfig struct {
	ListenAddr   string `yaml:"listen_addr"`
	PollInterval string `yaml:"poll_interval"`
	Wait         string `yaml:"wait"`
	Core         struct {
		Island  string `yaml:"island"`
		Cluster int    `yaml:"cluster"`
		Group   int    `yaml:"group"`
		Core    int    `yaml:"core"`
	} `yaml:"core"`
}

// stubSettings is the merged result of defaults, config file and flags.
type stubSettings struct {
	listenAddr   string
	pollInterval time.Duration
	wait         time.Duration
	core         rfpc.Core
}

func flagChanged(name string) bool {
	f := flag.Lookup(name)
	return f != nil && f.Changed
}

func loadStubSettings(path string) (*stubSettings, error) {
	s := &stubSettings{
		listenAddr:   *flags.ListenAddr,
		pollInterval: *flags.PollInterval,
		wait:         *flags.Wait,
	}
	island, cluster, group, coreNum := *flags.Island, *flags.Cluster, *flags.Group, *flags.CoreNum

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to read config")
		}
		var cfg stubConfig
		if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
			return nil, errors.Annotatef(err, "failed to parse %s", path)
		}
		if cfg.ListenAddr != "" && !flagChanged("listen-addr") {
			s.listenAddr = cfg.ListenAddr
		}
		if cfg.PollInterval != "" && !flagChanged("poll-interval") {
			if s.pollInterval, err = time.ParseDuration(cfg.PollInterval); err != nil {
				return nil, errors.Annotatef(err, "bad poll_interval")
			}
		}
		if cfg.Wait != "" && !flagChanged("wait") {
			if s.wait, err = time.ParseDuration(cfg.Wait); err != nil {
				return nil, errors.Annotatef(err, "bad wait")
			}
		}
		if cfg.Core.Island != "" && !flagChanged("island") {
			island = cfg.Core.Island
		}
		if !flagChanged("cluster") {
			cluster = cfg.Core.Cluster
		}
		if !flagChanged("group") {
			group = cfg.Core.Group
		}
		if !flagChanged("core") {
			coreNum = cfg.Core.Core
		}
	}

	core, err := flags.MakeCore(island, cluster, group, coreNum)
	if err != nil {
		return nil, errors.Trace(err)
	}
	s.core = core
	return s, nil
}
