/*
 * Copyright (C) 2024 WiltonOS, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package config

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/wiltonos/coherence-pipeline/pkg/api"
)

var clog = logrus.WithField("component", "config")

// Options holds the raw command line / environment values before parsing.
type Options struct {
	Engine  string
	Sources string
	Health  Health
	Metrics MetricsSettings
	Profile Profile
}

type Health struct {
	Address string
	Port    string
}

// MetricsSettings configures the prometheus endpoint.
type MetricsSettings struct {
	Address  string
	Port     int
	Disabled bool
}

type Profile struct {
	Port int
}

// SourcesConfig describes the primary endpoint, the ordered fallback
// chain and the payload field aliases.
type SourcesConfig struct {
	Primary   api.SourceSpec    `yaml:"primary" json:"primary"`
	Fallbacks []api.SourceSpec  `yaml:"fallbacks,omitempty" json:"fallbacks,omitempty"`
	Aliases   api.SampleAliases `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Correct applies defaults to every nested spec.
func (s *SourcesConfig) Correct() {
	s.Primary.Correct()
	for i := range s.Fallbacks {
		s.Fallbacks[i].Correct()
	}
	s.Aliases.Correct()
}

// ConfigFileStruct is the internal representation of the whole
// configuration.
type ConfigFileStruct struct {
	Engine  api.EngineConfig `yaml:"engine,omitempty" json:"engine,omitempty"`
	Sources SourcesConfig    `yaml:"sources" json:"sources"`
}

// ParseConfig creates the internal unmarshalled representation from the
// Engine and Sources json strings.
func ParseConfig(opts *Options) (ConfigFileStruct, error) {
	out := ConfigFileStruct{}
	clog.Debugf("opts.Engine = %v", opts.Engine)
	if opts.Engine != "" {
		if err := jsoniter.Unmarshal([]byte(opts.Engine), &out.Engine); err != nil {
			clog.Errorf("error reading engine config: %v", err)
			return out, err
		}
	}
	clog.Debugf("opts.Sources = %v", opts.Sources)
	if opts.Sources != "" {
		if err := jsoniter.Unmarshal([]byte(opts.Sources), &out.Sources); err != nil {
			clog.Errorf("error reading sources config: %v", err)
			return out, err
		}
	}
	out.Engine.Correct()
	out.Sources.Correct()
	return out, nil
}
