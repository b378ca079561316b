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
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wiltonos/coherence-pipeline/pkg/api"
)

func TestParseConfig(t *testing.T) {
	opts := Options{
		Engine: `{"sampleRateHz": 4, "smoothingAlpha": 0.5, "bands": [0.8, 0.9]}`,
		Sources: `{"primary": {"name": "main", "url": "http://localhost:5000/status"},
			"fallbacks": [{"url": "http://localhost:5001/status"}]}`,
	}
	cfg, err := ParseConfig(&opts)
	require.NoError(t, err)

	require.Equal(t, 4.0, cfg.Engine.SampleRateHz)
	require.Equal(t, 0.5, cfg.Engine.SmoothingAlpha)
	require.Equal(t, []float64{0.8, 0.9}, cfg.Engine.Bands)
	// omitted engine fields get their defaults
	require.Equal(t, api.DefaultMaxRetries, cfg.Engine.MaxRetries)

	require.Equal(t, "main", cfg.Sources.Primary.Name)
	require.Equal(t, 2000, cfg.Sources.Primary.TimeoutMs)
	require.Len(t, cfg.Sources.Fallbacks, 1)
	// an unnamed fallback is named after its URL
	require.Equal(t, "http://localhost:5001/status", cfg.Sources.Fallbacks[0].Name)
	require.Equal(t, api.DefaultAliases(), cfg.Sources.Aliases)
}

func TestParseConfigEmpty(t *testing.T) {
	cfg, err := ParseConfig(&Options{})
	require.NoError(t, err)
	require.Equal(t, api.DefaultSampleRateHz, cfg.Engine.SampleRateHz)
	require.Empty(t, cfg.Sources.Primary.URL)
}

func TestParseConfigBadJSON(t *testing.T) {
	_, err := ParseConfig(&Options{Engine: `{not json`})
	require.Error(t, err)

	_, err = ParseConfig(&Options{Sources: `[]`})
	require.Error(t, err)
}
