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

package source

import (
	"math"
	"time"

	ms "github.com/mitchellh/mapstructure"
	"github.com/wiltonos/coherence-pipeline/pkg/api"
)

// Extractor maps a decoded JSON payload to a Sample using ordered alias
// lists: for each logical field the first alias present in the payload
// wins. Absent or unparsable numeric fields come out as NaN and are left
// for the engine sanitizer to replace.
type Extractor struct {
	aliases api.SampleAliases
}

func NewExtractor(aliases api.SampleAliases) *Extractor {
	aliases.Correct()
	return &Extractor{aliases: aliases}
}

// Extract builds a Sample from the payload at the given timestamp.
func (e *Extractor) Extract(payload map[string]interface{}, now time.Time) api.Sample {
	return api.Sample{
		Primary:   firstFloat(payload, e.aliases.Primary),
		Secondary: firstFloat(payload, e.aliases.Secondary),
		Phase:     zeroIfNaN(firstFloat(payload, e.aliases.Phase)),
		Intensity: zeroIfNaN(firstFloat(payload, e.aliases.Intensity)),
		Locked:    firstBool(payload, e.aliases.Locked),
		Label:     firstString(payload, e.aliases.Label),
		Timestamp: now,
	}
}

func firstFloat(payload map[string]interface{}, aliases []string) float64 {
	for _, key := range aliases {
		if raw, ok := payload[key]; ok {
			if f, ok := toFloat(raw); ok {
				return f
			}
		}
	}
	return math.NaN()
}

func firstBool(payload map[string]interface{}, aliases []string) bool {
	for _, key := range aliases {
		if raw, ok := payload[key]; ok {
			var b bool
			if weakDecode(raw, &b) {
				return b
			}
		}
	}
	return false
}

func firstString(payload map[string]interface{}, aliases []string) string {
	for _, key := range aliases {
		if raw, ok := payload[key]; ok {
			var s string
			if weakDecode(raw, &s) && s != "" {
				return s
			}
		}
	}
	return ""
}

// toFloat coerces JSON numbers and numeric strings alike.
func toFloat(raw interface{}) (float64, bool) {
	var f float64
	if !weakDecode(raw, &f) {
		return 0, false
	}
	return f, true
}

func weakDecode(raw, out interface{}) bool {
	decoder, err := ms.NewDecoder(&ms.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return false
	}
	return decoder.Decode(raw) == nil
}

func zeroIfNaN(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return f
}
