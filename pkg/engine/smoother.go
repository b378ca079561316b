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

package engine

import (
	"time"

	"github.com/wiltonos/coherence-pipeline/pkg/api"
)

const historyCap = 100

// Initial smoothed state: the 3:1 stability/exploration split used by the
// upstream service.
const (
	initialPrimary   = 0.75
	initialSecondary = 0.25
)

// SmoothedSample is one tick of EMA output.
type SmoothedSample struct {
	Primary   float64   `json:"primary"`
	Secondary float64   `json:"secondary"`
	Phase     float64   `json:"phase"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
}

// Smoother keeps the exponential moving average of the primary/secondary
// channels plus a bounded ring of recent smoothed values. It is not
// goroutine safe: the engine mutex serializes access.
type Smoother struct {
	alpha   float64
	current SmoothedSample
	history []SmoothedSample
}

// NewSmoother builds a smoother with the given history weight. alpha is
// clamped to (0,1]; with alpha=1 the state never moves.
func NewSmoother(alpha float64) *Smoother {
	s := &Smoother{
		current: SmoothedSample{
			Primary:   initialPrimary,
			Secondary: initialSecondary,
		},
	}
	s.SetAlpha(alpha)
	return s
}

// SetAlpha reconfigures the history weight without resetting the state.
func (s *Smoother) SetAlpha(alpha float64) {
	s.alpha = Clamp(alpha, 0.01, 1)
}

func (s *Smoother) Alpha() float64 {
	return s.alpha
}

// Update folds one sanitized sample into the EMA and appends the result
// to the history ring.
func (s *Smoother) Update(sample api.Sample, now time.Time) SmoothedSample {
	s.current.Primary = s.current.Primary*s.alpha + sample.Primary*(1-s.alpha)
	s.current.Secondary = s.current.Secondary*s.alpha + sample.Secondary*(1-s.alpha)
	s.current.Phase = sample.Phase
	s.current.Label = sample.Label
	s.current.Timestamp = now

	s.history = append(s.history, s.current)
	if len(s.history) > historyCap {
		s.history = s.history[1:]
	}
	return s.current
}

// Current returns the latest smoothed state.
func (s *Smoother) Current() SmoothedSample {
	return s.current
}

// History returns a copy of the retained smoothed values, oldest first.
func (s *Smoother) History() []SmoothedSample {
	out := make([]SmoothedSample, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Smoother) Len() int {
	return len(s.history)
}
