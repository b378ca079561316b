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
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wiltonos/coherence-pipeline/pkg/api"
)

var dlog = logrus.WithField("component", "engine.Detector")

const collapseLogCap = 20

type EventKind string

const (
	EventDeltaSpike   EventKind = "delta-spike"
	EventBandUp       EventKind = "band-up"
	EventBandDown     EventKind = "band-down"
	EventLabelChanged EventKind = "label-changed"
	EventCollapse     EventKind = "collapse"
)

// Collapse severity tiers, ordered by depth.
const (
	SeverityLight    = "light"
	SeverityStandard = "standard"
	SeverityDeep     = "deep"
)

// AnomalyEvent is one discrete event derived from a tick.
type AnomalyEvent struct {
	Kind          EventKind `json:"kind"`
	Band          float64   `json:"band,omitempty"`
	Severity      string    `json:"severity,omitempty"`
	Previous      float64   `json:"previous"`
	Current       float64   `json:"current"`
	Delta         float64   `json:"delta"`
	PreviousLabel string    `json:"previousLabel,omitempty"`
	Label         string    `json:"label,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type bandState struct {
	level    float64
	wasAbove bool
}

// Detector derives discrete events from the sample stream. Band crossings,
// delta spikes and label changes are edge-triggered against the sanitized
// raw primary; collapse is level-triggered against the smoothed primary
// and fires on every tick the condition holds. Not goroutine safe: the
// engine mutex serializes access.
type Detector struct {
	deltaThreshold     float64
	sustainedThreshold float64
	bands              []bandState

	prevPrimary float64
	prevLabel   string
	primed      bool

	collapseLog []AnomalyEvent
}

func NewDetector(cfg api.EngineConfig) *Detector {
	d := &Detector{}
	d.Reconfigure(cfg)
	return d
}

// Reconfigure applies new thresholds. Per-band crossing state is carried
// over for bands that keep their level, so a hot reload does not re-fire
// crossings that already happened.
func (d *Detector) Reconfigure(cfg api.EngineConfig) {
	d.deltaThreshold = cfg.DeltaThreshold
	d.sustainedThreshold = cfg.SustainedThreshold
	previous := d.bands
	d.bands = make([]bandState, 0, len(cfg.Bands))
	for _, level := range cfg.Bands {
		state := bandState{level: level}
		for _, old := range previous {
			if old.level == level {
				state.wasAbove = old.wasAbove
			}
		}
		d.bands = append(d.bands, state)
	}
}

// Evaluate inspects one tick and returns the events it triggers.
func (d *Detector) Evaluate(raw api.Sample, smoothed SmoothedSample, now time.Time) []AnomalyEvent {
	var out []AnomalyEvent

	if d.primed {
		delta := raw.Primary - d.prevPrimary
		if math.Abs(delta) > d.deltaThreshold {
			out = append(out, AnomalyEvent{
				Kind:      EventDeltaSpike,
				Previous:  d.prevPrimary,
				Current:   raw.Primary,
				Delta:     delta,
				Timestamp: now,
			})
		}
		if raw.Label != d.prevLabel {
			out = append(out, AnomalyEvent{
				Kind:          EventLabelChanged,
				Previous:      d.prevPrimary,
				Current:       raw.Primary,
				PreviousLabel: d.prevLabel,
				Label:         raw.Label,
				Timestamp:     now,
			})
		}
	}

	for i := range d.bands {
		band := &d.bands[i]
		above := raw.Primary >= band.level
		if !d.primed {
			// first observation seeds the flag without firing
			band.wasAbove = above
			continue
		}
		if above == band.wasAbove {
			continue
		}
		kind := EventBandUp
		if !above {
			kind = EventBandDown
		}
		band.wasAbove = above
		out = append(out, AnomalyEvent{
			Kind:      kind,
			Band:      band.level,
			Previous:  d.prevPrimary,
			Current:   raw.Primary,
			Delta:     raw.Primary - d.prevPrimary,
			Timestamp: now,
		})
	}

	// level-triggered on purpose: a sustained collapse keeps firing and
	// keeps appending to the bounded log
	if smoothed.Primary > d.sustainedThreshold && raw.Locked {
		ev := AnomalyEvent{
			Kind:      EventCollapse,
			Severity:  collapseSeverity(smoothed.Primary, raw.Intensity),
			Previous:  d.prevPrimary,
			Current:   smoothed.Primary,
			Delta:     raw.Intensity,
			Timestamp: now,
		}
		out = append(out, ev)
		d.collapseLog = append(d.collapseLog, ev)
		if len(d.collapseLog) > collapseLogCap {
			d.collapseLog = d.collapseLog[1:]
		}
		dlog.Debugf("collapse severity=%s primary=%.4f intensity=%.4f", ev.Severity, smoothed.Primary, raw.Intensity)
	}

	d.prevPrimary = raw.Primary
	d.prevLabel = raw.Label
	d.primed = true
	return out
}

func collapseSeverity(primary, intensity float64) string {
	switch {
	case primary > 0.95 && intensity > 0.8:
		return SeverityDeep
	case primary > 0.92:
		return SeverityStandard
	default:
		return SeverityLight
	}
}

// CollapseLog returns a copy of the bounded collapse log, oldest first.
func (d *Detector) CollapseLog() []AnomalyEvent {
	out := make([]AnomalyEvent, len(d.collapseLog))
	copy(out, d.collapseLog)
	return out
}
