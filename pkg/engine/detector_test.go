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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wiltonos/coherence-pipeline/pkg/api"
)

func testConfig() api.EngineConfig {
	cfg := api.EngineConfig{}
	cfg.Correct()
	return cfg
}

func feed(d *Detector, primaries ...float64) [][]AnomalyEvent {
	var out [][]AnomalyEvent
	for _, p := range primaries {
		sample := api.Sample{Primary: p, Secondary: 0.5}
		out = append(out, d.Evaluate(sample, SmoothedSample{Primary: p}, time.Now()))
	}
	return out
}

func eventsOfKind(events []AnomalyEvent, kind EventKind) []AnomalyEvent {
	var out []AnomalyEvent
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestBandCrossingEdgeTriggered(t *testing.T) {
	d := NewDetector(testConfig())

	// crosses 0.9 once up, stays above, then once down
	ticks := feed(d, 0.5, 0.92, 0.93, 0.94, 0.5)

	var ups, downs int
	for _, events := range ticks {
		for _, ev := range eventsOfKind(events, EventBandUp) {
			if ev.Band == 0.9 {
				ups++
			}
		}
		for _, ev := range eventsOfKind(events, EventBandDown) {
			if ev.Band == 0.9 {
				downs++
			}
		}
	}
	require.Equal(t, 1, ups)
	require.Equal(t, 1, downs)
}

func TestBandFirstSampleDoesNotFire(t *testing.T) {
	d := NewDetector(testConfig())
	events := feed(d, 0.95)
	require.Empty(t, eventsOfKind(events[0], EventBandUp))
	require.Empty(t, eventsOfKind(events[0], EventBandDown))
}

func TestDeltaSpike(t *testing.T) {
	d := NewDetector(testConfig())
	ticks := feed(d, 0.5, 0.52, 0.60, 0.60)

	require.Empty(t, eventsOfKind(ticks[1], EventDeltaSpike), "0.02 is under the threshold")
	spikes := eventsOfKind(ticks[2], EventDeltaSpike)
	require.Len(t, spikes, 1)
	require.InDelta(t, 0.08, spikes[0].Delta, 1e-12)
	require.Empty(t, eventsOfKind(ticks[3], EventDeltaSpike))
}

func TestDeltaSpikeExactThresholdDoesNotFire(t *testing.T) {
	cfg := testConfig()
	cfg.DeltaThreshold = 0.25
	d := NewDetector(cfg)
	ticks := feed(d, 0.50, 0.75)
	require.Empty(t, eventsOfKind(ticks[1], EventDeltaSpike))
}

func TestLabelChanged(t *testing.T) {
	d := NewDetector(testConfig())
	now := time.Now()

	d.Evaluate(api.Sample{Primary: 0.5, Label: "stable"}, SmoothedSample{Primary: 0.5}, now)
	events := d.Evaluate(api.Sample{Primary: 0.5, Label: "drift"}, SmoothedSample{Primary: 0.5}, now)
	changes := eventsOfKind(events, EventLabelChanged)
	require.Len(t, changes, 1)
	require.Equal(t, "stable", changes[0].PreviousLabel)
	require.Equal(t, "drift", changes[0].Label)

	events = d.Evaluate(api.Sample{Primary: 0.5, Label: "drift"}, SmoothedSample{Primary: 0.5}, now)
	require.Empty(t, eventsOfKind(events, EventLabelChanged))
}

func TestCollapseLevelTriggered(t *testing.T) {
	d := NewDetector(testConfig())
	now := time.Now()
	sample := api.Sample{Primary: 0.95, Locked: true, Intensity: 0.5}
	smoothed := SmoothedSample{Primary: 0.93}

	// fires on every tick the condition holds, by design
	for i := 0; i < 5; i++ {
		events := d.Evaluate(sample, smoothed, now)
		require.Len(t, eventsOfKind(events, EventCollapse), 1)
	}
	require.Len(t, d.CollapseLog(), 5)

	// condition released: no more events
	events := d.Evaluate(api.Sample{Primary: 0.95, Locked: false}, smoothed, now)
	require.Empty(t, eventsOfKind(events, EventCollapse))
	events = d.Evaluate(sample, SmoothedSample{Primary: 0.5}, now)
	require.Empty(t, eventsOfKind(events, EventCollapse))
}

func TestCollapseSeverityTiers(t *testing.T) {
	require.Equal(t, SeverityDeep, collapseSeverity(0.96, 0.9))
	require.Equal(t, SeverityStandard, collapseSeverity(0.96, 0.5))
	require.Equal(t, SeverityStandard, collapseSeverity(0.93, 0.9))
	require.Equal(t, SeverityLight, collapseSeverity(0.91, 0.2))
}

func TestCollapseLogBounded(t *testing.T) {
	d := NewDetector(testConfig())
	now := time.Now()
	sample := api.Sample{Primary: 0.95, Locked: true}
	for i := 0; i < collapseLogCap+10; i++ {
		d.Evaluate(sample, SmoothedSample{Primary: 0.95}, now)
	}
	require.Len(t, d.CollapseLog(), collapseLogCap)
}

func TestReconfigurePreservesBandState(t *testing.T) {
	cfg := testConfig()
	d := NewDetector(cfg)
	feed(d, 0.5, 0.92)

	// same band levels: no re-fire of the crossing that already happened
	d.Reconfigure(cfg)
	events := feed(d, 0.93)
	require.Empty(t, eventsOfKind(events[0], EventBandUp))
}

// The end-to-end vector: one upward 0.9 crossing after the 3rd sample and
// one downward after the 5th, with the smoother running alongside.
func TestEndToEndBandCrossings(t *testing.T) {
	s := NewSmoother(0.85)
	d := NewDetector(testConfig())
	now := time.Now()

	inputs := []float64{0.70, 0.75, 0.92, 0.93, 0.60}
	var crossings []AnomalyEvent
	for _, v := range inputs {
		sample := api.Sample{Primary: v, Secondary: 0.5}
		smoothed := s.Update(sample, now)
		for _, ev := range d.Evaluate(sample, smoothed, now) {
			if (ev.Kind == EventBandUp || ev.Kind == EventBandDown) && ev.Band == 0.9 {
				crossings = append(crossings, ev)
			}
		}
	}

	require.Len(t, crossings, 2)
	require.Equal(t, EventBandUp, crossings[0].Kind)
	require.InDelta(t, 0.92, crossings[0].Current, 1e-12)
	require.Equal(t, EventBandDown, crossings[1].Kind)
	require.InDelta(t, 0.60, crossings[1].Current, 1e-12)
}
