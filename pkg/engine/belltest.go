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
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

var tlog = logrus.WithField("component", "engine.BellTester")

const (
	testLogCap        = 1000
	testSummaryWindow = 10
	perturbationSpan  = 0.05
)

// maxS is the Tsirelson bound 2*sqrt(2), the ceiling of the S-statistic.
var maxS = 2 * math.Sqrt2

// Measurement angle pairs of the four correlation terms. With a fully
// visible signal and zero phase, S reaches the Tsirelson bound.
var testAngles = [4][2]float64{
	{0, math.Pi / 4},             // E(a,b)
	{0, -math.Pi / 4},            // E(a,b')
	{math.Pi / 2, math.Pi / 4},   // E(a',b)
	{math.Pi / 2, -math.Pi / 4},  // E(a',b')
}

// TestResult is the outcome of one correlation test run.
type TestResult struct {
	Correlations [4]float64     `json:"correlations"`
	S            float64        `json:"s"`
	Violation    bool           `json:"violation"`
	Confidence   float64        `json:"confidence"`
	Snapshot     SmoothedSample `json:"snapshot"`
	Timestamp    time.Time      `json:"timestamp"`
}

// TestSummary aggregates the most recent runs.
type TestSummary struct {
	Runs          int     `json:"runs"`
	MeanS         float64 `json:"meanS"`
	ViolationRate float64 `json:"violationRate"`
}

// BellTester runs a synthetic CHSH-style correlation test on its own
// wall-clock schedule, independent of the sampling cadence. It supports
// start/stop and on-demand single runs outside the schedule.
type BellTester struct {
	mu        sync.Mutex
	clk       clock.Clock
	rng       *rand.Rand
	interval  time.Duration
	threshold float64
	snapshot  func() SmoothedSample
	onResult  func(TestResult)
	results   []TestResult
	stop      chan struct{}
	running   bool
}

// NewBellTester wires a tester to a snapshot provider and a result sink.
func NewBellTester(clk clock.Clock, interval time.Duration, threshold float64, snapshot func() SmoothedSample, onResult func(TestResult)) *BellTester {
	return &BellTester{
		clk:       clk,
		rng:       rand.New(rand.NewSource(clk.Now().UnixNano())),
		interval:  interval,
		threshold: threshold,
		snapshot:  snapshot,
		onResult:  onResult,
	}
}

// Start launches the schedule. Idempotent while running.
func (t *BellTester) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stop = make(chan struct{})
	stop := t.stop
	interval := t.interval
	t.mu.Unlock()

	tlog.Infof("starting correlation test schedule, interval=%v", interval)
	go t.loop(stop, interval)
}

func (t *BellTester) loop(stop chan struct{}, interval time.Duration) {
	ticker := t.clk.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			tlog.Debug("correlation test schedule stopped")
			return
		case <-ticker.C:
			t.RunOnce()
		}
	}
}

// Stop halts the schedule. Accumulated results are kept.
func (t *BellTester) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stop)
}

func (t *BellTester) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Reconfigure updates interval and threshold, restarting the schedule if
// it was running so the new interval takes effect atomically.
func (t *BellTester) Reconfigure(interval time.Duration, threshold float64) {
	t.mu.Lock()
	wasRunning := t.running
	t.interval = interval
	t.threshold = threshold
	t.mu.Unlock()
	if wasRunning {
		t.Stop()
		t.Start()
	}
}

// RunOnce performs a single test outside (or inside) the schedule,
// appends the result to the bounded log and emits it.
func (t *BellTester) RunOnce() TestResult {
	t.mu.Lock()
	snap := t.snapshot()
	visibility := Clamp((snap.Primary+snap.Secondary)/2, 0, 1)

	result := TestResult{
		Snapshot:  snap,
		Timestamp: t.clk.Now(),
	}
	for i, pair := range testAngles {
		perturbation := (t.rng.Float64()*2 - 1) * perturbationSpan
		correlation := visibility*math.Cos(pair[0]-pair[1]+snap.Phase) + perturbation
		result.Correlations[i] = Clamp(correlation, -1, 1)
	}
	result.S = math.Abs(result.Correlations[0]+result.Correlations[1]) +
		math.Abs(result.Correlations[2]-result.Correlations[3])
	result.Violation = result.S > t.threshold
	result.Confidence = math.Min(1, result.S/maxS)

	t.results = append(t.results, result)
	if len(t.results) > testLogCap {
		t.results = t.results[1:]
	}
	onResult := t.onResult
	t.mu.Unlock()

	tlog.Debugf("correlation test: S=%.4f violation=%v confidence=%.4f", result.S, result.Violation, result.Confidence)
	if onResult != nil {
		onResult(result)
	}
	return result
}

// LastResult returns the most recent run, if any.
func (t *BellTester) LastResult() (TestResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.results) == 0 {
		return TestResult{}, false
	}
	return t.results[len(t.results)-1], true
}

// Results returns a copy of the bounded result log, oldest first.
func (t *BellTester) Results() []TestResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TestResult, len(t.results))
	copy(out, t.results)
	return out
}

// Summary recomputes the aggregate over the last 10 runs.
func (t *BellTester) Summary() TestSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	window := t.results
	if len(window) > testSummaryWindow {
		window = window[len(window)-testSummaryWindow:]
	}
	summary := TestSummary{Runs: len(t.results)}
	if len(window) == 0 {
		return summary
	}
	violations := 0
	for _, r := range window {
		summary.MeanS += r.S
		if r.Violation {
			violations++
		}
	}
	summary.MeanS /= float64(len(window))
	summary.ViolationRate = float64(violations) / float64(len(window))
	return summary
}
