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
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	jsoniter "github.com/json-iterator/go"
	ms "github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/wiltonos/coherence-pipeline/pkg/api"
	"github.com/wiltonos/coherence-pipeline/pkg/config"
	"github.com/wiltonos/coherence-pipeline/pkg/events"
	"github.com/wiltonos/coherence-pipeline/pkg/operational"
)

var elog = logrus.WithField("component", "engine.Engine")

var samplesProcessed = operational.DefineMetric(
	"engine_samples_processed",
	"Counter of samples folded into the smoothed state",
	operational.TypeCounter,
	"origin",
)

// Engine owns the whole pipeline: source sync, sanitizing, smoothing,
// anomaly detection, validation, the scheduled correlation test and the
// event bus. One mutex serializes all state mutation; the periodic loops
// hand their results to the engine through callbacks that take that lock.
type Engine struct {
	mu        sync.Mutex
	cfg       api.EngineConfig
	clk       clock.Clock
	bus       *events.Bus
	smoother  *Smoother
	detector  *Detector
	validator *Validator
	tester    *BellTester
	sync      *SourceSync
	lastRaw   api.Sample
	hasSample bool
	started   bool
	disposed  bool

	processed *prometheus.CounterVec
}

// Status is the read-only snapshot served to external consumers.
type Status struct {
	Started        bool            `json:"started"`
	Connected      bool            `json:"connected"`
	Retries        int             `json:"retries"`
	LastSample     api.Sample      `json:"lastSample"`
	HasSample      bool            `json:"hasSample"`
	Smoothed       SmoothedSample  `json:"smoothed"`
	ListenerCounts map[string]int  `json:"listenerCounts"`
	LastTestResult *TestResult     `json:"lastTestResult,omitempty"`
}

// ExportDocument is the on-demand serialization of all bounded logs and
// history. It is the only durable artifact the engine produces.
type ExportDocument struct {
	GeneratedAt       time.Time          `json:"generatedAt"`
	Config            api.EngineConfig   `json:"config"`
	Status            Status             `json:"status"`
	History           []SmoothedSample   `json:"history"`
	CollapseLog       []AnomalyEvent     `json:"collapseLog"`
	Validations       []ValidationResult `json:"validations"`
	ValidationSummary ValidationSummary  `json:"validationSummary"`
	TestResults       []TestResult       `json:"testResults"`
	TestSummary       TestSummary        `json:"testSummary"`
}

// New builds an engine from a parsed configuration. The clock is injected
// so tests can drive every schedule deterministically.
func New(cfg *config.ConfigFileStruct, clk clock.Clock, opMetrics *operational.Metrics) *Engine {
	engineCfg := cfg.Engine
	engineCfg.Correct()

	e := &Engine{
		cfg:       engineCfg,
		clk:       clk,
		smoother:  NewSmoother(engineCfg.SmoothingAlpha),
		detector:  NewDetector(engineCfg),
		validator: NewValidator(),
	}
	e.bus = events.NewBus(clk, time.Duration(engineCfg.RateLimitMs)*time.Millisecond, opMetrics)
	if engineCfg.RateLimitDisabled {
		e.bus.SetRateLimit(0, true)
	}
	e.tester = NewBellTester(clk,
		time.Duration(engineCfg.TestIntervalMs)*time.Millisecond,
		engineCfg.ViolationThreshold,
		e.snapshotSmoothed,
		e.publishTestResult,
	)
	e.sync = NewSourceSync(clk, cfg.Sources, engineCfg, opMetrics, e.handleSample, e.handleStatus)
	if opMetrics != nil {
		e.processed = opMetrics.NewCounterVec(&samplesProcessed)
	}
	return e
}

// Bus exposes the event hub consumers subscribe on.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// Start launches the sync loops and the correlation test schedule.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()
	elog.Info("engine starting")
	e.sync.Start()
	e.tester.Start()
}

// Stop halts the schedules but keeps all accumulated state, so the engine
// can be restarted.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.started = false
	e.mu.Unlock()
	elog.Info("engine stopping")
	e.sync.Stop()
	e.tester.Stop()
}

// ForceSync triggers one immediate primary fetch outside the schedule.
func (e *Engine) ForceSync() {
	e.sync.ForceSync()
}

// RunTest triggers one correlation test outside the schedule.
func (e *Engine) RunTest() TestResult {
	return e.tester.RunOnce()
}

// Dispose cancels every schedule permanently. Results from calls already
// in flight are discarded on arrival.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	e.started = false
	e.mu.Unlock()
	elog.Info("engine disposed")
	e.sync.Dispose()
	e.tester.Stop()
}

// IsAlive is the liveness check for the health endpoint.
func (e *Engine) IsAlive() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return errors.New("engine disposed")
	}
	return nil
}

// IsReady is the readiness check for the health endpoint.
func (e *Engine) IsReady() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return errors.New("engine not started")
	}
	return nil
}

// Status snapshots the engine for external consumers.
func (e *Engine) Status() Status {
	connected, retries := e.sync.Status()
	e.mu.Lock()
	st := Status{
		Started:        e.started,
		Connected:      connected,
		Retries:        retries,
		LastSample:     e.lastRaw,
		HasSample:      e.hasSample,
		Smoothed:       e.smoother.Current(),
		ListenerCounts: e.bus.ListenerCounts(),
	}
	e.mu.Unlock()
	if last, ok := e.tester.LastResult(); ok {
		st.LastTestResult = &last
	}
	return st
}

// UpdateConfig hot-reloads the engine configuration. Values are silently
// clamped, timers restart atomically and accumulated state (smoothed
// history, logs, retry counter) is preserved.
func (e *Engine) UpdateConfig(newCfg api.EngineConfig) api.EngineConfig {
	newCfg.Correct()
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return e.cfg
	}
	e.cfg = newCfg
	e.smoother.SetAlpha(newCfg.SmoothingAlpha)
	e.detector.Reconfigure(newCfg)
	e.bus.SetRateLimit(time.Duration(newCfg.RateLimitMs)*time.Millisecond, newCfg.RateLimitDisabled)
	e.mu.Unlock()

	e.tester.Reconfigure(time.Duration(newCfg.TestIntervalMs)*time.Millisecond, newCfg.ViolationThreshold)
	e.sync.Reconfigure(newCfg)

	elog.Infof("config updated: rate=%.2fHz alpha=%.2f rateLimit=%dms", newCfg.SampleRateHz, newCfg.SmoothingAlpha, newCfg.RateLimitMs)
	e.bus.Publish(events.ConfigUpdated, newCfg)
	return newCfg
}

// UpdateConfigMap applies a partial configuration given as a generic map,
// as delivered by external control surfaces. Unknown keys are ignored,
// known keys overwrite the current values, and the merged result goes
// through the usual clamping.
func (e *Engine) UpdateConfigMap(patch map[string]interface{}) (api.EngineConfig, error) {
	e.mu.Lock()
	merged := e.cfg
	e.mu.Unlock()

	decoder, err := ms.NewDecoder(&ms.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           &merged,
	})
	if err != nil {
		return merged, errors.Wrap(err, "building config decoder")
	}
	if err := decoder.Decode(patch); err != nil {
		return merged, errors.Wrap(err, "decoding config patch")
	}
	return e.UpdateConfig(merged), nil
}

// Config returns the current (corrected) configuration.
func (e *Engine) Config() api.EngineConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// ExportLog serializes every bounded log and the rolling history into a
// single JSON document.
func (e *Engine) ExportLog() ([]byte, error) {
	e.mu.Lock()
	doc := ExportDocument{
		GeneratedAt:       e.clk.Now(),
		Config:            e.cfg,
		History:           e.smoother.History(),
		CollapseLog:       e.detector.CollapseLog(),
		Validations:       e.validator.Records(),
		ValidationSummary: e.validator.Summary(),
	}
	e.mu.Unlock()
	doc.Status = e.Status()
	doc.TestResults = e.tester.Results()
	doc.TestSummary = e.tester.Summary()
	out, err := jsoniter.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "serializing export document")
	}
	return out, nil
}

// handleSample is the single entry point of the pipeline: sanitize,
// smooth, detect, validate, publish. Invoked from fetch goroutines.
func (e *Engine) handleSample(raw api.Sample) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	now := e.clk.Now()
	current := e.smoother.Current()
	clean := raw
	// malformed fields degrade to the last known good state
	clean.Primary = Sanitize(raw.Primary, current.Primary)
	clean.Secondary = Sanitize(raw.Secondary, current.Secondary)

	smoothed := e.smoother.Update(clean, now)
	anomalies := e.detector.Evaluate(clean, smoothed, now)
	validation := e.validator.Evaluate(e.smoother.History(), now)
	e.lastRaw = clean
	e.hasSample = true
	e.mu.Unlock()

	if e.processed != nil {
		e.processed.WithLabelValues("sync").Inc()
	}

	e.bus.Publish(events.SampleReceived, clean)
	e.bus.Publish(events.SampleSmoothed, smoothed)
	e.bus.Publish(events.SampleValue, smoothed.Primary)
	e.bus.Publish(events.ValidationUpdated, validation)
	for _, ev := range anomalies {
		e.publishAnomaly(ev)
	}
}

func (e *Engine) publishAnomaly(ev AnomalyEvent) {
	switch ev.Kind {
	case EventDeltaSpike:
		e.bus.Publish(events.SignificantChange, ev)
	case EventLabelChanged:
		e.bus.Publish(events.LabelChanged, ev)
	case EventBandUp:
		e.bus.Publish(events.BandEventName(ev.Band, true), ev)
	case EventBandDown:
		e.bus.Publish(events.BandEventName(ev.Band, false), ev)
	case EventCollapse:
		e.bus.Publish(events.Collapse, ev)
	}
}

func (e *Engine) handleStatus(status HealthStatus) {
	if status.Degraded {
		elog.Errorf("source degraded: retries=%d (max %d)", status.Retries, e.Config().MaxRetries)
	}
	e.bus.Publish(events.HealthChanged, status)
}

func (e *Engine) snapshotSmoothed() SmoothedSample {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.smoother.Current()
}

func (e *Engine) publishTestResult(result TestResult) {
	e.bus.Publish(events.TestCompleted, result)
}
