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
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/wiltonos/coherence-pipeline/pkg/api"
	"github.com/wiltonos/coherence-pipeline/pkg/config"
	"github.com/wiltonos/coherence-pipeline/pkg/operational"
	"github.com/wiltonos/coherence-pipeline/pkg/source"
)

var ylog = logrus.WithField("component", "engine.SourceSync")

var (
	syncAttempts = operational.DefineMetric(
		"sync_attempts",
		"Counter of source fetch attempts",
		operational.TypeCounter,
		"source", "outcome",
	)
	fallbackActivations = operational.DefineMetric(
		"sync_fallback_activations",
		"Counter of fallback chain activations",
		operational.TypeCounter,
	)
	connectedGauge = operational.DefineMetric(
		"sync_connected",
		"1 while the primary source responds, 0 otherwise",
		operational.TypeGauge,
	)
)

// HealthStatus describes the connection state reported on every change.
type HealthStatus struct {
	Connected bool      `json:"connected"`
	Retries   int       `json:"retries"`
	Degraded  bool      `json:"degraded"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// SourceSync runs two independent schedules: the primary fetch loop and a
// fallback chain that only activates while the primary is unhealthy.
// Losing the primary beyond maxRetries never halts the loops; it is
// reported as degraded health and retried indefinitely.
type SourceSync struct {
	clk    clock.Clock
	client *source.Client

	mu               sync.Mutex
	primary          api.SourceSpec
	fallbacks        []api.SourceSpec
	sampleInterval   time.Duration
	fallbackInterval time.Duration
	maxRetries       int
	connected        bool
	retries          int
	inFlight         map[string]bool
	running          bool
	disposed         bool
	stop             chan struct{}

	onSample func(api.Sample)
	onStatus func(HealthStatus)

	attempts        *prometheus.CounterVec
	fallbackCounter prometheus.Counter
	connGauge       prometheus.Gauge
}

// NewSourceSync builds the sync loops. onSample and onStatus are invoked
// from fetch goroutines, never under the sync mutex.
func NewSourceSync(clk clock.Clock, sources config.SourcesConfig, cfg api.EngineConfig, opMetrics *operational.Metrics, onSample func(api.Sample), onStatus func(HealthStatus)) *SourceSync {
	s := &SourceSync{
		clk:      clk,
		client:   source.NewClient(sources.Aliases),
		primary:  sources.Primary,
		inFlight: map[string]bool{},
		onSample: onSample,
		onStatus: onStatus,
	}
	s.fallbacks = append(s.fallbacks, sources.Fallbacks...)
	s.applyConfig(cfg)
	if opMetrics != nil {
		s.attempts = opMetrics.NewCounterVec(&syncAttempts)
		s.fallbackCounter = opMetrics.NewCounter(&fallbackActivations)
		s.connGauge = opMetrics.NewGauge(&connectedGauge)
	}
	return s
}

func (s *SourceSync) applyConfig(cfg api.EngineConfig) {
	s.sampleInterval = time.Duration(1000/cfg.SampleRateHz) * time.Millisecond
	s.fallbackInterval = time.Duration(cfg.FallbackIntervalMs) * time.Millisecond
	s.maxRetries = cfg.MaxRetries
}

// Start launches both loops. Idempotent while running.
func (s *SourceSync) Start() {
	s.mu.Lock()
	if s.running || s.disposed {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	stop := s.stop
	sampleInterval := s.sampleInterval
	fallbackInterval := s.fallbackInterval
	s.mu.Unlock()

	ylog.Infof("starting sync: primary every %v, fallback chain every %v", sampleInterval, fallbackInterval)
	go s.primaryLoop(stop, sampleInterval)
	go s.fallbackLoop(stop, fallbackInterval)
}

// Stop halts both loops without touching counters or connection state.
func (s *SourceSync) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *SourceSync) stopLocked() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
}

// Dispose stops the loops and marks the sync dead: results still in
// flight are discarded when they arrive.
func (s *SourceSync) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.disposed = true
}

// Reconfigure atomically restarts the loops with new timings. Retry
// counter and connection state survive the restart.
func (s *SourceSync) Reconfigure(cfg api.EngineConfig) {
	s.mu.Lock()
	wasRunning := s.running
	s.stopLocked()
	s.applyConfig(cfg)
	disposed := s.disposed
	s.mu.Unlock()
	if wasRunning && !disposed {
		s.Start()
	}
}

// Status reports the connection state and retry count.
func (s *SourceSync) Status() (connected bool, retries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected, s.retries
}

func (s *SourceSync) primaryLoop(stop chan struct{}, interval time.Duration) {
	ticker := s.clk.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.ForceSync()
		}
	}
}

// ForceSync triggers one immediate primary attempt, unless one is already
// in flight.
func (s *SourceSync) ForceSync() {
	s.mu.Lock()
	if s.disposed || s.inFlight["primary"] {
		s.mu.Unlock()
		return
	}
	s.inFlight["primary"] = true
	spec := s.primary
	s.mu.Unlock()

	go func() {
		sample, err := s.client.Fetch(context.Background(), spec)
		s.completePrimary(spec, sample, err)
	}()
}

func (s *SourceSync) completePrimary(spec api.SourceSpec, sample api.Sample, err error) {
	s.mu.Lock()
	s.inFlight["primary"] = false
	if s.disposed {
		// stale result after dispose: never applied
		s.mu.Unlock()
		return
	}
	var status *HealthStatus
	if err != nil {
		s.retries++
		changed := s.connected
		s.connected = false
		if changed || s.retries == s.maxRetries+1 {
			status = s.statusLocked(spec.Name)
		}
		s.count(spec.Name, "error")
	} else {
		changed := !s.connected || s.retries > 0
		s.connected = true
		s.retries = 0
		if changed {
			status = s.statusLocked(spec.Name)
		}
		s.count(spec.Name, "success")
	}
	s.setGauge()
	onSample := s.onSample
	onStatus := s.onStatus
	s.mu.Unlock()

	if err != nil {
		ylog.Debugf("primary fetch failed: %v", err)
	} else if onSample != nil {
		onSample(sample)
	}
	if status != nil && onStatus != nil {
		onStatus(*status)
	}
}

func (s *SourceSync) fallbackLoop(stop chan struct{}, interval time.Duration) {
	ticker := s.clk.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tryFallbacks()
		}
	}
}

func (s *SourceSync) tryFallbacks() {
	s.mu.Lock()
	idle := s.connected && s.retries == 0
	if s.disposed || idle || s.inFlight["fallback"] || len(s.fallbacks) == 0 {
		s.mu.Unlock()
		return
	}
	s.inFlight["fallback"] = true
	chain := make([]api.SourceSpec, len(s.fallbacks))
	copy(chain, s.fallbacks)
	s.mu.Unlock()

	if s.fallbackCounter != nil {
		s.fallbackCounter.Inc()
	}
	go func() {
		var sample api.Sample
		var hit *api.SourceSpec
		for i := range chain {
			got, err := s.client.Fetch(context.Background(), chain[i])
			if err == nil {
				sample = got
				hit = &chain[i]
				break
			}
			s.count(chain[i].Name, "error")
			ylog.Debugf("fallback %s failed: %v", chain[i].Name, err)
		}
		s.completeFallback(hit, sample)
	}()
}

func (s *SourceSync) completeFallback(hit *api.SourceSpec, sample api.Sample) {
	s.mu.Lock()
	s.inFlight["fallback"] = false
	if s.disposed || hit == nil {
		s.mu.Unlock()
		return
	}
	s.count(hit.Name, "success")
	onSample := s.onSample
	s.mu.Unlock()

	ylog.Debugf("fallback %s supplied a sample", hit.Name)
	if onSample != nil {
		onSample(sample)
	}
}

func (s *SourceSync) statusLocked(sourceName string) *HealthStatus {
	return &HealthStatus{
		Connected: s.connected,
		Retries:   s.retries,
		Degraded:  s.retries > s.maxRetries,
		Source:    sourceName,
		Timestamp: s.clk.Now(),
	}
}

func (s *SourceSync) count(sourceName, outcome string) {
	if s.attempts != nil {
		s.attempts.WithLabelValues(sourceName, outcome).Inc()
	}
}

func (s *SourceSync) setGauge() {
	if s.connGauge == nil {
		return
	}
	if s.connected {
		s.connGauge.Set(1)
	} else {
		s.connGauge.Set(0)
	}
}
