/*
 * Copyright (C) 2023 WiltonOS, Inc.
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

package operational

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/wiltonos/coherence-pipeline/pkg/config"
)

var mlog = logrus.WithField("component", "operational.Metrics")

type MetricType string

const (
	TypeCounter MetricType = "counter"
	TypeGauge   MetricType = "gauge"
)

// MetricDefinition is the self-documenting description of an operational
// metric. All metrics exposed by the engine are defined through this so
// that the exposed surface can be enumerated.
type MetricDefinition struct {
	Name   string
	Help   string
	Type   MetricType
	Labels []string
}

var allMetrics = []MetricDefinition{}

// DefineMetric registers a metric definition at package init time.
func DefineMetric(name, help string, t MetricType, labels ...string) MetricDefinition {
	def := MetricDefinition{
		Name:   name,
		Help:   help,
		Type:   t,
		Labels: labels,
	}
	allMetrics = append(allMetrics, def)
	return def
}

// GetDocumentation returns the list of all defined metrics.
func GetDocumentation() []MetricDefinition {
	return allMetrics
}

// Metrics wraps a prometheus registry. Each engine instance carries its
// own registry so that independent instances (and tests) never collide on
// metric registration.
type Metrics struct {
	settings *config.MetricsSettings
	registry *prometheus.Registry
}

func NewMetrics(settings *config.MetricsSettings) *Metrics {
	return &Metrics{
		settings: settings,
		registry: prometheus.NewRegistry(),
	}
}

// Registry exposes the underlying registry for the metrics HTTP server.
func (o *Metrics) Registry() *prometheus.Registry {
	return o.registry
}

func (o *Metrics) register(c prometheus.Collector, name string) {
	if o == nil || o.registry == nil {
		return
	}
	if err := o.registry.Register(c); err != nil {
		mlog.Errorf("metrics registration failed for %s: %v", name, err)
	}
}

func (o *Metrics) NewCounter(def *MetricDefinition) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: def.Name, Help: def.Help})
	o.register(c, def.Name)
	return c
}

func (o *Metrics) NewCounterVec(def *MetricDefinition) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: def.Name, Help: def.Help}, def.Labels)
	o.register(c, def.Name)
	return c
}

func (o *Metrics) NewGauge(def *MetricDefinition) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: def.Name, Help: def.Help})
	o.register(g, def.Name)
	return g
}
