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

package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/wiltonos/coherence-pipeline/pkg/operational"
)

// Event names published by the engine. Band crossing names are built with
// BandEventName so that each band and direction is rate limited on its own.
const (
	SampleReceived    = "sample.received"
	SampleSmoothed    = "sample.smoothed"
	SampleValue       = "sample.value"
	SignificantChange = "anomaly.delta"
	LabelChanged      = "anomaly.label"
	Collapse          = "anomaly.collapse"
	HealthChanged     = "status.health"
	TestCompleted     = "belltest.result"
	ValidationUpdated = "validation.updated"
	ConfigUpdated     = "config.updated"
)

// BandEventName builds the per-band crossing event name, e.g.
// "anomaly.band.0.90.up".
func BandEventName(band float64, up bool) string {
	dir := "up"
	if !up {
		dir = "down"
	}
	return fmt.Sprintf("anomaly.band.%.2f.%s", band, dir)
}

var blog = logrus.WithField("component", "events.Bus")

var (
	publishedCounter = operational.DefineMetric(
		"events_published",
		"Counter of events delivered to at least the rate limiter",
		operational.TypeCounter,
		"name", "outcome",
	)
	callbackFailures = operational.DefineMetric(
		"events_callback_failures",
		"Counter of subscriber callbacks that panicked during delivery",
		operational.TypeCounter,
		"name",
	)
)

// Handler consumes one published payload. A panicking handler is isolated:
// it is counted and logged, and delivery continues with the remaining
// subscribers.
type Handler func(payload interface{})

// SubscriptionID identifies one registered handler for removal.
type SubscriptionID uint64

// Delivery reports what happened to a single publish, so callers and tests
// can assert on failure counts instead of scraping logs.
type Delivery struct {
	Delivered   int
	Failed      int
	RateLimited bool
}

type subscription struct {
	id   SubscriptionID
	once bool
	fn   Handler
}

// Bus is a per-event-name rate limited publish/subscribe hub. Publishes
// arriving faster than the configured interval for the same name are
// silently dropped, never queued or delayed.
type Bus struct {
	mu       sync.Mutex
	clk      clock.Clock
	interval time.Duration
	disabled bool
	nextID   SubscriptionID
	subs     map[string][]*subscription
	lastPub  map[string]time.Time

	published *prometheus.CounterVec
	failures  *prometheus.CounterVec
}

// NewBus creates a bus using the given clock. A nil opMetrics disables
// operational counters (used by leaf tests).
func NewBus(clk clock.Clock, rateLimit time.Duration, opMetrics *operational.Metrics) *Bus {
	b := &Bus{
		clk:      clk,
		interval: rateLimit,
		subs:     map[string][]*subscription{},
		lastPub:  map[string]time.Time{},
	}
	if opMetrics != nil {
		b.published = opMetrics.NewCounterVec(&publishedCounter)
		b.failures = opMetrics.NewCounterVec(&callbackFailures)
	}
	return b
}

// Subscribe registers a handler for an event name. Handlers fire in
// registration order.
func (b *Bus) Subscribe(name string, fn Handler) SubscriptionID {
	return b.subscribe(name, fn, false)
}

// SubscribeOnce registers a handler removed after its first delivery.
// A rate-limited publish does not consume the subscription.
func (b *Bus) SubscribeOnce(name string, fn Handler) SubscriptionID {
	return b.subscribe(name, fn, true)
}

func (b *Bus) subscribe(name string, fn Handler, once bool) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[name] = append(b.subs[name], &subscription{id: b.nextID, once: once, fn: fn})
	return b.nextID
}

// Unsubscribe removes a previously registered handler. Returns false when
// the subscription is unknown (already fired one-shot, or removed).
func (b *Bus) Unsubscribe(name string, id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[name]
	for i, sub := range list {
		if sub.id == id {
			b.subs[name] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// ListenerCount returns the number of handlers registered for a name.
func (b *Bus) ListenerCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[name])
}

// ListenerCounts returns the handler count per event name.
func (b *Bus) ListenerCounts() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.subs))
	for name, list := range b.subs {
		if len(list) > 0 {
			out[name] = len(list)
		}
	}
	return out
}

// SetRateLimit changes the per-name minimum delivery interval.
func (b *Bus) SetRateLimit(interval time.Duration, disabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interval = interval
	b.disabled = disabled
}

// Publish delivers the payload to every handler of the event name, unless
// the name was already delivered within the rate limit interval.
func (b *Bus) Publish(name string, payload interface{}) Delivery {
	b.mu.Lock()
	now := b.clk.Now()
	if !b.disabled && b.interval > 0 {
		if last, ok := b.lastPub[name]; ok && now.Sub(last) <= b.interval {
			b.mu.Unlock()
			b.count(b.published, name, "rate_limited")
			return Delivery{RateLimited: true}
		}
	}
	b.lastPub[name] = now

	// snapshot the handlers and drop one-shots before releasing the lock,
	// so a handler subscribing or unsubscribing cannot corrupt the walk
	list := b.subs[name]
	targets := make([]*subscription, len(list))
	copy(targets, list)
	remaining := list[:0:0]
	for _, sub := range list {
		if !sub.once {
			remaining = append(remaining, sub)
		}
	}
	b.subs[name] = remaining
	b.mu.Unlock()

	d := Delivery{}
	for _, sub := range targets {
		if b.invoke(name, sub.fn, payload) {
			d.Delivered++
		} else {
			d.Failed++
		}
	}
	b.count(b.published, name, "delivered")
	return d
}

func (b *Bus) invoke(name string, fn Handler, payload interface{}) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			blog.Errorf("subscriber for %s failed: %v", name, r)
			b.count(b.failures, name)
		}
	}()
	fn(payload)
	return true
}

func (b *Bus) count(vec *prometheus.CounterVec, labels ...string) {
	if vec != nil {
		vec.WithLabelValues(labels...).Inc()
	}
}
