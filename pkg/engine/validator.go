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
)

const (
	validatorMinHistory = 20
	validationLogCap    = 50
	rollupWindow        = 10

	superpositionFloor   = 0.8
	interferenceBinFloor = 0.1
	collapseNormalizer   = 0.3
	correlationBaseline  = 0.375
	uncertaintyBound     = 0.25
	precisionWindow      = 5
)

// ValidationResult is the statistics suite computed over the rolling
// smoothed history on each tick.
type ValidationResult struct {
	Superposition     float64   `json:"superposition"`
	CoherenceTime     float64   `json:"coherenceTime"`
	CollapseMagnitude float64   `json:"collapseMagnitude"`
	Interference      float64   `json:"interference"`
	Correlation       float64   `json:"correlation"`
	UncertaintyOK     bool      `json:"uncertaintyOk"`
	Entanglement      float64   `json:"entanglement"`
	DecoherenceRate   float64   `json:"decoherenceRate"`
	IsQuantumState    bool      `json:"isQuantumState"`
	Timestamp         time.Time `json:"timestamp"`
}

// ValidationSummary aggregates the most recent results.
type ValidationSummary struct {
	Records          int     `json:"records"`
	MeanCoherence    float64 `json:"meanCoherence"`
	MeanCorrelation  float64 `json:"meanCorrelation"`
	MeanEntanglement float64 `json:"meanEntanglement"`
	QuantumRate      float64 `json:"quantumRate"`
}

// Validator computes the correlation statistics suite and retains a
// bounded log of results. Not goroutine safe: the engine mutex serializes
// access.
type Validator struct {
	records []ValidationResult
	summary ValidationSummary
}

func NewValidator() *Validator {
	return &Validator{}
}

// ClassifyQuantumState is the strict-AND classification rule. All three
// comparisons are strict: a value sitting exactly on its bound fails.
func ClassifyQuantumState(correlation, entanglement, superposition float64) bool {
	return correlation > 0.7 && entanglement > 0.5 && superposition > 0.6
}

// Evaluate computes the suite over the history window. Fewer than 20
// samples yields the neutral zero result.
func (v *Validator) Evaluate(history []SmoothedSample, now time.Time) ValidationResult {
	result := ValidationResult{Timestamp: now}
	if len(history) >= validatorMinHistory {
		last := history[len(history)-1]
		prev := history[len(history)-2]

		result.Superposition = superposition(last.Primary, last.Secondary)
		result.CoherenceTime = coherenceTime(history)
		result.CollapseMagnitude = math.Min(1, math.Abs(last.Primary-prev.Primary)/collapseNormalizer)
		result.Interference = interference(history)
		result.Correlation = math.Min(1, math.Abs(last.Primary*last.Secondary-correlationBaseline)/correlationBaseline)
		result.UncertaintyOK = uncertaintyHolds(history)
		result.Entanglement = entanglement(last.Primary, last.Secondary)
		result.DecoherenceRate = decoherenceRate(history)
		result.IsQuantumState = ClassifyQuantumState(result.Correlation, result.Entanglement, result.Superposition)
	}

	v.records = append(v.records, result)
	if len(v.records) > validationLogCap {
		v.records = v.records[1:]
	}
	v.summary = summarize(v.records)
	return result
}

// superposition maps the combined excess of both channels over 0.8 onto
// [0,1]; zero unless both exceed the floor.
func superposition(primary, secondary float64) float64 {
	if primary <= superpositionFloor || secondary <= superpositionFloor {
		return 0
	}
	excess := (primary - superpositionFloor) + (secondary - superpositionFloor)
	return Clamp(excess/(2*(1-superpositionFloor)), 0, 1)
}

// coherenceTime is the fraction of the last 10 samples holding above 0.8.
func coherenceTime(history []SmoothedSample) float64 {
	window := lastN(history, rollupWindow)
	if len(window) == 0 {
		return 0
	}
	held := 0
	for _, s := range window {
		if s.Primary > superpositionFloor {
			held++
		}
	}
	return float64(held) / float64(len(window))
}

// interference decomposes the last 20 primaries with a DFT and sums the
// non-fundamental bin magnitudes above the floor, clamped to 1.
func interference(history []SmoothedSample) float64 {
	window := lastN(history, validatorMinHistory)
	n := len(window)
	sum := 0.0
	for k := 1; k <= n/2; k++ {
		re, im := 0.0, 0.0
		for i, s := range window {
			angle := -2 * math.Pi * float64(k) * float64(i) / float64(n)
			re += s.Primary * math.Cos(angle)
			im += s.Primary * math.Sin(angle)
		}
		magnitude := 2 * math.Hypot(re, im) / float64(n)
		if magnitude > interferenceBinFloor {
			sum += magnitude
		}
	}
	return math.Min(1, sum)
}

// uncertaintyHolds checks the precision product of the last 5 samples per
// channel against the bound. Pass/fail only, never an error.
func uncertaintyHolds(history []SmoothedSample) bool {
	window := lastN(history, precisionWindow)
	primaries := make([]float64, len(window))
	secondaries := make([]float64, len(window))
	for i, s := range window {
		primaries[i] = s.Primary
		secondaries[i] = s.Secondary
	}
	return stddev(primaries)*stddev(secondaries) >= uncertaintyBound
}

// entanglement is the Shannon entropy (base 2) of the normalized channel
// pair; zero when either probability vanishes.
func entanglement(primary, secondary float64) float64 {
	total := primary + secondary
	if total == 0 {
		return 0
	}
	p1 := primary / total
	p2 := secondary / total
	if p1 == 0 || p2 == 0 {
		return 0
	}
	return -p1*math.Log2(p1) - p2*math.Log2(p2)
}

// decoherenceRate averages the magnitudes of the downward steps over the
// last 10 samples; zero when the signal never stepped down.
func decoherenceRate(history []SmoothedSample) float64 {
	window := lastN(history, rollupWindow)
	sum, count := 0.0, 0
	for i := 1; i < len(window); i++ {
		step := window[i].Primary - window[i-1].Primary
		if step < 0 {
			sum += -step
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func summarize(records []ValidationResult) ValidationSummary {
	window := records
	if len(window) > rollupWindow {
		window = window[len(window)-rollupWindow:]
	}
	summary := ValidationSummary{Records: len(records)}
	if len(window) == 0 {
		return summary
	}
	quantum := 0
	for _, r := range window {
		summary.MeanCoherence += r.CoherenceTime
		summary.MeanCorrelation += r.Correlation
		summary.MeanEntanglement += r.Entanglement
		if r.IsQuantumState {
			quantum++
		}
	}
	n := float64(len(window))
	summary.MeanCoherence /= n
	summary.MeanCorrelation /= n
	summary.MeanEntanglement /= n
	summary.QuantumRate = float64(quantum) / n
	return summary
}

// Records returns a copy of the bounded validation log, oldest first.
func (v *Validator) Records() []ValidationResult {
	out := make([]ValidationResult, len(v.records))
	copy(out, v.records)
	return out
}

// Summary returns the rollup over the most recent results.
func (v *Validator) Summary() ValidationSummary {
	return v.summary
}

func lastN(history []SmoothedSample, n int) []SmoothedSample {
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
