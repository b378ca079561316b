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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func flatHistory(n int, primary, secondary float64) []SmoothedSample {
	out := make([]SmoothedSample, n)
	for i := range out {
		out[i] = SmoothedSample{Primary: primary, Secondary: secondary}
	}
	return out
}

func TestValidatorNeutralUnderMinHistory(t *testing.T) {
	v := NewValidator()
	result := v.Evaluate(flatHistory(validatorMinHistory-1, 0.9, 0.9), time.Now())
	require.Equal(t, ValidationResult{Timestamp: result.Timestamp}, result)
	require.False(t, result.IsQuantumState)
}

func TestSuperposition(t *testing.T) {
	require.Equal(t, 0.0, superposition(0.9, 0.7), "secondary at the floor")
	require.Equal(t, 0.0, superposition(0.8, 0.9), "primary exactly at the floor")
	require.InDelta(t, 0.5, superposition(0.9, 0.9), 1e-12)
	require.InDelta(t, 1.0, superposition(1.0, 1.0), 1e-12)
}

func TestCoherenceTime(t *testing.T) {
	history := flatHistory(10, 0.9, 0.5)
	for i := 0; i < 4; i++ {
		history[i].Primary = 0.5
	}
	require.InDelta(t, 0.6, coherenceTime(history), 1e-12)
}

func TestCollapseMagnitudeClamped(t *testing.T) {
	v := NewValidator()
	history := flatHistory(validatorMinHistory, 0.9, 0.9)
	history[len(history)-1].Primary = 0.2
	result := v.Evaluate(history, time.Now())
	require.Equal(t, 1.0, result.CollapseMagnitude, "a 0.7 drop saturates the 0.3 normalizer")
}

func TestEntanglement(t *testing.T) {
	// equal channels: maximum entropy
	require.InDelta(t, 1.0, entanglement(0.5, 0.5), 1e-12)
	// one channel empty: zero by definition
	require.Equal(t, 0.0, entanglement(0.5, 0))
	require.Equal(t, 0.0, entanglement(0, 0.5))
	require.Equal(t, 0.0, entanglement(0, 0))
	// asymmetric split: entropy of (0.75, 0.25)
	expected := -0.75*math.Log2(0.75) - 0.25*math.Log2(0.25)
	require.InDelta(t, expected, entanglement(0.6, 0.2), 1e-12)
}

func TestDecoherenceRate(t *testing.T) {
	history := flatHistory(10, 0.5, 0.5)
	require.Equal(t, 0.0, decoherenceRate(history), "flat signal never steps down")

	history[4].Primary = 0.4 // one 0.1 drop, one 0.1 rise
	require.InDelta(t, 0.1, decoherenceRate(history), 1e-9)
}

func TestInterferenceFlatSignal(t *testing.T) {
	// a constant signal has no non-fundamental spectral content
	require.Equal(t, 0.0, interference(flatHistory(validatorMinHistory, 0.9, 0.9)))
}

func TestInterferenceOscillatingSignal(t *testing.T) {
	history := make([]SmoothedSample, validatorMinHistory)
	for i := range history {
		// strong square oscillation concentrates magnitude off-DC
		if i%2 == 0 {
			history[i].Primary = 1
		}
	}
	require.Greater(t, interference(history), 0.0)
	require.LessOrEqual(t, interference(history), 1.0)
}

func TestUncertaintyCheck(t *testing.T) {
	// low variance: precision product under the bound
	require.False(t, uncertaintyHolds(flatHistory(precisionWindow, 0.5, 0.5)))
}

func TestClassifyQuantumStateStrictAnd(t *testing.T) {
	require.True(t, ClassifyQuantumState(0.71, 0.51, 0.61))
	require.False(t, ClassifyQuantumState(0.7, 0.51, 0.61), "correlation exactly at the bound")
	require.False(t, ClassifyQuantumState(0.71, 0.5, 0.61), "entanglement exactly at the bound")
	require.False(t, ClassifyQuantumState(0.71, 0.51, 0.6), "superposition exactly at the bound")
	require.False(t, ClassifyQuantumState(0, 1, 1))
	require.False(t, ClassifyQuantumState(1, 0, 1))
	require.False(t, ClassifyQuantumState(1, 1, 0))
}

func TestCorrelationBaseline(t *testing.T) {
	v := NewValidator()
	// primary*secondary == 0.375 exactly: zero distance from baseline
	result := v.Evaluate(flatHistory(validatorMinHistory, 0.75, 0.5), time.Now())
	require.Equal(t, 0.0, result.Correlation)

	result = v.Evaluate(flatHistory(validatorMinHistory, 1, 1), time.Now())
	require.InDelta(t, math.Min(1, (1-0.375)/0.375), result.Correlation, 1e-12)
	require.Equal(t, 1.0, result.Correlation)
}

func TestValidatorLogBoundedAndSummary(t *testing.T) {
	v := NewValidator()
	history := flatHistory(validatorMinHistory, 0.9, 0.9)
	for i := 0; i < validationLogCap+20; i++ {
		v.Evaluate(history, time.Now())
	}
	require.Len(t, v.Records(), validationLogCap)

	summary := v.Summary()
	require.Equal(t, validationLogCap, summary.Records)
	require.InDelta(t, 1.0, summary.MeanCoherence, 1e-12)
	require.InDelta(t, 1.0, summary.MeanEntanglement, 1e-12)
}
