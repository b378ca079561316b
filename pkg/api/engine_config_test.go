package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCorrectAppliesDefaults(t *testing.T) {
	cfg := EngineConfig{}
	cfg.Correct()
	require.Equal(t, DefaultSampleRateHz, cfg.SampleRateHz)
	require.Equal(t, DefaultFallbackIntervalMs, cfg.FallbackIntervalMs)
	require.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	require.Equal(t, DefaultRateLimitMs, cfg.RateLimitMs)
	require.Equal(t, DefaultTestIntervalMs, cfg.TestIntervalMs)
	require.Equal(t, DefaultViolationThreshold, cfg.ViolationThreshold)
	require.Equal(t, DefaultSmoothingAlpha, cfg.SmoothingAlpha)
	require.Equal(t, DefaultDeltaThreshold, cfg.DeltaThreshold)
	require.Equal(t, DefaultSustainedThreshold, cfg.SustainedThreshold)
	require.Equal(t, []float64{0.9, 0.95}, cfg.Bands)
	require.False(t, cfg.RateLimitDisabled)
}

func TestCorrectClampsSilently(t *testing.T) {
	cfg := EngineConfig{
		SampleRateHz:       500,
		MaxRetries:         -3,
		SmoothingAlpha:     7,
		DeltaThreshold:     -0.5,
		SustainedThreshold: 2,
		Bands:              []float64{-0.1, 1.3, 0.9},
	}
	cfg.Correct()
	require.Equal(t, 100.0, cfg.SampleRateHz)
	require.Equal(t, 1, cfg.MaxRetries)
	require.Equal(t, 1.0, cfg.SmoothingAlpha)
	require.Equal(t, 0.001, cfg.DeltaThreshold)
	require.Equal(t, 1.0, cfg.SustainedThreshold)
	require.Equal(t, []float64{0, 1, 0.9}, cfg.Bands)
}

func TestCorrectKeepsValidValues(t *testing.T) {
	cfg := EngineConfig{SampleRateHz: 4, SmoothingAlpha: 0.5, RateLimitMs: 100}
	cfg.Correct()
	require.Equal(t, 4.0, cfg.SampleRateHz)
	require.Equal(t, 0.5, cfg.SmoothingAlpha)
	require.Equal(t, 100, cfg.RateLimitMs)
}

func TestSourceSpecCorrect(t *testing.T) {
	spec := SourceSpec{URL: "http://localhost:5000/status"}
	spec.Correct()
	require.Equal(t, 2000, spec.TimeoutMs)
	require.Equal(t, "http://localhost:5000/status", spec.Name)

	spec = SourceSpec{Name: "main", URL: "http://x", TimeoutMs: 150}
	spec.Correct()
	require.Equal(t, 150, spec.TimeoutMs)
	require.Equal(t, "main", spec.Name)
}

func TestSampleAliasesCorrect(t *testing.T) {
	aliases := SampleAliases{Primary: []string{"custom"}}
	aliases.Correct()
	require.Equal(t, []string{"custom"}, aliases.Primary)
	require.Equal(t, DefaultAliases().Secondary, aliases.Secondary)
	require.Equal(t, DefaultAliases().Label, aliases.Label)
}
