package api

// Engine configuration defaults. Out-of-range values are clamped, never
// rejected, so a bad hot-reload can degrade precision but cannot stop the
// pipeline.
const (
	DefaultSampleRateHz       = 2.0
	DefaultFallbackIntervalMs = 3000
	DefaultMaxRetries         = 5
	DefaultRateLimitMs        = 50
	DefaultTestIntervalMs     = 10000
	DefaultViolationThreshold = 2.0
	DefaultSmoothingAlpha     = 0.85
	DefaultDeltaThreshold     = 0.05
	DefaultSustainedThreshold = 0.9
)

// EngineConfig describes the runtime tuning of the coherence engine. All
// fields can be hot-reloaded without losing accumulated state.
type EngineConfig struct {
	SampleRateHz       float64   `yaml:"sampleRateHz,omitempty" json:"sampleRateHz,omitempty" doc:"primary source polling rate in Hz"`
	FallbackIntervalMs int       `yaml:"fallbackIntervalMs,omitempty" json:"fallbackIntervalMs,omitempty" doc:"period of the fallback chain loop, in milliseconds"`
	MaxRetries         int       `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty" doc:"primary failures tolerated before health is reported degraded"`
	RateLimitMs        int       `yaml:"rateLimitMs,omitempty" json:"rateLimitMs,omitempty" doc:"minimum interval between deliveries of a same-named event, in milliseconds"`
	RateLimitDisabled  bool      `yaml:"rateLimitDisabled,omitempty" json:"rateLimitDisabled,omitempty" doc:"disable per-event rate limiting entirely"`
	TestIntervalMs     int       `yaml:"testIntervalMs,omitempty" json:"testIntervalMs,omitempty" doc:"period of the scheduled correlation test, in milliseconds"`
	ViolationThreshold float64   `yaml:"violationThreshold,omitempty" json:"violationThreshold,omitempty" doc:"S-statistic value above which a test run counts as a violation"`
	SmoothingAlpha     float64   `yaml:"smoothingAlpha,omitempty" json:"smoothingAlpha,omitempty" doc:"EMA weight given to history; 1 freezes the smoothed state"`
	DeltaThreshold     float64   `yaml:"deltaThreshold,omitempty" json:"deltaThreshold,omitempty" doc:"tick-to-tick primary delta that counts as a significant change"`
	SustainedThreshold float64   `yaml:"sustainedThreshold,omitempty" json:"sustainedThreshold,omitempty" doc:"smoothed primary level above which a locked sample counts as a collapse"`
	Bands              []float64 `yaml:"bands,omitempty" json:"bands,omitempty" doc:"threshold bands watched for edge-triggered crossings"`
}

// Correct applies defaults to zero values and silently clamps everything
// else to its valid range.
func (c *EngineConfig) Correct() {
	if c.SampleRateHz == 0 {
		c.SampleRateHz = DefaultSampleRateHz
	}
	c.SampleRateHz = clampFloat(c.SampleRateHz, 0.1, 100)
	if c.FallbackIntervalMs == 0 {
		c.FallbackIntervalMs = DefaultFallbackIntervalMs
	}
	c.FallbackIntervalMs = clampInt(c.FallbackIntervalMs, 250, 600000)
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	c.MaxRetries = clampInt(c.MaxRetries, 1, 1000)
	if c.RateLimitMs == 0 {
		c.RateLimitMs = DefaultRateLimitMs
	}
	c.RateLimitMs = clampInt(c.RateLimitMs, 1, 60000)
	if c.TestIntervalMs == 0 {
		c.TestIntervalMs = DefaultTestIntervalMs
	}
	c.TestIntervalMs = clampInt(c.TestIntervalMs, 100, 3600000)
	if c.ViolationThreshold == 0 {
		c.ViolationThreshold = DefaultViolationThreshold
	}
	c.ViolationThreshold = clampFloat(c.ViolationThreshold, 0, 2.828427)
	if c.SmoothingAlpha == 0 {
		c.SmoothingAlpha = DefaultSmoothingAlpha
	}
	c.SmoothingAlpha = clampFloat(c.SmoothingAlpha, 0.01, 1)
	if c.DeltaThreshold == 0 {
		c.DeltaThreshold = DefaultDeltaThreshold
	}
	c.DeltaThreshold = clampFloat(c.DeltaThreshold, 0.001, 1)
	if c.SustainedThreshold == 0 {
		c.SustainedThreshold = DefaultSustainedThreshold
	}
	c.SustainedThreshold = clampFloat(c.SustainedThreshold, 0, 1)
	if len(c.Bands) == 0 {
		c.Bands = []float64{0.9, 0.95}
	}
	for i := range c.Bands {
		c.Bands[i] = clampFloat(c.Bands[i], 0, 1)
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
