package api

const defaultSourceTimeoutMs = 2000

// SourceSpec identifies one HTTP endpoint serving coherence payloads.
type SourceSpec struct {
	Name      string `yaml:"name,omitempty" json:"name,omitempty" doc:"logical name used in logs and health events"`
	URL       string `yaml:"url" json:"url" doc:"endpoint polled with GET, expected to return a JSON object"`
	TimeoutMs int    `yaml:"timeoutMs,omitempty" json:"timeoutMs,omitempty" doc:"per-request timeout in milliseconds"`
}

// Correct applies defaults.
func (s *SourceSpec) Correct() {
	if s.TimeoutMs <= 0 {
		s.TimeoutMs = defaultSourceTimeoutMs
	}
	if s.Name == "" {
		s.Name = s.URL
	}
}

// SampleAliases lists, per logical Sample field, the payload keys accepted
// for it, in priority order: the first alias present in the payload wins.
// Different deployments of the upstream service expose the same metric
// under different key names, so the extraction has to stay declarative.
type SampleAliases struct {
	Primary   []string `yaml:"primary,omitempty" json:"primary,omitempty" doc:"aliases for the primary metric"`
	Secondary []string `yaml:"secondary,omitempty" json:"secondary,omitempty" doc:"aliases for the secondary metric"`
	Phase     []string `yaml:"phase,omitempty" json:"phase,omitempty" doc:"aliases for the auxiliary phase"`
	Intensity []string `yaml:"intensity,omitempty" json:"intensity,omitempty" doc:"aliases for the collapse intensity"`
	Locked    []string `yaml:"locked,omitempty" json:"locked,omitempty" doc:"aliases for the collapse-prone flag"`
	Label     []string `yaml:"label,omitempty" json:"label,omitempty" doc:"aliases for the categorical state label"`
}

// DefaultAliases returns the alias lists matching the known upstream
// payload dialects.
func DefaultAliases() SampleAliases {
	return SampleAliases{
		Primary:   []string{"coherence", "zLambda", "zlambda", "primary", "value"},
		Secondary: []string{"stability", "phi", "secondary"},
		Phase:     []string{"phase", "theta"},
		Intensity: []string{"intensity", "qctf"},
		Locked:    []string{"locked", "collapsing", "soulLock"},
		Label:     []string{"label", "state", "mode"},
	}
}

// Correct fills empty alias lists with the defaults.
func (a *SampleAliases) Correct() {
	def := DefaultAliases()
	if len(a.Primary) == 0 {
		a.Primary = def.Primary
	}
	if len(a.Secondary) == 0 {
		a.Secondary = def.Secondary
	}
	if len(a.Phase) == 0 {
		a.Phase = def.Phase
	}
	if len(a.Intensity) == 0 {
		a.Intensity = def.Intensity
	}
	if len(a.Locked) == 0 {
		a.Locked = def.Locked
	}
	if len(a.Label) == 0 {
		a.Label = def.Label
	}
}
