package api

import "time"

// Sample is a single raw observation extracted from a source payload.
// Primary and Secondary are only guaranteed to be within [0,1] after they
// went through the engine sanitizer; straight out of extraction they may
// carry NaN for absent or unparsable fields.
type Sample struct {
	Primary   float64   `json:"primary"`
	Secondary float64   `json:"secondary"`
	Phase     float64   `json:"phase"`
	Intensity float64   `json:"intensity"`
	Locked    bool      `json:"locked"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
}
