package core

import "fmt"

const (
	DefaultVoiceID      = "default"
	DefaultSpeed        = 1.0
	DefaultExaggeration = 0.5
	DefaultCFGWeight    = 0.5

	MinSpeed        = 0.5
	MaxSpeed        = 2.0
	MinExaggeration = 0.0
	MaxExaggeration = 1.0
	MinCFGWeight    = 0.0
	MaxCFGWeight    = 1.0
)

// VoiceParams is opaque passthrough configuration for the synthesis service.
type VoiceParams struct {
	VoiceID      string  `json:"voice_id" toml:"voice_id"`
	Speed        float64 `json:"speed" toml:"speed"`
	Exaggeration float64 `json:"exaggeration" toml:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight" toml:"cfg_weight"`
}

func DefaultVoiceParams() VoiceParams {
	return VoiceParams{
		VoiceID:      DefaultVoiceID,
		Speed:        DefaultSpeed,
		Exaggeration: DefaultExaggeration,
		CFGWeight:    DefaultCFGWeight,
	}
}

// Normalized fills zero fields with defaults and clamps the rest into range.
func (v VoiceParams) Normalized() VoiceParams {
	if v.VoiceID == "" {
		v.VoiceID = DefaultVoiceID
	}
	if v.Speed == 0 {
		v.Speed = DefaultSpeed
	}
	v.Speed = clamp(v.Speed, MinSpeed, MaxSpeed)
	v.Exaggeration = clamp(v.Exaggeration, MinExaggeration, MaxExaggeration)
	v.CFGWeight = clamp(v.CFGWeight, MinCFGWeight, MaxCFGWeight)
	return v
}

// CacheKey identifies a synthesis of text with these parameters.
func (v VoiceParams) CacheKey(text string) string {
	return fmt.Sprintf("%s_%s_%.2f_%.2f_%.2f", text, v.VoiceID, v.Speed, v.Exaggeration, v.CFGWeight)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SynthesisRequest is everything a synthesis endpoint needs for one utterance.
type SynthesisRequest struct {
	Text  string
	Voice VoiceParams
}
