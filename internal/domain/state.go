package domain

// DSPParams are the user-facing settings of one channel's processing chain.
type DSPParams struct {
	GateEnabled     bool    `json:"gate_enabled" yaml:"gate_enabled"`
	GateThresholdDB float64 `json:"gate_threshold_db" yaml:"gate_threshold_db"`
	EQLowDB         float64 `json:"eq_low_db" yaml:"eq_low_db"`
	EQMidDB         float64 `json:"eq_mid_db" yaml:"eq_mid_db"`
	EQHighDB        float64 `json:"eq_high_db" yaml:"eq_high_db"`
	CompEnabled     bool    `json:"comp_enabled" yaml:"comp_enabled"`
	CompThresholdDB float64 `json:"comp_threshold_db" yaml:"comp_threshold_db"`
	CompRatio       float64 `json:"comp_ratio" yaml:"comp_ratio"`
}

func DefaultDSPParams() DSPParams {
	return DSPParams{
		GateThresholdDB: -40,
		CompThresholdDB: -20,
		CompRatio:       4,
	}
}

type ChannelState struct {
	Name        string          `json:"name,omitempty" yaml:"name,omitempty"`
	FaderDB     float64         `json:"fader_db" yaml:"fader_db"`
	Pan         float64         `json:"pan" yaml:"pan"`
	Mute        bool            `json:"mute" yaml:"mute"`
	Solo        bool            `json:"solo" yaml:"solo"`
	Routing     map[string]bool `json:"routing" yaml:"routing"`
	DSP         DSPParams       `json:"dsp" yaml:"dsp"`
	InputDevice *int            `json:"input_device,omitempty" yaml:"input_device,omitempty"`
}

type BusState struct {
	FaderDB float64 `json:"fader_db" yaml:"fader_db"`
	Mute    bool    `json:"mute" yaml:"mute"`
	Device  *int    `json:"device,omitempty" yaml:"device,omitempty"`
}

type ClipState struct {
	Path    string  `json:"path" yaml:"path"`
	Volume  float64 `json:"volume" yaml:"volume"`
	Looping bool    `json:"looping" yaml:"looping"`
}

// State is everything an external persistence layer must round-trip.
type State struct {
	SampleRate float64                 `json:"sample_rate" yaml:"sample_rate"`
	Channels   map[string]ChannelState `json:"channels" yaml:"channels"`
	Buses      map[string]BusState     `json:"buses" yaml:"buses"`
	Clips      map[string]ClipState    `json:"clips,omitempty" yaml:"clips,omitempty"`
}
