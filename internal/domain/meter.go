package domain

// SilenceDB is what a meter reads for an all-zero block (20*log10 of the 1e-10 floor).
const SilenceDB = -200.0

type Level struct {
	PeakDB float64 `json:"peak_db" yaml:"peak_db"`
	RMSDB  float64 `json:"rms_db" yaml:"rms_db"`
}

func SilentLevel() Level {
	return Level{PeakDB: SilenceDB, RMSDB: SilenceDB}
}

type Meters struct {
	Channels map[string]Level `json:"channels" yaml:"channels"`
	Buses    map[string]Level `json:"buses" yaml:"buses"`
	// Inputs holds pre-fader capture levels of bound hardware channels.
	Inputs map[string]Level `json:"inputs,omitempty" yaml:"inputs,omitempty"`
}
