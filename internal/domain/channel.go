package domain

import "fmt"

type ChannelKind string

const (
	KindHardware  ChannelKind = "hardware"
	KindClip      ChannelKind = "clip"
	KindSynthetic ChannelKind = "synthetic"
	KindBusFeed   ChannelKind = "busfeed"
	KindExternal  ChannelKind = "external"
)

func ParseChannelKind(s string) (ChannelKind, error) {
	switch k := ChannelKind(s); k {
	case KindHardware, KindClip, KindSynthetic, KindBusFeed, KindExternal:
		return k, nil
	case "virtual":
		return KindHardware, nil
	default:
		return "", fmt.Errorf("unknown channel kind %q", s)
	}
}

// ChannelSpec describes one strip of the fixed channel registry.
type ChannelSpec struct {
	ID   string
	Name string
	Kind ChannelKind
	// Feed names the source bus of a bus-feed channel.
	Feed string
}

const (
	MinFaderDB = -60.0
	MaxFaderDB = 12.0
)

// DefaultChannels is the registry used when configuration lists none.
func DefaultChannels() []ChannelSpec {
	return []ChannelSpec{
		{ID: "SOUNDBOARD", Name: "Soundboard", Kind: KindClip},
		{ID: "HW1", Name: "Hardware 1", Kind: KindHardware},
		{ID: "HW2", Name: "Hardware 2", Kind: KindHardware},
		{ID: "HW3", Name: "MediaPlayer", Kind: KindExternal},
		{ID: "VIRT1", Name: "Virtual 1", Kind: KindHardware},
		{ID: "VIRT2", Name: "Virtual 2", Kind: KindHardware},
	}
}

func DefaultBuses() []string {
	return []string{"A1", "A2", "A3", "B1", "B2"}
}
