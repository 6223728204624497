package domain

type Device struct {
	ID              int
	Name            string
	HostAPI         string
	InputChannels   int
	OutputChannels  int
	SampleRate      float64
	IsDefaultInput  bool
	IsDefaultOutput bool
}

func (d Device) CanCapture() bool {
	return d.InputChannels > 0
}

func (d Device) CanPlay() bool {
	return d.OutputChannels > 0
}

// DisplayName shortens long device names the way channel strips show them.
func (d Device) DisplayName() string {
	const maxLen = 20
	r := []rune(d.Name)
	if len(r) <= maxLen {
		return d.Name
	}
	return string(r[:maxLen-3]) + "..."
}
