package consts

const (
	DefaultCircuitVersion = "2025.1"

	TrimmedTouchstoneDir = "trimmed_touchstone" // under workdir
	NetlistDebugDir      = "netlist"            // under workdir

	ChannelModelName = "Channel"
	ReferenceZ0      = 50.0 // Touchstone default reference impedance (ohm)

	PulseDelay = 1e-10    // TX pulse delay (s)
	PulseHold  = 1.5e+100 // TX pulse period, never repeats

	DefaultTransientStep = "100ps"
	DefaultTransientStop = "3ns"

	SecondsToPicoseconds = 1e12
)
