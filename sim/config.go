package sim

// DefaultMaxStepsWithoutYield bounds how many interpreter steps a behavior may
// take between two suspension points before it is aborted.
const DefaultMaxStepsWithoutYield = 5_000_000

// TransportConfig groups message transport parameters.
type TransportConfig struct {
	// ExternalTransport hands every routed message to the host bridge and waits
	// for the host to call DeliverMessage. When false, delivery happens locally
	// right after the host is notified.
	ExternalTransport bool
}

// ScriptConfig groups parameters of the behavior interpreter.
type ScriptConfig struct {
	MaxStepsWithoutYield int64 // 0 = DefaultMaxStepsWithoutYield
}

// Config is the full configuration of a Session.
type Config struct {
	Seed       int64  // master seed for per-node random streams
	TraceLevel string // "none" (default) or "deliveries"
	TransportConfig
	ScriptConfig
}

// NewConfig creates a Config from its groups. Zero values take their defaults.
func NewConfig(seed int64, traceLevel string, transport TransportConfig, script ScriptConfig) Config {
	if script.MaxStepsWithoutYield <= 0 {
		script.MaxStepsWithoutYield = DefaultMaxStepsWithoutYield
	}
	if traceLevel == "" {
		traceLevel = "none"
	}
	return Config{
		Seed:            seed,
		TraceLevel:      traceLevel,
		TransportConfig: transport,
		ScriptConfig:    script,
	}
}

// DefaultConfig returns a Config with local transport, tracing disabled and seed 0.
func DefaultConfig() Config {
	return NewConfig(0, "", TransportConfig{}, ScriptConfig{})
}
