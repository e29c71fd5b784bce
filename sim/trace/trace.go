package trace

// TraceLevel controls the verbosity of delivery tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDeliveries captures every routed, delivered and dropped message
	// plus behavior faults.
	TraceLevelDeliveries TraceLevel = "deliveries"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:       true,
	TraceLevelDeliveries: true,
	"":                   true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects delivery and fault records during a session.
type SimulationTrace struct {
	Config     TraceConfig
	Deliveries []DeliveryRecord
	Faults     []FaultRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:     config,
		Deliveries: make([]DeliveryRecord, 0),
		Faults:     make([]FaultRecord, 0),
	}
}

// Enabled reports whether records are kept. Safe on a nil trace.
func (st *SimulationTrace) Enabled() bool {
	return st != nil && st.Config.Level == TraceLevelDeliveries
}

// RecordDelivery appends a delivery record.
func (st *SimulationTrace) RecordDelivery(record DeliveryRecord) {
	if !st.Enabled() {
		return
	}
	st.Deliveries = append(st.Deliveries, record)
}

// RecordFault appends a behavior fault record.
func (st *SimulationTrace) RecordFault(record FaultRecord) {
	if !st.Enabled() {
		return
	}
	st.Faults = append(st.Faults, record)
}
