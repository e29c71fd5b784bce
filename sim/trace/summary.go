package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	Routed               int
	Delivered            int
	Dropped              int
	Faults               int
	UniqueReceivers      int
	ReceiverDistribution map[string]int // receiver ID → count of delivered messages
	ClassDistribution    map[string]int // message class → count of delivered messages
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		ReceiverDistribution: make(map[string]int),
		ClassDistribution:    make(map[string]int),
	}
	if st == nil {
		return summary
	}

	for _, d := range st.Deliveries {
		switch d.Outcome {
		case OutcomeHandedOff:
			summary.Routed++
		case OutcomeDelivered:
			summary.Delivered++
			summary.ReceiverDistribution[d.ReceiverID]++
			summary.ClassDistribution[d.ClassName]++
		case OutcomeDropped:
			summary.Dropped++
		}
	}
	summary.Faults = len(st.Faults)
	summary.UniqueReceivers = len(summary.ReceiverDistribution)

	return summary
}
