package trace

import "testing"

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDeliveries})

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero
	if summary.Delivered != 0 || summary.Dropped != 0 || summary.Routed != 0 {
		t.Error("expected 0 routed, delivered and dropped")
	}
	if summary.Faults != 0 {
		t.Errorf("expected 0 faults, got %d", summary.Faults)
	}
	if summary.UniqueReceivers != 0 {
		t.Errorf("expected 0 unique receivers, got %d", summary.UniqueReceivers)
	}
	if len(summary.ReceiverDistribution) != 0 {
		t.Error("expected empty receiver distribution")
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with delivered, dropped and handed-off records plus a fault
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDeliveries})
	st.RecordDelivery(DeliveryRecord{SenderID: "a", ReceiverID: "b", ClassName: "Ping", Outcome: OutcomeDelivered})
	st.RecordDelivery(DeliveryRecord{SenderID: "a", ReceiverID: "c", ClassName: "Ping", Outcome: OutcomeDelivered})
	st.RecordDelivery(DeliveryRecord{SenderID: "c", ReceiverID: "b", ClassName: "BaseMessage", Outcome: OutcomeDelivered})
	st.RecordDelivery(DeliveryRecord{SenderID: "b", ReceiverID: "gone", Outcome: OutcomeDropped})
	st.RecordDelivery(DeliveryRecord{SenderID: "a", ReceiverID: "b", Outcome: OutcomeHandedOff})
	st.RecordFault(FaultRecord{NodeID: "c", Summary: "boom"})

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts match
	if summary.Delivered != 3 {
		t.Errorf("expected 3 delivered, got %d", summary.Delivered)
	}
	if summary.Dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", summary.Dropped)
	}
	if summary.Routed != 1 {
		t.Errorf("expected 1 handed off, got %d", summary.Routed)
	}
	if summary.Faults != 1 {
		t.Errorf("expected 1 fault, got %d", summary.Faults)
	}
	if summary.UniqueReceivers != 2 {
		t.Errorf("expected 2 unique receivers, got %d", summary.UniqueReceivers)
	}
	if summary.ReceiverDistribution["b"] != 2 {
		t.Errorf("expected b to receive 2, got %d", summary.ReceiverDistribution["b"])
	}
	if summary.ClassDistribution["Ping"] != 2 {
		t.Errorf("expected 2 Ping deliveries, got %d", summary.ClassDistribution["Ping"])
	}
}

func TestSummarize_NilTrace_SafeZeroValues(t *testing.T) {
	summary := Summarize(nil)
	if summary.Delivered != 0 || summary.Faults != 0 {
		t.Error("expected zero values for nil trace")
	}
	if summary.ReceiverDistribution == nil {
		t.Error("expected non-nil distribution map")
	}
}
