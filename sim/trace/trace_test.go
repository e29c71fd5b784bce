package trace

import (
	"testing"
)

func TestSimulationTrace_RecordDelivery_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for deliveries
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDeliveries})

	// WHEN a delivery record is recorded
	st.RecordDelivery(DeliveryRecord{
		Clock:      1.5,
		SenderID:   "a",
		ReceiverID: "b",
		ClassName:  "BaseMessage",
		Outcome:    OutcomeDelivered,
	})

	// THEN the trace contains one delivery record with correct data
	if len(st.Deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(st.Deliveries))
	}
	if st.Deliveries[0].ReceiverID != "b" {
		t.Errorf("expected receiver b, got %s", st.Deliveries[0].ReceiverID)
	}
	if st.Deliveries[0].Outcome != OutcomeDelivered {
		t.Errorf("expected outcome delivered, got %s", st.Deliveries[0].Outcome)
	}
}

func TestSimulationTrace_RecordFault_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for deliveries
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDeliveries})

	// WHEN a fault record is recorded
	st.RecordFault(FaultRecord{Clock: 5, NodeID: "a", Summary: "TimeoutError"})

	// THEN the trace contains one fault record
	if len(st.Faults) != 1 {
		t.Fatalf("expected 1 fault, got %d", len(st.Faults))
	}
	if st.Faults[0].NodeID != "a" {
		t.Errorf("expected node a, got %s", st.Faults[0].NodeID)
	}
}

func TestSimulationTrace_LevelNone_RecordsNothing(t *testing.T) {
	// GIVEN a disabled trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelNone})

	// WHEN records are added
	st.RecordDelivery(DeliveryRecord{SenderID: "a", ReceiverID: "b", Outcome: OutcomeDropped})
	st.RecordFault(FaultRecord{NodeID: "a"})

	// THEN nothing is kept
	if len(st.Deliveries) != 0 || len(st.Faults) != 0 {
		t.Errorf("expected empty trace, got %d deliveries and %d faults", len(st.Deliveries), len(st.Faults))
	}
}

func TestSimulationTrace_NilTrace_IsSafe(t *testing.T) {
	var st *SimulationTrace

	// Recording into a nil trace must not panic.
	st.RecordDelivery(DeliveryRecord{})
	st.RecordFault(FaultRecord{})
	if st.Enabled() {
		t.Error("nil trace must report disabled")
	}
}

func TestSimulationTrace_MultipleRecords_PreservesOrder(t *testing.T) {
	// GIVEN a trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDeliveries})

	// WHEN multiple records are added
	st.RecordDelivery(DeliveryRecord{SenderID: "a", ReceiverID: "b", Clock: 1, Outcome: OutcomeDelivered})
	st.RecordDelivery(DeliveryRecord{SenderID: "b", ReceiverID: "c", Clock: 2, Outcome: OutcomeDropped, Reason: "receiver not registered"})
	st.RecordDelivery(DeliveryRecord{SenderID: "c", ReceiverID: "a", Clock: 3, Outcome: OutcomeDelivered})

	// THEN records keep insertion order
	if len(st.Deliveries) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(st.Deliveries))
	}
	for i, want := range []float64{1, 2, 3} {
		if st.Deliveries[i].Clock != want {
			t.Errorf("record %d: clock = %g, want %g", i, st.Deliveries[i].Clock, want)
		}
	}
}

func TestIsValidTraceLevel(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"", true},
		{"none", true},
		{"deliveries", true},
		{"decisions", false},
		{"verbose", false},
	}
	for _, tt := range tests {
		if got := IsValidTraceLevel(tt.level); got != tt.valid {
			t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tt.level, got, tt.valid)
		}
	}
}
