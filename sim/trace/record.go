// Package trace provides delivery-trace recording for message flow analysis.
// This package has no dependencies on sim/: it stores pure data types.
package trace

// DeliveryOutcome classifies what happened to a routed message.
type DeliveryOutcome string

const (
	// OutcomeDelivered means the message was enqueued into the receiver's mailbox.
	OutcomeDelivered DeliveryOutcome = "delivered"
	// OutcomeHandedOff means the message left the core for host transport.
	OutcomeHandedOff DeliveryOutcome = "handed-off"
	// OutcomeDropped means the receiver was not registered at delivery time.
	OutcomeDropped DeliveryOutcome = "dropped"
)

// DeliveryRecord captures a single routing or delivery step of one message.
type DeliveryRecord struct {
	Clock      float64 // virtual time of the step
	SenderID   string
	ReceiverID string
	ClassName  string
	Outcome    DeliveryOutcome
	Reason     string // set for drops
}

// FaultRecord captures an uncaught behavior error.
type FaultRecord struct {
	Clock   float64
	NodeID  string
	Summary string
}
