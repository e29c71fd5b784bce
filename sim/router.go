package sim

import (
	"github.com/sirupsen/logrus"

	"github.com/netsandbox/netsandbox/sim/trace"
)

// MessageRouter moves messages between endpoints. Route takes a message from a
// sender, hands its wire form to the host and, in local mode, delivers it
// right away. Deliver is the receiving half and is also reachable from the host
// through Session.DeliverMessage.
type MessageRouter struct {
	lookup   func(id string) *Endpoint
	registry *ClassRegistry
	bridge   HostBridge
	trace    *trace.SimulationTrace
	now      func() float64
	external bool
}

// Route serializes msg and hands it to the host. Unless the router runs in
// external-transport mode, it then delivers the wire form locally.
func (r *MessageRouter) Route(msg *Message) error {
	payload, err := EncodePayload(msg.Payload)
	if err != nil {
		return err
	}
	meta := TransportMeta{
		SenderID:      msg.SenderID,
		ReceiverID:    msg.ReceiverID,
		PayloadJSON:   payload,
		Color:         msg.Color,
		Speed:         msg.Speed,
		ClassName:     msg.ClassName,
		SentTimestamp: msg.SentTimestamp,
	}
	r.bridge.NotifyDelivered(msg.SenderID, meta)
	if r.external {
		r.trace.RecordDelivery(trace.DeliveryRecord{
			Clock:      r.now(),
			SenderID:   meta.SenderID,
			ReceiverID: meta.ReceiverID,
			ClassName:  meta.ClassName,
			Outcome:    trace.OutcomeHandedOff,
		})
		return nil
	}
	return r.Deliver(meta)
}

// Deliver rebuilds a message from its wire fields and enqueues it, with the
// sender id, into the receiver's mailbox. A message for an unregistered
// receiver is dropped: the sender has already returned, so the drop is logged
// and traced but never reported as an error. Only an undecodable payload is.
func (r *MessageRouter) Deliver(meta TransportMeta) error {
	receiver := r.lookup(meta.ReceiverID)
	if receiver == nil {
		logrus.Warnf("[t=%.3f] dropping %s from %s: receiver %s not registered",
			r.now(), meta.ClassName, meta.SenderID, meta.ReceiverID)
		r.trace.RecordDelivery(trace.DeliveryRecord{
			Clock:      r.now(),
			SenderID:   meta.SenderID,
			ReceiverID: meta.ReceiverID,
			ClassName:  meta.ClassName,
			Outcome:    trace.OutcomeDropped,
			Reason:     "receiver not registered",
		})
		return nil
	}
	payload, err := DecodePayload(meta.PayloadJSON)
	if err != nil {
		return err
	}
	class := r.registry.Message(meta.ClassName)
	msg := &Message{
		Payload:       payload,
		Color:         meta.Color,
		Speed:         meta.Speed,
		SentTimestamp: meta.SentTimestamp,
		SenderID:      meta.SenderID,
		ReceiverID:    meta.ReceiverID,
		ClassName:     class.Name,
	}
	receiver.mailbox.Enqueue(Envelope{Message: msg, SenderID: meta.SenderID})
	logrus.Debugf("[t=%.3f] delivered %s %s -> %s (mailbox=%d)",
		r.now(), msg.ClassName, meta.SenderID, meta.ReceiverID, receiver.mailbox.Len())
	r.trace.RecordDelivery(trace.DeliveryRecord{
		Clock:      r.now(),
		SenderID:   meta.SenderID,
		ReceiverID: meta.ReceiverID,
		ClassName:  msg.ClassName,
		Outcome:    trace.OutcomeDelivered,
	})
	return nil
}
