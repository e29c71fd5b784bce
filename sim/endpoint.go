package sim

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Behavior is the run logic bound to an endpoint. Run executes on the
// endpoint's main task and returns when the behavior finishes.
type Behavior interface {
	Run(t *Task, e *Endpoint) error
}

// BehaviorFunc adapts a plain function to Behavior.
type BehaviorFunc func(t *Task, e *Endpoint) error

func (f BehaviorFunc) Run(t *Task, e *Endpoint) error { return f(t, e) }

// behaviorHolder stores the bound behavior and any per-endpoint state the
// behavior's runtime keeps. Dispatch always reads the holder at call time.
type behaviorHolder struct {
	behavior Behavior
	state    any
}

// gate is the connection-readiness signal of an endpoint.
type gate struct {
	sched   *Scheduler
	set     bool
	waiters []*Task
}

func (g *gate) Set() {
	if g.set {
		return
	}
	g.set = true
	waiters := g.waiters
	g.waiters = nil
	for _, t := range waiters {
		g.sched.Wake(t)
	}
}

func (g *gate) Wait(t *Task) error {
	for !g.set {
		g.waiters = append(g.waiters, t)
		if err := t.Park(); err != nil {
			for i, w := range g.waiters {
				if w == t {
					g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
					break
				}
			}
			return err
		}
	}
	return nil
}

// Endpoint is one simulated node: mailbox, neighbors, connection gate and
// bound behavior. Endpoints are owned by their Session; the primitives below
// are meant to be called from task bodies only.
type Endpoint struct {
	id      string
	class   EndpointClass
	session *Session

	neighbors        []*Endpoint
	mailbox          *Mailbox
	gate             gate
	suppressHotstart bool
	holder           behaviorHolder
}

func newEndpoint(s *Session, id string, class EndpointClass) *Endpoint {
	return &Endpoint{
		id:      id,
		class:   class,
		session: s,
		mailbox: NewMailbox(s.sched),
		gate:    gate{sched: s.sched},
	}
}

// ID returns the endpoint id.
func (e *Endpoint) ID() string { return e.id }

// ClassName returns the name of the endpoint class the node was registered with.
func (e *Endpoint) ClassName() string { return e.class.Name }

// Session returns the owning session.
func (e *Endpoint) Session() *Session { return e.session }

// Mailbox returns the endpoint's mailbox.
func (e *Endpoint) Mailbox() *Mailbox { return e.mailbox }

// State returns the runtime state stored in the behavior holder.
func (e *Endpoint) State() any { return e.holder.state }

// SetState replaces the runtime state stored in the behavior holder.
func (e *Endpoint) SetState(v any) { e.holder.state = v }

// Behavior returns the bound behavior, or the class default if none is bound.
func (e *Endpoint) Behavior() Behavior {
	if e.holder.behavior != nil {
		return e.holder.behavior
	}
	return e.class.Behavior
}

// HotstartSuppressed reports whether gaining a neighbor leaves the gate closed.
func (e *Endpoint) HotstartSuppressed() bool { return e.suppressHotstart }

// Connected reports whether the connection gate has been set.
func (e *Endpoint) Connected() bool { return e.gate.set }

// Neighbors returns the neighbor ids in connection order.
func (e *Endpoint) Neighbors() []string {
	ids := make([]string, len(e.neighbors))
	for i, n := range e.neighbors {
		ids[i] = n.id
	}
	return ids
}

// IsNeighbor reports whether id is currently a neighbor.
func (e *Endpoint) IsNeighbor(id string) bool {
	return e.neighbor(id) != nil
}

func (e *Endpoint) neighbor(id string) *Endpoint {
	for _, n := range e.neighbors {
		if n.id == id {
			return n
		}
	}
	return nil
}

func (e *Endpoint) hasNeighbor(n *Endpoint) bool {
	for _, m := range e.neighbors {
		if m == n {
			return true
		}
	}
	return false
}

func (e *Endpoint) addNeighbor(n *Endpoint) {
	if e.hasNeighbor(n) {
		return
	}
	e.neighbors = append(e.neighbors, n)
	if !e.suppressHotstart {
		e.gate.Set()
	}
}

func (e *Endpoint) removeNeighbor(n *Endpoint) {
	for i, m := range e.neighbors {
		if m == n {
			e.neighbors = append(e.neighbors[:i], e.neighbors[i+1:]...)
			return
		}
	}
}

// DisplayName returns the host-side display name.
func (e *Endpoint) DisplayName() string { return e.session.bridge.NodeName(e.id) }

// SetDisplayName changes the host-side display name.
func (e *Endpoint) SetDisplayName(name string) { e.session.bridge.SetNodeName(e.id, name) }

// Color returns the host-side node color.
func (e *Endpoint) Color() string { return e.session.bridge.NodeColor(e.id) }

// SetColor changes the host-side node color.
func (e *Endpoint) SetColor(color string) { e.session.bridge.SetNodeColor(e.id, color) }

// Print writes console text attributed to the endpoint.
func (e *Endpoint) Print(text string) { e.session.bridge.Output(e.id, text) }

// Send routes data to the neighbor to. className selects the message class
// whose defaults apply ("" means BaseMessage); a MessageLike data value keeps
// its own payload, color and speed. Send returns once the message is routed.
func (e *Endpoint) Send(to string, data any, className string) error {
	if e.neighbor(to) == nil {
		return fmt.Errorf("%w: no connected node '%s'", ErrNotConnected, to)
	}
	if className == "" {
		className = BaseMessageName
	}
	class := e.session.registry.Message(className)
	msg := &Message{
		Payload:       data,
		Color:         class.Color,
		Speed:         class.Speed,
		SentTimestamp: e.session.clock.Now(),
		SenderID:      e.id,
		ReceiverID:    to,
		ClassName:     className,
	}
	if ml, ok := data.(MessageLike); ok {
		payload, err := ml.MessagePayload()
		if err != nil {
			return err
		}
		msg.Payload, msg.Color, msg.Speed = payload, ml.MessageColor(), ml.MessageSpeed()
	}
	return e.session.router.Route(msg)
}

// BroadcastOptions selects the recipients and class of a Broadcast.
type BroadcastOptions struct {
	Exclude []string // neighbor ids to skip
	Class   string   // message class, "" means BaseMessage
}

// Broadcast sends data to every neighbor not excluded. All sends are
// attempted; the returned error joins every individual failure.
func (e *Endpoint) Broadcast(t *Task, data any, opts BroadcastOptions) error {
	skip := make(map[string]bool, len(opts.Exclude))
	for _, id := range opts.Exclude {
		skip[id] = true
	}
	var sends []TaskFunc
	for _, id := range e.Neighbors() {
		if skip[id] {
			continue
		}
		to := id
		sends = append(sends, func(*Task) (any, error) {
			return nil, e.Send(to, data, opts.Class)
		})
	}
	_, err := Gather(t, sends...)
	return err
}

// Receive takes the next message from the mailbox. A negative timeout blocks
// until a message arrives, zero fails with ErrTimeout on an empty mailbox, and
// a positive timeout races the mailbox against a sleep of that many seconds.
func (e *Endpoint) Receive(t *Task, timeout float64) (*Message, string, error) {
	var (
		env Envelope
		err error
	)
	switch {
	case timeout < 0:
		env, err = e.mailbox.Dequeue(t)
	case timeout == 0:
		var ok bool
		if env, ok = e.mailbox.TryDequeue(); !ok {
			err = fmt.Errorf("%w: mailbox of %s is empty", ErrTimeout, e.id)
		}
	default:
		var (
			winner int
			res    any
		)
		winner, res, err = FirstOf(t,
			func(c *Task) (any, error) { return e.mailbox.Dequeue(c) },
			func(c *Task) (any, error) { return nil, e.session.Sleep(c, timeout) },
		)
		if err == nil && winner == 1 {
			err = fmt.Errorf("%w: nothing received within %gs", ErrTimeout, timeout)
		}
		if err == nil {
			env = res.(Envelope)
		}
	}
	if err != nil {
		return nil, "", err
	}
	e.session.bridge.DecrementBuffer(e.id)
	return env.Message, env.SenderID, nil
}

// Timeout runs op and races it against a sleep of d seconds. If the sleep wins
// op is cancelled and ErrTimeout is returned; otherwise op's outcome is.
func (e *Endpoint) Timeout(t *Task, op any, d float64) (any, error) {
	fn, err := ResolveOperation(op)
	if err != nil {
		return nil, err
	}
	winner, res, err := FirstOf(t, fn, func(c *Task) (any, error) {
		return nil, e.session.Sleep(c, d)
	})
	if winner == 1 {
		return nil, fmt.Errorf("%w: operation did not finish within %gs", ErrTimeout, d)
	}
	return res, err
}

// Parallel runs op detached from the caller. Errors raised inside op are
// written to the endpoint's console instead of propagating.
func (e *Endpoint) Parallel(op any) (*Task, error) {
	fn, err := ResolveOperation(op)
	if err != nil {
		return nil, err
	}
	task := e.session.sched.Spawn(e.id+"/parallel", e.id, func(t *Task) (any, error) {
		res, err := fn(t)
		if err != nil && !errors.Is(err, ErrCancelled) {
			fault := newBehaviorFault(e.id, err)
			logrus.Debugf("parallel task of %s failed: %s", e.id, fault.Summary)
			e.Print(fault.Trace + "\n")
		}
		return res, err
	})
	return task, nil
}
