package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netsandbox/netsandbox/sim/check"
	"github.com/netsandbox/netsandbox/sim/trace"
)

// Compiler turns submitted source into behaviors and classes. Compile runs the
// matching safety check first. For check.KindRun it returns the compiled
// behavior; for the class kinds it registers classes in the session registry
// and returns nil.
type Compiler interface {
	Compile(kind check.Kind, source string) (Behavior, error)
}

// Session is one independent simulation: node registry, topology, scheduler,
// clock and message router. Control operations (the exported methods that
// take the session lock) may be called from any goroutine. Task bodies run
// only while a control operation holds the lock, so everything they touch is
// reached through the lock-free accessors and Endpoint primitives instead.
type Session struct {
	mu sync.Mutex

	cfg      Config
	bridge   HostBridge
	registry *ClassRegistry
	compiler Compiler
	rng      *NodeStreams
	trace    *trace.SimulationTrace

	sched    *Scheduler
	clock    *VirtualClock
	nodes    map[string]*Endpoint
	order    []string
	topology *Topology
	router   *MessageRouter

	running  bool
	tasks    map[string]*Task // main task per endpoint
	mainLive int
	drained  chan struct{}
}

// NewSession creates an empty, stopped session. A nil bridge selects a MemoryBridge.
func NewSession(cfg Config, bridge HostBridge) *Session {
	if bridge == nil {
		bridge = NewMemoryBridge()
	}
	if cfg.MaxStepsWithoutYield <= 0 {
		cfg.MaxStepsWithoutYield = DefaultMaxStepsWithoutYield
	}
	s := &Session{
		cfg:      cfg,
		bridge:   bridge,
		registry: NewClassRegistry(),
		rng:      NewNodeStreams(cfg.Seed),
		trace:    trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevel(cfg.TraceLevel)}),
		sched:    NewScheduler(),
	}
	s.clearRegistry()
	s.clock = s.newClock()
	return s
}

func (s *Session) newClock() *VirtualClock {
	c := NewVirtualClock()
	c.settle = func() { s.sched.RunUntilIdle() }
	return c
}

func (s *Session) clearRegistry() {
	s.nodes = make(map[string]*Endpoint)
	s.order = nil
	s.tasks = make(map[string]*Task)
	s.topology = newTopology(s.nodes)
	s.router = &MessageRouter{
		lookup:   func(id string) *Endpoint { return s.nodes[id] },
		registry: s.registry,
		bridge:   s.bridge,
		trace:    s.trace,
		now:      func() float64 { return s.clock.Now() },
		external: s.cfg.ExternalTransport,
	}
	s.mainLive = 0
	s.drained = make(chan struct{})
	close(s.drained)
}

// SetCompiler attaches the compiler used by BindBehavior and CompileSource.
func (s *Session) SetCompiler(c Compiler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compiler = c
}

// === Lock-free accessors (task bodies and compilers) ===

// Config returns the session configuration.
func (s *Session) Config() Config { return s.cfg }

// Bridge returns the host bridge.
func (s *Session) Bridge() HostBridge { return s.bridge }

// Registry returns the class registry.
func (s *Session) Registry() *ClassRegistry { return s.registry }

// Scheduler returns the task scheduler.
func (s *Session) Scheduler() *Scheduler { return s.sched }

// Trace returns the delivery trace.
func (s *Session) Trace() *trace.SimulationTrace { return s.trace }

// Topology returns the neighbor graph.
func (s *Session) Topology() *Topology { return s.topology }

// Now returns the current virtual time in seconds.
func (s *Session) Now() float64 { return s.clock.Now() }

// Running reports whether Start has been called since the last Reset.
func (s *Session) Running() bool { return s.running }

// Endpoint returns the endpoint registered under id, or nil.
func (s *Session) Endpoint(id string) *Endpoint { return s.nodes[id] }

// RNG returns the deterministic random stream of the endpoint id.
func (s *Session) RNG(id string) *rand.Rand {
	return s.rng.For(id)
}

// Sleep suspends t for d virtual seconds. A negative duration sleeps zero
// seconds, which still waits for the next clock advance.
func (s *Session) Sleep(t *Task, d float64) error {
	if d < 0 {
		d = 0
	}
	fired := false
	clock := s.clock
	timer := clock.SetTimer(d, func() {
		fired = true
		s.sched.Wake(t)
	})
	for !fired {
		if err := t.Park(); err != nil {
			clock.Stop(timer)
			return err
		}
	}
	return nil
}

// === Control operations ===

// SimTime returns the current virtual time in seconds.
func (s *Session) SimTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Now()
}

// PendingTimers returns the number of armed timers. With no pending timer
// nothing changes until the host delivers a message or edits the session.
func (s *Session) PendingTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Pending()
}

// NodeIDs returns registered endpoint ids in registration order.
func (s *Session) NodeIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// RegisterNode creates an endpoint of the named class. Unknown class names fall
// back to the default endpoint class.
func (s *Session) RegisterNode(id, className string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		return fmt.Errorf("%w: empty node id", ErrInvalidArgument)
	}
	if _, ok := s.nodes[id]; ok {
		return fmt.Errorf("%w: node %q already registered", ErrInvalidArgument, id)
	}
	class := s.registry.Endpoint(className)
	s.nodes[id] = newEndpoint(s, id, class)
	s.order = append(s.order, id)
	logrus.Debugf("registered node %s (class %s)", id, class.Name)
	return nil
}

// RemoveNode cancels every task of id, detaches it from its neighbors and
// discards it. It returns false if id is not registered.
func (s *Session) RemoveNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nodes[id] == nil {
		return false
	}
	n := s.sched.CancelOwner(id)
	s.topology.Detach(id)
	delete(s.nodes, id)
	s.rng.Forget(id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.sched.RunUntilIdle()
	logrus.Infof("removed node %s (%d tasks cancelled)", id, n)
	return true
}

// Connect links a and b and runs any task the new link made runnable.
func (s *Session) Connect(a, b string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.topology.Connect(a, b)
	s.sched.RunUntilIdle()
	return ok
}

// Disconnect removes the link between a and b.
func (s *Session) Disconnect(a, b string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topology.Disconnect(a, b)
}

// Start replaces the clock, spawns the main task of every registered endpoint
// and runs them to their first suspension point. It returns the number of
// tasks spawned. Use Wait to block until they finish.
func (s *Session) Start() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return 0, ErrAlreadyRunning
	}
	s.clock = s.newClock()
	s.running = true
	for _, id := range s.order {
		s.spawnMain(s.nodes[id], false)
	}
	s.sched.RunUntilIdle()
	logrus.Infof("session started with %d nodes", len(s.order))
	return len(s.order), nil
}

// Wait blocks until every main and hot-start task has finished or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	drained := s.drained
	s.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-drained:
		return nil
	}
}

// Reset cancels every task, clears the node registry, restarts the random
// streams and installs a fresh clock. Registered classes survive.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown()
	s.clearRegistry()
	s.rng.Reset()
	s.clock = s.newClock()
	logrus.Infof("session reset")
}

// Close cancels every task so that no task goroutine outlives the session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown()
}

func (s *Session) shutdown() {
	n := s.sched.CancelAll()
	s.sched.RunUntilIdle()
	s.running = false
	if n > 0 {
		logrus.Debugf("cancelled %d tasks", n)
	}
}

// RenameNode sets the display name of id through the host bridge. Unknown ids
// are ignored.
func (s *Session) RenameNode(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.nodes[id]; e != nil {
		e.SetDisplayName(name)
	}
}

// SuppressHotstart controls whether gaining a neighbor sets the gate of id.
func (s *Session) SuppressHotstart(id string, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.nodes[id]
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	e.suppressHotstart = v
	return nil
}

// TriggerHotstart sets the gate of id regardless of suppression.
func (s *Session) TriggerHotstart(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.nodes[id]
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	e.gate.Set()
	s.sched.RunUntilIdle()
	return nil
}

// CheckCode runs the safety checker profile kind over source.
func (s *Session) CheckCode(kind, source string) check.Result {
	return check.Check(check.Kind(kind), source)
}

// CompileSource compiles class definitions (kind "message" or "node") into the
// session registry.
func (s *Session) CompileSource(kind, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.compiler == nil {
		return ErrNoCompiler
	}
	_, err := s.compiler.Compile(check.Kind(kind), source)
	return err
}

// BindBehavior compiles source as a run behavior and binds it to id.
func (s *Session) BindBehavior(id, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.compiler == nil {
		return ErrNoCompiler
	}
	e := s.nodes[id]
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	b, err := s.compiler.Compile(check.KindRun, source)
	if err != nil {
		return err
	}
	return s.bind(e, b)
}

// Bind stores b in the behavior holder of id. On a running session the node's
// previous main task is cancelled and a hot-start task is spawned and run
// until it first suspends; a fault raised before that point is returned.
func (s *Session) Bind(id string, b Behavior) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.nodes[id]
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return s.bind(e, b)
}

func (s *Session) bind(e *Endpoint, b Behavior) error {
	if prev := s.tasks[e.id]; prev != nil {
		s.sched.Cancel(prev)
		s.sched.RunUntilIdle()
	}
	e.holder.behavior = b
	if !s.running {
		return nil
	}
	logrus.Infof("hot starting node %s", e.id)
	t := s.spawnMain(e, true)
	s.sched.RunUntilIdle()
	var fault *BehaviorFault
	if t.Done() && errors.As(t.Err(), &fault) {
		return fault
	}
	return nil
}

// DeliverMessage routes a message arriving from the host into the mailbox of
// receiverID.
func (s *Session) DeliverMessage(senderID, receiverID, color string, speed, sentTimestamp float64, payloadJSON, className string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.router.Deliver(TransportMeta{
		SenderID:      senderID,
		ReceiverID:    receiverID,
		PayloadJSON:   payloadJSON,
		Color:         color,
		Speed:         speed,
		ClassName:     className,
		SentTimestamp: sentTimestamp,
	})
	s.sched.RunUntilIdle()
	return err
}

// Advance moves the clock forward by delta, firing due timers and running the
// tasks they resume. It returns the number of timers fired.
func (s *Session) Advance(delta time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	fired := s.clock.Advance(delta)
	s.sched.RunUntilIdle()
	return fired
}

// === Supervision ===

func (s *Session) spawnMain(e *Endpoint, hot bool) *Task {
	name := e.id + "/run"
	if hot {
		name = e.id + "/hotstart"
	}
	t := s.sched.Spawn(name, e.id, func(t *Task) (any, error) {
		if hot {
			if err := e.gate.Wait(t); err != nil {
				return nil, err
			}
		}
		return nil, s.runBehavior(t, e)
	})
	s.tasks[e.id] = t
	if s.mainLive == 0 {
		s.drained = make(chan struct{})
	}
	s.mainLive++
	t.OnDone(func(t *Task) {
		if s.tasks[e.id] == t {
			delete(s.tasks, e.id)
		}
		s.mainLive--
		if s.mainLive == 0 {
			close(s.drained)
		}
	})
	return t
}

// runBehavior dispatches through the behavior holder and turns an uncaught
// error into a BehaviorFault reported through the host bridge.
func (s *Session) runBehavior(t *Task, e *Endpoint) error {
	b := e.Behavior()
	if b == nil {
		return nil
	}
	err := b.Run(t, e)
	if err == nil || errors.Is(err, ErrCancelled) {
		return err
	}
	fault := newBehaviorFault(e.id, err)
	logrus.Warnf("[t=%.3f] behavior of %s failed: %s", s.clock.Now(), e.id, fault.Summary)
	s.bridge.OutputException(e.id, fault.Trace, fault.Summary)
	s.trace.RecordFault(trace.FaultRecord{Clock: s.clock.Now(), NodeID: e.id, Summary: fault.Summary})
	return fault
}
