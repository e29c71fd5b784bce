package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsandbox/netsandbox/sim/check"
)

func TestSession_SendThenReceive(t *testing.T) {
	// GIVEN a and b linked, a sending "hi" and b receiving
	s, _ := newTestSession(t, DefaultConfig())
	var got any
	var from string
	started(t, s, map[string]BehaviorFunc{
		"a": func(t *Task, e *Endpoint) error { return e.Send("b", "hi", "") },
		"b": func(t *Task, e *Endpoint) error {
			msg, sender, err := e.Receive(t, -1)
			if err != nil {
				return err
			}
			got, from = msg.Payload, sender
			return nil
		},
	}, "a", "b")

	// THEN b received ("hi", a)
	assert.Equal(t, "hi", got)
	assert.Equal(t, "a", from)
	require.NoError(t, s.Wait(context.Background()))
}

func TestSession_ReceiveTimeout_IsReportedAsFault(t *testing.T) {
	// GIVEN a waiting up to five seconds for a message that never comes
	s, bridge := newTestSession(t, tracedConfig(false))
	started(t, s, map[string]BehaviorFunc{
		"a": func(t *Task, e *Endpoint) error {
			_, _, err := e.Receive(t, 5)
			return err
		},
	}, "a")

	// WHEN the clock reaches the deadline
	s.Advance(5 * time.Second)

	// THEN nothing happened yet
	require.Empty(t, bridge.Faults("a"))

	// WHEN the clock moves past it
	s.Advance(time.Millisecond)

	// THEN the timeout ended the task and was reported, and a still exists
	assert.Equal(t, []string{"timeout: nothing received within 5s"}, bridge.Faults("a"))
	require.Len(t, s.Trace().Faults, 1)
	assert.Equal(t, "a", s.Trace().Faults[0].NodeID)
	assert.NotNil(t, s.Endpoint("a"))
	assert.Equal(t, []string{"a"}, s.NodeIDs())
	assert.Equal(t, 0, s.Scheduler().Live())
}

func TestSession_CheckCode(t *testing.T) {
	s, _ := newTestSession(t, DefaultConfig())

	syncRun := s.CheckCode("run", "def run(self): pass")
	printing := s.CheckCode("run", "async def run(self): print('hi')")

	assert.Equal(t, check.Result{OK: false, Type: check.SeverityError, Comment: "The method 'run' must be async"}, syncRun)
	assert.False(t, printing.OK)
	assert.Equal(t, check.SeverityWarning, printing.Type)
	assert.Equal(t, "Line 1, Col 21: Use 'self.print()' instead of 'print'", printing.Comment)
	assert.Equal(t, syncRun, s.CheckCode("run", "def run(self): pass"), "checking is idempotent")
}

func TestSession_HotStart_OnFirstNeighbor(t *testing.T) {
	// GIVEN a running session with a behavior-less node c
	s, _ := newTestSession(t, DefaultConfig())
	started(t, s, nil, "a")
	require.NoError(t, s.RegisterNode("c", ""))
	var neighbors []string
	ran := false

	// WHEN a behavior is bound to c
	require.NoError(t, s.Bind("c", BehaviorFunc(func(t *Task, e *Endpoint) error {
		ran = true
		neighbors = e.Neighbors()
		return nil
	})))

	// THEN it waits for a neighbor
	require.False(t, ran)

	// WHEN c is linked
	require.True(t, s.Connect("a", "c"))

	// THEN its task starts without another Start
	assert.True(t, ran)
	assert.Equal(t, []string{"a"}, neighbors)
}

func TestSession_HotStart_SuppressedUntilTriggered(t *testing.T) {
	s, _ := newTestSession(t, DefaultConfig())
	started(t, s, nil, "a")
	require.NoError(t, s.RegisterNode("c", ""))
	require.NoError(t, s.SuppressHotstart("c", true))
	ran := false
	require.NoError(t, s.Bind("c", BehaviorFunc(func(*Task, *Endpoint) error {
		ran = true
		return nil
	})))

	require.True(t, s.Connect("a", "c"))
	require.False(t, ran)
	require.NoError(t, s.TriggerHotstart("c"))

	assert.True(t, ran)
	assert.ErrorIs(t, s.TriggerHotstart("ghost"), ErrUnknownNode)
	assert.ErrorIs(t, s.SuppressHotstart("ghost", true), ErrUnknownNode)
}

func TestSession_Bind_CancelsPreviousTask(t *testing.T) {
	// GIVEN a running node blocked in receive
	s, bridge := newTestSession(t, DefaultConfig())
	var firstErr error
	started(t, s, map[string]BehaviorFunc{
		"a": func(t *Task, e *Endpoint) error {
			_, _, firstErr = e.Receive(t, -1)
			return firstErr
		},
	}, "a", "b")

	// WHEN a new behavior is bound
	second := false
	require.NoError(t, s.Bind("a", BehaviorFunc(func(*Task, *Endpoint) error {
		second = true
		return nil
	})))

	// THEN the old task was cancelled quietly and the new one ran
	assert.ErrorIs(t, firstErr, ErrCancelled)
	assert.True(t, second)
	assert.Empty(t, bridge.Faults("a"))
}

type tracedError struct{}

func (tracedError) Error() string { return "ValueError: bad" }
func (tracedError) Traceback() (string, string) {
	return "Traceback (most recent call last):\nValueError: bad\n", "ValueError: bad"
}

func TestSession_Bind_ImmediateFaultIsReturned(t *testing.T) {
	// GIVEN a running, linked node
	s, bridge := newTestSession(t, DefaultConfig())
	started(t, s, nil, "a", "b")

	// WHEN a behavior failing before its first suspension is bound
	err := s.Bind("a", BehaviorFunc(func(*Task, *Endpoint) error { return tracedError{} }))

	// THEN the fault comes back to the caller and is also reported
	var fault *BehaviorFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, "a", fault.NodeID)
	assert.Equal(t, "ValueError: bad", fault.Summary)
	assert.Contains(t, fault.Trace, "Traceback")
	assert.ErrorIs(t, err, tracedError{})
	assert.Equal(t, []string{"ValueError: bad"}, bridge.Faults("a"))
}

func TestSession_Sleep_ResumesNoEarlierThanDuration(t *testing.T) {
	// GIVEN a behavior sleeping one second
	s, _ := newTestSession(t, DefaultConfig())
	woke := -1.0
	started(t, s, map[string]BehaviorFunc{
		"a": func(t *Task, e *Endpoint) error {
			if err := s.Sleep(t, 1); err != nil {
				return err
			}
			woke = s.Now()
			return nil
		},
	}, "a")

	// WHEN the clock advances in frames
	for i := 0; i < 10; i++ {
		s.Advance(100 * time.Millisecond)
		require.Equal(t, -1.0, woke, "woke early at frame %d", i)
	}
	s.Advance(100 * time.Millisecond)

	// THEN it wakes on the first frame past one second
	assert.GreaterOrEqual(t, woke, 1.0)
	assert.InDelta(t, 1.1, s.SimTime(), 1e-9)
}

func TestSession_StartTwice_AlreadyRunning(t *testing.T) {
	s, _ := newTestSession(t, DefaultConfig())
	mustRegister(t, s, "a", "b")

	n, err := s.Start()
	require.NoError(t, err)
	_, again := s.Start()

	assert.Equal(t, 2, n)
	assert.ErrorIs(t, again, ErrAlreadyRunning)
	assert.True(t, s.Running())
}

func TestSession_Wait(t *testing.T) {
	s, _ := newTestSession(t, DefaultConfig())
	assert.ErrorIs(t, s.Wait(context.Background()), ErrNotRunning)

	started(t, s, map[string]BehaviorFunc{
		"a": func(t *Task, e *Endpoint) error {
			_, _, err := e.Receive(t, -1)
			return err
		},
	}, "a", "b")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)

	require.NoError(t, s.DeliverMessage("b", "a", "white", 1, 0, "1", ""))
	assert.NoError(t, s.Wait(context.Background()))
}

func TestSession_Reset_CancelsEverythingAndEmptiesRegistry(t *testing.T) {
	// GIVEN a running session with a blocked task and a registered class
	s, _ := newTestSession(t, DefaultConfig())
	s.Registry().RegisterMessage(MessageClass{Name: "Ping"})
	started(t, s, map[string]BehaviorFunc{
		"a": func(t *Task, e *Endpoint) error {
			_, _, err := e.Receive(t, -1)
			return err
		},
	}, "a", "b")
	s.Advance(time.Second)
	require.Equal(t, 1, s.Scheduler().Live())

	// WHEN reset
	s.Reset()

	// THEN no task survives, no node is left and the clock starts over
	assert.Equal(t, 0, s.Scheduler().Live())
	assert.Empty(t, s.NodeIDs())
	assert.Equal(t, 0.0, s.SimTime())
	assert.False(t, s.Running())
	assert.True(t, s.Registry().HasMessage("Ping"))

	// WHEN started again with no nodes
	n, err := s.Start()

	// THEN nothing is spawned
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, s.Scheduler().Live())
}

func TestSession_RemoveNode(t *testing.T) {
	// GIVEN b blocked in receive and linked to a
	s, _ := newTestSession(t, DefaultConfig())
	var bErr error
	started(t, s, map[string]BehaviorFunc{
		"b": func(t *Task, e *Endpoint) error {
			_, _, bErr = e.Receive(t, -1)
			return bErr
		},
	}, "a", "b")

	// WHEN b is removed
	removed := s.RemoveNode("b")

	// THEN its task is cancelled and a lost its neighbor
	assert.True(t, removed)
	assert.ErrorIs(t, bErr, ErrCancelled)
	assert.Empty(t, s.Endpoint("a").Neighbors())
	assert.Nil(t, s.Endpoint("b"))
	assert.Equal(t, []string{"a"}, s.NodeIDs())
	assert.False(t, s.RemoveNode("b"))
}

func TestSession_RegisterNode_Validation(t *testing.T) {
	s, _ := newTestSession(t, DefaultConfig())
	require.NoError(t, s.RegisterNode("a", "Unknown"))

	assert.ErrorIs(t, s.RegisterNode("a", ""), ErrInvalidArgument)
	assert.ErrorIs(t, s.RegisterNode("", ""), ErrInvalidArgument)
	assert.Equal(t, DefaultEndpointName, s.Endpoint("a").ClassName())
}

func TestSession_RegisterNode_UsesClassBehavior(t *testing.T) {
	s, _ := newTestSession(t, DefaultConfig())
	ran := ""
	s.Registry().RegisterEndpoint(EndpointClass{Name: "Beacon", Behavior: BehaviorFunc(func(t *Task, e *Endpoint) error {
		ran = e.ID()
		return nil
	})})

	require.NoError(t, s.RegisterNode("beacon", "Beacon"))
	_, err := s.Start()

	require.NoError(t, err)
	assert.Equal(t, "beacon", ran)
}

func TestSession_RenameNode(t *testing.T) {
	s, bridge := newTestSession(t, DefaultConfig())
	mustRegister(t, s, "a")

	s.RenameNode("a", "Alpha")
	s.RenameNode("ghost", "Nobody")

	assert.Equal(t, "Alpha", bridge.NodeName("a"))
	assert.Equal(t, "ghost", bridge.NodeName("ghost"))
}

func TestSession_SourceWithoutCompiler(t *testing.T) {
	s, _ := newTestSession(t, DefaultConfig())
	mustRegister(t, s, "a")

	assert.ErrorIs(t, s.BindBehavior("a", "async def run(self): pass"), ErrNoCompiler)
	assert.ErrorIs(t, s.CompileSource("message", "class M(BaseMessage): pass"), ErrNoCompiler)
	assert.ErrorIs(t, s.Bind("ghost", nil), ErrUnknownNode)
}

type stubCompiler struct {
	kinds []check.Kind
	b     Behavior
}

func (c *stubCompiler) Compile(kind check.Kind, source string) (Behavior, error) {
	c.kinds = append(c.kinds, kind)
	if res := check.Check(kind, source); !res.OK {
		return nil, &CheckError{Kind: string(kind), Comment: res.Comment, Type: string(res.Type)}
	}
	return c.b, nil
}

func TestSession_BindBehavior_ThroughCompiler(t *testing.T) {
	// GIVEN a session with a compiler
	s, _ := newTestSession(t, DefaultConfig())
	ran := false
	comp := &stubCompiler{b: BehaviorFunc(func(*Task, *Endpoint) error { ran = true; return nil })}
	s.SetCompiler(comp)
	mustRegister(t, s, "a")

	// WHEN a rejected and an accepted source are submitted
	rejected := s.BindBehavior("a", "def run(self): pass")
	accepted := s.BindBehavior("a", "async def run(self): pass")
	_, err := s.Start()
	require.NoError(t, err)

	// THEN the rejection carries the check result and the accepted behavior runs
	var cerr *CheckError
	require.True(t, errors.As(rejected, &cerr))
	assert.Equal(t, "The method 'run' must be async", cerr.Comment)
	assert.Equal(t, "error", cerr.Type)
	assert.NoError(t, accepted)
	assert.True(t, ran)
	assert.Equal(t, []check.Kind{check.KindRun, check.KindRun}, comp.kinds)
	assert.ErrorIs(t, s.BindBehavior("ghost", "async def run(self): pass"), ErrUnknownNode)
}

func TestSession_RNG_IsDeterministicPerNode(t *testing.T) {
	a, _ := newTestSession(t, NewConfig(42, "", TransportConfig{}, ScriptConfig{}))
	b, _ := newTestSession(t, NewConfig(42, "", TransportConfig{}, ScriptConfig{}))

	assert.Equal(t, a.RNG("n1").Int63(), b.RNG("n1").Int63())
	assert.NotEqual(t, a.RNG("n1").Int63(), a.RNG("n2").Int63())
}
