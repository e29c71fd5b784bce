package script

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsandbox/netsandbox/sim"
	"github.com/netsandbox/netsandbox/sim/check"
)

func TestRuntime_PingPong(t *testing.T) {
	// GIVEN two linked nodes where a pings and b answers with an incremented counter
	s, _, b := newTestSession(t, sim.DefaultConfig())
	nodes(t, s, map[string]string{
		"a": `
async def run(self):
    await self.send('b', {'n': 1})
    msg, sender = await self.receive()
    self.print(sender, msg.data['n'], msg.sender.uuid, msg.receiver.uuid)
`,
		"b": `
async def run(self):
    msg, sender = await self.receive()
    await self.send(sender, {'n': msg.data['n'] + 1})
`,
	}, [2]string{"a", "b"})

	// WHEN the session starts
	_, err := s.Start()
	require.NoError(t, err)

	// THEN a receives the answer without any clock advance
	assert.Equal(t, []string{"b 2 b a\n"}, b.Lines("a"))
	assert.Empty(t, b.Faults("a"))
	assert.Empty(t, b.Faults("b"))
}

func TestRuntime_ReceiveTimeout(t *testing.T) {
	// GIVEN a node waiting half a second for a message that never comes
	s, _, b := newTestSession(t, sim.DefaultConfig())
	nodes(t, s, map[string]string{"a": `
async def run(self):
    try:
        await self.receive(timeout=0.5)
    except TimeoutError:
        self.print('timeout at', get_time())
`})
	_, err := s.Start()
	require.NoError(t, err)
	require.Empty(t, b.Lines("a"))

	// WHEN the clock passes the deadline
	s.Advance(600 * time.Millisecond)

	// THEN the receive fails with TimeoutError at the advanced time
	assert.Equal(t, []string{"timeout at 0.6\n"}, b.Lines("a"))
}

func TestRuntime_MessageClasses(t *testing.T) {
	// GIVEN a compiled message class with its own color and speed
	s, _, b := newTestSession(t, sim.DefaultConfig())
	require.NoError(t, s.CompileSource("message", "class Ping(BaseMessage):\n    color = 'red'\n    speed = 2.5\n"))
	assert.Equal(t, sim.MessageClass{Name: "Ping", Color: "red", Speed: 2.5}, s.Registry().Message("Ping"))

	nodes(t, s, map[string]string{
		"a": "async def run(self):\n    await self.send('b', 'hi', Ping)\n",
		"b": `
async def run(self):
    msg, sender = await self.receive()
    self.print(msg.__class__.__name__, msg.color, msg.speed, msg.data, isinstance(msg, BaseMessage))
`,
	}, [2]string{"a", "b"})

	// WHEN a sends a Ping
	_, err := s.Start()
	require.NoError(t, err)

	// THEN b rebuilds it as a Ping with the transported hints
	assert.Equal(t, []string{"Ping red 2.5 hi True\n"}, b.Lines("b"))
}

func TestRuntime_MessageClassRejectsBadHints(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"color not str", "class M(BaseMessage):\n    color = 5\n", "TypeError: M.color must be str, not int"},
		{"speed not numeric", "class M(BaseMessage):\n    speed = 'fast'\n", "TypeError: M.speed must be a number, not str"},
		{"inherited bad color", "class A(BaseMessage):\n    color = None\n\nclass B(A):\n    pass\n", "TypeError: A.color must be str, not NoneType"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// GIVEN a message class whose color or speed has the wrong type
			s, _, _ := newTestSession(t, sim.DefaultConfig())

			// WHEN it is compiled
			err := s.CompileSource("message", tc.src)

			// THEN compilation fails and nothing is registered
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
			assert.Equal(t, []string{sim.BaseMessageName}, s.Registry().MessageNames())
		})
	}
}

func TestRuntime_BadMessageClassDoesNotPoisonLaterCompiles(t *testing.T) {
	s, _, _ := newTestSession(t, sim.DefaultConfig())
	require.Error(t, s.CompileSource("message", "class Bad(BaseMessage):\n    speed = []\n\nclass Worse(Bad):\n    pass\n"))

	err := s.CompileSource("message", "class Good(BaseMessage):\n    speed = 3\n")

	require.NoError(t, err)
	assert.Equal(t, sim.MessageClass{Name: "Good", Color: sim.DefaultMessageColor, Speed: 3}, s.Registry().Message("Good"))
}

func TestRuntime_UnknownMessageClassFallsBack(t *testing.T) {
	// GIVEN a message class defined only inside the sender's behavior
	s, _, b := newTestSession(t, sim.DefaultConfig())
	nodes(t, s, map[string]string{
		"a": `
class Private(BaseMessage):
    color = 'blue'

async def run(self):
    await self.send('b', 1, Private)
`,
		"b": `
async def run(self):
    msg, _ = await self.receive()
    self.print(msg.__class__.__name__, msg.color)
`,
	}, [2]string{"a", "b"})

	// WHEN it is delivered
	_, err := s.Start()
	require.NoError(t, err)

	// THEN the receiver gets a BaseMessage that keeps the sent color
	assert.Equal(t, []string{"BaseMessage blue\n"}, b.Lines("b"))
}

func TestRuntime_BroadcastExclude(t *testing.T) {
	receiver := `
async def run(self):
    try:
        msg, sender = await self.receive(timeout=1)
        self.print('got', msg.data, 'from', sender)
    except TimeoutError:
        self.print('none')
`
	tests := []struct {
		name    string
		sender  string
		b       string // behavior of b, defaults to the receiver
		outputs map[string]string
	}{
		{
			name:    "exclude by id",
			sender:  "async def run(self):\n    await self.broadcast('x', exclude=['c'])\n",
			outputs: map[string]string{"b": "got x from a\n", "c": "none\n", "d": "got x from a\n"},
		},
		{
			name: "exclude by endpoint object",
			sender: `
async def run(self):
    msg, sender = await self.receive()
    await self.broadcast('y', [msg.sender])
`,
			b:       "async def run(self):\n    await self.send('a', 'hello')\n    self.print('none')\n",
			outputs: map[string]string{"b": "none\n", "c": "got y from a\n", "d": "got y from a\n"},
		},
		{
			name:    "exclude is a message class",
			sender:  "async def run(self):\n    await self.broadcast('z', BaseMessage)\n",
			outputs: map[string]string{"b": "got z from a\n", "c": "got z from a\n", "d": "got z from a\n"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// GIVEN a hub a linked to b, c and d
			s, _, b := newTestSession(t, sim.DefaultConfig())
			bSrc := receiver
			if tc.b != "" {
				bSrc = tc.b
			}
			nodes(t, s, map[string]string{"a": tc.sender, "b": bSrc, "c": receiver, "d": receiver},
				[2]string{"a", "b"}, [2]string{"a", "c"}, [2]string{"a", "d"})

			// WHEN the session runs past every receive timeout
			_, err := s.Start()
			require.NoError(t, err)
			s.Advance(1100 * time.Millisecond)

			// THEN only the selected neighbors got the message
			for id, want := range tc.outputs {
				assert.Equal(t, want, b.Text(id), "node %s", id)
			}
		})
	}
}

func TestRuntime_SendErrors(t *testing.T) {
	// GIVEN a node sending to a stranger and an unserializable payload
	s, _, b := newTestSession(t, sim.DefaultConfig())
	nodes(t, s, map[string]string{"a": `
async def run(self):
    try:
        await self.send('nobody', 1)
    except ConnectionError as e:
        self.print(e)
    try:
        await self.send('b', self)
    except Exception as e:
        self.print(type(e).__name__)
`, "b": ""}, [2]string{"a", "b"})

	// WHEN it runs
	_, err := s.Start()
	require.NoError(t, err)

	// THEN both failures are catchable
	assert.Equal(t, []string{"No connected node 'nobody'\n", "TypeError\n"}, b.Lines("a"))
}

func TestRuntime_ParallelAndTimeout(t *testing.T) {
	// GIVEN a behavior with a detached ticker and an operation raced against a deadline
	s, _, b := newTestSession(t, sim.DefaultConfig())
	nodes(t, s, map[string]string{"a": `
async def run(self):
    async def tick():
        await sleep(1)
        self.print('tick')
    self.parallel(tick)
    try:
        await self.timeout(sleep(5), 2)
    except TimeoutError:
        self.print('timed out at', get_time())
`})

	// WHEN the clock advances in two steps
	_, err := s.Start()
	require.NoError(t, err)
	s.Advance(1500 * time.Millisecond)
	s.Advance(1000 * time.Millisecond)

	// THEN the ticker ran first and the sleep lost the race against the deadline
	assert.Equal(t, []string{"tick\n", "timed out at 2.5\n"}, b.Lines("a"))
}

func TestRuntime_TimeoutReturnsResult(t *testing.T) {
	// GIVEN an async helper that finishes before its deadline
	s, _, b := newTestSession(t, sim.DefaultConfig())
	nodes(t, s, map[string]string{"a": `
async def answer():
    await sleep(0.1)
    return 42

async def run(self):
    result = await self.timeout(answer, 1)
    self.print('answer', result)
`})

	// WHEN the helper's sleep elapses
	_, err := s.Start()
	require.NoError(t, err)
	s.Advance(200 * time.Millisecond)

	// THEN timeout returns its result
	assert.Equal(t, []string{"answer 42\n"}, b.Lines("a"))
}

func TestRuntime_ParallelRejectsPlainValues(t *testing.T) {
	// GIVEN a behavior passing a plain function to parallel
	s, _, b := newTestSession(t, sim.DefaultConfig())
	nodes(t, s, map[string]string{"a": `
def plain():
    pass

async def run(self):
    self.parallel(plain)
`})

	// WHEN it runs
	_, err := s.Start()
	require.NoError(t, err)

	// THEN the behavior faults with a RuntimeError
	assert.Equal(t, []string{"RuntimeError: <function plain> is neither awaitable nor coroutine function"}, b.Faults("a"))
}

func TestRuntime_FaultIsReportedWithTrace(t *testing.T) {
	// GIVEN a behavior that divides by zero on its third line
	cfg := sim.NewConfig(0, "deliveries", sim.TransportConfig{}, sim.ScriptConfig{})
	s, _, b := newTestSession(t, cfg)
	nodes(t, s, map[string]string{
		"a": "async def run(self):\n    x = 1\n    y = x / 0\n",
		"b": "async def run(self):\n    await sleep(1)\n    self.print('still alive')\n",
	})

	// WHEN the session runs
	_, err := s.Start()
	require.NoError(t, err)
	s.Advance(1500 * time.Millisecond)

	// THEN the fault is reported for a only and b keeps running
	assert.Equal(t, []string{"ZeroDivisionError: division by zero"}, b.Faults("a"))
	b.mu.Lock()
	trace := b.traces["a"][0]
	b.mu.Unlock()
	assert.Contains(t, trace, "Traceback (most recent call last):\n")
	assert.Contains(t, trace, "line 3, in run")
	assert.Equal(t, []string{"still alive\n"}, b.Lines("b"))
	require.Len(t, s.Trace().Faults, 1)
	assert.Equal(t, "a", s.Trace().Faults[0].NodeID)
}

func TestRuntime_StepBudgetFaultsRunawayBehavior(t *testing.T) {
	// GIVEN a small step budget and a loop that never suspends
	cfg := sim.NewConfig(0, "", sim.TransportConfig{}, sim.ScriptConfig{MaxStepsWithoutYield: 1000})
	s, _, b := newTestSession(t, cfg)
	nodes(t, s, map[string]string{
		"a": "async def run(self):\n    try:\n        while True:\n            pass\n    except RuntimeError:\n        self.print('caught')\n",
		"b": "async def run(self):\n    for i in range(3):\n        await sleep(0)\n        x = [j for j in range(100)]\n    self.print('done')\n",
	})

	// WHEN the session runs
	_, err := s.Start()
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		s.Advance(10 * time.Millisecond)
	}

	// THEN only the runaway loop faults and its except clause never runs
	assert.Equal(t, []string{"RuntimeError: executed 1000 steps without yielding"}, b.Faults("a"))
	assert.Empty(t, b.Lines("a"))
	assert.Equal(t, []string{"done\n"}, b.Lines("b"))
}

func TestRuntime_CheckRejectsBind(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		severity string
		comment  string
	}{
		{"synchronous run", "def run(self): pass", "error", "The method 'run' must be async"},
		{"missing run", "async def main(self): pass", "error", "Expecting a method named 'run'"},
		{"bare print", "async def run(self): print('hi')", "warning", "Line 1, Col 21: Use 'self.print()' instead of 'print'"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _, _ := newTestSession(t, sim.DefaultConfig())
			require.NoError(t, s.RegisterNode("a", ""))

			err := s.BindBehavior("a", tc.src)

			var ce *sim.CheckError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, string(check.KindRun), ce.Kind)
			assert.Equal(t, tc.severity, ce.Type)
			assert.Equal(t, tc.comment, ce.Comment)
		})
	}
}

func TestRuntime_HotStartWaitsForFirstNeighbor(t *testing.T) {
	// GIVEN a running session with two idle, unlinked nodes
	s, _, b := newTestSession(t, sim.DefaultConfig())
	nodes(t, s, map[string]string{"a": "", "b": ""})
	_, err := s.Start()
	require.NoError(t, err)

	// WHEN a behavior is bound to a
	require.NoError(t, s.BindBehavior("a", "async def run(self):\n    self.print('hot', self.get_neighbors())\n"))

	// THEN it waits for the connection gate
	assert.Empty(t, b.Lines("a"))

	// WHEN a gains a neighbor
	require.True(t, s.Connect("a", "b"))

	// THEN the hot-started behavior runs
	assert.Equal(t, []string{"hot ['b']\n"}, b.Lines("a"))
}

func TestRuntime_BindSurfacesImmediateFault(t *testing.T) {
	// GIVEN a running session with linked nodes
	s, _, _ := newTestSession(t, sim.DefaultConfig())
	nodes(t, s, map[string]string{"a": "", "b": ""}, [2]string{"a", "b"})
	_, err := s.Start()
	require.NoError(t, err)

	// WHEN a behavior that fails before suspending is bound
	err = s.BindBehavior("a", "async def run(self):\n    raise ValueError('bad config')\n")

	// THEN the binder gets the fault
	var fault *sim.BehaviorFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, "a", fault.NodeID)
	assert.Equal(t, "ValueError: bad config", fault.Summary)
}

func TestRuntime_EndpointClasses(t *testing.T) {
	// GIVEN an endpoint class with its own state and run method
	s, _, b := newTestSession(t, sim.DefaultConfig())
	require.NoError(t, s.CompileSource("node", `
class Greeter(Endpoint):
    def __init__(self):
        self.greeting = 'hello'

    async def run(self):
        self.color = Color.Red
        self.print(self.greeting, self.uuid, self.color)
`))
	require.NoError(t, s.RegisterNode("g", "Greeter"))
	require.NoError(t, s.RegisterNode("plain", "NoSuchClass"))

	// WHEN the session starts
	_, err := s.Start()
	require.NoError(t, err)

	// THEN the class behavior runs and unknown classes idle
	assert.Equal(t, []string{"hello g #D35757\n"}, b.Lines("g"))
	assert.Empty(t, b.Lines("plain"))
	assert.Equal(t, []string{"Endpoint", "Greeter"}, s.Registry().EndpointNames())
}

func TestRuntime_NodeNames(t *testing.T) {
	// GIVEN a node that renames itself and looks up names
	s, _, b := newTestSession(t, sim.DefaultConfig())
	nodes(t, s, map[string]string{"a": `
async def run(self):
    self.display_name = 'Alpha'
    self.print(get_node_name(self), get_node_name('b'), self.display_name)
    try:
        get_node_name('zzz')
    except KeyError:
        self.print('missing')
`, "b": ""})

	// WHEN it runs
	_, err := s.Start()
	require.NoError(t, err)

	// THEN names resolve through the host bridge
	assert.Equal(t, []string{"Alpha b Alpha\n", "missing\n"}, b.Lines("a"))
}

func TestRuntime_RandomIsDeterministicPerSeed(t *testing.T) {
	src := "import random\nasync def run(self):\n    self.print([random.randint(1, 100) for _ in range(5)])\n"
	runOnce := func(seed int64) string {
		cfg := sim.NewConfig(seed, "", sim.TransportConfig{}, sim.ScriptConfig{})
		s, _, b := newTestSession(t, cfg)
		nodes(t, s, map[string]string{"a": src})
		_, err := s.Start()
		require.NoError(t, err)
		return b.Text("a")
	}

	// GIVEN/WHEN two sessions with the same seed and one with another
	first, second, other := runOnce(7), runOnce(7), runOnce(8)

	// THEN equal seeds give equal draws
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
}

func TestRuntime_CoroutineCannotBeAwaitedTwice(t *testing.T) {
	s, _, b := newTestSession(t, sim.DefaultConfig())
	nodes(t, s, map[string]string{"a": `
async def run(self):
    c = sleep(0)
    await self.timeout(c, 1)
    try:
        await c
    except RuntimeError as e:
        self.print(e)
`})

	_, err := s.Start()
	require.NoError(t, err)
	s.Advance(10 * time.Millisecond)

	assert.Equal(t, []string{"cannot reuse already awaited coroutine\n"}, b.Lines("a"))
}

func TestRuntime_GatherCollectsResults(t *testing.T) {
	s, _, b := newTestSession(t, sim.DefaultConfig())
	nodes(t, s, map[string]string{"a": `
import asyncio

async def later(v, d):
    await sleep(d)
    return v

async def run(self):
    results = await asyncio.gather(later('slow', 0.2), later('fast', 0.1))
    self.print(results)
`})

	_, err := s.Start()
	require.NoError(t, err)
	s.Advance(150 * time.Millisecond)
	s.Advance(100 * time.Millisecond)

	assert.Equal(t, []string{"['slow', 'fast']\n"}, b.Lines("a"))
}

func TestRuntime_ExternalTransportHandsMessagesToHost(t *testing.T) {
	// GIVEN a session in external-transport mode
	cfg := sim.NewConfig(0, "", sim.TransportConfig{ExternalTransport: true}, sim.ScriptConfig{})
	s, _, b := newTestSession(t, cfg)
	nodes(t, s, map[string]string{
		"a": "async def run(self):\n    await self.send('b', [1, 'two'])\n",
		"b": "async def run(self):\n    msg, sender = await self.receive()\n    self.print(msg.data, sender, msg.sent_timestamp)\n",
	}, [2]string{"a", "b"})
	_, err := s.Start()
	require.NoError(t, err)
	require.Len(t, b.handoff, 1)
	meta := b.handoff[0]
	assert.Equal(t, `[1,"two"]`, meta.PayloadJSON)
	assert.Empty(t, b.Lines("b"))

	// WHEN the host delivers the message back
	require.NoError(t, s.DeliverMessage(meta.SenderID, meta.ReceiverID, meta.Color, meta.Speed, 3.5, meta.PayloadJSON, meta.ClassName))

	// THEN b receives it with the host's timestamp
	assert.Equal(t, []string{"[1, 'two'] a 3.5\n"}, b.Lines("b"))
}
