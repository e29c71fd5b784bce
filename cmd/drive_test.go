package cmd

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsandbox/netsandbox/sim"
	"github.com/netsandbox/netsandbox/sim/script"
)

const tickerBehavior = `
async def run(self):
    while True:
        await sleep(0.05)
`

// syncBuffer is a bytes.Buffer safe for one writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// tickerSession returns a session with one node that never goes idle.
func tickerSession(t *testing.T) *sim.Session {
	t.Helper()
	s := sim.NewSession(sim.DefaultConfig(), sim.NewMemoryBridge())
	script.Attach(s)
	t.Cleanup(s.Close)
	require.NoError(t, s.RegisterNode("a", ""))
	require.NoError(t, s.BindBehavior("a", tickerBehavior))
	return s
}

func TestDrive_StopsAtHorizon(t *testing.T) {
	// GIVEN a node that sleeps in a loop
	s := tickerSession(t)

	// WHEN it is driven in 16ms frames up to 0.1s
	res, err := Drive(context.Background(), s, DriveOptions{Tick: 16 * time.Millisecond, Horizon: 0.1, StopWhenIdle: true})
	require.NoError(t, err)

	// THEN the first frame reaching the horizon ends the drive
	assert.Equal(t, StopHorizon, res.Reason)
	assert.Equal(t, 7, res.Frames)
	assert.InDelta(t, 0.112, res.SimTime, 1e-9)
	assert.Equal(t, 1, res.Started)
}

func TestDrive_Interrupted(t *testing.T) {
	tests := []struct {
		name     string
		realtime bool
	}{
		{name: "batch", realtime: false},
		{name: "realtime", realtime: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN a context that is already cancelled
			s := tickerSession(t)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			// WHEN the session is driven without a reachable horizon
			res, err := Drive(ctx, s, DriveOptions{Tick: time.Hour, Horizon: 1e9, Realtime: tt.realtime})

			// THEN it stops before the first frame
			require.NoError(t, err)
			assert.Equal(t, StopInterrupted, res.Reason)
			assert.Zero(t, res.Frames)
		})
	}
}

func TestDrive_RejectsNonPositiveTick(t *testing.T) {
	s := tickerSession(t)

	_, err := Drive(context.Background(), s, DriveOptions{Tick: 0, Horizon: 1})

	require.Error(t, err)
	assert.False(t, s.Running(), "a rejected drive must not start the session")
}

func TestDrive_RealtimeRebindsChangedBehavior(t *testing.T) {
	// GIVEN a realtime drive of the ping-pong scenario with a watcher
	sc, err := LoadScenario(pingPongScenario(t))
	require.NoError(t, err)
	out := &syncBuffer{}
	s, err := sc.Build(NewConsoleBridge(out))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	w, err := NewBehaviorWatcher(sc.BehaviorFiles())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan DriveResult, 1)
	go func() {
		res, _ := Drive(ctx, s, DriveOptions{Tick: 5 * time.Millisecond, Horizon: 1e9, Realtime: true, Watcher: w})
		done <- res
	}()
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "got ping") }, 5*time.Second, 10*time.Millisecond)

	// WHEN b's behavior file changes on disk
	require.NoError(t, os.WriteFile(sc.Resolve("b.py"), []byte("async def run(self):\n    self.print('v2')\n"), 0o644))

	// THEN the new behavior is hot-started while the drive keeps going
	assert.Eventually(t, func() bool { return strings.Contains(out.String(), "[Bravo] v2") }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case res := <-done:
		assert.Equal(t, StopInterrupted, res.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("drive did not stop")
	}
}
