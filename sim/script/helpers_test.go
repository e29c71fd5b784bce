package script

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netsandbox/netsandbox/sim"
	"github.com/netsandbox/netsandbox/sim/script/syntax"
)

// recordingBridge keeps everything the session reports per node.
type recordingBridge struct {
	*sim.MemoryBridge

	mu      sync.Mutex
	output  map[string][]string
	faults  map[string][]string
	traces  map[string][]string
	handoff []sim.TransportMeta
}

func newRecordingBridge() *recordingBridge {
	return &recordingBridge{
		MemoryBridge: sim.NewMemoryBridge(),
		output:       make(map[string][]string),
		faults:       make(map[string][]string),
		traces:       make(map[string][]string),
	}
}

func (b *recordingBridge) Output(id, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.output[id] = append(b.output[id], text)
}

func (b *recordingBridge) OutputException(id, fullTrace, shortSummary string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[id] = append(b.faults[id], shortSummary)
	b.traces[id] = append(b.traces[id], fullTrace)
}

func (b *recordingBridge) NotifyDelivered(id string, meta sim.TransportMeta) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handoff = append(b.handoff, meta)
}

func (b *recordingBridge) Lines(id string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.output[id]...)
}

func (b *recordingBridge) Text(id string) string {
	return strings.Join(b.Lines(id), "")
}

func (b *recordingBridge) Faults(id string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.faults[id]...)
}

func newTestSession(t *testing.T, cfg sim.Config) (*sim.Session, *Runtime, *recordingBridge) {
	t.Helper()
	b := newRecordingBridge()
	s := sim.NewSession(cfg, b)
	rt := Attach(s)
	t.Cleanup(s.Close)
	return s, rt, b
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	_, rt, _ := newTestSession(t, sim.DefaultConfig())
	return rt
}

// run executes src as a module in a fresh scope chained to the globals.
func run(rt *Runtime, src string) (*Scope, error) {
	mod, err := syntax.Parse(src)
	if err != nil {
		return nil, err
	}
	sc := newModuleScope(rt.globals)
	return sc, rt.newThread(nil).execModule(mod, sc)
}

func mustRun(t *testing.T, rt *Runtime, src string) *Scope {
	t.Helper()
	sc, err := run(rt, src)
	require.NoError(t, err)
	return sc
}

// nodes registers ids, links consecutive pairs of links and binds behaviors.
func nodes(t *testing.T, s *sim.Session, behaviors map[string]string, links ...[2]string) {
	t.Helper()
	for _, id := range sortedStrings(behaviors) {
		require.NoError(t, s.RegisterNode(id, ""))
	}
	for _, l := range links {
		require.True(t, s.Connect(l[0], l[1]))
	}
	for _, id := range sortedStrings(behaviors) {
		if src := behaviors[id]; src != "" {
			require.NoError(t, s.BindBehavior(id, src))
		}
	}
}
