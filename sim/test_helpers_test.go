package sim

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingBridge records console output, faults and transport hand-offs so
// tests can assert on what a session reported to its host.
type recordingBridge struct {
	*MemoryBridge

	mu       sync.Mutex
	output   map[string][]string
	faults   map[string][]string
	handoff  []TransportMeta
	consumed map[string]int
}

func newRecordingBridge() *recordingBridge {
	return &recordingBridge{
		MemoryBridge: NewMemoryBridge(),
		output:       make(map[string][]string),
		faults:       make(map[string][]string),
		consumed:     make(map[string]int),
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
}

func (b *recordingBridge) NotifyDelivered(id string, meta TransportMeta) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handoff = append(b.handoff, meta)
}

func (b *recordingBridge) DecrementBuffer(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumed[id]++
}

func (b *recordingBridge) Text(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.output[id], "")
}

func (b *recordingBridge) Faults(id string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.faults[id]...)
}

func (b *recordingBridge) Handoffs() []TransportMeta {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]TransportMeta(nil), b.handoff...)
}

// newTestSession creates a session with a recording bridge that is closed when
// the test ends, so no task goroutine leaks between tests.
func newTestSession(t *testing.T, cfg Config) (*Session, *recordingBridge) {
	t.Helper()
	b := newRecordingBridge()
	s := NewSession(cfg, b)
	t.Cleanup(s.Close)
	return s, b
}

// mustRegister registers ids with the default endpoint class.
func mustRegister(t *testing.T, s *Session, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.RegisterNode(id, ""))
	}
}

// newTestScheduler returns a scheduler whose remaining tasks are cancelled
// when the test ends.
func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := NewScheduler()
	t.Cleanup(func() {
		s.CancelAll()
		s.RunUntilIdle()
	})
	return s
}

// parkForever parks until the task is cancelled.
func parkForever(t *Task) (any, error) {
	for {
		if err := t.Park(); err != nil {
			return nil, err
		}
	}
}
