package sim

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// HostBridge is the boundary to the presentation host (a UI, a terminal, a test).
// The core calls it; it never calls back into the core synchronously.
type HostBridge interface {
	NodeName(id string) string
	SetNodeName(id, name string)
	NodeColor(id string) string
	SetNodeColor(id, color string)

	// Output is console-style text attributed to a node.
	Output(id, text string)
	// OutputException reports an uncaught behavior error.
	OutputException(id, fullTrace, shortSummary string)
	// NotifyDelivered signals that a message left the core for transport.
	NotifyDelivered(id string, meta TransportMeta)
	// DecrementBuffer signals that Receive consumed one buffered message.
	DecrementBuffer(id string)
}

// MemoryBridge keeps names and colors in memory and logs output through
// logrus. It is the default bridge for headless sessions.
type MemoryBridge struct {
	mu     sync.Mutex
	names  map[string]string
	colors map[string]string
}

// NewMemoryBridge creates an empty MemoryBridge.
func NewMemoryBridge() *MemoryBridge {
	return &MemoryBridge{names: make(map[string]string), colors: make(map[string]string)}
}

func (b *MemoryBridge) NodeName(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if name, ok := b.names[id]; ok {
		return name
	}
	return id
}

func (b *MemoryBridge) SetNodeName(id, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.names[id] = name
}

func (b *MemoryBridge) NodeColor(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.colors[id]
}

func (b *MemoryBridge) SetNodeColor(id, color string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.colors[id] = color
}

func (b *MemoryBridge) Output(id, text string) {
	logrus.WithField("node", id).Info(text)
}

func (b *MemoryBridge) OutputException(id, fullTrace, shortSummary string) {
	logrus.WithField("node", id).Errorf("%s\n%s", shortSummary, fullTrace)
}

func (b *MemoryBridge) NotifyDelivered(id string, meta TransportMeta) {
	logrus.WithField("node", id).Debugf("message %s -> %s (%s)", meta.SenderID, meta.ReceiverID, meta.ClassName)
}

func (b *MemoryBridge) DecrementBuffer(id string) {}
