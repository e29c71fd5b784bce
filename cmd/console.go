package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/netsandbox/netsandbox/sim"
)

// ConsoleBridge is the terminal host of the run command. Node output is
// written line by line, prefixed with the node's display name rendered in the
// node's colour; uncaught behavior errors are printed with their trace.
type ConsoleBridge struct {
	*sim.MemoryBridge

	mu         sync.Mutex
	out        io.Writer
	nameStyle  lipgloss.Style
	faultStyle lipgloss.Style
	traceStyle lipgloss.Style
	faults     int
}

// NewConsoleBridge creates a bridge writing to out. Colours are only emitted
// when out is a terminal.
func NewConsoleBridge(out io.Writer) *ConsoleBridge {
	r := lipgloss.NewRenderer(out)
	return &ConsoleBridge{
		MemoryBridge: sim.NewMemoryBridge(),
		out:          out,
		nameStyle:    r.NewStyle().Bold(true),
		faultStyle:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#F38BA8")),
		traceStyle:   r.NewStyle().Foreground(lipgloss.Color("#6C7086")),
	}
}

func (b *ConsoleBridge) prefix(id string) string {
	style := b.nameStyle
	if c := b.NodeColor(id); c != "" {
		style = style.Foreground(lipgloss.Color(c))
	}
	return style.Render("[" + b.NodeName(id) + "]")
}

func (b *ConsoleBridge) Output(id, text string) {
	prefix := b.prefix(id)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		_, _ = fmt.Fprintf(b.out, "%s %s\n", prefix, line)
	}
}

func (b *ConsoleBridge) OutputException(id, fullTrace, shortSummary string) {
	prefix := b.prefix(id)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults++
	_, _ = fmt.Fprintf(b.out, "%s %s\n", prefix, b.faultStyle.Render(shortSummary))
	if fullTrace == "" {
		return
	}
	// Lines are rendered one by one: lipgloss pads multi-line blocks to equal width.
	for _, line := range strings.Split(strings.TrimSuffix(fullTrace, "\n"), "\n") {
		_, _ = fmt.Fprintln(b.out, b.traceStyle.Render(line))
	}
}

func (b *ConsoleBridge) NotifyDelivered(id string, meta sim.TransportMeta) {
	logrus.Debugf("[%s] %s -> %s %s %s", b.NodeName(id), meta.SenderID, meta.ReceiverID, meta.ClassName, meta.PayloadJSON)
}

// Faults returns how many uncaught behavior errors were printed.
func (b *ConsoleBridge) Faults() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.faults
}
