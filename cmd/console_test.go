package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleBridge_PrefixesEveryLine(t *testing.T) {
	// GIVEN a console bridge with a named node
	var out bytes.Buffer
	b := NewConsoleBridge(&out)
	b.SetNodeName("n1", "Router")

	// WHEN multi-line output arrives for it and for an unnamed node
	b.Output("n1", "first\nsecond\n")
	b.Output("n2", "hello\n")

	// THEN each line carries the display name, falling back to the id
	assert.Equal(t, "[Router] first\n[Router] second\n[n2] hello\n", out.String())
}

func TestConsoleBridge_OutputException(t *testing.T) {
	var out bytes.Buffer
	b := NewConsoleBridge(&out)

	b.OutputException("n1", "Traceback (most recent call last):\n  line 3, in run\nValueError: boom\n", "ValueError: boom")
	b.OutputException("n1", "", "KeyError: 'x'")

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"[n1] ValueError: boom",
		"Traceback (most recent call last):",
		"  line 3, in run",
		"ValueError: boom",
		"[n1] KeyError: 'x'",
	}, lines)
	assert.Equal(t, 2, b.Faults())
}
