// Package check implements the static safety checker that vets submitted
// source before it may be bound. Each Kind selects a profile: a list of small
// independent rules run over the parsed syntax tree.
package check

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/netsandbox/netsandbox/sim/script/syntax"
)

// Kind names a checker profile.
type Kind string

const (
	// KindRun checks a behavior source defining an async run method.
	KindRun Kind = "run"
	// KindNode checks endpoint class definitions.
	KindNode Kind = "node"
	// KindMessage checks message class definitions.
	KindMessage Kind = "message"
)

// Severity is the outcome class of a check.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// SuccessComment is the comment of a passing check.
const SuccessComment = "All good"

// RecursionComment is reported when the source nests too deeply to parse.
const RecursionComment = "RecursionError because of SyntaxError"

// Result is the structured outcome of a check. OK is true only for success.
type Result struct {
	OK      bool     `json:"ok"`
	Comment string   `json:"comment"`
	Type    Severity `json:"type"`
}

// Diagnostic is one finding of a rule. Col is the 0-based UTF-8 byte offset
// within the line.
type Diagnostic struct {
	Line     int
	Col      int
	Severity Severity
	Message  string
}

func (d Diagnostic) String() string {
	if d.Line == 0 {
		return d.Message
	}
	return fmt.Sprintf("Line %d, Col %d: %s", d.Line, d.Col, d.Message)
}

// Rule inspects a parsed module and reports diagnostics.
type Rule interface {
	Name() string
	Check(mod *syntax.Module) []Diagnostic
}

// profiles maps each kind to its rules, structural rules first.
var profiles = map[Kind][]Rule{
	KindRun:     {runMethodRule{}, printRule{}},
	KindNode:    {printRule{}},
	KindMessage: {printRule{}},
}

// Kinds returns the supported check kinds.
func Kinds() []Kind {
	return []Kind{KindRun, KindNode, KindMessage}
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := profiles[k]; !ok {
		return "", fmt.Errorf("unknown check kind %q (want one of run, node, message)", s)
	}
	return k, nil
}

// Check parses source and runs the profile of kind over it. Failures are
// always returned as a Result, never as an error. A rule reporting an error
// stops the profile; warnings of one rule are reported together.
func Check(kind Kind, source string) Result {
	rules, ok := profiles[kind]
	if !ok {
		return Result{OK: false, Comment: fmt.Sprintf("unknown check kind %q", kind), Type: SeverityError}
	}
	mod, err := syntax.Parse(source)
	if err != nil {
		return parseFailure(err)
	}
	for _, rule := range rules {
		diags := rule.Check(mod)
		if len(diags) == 0 {
			continue
		}
		severity := SeverityWarning
		lines := make([]string, len(diags))
		for i, d := range diags {
			if d.Severity == SeverityError {
				severity = SeverityError
			}
			lines[i] = d.String()
		}
		logrus.Debugf("check %s: rule %s reported %d diagnostics", kind, rule.Name(), len(diags))
		return Result{OK: false, Comment: strings.Join(lines, "\n"), Type: severity}
	}
	return Result{OK: true, Comment: SuccessComment, Type: SeveritySuccess}
}

func parseFailure(err error) Result {
	if syntax.IsTooDeep(err) {
		return Result{OK: false, Comment: RecursionComment, Type: SeverityError}
	}
	var se *syntax.Error
	if errors.As(err, &se) {
		return Result{OK: false, Comment: se.Error(), Type: SeverityError}
	}
	return Result{OK: false, Comment: err.Error(), Type: SeverityError}
}
