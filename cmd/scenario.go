package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/sirupsen/logrus"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"github.com/netsandbox/netsandbox/sim"
	"github.com/netsandbox/netsandbox/sim/script"
)

// Scenario defaults applied when a field is left at its zero value.
const (
	DefaultTickMs   = 16
	DefaultHorizonS = 60.0
)

// Scenario is a sandbox set-up loaded from a YAML or HCL file: class sources,
// nodes with their behaviors, and links. Relative source paths resolve
// against the directory of the scenario file.
// All YAML keys must be listed to satisfy KnownFields(true) strict parsing.
type Scenario struct {
	Version              string     `yaml:"version" hcl:"version,optional"`
	Seed                 int64      `yaml:"seed" hcl:"seed,optional"`
	TickMs               int        `yaml:"tick_ms" hcl:"tick_ms,optional"`
	HorizonS             float64    `yaml:"horizon_s" hcl:"horizon_s,optional"`
	ExternalTransport    bool       `yaml:"external_transport" hcl:"external_transport,optional"`
	MaxStepsWithoutYield int64      `yaml:"max_steps_without_yield" hcl:"max_steps_without_yield,optional"`
	TraceLevel           string     `yaml:"trace_level" hcl:"trace_level,optional"`
	MessageSources       []string   `yaml:"message_sources" hcl:"message_sources,optional"`
	NodeSources          []string   `yaml:"node_sources" hcl:"node_sources,optional"`
	Nodes                []NodeSpec `yaml:"nodes" hcl:"node,block"`
	Links                []LinkSpec `yaml:"links" hcl:"link,block"`

	dir string
}

// NodeSpec declares one endpoint. Behavior is the path of a run source.
type NodeSpec struct {
	ID               string `yaml:"id" hcl:"id,label"`
	Name             string `yaml:"name" hcl:"name,optional"`
	Class            string `yaml:"class" hcl:"class,optional"`
	Color            string `yaml:"color" hcl:"color,optional"`
	Behavior         string `yaml:"behavior" hcl:"behavior,optional"`
	SuppressHotstart bool   `yaml:"suppress_hotstart" hcl:"suppress_hotstart,optional"`
}

// LinkSpec declares an undirected link between two nodes.
type LinkSpec struct {
	A string `yaml:"a" hcl:"a"`
	B string `yaml:"b" hcl:"b"`
}

// LoadScenario reads a scenario file. Files ending in .hcl are decoded as
// HCL, everything else as YAML.
func LoadScenario(path string) (*Scenario, error) {
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	var sc *Scenario
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		sc, err = decodeScenarioHCL(path, dir)
	} else {
		sc, err = decodeScenarioYAML(path)
	}
	if err != nil {
		return nil, err
	}
	sc.dir = dir
	sc.applyDefaults()
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	logrus.Debugf("loaded scenario %s: %d nodes, %d links", path, len(sc.Nodes), len(sc.Links))
	return sc, nil
}

func decodeScenarioYAML(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	// Strict field checking: typos must cause errors.
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML %s: %w", path, err)
	}
	return &sc, nil
}

// decodeScenarioHCL decodes an HCL scenario. Expressions may refer to
// scenario_dir, the absolute directory of the file.
func decodeScenarioHCL(path, dir string) (*Scenario, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"scenario_dir": cty.StringVal(dir),
		},
	}
	var sc Scenario
	diags = gohcl.DecodeBody(file.Body, ctx, &sc)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	return &sc, nil
}

func (sc *Scenario) applyDefaults() {
	if sc.Version == "" {
		sc.Version = "1"
	}
	if sc.TickMs == 0 {
		sc.TickMs = DefaultTickMs
	}
	if sc.HorizonS == 0 {
		sc.HorizonS = DefaultHorizonS
	}
	if sc.TraceLevel == "" {
		sc.TraceLevel = "deliveries"
	}
}

// Validate checks the scenario for structural mistakes.
func (sc *Scenario) Validate() error {
	if sc.Version != "1" {
		return fmt.Errorf("unsupported version %q", sc.Version)
	}
	if sc.TickMs <= 0 {
		return fmt.Errorf("tick_ms must be positive, got %d", sc.TickMs)
	}
	if sc.HorizonS < 0 {
		return fmt.Errorf("horizon_s must not be negative, got %g", sc.HorizonS)
	}
	if sc.MaxStepsWithoutYield < 0 {
		return fmt.Errorf("max_steps_without_yield must not be negative, got %d", sc.MaxStepsWithoutYield)
	}
	switch sc.TraceLevel {
	case "none", "deliveries":
	default:
		return fmt.Errorf("unknown trace_level %q (want none or deliveries)", sc.TraceLevel)
	}
	seen := make(map[string]bool, len(sc.Nodes))
	for i, n := range sc.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node %d has no id", i)
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
	}
	for _, l := range sc.Links {
		for _, id := range []string{l.A, l.B} {
			if !seen[id] {
				return fmt.Errorf("link %s-%s references unknown node %q", l.A, l.B, id)
			}
		}
		if l.A == l.B {
			return fmt.Errorf("link %s-%s connects a node to itself", l.A, l.B)
		}
	}
	return nil
}

// Tick returns the frame delta the driver advances the clock by.
func (sc *Scenario) Tick() time.Duration {
	return time.Duration(sc.TickMs) * time.Millisecond
}

// Config returns the session configuration of the scenario.
func (sc *Scenario) Config() sim.Config {
	return sim.NewConfig(sc.Seed, sc.TraceLevel,
		sim.TransportConfig{ExternalTransport: sc.ExternalTransport},
		sim.ScriptConfig{MaxStepsWithoutYield: sc.MaxStepsWithoutYield})
}

// Resolve returns path relative to the scenario directory unless it is absolute.
func (sc *Scenario) Resolve(path string) string {
	if filepath.IsAbs(path) || sc.dir == "" {
		return path
	}
	return filepath.Join(sc.dir, path)
}

// BehaviorFiles maps every resolved behavior path to the ids of the nodes
// running it, ids in scenario order.
func (sc *Scenario) BehaviorFiles() map[string][]string {
	files := make(map[string][]string)
	for _, n := range sc.Nodes {
		if n.Behavior != "" {
			p := sc.Resolve(n.Behavior)
			files[p] = append(files[p], n.ID)
		}
	}
	return files
}

// Build creates a session wired to bridge and sets it up: class sources are
// compiled, nodes registered, named, coloured and linked, and behaviors bound.
// The session is returned stopped.
func (sc *Scenario) Build(bridge sim.HostBridge) (*sim.Session, error) {
	s := sim.NewSession(sc.Config(), bridge)
	script.Attach(s)
	if err := sc.apply(s, bridge); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (sc *Scenario) apply(s *sim.Session, bridge sim.HostBridge) error {
	for _, src := range []struct {
		kind  string
		paths []string
	}{{"message", sc.MessageSources}, {"node", sc.NodeSources}} {
		for _, p := range src.paths {
			code, err := os.ReadFile(sc.Resolve(p))
			if err != nil {
				return fmt.Errorf("failed to read %s source: %w", src.kind, err)
			}
			if err := s.CompileSource(src.kind, string(code)); err != nil {
				return fmt.Errorf("%s source %s: %w", src.kind, p, err)
			}
		}
	}
	for _, n := range sc.Nodes {
		if err := s.RegisterNode(n.ID, n.Class); err != nil {
			return err
		}
		if n.Name != "" {
			s.RenameNode(n.ID, n.Name)
		}
		if n.Color != "" {
			bridge.SetNodeColor(n.ID, n.Color)
		}
		if n.SuppressHotstart {
			if err := s.SuppressHotstart(n.ID, true); err != nil {
				return err
			}
		}
	}
	for _, l := range sc.Links {
		s.Connect(l.A, l.B)
	}
	files := sc.BehaviorFiles()
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		code, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read behavior: %w", err)
		}
		for _, id := range files[p] {
			if err := s.BindBehavior(id, string(code)); err != nil {
				return fmt.Errorf("node %s: behavior %s: %w", id, p, err)
			}
		}
	}
	return nil
}
