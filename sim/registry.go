package sim

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// DefaultEndpointName is the endpoint class unrecognized class names fall back to.
const DefaultEndpointName = "Endpoint"

// MessageClass is a named message variant with its default presentation hints.
type MessageClass struct {
	Name  string
	Color string
	Speed float64
}

// BaseMessageClass is the fallback message class.
var BaseMessageClass = MessageClass{Name: BaseMessageName, Color: DefaultMessageColor, Speed: DefaultMessageSpeed}

// EndpointClass is a named endpoint variant. Behavior is the class's default
// run logic and may be nil, in which case the endpoint idles.
type EndpointClass struct {
	Name     string
	Behavior Behavior
}

// DefaultEndpointClass is the fallback endpoint class.
var DefaultEndpointClass = EndpointClass{Name: DefaultEndpointName}

// ClassRegistry maps class names to message and endpoint classes. It is filled
// when user sources are compiled; lookups of unknown names resolve to the
// documented defaults instead of failing.
type ClassRegistry struct {
	messages  map[string]MessageClass
	endpoints map[string]EndpointClass
}

// NewClassRegistry creates a registry holding only the default classes.
func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{
		messages:  map[string]MessageClass{BaseMessageName: BaseMessageClass},
		endpoints: map[string]EndpointClass{DefaultEndpointName: DefaultEndpointClass},
	}
}

// RegisterMessage adds or replaces a message class. Missing hints take the
// BaseMessage defaults.
func (r *ClassRegistry) RegisterMessage(c MessageClass) {
	if c.Color == "" {
		c.Color = DefaultMessageColor
	}
	if c.Speed <= 0 {
		c.Speed = DefaultMessageSpeed
	}
	r.messages[c.Name] = c
	logrus.Debugf("registered message class %s (color=%s speed=%g)", c.Name, c.Color, c.Speed)
}

// RegisterEndpoint adds or replaces an endpoint class.
func (r *ClassRegistry) RegisterEndpoint(c EndpointClass) {
	r.endpoints[c.Name] = c
	logrus.Debugf("registered endpoint class %s", c.Name)
}

// Message resolves name, falling back to BaseMessage.
func (r *ClassRegistry) Message(name string) MessageClass {
	if c, ok := r.messages[name]; ok {
		return c
	}
	return BaseMessageClass
}

// Endpoint resolves name, falling back to the default endpoint class.
func (r *ClassRegistry) Endpoint(name string) EndpointClass {
	if c, ok := r.endpoints[name]; ok {
		return c
	}
	return DefaultEndpointClass
}

// HasMessage reports whether name is a registered message class.
func (r *ClassRegistry) HasMessage(name string) bool {
	_, ok := r.messages[name]
	return ok
}

// MessageNames returns registered message class names, sorted.
func (r *ClassRegistry) MessageNames() []string {
	return sortedKeys(r.messages)
}

// EndpointNames returns registered endpoint class names, sorted.
func (r *ClassRegistry) EndpointNames() []string {
	return sortedKeys(r.endpoints)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
