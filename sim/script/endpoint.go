package script

import "github.com/netsandbox/netsandbox/sim"

var (
	baseMessageClass = newBuiltinClass(sim.BaseMessageName, objectClass)
	endpointClass    = newBuiltinClass(sim.DefaultEndpointName, objectClass)
	colorClass       = newBuiltinClass("Color", objectClass)
)

// palette is the set of named node colors scripts can pick from.
var palette = []struct{ name, hex string }{
	{"Black", "#000000"},
	{"White", "#FFFFFF"},
	{"LightGray", "#BACDD0"},
	{"LightBlue", "#7DBCE8"},
	{"LightCyan", "#7FE3E2"},
	{"LightGreen", "#91DD78"},
	{"LightYellow", "#F2E27F"},
	{"LightOrange", "#FDC48D"},
	{"LightRed", "#FC9C9C"},
	{"LightMagenta", "#F39CF3"},
	{"LightPurple", "#CAACF3"},
	{"LightBrown", "#D9B8A4"},
	{"Gray", "#7B8E95"},
	{"Blue", "#557DC4"},
	{"Cyan", "#2C99B2"},
	{"Green", "#22A56E"},
	{"Yellow", "#E3AC43"},
	{"Orange", "#DD7440"},
	{"Red", "#D35757"},
	{"Magenta", "#BA56D5"},
	{"Purple", "#9472E6"},
	{"Brown", "#B37C67"},
	{"DarkGray", "#485B68"},
	{"DarkBlue", "#3F4481"},
	{"DarkCyan", "#206480"},
	{"DarkGreen", "#166953"},
	{"DarkYellow", "#B26E28"},
	{"DarkOrange", "#9D4424"},
	{"DarkRed", "#922D37"},
	{"DarkMagenta", "#713075"},
	{"DarkPurple", "#6030A1"},
	{"DarkBrown", "#81524B"},
}

func init() {
	for _, c := range palette {
		colorClass.Attrs[c.name] = c.hex
	}

	m := baseMessageClass.Attrs
	m["color"] = sim.DefaultMessageColor
	m["speed"] = sim.DefaultMessageSpeed
	m["__init__"] = builtin("__init__", messageInit)

	e := endpointClass.Attrs
	e["__init__"] = builtin("__init__", func(th *thread, args []any, kw map[string]any) (any, error) { return nil, nil })
	e["send"] = asyncBuiltin("send", endpointSend)
	e["receive"] = asyncBuiltin("receive", endpointReceive)
	e["broadcast"] = asyncBuiltin("broadcast", endpointBroadcast)
	e["timeout"] = asyncBuiltin("timeout", endpointTimeout)
	e["parallel"] = builtin("parallel", endpointParallel)
	e["print"] = builtin("print", endpointPrint)
	e["get_neighbors"] = builtin("get_neighbors", endpointNeighbors)
	e["display_name"] = &Property{
		Get: func(th *thread, self *Instance) (any, error) {
			ep, err := attached(self)
			if err != nil {
				return nil, err
			}
			return ep.DisplayName(), nil
		},
		Set: func(th *thread, self *Instance, v any) error {
			ep, err := attached(self)
			if err != nil {
				return err
			}
			s, err := th.printer().str(v)
			if err != nil {
				return err
			}
			ep.SetDisplayName(s)
			return nil
		},
	}
	e["color"] = &Property{
		Get: func(th *thread, self *Instance) (any, error) {
			ep, err := attached(self)
			if err != nil {
				return nil, err
			}
			return ep.Color(), nil
		},
		Set: func(th *thread, self *Instance, v any) error {
			ep, err := attached(self)
			if err != nil {
				return err
			}
			s, ok := v.(string)
			if !ok {
				return newError(excTypeError, "color must be str, not %s", typeName(v))
			}
			ep.SetColor(s)
			return nil
		},
	}
	e["uuid"] = &Property{
		Get: func(th *thread, self *Instance) (any, error) {
			ep, err := attached(self)
			if err != nil {
				return nil, err
			}
			return ep.ID(), nil
		},
	}
}

// === messages ===

func messageInit(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("__init__", args, kw)
	if err := a.count(1, 2, "data"); err != nil {
		return nil, err
	}
	self, ok := args[0].(*Instance)
	if !ok {
		return nil, newError(excTypeError, "BaseMessage.__init__() needs an instance")
	}
	data := a.get(1, "data", unset)
	if data == unset {
		return nil, newError(excTypeError, "__init__() missing 1 required positional argument: 'data'")
	}
	color, _, _ := self.Class.lookup("color")
	speed, _, _ := self.Class.lookup("speed")
	self.Attrs["data"] = data
	self.Attrs["color"] = color
	self.Attrs["speed"] = speed
	self.Attrs["sender"] = nil
	self.Attrs["receiver"] = nil
	self.Attrs["sent_timestamp"] = nil
	return nil, nil
}

func isMessage(v any) (*Instance, bool) {
	inst, ok := v.(*Instance)
	if !ok || !inst.Class.IsSubclass(baseMessageClass) {
		return nil, false
	}
	return inst, true
}

// messageClassOf accepts a message class or a message instance, whose class
// is then used.
func messageClassOf(v any) (*Class, error) {
	switch x := v.(type) {
	case *Class:
		if x.IsSubclass(baseMessageClass) {
			return x, nil
		}
	case *Instance:
		if x.Class.IsSubclass(baseMessageClass) {
			return x.Class, nil
		}
	}
	return nil, newError(excTypeError, "message_class must be a BaseMessage subclass, not %s", typeName(v))
}

// scriptMessage is a message built by a script, ready for sim.Endpoint.Send.
type scriptMessage struct {
	payload any
	color   string
	speed   float64
}

func (m scriptMessage) MessagePayload() (any, error) { return m.payload, nil }
func (m scriptMessage) MessageColor() string         { return m.color }
func (m scriptMessage) MessageSpeed() float64        { return m.speed }

var _ sim.MessageLike = scriptMessage{}

// buildMessage instantiates cls around data, unless data already is a
// message, in which case its data, color and speed are reused.
func (th *thread) buildMessage(data any, cls *Class) (scriptMessage, error) {
	payload := data
	inst, prebuilt := isMessage(data)
	if prebuilt {
		v, err := th.getattr(inst, "data")
		if err != nil {
			return scriptMessage{}, err
		}
		payload = v
	} else {
		v, err := th.instantiate(cls, []any{data}, nil)
		if err != nil {
			return scriptMessage{}, err
		}
		var ok bool
		if inst, ok = v.(*Instance); !ok {
			return scriptMessage{}, newError(excTypeError, "%s() did not return a message", cls.Name)
		}
	}
	plain, err := toPlain(payload)
	if err != nil {
		return scriptMessage{}, err
	}
	m := scriptMessage{payload: plain, color: sim.DefaultMessageColor, speed: sim.DefaultMessageSpeed}
	if c, err := th.getattr(inst, "color"); err == nil {
		s, isStr := c.(string)
		if !isStr {
			return scriptMessage{}, newError(excTypeError, "message color must be str, not %s", typeName(c))
		}
		m.color = s
	}
	if sp, err := th.getattr(inst, "speed"); err == nil {
		f, isNum := toFloat(sp)
		if !isNum {
			return scriptMessage{}, newError(excTypeError, "message speed must be a number, not %s", typeName(sp))
		}
		m.speed = f
	}
	return m, nil
}

// messageFor rebuilds a delivered message as an instance of its declared
// class, or of BaseMessage when the class is unknown to the receiver.
func (th *thread) messageFor(msg *sim.Message, receiver *Instance) (*Instance, error) {
	cls := baseMessageClass
	if c, ok := th.rt.globals.vars[msg.ClassName].(*Class); ok && c.IsSubclass(baseMessageClass) {
		cls = c
	}
	v, err := th.instantiate(cls, []any{fromPlain(msg.Payload)}, nil)
	if err != nil {
		return nil, err
	}
	inst, ok := v.(*Instance)
	if !ok {
		return nil, newError(excTypeError, "%s() did not return a message", cls.Name)
	}
	var sender any = msg.SenderID
	if ep := th.rt.session.Endpoint(msg.SenderID); ep != nil {
		if s, err := th.rt.endpointInstance(th, ep); err == nil {
			sender = s
		}
	}
	inst.Attrs["sender"] = sender
	inst.Attrs["receiver"] = receiver
	inst.Attrs["color"] = msg.Color
	inst.Attrs["speed"] = msg.Speed
	inst.Attrs["sent_timestamp"] = msg.SentTimestamp
	return inst, nil
}

// === endpoints ===

// nativeEndpoint returns the simulated node behind an Endpoint instance, or nil.
func nativeEndpoint(inst *Instance) *sim.Endpoint {
	if inst == nil {
		return nil
	}
	ep, _ := inst.Native.(*sim.Endpoint)
	return ep
}

func attached(self *Instance) (*sim.Endpoint, error) {
	if ep := nativeEndpoint(self); ep != nil {
		return ep, nil
	}
	return nil, newError(excRuntimeError, "%s object is not attached to a node", self.Class.Name)
}

// receiver unpacks the self argument of an Endpoint method.
func receiver(name string, args []any) (*Instance, *sim.Endpoint, []any, error) {
	if len(args) == 0 {
		return nil, nil, nil, newError(excTypeError, "%s() missing 'self'", name)
	}
	self, ok := args[0].(*Instance)
	if !ok || !self.Class.IsSubclass(endpointClass) {
		return nil, nil, nil, newError(excTypeError, "%s() requires an Endpoint, not %s", name, typeName(args[0]))
	}
	ep, err := attached(self)
	if err != nil {
		return nil, nil, nil, err
	}
	return self, ep, args[1:], nil
}

// endpointInstance returns the script object of ep, creating it on first use
// from the endpoint class registered under ep's class name. The object lives
// in the endpoint's state slot so that it survives rebinding.
func (rt *Runtime) endpointInstance(th *thread, ep *sim.Endpoint) (*Instance, error) {
	if inst, ok := ep.State().(*Instance); ok {
		return inst, nil
	}
	cls := endpointClass
	if c, ok := rt.globals.vars[ep.ClassName()].(*Class); ok && c.IsSubclass(endpointClass) {
		cls = c
	}
	inst := newInstance(cls)
	inst.Native = ep
	ep.SetState(inst)
	if init, owner, ok := cls.lookup("__init__"); ok && owner != endpointClass {
		res, err := th.call(&BoundMethod{Self: inst, Fn: init}, nil, nil)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return nil, newError(excTypeError, "__init__() should return None, not '%s'", typeName(res))
		}
	}
	return inst, nil
}

func endpointSend(th *thread, args []any, kw map[string]any) (any, error) {
	_, ep, rest, err := receiver("send", args)
	if err != nil {
		return nil, err
	}
	a := parseArgs("send", rest, kw)
	if err := a.count(0, 3, "neighbor_uuid", "data", "message_class"); err != nil {
		return nil, err
	}
	to, err := a.str(0, "neighbor_uuid", "")
	if err != nil {
		return nil, err
	}
	data := a.get(1, "data", unset)
	if data == unset {
		return nil, newError(excTypeError, "send() missing 1 required positional argument: 'data'")
	}
	cls, err := messageClassOf(a.get(2, "message_class", baseMessageClass))
	if err != nil {
		return nil, err
	}
	if !ep.IsNeighbor(to) {
		return nil, newError(excConnectionError, "No connected node '%s'", to)
	}
	msg, err := th.buildMessage(data, cls)
	if err != nil {
		return nil, err
	}
	return nil, ep.Send(to, msg, cls.Name)
}

func endpointReceive(th *thread, args []any, kw map[string]any) (any, error) {
	self, ep, rest, err := receiver("receive", args)
	if err != nil {
		return nil, err
	}
	a := parseArgs("receive", rest, kw)
	if err := a.count(0, 1, "timeout"); err != nil {
		return nil, err
	}
	timeout, err := a.float(0, "timeout", -1)
	if err != nil {
		return nil, err
	}
	msg, sender, err := ep.Receive(th.task, timeout)
	if err != nil {
		return nil, err
	}
	inst, err := th.messageFor(msg, self)
	if err != nil {
		return nil, err
	}
	return Tuple{inst, sender}, nil
}

func endpointBroadcast(th *thread, args []any, kw map[string]any) (any, error) {
	_, ep, rest, err := receiver("broadcast", args)
	if err != nil {
		return nil, err
	}
	a := parseArgs("broadcast", rest, kw)
	if err := a.count(1, 3, "data", "exclude", "message_class"); err != nil {
		return nil, err
	}
	data := a.get(0, "data", nil)
	cls, err := messageClassOf(a.get(2, "message_class", baseMessageClass))
	if err != nil {
		return nil, err
	}
	var exclude []string
	switch x := a.get(1, "exclude", nil).(type) {
	case nil:
	case *Class:
		if cls, err = messageClassOf(x); err != nil {
			return nil, err
		}
	case *Instance:
		if m, ok := isMessage(x); ok {
			cls = m.Class
			break
		}
		if exclude, err = excludedIDs(th, Tuple{x}); err != nil {
			return nil, err
		}
	default:
		if exclude, err = excludedIDs(th, x); err != nil {
			return nil, err
		}
	}
	msg, err := th.buildMessage(data, cls)
	if err != nil {
		return nil, err
	}
	return nil, ep.Broadcast(th.task, msg, sim.BroadcastOptions{Exclude: exclude, Class: cls.Name})
}

// excludedIDs turns a collection of node ids or Endpoint objects into ids.
func excludedIDs(th *thread, v any) ([]string, error) {
	items, err := th.collect(v)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, item := range items {
		switch x := item.(type) {
		case string:
			ids = append(ids, x)
		case *Instance:
			if ep := nativeEndpoint(x); ep != nil {
				ids = append(ids, ep.ID())
			}
		}
	}
	return ids, nil
}

func endpointTimeout(th *thread, args []any, kw map[string]any) (any, error) {
	_, ep, rest, err := receiver("timeout", args)
	if err != nil {
		return nil, err
	}
	a := parseArgs("timeout", rest, kw)
	if err := a.count(2, 2, "thing", "timeout"); err != nil {
		return nil, err
	}
	op, err := th.rt.operation(a.get(0, "thing", nil))
	if err != nil {
		return nil, err
	}
	d, err := a.float(1, "timeout", 0)
	if err != nil {
		return nil, err
	}
	return ep.Timeout(th.task, op, d)
}

func endpointParallel(th *thread, args []any, kw map[string]any) (any, error) {
	_, ep, rest, err := receiver("parallel", args)
	if err != nil {
		return nil, err
	}
	if err := parseArgs("parallel", rest, kw).count(1, 1); err != nil {
		return nil, err
	}
	op, err := th.rt.operation(rest[0])
	if err != nil {
		return nil, err
	}
	if _, err := ep.Parallel(op); err != nil {
		return nil, err
	}
	return nil, nil
}

func endpointPrint(th *thread, args []any, kw map[string]any) (any, error) {
	_, ep, rest, err := receiver("print", args)
	if err != nil {
		return nil, err
	}
	text, err := joinArgs(th, "print", rest, kw)
	if err != nil {
		return nil, err
	}
	ep.Print(text)
	return nil, nil
}

func endpointNeighbors(th *thread, args []any, kw map[string]any) (any, error) {
	_, ep, rest, err := receiver("get_neighbors", args)
	if err != nil {
		return nil, err
	}
	if err := parseArgs("get_neighbors", rest, kw).count(0, 0); err != nil {
		return nil, err
	}
	ids := ep.Neighbors()
	items := make([]any, len(ids))
	for i, id := range ids {
		items[i] = id
	}
	return &List{Items: items}, nil
}

// operation resolves the argument of parallel, timeout and gather: a
// coroutine or an async callable taking no arguments.
func (rt *Runtime) operation(v any) (sim.TaskFunc, error) {
	if co, ok := v.(*Coroutine); ok {
		return co.Await, nil
	}
	if isAsyncCallable(v) {
		return sim.ResolveOperation(asyncFactory{rt: rt, fn: v})
	}
	return nil, newError(excRuntimeError, "%s is neither awaitable nor coroutine function", repr(v))
}
