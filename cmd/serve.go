package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/netsandbox/netsandbox/sim"
	"github.com/netsandbox/netsandbox/sim/script"
	"github.com/netsandbox/netsandbox/sim/trace"
)

var (
	// CLI flags of the serve command
	serveAddr       string // Listen address
	serveSeed       int64  // Seed of every session
	serveTraceLevel string // Trace verbosity of every session
	serveMaxSteps   int64  // Interpreter step budget between suspensions
)

// serveRequest is one control operation sent by a host. Fields not used by
// the operation are ignored.
type serveRequest struct {
	ID      int64              `json:"id"`
	Op      string             `json:"op"`
	Node    string             `json:"node,omitempty"`
	Class   string             `json:"class,omitempty"`
	Name    string             `json:"name,omitempty"`
	A       string             `json:"a,omitempty"`
	B       string             `json:"b,omitempty"`
	Kind    string             `json:"kind,omitempty"`
	Source  string             `json:"source,omitempty"`
	Value   string             `json:"value,omitempty"`
	Flag    bool               `json:"flag,omitempty"`
	Ms      float64            `json:"ms,omitempty"`
	Message *sim.TransportMeta `json:"message,omitempty"`
}

// serveResponse answers the request with the same id.
type serveResponse struct {
	ID     int64  `json:"id"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

// serveEvent is pushed to the host whenever the core calls the bridge.
type serveEvent struct {
	Event   string             `json:"event"`
	Session string             `json:"session,omitempty"`
	Node    string             `json:"node,omitempty"`
	Text    string             `json:"text,omitempty"`
	Trace   string             `json:"trace,omitempty"`
	Summary string             `json:"summary,omitempty"`
	Message *sim.TransportMeta `json:"message,omitempty"`
}

// wsBridge forwards every bridge call to the connected host as an event.
type wsBridge struct {
	*sim.MemoryBridge
	emit func(serveEvent)
}

func (b *wsBridge) SetNodeName(id, name string) {
	b.MemoryBridge.SetNodeName(id, name)
	b.emit(serveEvent{Event: "name", Node: id, Text: name})
}

func (b *wsBridge) SetNodeColor(id, color string) {
	b.MemoryBridge.SetNodeColor(id, color)
	b.emit(serveEvent{Event: "color", Node: id, Text: color})
}

func (b *wsBridge) Output(id, text string) {
	b.emit(serveEvent{Event: "output", Node: id, Text: text})
}

func (b *wsBridge) OutputException(id, fullTrace, shortSummary string) {
	b.emit(serveEvent{Event: "exception", Node: id, Trace: fullTrace, Summary: shortSummary})
}

func (b *wsBridge) NotifyDelivered(id string, meta sim.TransportMeta) {
	b.emit(serveEvent{Event: "transport", Node: id, Message: &meta})
}

func (b *wsBridge) DecrementBuffer(id string) {
	b.emit(serveEvent{Event: "buffer", Node: id})
}

// wsSession is one sandbox session owned by one websocket connection. Only the
// writer goroutine writes to the connection.
type wsSession struct {
	id      string
	conn    *websocket.Conn
	session *sim.Session
	bridge  *wsBridge
	out     chan []byte
	done    chan struct{}

	stopOnce sync.Once
}

func newWSSession(conn *websocket.Conn, cfg sim.Config) *wsSession {
	ws := &wsSession{
		id:   uuid.NewString(),
		conn: conn,
		out:  make(chan []byte, 256),
		done: make(chan struct{}),
	}
	ws.bridge = &wsBridge{MemoryBridge: sim.NewMemoryBridge(), emit: ws.emit}
	ws.session = sim.NewSession(cfg, ws.bridge)
	script.Attach(ws.session)
	return ws
}

func (ws *wsSession) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logrus.Errorf("session %s: failed to marshal %T: %v", ws.id, v, err)
		return
	}
	select {
	case ws.out <- data:
	case <-ws.done:
	}
}

func (ws *wsSession) emit(ev serveEvent) {
	ws.send(ev)
}

func (ws *wsSession) writeLoop() {
	defer ws.stop()
	for {
		select {
		case data := <-ws.out:
			if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logrus.Warnf("session %s: write failed: %v", ws.id, err)
				return
			}
		case <-ws.done:
			return
		}
	}
}

// readLoop handles requests in arrival order until the connection closes.
func (ws *wsSession) readLoop() {
	for {
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.Warnf("session %s: websocket error: %v", ws.id, err)
			}
			return
		}
		var req serveRequest
		if err := json.Unmarshal(data, &req); err != nil {
			ws.send(serveResponse{OK: false, Error: fmt.Sprintf("malformed request: %v", err)})
			continue
		}
		result, err := ws.handle(req)
		resp := serveResponse{ID: req.ID, OK: err == nil, Result: result}
		if err != nil {
			resp.Error = err.Error()
			logrus.Debugf("session %s: %s failed: %v", ws.id, req.Op, err)
		}
		ws.send(resp)
	}
}

// stop releases senders and closes the connection, which also ends readLoop.
func (ws *wsSession) stop() {
	ws.stopOnce.Do(func() {
		close(ws.done)
		_ = ws.conn.Close()
	})
}

func (ws *wsSession) close() {
	ws.stop()
	ws.session.Close()
}

// handle applies one control operation to the session.
func (ws *wsSession) handle(req serveRequest) (any, error) {
	s := ws.session
	switch req.Op {
	case "register_node":
		return nil, s.RegisterNode(req.Node, req.Class)
	case "remove_node":
		return s.RemoveNode(req.Node), nil
	case "connect":
		return s.Connect(req.A, req.B), nil
	case "disconnect":
		return s.Disconnect(req.A, req.B), nil
	case "rename_node":
		s.RenameNode(req.Node, req.Name)
		return nil, nil
	case "set_color":
		ws.bridge.SetNodeColor(req.Node, req.Value)
		return nil, nil
	case "suppress_hotstart":
		return nil, s.SuppressHotstart(req.Node, req.Flag)
	case "trigger_hotstart":
		return nil, s.TriggerHotstart(req.Node)
	case "check_code":
		return s.CheckCode(req.Kind, req.Source), nil
	case "compile_source":
		return nil, s.CompileSource(req.Kind, req.Source)
	case "bind_behavior":
		return nil, s.BindBehavior(req.Node, req.Source)
	case "start":
		return s.Start()
	case "reset":
		s.Reset()
		return nil, nil
	case "advance":
		if req.Ms < 0 {
			return nil, fmt.Errorf("%w: negative advance %gms", sim.ErrInvalidArgument, req.Ms)
		}
		return s.Advance(time.Duration(req.Ms * float64(time.Millisecond))), nil
	case "deliver_message":
		m := req.Message
		if m == nil {
			return nil, fmt.Errorf("%w: deliver_message needs a message", sim.ErrInvalidArgument)
		}
		return nil, s.DeliverMessage(m.SenderID, m.ReceiverID, m.Color, m.Speed, m.SentTimestamp, m.PayloadJSON, m.ClassName)
	case "now":
		return s.SimTime(), nil
	case "nodes":
		return s.NodeIDs(), nil
	default:
		return nil, fmt.Errorf("unknown op %q", req.Op)
	}
}

// sessionHub upgrades connections and keeps one session per connection.
type sessionHub struct {
	upgrader websocket.Upgrader
	cfg      sim.Config

	mu       sync.Mutex
	sessions map[string]*wsSession
}

func newSessionHub(cfg sim.Config) *sessionHub {
	return &sessionHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		cfg:      cfg,
		sessions: make(map[string]*wsSession),
	}
}

func (h *sessionHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	ws := newWSSession(conn, h.cfg)
	h.mu.Lock()
	h.sessions[ws.id] = ws
	n := len(h.sessions)
	h.mu.Unlock()
	logrus.Infof("session %s opened from %s (%d active)", ws.id, r.RemoteAddr, n)

	go ws.writeLoop()
	ws.send(serveEvent{Event: "hello", Session: ws.id})
	go func() {
		defer h.remove(ws)
		ws.readLoop()
	}()
}

func (h *sessionHub) remove(ws *wsSession) {
	h.mu.Lock()
	_, ok := h.sessions[ws.id]
	delete(h.sessions, ws.id)
	h.mu.Unlock()
	if ok {
		ws.close()
		logrus.Infof("session %s closed", ws.id)
	}
}

// Len returns the number of open sessions.
func (h *sessionHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// CloseAll closes every open session.
func (h *sessionHub) CloseAll() {
	h.mu.Lock()
	all := make([]*wsSession, 0, len(h.sessions))
	for _, ws := range h.sessions {
		all = append(all, ws)
	}
	h.mu.Unlock()
	for _, ws := range all {
		h.remove(ws)
	}
}

func newServeMux(hub *sessionHub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	return mux
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve sandbox sessions to websocket hosts",
	Run: func(cmd *cobra.Command, args []string) {
		if !trace.IsValidTraceLevel(serveTraceLevel) {
			logrus.Fatalf("Invalid trace level: %s", serveTraceLevel)
		}
		cfg := sim.NewConfig(serveSeed, serveTraceLevel,
			sim.TransportConfig{ExternalTransport: true},
			sim.ScriptConfig{MaxStepsWithoutYield: serveMaxSteps})
		hub := newSessionHub(cfg)
		srv := &http.Server{Addr: serveAddr, Handler: newServeMux(hub)}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		logrus.Warnf("serving sessions on ws://%s/ws", serveAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Server failed: %v", err)
		}
		hub.CloseAll()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "Listen address")
	serveCmd.Flags().Int64Var(&serveSeed, "seed", 0, "Seed for the per-node random streams of every session")
	serveCmd.Flags().StringVar(&serveTraceLevel, "trace-level", "none", "Trace verbosity: none, deliveries")
	serveCmd.Flags().Int64Var(&serveMaxSteps, "max-steps", sim.DefaultMaxStepsWithoutYield, "Interpreter steps a behavior may take without yielding")
	rootCmd.AddCommand(serveCmd)
}
