// Package sim provides the discrete-event network sandbox engine.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - scheduler.go: cooperative tasks, one running at a time, suspended only at Park
//   - clock.go: the VirtualClock and its timer queue, advanced by an external driver
//   - session.go: the node registry, supervision of endpoint tasks and the control surface
//
// Endpoint primitives (send, receive, broadcast, timeout, parallel) live in
// endpoint.go; message movement in router.go; the generic first-of-N and
// gather combinators in select.go.
//
// # Architecture
//
// The sim package defines the runtime and its boundary types; the rest lives
// in sub-packages:
//   - sim/script/syntax/: lexer, parser and syntax tree of the behavior language
//   - sim/check/: safety checker profiles run over submitted source
//   - sim/script/: interpreter; its Runtime implements Compiler
//   - sim/trace/: delivery and fault trace recording
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - HostBridge: names, colors, console output and transport notifications on the host side
//   - Behavior: run logic bound to an endpoint
//   - Compiler: turns submitted source into behaviors and registered classes
//   - Awaitable / AsyncFactory: operands accepted by Timeout and Parallel
package sim
