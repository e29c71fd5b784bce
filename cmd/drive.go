package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netsandbox/netsandbox/sim"
	"github.com/netsandbox/netsandbox/sim/trace"
)

// Stop reasons reported by Drive.
const (
	StopHorizon     = "horizon"
	StopIdle        = "idle"
	StopInterrupted = "interrupted"
)

// DriveOptions controls how Drive advances a session.
type DriveOptions struct {
	Tick         time.Duration // frame delta
	Horizon      float64       // virtual seconds after which driving stops
	StopWhenIdle bool          // stop once no timer is pending
	Realtime     bool          // pace frames on the wall clock
	Watcher      *BehaviorWatcher
}

// DriveResult describes a finished drive.
type DriveResult struct {
	Started int
	Frames  int
	SimTime float64
	Reason  string
}

// Drive starts s and advances its clock one frame at a time until the horizon
// is reached, the session goes idle or ctx is cancelled. In realtime mode
// frames follow a wall-clock ticker and changed behavior files are rebound
// between frames.
func Drive(ctx context.Context, s *sim.Session, opts DriveOptions) (DriveResult, error) {
	if opts.Tick <= 0 {
		return DriveResult{}, fmt.Errorf("tick must be positive, got %v", opts.Tick)
	}
	started, err := s.Start()
	if err != nil {
		return DriveResult{}, err
	}
	res := DriveResult{Started: started}
	logrus.Infof("driving %d nodes with tick=%v horizon=%gs", started, opts.Tick, opts.Horizon)

	var frames <-chan time.Time
	if opts.Realtime {
		ticker := time.NewTicker(opts.Tick)
		defer ticker.Stop()
		frames = ticker.C
	}
	var changes <-chan string
	if opts.Watcher != nil {
		changes = opts.Watcher.Changes()
	}

loop:
	for {
		switch {
		case s.SimTime() >= opts.Horizon:
			res.Reason = StopHorizon
			break loop
		case opts.StopWhenIdle && s.PendingTimers() == 0:
			res.Reason = StopIdle
			break loop
		}
		if frames == nil {
			if ctx.Err() != nil {
				res.Reason = StopInterrupted
				break loop
			}
			s.Advance(opts.Tick)
			res.Frames++
			continue
		}
		select {
		case <-ctx.Done():
			res.Reason = StopInterrupted
			break loop
		case path := <-changes:
			if err := opts.Watcher.Rebind(s, path); err != nil {
				logrus.Errorf("rebind of %s failed: %v", path, err)
			}
		case <-frames:
			s.Advance(opts.Tick)
			res.Frames++
		}
	}
	res.SimTime = s.SimTime()
	logrus.Infof("stopped at t=%.3f after %d frames (%s)", res.SimTime, res.Frames, res.Reason)
	return res, nil
}

// PrintSummary writes the end-of-run report.
func PrintSummary(w io.Writer, res DriveResult, sum *trace.TraceSummary) {
	_, _ = fmt.Fprintln(w, "=== Simulation Summary ===")
	_, _ = fmt.Fprintf(w, "Stop Reason          : %s\n", res.Reason)
	_, _ = fmt.Fprintf(w, "Simulated Time       : %.3f s\n", res.SimTime)
	_, _ = fmt.Fprintf(w, "Frames               : %d\n", res.Frames)
	_, _ = fmt.Fprintf(w, "Nodes Started        : %d\n", res.Started)
	_, _ = fmt.Fprintf(w, "Messages Routed      : %d\n", sum.Routed)
	_, _ = fmt.Fprintf(w, "Messages Delivered   : %d\n", sum.Delivered)
	_, _ = fmt.Fprintf(w, "Messages Dropped     : %d\n", sum.Dropped)
	_, _ = fmt.Fprintf(w, "Behavior Faults      : %d\n", sum.Faults)
	if sum.Delivered > 0 {
		_, _ = fmt.Fprintf(w, "Unique Receivers     : %d\n", sum.UniqueReceivers)
		_, _ = fmt.Fprintf(w, "Deliveries By Class  : %s\n", formatCounts(sum.ClassDistribution))
	}
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, " ")
}
