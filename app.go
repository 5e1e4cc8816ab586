package main

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kwv/posemesh/pgo"
)

// Belief is the uncertainty model the service runs: planar poses with
// full 3x3 covariance.
type Belief = pgo.PoseWithCovariance[pgo.Pose2]

// GraphTracker serializes access to the consistency filter. The filter
// itself is single-threaded; MQTT callbacks and HTTP handlers both go
// through this mutex.
type GraphTracker struct {
	mu     sync.Mutex
	filter *pgo.PCM[Belief]

	processed  int
	accepted   int
	rejected   int
	decodeErrs int
	lastUpdate time.Time
}

// NewGraphTracker creates a tracker around a fresh filter with the given
// consistency thresholds.
func NewGraphTracker(odomThreshold, lcThreshold float64, logger *log.Logger) *GraphTracker {
	return &GraphTracker{
		filter: pgo.NewPCM[Belief](odomThreshold, lcThreshold, logger),
	}
}

// Apply dispatches a decoded measurement into the filter and returns
// whether it was accepted.
func (g *GraphTracker) Apply(msg *pgo.MeasurementMessage) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.processed++
	g.lastUpdate = time.Now()

	from, err := msg.From.Key()
	if err != nil {
		return false, err
	}
	belief := msg.Belief()

	// Priors carry their node in From; everything else is an edge.
	var accepted bool
	switch msg.Type {
	case pgo.MeasurementPrior:
		err = g.filter.ProcessPrior(from, belief)
		accepted = err == nil
	case pgo.MeasurementOdometry:
		var to pgo.Key
		if to, err = msg.To.Key(); err == nil {
			accepted, err = g.filter.ProcessOdometry(from, to, belief)
		}
	case pgo.MeasurementSeparator:
		var to pgo.Key
		if to, err = msg.To.Key(); err == nil {
			accepted, err = g.filter.ProcessSeparator(from, to, belief)
		}
	case pgo.MeasurementLoopClosure:
		var to pgo.Key
		if to, err = msg.To.Key(); err == nil {
			accepted, err = g.filter.ProcessLoopClosure(from, to, belief)
		}
	default:
		err = fmt.Errorf("unknown measurement type %q", msg.Type)
	}

	if err != nil {
		return false, err
	}
	if accepted {
		g.accepted++
	} else {
		g.rejected++
	}
	return accepted, nil
}

// RecordDecodeError counts a payload that could not be decoded.
func (g *GraphTracker) RecordDecodeError() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.decodeErrs++
	g.lastUpdate = time.Now()
}

// TrackerStatus is the snapshot served by the /status endpoint.
type TrackerStatus struct {
	Processed    int            `json:"processed"`
	Accepted     int            `json:"accepted"`
	Rejected     int            `json:"rejected"`
	DecodeErrors int            `json:"decodeErrors"`
	LoopClosures int            `json:"loopClosures"`
	Inliers      int            `json:"inliers"`
	Robots       map[string]int `json:"robots"` // robot tag -> trajectory length
	LastUpdate   time.Time      `json:"lastUpdate,omitempty"`
}

// Status returns a consistent snapshot of the tracker's counters and the
// filter's graph sizes.
func (g *GraphTracker) Status() TrackerStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	robots := make(map[string]int)
	for _, tag := range g.filter.Robots() {
		if traj := g.filter.Trajectory(tag); traj != nil {
			robots[string(tag)] = traj.Len()
		}
	}

	return TrackerStatus{
		Processed:    g.processed,
		Accepted:     g.accepted,
		Rejected:     g.rejected,
		DecodeErrors: g.decodeErrs,
		LoopClosures: g.filter.LoopClosureCount(),
		Inliers:      g.filter.InlierCount(),
		Robots:       robots,
		LastUpdate:   g.lastUpdate,
	}
}

// HasNodes reports whether any trajectory has been seeded yet.
func (g *GraphTracker) HasNodes() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, tag := range g.filter.Robots() {
		if traj := g.filter.Trajectory(tag); traj != nil && traj.Len() > 0 {
			return true
		}
	}
	return false
}

// AcceptedFactors returns the filter's current accepted factor list.
func (g *GraphTracker) AcceptedFactors() []pgo.Factor[Belief] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filter.AcceptedFactors()
}

// WithFilter runs fn while holding the tracker lock. Export and render
// paths use it so the filter cannot mutate mid-serialization.
func (g *GraphTracker) WithFilter(fn func(filter *pgo.PCM[Belief]) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g.filter)
}

// App wires the configuration, the tracker, and the measurement stream.
type App struct {
	Config  *pgo.Config
	Tracker *GraphTracker
	Stream  *pgo.StreamClient

	// CLI flags
	ConfigFile string
	ReplayFile string
	OutputFile string
	HTTPPort   int
	MqttMode   bool
	HTTPMode   bool
}

// NewApp creates an App from a loaded configuration.
func NewApp(config *pgo.Config, logger *log.Logger) *App {
	thresholds := config.EffectiveThresholds()
	return &App{
		Config:  config,
		Tracker: NewGraphTracker(thresholds.Odometry, thresholds.LoopClosure, logger),
	}
}

// HandleMeasurement is the MeasurementHandler plugged into the stream
// client.
func (a *App) HandleMeasurement(robotID string, raw []byte, msg *pgo.MeasurementMessage, err error) {
	if err != nil {
		a.Tracker.RecordDecodeError()
		return
	}

	accepted, applyErr := a.Tracker.Apply(msg)
	if applyErr != nil {
		log.Printf("%s: measurement %s %s->%s rejected with error: %v",
			robotID, msg.Type, msg.From.Robot, msg.To.Robot, applyErr)
		return
	}
	if !accepted {
		log.Printf("%s: %s %s%d->%s%d rejected by consistency check",
			robotID, msg.Type, msg.From.Robot, msg.From.Index, msg.To.Robot, msg.To.Index)
	}
}
