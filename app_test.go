package main

import (
	"errors"
	"testing"

	"github.com/kwv/posemesh/pgo"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func priorMsg(robot string, index uint64, x, y, theta float64) *pgo.MeasurementMessage {
	return &pgo.MeasurementMessage{
		Type: pgo.MeasurementPrior,
		From: pgo.NodeRef{Robot: robot, Index: index},
		Pose: pgo.NewPose2(x, y, theta),
	}
}

func odometryMsg(robot string, from, to uint64, x, y, theta float64) *pgo.MeasurementMessage {
	return &pgo.MeasurementMessage{
		Type: pgo.MeasurementOdometry,
		From: pgo.NodeRef{Robot: robot, Index: from},
		To:   pgo.NodeRef{Robot: robot, Index: to},
		Pose: pgo.NewPose2(x, y, theta),
	}
}

// seededTracker returns a tracker holding a short single-robot chain.
func seededTracker(t *testing.T) *GraphTracker {
	t.Helper()
	tracker := NewGraphTracker(10, 10, nil)
	if _, err := tracker.Apply(priorMsg("a", 0, 0, 0, 0)); err != nil {
		t.Fatalf("prior: %v", err)
	}
	for i := uint64(0); i < 4; i++ {
		if _, err := tracker.Apply(odometryMsg("a", i, i+1, 1, 0, 0)); err != nil {
			t.Fatalf("odometry %d: %v", i, err)
		}
	}
	return tracker
}

// ---------------------------------------------------------------------------
// GraphTracker.Apply
// ---------------------------------------------------------------------------

func TestTrackerApplyPrior(t *testing.T) {
	tracker := NewGraphTracker(10, 10, nil)

	accepted, err := tracker.Apply(priorMsg("a", 0, 0, 0, 0))
	if err != nil {
		t.Fatalf("Apply(prior): %v", err)
	}
	if !accepted {
		t.Error("prior not accepted")
	}
	if !tracker.HasNodes() {
		t.Error("HasNodes() = false after a prior")
	}
}

func TestTrackerApplyDuplicatePrior(t *testing.T) {
	tracker := NewGraphTracker(10, 10, nil)
	if _, err := tracker.Apply(priorMsg("a", 0, 0, 0, 0)); err != nil {
		t.Fatalf("first prior: %v", err)
	}

	_, err := tracker.Apply(priorMsg("a", 0, 1, 1, 0))
	if !errors.Is(err, pgo.ErrDuplicateNode) {
		t.Errorf("second prior error = %v, want ErrDuplicateNode", err)
	}
}

func TestTrackerApplyOdometryChain(t *testing.T) {
	tracker := seededTracker(t)

	status := tracker.Status()
	if status.Processed != 5 || status.Accepted != 5 || status.Rejected != 0 {
		t.Errorf("Status = %+v, want 5 processed, 5 accepted", status)
	}
	if status.Robots["a"] != 5 {
		t.Errorf("Robots[a] = %d, want 5 nodes", status.Robots["a"])
	}
	if status.LastUpdate.IsZero() {
		t.Error("LastUpdate not set")
	}
}

func TestTrackerApplyLoopClosure(t *testing.T) {
	tracker := seededTracker(t)

	lc := &pgo.MeasurementMessage{
		Type:       pgo.MeasurementLoopClosure,
		From:       pgo.NodeRef{Robot: "a", Index: 0},
		To:         pgo.NodeRef{Robot: "a", Index: 4},
		Pose:       pgo.NewPose2(4, 0, 0),
		Covariance: []float64{0.01, 0, 0, 0, 1, 0, 0, 0, 1},
	}
	accepted, err := tracker.Apply(lc)
	if err != nil {
		t.Fatalf("Apply(loop closure): %v", err)
	}
	if !accepted {
		t.Error("consistent loop closure not accepted")
	}

	status := tracker.Status()
	if status.LoopClosures != 1 || status.Inliers != 1 {
		t.Errorf("LoopClosures=%d Inliers=%d, want 1 and 1", status.LoopClosures, status.Inliers)
	}
}

func TestTrackerApplySeparator(t *testing.T) {
	tracker := seededTracker(t)

	sep := &pgo.MeasurementMessage{
		Type:       pgo.MeasurementSeparator,
		From:       pgo.NodeRef{Robot: "a", Index: 0},
		To:         pgo.NodeRef{Robot: "b", Index: 0},
		Pose:       pgo.NewPose2(0, 3, 0),
		Covariance: []float64{0.01, 0, 0, 0, 1, 0, 0, 0, 1},
	}
	accepted, err := tracker.Apply(sep)
	if err != nil {
		t.Fatalf("Apply(separator): %v", err)
	}
	if !accepted {
		t.Error("first separator not accepted")
	}

	status := tracker.Status()
	if status.Robots["b"] != 1 {
		t.Errorf("Robots[b] = %d, want 1 seeded node", status.Robots["b"])
	}
}

func TestTrackerApplyRejectionCounts(t *testing.T) {
	tracker := NewGraphTracker(0, 0, nil)
	if _, err := tracker.Apply(priorMsg("a", 0, 0, 0, 0)); err != nil {
		t.Fatalf("prior: %v", err)
	}
	for i := uint64(0); i < 2; i++ {
		if _, err := tracker.Apply(odometryMsg("a", i, i+1, 1, 0, 0)); err != nil {
			t.Fatalf("odometry %d: %v", i, err)
		}
	}

	// Loop closure conflicting with the chain; at threshold zero it
	// cannot pass.
	lc := &pgo.MeasurementMessage{
		Type:       pgo.MeasurementLoopClosure,
		From:       pgo.NodeRef{Robot: "a", Index: 0},
		To:         pgo.NodeRef{Robot: "a", Index: 2},
		Pose:       pgo.NewPose2(5, 5, 0),
		Covariance: []float64{0.01, 0, 0, 0, 1, 0, 0, 0, 1},
	}
	accepted, err := tracker.Apply(lc)
	if err != nil {
		t.Fatalf("Apply(loop closure): %v", err)
	}
	if accepted {
		t.Error("inconsistent loop closure accepted at threshold zero")
	}

	status := tracker.Status()
	if status.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", status.Rejected)
	}
}

func TestTrackerApplyErrors(t *testing.T) {
	tracker := NewGraphTracker(10, 10, nil)

	// Unknown type
	if _, err := tracker.Apply(&pgo.MeasurementMessage{
		Type: "teleport",
		From: pgo.NodeRef{Robot: "a", Index: 0},
	}); err == nil {
		t.Error("unknown type accepted, want error")
	}

	// Bad robot tag
	if _, err := tracker.Apply(priorMsg("alpha", 0, 0, 0, 0)); err == nil {
		t.Error("multi-character robot tag accepted, want error")
	}

	// Odometry before any prior
	if _, err := tracker.Apply(odometryMsg("a", 0, 1, 1, 0, 0)); !errors.Is(err, pgo.ErrUnknownRobot) {
		t.Errorf("odometry before prior error = %v, want ErrUnknownRobot", err)
	}
}

func TestTrackerRecordDecodeError(t *testing.T) {
	tracker := NewGraphTracker(10, 10, nil)
	tracker.RecordDecodeError()
	tracker.RecordDecodeError()

	status := tracker.Status()
	if status.DecodeErrors != 2 {
		t.Errorf("DecodeErrors = %d, want 2", status.DecodeErrors)
	}
	if status.Processed != 0 {
		t.Errorf("Processed = %d, want 0", status.Processed)
	}
}

// ---------------------------------------------------------------------------
// App.HandleMeasurement
// ---------------------------------------------------------------------------

func TestHandleMeasurement(t *testing.T) {
	config := &pgo.Config{Robots: []pgo.RobotConfig{{ID: "a"}}}
	app := NewApp(config, nil)

	// Decode failures only bump the error counter
	app.HandleMeasurement("a", []byte("{broken"), nil, errors.New("parse failure"))
	if got := app.Tracker.Status().DecodeErrors; got != 1 {
		t.Errorf("DecodeErrors = %d, want 1", got)
	}

	app.HandleMeasurement("a", nil, priorMsg("a", 0, 0, 0, 0), nil)
	app.HandleMeasurement("a", nil, odometryMsg("a", 0, 1, 1, 0, 0), nil)

	status := app.Tracker.Status()
	if status.Accepted != 2 {
		t.Errorf("Accepted = %d, want 2", status.Accepted)
	}
	if !app.Tracker.HasNodes() {
		t.Error("HasNodes() = false after measurements")
	}
}

func TestNewAppUsesConfiguredThresholds(t *testing.T) {
	config := &pgo.Config{
		Thresholds: &pgo.ThresholdConfig{Odometry: 0, LoopClosure: 0},
		Robots:     []pgo.RobotConfig{{ID: "a"}},
	}
	app := NewApp(config, nil)

	// Exact odometry passes even a zero threshold; a conflicting loop
	// closure on the same pair cannot.
	if _, err := app.Tracker.Apply(priorMsg("a", 0, 0, 0, 0)); err != nil {
		t.Fatalf("prior: %v", err)
	}
	accepted, err := app.Tracker.Apply(odometryMsg("a", 0, 1, 1, 0, 0))
	if err != nil || !accepted {
		t.Fatalf("exact odometry at zero threshold: ok=%v err=%v", accepted, err)
	}
}

func TestTrackerAcceptedFactors(t *testing.T) {
	tracker := seededTracker(t)
	factors := tracker.AcceptedFactors()
	if len(factors) != 5 {
		t.Fatalf("len(AcceptedFactors) = %d, want 5", len(factors))
	}
	if factors[0].Kind != pgo.FactorPrior {
		t.Errorf("factors[0].Kind = %v, want prior", factors[0].Kind)
	}
}
