package pgo

import (
	"fmt"
	"log"
)

// OutlierRemoval is the contract between the measurement filter and the
// orchestration layer that feeds it candidates and forwards accepted
// factors to an external solver. All methods must be called from a single
// goroutine; the implementation holds the only mutable state and does no
// internal locking.
type OutlierRemoval[B Belief[B]] interface {
	// ProcessPrior seeds a robot trajectory with an anchored first node.
	ProcessPrior(id Key, belief B) error
	// ProcessOdometry offers a measurement between consecutive nodes of
	// one robot. The boolean is the accept decision; an error marks
	// malformed input, not rejection.
	ProcessOdometry(i, j Key, belief B) (bool, error)
	// ProcessSeparator offers a measurement bridging two robots'
	// trajectories.
	ProcessSeparator(i, j Key, belief B) (bool, error)
	// ProcessLoopClosure offers a non-sequential measurement. Acceptance
	// here means admission to the consistency graph; final inlier status
	// is decided by the maximum clique and may change as later
	// measurements arrive.
	ProcessLoopClosure(i, j Key, belief B) (bool, error)
	// AcceptedFactors returns the current accepted factor set: priors,
	// odometry, separators, and the loop closures in the maximum clique,
	// in deterministic order.
	AcceptedFactors() []Factor[B]
}

// PCM implements OutlierRemoval by pairwise consistency maximization:
// candidates that pass the threshold check against the trajectory are
// stored, pairwise-tested against each other, and the largest mutually
// consistent subset — a maximum clique of the consistency graph — is
// forwarded as the inlier set.
type PCM[B Belief[B]] struct {
	odomThreshold float64
	lcThreshold   float64

	trajectories map[rune]*Trajectory[B]
	robotOrder   []rune
	transforms   *TransformStore[B]

	// Loop-closure population in admission order; index = clique vertex.
	loopClosures []Transform[B]
	graph        *ConsistencyGraph
	inliers      []int

	priors []Factor[B]

	logger *log.Logger
}

var _ OutlierRemoval[PoseWithCovariance[Pose2]] = (*PCM[PoseWithCovariance[Pose2]])(nil)

// NewPCM creates a filter with the given chi-squared thresholds. A zero
// threshold demands exact consistency; a very large one disables the
// check. The logger receives diagnostics and may be nil for quiet
// operation.
func NewPCM[B Belief[B]](odomThreshold, lcThreshold float64, logger *log.Logger) *PCM[B] {
	return &PCM[B]{
		odomThreshold: odomThreshold,
		lcThreshold:   lcThreshold,
		trajectories:  make(map[rune]*Trajectory[B]),
		transforms:    NewTransformStore[B](),
		graph:         NewConsistencyGraph(),
		logger:        logger,
	}
}

// logf writes a diagnostic when a logger is configured.
func (p *PCM[B]) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

// ProcessPrior seeds the trajectory for the prior's robot. One prior per
// robot; a second is malformed input.
func (p *PCM[B]) ProcessPrior(id Key, belief B) error {
	if _, exists := p.trajectories[id.Robot]; exists {
		return fmt.Errorf("%w: robot %c already has a prior", ErrDuplicateNode, id.Robot)
	}
	traj := NewTrajectory[B](id.Robot)
	if err := traj.Seed(id, belief); err != nil {
		return err
	}
	p.trajectories[id.Robot] = traj
	p.robotOrder = append(p.robotOrder, id.Robot)
	p.priors = append(p.priors, Factor[B]{I: id, J: id, Belief: belief, Kind: FactorPrior})
	p.logf("pcm: seeded trajectory %c at %s", id.Robot, id)
	return nil
}

// ProcessOdometry checks and conditionally appends an odometry
// measurement. For a new node the trajectory's composed relative pose
// over the interval is the candidate itself, so the residual is exactly
// the identity and the measurement extends the chain even at threshold 0.
// When the target node already exists (after UpdateEstimates re-seeded the
// trajectory), the candidate is scored against the stored relative pose.
func (p *PCM[B]) ProcessOdometry(i, j Key, belief B) (bool, error) {
	if i.Robot != j.Robot || j.Index != i.Index+1 {
		return false, fmt.Errorf("%w: (%s, %s)", ErrNotSequential, i, j)
	}
	traj, ok := p.trajectories[i.Robot]
	if !ok {
		return false, fmt.Errorf("%w: %c", ErrUnknownRobot, i.Robot)
	}
	if !traj.Has(i) {
		return false, fmt.Errorf("%w: %s", ErrUnknownNode, i)
	}

	var residual B
	if traj.Has(j) {
		implied, err := traj.PoseBetween(i, j)
		if err != nil {
			return false, err
		}
		residual = residualBetween(implied, belief)
	} else {
		residual = residualBetween(belief, belief)
	}

	res := checkResidual(residual, p.odomThreshold)
	if res.Approx {
		p.logf("pcm: odometry (%s, %s) residual covariance not PSD in either direction", i, j)
	}
	if !res.Accept {
		p.logf("pcm: rejected odometry (%s, %s), norm %.4f > %.4f", i, j, res.Norm, p.odomThreshold)
		return false, nil
	}

	if !traj.Has(j) {
		if err := traj.Append(j, belief); err != nil {
			return false, err
		}
	}
	if err := p.transforms.Insert(i, j, belief, false); err != nil {
		return false, err
	}
	return true, nil
}

// ProcessSeparator admits a bridge between two robot trajectories. The
// first bridge to an unseeded robot places that robot's frame (the target
// trajectory starts at the composed pose), so it is accepted
// unconditionally. A separator between two already-seeded trajectories is
// checked like a loop closure against the implied relative pose.
func (p *PCM[B]) ProcessSeparator(i, j Key, belief B) (bool, error) {
	if i.Robot == j.Robot {
		return false, fmt.Errorf("separator (%s, %s) must link two robots", i, j)
	}
	src, ok := p.trajectories[i.Robot]
	if !ok {
		return false, fmt.Errorf("%w: %c", ErrUnknownRobot, i.Robot)
	}
	pi, err := src.Pose(i)
	if err != nil {
		return false, err
	}

	dst, seeded := p.trajectories[j.Robot]
	if !seeded {
		dst = NewTrajectory[B](j.Robot)
		if err := dst.Seed(j, pi.Compose(belief)); err != nil {
			return false, err
		}
		p.trajectories[j.Robot] = dst
		p.robotOrder = append(p.robotOrder, j.Robot)
		if err := p.transforms.Insert(i, j, belief, true); err != nil {
			return false, err
		}
		p.logf("pcm: separator (%s, %s) seeded trajectory %c", i, j, j.Robot)
		return true, nil
	}

	if !dst.Has(j) {
		return false, fmt.Errorf("%w: %s", ErrUnknownNode, j)
	}
	implied, err := p.impliedBetween(i, j)
	if err != nil {
		return false, err
	}
	res := checkResidual(residualBetween(implied, belief), p.lcThreshold)
	if !res.Accept {
		p.logf("pcm: rejected separator (%s, %s), norm %.4f > %.4f", i, j, res.Norm, p.lcThreshold)
		return false, nil
	}
	if err := p.transforms.Insert(i, j, belief, true); err != nil {
		return false, err
	}
	return true, nil
}

// ProcessLoopClosure checks a loop-closure candidate against the
// trajectory-implied relative pose and, when admitted, extends the
// consistency graph and recomputes the maximum clique. Admission is
// necessary but not sufficient for inlier status.
func (p *PCM[B]) ProcessLoopClosure(i, j Key, belief B) (bool, error) {
	if p.transforms.Has(i, j) {
		return false, fmt.Errorf("%w: (%s, %s)", ErrDuplicateTransform, i, j)
	}
	implied, err := p.impliedBetween(i, j)
	if err != nil {
		return false, err
	}

	residual := residualBetween(implied, belief)
	res := checkResidual(residual, p.lcThreshold)
	if res.Approx {
		p.logf("pcm: loop closure (%s, %s) residual covariance not PSD in either direction", i, j)
	}
	if !res.Accept {
		p.logf("pcm: rejected loop closure (%s, %s), norm %.4f > %.4f", i, j, res.Norm, p.lcThreshold)
		return false, nil
	}

	separator := i.Robot != j.Robot
	if err := p.transforms.Insert(i, j, belief, separator); err != nil {
		return false, err
	}
	lc := Transform[B]{I: i, J: j, Belief: belief, Separator: separator}
	v := p.graph.AddVertex()
	p.loopClosures = append(p.loopClosures, lc)

	// Pairwise consistency of the newcomer against every admitted loop
	// closure. Existing edges are never re-evaluated.
	for u := 0; u < v; u++ {
		consistent, err := p.pairwiseConsistent(p.loopClosures[u], lc)
		if err != nil {
			p.logf("pcm: skipping pair (%d, %d): %v", u, v, err)
			continue
		}
		if consistent {
			p.graph.AddEdge(u, v)
		}
	}

	p.inliers = p.graph.MaxClique()
	p.logf("pcm: admitted loop closure (%s, %s), norm %.4f; clique %d/%d",
		i, j, res.Norm, len(p.inliers), len(p.loopClosures))
	return true, nil
}

// pairwiseConsistent closes the loop formed by two admitted loop closures
// and the trajectory segments connecting their endpoints, and tests the
// residual against the loop-closure threshold.
func (p *PCM[B]) pairwiseConsistent(m, n Transform[B]) (bool, error) {
	jmToJn, err := p.impliedBetween(m.J, n.J)
	if err != nil {
		return false, err
	}
	inToIm, err := p.impliedBetween(n.I, m.I)
	if err != nil {
		return false, err
	}
	residual := loopResidual(m.Belief, jmToJn, n.Belief, inToIm)
	return checkResidual(residual, p.lcThreshold).Accept, nil
}

// impliedBetween returns the trajectory-implied relative belief from node
// i to node j. Within one robot this is the stored-pose between; across
// robots the chain composes through the earliest separator linking the two
// trajectories. Robots linked only transitively through a third are not
// resolved; a direct separator must exist.
func (p *PCM[B]) impliedBetween(i, j Key) (B, error) {
	var zero B
	ti, ok := p.trajectories[i.Robot]
	if !ok {
		return zero, fmt.Errorf("%w: %c", ErrUnknownRobot, i.Robot)
	}
	tj, ok := p.trajectories[j.Robot]
	if !ok {
		return zero, fmt.Errorf("%w: %c", ErrUnknownRobot, j.Robot)
	}

	if i.Robot == j.Robot {
		return ti.PoseBetween(i, j)
	}

	sep, found := p.transforms.FirstSeparatorBetween(i.Robot, j.Robot)
	if !found {
		return zero, fmt.Errorf("%w: %c and %c", ErrNoSeparator, i.Robot, j.Robot)
	}
	sepBelief := sep.Belief
	from, to := sep.I, sep.J
	if from.Robot != i.Robot {
		sepBelief = sepBelief.Inverse()
		from, to = to, from
	}

	iToFrom, err := ti.PoseBetween(i, from)
	if err != nil {
		return zero, err
	}
	toToJ, err := tj.PoseBetween(to, j)
	if err != nil {
		return zero, err
	}
	return iToFrom.Compose(sepBelief).Compose(toToJ), nil
}

// AcceptedFactors returns priors, then odometry and separator transforms
// in insertion order, then the loop closures of the current maximum clique
// in admission order. Repeating an identical insertion sequence from a
// fresh filter reproduces this set exactly.
func (p *PCM[B]) AcceptedFactors() []Factor[B] {
	out := make([]Factor[B], 0, len(p.priors)+p.transforms.Len())
	out = append(out, p.priors...)

	inlierSet := make(map[pairKey]bool, len(p.inliers))
	for _, v := range p.inliers {
		lc := p.loopClosures[v]
		inlierSet[pairKey{lc.I, lc.J}] = true
	}
	lcSet := make(map[pairKey]bool, len(p.loopClosures))
	for _, lc := range p.loopClosures {
		lcSet[pairKey{lc.I, lc.J}] = true
	}

	for _, t := range p.transforms.All() {
		k := pairKey{t.I, t.J}
		switch {
		case !lcSet[k]:
			kind := FactorOdometry
			if t.Separator {
				kind = FactorSeparator
			}
			out = append(out, Factor[B]{I: t.I, J: t.J, Belief: t.Belief, Kind: kind})
		case inlierSet[k]:
			out = append(out, Factor[B]{I: t.I, J: t.J, Belief: t.Belief, Kind: FactorLoopClosure})
		}
	}
	return out
}

// Inliers returns the loop closures in the current maximum clique, in
// admission order.
func (p *PCM[B]) Inliers() []Transform[B] {
	out := make([]Transform[B], 0, len(p.inliers))
	for _, v := range p.inliers {
		out = append(out, p.loopClosures[v])
	}
	return out
}

// Outliers returns admitted loop closures currently excluded from the
// maximum clique. They stay stored and may be promoted by a later
// recomputation.
func (p *PCM[B]) Outliers() []Transform[B] {
	inlier := make(map[int]bool, len(p.inliers))
	for _, v := range p.inliers {
		inlier[v] = true
	}
	var out []Transform[B]
	for v, lc := range p.loopClosures {
		if !inlier[v] {
			out = append(out, lc)
		}
	}
	return out
}

// LoopClosures returns all admitted loop closures in admission order,
// inliers and outliers alike.
func (p *PCM[B]) LoopClosures() []Transform[B] {
	return append([]Transform[B](nil), p.loopClosures...)
}

// Separators returns the accepted inter-robot edges in admission order.
func (p *PCM[B]) Separators() []Transform[B] {
	var out []Transform[B]
	for _, t := range p.transforms.All() {
		if t.Separator {
			out = append(out, t)
		}
	}
	return out
}

// LoopClosureCount returns the number of admitted loop closures.
func (p *PCM[B]) LoopClosureCount() int { return len(p.loopClosures) }

// InlierCount returns the size of the current maximum clique.
func (p *PCM[B]) InlierCount() int { return len(p.inliers) }

// Trajectory returns the trajectory for a robot tag, or nil.
func (p *PCM[B]) Trajectory(robot rune) *Trajectory[B] {
	return p.trajectories[robot]
}

// Robots returns the robot tags in seeding order.
func (p *PCM[B]) Robots() []rune {
	return append([]rune(nil), p.robotOrder...)
}

// UpdateEstimates overwrites stored trajectory poses from an external
// solver's current best estimate. Unknown keys are an error: a solver
// handing back nodes the filter never accepted indicates the two have
// diverged. Subsequent odometry and loop-closure checks score candidates
// against the re-seeded poses.
func (p *PCM[B]) UpdateEstimates(estimate map[Key]B) error {
	for id, belief := range estimate {
		traj, ok := p.trajectories[id.Robot]
		if !ok {
			return fmt.Errorf("%w: %c", ErrUnknownRobot, id.Robot)
		}
		if err := traj.SetPose(id, belief); err != nil {
			return err
		}
	}
	return nil
}
