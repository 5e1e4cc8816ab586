package pgo

import "fmt"

// Trajectory is one robot's append-only chain of pose beliefs, keyed by
// node id. Node indices increase monotonically; iteration order is
// insertion order, kept in an explicit key slice so results never depend
// on map ordering.
type Trajectory[B Belief[B]] struct {
	robot rune
	poses map[Key]B
	keys  []Key
}

// NewTrajectory creates an empty trajectory for the given robot tag.
func NewTrajectory[B Belief[B]](robot rune) *Trajectory[B] {
	return &Trajectory[B]{
		robot: robot,
		poses: make(map[Key]B),
	}
}

// Seed places the trajectory's first pose. It fails on a non-empty
// trajectory or a key for a different robot.
func (t *Trajectory[B]) Seed(id Key, pose B) error {
	if id.Robot != t.robot {
		return fmt.Errorf("%w: key %s on trajectory %c", ErrUnknownRobot, id, t.robot)
	}
	if len(t.keys) != 0 {
		return fmt.Errorf("%w: trajectory %c already seeded", ErrDuplicateNode, t.robot)
	}
	t.poses[id] = pose
	t.keys = append(t.keys, id)
	return nil
}

// Append composes the relative belief onto the last stored pose and
// inserts the result under id. The id must continue the monotone index
// sequence and must not already exist.
func (t *Trajectory[B]) Append(id Key, rel B) error {
	if id.Robot != t.robot {
		return fmt.Errorf("%w: key %s on trajectory %c", ErrUnknownRobot, id, t.robot)
	}
	if len(t.keys) == 0 {
		return fmt.Errorf("%w: trajectory %c has no seed pose", ErrUnknownNode, t.robot)
	}
	if _, exists := t.poses[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	last := t.keys[len(t.keys)-1]
	if id.Index <= last.Index {
		return fmt.Errorf("%w: %s after %s", ErrNotSequential, id, last)
	}
	t.poses[id] = t.poses[last].Compose(rel)
	t.keys = append(t.keys, id)
	return nil
}

// Pose returns the stored belief for id.
func (t *Trajectory[B]) Pose(id Key) (B, error) {
	p, ok := t.poses[id]
	if !ok {
		var zero B
		return zero, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return p, nil
}

// PoseBetween returns the uncertainty-aware relative belief from node i to
// node j.
func (t *Trajectory[B]) PoseBetween(i, j Key) (B, error) {
	pi, err := t.Pose(i)
	if err != nil {
		var zero B
		return zero, err
	}
	pj, err := t.Pose(j)
	if err != nil {
		var zero B
		return zero, err
	}
	return pi.Between(pj), nil
}

// Has reports whether id is stored.
func (t *Trajectory[B]) Has(id Key) bool {
	_, ok := t.poses[id]
	return ok
}

// Last returns the most recently appended node id; ok is false when the
// trajectory is empty.
func (t *Trajectory[B]) Last() (Key, bool) {
	if len(t.keys) == 0 {
		return Key{}, false
	}
	return t.keys[len(t.keys)-1], true
}

// Len returns the number of stored poses.
func (t *Trajectory[B]) Len() int { return len(t.keys) }

// Keys returns the node ids in insertion order. The slice is shared; do
// not mutate.
func (t *Trajectory[B]) Keys() []Key { return t.keys }

// SetPose overwrites the stored belief for an existing node id. Used when
// re-seeding the trajectory from an external solver estimate.
func (t *Trajectory[B]) SetPose(id Key, pose B) error {
	if _, ok := t.poses[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	t.poses[id] = pose
	return nil
}

// TransformStore is the keyed collection of accepted inter-node
// measurements: odometry, separators, and admitted loop closures.
// Insertion order is tracked for deterministic iteration and clique
// vertex numbering.
type TransformStore[B Belief[B]] struct {
	transforms map[pairKey]Transform[B]
	order      []pairKey
}

// NewTransformStore creates an empty transform store.
func NewTransformStore[B Belief[B]]() *TransformStore[B] {
	return &TransformStore[B]{
		transforms: make(map[pairKey]Transform[B]),
	}
}

// Insert adds a measurement keyed by (i, j). A transform under the same
// ordered pair is a duplicate and is rejected; overwriting would silently
// desynchronize the consistency graph's vertex numbering.
func (s *TransformStore[B]) Insert(i, j Key, belief B, separator bool) error {
	k := pairKey{i, j}
	if _, exists := s.transforms[k]; exists {
		return fmt.Errorf("%w: (%s, %s)", ErrDuplicateTransform, i, j)
	}
	s.transforms[k] = Transform[B]{I: i, J: j, Belief: belief, Separator: separator}
	s.order = append(s.order, k)
	return nil
}

// Get returns the transform stored under (i, j).
func (s *TransformStore[B]) Get(i, j Key) (Transform[B], bool) {
	t, ok := s.transforms[pairKey{i, j}]
	return t, ok
}

// Has reports whether (i, j) is stored.
func (s *TransformStore[B]) Has(i, j Key) bool {
	_, ok := s.transforms[pairKey{i, j}]
	return ok
}

// Len returns the number of stored transforms.
func (s *TransformStore[B]) Len() int { return len(s.order) }

// All returns the stored transforms in insertion order.
func (s *TransformStore[B]) All() []Transform[B] {
	out := make([]Transform[B], 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.transforms[k])
	}
	return out
}

// FirstSeparatorBetween returns the earliest-inserted separator transform
// linking the two robot trajectories, in either direction.
func (s *TransformStore[B]) FirstSeparatorBetween(ra, rb rune) (Transform[B], bool) {
	for _, k := range s.order {
		t := s.transforms[k]
		if !t.Separator {
			continue
		}
		if (t.I.Robot == ra && t.J.Robot == rb) || (t.I.Robot == rb && t.J.Robot == ra) {
			return t, true
		}
	}
	return Transform[B]{}, false
}
