package pgo

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Belief is the uncertainty-aware transform algebra the stores and checks
// are written against. Two models implement it: PoseWithCovariance
// (first-order covariance propagation) and PoseWithDistance (scalar
// accumulated path length).
type Belief[B any] interface {
	// Compose chains this belief with other, propagating uncertainty.
	Compose(other B) B
	// Inverse inverts the belief, propagating uncertainty.
	Inverse() B
	// Between returns the relative belief from this one to other.
	Between(other B) B
	// Norm is the scalar consistency score of the belief treated as a
	// residual: small means consistent with the identity transform.
	Norm() float64
}

// PoseWithCovariance couples a rigid transform with a covariance over its
// Lie-algebra coordinates (rotation block first). Values are immutable;
// every operation returns a new instance.
type PoseWithCovariance[T Pose[T]] struct {
	Pose T
	Cov  *mat.SymDense

	// CovApprox marks a covariance that failed the positive-semi-definite
	// check in both Between directions. The value is still usable but only
	// approximate; see Between.
	CovApprox bool
}

// NewPoseWithCovariance builds a belief from a pose and covariance. A nil
// covariance yields the zero matrix (an exact prior). When the rotation
// block of the covariance contains non-finite entries, the whole matrix is
// discarded except for the translation block, which prevents NaN and Inf
// from propagating through later compositions. Measurements from degenerate
// noise models therefore carry zero rotation information.
func NewPoseWithCovariance[T Pose[T]](pose T, cov *mat.SymDense) PoseWithCovariance[T] {
	dim := pose.Dim()
	if cov == nil {
		return PoseWithCovariance[T]{Pose: pose, Cov: mat.NewSymDense(dim, nil)}
	}
	rdim := pose.RotationDim()

	rotTrace := 0.0
	for i := 0; i < rdim; i++ {
		rotTrace += cov.At(i, i)
	}
	if math.IsNaN(rotTrace) || math.IsInf(rotTrace, 0) {
		kept := mat.NewSymDense(dim, nil)
		for i := rdim; i < dim; i++ {
			for j := i; j < dim; j++ {
				kept.SetSym(i, j, cov.At(i, j))
			}
		}
		return PoseWithCovariance[T]{Pose: pose, Cov: kept}
	}

	out := mat.NewSymDense(dim, nil)
	out.CopySym(cov)
	return PoseWithCovariance[T]{Pose: pose, Cov: out}
}

// Compose chains a with b. The covariance is propagated to first order:
// Cov = Ha*CovA*Ha' + CovB, where Ha is the adjoint of b's inverse (the
// Jacobian of composition with respect to a under local perturbations; the
// Jacobian with respect to b is the identity).
func (a PoseWithCovariance[T]) Compose(b PoseWithCovariance[T]) PoseWithCovariance[T] {
	ha := b.Pose.Inverse().AdjointMap()
	cov := congruence(ha, a.Cov)
	addSym(cov, b.Cov)
	return PoseWithCovariance[T]{Pose: a.Pose.Compose(b.Pose), Cov: cov}
}

// Inverse inverts the belief. The inversion Jacobian is -Ad(a); the sign
// cancels in the congruence, leaving Cov = Ad(a)*CovA*Ad(a)'.
func (a PoseWithCovariance[T]) Inverse() PoseWithCovariance[T] {
	return PoseWithCovariance[T]{
		Pose: a.Pose.Inverse(),
		Cov:  congruence(a.Pose.AdjointMap(), a.Cov),
	}
}

// Between returns the relative belief from a to b. Under first-order
// propagation the covariance is CovB - Ha*CovA*Ha' with Ha the adjoint of
// the inverse relative pose; the subtraction is only an approximation and
// can leave the result indefinite. When a Cholesky factorization fails, the
// computation is redone in the opposite direction (between(b, a) inverted),
// which swaps the dominating covariance and usually restores definiteness.
// If both directions fail, the second result is kept and CovApprox is set;
// callers treat that as a diagnostic, never an error.
func (a PoseWithCovariance[T]) Between(b PoseWithCovariance[T]) PoseWithCovariance[T] {
	rel := a.Pose.Between(b.Pose)
	ha := rel.Inverse().AdjointMap()
	cov := congruence(ha, a.Cov)
	subFromSym(cov, b.Cov)

	if isPSD(cov) {
		return PoseWithCovariance[T]{Pose: rel, Cov: cov}
	}

	relBack := b.Pose.Between(a.Pose)
	hb := relBack.Inverse().AdjointMap()
	cov = congruence(hb, b.Cov)
	subFromSym(cov, a.Cov)

	out := PoseWithCovariance[T]{Pose: rel, Cov: cov}
	if !isPSD(cov) {
		out.CovApprox = true
	}
	return out
}

// Norm is the Mahalanobis norm of the pose's log map against the
// covariance: sqrt(log' * Cov^-1 * log). The covariance gets a tiny
// diagonal jitter before factorization so exact priors (zero covariance)
// remain solvable; an identity pose then scores 0 while any mismatch under
// zero uncertainty scores astronomically, failing every finite threshold.
// A covariance that still cannot be factorized yields +Inf unless the log
// map is zero.
func (a PoseWithCovariance[T]) Norm() float64 {
	logv := a.Pose.Logmap()

	var chol mat.Cholesky
	if ok := chol.Factorize(regularized(a.Cov)); !ok {
		if mat.Norm(logv, 2) < 1e-12 {
			return 0
		}
		return math.Inf(1)
	}
	var solved mat.VecDense
	if err := chol.SolveVecTo(&solved, logv); err != nil {
		return math.Inf(1)
	}
	return math.Sqrt(mat.Dot(logv, &solved))
}

// XY returns the planar position of the underlying pose.
func (a PoseWithCovariance[T]) XY() (float64, float64) {
	return a.Pose.XY()
}

// PoseWithDistance is the simplified uncertainty model: a rigid transform
// plus the path distance accumulated to reach it. The consistency norm is
// the log-map magnitude normalized by that distance.
type PoseWithDistance[T Pose[T]] struct {
	Pose     T
	Distance float64
}

// NewPoseWithDistance builds a distance-model belief.
func NewPoseWithDistance[T Pose[T]](pose T, distance float64) PoseWithDistance[T] {
	return PoseWithDistance[T]{Pose: pose, Distance: distance}
}

// Compose chains a with b, accumulating b's translation length.
func (a PoseWithDistance[T]) Compose(b PoseWithDistance[T]) PoseWithDistance[T] {
	return PoseWithDistance[T]{
		Pose:     a.Pose.Compose(b.Pose),
		Distance: a.Distance + b.Pose.TranslationNorm(),
	}
}

// Inverse inverts the pose; the accumulated distance is unchanged.
func (a PoseWithDistance[T]) Inverse() PoseWithDistance[T] {
	return PoseWithDistance[T]{Pose: a.Pose.Inverse(), Distance: a.Distance}
}

// Between returns the relative belief; the distance is the absolute
// difference of the accumulated distances.
func (a PoseWithDistance[T]) Between(b PoseWithDistance[T]) PoseWithDistance[T] {
	return PoseWithDistance[T]{
		Pose:     a.Pose.Between(b.Pose),
		Distance: math.Abs(b.Distance - a.Distance),
	}
}

// Norm is the log-map magnitude divided by the accumulated distance. A
// zero distance yields 0 for an identity pose and +Inf otherwise,
// mirroring the covariance model's singular case.
func (a PoseWithDistance[T]) Norm() float64 {
	logv := a.Pose.Logmap()
	n := mat.Norm(logv, 2)
	if a.Distance == 0 {
		if n < 1e-12 {
			return 0
		}
		return math.Inf(1)
	}
	return n / a.Distance
}

// XY returns the planar position of the underlying pose.
func (a PoseWithDistance[T]) XY() (float64, float64) {
	return a.Pose.XY()
}

// congruence computes h * s * h' as a fresh symmetric matrix.
func congruence(h *mat.Dense, s *mat.SymDense) *mat.SymDense {
	n, _ := h.Dims()
	var hs, hsh mat.Dense
	hs.Mul(h, s)
	hsh.Mul(&hs, h.T())

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			// Average the off-diagonal pair to absorb round-off asymmetry.
			out.SetSym(i, j, (hsh.At(i, j)+hsh.At(j, i))/2)
		}
	}
	return out
}

// addSym accumulates b into a in place.
func addSym(a, b *mat.SymDense) {
	n := a.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			a.SetSym(i, j, a.At(i, j)+b.At(i, j))
		}
	}
}

// subFromSym replaces a with b - a in place.
func subFromSym(a, b *mat.SymDense) {
	n := a.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			a.SetSym(i, j, b.At(i, j)-a.At(i, j))
		}
	}
}

// isPSD reports whether s admits a Cholesky factorization after the same
// tiny diagonal regularization used by Norm, so a legitimately
// positive-semi-definite matrix with zero eigenvalues passes.
func isPSD(s *mat.SymDense) bool {
	var chol mat.Cholesky
	return chol.Factorize(regularized(s))
}

// regularized returns s with a tiny diagonal jitter, enough to make an
// exactly singular but semi-definite matrix factorizable without changing
// any acceptance decision at practical thresholds.
func regularized(s *mat.SymDense) *mat.SymDense {
	n := s.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(s)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, out.At(i, i)+1e-12)
	}
	return out
}
