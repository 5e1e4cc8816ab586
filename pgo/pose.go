// Package pgo implements the measurement-consistency core of a robust
// pose-graph estimator: an uncertainty-aware rigid-transform algebra,
// per-robot trajectory and transform stores, chi-squared consistency
// checks for odometry and loop-closure candidates, and a pairwise
// consistency graph whose maximum clique selects the accepted inlier set.
//
// The package makes accept/reject decisions only. Turning the accepted
// factor set into an optimized estimate is the job of an external solver;
// pgo consumes nothing from it beyond an optional re-seeded trajectory
// estimate (see PCM.UpdateEstimates).
package pgo

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Pose is the capability set a rigid transform must provide to participate
// in the uncertainty algebra. Implemented once per dimensionality (Pose2
// for SE(2), Pose3 for SE(3)) so the stores, checks, and clique machinery
// are written a single time.
//
// Tangent-space (Lie algebra) vectors and covariance matrices use the
// rotation-block-first convention: indices [0, RotationDim) are rotation,
// [RotationDim, Dim) are translation.
type Pose[T any] interface {
	// Compose returns this transform chained with other.
	Compose(other T) T
	// Inverse returns the inverse transform.
	Inverse() T
	// Between returns the relative transform from this pose to other,
	// i.e. Inverse().Compose(other).
	Between(other T) T
	// Identity returns the identity transform of the concrete type.
	Identity() T
	// Logmap returns the Lie-algebra coordinates of the transform.
	Logmap() *mat.VecDense
	// AdjointMap returns the Dim x Dim adjoint matrix, which maps tangent
	// vectors between the local frames of composed transforms.
	AdjointMap() *mat.Dense
	// Dim is the Lie-algebra dimension (3 for SE(2), 6 for SE(3)).
	Dim() int
	// RotationDim is the rotation block size (1 for SE(2), 3 for SE(3)).
	RotationDim() int
	// TranslationDim is the translation block size (2 or 3).
	TranslationDim() int
	// TranslationNorm is the Euclidean length of the translation part.
	TranslationNorm() float64
	// XY projects the translation onto the plane for export and rendering.
	XY() (x, y float64)
	// Equals reports whether other matches this transform within tol.
	Equals(other T, tol float64) bool
}

// wrapAngle normalizes an angle to (-pi, pi].
func wrapAngle(theta float64) float64 {
	for theta > math.Pi {
		theta -= 2 * math.Pi
	}
	for theta <= -math.Pi {
		theta += 2 * math.Pi
	}
	return theta
}
