package pgo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Pose2 is a rigid transform on the plane: a rotation Theta followed by a
// translation (X, Y). The zero value is the identity transform.
//
// Tangent vectors are ordered (theta, x, y) to keep the rotation block
// first, matching the covariance layout used throughout the package.
type Pose2 struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// NewPose2 constructs a Pose2 with the angle wrapped to (-pi, pi].
func NewPose2(x, y, theta float64) Pose2 {
	return Pose2{X: x, Y: y, Theta: wrapAngle(theta)}
}

// Compose returns a∘b: apply b in the local frame of a.
func (a Pose2) Compose(b Pose2) Pose2 {
	c, s := math.Cos(a.Theta), math.Sin(a.Theta)
	return Pose2{
		X:     a.X + c*b.X - s*b.Y,
		Y:     a.Y + s*b.X + c*b.Y,
		Theta: wrapAngle(a.Theta + b.Theta),
	}
}

// Inverse returns the transform mapping back to the origin frame.
func (a Pose2) Inverse() Pose2 {
	c, s := math.Cos(a.Theta), math.Sin(a.Theta)
	return Pose2{
		X:     -(c*a.X + s*a.Y),
		Y:     -(-s*a.X + c*a.Y),
		Theta: wrapAngle(-a.Theta),
	}
}

// Between returns the relative transform from a to b in a's frame.
func (a Pose2) Between(b Pose2) Pose2 {
	c, s := math.Cos(a.Theta), math.Sin(a.Theta)
	dx, dy := b.X-a.X, b.Y-a.Y
	return Pose2{
		X:     c*dx + s*dy,
		Y:     -s*dx + c*dy,
		Theta: wrapAngle(b.Theta - a.Theta),
	}
}

// Identity returns the identity transform.
func (Pose2) Identity() Pose2 { return Pose2{} }

// Logmap returns the se(2) coordinates (theta, vx, vy) of the transform.
func (a Pose2) Logmap() *mat.VecDense {
	theta := wrapAngle(a.Theta)

	// Invert V(theta), the left Jacobian of the planar exponential map:
	// t = V * v with V = [[A, -B], [B, A]], A = sin/theta, B = (1-cos)/theta.
	var A, B float64
	if math.Abs(theta) < 1e-10 {
		A, B = 1.0, theta/2.0
	} else {
		A = math.Sin(theta) / theta
		B = (1 - math.Cos(theta)) / theta
	}
	det := A*A + B*B
	vx := (A*a.X + B*a.Y) / det
	vy := (-B*a.X + A*a.Y) / det

	return mat.NewVecDense(3, []float64{theta, vx, vy})
}

// Expmap2 maps se(2) coordinates (theta, vx, vy) to a Pose2.
func Expmap2(xi *mat.VecDense) (Pose2, error) {
	if xi.Len() != 3 {
		return Pose2{}, fmt.Errorf("%w: expected tangent dimension 3, got %d", ErrDimensionMismatch, xi.Len())
	}
	theta, vx, vy := xi.AtVec(0), xi.AtVec(1), xi.AtVec(2)

	var A, B float64
	if math.Abs(theta) < 1e-10 {
		A, B = 1.0, theta/2.0
	} else {
		A = math.Sin(theta) / theta
		B = (1 - math.Cos(theta)) / theta
	}
	return Pose2{
		X:     A*vx - B*vy,
		Y:     B*vx + A*vy,
		Theta: wrapAngle(theta),
	}, nil
}

// AdjointMap returns the 3x3 adjoint in (theta, x, y) tangent ordering.
func (a Pose2) AdjointMap() *mat.Dense {
	c, s := math.Cos(a.Theta), math.Sin(a.Theta)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		a.Y, c, -s,
		-a.X, s, c,
	})
}

// Dim returns the se(2) dimension.
func (Pose2) Dim() int { return 3 }

// RotationDim returns the rotation block size.
func (Pose2) RotationDim() int { return 1 }

// TranslationDim returns the translation block size.
func (Pose2) TranslationDim() int { return 2 }

// TranslationNorm returns the length of the translation component.
func (a Pose2) TranslationNorm() float64 { return math.Hypot(a.X, a.Y) }

// XY returns the planar position.
func (a Pose2) XY() (float64, float64) { return a.X, a.Y }

// Equals reports whether b matches a within tol, comparing the rotation
// through its wrapped difference so poses straddling +-pi compare equal.
func (a Pose2) Equals(b Pose2, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol &&
		math.Abs(a.Y-b.Y) <= tol &&
		math.Abs(wrapAngle(a.Theta-b.Theta)) <= tol
}

// String renders the pose for diagnostics.
func (a Pose2) String() string {
	return fmt.Sprintf("(%.4f, %.4f; %.4f)", a.X, a.Y, a.Theta)
}
