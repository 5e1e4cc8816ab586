package pgo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Rot3 is a 3x3 rotation matrix in row-major order.
type Rot3 [9]float64

// IdentityRot3 returns the identity rotation.
func IdentityRot3() Rot3 {
	return Rot3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// RotZYX builds a rotation from yaw (about z), pitch (about y), and roll
// (about x), applied in that order.
func RotZYX(yaw, pitch, roll float64) Rot3 {
	cy, sy := math.Cos(yaw), math.Sin(yaw)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	cr, sr := math.Cos(roll), math.Sin(roll)
	return Rot3{
		cy * cp, cy*sp*sr - sy*cr, cy*sp*cr + sy*sr,
		sy * cp, sy*sp*sr + cy*cr, sy*sp*cr - cy*sr,
		-sp, cp * sr, cp * cr,
	}
}

// mul returns r*s.
func (r Rot3) mul(s Rot3) Rot3 {
	var out Rot3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = r[3*i]*s[j] + r[3*i+1]*s[3+j] + r[3*i+2]*s[6+j]
		}
	}
	return out
}

// transpose returns the inverse rotation.
func (r Rot3) transpose() Rot3 {
	return Rot3{
		r[0], r[3], r[6],
		r[1], r[4], r[7],
		r[2], r[5], r[8],
	}
}

// apply rotates the vector (x, y, z).
func (r Rot3) apply(x, y, z float64) (float64, float64, float64) {
	return r[0]*x + r[1]*y + r[2]*z,
		r[3]*x + r[4]*y + r[5]*z,
		r[6]*x + r[7]*y + r[8]*z
}

// logmap returns the axis-angle vector omega with |omega| = rotation angle.
func (r Rot3) logmap() [3]float64 {
	tr := r[0] + r[4] + r[8]
	cosTheta := (tr - 1) / 2
	if cosTheta > 1 {
		cosTheta = 1
	} else if cosTheta < -1 {
		cosTheta = -1
	}
	theta := math.Acos(cosTheta)

	switch {
	case theta < 1e-10:
		// First-order: omega ~= vee(R - R^T)/2.
		return [3]float64{(r[7] - r[5]) / 2, (r[2] - r[6]) / 2, (r[3] - r[1]) / 2}
	case math.Pi-theta < 1e-6:
		// Near pi the off-diagonal difference vanishes; recover the axis
		// from the diagonal of (R + I)/2 = axis*axis^T near theta = pi.
		ax := math.Sqrt(math.Max(0, (r[0]+1)/2))
		ay := math.Sqrt(math.Max(0, (r[4]+1)/2))
		az := math.Sqrt(math.Max(0, (r[8]+1)/2))
		// Fix signs using the largest component.
		if ax >= ay && ax >= az {
			if r[1]+r[3] < 0 {
				ay = -ay
			}
			if r[2]+r[6] < 0 {
				az = -az
			}
		} else if ay >= az {
			if r[1]+r[3] < 0 {
				ax = -ax
			}
			if r[5]+r[7] < 0 {
				az = -az
			}
		} else {
			if r[2]+r[6] < 0 {
				ax = -ax
			}
			if r[5]+r[7] < 0 {
				ay = -ay
			}
		}
		return [3]float64{theta * ax, theta * ay, theta * az}
	default:
		scale := theta / (2 * math.Sin(theta))
		return [3]float64{
			scale * (r[7] - r[5]),
			scale * (r[2] - r[6]),
			scale * (r[3] - r[1]),
		}
	}
}

// expRot maps an axis-angle vector to a rotation via Rodrigues' formula.
func expRot(wx, wy, wz float64) Rot3 {
	theta := math.Sqrt(wx*wx + wy*wy + wz*wz)
	if theta < 1e-10 {
		// First-order approximation I + [w]x.
		return Rot3{
			1, -wz, wy,
			wz, 1, -wx,
			-wy, wx, 1,
		}
	}
	ax, ay, az := wx/theta, wy/theta, wz/theta
	c, s := math.Cos(theta), math.Sin(theta)
	cc := 1 - c
	return Rot3{
		c + ax*ax*cc, ax*ay*cc - az*s, ax*az*cc + ay*s,
		ay*ax*cc + az*s, c + ay*ay*cc, ay*az*cc - ax*s,
		az*ax*cc - ay*s, az*ay*cc + ax*s, c + az*az*cc,
	}
}

// Pose3 is a rigid transform in three dimensions: rotation R then
// translation T. Use NewPose3 or IdentityPose3; the zero value has a zero
// rotation block and is not a valid transform.
type Pose3 struct {
	R Rot3       `json:"rotation"`
	T [3]float64 `json:"translation"`
}

// NewPose3 constructs a Pose3 from a rotation and translation.
func NewPose3(r Rot3, x, y, z float64) Pose3 {
	return Pose3{R: r, T: [3]float64{x, y, z}}
}

// IdentityPose3 returns the identity transform.
func IdentityPose3() Pose3 {
	return Pose3{R: IdentityRot3()}
}

// Compose returns a∘b.
func (a Pose3) Compose(b Pose3) Pose3 {
	x, y, z := a.R.apply(b.T[0], b.T[1], b.T[2])
	return Pose3{
		R: a.R.mul(b.R),
		T: [3]float64{a.T[0] + x, a.T[1] + y, a.T[2] + z},
	}
}

// Inverse returns the inverse transform.
func (a Pose3) Inverse() Pose3 {
	rt := a.R.transpose()
	x, y, z := rt.apply(a.T[0], a.T[1], a.T[2])
	return Pose3{R: rt, T: [3]float64{-x, -y, -z}}
}

// Between returns the relative transform from a to b in a's frame.
func (a Pose3) Between(b Pose3) Pose3 {
	rt := a.R.transpose()
	x, y, z := rt.apply(b.T[0]-a.T[0], b.T[1]-a.T[1], b.T[2]-a.T[2])
	return Pose3{R: rt.mul(b.R), T: [3]float64{x, y, z}}
}

// Identity returns the identity transform.
func (Pose3) Identity() Pose3 { return IdentityPose3() }

// Logmap returns the se(3) coordinates (wx, wy, wz, vx, vy, vz).
func (a Pose3) Logmap() *mat.VecDense {
	w := a.R.logmap()
	theta := math.Sqrt(w[0]*w[0] + w[1]*w[1] + w[2]*w[2])

	// v = Vinv * t, where V is the left Jacobian of SO(3):
	// Vinv = I - W/2 + k W^2, k = (1 - theta*cot(theta/2)/2) / theta^2.
	var k float64
	if theta < 1e-6 {
		k = 1.0 / 12.0
	} else {
		k = (1 - theta*math.Cos(theta/2)/(2*math.Sin(theta/2))) / (theta * theta)
	}

	wxm := skew(w[0], w[1], w[2])
	var vinv mat.Dense
	vinv.Mul(wxm, wxm)
	vinv.Scale(k, &vinv)
	var half mat.Dense
	half.Scale(-0.5, wxm)
	vinv.Add(&vinv, &half)
	vinv.Add(&vinv, eye(3))

	t := mat.NewVecDense(3, []float64{a.T[0], a.T[1], a.T[2]})
	var v mat.VecDense
	v.MulVec(&vinv, t)

	return mat.NewVecDense(6, []float64{
		w[0], w[1], w[2],
		v.AtVec(0), v.AtVec(1), v.AtVec(2),
	})
}

// Expmap3 maps se(3) coordinates (w, v) to a Pose3.
func Expmap3(xi *mat.VecDense) (Pose3, error) {
	if xi.Len() != 6 {
		return Pose3{}, fmt.Errorf("%w: expected tangent dimension 6, got %d", ErrDimensionMismatch, xi.Len())
	}
	wx, wy, wz := xi.AtVec(0), xi.AtVec(1), xi.AtVec(2)
	theta := math.Sqrt(wx*wx + wy*wy + wz*wz)

	// t = V * v with V = I + b W + c W^2.
	var b, c float64
	if theta < 1e-6 {
		b, c = 0.5, 1.0/6.0
	} else {
		b = (1 - math.Cos(theta)) / (theta * theta)
		c = (theta - math.Sin(theta)) / (theta * theta * theta)
	}
	wxm := skew(wx, wy, wz)
	var v mat.Dense
	v.Mul(wxm, wxm)
	v.Scale(c, &v)
	var bw mat.Dense
	bw.Scale(b, wxm)
	v.Add(&v, &bw)
	v.Add(&v, eye(3))

	vec := mat.NewVecDense(3, []float64{xi.AtVec(3), xi.AtVec(4), xi.AtVec(5)})
	var t mat.VecDense
	t.MulVec(&v, vec)

	return Pose3{
		R: expRot(wx, wy, wz),
		T: [3]float64{t.AtVec(0), t.AtVec(1), t.AtVec(2)},
	}, nil
}

// AdjointMap returns the 6x6 adjoint [[R, 0], [skew(t)R, R]] in
// rotation-first tangent ordering.
func (a Pose3) AdjointMap() *mat.Dense {
	ad := mat.NewDense(6, 6, nil)
	tr := skew(a.T[0], a.T[1], a.T[2])
	var trR mat.Dense
	rm := mat.NewDense(3, 3, a.R[:])
	trR.Mul(tr, rm)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			ad.Set(i, j, a.R[3*i+j])
			ad.Set(i+3, j+3, a.R[3*i+j])
			ad.Set(i+3, j, trR.At(i, j))
		}
	}
	return ad
}

// Dim returns the se(3) dimension.
func (Pose3) Dim() int { return 6 }

// RotationDim returns the rotation block size.
func (Pose3) RotationDim() int { return 3 }

// TranslationDim returns the translation block size.
func (Pose3) TranslationDim() int { return 3 }

// TranslationNorm returns the length of the translation component.
func (a Pose3) TranslationNorm() float64 {
	return math.Sqrt(a.T[0]*a.T[0] + a.T[1]*a.T[1] + a.T[2]*a.T[2])
}

// XY projects the translation onto the ground plane.
func (a Pose3) XY() (float64, float64) { return a.T[0], a.T[1] }

// Equals reports whether b matches a within tol, elementwise over the
// rotation matrix and translation.
func (a Pose3) Equals(b Pose3, tol float64) bool {
	for i := 0; i < 9; i++ {
		if math.Abs(a.R[i]-b.R[i]) > tol {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		if math.Abs(a.T[i]-b.T[i]) > tol {
			return false
		}
	}
	return true
}

// String renders the pose for diagnostics.
func (a Pose3) String() string {
	w := a.R.logmap()
	return fmt.Sprintf("(t=[%.4f %.4f %.4f] w=[%.4f %.4f %.4f])",
		a.T[0], a.T[1], a.T[2], w[0], w[1], w[2])
}

// skew returns the 3x3 cross-product matrix of (x, y, z).
func skew(x, y, z float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -z, y,
		z, 0, -x,
		-y, x, 0,
	})
}

// eye returns the n x n identity.
func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
