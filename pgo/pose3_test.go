package pgo

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestRot3ExpLogRoundtrip(t *testing.T) {
	axes := [][3]float64{
		{0.3, -0.2, 0.5},
		{1e-12, 0, 0},
		{0, 0, 2.8},
		{-1.1, 0.4, 0.9},
	}

	for _, w := range axes {
		r := expRot(w[0], w[1], w[2])
		got := r.logmap()
		for i := 0; i < 3; i++ {
			if !almostEqual(got[i], w[i], 1e-9) {
				t.Errorf("logmap(expRot(%v))[%d] = %g, want %g", w, i, got[i], w[i])
			}
		}
	}
}

func TestRot3LogmapNearPi(t *testing.T) {
	// Rotation by pi about x: the generic formula degenerates, the
	// diagonal branch must recover axis and angle.
	r := expRot(math.Pi, 0, 0)
	w := r.logmap()
	norm := math.Sqrt(w[0]*w[0] + w[1]*w[1] + w[2]*w[2])
	if !almostEqual(norm, math.Pi, 1e-6) {
		t.Errorf("|logmap| = %g, want pi", norm)
	}
	if math.Abs(w[0]) < math.Abs(w[1]) || math.Abs(w[0]) < math.Abs(w[2]) {
		t.Errorf("logmap = %v, want axis along x", w)
	}
}

func TestRotZYXMatchesExp(t *testing.T) {
	// Pure yaw is a rotation about z.
	yaw := 0.7
	a := RotZYX(yaw, 0, 0)
	b := expRot(0, 0, yaw)
	for i := 0; i < 9; i++ {
		if !almostEqual(a[i], b[i], 1e-12) {
			t.Fatalf("RotZYX(%g,0,0)[%d] = %g, want %g", yaw, i, a[i], b[i])
		}
	}
}

func TestPose3ComposeInverse(t *testing.T) {
	a := NewPose3(RotZYX(0.4, -0.1, 0.2), 1, -2, 3)

	id := a.Compose(a.Inverse())
	if !id.Equals(IdentityPose3(), 1e-9) {
		t.Errorf("a * a^-1 = %v, want identity", id)
	}

	if got := a.Compose(IdentityPose3()); !got.Equals(a, 1e-12) {
		t.Errorf("a * identity = %v, want %v", got, a)
	}
}

func TestPose3Between(t *testing.T) {
	a := NewPose3(RotZYX(0.3, 0, 0), 1, 2, 0)
	b := NewPose3(RotZYX(-0.5, 0.2, 0.1), -1, 4, 2)

	rel := a.Between(b)
	if got := a.Compose(rel); !got.Equals(b, 1e-9) {
		t.Errorf("a * a.Between(b) = %v, want %v", got, b)
	}
	if got := a.Between(a); !got.Equals(IdentityPose3(), 1e-9) {
		t.Errorf("a.Between(a) = %v, want identity", got)
	}
}

func TestPose3LogmapExpmapRoundtrip(t *testing.T) {
	poses := []Pose3{
		IdentityPose3(),
		NewPose3(RotZYX(0.4, -0.3, 0.6), 1, -2, 3),
		NewPose3(IdentityRot3(), 5, 0, -1),
		NewPose3(RotZYX(1e-9, 0, 0), 0.1, 0.2, 0.3),
	}

	for _, p := range poses {
		back, err := Expmap3(p.Logmap())
		if err != nil {
			t.Fatalf("Expmap3(%v.Logmap()): %v", p, err)
		}
		if !back.Equals(p, 1e-9) {
			t.Errorf("Expmap3(Logmap(%v)) = %v", p, back)
		}
	}
}

func TestPose3LogmapOrdering(t *testing.T) {
	// Rotation block first, translation second.
	p := NewPose3(IdentityRot3(), 1, 2, 3)
	xi := p.Logmap()
	want := []float64{0, 0, 0, 1, 2, 3}
	for i := 0; i < 6; i++ {
		if !almostEqual(xi.AtVec(i), want[i], 1e-12) {
			t.Errorf("Logmap[%d] = %g, want %g", i, xi.AtVec(i), want[i])
		}
	}
}

func TestExpmap3DimensionCheck(t *testing.T) {
	if _, err := Expmap3(mat.NewVecDense(3, []float64{1, 2, 3})); err == nil {
		t.Error("Expmap3 with a 3-vector should error")
	}
}

func TestPose3AdjointMap(t *testing.T) {
	// Adjoint of the identity is the 6x6 identity.
	ad := IdentityPose3().AdjointMap()
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if !almostEqual(ad.At(i, j), want, 1e-12) {
				t.Errorf("identity adjoint At(%d,%d) = %g, want %g", i, j, ad.At(i, j), want)
			}
		}
	}

	// Ad(g) * log(h) == log(g * h * g^-1).
	g := NewPose3(RotZYX(0.5, 0.1, -0.2), 1, 2, -1)
	h := NewPose3(RotZYX(0.1, 0.05, 0), 0.2, -0.1, 0.3)

	var want mat.VecDense
	want.MulVec(g.AdjointMap(), h.Logmap())
	got := g.Compose(h).Compose(g.Inverse()).Logmap()
	for i := 0; i < 6; i++ {
		if !almostEqual(got.AtVec(i), want.AtVec(i), 1e-9) {
			t.Errorf("adjoint identity component %d: got %g, want %g", i, got.AtVec(i), want.AtVec(i))
		}
	}
}
