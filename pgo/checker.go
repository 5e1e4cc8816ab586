package pgo

// CheckResult reports the outcome of a consistency check: the residual's
// consistency norm, whether it passed the threshold, and whether the
// residual covariance had to be kept in approximate form (covariance-model
// beliefs only; always false for the distance model).
type CheckResult struct {
	Norm   float64
	Accept bool
	Approx bool
}

// checkResidual scores a residual belief against a chi-squared threshold.
// The comparison is inclusive so a threshold of 0 admits exactly consistent
// residuals and nothing else.
func checkResidual[B Belief[B]](residual B, threshold float64) CheckResult {
	res := CheckResult{Norm: residual.Norm()}
	res.Accept = res.Norm <= threshold
	res.Approx = beliefApprox(residual)
	return res
}

// residualBetween forms the residual transform of a candidate measurement
// against the trajectory-implied relative belief over the same node pair.
func residualBetween[B Belief[B]](implied, candidate B) B {
	return implied.Between(candidate)
}

// loopResidual composes two loop-closure measurements with the connecting
// trajectory segments into a closed loop. For loop closures m = (im, jm)
// and n = (in, jn) the chain
//
//	taum ∘ implied(jm -> jn) ∘ taun^-1 ∘ implied(in -> im)
//
// starts and ends at im, so a geometrically consistent pair leaves a
// residual near the identity. The caller supplies the two implied segment
// beliefs (which may cross separators).
func loopResidual[B Belief[B]](taum, jmToJn, taun, inToIm B) B {
	return taum.Compose(jmToJn).Compose(taun.Inverse()).Compose(inToIm)
}

// beliefApprox reports the CovApprox diagnostic when the belief carries
// one. The type switches cover the two pose types the package ships;
// other Belief implementations simply report false.
func beliefApprox(b any) bool {
	switch v := b.(type) {
	case PoseWithCovariance[Pose2]:
		return v.CovApprox
	case PoseWithCovariance[Pose3]:
		return v.CovApprox
	default:
		return false
	}
}
