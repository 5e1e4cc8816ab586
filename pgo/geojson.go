package pgo

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// PlanarBelief is a belief whose pose can be projected to the plane for
// export and rendering. Both belief models satisfy it.
type PlanarBelief[B any] interface {
	Belief[B]
	XY() (float64, float64)
}

// ExportGeoJSON serializes the accepted graph as a GeoJSON
// FeatureCollection: one LineString per robot trajectory, one Point per
// node, one LineString per loop-closure candidate (tagged inlier or
// outlier), one LineString per separator edge, and a convex-hull
// footprint polygon per robot. Coordinates are world units, not
// lon/lat.
func ExportGeoJSON[B PlanarBelief[B]](p *PCM[B], robots []RobotConfig) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, robot := range p.Robots() {
		traj := p.Trajectory(robot)
		if traj == nil || traj.Len() == 0 {
			continue
		}

		line := make(orb.LineString, 0, traj.Len())
		for _, key := range traj.Keys() {
			belief, err := traj.Pose(key)
			if err != nil {
				continue
			}
			x, y := belief.XY()
			line = append(line, orb.Point{x, y})

			pt := geojson.NewFeature(orb.Point{x, y})
			pt.Properties["kind"] = "node"
			pt.Properties["robot"] = string(robot)
			pt.Properties["key"] = key.String()
			fc.Append(pt)
		}

		f := geojson.NewFeature(line)
		f.Properties["kind"] = "trajectory"
		f.Properties["robot"] = string(robot)
		f.Properties["nodes"] = traj.Len()
		if color := robotColor(robots, robot); color != "" {
			f.Properties["color"] = color
		}
		fc.Append(f)

		if hull := trajectoryFootprint(line); hull != nil {
			ff := geojson.NewFeature(hull)
			ff.Properties["kind"] = "footprint"
			ff.Properties["robot"] = string(robot)
			ff.Properties["area"] = planar.Area(hull)
			fc.Append(ff)
		}
	}

	inlier := make(map[[2]Key]bool)
	for _, t := range p.Inliers() {
		inlier[[2]Key{t.I, t.J}] = true
	}
	for _, t := range p.LoopClosures() {
		f := edgeFeature(p, t.I, t.J)
		if f == nil {
			continue
		}
		f.Properties["kind"] = "loop_closure"
		f.Properties["inlier"] = inlier[[2]Key{t.I, t.J}]
		fc.Append(f)
	}

	for _, t := range p.Separators() {
		f := edgeFeature(p, t.I, t.J)
		if f == nil {
			continue
		}
		f.Properties["kind"] = "separator"
		fc.Append(f)
	}

	return fc
}

// edgeFeature builds a two-point LineString between the current estimates
// of two graph nodes. Returns nil if either endpoint is unknown.
func edgeFeature[B PlanarBelief[B]](p *PCM[B], i, j Key) *geojson.Feature {
	pi, oki := nodePosition(p, i)
	pj, okj := nodePosition(p, j)
	if !oki || !okj {
		return nil
	}
	f := geojson.NewFeature(orb.LineString{pi, pj})
	f.Properties["from"] = i.String()
	f.Properties["to"] = j.String()
	return f
}

func nodePosition[B PlanarBelief[B]](p *PCM[B], id Key) (orb.Point, bool) {
	traj := p.Trajectory(id.Robot)
	if traj == nil {
		return orb.Point{}, false
	}
	belief, err := traj.Pose(id)
	if err != nil {
		return orb.Point{}, false
	}
	x, y := belief.XY()
	return orb.Point{x, y}, true
}

// trajectoryFootprint returns the closed convex hull of a trajectory's
// node positions, or nil when the trajectory spans fewer than 3 distinct
// points.
func trajectoryFootprint(points []orb.Point) orb.Polygon {
	if len(points) < 3 {
		return nil
	}
	hull := convexHull(points)
	if len(hull) < 3 {
		return nil
	}
	// Close the ring
	if hull[0] != hull[len(hull)-1] {
		hull = append(hull, hull[0])
	}
	return orb.Polygon{orb.Ring(hull)}
}

// convexHull computes the convex hull of a set of 2D points using the
// Andrew monotone chain algorithm.
func convexHull(points []orb.Point) []orb.Point {
	if len(points) < 3 {
		result := make([]orb.Point, len(points))
		copy(result, points)
		return result
	}

	// Sort by x, then y
	sorted := make([]orb.Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i][0] != sorted[j][0] {
			return sorted[i][0] < sorted[j][0]
		}
		return sorted[i][1] < sorted[j][1]
	})

	// cross returns the cross product of vectors OA and OB where O is origin
	cross := func(o, a, b orb.Point) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}

	n := len(sorted)
	hull := make([]orb.Point, 0, 2*n)

	// Lower hull
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// Upper hull
	lower := len(hull) + 1
	for i := n - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// Remove last point (duplicate of first)
	return hull[:len(hull)-1]
}

func robotColor(robots []RobotConfig, tag rune) string {
	for _, r := range robots {
		if t, err := r.RobotTag(); err == nil && t == tag {
			return r.Color
		}
	}
	return ""
}
