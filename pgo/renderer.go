package pgo

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// GraphRenderer draws the filtered pose graph as vector graphics:
// one polyline per robot trajectory, discs at nodes, solid lines for
// inlier loop closures and dashed lines for rejected ones, dotted
// separator edges, and an optional background grid.
type GraphRenderer[B PlanarBelief[B]] struct {
	Filter      *PCM[B]
	Robots      []RobotConfig
	Scale       float64           // world-unit multiplier applied before layout
	Padding     float64           // padding in scaled world units
	Resolution  canvas.Resolution // resolution for PNG output
	GridSpacing float64           // grid line spacing in scaled world units; 0 disables
	NodeRadius  float64
}

// NewGraphRenderer creates a renderer with defaults taken from the
// render config section.
func NewGraphRenderer[B PlanarBelief[B]](filter *PCM[B], robots []RobotConfig, cfg RenderConfig) *GraphRenderer[B] {
	scale := cfg.Scale
	if scale <= 0 {
		scale = 1.0
	}
	return &GraphRenderer[B]{
		Filter:      filter,
		Robots:      robots,
		Scale:       scale,
		Padding:     20.0,
		Resolution:  canvas.DPI(150),
		GridSpacing: cfg.GridSpacing,
		NodeRadius:  2.0,
	}
}

// canvasRenderer is the surface both the svg and rasterizer renderers expose.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the graph as an SVG to the provided writer.
func (r *GraphRenderer[B]) RenderToSVG(w io.Writer) error {
	minX, minY, maxX, maxY, err := r.worldBounds()
	if err != nil {
		return err
	}

	width := (maxX-minX)*r.Scale + 2*r.Padding
	height := (maxY-minY)*r.Scale + 2*r.Padding

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, minX, minY, maxX, maxY, width, height)

	return svgRenderer.Close()
}

// RenderToPNG writes the graph as a PNG to the provided writer.
func (r *GraphRenderer[B]) RenderToPNG(w io.Writer) error {
	minX, minY, maxX, maxY, err := r.worldBounds()
	if err != nil {
		return err
	}

	width := (maxX-minX)*r.Scale + 2*r.Padding
	height := (maxY-minY)*r.Scale + 2*r.Padding

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, minX, minY, maxX, maxY, width, height)
	r.drawRobotLabels(rast, minX, minY, height)

	return png.Encode(w, rast)
}

// drawRobotLabels writes each robot's tag next to its first trajectory
// node, directly on the raster. SVG output stays label-free.
func (r *GraphRenderer[B]) drawRobotLabels(rast *rasterizer.Rasterizer, minX, minY, height float64) {
	dpmm := r.Resolution.DPMM()

	for _, robot := range r.Filter.Robots() {
		traj := r.Filter.Trajectory(robot)
		if traj == nil || traj.Len() == 0 {
			continue
		}
		keys := traj.Keys()
		belief, err := traj.Pose(keys[0])
		if err != nil {
			continue
		}
		x, y := belief.XY()
		cx := (x-minX)*r.Scale + r.Padding
		cy := (y-minY)*r.Scale + r.Padding

		// Canvas coordinates point up, image pixels down
		px := int(cx * dpmm)
		py := int((height - cy) * dpmm)

		d := &font.Drawer{
			Dst:  rast,
			Src:  image.NewUniform(parseHexColor(robotColor(r.Robots, robot))),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(px+6, py-6),
		}
		d.DrawString(string(robot))
	}
}

// renderToCanvas draws the graph onto a canvas renderer (shared between
// SVG and PNG output).
func (r *GraphRenderer[B]) renderToCanvas(renderer canvasRenderer, minX, minY, maxX, maxY, width, height float64) {
	// White background
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(x, y float64) (float64, float64) {
		return (x-minX)*r.Scale + r.Padding, (y-minY)*r.Scale + r.Padding
	}

	// Grid first so everything else draws on top of it
	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		gridStyle.StrokeWidth = 0.5
		gridStyle.Dashes = []float64{2.0, 2.0}

		step := r.GridSpacing / r.Scale
		for x := math.Floor(minX/step) * step; x <= maxX; x += step {
			gridPath := &canvas.Path{}
			x1, y1 := toCanvas(x, minY)
			x2, y2 := toCanvas(x, maxY)
			gridPath.MoveTo(x1, y1)
			gridPath.LineTo(x2, y2)
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}
		for y := math.Floor(minY/step) * step; y <= maxY; y += step {
			gridPath := &canvas.Path{}
			x1, y1 := toCanvas(minX, y)
			x2, y2 := toCanvas(maxX, y)
			gridPath.MoveTo(x1, y1)
			gridPath.LineTo(x2, y2)
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}
	}

	// Rejected loop closures, dashed red, under everything else
	outlierStyle := canvas.DefaultStyle
	outlierStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	outlierStyle.Stroke = canvas.Paint{Color: color.RGBA{200, 60, 60, 255}}
	outlierStyle.StrokeWidth = 0.8
	outlierStyle.Dashes = []float64{3.0, 3.0}
	for _, t := range r.Filter.Outliers() {
		r.renderEdge(renderer, t, outlierStyle, toCanvas)
	}

	// Inlier loop closures, solid green
	inlierStyle := canvas.DefaultStyle
	inlierStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	inlierStyle.Stroke = canvas.Paint{Color: color.RGBA{40, 140, 40, 255}}
	inlierStyle.StrokeWidth = 1.0
	for _, t := range r.Filter.Inliers() {
		r.renderEdge(renderer, t, inlierStyle, toCanvas)
	}

	// Separator edges, dotted gray
	sepStyle := canvas.DefaultStyle
	sepStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	sepStyle.Stroke = canvas.Paint{Color: color.RGBA{90, 90, 90, 255}}
	sepStyle.StrokeWidth = 0.8
	sepStyle.Dashes = []float64{1.0, 2.0}
	for _, t := range r.Filter.Separators() {
		r.renderEdge(renderer, t, sepStyle, toCanvas)
	}

	// Trajectories and nodes, one color per robot
	for _, robot := range r.Filter.Robots() {
		traj := r.Filter.Trajectory(robot)
		if traj == nil || traj.Len() == 0 {
			continue
		}
		rc := parseHexColor(robotColor(r.Robots, robot))

		trajStyle := canvas.DefaultStyle
		trajStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		trajStyle.Stroke = canvas.Paint{Color: rc}
		trajStyle.StrokeWidth = 1.2

		trajPath := &canvas.Path{}
		first := true
		for _, key := range traj.Keys() {
			belief, err := traj.Pose(key)
			if err != nil {
				continue
			}
			x, y := belief.XY()
			cx, cy := toCanvas(x, y)
			if first {
				trajPath.MoveTo(cx, cy)
				first = false
			} else {
				trajPath.LineTo(cx, cy)
			}
		}
		renderer.RenderPath(trajPath, trajStyle, canvas.Identity)

		nodeStyle := canvas.DefaultStyle
		nodeStyle.Fill = canvas.Paint{Color: rc}
		nodeStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
		for _, key := range traj.Keys() {
			belief, err := traj.Pose(key)
			if err != nil {
				continue
			}
			x, y := belief.XY()
			cx, cy := toCanvas(x, y)
			node := canvas.Circle(r.NodeRadius).Translate(cx, cy)
			renderer.RenderPath(node, nodeStyle, canvas.Identity)
		}
	}
}

// renderEdge draws a straight segment between the current estimates of an
// edge's endpoints. Edges with an unknown endpoint are skipped.
func (r *GraphRenderer[B]) renderEdge(renderer canvasRenderer, t Transform[B], style canvas.Style, toCanvas func(x, y float64) (float64, float64)) {
	pi, oki := nodePosition(r.Filter, t.I)
	pj, okj := nodePosition(r.Filter, t.J)
	if !oki || !okj {
		return
	}
	path := &canvas.Path{}
	x1, y1 := toCanvas(pi[0], pi[1])
	x2, y2 := toCanvas(pj[0], pj[1])
	path.MoveTo(x1, y1)
	path.LineTo(x2, y2)
	renderer.RenderPath(path, style, canvas.Identity)
}

// worldBounds computes the bounding box of every node estimate across all
// trajectories.
func (r *GraphRenderer[B]) worldBounds() (minX, minY, maxX, maxY float64, err error) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	seen := false

	for _, robot := range r.Filter.Robots() {
		traj := r.Filter.Trajectory(robot)
		if traj == nil {
			continue
		}
		for _, key := range traj.Keys() {
			belief, perr := traj.Pose(key)
			if perr != nil {
				continue
			}
			x, y := belief.XY()
			minX = math.Min(minX, x)
			minY = math.Min(minY, y)
			maxX = math.Max(maxX, x)
			maxY = math.Max(maxY, y)
			seen = true
		}
	}

	if !seen {
		return 0, 0, 0, 0, fmt.Errorf("no trajectory nodes to render")
	}
	return minX, minY, maxX, maxY, nil
}

// parseHexColor parses a "#rrggbb" hex string into an opaque RGBA color.
// Invalid or empty strings fall back to a dark blue.
func parseHexColor(hex string) color.RGBA {
	defaultColor := color.RGBA{0, 0, 139, 255}

	if len(hex) == 0 {
		return defaultColor
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return defaultColor
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return defaultColor
	}
	return color.RGBA{r, g, b, 255}
}
