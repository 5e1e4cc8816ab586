package pgo

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"
)

// renderFixture builds a small two-robot graph with an inlier loop
// closure, an excluded one, and a separator, so every edge style has
// something to draw.
func renderFixture(t *testing.T) *PCM[PoseWithCovariance[Pose2]] {
	t.Helper()
	p := NewPCM[PoseWithCovariance[Pose2]](0, 25, nil)
	buildChain(t, p, 20)

	lcs := []struct {
		i, j Key
		meas PoseWithCovariance[Pose2]
	}{
		{K('a', 0), K('a', 10), lcBelief(10, 20, 0)},
		{K('a', 3), K('a', 15), lcBelief(12, 20, 0)},
		{K('a', 2), K('a', 17), lcBelief(15, -20, 0)},
	}
	for _, lc := range lcs {
		ok, err := p.ProcessLoopClosure(lc.i, lc.j, lc.meas)
		if err != nil || !ok {
			t.Fatalf("ProcessLoopClosure %v-%v: ok=%v err=%v", lc.i, lc.j, ok, err)
		}
	}

	ok, err := p.ProcessSeparator(K('a', 0), K('b', 0), lcBelief(0, 5, 0))
	if err != nil || !ok {
		t.Fatalf("ProcessSeparator: ok=%v err=%v", ok, err)
	}
	ok, err = p.ProcessOdometry(K('b', 0), K('b', 1), exactBelief(1, 0, 0))
	if err != nil || !ok {
		t.Fatalf("ProcessOdometry b: ok=%v err=%v", ok, err)
	}
	return p
}

func renderRobots() []RobotConfig {
	return []RobotConfig{
		{ID: "a", Color: "#FF0000"},
		{ID: "b", Color: "#00FF00"},
	}
}

func TestGraphRendererRenderToSVG(t *testing.T) {
	p := renderFixture(t)
	r := NewGraphRenderer(p, renderRobots(), RenderConfig{GridSpacing: 5})

	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf); err != nil {
		t.Fatalf("RenderToSVG: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("SVG output is empty")
	}
	if !bytes.Contains(buf.Bytes(), []byte("<svg")) {
		t.Error("output does not contain <svg tag")
	}
	if !bytes.Contains(buf.Bytes(), []byte("path")) {
		t.Error("output does not contain path elements")
	}
}

func TestGraphRendererRenderToPNG(t *testing.T) {
	p := renderFixture(t)
	r := NewGraphRenderer(p, renderRobots(), RenderConfig{})

	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf); err != nil {
		t.Fatalf("RenderToPNG: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("PNG output is empty")
	}

	img, err := png.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decoding PNG output: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		t.Errorf("decoded PNG has empty bounds: %v", bounds)
	}
}

func TestGraphRendererEmptyFilter(t *testing.T) {
	p := NewPCM[PoseWithCovariance[Pose2]](10, 10, nil)
	r := NewGraphRenderer(p, nil, RenderConfig{})

	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf); err == nil {
		t.Error("RenderToSVG with no nodes succeeded, want error")
	}
	if err := r.RenderToPNG(&buf); err == nil {
		t.Error("RenderToPNG with no nodes succeeded, want error")
	}
}

func TestNewGraphRendererDefaults(t *testing.T) {
	p := NewPCM[PoseWithCovariance[Pose2]](10, 10, nil)

	r := NewGraphRenderer(p, nil, RenderConfig{})
	if r.Scale != 1.0 {
		t.Errorf("Scale = %g, want default 1.0", r.Scale)
	}
	if r.Padding != 20.0 {
		t.Errorf("Padding = %g, want 20.0", r.Padding)
	}

	r = NewGraphRenderer(p, nil, RenderConfig{Scale: 4})
	if r.Scale != 4 {
		t.Errorf("Scale = %g, want 4 from config", r.Scale)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		name string
		hex  string
		want color.RGBA
	}{
		{"with hash", "#FF0000", color.RGBA{255, 0, 0, 255}},
		{"without hash", "00FF00", color.RGBA{0, 255, 0, 255}},
		{"lowercase", "#00ff88", color.RGBA{0, 255, 136, 255}},
		{"empty falls back", "", color.RGBA{0, 0, 139, 255}},
		{"wrong length falls back", "#FFF", color.RGBA{0, 0, 139, 255}},
		{"non-hex falls back", "#GGHHII", color.RGBA{0, 0, 139, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseHexColor(tt.hex); got != tt.want {
				t.Errorf("parseHexColor(%q) = %v, want %v", tt.hex, got, tt.want)
			}
		})
	}
}
