// Package overlay draws the tracking overlay: camera image, skeletons and
// the measured joint angle arc.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/claude/romkiosk/internal/models"
	"github.com/claude/romkiosk/internal/tracking"
)

var (
	liveColor   = color.RGBA{G: 255, A: 255}
	jointColor  = color.RGBA{R: 255, A: 255}
	savedColor  = color.RGBA{B: 255, A: 255}
	arcColor    = color.RGBA{R: 255, G: 255, A: 255}
	background  = color.RGBA{R: 16, G: 16, B: 16, A: 255}
	arcFraction = 0.3
	textFactor  = 1.3
)

// Options configures a Renderer.
type Options struct {
	Width   int
	Height  int
	DevMode bool
}

// Renderer draws scenes onto an in-memory canvas and keeps the latest
// frame.
type Renderer struct {
	opts      Options
	angleFace font.Face
	infoFace  font.Face

	mu     sync.RWMutex
	latest *vgimg.Canvas
}

// New returns a Renderer for a canvas of the given pixel size.
func New(opts Options) (*Renderer, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("overlay: canvas size %dx%d is invalid", opts.Width, opts.Height)
	}
	sans := plot.DefaultFont
	sans.Variant = "Sans"
	return &Renderer{
		opts:      opts,
		angleFace: font.DefaultCache.Lookup(sans, vg.Points(16)),
		infoFace:  font.DefaultCache.Lookup(plot.DefaultFont, vg.Points(12)),
	}, nil
}

// Render implements tracking.Renderer.
func (r *Renderer) Render(s tracking.Scene) error {
	w, h := float64(r.opts.Width), float64(r.opts.Height)
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Points(w), vg.Points(h)),
		vgimg.UseDPI(72),
		vgimg.UseBackgroundColor(background),
	)

	if s.Image != nil {
		c.DrawImage(vg.Rectangle{Max: vg.Point{X: vg.Points(w), Y: vg.Points(h)}}, s.Image)
	}

	if r.opts.DevMode {
		r.drawSkeleton(c, s.Current, liveColor, jointColor)
		if s.Saved != nil {
			r.drawSkeleton(c, s.Saved, savedColor, savedColor)
		}
		c.SetColor(color.White)
		c.FillString(r.infoFace, vg.Point{X: 8, Y: vg.Points(h - 20)}, fmt.Sprintf("FPS: %.1f", s.FPS))
	}

	if s.AngleValid && s.Angle.Deg != 0 {
		r.drawAngle(c, s)
	}

	r.mu.Lock()
	r.latest = c
	r.mu.Unlock()
	return nil
}

// toCanvas maps a normalized landmark, y pointing down, to canvas points
// with y pointing up.
func (r *Renderer) toCanvas(x, y float64) vg.Point {
	return vg.Point{
		X: vg.Points(x * float64(r.opts.Width)),
		Y: vg.Points(float64(r.opts.Height) - y*float64(r.opts.Height)),
	}
}

func (r *Renderer) drawSkeleton(c *vgimg.Canvas, f models.Frame, line, joint color.Color) {
	if len(f) == 0 {
		return
	}
	c.SetColor(line)
	c.SetLineWidth(vg.Points(4))
	for _, edge := range models.PoseConnections {
		a, okA := f.At(edge[0])
		b, okB := f.At(edge[1])
		if !okA || !okB {
			continue
		}
		var p vg.Path
		p.Move(r.toCanvas(a.X, a.Y))
		p.Line(r.toCanvas(b.X, b.Y))
		c.Stroke(p)
	}

	c.SetColor(joint)
	for _, l := range f {
		var p vg.Path
		p.Arc(r.toCanvas(l.X, l.Y), vg.Points(3), 0, 2*math.Pi)
		p.Close()
		c.Fill(p)
	}
}

// drawAngle draws the arc from the reference vector to the live vector,
// an arrow head at its end and the angle label.
func (r *Renderer) drawAngle(c *vgimg.Canvas, s tracking.Scene) {
	pivot, ok := s.Current.At(s.Joint.Pivot)
	if !ok {
		return
	}
	center := r.toCanvas(pivot.X, pivot.Y)
	radius := s.Angle.ArcRadius(arcFraction) * float64(r.opts.Width)
	if radius <= 0 {
		return
	}

	// Angles are measured with y down; the canvas has y up.
	start := -s.Angle.StartRad
	sweep := -s.Angle.Sweep()

	c.SetColor(arcColor)
	c.SetLineWidth(vg.Points(2))
	var arc vg.Path
	arc.Arc(center, vg.Points(radius), start, sweep)
	c.Stroke(arc)

	end := start + sweep
	tip := vg.Point{
		X: center.X + vg.Points(radius*math.Cos(end)),
		Y: center.Y + vg.Points(radius*math.Sin(end)),
	}
	// Tangent in the direction of travel.
	dir := end + math.Copysign(math.Pi/2, sweep)
	const head = 8.0
	var arrow vg.Path
	arrow.Move(tip)
	arrow.Line(vg.Point{
		X: tip.X - vg.Points(head*math.Cos(dir-0.5)),
		Y: tip.Y - vg.Points(head*math.Sin(dir-0.5)),
	})
	arrow.Line(vg.Point{
		X: tip.X - vg.Points(head*math.Cos(dir+0.5)),
		Y: tip.Y - vg.Points(head*math.Sin(dir+0.5)),
	})
	arrow.Close()
	c.Fill(arrow)

	mid := start + sweep/2
	label := vg.Point{
		X: center.X + vg.Points(radius*textFactor*math.Cos(mid)),
		Y: center.Y + vg.Points(radius*textFactor*math.Sin(mid)),
	}
	c.FillString(r.angleFace, label, fmt.Sprintf("%d°", s.Angle.Deg))
}

// Latest returns the most recently rendered frame, or nil before the
// first render.
func (r *Renderer) Latest() image.Image {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return nil
	}
	return r.latest.Image()
}

// WritePNG encodes the latest frame. It reports false when nothing has
// been rendered yet.
func (r *Renderer) WritePNG(w io.Writer) (bool, error) {
	r.mu.RLock()
	c := r.latest
	r.mu.RUnlock()
	if c == nil {
		return false, nil
	}
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return true, fmt.Errorf("encoding overlay png: %w", err)
	}
	return true, nil
}
