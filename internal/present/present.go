// Package present turns a camera frame and a warp pass into the frame a viewer sees.
package present

import (
	"fmt"
	"image"
	"image/color"

	"github.com/andresmejia3/mimic/internal/landmark"
	"github.com/andresmejia3/mimic/internal/triangulate"
	"github.com/andresmejia3/mimic/internal/warp"
	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
)

// Layout selects how the live frame and the warped photo share the output.
type Layout string

const (
	// LayoutSide puts the live frame on the left and the warped photo on the right.
	LayoutSide Layout = "side"
	// LayoutOverlay blends the warped photo over the live frame.
	LayoutOverlay Layout = "overlay"
	// LayoutWarp outputs the warped photo alone on black.
	LayoutWarp Layout = "warp"
)

// ParseLayout validates a layout name.
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case LayoutSide, LayoutOverlay, LayoutWarp:
		return Layout(s), nil
	default:
		return "", fmt.Errorf("invalid layout '%s'. Must be one of: side, overlay, warp", s)
	}
}

// Placeholder is drawn on the photo side when a face is tracked but no photo is loaded.
const Placeholder = "Upload a photo to animate ->"

const (
	sideBackdropAlpha = 0.22
	placeholderAlpha  = 0.35
	meshLineWidth     = 0.5
	contourLineWidth  = 1.0
)

// Options configures a Presenter.
type Options struct {
	Layout  Layout
	Opacity float64 // overlay layout only
	Mesh    bool
}

// Presenter composes output frames into a reused buffer.
// It is not safe for concurrent use.
type Presenter struct {
	opts Options
	buf  *image.RGBA

	// mesh triangulates the first live landmark set of a given size
	// and is reused for later frames with the same count.
	mesh  []triangulate.Triangle
	meshN int
}

// New creates a Presenter. An empty layout falls back to side-by-side.
func New(opts Options) *Presenter {
	if opts.Layout == "" {
		opts.Layout = LayoutSide
	}
	if opts.Opacity < 0 {
		opts.Opacity = 0
	}
	if opts.Opacity > 1 {
		opts.Opacity = 1
	}
	return &Presenter{opts: opts}
}

// Layout returns the configured layout.
func (p *Presenter) Layout() Layout { return p.opts.Layout }

// OutputSize returns the composed frame size for a width x height camera frame.
func (p *Presenter) OutputSize(width, height int) (int, int) {
	if p.opts.Layout == LayoutSide {
		return width * 2, height
	}
	return width, height
}

// Frame bundles what one output frame is built from.
type Frame struct {
	// Live is the camera frame.
	Live *image.RGBA
	// Warped is the render surface, the same size as Live.
	Warped *image.RGBA
	// Points are the tracked live landmarks, nil when no face was found.
	Points *landmark.PointSet
	// Triangles index Points for the mesh overlay. When empty the
	// Presenter triangulates the live landmarks once and reuses that.
	Triangles []triangulate.Triangle
	// Result is what the renderer did with Warped.
	Result warp.Result
}

// Compose draws f according to the layout. The returned image is owned by the
// Presenter and overwritten by the next call.
func (p *Presenter) Compose(f Frame) *image.RGBA {
	lb := f.Live.Bounds()
	w, h := lb.Dx(), lb.Dy()
	ow, oh := p.OutputSize(w, h)
	p.reset(ow, oh)

	dc := gg.NewContextForRGBA(p.buf)
	left := image.Rect(0, 0, w, h)
	rendered := f.Result.Status == warp.StatusRendered && f.Warped != nil

	switch p.opts.Layout {
	case LayoutWarp:
		draw.Draw(p.buf, left, image.Black, image.Point{}, draw.Src)
		if rendered {
			draw.Draw(p.buf, left, f.Warped, f.Warped.Bounds().Min, draw.Over)
		}

	case LayoutOverlay:
		draw.Draw(p.buf, left, f.Live, lb.Min, draw.Src)
		if p.opts.Mesh {
			p.drawMesh(dc, f.Points, f.Triangles)
		}
		if rendered {
			alpha := image.NewUniform(color.Alpha{A: uint8(p.opts.Opacity*255 + 0.5)})
			draw.DrawMask(p.buf, left, f.Warped, f.Warped.Bounds().Min, alpha, image.Point{}, draw.Over)
		}

	default:
		draw.Draw(p.buf, left, f.Live, lb.Min, draw.Src)
		if p.opts.Mesh {
			p.drawMesh(dc, f.Points, f.Triangles)
		}
		right := image.Rect(w, 0, 2*w, h)
		switch {
		case rendered:
			dc.DrawRectangle(float64(w), 0, float64(w), float64(h))
			dc.SetRGBA(0, 0, 0, sideBackdropAlpha)
			dc.Fill()
			draw.Draw(p.buf, right, f.Warped, f.Warped.Bounds().Min, draw.Over)
		case f.Result.Status == warp.StatusNoSource && f.Points != nil:
			dc.DrawRectangle(float64(w), 0, float64(w), float64(h))
			dc.SetRGBA(0, 0, 0, placeholderAlpha)
			dc.Fill()
			dc.SetHexColor("#e7eef7")
			dc.DrawString(Placeholder, float64(w)+20, 40)
		}
	}
	return p.buf
}

// reset makes the buffer ow x oh and fully transparent.
func (p *Presenter) reset(ow, oh int) {
	if p.buf == nil || p.buf.Rect.Dx() != ow || p.buf.Rect.Dy() != oh {
		p.buf = image.NewRGBA(image.Rect(0, 0, ow, oh))
		return
	}
	clear(p.buf.Pix)
}

// drawMesh strokes the triangulation wireframe and the feature contours.
func (p *Presenter) drawMesh(dc *gg.Context, pts *landmark.PointSet, tris []triangulate.Triangle) {
	if pts == nil || pts.Len() < 3 {
		return
	}
	if len(tris) == 0 {
		tris = p.liveMesh(pts)
	}

	dc.SetRGB(1, 1, 1)
	dc.SetLineWidth(meshLineWidth)
	for _, t := range tris {
		if t.I0 >= pts.Len() || t.I1 >= pts.Len() || t.I2 >= pts.Len() {
			continue
		}
		p0, p1, p2 := pts.At(t.I0), pts.At(t.I1), pts.At(t.I2)
		dc.MoveTo(p0.X, p0.Y)
		dc.LineTo(p1.X, p1.Y)
		dc.LineTo(p2.X, p2.Y)
		dc.ClosePath()
	}
	dc.Stroke()

	if !landmark.ValidCount(pts.Len()) {
		return
	}
	dc.SetLineWidth(contourLineWidth)
	for _, contour := range landmark.Contours {
		for i, idx := range contour {
			pt := pts.At(idx)
			if i == 0 {
				dc.MoveTo(pt.X, pt.Y)
			} else {
				dc.LineTo(pt.X, pt.Y)
			}
		}
		dc.ClosePath()
	}
	dc.Stroke()
}

// liveMesh returns the cached wireframe for pts, triangulating only when the
// landmark count changes.
func (p *Presenter) liveMesh(pts *landmark.PointSet) []triangulate.Triangle {
	if p.meshN == pts.Len() {
		return p.mesh
	}
	tris, err := triangulate.Delaunay(pts.Points())
	if err != nil {
		tris = nil
	}
	p.mesh, p.meshN = tris, pts.Len()
	return tris
}
