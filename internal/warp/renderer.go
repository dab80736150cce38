// Package warp drives the per-frame piecewise affine warp of a source photo onto
// a destination surface, one Delaunay triangle at a time.
package warp

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/andresmejia3/mimic/internal/canvas"
	"github.com/andresmejia3/mimic/internal/geom"
	"github.com/andresmejia3/mimic/internal/landmark"
	"golang.org/x/image/draw"
)

var (
	// ErrIndexMismatch is a tracker contract violation: source and destination
	// landmark sets must have the same size.
	ErrIndexMismatch = errors.New("source and destination landmark counts differ")
	// ErrBusy is returned when Render is entered while a pass is still running.
	ErrBusy = errors.New("render already in progress")
)

// Status reports what a render pass did with the destination surface.
type Status int

const (
	// StatusNoSource means no photo is loaded. The surface is untouched.
	StatusNoSource Status = iota
	// StatusNoFace means the live frame has no face. The surface is untouched.
	StatusNoFace
	// StatusRendered means the surface was cleared and every usable triangle drawn.
	StatusRendered
)

func (s Status) String() string {
	switch s {
	case StatusNoSource:
		return "no-source"
	case StatusNoFace:
		return "no-face"
	case StatusRendered:
		return "rendered"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result summarizes one render pass.
type Result struct {
	Status     Status
	Drawn      int
	Degenerate int
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithInterpolator sets the resampling kernel used to draw source pixels.
func WithInterpolator(i draw.Interpolator) Option {
	return func(r *Renderer) {
		if i != nil {
			r.interp = i
		}
	}
}

// WithDebugf routes per-triangle diagnostics to logf.
func WithDebugf(logf func(format string, args ...any)) Option {
	return func(r *Renderer) {
		if logf != nil {
			r.debugf = logf
		}
	}
}

// Renderer owns the current Source and warps it onto destination surfaces.
// The Source can be swapped from any goroutine; a pass sees either the old or
// the new Source, never a mix of both.
type Renderer struct {
	source atomic.Pointer[Source]
	busy   atomic.Bool
	interp draw.Interpolator
	debugf func(format string, args ...any)
}

// NewRenderer creates a Renderer with no Source loaded.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		interp: draw.BiLinear,
		debugf: func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetSource installs src for subsequent passes. A nil src clears the Source.
func (r *Renderer) SetSource(src *Source) {
	r.source.Store(src)
}

// ClearSource drops the current Source.
func (r *Renderer) ClearSource() {
	r.source.Store(nil)
}

// Source returns the currently installed Source, or nil.
func (r *Renderer) Source() *Source {
	return r.source.Load()
}

// Render warps the current Source onto dst so that its landmarks land on live.
//
// A nil live set means the frame has no face. ErrIndexMismatch is returned when
// live and the Source disagree on landmark count, and ErrBusy on re-entrance.
func (r *Renderer) Render(dst *canvas.Surface, live *landmark.PointSet) (Result, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer r.busy.Store(false)

	src := r.source.Load()
	if src == nil {
		return Result{Status: StatusNoSource}, nil
	}
	if live == nil {
		return Result{Status: StatusNoFace}, nil
	}
	if live.Len() != src.points.Len() {
		return Result{}, fmt.Errorf("%w: source has %d, live frame has %d", ErrIndexMismatch, src.points.Len(), live.Len())
	}

	dst.Clear()
	dst.SetInterpolator(r.interp)

	res := Result{Status: StatusRendered}
	for k, t := range src.tris {
		s := [3]geom.Point{src.points.At(t.I0), src.points.At(t.I1), src.points.At(t.I2)}
		d := [3]geom.Point{live.At(t.I0), live.At(t.I1), live.At(t.I2)}

		m, err := geom.SolveAffine(s, d)
		if err != nil {
			res.Degenerate++
			r.debugf("triangle %d %v skipped: %v", k, t.Indices(), err)
			continue
		}
		CompositeTriangle(dst, src.img, d, m)
		res.Drawn++
	}
	return res, nil
}

// CompositeTriangle draws img into dst through m, clipped to the destination
// triangle tri. The surface state is restored on return.
func CompositeTriangle(dst *canvas.Surface, img image.Image, tri [3]geom.Point, m geom.Affine) {
	dst.Save()
	defer dst.Restore()

	dst.ClipTriangle(tri[0], tri[1], tri[2])
	dst.Concat(m)
	dst.DrawImage(img)
}
