// Package canvas provides a raster drawing surface with a saved-state stack,
// affine transforms and anti-aliased polygon clipping.
package canvas

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/andresmejia3/mimic/internal/geom"
	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

type state struct {
	transform geom.Affine
	// clip is nil when nothing is clipped. An empty Rect clips everything.
	clip *image.Alpha
}

// Surface is a mutable RGBA destination. It is not safe for concurrent use.
type Surface struct {
	img    *image.RGBA
	cur    state
	stack  []state
	interp draw.Interpolator
}

// New allocates a transparent surface of the given size.
func New(width, height int) *Surface {
	return FromRGBA(image.NewRGBA(image.Rect(0, 0, width, height)))
}

// FromRGBA wraps an existing image. Drawing writes straight into img.Pix.
func FromRGBA(img *image.RGBA) *Surface {
	return &Surface{
		img:    img,
		cur:    state{transform: geom.Identity()},
		interp: draw.BiLinear,
	}
}

// Image returns the backing image.
func (s *Surface) Image() *image.RGBA { return s.img }

// Bounds returns the backing image bounds.
func (s *Surface) Bounds() image.Rectangle { return s.img.Rect }

// SetInterpolator selects the resampling kernel used by DrawImage.
func (s *Surface) SetInterpolator(i draw.Interpolator) {
	if i != nil {
		s.interp = i
	}
}

// Depth returns the number of saved states.
func (s *Surface) Depth() int { return len(s.stack) }

// Save pushes the current transform and clip.
func (s *Surface) Save() {
	s.stack = append(s.stack, s.cur)
}

// Restore pops the most recently saved transform and clip.
// Restoring with nothing saved is a no-op.
func (s *Surface) Restore() {
	if len(s.stack) == 0 {
		return
	}
	s.cur = s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
}

// Reset drops every saved state, the clip and the transform.
func (s *Surface) Reset() {
	s.stack = s.stack[:0]
	s.cur = state{transform: geom.Identity()}
}

// Transform returns the current transform.
func (s *Surface) Transform() geom.Affine { return s.cur.transform }

// SetTransform replaces the current transform.
func (s *Surface) SetTransform(m geom.Affine) { s.cur.transform = m }

// Concat composes m onto the current transform: m is applied to drawn content first.
func (s *Surface) Concat(m geom.Affine) {
	s.cur.transform = s.cur.transform.Multiply(m)
}

// Clip returns the current clip mask, or nil when unclipped.
func (s *Surface) Clip() *image.Alpha { return s.cur.clip }

// ClipTriangle intersects the current clip with the triangle (p0, p1, p2),
// expressed in the current transform's coordinate space.
func (s *Surface) ClipTriangle(p0, p1, p2 geom.Point) {
	m := s.cur.transform
	mask := polygonMask(s.img.Rect, m.Apply(p0), m.Apply(p1), m.Apply(p2))
	s.cur.clip = intersect(s.cur.clip, mask)
}

// Clear makes every pixel transparent. It ignores the transform and clip.
func (s *Surface) Clear() {
	clear(s.img.Pix)
}

// Fill paints c over the clipped region, or the whole surface when unclipped.
func (s *Surface) Fill(c color.Color) {
	src := image.NewUniform(c)
	if s.cur.clip == nil {
		draw.Draw(s.img, s.img.Rect, src, image.Point{}, draw.Over)
		return
	}
	r := s.cur.clip.Rect
	draw.DrawMask(s.img, r, src, image.Point{}, s.cur.clip, r.Min, draw.Over)
}

// DrawImage draws src through the current transform, limited to the current clip.
// Source pixel coordinates are mapped as-is, so src normally starts at (0, 0).
func (s *Surface) DrawImage(src image.Image) {
	dst := s.img
	var opts *draw.Options
	if clip := s.cur.clip; clip != nil {
		if clip.Rect.Empty() {
			return
		}
		// The mask is zero outside its rect, so drawing into the sub-image gives
		// the same pixels as drawing over the whole surface.
		dst = s.img.SubImage(clip.Rect).(*image.RGBA)
		opts = &draw.Options{DstMask: clip}
	}

	m := s.cur.transform
	if m.IsIdentity() && opts == nil {
		draw.Draw(dst, dst.Rect, src, dst.Rect.Min, draw.Over)
		return
	}
	s.interp.Transform(dst, m.Aff3(), src, src.Bounds(), draw.Over, opts)
}

// polygonMask rasterizes a closed polygon into an anti-aliased alpha mask
// covering the polygon's pixel bounding box, clipped to bounds.
func polygonMask(bounds image.Rectangle, pts ...geom.Point) *image.Alpha {
	lo, hi := geom.Bounds(pts...)
	r := image.Rect(
		int(math.Floor(lo.X)), int(math.Floor(lo.Y)),
		int(math.Ceil(hi.X)), int(math.Ceil(hi.Y)),
	).Intersect(bounds)
	if r.Empty() {
		return &image.Alpha{}
	}

	z := vector.NewRasterizer(r.Dx(), r.Dy())
	ox, oy := float64(r.Min.X), float64(r.Min.Y)
	z.MoveTo(float32(pts[0].X-ox), float32(pts[0].Y-oy))
	for _, p := range pts[1:] {
		z.LineTo(float32(p.X-ox), float32(p.Y-oy))
	}
	z.ClosePath()

	mask := image.NewAlpha(r)
	z.Draw(mask, r, image.Opaque, image.Point{})
	return mask
}

// intersect multiplies two clip masks over the overlap of their rects.
func intersect(a, b *image.Alpha) *image.Alpha {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	r := a.Rect.Intersect(b.Rect)
	if r.Empty() {
		return &image.Alpha{}
	}
	out := image.NewAlpha(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			av := uint32(a.Pix[a.PixOffset(x, y)])
			bv := uint32(b.Pix[b.PixOffset(x, y)])
			out.Pix[out.PixOffset(x, y)] = uint8((av*bv + 127) / 255)
		}
	}
	return out
}

// ParseInterpolator maps a kernel name to a golang.org/x/image/draw interpolator.
func ParseInterpolator(name string) (draw.Interpolator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bilinear":
		return draw.BiLinear, nil
	case "nearest", "nearestneighbor":
		return draw.NearestNeighbor, nil
	case "approx", "approxbilinear":
		return draw.ApproxBiLinear, nil
	case "catmullrom", "bicubic":
		return draw.CatmullRom, nil
	default:
		return nil, fmt.Errorf("unknown interpolation '%s'. Must be one of: nearest, approx, bilinear, catmullrom", name)
	}
}
