package geom

import (
	"errors"
	"math"

	"golang.org/x/image/math/f64"
)

// Epsilon is the smallest absolute determinant (in px²) a source triangle may have
// before it is treated as degenerate.
const Epsilon = 1e-6

// ErrDegenerateTriangle is returned when the source triangle has (near) zero area,
// so no affine map from it exists.
var ErrDegenerateTriangle = errors.New("degenerate triangle")

// Point is an absolute pixel position.
type Point struct {
	X, Y float64
}

// Affine maps (x, y) to (A*x + C*y + E, B*x + D*y + F).
// The field order follows the 2D canvas setTransform(a, b, c, d, e, f) convention.
type Affine struct {
	A, B, C, D, E, F float64
}

// Identity returns the affine map that leaves every point unchanged.
func Identity() Affine {
	return Affine{A: 1, D: 1}
}

// Apply maps p through m.
func (m Affine) Apply(p Point) Point {
	return Point{
		X: m.A*p.X + m.C*p.Y + m.E,
		Y: m.B*p.X + m.D*p.Y + m.F,
	}
}

// Multiply returns the composition m∘o: the result applies o first, then m.
func (m Affine) Multiply(o Affine) Affine {
	return Affine{
		A: m.A*o.A + m.C*o.B,
		B: m.B*o.A + m.D*o.B,
		C: m.A*o.C + m.C*o.D,
		D: m.B*o.C + m.D*o.D,
		E: m.A*o.E + m.C*o.F + m.E,
		F: m.B*o.E + m.D*o.F + m.F,
	}
}

// Aff3 converts m to the row-major matrix used by golang.org/x/image/draw.
func (m Affine) Aff3() f64.Aff3 {
	return f64.Aff3{m.A, m.C, m.E, m.B, m.D, m.F}
}

// IsIdentity reports whether m is exactly the identity.
func (m Affine) IsIdentity() bool {
	return m == Identity()
}

// Det returns twice the signed area of the triangle (p0, p1, p2).
func Det(p0, p1, p2 Point) float64 {
	return p0.X*(p1.Y-p2.Y) + p1.X*(p2.Y-p0.Y) + p2.X*(p0.Y-p1.Y)
}

// SolveAffine computes the unique affine map sending src[i] to dst[i] for i = 0, 1, 2.
//
// The 3x3 homogeneous source matrix is inverted in closed form and the six
// coefficients fall out of one pass over the destination coordinates.
// ErrDegenerateTriangle is returned when |det| < Epsilon.
func SolveAffine(src, dst [3]Point) (Affine, error) {
	x0, y0 := src[0].X, src[0].Y
	x1, y1 := src[1].X, src[1].Y
	x2, y2 := src[2].X, src[2].Y

	det := Det(src[0], src[1], src[2])
	if math.Abs(det) < Epsilon || math.IsNaN(det) {
		return Affine{}, ErrDegenerateTriangle
	}
	inv := 1 / det

	// Rows of the inverse, one per output coefficient group.
	r0 := [3]float64{(y1 - y2) * inv, (y2 - y0) * inv, (y0 - y1) * inv}
	r1 := [3]float64{(x2 - x1) * inv, (x0 - x2) * inv, (x1 - x0) * inv}
	r2 := [3]float64{(x1*y2 - x2*y1) * inv, (x2*y0 - x0*y2) * inv, (x0*y1 - x1*y0) * inv}

	u := [3]float64{dst[0].X, dst[1].X, dst[2].X}
	v := [3]float64{dst[0].Y, dst[1].Y, dst[2].Y}

	dot := func(r, w [3]float64) float64 {
		return r[0]*w[0] + r[1]*w[1] + r[2]*w[2]
	}

	return Affine{
		A: dot(r0, u),
		B: dot(r0, v),
		C: dot(r1, u),
		D: dot(r1, v),
		E: dot(r2, u),
		F: dot(r2, v),
	}, nil
}

// Bounds returns the axis-aligned bounding box of pts as (min, max).
func Bounds(pts ...Point) (Point, Point) {
	if len(pts) == 0 {
		return Point{}, Point{}
	}
	lo, hi := pts[0], pts[0]
	for _, p := range pts[1:] {
		lo.X = math.Min(lo.X, p.X)
		lo.Y = math.Min(lo.Y, p.Y)
		hi.X = math.Max(hi.X, p.X)
		hi.Y = math.Max(hi.Y, p.Y)
	}
	return lo, hi
}
