// Package triangulate builds Delaunay triangulations over landmark positions.
package triangulate

import (
	"errors"
	"fmt"
	"math"

	"github.com/andresmejia3/mimic/internal/geom"
	"github.com/fogleman/delaunay"
)

var (
	// ErrTooFewPoints is returned for inputs with fewer than three points.
	ErrTooFewPoints = errors.New("triangulation needs at least 3 points")
	// ErrCollinear is returned when every input point lies on one line.
	ErrCollinear = errors.New("all points are collinear")
)

// MergeDistance is how close (in px) two points may be before the later one
// is treated as a duplicate of the earlier one.
const MergeDistance = 1e-6

// Triangle references three points of the shared landmark index space.
type Triangle struct {
	I0, I1, I2 int
}

// Indices returns the triangle's vertex indices in order.
func (t Triangle) Indices() [3]int {
	return [3]int{t.I0, t.I1, t.I2}
}

// Delaunay triangulates points with a sweep-hull Delaunay triangulation.
//
// Points closer than MergeDistance to an earlier point are skipped: their
// indices never appear in the output. Every triangle keeps the winding of the
// sweep, so the list partitions the convex hull of the input.
// The same input always yields the same triangle list.
func Delaunay(points []geom.Point) ([]Triangle, error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(points))
	}
	for i, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return nil, fmt.Errorf("point %d is not finite: %v", i, p)
		}
	}

	kept := distinct(points)
	if len(kept) < 3 {
		return nil, ErrCollinear
	}
	pts := make([]delaunay.Point, len(kept))
	for k, i := range kept {
		pts[k] = delaunay.Point{X: points[i].X, Y: points[i].Y}
	}

	tr, err := delaunay.Triangulate(pts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollinear, err)
	}
	if len(tr.Triangles) == 0 {
		return nil, ErrCollinear
	}

	out := make([]Triangle, 0, len(tr.Triangles)/3)
	for k := 0; k+2 < len(tr.Triangles); k += 3 {
		out = append(out, Triangle{
			I0: kept[tr.Triangles[k]],
			I1: kept[tr.Triangles[k+1]],
			I2: kept[tr.Triangles[k+2]],
		})
	}
	return out, nil
}

type cell struct{ x, y int64 }

// distinct returns the indices of points in order, dropping every point within
// MergeDistance of an earlier kept one.
func distinct(points []geom.Point) []int {
	buckets := make(map[cell][]int, len(points))
	kept := make([]int, 0, len(points))
	for i, p := range points {
		c := cell{int64(math.Floor(p.X / MergeDistance)), int64(math.Floor(p.Y / MergeDistance))}
		if near(points, buckets, c, p) {
			continue
		}
		buckets[c] = append(buckets[c], i)
		kept = append(kept, i)
	}
	return kept
}

func near(points []geom.Point, buckets map[cell][]int, c cell, p geom.Point) bool {
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, j := range buckets[cell{c.x + dx, c.y + dy}] {
				if math.Hypot(points[j].X-p.X, points[j].Y-p.Y) <= MergeDistance {
					return true
				}
			}
		}
	}
	return false
}
