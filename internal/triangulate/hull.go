package triangulate

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/andresmejia3/mimic/internal/geom"
)

// Validate checks that every triangle references n-bounded, pairwise distinct indices.
func Validate(tris []Triangle, n int) error {
	for k, t := range tris {
		idx := t.Indices()
		for _, i := range idx {
			if i < 0 || i >= n {
				return fmt.Errorf("triangle %d: index %d out of range [0,%d)", k, i, n)
			}
		}
		if idx[0] == idx[1] || idx[1] == idx[2] || idx[0] == idx[2] {
			return fmt.Errorf("triangle %d: repeated index %v", k, idx)
		}
	}
	return nil
}

// Area sums the unsigned areas of tris over points.
func Area(tris []Triangle, points []geom.Point) float64 {
	var total float64
	for _, t := range tris {
		total += math.Abs(geom.Det(points[t.I0], points[t.I1], points[t.I2])) / 2
	}
	return total
}

// Hull returns the indices of the convex hull of points in counter-clockwise order
// (y-up frame). Collinear boundary points are dropped.
func Hull(points []geom.Point) []int {
	idx := make([]int, len(points))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := points[idx[i]], points[idx[j]]
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})

	cross := func(o, a, b int) float64 {
		return geom.Det(points[o], points[a], points[b])
	}

	hull := make([]int, 0, 2*len(idx))
	for _, i := range idx {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], i) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, i)
	}
	lower := len(hull) + 1
	for k := len(idx) - 2; k >= 0; k-- {
		i := idx[k]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], i) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, i)
	}
	if len(hull) > 1 {
		hull = hull[:len(hull)-1]
	}
	return hull
}

// PolygonArea returns the unsigned area of the polygon visiting points in ring order.
func PolygonArea(points []geom.Point, ring []int) float64 {
	var sum float64
	for k := range ring {
		a, b := points[ring[k]], points[ring[(k+1)%len(ring)]]
		sum += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(sum) / 2
}

// ErrCoverage is returned by CheckCoverage when triangles and hull disagree.
var ErrCoverage = errors.New("triangles do not cover the convex hull")

// CheckCoverage compares the triangulated area with the convex hull area.
func CheckCoverage(tris []Triangle, points []geom.Point, tolerance float64) error {
	hullArea := PolygonArea(points, Hull(points))
	area := Area(tris, points)
	if math.Abs(hullArea-area) > tolerance*math.Max(1, hullArea) {
		return fmt.Errorf("%w: hull %.6f, triangles %.6f", ErrCoverage, hullArea, area)
	}
	return nil
}
