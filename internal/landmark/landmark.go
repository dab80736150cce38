package landmark

import (
	"errors"
	"fmt"

	"github.com/andresmejia3/mimic/internal/geom"
)

const (
	// FaceMeshPoints is the landmark count of the base FaceMesh topology.
	FaceMeshPoints = 468
	// FaceMeshRefinedPoints adds the ten iris landmarks produced with refinement enabled.
	FaceMeshRefinedPoints = 478
)

var (
	// ErrInvalidIndex is returned when a landmark index falls outside the set.
	ErrInvalidIndex = errors.New("landmark index out of range")
	// ErrEmpty is returned when a point set is built from no landmarks.
	ErrEmpty = errors.New("no landmarks")
)

// Landmark is a single tracked point normalized to the image it was detected in.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PointSet is an ordered, immutable set of landmarks denormalized to absolute pixels.
// Index i of two sets produced by the same tracker denotes the same facial point.
type PointSet struct {
	pts    []geom.Point
	depth  []float64
	width  int
	height int
}

// New denormalizes raw landmarks against an image of the given size.
func New(raw []Landmark, width, height int) (*PointSet, error) {
	if len(raw) == 0 {
		return nil, ErrEmpty
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}

	ps := &PointSet{
		pts:    make([]geom.Point, len(raw)),
		depth:  make([]float64, len(raw)),
		width:  width,
		height: height,
	}
	w, h := float64(width), float64(height)
	for i, l := range raw {
		ps.pts[i] = geom.Point{X: l.X * w, Y: l.Y * h}
		ps.depth[i] = l.Z
	}
	return ps, nil
}

// FromPoints builds a set from points that are already in pixel space.
func FromPoints(pts []geom.Point, width, height int) (*PointSet, error) {
	if len(pts) == 0 {
		return nil, ErrEmpty
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	cp := make([]geom.Point, len(pts))
	copy(cp, pts)
	return &PointSet{pts: cp, depth: make([]float64, len(pts)), width: width, height: height}, nil
}

// Len returns the number of landmarks in the set.
func (s *PointSet) Len() int { return len(s.pts) }

// Width returns the width of the image the set was denormalized against.
func (s *PointSet) Width() int { return s.width }

// Height returns the height of the image the set was denormalized against.
func (s *PointSet) Height() int { return s.height }

// Get returns the pixel position of landmark i.
func (s *PointSet) Get(i int) (geom.Point, error) {
	if i < 0 || i >= len(s.pts) {
		return geom.Point{}, fmt.Errorf("%w: %d (size %d)", ErrInvalidIndex, i, len(s.pts))
	}
	return s.pts[i], nil
}

// At returns landmark i without bounds reporting. Callers must have validated i.
func (s *PointSet) At(i int) geom.Point { return s.pts[i] }

// Depth returns the carried Z value of landmark i, or 0 when out of range.
func (s *PointSet) Depth(i int) float64 {
	if i < 0 || i >= len(s.depth) {
		return 0
	}
	return s.depth[i]
}

// Points returns a copy of every landmark position in index order.
func (s *PointSet) Points() []geom.Point {
	cp := make([]geom.Point, len(s.pts))
	copy(cp, s.pts)
	return cp
}

// Normalized converts the set back into normalized landmarks.
func (s *PointSet) Normalized() []Landmark {
	out := make([]Landmark, len(s.pts))
	w, h := float64(s.width), float64(s.height)
	for i, p := range s.pts {
		out[i] = Landmark{X: p.X / w, Y: p.Y / h, Z: s.depth[i]}
	}
	return out
}

// Scaled re-denormalizes the set against a different image size.
func (s *PointSet) Scaled(width, height int) (*PointSet, error) {
	return New(s.Normalized(), width, height)
}
