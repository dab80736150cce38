package warp

import (
	"errors"
	"fmt"
	"image"

	"github.com/andresmejia3/mimic/internal/landmark"
	"github.com/andresmejia3/mimic/internal/triangulate"
	"golang.org/x/image/draw"
)

var (
	// ErrNoFaceInSource means photo analysis found no face, so nothing can be warped.
	ErrNoFaceInSource = errors.New("no face detected in source photo")
	// ErrNoFaceInDestination means the current live frame has no tracked face.
	ErrNoFaceInDestination = errors.New("no face detected in live frame")
)

// Source is the immutable per-photo state: pixels, landmarks and their triangulation.
// A Source is built once per photo and swapped into a Renderer as a whole.
type Source struct {
	img    *image.RGBA
	points *landmark.PointSet
	tris   []triangulate.Triangle
}

// NewSource triangulates points and pairs them with img.
// Points denormalized against a different size are rescaled to img.
func NewSource(img image.Image, points *landmark.PointSet) (*Source, error) {
	rgba, points, err := prepare(img, points)
	if err != nil {
		return nil, err
	}
	tris, err := triangulate.Delaunay(points.Points())
	if err != nil {
		return nil, fmt.Errorf("failed to triangulate source landmarks: %w", err)
	}
	return &Source{img: rgba, points: points, tris: tris}, nil
}

// NewSourceWithTriangles reuses a previously computed triangulation.
func NewSourceWithTriangles(img image.Image, points *landmark.PointSet, tris []triangulate.Triangle) (*Source, error) {
	rgba, points, err := prepare(img, points)
	if err != nil {
		return nil, err
	}
	if len(tris) == 0 {
		return nil, fmt.Errorf("empty triangulation for %d landmarks", points.Len())
	}
	if err := triangulate.Validate(tris, points.Len()); err != nil {
		return nil, fmt.Errorf("cached triangulation is invalid: %w", err)
	}
	cp := make([]triangulate.Triangle, len(tris))
	copy(cp, tris)
	return &Source{img: rgba, points: points, tris: cp}, nil
}

// SourceFromFaces builds a Source from the first face a tracker reported for img.
func SourceFromFaces(img image.Image, faces [][]landmark.Landmark) (*Source, error) {
	if len(faces) == 0 || len(faces[0]) == 0 {
		return nil, ErrNoFaceInSource
	}
	b := img.Bounds()
	points, err := landmark.New(faces[0], b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	return NewSource(img, points)
}

// DestinationFromFaces denormalizes the first tracked face of a live frame.
func DestinationFromFaces(faces [][]landmark.Landmark, width, height int) (*landmark.PointSet, error) {
	if len(faces) == 0 || len(faces[0]) == 0 {
		return nil, ErrNoFaceInDestination
	}
	return landmark.New(faces[0], width, height)
}

// Width returns the source image width.
func (s *Source) Width() int { return s.img.Rect.Dx() }

// Height returns the source image height.
func (s *Source) Height() int { return s.img.Rect.Dy() }

// Image returns the photo pixels. Callers must not draw into it.
func (s *Source) Image() image.Image { return s.img }

// Points returns the photo landmarks in photo pixels.
func (s *Source) Points() *landmark.PointSet { return s.points }

// Triangles returns a copy of the cached triangulation.
func (s *Source) Triangles() []triangulate.Triangle {
	cp := make([]triangulate.Triangle, len(s.tris))
	copy(cp, s.tris)
	return cp
}

// NumTriangles returns the size of the cached triangulation.
func (s *Source) NumTriangles() int { return len(s.tris) }

// prepare copies img into a zero origin RGBA and aligns points with its size.
func prepare(img image.Image, points *landmark.PointSet) (*image.RGBA, *landmark.PointSet, error) {
	if img == nil {
		return nil, nil, errors.New("source image is nil")
	}
	if points == nil {
		return nil, nil, ErrNoFaceInSource
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, nil, fmt.Errorf("source image is empty")
	}

	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)

	if points.Width() != b.Dx() || points.Height() != b.Dy() {
		scaled, err := points.Scaled(b.Dx(), b.Dy())
		if err != nil {
			return nil, nil, err
		}
		points = scaled
	}
	return rgba, points, nil
}
