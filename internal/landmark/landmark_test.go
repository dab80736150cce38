package landmark

import (
	"errors"
	"math"
	"testing"

	"github.com/andresmejia3/mimic/internal/geom"
)

func TestNew_Denormalizes(t *testing.T) {
	raw := []Landmark{{X: 0, Y: 0}, {X: 0.5, Y: 0.25, Z: -0.1}, {X: 1, Y: 1}}
	ps, err := New(raw, 640, 480)
	if err != nil {
		t.Fatal(err)
	}
	if ps.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", ps.Len())
	}

	want := []geom.Point{{X: 0, Y: 0}, {X: 320, Y: 120}, {X: 640, Y: 480}}
	for i, w := range want {
		got, err := ps.Get(i)
		if err != nil {
			t.Fatalf("Get(%d) error: %v", i, err)
		}
		if got != w {
			t.Errorf("Get(%d) = %v, want %v", i, got, w)
		}
	}
	if ps.Depth(1) != -0.1 {
		t.Errorf("Depth(1) = %v, want -0.1", ps.Depth(1))
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		raw    []Landmark
		w, h   int
		wantIs error
	}{
		{"Empty", nil, 10, 10, ErrEmpty},
		{"Zero width", []Landmark{{X: 0.1, Y: 0.1}}, 0, 10, nil},
		{"Negative height", []Landmark{{X: 0.1, Y: 0.1}}, 10, -1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.raw, tt.w, tt.h)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("expected %v, got %v", tt.wantIs, err)
			}
		})
	}
}

func TestGet_OutOfRange(t *testing.T) {
	ps, _ := New([]Landmark{{X: 0.1, Y: 0.2}}, 10, 10)
	for _, i := range []int{-1, 1, 468} {
		if _, err := ps.Get(i); !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("Get(%d): expected ErrInvalidIndex, got %v", i, err)
		}
	}
}

func TestPoints_IsCopy(t *testing.T) {
	ps, _ := New([]Landmark{{X: 0.5, Y: 0.5}}, 2, 2)
	pts := ps.Points()
	pts[0] = geom.Point{X: 99, Y: 99}
	if ps.At(0) != (geom.Point{X: 1, Y: 1}) {
		t.Errorf("mutating Points() leaked into the set: %v", ps.At(0))
	}
}

func TestScaled_RoundTrip(t *testing.T) {
	ps, _ := New([]Landmark{{X: 0.25, Y: 0.75}}, 200, 100)
	scaled, err := ps.Scaled(800, 400)
	if err != nil {
		t.Fatal(err)
	}
	got := scaled.At(0)
	if math.Abs(got.X-200) > 1e-9 || math.Abs(got.Y-300) > 1e-9 {
		t.Errorf("Scaled point = %v, want (200,300)", got)
	}
}

func TestContours(t *testing.T) {
	seen := make(map[int]bool)
	for k, contour := range Contours {
		if len(contour) < 3 {
			t.Errorf("contour %d has %d points", k, len(contour))
		}
		for _, i := range contour {
			if i < 0 || i >= FaceMeshPoints {
				t.Errorf("contour %d: index %d out of range", k, i)
			}
			if seen[i] {
				t.Errorf("contour %d: index %d already used", k, i)
			}
			seen[i] = true
		}
	}
	if len(Contours) != 5 || len(FaceOval) != 36 {
		t.Errorf("expected oval, lips and eyes, got %d contours", len(Contours))
	}
	if !ValidCount(FaceMeshPoints) || !ValidCount(FaceMeshRefinedPoints) || ValidCount(3) {
		t.Error("ValidCount disagrees with the FaceMesh topologies")
	}
}
