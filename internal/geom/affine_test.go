package geom

import (
	"errors"
	"math"
	"testing"
)

func near(a, b Point, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps
}

func TestSolveAffine(t *testing.T) {
	tests := []struct {
		name string
		src  [3]Point
		dst  [3]Point
	}{
		{
			name: "Identity",
			src:  [3]Point{{0, 0}, {1, 0}, {0, 1}},
			dst:  [3]Point{{0, 0}, {1, 0}, {0, 1}},
		},
		{
			name: "Scale and translate",
			src:  [3]Point{{0, 0}, {10, 0}, {0, 10}},
			dst:  [3]Point{{5, 5}, {25, 5}, {5, 25}},
		},
		{
			name: "Rotation with shear",
			src:  [3]Point{{12.5, 40}, {80, 33.25}, {47, 91}},
			dst:  [3]Point{{300, 210}, {352.75, 260}, {271, 288.5}},
		},
		{
			name: "Clockwise source winding",
			src:  [3]Point{{0, 0}, {0, 10}, {10, 0}},
			dst:  [3]Point{{100, 100}, {90, 130}, {140, 95}},
		},
		{
			name: "Landmark scale coordinates",
			src:  [3]Point{{412.7, 288.1}, {455.3, 290.9}, {431.2, 330.4}},
			dst:  [3]Point{{640.2, 360.5}, {700.8, 362.1}, {668.9, 420.3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := SolveAffine(tt.src, tt.dst)
			if err != nil {
				t.Fatalf("SolveAffine() error = %v", err)
			}
			for i := range tt.src {
				got := m.Apply(tt.src[i])
				if !near(got, tt.dst[i], 1e-4) {
					t.Errorf("vertex %d: got %v, want %v", i, got, tt.dst[i])
				}
			}
		})
	}
}

func TestSolveAffine_ScaleCoefficients(t *testing.T) {
	m, err := SolveAffine(
		[3]Point{{0, 0}, {10, 0}, {0, 10}},
		[3]Point{{5, 5}, {25, 5}, {5, 25}},
	)
	if err != nil {
		t.Fatal(err)
	}
	want := Affine{A: 2, B: 0, C: 0, D: 2, E: 5, F: 5}
	for _, c := range []struct {
		name      string
		got, want float64
	}{
		{"a", m.A, want.A}, {"b", m.B, want.B}, {"c", m.C, want.C},
		{"d", m.D, want.D}, {"e", m.E, want.E}, {"f", m.F, want.F},
	} {
		if math.Abs(c.got-c.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestSolveAffine_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		src  [3]Point
	}{
		{"Collinear", [3]Point{{0, 0}, {1, 0}, {2, 0}}},
		{"Repeated vertex", [3]Point{{3, 4}, {3, 4}, {9, 1}}},
		{"All equal", [3]Point{{7, 7}, {7, 7}, {7, 7}}},
		{"Below epsilon", [3]Point{{0, 0}, {1, 0}, {2, 1e-7}}},
	}

	dst := [3]Point{{0, 0}, {10, 0}, {0, 10}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SolveAffine(tt.src, dst)
			if !errors.Is(err, ErrDegenerateTriangle) {
				t.Errorf("expected ErrDegenerateTriangle, got %v", err)
			}
		})
	}
}

func TestAffineMultiply(t *testing.T) {
	scale := Affine{A: 2, D: 3}
	shift := Affine{A: 1, D: 1, E: 10, F: -4}

	// shift∘scale applies scale first.
	m := shift.Multiply(scale)
	got := m.Apply(Point{1, 1})
	if !near(got, Point{12, -1}, 1e-12) {
		t.Errorf("shift∘scale(1,1) = %v, want (12,-1)", got)
	}

	if !Identity().Multiply(scale).Multiply(Identity()).Multiply(shift).Apply(Point{0, 0}).eq(Point{20, -12}) {
		t.Errorf("composition with identity changed the result")
	}
}

func (p Point) eq(o Point) bool { return near(p, o, 1e-12) }

func TestAff3(t *testing.T) {
	m := Affine{A: 1, B: 2, C: 3, D: 4, E: 5, F: 6}
	got := m.Aff3()
	want := [6]float64{1, 3, 5, 2, 4, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Aff3() = %v, want %v", got, want)
		}
	}
}

func TestBounds(t *testing.T) {
	lo, hi := Bounds(Point{3, 9}, Point{-1, 4}, Point{6, -2})
	if lo != (Point{-1, -2}) || hi != (Point{6, 9}) {
		t.Errorf("Bounds() = %v %v", lo, hi)
	}
}
