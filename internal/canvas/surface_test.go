package canvas

import (
	"image"
	"image/color"
	"testing"

	"github.com/andresmejia3/mimic/internal/geom"
	"golang.org/x/image/draw"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestSaveRestore(t *testing.T) {
	s := New(20, 20)
	s.Save()
	s.SetTransform(geom.Affine{A: 2, D: 2, E: 3})
	s.ClipTriangle(geom.Point{X: 0, Y: 0}, geom.Point{X: 5, Y: 0}, geom.Point{X: 0, Y: 5})
	if s.Depth() != 1 {
		t.Fatalf("Depth() = %d, want 1", s.Depth())
	}
	if s.Clip() == nil {
		t.Fatal("expected an active clip")
	}

	s.Restore()
	if s.Depth() != 0 {
		t.Errorf("Depth() = %d after restore, want 0", s.Depth())
	}
	if !s.Transform().IsIdentity() {
		t.Errorf("transform not restored: %+v", s.Transform())
	}
	if s.Clip() != nil {
		t.Error("clip not restored")
	}

	// Unbalanced restore must not panic.
	s.Restore()
}

func TestClipTriangle_Containment(t *testing.T) {
	s := New(40, 40)
	s.ClipTriangle(geom.Point{X: 5, Y: 5}, geom.Point{X: 35, Y: 5}, geom.Point{X: 5, Y: 35})
	s.DrawImage(solid(40, 40, color.RGBA{R: 255, A: 255}))

	img := s.Image()
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			a := img.RGBAAt(x, y).A
			cx, cy := float64(x)+0.5, float64(y)+0.5
			outside := cx < 3 || cy < 3 || cx+cy > 43
			inside := cx > 7 && cy > 7 && cx+cy < 37
			if outside && a != 0 {
				t.Fatalf("pixel (%d,%d) outside the triangle was drawn (alpha %d)", x, y, a)
			}
			if inside && a < 250 {
				t.Fatalf("pixel (%d,%d) inside the triangle was not drawn (alpha %d)", x, y, a)
			}
		}
	}
}

func TestClipTriangle_Nested(t *testing.T) {
	s := New(40, 40)
	s.ClipTriangle(geom.Point{X: 0, Y: 0}, geom.Point{X: 40, Y: 0}, geom.Point{X: 0, Y: 40})
	s.ClipTriangle(geom.Point{X: 40, Y: 0}, geom.Point{X: 40, Y: 40}, geom.Point{X: 0, Y: 0})
	s.DrawImage(solid(40, 40, color.RGBA{G: 255, A: 255}))

	img := s.Image()
	// Only the wedge above the diagonal and left of the anti-diagonal survives.
	if a := img.RGBAAt(20, 5).A; a < 250 {
		t.Errorf("pixel inside both clips not drawn, alpha %d", a)
	}
	if a := img.RGBAAt(5, 20).A; a != 0 {
		t.Errorf("pixel outside the second clip drawn, alpha %d", a)
	}
	if a := img.RGBAAt(35, 20).A; a != 0 {
		t.Errorf("pixel outside the first clip drawn, alpha %d", a)
	}
}

func TestClipTriangle_OffSurface(t *testing.T) {
	s := New(10, 10)
	s.ClipTriangle(geom.Point{X: 50, Y: 50}, geom.Point{X: 60, Y: 50}, geom.Point{X: 50, Y: 60})
	s.DrawImage(solid(10, 10, color.RGBA{B: 255, A: 255}))
	for i := 3; i < len(s.Image().Pix); i += 4 {
		if s.Image().Pix[i] != 0 {
			t.Fatal("drawing with an off-surface clip touched the surface")
		}
	}
}

func TestClipTriangle_UsesTransform(t *testing.T) {
	s := New(40, 40)
	s.SetTransform(geom.Affine{A: 1, D: 1, E: 20, F: 20})
	s.ClipTriangle(geom.Point{X: 0, Y: 0}, geom.Point{X: 20, Y: 0}, geom.Point{X: 0, Y: 20})
	s.SetTransform(geom.Identity())
	s.DrawImage(solid(40, 40, color.RGBA{R: 255, A: 255}))

	if a := s.Image().RGBAAt(23, 23).A; a < 250 {
		t.Errorf("translated clip not drawn, alpha %d", a)
	}
	if a := s.Image().RGBAAt(10, 10).A; a != 0 {
		t.Errorf("untranslated region drawn, alpha %d", a)
	}
}

func TestDrawImage_Transform(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	src.SetRGBA(1, 0, color.RGBA{G: 255, A: 255})
	src.SetRGBA(0, 1, color.RGBA{B: 255, A: 255})
	src.SetRGBA(1, 1, color.RGBA{R: 255, G: 255, A: 255})

	s := New(8, 8)
	s.SetInterpolator(draw.NearestNeighbor)
	s.SetTransform(geom.Affine{A: 2, D: 2, E: 2, F: 2})
	s.DrawImage(src)

	img := s.Image()
	tests := []struct {
		x, y int
		want color.RGBA
	}{
		{2, 2, color.RGBA{R: 255, A: 255}},
		{5, 2, color.RGBA{G: 255, A: 255}},
		{2, 5, color.RGBA{B: 255, A: 255}},
		{5, 5, color.RGBA{R: 255, G: 255, A: 255}},
		{0, 0, color.RGBA{}},
		{7, 7, color.RGBA{}},
	}
	for _, tt := range tests {
		if got := img.RGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("pixel (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestDrawImage_IdentityCopies(t *testing.T) {
	s := New(4, 4)
	s.DrawImage(solid(4, 4, color.RGBA{R: 10, G: 20, B: 30, A: 255}))
	if got := s.Image().RGBAAt(3, 3); got != (color.RGBA{R: 10, G: 20, B: 30, A: 255}) {
		t.Errorf("identity draw produced %v", got)
	}
}

func TestClearAndFill(t *testing.T) {
	s := New(4, 4)
	s.Fill(color.RGBA{A: 255})
	if s.Image().RGBAAt(1, 1).A != 255 {
		t.Fatal("Fill did not paint the surface")
	}
	s.Clear()
	if s.Image().RGBAAt(1, 1).A != 0 {
		t.Fatal("Clear left pixels behind")
	}
}

func TestParseInterpolator(t *testing.T) {
	for _, name := range []string{"", "bilinear", "nearest", "approx", "CatmullRom"} {
		if _, err := ParseInterpolator(name); err != nil {
			t.Errorf("ParseInterpolator(%q) error: %v", name, err)
		}
	}
	if _, err := ParseInterpolator("lanczos"); err == nil {
		t.Error("expected error for unknown kernel")
	}
}
