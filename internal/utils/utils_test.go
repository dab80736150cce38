package utils

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGeneratePhotoIDFromFile(t *testing.T) {
	// Integration test using the OS filesystem
	tmp, err := os.CreateTemp("", "photo_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmp.Name())

	// Write dummy content
	if _, err := tmp.Write([]byte("fake photo content")); err != nil {
		t.Fatal(err)
	}
	tmp.Close()

	id, err := GeneratePhotoIDFromFile(tmp.Name())
	if err != nil || id == "" {
		t.Errorf("Failed to generate ID: %v", err)
	}

	// Verify Determinism
	id2, _ := GeneratePhotoIDFromFile(tmp.Name())
	if id != id2 {
		t.Errorf("Hash is not deterministic. Got %s, then %s", id, id2)
	}

	// The file hash and the in-memory hash must agree (uploads vs. CLI paths)
	if mem := GeneratePhotoID([]byte("fake photo content")); mem != id {
		t.Errorf("In-memory hash %s differs from file hash %s", mem, id)
	}

	// Verify Sensitivity (Change content -> Change ID)
	f, _ := os.OpenFile(tmp.Name(), os.O_APPEND|os.O_WRONLY, 0644)
	f.Write([]byte(" modification"))
	f.Close()

	id3, _ := GeneratePhotoIDFromFile(tmp.Name())
	if id == id3 {
		t.Error("Hash did not change after file modification")
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"30/1", 30, false},
		{"30000/1001\n", 29.97002997, false},
		{"25", 25, false},
		{"0/0", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFrameRate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFrameRate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("ParseFrameRate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDimensions(t *testing.T) {
	w, h, err := ParseDimensions("1280x720\n")
	if err != nil || w != 1280 || h != 720 {
		t.Errorf("ParseDimensions = %d, %d, %v", w, h, err)
	}
	for _, bad := range []string{"1280", "x720", "0x10", "axb"} {
		if _, _, err := ParseDimensions(bad); err == nil {
			t.Errorf("ParseDimensions(%q) expected error", bad)
		}
	}
}

func TestFitWidth(t *testing.T) {
	wide := image.NewRGBA(image.Rect(0, 0, 1800, 1200))
	got := FitWidth(wide, 900)
	if got.Bounds().Dx() != 900 || got.Bounds().Dy() != 600 {
		t.Errorf("FitWidth = %v, want 900x600", got.Bounds())
	}

	small := image.NewRGBA(image.Rect(0, 0, 400, 300))
	if FitWidth(small, 900) != image.Image(small) {
		t.Error("FitWidth resized an image that already fits")
	}
}

func TestLoadPhoto_RoundTrip(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 200, 255
	}
	path := filepath.Join(t.TempDir(), "face.png")
	if err := SaveImage(img, path); err != nil {
		t.Fatal(err)
	}

	got, data, err := LoadPhoto(path, 20)
	if err != nil {
		t.Fatal(err)
	}
	if got.Bounds().Dx() != 20 || got.Bounds().Dy() != 10 {
		t.Errorf("LoadPhoto size = %v, want 20x10", got.Bounds())
	}
	if len(data) == 0 {
		t.Error("LoadPhoto returned no file bytes")
	}

	if _, _, err := LoadPhoto(filepath.Join(t.TempDir(), "missing.png"), 20); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestMirror(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	m := Mirror(img)
	if r, _, _, _ := m.At(1, 0).RGBA(); r != 0xffff {
		t.Error("Mirror did not flip horizontally")
	}
}

func TestShowError(t *testing.T) {
	var buf bytes.Buffer
	errOut = &buf
	defer func() { errOut = os.Stderr }()

	s := &SafeCommand{Stderr: bytes.NewBufferString("Traceback: boom")}
	ShowError("Worker startup failed", errors.New("exit status 1"), s)

	out := buf.String()
	for _, want := range []string{"Worker startup failed", "exit status 1", "Traceback: boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("error report missing %q:\n%s", want, out)
		}
	}
}

func TestDebugf(t *testing.T) {
	var buf bytes.Buffer
	errOut = &buf
	defer func() { errOut = os.Stderr }()

	SetVerbose(false)
	Debugf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Errorf("Debugf wrote while quiet: %q", buf.String())
	}

	SetVerbose(true)
	defer SetVerbose(false)
	Debugf("shown %d", 2)
	if !strings.Contains(buf.String(), "shown 2") {
		t.Errorf("Debugf output missing: %q", buf.String())
	}
}
