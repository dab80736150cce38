package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mimic.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
database: postgres://db:5432/mimic
photo_max_width: 640
worker:
  timeout: 5s
facemesh:
  min_detection_confidence: 0.7
render:
  layout: overlay
  opacity: 0.5
camera:
  device: /dev/video2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database != "postgres://db:5432/mimic" || cfg.PhotoMaxWidth != 640 {
		t.Errorf("top-level values not applied: %+v", cfg)
	}
	if cfg.Render.Layout != "overlay" || cfg.Render.Opacity != 0.5 {
		t.Errorf("render section not applied: %+v", cfg.Render)
	}
	if cfg.FaceMesh.MinDetectionConfidence != 0.7 || cfg.FaceMesh.MinTrackingConfidence != 0.6 {
		t.Errorf("facemesh section merged incorrectly: %+v", cfg.FaceMesh)
	}
	if cfg.Camera.Device != "/dev/video2" || cfg.Camera.Width != 1280 {
		t.Errorf("camera section merged incorrectly: %+v", cfg.Camera)
	}
	if cfg.WorkerTimeout() != 5*time.Second {
		t.Errorf("WorkerTimeout() = %v, want 5s", cfg.WorkerTimeout())
	}
}

func TestLoad_MissingDefaultIsFine(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Render.Opacity != 0.85 || cfg.PhotoMaxWidth != 900 {
		t.Errorf("defaults not returned: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"Unknown key", "bogus: 1\n"},
		{"Opacity out of range", "render:\n  opacity: 1.5\n"},
		{"Bad confidence", "facemesh:\n  min_tracking_confidence: 0\n"},
		{"Bad timeout", "worker:\n  timeout: soon\n"},
		{"Bad camera", "camera:\n  width: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for an explicit missing file")
	}
}
