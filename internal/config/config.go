// Package config loads the optional mimic.yaml settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// DefaultPath is read when --config is not given. A missing default file is not an error.
const DefaultPath = "mimic.yaml"

type WorkerConf struct {
	Python  string `yaml:"python"`
	Script  string `yaml:"script"`
	Timeout string `yaml:"timeout"`
}

type FaceMeshConf struct {
	MaxFaces               int     `yaml:"max_faces"`
	RefineLandmarks        bool    `yaml:"refine_landmarks"`
	MinDetectionConfidence float64 `yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64 `yaml:"min_tracking_confidence"`
}

type RenderConf struct {
	Layout        string  `yaml:"layout"`
	Opacity       float64 `yaml:"opacity"`
	Interpolation string  `yaml:"interpolation"`
	Mesh          bool    `yaml:"mesh"`
}

type CameraConf struct {
	Device string  `yaml:"device"`
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	FPS    float64 `yaml:"fps"`
	Mirror bool    `yaml:"mirror"`
}

type ServerConf struct {
	Listen string `yaml:"listen"`
}

// Config is the whole settings file. Command-line flags override it.
type Config struct {
	Database      string       `yaml:"database"`
	PhotoMaxWidth int          `yaml:"photo_max_width"`
	OutputDir     string       `yaml:"output_dir"`
	Worker        WorkerConf   `yaml:"worker"`
	FaceMesh      FaceMeshConf `yaml:"facemesh"`
	Render        RenderConf   `yaml:"render"`
	Camera        CameraConf   `yaml:"camera"`
	Server        ServerConf   `yaml:"server"`
}

// Default returns the settings used when no file overrides them.
func Default() Config {
	return Config{
		PhotoMaxWidth: 900,
		OutputDir:     "output",
		Worker: WorkerConf{
			Python:  "python3",
			Script:  "python/landmarks.py",
			Timeout: "30s",
		},
		FaceMesh: FaceMeshConf{
			MaxFaces:               1,
			RefineLandmarks:        true,
			MinDetectionConfidence: 0.6,
			MinTrackingConfidence:  0.6,
		},
		Render: RenderConf{
			Layout:        "side",
			Opacity:       0.85,
			Interpolation: "bilinear",
			Mesh:          true,
		},
		Camera: CameraConf{
			Device: "/dev/video0",
			Width:  1280,
			Height: 720,
			FPS:    30,
			Mirror: true,
		},
		Server: ServerConf{
			Listen: ":8081",
		},
	}
}

// Load reads path over the defaults. When path is empty the default file is
// tried and silently skipped if it does not exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.PhotoMaxWidth < 0 {
		return fmt.Errorf("photo_max_width must not be negative, got %d", c.PhotoMaxWidth)
	}
	if c.FaceMesh.MaxFaces < 1 {
		return fmt.Errorf("facemesh.max_faces must be at least 1, got %d", c.FaceMesh.MaxFaces)
	}
	for name, v := range map[string]float64{
		"facemesh.min_detection_confidence": c.FaceMesh.MinDetectionConfidence,
		"facemesh.min_tracking_confidence":  c.FaceMesh.MinTrackingConfidence,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be between 0.0 and 1.0, got %f", name, v)
		}
	}
	if c.Render.Opacity < 0 || c.Render.Opacity > 1 {
		return fmt.Errorf("render.opacity must be between 0.0 and 1.0, got %f", c.Render.Opacity)
	}
	if _, err := time.ParseDuration(c.Worker.Timeout); err != nil {
		return fmt.Errorf("invalid worker.timeout format (use '30s', '1m'): %w", err)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("camera.fps must be positive, got %f", c.Camera.FPS)
	}
	return nil
}

// WorkerTimeout returns the parsed worker read timeout.
func (c Config) WorkerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Worker.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
