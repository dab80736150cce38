package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/andresmejia3/mimic/internal/landmark"
	"github.com/andresmejia3/mimic/internal/server"
	"github.com/andresmejia3/mimic/internal/store"
	"github.com/andresmejia3/mimic/internal/utils"
	"github.com/andresmejia3/mimic/internal/warp"
	"github.com/andresmejia3/mimic/internal/worker"
)

// tracker is anything that turns an RGBA frame into per-face landmarks.
type tracker interface {
	Track(frame []byte, width, height int) ([][]landmark.Landmark, error)
}

// workerConfig builds a tracker configuration from the loaded settings.
func workerConfig(mode worker.Mode, timeout string) (worker.Config, error) {
	cfg := worker.DefaultConfig()
	cfg.Mode = mode
	cfg.Python = Cfg.Worker.Python
	cfg.Script = Cfg.Worker.Script
	cfg.MaxFaces = Cfg.FaceMesh.MaxFaces
	cfg.RefineLandmarks = Cfg.FaceMesh.RefineLandmarks
	cfg.MinDetectionConfidence = Cfg.FaceMesh.MinDetectionConfidence
	cfg.MinTrackingConfidence = Cfg.FaceMesh.MinTrackingConfidence
	cfg.ReadTimeout = Cfg.WorkerTimeout()
	if timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return cfg, fmt.Errorf("invalid worker-timeout format (use '30s', '1m'): %w", err)
		}
		cfg.ReadTimeout = d
	}
	return cfg, nil
}

// lazyWorker starts its Python process on first use.
type lazyWorker struct {
	ctx context.Context
	cfg worker.Config

	mu sync.Mutex
	w  *worker.PythonWorker
}

func (l *lazyWorker) Track(frame []byte, width, height int) ([][]landmark.Landmark, error) {
	l.mu.Lock()
	if l.w == nil {
		w, err := worker.NewPythonWorker(l.ctx, 0, l.cfg)
		if err != nil {
			l.mu.Unlock()
			return nil, err
		}
		l.w = w
	}
	w := l.w
	l.mu.Unlock()

	faces, err := w.Track(frame, width, height)
	if err != nil {
		utils.ShowError("Photo analysis worker failed", err, w.Cmd)
	}
	return faces, err
}

func (l *lazyWorker) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w != nil {
		l.w.Close()
		l.w = nil
	}
}

// photoAnalyzer turns photos into warp sources, using the database as a cache when one is connected.
type photoAnalyzer struct {
	tracker  tracker
	db       *store.Store
	maxWidth int
}

// analyzedPhoto is a ready Source plus where it came from.
type analyzedPhoto struct {
	ID     string
	Source *warp.Source
	Cached bool
}

// Load reads and analyzes the photo at path.
func (a *photoAnalyzer) Load(ctx context.Context, path string, refresh bool) (*analyzedPhoto, error) {
	img, data, err := utils.LoadPhoto(path, a.maxWidth)
	if err != nil {
		return nil, err
	}
	return a.analyze(ctx, img, utils.GeneratePhotoID(data), path, refresh)
}

// LoadBytes analyzes an uploaded photo.
func (a *photoAnalyzer) LoadBytes(ctx context.Context, data []byte, name string) (*analyzedPhoto, error) {
	img, err := utils.DecodePhoto(bytes.NewReader(data), a.maxWidth)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", server.ErrInvalidImage, err)
	}
	return a.analyze(ctx, img, utils.GeneratePhotoID(data), name, false)
}

func (a *photoAnalyzer) analyze(ctx context.Context, img image.Image, id, path string, refresh bool) (*analyzedPhoto, error) {
	b := img.Bounds()

	if a.db != nil && !refresh {
		p, err := a.db.GetPhoto(ctx, id)
		switch {
		case err == nil && p.ID == id && p.Width == b.Dx() && p.Height == b.Dy():
			src, err := sourceFromCache(img, p)
			if err == nil {
				utils.Debugf("photo %s loaded from cache", utils.ShortID(id))
				return &analyzedPhoto{ID: id, Source: src, Cached: true}, nil
			}
			utils.Debugf("cached analysis of %s unusable, re-analyzing: %v", utils.ShortID(id), err)
		case err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrAmbiguous):
			return nil, fmt.Errorf("failed to read photo cache: %w", err)
		}
	}

	rgba := toRGBA(img)
	faces, err := a.tracker.Track(rgba.Pix, b.Dx(), b.Dy())
	if err != nil {
		return nil, fmt.Errorf("failed to analyze photo: %w", err)
	}
	src, err := warp.SourceFromFaces(rgba, faces)
	if err != nil {
		return nil, err
	}

	if a.db != nil {
		err := a.db.SavePhoto(ctx, store.Photo{
			ID:        id,
			Path:      path,
			Width:     b.Dx(),
			Height:    b.Dy(),
			Landmarks: faces[0],
			Triangles: src.Triangles(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to cache photo analysis: %w", err)
		}
	}
	return &analyzedPhoto{ID: id, Source: src}, nil
}

func sourceFromCache(img image.Image, p *store.Photo) (*warp.Source, error) {
	points, err := landmark.New(p.Landmarks, p.Width, p.Height)
	if err != nil {
		return nil, err
	}
	return warp.NewSourceWithTriangles(img, points, p.Triangles)
}

// toRGBA returns img as a tightly packed, zero-origin RGBA.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == b.Dx()*4 {
		return rgba
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return rgba
}
