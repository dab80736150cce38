package worker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/andresmejia3/mimic/internal/landmark"
	"github.com/andresmejia3/mimic/internal/types"
	"github.com/andresmejia3/mimic/internal/utils" // Using the SafeCommand wrapper
)

// Mode selects how the tracker treats consecutive frames.
type Mode string

const (
	// ModeVideo tracks landmarks across consecutive frames.
	ModeVideo Mode = "video"
	// ModePhoto runs full detection on every image independently.
	ModePhoto Mode = "photo"
)

// Config controls the FaceMesh tracker spawned by NewPythonWorker.
type Config struct {
	Python                 string
	Script                 string
	Mode                   Mode
	MaxFaces               int
	RefineLandmarks        bool
	MinDetectionConfidence float64
	MinTrackingConfidence  float64
	ReadTimeout            time.Duration
}

// DefaultConfig mirrors the FaceMesh settings the live preview was tuned with.
func DefaultConfig() Config {
	return Config{
		Python:                 "python3",
		Script:                 "python/landmarks.py",
		Mode:                   ModeVideo,
		MaxFaces:               1,
		RefineLandmarks:        true,
		MinDetectionConfidence: 0.6,
		MinTrackingConfidence:  0.6,
		ReadTimeout:            30 * time.Second,
	}
}

func (c Config) args() []string {
	args := []string{"-u", c.Script,
		"--mode", string(c.Mode),
		"--max-faces", strconv.Itoa(c.MaxFaces),
		"--min-detection", strconv.FormatFloat(c.MinDetectionConfidence, 'f', -1, 64),
		"--min-tracking", strconv.FormatFloat(c.MinTrackingConfidence, 'f', -1, 64),
	}
	if c.RefineLandmarks {
		args = append(args, "--refine")
	}
	return args
}

// PythonWorker is one FaceMesh tracker process.
type PythonWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration

	mu sync.Mutex
}

// NewPythonWorker spawns the tracker and wires a side-channel pipe on FD 3
// for responses, keeping stdout free for Python's own chatter.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	py := utils.NewSafeCommand(ctx, cfg.Python, cfg.args()...)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// The write-end appears as FD 3 in the child.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Only the child holds the write-end now, so EOF arrives when it dies.
	w.Close()

	return &PythonWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed request and reads one length-prefixed response.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok && w.ReadTimeout > 0 {
		d.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		defer d.SetReadDeadline(time.Time{})
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where a crashed interpreter (e.g. ModuleNotFoundError) shows up
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// Track sends one raw RGBA frame and returns the landmarks of every tracked face.
// Frame layout: [width uint32][height uint32][width*height*4 RGBA bytes].
func (w *PythonWorker) Track(frame []byte, width, height int) ([][]landmark.Landmark, error) {
	if len(frame) != width*height*4 {
		return nil, fmt.Errorf("frame is %d bytes, want %d for %dx%d RGBA", len(frame), width*height*4, width, height)
	}
	req := make([]byte, 8+len(frame))
	binary.BigEndian.PutUint32(req[0:4], uint32(width))
	binary.BigEndian.PutUint32(req[4:8], uint32(height))
	copy(req[8:], frame)

	resp, err := w.Communicate(req)
	if err != nil {
		return nil, err
	}

	var res types.LandmarkResult
	if err := json.Unmarshal(resp, &res); err != nil {
		return nil, fmt.Errorf("failed to decode worker response: %w", err)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("python worker error: %s", res.Error)
	}
	return res.Faces, nil
}

// Close shuts the tracker down and reaps the process.
func (w *PythonWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}
