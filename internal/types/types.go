package types

import "github.com/andresmejia3/mimic/internal/landmark"

// FrameTask represents a single raw RGBA frame sent to a worker for tracking
type FrameTask struct {
	Index int
	Data  []byte
}

// LandmarkResult matches the JSON structure coming back from the Python tracker
type LandmarkResult struct {
	Faces [][]landmark.Landmark `json:"faces"`
	Error string                `json:"error,omitempty"`
}

// ErrorResult captures the error object returned by Python on failure
type ErrorResult struct {
	Error string `json:"error"`
}
