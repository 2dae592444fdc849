// Package slicer converts a raw model file into a machine-ready print
// package. Two implementations exist: BambuStudio drives the real slicer
// binary, Simulated stands in for environments without it. Which one runs is
// decided by configuration at wiring time, never inside the pipeline.
package slicer

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single slicer invocation. Exceeding it is a
// failure, not a hang.
const DefaultTimeout = 300 * time.Second

// Result is what a successful slice reports back. WeightG and
// PrintTimeSeconds are zero when the tool did not report them; the pipeline
// keeps its earlier estimates in that case.
type Result struct {
	Output           string                       `json:"output"`
	WeightG          float64                      `json:"weight_g,omitempty"`
	PrintTimeSeconds int                          `json:"print_time_s,omitempty"`
	Metadata         map[string]map[string]string `json:"metadata,omitempty"`
}

// Slicer produces a print package at outputPath from the model at modelPath.
type Slicer interface {
	Slice(ctx context.Context, modelPath, outputPath string) (*Result, error)
}
