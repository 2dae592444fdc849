package slicer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// BambuStudio invokes the Bambu Studio CLI to slice a model.
type BambuStudio struct {
	// Path to the slicer binary.
	Path string
	// Profile is the slicing configuration file passed via --conf.
	Profile string
	// Timeout bounds the invocation, DefaultTimeout when zero.
	Timeout time.Duration
}

func (s *BambuStudio) Slice(ctx context.Context, modelPath, outputPath string) (*Result, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("input model: %w", err)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.Path,
		"--slice", "0",
		"--conf", s.Profile,
		"--output", outputPath,
		modelPath,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debugf("running slicer: %s", strings.Join(cmd.Args, " "))
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("slicer timed out after %s: %s", timeout, diagnostic(&stdout, &stderr))
	}
	if err != nil {
		return nil, fmt.Errorf("slicer failed: %w: %s", err, diagnostic(&stdout, &stderr))
	}
	if _, err := os.Stat(outputPath); err != nil {
		return nil, fmt.Errorf("slicer exited cleanly but produced no package: %w", err)
	}

	res := &Result{Output: stdout.String()}
	fillFromMetadata(res, outputPath)
	return res, nil
}

// fillFromMetadata extracts slicing metadata from the produced package.
// The slice itself already succeeded, so extraction problems only warn.
func fillFromMetadata(res *Result, outputPath string) {
	meta, err := ParseMetadata(outputPath)
	if err != nil {
		log.Warnf("can't extract metadata from %s: %v", outputPath, err)
		return
	}
	res.Metadata = meta

	info := meta["slice_info"]
	if v, err := strconv.Atoi(info["prediction"]); err == nil && v > 0 {
		res.PrintTimeSeconds = v
	}
	if v, err := strconv.ParseFloat(info["weight"], 64); err == nil && v > 0 {
		res.WeightG = v
	}
}

func diagnostic(stdout, stderr *bytes.Buffer) string {
	if s := strings.TrimSpace(stderr.String()); s != "" {
		return s
	}
	return strings.TrimSpace(stdout.String())
}
