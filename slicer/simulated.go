package slicer

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// Simulated is a deterministic stand-in for the real slicer. It produces a
// structurally valid 3MF package (a zip with the expected Metadata entries)
// with fabricated but stable metrics derived from the input size.
type Simulated struct {
	// Delay imitates slicer runtime. Zero means no delay.
	Delay time.Duration
}

func (s *Simulated) Slice(ctx context.Context, modelPath, outputPath string) (*Result, error) {
	stat, err := os.Stat(modelPath)
	if err != nil {
		return nil, fmt.Errorf("input model: %w", err)
	}

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	size := stat.Size()
	weightG := float64(size) / 1000
	printTime := int(size/20) + 420

	meta := map[string]map[string]string{
		"slice_info": {
			"layer_height":   "0.2",
			"wall_loops":     "3",
			"infill_density": "15%",
			"prediction":     fmt.Sprintf("%d", printTime),
			"weight":         fmt.Sprintf("%.2f", weightG),
		},
		"project_settings": {
			"printer_model": "Bambu Lab X1C",
			"slicer":        "simulated",
		},
	}
	if err := writePackage(outputPath, meta); err != nil {
		return nil, fmt.Errorf("write package: %w", err)
	}

	log.Debugf("simulated slice of %s (%d bytes) -> %s", modelPath, size, outputPath)
	return &Result{
		Output:           fmt.Sprintf("simulated slice of %d bytes", size),
		WeightG:          weightG,
		PrintTimeSeconds: printTime,
		Metadata:         meta,
	}, nil
}

// writePackage lays out a minimal 3MF-shaped zip: a plate gcode entry plus
// the two config files the metadata extractor looks for.
func writePackage(path string, meta map[string]map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)

	entries := map[string]string{
		"Metadata/plate_1.gcode":            "; simulated gcode\nM73 P0\n",
		"Metadata/slice_info.config":        configLines(meta["slice_info"]),
		"Metadata/project_settings.config":  configLines(meta["project_settings"]),
		"3D/3dmodel.model":                  "<model/>",
		"[Content_Types].xml":               "<Types/>",
	}
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := w.Write([]byte(content)); err != nil {
			f.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func configLines(kv map[string]string) string {
	var out string
	for k, v := range kv {
		out += k + " = " + v + "\n"
	}
	return out
}
