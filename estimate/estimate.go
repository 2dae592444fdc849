// Package estimate performs fast geometric analysis of an uploaded model:
// volume, estimated weight, a placeholder print-time figure and bounding
// dimensions. The real slicer later overrides the time estimate.
package estimate

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/hschendel/stl"
	log "github.com/sirupsen/logrus"

	"github.com/web3dp/web3dpd/pricing"
)

const (
	// floorVolumeMm3 is substituted when a mesh is so degenerate that
	// neither the solid volume nor its convex hull is positive. Estimation
	// never blocks a submission on a broken mesh.
	floorVolumeMm3 = 1000.0

	// Placeholder print-time model until the slicer reports a real figure:
	// 15 mm3 of material per second plus a fixed setup offset.
	timeRateMm3PerSec = 15.0
	setupTimeSeconds  = 300
)

// Dimensions are the axis-aligned extents of the mesh in millimeters.
type Dimensions struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Result carries everything the pipeline needs to quote a submission.
type Result struct {
	VolumeCm3        float64    `json:"volume_cm3"`
	WeightG          float64    `json:"weight_g"`
	PrintTimeSeconds int        `json:"print_time_s"`
	Dimensions       Dimensions `json:"dimensions"`
}

// Estimator analyzes STL model files. It is stateless.
type Estimator struct{}

// Estimate loads the model at path and computes its metrics for the given
// material. Only an unreadable file yields an error; degenerate geometry is
// handled by the hull fallback and the volume floor.
func (Estimator) Estimate(path, material string) (Result, error) {
	solid, err := stl.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read mesh %s: %w", filepath.Base(path), err)
	}
	return fromSolid(solid, material), nil
}

func fromSolid(solid *stl.Solid, material string) Result {
	volumeMm3 := solidVolume(solid)
	if volumeMm3 <= 0 {
		log.Debugf("mesh %q has non-positive solid volume %.2f, trying convex hull", solid.Name, volumeMm3)
		volumeMm3 = hullVolume(solid)
	}
	if volumeMm3 <= 0 {
		log.Warnf("mesh %q is degenerate, using floor volume %.0f mm3", solid.Name, floorVolumeMm3)
		volumeMm3 = floorVolumeMm3
	}

	volumeCm3 := volumeMm3 / 1000
	m := pricing.Lookup(material)

	res := Result{
		VolumeCm3:        round2(volumeCm3),
		WeightG:          round2(volumeCm3 * m.Density),
		PrintTimeSeconds: int(volumeMm3/timeRateMm3PerSec) + setupTimeSeconds,
	}
	if len(solid.Triangles) > 0 {
		measure := solid.Measure()
		res.Dimensions = Dimensions{
			X: float64(measure.Len[0]),
			Y: float64(measure.Len[1]),
			Z: float64(measure.Len[2]),
		}
	}
	return res
}

// solidVolume sums the signed tetrahedron volumes spanned by the origin and
// each triangle. For a closed mesh with outward-facing winding this is the
// enclosed volume; open or inverted meshes come out non-positive and fall
// through to the hull.
func solidVolume(solid *stl.Solid) float64 {
	var six float64
	for i := range solid.Triangles {
		v := solid.Triangles[i].Vertices
		six += det(v[0], v[1], v[2])
	}
	return six / 6
}

func det(a, b, c stl.Vec3) float64 {
	ax, ay, az := float64(a[0]), float64(a[1]), float64(a[2])
	bx, by, bz := float64(b[0]), float64(b[1]), float64(b[2])
	cx, cy, cz := float64(c[0]), float64(c[1]), float64(c[2])
	return ax*(by*cz-bz*cy) + ay*(bz*cx-bx*cz) + az*(bx*cy-by*cx)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
