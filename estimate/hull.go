package estimate

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/hschendel/stl"
	quickhull "github.com/markus-wa/quickhull-go/v2"
	log "github.com/sirupsen/logrus"
)

// hullVolume computes the volume of the convex hull of all mesh vertices.
// This is the fallback for open or inverted meshes where the signed solid
// volume is unusable.
func hullVolume(solid *stl.Solid) (volume float64) {
	points := make([]r3.Vector, 0, len(solid.Triangles)*3)
	for i := range solid.Triangles {
		for _, v := range solid.Triangles[i].Vertices {
			points = append(points, r3.Vector{
				X: float64(v[0]),
				Y: float64(v[1]),
				Z: float64(v[2]),
			})
		}
	}
	if len(points) < 4 {
		return 0
	}

	// quickhull faults on fully coplanar input.
	defer func() {
		if r := recover(); r != nil {
			log.Debugf("convex hull failed: %v", r)
			volume = 0
		}
	}()

	hull := new(quickhull.QuickHull).ConvexHull(points, true, false, 0)
	if len(hull.Indices) < 3 {
		return 0
	}

	var six float64
	for i := 0; i+2 < len(hull.Indices); i += 3 {
		a := hull.Vertices[hull.Indices[i]]
		b := hull.Vertices[hull.Indices[i+1]]
		c := hull.Vertices[hull.Indices[i+2]]
		six += a.Dot(b.Cross(c))
	}
	return math.Abs(six / 6)
}
