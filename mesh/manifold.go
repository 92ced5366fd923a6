package mesh

import (
	"github.com/soypat/blockmesh/internal/d3"
)

// EdgeIncidence records the faces sharing one undirected edge.
type EdgeIncidence struct {
	Faces []int
}

// EdgeCensus counts face incidences per undirected edge. It is a pure
// structural check with no geometric tolerance: face indices must already be
// canonical (post stitching).
func EdgeCensus(m *Mesh) map[[2]int]EdgeIncidence {
	census := make(map[[2]int]EdgeIncidence, 3*len(m.Faces)/2)
	for i, f := range m.Faces {
		for _, e := range [3][2]int{{f[0], f[1]}, {f[1], f[2]}, {f[2], f[0]}} {
			if e[0] > e[1] {
				e[0], e[1] = e[1], e[0]
			}
			inc := census[e]
			inc.Faces = append(inc.Faces, i)
			census[e] = inc
		}
	}
	return census
}

// ManifoldReport summarizes the edge census of a mesh.
type ManifoldReport struct {
	// Open lists edges incident to exactly one face, excluding edges on the
	// outer bound passed to CheckManifold.
	Open [][2]int
	// OnBound lists singly-incident edges lying on the outer bound. These are
	// legitimate for surfaces clipped by the volume extents.
	OnBound [][2]int
	// NonManifold lists edges incident to more than two faces.
	NonManifold [][2]int
}

// IsClosed reports whether every edge is incident to exactly two faces aside
// from edges on the volume's outer bound.
func (r ManifoldReport) IsClosed() bool {
	return len(r.Open) == 0
}

// CheckManifold runs the edge census and classifies defects. outer may be nil
// when the surface is expected to be closed everywhere.
func CheckManifold(m *Mesh, outer *d3.Box, tol float64) ManifoldReport {
	if tol == 0 {
		tol = DefaultEpsilon
	}
	var rep ManifoldReport
	for e, inc := range EdgeCensus(m) {
		switch {
		case len(inc.Faces) == 1:
			if outer != nil && onSharedOuterFace(m.Vertices[e[0]], m.Vertices[e[1]], *outer, tol) {
				rep.OnBound = append(rep.OnBound, e)
			} else {
				rep.Open = append(rep.Open, e)
			}
		case len(inc.Faces) > 2:
			rep.NonManifold = append(rep.NonManifold, e)
		}
	}
	return rep
}
