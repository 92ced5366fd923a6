// Package mesh holds the triangle mesh data model and the geometric stages
// that run after per-block extraction: stitching, simplification, smoothing
// and normal estimation.
package mesh

import (
	"github.com/soypat/blockmesh"
	"github.com/soypat/blockmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is an indexed triangle mesh in global voxel coordinates. Normals is
// either empty or parallel to Vertices.
type Mesh struct {
	Vertices []r3.Vec
	Faces    [][3]int
	Normals  []r3.Vec
}

// FaceMask marks block outer faces. A Partial tags each vertex with the block
// faces it lies on; untagged vertices are interior and never merged.
type FaceMask uint8

const (
	XMin FaceMask = 1 << iota
	XMax
	YMin
	YMax
	ZMin
	ZMax
)

// Partial is the surface extracted from one block for one label. It is owned
// by the extraction task that produced it until handed to Stitch, which
// consumes it.
type Partial struct {
	Mesh
	// Block is the grid coordinate of the producing block.
	Block blockmesh.V3i
	// Tags has one FaceMask per vertex.
	Tags []FaceMask
}

// IsEmpty reports whether the mesh has no faces.
func (m *Mesh) IsEmpty() bool { return len(m.Faces) == 0 }

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		Vertices: append([]r3.Vec(nil), m.Vertices...),
		Faces:    append([][3]int(nil), m.Faces...),
	}
	if len(m.Normals) > 0 {
		out.Normals = append([]r3.Vec(nil), m.Normals...)
	}
	return out
}

// Bounds returns the mesh bounding box. Empty meshes return a box with
// negative extents that extends no other box.
func (m *Mesh) Bounds() d3.Box {
	bb := d3.Empty()
	for _, v := range m.Vertices {
		bb = bb.Include(v)
	}
	return bb
}

// FaceNormal returns the normal of face i with magnitude proportional to
// twice the face area. Degenerate faces yield the zero vector.
func (m *Mesh) FaceNormal(i int) r3.Vec {
	f := m.Faces[i]
	e1 := r3.Sub(m.Vertices[f[1]], m.Vertices[f[0]])
	e2 := r3.Sub(m.Vertices[f[2]], m.Vertices[f[0]])
	return r3.Cross(e1, e2)
}

// Triangle returns the three corner positions of face i.
func (m *Mesh) Triangle(i int) [3]r3.Vec {
	f := m.Faces[i]
	return [3]r3.Vec{m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]}
}

// dropUnusedVertices removes vertices referenced by no face and renumbers
// Faces accordingly. Normals are dropped alongside their vertices.
func (m *Mesh) dropUnusedVertices() {
	used := make([]bool, len(m.Vertices))
	for _, f := range m.Faces {
		used[f[0]] = true
		used[f[1]] = true
		used[f[2]] = true
	}
	remap := make([]int, len(m.Vertices))
	n := 0
	for i, u := range used {
		if u {
			remap[i] = n
			m.Vertices[n] = m.Vertices[i]
			if len(m.Normals) > 0 {
				m.Normals[n] = m.Normals[i]
			}
			n++
		}
	}
	if n == len(m.Vertices) {
		return
	}
	m.Vertices = m.Vertices[:n]
	if len(m.Normals) > 0 {
		m.Normals = m.Normals[:n]
	}
	for i, f := range m.Faces {
		m.Faces[i] = [3]int{remap[f[0]], remap[f[1]], remap[f[2]]}
	}
}
