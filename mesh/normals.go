package mesh

import "gonum.org/v1/gonum/spatial/r3"

// ComputeNormals fills Normals with per-vertex unit normals, the normalized
// sum of adjacent face normals weighted by face area. Zero-area faces are
// removed first since they contribute nothing and choke downstream codecs.
// This is the last geometric stage: any later change to positions or
// topology invalidates the result.
func ComputeNormals(m *Mesh) {
	// Drop degenerate faces. Smoothing in particular can collapse small
	// configurations into zero-area slivers.
	n := 0
	for i := range m.Faces {
		if fn := m.FaceNormal(i); fn != (r3.Vec{}) {
			m.Faces[n] = m.Faces[i]
			n++
		}
	}
	if n != len(m.Faces) {
		m.Faces = m.Faces[:n]
		m.dropUnusedVertices()
	}
	if len(m.Faces) == 0 {
		m.Vertices = nil
		m.Normals = nil
		return
	}

	normals := make([]r3.Vec, len(m.Vertices))
	for i, f := range m.Faces {
		// FaceNormal magnitude is proportional to area, giving the
		// area weighting for free.
		fn := m.FaceNormal(i)
		normals[f[0]] = r3.Add(normals[f[0]], fn)
		normals[f[1]] = r3.Add(normals[f[1]], fn)
		normals[f[2]] = r3.Add(normals[f[2]], fn)
	}
	for i, v := range normals {
		if norm := r3.Norm(v); norm != 0 {
			normals[i] = r3.Scale(1/norm, v)
		}
	}
	m.Normals = normals
}
