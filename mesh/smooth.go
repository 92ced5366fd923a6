package mesh

import "gonum.org/v1/gonum/spatial/r3"

// Smooth applies iterative Laplacian relaxation to vertex positions. Each
// pass moves every vertex toward the average of itself and its topological
// neighbors, scaled by relax in (0,1]. Topology is untouched and zero
// iterations returns positions bit-identical to the input.
//
// Smooth must only run on stitched meshes: relaxing a mesh that still has
// duplicate boundary vertices would pull the copies apart and open seams.
func Smooth(m *Mesh, iterations int, relax float64) {
	if iterations <= 0 || len(m.Vertices) == 0 {
		return
	}
	if relax <= 0 || relax > 1 {
		relax = 1
	}
	// Normals no longer match the positions being rewritten.
	m.Normals = nil

	// Unique undirected vertex adjacencies.
	type edge [2]int
	seen := make(map[edge]struct{}, 3*len(m.Faces)/2)
	edges := make([]edge, 0, 3*len(m.Faces)/2)
	counts := make([]float64, len(m.Vertices))
	for _, f := range m.Faces {
		for _, e := range [3]edge{{f[0], f[1]}, {f[1], f[2]}, {f[2], f[0]}} {
			if e[0] > e[1] {
				e[0], e[1] = e[1], e[0]
			}
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			edges = append(edges, e)
			counts[e[0]]++
			counts[e[1]]++
		}
	}

	next := make([]r3.Vec, len(m.Vertices))
	for iter := 0; iter < iterations; iter++ {
		copy(next, m.Vertices)
		for _, e := range edges {
			next[e[0]] = r3.Add(next[e[0]], m.Vertices[e[1]])
			next[e[1]] = r3.Add(next[e[1]], m.Vertices[e[0]])
		}
		for i := range next {
			if counts[i] == 0 {
				continue
			}
			// The vertex itself is part of the sum, hence the +1.
			avg := r3.Scale(1/(counts[i]+1), next[i])
			next[i] = r3.Add(m.Vertices[i], r3.Scale(relax, r3.Sub(avg, m.Vertices[i])))
		}
		m.Vertices, next = next, m.Vertices
	}
}
