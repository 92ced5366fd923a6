package mesh

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// boxMesh returns a closed unit cube with outward winding.
func boxMesh() *Mesh {
	return &Mesh{
		Vertices: []r3.Vec{
			{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0},
			{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 1},
		},
		Faces: [][3]int{
			{0, 2, 1}, {0, 3, 2}, // z=0
			{4, 5, 6}, {4, 6, 7}, // z=1
			{0, 1, 5}, {0, 5, 4}, // y=0
			{3, 7, 6}, {3, 6, 2}, // y=1
			{0, 4, 7}, {0, 7, 3}, // x=0
			{1, 2, 6}, {1, 6, 5}, // x=1
		},
	}
}

// gridBox tessellates the surface of the cube [0,n]^3 into unit quads, two
// triangles each, with outward winding.
func gridBox(n int) *Mesh {
	m := &Mesh{}
	lookup := make(map[[3]int]int)
	vertex := func(c [3]int) int {
		if i, ok := lookup[c]; ok {
			return i
		}
		i := len(m.Vertices)
		lookup[c] = i
		m.Vertices = append(m.Vertices, r3.Vec{X: float64(c[0]), Y: float64(c[1]), Z: float64(c[2])})
		return i
	}
	for axis := 0; axis < 3; axis++ {
		u, w := (axis+1)%3, (axis+2)%3
		for side := 0; side < 2; side++ {
			for j := 0; j < n; j++ {
				for i := 0; i < n; i++ {
					var c [3]int
					c[axis] = side * n
					c[u], c[w] = i, j
					c10 := c
					c10[u]++
					c11 := c10
					c11[w]++
					c01 := c
					c01[w]++
					v00, v10, v11, v01 := vertex(c), vertex(c10), vertex(c11), vertex(c01)
					if side == 1 {
						m.Faces = append(m.Faces, [3]int{v00, v10, v11}, [3]int{v00, v11, v01})
					} else {
						m.Faces = append(m.Faces, [3]int{v00, v01, v11}, [3]int{v00, v11, v10})
					}
				}
			}
		}
	}
	return m
}

// signedVolume integrates the divergence theorem over the surface. Closed
// outward-wound meshes return their enclosed volume.
func signedVolume(m *Mesh) float64 {
	var total float64
	for _, f := range m.Faces {
		a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
		total += r3.Dot(a, r3.Cross(b, c)) / 6
	}
	return total
}

func TestBoxMeshHelpers(t *testing.T) {
	for name, m := range map[string]*Mesh{"unit": boxMesh(), "grid4": gridBox(4)} {
		rep := CheckManifold(m, nil, 0)
		if !rep.IsClosed() || len(rep.NonManifold) != 0 {
			t.Fatalf("%s: want closed manifold, got %d open %d nonmanifold", name, len(rep.Open), len(rep.NonManifold))
		}
		if v := signedVolume(m); v <= 0 {
			t.Fatalf("%s: inward winding, signed volume %g", name, v)
		}
	}
}

func TestBounds(t *testing.T) {
	b := gridBox(3).Bounds()
	want := r3.Vec{X: 3, Y: 3, Z: 3}
	if b.Min != (r3.Vec{}) || b.Max != want {
		t.Fatalf("got bounds %v-%v, want origin-%v", b.Min, b.Max, want)
	}
	empty := (&Mesh{}).Bounds()
	if s := empty.Size(); s.X > 0 || s.Y > 0 || s.Z > 0 {
		t.Fatalf("empty mesh bounds have positive extent %v", s)
	}
}

func TestFaceNormalArea(t *testing.T) {
	m := boxMesh()
	for i := range m.Faces {
		if norm := r3.Norm(m.FaceNormal(i)); math.Abs(norm-1) > 1e-12 {
			t.Fatalf("face %d: |normal| = %g, want 1 (twice the area of a half unit quad)", i, norm)
		}
	}
}

func TestDropUnusedVertices(t *testing.T) {
	m := boxMesh()
	m.Vertices = append(m.Vertices, r3.Vec{X: 42})
	m.dropUnusedVertices()
	if len(m.Vertices) != 8 {
		t.Fatalf("got %d vertices, want 8", len(m.Vertices))
	}
	rep := CheckManifold(m, nil, 0)
	if !rep.IsClosed() {
		t.Fatal("renumbering broke the mesh")
	}
}
