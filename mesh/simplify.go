package mesh

import (
	"github.com/fogleman/simplify"
	"gonum.org/v1/gonum/spatial/r3"
)

// MinFaces is the safety floor for decimation. Targets below it would leave
// too few faces to enclose a volume, so simplification becomes a no-op
// rather than silently producing a degenerate result.
const MinFaces = 4

// Target is a simplification budget: a fraction of the current face count,
// or an absolute count when Fraction is zero.
type Target struct {
	Fraction float64
	Count    int
}

// FaceBudget resolves the target against the current face count.
func (t Target) FaceBudget(current int) int {
	if t.Fraction != 0 {
		return int(t.Fraction * float64(current))
	}
	return t.Count
}

// SimplifyOptions configure the reduction.
type SimplifyOptions struct {
	// MaxDeviation is the largest allowed distance from any simplified vertex
	// to the pre-simplification surface, in voxel units. Zero disables the
	// bound.
	MaxDeviation float64
	// Warnf receives non-fatal notices: safety-floor no-ops and reverted
	// reductions. May be nil.
	Warnf func(format string, args ...interface{})
}

// Simplify reduces the mesh toward the target face budget using quadric
// edge collapse. The input is returned unchanged when the budget already
// holds, when it is below the safety floor, or when the reduction violates
// the deviation bound or damages manifoldness. Otherwise a new mesh is
// returned and the input must no longer be used. Normals are invalidated
// either way and must be recomputed afterwards.
func Simplify(m *Mesh, t Target, opt SimplifyOptions) *Mesh {
	warnf := opt.Warnf
	if warnf == nil {
		warnf = func(string, ...interface{}) {}
	}
	budget := t.FaceBudget(len(m.Faces))
	if budget >= len(m.Faces) {
		return m
	}
	if budget < MinFaces {
		warnf("simplify: target of %d faces is below the %d-face safety floor, keeping %d faces",
			budget, MinFaces, len(m.Faces))
		return m
	}

	tris := make([]*simplify.Triangle, len(m.Faces))
	for i := range m.Faces {
		tri := m.Triangle(i)
		tris[i] = simplify.NewTriangle(simplifyVec(tri[0]), simplifyVec(tri[1]), simplifyVec(tri[2]))
	}
	factor := float64(budget) / float64(len(m.Faces))
	reduced := simplify.NewMesh(tris).Simplify(factor)

	out := weldExact(reduced.Triangles)
	if out.IsEmpty() {
		warnf("simplify: reduction to %d faces collapsed the mesh, keeping %d faces", budget, len(m.Faces))
		return m
	}
	if opt.MaxDeviation > 0 {
		tree := newSurfaceTree(m)
		for _, v := range out.Vertices {
			if d := tree.distance(v); d > opt.MaxDeviation {
				warnf("simplify: deviation %.3g exceeds bound %.3g, keeping %d faces",
					d, opt.MaxDeviation, len(m.Faces))
				return m
			}
		}
	}
	before := CheckManifold(m, nil, 0)
	after := CheckManifold(out, nil, 0)
	if len(after.Open) > len(before.Open) || len(after.NonManifold) > len(before.NonManifold) {
		warnf("simplify: reduction opened %d edge(s), keeping %d faces",
			len(after.Open)-len(before.Open), len(m.Faces))
		return m
	}
	return out
}

// weldExact rebuilds an indexed mesh from a triangle soup whose shared
// corners carry bit-identical positions, dropping zero-area leftovers.
func weldExact(tris []*simplify.Triangle) *Mesh {
	out := &Mesh{}
	index := make(map[r3.Vec]int, len(tris))
	add := func(v simplify.Vector) int {
		p := r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
		if i, ok := index[p]; ok {
			return i
		}
		i := len(out.Vertices)
		index[p] = i
		out.Vertices = append(out.Vertices, p)
		return i
	}
	for _, tr := range tris {
		a, b, c := add(tr.V1), add(tr.V2), add(tr.V3)
		if a == b || b == c || c == a {
			continue
		}
		out.Faces = append(out.Faces, [3]int{a, b, c})
	}
	out.dropUnusedVertices()
	return out
}

func simplifyVec(v r3.Vec) simplify.Vector {
	return simplify.Vector{X: v.X, Y: v.Y, Z: v.Z}
}
