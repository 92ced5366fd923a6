package mesh

import (
	"math"

	"github.com/soypat/blockmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	_ kdtree.Interface = kdFaces{}
	_ kdtree.Bounder   = kdFaces{}
)

// surfaceTree answers approximate point-to-surface distance queries against a
// frozen snapshot of a mesh. The kd lookup is by triangle centroid; the
// distance to the winning triangle is exact.
type surfaceTree struct {
	tree kdtree.Tree
}

func newSurfaceTree(m *Mesh) *surfaceTree {
	faces := make(kdFaces, len(m.Faces))
	for i := range m.Faces {
		faces[i] = kdFace(m.Triangle(i))
	}
	tree := kdtree.New(faces, true)
	return &surfaceTree{tree: *tree}
}

// distance returns the distance from p to the triangle whose centroid is
// nearest to p. It upper-bounds the true surface distance closely for the
// near-uniform triangle sizes produced by voxel extraction.
func (s *surfaceTree) distance(p r3.Vec) float64 {
	got, _ := s.tree.Nearest(kdFace{p, p, p})
	t := got.(kdFace)
	return pointTriangleDist(p, t[0], t[1], t[2])
}

type kdFaces []kdFace

type kdFace [3]r3.Vec

func (k kdFaces) Index(i int) kdtree.Comparable { return k[i] }

// Len returns the length of the list.
func (k kdFaces) Len() int { return len(k) }

// Pivot partitions the list based on the dimension specified.
func (k kdFaces) Pivot(d kdtree.Dim) int {
	p := kdFacePlane{dim: int(d), faces: k}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

// Slice returns a slice of the list using zero-based half
// open indexing equivalent to built-in slice indexing.
func (k kdFaces) Slice(start, end int) kdtree.Interface {
	return k[start:end]
}

func (k kdFaces) Bounds() *kdtree.Bounding {
	min := d3.Elem(math.MaxFloat64)
	max := d3.Elem(-math.MaxFloat64)
	for _, f := range k {
		fb := f.Bounds()
		min = d3.MinElem(min, fb.Min.(kdFace)[0])
		max = d3.MaxElem(max, fb.Max.(kdFace)[0])
	}
	return &kdtree.Bounding{
		Min: kdFace{min, min, min},
		Max: kdFace{max, max, max},
	}
}

// Compare returns the signed distance of a from the plane passing through
// b and perpendicular to the dimension d, comparing by centroid.
func (a kdFace) Compare(b kdtree.Comparable, d kdtree.Dim) float64 {
	return kdFaceComp(a, b.(kdFace), int(d))
}

// Dims returns the number of dimensions described in the Comparable.
func (a kdFace) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between the receiver's and
// the argument's centroids.
func (a kdFace) Distance(b kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(a.centroid(), b.(kdFace).centroid()))
}

func (a kdFace) Bounds() *kdtree.Bounding {
	min := d3.MinElem(a[2], d3.MinElem(a[0], a[1]))
	max := d3.MaxElem(a[2], d3.MaxElem(a[0], a[1]))
	return &kdtree.Bounding{
		Min: kdFace{min, min, min},
		Max: kdFace{max, max, max},
	}
}

func (a kdFace) centroid() r3.Vec {
	v := r3.Vec{
		X: a[0].X + a[1].X + a[2].X,
		Y: a[0].Y + a[1].Y + a[2].Y,
		Z: a[0].Z + a[1].Z + a[2].Z,
	}
	return r3.Scale(1./3., v)
}

// c = a.dim - b.dim of the centroids.
func kdFaceComp(a, b kdFace, dim int) (c float64) {
	switch dim {
	case 0:
		c = (a[0].X + a[1].X + a[2].X) - (b[0].X + b[1].X + b[2].X)
	case 1:
		c = (a[0].Y + a[1].Y + a[2].Y) - (b[0].Y + b[1].Y + b[2].Y)
	case 2:
		c = (a[0].Z + a[1].Z + a[2].Z) - (b[0].Z + b[1].Z + b[2].Z)
	}
	return c / 3
}

type kdFacePlane struct {
	dim   int
	faces kdFaces
}

func (p kdFacePlane) Less(i, j int) bool {
	return kdFaceComp(p.faces[i], p.faces[j], p.dim) < 0
}
func (p kdFacePlane) Swap(i, j int) {
	p.faces[i], p.faces[j] = p.faces[j], p.faces[i]
}
func (p kdFacePlane) Len() int { return len(p.faces) }
func (p kdFacePlane) Slice(start, end int) kdtree.SortSlicer {
	p.faces = p.faces[start:end]
	return p
}

// pointTriangleDist returns the exact distance from p to triangle (a,b,c).
// Standard closest-point-on-triangle case analysis.
func pointTriangleDist(p, a, b, c r3.Vec) float64 {
	ab := r3.Sub(b, a)
	ac := r3.Sub(c, a)
	ap := r3.Sub(p, a)
	dab := r3.Dot(ab, ap)
	dac := r3.Dot(ac, ap)
	if dab <= 0 && dac <= 0 {
		return r3.Norm(ap) // region of vertex a.
	}
	bp := r3.Sub(p, b)
	dbab := r3.Dot(ab, bp)
	dbac := r3.Dot(ac, bp)
	if dbab >= 0 && dbac <= dbab {
		return r3.Norm(bp) // region of vertex b.
	}
	vc := dab*dbac - dbab*dac
	if vc <= 0 && dab >= 0 && dbab <= 0 {
		v := dab / (dab - dbab)
		return r3.Norm(r3.Sub(p, r3.Add(a, r3.Scale(v, ab)))) // edge ab.
	}
	cp := r3.Sub(p, c)
	dcab := r3.Dot(ab, cp)
	dcac := r3.Dot(ac, cp)
	if dcac >= 0 && dcab <= dcac {
		return r3.Norm(cp) // region of vertex c.
	}
	vb := dcab*dac - dab*dcac
	if vb <= 0 && dac >= 0 && dcac <= 0 {
		w := dac / (dac - dcac)
		return r3.Norm(r3.Sub(p, r3.Add(a, r3.Scale(w, ac)))) // edge ac.
	}
	va := dbab*dcac - dcab*dbac
	if va <= 0 && dbac-dbab >= 0 && dcab-dcac >= 0 {
		w := (dbac - dbab) / ((dbac - dbab) + (dcab - dcac))
		return r3.Norm(r3.Sub(p, r3.Add(b, r3.Scale(w, r3.Sub(c, b))))) // edge bc.
	}
	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	q := r3.Add(a, r3.Add(r3.Scale(v, ab), r3.Scale(w, ac)))
	return r3.Norm(r3.Sub(p, q))
}
