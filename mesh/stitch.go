package mesh

import (
	"fmt"
	"math"
	"sort"

	"github.com/soypat/blockmesh"
	"github.com/soypat/blockmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultEpsilon is the boundary-merge tolerance in voxel units. Extraction
// places boundary vertices on the integer corner lattice, so any epsilon well
// below half a voxel is safe.
const DefaultEpsilon = 1e-6

// StitchOptions configure the boundary merge.
type StitchOptions struct {
	// Epsilon is the coincidence tolerance for boundary vertices.
	// Zero selects DefaultEpsilon.
	Epsilon float64
	// Outer, if non-nil, is the global volume bounding box. Surface edges
	// lying on it are legitimately open and excused from the integrity check.
	Outer *d3.Box
}

// StitchError reports a boundary edge left open after merging, i.e.
// mismatched geometry between two neighboring blocks. The stitched mesh is
// not usable when this error is returned.
type StitchError struct {
	Label  uint64
	Blocks [2]blockmesh.V3i // the offending block pair
	Edge   [2]r3.Vec        // endpoints of the first open edge found
	Open   int              // total count of open edges off the volume bound
}

func (e *StitchError) Error() string {
	return fmt.Sprintf("stitch: label %d: %d open boundary edge(s) between blocks %v and %v, first at %v-%v",
		e.Label, e.Open, e.Blocks[0], e.Blocks[1], e.Edge[0], e.Edge[1])
}

// Stitch merges the partial meshes of one label into a single mesh with no
// duplicate boundary vertices and no seams. Parts are merged in ascending
// block-coordinate order so the result does not depend on extraction
// scheduling; when two boundary vertices agree within epsilon the position
// from the lower grid coordinate wins. Partial meshes are consumed.
//
// After merging, every edge must be incident to exactly two faces except on
// the volume's outer bound; a violation returns the mesh along with a
// *StitchError naming the offending block pair.
func Stitch(label uint64, parts []*Partial, opt StitchOptions) (*Mesh, error) {
	eps := opt.Epsilon
	if eps == 0 {
		eps = DefaultEpsilon
	}
	live := parts[:0:0]
	for _, p := range parts {
		if !p.IsEmpty() {
			live = append(live, p)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Block.Less(live[j].Block) })

	var (
		out       Mesh
		vertBlock []blockmesh.V3i // first contributing block per vertex
		faceBlock []blockmesh.V3i
	)
	if len(live) == 1 {
		// Single-block label: the stitched mesh is the partial unchanged.
		out = live[0].Mesh
		n := len(out.Vertices)
		vertBlock = repeatCoord(live[0].Block, n)
		faceBlock = repeatCoord(live[0].Block, len(out.Faces))
		return &out, checkSeams(label, &out, vertBlock, faceBlock, opt.Outer, eps)
	}

	ri := 1 / eps
	cache := make(map[[3]int64]int)
	seenFace := make(map[[3]int]struct{})
	for _, p := range live {
		remap := make([]int, len(p.Vertices))
		for i, v := range p.Vertices {
			if p.Tags[i] == 0 {
				// Interior vertices are unique to their block.
				remap[i] = len(out.Vertices)
				out.Vertices = append(out.Vertices, v)
				vertBlock = append(vertBlock, p.Block)
				continue
			}
			key := [3]int64{
				int64(math.Round(v.X * ri)),
				int64(math.Round(v.Y * ri)),
				int64(math.Round(v.Z * ri)),
			}
			if idx, ok := cache[key]; ok {
				remap[i] = idx
				continue
			}
			idx := len(out.Vertices)
			cache[key] = idx
			out.Vertices = append(out.Vertices, v)
			vertBlock = append(vertBlock, p.Block)
			remap[i] = idx
		}
		for _, f := range p.Faces {
			g := [3]int{remap[f[0]], remap[f[1]], remap[f[2]]}
			// Two blocks triangulating a shared degenerate boundary cell
			// identically produce coincident faces; keep the first.
			if _, dup := seenFace[sortedTriple(g)]; dup {
				continue
			}
			seenFace[sortedTriple(g)] = struct{}{}
			out.Faces = append(out.Faces, g)
			faceBlock = append(faceBlock, p.Block)
		}
	}
	return &out, checkSeams(label, &out, vertBlock, faceBlock, opt.Outer, eps)
}

// checkSeams runs the edge-incidence census and converts open edges off the
// volume's outer bound into a StitchError. Topology is never repaired.
func checkSeams(label uint64, m *Mesh, vertBlock, faceBlock []blockmesh.V3i, outer *d3.Box, eps float64) error {
	census := EdgeCensus(m)
	var firstErr *StitchError
	for e, inc := range census {
		if len(inc.Faces) != 1 {
			continue
		}
		a, b := m.Vertices[e[0]], m.Vertices[e[1]]
		if outer != nil && onSharedOuterFace(a, b, *outer, eps) {
			continue
		}
		owner := faceBlock[inc.Faces[0]]
		other := vertBlock[e[0]]
		if other == owner {
			other = vertBlock[e[1]]
		}
		if firstErr == nil {
			firstErr = &StitchError{
				Label:  label,
				Blocks: [2]blockmesh.V3i{owner, other},
				Edge:   [2]r3.Vec{a, b},
			}
		}
		firstErr.Open++
	}
	if firstErr != nil {
		return firstErr
	}
	return nil
}

// onSharedOuterFace reports whether both edge endpoints lie on a common face
// of the outer box.
func onSharedOuterFace(a, b r3.Vec, outer d3.Box, eps float64) bool {
	planes := [6][2]float64{
		{a.X - outer.Min.X, b.X - outer.Min.X},
		{a.X - outer.Max.X, b.X - outer.Max.X},
		{a.Y - outer.Min.Y, b.Y - outer.Min.Y},
		{a.Y - outer.Max.Y, b.Y - outer.Max.Y},
		{a.Z - outer.Min.Z, b.Z - outer.Min.Z},
		{a.Z - outer.Max.Z, b.Z - outer.Max.Z},
	}
	for _, d := range planes {
		if math.Abs(d[0]) <= eps && math.Abs(d[1]) <= eps {
			return true
		}
	}
	return false
}

func sortedTriple(f [3]int) [3]int {
	if f[0] > f[1] {
		f[0], f[1] = f[1], f[0]
	}
	if f[1] > f[2] {
		f[1], f[2] = f[2], f[1]
	}
	if f[0] > f[1] {
		f[0], f[1] = f[1], f[0]
	}
	return f
}

func repeatCoord(c blockmesh.V3i, n int) []blockmesh.V3i {
	s := make([]blockmesh.V3i, n)
	for i := range s {
		s[i] = c
	}
	return s
}
