// Package extract produces the partial surface mesh of one label within one
// block. Faces are emitted between every voxel pair that disagrees on label
// membership, so vertices land exactly on the global integer corner lattice
// and two blocks extracting the same boundary generate bit-identical
// geometry. That exact agreement is the precondition the stitcher relies on.
//
// The voxel-pair test needs a one-voxel halo beyond the block: the six
// neighbor face slices, assembled by BuildHalo. A missing neighbor reads as
// background, which closes the surface at the volume's outer bound.
package extract

import (
	"context"
	"errors"

	"github.com/soypat/blockmesh"
	"github.com/soypat/blockmesh/mesh"
)

// Halo carries the one-voxel-thick label slices adjacent to each of a
// block's six faces.
type Halo struct {
	// Open controls the surface where the volume itself ends. When false,
	// missing neighbors read as background and the surface is capped flat at
	// the volume bound. When true they read as the queried label, leaving
	// the surface legitimately open there.
	Open bool

	size  blockmesh.V3i
	faces [6][]uint64 // indexed 2*axis+side, u-fastest over the off-axes.
}

// offAxes returns the two axes spanning the face perpendicular to axis,
// ordered so that cross(u,w) points along +axis.
func offAxes(axis int) (u, w int) {
	return (axis + 1) % 3, (axis + 2) % 3
}

// BlockReader is the subset of blockmesh.VolumeSource that halo assembly
// needs. It must be safe for concurrent use.
type BlockReader interface {
	ReadBlock(ctx context.Context, coord blockmesh.V3i) (*blockmesh.Block, error)
}

// BuildHalo reads the block's six face-adjacent neighbor slices from src.
// Neighbors outside the volume are skipped; any other read failure aborts.
func BuildHalo(ctx context.Context, src BlockReader, b *blockmesh.Block) (*Halo, error) {
	h := &Halo{size: b.Size}
	for axis := 0; axis < 3; axis++ {
		for side := 0; side < 2; side++ {
			step := blockmesh.V3i{}
			step[axis] = 2*side - 1
			nbCoord := b.Coord.Add(step)
			nb, err := src.ReadBlock(ctx, nbCoord)
			if errors.Is(err, blockmesh.ErrNoBlock) {
				continue
			}
			if err != nil {
				// Name the neighbor that failed, not the block being haloed.
				return nil, &blockmesh.BlockUnavailableError{Coord: nbCoord, Err: err}
			}
			// The neighbor layer touching this block: its maximal layer along
			// axis for our min side, its zero layer for our max side.
			layer := 0
			if side == 0 {
				layer = nb.Size[axis] - 1
			}
			u, w := offAxes(axis)
			slice := make([]uint64, b.Size[u]*b.Size[w])
			var p blockmesh.V3i
			p[axis] = layer
			for wi := 0; wi < b.Size[w]; wi++ {
				for ui := 0; ui < b.Size[u]; ui++ {
					p[u], p[w] = ui, wi
					slice[ui+b.Size[u]*wi] = nb.At(p[0], p[1], p[2])
				}
			}
			h.faces[2*axis+side] = slice
		}
	}
	return h, nil
}

// at returns the halo label adjacent to local voxel p across the given face.
// label is the label being extracted; it is echoed back for missing
// neighbors on open-bound halos so no capping face gets emitted.
func (h *Halo) at(face int, p blockmesh.V3i, label uint64) uint64 {
	if h == nil || h.faces[face] == nil {
		if h != nil && h.Open {
			return label
		}
		return blockmesh.Background
	}
	u, w := offAxes(face / 2)
	return h.faces[face][p[u]+h.size[u]*p[w]]
}

// Extract returns the partial surface of label within the block. The halo
// may be nil, in which case everything beyond the block reads as background.
// An absent label yields an empty partial, not an error. Extract holds no
// shared state and is safe to call concurrently for any block and label.
func Extract(b *blockmesh.Block, h *Halo, label uint64) *mesh.Partial {
	part := &mesh.Partial{Block: b.Coord}
	corners := make(map[blockmesh.V3i]int)
	vertex := func(c blockmesh.V3i) int {
		if i, ok := corners[c]; ok {
			return i
		}
		i := len(part.Vertices)
		corners[c] = i
		part.Vertices = append(part.Vertices, c.ToV3())
		part.Tags = append(part.Tags, cornerTag(c, b))
		return i
	}

	var p blockmesh.V3i
	for p[2] = 0; p[2] < b.Size[2]; p[2]++ {
		for p[1] = 0; p[1] < b.Size[1]; p[1]++ {
			for p[0] = 0; p[0] < b.Size[0]; p[0]++ {
				if b.At(p[0], p[1], p[2]) != label {
					continue
				}
				for axis := 0; axis < 3; axis++ {
					for side := 0; side < 2; side++ {
						q := p
						q[axis] += 2*side - 1
						var across uint64
						if q[axis] < 0 || q[axis] >= b.Size[axis] {
							across = h.at(2*axis+side, p, label)
						} else {
							across = b.At(q[0], q[1], q[2])
						}
						if across == label {
							continue
						}
						emitQuad(part, vertex, b.Offset.Add(p), axis, side)
					}
				}
			}
		}
	}
	return part
}

// emitQuad appends the two triangles of the unit face separating voxel cell
// base from its neighbor along axis, wound so the normal points out of the
// labeled voxel.
func emitQuad(part *mesh.Partial, vertex func(blockmesh.V3i) int, base blockmesh.V3i, axis, side int) {
	u, w := offAxes(axis)
	var eu, ew blockmesh.V3i
	eu[u] = 1
	ew[w] = 1
	c := base
	c[axis] += side // the face plane sits at the voxel's min or max corner.
	v00 := vertex(c)
	v10 := vertex(c.Add(eu))
	v11 := vertex(c.Add(eu).Add(ew))
	v01 := vertex(c.Add(ew))
	if side == 1 {
		part.Faces = append(part.Faces, [3]int{v00, v10, v11}, [3]int{v00, v11, v01})
	} else {
		part.Faces = append(part.Faces, [3]int{v00, v01, v11}, [3]int{v00, v11, v10})
	}
}

// cornerTag marks which block outer faces the global corner coordinate lies
// on. Interior corners return zero and are exempt from boundary merging.
func cornerTag(c blockmesh.V3i, b *blockmesh.Block) mesh.FaceMask {
	var tag mesh.FaceMask
	for axis := 0; axis < 3; axis++ {
		if c[axis] == b.Offset[axis] {
			tag |= 1 << (2 * axis)
		}
		if c[axis] == b.Offset[axis]+b.Size[axis] {
			tag |= 1 << (2*axis + 1)
		}
	}
	return tag
}
