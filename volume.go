package blockmesh

import (
	"context"
	"sort"
)

// Block is an axis-aligned cuboid region of a labeled volume. Data holds one
// uint64 label per voxel in x-fastest order. Offset is the global voxel
// coordinate of the block's minimum corner.
type Block struct {
	Coord  V3i // grid coordinate of the block within the volume.
	Offset V3i
	Size   V3i
	Data   []uint64
}

// index returns the Data index of local voxel (x,y,z). No bounds check.
func (b *Block) index(x, y, z int) int {
	return x + b.Size[0]*(y+b.Size[1]*z)
}

// At returns the label of the voxel at local coordinate (x,y,z).
func (b *Block) At(x, y, z int) uint64 {
	return b.Data[b.index(x, y, z)]
}

// Bounds returns the half-open global voxel range [min,max) the block covers.
func (b *Block) Bounds() (min, max V3i) {
	return b.Offset, b.Offset.Add(b.Size)
}

// Labels returns the sorted set of labels present in the block,
// excluding Background.
func (b *Block) Labels() []uint64 {
	seen := make(map[uint64]struct{})
	for _, v := range b.Data {
		if v != Background {
			seen[v] = struct{}{}
		}
	}
	labels := make([]uint64, 0, len(seen))
	for v := range seen {
		labels = append(labels, v)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// VolumeSource supplies labeled blocks of a volume on demand. Implementations
// must be safe for concurrent reads. ReadBlock and BlockLabels return
// ErrNoBlock for coordinates outside the volume.
type VolumeSource interface {
	// Blocks lists the grid coordinates of all blocks in the volume.
	Blocks() []V3i
	// Extent returns the half-open global voxel bounds [min,max) covered by
	// the volume.
	Extent() (min, max V3i)
	// BlockLabels returns the set of labels present in the block. It may be
	// served from metadata and can disagree with voxel data only by listing
	// labels that turn out to have no voxels.
	BlockLabels(ctx context.Context, coord V3i) ([]uint64, error)
	// ReadBlock returns the labeled sub-array at the grid coordinate along
	// with its global offset and extents.
	ReadBlock(ctx context.Context, coord V3i) (*Block, error)
}

// ArrayVolume is an in-memory VolumeSource backed by a single label array
// chopped into a regular block grid. The final block along each axis may be
// smaller than BlockSize when the array size is not a multiple of it.
type ArrayVolume struct {
	size      V3i
	blockSize V3i
	grid      V3i
	data      []uint64
}

// NewArrayVolume returns a volume of the given voxel extents split into
// blocks of blockSize voxels. All labels start as Background.
func NewArrayVolume(size, blockSize V3i) *ArrayVolume {
	grid := V3i{}
	for i := range grid {
		if size[i] <= 0 || blockSize[i] <= 0 {
			panic("volume and block extents must be positive")
		}
		grid[i] = (size[i] + blockSize[i] - 1) / blockSize[i]
	}
	return &ArrayVolume{
		size:      size,
		blockSize: blockSize,
		grid:      grid,
		data:      make([]uint64, size[0]*size[1]*size[2]),
	}
}

// Size returns the volume extents in voxels.
func (v *ArrayVolume) Size() V3i { return v.size }

// Extent returns the global voxel bounds of the volume.
func (v *ArrayVolume) Extent() (min, max V3i) { return V3i{}, v.size }

// Set writes a label at global voxel coordinate (x,y,z).
func (v *ArrayVolume) Set(x, y, z int, label uint64) {
	v.data[x+v.size[0]*(y+v.size[1]*z)] = label
}

// At returns the label at global voxel coordinate (x,y,z).
func (v *ArrayVolume) At(x, y, z int) uint64 {
	return v.data[x+v.size[0]*(y+v.size[1]*z)]
}

// FillBox sets all voxels in the half-open box [min,max) to label.
func (v *ArrayVolume) FillBox(min, max V3i, label uint64) {
	for z := min[2]; z < max[2]; z++ {
		for y := min[1]; y < max[1]; y++ {
			for x := min[0]; x < max[0]; x++ {
				v.Set(x, y, z, label)
			}
		}
	}
}

// Blocks lists all block coordinates in lexicographic order.
func (v *ArrayVolume) Blocks() []V3i {
	coords := make([]V3i, 0, v.grid[0]*v.grid[1]*v.grid[2])
	for x := 0; x < v.grid[0]; x++ {
		for y := 0; y < v.grid[1]; y++ {
			for z := 0; z < v.grid[2]; z++ {
				coords = append(coords, V3i{x, y, z})
			}
		}
	}
	return coords
}

func (v *ArrayVolume) inGrid(coord V3i) bool {
	for i := range coord {
		if coord[i] < 0 || coord[i] >= v.grid[i] {
			return false
		}
	}
	return true
}

// ReadBlock copies out the sub-array at the grid coordinate.
func (v *ArrayVolume) ReadBlock(_ context.Context, coord V3i) (*Block, error) {
	if !v.inGrid(coord) {
		return nil, ErrNoBlock
	}
	offset := coord.MulElem(v.blockSize)
	size := V3i{}
	for i := range size {
		size[i] = v.blockSize[i]
		if rem := v.size[i] - offset[i]; rem < size[i] {
			size[i] = rem
		}
	}
	b := &Block{
		Coord:  coord,
		Offset: offset,
		Size:   size,
		Data:   make([]uint64, size[0]*size[1]*size[2]),
	}
	for z := 0; z < size[2]; z++ {
		for y := 0; y < size[1]; y++ {
			src := offset[0] + v.size[0]*(offset[1]+y+v.size[1]*(offset[2]+z))
			dst := b.index(0, y, z)
			copy(b.Data[dst:dst+size[0]], v.data[src:src+size[0]])
		}
	}
	return b, nil
}

// BlockLabels scans the block's voxels for the labels present.
func (v *ArrayVolume) BlockLabels(ctx context.Context, coord V3i) ([]uint64, error) {
	b, err := v.ReadBlock(ctx, coord)
	if err != nil {
		return nil, err
	}
	return b.Labels(), nil
}
