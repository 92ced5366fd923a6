// Package blockmesh converts labeled voxel volumes into triangulated surface
// meshes, one mesh per label. Volumes too large to mesh in one piece are read
// as blocks; surfaces are extracted per block and welded back into a single
// watertight mesh per label by the mesh package's stitcher.
//
// The root package holds the shared volume data model: integer grid
// coordinates, labeled blocks and the VolumeSource accessor interface.
// Subpackages:
//
//	extract:  per-block, per-label surface extraction.
//	mesh:     mesh data model, stitching, simplification, smoothing, normals.
//	pipeline: parallel orchestration of extract -> stitch -> finish stages.
//	render:   mesh sinks (STL, OBJ) and codecs.
package blockmesh

import "errors"

// Background is the label value that is never meshed.
const Background uint64 = 0

// ErrNoBlock is returned by VolumeSource implementations when the requested
// grid coordinate lies outside the volume. It is not a failure: callers
// sampling padding treat the missing block as background.
var ErrNoBlock = errors.New("no block at grid coordinate")

// BlockUnavailableError reports a block the volume source could supply but
// did not, e.g. storage faults. It fails the pipelines of the labels present
// in that block and no others.
type BlockUnavailableError struct {
	Coord V3i
	Err   error
}

func (e *BlockUnavailableError) Error() string {
	return "block " + e.Coord.String() + " unavailable: " + e.Err.Error()
}

func (e *BlockUnavailableError) Unwrap() error { return e.Err }
