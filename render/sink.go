// Package render serializes finished meshes to interchange formats and
// provides the sinks the meshing pipeline writes into.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/soypat/blockmesh/mesh"
)

// Format selects the on-disk encoding of a FileSink.
type Format int

const (
	// FormatSTL writes binary STL, one facet per triangle.
	FormatSTL Format = iota
	// FormatOBJ writes Wavefront OBJ with vertex normals.
	FormatOBJ
	// FormatCompressed writes the lz4 framed encoding of mesh.Compress.
	FormatCompressed
)

func (f Format) extension() string {
	switch f {
	case FormatSTL:
		return "stl"
	case FormatOBJ:
		return "obj"
	case FormatCompressed:
		return "bmz"
	}
	return "bin"
}

// FileSink writes one file per label under a directory, named
// <label>.<ext>.
type FileSink struct {
	Dir    string
	Format Format
}

// NewFileSink creates dir if needed and returns a sink writing format
// files into it.
func NewFileSink(dir string, format Format) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sink directory: %w", err)
	}
	return &FileSink{Dir: dir, Format: format}, nil
}

// Path returns the file a label is written to.
func (s *FileSink) Path(label uint64) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%d.%s", label, s.Format.extension()))
}

// WriteMesh implements pipeline.Sink.
func (s *FileSink) WriteMesh(ctx context.Context, label uint64, m *mesh.Mesh) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Path(label)
	switch s.Format {
	case FormatSTL:
		return CreateSTL(path, m)
	case FormatOBJ:
		return CreateOBJ(path, m)
	case FormatCompressed:
		b, err := mesh.Compress(m)
		if err != nil {
			return err
		}
		return os.WriteFile(path, b, 0o644)
	}
	return fmt.Errorf("unknown sink format %d", s.Format)
}

// MemSink retains meshes in memory, keyed by label.
type MemSink struct {
	mu     sync.Mutex
	meshes map[uint64]*mesh.Mesh
}

// WriteMesh implements pipeline.Sink.
func (s *MemSink) WriteMesh(_ context.Context, label uint64, m *mesh.Mesh) error {
	s.mu.Lock()
	if s.meshes == nil {
		s.meshes = make(map[uint64]*mesh.Mesh)
	}
	s.meshes[label] = m
	s.mu.Unlock()
	return nil
}

// Mesh returns the mesh stored for label, or nil.
func (s *MemSink) Mesh(label uint64) *mesh.Mesh {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meshes[label]
}

// Labels returns the labels written so far.
func (s *MemSink) Labels() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, 0, len(s.meshes))
	for label := range s.meshes {
		out = append(out, label)
	}
	return out
}
