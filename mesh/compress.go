package mesh

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"gonum.org/v1/gonum/spatial/r3"
)

// Compressed mesh framing: an lz4 frame whose payload is a small header
// followed by float32 vertex positions, uint32 face indices and optional
// float32 normals, all little endian. Positions are stored single precision,
// which is lossless for the integer and half-integer lattices extraction and
// smoothing produce at block scale.

var compressMagic = [4]byte{'b', 'm', 'z', '1'}

type compressHeader struct {
	Magic    [4]byte
	Vertices uint32
	Faces    uint32
	Normals  uint32
}

// Compress encodes the mesh into a single lz4 frame for cold storage.
func Compress(m *Mesh) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	hdr := compressHeader{
		Magic:    compressMagic,
		Vertices: uint32(len(m.Vertices)),
		Faces:    uint32(len(m.Faces)),
		Normals:  uint32(len(m.Normals)),
	}
	if err := binary.Write(zw, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if err := binary.Write(zw, binary.LittleEndian, flattenVecs(m.Vertices)); err != nil {
		return nil, err
	}
	flatFaces := make([]uint32, 0, 3*len(m.Faces))
	for _, f := range m.Faces {
		flatFaces = append(flatFaces, uint32(f[0]), uint32(f[1]), uint32(f[2]))
	}
	if err := binary.Write(zw, binary.LittleEndian, flatFaces); err != nil {
		return nil, err
	}
	if len(m.Normals) > 0 {
		if err := binary.Write(zw, binary.LittleEndian, flattenVecs(m.Normals)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decodes a mesh encoded by Compress.
func Decompress(b []byte) (*Mesh, error) {
	zr := lz4.NewReader(bytes.NewReader(b))
	var hdr compressHeader
	if err := binary.Read(zr, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("compressed mesh header: %w", err)
	}
	if hdr.Magic != compressMagic {
		return nil, fmt.Errorf("bad compressed mesh magic %q", hdr.Magic[:])
	}
	if hdr.Normals != 0 && hdr.Normals != hdr.Vertices {
		return nil, fmt.Errorf("normal count %d does not match vertex count %d", hdr.Normals, hdr.Vertices)
	}
	// Counts must be plausible for the frame size before anything is
	// allocated from them. lz4 expands at most 255x, so a payload larger
	// than that bound cannot be present in the frame.
	const maxCompressRatio = 255
	payload := 12 * (int64(hdr.Vertices) + int64(hdr.Faces) + int64(hdr.Normals))
	if payload > int64(len(b))*maxCompressRatio {
		return nil, fmt.Errorf("compressed mesh header implausible: %d vertices, %d faces in a %d byte frame",
			hdr.Vertices, hdr.Faces, len(b))
	}
	verts, err := readVecs(zr, int(hdr.Vertices))
	if err != nil {
		return nil, fmt.Errorf("compressed mesh vertices: %w", err)
	}
	flatFaces := make([]uint32, 3*hdr.Faces)
	if err := binary.Read(zr, binary.LittleEndian, flatFaces); err != nil {
		return nil, fmt.Errorf("compressed mesh faces: %w", err)
	}
	m := &Mesh{Vertices: verts, Faces: make([][3]int, hdr.Faces)}
	for i := range m.Faces {
		m.Faces[i] = [3]int{int(flatFaces[3*i]), int(flatFaces[3*i+1]), int(flatFaces[3*i+2])}
		for _, vi := range m.Faces[i] {
			if vi >= len(m.Vertices) {
				return nil, fmt.Errorf("face %d references vertex %d of %d", i, vi, len(m.Vertices))
			}
		}
	}
	if hdr.Normals > 0 {
		if m.Normals, err = readVecs(zr, int(hdr.Normals)); err != nil {
			return nil, fmt.Errorf("compressed mesh normals: %w", err)
		}
	}
	return m, nil
}

func flattenVecs(vs []r3.Vec) []float32 {
	flat := make([]float32, 0, 3*len(vs))
	for _, v := range vs {
		flat = append(flat, float32(v.X), float32(v.Y), float32(v.Z))
	}
	return flat
}

func readVecs(r io.Reader, n int) ([]r3.Vec, error) {
	flat := make([]float32, 3*n)
	if err := binary.Read(r, binary.LittleEndian, flat); err != nil {
		return nil, err
	}
	vs := make([]r3.Vec, n)
	for i := range vs {
		vs[i] = r3.Vec{
			X: float64(flat[3*i]),
			Y: float64(flat[3*i+1]),
			Z: float64(flat[3*i+2]),
		}
	}
	return vs, nil
}
