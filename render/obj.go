package render

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/soypat/blockmesh/mesh"
)

// CreateOBJ writes m to path in Wavefront OBJ format.
func CreateOBJ(path string, m *mesh.Mesh) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteOBJ(file, m)
}

// WriteOBJ writes m to w in Wavefront OBJ format. Vertex normals are
// emitted when present; OBJ indices are 1-based.
func WriteOBJ(w io.Writer, m *mesh.Mesh) error {
	if m.IsEmpty() {
		return errors.New("empty mesh")
	}
	bw := bufio.NewWriter(w)
	for _, v := range m.Vertices {
		fmt.Fprintf(bw, "v %g %g %g\n", v.X, v.Y, v.Z)
	}
	withNormals := len(m.Normals) == len(m.Vertices)
	if withNormals {
		for _, n := range m.Normals {
			fmt.Fprintf(bw, "vn %g %g %g\n", n.X, n.Y, n.Z)
		}
	}
	for _, f := range m.Faces {
		if withNormals {
			fmt.Fprintf(bw, "f %d//%d %d//%d %d//%d\n",
				f[0]+1, f[0]+1, f[1]+1, f[1]+1, f[2]+1, f[2]+1)
		} else {
			fmt.Fprintf(bw, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1)
		}
	}
	return bw.Flush()
}
