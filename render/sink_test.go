package render_test

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/soypat/blockmesh/mesh"
	"github.com/soypat/blockmesh/render"
)

func TestWriteOBJ(t *testing.T) {
	m := barMesh()
	mesh.ComputeNormals(m)
	var b bytes.Buffer
	if err := render.WriteOBJ(&b, m); err != nil {
		t.Fatal(err)
	}
	var nv, nvn, nf int
	sc := bufio.NewScanner(&b)
	for sc.Scan() {
		switch {
		case strings.HasPrefix(sc.Text(), "vn "):
			nvn++
		case strings.HasPrefix(sc.Text(), "v "):
			nv++
		case strings.HasPrefix(sc.Text(), "f "):
			nf++
		}
	}
	if nv != len(m.Vertices) || nvn != len(m.Normals) || nf != len(m.Faces) {
		t.Fatalf("OBJ has %d/%d/%d v/vn/f records, want %d/%d/%d",
			nv, nvn, nf, len(m.Vertices), len(m.Normals), len(m.Faces))
	}
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	for _, format := range []render.Format{render.FormatSTL, render.FormatOBJ, render.FormatCompressed} {
		sink, err := render.NewFileSink(dir, format)
		if err != nil {
			t.Fatal(err)
		}
		if err := sink.WriteMesh(context.Background(), 42, barMesh()); err != nil {
			t.Fatal(err)
		}
		info, err := os.Stat(sink.Path(42))
		if err != nil {
			t.Fatal(err)
		}
		if info.Size() == 0 {
			t.Fatalf("format %d wrote an empty file", format)
		}
	}
}

func TestFileSinkCompressedRoundTrip(t *testing.T) {
	sink, err := render.NewFileSink(t.TempDir(), render.FormatCompressed)
	if err != nil {
		t.Fatal(err)
	}
	m := barMesh()
	if err := sink.WriteMesh(context.Background(), 7, m); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(sink.Path(7))
	if err != nil {
		t.Fatal(err)
	}
	got, err := mesh.Decompress(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Vertices) != len(m.Vertices) || len(got.Faces) != len(m.Faces) {
		t.Fatalf("round trip changed counts: %d/%d", len(got.Vertices), len(got.Faces))
	}
}

func TestMemSink(t *testing.T) {
	var sink render.MemSink
	if err := sink.WriteMesh(context.Background(), 5, barMesh()); err != nil {
		t.Fatal(err)
	}
	if sink.Mesh(5) == nil || sink.Mesh(6) != nil {
		t.Fatal("MemSink lookup broken")
	}
	if labels := sink.Labels(); len(labels) != 1 || labels[0] != 5 {
		t.Fatalf("labels = %v", labels)
	}
}
