package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soypat/blockmesh"
	"github.com/soypat/blockmesh/mesh"
	"github.com/soypat/blockmesh/render"
)

// twoLabelVolume spans two 8-voxel-wide blocks: label 1 straddles the
// seam, label 2 sits inside the second block.
func twoLabelVolume() *blockmesh.ArrayVolume {
	vol := blockmesh.NewArrayVolume(blockmesh.V3i{16, 8, 8}, blockmesh.V3i{8, 8, 8})
	vol.FillBox(blockmesh.V3i{4, 2, 2}, blockmesh.V3i{12, 6, 6}, 1)
	vol.FillBox(blockmesh.V3i{13, 1, 1}, blockmesh.V3i{15, 3, 3}, 2)
	return vol
}

func testConfig() Config {
	c := DefaultConfig()
	c.Workers = 4
	return c
}

func TestRunTwoLabels(t *testing.T) {
	var sink render.MemSink
	results, err := Run(context.Background(), twoLabelVolume(), &sink, testConfig(), Discard)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for i, res := range results {
		if res.Label != uint64(i+1) {
			t.Fatalf("results not sorted by label: %v", results)
		}
		if res.Err != nil {
			t.Fatalf("label %d failed: %v", res.Label, res.Err)
		}
		m := sink.Mesh(res.Label)
		if m == nil || res.Faces != len(m.Faces) {
			t.Fatalf("label %d: result reports %d faces, sink disagrees", res.Label, res.Faces)
		}
		rep := mesh.CheckManifold(m, nil, 0)
		if !rep.IsClosed() || len(rep.NonManifold) != 0 {
			t.Fatalf("label %d not watertight: %d open, %d nonmanifold", res.Label, len(rep.Open), len(rep.NonManifold))
		}
		if len(m.Normals) != len(m.Vertices) {
			t.Fatalf("label %d: %d normals for %d vertices", res.Label, len(m.Normals), len(m.Vertices))
		}
	}
}

func TestRunSmoothAndSimplify(t *testing.T) {
	cfg := testConfig()
	cfg.DecimateFraction = 0.5
	cfg.SmoothIterations = 2
	cfg.SmoothRelax = 0.5
	var sink render.MemSink
	results, err := Run(context.Background(), twoLabelVolume(), &sink, cfg, Discard)
	if err != nil {
		t.Fatal(err)
	}
	for _, res := range results {
		if res.Err != nil {
			t.Fatalf("label %d failed: %v", res.Label, res.Err)
		}
		rep := mesh.CheckManifold(sink.Mesh(res.Label), nil, 0)
		if !rep.IsClosed() {
			t.Fatalf("label %d opened up after processing: %d edges", res.Label, len(rep.Open))
		}
	}
}

// metadataVolume over-reports a label that occupies no voxel.
type metadataVolume struct {
	*blockmesh.ArrayVolume
	phantom uint64
}

func (v *metadataVolume) BlockLabels(ctx context.Context, coord blockmesh.V3i) ([]uint64, error) {
	labels, err := v.ArrayVolume.BlockLabels(ctx, coord)
	if err != nil {
		return nil, err
	}
	return append(labels, v.phantom), nil
}

func TestRunMetadataOnlyLabel(t *testing.T) {
	src := &metadataVolume{ArrayVolume: twoLabelVolume(), phantom: 77}
	var sink render.MemSink
	results, err := Run(context.Background(), src, &sink, testConfig(), Discard)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, res := range results {
		if res.Label != 77 {
			if res.Err != nil {
				t.Fatalf("label %d failed alongside the phantom: %v", res.Label, res.Err)
			}
			continue
		}
		found = true
		var degenerate *DegenerateMeshError
		if !errors.As(res.Err, &degenerate) {
			t.Fatalf("phantom label: got %v, want *DegenerateMeshError", res.Err)
		}
		if sink.Mesh(77) != nil {
			t.Fatal("phantom label reached the sink")
		}
	}
	if !found {
		t.Fatal("phantom label missing from results")
	}
}

// faultyVolume fails ReadBlock for one grid coordinate.
type faultyVolume struct {
	*blockmesh.ArrayVolume
	bad blockmesh.V3i
}

var errDisk = fmt.Errorf("simulated read failure")

func (v *faultyVolume) ReadBlock(ctx context.Context, coord blockmesh.V3i) (*blockmesh.Block, error) {
	if coord == v.bad {
		return nil, errDisk
	}
	return v.ArrayVolume.ReadBlock(ctx, coord)
}

func TestRunBlockFailureIsolation(t *testing.T) {
	// Three blocks in a row. Label 1 lives in the first block, label 3 in
	// the failing third block, and the empty middle block keeps label 1's
	// halo reads away from the failure.
	vol := blockmesh.NewArrayVolume(blockmesh.V3i{24, 8, 8}, blockmesh.V3i{8, 8, 8})
	vol.FillBox(blockmesh.V3i{2, 2, 2}, blockmesh.V3i{6, 6, 6}, 1)
	vol.FillBox(blockmesh.V3i{18, 2, 2}, blockmesh.V3i{22, 6, 6}, 3)
	src := &faultyVolume{ArrayVolume: vol, bad: blockmesh.V3i{2, 0, 0}}

	var sink render.MemSink
	results, err := Run(context.Background(), src, &sink, testConfig(), Discard)
	if err != nil {
		t.Fatalf("one bad block must not fail the run: %v", err)
	}
	byLabel := map[uint64]Result{}
	for _, res := range results {
		byLabel[res.Label] = res
	}
	if res := byLabel[1]; res.Err != nil {
		t.Fatalf("label 1 should be unaffected: %v", res.Err)
	}
	if sink.Mesh(1) == nil {
		t.Fatal("label 1 missing from sink")
	}
	res := byLabel[3]
	var berr *blockmesh.BlockUnavailableError
	if !errors.As(res.Err, &berr) {
		t.Fatalf("label 3: got %v, want *BlockUnavailableError", res.Err)
	}
	if berr.Coord != src.bad || !errors.Is(berr, errDisk) {
		t.Fatalf("label 3 error misattributed: %v", berr)
	}
	if sink.Mesh(3) != nil {
		t.Fatal("failed label reached the sink")
	}
}

// slowSink honors its context and takes long enough that the extraction
// workers are done before the write completes.
type slowSink struct {
	render.MemSink
	delay  time.Duration
	writes int32
}

func (s *slowSink) WriteMesh(ctx context.Context, label uint64, m *mesh.Mesh) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.delay):
	}
	atomic.AddInt32(&s.writes, 1)
	return s.MemSink.WriteMesh(ctx, label, m)
}

func TestRunSinkOutlivesWorkers(t *testing.T) {
	// Finishers keep running after the last block task returns. A sink that
	// checks its context must not see a cancellation nobody requested.
	sink := &slowSink{delay: 100 * time.Millisecond}
	results, err := Run(context.Background(), twoLabelVolume(), sink, testConfig(), Discard)
	if err != nil {
		t.Fatal(err)
	}
	for _, res := range results {
		if res.Err != nil {
			t.Fatalf("label %d spuriously failed: %v", res.Label, res.Err)
		}
	}
	if got := atomic.LoadInt32(&sink.writes); got != 2 {
		t.Fatalf("%d of 2 writes completed", got)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, twoLabelVolume(), nil, testConfig(), Discard)
	if err == nil {
		t.Fatal("cancelled context did not fail the run")
	}
}

// cancelOnRead cancels the run's context when a chosen block is read.
type cancelOnRead struct {
	*blockmesh.ArrayVolume
	trigger blockmesh.V3i
	cancel  context.CancelFunc
}

func (v *cancelOnRead) ReadBlock(ctx context.Context, coord blockmesh.V3i) (*blockmesh.Block, error) {
	if coord == v.trigger {
		v.cancel()
	}
	return v.ArrayVolume.ReadBlock(ctx, coord)
}

// tardySink ignores its context and finishes writes on its own schedule.
type tardySink struct {
	delay  time.Duration
	writes int32
}

func (s *tardySink) WriteMesh(context.Context, uint64, *mesh.Mesh) error {
	time.Sleep(s.delay)
	atomic.AddInt32(&s.writes, 1)
	return nil
}

func TestRunFailureWaitsForFinishers(t *testing.T) {
	// Label 1 lives in the first block. Its halo read of the second block
	// cancels the run, so the single serial worker's next block task fails
	// the extraction group while label 1's finisher is still writing. Run
	// must not return before that write lands.
	vol := blockmesh.NewArrayVolume(blockmesh.V3i{16, 8, 8}, blockmesh.V3i{8, 8, 8})
	vol.FillBox(blockmesh.V3i{2, 2, 2}, blockmesh.V3i{6, 6, 6}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancelOnRead{ArrayVolume: vol, trigger: blockmesh.V3i{1, 0, 0}, cancel: cancel}
	sink := &tardySink{delay: 50 * time.Millisecond}
	cfg := testConfig()
	cfg.Workers = 1

	_, err := Run(ctx, src, sink, cfg, Discard)
	if err == nil {
		t.Fatal("cancelled run did not fail")
	}
	if got := atomic.LoadInt32(&sink.writes); got != 1 {
		t.Fatalf("Run returned with %d of 1 sink writes complete", got)
	}
}

func TestRunHaloFailureNamesNeighbor(t *testing.T) {
	// The label's own block reads fine; the halo read of its neighbor does
	// not. The reported error must name the neighbor.
	vol := blockmesh.NewArrayVolume(blockmesh.V3i{16, 8, 8}, blockmesh.V3i{8, 8, 8})
	vol.FillBox(blockmesh.V3i{2, 2, 2}, blockmesh.V3i{6, 6, 6}, 1)
	src := &faultyVolume{ArrayVolume: vol, bad: blockmesh.V3i{1, 0, 0}}
	results, err := Run(context.Background(), src, nil, testConfig(), Discard)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	var berr *blockmesh.BlockUnavailableError
	if !errors.As(results[0].Err, &berr) {
		t.Fatalf("got %v, want *BlockUnavailableError", results[0].Err)
	}
	if berr.Coord != src.bad {
		t.Fatalf("error names block %v, want the failed neighbor %v", berr.Coord, src.bad)
	}
}
