// Package pipeline orchestrates block-wise surface extraction into
// per-label watertight meshes. Blocks are read and meshed concurrently;
// once the last block containing a label finishes, the label's parts are
// stitched, simplified, smoothed and handed to the sink. A failure while
// processing one label does not abort the others.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/soypat/blockmesh"
	"github.com/soypat/blockmesh/extract"
	"github.com/soypat/blockmesh/internal/d3"
	"github.com/soypat/blockmesh/mesh"
)

// Sink receives finished per-label meshes. WriteMesh may be called
// concurrently from several finisher goroutines.
type Sink interface {
	WriteMesh(ctx context.Context, label uint64, m *mesh.Mesh) error
}

// Result reports the outcome for a single label.
type Result struct {
	Label uint64
	// Faces is the face count of the delivered mesh. Zero when Err is set.
	Faces int
	Err   error
}

// DegenerateMeshError marks a label that the planning pass found in the
// volume but that produced no triangles, for example a label recorded in
// block metadata without occupying any voxel.
type DegenerateMeshError struct {
	Label uint64
}

func (e *DegenerateMeshError) Error() string {
	return fmt.Sprintf("label %d produced an empty mesh", e.Label)
}

// labelState tracks a label across the blocks that contain it.
type labelState struct {
	remaining int
	parts     []*mesh.Partial
	err       error
}

// plan is the output of the planning pass: which labels each block is
// expected to contribute, and the per-label block countdown.
type plan struct {
	labels  map[uint64]*labelState
	byBlock map[blockmesh.V3i][]uint64
}

// Run meshes every non-background label of src and delivers the results
// to sink. The returned slice has one entry per label, sorted by label;
// labels that failed carry their error and labels without any surface
// carry a *DegenerateMeshError. Run itself returns a non-nil error only
// for global failures such as a failed planning pass or a cancelled
// context.
func Run(ctx context.Context, src blockmesh.VolumeSource, sink Sink, cfg Config, logger Logger) ([]Result, error) {
	if logger == nil {
		logger = DefaultLogger
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	blocks := src.Blocks()
	pl, err := planLabels(ctx, src, blocks, cfg.workers())
	if err != nil {
		return nil, fmt.Errorf("planning pass: %w", err)
	}
	logger.Infof("meshing %d labels across %d blocks", len(pl.labels), len(blocks))

	vmin, vmax := src.Extent()
	p := &runner{
		ctx:   ctx,
		sink:  sink,
		cfg:   cfg,
		log:   logger,
		outer: d3.Box{Min: vmin.ToV3(), Max: vmax.ToV3()},
		plan:  pl,
		cache: newBlockCache(src),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers())
	for _, coord := range blocks {
		coord := coord
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return p.processBlock(gctx, coord)
		})
	}
	// Finishers must drain even when the extraction group failed: a caller
	// told the run is over must never see a late sink write.
	werr := g.Wait()
	p.finishers.Wait()
	if werr != nil {
		return nil, werr
	}

	results := make([]Result, 0, len(pl.labels))
	p.mu.Lock()
	for label, st := range pl.labels {
		r := Result{Label: label, Err: st.err}
		if st.err == nil {
			r.Faces = p.faces[label]
		}
		results = append(results, r)
	}
	p.mu.Unlock()
	sort.Slice(results, func(i, j int) bool { return results[i].Label < results[j].Label })
	return results, nil
}

type runner struct {
	// ctx is the run's context. Finishers run under it, not under the
	// extraction group's context: the group cancels its own the moment the
	// last block task returns, which may be mid-stitch.
	ctx   context.Context
	sink  Sink
	cfg   Config
	log   Logger
	outer d3.Box
	plan  *plan
	cache *blockCache

	mu        sync.Mutex
	faces     map[uint64]int
	finishers sync.WaitGroup
}

// planLabels inventories which labels appear in which blocks so a label
// can be released to stitching as soon as its last block is meshed.
func planLabels(ctx context.Context, src blockmesh.VolumeSource, blocks []blockmesh.V3i, workers int) (*plan, error) {
	var mu sync.Mutex
	pl := &plan{
		labels:  make(map[uint64]*labelState),
		byBlock: make(map[blockmesh.V3i][]uint64, len(blocks)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, coord := range blocks {
		coord := coord
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			labels, err := src.BlockLabels(gctx, coord)
			if err != nil {
				return &blockmesh.BlockUnavailableError{Coord: coord, Err: err}
			}
			mu.Lock()
			for _, label := range labels {
				if label == blockmesh.Background {
					continue
				}
				st := pl.labels[label]
				if st == nil {
					st = &labelState{}
					pl.labels[label] = st
				}
				st.remaining++
				pl.byBlock[coord] = append(pl.byBlock[coord], label)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pl, nil
}

// processBlock extracts every planned label of one block and deposits the
// partial meshes. A read failure fails only the labels planned for this
// block; sibling labels keep going.
func (p *runner) processBlock(ctx context.Context, coord blockmesh.V3i) error {
	planned := p.plan.byBlock[coord]
	if len(planned) == 0 {
		return nil
	}

	b, err := p.cache.get(ctx, coord)
	if err != nil {
		p.failBlock(coord, planned, err)
		return nil
	}
	halo, err := extract.BuildHalo(ctx, p.cache, b)
	if err != nil {
		p.failBlock(coord, planned, err)
		return nil
	}
	halo.Open = !p.cfg.CapBounds

	for _, label := range planned {
		part := extract.Extract(b, halo, label)
		p.deposit(label, part)
	}
	return nil
}

// failBlock records err against every label this block was planned to
// contribute and ticks their countdowns so siblings do not hang.
func (p *runner) failBlock(coord blockmesh.V3i, planned []uint64, err error) {
	p.log.Errorf("block %v unavailable: %v", coord, err)
	// Halo failures arrive already wrapped with the neighbor's coordinate.
	var werr *blockmesh.BlockUnavailableError
	if !errors.As(err, &werr) {
		werr = &blockmesh.BlockUnavailableError{Coord: coord, Err: err}
	}
	p.mu.Lock()
	for _, label := range planned {
		st := p.plan.labels[label]
		if st.err == nil {
			st.err = werr
		}
		st.remaining--
	}
	p.mu.Unlock()
}

// deposit hands one block's partial mesh to a label and, when it was the
// last pending block and no block failed for this label, spawns the
// finisher.
func (p *runner) deposit(label uint64, part *mesh.Partial) {
	p.mu.Lock()
	st := p.plan.labels[label]
	if part != nil && !part.IsEmpty() {
		st.parts = append(st.parts, part)
	}
	st.remaining--
	last := st.remaining == 0 && st.err == nil
	parts := st.parts
	p.mu.Unlock()

	if last {
		p.finishers.Add(1)
		go func() {
			defer p.finishers.Done()
			p.finish(label, parts)
		}()
	}
}

// finish assembles one label's final mesh and writes it to the sink.
func (p *runner) finish(label uint64, parts []*mesh.Partial) {
	m, err := p.assemble(label, parts)
	if err != nil {
		if _, degenerate := err.(*DegenerateMeshError); degenerate {
			p.log.Infof("label %d has no surface", label)
		} else {
			p.log.Errorf("label %d: %v", label, err)
		}
		p.setErr(label, err)
		return
	}
	if p.sink != nil {
		if err := p.sink.WriteMesh(p.ctx, label, m); err != nil {
			p.setErr(label, fmt.Errorf("writing label %d: %w", label, err))
			return
		}
	}
	p.mu.Lock()
	if p.faces == nil {
		p.faces = make(map[uint64]int)
	}
	p.faces[label] = len(m.Faces)
	p.mu.Unlock()
	p.log.Debugf("label %d done: %d vertices, %d faces", label, len(m.Vertices), len(m.Faces))
}

func (p *runner) assemble(label uint64, parts []*mesh.Partial) (*mesh.Mesh, error) {
	if len(parts) == 0 {
		return nil, &DegenerateMeshError{Label: label}
	}
	var outer *d3.Box
	if !p.cfg.CapBounds {
		b := p.outer
		outer = &b
	}
	m, err := mesh.Stitch(label, parts, mesh.StitchOptions{
		Epsilon: p.cfg.Epsilon,
		Outer:   outer,
	})
	if err != nil {
		return nil, err
	}
	if m.IsEmpty() {
		return nil, &DegenerateMeshError{Label: label}
	}

	warnf := func(format string, args ...interface{}) {
		p.log.Warningf("label %d: "+format, append([]interface{}{label}, args...)...)
	}
	target := mesh.Target{Fraction: p.cfg.DecimateFraction}
	if p.cfg.DecimateCount > 0 {
		target = mesh.Target{Count: p.cfg.DecimateCount}
	}
	simp := func() {
		m = mesh.Simplify(m, target, mesh.SimplifyOptions{
			MaxDeviation: p.cfg.MaxDeviation,
			Warnf:        warnf,
		})
	}
	smooth := func() {
		mesh.Smooth(m, p.cfg.SmoothIterations, p.cfg.SmoothRelax)
	}
	if p.cfg.Order == OrderSmoothFirst {
		smooth()
		simp()
	} else {
		simp()
		smooth()
	}
	mesh.ComputeNormals(m)
	if m.IsEmpty() {
		return nil, &DegenerateMeshError{Label: label}
	}
	return m, nil
}

func (p *runner) setErr(label uint64, err error) {
	p.mu.Lock()
	if st := p.plan.labels[label]; st != nil && st.err == nil {
		st.err = err
	}
	p.mu.Unlock()
}

// blockCache memoizes block reads so halo construction does not re-read
// neighbors that extraction already fetched. Concurrent callers of the
// same coordinate share one read.
type blockCache struct {
	src blockmesh.VolumeSource

	mu      sync.Mutex
	entries map[blockmesh.V3i]*cacheEntry
}

type cacheEntry struct {
	once  sync.Once
	block *blockmesh.Block
	err   error
}

func newBlockCache(src blockmesh.VolumeSource) *blockCache {
	return &blockCache{src: src, entries: make(map[blockmesh.V3i]*cacheEntry)}
}

func (c *blockCache) get(ctx context.Context, coord blockmesh.V3i) (*blockmesh.Block, error) {
	c.mu.Lock()
	e := c.entries[coord]
	if e == nil {
		e = &cacheEntry{}
		c.entries[coord] = e
	}
	c.mu.Unlock()
	e.once.Do(func() {
		e.block, e.err = c.src.ReadBlock(ctx, coord)
	})
	return e.block, e.err
}

// ReadBlock implements extract.BlockReader.
func (c *blockCache) ReadBlock(ctx context.Context, coord blockmesh.V3i) (*blockmesh.Block, error) {
	return c.get(ctx, coord)
}
