package layout

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/flow"
	"github.com/matzehuels/blockflow/pkg/model"
	"github.com/matzehuels/blockflow/pkg/observability"
)

// Defaults used by DefaultConfig.
const (
	DefaultGrid     = 16
	DefaultGap      = 16
	DefaultCellSize = 256
	DefaultMaxSteps = 512
)

// ErrNotMeasured is returned when the subject of a pass has no size yet.
var ErrNotMeasured = stderrors.New("node has not been measured")

// Priority decides which side of a collision moves.
type Priority int

const (
	// SubjectYields moves the subject until it is clear; everything else
	// stays put. Used when a node is added or first measured.
	SubjectYields Priority = iota
	// NeighborsYield keeps the subject fixed and pushes overlapping
	// neighbors away, transitively. Used when the user drags or resizes.
	NeighborsYield
)

func (p Priority) String() string {
	switch p {
	case SubjectYields:
		return "subject-yields"
	case NeighborsYield:
		return "neighbors-yield"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Config controls the adjuster.
type Config struct {
	// Grid is the snap increment applied to pushed coordinates.
	Grid float64
	// Gap is the clearance kept between nodes.
	Gap float64
	// CellSize is the bucket size of the broad-phase spatial hash.
	CellSize float64
	// MaxSteps bounds the number of pushes in one pass.
	MaxSteps int
}

// DefaultConfig returns the default layout settings.
func DefaultConfig() Config {
	return Config{
		Grid:     DefaultGrid,
		Gap:      DefaultGap,
		CellSize: DefaultCellSize,
		MaxSteps: DefaultMaxSteps,
	}
}

// Move records one node displaced by a pass.
type Move struct {
	ID   string         `json:"id"`
	From model.Position `json:"from"`
	To   model.Position `json:"to"`
}

// Result summarizes a pass.
type Result struct {
	Moves []Move `json:"moves"`
	// Truncated is set when the pass stopped at MaxSteps.
	Truncated bool `json:"truncated,omitempty"`
}

// Adjuster resolves overlaps around one node at a time.
type Adjuster struct {
	cfg Config
	log *log.Logger
}

// New creates an adjuster. A nil logger uses log.Default().
func New(cfg Config, logger *log.Logger) *Adjuster {
	def := DefaultConfig()
	if cfg.Grid < 0 {
		cfg.Grid = 0
	}
	if cfg.Gap < 0 {
		cfg.Gap = 0
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = def.CellSize
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = def.MaxSteps
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Adjuster{cfg: cfg, log: logger}
}

// Config returns the adjuster's settings.
func (a *Adjuster) Config() Config { return a.cfg }

// Adjust resolves the overlaps involving node id and applies the resulting
// moves to s in one transaction. Nodes without a size are not obstacles.
// Running Adjust again on the result moves nothing.
func (a *Adjuster) Adjust(s *flow.Store, id string, p Priority) (Result, error) {
	start := time.Now()
	res, err := a.adjust(s, id, p)
	observability.Layout().OnAdjust(p.String(), len(res.Moves), time.Since(start), err)
	if err != nil {
		return res, err
	}
	if len(res.Moves) > 0 {
		a.log.Debug("layout adjusted", "node", id, "priority", p, "moved", len(res.Moves), "truncated", res.Truncated)
	}
	return res, nil
}

func (a *Adjuster) adjust(s *flow.Store, id string, p Priority) (Result, error) {
	subject, ok := s.Node(id)
	if !ok {
		return Result{}, errors.New(errors.ErrCodeNotFound, "node %s not found", id)
	}
	if !subject.Measured() {
		return Result{}, fmt.Errorf("node %s: %w", id, ErrNotMeasured)
	}

	w := newWorld(s.Nodes(), a.cfg.CellSize)
	switch p {
	case SubjectYields:
		a.subjectYields(w, id)
	case NeighborsYield:
		a.neighborsYield(w, id)
	default:
		return Result{}, errors.New(errors.ErrCodeInvalidInput, "unknown layout priority %d", int(p))
	}

	res := w.result()
	if len(res.Moves) == 0 {
		return res, nil
	}
	err := s.Batch(func(tx *flow.Tx) error {
		for _, m := range res.Moves {
			to := m.To
			if err := tx.UpdateNodeGeometry(m.ID, &to, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("apply layout moves: %w", err)
	}
	return res, nil
}

// world is the working copy of node rectangles a pass operates on.
type world struct {
	idx       *spatialHash
	from      map[string]model.Position
	moved     []string
	truncated bool
}

func newWorld(nodes []model.Node, cell float64) *world {
	w := &world{idx: newSpatialHash(cell), from: make(map[string]model.Position)}
	for _, n := range nodes {
		if n.Measured() {
			w.idx.insert(n.ID, n.Bounds())
		}
	}
	return w
}

func (w *world) rect(id string) model.Rect { return w.idx.rects[id] }

func (w *world) set(id string, r model.Rect) {
	if _, ok := w.from[id]; !ok {
		old := w.rect(id)
		w.from[id] = model.Position{X: old.X, Y: old.Y}
		w.moved = append(w.moved, id)
	}
	w.idx.move(id, r)
}

func (w *world) result() Result {
	res := Result{Truncated: w.truncated}
	for _, id := range w.moved {
		r := w.rect(id)
		to := model.Position{X: r.X, Y: r.Y}
		if to == w.from[id] {
			continue
		}
		res.Moves = append(res.Moves, Move{ID: id, From: w.from[id], To: to})
	}
	return res
}

func (a *Adjuster) subjectYields(w *world, id string) {
	r := w.rect(id)
	var dir *push
	for steps := 0; ; steps++ {
		hits := w.idx.query(r, a.cfg.Gap, id)
		if len(hits) == 0 {
			break
		}
		if steps >= a.cfg.MaxSteps {
			w.truncated = true
			break
		}
		if dir == nil {
			d := choosePush(r, w.rect(hits[0]), a.cfg.Gap)
			dir = &d
		}
		for _, h := range hits {
			r = dir.clear(r, w.rect(h), a.cfg.Gap)
		}
		r = dir.snap(r, a.cfg.Grid)
	}
	if r != w.rect(id) {
		w.set(id, r)
	}
}

func (a *Adjuster) neighborsYield(w *world, id string) {
	fixed := map[string]bool{id: true}
	queue := []string{id}
	steps := 0
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		fr := w.rect(f)

		for _, n := range w.idx.query(fr, a.cfg.Gap, f) {
			if fixed[n] {
				continue
			}
			if steps >= a.cfg.MaxSteps {
				w.truncated = true
				return
			}
			nr := w.rect(n)
			if !nr.Overlaps(fr, a.cfg.Gap) {
				continue
			}
			dir := choosePush(nr, fr, a.cfg.Gap)
			nr = dir.snap(dir.clear(nr, fr, a.cfg.Gap), a.cfg.Grid)

			// Keep going past fixed nodes in the same direction.
			for range len(fixed) {
				var blocked bool
				for _, b := range w.idx.query(nr, a.cfg.Gap, n) {
					if fixed[b] {
						nr = dir.clear(nr, w.rect(b), a.cfg.Gap)
						blocked = true
					}
				}
				if !blocked {
					break
				}
				nr = dir.snap(nr, a.cfg.Grid)
			}

			w.set(n, nr)
			fixed[n] = true
			queue = append(queue, n)
			steps++
		}
	}
}

// push is a direction along one axis.
type push struct {
	horizontal bool
	sign       float64
}

// choosePush picks the axis on which moving and fixed overlap least and the
// direction that points from fixed's center to moving's center. Coincident
// centers push toward positive coordinates.
func choosePush(moving, fixed model.Rect, gap float64) push {
	ox := min(moving.Right(), fixed.Right()) - max(moving.X, fixed.X) + gap
	oy := min(moving.Bottom(), fixed.Bottom()) - max(moving.Y, fixed.Y) + gap
	mc, fc := moving.Center(), fixed.Center()

	p := push{horizontal: ox <= oy, sign: 1}
	if p.horizontal {
		if mc.X < fc.X {
			p.sign = -1
		}
	} else if mc.Y < fc.Y {
		p.sign = -1
	}
	return p
}

// clear moves r along p just far enough to keep gap from o. Positions
// already past o are kept.
func (p push) clear(r, o model.Rect, gap float64) model.Rect {
	switch {
	case p.horizontal && p.sign > 0:
		r.X = max(r.X, o.Right()+gap)
	case p.horizontal:
		r.X = min(r.X, o.X-gap-r.W)
	case p.sign > 0:
		r.Y = max(r.Y, o.Bottom()+gap)
	default:
		r.Y = min(r.Y, o.Y-gap-r.H)
	}
	return r
}

// snap rounds the pushed coordinate to the grid, away from the obstacle.
func (p push) snap(r model.Rect, grid float64) model.Rect {
	switch {
	case p.horizontal && p.sign > 0:
		r.X = model.SnapUp(r.X, grid)
	case p.horizontal:
		r.X = model.SnapDown(r.X, grid)
	case p.sign > 0:
		r.Y = model.SnapUp(r.Y, grid)
	default:
		r.Y = model.SnapDown(r.Y, grid)
	}
	return r
}
