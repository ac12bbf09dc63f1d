package layout

import (
	"cmp"
	"math"
	"slices"

	"github.com/matzehuels/blockflow/pkg/model"
)

type cellKey struct{ x, y int }

// maxSpanCells bounds the cells one rectangle is bucketed into. Larger
// rectangles are kept aside and checked by every query.
const maxSpanCells = 64

// spatialHash buckets rectangles into square cells so overlap queries only
// look at nearby nodes.
type spatialHash struct {
	cell  float64
	cells map[cellKey]map[string]struct{}
	wide  map[string]struct{}
	rects map[string]model.Rect
	order map[string]int
}

func newSpatialHash(cell float64) *spatialHash {
	if cell <= 0 {
		cell = DefaultCellSize
	}
	return &spatialHash{
		cell:  cell,
		cells: make(map[cellKey]map[string]struct{}),
		wide:  make(map[string]struct{}),
		rects: make(map[string]model.Rect),
		order: make(map[string]int),
	}
}

// oversized reports whether r covers more than maxSpanCells cells. The
// count is taken in floating point so huge rectangles cannot overflow it.
func (h *spatialHash) oversized(r model.Rect) bool {
	cols := math.Floor(r.Right()/h.cell) - math.Floor(r.X/h.cell) + 1
	rows := math.Floor(r.Bottom()/h.cell) - math.Floor(r.Y/h.cell) + 1
	return !(cols*rows <= maxSpanCells)
}

func (h *spatialHash) span(r model.Rect) (lo, hi cellKey) {
	lo = cellKey{int(math.Floor(r.X / h.cell)), int(math.Floor(r.Y / h.cell))}
	hi = cellKey{int(math.Floor(r.Right() / h.cell)), int(math.Floor(r.Bottom() / h.cell))}
	return lo, hi
}

func (h *spatialHash) insert(id string, r model.Rect) {
	if _, ok := h.order[id]; !ok {
		h.order[id] = len(h.order)
	}
	h.rects[id] = r
	if h.oversized(r) {
		h.wide[id] = struct{}{}
		return
	}
	lo, hi := h.span(r)
	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			k := cellKey{x, y}
			set, ok := h.cells[k]
			if !ok {
				set = make(map[string]struct{})
				h.cells[k] = set
			}
			set[id] = struct{}{}
		}
	}
}

func (h *spatialHash) remove(id string) {
	r, ok := h.rects[id]
	if !ok {
		return
	}
	delete(h.rects, id)
	if _, ok := h.wide[id]; ok {
		delete(h.wide, id)
		return
	}
	lo, hi := h.span(r)
	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			k := cellKey{x, y}
			delete(h.cells[k], id)
			if len(h.cells[k]) == 0 {
				delete(h.cells, k)
			}
		}
	}
}

func (h *spatialHash) move(id string, r model.Rect) {
	h.remove(id)
	h.insert(id, r)
}

// query returns the ids of rectangles within gap of r, in insertion order.
// A query area too large to walk cell by cell scans every rectangle.
func (h *spatialHash) query(r model.Rect, gap float64, skip string) []string {
	area := r.Inflate(gap)
	seen := make(map[string]struct{})
	var out []string
	check := func(id string) {
		if id == skip {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		if r.Overlaps(h.rects[id], gap) {
			out = append(out, id)
		}
	}

	if h.oversized(area) {
		for id := range h.rects {
			check(id)
		}
	} else {
		for id := range h.wide {
			check(id)
		}
		lo, hi := h.span(area)
		for x := lo.x; x <= hi.x; x++ {
			for y := lo.y; y <= hi.y; y++ {
				for id := range h.cells[cellKey{x, y}] {
					check(id)
				}
			}
		}
	}
	slices.SortFunc(out, func(a, b string) int { return cmp.Compare(h.order[a], h.order[b]) })
	return out
}
