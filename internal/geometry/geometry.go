// Package geometry computes punch-out regions for the tour overlay.
//
// A punch-out is a rectangular hole cut into the dimming overlay so that one
// UI region stays visible and interactive while a tour tip is shown. The
// region is the smallest axis-aligned rectangle enclosing every referenced
// element, in viewport coordinates.
package geometry

import (
	"slices"
	"sync"
)

// Rect is an axis-aligned rectangle in viewport pixels.
type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Margin adjusts a computed region: X/Y translate the origin and
// Width/Height grow the extent. Negative values shrink.
type Margin = Rect

// DOM is the element lookup the tour engine reads geometry from.
//
// BoundingRect returns the element's viewport rectangle and whether an
// element with that id exists. Implementations must not mutate the document.
type DOM interface {
	BoundingRect(id string) (Rect, bool)
}

// Available reports whether every id resolves to an element. An empty id
// set is trivially available.
func Available(dom DOM, ids []string) bool {
	for _, id := range ids {
		if _, ok := dom.BoundingRect(id); !ok {
			return false
		}
	}
	return true
}

// ComputeBounds returns the smallest rectangle containing the rectangles of
// all ids, adjusted by margin.
//
// ok is false when ids is empty or when any id has no element; callers treat
// that as "no punch-out" and dim the whole screen.
func ComputeBounds(dom DOM, ids []string, margin *Margin) (Rect, bool) {
	if len(ids) == 0 {
		return Rect{}, false
	}

	var minX, minY, maxX, maxY float64
	for i, id := range ids {
		r, ok := dom.BoundingRect(id)
		if !ok {
			return Rect{}, false
		}
		if i == 0 {
			minX, minY, maxX, maxY = r.X, r.Y, r.Right(), r.Bottom()
			continue
		}
		minX = min(minX, r.X)
		minY = min(minY, r.Y)
		maxX = max(maxX, r.Right())
		maxY = max(maxY, r.Bottom())
	}

	out := Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
	if margin != nil {
		out.X += margin.X
		out.Y += margin.Y
		out.Width += margin.Width
		out.Height += margin.Height
	}
	return out, true
}

// Calculator memoises [ComputeBounds] for one id set.
//
// The region is recomputed only when the id set, the margin or the
// availability of the elements changes, so a render loop can call
// [Calculator.Punchout] every frame without forcing a layout read.
type Calculator struct {
	mu sync.Mutex

	ids    []string
	margin *Margin

	valid     bool
	available bool
	rect      Rect
	ok        bool
}

// NewCalculator returns a [Calculator] for ids with an optional margin.
func NewCalculator(ids []string, margin *Margin) *Calculator {
	c := &Calculator{}
	c.SetTarget(ids, margin)
	return c
}

// SetTarget changes the id set and margin. The cached region is dropped
// only if either actually changed.
func (c *Calculator) SetTarget(ids []string, margin *Margin) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && slices.Equal(c.ids, ids) && sameMargin(c.margin, margin) {
		return
	}
	c.ids = slices.Clone(ids)
	if margin != nil {
		m := *margin
		c.margin = &m
	} else {
		c.margin = nil
	}
	c.valid = false
}

// Punchout returns the region for the current target. available is the
// caller's view of element availability (typically from the poller); a
// change in it forces a recompute.
func (c *Calculator) Punchout(dom DOM, available bool) (Rect, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.available == available {
		return c.rect, c.ok
	}
	c.rect, c.ok = ComputeBounds(dom, c.ids, c.margin)
	c.available = available
	c.valid = true
	return c.rect, c.ok
}

// Invalidate forces the next [Calculator.Punchout] to re-read the layout,
// e.g. after a window resize.
func (c *Calculator) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

func sameMargin(a, b *Margin) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
