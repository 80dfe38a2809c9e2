// Package region implements the wrap-aware rectangle used for broadcast
// scoping, initial-snapshot assembly, and persistence range queries.
package region

// Region is a rectangle [XMin, XMax] x [YMin, YMax] interpreted modulo a
// W x H grid. When XMin <= XMax the X interval is contiguous; otherwise it
// wraps (x >= XMin || x <= XMax). Same for Y.
type Region struct {
	XMin, XMax int
	YMin, YMax int
}

// Viewport builds the area of interest centred on (x, y) with the given
// half-extents, wrapped into [0, w) x [0, h).
func Viewport(x, y, radiusX, radiusY, w, h int) Region {
	return Region{
		XMin: wrap(x-radiusX, w),
		XMax: wrap(x+radiusX, w),
		YMin: wrap(y-radiusY, h),
		YMax: wrap(y+radiusY, h),
	}
}

// Contains reports whether (x, y) lies inside r using wrap-aware interval
// containment on each axis. x and y must already be normalized into
// [0, w) x [0, h); callers that receive raw coordinates should wrap them
// first.
func (r Region) Contains(x, y int) bool {
	return intervalContains(r.XMin, r.XMax, x) && intervalContains(r.YMin, r.YMax, y)
}

func intervalContains(lo, hi, v int) bool {
	if lo <= hi {
		return v >= lo && v <= hi
	}
	return v >= lo || v <= hi
}

// wrap folds v into [0, m).
func wrap(v, m int) int {
	if m <= 0 {
		return 0
	}
	v %= m
	if v < 0 {
		v += m
	}
	return v
}

// Wrap is the exported form of the same fold, used by callers outside this
// package that clamp raw coordinates (cursor updates, neighbour lookups)
// before building or testing a Region.
func Wrap(v, m int) int {
	return wrap(v, m)
}
