// Package oracle implements the deterministic mine field: a pure function
// of (seed, x, y) that never needs to be stored.
package oracle

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log"
	"math"
)

// Density is the fraction of cells that are mines.
const Density = 0.15

// Oracle is a deterministic mine predicate bound to a seed and grid size.
// All methods are pure and safe for concurrent use by multiple goroutines.
type Oracle struct {
	seed string
	w, h int
}

// New constructs an Oracle for the given seed and grid dimensions.
func New(seed string, w, h int) *Oracle {
	return &Oracle{seed: seed, w: w, h: h}
}

// IsMine reports whether (x, y) is a mine. Out-of-range coordinates are
// logged and return false rather than panicking.
func (o *Oracle) IsMine(x, y int) bool {
	if o == nil || x < 0 || x >= o.w || y < 0 || y >= o.h {
		log.Printf("oracle: out-of-range coordinate (%d,%d)", x, y)
		return false
	}
	return o.hash(x, y) < thresholdFor(Density)
}

// AdjacentMines sums IsMine over the eight wrap-aware neighbours of (x, y).
func (o *Oracle) AdjacentMines(x, y int) int {
	if o == nil || x < 0 || x >= o.w || y < 0 || y >= o.h {
		log.Printf("oracle: out-of-range coordinate (%d,%d)", x, y)
		return 0
	}
	count := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx := wrap(x+dx, o.w)
			ny := wrap(y+dy, o.h)
			if o.IsMine(nx, ny) {
				count++
			}
		}
	}
	return count
}

// hash computes the first 8 bytes of SHA-256(seed || ":" || x || "," || y)
// as a big-endian uint64.
func (o *Oracle) hash(x, y int) uint64 {
	payload := fmt.Sprintf("%s:%d,%d", o.seed, x, y)
	sum := sha256.Sum256([]byte(payload))
	return binary.BigEndian.Uint64(sum[:8])
}

// thresholdFor converts a density in [0,1) into the matching cutoff against
// a uniformly distributed 64-bit hash, i.e. h/2^64 < density.
func thresholdFor(density float64) uint64 {
	if density <= 0 {
		return 0
	}
	if density >= 1 {
		return ^uint64(0)
	}
	return uint64(math.Ldexp(density, 64))
}

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
