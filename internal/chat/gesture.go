package chat

import "time"

// Gesture detects a burst of clicks on the same target: threshold clicks
// where no gap between consecutive clicks exceeds window. A burst fires
// once and the count starts over.
type Gesture struct {
	threshold int
	window    time.Duration

	count  int
	last   time.Time
	target string
}

// NewGesture creates a detector. Threshold below 1 is treated as 1.
func NewGesture(threshold int, window time.Duration) *Gesture {
	if threshold < 1 {
		threshold = 1
	}
	return &Gesture{threshold: threshold, window: window}
}

// Click records a click on target at the given time and reports whether it
// completed a burst.
func (g *Gesture) Click(target string, at time.Time) bool {
	if g.count > 0 && (target != g.target || at.Sub(g.last) > g.window) {
		g.count = 0
	}
	g.count++
	g.last = at
	g.target = target

	if g.count >= g.threshold {
		g.Reset()
		return true
	}
	return false
}

// Count returns the clicks accumulated in the current burst.
func (g *Gesture) Count() int {
	return g.count
}

// Reset drops any partial burst.
func (g *Gesture) Reset() {
	g.count = 0
	g.target = ""
	g.last = time.Time{}
}
