package lock

// resetPasses is how many clockwise passes through 0 make a reset gesture.
const resetPasses = 3

// ResetDetector recognises the reset gesture: three passes through 0 within
// one clockwise run.
//
// A run begins when the direction changes to clockwise; the Number that
// caused the change is not counted. Counting stops once a reset fires and
// resumes only on the next clockwise run. Counterclockwise rotation never
// resets.
type ResetDetector struct {
	counting bool
	zeros    int
}

// Observe feeds the next Number together with the direction detector's
// output for it, and reports whether a reset pulse fires.
func (r *ResetDetector) Observe(n int, dir Direction, dirChanged bool) bool {
	if dirChanged {
		r.counting = dir == Clockwise
		r.zeros = 0
		return false
	}
	if !r.counting || n != 0 {
		return false
	}

	r.zeros++
	if r.zeros < resetPasses {
		return false
	}
	r.counting = false
	r.zeros = 0
	return true
}

// Passes returns the number of 0 passes counted in the current run.
func (r *ResetDetector) Passes() int { return r.zeros }
