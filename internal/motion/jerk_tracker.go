package motion

import "math"

// jerkWindow is the number of position samples needed before a jerk
// estimate exists: three cascaded finite differences over four points.
const jerkWindow = 4

// JerkTracker estimates jerk, the third derivative of pointer position,
// from a stream of motion samples. Derivatives are computed by cascaded
// finite differences over a four-sample window and the resulting magnitude
// is smoothed with a first-order IIR filter.
type JerkTracker struct {
	// normalizedDt treats every sample step as dt=1 instead of using the
	// timestamp deltas.
	normalizedDt bool
	// alpha is the IIR coefficient; 1 means no smoothing.
	alpha float64

	timestamps *Ring[int64]
	// xDerivatives[i] holds the i-th derivative of x: position, velocity,
	// acceleration, jerk. Same layout for y.
	xDerivatives [jerkWindow]float64
	yDerivatives [jerkWindow]float64

	jerkMagnitude float64
	primed        bool
}

// NewJerkTracker creates a tracker. alpha is clamped to (0, 1].
func NewJerkTracker(normalizedDt bool, alpha float64) *JerkTracker {
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	return &JerkTracker{
		normalizedDt: normalizedDt,
		alpha:        alpha,
		timestamps:   NewRing[int64](jerkWindow),
	}
}

// PushSample adds a position sample and updates the derivative estimates.
// Timestamps are nanoseconds; when normalizedDt is set they only order the
// samples.
func (j *JerkTracker) PushSample(timestamp int64, xPos, yPos float64) {
	j.timestamps.Append(timestamp)
	numSamples := j.timestamps.Len()

	var newX, newY [jerkWindow]float64
	newX[0] = xPos
	newY[0] = yPos

	dt := float64(1)
	if !j.normalizedDt && numSamples >= 2 {
		deltaNs := timestamp - j.timestamps.At(numSamples-2)
		if deltaNs <= 0 {
			// Out-of-order or duplicate timestamp; start over rather than
			// divide by a non-positive dt.
			j.Reset()
			j.timestamps.Append(timestamp)
			j.xDerivatives[0] = xPos
			j.yDerivatives[0] = yPos
			return
		}
		dt = float64(deltaNs) / float64(1e9)
	}

	for i := 0; i < numSamples-1; i++ {
		newX[i+1] = (newX[i] - j.xDerivatives[i]) / dt
		newY[i+1] = (newY[i] - j.yDerivatives[i]) / dt
	}

	j.xDerivatives = newX
	j.yDerivatives = newY

	if numSamples == jerkWindow {
		raw := math.Hypot(newX[jerkWindow-1], newY[jerkWindow-1])
		if j.primed {
			j.jerkMagnitude = j.alpha*raw + (1-j.alpha)*j.jerkMagnitude
		} else {
			j.jerkMagnitude = raw
			j.primed = true
		}
	}
}

// Reset prepares the tracker for a new motion gesture.
func (j *JerkTracker) Reset() {
	j.timestamps.Clear()
	j.xDerivatives = [jerkWindow]float64{}
	j.yDerivatives = [jerkWindow]float64{}
	j.jerkMagnitude = 0
	j.primed = false
}

// JerkMagnitude returns the smoothed jerk estimate. The second return is
// false until enough samples have been collected.
func (j *JerkTracker) JerkMagnitude() (float64, bool) {
	if j.timestamps.Len() < jerkWindow {
		return 0, false
	}
	return j.jerkMagnitude, true
}
