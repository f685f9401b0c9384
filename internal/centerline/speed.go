package centerline

import (
	stdmath "math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Speed profile defaults.
const (
	DefaultMaxSpeedKMH     = 80
	DefaultMinSpeedKMH     = 40
	DefaultSmoothingWindow = 15
	curvatureQuantile      = 0.95
	maxBrake               = 0.3
	kmhPerMS               = 3.6
)

// SpeedOptions shapes the speed profile.
type SpeedOptions struct {
	MaxKMH float64 // Speed on straights
	MinKMH float64 // Speed in the tightest corners
	Window int     // Moving average taps; made odd
}

// DefaultSpeedOptions returns the profile defaults.
func DefaultSpeedOptions() SpeedOptions {
	return SpeedOptions{MaxKMH: DefaultMaxSpeedKMH, MinKMH: DefaultMinSpeedKMH, Window: DefaultSmoothingWindow}
}

// SpeedProfile fills Speed (m/s), Gas and Brake from horizontal curvature.
// Curvature is the turning angle over the mean adjacent segment length,
// normalized by its 95th percentile. Speeds are smoothed with a circular
// moving average; gas is speed over the peak speed and brake is
// 0.3*(1-gas).
func SpeedProfile(points []Point, opts SpeedOptions) {
	n := len(points)
	if n == 0 {
		return
	}
	if opts.MaxKMH <= 0 {
		opts.MaxKMH = DefaultMaxSpeedKMH
	}
	if opts.MinKMH <= 0 || opts.MinKMH > opts.MaxKMH {
		opts.MinKMH = min(DefaultMinSpeedKMH, opts.MaxKMH)
	}

	curv := Curvature(points)
	norm := percentile(curv, curvatureQuantile)

	speeds := make([]float64, n)
	for i, c := range curv {
		k := 0.0
		if norm > 0 {
			k = stdmath.Min(stdmath.Max(c/norm, 0), 1)
		}
		speeds[i] = opts.MaxKMH - k*(opts.MaxKMH-opts.MinKMH)
	}
	speeds = circularMovingAverage(speeds, opts.Window)

	peak := floats.Max(speeds)
	for i := range points {
		gas := speeds[i] / peak
		points[i].Speed = speeds[i] / kmhPerMS
		points[i].Gas = gas
		points[i].Brake = stdmath.Min(stdmath.Max(1-gas, 0), 1) * maxBrake
	}
}

// Curvature returns the horizontal turning angle at each point divided by
// the mean length of its two segments.
func Curvature(points []Point) []float64 {
	n := len(points)
	curv := make([]float64, n)
	if n < 3 {
		return curv
	}
	for i := range points {
		p0 := points[(i+n-1)%n].Position.XZ()
		p1 := points[i].Position.XZ()
		p2 := points[(i+1)%n].Position.XZ()
		v1, v2 := p1.Sub(p0), p2.Sub(p1)
		l1, l2 := v1.Length(), v2.Length()
		if l1 == 0 || l2 == 0 {
			continue
		}
		angle := stdmath.Atan2(stdmath.Abs(v1.Cross(v2)), v1.Dot(v2))
		curv[i] = angle / ((l1 + l2) / 2)
	}
	return curv
}

// percentile returns the p quantile of x, falling back to the maximum when
// the quantile is zero.
func percentile(x []float64, p float64) float64 {
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	q := stat.Quantile(p, stat.LinInterp, sorted, nil)
	if q <= 0 {
		q = sorted[len(sorted)-1]
	}
	return q
}

func circularMovingAverage(x []float64, window int) []float64 {
	n := len(x)
	if window > n {
		window = n
	}
	if window%2 == 0 {
		window--
	}
	if window <= 1 {
		return slices.Clone(x)
	}

	half := window / 2
	out := make([]float64, n)
	for i := range x {
		var sum float64
		for k := -half; k <= half; k++ {
			sum += x[((i+k)%n+n)%n]
		}
		out[i] = sum / float64(window)
	}
	return out
}
