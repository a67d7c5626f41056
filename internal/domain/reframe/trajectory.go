package reframe

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// Size is a frame resolution in pixels.
type Size struct {
	W int
	H int
}

// Vertical is the default 9:16 output resolution.
var Vertical = Size{W: 1080, H: 1920}

func (s Size) Valid() bool { return s.W > 0 && s.H > 0 }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.W, s.H) }

// CropSize returns the largest region of src with the target's aspect ratio.
// It is computed once per clip; only the crop position moves over time.
func CropSize(src, target Size) (Size, error) {
	if !src.Valid() {
		return Size{}, fmt.Errorf("invalid source size %s", src)
	}
	if !target.Valid() {
		return Size{}, fmt.Errorf("invalid target size %s", target)
	}
	r := float64(target.H) / float64(target.W)
	var c Size
	if float64(src.H)/float64(src.W) > r {
		c = Size{W: src.W, H: int(float64(src.W) * r)}
	} else {
		c = Size{W: int(float64(src.H) / r), H: src.H}
	}
	c.W = clampInt(c.W, 1, src.W)
	c.H = clampInt(c.H, 1, src.H)
	return c, nil
}

// Offset is the motion applied to the crop center at elapsed time t of a
// clip lasting duration seconds. It depends on nothing else.
func Offset(t, duration float64) (x, y float64) {
	switch {
	case duration <= 30:
		x = 20 * math.Sin(0.5*t)
		y = 10 * math.Sin(0.3*t)
	case duration <= 60:
		z := 1 + 0.02*math.Sin(0.2*t)
		x = 15 * math.Sin(0.4*t) * z
		y = 8 * math.Sin(0.25*t) * z
	default:
		x = 25 * (math.Sin(0.3*t) + 0.5*math.Sin(0.7*t))
		y = 15 * (math.Cos(0.2*t) + 0.3*math.Cos(0.6*t))
	}
	return x, y
}

// Trajectory maps elapsed clip time to a crop rectangle inside the source.
type Trajectory struct {
	Source   Size
	Crop     Size
	Duration float64
}

func NewTrajectory(src, target Size, duration float64) (Trajectory, error) {
	crop, err := CropSize(src, target)
	if err != nil {
		return Trajectory{}, err
	}
	return Trajectory{Source: src, Crop: crop, Duration: duration}, nil
}

// At returns the moving crop rectangle for elapsed time t.
func (tr Trajectory) At(t float64) (image.Rectangle, error) {
	if !finite(t) || !finite(tr.Duration) {
		return image.Rectangle{}, fmt.Errorf("non-finite time t=%v duration=%v", t, tr.Duration)
	}
	dx, dy := Offset(t, tr.Duration)
	if !finite(dx) || !finite(dy) {
		return image.Rectangle{}, errors.New("non-finite crop offset")
	}
	return tr.place(dx, dy)
}

// Center returns the rectangle with zero offset.
func (tr Trajectory) Center() image.Rectangle {
	r, _ := tr.place(0, 0)
	return r
}

func (tr Trajectory) place(dx, dy float64) (image.Rectangle, error) {
	cx := float64(tr.Source.W)/2 + dx
	cy := float64(tr.Source.H)/2 + dy
	x1 := clampFloat(cx-float64(tr.Crop.W)/2, 0, float64(tr.Source.W-tr.Crop.W))
	y1 := clampFloat(cy-float64(tr.Crop.H)/2, 0, float64(tr.Source.H-tr.Crop.H))
	r := image.Rect(int(x1), int(y1), int(x1)+tr.Crop.W, int(y1)+tr.Crop.H)
	if !r.In(image.Rect(0, 0, tr.Source.W, tr.Source.H)) {
		return image.Rectangle{}, fmt.Errorf("crop %v outside source %s", r, tr.Source)
	}
	return r, nil
}

func clampFloat(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(v, hi))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
