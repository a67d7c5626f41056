package reframe

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/forPelevin/hlshorts/internal/fallback"
)

const (
	StrategyDynamic = "dynamic"
	StrategyStatic  = "static"
)

// Engine scales crops of source frames to a fixed target size.
type Engine struct {
	target Size
	scaler draw.Scaler
}

func NewEngine(target Size) (*Engine, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("invalid target size %s", target)
	}
	return &Engine{target: target, scaler: draw.ApproxBiLinear}, nil
}

func (e *Engine) Target() Size { return e.target }

// Clip reframes the frames of one clip. It is not safe for concurrent use;
// the returned frame buffer is reused between calls.
type Clip struct {
	engine *Engine
	traj   Trajectory
	dst    *image.RGBA
	counts map[string]int
}

// ForClip prepares a Clip for frames of size src lasting duration seconds.
func (e *Engine) ForClip(src Size, duration float64) (*Clip, error) {
	traj, err := NewTrajectory(src, e.target, duration)
	if err != nil {
		return nil, err
	}
	return &Clip{
		engine: e,
		traj:   traj,
		dst:    image.NewRGBA(image.Rect(0, 0, e.target.W, e.target.H)),
		counts: map[string]int{},
	}, nil
}

func (c *Clip) Trajectory() Trajectory { return c.traj }

// Frame returns src reframed to the target size at elapsed time t, along with
// the strategy that produced it. The dynamic crop is tried first and the
// static center crop is used when it fails.
func (c *Clip) Frame(src *image.RGBA, t float64) (*image.RGBA, string, error) {
	out := fallback.Try(
		fallback.Strategy[*image.RGBA]{Name: StrategyDynamic, Run: func() (*image.RGBA, error) {
			return c.dynamic(src, t)
		}},
		fallback.Strategy[*image.RGBA]{Name: StrategyStatic, Run: func() (*image.RGBA, error) {
			return c.static(src)
		}},
	)
	if !out.OK() {
		return nil, "", out.Err()
	}
	c.counts[out.Strategy]++
	return out.Value, out.Strategy, nil
}

// Counts returns how many frames each strategy produced so far.
func (c *Clip) Counts() map[string]int {
	m := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		m[k] = v
	}
	return m
}

func (c *Clip) dynamic(src *image.RGBA, t float64) (*image.RGBA, error) {
	if src == nil {
		return nil, errors.New("nil frame")
	}
	b := src.Bounds()
	if b.Dx() != c.traj.Source.W || b.Dy() != c.traj.Source.H {
		return nil, fmt.Errorf("frame %dx%d does not match source %s", b.Dx(), b.Dy(), c.traj.Source)
	}
	r, err := c.traj.At(t)
	if err != nil {
		return nil, err
	}
	return c.scale(src, r.Add(b.Min)), nil
}

// static recomputes the crop from the frame actually received, so it still
// produces a target-sized frame when the decoder disagrees with the probe.
func (c *Clip) static(src *image.RGBA) (*image.RGBA, error) {
	if src == nil {
		return nil, errors.New("nil frame")
	}
	b := src.Bounds()
	traj, err := NewTrajectory(Size{W: b.Dx(), H: b.Dy()}, c.engine.target, c.traj.Duration)
	if err != nil {
		return nil, err
	}
	return c.scale(src, traj.Center().Add(b.Min)), nil
}

func (c *Clip) scale(src *image.RGBA, r image.Rectangle) *image.RGBA {
	c.engine.scaler.Scale(c.dst, c.dst.Bounds(), src, r, draw.Src, nil)
	return c.dst
}
