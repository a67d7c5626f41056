package subtitles

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/forPelevin/hlshorts/internal/types"
)

const (
	bottomMargin   = 50
	baseLineHeight = 40
	// fontScale is min(width, height) divided by this.
	fontScaleBase = 800
	// Pixel size of the font at scale 1.
	baseFontPx = 30
)

var (
	fillColor    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	outlineColor = color.RGBA{A: 255}
)

// Overlay draws captions onto frames with a black outline and white fill.
// It is not safe for concurrent use.
type Overlay struct {
	font  *opentype.Font
	faces map[image.Point]font.Face
}

func NewOverlay() (*Overlay, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse caption font: %w", err)
	}
	return &Overlay{font: f, faces: map[image.Point]font.Face{}}, nil
}

// Line is one wrapped caption line with its baseline origin.
type Line struct {
	Text string
	X    int
	Y    int
}

// Layout is the placement of a caption block in a frame. Stroke is the
// outline radius: font.Drawer has no stroke width, so the outline pass
// repeats each of the 8 neighbouring offsets at radii 1..Stroke.
type Layout struct {
	Lines      []Line
	LineHeight int
	Stroke     int
	Top        int
}

func fontScale(w, h int) float64 {
	return float64(min(w, h)) / fontScaleBase
}

func (o *Overlay) face(w, h int) (font.Face, error) {
	key := image.Pt(w, h)
	if f, ok := o.faces[key]; ok {
		return f, nil
	}
	size := baseFontPx * fontScale(w, h)
	if size < 1 {
		return nil, fmt.Errorf("frame %dx%d too small for captions", w, h)
	}
	f, err := opentype.NewFace(o.font, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("caption face: %w", err)
	}
	o.faces[key] = f
	return f, nil
}

// Layout wraps text for a w x h frame and positions the block so its bottom
// sits bottomMargin pixels above the frame edge, each line centered.
func (o *Overlay) Layout(text string, w, h int) (Layout, error) {
	face, err := o.face(w, h)
	if err != nil {
		return Layout{}, err
	}
	lines := Wrap(text, MaxLineChars(w))
	if len(lines) == 0 {
		return Layout{}, errors.New("empty caption")
	}

	scale := fontScale(w, h)
	lh := int(baseLineHeight * scale)
	if lh <= 0 {
		return Layout{}, fmt.Errorf("line height %d", lh)
	}
	thickness := max(2, int(scale*2))

	m := face.Metrics()
	textH := m.CapHeight.Ceil()
	if textH <= 0 {
		textH = m.Ascent.Ceil()
	}

	startY := h - len(lines)*lh - bottomMargin
	l := Layout{LineHeight: lh, Stroke: thickness + 1}
	for i, s := range lines {
		tw := font.MeasureString(face, s).Ceil()
		l.Lines = append(l.Lines, Line{
			Text: s,
			X:    (w - tw) / 2,
			Y:    startY + i*lh + textH,
		})
	}
	l.Top = max(0, startY-m.Ascent.Ceil()-l.Stroke)
	return l, nil
}

// block renders a caption into a transparent image covering rows
// [Top, h) of a w x h frame.
func (o *Overlay) block(text string, w, h int) (*image.RGBA, error) {
	l, err := o.Layout(text, w, h)
	if err != nil {
		return nil, err
	}
	face, err := o.face(w, h)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, l.Top, w, h))
	d := font.Drawer{Dst: img, Face: face}

	d.Src = image.NewUniform(outlineColor)
	for _, ln := range l.Lines {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				for k := 1; k <= l.Stroke; k++ {
					d.Dot = fixed.P(ln.X+dx*k, ln.Y+dy*k)
					d.DrawString(ln.Text)
				}
			}
		}
	}

	d.Src = image.NewUniform(fillColor)
	for _, ln := range l.Lines {
		d.Dot = fixed.P(ln.X, ln.Y)
		d.DrawString(ln.Text)
	}
	return img, nil
}

// CueRenderer burns the active cue of one segment into frames.
type CueRenderer struct {
	overlay *Overlay
	cues    []types.SubtitleCue

	lastText string
	lastSize image.Point
	last     *image.RGBA
}

func (o *Overlay) ForCues(cues []types.SubtitleCue) *CueRenderer {
	return &CueRenderer{overlay: o, cues: cues}
}

// Apply draws the cue active at t onto dst. On error dst is left untouched.
func (r *CueRenderer) Apply(dst *image.RGBA, t float64) error {
	cue, ok := Active(r.cues, t)
	if !ok {
		return nil
	}
	text := strings.TrimSpace(cue.Text)
	if text == "" {
		return nil
	}

	b := dst.Bounds()
	size := b.Size()
	if text != r.lastText || size != r.lastSize || r.last == nil {
		blk, err := r.renderBlock(text, size)
		if err != nil {
			return err
		}
		r.last, r.lastText, r.lastSize = blk, text, size
	}

	area := r.last.Bounds().Add(b.Min)
	draw.Draw(dst, area, r.last, r.last.Bounds().Min, draw.Over)
	return nil
}

func (r *CueRenderer) renderBlock(text string, size image.Point) (blk *image.RGBA, err error) {
	defer func() {
		if p := recover(); p != nil {
			blk, err = nil, fmt.Errorf("render caption: %v", p)
		}
	}()
	return r.overlay.block(text, size.X, size.Y)
}
