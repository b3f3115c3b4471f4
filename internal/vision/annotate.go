package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	knownColor   = color.RGBA{0, 200, 0, 255}   // green box for recognized people
	unknownColor = color.RGBA{220, 0, 0, 255}   // red box for unknown faces
	labelText    = color.RGBA{255, 255, 255, 255}
)

// Label is one annotation to draw on a frame: the face box and the resolved
// name ("Unknown" when the matcher rejected the face).
type Label struct {
	Box   image.Rectangle
	Name  string
	Known bool
}

// Annotate draws boxes and name labels onto a copy of the frame and returns
// it. The input frame is never modified.
func Annotate(frame *Frame, labels []Label) *image.RGBA {
	bounds := frame.Image.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, frame.Image, bounds.Min, draw.Src)

	for _, l := range labels {
		c := unknownColor
		if l.Known {
			c = knownColor
		}
		drawRect(out, l.Box, c, 2)
		drawLabel(out, l.Box, l.Name, c)
	}
	return out
}

// drawRect draws a rectangle outline of the given thickness.
func drawRect(img *image.RGBA, r image.Rectangle, c color.Color, thickness int) {
	r = r.Intersect(img.Bounds())
	for t := 0; t < thickness; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, r.Min.Y+t, c)
			img.Set(x, r.Max.Y-1-t, c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			img.Set(r.Min.X+t, y, c)
			img.Set(r.Max.X-1-t, y, c)
		}
	}
}

// drawLabel draws the name on a filled background strip above the box, or
// inside its top edge when the box touches the frame top.
func drawLabel(img *image.RGBA, box image.Rectangle, text string, bg color.Color) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 8
	height := face.Metrics().Height.Ceil() + 4

	strip := image.Rect(box.Min.X, box.Min.Y-height, box.Min.X+width, box.Min.Y)
	if strip.Min.Y < img.Bounds().Min.Y {
		strip = strip.Add(image.Pt(0, height))
	}
	strip = strip.Intersect(img.Bounds())
	draw.Draw(img, strip, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelText),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(strip.Min.X + 4),
			Y: fixed.I(strip.Max.Y - 4),
		},
	}
	d.DrawString(text)
}

// EncodeJPEG encodes an image as JPEG for streaming and inference uploads.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
