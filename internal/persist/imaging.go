package persist

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	thumbWidth   = 300
	thumbHeight  = 400
	thumbQuality = 78
)

// watermark stamps text into the bottom-right corner of img. The label is
// scaled to roughly a quarter of the image width so it stays readable on
// large outputs.
func watermark(img image.Image, text string) image.Image {
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, text).Ceil()
	const pad = 4
	label := image.NewNRGBA(image.Rect(0, 0, textWidth+2*pad, face.Height+2*pad))
	draw.Draw(label, label.Bounds(), &image.Uniform{C: color.NRGBA{A: 110}}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  label,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 230}),
		Face: face,
		Dot:  fixed.P(pad, pad+face.Ascent),
	}
	d.DrawString(text)

	bounds := img.Bounds()
	targetWidth := bounds.Dx() / 4
	if targetWidth < label.Bounds().Dx() {
		targetWidth = label.Bounds().Dx()
	}
	if targetWidth > bounds.Dx() {
		targetWidth = bounds.Dx()
	}
	scaled := imaging.Resize(label, targetWidth, 0, imaging.NearestNeighbor)

	margin := bounds.Dx() / 40
	pos := image.Pt(
		bounds.Min.X+bounds.Dx()-scaled.Bounds().Dx()-margin,
		bounds.Min.Y+bounds.Dy()-scaled.Bounds().Dy()-margin,
	)
	return imaging.Overlay(img, scaled, pos, 0.85)
}

// thumbnail returns a cover-cropped lossy WebP of img.
func thumbnail(img image.Image) ([]byte, error) {
	thumb := imaging.Fill(img, thumbWidth, thumbHeight, imaging.Center, imaging.Lanczos)
	var buf bytes.Buffer
	if err := webp.Encode(&buf, thumb, webp.Options{Quality: thumbQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
