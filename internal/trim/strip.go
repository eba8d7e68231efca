package trim

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"clip-studio/internal/models"
)

// BlankColor fills slices whose frame could not be sampled
var BlankColor = color.RGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff}

// RenderStrip lays the slices side by side, each sliceWidth wide and height tall.
// Frames are scaled to cover their cell and centre-cropped.
func RenderStrip(thumbs []models.ThumbnailImage, sliceWidth, height int) *image.RGBA {
	strip := image.NewRGBA(image.Rect(0, 0, sliceWidth*len(thumbs), height))
	draw.Draw(strip, strip.Bounds(), &image.Uniform{C: BlankColor}, image.Point{}, draw.Src)

	for i, th := range thumbs {
		cell := image.Rect(i*sliceWidth, 0, (i+1)*sliceWidth, height)
		if th.Blank() {
			continue
		}
		src := th.Image.Bounds()
		draw.CatmullRom.Scale(strip, cell, th.Image, coverCrop(src, sliceWidth, height), draw.Src, nil)
	}
	return strip
}

// coverCrop returns the centred part of src with the aspect ratio of a w x h cell
func coverCrop(src image.Rectangle, w, h int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw == 0 || sh == 0 {
		return src
	}
	if sw*h > sh*w {
		cw := sh * w / h
		x := src.Min.X + (sw-cw)/2
		return image.Rect(x, src.Min.Y, x+cw, src.Max.Y)
	}
	ch := sw * h / w
	y := src.Min.Y + (sh-ch)/2
	return image.Rect(src.Min.X, y, src.Max.X, y+ch)
}
