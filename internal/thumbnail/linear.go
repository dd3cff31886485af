package thumbnail

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
)

var (
	lutOnce  sync.Once
	toLinear [65536]uint16
	toSRGB   [65536]uint8
)

// buildLUTs tabulates the sRGB transfer curve at 16-bit precision so the per-pixel loops avoid math.Pow
func buildLUTs() {
	for i := range toLinear {
		v := float64(i) / 65535
		l, _, _ := colorful.Color{R: v, G: v, B: v}.LinearRgb()
		toLinear[i] = uint16(math.Round(l * 65535))
	}
	for i := range toSRGB {
		l := float64(i) / 65535
		v := colorful.LinearRgb(l, l, l).Clamped().R
		toSRGB[i] = uint8(math.Round(v * 255))
	}
}

// linearize converts src to premultiplied linear light
func linearize(src image.Image) *image.RGBA64 {
	lutOnce.Do(buildLUTs)

	b := src.Bounds()
	dst := image.NewRGBA64(image.Rect(0, 0, b.Dx(), b.Dy()))

	set := func(x, y int, r, g, bl, a uint16) {
		lr := uint32(toLinear[r])
		lg := uint32(toLinear[g])
		lb := uint32(toLinear[bl])
		if a != 0xffff {
			lr = lr * uint32(a) / 0xffff
			lg = lg * uint32(a) / 0xffff
			lb = lb * uint32(a) / 0xffff
		}
		dst.SetRGBA64(x, y, color.RGBA64{R: uint16(lr), G: uint16(lg), B: uint16(lb), A: a})
	}

	switch img := src.(type) {
	case *image.YCbCr:
		// JPEG photos land here, skip the color.Model round trip
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				yi := img.YOffset(x, y)
				ci := img.COffset(x, y)
				r, g, bl := color.YCbCrToRGB(img.Y[yi], img.Cb[ci], img.Cr[ci])
				set(x-b.Min.X, y-b.Min.Y, uint16(r)*0x101, uint16(g)*0x101, uint16(bl)*0x101, 0xffff)
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBA64Model.Convert(src.At(x, y)).(color.NRGBA64)
				set(x-b.Min.X, y-b.Min.Y, c.R, c.G, c.B, c.A)
			}
		}
	}
	return dst
}

// delinearize converts premultiplied linear light back to 8-bit sRGB
func delinearize(src *image.RGBA64) *image.NRGBA {
	lutOnce.Do(buildLUTs)

	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.RGBA64At(x, y)
			if c.A == 0 {
				continue
			}
			r, g, bl := uint32(c.R), uint32(c.G), uint32(c.B)
			if c.A != 0xffff {
				r = min(r*0xffff/uint32(c.A), 0xffff)
				g = min(g*0xffff/uint32(c.A), 0xffff)
				bl = min(bl*0xffff/uint32(c.A), 0xffff)
			}
			dst.SetNRGBA(x-b.Min.X, y-b.Min.Y, color.NRGBA{
				R: toSRGB[r],
				G: toSRGB[g],
				B: toSRGB[bl],
				A: uint8(c.A >> 8),
			})
		}
	}
	return dst
}

// scaleShortSide resizes src in linear light so its shorter side equals size
func scaleShortSide(src image.Image, size int) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	var dw, dh int
	if w <= h {
		dw = size
		dh = max(size, int(math.Round(float64(h)*float64(size)/float64(w))))
	} else {
		dh = size
		dw = max(size, int(math.Round(float64(w)*float64(size)/float64(h))))
	}

	lin := linearize(src)
	scaled := image.NewRGBA64(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), lin, lin.Bounds(), draw.Src, nil)
	return delinearize(scaled)
}
