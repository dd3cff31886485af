package thumbnail

import (
	"fmt"
	"image"
	"math"

	"github.com/muesli/smartcrop"
	"github.com/muesli/smartcrop/nfnt"
	"golang.org/x/image/draw"

	"github.com/alanorth/safari-bingo/internal/models"
)

// entropy trimming removes at most this many pixels per step
const entropyStep = 8

// Crop scales img so its short side is size and cuts a size×size square chosen by focus
func Crop(img image.Image, focus models.CropFocus, size int) (*image.NRGBA, error) {
	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return nil, fmt.Errorf("image has no pixels")
	}

	scaled := scaleShortSide(img, size)

	var rect image.Rectangle
	switch focus {
	case models.CropAttention:
		r, err := attentionWindow(scaled, size)
		if err != nil {
			return nil, err
		}
		rect = r
	case models.CropEntropy:
		rect = entropyWindow(scaled, size)
	case models.CropLow:
		rect = image.Rect(0, 0, size, size)
	case models.CropHigh:
		sb := scaled.Bounds()
		rect = image.Rect(sb.Dx()-size, sb.Dy()-size, sb.Dx(), sb.Dy())
	case models.CropCentre, models.CropNone:
		rect = centredWindow(scaled.Bounds(), size, image.Pt(scaled.Bounds().Dx()/2, scaled.Bounds().Dy()/2))
	default:
		return nil, fmt.Errorf("unknown crop hint %q", focus)
	}

	out := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Draw(out, out.Bounds(), scaled, rect.Min, draw.Src)
	return out, nil
}

// centredWindow returns a size×size window centred on c, shifted to stay inside bounds
func centredWindow(bounds image.Rectangle, size int, c image.Point) image.Rectangle {
	x := min(max(c.X-size/2, bounds.Min.X), bounds.Max.X-size)
	y := min(max(c.Y-size/2, bounds.Min.Y), bounds.Max.Y-size)
	return image.Rect(x, y, x+size, y+size)
}

func attentionWindow(img *image.NRGBA, size int) (image.Rectangle, error) {
	analyzer := smartcrop.NewAnalyzer(nfnt.NewDefaultResizer())
	best, err := analyzer.FindBestCrop(img, size, size)
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("failed to find crop: %w", err)
	}
	// the analyzer may pick a smaller square; keep its centre at full size
	centre := image.Pt((best.Min.X+best.Max.X)/2, (best.Min.Y+best.Max.Y)/2)
	return centredWindow(img.Bounds(), size, centre), nil
}

// entropyWindow trims whichever edge carries less information until the image is square
func entropyWindow(img *image.NRGBA, size int) image.Rectangle {
	r := img.Bounds()
	for r.Dx() > size {
		step := min(entropyStep, r.Dx()-size)
		left := image.Rect(r.Min.X, r.Min.Y, r.Min.X+step, r.Max.Y)
		right := image.Rect(r.Max.X-step, r.Min.Y, r.Max.X, r.Max.Y)
		if entropy(img, left) < entropy(img, right) {
			r.Min.X += step
		} else {
			r.Max.X -= step
		}
	}
	for r.Dy() > size {
		step := min(entropyStep, r.Dy()-size)
		top := image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+step)
		bottom := image.Rect(r.Min.X, r.Max.Y-step, r.Max.X, r.Max.Y)
		if entropy(img, top) < entropy(img, bottom) {
			r.Min.Y += step
		} else {
			r.Max.Y -= step
		}
	}
	return r
}

// entropy is the Shannon entropy of the luma histogram within r
func entropy(img *image.NRGBA, r image.Rectangle) float64 {
	var hist [256]int
	total := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			luma := (299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000
			hist[luma]++
			total++
		}
	}
	if total == 0 {
		return 0
	}

	var e float64
	for _, n := range hist {
		if n == 0 {
			continue
		}
		p := float64(n) / float64(total)
		e -= p * math.Log2(p)
	}
	return e
}
