package image

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/gift"
	"github.com/disintegration/imaging"
)

// MedianKernel is the neighbourhood size of the denoise step.
const MedianKernel = 3

// Preprocessor is one step of the cleanup chain applied before OCR.
type Preprocessor interface {
	Name() string
	Process(img image.Image) (image.Image, error)
}

// 灰度处理器
type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
	return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Name() string { return "grayscale" }

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	return imaging.Grayscale(img), nil
}

// AutoContrastProcessor stretches the luminance range so the darkest pixel
// maps to 0 and the lightest to 255. Images with a single luminance value
// are returned unchanged.
type AutoContrastProcessor struct{}

func NewAutoContrastProcessor() *AutoContrastProcessor {
	return &AutoContrastProcessor{}
}

func (p *AutoContrastProcessor) Name() string { return "autocontrast" }

func (p *AutoContrastProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	lo, hi, ok := luminanceRange(imaging.Histogram(img))
	if !ok || hi <= lo {
		return imaging.Clone(img), nil
	}

	var lut [256]uint8
	scale := 255.0 / float64(hi-lo)
	for i := range lut {
		v := (float64(i) - float64(lo)) * scale
		switch {
		case v < 0:
			lut[i] = 0
		case v > 255:
			lut[i] = 255
		default:
			lut[i] = uint8(v + 0.5)
		}
	}

	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[c.R], G: lut[c.G], B: lut[c.B], A: c.A}
	}), nil
}

// luminanceRange returns the lowest and highest populated histogram bins.
func luminanceRange(hist [256]float64) (lo, hi int, ok bool) {
	lo, hi = -1, -1
	for i, v := range hist {
		if v > 0 {
			if lo < 0 {
				lo = i
			}
			hi = i
		}
	}
	return lo, hi, lo >= 0
}

// 中值滤波降噪，输出单通道灰度图
type MedianProcessor struct {
	filter *gift.GIFT
}

func NewMedianProcessor(size int) *MedianProcessor {
	return &MedianProcessor{filter: gift.New(gift.Median(size, false))}
}

func (p *MedianProcessor) Name() string { return "median" }

func (p *MedianProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	dst := image.NewGray(p.filter.Bounds(img.Bounds()))
	p.filter.Draw(dst, img)
	return dst, nil
}
