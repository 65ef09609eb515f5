package classifiers

import (
	"fmt"
	"image"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// Resizer stretches img to exactly width x height. Aspect ratio is not
// preserved and nothing is cropped or padded.
type Resizer func(img image.Image, width, height int) image.Image

func imagingResizer(filter imaging.ResampleFilter) Resizer {
	return func(img image.Image, width, height int) image.Image {
		return imaging.Resize(img, width, height, filter)
	}
}

func nfntResizer(interp resize.InterpolationFunction) Resizer {
	return func(img image.Image, width, height int) image.Image {
		return resize.Resize(uint(width), uint(height), img, interp)
	}
}

var resizers = map[string]Resizer{
	"linear":     imagingResizer(imaging.Linear),
	"nearest":    imagingResizer(imaging.NearestNeighbor),
	"catmullrom": imagingResizer(imaging.CatmullRom),
	"lanczos":    imagingResizer(imaging.Lanczos),
	"bicubic":    nfntResizer(resize.Bicubic),
	"mitchell":   nfntResizer(resize.MitchellNetravali),
	"lanczos3":   nfntResizer(resize.Lanczos3),
}

// DefaultResizeFilter is bilinear, the interpolation OpenCV uses by default.
const DefaultResizeFilter = "linear"

// ResizerByName looks up a resampling filter. The empty name selects the
// default filter.
func ResizerByName(name string) (Resizer, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultResizeFilter
	}
	r, ok := resizers[name]
	if !ok {
		return nil, fmt.Errorf("unknown resize filter %q (available: %s)", name, strings.Join(ResizeFilters(), ", "))
	}
	return r, nil
}

func ResizeFilters() []string {
	names := make([]string, 0, len(resizers))
	for name := range resizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ChannelOrder is the order colour channels are written into the tensor.
type ChannelOrder int

const (
	// ChannelOrderBGR matches images decoded by OpenCV, which the models
	// were exported against.
	ChannelOrderBGR ChannelOrder = iota
	ChannelOrderRGB
)

func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bgr":
		return ChannelOrderBGR, nil
	case "rgb":
		return ChannelOrderRGB, nil
	default:
		return 0, fmt.Errorf("unknown channel order %q", s)
	}
}

func (o ChannelOrder) String() string {
	if o == ChannelOrderRGB {
		return "rgb"
	}
	return "bgr"
}

// Preprocessor turns decoded images into normalized float32 tensors.
type Preprocessor struct {
	resize     Resizer
	order      ChannelOrder
	numWorkers int
}

func NewPreprocessor(resizer Resizer, order ChannelOrder) *Preprocessor {
	if resizer == nil {
		resizer = resizers[DefaultResizeFilter]
	}
	return &Preprocessor{
		resize:     resizer,
		order:      order,
		numWorkers: runtime.GOMAXPROCS(0),
	}
}

// Resize stretches img to the model's spatial size.
func (p *Preprocessor) Resize(img image.Image, width, height int) (*image.NRGBA, error) {
	resized := p.resize(img, width, height)
	nrgba, ok := resized.(*image.NRGBA)
	if !ok {
		nrgba = imaging.Clone(resized)
	}
	if b := nrgba.Bounds(); b.Dx() != width || b.Dy() != height {
		return nil, fmt.Errorf("resize produced %dx%d, model expects %dx%d", b.Dx(), b.Dy(), width, height)
	}
	return nrgba, nil
}

// Fill writes img into dst as values in [0, 1]. dst must hold exactly
// width*height*3 values; the leading batch axis of size 1 adds nothing to
// the element count.
func (p *Preprocessor) Fill(img *image.NRGBA, dst []float32, layout TensorLayout) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	channelSize := width * height
	if len(dst) != channelSize*3 {
		return fmt.Errorf("input tensor holds %d values, image needs %d (%dx%dx3)", len(dst), channelSize*3, width, height)
	}

	first, third := 2, 0
	if p.order == ChannelOrderRGB {
		first, third = 0, 2
	}

	workers := p.numWorkers
	if workers > height {
		workers = height
	}
	if workers < 1 {
		workers = 1
	}
	rowsPerWorker := height / workers

	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		startRow := w * rowsPerWorker
		endRow := startRow + rowsPerWorker
		if w == workers-1 {
			endRow = height
		}

		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				src := img.Pix[y*img.Stride : y*img.Stride+width*4]
				for x := 0; x < width; x++ {
					px := src[x*4 : x*4+3]
					c0 := float32(px[first]) / 255.0
					c1 := float32(px[1]) / 255.0
					c2 := float32(px[third]) / 255.0

					i := y*width + x
					if layout == LayoutNCHW {
						dst[i] = c0
						dst[channelSize+i] = c1
						dst[channelSize*2+i] = c2
					} else {
						dst[i*3] = c0
						dst[i*3+1] = c1
						dst[i*3+2] = c2
					}
				}
			}
		}(startRow, endRow)
	}

	wg.Wait()
	return nil
}
