package classifiers

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// DecodeImage decodes a JPEG, PNG, GIF, BMP, TIFF or WebP payload into a
// colour image. EXIF orientation is applied and any alpha channel is
// dropped. Every failure is a *DecodeError.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Cause: errors.New("empty image payload")}
	}

	if isWebP(data) {
		return decodeWebP(data)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Cause: err}
	}
	if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, &DecodeError{Cause: errors.Wrap(err, format)}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Cause: errors.Wrap(err, format)}
	}
	return dropAlpha(img), nil
}

func decodeWebP(data []byte) (image.Image, error) {
	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Cause: errors.Wrap(err, "webp")}
	}
	if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, &DecodeError{Cause: errors.Wrap(err, "webp")}
	}
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Cause: errors.Wrap(err, "webp")}
	}
	return dropAlpha(img), nil
}

// dropAlpha returns img with every pixel made opaque. The stored colour of
// transparent pixels is kept as is, so resampling never blends them toward
// black. Premultiplied sources only keep their premultiplied colour.
func dropAlpha(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}

	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			i := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()*4], src.Pix[i:i+b.Dx()*4])
		}
	case *image.NRGBA64:
		for y := 0; y < b.Dy(); y++ {
			i := src.PixOffset(b.Min.X, b.Min.Y+y)
			d := dst.Pix[y*dst.Stride:]
			for x := 0; x < b.Dx(); x++ {
				// High byte of each big-endian 16-bit sample.
				d[x*4+0] = src.Pix[i+x*8+0]
				d[x*4+1] = src.Pix[i+x*8+2]
				d[x*4+2] = src.Pix[i+x*8+4]
			}
		}
	case *image.Paletted:
		palette := make([]color.NRGBA, len(src.Palette))
		for i, c := range src.Palette {
			palette[i] = color.NRGBAModel.Convert(c).(color.NRGBA)
		}
		for y := 0; y < b.Dy(); y++ {
			i := src.PixOffset(b.Min.X, b.Min.Y+y)
			d := dst.Pix[y*dst.Stride:]
			for x := 0; x < b.Dx(); x++ {
				c := palette[src.Pix[i+x]]
				d[x*4+0], d[x*4+1], d[x*4+2] = c.R, c.G, c.B
			}
		}
	default:
		dst = imaging.Clone(img)
	}

	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

func checkDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.Errorf("invalid image dimensions %dx%d", width, height)
	}
	if int64(width)*int64(height) > MaxPixels {
		return errors.Errorf("image of %dx%d exceeds %d pixels", width, height, MaxPixels)
	}
	return nil
}
