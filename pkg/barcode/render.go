package barcode

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
)

// DefaultModuleWidth is the pixel width of a single cell before scaling.
const DefaultModuleWidth = 2

// ImageOptions controls raster rendering.
type ImageOptions struct {
	ModuleWidth int
	Height      int
	// MaxWidth scales the pattern down to fit; zero means no limit.
	MaxWidth int
	Margin   int
}

// Normalize fills unset values.
func (o ImageOptions) Normalize() ImageOptions {
	if o.ModuleWidth <= 0 {
		o.ModuleWidth = DefaultModuleWidth
	}
	if o.Height <= 0 {
		o.Height = 80
	}
	if o.Margin < 0 {
		o.Margin = 0
	}
	return o
}

// ScaledModuleWidth returns the fractional module width after fitting the
// pattern into opts.MaxWidth.
func ScaledModuleWidth(cells int, opts ImageOptions) float64 {
	opts = opts.Normalize()
	natural := float64(cells * opts.ModuleWidth)
	available := float64(opts.MaxWidth - 2*opts.Margin)
	if opts.MaxWidth <= 0 || natural <= available || available <= 0 {
		return float64(opts.ModuleWidth)
	}
	return available / float64(cells)
}

// Image rasterizes cells into a grayscale image.
func Image(cells []bool, opts ImageOptions) (*image.Gray, error) {
	if len(cells) == 0 {
		return nil, errors.New("barcode: empty pattern")
	}
	opts = opts.Normalize()
	module := ScaledModuleWidth(len(cells), opts)
	width := int(module*float64(len(cells))+0.5) + 2*opts.Margin
	height := opts.Height + 2*opts.Margin

	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	for i, bar := range cells {
		if !bar {
			continue
		}
		x0 := opts.Margin + int(module*float64(i)+0.5)
		x1 := opts.Margin + int(module*float64(i+1)+0.5)
		if x1 == x0 {
			x1 = x0 + 1
		}
		for x := x0; x < x1 && x < width; x++ {
			for y := opts.Margin; y < opts.Margin+opts.Height; y++ {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return img, nil
}

// WritePNG renders the pattern for value as a PNG.
func WritePNG(w io.Writer, value string, opts ImageOptions) error {
	img, err := Image(Pattern(value), opts)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// Text renders cells as terminal rows of block characters, compressing the
// pattern when it is wider than maxCols. A column is drawn as a bar when any
// cell mapped to it is a bar.
func Text(cells []bool, maxCols, rows int) string {
	if len(cells) == 0 {
		return ""
	}
	if rows <= 0 {
		rows = 1
	}
	cols := len(cells)
	if maxCols > 0 && cols > maxCols {
		cols = maxCols
	}

	line := make([]rune, cols)
	for c := 0; c < cols; c++ {
		start := c * len(cells) / cols
		end := (c + 1) * len(cells) / cols
		if end == start {
			end = start + 1
		}
		line[c] = ' '
		for _, bar := range cells[start:end] {
			if bar {
				line[c] = '█'
				break
			}
		}
	}

	row := string(line)
	var b strings.Builder
	for r := 0; r < rows; r++ {
		b.WriteString(row)
		b.WriteByte('\n')
	}
	return b.String()
}
