package imgsync

import (
	"cmp"
	"image"
	"slices"
)

type rgb struct{ r, g, b uint8 }

func (c rgb) channel(i int) uint8 {
	switch i {
	case 0:
		return c.r
	case 1:
		return c.g
	default:
		return c.b
	}
}

func (c rgb) compare(o rgb) int {
	if d := cmp.Compare(c.r, o.r); d != 0 {
		return d
	}
	if d := cmp.Compare(c.g, o.g); d != 0 {
		return d
	}
	return cmp.Compare(c.b, o.b)
}

// pixelsRGB flattens img into 8-bit RGB samples in raster order.
func pixelsRGB(img image.Image) []rgb {
	b := img.Bounds()
	out := make([]rgb, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out = append(out, rgb{uint8(r >> 8), uint8(g >> 8), uint8(bl >> 8)})
		}
	}
	return out
}

// colorCount is one distinct color and the number of pixels carrying it.
type colorCount struct {
	c rgb
	n int
}

// cutBox is a leaf of the median cut tree.
type cutBox struct {
	colors []colorCount
	pixels int
}

func newCutBox(colors []colorCount) *cutBox {
	b := &cutBox{colors: colors}
	for _, cc := range colors {
		b.pixels += cc.n
	}
	return b
}

// histogram counts the distinct colors of px, ordered by (r, g, b).
func histogram(px []rgb) []colorCount {
	counts := make(map[rgb]int, len(px))
	for _, c := range px {
		counts[c]++
	}
	out := make([]colorCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, colorCount{c: c, n: n})
	}
	slices.SortFunc(out, func(a, b colorCount) int { return a.c.compare(b.c) })
	return out
}

// quantize reduces px to an adaptive palette of at most n colors by median
// cut. The most populated box that still holds two distinct colors is split
// along its widest channel at the pixel-count median until n boxes exist.
// Boxes keep their tree order, lower half first, and that order is the
// palette order. idx maps every pixel to the box its color fell into.
func quantize(px []rgb, n int) (palette []rgb, idx []int) {
	if len(px) == 0 || n <= 0 {
		return nil, nil
	}
	boxes := []*cutBox{newCutBox(histogram(px))}
	for len(boxes) < n {
		k := -1
		for i, b := range boxes {
			if len(b.colors) > 1 && (k < 0 || b.pixels > boxes[k].pixels) {
				k = i
			}
		}
		if k < 0 {
			break
		}
		lo, hi := boxes[k].split()
		boxes = slices.Replace(boxes, k, k+1, lo, hi)
	}

	leaf := make(map[rgb]int)
	palette = make([]rgb, len(boxes))
	for i, b := range boxes {
		palette[i] = b.average()
		for _, cc := range b.colors {
			leaf[cc.c] = i
		}
	}
	idx = make([]int, len(px))
	for i, c := range px {
		idx[i] = leaf[c]
	}
	return palette, idx
}

// split halves b along its widest channel. Both halves are non-empty.
func (b *cutBox) split() (lo, hi *cutBox) {
	ch := b.widestChannel()
	colors := slices.Clone(b.colors)
	slices.SortFunc(colors, func(x, y colorCount) int {
		if d := cmp.Compare(x.c.channel(ch), y.c.channel(ch)); d != 0 {
			return d
		}
		return x.c.compare(y.c)
	})

	cut, acc := 0, 0
	for cut < len(colors)-1 {
		acc += colors[cut].n
		cut++
		if 2*acc >= b.pixels {
			break
		}
	}
	return newCutBox(colors[:cut]), newCutBox(colors[cut:])
}

// widestChannel returns the channel with the largest value range; ties go
// to the lower channel.
func (b *cutBox) widestChannel() int {
	best, bestSpan := 0, -1
	for ch := range 3 {
		lo, hi := 255, 0
		for _, cc := range b.colors {
			v := int(cc.c.channel(ch))
			lo = min(lo, v)
			hi = max(hi, v)
		}
		if hi-lo > bestSpan {
			best, bestSpan = ch, hi-lo
		}
	}
	return best
}

// average is the pixel-weighted mean color of b, rounded.
func (b *cutBox) average() rgb {
	var r, g, bl int
	for _, cc := range b.colors {
		r += int(cc.c.r) * cc.n
		g += int(cc.c.g) * cc.n
		bl += int(cc.c.b) * cc.n
	}
	n := b.pixels
	return rgb{uint8((r + n/2) / n), uint8((g + n/2) / n), uint8((bl + n/2) / n)}
}
