package hash

import (
	"image"
	"sort"

	"github.com/disintegration/imaging"
)

const (
	whashSize  = 8
	whashScale = 64
)

// WaveletHash computes a 64-bit Haar wavelet hash. The image is reduced to a
// 64x64 grayscale square, the global mean (the coarsest LL coefficient) is
// removed, and the Haar transform is applied until an 8x8 LL band remains.
// Each bit is set when its coefficient lies above the band median.
func WaveletHash(img image.Image) uint64 {
	small := imaging.Grayscale(imaging.Resize(img, whashScale, whashScale, imaging.Box))

	pixels := make([][]float64, whashScale)
	var sum float64
	for y := 0; y < whashScale; y++ {
		pixels[y] = make([]float64, whashScale)
		for x := 0; x < whashScale; x++ {
			v := float64(small.Pix[y*small.Stride+x*4]) / 255.0
			pixels[y][x] = v
			sum += v
		}
	}

	mean := sum / float64(whashScale*whashScale)
	for y := range pixels {
		for x := range pixels[y] {
			pixels[y][x] -= mean
		}
	}

	for n := whashScale; n > whashSize; n /= 2 {
		pixels = haarLL(pixels, n)
	}

	flat := make([]float64, 0, whashSize*whashSize)
	for y := 0; y < whashSize; y++ {
		flat = append(flat, pixels[y][:whashSize]...)
	}

	median := medianOf(flat)

	var bits uint64
	for i, v := range flat {
		if v > median {
			bits |= 1 << uint(len(flat)-1-i)
		}
	}
	return bits
}

// haarLL applies one level of the 2D Haar transform to the top-left n x n
// block and returns the n/2 x n/2 approximation band.
func haarLL(in [][]float64, n int) [][]float64 {
	half := n / 2
	out := make([][]float64, half)
	for y := 0; y < half; y++ {
		out[y] = make([]float64, half)
		for x := 0; x < half; x++ {
			a := in[2*y][2*x]
			b := in[2*y][2*x+1]
			c := in[2*y+1][2*x]
			d := in[2*y+1][2*x+1]
			out[y][x] = (a + b + c + d) / 2
		}
	}
	return out
}

func medianOf(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
