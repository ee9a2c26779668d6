package hash

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	gohash "hash"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	"golang.org/x/crypto/sha3"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"imagededup/internal/models"
)

var (
	// ErrUnsupportedAlgorithm is returned for algorithm names outside the supported set
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	// ErrDecode is returned when image bytes cannot be decoded for a perceptual hash
	ErrDecode = errors.New("failed to decode image")
)

// Calculator computes perceptual and cryptographic hashes from raw bytes
type Calculator struct {
	now func() time.Time
}

// NewCalculator creates a new Calculator
func NewCalculator() *Calculator {
	return &Calculator{now: time.Now}
}

// Calculate hashes data with the requested algorithm
func (c *Calculator) Calculate(data []byte, algo models.Algorithm) (models.HashResult, error) {
	switch {
	case algo.IsPerceptual():
		img, format, err := DecodeImage(data)
		if err != nil {
			return models.HashResult{}, err
		}
		return c.Perceptual(img, format, algo)
	case algo.IsCryptographic():
		return c.Cryptographic(data, algo)
	default:
		return models.HashResult{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algo)
	}
}

// DecodeImage decodes data and normalizes it to NRGBA with EXIF orientation applied
func DecodeImage(data []byte) (image.Image, string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return imaging.Clone(img), strings.ToLower(format), nil
}

// Perceptual computes a 64-bit image-structure hash
func (c *Calculator) Perceptual(img image.Image, format string, algo models.Algorithm) (models.HashResult, error) {
	var (
		bits uint64
		err  error
	)

	switch algo {
	case models.AlgoPHash:
		bits, err = goimagehashValue(goimagehash.PerceptionHash(img))
	case models.AlgoDHash:
		bits, err = goimagehashValue(goimagehash.DifferenceHash(img))
	case models.AlgoAHash:
		bits, err = goimagehashValue(goimagehash.AverageHash(img))
	case models.AlgoWHash:
		bits = WaveletHash(img)
	default:
		return models.HashResult{}, fmt.Errorf("%w: %q is not perceptual", ErrUnsupportedAlgorithm, algo)
	}
	if err != nil {
		return models.HashResult{}, fmt.Errorf("failed to compute %s: %w", algo, err)
	}

	bounds := img.Bounds()
	return models.HashResult{
		Value:     fmt.Sprintf("%016x", bits),
		Algorithm: algo,
		BitLength: 64,
		Timestamp: c.now(),
		Metadata: map[string]any{
			"width":  bounds.Dx(),
			"height": bounds.Dy(),
			"format": format,
		},
	}, nil
}

func goimagehashValue(h *goimagehash.ImageHash, err error) (uint64, error) {
	if err != nil {
		return 0, err
	}
	return h.GetHash(), nil
}

// Cryptographic computes a digest over the raw bytes. It never fails for a
// supported algorithm.
func (c *Calculator) Cryptographic(data []byte, algo models.Algorithm) (models.HashResult, error) {
	h, err := newDigest(algo)
	if err != nil {
		return models.HashResult{}, err
	}
	h.Write(data)

	return models.HashResult{
		Value:     hex.EncodeToString(h.Sum(nil)),
		Algorithm: algo,
		BitLength: h.Size() * 8,
		Timestamp: c.now(),
		Metadata:  map[string]any{"byte_size": len(data)},
	}, nil
}

func newDigest(algo models.Algorithm) (gohash.Hash, error) {
	switch algo {
	case models.AlgoMD5:
		return md5.New(), nil
	case models.AlgoSHA1:
		return sha1.New(), nil
	case models.AlgoSHA256:
		return sha256.New(), nil
	case models.AlgoSHA512:
		return sha512.New(), nil
	case models.AlgoSHA3256:
		return sha3.New256(), nil
	default:
		return nil, fmt.Errorf("%w: %q is not cryptographic", ErrUnsupportedAlgorithm, algo)
	}
}

// CalculateAll computes every supported hash for data. Algorithms that fail
// (e.g. perceptual hashes of undecodable bytes) are left out.
func (c *Calculator) CalculateAll(data []byte) map[models.Algorithm]models.HashResult {
	results := make(map[models.Algorithm]models.HashResult)

	if img, format, err := DecodeImage(data); err == nil {
		for _, algo := range models.PerceptualAlgorithms {
			if res, err := c.Perceptual(img, format, algo); err == nil {
				results[algo] = res
			}
		}
	}

	for _, algo := range models.CryptographicAlgorithms {
		if res, err := c.Cryptographic(data, algo); err == nil {
			results[algo] = res
		}
	}

	return results
}

// SupportedAlgorithms returns every algorithm Calculate accepts
func SupportedAlgorithms() []models.Algorithm {
	all := make([]models.Algorithm, 0, len(models.PerceptualAlgorithms)+len(models.CryptographicAlgorithms))
	all = append(all, models.PerceptualAlgorithms...)
	all = append(all, models.CryptographicAlgorithms...)
	return all
}

// IsSupportedImage checks if a file is a supported image format
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".tif":
		return true
	default:
		return false
	}
}
