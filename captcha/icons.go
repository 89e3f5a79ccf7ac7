package captcha

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sort"

	"github.com/corona10/goimagehash"
	"github.com/corona10/goimagehash/transforms"
	"github.com/nfnt/resize"
)

const (
	TileCount = 4
	TileSize  = 60
	// tiles are upscaled before hashing, the known hashes were taken at this size
	hashInputSize = 100
	dctSize       = 32
	lowFreqSize   = 8
)

// IconCandidate is one recognized tile, Label is empty when the hash is unknown.
type IconCandidate struct {
	TileIndex int    `json:"tile"`
	Hash      string `json:"hash"`
	Label     string `json:"label,omitempty"`
	Distance  int    `json:"distance"`
}

func (c IconCandidate) Known() bool {
	return c.Label != ""
}

type Recognizer struct {
	Labels      *LabelTable
	MaxDistance int
}

func NewRecognizer(labels *LabelTable, maxDistance int) *Recognizer {
	if maxDistance < 0 {
		maxDistance = 0
	}
	return &Recognizer{Labels: labels, MaxDistance: maxDistance}
}

// Recognize identifies the four icons of a drag-icons strip.
func (r *Recognizer) Recognize(strip []byte) ([TileCount]IconCandidate, error) {
	img, err := DecodeImage(strip)
	if err != nil {
		return [TileCount]IconCandidate{}, err
	}

	tiles, err := SplitTiles(img)
	if err != nil {
		return [TileCount]IconCandidate{}, err
	}
	return r.RecognizeTiles(tiles), nil
}

func (r *Recognizer) RecognizeTiles(tiles [TileCount]*image.RGBA) [TileCount]IconCandidate {
	var candidates [TileCount]IconCandidate
	for i, tile := range tiles {
		hash := PerceptualHash(tile)
		candidates[i] = IconCandidate{
			TileIndex: i,
			Hash:      HashString(hash),
		}

		if label, distance, ok := r.Labels.Lookup(hash, r.MaxDistance); ok {
			candidates[i].Label = label
			candidates[i].Distance = distance
		}
	}
	return candidates
}

func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image - %s", err)
	}
	return img, nil
}

// SplitTiles cuts the strip into 60x60 tiles at x offsets 0, 60, 120 and 180.
func SplitTiles(img image.Image) ([TileCount]*image.RGBA, error) {
	var tiles [TileCount]*image.RGBA

	b := img.Bounds()
	if b.Dx() < TileCount*TileSize || b.Dy() < TileSize {
		return tiles, fmt.Errorf("icon strip is %dx%d, want at least %dx%d", b.Dx(), b.Dy(), TileCount*TileSize, TileSize)
	}

	for i := range tiles {
		tile := image.NewRGBA(image.Rect(0, 0, TileSize, TileSize))
		draw.Draw(tile, tile.Bounds(), img, image.Pt(b.Min.X+i*TileSize, b.Min.Y), draw.Src)
		tiles[i] = tile
	}
	return tiles, nil
}

// PerceptualHash upscales the tile to 100x100 (bicubic), converts it to gray, shrinks it
// to 32x32 (lanczos) and sets one bit per low-frequency DCT coefficient above the median.
// Resampling differs slightly from PIL, so known hashes are matched within Recognizer.MaxDistance.
func PerceptualHash(tile image.Image) *goimagehash.ImageHash {
	up := resize.Resize(hashInputSize, hashInputSize, tile, resize.Bicubic)

	ub := up.Bounds()
	gray := image.NewGray(image.Rect(0, 0, ub.Dx(), ub.Dy()))
	for y := 0; y < ub.Dy(); y++ {
		for x := 0; x < ub.Dx(); x++ {
			gray.SetGray(x, y, color.Gray{Y: Luma(up.At(ub.Min.X+x, ub.Min.Y+y))})
		}
	}

	small := resize.Resize(dctSize, dctSize, gray, resize.Lanczos3)
	sb := small.Bounds()

	pixels := make([][]float64, dctSize)
	for y := 0; y < dctSize; y++ {
		pixels[y] = make([]float64, dctSize)
		for x := 0; x < dctSize; x++ {
			pixels[y][x] = float64(color.GrayModel.Convert(small.At(sb.Min.X+x, sb.Min.Y+y)).(color.Gray).Y)
		}
	}

	dct := transforms.DCT2D(pixels, dctSize, dctSize)

	low := make([]float64, 0, lowFreqSize*lowFreqSize)
	for y := 0; y < lowFreqSize; y++ {
		low = append(low, dct[y][:lowFreqSize]...)
	}
	median := medianOf(low)

	var hash uint64
	for i, v := range low {
		if v > median {
			hash |= 1 << uint(len(low)-1-i)
		}
	}
	return goimagehash.NewImageHash(hash, goimagehash.PHash)
}

// Luma is PIL's "L" conversion: ITU-R 601-2 weights on the straight (not premultiplied)
// color, alpha ignored.
func Luma(c color.Color) uint8 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return uint8((uint32(n.R)*19595 + uint32(n.G)*38470 + uint32(n.B)*7471 + 0x8000) >> 16)
}

func HashString(hash *goimagehash.ImageHash) string {
	return fmt.Sprintf("%016x", hash.GetHash())
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
