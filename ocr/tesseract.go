// Package ocr reads the challenge question image with OpenCV preprocessing and Tesseract.
package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"
)

const upscale = 1.6

var ErrEmptyImage = errors.New("ocr: empty question image")

// Reader implements captcha.QuestionReader.
type Reader struct {
	Language string
	// PageMode defaults to tesseract's own automatic segmentation.
	PageMode gosseract.PageSegMode

	// tesseract handles are not safe for concurrent use
	mu sync.Mutex
}

func NewReader(language string) *Reader {
	if language == "" {
		language = "eng"
	}
	return &Reader{Language: language, PageMode: gosseract.PSM_AUTO}
}

// Read returns the raw text found in the question image.
func (r *Reader) Read(question []byte) (string, error) {
	prepared, err := Preprocess(question)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.Language); err != nil {
		return "", fmt.Errorf("ocr: set language - %w", err)
	}
	if err := client.SetPageSegMode(r.PageMode); err != nil {
		return "", fmt.Errorf("ocr: set page mode - %w", err)
	}
	if err := client.SetImageFromBytes(prepared); err != nil {
		return "", fmt.Errorf("ocr: set image - %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Preprocess upscales, grays and binarizes the image with inverted Otsu, so dark text
// on a light background comes out white on black.
// The result is PNG encoded.
func Preprocess(question []byte) ([]byte, error) {
	if len(question) == 0 {
		return nil, ErrEmptyImage
	}

	src, err := gocv.IMDecode(question, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("ocr: decode - %w", err)
	}
	defer src.Close()
	if src.Empty() {
		return nil, ErrEmptyImage
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Point{}, upscale, upscale, gocv.InterpolationArea)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(resized, &gray, gocv.ColorBGRToGray)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)

	img, err := binary.ToImage()
	if err != nil {
		return nil, fmt.Errorf("ocr: convert - %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
