package captcha

import (
	"regexp"
	"strings"
)

// QuestionReader turns the instruction image into raw text.
type QuestionReader interface {
	Read(question []byte) (string, error)
}

var lineBreaks = regexp.MustCompile(`[\r\n]+`)

// NormalizeInstruction lowercases OCR output, trims whitespace and trailing
// punctuation and joins the lines with single spaces.
func NormalizeInstruction(raw string) string {
	s := strings.ToLower(raw)
	s = strings.TrimSpace(s)
	s = strings.Trim(s, ",.")
	return lineBreaks.ReplaceAllString(s, " ")
}
