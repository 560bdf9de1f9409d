// Package extract converts uploaded file bytes into bounded plain text.
//
// Extraction is pure and synchronous: bytes plus a declared type in, text or
// a typed failure out. PDF parsing uses ledongthuc/pdf; txt and md are decoded
// as UTF-8 with a Latin-1 fallback. Output is capped at MaxChars characters.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxChars bounds extracted text per file.
const MaxChars = 100_000

// Sentinel errors, checked with errors.Is().
var (
	// ErrUnsupportedType indicates the declared file type is not in the allow-list.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrPDF indicates the PDF could not be parsed.
	ErrPDF = errors.New("failed to extract text from PDF")
)

// Extract returns the text content of data according to the declared type.
// Supported types: pdf, txt, md.
func Extract(data []byte, fileType string) (string, error) {
	switch fileType {
	case "pdf":
		return extractPDF(data)
	case "txt", "md":
		return extractText(data), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, fileType)
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPDF, err)
	}

	r, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPDF, err)
	}

	// Read at most MaxChars worth of bytes plus slack for the rune boundary.
	var sb strings.Builder
	if _, err := io.Copy(&sb, io.LimitReader(r, MaxChars*4)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPDF, err)
	}

	return truncate(sb.String()), nil
}

func extractText(data []byte) string {
	if utf8.Valid(data) {
		return truncate(string(data))
	}

	// Latin-1 fallback: every byte maps to the code point of the same value.
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return truncate(string(runes))
}

// truncate caps s at MaxChars characters, not bytes, so multi-byte runes are
// never split.
func truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxChars])
}
