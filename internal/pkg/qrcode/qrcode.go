package qrcode

import (
	"errors"

	qr "github.com/skip2/go-qrcode"
)

const (
	// DefaultSize is the rendered image edge in pixels
	DefaultSize = 512

	maxContentLen = 2048
)

var ErrEmptyContent = errors.New("qrcode: empty content")

// GeneratePNG renders content as a QR code PNG. Size <= 0 falls back to
// DefaultSize.
func GeneratePNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > maxContentLen {
		return nil, errors.New("qrcode: content too long")
	}
	if size <= 0 {
		size = DefaultSize
	}
	return qr.Encode(content, qr.Medium, size)
}
