package mimetypes

import (
	"mime"

	"github.com/gabriel-vasile/mimetype"
)

type MIME string

const (
	Unknown         MIME = "unknown"
	TextPlain       MIME = "text/plain"
	ApplicationJSON MIME = "application/json"
)

// Matches compares the media type of detected, parameters stripped, with expected.
func Matches(detected string, expected MIME) bool {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return false
	}
	return mt == string(expected)
}

// Detect sniffs data and returns the supported document type it holds,
// or Unknown, along with the raw detected type.
func Detect(data []byte) (MIME, string) {
	detected := mimetype.Detect(data).String()
	for _, supported := range []MIME{ApplicationJSON, TextPlain} {
		if Matches(detected, supported) {
			return supported, detected
		}
	}
	return Unknown, detected
}
