package story

import (
	"errors"
	"strings"
)

// ErrInvalidImageFormat reports a payload that is not a base64 image data URL.
var ErrInvalidImageFormat = errors.New("invalid image format")

// EncodedImage is a self-describing image payload: a MIME type plus the
// base64-encoded bytes. It renders as a data URL without any external lookup.
type EncodedImage struct {
	MIME string
	Data string
}

// DataURL formats the image as a data URL suitable for direct rendering.
func (e EncodedImage) DataURL() string {
	return "data:" + e.MIME + ";base64," + e.Data
}

// ParseDataURL splits a data URL of the form data:image/<subtype>;base64,<payload>
// into its MIME type and base64 payload. Anything else is rejected with
// ErrInvalidImageFormat.
func ParseDataURL(s string) (EncodedImage, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return EncodedImage{}, ErrInvalidImageFormat
	}
	mime, data, ok := strings.Cut(rest, ";base64,")
	if !ok || data == "" {
		return EncodedImage{}, ErrInvalidImageFormat
	}
	sub, ok := strings.CutPrefix(mime, "image/")
	if !ok || sub == "" || strings.ContainsAny(sub, "/;,") {
		return EncodedImage{}, ErrInvalidImageFormat
	}
	return EncodedImage{MIME: mime, Data: data}, nil
}
