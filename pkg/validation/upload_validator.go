package validation

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"strings"

	apperrors "go-kart-insurance/internal/errors"
	"go-kart-insurance/pkg/models"

	"github.com/gabriel-vasile/mimetype"
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9.]`)
	repeatedHyphens     = regexp.MustCompile(`-{2,}`)
)

// DefaultMaxPixels bounds width*height so a small, highly compressed file
// cannot expand into a huge bitmap on decode.
const DefaultMaxPixels = 40_000_000

// UploadValidator checks uploads before anything is sent to a backend
type UploadValidator struct {
	allowedTypes []string
	maxSize      int64
	maxPixels    int64
}

// NewUploadValidator creates a validator for the given MIME allow-list and size ceiling
func NewUploadValidator(allowedTypes []string, maxSize int64) *UploadValidator {
	types := make([]string, 0, len(allowedTypes))
	for _, t := range allowedTypes {
		types = append(types, strings.ToLower(strings.TrimSpace(t)))
	}
	return &UploadValidator{
		allowedTypes: types,
		maxSize:      maxSize,
		maxPixels:    DefaultMaxPixels,
	}
}

// SetMaxPixels overrides the pixel ceiling. Values <= 0 keep the default.
func (v *UploadValidator) SetMaxPixels(n int64) {
	if n > 0 {
		v.maxPixels = n
	}
}

// MaxSize returns the configured size ceiling in bytes
func (v *UploadValidator) MaxSize() int64 {
	return v.maxSize
}

// Validate sniffs the content type, enforces the ceiling and makes sure the
// payload decodes as an image.
func (v *UploadValidator) Validate(data []byte, filename string) (*models.Image, error) {
	if len(data) == 0 {
		return nil, apperrors.NewMissingImageError()
	}
	if int64(len(data)) > v.maxSize {
		err := apperrors.NewTooLargeError("Image is too large", nil)
		err.Details = fmt.Sprintf("image is %d bytes, limit is %d bytes", len(data), v.maxSize)
		return nil, err
	}

	mtype := mimetype.Detect(data)
	contentType := strings.ToLower(mtype.String())
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if !v.isTypeAllowed(contentType) {
		err := apperrors.NewValidationError("Invalid file type", nil)
		err.Details = fmt.Sprintf("got %s, allowed: %s", contentType, strings.Join(v.allowedTypes, ", "))
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewValidationError("Invalid image data", err)
	}
	// Only the header has been read so far
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > v.maxPixels {
		tooLarge := apperrors.NewTooLargeError("Image dimensions are too large", nil)
		tooLarge.Details = fmt.Sprintf("image is %dx%d (%d pixels), limit is %d pixels",
			cfg.Width, cfg.Height, pixels, v.maxPixels)
		return nil, tooLarge
	}

	return &models.Image{
		Data:        data,
		ContentType: contentType,
		Filename:    SanitizeFilename(filename),
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

// isTypeAllowed checks if the content type is in the allowed list
func (v *UploadValidator) isTypeAllowed(contentType string) bool {
	for _, allowed := range v.allowedTypes {
		if contentType == allowed {
			return true
		}
		// image/jpg is a common alias that mimetype never reports
		if allowed == "image/jpg" && contentType == "image/jpeg" {
			return true
		}
	}
	return false
}

// DecodeBase64Image decodes a base64 payload, with or without a data URL prefix.
func DecodeBase64Image(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, apperrors.NewMissingImageError()
	}
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.IndexByte(encoded, ','); i >= 0 {
			encoded = encoded[i+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// Browsers sometimes drop the padding
		if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "=")); rawErr == nil {
			return raw, nil
		}
		return nil, apperrors.NewValidationError("Invalid base64 image", err)
	}
	return data, nil
}

// SanitizeFilename lowercases a name and reduces it to [a-z0-9.-].
func SanitizeFilename(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = unsafeFilenameChars.ReplaceAllString(s, "-")
	s = repeatedHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" || s == "." || s == ".." {
		return "upload"
	}
	return s
}
