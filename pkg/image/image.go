// Package image holds the domain model of the guetzli service: the media
// types the service accepts, the per-entry processing status, and the
// metadata record persisted next to every stored image.
package image

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by the model layer.
var (
	// ErrUnsupportedType is returned when an upload declares a media type
	// other than image/jpeg or image/png.
	ErrUnsupportedType = errors.New("unsupported media type")

	// ErrCorruptMetadata is returned when a metadata record cannot be parsed.
	ErrCorruptMetadata = errors.New("corrupt metadata record")
)

// Type identifies the media type of an uploaded source image.
type Type string

const (
	TypeJPG Type = "JPG"
	TypePNG Type = "PNG"
)

// Ext returns the file extension used for the stored source file.
func (t Type) Ext() string {
	if t == TypePNG {
		return "png"
	}
	return "jpg"
}

// MIME returns the media type string for HTTP responses.
func (t Type) MIME() string {
	if t == TypePNG {
		return "image/png"
	}
	return "image/jpeg"
}

// ParseType parses the exact enum name ("JPG" or "PNG").
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeJPG, TypePNG:
		return Type(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, s)
}

// TypeFromMIME maps an upload Content-Type to a Type.
// image/jpeg maps to JPG and image/png maps to PNG; anything else is
// rejected with ErrUnsupportedType.
func TypeFromMIME(mime string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg":
		return TypeJPG, nil
	case "image/png":
		return TypePNG, nil
	}
	return "", fmt.Errorf("%w: Content-Type %q", ErrUnsupportedType, mime)
}

// Status is the processing state of an entry. States only ever advance:
//
//	stored -> waiting -> transforming -> transformed | failed
//
// transformed and failed are terminal until the entry is deleted.
type Status string

const (
	StatusStored       Status = "stored"
	StatusWaiting      Status = "waiting"
	StatusTransforming Status = "transforming"
	StatusTransformed  Status = "transformed"
	StatusFailed       Status = "failed"
)

var statusRank = map[Status]int{
	StatusStored:       0,
	StatusWaiting:      1,
	StatusTransforming: 2,
	StatusTransformed:  3,
	StatusFailed:       3,
}

// ParseStatus parses the exact enum name of a status.
func ParseStatus(s string) (Status, error) {
	if _, ok := statusRank[Status(s)]; !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrCorruptMetadata, s)
	}
	return Status(s), nil
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusTransformed || s == StatusFailed
}

// CanAdvanceTo reports whether moving from s to next respects the
// monotone state order.
func (s Status) CanAdvanceTo(next Status) bool {
	sr, ok1 := statusRank[s]
	nr, ok2 := statusRank[next]
	if !ok1 || !ok2 {
		return false
	}
	return nr > sr && !s.Terminal()
}
