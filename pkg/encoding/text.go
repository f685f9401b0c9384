// Package encoding provides text utilities for names read from authoring files.
package encoding

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Supported source encodings for legacy geometry and material files.
const (
	UTF8        = "utf-8"
	Windows1252 = "windows-1252"
	ISO88591    = "iso-8859-1"
)

// Decoder returns the x/text encoding for name, or nil for UTF-8.
// ok is false for unknown names.
func Decoder(name string) (enc encoding.Encoding, ok bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", UTF8, "utf8":
		return nil, true
	case Windows1252, "cp1252":
		return charmap.Windows1252, true
	case ISO88591, "latin1":
		return charmap.ISO8859_1, true
	default:
		return nil, false
	}
}

// ToUTF8 converts data from the named encoding to a UTF-8 string.
// Returns the original bytes as a string if conversion fails.
func ToUTF8(data []byte, name string) string {
	enc, ok := Decoder(name)
	if !ok || enc == nil {
		return string(data)
	}
	result, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// NormalizeName returns the NFC form of a node, mesh or material name with
// surrounding whitespace and control characters removed.
func NormalizeName(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// NormalizePath normalizes a file reference for identity comparison.
// Backslashes become forward slashes and the result is cleaned.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return path.Clean(norm.NFC.String(p))
}

// BaseName returns the last element of a normalized path.
func BaseName(p string) string {
	return path.Base(NormalizePath(p))
}
