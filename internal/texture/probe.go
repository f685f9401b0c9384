// Package texture inspects texture files without decoding pixel data.
// Texture bytes are embedded in the model unchanged; only the header is read.
package texture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder for DecodeConfig
	_ "image/png"  // register decoder for DecodeConfig
	"path"
	"strings"

	_ "golang.org/x/image/bmp" // register decoder for DecodeConfig
)

// Texture formats.
const (
	FormatDDS  = "dds"
	FormatTGA  = "tga"
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatBMP  = "bmp"
)

// ErrUnsupportedFormat is returned for files that are not a known image format.
var ErrUnsupportedFormat = errors.New("unsupported texture format")

// Info describes a texture file.
type Info struct {
	Format string
	Width  int
	Height int
}

// ddsMagic starts every DirectDraw Surface file.
const ddsMagic = "DDS "

// Probe identifies the format and dimensions of an encoded texture.
// name is only used to recognise TGA files, which carry no magic number.
func Probe(name string, data []byte) (Info, error) {
	if bytes.HasPrefix(data, []byte(ddsMagic)) {
		return probeDDS(data)
	}
	if strings.EqualFold(path.Ext(name), ".tga") {
		return probeTGA(data)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// probeDDS reads the DDS_HEADER that follows the magic: dwSize, dwFlags,
// dwHeight, dwWidth.
func probeDDS(data []byte) (Info, error) {
	if len(data) < 4+124 {
		return Info{}, fmt.Errorf("DDS data too short")
	}
	if size := binary.LittleEndian.Uint32(data[4:8]); size != 124 {
		return Info{}, fmt.Errorf("invalid DDS header size %d", size)
	}
	return Info{
		Format: FormatDDS,
		Height: int(binary.LittleEndian.Uint32(data[12:16])),
		Width:  int(binary.LittleEndian.Uint32(data[16:20])),
	}, nil
}

// probeTGA reads the TGA image specification.
func probeTGA(data []byte) (Info, error) {
	if len(data) < 18 {
		return Info{}, fmt.Errorf("TGA data too short")
	}

	colorMapType := data[1]
	imageType := data[2]
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bpp := int(data[16])

	if colorMapType > 1 {
		return Info{}, fmt.Errorf("invalid TGA color map type %d", colorMapType)
	}
	switch imageType {
	case 1, 2, 3, 9, 10, 11:
	default:
		return Info{}, fmt.Errorf("unsupported TGA type %d", imageType)
	}
	switch bpp {
	case 8, 15, 16, 24, 32:
	default:
		return Info{}, fmt.Errorf("unsupported TGA bit depth %d", bpp)
	}
	if width == 0 || height == 0 {
		return Info{}, fmt.Errorf("TGA has zero size")
	}
	return Info{Format: FormatTGA, Width: width, Height: height}, nil
}
