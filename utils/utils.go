package utils

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
)

const DefaultDPI = 72.0

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func exifIndex(data []byte) (exif.IfdIndex, error) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return exif.IfdIndex{}, fmt.Errorf("EXIF not found: %v", err)
	}

	im := exifcommon.NewIfdMapping()
	ti := exif.NewTagIndex()
	if err := exifcommon.LoadStandardIfds(im); err != nil {
		return exif.IfdIndex{}, err
	}

	_, index, err := exif.Collect(im, ti, rawExif)
	if err != nil {
		return exif.IfdIndex{}, err
	}
	return index, nil
}

// ReadOrientation returns the EXIF orientation tag (1-8). Images without
// EXIF data, or with an unreadable tag, report 1.
func ReadOrientation(data []byte) int {
	index, err := exifIndex(data)
	if err != nil || index.RootIfd == nil {
		return 1
	}
	tag, err := index.RootIfd.FindTagWithName("Orientation")
	if err != nil || len(tag) == 0 {
		return 1
	}
	val, err := tag[0].Value()
	if err != nil {
		return 1
	}
	if v, ok := val.([]uint16); ok && len(v) > 0 && v[0] >= 1 && v[0] <= 8 {
		return int(v[0])
	}
	return 1
}

// ReadDPI reads the horizontal and vertical resolution from EXIF or, for
// PNG, from the pHYs chunk. Missing metadata yields DefaultDPI.
func ReadDPI(data []byte) (float64, float64) {
	if bytes.HasPrefix(data, pngSignature) {
		dpi, err := GetDPIfromPNG(data[len(pngSignature):])
		if err != nil {
			return DefaultDPI, DefaultDPI
		}
		return dpi, dpi
	}
	x, y, err := getEXIFDPI(data)
	if err != nil {
		return DefaultDPI, DefaultDPI
	}
	return x, y
}

func getEXIFDPI(data []byte) (float64, float64, error) {
	index, err := exifIndex(data)
	if err != nil {
		return DefaultDPI, DefaultDPI, err
	}
	if index.RootIfd == nil {
		return DefaultDPI, DefaultDPI, fmt.Errorf("EXIF has no root IFD")
	}

	dpiX, dpiY := DefaultDPI, DefaultDPI

	if tag, err := index.RootIfd.FindTagWithName("XResolution"); err == nil {
		if val, err := tag[0].Value(); err == nil {
			if rats, ok := val.([]exifcommon.Rational); ok && len(rats) > 0 && rats[0].Denominator != 0 {
				dpiX = float64(rats[0].Numerator) / float64(rats[0].Denominator)
			}
		}
	}

	if tag, err := index.RootIfd.FindTagWithName("YResolution"); err == nil {
		if val, err := tag[0].Value(); err == nil {
			if rats, ok := val.([]exifcommon.Rational); ok && len(rats) > 0 && rats[0].Denominator != 0 {
				dpiY = float64(rats[0].Numerator) / float64(rats[0].Denominator)
			}
		}
	}

	if tag, err := index.RootIfd.FindTagWithName("ResolutionUnit"); err == nil {
		if val, err := tag[0].Value(); err == nil {
			if u, ok := val.([]uint16); ok && len(u) > 0 && u[0] == 3 {
				dpiX *= 2.54
				dpiY *= 2.54
			}
		}
	}

	return dpiX, dpiY, nil
}

// GetDPIfromPNG walks PNG chunks (signature already stripped) looking for
// pHYs.
func GetDPIfromPNG(data []byte) (float64, error) {
	const physChunk = "pHYs"
	buf := bytes.NewReader(data)

	for {
		var length uint32
		if err := binary.Read(buf, binary.BigEndian, &length); err != nil {
			break
		}

		chunkType := make([]byte, 4)
		if _, err := io.ReadFull(buf, chunkType); err != nil {
			break
		}

		if string(chunkType) == "IDAT" {
			// pHYs must precede the image data
			break
		}

		if string(chunkType) == physChunk {
			var pxPerUnitX, pxPerUnitY uint32
			var unit byte

			if err := binary.Read(buf, binary.BigEndian, &pxPerUnitX); err != nil {
				return 0, err
			}
			if err := binary.Read(buf, binary.BigEndian, &pxPerUnitY); err != nil {
				return 0, err
			}
			if err := binary.Read(buf, binary.BigEndian, &unit); err != nil {
				return 0, err
			}

			if unit == 1 {
				return float64(pxPerUnitX) * 0.0254, nil
			}
			break // unit = 0 (unknown)
		}

		// skip chunk data + CRC
		if _, err := buf.Seek(int64(length)+4, io.SeekCurrent); err != nil {
			break
		}
	}

	return DefaultDPI, nil
}
