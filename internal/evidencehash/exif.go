package evidencehash

import (
	"bytes"
	"fmt"
	"math"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	"github.com/dsoprea/go-jpeg-image-structure/v2"
)

// GPSFix is the GPS reading embedded in, or extracted from, a JPEG's EXIF
// segment. Alt is optional.
type GPSFix struct {
	Lat float64
	Lng float64
	Alt *float64
}

// EmbedGPS parses jpegBytes' APP1 segment, creates or updates the GPS IFD
// with fix, and returns a freshly allocated byte slice. The input is never
// modified.
func EmbedGPS(jpegBytes []byte, fix GPSFix) ([]byte, error) {
	jmp := jpegstructure.NewJpegMediaParser()

	intfc, err := jmp.ParseBytes(jpegBytes)
	if err != nil {
		return nil, fmt.Errorf("evidencehash: parse jpeg: %w", err)
	}

	sl := intfc.(*jpegstructure.SegmentList)

	rootIb, err := sl.ConstructExifBuilder()
	if err != nil {
		ifdMapping, mapErr := exifcommon.NewIfdMappingWithStandard()
		if mapErr != nil {
			return nil, fmt.Errorf("evidencehash: build ifd mapping: %w", mapErr)
		}

		ti := exif.NewTagIndex()
		rootIb = exif.NewIfdBuilder(ifdMapping, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
	}

	gpsIb, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD/GPS")
	if err != nil {
		return nil, fmt.Errorf("evidencehash: get gps ifd: %w", err)
	}

	if err := setGPSFields(gpsIb, fix); err != nil {
		return nil, fmt.Errorf("evidencehash: set gps fields: %w", err)
	}

	if err := sl.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("evidencehash: set exif: %w", err)
	}

	var out bytes.Buffer
	if err := sl.Write(&out); err != nil {
		return nil, fmt.Errorf("evidencehash: write jpeg: %w", err)
	}

	return out.Bytes(), nil
}

func setGPSFields(gpsIb *exif.IfdBuilder, fix GPSFix) error {
	latRef := "N"
	lat := fix.Lat

	if lat < 0 {
		latRef = "S"
		lat = -lat
	}

	lngRef := "E"
	lng := fix.Lng

	if lng < 0 {
		lngRef = "W"
		lng = -lng
	}

	if err := gpsIb.AddStandardWithName("GPSLatitudeRef", latRef); err != nil {
		return err
	}

	if err := gpsIb.AddStandardWithName("GPSLatitude", degreesToRationals(lat)); err != nil {
		return err
	}

	if err := gpsIb.AddStandardWithName("GPSLongitudeRef", lngRef); err != nil {
		return err
	}

	if err := gpsIb.AddStandardWithName("GPSLongitude", degreesToRationals(lng)); err != nil {
		return err
	}

	if fix.Alt != nil {
		altRef := byte(0)
		alt := *fix.Alt

		if alt < 0 {
			altRef = 1
			alt = -alt
		}

		if err := gpsIb.AddStandardWithName("GPSAltitudeRef", []byte{altRef}); err != nil {
			return err
		}

		altRational := exifcommon.Rational{Numerator: uint32(alt * 100), Denominator: 100}
		if err := gpsIb.AddStandardWithName("GPSAltitude", altRational); err != nil {
			return err
		}
	}

	return nil
}

// degreesToRationals encodes a positive decimal-degree value as the three
// rationals (deg, min, sec*10^4/10^4) the EXIF GPS tags expect.
func degreesToRationals(decimal float64) []exifcommon.Rational {
	deg := math.Floor(decimal)
	minFloat := (decimal - deg) * 60
	minutes := math.Floor(minFloat)
	seconds := (minFloat - minutes) * 60

	return []exifcommon.Rational{
		{Numerator: uint32(deg), Denominator: 1},
		{Numerator: uint32(minutes), Denominator: 1},
		{Numerator: uint32(seconds * 10000), Denominator: 10000},
	}
}

// ExtractGPS parses jpegBytes' existing EXIF segment and returns the
// embedded GPS fix, if any. Never returns an error for malformed or
// absent EXIF data — only for inputs that aren't parseable as JPEG at
// all, which the caller treats the same way as "no fix found".
func ExtractGPS(jpegBytes []byte) (*GPSFix, error) {
	jmp := jpegstructure.NewJpegMediaParser()

	intfc, err := jmp.ParseBytes(jpegBytes)
	if err != nil {
		return nil, fmt.Errorf("evidencehash: parse jpeg: %w", err)
	}

	sl := intfc.(*jpegstructure.SegmentList)

	rootIfd, _, err := sl.Exif()
	if err != nil {
		return nil, nil //nolint:nilnil // no EXIF segment present, not an error
	}

	gi, err := rootIfd.GpsInfo()
	if err != nil || gi == nil {
		return nil, nil //nolint:nilnil // no GPS IFD or malformed GPS data
	}

	fix := &GPSFix{
		Lat: gi.Latitude.Decimal(),
		Lng: gi.Longitude.Decimal(),
	}

	if gi.Altitude != 0 {
		alt := float64(gi.Altitude)
		fix.Alt = &alt
	}

	return fix, nil
}
