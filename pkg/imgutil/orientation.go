package imgutil

import (
	"errors"
	"io"
	"os"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
)

const rootIfdPath = "IFD"

// Orientation returns the EXIF orientation tag of a JPEG frame, or 1 when the
// file carries no EXIF data or no orientation tag.
func Orientation(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 1, err
	}
	defer f.Close()

	return OrientationReader(f)
}

func OrientationReader(rs io.ReadSeeker) (int, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 1, err
	}

	tags, err := flatTags(rs)
	if err != nil {
		if isNoExif(err) {
			return 1, nil
		}
		return 1, err
	}

	for _, tag := range tags {
		if tag.TagName != "Orientation" || tag.IfdPath != rootIfdPath {
			continue
		}
		if vals, ok := tag.Value.([]uint16); ok && len(vals) > 0 {
			return int(vals[0]), nil
		}
	}
	return 1, nil
}

// flatTags locates the EXIF block inside a container stream (the APP1
// segment of a JPEG) and flattens its IFDs.
func flatTags(r io.Reader) ([]exif.ExifTag, error) {
	raw, err := exif.SearchAndExtractExifWithReader(r)
	if err != nil {
		return nil, err
	}
	tags, _, err := exif.GetFlatExifData(raw, nil)
	return tags, err
}

// go-exif wraps its sentinel, so match on the message as well.
func isNoExif(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, exif.ErrNoExif) || strings.Contains(strings.ToLower(err.Error()), "no exif")
}
