package imgutil

import (
	"io"
	"os"
	"strings"
)

// Metadata summarises identifying EXIF content of a frame. None of it is
// carried into the animated outputs.
type Metadata struct {
	GPS       bool
	Camera    bool
	Timestamp bool
	Serials   int
}

func (m Metadata) Any() bool {
	return m.GPS || m.Camera || m.Timestamp || m.Serials > 0
}

// Labels lists the categories present, in a fixed order.
func (m Metadata) Labels() []string {
	var out []string
	if m.GPS {
		out = append(out, "location")
	}
	if m.Camera {
		out = append(out, "camera")
	}
	if m.Timestamp {
		out = append(out, "timestamp")
	}
	if m.Serials > 0 {
		out = append(out, "serial")
	}
	return out
}

func ReadMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	return MetadataReader(f)
}

func MetadataReader(rs io.ReadSeeker) (Metadata, error) {
	var md Metadata
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return md, err
	}

	tags, err := flatTags(rs)
	if err != nil {
		if isNoExif(err) {
			return md, nil
		}
		return md, err
	}

	for _, tag := range tags {
		name := tag.TagName
		switch {
		case strings.HasPrefix(name, "GPS") || strings.Contains(tag.IfdPath, "GPS"):
			md.GPS = true
		case name == "Make" || name == "Model":
			md.Camera = true
		case name == "DateTime" || name == "DateTimeOriginal" || name == "DateTimeDigitized":
			md.Timestamp = true
		case strings.Contains(strings.ToLower(name), "serial"):
			md.Serials++
		}
	}
	return md, nil
}
