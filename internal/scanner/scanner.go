// Package scanner discovers and validates the frames of a conversion request.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	xlog "framecast/internal/log"
	"framecast/internal/model"
	"framecast/pkg/imgutil"
)

// Scan dispatches on the input mode of a request. A file-list request without
// paths treats path as its only file.
func Scan(mode model.InputMode, path string, paths []string) (model.FrameSet, error) {
	switch mode {
	case model.InputFolder:
		return ScanFolder(path)
	case model.InputFiles:
		if len(paths) == 0 && path != "" {
			paths = []string{path}
		}
		return ScanFiles(paths)
	default:
		return model.FrameSet{}, fmt.Errorf("%w: unknown input mode %q", model.ErrInput, mode)
	}
}

// ScanFolder walks dir recursively and returns its frames sorted by full path.
func ScanFolder(dir string) (model.FrameSet, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return model.FrameSet{}, fmt.Errorf("%w: %s", model.ErrDirectoryNotFound, dir)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return model.FrameSet{}, fmt.Errorf("%w: %s: %v", model.ErrInput, dir, err)
	}

	var candidates []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable subtrees are skipped like unreadable files.
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return walkErr
		}
		if d.Type().IsRegular() && imgutil.IsFrameExt(path) {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return model.FrameSet{}, fmt.Errorf("%w: walk %s: %v", model.ErrInput, dir, err)
	}
	sort.Strings(candidates)

	return collect(candidates)
}

// ScanFiles keeps the caller's order and silently drops paths that are
// missing, not regular files, or not decodable images.
func ScanFiles(paths []string) (model.FrameSet, error) {
	candidates := make([]string, 0, len(paths))
	for _, p := range paths {
		if !imgutil.IsFrameExt(p) {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		candidates = append(candidates, abs)
	}
	return collect(candidates)
}

func collect(paths []string) (model.FrameSet, error) {
	logger := xlog.WithComponent("scanner")

	frames := make([]model.FrameInfo, 0, len(paths))
	for _, p := range paths {
		fi, err := probe(p)
		if err != nil {
			logger.Debug().Err(err).Str(xlog.FieldPath, p).Msg("skipping unreadable frame")
			continue
		}
		frames = append(frames, fi)
	}
	if len(frames) == 0 {
		return model.FrameSet{}, model.ErrEmptyInput
	}

	set := model.FrameSet{
		Frames:  frames,
		Uniform: true,
		Width:   frames[0].Width,
		Height:  frames[0].Height,
	}
	for _, f := range frames[1:] {
		if f.Width != set.Width || f.Height != set.Height {
			set.Uniform = false
			break
		}
	}
	logger.Debug().Int(xlog.FieldFrames, len(frames)).Bool("uniform", set.Uniform).Msg("scan complete")
	return set, nil
}

func probe(path string) (model.FrameInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.FrameInfo{}, err
	}
	// Content must match a known image signature whatever the extension says.
	kind, err := imgutil.SniffFile(path)
	if err != nil {
		return model.FrameInfo{}, err
	}
	if kind == imgutil.KindUnknown {
		return model.FrameInfo{}, errors.New("unrecognised image signature")
	}
	cfg, format, err := imgutil.DecodeConfig(path)
	if err != nil {
		return model.FrameInfo{}, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return model.FrameInfo{}, errors.New("zero-sized frame")
	}

	fi := model.FrameInfo{
		Path:        path,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Size:        info.Size(),
		Orientation: 1,
	}
	if format == "jpeg" {
		// Orientation is advisory; a broken EXIF block does not drop the frame.
		if o, err := imgutil.Orientation(path); err == nil {
			fi.Orientation = o
		}
	}
	return fi, nil
}

// Rotated lists the frames whose EXIF orientation is not the identity.
func Rotated(set model.FrameSet) []model.FrameInfo {
	var out []model.FrameInfo
	for _, f := range set.Frames {
		if f.Orientation > 1 {
			out = append(out, f)
		}
	}
	return out
}

// Extension returns the shared lower-case extension of all frames, or false
// when the set mixes extensions.
func Extension(set model.FrameSet) (string, bool) {
	if set.Len() == 0 {
		return "", false
	}
	ext := imgutil.NormalizedExt(set.Frames[0].Path)
	for _, f := range set.Frames[1:] {
		if imgutil.NormalizedExt(f.Path) != ext {
			return "", false
		}
	}
	return ext, true
}
