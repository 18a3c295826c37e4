package external

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"framecast/internal/model"
	"framecast/pkg/imgutil"
)

// Strategy exposes one source frame at dst.
type Strategy struct {
	Name string
	Link func(src, dst string) error
}

// DefaultStrategies are tried in order for every frame; the first that
// succeeds wins.
var DefaultStrategies = []Strategy{
	{Name: "symlink", Link: os.Symlink},
	{Name: "hardlink", Link: os.Link},
	{Name: "copy", Link: copyFile},
}

// Sequence is a private directory holding frame_000001.<ext> ... so that a
// tool can read the frames as one numbered input.
type Sequence struct {
	Dir     string
	Pattern string
	Ext     string
	Count   int
}

// MakeTempDir creates a private directory named after the purpose, the pid
// and the current time.
func MakeTempDir(root, purpose string) (string, error) {
	if root == "" {
		root = os.TempDir()
	}
	prefix := fmt.Sprintf("framecast_%s_%d_%d_", purpose, os.Getpid(), time.Now().UnixMilli())
	return os.MkdirTemp(root, prefix)
}

// Materialize exposes frames as a numbered sequence. All frames must share
// one extension.
func Materialize(root, purpose string, frames []string, strategies []Strategy) (*Sequence, error) {
	if len(frames) == 0 {
		return nil, model.ErrEmptyInput
	}
	ext := imgutil.NormalizedExt(frames[0])
	for _, f := range frames[1:] {
		if imgutil.NormalizedExt(f) != ext {
			return nil, model.ErrMixedExtensions
		}
	}
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}

	dir, err := MakeTempDir(root, purpose)
	if err != nil {
		return nil, fmt.Errorf("create sequence dir: %w", err)
	}
	seq := &Sequence{
		Dir:     dir,
		Pattern: filepath.Join(dir, "frame_%06d."+ext),
		Ext:     ext,
		Count:   len(frames),
	}
	for i, src := range frames {
		if err := link(strategies, src, seq.FramePath(i+1)); err != nil {
			_ = seq.Remove()
			return nil, err
		}
	}
	return seq, nil
}

// FramePath returns the path of the 1-based frame n.
func (s *Sequence) FramePath(n int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("frame_%06d.%s", n, s.Ext))
}

func (s *Sequence) Remove() error {
	if s == nil || s.Dir == "" {
		return nil
	}
	return os.RemoveAll(s.Dir)
}

func link(strategies []Strategy, src, dst string) error {
	var lastErr error
	for _, st := range strategies {
		err := st.Link(src, dst)
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("%s %s: %w", st.Name, src, err)
		_ = os.Remove(dst)
	}
	return lastErr
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
