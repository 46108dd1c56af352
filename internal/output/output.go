// Package output writes batch results under
// <root>/<folder>/<group>/, where group is the name of the directory holding
// the left input image.
package output

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/sbinet/npyio"
	"github.com/viant/afs"
	"github.com/viant/afs/option"
	"gonum.org/v1/gonum/mat"
)

// Layout resolves and creates output locations for one run.
type Layout struct {
	Root   string
	Folder string
	fs     afs.Service
}

// NewLayout returns a layout rooted at root/folder.
func NewLayout(root, folder string) *Layout {
	return &Layout{Root: root, Folder: folder, fs: afs.New()}
}

// Group returns the grouping label of a left image: its parent directory name.
func Group(leftPath string) string {
	return filepath.Base(filepath.Dir(leftPath))
}

// Dir returns the output directory for a group.
func (l *Layout) Dir(group string) string {
	return filepath.Join(l.Root, l.Folder, group)
}

// ImagePath is where the color-mapped prediction for leftPath goes. It keeps
// the left image's file name.
func (l *Layout) ImagePath(leftPath string) string {
	return filepath.Join(l.Dir(Group(leftPath)), filepath.Base(leftPath))
}

// ArrayPath is where the raw prediction for leftPath goes: the left image's
// stem with a .npy extension.
func (l *Layout) ArrayPath(leftPath string) string {
	base := filepath.Base(leftPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(l.Dir(Group(leftPath)), stem+".npy")
}

// EnsureRoot creates the output root if it is missing.
func (l *Layout) EnsureRoot(ctx context.Context) error {
	return l.ensure(ctx, l.Root)
}

// EnsureDir creates root, root/folder and root/folder/group as needed and
// returns the group directory. Levels that already exist are left alone, so
// repeated runs over the same root succeed.
func (l *Layout) EnsureDir(ctx context.Context, group string) (string, error) {
	chain := []string{l.Root, filepath.Join(l.Root, l.Folder), l.Dir(group)}
	for _, dir := range chain {
		if err := l.ensure(ctx, dir); err != nil {
			return "", err
		}
	}
	return chain[len(chain)-1], nil
}

func (l *Layout) ensure(ctx context.Context, dir string) error {
	exists, err := l.fs.Exists(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", dir, err)
	}
	if exists {
		return nil
	}
	if err := l.fs.Create(ctx, dir, os.ModePerm, true); err != nil {
		// Someone else may have created it in between.
		if exists, _ := l.fs.Exists(ctx, dir); exists {
			return nil
		}
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

// WriteImage encodes img as PNG at path, whatever the file extension says.
func (l *Layout) WriteImage(ctx context.Context, path string, img image.Image) error {
	return l.write(ctx, path, func(w io.Writer) error {
		return imaging.Encode(w, img, imaging.PNG)
	})
}

// WriteArray stores a row-major height x width field as a 2-D float64 .npy
// array.
func (l *Layout) WriteArray(ctx context.Context, path string, data []float32, height, width int) error {
	if height*width != len(data) {
		return fmt.Errorf("array has %d values, %dx%d needs %d", len(data), width, height, height*width)
	}
	values := make([]float64, len(data))
	for i, v := range data {
		values[i] = float64(v)
	}
	m := mat.NewDense(height, width, values)
	return l.write(ctx, path, func(w io.Writer) error {
		return npyio.Write(w, m)
	})
}

func (l *Layout) write(ctx context.Context, path string, encode func(io.Writer) error) (err error) {
	w, err := l.fs.NewWriter(ctx, path, 0o644, option.NewSkipChecksum(true))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if closeErr := w.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to write %s: %w", path, closeErr))
		}
	}()
	if err := encode(w); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}
